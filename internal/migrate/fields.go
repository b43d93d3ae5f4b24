package migrate

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Field helpers for adapter authors. They operate on raw payloads and are
// no-ops when the payload is already in the target shape, which keeps
// adapters idempotent.

// RenameField moves a field to a new path. If from is absent or to already
// exists, the payload is returned unchanged.
func RenameField(payload json.RawMessage, from, to string) (json.RawMessage, error) {
	v := gjson.GetBytes(payload, from)
	if !v.Exists() || gjson.GetBytes(payload, to).Exists() {
		return payload, nil
	}
	out, err := sjson.SetRawBytes(payload, to, []byte(v.Raw))
	if err != nil {
		return nil, fmt.Errorf("set %q: %w", to, err)
	}
	out, err = sjson.DeleteBytes(out, from)
	if err != nil {
		return nil, fmt.Errorf("delete %q: %w", from, err)
	}
	return out, nil
}

// SetDefault sets a field to value if the field is absent.
func SetDefault(payload json.RawMessage, path string, value any) (json.RawMessage, error) {
	if gjson.GetBytes(payload, path).Exists() {
		return payload, nil
	}
	out, err := sjson.SetBytes(payload, path, value)
	if err != nil {
		return nil, fmt.Errorf("set default %q: %w", path, err)
	}
	return out, nil
}

// DropField removes a field if present.
func DropField(payload json.RawMessage, path string) (json.RawMessage, error) {
	if !gjson.GetBytes(payload, path).Exists() {
		return payload, nil
	}
	out, err := sjson.DeleteBytes(payload, path)
	if err != nil {
		return nil, fmt.Errorf("drop %q: %w", path, err)
	}
	return out, nil
}
