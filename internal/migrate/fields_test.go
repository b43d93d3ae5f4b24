package migrate

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenameField(t *testing.T) {
	out, err := RenameField(json.RawMessage(`{"q":"term","page":2}`), "q", "query")
	require.NoError(t, err)
	assert.JSONEq(t, `{"query":"term","page":2}`, string(out))

	// Already renamed: no-op.
	again, err := RenameField(out, "q", "query")
	require.NoError(t, err)
	assert.JSONEq(t, string(out), string(again))

	// Absent source: no-op.
	same, err := RenameField(json.RawMessage(`{"page":2}`), "q", "query")
	require.NoError(t, err)
	assert.JSONEq(t, `{"page":2}`, string(same))
}

func TestSetDefault(t *testing.T) {
	out, err := SetDefault(json.RawMessage(`{}`), "limit", 20)
	require.NoError(t, err)
	assert.JSONEq(t, `{"limit":20}`, string(out))

	// Present value wins.
	out, err = SetDefault(json.RawMessage(`{"limit":5}`), "limit", 20)
	require.NoError(t, err)
	assert.JSONEq(t, `{"limit":5}`, string(out))
}

func TestDropField(t *testing.T) {
	out, err := DropField(json.RawMessage(`{"legacy":true,"v":1}`), "legacy")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(out))

	out, err = DropField(out, "legacy")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(out))
}
