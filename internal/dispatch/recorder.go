package dispatch

import (
	"context"
	"encoding/json"
)

// RecordData is one recorded request cycle. Input is a value-semantics
// snapshot taken before migration or middleware run, since those may rewrite
// the payload.
type RecordData struct {
	Addon  string
	Action string
	Input  json.RawMessage
	Output json.RawMessage
	Status int
}

// Recorder is the optional request side-channel. Implementations must
// support safe concurrent append.
type Recorder interface {
	Record(ctx context.Context, rec RecordData) error
}
