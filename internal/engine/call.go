package engine

import (
	"context"
	"encoding/json"

	"github.com/itori-ai/aiengine/internal/port"
)

// Call is the typed entry point over the raw execution path. In and Out must
// be the schema structs matching the port; the mapping between port IDs and
// schema types is closed, so a mismatch fails input validation immediately.
func Call[In any, Out any](ctx context.Context, e *Engine, id port.ID, input In, rc port.RequestContext) (Out, Diagnostic, error) {
	var zero Out

	raw, err := json.Marshal(input)
	if err != nil {
		return zero, Diagnostic{}, &Error{Kind: KindValidationFailed, Port: id, Direction: "input", Err: err}
	}

	res, err := e.Execute(ctx, id, raw, rc)
	if err != nil {
		return zero, Diagnostic{}, err
	}

	var out Out
	if err := json.Unmarshal(res.Output, &out); err != nil {
		return zero, res.Diagnostic, &Error{Kind: KindValidationFailed, Port: id, Direction: "output", Err: err}
	}
	return out, res.Diagnostic, nil
}
