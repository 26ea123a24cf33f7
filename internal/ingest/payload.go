package ingest

import (
	"encoding/json"
	"fmt"
)

// ErrorBody is the failure envelope every transport returns to its caller.
type ErrorBody struct {
	Ok      bool   `json:"ok"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func Failure(err error) ErrorBody {
	return ErrorBody{Ok: false, Code: Code(err), Message: err.Error()}
}

// DecodeReading parses a message payload. Unknown fields are ignored since
// device firmware tends to add its own diagnostics.
func DecodeReading(data []byte) (Reading, error) {
	var r Reading
	if err := json.Unmarshal(data, &r); err != nil {
		return Reading{}, fmt.Errorf("%w: malformed reading: %w", ErrValidation, err)
	}
	return r, nil
}
