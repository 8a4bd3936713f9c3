package chain

import "fmt"

// InvalidBatchError reports a structurally invalid batch payload.
type InvalidBatchError struct {
	Field  string
	Reason string
}

func (e *InvalidBatchError) Error() string {
	return fmt.Sprintf("invalid batch: %s %s", e.Field, e.Reason)
}
