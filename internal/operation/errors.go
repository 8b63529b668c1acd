package operation

import "fmt"

// FailedError reports a dbt invocation that exited non-zero.
type FailedError struct {
	Operation  string
	Identifier string
	ExitCode   int
	Log        string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("operation %s failed (%s): exit code %d", e.Operation, e.Identifier, e.ExitCode)
}
