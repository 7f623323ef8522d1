package transform

import "fmt"

type Kind string

const (
	KindExitStatus  Kind = "exit_status"
	KindTimeout     Kind = "timeout"
	KindEmptyOutput Kind = "empty_output"
	KindCanceled    Kind = "canceled"
	// KindQueue means the job never reached a worker or its result was lost.
	KindQueue Kind = "queue"
)

// Error is a failed transform. Stderr holds the tail of the tool's output.
type Error struct {
	Kind     Kind
	ExitCode int // -1 when the process never exited normally
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindExitStatus:
		return fmt.Sprintf("transform failed with exit code %d: %v", e.ExitCode, e.Err)
	case KindTimeout:
		return "transform exceeded its deadline"
	case KindEmptyOutput:
		return "transform produced no output"
	default:
		return fmt.Sprintf("transform %s: %v", e.Kind, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }
