package device

import (
	"errors"
	"fmt"
)

// CodeGeneric is the exit status for failures that carry no bridge status.
const CodeGeneric = 1

var (
	// ErrHandshakeTimeout is wrapped when the bridge does not answer HELLO.
	ErrHandshakeTimeout = errors.New("device: no hello from bridge")
	// ErrNoSkeleton is wrapped when the bridge cannot track skeletons.
	ErrNoSkeleton = errors.New("device: bridge does not support skeleton tracking")
	// ErrBridgeStatus is wrapped when the bridge reports a failed start.
	ErrBridgeStatus = errors.New("device: bridge reported failure")
)

// InitError is a fatal start-up failure. Code is the process exit status.
type InitError struct {
	Code int
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("init failed (code %d): %v", e.Code, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// Fatal wraps err as an InitError with the generic exit code. An err that
// already is an InitError is returned unchanged.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	var ie *InitError
	if errors.As(err, &ie) {
		return err
	}
	return &InitError{Code: CodeGeneric, Err: err}
}

// ExitCode returns the exit status for err: 0 for nil, the InitError code
// when one is in the chain and 1 otherwise.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ie *InitError
	if errors.As(err, &ie) && ie.Code != 0 {
		return ie.Code
	}
	return CodeGeneric
}
