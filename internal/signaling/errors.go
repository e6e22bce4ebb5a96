package signaling

import (
	"errors"
	"fmt"
)

// ErrProtocolViolation marks inbound messages that the session drops: anything
// after a local hangup, a second offer before start, or a message for a caller
// that has not started yet. It is logged and counted, never surfaced.
var ErrProtocolViolation = errors.New("signaling protocol violation")

// CaptureError reports that local media could not be acquired. The session
// cannot start without local media and stays idle.
type CaptureError struct {
	Err error
}

func (e *CaptureError) Error() string { return fmt.Sprintf("capture local media: %v", e.Err) }
func (e *CaptureError) Unwrap() error { return e.Err }

// IceConfigError reports a failed ICE server lookup. It is not fatal: the
// session continues with the servers it already has.
type IceConfigError struct {
	Err error
}

func (e *IceConfigError) Error() string { return fmt.Sprintf("resolve ice config: %v", e.Err) }
func (e *IceConfigError) Unwrap() error { return e.Err }

// EndpointError reports an operation rejected by the media endpoint. The
// current offer/answer exchange stops but the session is not torn down.
type EndpointError struct {
	Op  string
	Err error
}

func (e *EndpointError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *EndpointError) Unwrap() error { return e.Err }
