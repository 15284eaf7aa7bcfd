package radar

import (
	"errors"
	"fmt"
)

var (
	// ErrFrameCorrupt is returned by Decode for frames whose inner markers
	// or layout are invalid. The pipeline drops such frames.
	ErrFrameCorrupt = errors.New("radar: corrupt frame")
	// ErrCommandTimeout means no matching ACK arrived within the window.
	ErrCommandTimeout = errors.New("radar: command timeout")
	// ErrNotConnected is returned when no transport is open.
	ErrNotConnected = errors.New("radar: not connected")
)

// TimeoutError wraps ErrCommandTimeout with the command that went unanswered.
type TimeoutError struct {
	Command CommandCode
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("radar: no ack for %s", e.Command)
}

// Is makes errors.Is(err, ErrCommandTimeout) hold.
func (e *TimeoutError) Is(target error) bool { return target == ErrCommandTimeout }

// CommandError is an ACK that arrived with a failure status.
type CommandError struct {
	Command CommandCode
	Status  uint16
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("radar: %s failed with status 0x%04X", e.Command, e.Status)
}

// UnsupportedReplyError is an ACK whose return payload does not have the
// shape expected for its command.
type UnsupportedReplyError struct {
	Command CommandCode
	Length  int
	Reason  string
}

func (e *UnsupportedReplyError) Error() string {
	return fmt.Sprintf("radar: unsupported %s reply (%d bytes): %s", e.Command, e.Length, e.Reason)
}

// IsCommandError returns true if err is or wraps a *CommandError.
func IsCommandError(err error) bool {
	var ce *CommandError
	return errors.As(err, &ce)
}
