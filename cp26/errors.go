package cp26

import (
	"errors"
	"fmt"
)

var (
	// ErrNoDialer is returned when a Module is constructed without a Dialer.
	//
	// This indicates a configuration error. A Dialer is required in order to
	// obtain the byte channel to the module.
	ErrNoDialer = errors.New("no dialer configured")

	// ErrNotInitialized is returned when an operation is attempted on a
	// Module that has no transport, for example after a failed construction.
	ErrNotInitialized = errors.New("module not initialized")

	// ErrAlreadyClosed is returned when Close is called on a Module that has
	// already been closed.
	ErrAlreadyClosed = errors.New("module already closed")

	// ErrLoopRunning is returned when Loop is started a second time.
	ErrLoopRunning = errors.New("event loop already running")

	// ErrTimeout is returned when no classified reply arrived within the
	// command deadline.
	//
	// The module protocol has no negative acknowledgement: a rejected or
	// unrecognized command produces no bytes at all, so timeout expiry is
	// the only failure signal. Callers decide whether to retry; the driver
	// never retries on its own.
	ErrTimeout = errors.New("command timed out")

	// ErrModeMismatch is returned when an operation's required channel mode
	// does not match the driver's tracked belief: an AT operation while the
	// channel is (believed) passthrough, or a passthrough write while the
	// interpreter is (believed) active. Resolve the mode first via
	// EnterCommandMode or EnterPassthrough.
	ErrModeMismatch = errors.New("operation does not match channel mode")

	// ErrDesync is returned when the driver's tracked mode can no longer be
	// trusted, for example after an unconfirmed transition. The state falls
	// back to unknown and a Probe is required before further commands.
	ErrDesync = errors.New("channel mode desynchronized")

	// ErrInterpreterStuck is returned by the reset/restore composites when
	// the post-restart disable-interpreter step went unanswered. The
	// module's persisted interpreter flag is now in an indeterminate state
	// that survives further resets; recovering it requires external action
	// (re-probe and retry, or a physical power cycle with a known-good
	// configuration). This is the highest-severity failure the driver
	// reports.
	ErrInterpreterStuck = errors.New("interpreter flag possibly left enabled after restart")

	// ErrLineTooLong is returned when a response line exceeds the maximum
	// allowed length, which indicates binary noise on the channel or a
	// framing error.
	ErrLineTooLong = errors.New("response line too long")
)

// ValidationError reports a setting value outside its documented domain.
// It is produced before any command is constructed; nothing is transmitted.
type ValidationError struct {
	Setting Setting
	Value   string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid value %q for %s: %s", e.Value, e.Setting, e.Reason)
}
