package cp26

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KozyOps/ble-tui/at"
)

// This file is the mode controller: the state machine over the driver's
// channel mode belief. The interpreter flag lives on the device, persists
// across software resets, and is invisible except through behavior, so
// every transition here requires a confirmed reply before the belief moves.

const (
	// passOn puts the module in transparent relay; the interpreter is off.
	passOn = "1"
	// passOff enables the AT interpreter on the channel.
	passOff = "0"
)

// Probe resolves the channel mode by sending the bare test command, which
// is benign in either mode. An OK reply means the interpreter answered; on
// a passthrough channel the probe is forwarded to the peer as payload and
// nothing comes back.
//
// Silence is therefore ambiguous, and Probe resolves it conservatively:
// from ModeUnknown it assumes ModePassthrough (the factory default), and a
// silent probe that contradicts a ModeCommand belief degrades the belief to
// ModeUnknown and reports ErrDesync.
func (m *Module) Probe(ctx context.Context) error {
	prior := m.Mode()

	probeCtx := ctx
	if _, ok := ctx.Deadline(); !ok && m.config.ProbeTimeout > 0 {
		var cancel context.CancelFunc
		probeCtx, cancel = context.WithTimeout(ctx, m.config.ProbeTimeout)
		defer cancel()
	}

	_, err := m.exec(probeCtx, at.Command{Verb: at.VerbTest, Intent: at.Query})
	switch {
	case err == nil:
		m.setMode(ModeCommand)
		return nil
	case errors.Is(err, ErrTimeout):
		switch prior {
		case ModeCommand:
			// The interpreter should have answered. Belief is wrong.
			m.setMode(ModeUnknown)
			return fmt.Errorf("probe unanswered in command mode: %w", ErrDesync)
		default:
			m.setMode(ModePassthrough)
			return nil
		}
	default:
		return err
	}
}

// EnterCommandMode transitions the channel to AT interpretation. From
// ModeUnknown the mode is probed first. The transition is only believed
// after the module confirms it: an unanswered enable command leaves the
// belief at ModePassthrough, since the flag cannot have flipped without a
// reply.
//
// Entering the mode the driver already believes it is in is a validated
// no-op.
func (m *Module) EnterCommandMode(ctx context.Context) error {
	if m.Mode() == ModeUnknown {
		if err := m.Probe(ctx); err != nil {
			return err
		}
	}
	if m.Mode() == ModeCommand {
		return nil
	}

	if _, err := m.exec(ctx, at.Command{Verb: at.VerbPass, Param: passOff, Intent: at.Set}); err != nil {
		return fmt.Errorf("enable interpreter: %w", err)
	}
	m.setMode(ModeCommand)
	return nil
}

// EnterPassthrough transitions the channel to transparent relay, with the
// same confirmation discipline as EnterCommandMode.
func (m *Module) EnterPassthrough(ctx context.Context) error {
	if m.Mode() == ModeUnknown {
		if err := m.Probe(ctx); err != nil {
			return err
		}
	}
	if m.Mode() == ModePassthrough {
		return nil
	}

	if _, err := m.exec(ctx, at.Command{Verb: at.VerbPass, Param: passOn, Intent: at.Set}); err != nil {
		return fmt.Errorf("disable interpreter: %w", err)
	}
	m.setMode(ModePassthrough)
	return nil
}

// Reset restarts the module and stays in command mode, relying on the
// interpreter flag surviving the restart. Settings waiting on a power cycle
// take effect now. After the settle delay the mode is re-probed rather than
// assumed.
func (m *Module) Reset(ctx context.Context) error {
	if err := m.requireCommandMode("reset"); err != nil {
		return err
	}
	if _, err := m.exec(ctx, at.Command{Verb: at.VerbReset, Intent: at.Set}); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	m.setPendingRestart(false)
	if err := m.settle(ctx); err != nil {
		return err
	}
	return m.Probe(ctx)
}

// ResetAndRestorePassthrough restarts the module and then disables the
// interpreter, as one guarded operation.
//
// The two steps must not be separated: the interpreter flag survives the
// restart, so a plain reset brings the module back up still parsing the
// channel as commands, and the next payload write is silently swallowed.
// If the restore step itself goes unanswered the composite returns
// ErrInterpreterStuck and the belief degrades to ModeUnknown: the device
// flag is then in a persisted state this driver cannot repair on its own.
func (m *Module) ResetAndRestorePassthrough(ctx context.Context) error {
	return m.restartAndRestore(ctx, at.VerbReset)
}

// RestoreDefaults restores factory settings and then disables the
// interpreter, with the same guarantees as ResetAndRestorePassthrough. The
// restore itself restarts the module.
func (m *Module) RestoreDefaults(ctx context.Context) error {
	return m.restartAndRestore(ctx, at.VerbDefault)
}

func (m *Module) restartAndRestore(ctx context.Context, verb at.Verb) error {
	if err := m.requireCommandMode(commandName(at.Command{Verb: verb})); err != nil {
		return err
	}

	if _, err := m.exec(ctx, at.Command{Verb: verb, Intent: at.Set}); err != nil {
		return fmt.Errorf("%s: %w", commandName(at.Command{Verb: verb}), err)
	}
	m.setPendingRestart(false)

	if err := m.settle(ctx); err != nil {
		return err
	}

	if _, err := m.exec(ctx, at.Command{Verb: at.VerbPass, Param: passOn, Intent: at.Set}); err != nil {
		if errors.Is(err, ErrTimeout) {
			m.setMode(ModeUnknown)
			return fmt.Errorf("disable interpreter after restart: %w", ErrInterpreterStuck)
		}
		return fmt.Errorf("disable interpreter after restart: %w", err)
	}
	m.setMode(ModePassthrough)
	return nil
}

// settle waits out the module restart window.
func (m *Module) settle(ctx context.Context) error {
	timer := time.NewTimer(m.config.ResetSettle)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Module) requireCommandMode(op string) error {
	if mode := m.Mode(); mode != ModeCommand {
		return fmt.Errorf("%s requires command mode, channel is %s: %w", op, mode, ErrModeMismatch)
	}
	return nil
}
