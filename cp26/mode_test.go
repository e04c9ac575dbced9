package cp26_test

import (
	"context"
	"errors"
	"testing"

	"github.com/KozyOps/ble-tui/cp26"
)

func TestProbe(t *testing.T) {
	t.Run("Answered probe resolves to command mode", func(t *testing.T) {
		m, _ := newTestModule(t, map[string]string{"AT\r\n": "OK\r\n"})

		if err := m.Probe(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := m.Mode(); got != cp26.ModeCommand {
			t.Errorf("mode = %v, want ModeCommand", got)
		}
	})

	t.Run("Silent probe from unknown assumes passthrough", func(t *testing.T) {
		m, _ := newTestModule(t, nil)

		if err := m.Probe(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := m.Mode(); got != cp26.ModePassthrough {
			t.Errorf("mode = %v, want ModePassthrough", got)
		}
	})

	t.Run("Silent probe confirming passthrough is not an error", func(t *testing.T) {
		m, _ := newTestModule(t, nil)

		if err := m.Probe(context.Background()); err != nil {
			t.Fatalf("first probe: %v", err)
		}
		if err := m.Probe(context.Background()); err != nil {
			t.Fatalf("second probe: %v", err)
		}
		if got := m.Mode(); got != cp26.ModePassthrough {
			t.Errorf("mode = %v, want ModePassthrough", got)
		}
	})

	t.Run("Silent probe contradicting command belief reports desync", func(t *testing.T) {
		m, tr := newTestModule(t, map[string]string{"AT\r\n": "OK\r\n"})
		enterCommandMode(t, m)

		// Device stops answering: the tracked belief can no longer be
		// trusted and degrades to unknown.
		tr.SetWriteHook(nil)
		err := m.Probe(context.Background())
		if !errors.Is(err, cp26.ErrDesync) {
			t.Fatalf("expected ErrDesync, got: %v", err)
		}
		if got := m.Mode(); got != cp26.ModeUnknown {
			t.Errorf("mode = %v, want ModeUnknown", got)
		}
	})
}

func TestModeTransitions(t *testing.T) {
	t.Run("Passthrough to command requires confirmation", func(t *testing.T) {
		m, tr := newTestModule(t, map[string]string{
			"AT+PASS0\r\n": "+PASS=0\r\nOK\r\n",
		})
		if err := m.Probe(context.Background()); err != nil { // silent -> passthrough
			t.Fatalf("probe: %v", err)
		}

		if err := m.EnterCommandMode(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := m.Mode(); got != cp26.ModeCommand {
			t.Errorf("mode = %v, want ModeCommand", got)
		}
		_ = tr
	})

	t.Run("Unconfirmed transition leaves belief unchanged", func(t *testing.T) {
		m, _ := newTestModule(t, nil)
		if err := m.Probe(context.Background()); err != nil {
			t.Fatalf("probe: %v", err)
		}

		// AT+PASS0 goes unanswered: the flag cannot have flipped without a
		// reply, so the belief stays at passthrough.
		err := m.EnterCommandMode(context.Background())
		if !errors.Is(err, cp26.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got: %v", err)
		}
		if got := m.Mode(); got != cp26.ModePassthrough {
			t.Errorf("mode = %v, want ModePassthrough", got)
		}
	})

	t.Run("Command to passthrough", func(t *testing.T) {
		m, _ := newTestModule(t, map[string]string{
			"AT\r\n":       "OK\r\n",
			"AT+PASS1\r\n": "+PASS=1\r\nOK\r\n",
		})
		enterCommandMode(t, m)

		if err := m.EnterPassthrough(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := m.Mode(); got != cp26.ModePassthrough {
			t.Errorf("mode = %v, want ModePassthrough", got)
		}
	})

	t.Run("Self transition is a no-op", func(t *testing.T) {
		m, tr := newTestModule(t, map[string]string{"AT\r\n": "OK\r\n"})
		enterCommandMode(t, m)

		before := len(tr.Written())
		if err := m.EnterCommandMode(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := len(tr.Written()); got != before {
			t.Errorf("no-op transition wrote %d bytes", got-before)
		}
	})

	t.Run("EnterCommandMode resolves unknown via probe first", func(t *testing.T) {
		m, _ := newTestModule(t, map[string]string{"AT\r\n": "OK\r\n"})

		// Probe answers, so the channel is already in command mode and no
		// AT+PASS0 is needed.
		if err := m.EnterCommandMode(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := m.Mode(); got != cp26.ModeCommand {
			t.Errorf("mode = %v, want ModeCommand", got)
		}
	})
}

func TestReset(t *testing.T) {
	t.Run("Requires command mode", func(t *testing.T) {
		m, _ := newTestModule(t, nil)
		if err := m.Probe(context.Background()); err != nil {
			t.Fatalf("probe: %v", err)
		}

		err := m.Reset(context.Background())
		if !errors.Is(err, cp26.ErrModeMismatch) {
			t.Errorf("expected ErrModeMismatch, got: %v", err)
		}
	})

	t.Run("Stays in command mode across restart", func(t *testing.T) {
		m, _ := newTestModule(t, map[string]string{
			"AT\r\n":       "OK\r\n",
			"AT+RESET\r\n": "OK\r\n",
			"AT+BAUD4\r\n": "+BAUD=4\r\nOK\r\n",
		})
		enterCommandMode(t, m)

		// Raise a pending restart first.
		if err := m.Set(context.Background(), cp26.SettingBaud, cp26.Baud19200); err != nil {
			t.Fatalf("baud set failed: %v", err)
		}
		if !m.State().PendingRestart {
			t.Fatal("baud change should mark a pending restart")
		}

		if err := m.Reset(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		state := m.State()
		if state.Mode != cp26.ModeCommand {
			t.Errorf("mode = %v, want ModeCommand (flag survives reset)", state.Mode)
		}
		if state.PendingRestart {
			t.Error("pending restart should clear after reset")
		}
	})
}

func TestResetAndRestorePassthrough(t *testing.T) {
	t.Run("Ends in passthrough on the documented sequence", func(t *testing.T) {
		m, _ := newTestModule(t, map[string]string{
			"AT\r\n":       "OK\r\n",
			"AT+RESET\r\n": "OK\r\n",
			"AT+PASS1\r\n": "+PASS=1\r\nOK\r\n",
		})
		enterCommandMode(t, m)

		if err := m.ResetAndRestorePassthrough(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := m.Mode(); got != cp26.ModePassthrough {
			t.Errorf("final mode = %v, want ModePassthrough", got)
		}
	})

	t.Run("Unanswered restore step reports interpreter stuck", func(t *testing.T) {
		m, _ := newTestModule(t, map[string]string{
			"AT\r\n":       "OK\r\n",
			"AT+RESET\r\n": "OK\r\n",
			// AT+PASS1 deliberately unanswered.
		})
		enterCommandMode(t, m)

		err := m.ResetAndRestorePassthrough(context.Background())
		if !errors.Is(err, cp26.ErrInterpreterStuck) {
			t.Fatalf("expected ErrInterpreterStuck, got: %v", err)
		}
		if got := m.Mode(); got != cp26.ModeUnknown {
			t.Errorf("mode = %v, want ModeUnknown after failed restore", got)
		}
	})

	t.Run("Requires command mode", func(t *testing.T) {
		m, _ := newTestModule(t, nil)

		err := m.ResetAndRestorePassthrough(context.Background())
		if !errors.Is(err, cp26.ErrModeMismatch) {
			t.Errorf("expected ErrModeMismatch, got: %v", err)
		}
	})
}

func TestRestoreDefaults(t *testing.T) {
	m, _ := newTestModule(t, map[string]string{
		"AT\r\n":         "OK\r\n",
		"AT+DEFAULT\r\n": "OK\r\n",
		"AT+PASS1\r\n":   "+PASS=1\r\nOK\r\n",
	})
	enterCommandMode(t, m)

	if err := m.RestoreDefaults(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.Mode(); got != cp26.ModePassthrough {
		t.Errorf("final mode = %v, want ModePassthrough", got)
	}
}
