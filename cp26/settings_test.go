package cp26_test

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/mock/gomock"

	"github.com/KozyOps/ble-tui/cp26"
)

func TestSetValidation(t *testing.T) {
	tests := []struct {
		name    string
		setting cp26.Setting
		value   string
	}{
		{"Baud index above range", cp26.SettingBaud, "9"},
		{"Baud index zero", cp26.SettingBaud, "0"},
		{"Baud index multi-digit", cp26.SettingBaud, "42"},
		{"Stop bits out of range", cp26.SettingStopBits, "2"},
		{"Parity out of range", cp26.SettingParity, "3"},
		{"Notify non-boolean", cp26.SettingNotify, "2"},
		{"Advertising interval beyond F", cp26.SettingAdvInterval, "G"},
		{"Advertising interval lowercase", cp26.SettingAdvInterval, "a"},
		{"Tx power out of range", cp26.SettingTxPower, "4"},
		{"Device type out of range", cp26.SettingDeviceType, "3"},
		{"Empty name", cp26.SettingName, ""},
		{"Name too long", cp26.SettingName, "an-unreasonably-long-device-name"},
		{"Name with control bytes", cp26.SettingName, "bad\x01name"},
		{"PIN too short", cp26.SettingPIN, "12345"},
		{"PIN non-numeric", cp26.SettingPIN, "12345a"},
		{"Service UUID wrong length", cp26.SettingServiceUUID, "FFE"},
		{"Service UUID non-hex", cp26.SettingServiceUUID, "FFEG"},
		{"Version is query-only", cp26.SettingVersion, "1"},
		{"Address is query-only", cp26.SettingAddress, "A1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// A transport with no expectations: the controller fails the
			// test if a single byte is written. Domain errors must never
			// reach the wire.
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			mockTransport := cp26.NewMockTransport(ctrl)
			mockDialer := cp26.NewMockDialer(ctrl)
			mockDialer.EXPECT().Dial(gomock.Any()).Return(mockTransport, nil)

			config, err := cp26.NewConfigBuilder().WithDialer(mockDialer).Build()
			if err != nil {
				t.Fatalf("unexpected error from Build(): %v", err)
			}
			m, err := cp26.New(context.Background(), config)
			if err != nil {
				t.Fatalf("unexpected error from New(): %v", err)
			}

			err = m.Set(context.Background(), tt.setting, tt.value)
			var verr *cp26.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got: %v", err)
			}
			if verr.Setting != tt.setting || verr.Value != tt.value {
				t.Errorf("ValidationError = %v", verr)
			}
		})
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	t.Run("Name", func(t *testing.T) {
		m, _ := newTestModule(t, map[string]string{
			"AT\r\n":            "OK\r\n",
			"AT+NAMEDX-BT24\r\n": "+NAME=DX-BT24\r\nOK\r\n",
			"AT+NAME\r\n":       "+NAME=DX-BT24\r\n",
		})
		enterCommandMode(t, m)

		if err := m.Set(context.Background(), cp26.SettingName, "DX-BT24"); err != nil {
			t.Fatalf("set failed: %v", err)
		}
		got, err := m.Get(context.Background(), cp26.SettingName)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got != "DX-BT24" {
			t.Errorf("Get(name) = %q, want %q", got, "DX-BT24")
		}
	})

	t.Run("Baud after restart", func(t *testing.T) {
		m, _ := newTestModule(t, map[string]string{
			"AT\r\n":       "OK\r\n",
			"AT+BAUD7\r\n": "+BAUD=7\r\nOK\r\n",
			"AT+RESET\r\n": "OK\r\n",
			"AT+BAUD\r\n":  "+BAUD=7\r\n",
		})
		enterCommandMode(t, m)

		if err := m.Set(context.Background(), cp26.SettingBaud, cp26.Baud115200); err != nil {
			t.Fatalf("set failed: %v", err)
		}
		if !m.State().PendingRestart {
			t.Fatal("baud change should mark a pending restart")
		}
		if err := m.Reset(context.Background()); err != nil {
			t.Fatalf("reset failed: %v", err)
		}

		got, err := m.Get(context.Background(), cp26.SettingBaud)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got != cp26.Baud115200 {
			t.Errorf("Get(baud) = %q, want %q", got, cp26.Baud115200)
		}
	})
}

func TestSetRestartMarking(t *testing.T) {
	t.Run("Notification settings apply without restart", func(t *testing.T) {
		m, _ := newTestModule(t, map[string]string{
			"AT\r\n":       "OK\r\n",
			"AT+NOTI1\r\n": "+NOTI=1\r\nOK\r\n",
			"AT+NOTP1\r\n": "+NOTP=1\r\nOK\r\n",
		})
		enterCommandMode(t, m)

		if err := m.Set(context.Background(), cp26.SettingNotify, "1"); err != nil {
			t.Fatalf("set notify: %v", err)
		}
		if err := m.Set(context.Background(), cp26.SettingNotifyAddr, "1"); err != nil {
			t.Fatalf("set notify-addr: %v", err)
		}
		if m.State().PendingRestart {
			t.Error("notification settings are on the no-restart exception list")
		}
	})

	t.Run("Other settings mark pending restart", func(t *testing.T) {
		m, _ := newTestModule(t, map[string]string{
			"AT\r\n":       "OK\r\n",
			"AT+PARI2\r\n": "+PARI=2\r\nOK\r\n",
		})
		enterCommandMode(t, m)

		if err := m.Set(context.Background(), cp26.SettingParity, cp26.ParityEven); err != nil {
			t.Fatalf("set parity: %v", err)
		}
		if !m.State().PendingRestart {
			t.Error("parity change should mark a pending restart")
		}
	})

	t.Run("Low power mirrors into state", func(t *testing.T) {
		m, _ := newTestModule(t, map[string]string{
			"AT\r\n":       "OK\r\n",
			"AT+PWRM1\r\n": "+PWRM=1\r\nOK\r\n",
		})
		enterCommandMode(t, m)

		if err := m.Set(context.Background(), cp26.SettingLowPower, "1"); err != nil {
			t.Fatalf("set low-power: %v", err)
		}
		if !m.State().LowPower {
			t.Error("state should reflect low power mode")
		}
	})
}

func TestSetModeGating(t *testing.T) {
	t.Run("Valid set in passthrough returns ErrModeMismatch", func(t *testing.T) {
		m, tr := newTestModule(t, nil)
		if err := m.Probe(context.Background()); err != nil {
			t.Fatalf("probe: %v", err)
		}
		before := len(tr.Written())

		err := m.Set(context.Background(), cp26.SettingName, "DX-BT24")
		if !errors.Is(err, cp26.ErrModeMismatch) {
			t.Fatalf("expected ErrModeMismatch, got: %v", err)
		}
		if got := len(tr.Written()); got != before {
			t.Errorf("mode-mismatched set wrote %d bytes", got-before)
		}
	})

	t.Run("Get in unknown mode returns ErrModeMismatch", func(t *testing.T) {
		m, _ := newTestModule(t, nil)

		_, err := m.Get(context.Background(), cp26.SettingName)
		if !errors.Is(err, cp26.ErrModeMismatch) {
			t.Errorf("expected ErrModeMismatch, got: %v", err)
		}
	})
}

func TestQueryHelpers(t *testing.T) {
	m, _ := newTestModule(t, map[string]string{
		"AT\r\n":      "OK\r\n",
		"AT+VERS\r\n": "+VERS=CP26-V3.2\r\n",
		"AT+ADDR\r\n": "+ADDR=48872D0A1B2C\r\n",
	})
	enterCommandMode(t, m)

	version, err := m.Version(context.Background())
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if version != "CP26-V3.2" {
		t.Errorf("Version() = %q", version)
	}

	addr, err := m.Address(context.Background())
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	if addr != "48872D0A1B2C" {
		t.Errorf("Address() = %q", addr)
	}
}

func TestMismatchedReplyDiscarded(t *testing.T) {
	m, tr := newTestModule(t, map[string]string{"AT\r\n": "OK\r\n"})
	enterCommandMode(t, m)

	// The device first delivers a stale reply for a different verb; the
	// dispatcher must discard it and keep waiting for the proper one.
	tr.SetWriteHook(func(p []byte) {
		if string(p) == "AT+NAMEDX-BT24\r\n" {
			tr.SendData("+BAUD=4\r\n")
			tr.SendData("+NAME=DX-BT24\r\nOK\r\n")
		}
	})

	if err := m.Set(context.Background(), cp26.SettingName, "DX-BT24"); err != nil {
		t.Fatalf("set failed: %v", err)
	}
}

func TestSettingByName(t *testing.T) {
	s, ok := cp26.SettingByName("adv-interval")
	if !ok || s != cp26.SettingAdvInterval {
		t.Errorf("SettingByName(adv-interval) = %v, %v", s, ok)
	}
	if _, ok := cp26.SettingByName("bogus"); ok {
		t.Error("unknown name should not resolve")
	}
}
