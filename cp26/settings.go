package cp26

import (
	"context"
	"fmt"
	"strings"

	"github.com/KozyOps/ble-tui/at"
)

// Setting is a semantic module setting. Each maps to an AT verb with a
// closed value domain; values are validated before a command is ever
// constructed, so a domain error never reaches the transport.
type Setting int

const (
	SettingName Setting = iota
	SettingNameSuffix
	SettingBaud
	SettingStopBits
	SettingParity
	SettingNotify
	SettingNotifyAddr
	SettingServiceUUID
	SettingCharUUID
	SettingWriteUUID
	SettingLowPower
	SettingAdvInterval
	SettingTxPower
	SettingDeviceType
	SettingPIN
	SettingVersion
	SettingAddress
)

var settingNames = map[Setting]string{
	SettingName:        "name",
	SettingNameSuffix:  "name-suffix",
	SettingBaud:        "baud",
	SettingStopBits:    "stop-bits",
	SettingParity:      "parity",
	SettingNotify:      "notify",
	SettingNotifyAddr:  "notify-addr",
	SettingServiceUUID: "service-uuid",
	SettingCharUUID:    "char-uuid",
	SettingWriteUUID:   "write-uuid",
	SettingLowPower:    "low-power",
	SettingAdvInterval: "adv-interval",
	SettingTxPower:     "tx-power",
	SettingDeviceType:  "device-type",
	SettingPIN:         "pin",
	SettingVersion:     "version",
	SettingAddress:     "address",
}

func (s Setting) String() string {
	if name, ok := settingNames[s]; ok {
		return name
	}
	return fmt.Sprintf("setting(%d)", int(s))
}

// SettingByName resolves the external name of a setting, e.g. for an HTTP
// or MQTT surface.
func SettingByName(name string) (Setting, bool) {
	for s, n := range settingNames {
		if n == name {
			return s, true
		}
	}
	return 0, false
}

// Baud rate indexes (BAUD verb).
const (
	Baud2400   = "1"
	Baud4800   = "2"
	Baud9600   = "3"
	Baud19200  = "4"
	Baud38400  = "5"
	Baud57600  = "6"
	Baud115200 = "7"
)

// Parity codes (PARI verb).
const (
	ParityNone = "0"
	ParityOdd  = "1"
	ParityEven = "2"
)

// Device types (ROLE verb).
const (
	RolePeripheral = "0"
	RoleCentral    = "1"
	RoleBeacon     = "2"
)

// Transmit power levels (POWE verb), lowest to highest.
const (
	TxPowerMinus23dBm = "0"
	TxPowerMinus6dBm  = "1"
	TxPower0dBm       = "2"
	TxPower6dBm       = "3"
)

type settingSpec struct {
	verb at.Verb
	// requiresRestart marks settings whose new value only takes effect
	// after a power cycle. Per the module documentation only the two
	// notification settings apply immediately.
	requiresRestart bool
	queryOnly       bool
	// validate returns a rejection reason, or "" when value is inside the
	// documented domain.
	validate func(value string) string
}

var settingSpecs = map[Setting]settingSpec{
	SettingName:        {verb: at.VerbName, requiresRestart: true, validate: validName},
	SettingNameSuffix:  {verb: at.VerbSuffix, requiresRestart: true, validate: validDigit('0', '1')},
	SettingBaud:        {verb: at.VerbBaud, requiresRestart: true, validate: validDigit('1', '7')},
	SettingStopBits:    {verb: at.VerbStop, requiresRestart: true, validate: validDigit('0', '1')},
	SettingParity:      {verb: at.VerbParity, requiresRestart: true, validate: validDigit('0', '2')},
	SettingNotify:      {verb: at.VerbNotify, validate: validDigit('0', '1')},
	SettingNotifyAddr:  {verb: at.VerbNotifyA, validate: validDigit('0', '1')},
	SettingServiceUUID: {verb: at.VerbSvcUUID, requiresRestart: true, validate: validUUID16},
	SettingCharUUID:    {verb: at.VerbChrUUID, requiresRestart: true, validate: validUUID16},
	SettingWriteUUID:   {verb: at.VerbWrtUUID, requiresRestart: true, validate: validUUID16},
	SettingLowPower:    {verb: at.VerbLowPwr, requiresRestart: true, validate: validDigit('0', '1')},
	SettingAdvInterval: {verb: at.VerbAdvInt, requiresRestart: true, validate: validHexDigit},
	SettingTxPower:     {verb: at.VerbTxPwr, requiresRestart: true, validate: validDigit('0', '3')},
	SettingDeviceType:  {verb: at.VerbRole, requiresRestart: true, validate: validDigit('0', '2')},
	SettingPIN:         {verb: at.VerbPIN, requiresRestart: true, validate: validPIN},
	SettingVersion:     {verb: at.VerbVersion, queryOnly: true},
	SettingAddress:     {verb: at.VerbAddr, queryOnly: true},
}

func validDigit(lo, hi byte) func(string) string {
	return func(v string) string {
		if len(v) != 1 || v[0] < lo || v[0] > hi {
			return fmt.Sprintf("must be a single digit %c-%c", lo, hi)
		}
		return ""
	}
}

func validHexDigit(v string) string {
	if len(v) != 1 || !strings.ContainsAny(v, "0123456789ABCDEF") {
		return "must be a single hex digit 0-F"
	}
	return ""
}

func validName(v string) string {
	if len(v) == 0 || len(v) > 18 {
		return "must be 1-18 characters"
	}
	for i := 0; i < len(v); i++ {
		if v[i] < 0x20 || v[i] > 0x7e {
			return "must be printable ASCII"
		}
	}
	return ""
}

func validPIN(v string) string {
	if len(v) != 6 {
		return "must be exactly 6 digits"
	}
	for i := 0; i < len(v); i++ {
		if v[i] < '0' || v[i] > '9' {
			return "must be exactly 6 digits"
		}
	}
	return ""
}

func validUUID16(v string) string {
	if len(v) != 4 {
		return "must be 4 hex digits"
	}
	for i := 0; i < len(v); i++ {
		if !strings.ContainsRune("0123456789abcdefABCDEF", rune(v[i])) {
			return "must be 4 hex digits"
		}
	}
	return ""
}

// Set validates value against the setting's closed domain and dispatches
// the corresponding AT command. Out-of-domain values are rejected with a
// *ValidationError before anything is transmitted.
//
// For settings that need a power cycle, a nil return means the module
// accepted the value, not that it is active: the state snapshot's
// PendingRestart is raised and stays up until a reset is issued.
func (m *Module) Set(ctx context.Context, s Setting, value string) error {
	spec, ok := settingSpecs[s]
	if !ok {
		return &ValidationError{Setting: s, Value: value, Reason: "unknown setting"}
	}
	if spec.queryOnly {
		return &ValidationError{Setting: s, Value: value, Reason: "setting is query-only"}
	}
	if reason := spec.validate(value); reason != "" {
		return &ValidationError{Setting: s, Value: value, Reason: reason}
	}
	if err := m.requireCommandMode("set " + s.String()); err != nil {
		return err
	}

	if _, err := m.exec(ctx, at.Command{Verb: spec.verb, Param: value, Intent: at.Set}); err != nil {
		return fmt.Errorf("set %s: %w", s, err)
	}

	if spec.requiresRestart {
		m.setPendingRestart(true)
	}
	if s == SettingLowPower {
		m.setLowPower(value == "1")
	}
	return nil
}

// Get queries the module for the setting's current value.
func (m *Module) Get(ctx context.Context, s Setting) (string, error) {
	spec, ok := settingSpecs[s]
	if !ok {
		return "", &ValidationError{Setting: s, Reason: "unknown setting"}
	}
	if err := m.requireCommandMode("get " + s.String()); err != nil {
		return "", err
	}

	resp, err := m.exec(ctx, at.Command{Verb: spec.verb, Intent: at.Query})
	if err != nil {
		return "", fmt.Errorf("get %s: %w", s, err)
	}
	return resp.Value, nil
}

// Version queries the firmware version string.
func (m *Module) Version(ctx context.Context) (string, error) {
	return m.Get(ctx, SettingVersion)
}

// Address queries the module's MAC address.
func (m *Module) Address(ctx context.Context) (string, error) {
	return m.Get(ctx, SettingAddress)
}
