package at

import "strings"

const (
	// Terminal Control
	CRLF      = "\r\n"
	CmdPrefix = "AT+"
	CmdTest   = "AT"

	// Response Codes
	OK = "OK"

	// URCs (unsolicited notifications from the module)
	UrcConn = "OK+CONN"
	UrcLost = "OK+LOST"
)

// Verb is an AT command verb understood by DX-Smart CP-26 / BT-24 modules.
// The set is closed: anything not listed here is rejected before it can
// reach the wire.
type Verb string

const (
	VerbName    Verb = "NAME"    // device name
	VerbSuffix  Verb = "SUFF"    // append MAC suffix to name (0/1)
	VerbBaud    Verb = "BAUD"    // UART baud index (1-7)
	VerbStop    Verb = "STOP"    // stop bits (0/1)
	VerbParity  Verb = "PARI"    // parity (0=none 1=odd 2=even)
	VerbNotify  Verb = "NOTI"    // connect notifications (0/1)
	VerbNotifyA Verb = "NOTP"    // include peer address in OK+CONN (0/1)
	VerbSvcUUID Verb = "UUID"    // service UUID (16-bit hex)
	VerbChrUUID Verb = "CHAR"    // notify characteristic UUID
	VerbWrtUUID Verb = "WUID"    // write characteristic UUID
	VerbLowPwr  Verb = "PWRM"    // low power mode (0/1)
	VerbAdvInt  Verb = "ADVI"    // advertising interval code (0-F)
	VerbTxPwr   Verb = "POWE"    // transmit power level (0-3)
	VerbPass    Verb = "PASS"    // passthrough flag (1=passthrough, 0=interpreter)
	VerbRole    Verb = "ROLE"    // device type (0=peripheral 1=central 2=beacon)
	VerbPIN     Verb = "PIN"     // pairing PIN (6 digits)
	VerbVersion Verb = "VERS"    // firmware version (query only)
	VerbAddr    Verb = "ADDR"    // MAC address (query only)
	VerbReset   Verb = "RESET"   // software reset
	VerbDefault Verb = "DEFAULT" // restore factory defaults

	// VerbTest names the bare "AT" probe. It carries no "+<VERB>" token on
	// the wire; Command.Wire special-cases it.
	VerbTest Verb = ""
)

var knownVerbs = map[Verb]bool{
	VerbName: true, VerbSuffix: true, VerbBaud: true, VerbStop: true,
	VerbParity: true, VerbNotify: true, VerbNotifyA: true, VerbSvcUUID: true,
	VerbChrUUID: true, VerbWrtUUID: true, VerbLowPwr: true, VerbAdvInt: true,
	VerbTxPwr: true, VerbPass: true, VerbRole: true, VerbPIN: true,
	VerbVersion: true, VerbAddr: true, VerbReset: true, VerbDefault: true,
	VerbTest: true,
}

// Known reports whether v is part of the closed verb set.
func Known(v Verb) bool {
	return knownVerbs[v]
}

// Intent distinguishes a Set command (verb plus parameter) from a Query
// (bare verb, module answers with the current value).
type Intent int

const (
	Set Intent = iota
	Query
)

// Command is a single AT command ready for transmission.
type Command struct {
	Verb   Verb
	Param  string
	Intent Intent
}

// Wire renders the command in module wire format, CRLF terminated.
//
//	Set:   AT+<VERB><PARAM>\r\n
//	Query: AT+<VERB>\r\n
//	Test:  AT\r\n
func (c Command) Wire() []byte {
	if c.Verb == VerbTest {
		return []byte(CmdTest + CRLF)
	}
	var b strings.Builder
	b.WriteString(CmdPrefix)
	b.WriteString(string(c.Verb))
	if c.Intent == Set {
		b.WriteString(c.Param)
	}
	b.WriteString(CRLF)
	return []byte(b.String())
}

// ResponseType classifies a single decoded line.
type ResponseType int

const (
	TypeOK    ResponseType = iota // bare OK acknowledgement
	TypeReply                     // +<VERB>=<VALUE>
	TypeURC                       // OK+CONN / OK+LOST notifications
	TypeData                      // anything else
)

// Classify identifies the nature of a decoded line. It is a pure shape
// check: whether TypeData is a stray reply or passthrough payload depends on
// channel mode and dispatcher state, which the caller owns.
//
// URC prefixes are matched before the bare OK token because "OK+CONN" also
// has "OK" as a prefix.
func Classify(line string) ResponseType {
	switch {
	case strings.HasPrefix(line, UrcConn), strings.HasPrefix(line, UrcLost):
		return TypeURC
	case line == OK:
		return TypeOK
	}
	if verb, _, ok := ParseReply(line); ok && Known(verb) {
		return TypeReply
	}
	return TypeData
}

// ParseReply splits a "+<VERB>=<VALUE>" reply line into its parts.
func ParseReply(line string) (verb Verb, value string, ok bool) {
	if !strings.HasPrefix(line, "+") {
		return "", "", false
	}
	v, val, found := strings.Cut(line[1:], "=")
	if !found || v == "" {
		return "", "", false
	}
	return Verb(v), val, true
}

// ParseConnAddr extracts the peer address from an OK+CONN notification.
// The address suffix is only present when the module is configured to
// report it; addr is empty for the bare token.
func ParseConnAddr(line string) (addr string, ok bool) {
	if !strings.HasPrefix(line, UrcConn) {
		return "", false
	}
	rest := strings.TrimPrefix(line[len(UrcConn):], ":")
	return rest, true
}
