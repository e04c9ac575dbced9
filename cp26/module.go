package cp26

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/KozyOps/ble-tui/at"
)

// Module drives a DX-Smart CP-26/BT-24 BLE serial module over a single
// duplex byte channel. The channel carries two meanings multiplexed by a
// device-side flag: AT command traffic and opaque passthrough payload. The
// Module tracks that flag as belief (see ChannelMode), dispatches one
// command at a time, and routes unsolicited notifications to the link
// tracker.
//
// All inbound I/O is owned by Loop, which must be running before any
// command is executed.
type Module struct {
	transport Transport
	config    Config
	logger    *slog.Logger

	// mu guards the tracked state, closed and loopRunning.
	mu          sync.Mutex
	state       State
	closed      bool
	loopRunning bool

	// writeMu serializes transport writes. Commands are written by the
	// loop goroutine, passthrough payload by Send callers; the two must
	// never interleave on the wire.
	writeMu sync.Mutex

	// commands hands requests to the loop. Unbuffered: while a command is
	// in flight the loop does not receive, so additional callers queue on
	// the send, preserving single-command-in-flight.
	commands chan *commandRequest
	// events carries link state changes to subscribers. Buffered; events
	// are dropped when no one drains the feed.
	events chan Event
	// payload carries inbound passthrough bytes.
	payload chan []byte

	loopCancel context.CancelFunc
}

// commandRequest is one AT command handed to the loop for execution.
type commandRequest struct {
	cmd      at.Command
	respChan chan commandResponse
	ctx      context.Context
}

type commandResponse struct {
	resp Response
	err  error
}

// Response is the classified successful reply to a single command.
type Response struct {
	// Verb echoes the command verb the reply correlates to.
	Verb at.Verb
	// Value is the payload of the "+<VERB>=<VALUE>" reply line, empty for
	// plain-OK commands.
	Value string
	// Lines holds the raw reply lines in arrival order.
	Lines []string
}

// New creates a Module with the given configuration and dials the
// transport. The channel mode starts as ModeUnknown: the interpreter flag
// lives on the device and survives resets, so nothing is assumed until a
// Probe resolves it.
//
// Loop must be started (typically in a goroutine) before executing
// commands.
func New(ctx context.Context, config Config) (*Module, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	config.setDefaults()

	transport, err := config.Dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("dial transport: %w", err)
	}
	if transport == nil {
		return nil, ErrNotInitialized
	}

	m := &Module{
		transport: transport,
		config:    config,
		logger:    config.Logger,
		// No queue for commands
		commands: make(chan *commandRequest),
		events:   make(chan Event, 16),
		payload:  make(chan []byte, 16),
	}
	return m, nil
}

// Loop is the event loop that owns the transport's inbound side. It must be
// called exactly once after New and before any command execution:
//
//	m, err := cp26.New(ctx, config)
//	if err != nil { return err }
//	go m.Loop(ctx)
//
// A dedicated goroutine reads raw chunks from the transport; the loop feeds
// them through the line decoder and routes the result. Command replies
// complete the outstanding request, unsolicited notifications update the
// link tracker, and anything arriving while the channel is passthrough with
// no command outstanding is delivered as opaque payload. This is the only
// goroutine that reads the transport, so a reply and a notification decoded
// from the same chunk can never race.
//
// Loop returns when the context is cancelled or the transport ends.
func (m *Module) Loop(ctx context.Context) error {
	m.mu.Lock()
	if m.loopRunning {
		m.mu.Unlock()
		return ErrLoopRunning
	}
	m.loopRunning = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.loopRunning = false
		m.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	m.mu.Lock()
	m.loopCancel = cancel
	m.mu.Unlock()

	// Reader goroutine: sole owner of transport.Read. Chunks are copied
	// before handoff because the read buffer is reused.
	chunks := make(chan []byte, 8)
	readErrs := make(chan error, 1)
	go func() {
		defer close(chunks)
		buf := make([]byte, 512)
		for {
			n, err := m.transport.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case chunks <- chunk:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					select {
					case readErrs <- err:
					case <-ctx.Done():
					}
				}
				return
			}
		}
	}()

	var (
		decoder at.Decoder
		pending *pendingCommand
	)

	for {
		// While a command is in flight the loop stops accepting new ones;
		// exec callers queue on the channel send.
		commands := m.commands
		var cmdDone <-chan struct{}
		if pending != nil {
			commands = nil
			cmdDone = pending.req.ctx.Done()
		}

		select {
		case <-ctx.Done():
			pending.fail(ctx.Err())
			return ctx.Err()

		case req := <-commands:
			pending = &pendingCommand{req: req}
			if err := m.write(req.cmd.Wire()); err != nil {
				pending.fail(fmt.Errorf("write command: %w", err))
				pending = nil
			}

		case <-cmdDone:
			// Deadline expired with no distinguishing reply. The protocol
			// never answers a failed command, so this is the failure
			// signal, not an anomaly. A reply arriving after this point is
			// discarded harmlessly below.
			pending.fail(commandErr(pending.req))
			pending = nil

		case chunk, ok := <-chunks:
			if !ok {
				// Transport ended. The radio link is gone with it.
				m.setLink(LinkDisconnected, "")
				pending.fail(io.EOF)
				return io.EOF
			}
			pending = m.route(ctx, &decoder, pending, chunk)

		case err := <-readErrs:
			pending.fail(fmt.Errorf("read transport: %w", err))
			return fmt.Errorf("read transport: %w", err)
		}
	}
}

// pendingCommand is the loop's view of the single in-flight command.
type pendingCommand struct {
	req *commandRequest
	// value and seenReply record a matched "+<VERB>=<VALUE>" line while a
	// Set command waits for its trailing OK.
	value     string
	seenReply bool
	lines     []string
}

func (p *pendingCommand) fail(err error) {
	if p == nil {
		return
	}
	p.req.respChan <- commandResponse{err: err}
}

func (p *pendingCommand) succeed() {
	p.req.respChan <- commandResponse{resp: Response{
		Verb:  p.req.cmd.Verb,
		Value: p.value,
		Lines: p.lines,
	}}
}

// route feeds one raw chunk through the decoder and dispatches the result.
// It returns the still-pending command, or nil once it completed.
func (m *Module) route(ctx context.Context, decoder *at.Decoder, pending *pendingCommand, chunk []byte) *pendingCommand {
	for _, line := range decoder.Push(chunk) {
		pending = m.routeLine(ctx, pending, line)
	}

	mode := m.Mode()

	if decoder.Buffered() > m.config.MaxLineLen && mode != ModePassthrough {
		// Unterminated garbage in command mode is a framing error. In
		// passthrough mode the same bytes are simply a large payload
		// chunk and fall through below.
		n := decoder.Buffered()
		decoder.Flush()
		if pending != nil {
			pending.fail(fmt.Errorf("%s: %w", commandName(pending.req.cmd), ErrLineTooLong))
			return nil
		}
		m.logger.Warn("discarding oversized unterminated input", "bytes", n)
		return pending
	}

	// With the interpreter (believed) off and nothing outstanding, bytes
	// held back by the decoder are not a partial command reply. They are
	// payload and must not be delayed waiting for a terminator.
	if mode == ModePassthrough && pending == nil && decoder.Buffered() > 0 {
		m.deliverPayload(ctx, decoder.Flush())
	}
	return pending
}

// routeLine classifies one decoded line and routes it to the command
// dispatcher, the link tracker, or the passthrough feed.
//
// The outstanding-command check comes before any passthrough fallback: a
// genuine reply arriving right after a mode switch must correlate to its
// command, not leak to the payload feed.
func (m *Module) routeLine(ctx context.Context, pending *pendingCommand, line string) *pendingCommand {
	switch at.Classify(line) {
	case at.TypeURC:
		// Notifications interleave with request/reply traffic and are
		// routed to the tracker regardless of dispatcher state.
		m.handleURC(line)
		return pending

	case at.TypeReply:
		verb, value, _ := at.ParseReply(line)
		if pending == nil {
			return m.strayLine(ctx, line, "reply with no outstanding command")
		}
		if verb != pending.req.cmd.Verb {
			m.logger.Warn("discarding reply for unexpected verb",
				"got", string(verb), "want", string(pending.req.cmd.Verb))
			return pending
		}
		pending.lines = append(pending.lines, line)
		pending.value = value
		pending.seenReply = true
		if pending.req.cmd.Intent == at.Query {
			// Queries complete on the value line alone; no trailing OK is
			// sent for them.
			pending.succeed()
			return nil
		}
		return pending

	case at.TypeOK:
		if pending == nil {
			return m.strayLine(ctx, line, "OK with no outstanding command")
		}
		pending.lines = append(pending.lines, line)
		pending.succeed()
		return nil

	default: // at.TypeData
		if pending != nil {
			m.logger.Warn("discarding line while awaiting reply",
				"line", line, "verb", string(pending.req.cmd.Verb))
			return pending
		}
		return m.strayLine(ctx, line, "unrecognized line")
	}
}

// strayLine handles a non-URC line with no command outstanding. On a
// passthrough channel it is payload, terminator included. In command mode
// it indicates desync with the device and is logged and dropped.
func (m *Module) strayLine(ctx context.Context, line, reason string) *pendingCommand {
	if m.Mode() == ModePassthrough {
		m.deliverPayload(ctx, []byte(line+at.CRLF))
		return nil
	}
	if line == "" {
		// Bare CRLF, typical around module banners. Nothing to report.
		return nil
	}
	m.logger.Warn("discarding stray line", "line", line, "reason", reason)
	return nil
}

func (m *Module) handleURC(line string) {
	if addr, ok := at.ParseConnAddr(line); ok {
		m.setLink(LinkConnected, addr)
		return
	}
	// OK+LOST: the peer dropped the link and the module is advertising
	// again.
	m.setLink(LinkAdvertising, "")
}

func (m *Module) deliverPayload(ctx context.Context, data []byte) {
	select {
	case m.payload <- data:
	case <-ctx.Done():
	}
}

// commandErr maps a command context error to the driver taxonomy: an
// expired deadline is the protocol's silence-means-failure signal, a caller
// cancellation is passed through.
func commandErr(req *commandRequest) error {
	if errors.Is(req.ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", commandName(req.cmd), ErrTimeout)
	}
	return req.ctx.Err()
}

func commandName(cmd at.Command) string {
	if cmd.Verb == at.VerbTest {
		return at.CmdTest
	}
	return at.CmdPrefix + string(cmd.Verb)
}

// exec sends one command to the loop and waits for its classified reply or
// deadline. If ctx carries no deadline, Config.CommandTimeout applies.
// exec enforces the single-in-flight discipline by construction: the loop
// accepts the next request only after the current one resolved, so callers
// queue rather than being rejected.
func (m *Module) exec(ctx context.Context, cmd at.Command) (Response, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return Response{}, ErrAlreadyClosed
	}
	if m.transport == nil {
		return Response{}, ErrNotInitialized
	}
	if !at.Known(cmd.Verb) {
		return Response{}, fmt.Errorf("unknown verb %q", string(cmd.Verb))
	}

	if _, ok := ctx.Deadline(); !ok && m.config.CommandTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.CommandTimeout)
		defer cancel()
	}

	req := &commandRequest{
		cmd:      cmd,
		respChan: make(chan commandResponse, 1), // Buffered so a late reply never blocks the loop
		ctx:      ctx,
	}

	select {
	case m.commands <- req:
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Response{}, fmt.Errorf("%s queued too long: %w", commandName(cmd), ErrTimeout)
		}
		return Response{}, ctx.Err()
	}

	select {
	case resp := <-req.respChan:
		return resp.resp, resp.err
	case <-ctx.Done():
		return Response{}, commandErr(req)
	}
}

func (m *Module) write(p []byte) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	_, err := m.transport.Write(p)
	return err
}

// Send writes opaque payload to the channel. It is only valid while the
// tracked mode is ModePassthrough: with the interpreter active the bytes
// would be parsed as a (malformed) command and silently swallowed instead
// of reaching the radio link.
func (m *Module) Send(ctx context.Context, data []byte) error {
	m.mu.Lock()
	closed := m.closed
	mode := m.state.Mode
	m.mu.Unlock()
	if closed {
		return ErrAlreadyClosed
	}
	if mode != ModePassthrough {
		return fmt.Errorf("send payload in %s mode: %w", mode, ErrModeMismatch)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.write(data); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// Payload returns the inbound passthrough feed. Chunks arrive only while
// the tracked mode is ModePassthrough; the feed must be drained while in
// that mode or inbound processing stalls.
func (m *Module) Payload() <-chan []byte {
	return m.payload
}

// Events returns the link state change feed. It reflects the live session
// only and is buffered; changes are dropped if the feed is not consumed.
func (m *Module) Events() <-chan Event {
	return m.events
}

// State returns a snapshot of the tracked module state.
func (m *Module) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Mode returns the driver's current channel mode belief.
func (m *Module) Mode() ChannelMode {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Mode
}

// NotifyDisconnected records a transport-level disconnect signaled by the
// external transport owner. The module protocol itself has no disconnect
// line; link teardown is observed out of band.
func (m *Module) NotifyDisconnected() {
	m.setLink(LinkDisconnected, "")
}

func (m *Module) setLink(link LinkState, addr string) {
	m.mu.Lock()
	changed := m.state.Link != link || m.state.PeerAddr != addr
	m.state.Link = link
	m.state.PeerAddr = addr
	m.mu.Unlock()
	if !changed {
		return
	}
	ev := Event{Link: link, PeerAddr: addr, Time: time.Now()}
	select {
	case m.events <- ev:
	default:
		m.logger.Warn("dropping link event, feed not consumed", "link", link.String())
	}
}

func (m *Module) setMode(mode ChannelMode) {
	m.mu.Lock()
	m.state.Mode = mode
	m.mu.Unlock()
}

func (m *Module) setPendingRestart(v bool) {
	m.mu.Lock()
	m.state.PendingRestart = v
	m.mu.Unlock()
}

func (m *Module) setLowPower(v bool) {
	m.mu.Lock()
	m.state.LowPower = v
	m.mu.Unlock()
}

// Close shuts down the module and releases the transport. After Close the
// Module cannot be reused; the tracked state dies with the session, the
// device's persisted flags do not.
func (m *Module) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrAlreadyClosed
	}
	m.closed = true
	cancel := m.loopCancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if m.transport != nil {
		return m.transport.Close()
	}
	return nil
}
