package cp26

import (
	"context"
	"fmt"
	"io"

	"go.bug.st/serial"
)

// Transport represents an established, bidirectional byte stream to a
// CP-26/BT-24 module.
//
// A Transport is assumed to be already connected and ready for use: the
// driver never performs BLE discovery, pairing, or GATT addressing itself.
// Typical implementations are a serial port wired to the module's UART, a
// BLE write/notify characteristic pair wrapped by the caller, or an
// in-memory fake used for testing.
type Transport interface {
	io.ReadWriteCloser
}

// Dialer opens a Transport to a module.
//
// Dialer abstracts how the byte channel is created and is used during
// Module construction only. Once a Transport is obtained, the Dialer is no
// longer needed.
type Dialer interface {
	// Dial creates and returns a connected Transport. It may block and
	// should respect cancellation and deadlines provided by the context.
	Dial(ctx context.Context) (Transport, error)
}

// SerialDialer opens a module over a local serial port using go.bug.st/serial.
type SerialDialer struct {
	PortName string
	BaudRate int
	// DataBits defaults to 8 when zero.
	DataBits int
	StopBits serial.StopBits
	Parity   serial.Parity
}

// Dial opens the configured serial port. The context is consulted up front;
// go.bug.st/serial has no cancellable open, so an in-flight open is not
// interrupted.
func (d SerialDialer) Dial(ctx context.Context) (Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dataBits := d.DataBits
	if dataBits == 0 {
		dataBits = 8
	}
	port, err := serial.Open(d.PortName, &serial.Mode{
		BaudRate: d.BaudRate,
		DataBits: dataBits,
		StopBits: d.StopBits,
		Parity:   d.Parity,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", d.PortName, err)
	}
	return port, nil
}
