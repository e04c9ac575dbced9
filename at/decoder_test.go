package at_test

import (
	"bytes"
	"testing"

	"github.com/KozyOps/ble-tui/at"
)

func TestDecoderPush(t *testing.T) {
	tests := []struct {
		name     string
		chunks   []string
		expected [][]string // lines produced per chunk
		tail     string     // bytes left buffered at the end
	}{
		{
			name:     "Set reply and OK in one chunk",
			chunks:   []string{"+NAME=DX-BT24\r\nOK\r\n"},
			expected: [][]string{{"+NAME=DX-BT24", "OK"}},
		},
		{
			name:     "Line split across chunks",
			chunks:   []string{"+BAU", "D=4\r", "\nOK\r\n"},
			expected: [][]string{nil, nil, {"+BAUD=4", "OK"}},
		},
		{
			name:     "Terminator split across chunks",
			chunks:   []string{"OK\r", "\n"},
			expected: [][]string{nil, {"OK"}},
		},
		{
			name:     "Partial tail retained",
			chunks:   []string{"OK\r\n+NAME=half"},
			expected: [][]string{{"OK"}},
			tail:     "+NAME=half",
		},
		{
			name:     "Empty input produces nothing",
			chunks:   []string{""},
			expected: [][]string{nil},
		},
		{
			name:     "Empty lines are preserved",
			chunks:   []string{"\r\n\r\nOK\r\n"},
			expected: [][]string{{"", "", "OK"}},
		},
		{
			name:     "URC burst",
			chunks:   []string{"OK+CONN\r\nOK+LOST\r\nOK+CONN:0011\r\n"},
			expected: [][]string{{"OK+CONN", "OK+LOST", "OK+CONN:0011"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d at.Decoder
			for i, chunk := range tt.chunks {
				lines := d.Push([]byte(chunk))
				want := tt.expected[i]
				if len(lines) != len(want) {
					t.Fatalf("chunk %d: got %v, want %v", i, lines, want)
				}
				for j := range want {
					if lines[j] != want[j] {
						t.Errorf("chunk %d line %d: got %q, want %q", i, j, lines[j], want[j])
					}
				}
			}
			if got := d.Buffered(); got != len(tt.tail) {
				t.Errorf("Buffered() = %d, want %d", got, len(tt.tail))
			}
			if tt.tail != "" {
				if got := d.Flush(); !bytes.Equal(got, []byte(tt.tail)) {
					t.Errorf("Flush() = %q, want %q", got, tt.tail)
				}
			}
		})
	}
}

func TestDecoderFlush(t *testing.T) {
	var d at.Decoder

	if got := d.Flush(); got != nil {
		t.Errorf("Flush on empty decoder = %q, want nil", got)
	}

	d.Push([]byte("raw payload without terminator"))
	if got := d.Flush(); string(got) != "raw payload without terminator" {
		t.Errorf("Flush() = %q", got)
	}

	// Decoder is restartable after a flush.
	lines := d.Push([]byte("OK\r\n"))
	if len(lines) != 1 || lines[0] != "OK" {
		t.Errorf("Push after Flush = %v", lines)
	}
	if d.Buffered() != 0 {
		t.Errorf("Buffered() = %d after complete line", d.Buffered())
	}
}
