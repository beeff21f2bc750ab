//go:build !tinygo

package transport

import (
	"sync"
	"time"

	"github.com/tarm/serial"

	"lorawanunit-go/drivers/asr6501"
)

var _ asr6501.Transport = (*HostPort)(nil)

// HostPort adapts a tarm serial port to the driver's polling transport.
// A background goroutine drains the OS buffer into an internal one so
// Buffered and Read stay non-blocking.
type HostPort struct {
	mu     sync.Mutex
	port   *serial.Port
	rx     []byte
	closed chan struct{}
}

// Open opens a host serial device (e.g. /dev/ttyUSB0) at the given baud.
func Open(name string, baud int) (*HostPort, error) {
	if baud <= 0 {
		baud = DefaultBaud
	}
	port, err := serial.OpenPort(&serial.Config{
		Name:        name,
		Baud:        baud,
		Parity:      serial.ParityNone,
		ReadTimeout: 50 * time.Millisecond,
	})
	if err != nil {
		return nil, err
	}
	h := &HostPort{port: port, closed: make(chan struct{})}
	go h.readLoop()
	return h, nil
}

func (h *HostPort) readLoop() {
	buf := make([]byte, 512)
	for {
		select {
		case <-h.closed:
			return
		default:
		}
		n, err := h.port.Read(buf)
		if n > 0 {
			h.mu.Lock()
			h.rx = append(h.rx, buf[:n]...)
			h.mu.Unlock()
		}
		if err != nil {
			// Read timeouts surface here on some platforms; keep polling.
			continue
		}
	}
}

func (h *HostPort) Write(p []byte) (int, error) { return h.port.Write(p) }

func (h *HostPort) Buffered() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rx)
}

func (h *HostPort) Read(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := copy(p, h.rx)
	h.rx = h.rx[n:]
	return n, nil
}

func (h *HostPort) Flush() error {
	h.mu.Lock()
	h.rx = nil
	h.mu.Unlock()
	return h.port.Flush()
}

func (h *HostPort) Close() error {
	close(h.closed)
	return h.port.Close()
}
