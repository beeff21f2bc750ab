//go:build rp2040 || rp2350

package transport

import (
	"context"
	"machine"
	"sync"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"lorawanunit-go/drivers/asr6501"
)

var _ asr6501.Transport = (*UARTXPort)(nil)

// UARTXPort drives the modem from an RP2 UART. A pump goroutine moves
// bytes from the hardware FIFO into an internal buffer so the driver's
// Buffered polling never blocks.
type UARTXPort struct {
	mu     sync.Mutex
	u      *uartx.UART
	rx     []byte
	cancel context.CancelFunc
}

// OpenUARTX configures the given UART for the modem and starts the pump.
// Pass uartx.UART0 or uartx.UART1 and the board's TX/RX pins.
func OpenUARTX(u *uartx.UART, tx, rx machine.Pin, baud uint32) (*UARTXPort, error) {
	if baud == 0 {
		baud = DefaultBaud
	}
	if err := u.Configure(uartx.UARTConfig{
		BaudRate: baud,
		TX:       tx,
		RX:       rx,
	}); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &UARTXPort{u: u, cancel: cancel}
	go p.pump(ctx)
	return p, nil
}

func (p *UARTXPort) pump(ctx context.Context) {
	buf := make([]byte, 64)
	for {
		n, err := p.u.RecvSomeContext(ctx, buf)
		if n > 0 {
			p.mu.Lock()
			p.rx = append(p.rx, buf[:n]...)
			p.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

func (p *UARTXPort) Write(b []byte) (int, error) { return p.u.Write(b) }

func (p *UARTXPort) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.rx)
}

func (p *UARTXPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := copy(b, p.rx)
	p.rx = p.rx[n:]
	return n, nil
}

func (p *UARTXPort) Flush() error {
	p.mu.Lock()
	p.rx = nil
	p.mu.Unlock()
	return nil
}

// Close stops the pump. The UART itself stays configured.
func (p *UARTXPort) Close() error {
	p.cancel()
	return nil
}
