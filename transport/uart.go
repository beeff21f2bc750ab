package transport

import (
	"tinygo.org/x/drivers"

	"lorawanunit-go/drivers/asr6501"
)

var _ asr6501.Transport = (*UARTPort)(nil)

// UARTPort adapts any drivers.UART (machine.UART on TinyGo targets)
// to the driver's transport. Reads are gated on Buffered so they stay
// non-blocking regardless of the underlying Read semantics.
type UARTPort struct {
	u drivers.UART
}

// FromUART wraps an already configured UART.
func FromUART(u drivers.UART) *UARTPort {
	return &UARTPort{u: u}
}

func (p *UARTPort) Write(b []byte) (int, error) { return p.u.Write(b) }

func (p *UARTPort) Buffered() int { return p.u.Buffered() }

func (p *UARTPort) Read(b []byte) (int, error) {
	n := p.u.Buffered()
	if n == 0 || len(b) == 0 {
		return 0, nil
	}
	if n > len(b) {
		n = len(b)
	}
	return p.u.Read(b[:n])
}

func (p *UARTPort) Flush() error {
	var scratch [16]byte
	for p.u.Buffered() > 0 {
		n, err := p.u.Read(scratch[:])
		if err != nil {
			return err
		}
		if n == 0 {
			break
		}
	}
	return nil
}
