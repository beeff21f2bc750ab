package asr6501

import (
	"fmt"
	"time"
)

// sendCommand frames cmd as AT+<cmd>\r\n and runs the full
// send/receive/parse transaction, retrying up to maxAttempts on transport
// failure, timeout, or an error reply. Before each attempt unread RX bytes
// are flushed so a stale response cannot contaminate this one. The first
// successfully parsed response wins; after the retry budget the last
// failure is returned.
func (d *Device) sendCommand(cmd string, timeout time.Duration) (response, error) {
	frame := []byte(cmdPrefix + cmd + lineTerm)

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			d.debugf("retrying command (attempt %d/%d): %s", attempt+1, maxAttempts, cmd)
			time.Sleep(d.retryBackoff)
		}

		// Clear any pending data.
		_ = d.port.Flush()

		n, err := d.port.Write(frame)
		if err != nil {
			d.debugf("write failed: %v", err)
			lastErr = fmt.Errorf("%w: %v", ErrTransport, err)
			continue
		}
		d.debugf("sent %d bytes: %s", n, frame)

		// Let the modem consume the command before polling.
		time.Sleep(d.settleDelay)

		raw, err := d.waitResponse(timeout)
		if err != nil {
			lastErr = err
			continue
		}

		resp := parseResponse(raw)
		if !resp.success {
			lastErr = &ProtocolError{Code: resp.errCode}
			d.debugf("command failed: %v", lastErr)
			continue
		}
		return resp, nil
	}

	d.debugf("command failed after %d attempts: %s", maxAttempts, cmd)
	return response{}, lastErr
}

// waitResponse polls the transport until bytes arrive or timeout elapses.
// It returns the first poll's worth of bytes as the response: output split
// across poll boundaries is truncated (known limitation, callers depend on
// the modem emitting replies in one burst).
func (d *Device) waitResponse(timeout time.Duration) (string, error) {
	buf := make([]byte, responseBufSize)
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		if d.port.Buffered() > 0 {
			n, err := d.port.Read(buf)
			if err != nil {
				return "", fmt.Errorf("%w: %v", ErrTransport, err)
			}
			if n > 0 {
				d.debugf("received %d bytes: %s", n, buf[:n])
				return string(buf[:n]), nil
			}
		}
		time.Sleep(d.pollInterval)
	}

	d.debugf("timeout waiting for response after %s", timeout)
	return "", ErrTimeout
}
