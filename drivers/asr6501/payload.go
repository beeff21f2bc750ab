package asr6501

import (
	"fmt"

	"lorawanunit-go/x/conv"
)

// validatePayloadSize checks an unencoded payload length against the
// US915 ceiling for the given data rate. Unknown rates validate against
// the DR0 ceiling (most conservative).
func validatePayloadSize(size int, dataRate uint8) error {
	max := us915MaxPayload[0]
	if int(dataRate) < len(us915MaxPayload) {
		max = us915MaxPayload[dataRate]
	}
	if size > max {
		return fmt.Errorf("payload size %d exceeds maximum %d bytes for DR%d: %w",
			size, max, dataRate, ErrSizeExceeded)
	}
	return nil
}

// appendHexPayload appends the uplink hex encoding of message: exactly two
// uppercase digits per byte, so the result is always 2x the input length.
func appendHexPayload(dst, message []byte) []byte {
	return conv.AppendHex(dst, message)
}

// MaxPayload returns the payload ceiling in bytes for a data rate,
// or the DR0 ceiling for out-of-range values.
func MaxPayload(dataRate uint8) int {
	if int(dataRate) < len(us915MaxPayload) {
		return us915MaxPayload[dataRate]
	}
	return us915MaxPayload[0]
}
