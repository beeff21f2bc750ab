// Package transport provides serial ports satisfying asr6501.Transport:
// a host-side port over a USB serial adapter and MCU-side ports for
// TinyGo targets. The modem talks 115200 8N1.
package transport

// DefaultBaud is the ASR6501 fixed UART rate.
const DefaultBaud = 115200
