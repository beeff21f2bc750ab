// Package asr6501 drives the ASR6501 LoRaWAN modem (M5Stack Unit LoRaWAN915)
// over an AT-command serial link.
//
// Design notes (module AT manual references):
// • Commands are framed AT+<NAME>[=<args>]\r\n; replies carry OK, ERROR[:<code>],
//   or a +<NAME>:<values> data line, possibly combined in one burst.
// • Every command is retried up to 3 times with the RX buffer flushed before
//   each attempt; validation failures never reach the wire.
// • US915 only: data rates DR0..DR4 with per-rate payload ceilings, sub-bands 1..8.
// • The device is not safe for concurrent callers; serialize externally.
package asr6501

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"lorawanunit-go/x/mathx"
)

// ---------------- Top level vars ----------------

var (
	ErrTimeout      = errors.New("timeout waiting for modem response")
	ErrTransport    = errors.New("serial transport failure")
	ErrNotAttached  = errors.New("modem not attached or not responding")
	ErrUnsupported  = errors.New("operation not supported by ASR6501")
	ErrSizeExceeded = errors.New("payload exceeds maximum for current data rate")
)

// ProtocolError is a modem ERROR reply, optionally carrying a short code.
type ProtocolError struct {
	Code string
}

func (e *ProtocolError) Error() string {
	if e.Code == "" {
		return "modem error reply"
	}
	return "modem error reply: ERROR:" + e.Code
}

// ---------------- Types and configuration ----------------

// Transport is the serial link to the modem. Read must be non-blocking:
// it returns whatever is buffered, possibly nothing. Flush discards
// unread received bytes.
type Transport interface {
	Write(p []byte) (int, error)
	Buffered() int
	Read(p []byte) (int, error)
	Flush() error
}

type Config struct {
	ResponseTimeout time.Duration // control commands; default 5s
	LongTimeout     time.Duration // join/send/link-check; default 30s
	PollInterval    time.Duration // response poll granularity; default 50ms
	SettleDelay     time.Duration // post-write settle; default 100ms
	RetryBackoff    time.Duration // delay before each retry; default 500ms
	RebootDelay     time.Duration // wait after IREBOOT; default 2s

	// Debug receives per-transaction diagnostics when non-nil.
	Debug func(msg string)
}

type Device struct {
	port Transport

	responseTimeout time.Duration
	longTimeout     time.Duration
	pollInterval    time.Duration
	settleDelay     time.Duration
	retryBackoff    time.Duration
	rebootDelay     time.Duration

	debug func(msg string)
}

func New(port Transport, cfg Config) *Device {
	d := &Device{
		port:            port,
		responseTimeout: cfg.ResponseTimeout,
		longTimeout:     cfg.LongTimeout,
		pollInterval:    cfg.PollInterval,
		settleDelay:     cfg.SettleDelay,
		retryBackoff:    cfg.RetryBackoff,
		rebootDelay:     cfg.RebootDelay,
		debug:           cfg.Debug,
	}
	if d.responseTimeout <= 0 {
		d.responseTimeout = DefaultTimeout
	}
	if d.longTimeout <= 0 {
		d.longTimeout = LongTimeout
	}
	if d.pollInterval <= 0 {
		d.pollInterval = defaultPollInterval
	}
	if d.settleDelay <= 0 {
		d.settleDelay = defaultSettleDelay
	}
	if d.retryBackoff <= 0 {
		d.retryBackoff = defaultRetryBackoff
	}
	if d.rebootDelay <= 0 {
		d.rebootDelay = defaultRebootDelay
	}
	return d
}

func (d *Device) debugf(format string, args ...any) {
	if d.debug != nil {
		d.debug(fmt.Sprintf(format, args...))
	}
}

// ---------------- Session operations ----------------

// Init brings the modem to a known state: clears stale bytes, verifies the
// module answers with the expected manufacturer, quiets its logging, saves
// configuration and reboots. The transport must already be open.
func (d *Device) Init() error {
	_ = d.port.Flush()

	attached, err := d.Attached()
	if err != nil {
		return err
	}
	if !attached {
		return ErrNotAttached
	}

	// Quiet module logging; failures are tolerated.
	if err := d.SetLogLevel(1); err != nil {
		d.debugf("set log level failed: %v", err)
	}
	if _, err := d.sendCommand(cmdSaveConfig, d.responseTimeout); err != nil {
		d.debugf("save config failed: %v", err)
	}

	return d.Reboot()
}

// Attached reports whether the expected module answers on the link.
func (d *Device) Attached() (bool, error) {
	resp, err := d.sendCommand(cmdManufacturer, d.responseTimeout)
	if err != nil {
		return false, err
	}
	mfg, ok := parseManufacturer(resp.payload)
	if !ok {
		return false, nil
	}
	return strings.Contains(mfg, Manufacturer), nil
}

// Connected reports whether the modem has joined a network.
// Status 04 (OTAA) and 08 (ABP) count as joined; anything else,
// including a missing status line, reports false without error.
func (d *Device) Connected() (bool, error) {
	resp, err := d.sendCommand(cmdStatus, d.responseTimeout)
	if err != nil {
		return false, err
	}
	code, ok := parseStatusCode(resp.payload)
	if !ok {
		return false, nil
	}
	d.debugf("connection status %s: %s", code, statusDescription(code))
	return strings.Contains(code, "04") || strings.Contains(code, "08"), nil
}

// Join starts the asynchronous network join. The modem joins off the
// critical path; poll Connected to observe completion.
func (d *Device) Join() error {
	_, err := d.sendCommand(cmdJoin, d.longTimeout)
	return err
}

// ULDLMode selects the uplink/downlink frequency relationship.
type ULDLMode uint8

const (
	DifferentFreqMode ULDLMode = iota // uplink and downlink on different frequencies (TTN)
	SameFreqMode
)

func (m ULDLMode) arg() string {
	if m == SameFreqMode {
		return "1"
	}
	return "2"
}

// ConfigureOTAA programs OTAA credentials and the fixed session parameters
// (Class A, LoRaWAN work mode). Each step is fatal on first error.
func (d *Device) ConfigureOTAA(devEUI, appEUI, appKey string, mode ULDLMode) error {
	if !isHexString(devEUI, euiLength) {
		return fmt.Errorf("invalid DevEUI %q: want %d hex characters", devEUI, euiLength)
	}
	if !isHexString(appEUI, euiLength) {
		return fmt.Errorf("invalid AppEUI %q: want %d hex characters", appEUI, euiLength)
	}
	if !isHexString(appKey, appKeyLength) {
		return fmt.Errorf("invalid AppKey: want %d hex characters", appKeyLength)
	}
	if mode > SameFreqMode {
		return fmt.Errorf("invalid uplink/downlink mode %d", mode)
	}

	steps := []string{
		cmdJoinMode,
		fmt.Sprintf(cmdDevEUI, devEUI),
		fmt.Sprintf(cmdAppEUI, appEUI),
		fmt.Sprintf(cmdAppKey, appKey),
		fmt.Sprintf(cmdULDLMode, mode.arg()),
		cmdClassA,
		cmdWorkModeLoRa,
	}
	for _, cmd := range steps {
		if _, err := d.sendCommand(cmd, d.responseTimeout); err != nil {
			return fmt.Errorf("%s: %w", cmd, err)
		}
	}
	return nil
}

// Reboot restarts the module. All network state is lost.
func (d *Device) Reboot() error {
	if _, err := d.sendCommand(cmdReboot, d.responseTimeout); err != nil {
		return err
	}
	time.Sleep(d.rebootDelay)
	return nil
}

// ---------------- Uplink ----------------

// Send transmits message as a confirmed uplink. The payload is validated
// against the ceiling for the live data rate (queried fresh; DR0's ceiling
// applies when the query fails), then hex encoded into a DTRX frame.
func (d *Device) Send(message []byte) error {
	if len(message) == 0 {
		return errors.New("message cannot be empty")
	}

	dr, _, err := d.DataRateInfo()
	if err != nil {
		d.debugf("data rate query failed, validating against DR0 ceiling")
		dr = 0
	}
	if err := validatePayloadSize(len(message), dr); err != nil {
		return err
	}

	hex := make([]byte, 0, len(message)*2)
	hex = appendHexPayload(hex, message)
	if len(hex) > hexMessageMax {
		return ErrSizeExceeded
	}

	d.debugf("sending %d bytes on DR%d: %s", len(message), dr, hex)
	resp, err := d.sendCommand(fmt.Sprintf(cmdSend, len(message), hex), d.longTimeout)
	if err != nil {
		return err
	}
	if resp.payload != "" {
		d.debugf("send result: %s", sendOutcome(resp.payload))
	}
	return nil
}

// ---------------- Radio parameters ----------------

// DataRateInfo queries the active data rate and its payload ceiling.
// When the query fails but the modem still answers a status probe, the
// TTN default DR2 is assumed; otherwise the error is returned.
func (d *Device) DataRateInfo() (dataRate uint8, maxPayload int, err error) {
	resp, err := d.sendCommand(cmdDataRateGet, d.responseTimeout)
	if err == nil {
		dr, ok := parseDataRate(resp.payload)
		if !ok {
			return 0, 0, errors.New("data rate missing from CDATARATE response")
		}
		if dr > DataRateMax {
			d.debugf("unknown data rate %d, using conservative ceiling", dr)
			return dr, us915MaxPayload[0], nil
		}
		return dr, us915MaxPayload[dr], nil
	}

	// Alternative probe: a responsive modem without CDATARATE support.
	if _, probeErr := d.sendCommand(cmdStatus, d.responseTimeout); probeErr == nil {
		d.debugf("data rate query failed, assuming DR%d", TTNDataRateDefault)
		return TTNDataRateDefault, us915MaxPayload[TTNDataRateDefault], nil
	}
	return 0, 0, err
}

// SetDataRate sets the uplink data rate (DR0..DR4 for US915).
func (d *Device) SetDataRate(dataRate uint8) error {
	if dataRate > DataRateMax {
		return fmt.Errorf("invalid data rate %d (valid range: %d-%d)", dataRate, DataRateMin, DataRateMax)
	}
	_, err := d.sendCommand(fmt.Sprintf(cmdDataRateSet, dataRate), d.responseTimeout)
	return err
}

// SetADR enables or disables adaptive data rate.
func (d *Device) SetADR(enabled bool) error {
	arg := 0
	if enabled {
		arg = 1
	}
	_, err := d.sendCommand(fmt.Sprintf(cmdADR, arg), d.responseTimeout)
	return err
}

// SetTxPower sets the TX power index (0..7).
func (d *Device) SetTxPower(powerIndex uint8) error {
	if powerIndex > TxPowerIndexMax {
		return fmt.Errorf("invalid TX power index %d (valid range: 0-%d)", powerIndex, TxPowerIndexMax)
	}
	_, err := d.sendCommand(fmt.Sprintf(cmdTxPowerSet, powerIndex), d.responseTimeout)
	return err
}

// TxPower queries the current TX power index.
func (d *Device) TxPower() (uint8, error) {
	resp, err := d.sendCommand(cmdTxPowerGet, d.responseTimeout)
	if err != nil {
		return 0, err
	}
	idx, ok := parseTxPower(resp.payload)
	if !ok {
		return 0, errors.New("TX power missing from CTXP response")
	}
	return idx, nil
}

// SetRetries sets the retransmission count for unconfirmed (0) or
// confirmed (1) uplinks. Count range is 1..15.
func (d *Device) SetRetries(messageType, count uint8) error {
	if messageType > 1 {
		return fmt.Errorf("invalid message type %d (0=unconfirmed, 1=confirmed)", messageType)
	}
	if !mathx.Between(count, 1, 15) {
		return fmt.Errorf("invalid retry count %d (valid range: 1-15)", count)
	}
	_, err := d.sendCommand(fmt.Sprintf(cmdRetries, messageType, count), d.responseTimeout)
	return err
}

// LinkReport carries the result of a one-shot link check.
type LinkReport struct {
	Result   int
	Margin   int
	Gateways int
	RSSI     int
	SNR      int
}

// LinkCheck configures MAC link checking: 0 disables, 1 runs one check,
// 2 checks after every uplink. Mode 1 returns the parsed report when the
// modem includes one.
func (d *Device) LinkCheck(mode uint8) (*LinkReport, error) {
	if mode > 2 {
		return nil, fmt.Errorf("invalid link check mode %d (0=disable, 1=once, 2=every uplink)", mode)
	}
	timeout := d.responseTimeout
	if mode == 1 {
		timeout = d.longTimeout
	}
	resp, err := d.sendCommand(fmt.Sprintf(cmdLinkCheck, mode), timeout)
	if err != nil {
		return nil, err
	}
	if mode != 1 {
		return nil, nil
	}
	if rep, ok := parseLinkCheck(resp.payload); ok {
		return rep, nil
	}
	return nil, nil
}

// ChannelRSSI scans the 8 channels of a frequency band and returns their
// RSSI values in dBm. A reply carrying fewer than 8 channels is returned
// as-is; only a missing table is an error.
func (d *Device) ChannelRSSI(freqBandIndex uint8) ([]int16, error) {
	resp, err := d.sendCommand(fmt.Sprintf(cmdChannelRSSI, freqBandIndex), d.responseTimeout)
	if err != nil {
		return nil, err
	}
	values, ok := parseChannelRSSI(resp.payload)
	if !ok {
		return nil, errors.New("RSSI table missing from CRSSI response")
	}
	if len(values) != 8 {
		d.debugf("expected 8 channels, parsed %d", len(values))
	}
	return values, nil
}

// SetRX2Frequency is not supported: the ASR6501 derives RX2 settings from
// the regional parameters (TTN US915: 923.3 MHz, DR8).
func (d *Device) SetRX2Frequency(frequency uint32) error {
	return ErrUnsupported
}

// SetRX2DataRate is not supported; see SetRX2Frequency.
func (d *Device) SetRX2DataRate(dataRate uint8) error {
	return ErrUnsupported
}

// ---------------- Persistence and passthrough ----------------

// SaveConfig persists the current configuration to module NVM.
func (d *Device) SaveConfig() error {
	_, err := d.sendCommand(cmdSaveConfig, d.responseTimeout)
	return err
}

// RestoreDefaults restores factory configuration. A reboot may be needed
// for the restored values to take effect.
func (d *Device) RestoreDefaults() error {
	_, err := d.sendCommand(cmdRestoreDefault, d.responseTimeout)
	return err
}

// RawCommand sends a bare command (without the AT+ prefix or terminator)
// and returns the data-bearing response text, if any.
func (d *Device) RawCommand(command string, timeout time.Duration) (string, error) {
	if command == "" {
		return "", errors.New("command cannot be empty")
	}
	if timeout <= 0 {
		timeout = d.responseTimeout
	}
	resp, err := d.sendCommand(command, timeout)
	if err != nil {
		return "", err
	}
	return resp.payload, nil
}

// SetLogLevel sets module log verbosity, clamped to 0..5.
func (d *Device) SetLogLevel(level uint8) error {
	level = mathx.Clamp(level, 0, LogLevelMax)
	_, err := d.sendCommand(fmt.Sprintf(cmdLogLevel, level), d.responseTimeout)
	return err
}

// ---------------- Helpers ----------------

func isHexString(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
