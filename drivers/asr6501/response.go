package asr6501

import (
	"fmt"
	"strings"
)

// response is the classified form of one raw modem reply. It lives for
// one command invocation only.
type response struct {
	success bool
	payload string // raw text when a data-bearing prefix is present
	errCode string // short code from ERROR:<code>, possibly empty
}

// dataPrefixes is the allow-list of data-bearing reply markers. A reply
// containing one is a success even without an OK marker.
var dataPrefixes = [...]string{
	"+CGMI=",
	"+CSTATUS:",
	"+CDATARATE:",
	"+CTXP:",
	"+CRSSI:",
	"+DTRX:",
	"+CJOIN:",
	"+CLINKCHECK:",
}

func hasDataPrefix(raw string) bool {
	for _, p := range dataPrefixes {
		if strings.Contains(raw, p) {
			return true
		}
	}
	return false
}

// parseResponse classifies raw reply text. OK or a recognized data prefix
// classify as success; ERROR classifies as failure with its code extracted.
// Text with no recognized marker classifies as failure (conservative default).
func parseResponse(raw string) response {
	if strings.Contains(raw, "OK") {
		r := response{success: true}
		if hasDataPrefix(raw) {
			r.payload = raw
		}
		return r
	}
	if i := strings.Index(raw, "ERROR"); i >= 0 {
		r := response{}
		var code string
		if _, err := fmt.Sscanf(raw[i:], "ERROR:%s", &code); err == nil {
			r.errCode = code
		}
		return r
	}
	if hasDataPrefix(raw) {
		return response{success: true, payload: raw}
	}
	return response{}
}

// ---------------- Per-shape field extraction ----------------
//
// Each extractor anchors on its reply prefix and scans the fixed format
// behind it. No general parsing: unknown shapes report !ok.

func parseManufacturer(payload string) (string, bool) {
	i := strings.Index(payload, "+CGMI=")
	if i < 0 {
		return "", false
	}
	var mfg string
	if _, err := fmt.Sscanf(payload[i:], "+CGMI=%s", &mfg); err != nil {
		return "", false
	}
	return mfg, true
}

func parseStatusCode(payload string) (string, bool) {
	i := strings.Index(payload, "+CSTATUS:")
	if i < 0 {
		return "", false
	}
	var code string
	if _, err := fmt.Sscanf(payload[i:], "+CSTATUS:%s", &code); err != nil {
		return "", false
	}
	return code, true
}

func parseDataRate(payload string) (uint8, bool) {
	i := strings.Index(payload, "+CDATARATE:")
	if i < 0 {
		return 0, false
	}
	var dr int
	if _, err := fmt.Sscanf(payload[i:], "+CDATARATE:%d", &dr); err != nil || dr < 0 {
		return 0, false
	}
	return uint8(dr), true
}

func parseTxPower(payload string) (uint8, bool) {
	i := strings.Index(payload, "+CTXP:")
	if i < 0 {
		return 0, false
	}
	var idx int
	if _, err := fmt.Sscanf(payload[i:], "+CTXP:%d", &idx); err != nil || idx < 0 {
		return 0, false
	}
	return uint8(idx), true
}

func parseLinkCheck(payload string) (*LinkReport, bool) {
	i := strings.Index(payload, "+CLINKCHECK:")
	if i < 0 {
		return nil, false
	}
	rep := &LinkReport{}
	n, err := fmt.Sscanf(payload[i:], "+CLINKCHECK:%d,%d,%d,%d,%d",
		&rep.Result, &rep.Margin, &rep.Gateways, &rep.RSSI, &rep.SNR)
	if err != nil || n != 5 {
		return nil, false
	}
	return rep, true
}

// parseChannelRSSI scans the multi-line table behind +CRSSI:, one
// <channel>:<rssi> pair per line, channels 0..7 in order.
func parseChannelRSSI(payload string) ([]int16, bool) {
	i := strings.Index(payload, "+CRSSI:")
	if i < 0 {
		return nil, false
	}
	rest := payload[i:]
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 {
		return nil, false
	}

	values := make([]int16, 0, 8)
	for _, line := range strings.Split(rest[nl+1:], "\n") {
		line = strings.TrimRight(line, "\r")
		var channel, rssi int
		if _, err := fmt.Sscanf(line, "%d:%d", &channel, &rssi); err != nil {
			continue
		}
		if channel != len(values) || channel > 7 {
			continue
		}
		values = append(values, int16(rssi))
		if len(values) == 8 {
			break
		}
	}
	if len(values) == 0 {
		return nil, false
	}
	return values, true
}

// statusDescription renders a +CSTATUS: code for diagnostics.
func statusDescription(code string) string {
	switch {
	case strings.Contains(code, "04"):
		return "network joined (OTAA)"
	case strings.Contains(code, "08"):
		return "network joined (ABP)"
	case strings.Contains(code, "02"):
		return "join in progress"
	case strings.Contains(code, "01"):
		return "not joined"
	case strings.Contains(code, "03"):
		return "join failed"
	}
	return "unknown status"
}

// sendOutcome renders DTRX side-channel markers for diagnostics.
func sendOutcome(payload string) string {
	switch {
	case strings.Contains(payload, "ERR+SEND:"):
		return "send error reported"
	case strings.Contains(payload, "OK+RECV:"):
		return "network acknowledgment received"
	case strings.Contains(payload, "OK+SENT:"):
		return "transmitted to network"
	case strings.Contains(payload, "OK+SEND:"):
		return "queued for transmission"
	}
	return "accepted"
}
