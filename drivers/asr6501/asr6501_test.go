package asr6501

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

// --- fake transport implementing Transport with scripted replies ---

type fakeTransport struct {
	mu         sync.Mutex
	writes     []string
	replies    map[string][]string // frame -> successive replies; last entry repeats
	rx         []byte
	failWrites int // fail the first N writes
	flushes    int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{replies: make(map[string][]string)}
}

// reply scripts a response for a frame. Multiple calls queue successive
// replies; the final one repeats for later attempts. An empty reply means
// the modem stays silent for that attempt.
func (f *fakeTransport) reply(frame string, texts ...string) {
	f.mu.Lock()
	f.replies[frame] = append(f.replies[frame], texts...)
	f.mu.Unlock()
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	frame := string(p)
	f.writes = append(f.writes, frame)
	if f.failWrites > 0 {
		f.failWrites--
		return 0, errors.New("uart write failed")
	}
	if rs := f.replies[frame]; len(rs) > 0 {
		if rs[0] != "" {
			f.rx = append(f.rx, rs[0]...)
		}
		if len(rs) > 1 {
			f.replies[frame] = rs[1:]
		}
	}
	return len(p), nil
}

func (f *fakeTransport) Buffered() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rx)
}

func (f *fakeTransport) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := copy(p, f.rx)
	f.rx = f.rx[n:]
	return n, nil
}

func (f *fakeTransport) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rx = nil
	f.flushes++
	return nil
}

func (f *fakeTransport) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.writes)
}

func (f *fakeTransport) frame(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i < 0 || i >= len(f.writes) {
		return ""
	}
	return f.writes[i]
}

// testDevice uses short budgets so retry and timeout paths stay fast.
func testDevice(port Transport) *Device {
	return New(port, Config{
		ResponseTimeout: 50 * time.Millisecond,
		LongTimeout:     100 * time.Millisecond,
		PollInterval:    time.Millisecond,
		SettleDelay:     time.Millisecond,
		RetryBackoff:    time.Millisecond,
		RebootDelay:     time.Millisecond,
	})
}

// --- tests ---

func TestAttachedRecognizesManufacturer(t *testing.T) {
	f := newFakeTransport()
	f.reply("AT+CGMI?\r\n", "+CGMI=ASR6501\r\nOK\r\n")
	d := testDevice(f)

	ok, err := d.Attached()
	if err != nil {
		t.Errorf("Attached: %v", err)
		return
	}
	if !ok {
		t.Errorf("expected attached")
	}
}

func TestAttachedUnknownModule(t *testing.T) {
	f := newFakeTransport()
	f.reply("AT+CGMI?\r\n", "+CGMI=OTHER\r\nOK\r\n")
	d := testDevice(f)

	ok, err := d.Attached()
	if err != nil {
		t.Errorf("Attached: %v", err)
		return
	}
	if ok {
		t.Errorf("unknown manufacturer must not report attached")
	}
}

func TestConnectedStatusCodes(t *testing.T) {
	cases := []struct {
		reply  string
		joined bool
	}{
		{"+CSTATUS:04\r\nOK\r\n", true},
		{"+CSTATUS:08\r\nOK\r\n", true},
		{"+CSTATUS:01\r\nOK\r\n", false},
		{"+CSTATUS:02\r\nOK\r\n", false},
		{"+CSTATUS:03\r\nOK\r\n", false},
		{"OK\r\n", false}, // no status line at all
	}
	for _, c := range cases {
		f := newFakeTransport()
		f.reply("AT+CSTATUS?\r\n", c.reply)
		d := testDevice(f)

		joined, err := d.Connected()
		if err != nil {
			t.Errorf("Connected(%q): %v", c.reply, err)
			continue
		}
		if joined != c.joined {
			t.Errorf("Connected(%q) = %v, want %v", c.reply, joined, c.joined)
		}
	}
}

func TestConfigureOTAAValidatesBeforeIO(t *testing.T) {
	f := newFakeTransport()
	d := testDevice(f)

	// 15-character DevEUI: one short.
	err := d.ConfigureOTAA("0004A30B001C05A", "0000000000000000",
		"00000000000000000000000000000000", DifferentFreqMode)
	if err == nil {
		t.Errorf("expected validation error")
	}
	if n := f.writeCount(); n != 0 {
		t.Errorf("validation failure reached the transport: %d writes", n)
	}
}

func TestConfigureOTAASequence(t *testing.T) {
	f := newFakeTransport()
	want := []string{
		"AT+CJOINMODE=0\r\n",
		"AT+CDEVEUI=0004A30B001C05AF\r\n",
		"AT+CAPPEUI=0000000000000000\r\n",
		"AT+CAPPKEY=2B7E151628AED2A6ABF7158809CF4F3C\r\n",
		"AT+CULDLMODE=2\r\n",
		"AT+CCLASS=0\r\n",
		"AT+CWORKMODE=2\r\n",
	}
	for _, frame := range want {
		f.reply(frame, "OK\r\n")
	}
	d := testDevice(f)

	err := d.ConfigureOTAA("0004A30B001C05AF", "0000000000000000",
		"2B7E151628AED2A6ABF7158809CF4F3C", DifferentFreqMode)
	if err != nil {
		t.Errorf("ConfigureOTAA: %v", err)
		return
	}
	if got := f.writeCount(); got != len(want) {
		t.Errorf("expected %d frames, got %d", len(want), got)
		return
	}
	for i, w := range want {
		if f.frame(i) != w {
			t.Errorf("frame %d = %q, want %q", i, f.frame(i), w)
		}
	}
}

func TestConfigureOTAAAbortsOnFirstError(t *testing.T) {
	f := newFakeTransport()
	f.reply("AT+CJOINMODE=0\r\n", "OK\r\n")
	f.reply("AT+CDEVEUI=0004A30B001C05AF\r\n", "ERROR:4\r\n")
	d := testDevice(f)

	err := d.ConfigureOTAA("0004A30B001C05AF", "0000000000000000",
		"2B7E151628AED2A6ABF7158809CF4F3C", DifferentFreqMode)
	if err == nil {
		t.Errorf("expected error")
		return
	}
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Errorf("expected ProtocolError, got %v", err)
	}
	// CJOINMODE + 3 attempts at CDEVEUI, nothing after.
	if n := f.writeCount(); n != 4 {
		t.Errorf("expected 4 writes, got %d", n)
	}
}

func TestSendEncodesFrame(t *testing.T) {
	f := newFakeTransport()
	f.reply("AT+CDATARATE?\r\n", "+CDATARATE:2\r\nOK\r\n")
	f.reply("AT+DTRX=1,2,2,4142\r\n", "OK+SEND:02\r\n")
	d := testDevice(f)

	if err := d.Send([]byte("AB")); err != nil {
		t.Errorf("Send: %v", err)
		return
	}
	if got := f.frame(1); got != "AT+DTRX=1,2,2,4142\r\n" {
		t.Errorf("send frame = %q", got)
	}
}

func TestSendRejectsOversizeForLiveDataRate(t *testing.T) {
	f := newFakeTransport()
	f.reply("AT+CDATARATE?\r\n", "+CDATARATE:0\r\nOK\r\n")
	d := testDevice(f)

	err := d.Send([]byte("twelve bytes")) // 12 > DR0 ceiling of 11
	if !errors.Is(err, ErrSizeExceeded) {
		t.Errorf("expected ErrSizeExceeded, got %v", err)
	}
	// Only the data rate query went out.
	if n := f.writeCount(); n != 1 {
		t.Errorf("expected 1 write, got %d", n)
	}
}

func TestSendCeilingBoundary(t *testing.T) {
	f := newFakeTransport()
	f.reply("AT+CDATARATE?\r\n", "+CDATARATE:0\r\nOK\r\n")
	payload := make([]byte, 11) // exactly the DR0 ceiling
	frame := "AT+DTRX=1,2,11," + strings.Repeat("00", 11) + "\r\n"
	f.reply(frame, "OK\r\n")
	d := testDevice(f)

	if err := d.Send(payload); err != nil {
		t.Errorf("ceiling-sized payload must pass: %v", err)
	}
}

func TestSendFallsBackToConservativeCeiling(t *testing.T) {
	f := newFakeTransport()
	// Both the data rate query and the status probe stay silent.
	d := testDevice(f)

	err := d.Send([]byte("twelve bytes"))
	if !errors.Is(err, ErrSizeExceeded) {
		t.Errorf("expected DR0 fallback rejection, got %v", err)
	}
}

func TestRetryOnTimeout(t *testing.T) {
	f := newFakeTransport()
	// Silent on the first attempt, answers on the second.
	f.reply("AT+CSAVE\r\n", "", "OK\r\n")
	d := testDevice(f)

	if err := d.SaveConfig(); err != nil {
		t.Errorf("SaveConfig: %v", err)
	}
	if n := f.writeCount(); n != 2 {
		t.Errorf("expected 2 attempts, got %d", n)
	}
}

func TestRetryOnWriteFailure(t *testing.T) {
	f := newFakeTransport()
	f.failWrites = 1
	f.reply("AT+CSAVE\r\n", "OK\r\n", "OK\r\n")
	d := testDevice(f)

	if err := d.SaveConfig(); err != nil {
		t.Errorf("SaveConfig: %v", err)
	}
	if n := f.writeCount(); n != 2 {
		t.Errorf("expected 2 attempts, got %d", n)
	}
}

func TestRetriesExhaustOnPersistentTimeout(t *testing.T) {
	f := newFakeTransport()
	d := testDevice(f)

	err := d.SaveConfig()
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", err)
	}
	if n := f.writeCount(); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
	if f.flushes < 3 {
		t.Errorf("expected a flush before each attempt, got %d", f.flushes)
	}
}

func TestWriteFailuresExhaustToTransportError(t *testing.T) {
	f := newFakeTransport()
	f.failWrites = 3 // every attempt fails at the wire
	d := testDevice(f)

	err := d.SaveConfig()
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
	if n := f.writeCount(); n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}

func TestProtocolErrorCarriesCode(t *testing.T) {
	f := newFakeTransport()
	f.reply("AT+CSAVE\r\n", "ERROR:7\r\n")
	d := testDevice(f)

	err := d.SaveConfig()
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		t.Errorf("expected ProtocolError, got %v", err)
		return
	}
	if pe.Code != "7" {
		t.Errorf("error code = %q, want \"7\"", pe.Code)
	}
}

func TestValidationNeverRetries(t *testing.T) {
	f := newFakeTransport()
	d := testDevice(f)

	if err := d.SetDataRate(5); err == nil {
		t.Errorf("DR5 must fail for US915")
	}
	if err := d.SetTxPower(8); err == nil {
		t.Errorf("power index 8 must fail")
	}
	if err := d.SetRetries(2, 5); err == nil {
		t.Errorf("message type 2 must fail")
	}
	if err := d.SetRetries(1, 0); err == nil {
		t.Errorf("retry count 0 must fail")
	}
	if err := d.SetRetries(1, 16); err == nil {
		t.Errorf("retry count 16 must fail")
	}
	if _, err := d.LinkCheck(3); err == nil {
		t.Errorf("link check mode 3 must fail")
	}
	if n := f.writeCount(); n != 0 {
		t.Errorf("validation failures reached the transport: %d writes", n)
	}
}

func TestRX2SettersUnsupported(t *testing.T) {
	f := newFakeTransport()
	d := testDevice(f)

	if err := d.SetRX2Frequency(923300000); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
	if err := d.SetRX2DataRate(8); !errors.Is(err, ErrUnsupported) {
		t.Errorf("expected ErrUnsupported, got %v", err)
	}
	if n := f.writeCount(); n != 0 {
		t.Errorf("unsupported operations reached the transport: %d writes", n)
	}
}

func TestDataRateInfo(t *testing.T) {
	f := newFakeTransport()
	f.reply("AT+CDATARATE?\r\n", "+CDATARATE:3\r\nOK\r\n")
	d := testDevice(f)

	dr, max, err := d.DataRateInfo()
	if err != nil {
		t.Errorf("DataRateInfo: %v", err)
		return
	}
	if dr != 3 || max != 242 {
		t.Errorf("got DR%d max %d, want DR3 max 242", dr, max)
	}
}

func TestDataRateInfoStatusFallback(t *testing.T) {
	f := newFakeTransport()
	// CDATARATE? silent, but the status probe answers.
	f.reply("AT+CSTATUS?\r\n", "+CSTATUS:01\r\nOK\r\n")
	d := testDevice(f)

	dr, max, err := d.DataRateInfo()
	if err != nil {
		t.Errorf("DataRateInfo: %v", err)
		return
	}
	if dr != TTNDataRateDefault || max != 125 {
		t.Errorf("got DR%d max %d, want DR2 max 125", dr, max)
	}
}

func TestTxPowerRoundTrip(t *testing.T) {
	f := newFakeTransport()
	f.reply("AT+CTXP=3\r\n", "OK\r\n")
	f.reply("AT+CTXP?\r\n", "+CTXP:3\r\nOK\r\n")
	d := testDevice(f)

	if err := d.SetTxPower(3); err != nil {
		t.Errorf("SetTxPower: %v", err)
	}
	idx, err := d.TxPower()
	if err != nil {
		t.Errorf("TxPower: %v", err)
		return
	}
	if idx != 3 {
		t.Errorf("power index = %d, want 3", idx)
	}
}

func TestChannelRSSIScan(t *testing.T) {
	f := newFakeTransport()
	f.reply("AT+CRSSI 1?\r\n",
		"+CRSSI:\r\n0:-80\r\n1:-82\r\n2:-85\r\n3:-79\r\n4:-90\r\n5:-88\r\n6:-86\r\n7:-91\r\nOK\r\n")
	d := testDevice(f)

	values, err := d.ChannelRSSI(1)
	if err != nil {
		t.Errorf("ChannelRSSI: %v", err)
		return
	}
	if len(values) != 8 {
		t.Errorf("expected 8 channels, got %d", len(values))
		return
	}
	if values[0] != -80 || values[7] != -91 {
		t.Errorf("unexpected values: %v", values)
	}
}

func TestChannelRSSIShortTableReturned(t *testing.T) {
	f := newFakeTransport()
	// Only 3 of 8 channels answer.
	f.reply("AT+CRSSI 1?\r\n", "+CRSSI:\r\n0:-80\r\n1:-82\r\n2:-85\r\nOK\r\n")
	d := testDevice(f)

	values, err := d.ChannelRSSI(1)
	if err != nil {
		t.Errorf("short table must not error: %v", err)
		return
	}
	if len(values) != 3 {
		t.Errorf("expected 3 values, got %d: %v", len(values), values)
	}
}

func TestLinkCheckOnceParsesReport(t *testing.T) {
	f := newFakeTransport()
	f.reply("AT+CLINKCHECK=1\r\n", "+CLINKCHECK:0,10,1,-95,8\r\nOK\r\n")
	d := testDevice(f)

	rep, err := d.LinkCheck(1)
	if err != nil {
		t.Errorf("LinkCheck: %v", err)
		return
	}
	if rep == nil {
		t.Errorf("expected report")
		return
	}
	if rep.Result != 0 || rep.Margin != 10 || rep.Gateways != 1 || rep.RSSI != -95 || rep.SNR != 8 {
		t.Errorf("unexpected report: %+v", *rep)
	}
}

func TestRawCommandReturnsPayload(t *testing.T) {
	f := newFakeTransport()
	f.reply("AT+CSTATUS?\r\n", "+CSTATUS:04\r\nOK\r\n")
	d := testDevice(f)

	out, err := d.RawCommand("CSTATUS?", 0)
	if err != nil {
		t.Errorf("RawCommand: %v", err)
		return
	}
	if !strings.Contains(out, "+CSTATUS:04") {
		t.Errorf("payload = %q", out)
	}
}

func TestInitSequence(t *testing.T) {
	f := newFakeTransport()
	f.reply("AT+CGMI?\r\n", "+CGMI=ASR6501\r\nOK\r\n")
	f.reply("AT+ILOGLVL=1\r\n", "OK\r\n")
	f.reply("AT+CSAVE\r\n", "OK\r\n")
	f.reply("AT+IREBOOT=0\r\n", "OK\r\n")
	d := testDevice(f)

	if err := d.Init(); err != nil {
		t.Errorf("Init: %v", err)
		return
	}
	want := []string{"AT+CGMI?\r\n", "AT+ILOGLVL=1\r\n", "AT+CSAVE\r\n", "AT+IREBOOT=0\r\n"}
	for i, w := range want {
		if f.frame(i) != w {
			t.Errorf("frame %d = %q, want %q", i, f.frame(i), w)
		}
	}
}

func TestInitNotAttached(t *testing.T) {
	f := newFakeTransport()
	f.reply("AT+CGMI?\r\n", "+CGMI=OTHER\r\nOK\r\n")
	d := testDevice(f)

	if err := d.Init(); !errors.Is(err, ErrNotAttached) {
		t.Errorf("expected ErrNotAttached, got %v", err)
	}
}
