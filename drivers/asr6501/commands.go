package asr6501

import "time"

// AT wire framing.
const (
	cmdPrefix = "AT+"
	lineTerm  = "\r\n"
)

// Bare command names (framed as AT+<name>\r\n).
const (
	cmdManufacturer   = "CGMI?"
	cmdStatus         = "CSTATUS?"
	cmdJoin           = "CJOIN=1,1,10,8"
	cmdJoinMode       = "CJOINMODE=0" // OTAA
	cmdDevEUI         = "CDEVEUI=%s"
	cmdAppEUI         = "CAPPEUI=%s"
	cmdAppKey         = "CAPPKEY=%s"
	cmdULDLMode       = "CULDLMODE=%s"
	cmdClassA         = "CCLASS=0"
	cmdWorkModeLoRa   = "CWORKMODE=2"
	cmdReboot         = "IREBOOT=0"
	cmdLogLevel       = "ILOGLVL=%d"
	cmdSend           = "DTRX=1,2,%d,%s" // confirmed, 2 retries, length, hex payload
	cmdDataRateGet    = "CDATARATE?"
	cmdDataRateSet    = "CDATARATE=%d"
	cmdADR            = "CADR=%d"
	cmdTxPowerGet     = "CTXP?"
	cmdTxPowerSet     = "CTXP=%d"
	cmdRetries        = "CNBTRIALS=%d,%d"
	cmdLinkCheck      = "CLINKCHECK=%d"
	cmdChannelRSSI    = "CRSSI %d?"
	cmdFreqBandMask   = "CFREQBANDMASK=%s"
	cmdSaveConfig     = "CSAVE"
	cmdRestoreDefault = "CRESTORE"
)

// Module identification.
const (
	Manufacturer = "ASR"
	Model        = "6501"
)

// Timing and retry budget.
const (
	DefaultTimeout = 5 * time.Second  // control commands
	LongTimeout    = 30 * time.Second // join, send, link-check(once)

	defaultPollInterval = 50 * time.Millisecond
	defaultSettleDelay  = 100 * time.Millisecond
	defaultRetryBackoff = 500 * time.Millisecond
	defaultRebootDelay  = 2 * time.Second

	maxAttempts     = 3
	responseBufSize = 512
)

// US915 regional limits.
const (
	DataRateMin = 0
	DataRateMax = 4

	SubBandMin = 1
	SubBandMax = 8

	TxPowerIndexMax = 7
	LogLevelMax     = 5

	euiLength    = 16 // DevEUI/AppEUI hex characters
	appKeyLength = 32 // AppKey hex characters

	// Hex-encoded uplink ceiling: up to 256 payload bytes, doubled.
	hexMessageMax = 512
)

// us915MaxPayload maps DR0..DR4 to the maximum unencoded payload in bytes.
var us915MaxPayload = [5]int{
	11,  // DR0: SF10, 125kHz
	53,  // DR1: SF9, 125kHz
	125, // DR2: SF8, 125kHz
	242, // DR3: SF7, 125kHz
	242, // DR4: SF8, 500kHz
}

// TTN US915 defaults.
const (
	TTNSubBandDefault  = 2 // channels 8-15
	TTNDataRateDefault = 2
	TTNJoinTimeoutSec  = 60
	TTNRX2Frequency    = 923300000 // Hz, informational
	TTNRX2DataRate     = 8         // informational
	TTNAppEUIDefault   = "0000000000000000"
)

// us915SubBandMask maps sub-band 1..8 to the CFREQBANDMASK argument.
// An out-of-range sub-band falls back to the TTN-conventional sub-band 2.
func us915SubBandMask(subBand uint8) string {
	switch subBand {
	case 1:
		return "0001" // channels 0-7
	case 2:
		return "0002" // channels 8-15 (TTN)
	case 3:
		return "0004" // channels 16-23
	case 4:
		return "0008" // channels 24-31
	case 5:
		return "0010" // channels 32-39
	case 6:
		return "0020" // channels 40-47
	case 7:
		return "0040" // channels 48-55
	case 8:
		return "0080" // channels 56-63
	default:
		return "0002"
	}
}
