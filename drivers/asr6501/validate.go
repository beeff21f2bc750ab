package asr6501

import (
	"errors"
	"fmt"

	"lorawanunit-go/x/mathx"
)

var (
	ErrDevEUILength   = errors.New("DevEUI must be 16 hex characters")
	ErrAppEUILength   = errors.New("AppEUI must be 16 hex characters")
	ErrAppKeyLength   = errors.New("AppKey must be 32 hex characters")
	ErrSubBandRange   = errors.New("US915 sub-band must be 1-8")
	ErrDataRateRange  = errors.New("US915 data rate must be 0-4")
	ErrRX2DataRateMax = errors.New("RX2 data rate must be 0-15")
)

// TTNConfig is the configuration bundle for a TTN US915 deployment.
// RX2 fields are informational: the ASR6501 derives RX2 settings from
// the regional parameters and does not expose them for writing.
type TTNConfig struct {
	DevEUI string
	AppEUI string
	AppKey string

	SubBand    uint8
	DataRate   uint8
	ADREnabled bool

	RX2Frequency uint32
	RX2DataRate  uint8

	JoinTimeoutSec uint16
}

// DefaultTTNConfig returns the TTN-conventional US915 settings: sub-band 2,
// DR2, ADR on, the v3 universal AppEUI, and a 60s join timeout.
func DefaultTTNConfig() TTNConfig {
	return TTNConfig{
		AppEUI:         TTNAppEUIDefault,
		SubBand:        TTNSubBandDefault,
		DataRate:       TTNDataRateDefault,
		ADREnabled:     true,
		RX2Frequency:   TTNRX2Frequency,
		RX2DataRate:    TTNRX2DataRate,
		JoinTimeoutSec: TTNJoinTimeoutSec,
	}
}

// Validate checks the full bundle before any modem interaction.
func (c *TTNConfig) Validate() error {
	if !isHexString(c.DevEUI, euiLength) {
		return ErrDevEUILength
	}
	if !isHexString(c.AppEUI, euiLength) {
		return ErrAppEUILength
	}
	if !isHexString(c.AppKey, appKeyLength) {
		return ErrAppKeyLength
	}
	if !mathx.Between(c.SubBand, SubBandMin, SubBandMax) {
		return ErrSubBandRange
	}
	if c.DataRate > DataRateMax {
		return ErrDataRateRange
	}
	if c.RX2DataRate > 15 {
		return ErrRX2DataRateMax
	}
	return nil
}

// ConfigureFrequencyPlan programs the US915 band and the channel mask for
// a sub-band. Out-of-range sub-bands fall back to the TTN default mask.
func (d *Device) ConfigureFrequencyPlan(subBand uint8) error {
	for _, mask := range []string{"0001", us915SubBandMask(subBand)} {
		if _, err := d.sendCommand(fmt.Sprintf(cmdFreqBandMask, mask), d.responseTimeout); err != nil {
			return err
		}
	}
	return nil
}
