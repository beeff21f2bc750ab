package types

// ------------------------
// LoRaWAN
// ------------------------

// JoinCallback is invoked exactly once per join request:
// joined=true with code 0 on success, joined=false with code 1 on timeout.
type JoinCallback func(joined bool, code uint8)

// JoinEvent is published on the bus as the join monitor progresses.
type JoinEvent struct {
	Phase      string `json:"phase"` // "started" | "joined" | "timeout"
	ElapsedSec uint16 `json:"elapsed_sec"`
}

// ModemStatus is a bus-facing snapshot of the module session.
type ModemStatus struct {
	Attached bool  `json:"attached"`
	Joined   bool  `json:"joined"`
	DataRate uint8 `json:"data_rate"`
}

// LoRaWANSettings mirrors the embedded "lorawan" config section: the
// device-profile analog of the source firmware's build-time settings.
type LoRaWANSettings struct {
	Activation       string `json:"activation"` // "otaa" | "abp"
	DevEUI           string `json:"dev_eui"`
	AppEUI           string `json:"app_eui"`
	AppKey           string `json:"app_key"`
	SubBand          uint8  `json:"sub_band"`
	DataRate         uint8  `json:"data_rate"`
	ADR              bool   `json:"adr"`
	JoinTimeoutSec   uint16 `json:"join_timeout_sec"`
	TxPowerIndex     uint8  `json:"tx_power_index"`
	ConfirmedRetries uint8  `json:"confirmed_retries"`
}
