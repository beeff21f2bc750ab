package config

// -----------------------------------------------------------------------------
// Embedded configuration
//
// Populate embeddedConfigs at build time (e.g. via code generation) or
// manually during development. EUIs and keys below are placeholders;
// real values come from the TTN console device registration.
// Key: device ID (same value placed in ctx under CtxDeviceKey)
// Val: raw JSON bytes for that device
// -----------------------------------------------------------------------------

const cfgUnitLoRaWAN915 = `{
  "lorawan": {
      "activation": "otaa",
      "dev_eui": "0000000000000000",
      "app_eui": "0000000000000000",
      "app_key": "00000000000000000000000000000000",
      "sub_band": 2,
      "data_rate": 2,
      "adr": true,
      "join_timeout_sec": 120,
      "tx_power_index": 0,
      "confirmed_retries": 3
  }
}`

var embeddedConfigs = map[string][]byte{
	"unit-lorawan915": []byte(cfgUnitLoRaWAN915),
}
