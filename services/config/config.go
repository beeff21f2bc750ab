package config

import (
	"context"
	"errors"

	"lorawanunit-go/bus"
	"lorawanunit-go/types"

	"github.com/andreyvit/tinyjson"
)

// -----------------------------------------------------------------------------
// String constants (live in flash, not RAM)
// -----------------------------------------------------------------------------

const (
	serviceName  = "config"
	configPrefix = "config/"
	CtxDeviceKey = "device" // context key used for device ID
)

// EmbeddedConfigLookup allows overriding how configs are resolved.
var EmbeddedConfigLookup = func(device string) ([]byte, bool) {
	b, ok := embeddedConfigs[device]
	return b, ok
}

// -----------------------------------------------------------------------------
// Config Service
// -----------------------------------------------------------------------------

type ConfigService struct {
	Name string
}

func NewConfigService() *ConfigService {
	return &ConfigService{Name: serviceName}
}

// publishConfig reads the device config from embedded data and publishes
// each top-level section as a retained message.
func (s *ConfigService) publishConfig(ctx context.Context, b *bus.Bus) error {
	device, _ := ctx.Value(CtxDeviceKey).(string)
	if device == "" {
		return errors.New("missing device ID in context")
	}

	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return errors.New("no embedded config for device: " + device)
	}

	r := tinyjson.Raw(raw)
	val := r.Value() // should be a map[string]any
	r.EnsureEOF()

	m, ok := val.(map[string]any)
	if !ok {
		return errors.New("embedded config is not a JSON object")
	}

	for k, v := range m {
		b.Publish(&bus.Message{
			Topic:    configPrefix + k,
			Payload:  v,
			Retained: true,
		})
	}

	return nil
}

// Start launches the config publisher in a goroutine.
func (s *ConfigService) Start(ctx context.Context, b *bus.Bus) {
	go func() {
		if err := s.publishConfig(ctx, b); err != nil {
			println("Error:", serviceName, err.Error())
		}
	}()
}

// Load parses the embedded config for a device and returns its LoRaWAN
// section without going through the bus. Callers that only need the
// modem settings (the CLI tools) use this directly.
func Load(device string) (types.LoRaWANSettings, error) {
	raw, ok := EmbeddedConfigLookup(device)
	if !ok || len(raw) == 0 {
		return types.LoRaWANSettings{}, errors.New("no embedded config for device: " + device)
	}

	r := tinyjson.Raw(raw)
	val := r.Value()
	r.EnsureEOF()

	m, ok := val.(map[string]any)
	if !ok {
		return types.LoRaWANSettings{}, errors.New("embedded config is not a JSON object")
	}
	sect, ok := m["lorawan"]
	if !ok {
		return types.LoRaWANSettings{}, errors.New("config has no lorawan section")
	}
	return DecodeLoRaWAN(sect)
}

// DecodeLoRaWAN converts a decoded JSON object (as published on
// config/lorawan) into typed settings. Missing keys keep zero values;
// the caller applies defaults.
func DecodeLoRaWAN(v any) (types.LoRaWANSettings, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return types.LoRaWANSettings{}, errors.New("lorawan section is not a JSON object")
	}

	var s types.LoRaWANSettings
	s.Activation = str(m, "activation")
	s.DevEUI = str(m, "dev_eui")
	s.AppEUI = str(m, "app_eui")
	s.AppKey = str(m, "app_key")
	s.SubBand = uint8(num(m, "sub_band"))
	s.DataRate = uint8(num(m, "data_rate"))
	s.JoinTimeoutSec = uint16(num(m, "join_timeout_sec"))
	s.TxPowerIndex = uint8(num(m, "tx_power_index"))
	s.ConfirmedRetries = uint8(num(m, "confirmed_retries"))
	if b, ok := m["adr"].(bool); ok {
		s.ADR = b
	}
	return s, nil
}

func str(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func num(m map[string]any, key string) float64 {
	switch n := m[key].(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return 0
}
