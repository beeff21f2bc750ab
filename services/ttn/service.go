// Package ttn orchestrates joining an ASR6501 modem to The Things Network
// over US915: frequency plan, OTAA credentials, radio parameters, then an
// asynchronous join with a background monitor.
package ttn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lorawanunit-go/bus"
	"lorawanunit-go/drivers/asr6501"
	"lorawanunit-go/errcode"
	"lorawanunit-go/services/config"
	"lorawanunit-go/types"
)

const (
	topicJoin   = "ttn/join"
	topicStatus = "ttn/status"
	topicError  = "ttn/error"
	topicConfig = "config/lorawan"

	joinPollInterval = 1 * time.Second
	joinProgressLog  = 10 // seconds between progress lines
)

type Service struct {
	Dev *asr6501.Device
	Bus *bus.Bus // optional; join events and status snapshots when set
}

func NewService(dev *asr6501.Device) *Service {
	return &Service{Dev: dev}
}

func (s *Service) publish(topic string, payload any, retained bool) {
	if s.Bus == nil {
		return
	}
	s.Bus.Publish(&bus.Message{Topic: topic, Payload: payload, Retained: retained})
}

func (s *Service) publishErr(op string, err error) {
	s.publish(topicError, &errcode.E{C: classify(err), Op: op, Msg: err.Error(), Err: err}, false)
}

// classify maps driver errors onto the stable bus-facing codes.
func classify(err error) errcode.Code {
	var perr *asr6501.ProtocolError
	switch {
	case err == nil:
		return errcode.OK
	case errors.Is(err, asr6501.ErrTimeout):
		return errcode.Timeout
	case errors.Is(err, asr6501.ErrTransport):
		return errcode.Transport
	case errors.Is(err, asr6501.ErrNotAttached):
		return errcode.NotAttached
	case errors.Is(err, asr6501.ErrUnsupported):
		return errcode.Unsupported
	case errors.Is(err, asr6501.ErrSizeExceeded):
		return errcode.SizeExceeded
	case errors.As(err, &perr):
		return errcode.ProtocolError
	}
	return errcode.Error
}

// ConfigureUS915 programs the modem for a TTN US915 deployment and starts
// the join. Credential, band and OTAA steps are fatal; data rate and NVM
// save failures are tolerated since ADR corrects the rate after joining.
// The join itself is asynchronous: when a callback or a bus is present,
// a monitor goroutine polls the session and calls cb exactly once,
// (true, 0) on join or (false, 1) on timeout. With neither, the join is
// fire-and-forget; poll Connected to observe completion.
func (s *Service) ConfigureUS915(ctx context.Context, cfg asr6501.TTNConfig, cb types.JoinCallback) (err error) {
	defer func() {
		if err != nil {
			s.publishErr("configure", err)
		}
	}()

	if err := cfg.Validate(); err != nil {
		return err
	}

	attached, err := s.Dev.Attached()
	if err != nil {
		return err
	}
	if !attached {
		return asr6501.ErrNotAttached
	}

	if err := s.Dev.ConfigureFrequencyPlan(cfg.SubBand); err != nil {
		return fmt.Errorf("frequency plan: %w", err)
	}
	if err := s.Dev.ConfigureOTAA(cfg.DevEUI, cfg.AppEUI, cfg.AppKey, asr6501.DifferentFreqMode); err != nil {
		return fmt.Errorf("OTAA setup: %w", err)
	}
	if err := s.Dev.SetADR(cfg.ADREnabled); err != nil {
		return fmt.Errorf("ADR: %w", err)
	}
	if err := s.Dev.SetDataRate(cfg.DataRate); err != nil {
		println("Info: ttn: data rate setting failed, ADR will adjust after join")
	}
	if err := s.Dev.SaveConfig(); err != nil {
		println("Info: ttn: config save failed, settings live in RAM only")
	}

	if err := s.Dev.Join(); err != nil {
		return fmt.Errorf("join request: %w", err)
	}

	// No watcher without an observer: with neither a callback nor a bus
	// the goroutine would only contend for the single-owner transport.
	if cb != nil || s.Bus != nil {
		s.publish(topicJoin, &types.JoinEvent{Phase: "started"}, false)
		go s.monitorJoin(ctx, cfg.JoinTimeoutSec, cb)
	}
	return nil
}

// monitorJoin polls the session state once a second until the modem joins,
// the timeout elapses, or ctx is cancelled. The callback fires at most once;
// cancellation suppresses it.
func (s *Service) monitorJoin(ctx context.Context, timeoutSec uint16, cb types.JoinCallback) {
	tick := time.NewTicker(joinPollInterval)
	defer tick.Stop()

	var elapsed uint16
	for {
		select {
		case <-ctx.Done():
			println("Info: ttn: join monitor stopping")
			return
		case <-tick.C:
			elapsed++

			joined, err := s.Dev.Connected()
			if err == nil && joined {
				println("Info: ttn: joined network after", elapsed, "seconds")
				s.publish(topicJoin, &types.JoinEvent{Phase: "joined", ElapsedSec: elapsed}, true)
				if cb != nil {
					cb(true, 0)
				}
				return
			}
			if elapsed >= timeoutSec {
				println("Info: ttn: join timed out after", elapsed, "seconds")
				s.publish(topicJoin, &types.JoinEvent{Phase: "timeout", ElapsedSec: elapsed}, true)
				if cb != nil {
					cb(false, 1)
				}
				return
			}
			if elapsed%joinProgressLog == 0 {
				println("Info: ttn: joining,", elapsed, "seconds elapsed")
				s.publish(topicJoin, &types.JoinEvent{Phase: "started", ElapsedSec: elapsed}, false)
			}
		}
	}
}

// RunFromConfig initializes the modem and drives the full TTN bring-up
// from embedded device settings. Only OTAA activation is supported.
func (s *Service) RunFromConfig(ctx context.Context, settings types.LoRaWANSettings, cb types.JoinCallback) error {
	if settings.Activation != "" && settings.Activation != "otaa" {
		err := errors.New("unsupported activation mode: " + settings.Activation)
		s.publish(topicError, &errcode.E{C: errcode.Unsupported, Op: "activation", Msg: err.Error(), Err: err}, false)
		return err
	}

	cfg := asr6501.DefaultTTNConfig()
	cfg.DevEUI = settings.DevEUI
	cfg.AppKey = settings.AppKey
	if settings.AppEUI != "" {
		cfg.AppEUI = settings.AppEUI
	}
	if settings.SubBand != 0 {
		cfg.SubBand = settings.SubBand
	}
	if settings.DataRate != 0 {
		cfg.DataRate = settings.DataRate
	}
	cfg.ADREnabled = settings.ADR
	if settings.JoinTimeoutSec != 0 {
		cfg.JoinTimeoutSec = settings.JoinTimeoutSec
	}

	if err := s.Dev.Init(); err != nil {
		err = fmt.Errorf("modem init: %w", err)
		s.publishErr("init", err)
		return err
	}
	if err := s.ConfigureUS915(ctx, cfg, cb); err != nil {
		return err
	}

	// Radio niceties after the join has been kicked off; best effort.
	if err := s.Dev.SetTxPower(settings.TxPowerIndex); err != nil {
		println("Info: ttn: TX power setting failed")
	}
	if settings.ConfirmedRetries != 0 {
		if err := s.Dev.SetRetries(1, settings.ConfirmedRetries); err != nil {
			println("Info: ttn: retry count setting failed")
		}
	}
	return nil
}

// Start runs the service against the bus: it waits for the retained
// config/lorawan profile, then drives the full bring-up. The join
// callback is optional.
func (s *Service) Start(ctx context.Context, b *bus.Bus, cb types.JoinCallback) {
	s.Bus = b
	go func() {
		sub := b.Subscribe(topicConfig)
		defer sub.Unsubscribe()

		select {
		case <-ctx.Done():
			return
		case msg := <-sub.Channel():
			settings, err := config.DecodeLoRaWAN(msg.Payload)
			if err != nil {
				println("Error: ttn:", err.Error())
				s.publish(topicError, &errcode.E{C: errcode.InvalidParams, Op: "config", Msg: err.Error(), Err: err}, false)
				return
			}
			if err := s.RunFromConfig(ctx, settings, cb); err != nil {
				println("Error: ttn:", err.Error())
			}
		}
	}()
}

// Status snapshots the modem session and, when a bus is attached,
// publishes it retained on ttn/status.
func (s *Service) Status() (types.ModemStatus, error) {
	var st types.ModemStatus

	attached, err := s.Dev.Attached()
	if err != nil {
		return st, err
	}
	st.Attached = attached
	if !attached {
		s.publish(topicStatus, &st, true)
		return st, nil
	}

	joined, err := s.Dev.Connected()
	if err != nil {
		return st, err
	}
	st.Joined = joined

	if dr, _, err := s.Dev.DataRateInfo(); err == nil {
		st.DataRate = dr
	}

	s.publish(topicStatus, &st, true)
	return st, nil
}
