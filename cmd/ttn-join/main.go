//go:build !tinygo

// ttn-join brings a Unit LoRaWAN915 on a USB serial adapter onto TTN:
// initializes the modem, programs the US915 frequency plan and OTAA
// credentials from an embedded device profile, then waits for the join.
package main

import (
	"context"
	"flag"
	"log"
	"os"

	"lorawanunit-go/drivers/asr6501"
	"lorawanunit-go/services/config"
	"lorawanunit-go/services/ttn"
	"lorawanunit-go/transport"
)

func main() {
	var (
		portName = flag.String("port", "/dev/ttyUSB0", "serial device")
		baud     = flag.Int("baud", transport.DefaultBaud, "baud rate")
		device   = flag.String("device", "unit-lorawan915", "embedded config profile")
		devEUI   = flag.String("deveui", "", "override DevEUI (16 hex chars)")
		appEUI   = flag.String("appeui", "", "override AppEUI (16 hex chars)")
		appKey   = flag.String("appkey", "", "override AppKey (32 hex chars)")
		verbose  = flag.Bool("v", false, "log modem transactions")
	)
	flag.Parse()

	settings, err := config.Load(*device)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *devEUI != "" {
		settings.DevEUI = *devEUI
	}
	if *appEUI != "" {
		settings.AppEUI = *appEUI
	}
	if *appKey != "" {
		settings.AppKey = *appKey
	}

	port, err := transport.Open(*portName, *baud)
	if err != nil {
		log.Fatalf("open %s: %v", *portName, err)
	}
	defer port.Close()

	cfg := asr6501.Config{}
	if *verbose {
		cfg.Debug = func(msg string) { log.Println("modem:", msg) }
	}
	svc := ttn.NewService(asr6501.New(port, cfg))

	done := make(chan bool, 1)
	err = svc.RunFromConfig(context.Background(), settings, func(joined bool, code uint8) {
		done <- joined
	})
	if err != nil {
		log.Fatalf("bring-up: %v", err)
	}

	log.Printf("join requested (sub-band %d, timeout %ds)", settings.SubBand, settings.JoinTimeoutSec)
	if !<-done {
		log.Println("join timed out; check credentials and gateway coverage")
		os.Exit(1)
	}
	log.Println("joined")

	if st, err := svc.Status(); err == nil {
		log.Printf("session: attached=%v joined=%v DR%d", st.Attached, st.Joined, st.DataRate)
	}
}
