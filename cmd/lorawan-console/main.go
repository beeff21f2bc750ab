//go:build !tinygo

// lorawan-console is an interactive shell for poking an ASR6501 modem:
// session status, radio parameters, uplinks and raw AT passthrough.
package main

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/google/shlex"

	"lorawanunit-go/drivers/asr6501"
	"lorawanunit-go/transport"
)

const usage = `commands:
  status                 modem attach and join state
  join                   start a network join
  send <text>            confirmed uplink (UTF-8 text)
  sendhex <hex>          confirmed uplink (hex bytes)
  dr [0-4]               get or set data rate
  adr on|off             adaptive data rate
  txp [0-7]              get or set TX power index
  retries <type> <n>     retransmissions (type 0/1, n 1-15)
  rssi <band>            channel RSSI scan
  linkcheck <0|1|2>      MAC link check
  save | restore         persist or reset module config
  reboot                 restart the module
  raw <command>          bare AT command (without AT+ prefix)
  quit`

func main() {
	if len(os.Args) < 2 {
		log.Fatalf("usage: %s <serial-device> [baud]", os.Args[0])
	}
	baud := transport.DefaultBaud
	if len(os.Args) > 2 {
		b, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatalf("bad baud %q", os.Args[2])
		}
		baud = b
	}

	port, err := transport.Open(os.Args[1], baud)
	if err != nil {
		log.Fatalf("open %s: %v", os.Args[1], err)
	}
	defer port.Close()

	dev := asr6501.New(port, asr6501.Config{
		Debug: func(msg string) { fmt.Println("  #", msg) },
	})

	fmt.Println(usage)
	in := bufio.NewScanner(os.Stdin)
	for fmt.Print("> "); in.Scan(); fmt.Print("> ") {
		args, err := shlex.Split(in.Text())
		if err != nil {
			fmt.Println("parse error:", err)
			continue
		}
		if len(args) == 0 {
			continue
		}
		if args[0] == "quit" || args[0] == "exit" {
			return
		}
		if err := run(dev, args); err != nil {
			fmt.Println("error:", err)
		}
	}
}

func run(dev *asr6501.Device, args []string) error {
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "help":
		fmt.Println(usage)
		return nil

	case "status":
		attached, err := dev.Attached()
		if err != nil {
			return err
		}
		if !attached {
			fmt.Println("modem not attached")
			return nil
		}
		joined, err := dev.Connected()
		if err != nil {
			return err
		}
		fmt.Println("attached, joined:", joined)
		if dr, max, err := dev.DataRateInfo(); err == nil {
			fmt.Printf("DR%d, max payload %d bytes\n", dr, max)
		}
		return nil

	case "join":
		return dev.Join()

	case "send":
		if len(rest) == 0 {
			return fmt.Errorf("send needs a message")
		}
		return dev.Send([]byte(strings.Join(rest, " ")))

	case "sendhex":
		if len(rest) != 1 {
			return fmt.Errorf("sendhex needs one hex argument")
		}
		raw, err := hex.DecodeString(rest[0])
		if err != nil {
			return err
		}
		return dev.Send(raw)

	case "dr":
		if len(rest) == 0 {
			dr, max, err := dev.DataRateInfo()
			if err != nil {
				return err
			}
			fmt.Printf("DR%d, max payload %d bytes\n", dr, max)
			return nil
		}
		n, err := parseUint8(rest[0])
		if err != nil {
			return err
		}
		return dev.SetDataRate(n)

	case "adr":
		if len(rest) != 1 || (rest[0] != "on" && rest[0] != "off") {
			return fmt.Errorf("adr on|off")
		}
		return dev.SetADR(rest[0] == "on")

	case "txp":
		if len(rest) == 0 {
			idx, err := dev.TxPower()
			if err != nil {
				return err
			}
			fmt.Println("TX power index:", idx)
			return nil
		}
		n, err := parseUint8(rest[0])
		if err != nil {
			return err
		}
		return dev.SetTxPower(n)

	case "retries":
		if len(rest) != 2 {
			return fmt.Errorf("retries <type> <count>")
		}
		typ, err := parseUint8(rest[0])
		if err != nil {
			return err
		}
		n, err := parseUint8(rest[1])
		if err != nil {
			return err
		}
		return dev.SetRetries(typ, n)

	case "rssi":
		if len(rest) != 1 {
			return fmt.Errorf("rssi <band>")
		}
		band, err := parseUint8(rest[0])
		if err != nil {
			return err
		}
		values, err := dev.ChannelRSSI(band)
		if err != nil {
			return err
		}
		for ch, v := range values {
			fmt.Printf("ch%d: %d dBm\n", ch, v)
		}
		return nil

	case "linkcheck":
		if len(rest) != 1 {
			return fmt.Errorf("linkcheck <0|1|2>")
		}
		mode, err := parseUint8(rest[0])
		if err != nil {
			return err
		}
		rep, err := dev.LinkCheck(mode)
		if err != nil {
			return err
		}
		if rep != nil {
			fmt.Printf("margin %d dB, %d gateway(s), RSSI %d, SNR %d\n",
				rep.Margin, rep.Gateways, rep.RSSI, rep.SNR)
		}
		return nil

	case "save":
		return dev.SaveConfig()

	case "restore":
		return dev.RestoreDefaults()

	case "reboot":
		return dev.Reboot()

	case "raw":
		if len(rest) == 0 {
			return fmt.Errorf("raw <command>")
		}
		out, err := dev.RawCommand(strings.Join(rest, " "), 0)
		if err != nil {
			return err
		}
		if out != "" {
			fmt.Println(out)
		}
		return nil
	}
	return fmt.Errorf("unknown command %q (try help)", cmd)
}

func parseUint8(s string) (uint8, error) {
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return uint8(n), nil
}
