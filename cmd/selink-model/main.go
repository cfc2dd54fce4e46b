// selink-model runs a software model of the secure element behind the
// tagged TCP protocol, so that selink and the integration tests can run
// without hardware.
//
// Usage:
//
//	selink-model [--listen addr] [--pairing-key slot=hex]... [--maintenance] [--advertise]
package main

import (
	"encoding/hex"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/backkem/selink/pkg/crypto"
	"github.com/backkem/selink/pkg/discovery"
	"github.com/backkem/selink/pkg/model"
	"github.com/pion/logging"
	"github.com/spf13/pflag"
)

var le = log.New(os.Stderr, "", 0)

func main() {
	var listen string
	var pairingKeys []string
	var maintenance, noLog, advertise, verbose bool
	pflag.StringVarP(&listen, "listen", "l", model.DefaultListenAddr, "TCP address to listen on")
	pflag.StringArrayVarP(&pairingKeys, "pairing-key", "p", nil, "Preload a pairing slot with a host public key, slot=hex (repeatable)")
	pflag.BoolVar(&maintenance, "maintenance", false, "Start in maintenance firmware")
	pflag.BoolVar(&noLog, "no-log", false, "Disable the firmware log (GET_LOG answers RESP_DISABLED)")
	pflag.BoolVar(&advertise, "advertise", false, "Announce the server via mDNS as "+discovery.ServiceModel)
	pflag.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	pflag.Parse()

	if pflag.NArg() != 0 {
		pflag.Usage()
		os.Exit(2)
	}

	keys, err := parsePairingKeys(pairingKeys)
	if err != nil {
		le.Printf("--pairing-key: %v\n", err)
		os.Exit(2)
	}

	factory := logging.NewDefaultLoggerFactory()
	factory.DefaultLogLevel = logging.LogLevelInfo
	if verbose {
		factory.DefaultLogLevel = logging.LogLevelDebug
	}

	chip, err := model.New(model.Config{
		PairingKeys:   keys,
		Maintenance:   maintenance,
		LogDisabled:   noLog,
		LoggerFactory: factory,
	})
	if err != nil {
		le.Printf("model: %v\n", err)
		os.Exit(1)
	}

	srv, err := model.NewServer(model.ServerConfig{
		Chip:          chip,
		ListenAddr:    listen,
		LoggerFactory: factory,
	})
	if err != nil {
		le.Printf("server: %v\n", err)
		os.Exit(1)
	}
	if err := srv.Start(); err != nil {
		le.Printf("server: %v\n", err)
		os.Exit(1)
	}

	pub := chip.StaticPublicKey()
	le.Printf("listening on %s\n", srv.Addr())
	le.Printf("chip static key %x\n", pub)

	if advertise {
		adv, err := startAdvertiser(chip, srv.Addr(), factory)
		if err != nil {
			le.Printf("advertise: %v\n", err)
			srv.Stop()
			os.Exit(1)
		}
		defer adv.Close()
		le.Printf("advertising as %s\n", adv.Instance())
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	le.Printf("got %s, shutting down\n", sig)

	if err := srv.Stop(); err != nil {
		le.Printf("stop: %v\n", err)
	}
}

func startAdvertiser(chip *model.Chip, addr net.Addr, factory logging.LoggerFactory) (*discovery.Advertiser, error) {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil, fmt.Errorf("listener address %s is not TCP", addr)
	}
	adv, err := discovery.NewAdvertiser(discovery.AdvertiserConfig{
		Port:          tcp.Port,
		LoggerFactory: factory,
	})
	if err != nil {
		return nil, err
	}
	err = adv.Start(discovery.ModelTXT{
		ChipID:      chip.ChipID(),
		Firmware:    chip.FirmwareVersion(),
		Maintenance: chip.Maintenance(),
	})
	if err != nil {
		return nil, err
	}
	return adv, nil
}

func parsePairingKeys(args []string) (map[uint8][crypto.X25519KeySize]byte, error) {
	keys := make(map[uint8][crypto.X25519KeySize]byte, len(args))
	for _, arg := range args {
		slotStr, keyHex, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("%q: want slot=hex", arg)
		}
		slot, err := strconv.ParseUint(slotStr, 10, 8)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", arg, err)
		}
		b, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", arg, err)
		}
		var key [crypto.X25519KeySize]byte
		if len(b) != len(key) {
			return nil, fmt.Errorf("%q: want %d key bytes, got %d", arg, len(key), len(b))
		}
		copy(key[:], b)
		keys[uint8(slot)] = key
	}
	return keys, nil
}
