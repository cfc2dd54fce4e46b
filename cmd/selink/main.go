// selink talks to the secure element through a TCP model server or a UART
// bridge board.
//
// Usage:
//
//	selink [options] <command>
//
// Commands:
//
//	info        print chip mode, identification and certificate store
//	handshake   open a secure session and close it again
//	ping        open a secure session and echo --data through the chip
//	log         print the chip's firmware log
//	pubkey      print the public key of --key
//	list-ports  list USB serial devices
//	discover    list chip model servers announced via mDNS
//
// Example:
//
//	selink --key $(cat host.key) --slot 0 ping --data 68656c6c6f
package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/backkem/selink/pkg/certstore"
	"github.com/backkem/selink/pkg/crypto"
	"github.com/backkem/selink/pkg/discovery"
	"github.com/backkem/selink/pkg/link"
	"github.com/backkem/selink/pkg/model"
	"github.com/backkem/selink/pkg/port"
	"github.com/backkem/selink/pkg/securechannel"
	"github.com/pion/logging"
	"github.com/spf13/pflag"
)

var le = log.New(os.Stderr, "", 0)

type options struct {
	addr     string
	discover string
	uart     string
	baud     int
	backend  string
	key      string
	chipKey  string
	slot     uint8
	verify   bool
	data     string
	timeout  time.Duration
	verbose  bool
	factory  logging.LoggerFactory
	provider crypto.Provider
}

func main() {
	var opts options
	pflag.StringVar(&opts.addr, "addr", model.DefaultListenAddr, "TCP address of the chip model or bridge")
	pflag.StringVar(&opts.discover, "discover", "", "Find the model server via mDNS, by instance name or \"any\" (overrides --addr)")
	pflag.StringVar(&opts.uart, "uart", "", "Serial device of a UART bridge (overrides --addr)")
	pflag.IntVar(&opts.baud, "baud", port.DefaultBaudRate, "UART bits per second")
	pflag.StringVar(&opts.backend, "backend", crypto.DefaultBackend, "Crypto backend (std or xcrypto)")
	pflag.StringVarP(&opts.key, "key", "k", "", "Host pairing private key, 32 bytes hex")
	pflag.StringVar(&opts.chipKey, "chip-key", "", "Pin the chip's static public key, 32 bytes hex (default: read from certificate)")
	pflag.Uint8VarP(&opts.slot, "slot", "s", 0, "Pairing key slot (0-3)")
	pflag.BoolVar(&opts.verify, "verify", true, "Verify the certificate chain before the handshake")
	pflag.StringVarP(&opts.data, "data", "d", "", "Ping payload, hex")
	pflag.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Overall command timeout")
	pflag.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [options] info|handshake|ping|log|pubkey|list-ports|discover\n\n", os.Args[0])
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if pflag.NArg() != 1 {
		pflag.Usage()
		os.Exit(2)
	}

	factory := logging.NewDefaultLoggerFactory()
	factory.DefaultLogLevel = logging.LogLevelWarn
	if opts.verbose {
		factory.DefaultLogLevel = logging.LogLevelDebug
	}
	opts.factory = factory

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	if err := run(ctx, pflag.Arg(0), &opts); err != nil {
		le.Printf("%s: %v\n", pflag.Arg(0), err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command string, opts *options) error {
	switch command {
	case "list-ports":
		return listPorts()
	case "discover":
		return discover(ctx)
	case "info", "handshake", "ping", "log", "pubkey":
	default:
		pflag.Usage()
		return fmt.Errorf("unknown command %q", command)
	}

	p, err := crypto.New(opts.backend)
	if err != nil {
		return err
	}
	opts.provider = p

	if command == "pubkey" {
		return pubkey(opts)
	}

	s, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	switch command {
	case "info":
		return info(ctx, s, opts)
	case "handshake":
		if err := start(ctx, s, opts); err != nil {
			return err
		}
		fmt.Printf("secure session established on slot %d\n", opts.slot)
		return s.Abort(ctx)
	case "ping":
		return ping(ctx, s, opts)
	case "log":
		out, err := s.Link().GetLog(ctx)
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(out)
		return err
	}
	return nil
}

func open(ctx context.Context, opts *options) (*securechannel.Session, error) {
	var p port.Port
	var err error
	if opts.uart != "" {
		p, err = port.NewUART(port.UARTConfig{Device: opts.uart, BaudRate: opts.baud, LoggerFactory: opts.factory})
	} else {
		addr := opts.addr
		if opts.discover != "" {
			if addr, err = resolve(ctx, opts.discover); err != nil {
				return nil, err
			}
			le.Printf("using model server at %s\n", addr)
		}
		p, err = port.NewTCP(port.TCPConfig{Addr: addr, LoggerFactory: opts.factory})
	}
	if err != nil {
		return nil, err
	}

	return securechannel.Open(ctx, securechannel.Config{
		Link:          link.Config{Port: p},
		Provider:      opts.provider,
		LoggerFactory: opts.factory,
	})
}

func info(ctx context.Context, s *securechannel.Session, opts *options) error {
	l := s.Link()
	id, err := l.ChipID(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("mode:        %s\n", l.Mode())
	fmt.Printf("chip id:     %x\n", bytes.TrimRight(id, "\x00"))

	for _, obj := range []link.InfoObject{link.InfoRISCVFirmware, link.InfoSPECTFirmware} {
		fw, err := l.GetInfo(ctx, obj, 0)
		if err != nil {
			return err
		}
		fmt.Printf("%-12s %x\n", obj.String()+":", fw)
	}

	store, err := s.ReadCertStore(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("certificates: %d\n", store.Len())
	key, err := store.StaticPublicKey()
	if err != nil {
		return err
	}
	fmt.Printf("static key:  %x\n", key)

	switch err := store.VerifyChain(opts.provider); {
	case err == nil:
		fmt.Println("chain:       ok")
	case errors.Is(err, certstore.ErrUnsupportedAlgorithm):
		fmt.Printf("chain:       not checked (%v)\n", err)
	default:
		return err
	}
	return nil
}

func start(ctx context.Context, s *securechannel.Session, opts *options) error {
	hostKey, err := decodeKey(opts.key)
	if err != nil {
		return fmt.Errorf("--key: %w", err)
	}
	config := securechannel.StartConfig{
		HostPrivate: hostKey,
		PairingSlot: opts.slot,
		VerifyChain: opts.verify,
	}
	if opts.chipKey != "" {
		chipKey, err := decodeKey(opts.chipKey)
		if err != nil {
			return fmt.Errorf("--chip-key: %w", err)
		}
		config.ChipPublic = &chipKey
	}
	crypto.Erase(hostKey[:])
	return s.Start(ctx, config)
}

func ping(ctx context.Context, s *securechannel.Session, opts *options) error {
	data, err := hex.DecodeString(opts.data)
	if err != nil {
		return fmt.Errorf("--data: %w", err)
	}
	if err := start(ctx, s, opts); err != nil {
		return err
	}
	defer s.Abort(ctx)

	t0 := time.Now()
	echo, err := s.Ping(ctx, data)
	if err != nil {
		return err
	}
	if !bytes.Equal(echo, data) {
		return fmt.Errorf("echo mismatch: sent %x, got %x", data, echo)
	}
	fmt.Printf("%d bytes echoed in %s\n", len(echo), time.Since(t0).Round(time.Microsecond))
	return nil
}

func decodeKey(s string) ([crypto.X25519KeySize]byte, error) {
	var key [crypto.X25519KeySize]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return key, err
	}
	if len(b) != len(key) {
		return key, fmt.Errorf("want %d bytes, got %d", len(key), len(b))
	}
	copy(key[:], b)
	crypto.Erase(b)
	return key, nil
}

func pubkey(opts *options) error {
	key, err := decodeKey(opts.key)
	if err != nil {
		return fmt.Errorf("--key: %w", err)
	}
	defer crypto.Erase(key[:])
	pub, err := opts.provider.X25519Base(key[:])
	if err != nil {
		return err
	}
	fmt.Printf("%x\n", pub)
	return nil
}

func resolve(ctx context.Context, instance string) (string, error) {
	r, err := discovery.NewResolver(discovery.ResolverConfig{})
	if err != nil {
		return "", err
	}
	if instance != "any" {
		svc, err := r.Lookup(ctx, instance)
		if err != nil {
			return "", fmt.Errorf("lookup %s: %w", instance, err)
		}
		return svc.Addr()
	}
	found, err := r.Browse(ctx)
	if err != nil {
		return "", err
	}
	for _, svc := range found {
		if addr, err := svc.Addr(); err == nil {
			return addr, nil
		}
	}
	return "", discovery.ErrServiceNotFound
}

func discover(ctx context.Context) error {
	r, err := discovery.NewResolver(discovery.ResolverConfig{})
	if err != nil {
		return err
	}
	found, err := r.Browse(ctx)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		le.Printf("no model servers found\n")
		return nil
	}
	for _, svc := range found {
		addr, _ := svc.Addr()
		mode := discovery.ModeApplication
		if txt, err := svc.Model(); err == nil && txt.Maintenance {
			mode = discovery.ModeMaintenance
		}
		fmt.Printf("%s\t%s\t%s\n", svc.InstanceName, addr, mode)
	}
	return nil
}

func listPorts() error {
	ports, err := port.ListSerialPorts()
	if err != nil {
		return err
	}
	if len(ports) == 0 {
		le.Printf("no USB serial devices found\n")
		return nil
	}
	for _, p := range ports {
		fmt.Printf("%s\tserial=%s\tvid=%s\tpid=%s\n", p.Device, p.SerialNumber, p.VID, p.PID)
	}
	return nil
}
