package port

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pion/logging"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// DefaultBaudRate is the bridge board's default line speed.
const DefaultBaudRate = 115200

// UARTConfig configures a UART bridge port.
type UARTConfig struct {
	// Device is the serial device path, e.g. /dev/ttyACM0.
	Device string

	// BaudRate is the line speed.
	// Default: 115200
	BaudRate int

	// Rand overrides the randomness source. Default: crypto/rand.
	Rand io.Reader

	// LoggerFactory is the factory for creating loggers.
	// If nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validate checks the configuration.
func (c *UARTConfig) Validate() error {
	if c.Device == "" {
		return fmt.Errorf("%w: UART port needs a device", ErrInvalidConfig)
	}
	if c.BaudRate < 0 {
		return fmt.Errorf("%w: baud rate %d", ErrInvalidConfig, c.BaudRate)
	}
	return nil
}

func (c *UARTConfig) applyDefaults() {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
}

// UART is a Port that drives the chip through a USB-serial bridge board
// speaking the tagged protocol.
type UART struct {
	taggedPort
	config UARTConfig
}

// NewUART creates a UART port. The device is opened by Init.
func NewUART(config UARTConfig) (*UART, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	u := &UART{config: config}
	u.rand = config.Rand
	if config.LoggerFactory != nil {
		u.log = config.LoggerFactory.NewLogger("port-uart")
	}
	return u, nil
}

// Init opens the serial device.
func (u *UART) Init(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	sp, err := serial.Open(u.config.Device, &serial.Mode{BaudRate: u.config.BaudRate})
	if err != nil {
		return fmt.Errorf("open %s: %w", u.config.Device, err)
	}
	c := &taggedConn{
		rw: sp,
		setTimeout: func(d time.Duration) error {
			return sp.SetReadTimeout(d)
		},
	}
	if err := u.attach(c); err != nil {
		sp.Close()
		return err
	}
	if u.log != nil {
		u.log.Infof("opened %s at %d baud", u.config.Device, u.config.BaudRate)
	}
	return nil
}

// Verify UART implements Port.
var _ Port = (*UART)(nil)

// SerialPort describes a candidate bridge device.
type SerialPort struct {
	Device       string
	SerialNumber string
	VID, PID     string
}

// ListSerialPorts returns the USB serial devices present on the host.
func ListSerialPorts() ([]SerialPort, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("list serial ports: %w", err)
	}
	var ports []SerialPort
	for _, d := range details {
		if !d.IsUSB {
			continue
		}
		ports = append(ports, SerialPort{
			Device:       d.Name,
			SerialNumber: d.SerialNumber,
			VID:          d.VID,
			PID:          d.PID,
		})
	}
	return ports, nil
}
