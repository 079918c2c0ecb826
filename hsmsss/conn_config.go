package hsmsss

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/fabwire/go-secs/hsms"
	"github.com/fabwire/go-secs/logger"
)

// ConnectionConfig represents the configuration parameters for an HSMS-SS (Single Session) connection.
type ConnectionConfig struct {
	// host is the remote host for the active role, the listen address for the passive role.
	// An empty host listens on all interfaces.
	host string
	// port is the TCP port. Port 0 lets the passive role pick a free port.
	port int

	// deviceID is the session id of outgoing data messages. Defaults to 0.
	deviceID uint16

	// isEquip indicates the equipment role (true) or host role (false). Defaults to host.
	isEquip bool
	// isActive indicates the active (connecting) or passive (listening) role. Defaults to active.
	isActive bool

	// t3Timeout is the reply timeout. Defaults to 45 seconds.
	t3Timeout time.Duration
	// t5Timeout is the connect separation time between two connect attempts. Defaults to 10 seconds.
	t5Timeout time.Duration
	// t6Timeout is the control transaction timeout. Defaults to 5 seconds.
	t6Timeout time.Duration
	// t7Timeout is the not-selected timeout. Defaults to 10 seconds.
	t7Timeout time.Duration
	// t8Timeout is the network inter-character timeout. It also bounds every write.
	// Defaults to 5 seconds.
	t8Timeout time.Duration

	// linktestInterval is the heartbeat period of the active role once selected. Zero disables
	// the heartbeat. Defaults to 5 seconds.
	linktestInterval time.Duration

	// rebindInterval is the wait before the passive role listens again after a listen failure.
	// Defaults to 5 seconds.
	rebindInterval time.Duration

	// connectRemoteTimeout bounds one dial of the active role. Defaults to 3 seconds.
	connectRemoteTimeout time.Duration

	// closeConnTimeout bounds Close. Defaults to 3 seconds.
	closeConnTimeout time.Duration

	// s9Reporting enables Stream 9 error reports from the equipment role.
	s9Reporting bool

	logger logger.Logger
	tracer logger.Tracer
}

// NewConnectionConfig creates a new HSMS-SS connection configuration with the given host, port number
// and options. Options are applied in order after the defaults.
func NewConnectionConfig(host string, port int, opts ...ConnOption) (*ConnectionConfig, error) {
	cfg := &ConnectionConfig{
		isActive:             true,
		t3Timeout:            45 * time.Second,
		t5Timeout:            10 * time.Second,
		t6Timeout:            5 * time.Second,
		t7Timeout:            10 * time.Second,
		t8Timeout:            5 * time.Second,
		linktestInterval:     5 * time.Second,
		rebindInterval:       5 * time.Second,
		connectRemoteTimeout: 3 * time.Second,
		closeConnTimeout:     3 * time.Second,
		logger:               logger.GetLogger(),
	}

	if err := withRemoteHost(host).apply(cfg); err != nil {
		return cfg, err
	}

	if err := withPort(port).apply(cfg); err != nil {
		return cfg, err
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return cfg, err
		}
	}

	if cfg.tracer == nil {
		cfg.tracer = logger.NewTracer(cfg.logger)
	}

	return cfg, nil
}

// Address returns host:port.
func (cfg *ConnectionConfig) Address() string {
	return net.JoinHostPort(cfg.host, fmt.Sprint(cfg.port))
}

// DeviceID returns the configured device id.
func (cfg *ConnectionConfig) DeviceID() uint16 { return cfg.deviceID }

// IsEquip reports whether the connection acts as equipment.
func (cfg *ConnectionConfig) IsEquip() bool { return cfg.isEquip }

// IsActive reports whether the connection dials the remote.
func (cfg *ConnectionConfig) IsActive() bool { return cfg.isActive }

// ConnOption represents a functional option for configuring a ConnectionConfig.
type ConnOption interface {
	apply(*ConnectionConfig) error
}

type connOptFunc struct {
	name      string
	applyFunc func(*ConnectionConfig) error
}

func (c *connOptFunc) apply(cfg *ConnectionConfig) error {
	if cfg == nil {
		return hsms.ErrConnConfigNil
	}

	if err := c.applyFunc(cfg); err != nil {
		return fmt.Errorf("%s: %w", c.name, err)
	}

	return nil
}

func newConnOptFunc(name string, f func(*ConnectionConfig) error) *connOptFunc {
	return &connOptFunc{name: name, applyFunc: f}
}

func withRemoteHost(host string) ConnOption {
	return newConnOptFunc("withRemoteHost", func(cfg *ConnectionConfig) error {
		if host == "" {
			cfg.host = host
			return nil
		}

		if ip := net.ParseIP(host); ip != nil {
			cfg.host = host
			return nil
		}

		host = strings.Trim(host, ".")
		if _, err := net.LookupHost(host); err == nil {
			cfg.host = host
			return nil
		}

		return errors.New("invalid host")
	})
}

func withPort(port int) ConnOption {
	return newConnOptFunc("withPort", func(cfg *ConnectionConfig) error {
		if port < 0 || port > 65535 {
			return errors.New("port is out of range [0, 65535]")
		}
		cfg.port = port

		return nil
	})
}

// WithDeviceID sets the device id carried by outgoing data messages.
func WithDeviceID(id uint16) ConnOption {
	return newConnOptFunc("WithDeviceID", func(cfg *ConnectionConfig) error {
		cfg.deviceID = id
		return nil
	})
}

// WithEquipRole sets the connection as equipment role. The default role is host.
func WithEquipRole() ConnOption {
	return newConnOptFunc("WithEquipRole", func(cfg *ConnectionConfig) error {
		cfg.isEquip = true
		return nil
	})
}

// WithHostRole sets the connection as host role.
func WithHostRole() ConnOption {
	return newConnOptFunc("WithHostRole", func(cfg *ConnectionConfig) error {
		cfg.isEquip = false
		return nil
	})
}

// WithActive sets the connection mode to active. The default mode is active.
func WithActive() ConnOption {
	return newConnOptFunc("WithActive", func(cfg *ConnectionConfig) error {
		cfg.isActive = true
		return nil
	})
}

// WithPassive sets the connection mode to passive.
func WithPassive() ConnOption {
	return newConnOptFunc("WithPassive", func(cfg *ConnectionConfig) error {
		cfg.isActive = false
		return nil
	})
}

func timeoutOption(name string, maxVal time.Duration, dst func(*ConnectionConfig) *time.Duration, val time.Duration) ConnOption {
	return newConnOptFunc(name, func(cfg *ConnectionConfig) error {
		if val <= 0 || val > maxVal {
			return fmt.Errorf("timeout %v out of range (0, %v]", val, maxVal)
		}
		*dst(cfg) = val

		return nil
	})
}

// WithT3Timeout sets the reply timeout (T3), at most 120 seconds.
func WithT3Timeout(val time.Duration) ConnOption {
	return timeoutOption("WithT3Timeout", 120*time.Second, func(c *ConnectionConfig) *time.Duration { return &c.t3Timeout }, val)
}

// WithT5Timeout sets the connect separation time (T5), at most 240 seconds.
func WithT5Timeout(val time.Duration) ConnOption {
	return timeoutOption("WithT5Timeout", 240*time.Second, func(c *ConnectionConfig) *time.Duration { return &c.t5Timeout }, val)
}

// WithT6Timeout sets the control transaction timeout (T6), at most 240 seconds.
func WithT6Timeout(val time.Duration) ConnOption {
	return timeoutOption("WithT6Timeout", 240*time.Second, func(c *ConnectionConfig) *time.Duration { return &c.t6Timeout }, val)
}

// WithT7Timeout sets the not-selected timeout (T7), at most 240 seconds.
func WithT7Timeout(val time.Duration) ConnOption {
	return timeoutOption("WithT7Timeout", 240*time.Second, func(c *ConnectionConfig) *time.Duration { return &c.t7Timeout }, val)
}

// WithT8Timeout sets the network inter-character timeout (T8), at most 120 seconds.
func WithT8Timeout(val time.Duration) ConnOption {
	return timeoutOption("WithT8Timeout", 120*time.Second, func(c *ConnectionConfig) *time.Duration { return &c.t8Timeout }, val)
}

// WithConnectRemoteTimeout bounds one dial of the active role, at most 30 seconds.
func WithConnectRemoteTimeout(val time.Duration) ConnOption {
	return timeoutOption("WithConnectRemoteTimeout", 30*time.Second, func(c *ConnectionConfig) *time.Duration { return &c.connectRemoteTimeout }, val)
}

// WithCloseConnTimeout bounds Close, at most 30 seconds.
func WithCloseConnTimeout(val time.Duration) ConnOption {
	return timeoutOption("WithCloseConnTimeout", 30*time.Second, func(c *ConnectionConfig) *time.Duration { return &c.closeConnTimeout }, val)
}

// WithRebindInterval sets the wait before the passive role listens again after a failure.
func WithRebindInterval(val time.Duration) ConnOption {
	return timeoutOption("WithRebindInterval", 10*time.Minute, func(c *ConnectionConfig) *time.Duration { return &c.rebindInterval }, val)
}

// WithLinktestInterval sets the heartbeat period of the active role. Zero disables it.
func WithLinktestInterval(interval time.Duration) ConnOption {
	return newConnOptFunc("WithLinktestInterval", func(cfg *ConnectionConfig) error {
		if interval < 0 {
			return errors.New("linktest interval must not be negative")
		}
		cfg.linktestInterval = interval

		return nil
	})
}

// WithS9Reporting enables Stream 9 error reports. It only has an effect in the equipment role:
// an undecodable data message is answered with S9F7, a message for another device id with
// S9F1 and a T3 timeout with S9F9.
func WithS9Reporting(enabled bool) ConnOption {
	return newConnOptFunc("WithS9Reporting", func(cfg *ConnectionConfig) error {
		cfg.s9Reporting = enabled
		return nil
	})
}

// WithLogger sets the logger. The default is logger.GetLogger().
func WithLogger(l logger.Logger) ConnOption {
	return newConnOptFunc("WithLogger", func(cfg *ConnectionConfig) error {
		if l == nil {
			return errors.New("logger is nil")
		}
		cfg.logger = l

		return nil
	})
}

// WithTracer sets the protocol trace sink. The default traces to the logger at debug level.
func WithTracer(t logger.Tracer) ConnOption {
	return newConnOptFunc("WithTracer", func(cfg *ConnectionConfig) error {
		if t == nil {
			return errors.New("tracer is nil")
		}
		cfg.tracer = t

		return nil
	})
}
