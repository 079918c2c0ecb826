package secs1

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/fabwire/go-secs/hsms"
	"github.com/fabwire/go-secs/logger"
)

// Default protocol parameters.
const (
	DefaultT1Timeout  = 1 * time.Second
	DefaultT2Timeout  = 15 * time.Second
	DefaultT3Timeout  = 45 * time.Second
	DefaultT4Timeout  = 45 * time.Second
	DefaultRetryCount = 3

	DefaultConnectTimeout = 3 * time.Second
	DefaultCloseTimeout   = 3 * time.Second
	DefaultRebindInterval = 5 * time.Second
)

// Ranges of the protocol parameters.
const (
	MinT1Timeout = 100 * time.Millisecond
	MaxT1Timeout = 10 * time.Second

	MinT2Timeout = 200 * time.Millisecond
	MaxT2Timeout = 25 * time.Second

	MinT3Timeout = 1 * time.Second
	MaxT3Timeout = 120 * time.Second

	MinT4Timeout = 1 * time.Second
	MaxT4Timeout = 120 * time.Second

	MaxRetryCount = 31

	MaxDeviceID = 0x7FFF
)

// ConnectionConfig holds the configuration of a SECS-I connection carried over TCP/IP.
type ConnectionConfig struct {
	host string
	port int

	deviceID uint16
	isActive bool
	isEquip  bool
	// nil means the equipment role is master
	master *bool

	t1Timeout  time.Duration
	t2Timeout  time.Duration
	t3Timeout  time.Duration
	t4Timeout  time.Duration
	retryCount int

	connectTimeout time.Duration
	closeTimeout   time.Duration
	rebindInterval time.Duration

	duplicateDetection bool
	s9Reporting        bool

	logger logger.Logger
	tracer logger.Tracer
}

// NewConnectionConfig creates a SECS-I configuration for the remote (active) or bind (passive)
// address host:port. Options are applied in order after the defaults.
func NewConnectionConfig(host string, port int, opts ...ConnOption) (*ConnectionConfig, error) {
	cfg := &ConnectionConfig{
		isActive:           true,
		t1Timeout:          DefaultT1Timeout,
		t2Timeout:          DefaultT2Timeout,
		t3Timeout:          DefaultT3Timeout,
		t4Timeout:          DefaultT4Timeout,
		retryCount:         DefaultRetryCount,
		connectTimeout:     DefaultConnectTimeout,
		closeTimeout:       DefaultCloseTimeout,
		rebindInterval:     DefaultRebindInterval,
		duplicateDetection: true,
		logger:             logger.GetLogger(),
	}

	if err := cfg.setHost(host); err != nil {
		return nil, err
	}
	if err := cfg.setPort(port); err != nil {
		return nil, err
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.tracer == nil {
		cfg.tracer = logger.NewTracer(cfg.logger)
	}

	return cfg, nil
}

func (cfg *ConnectionConfig) setHost(host string) error {
	if host == "" {
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

	return fmt.Errorf("secs1: invalid host %q", host)
}

func (cfg *ConnectionConfig) setPort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("secs1: port %d out of range [0, 65535]", port)
	}
	cfg.port = port

	return nil
}

// Address returns host:port.
func (cfg *ConnectionConfig) Address() string {
	return net.JoinHostPort(cfg.host, strconv.Itoa(cfg.port))
}

// DeviceID returns the 15-bit device id.
func (cfg *ConnectionConfig) DeviceID() uint16 { return cfg.deviceID }

// IsActive reports whether the connection dials the remote.
func (cfg *ConnectionConfig) IsActive() bool { return cfg.isActive }

// IsEquip reports whether this end is the equipment.
func (cfg *ConnectionConfig) IsEquip() bool { return cfg.isEquip }

// IsMaster reports whether this end wins line contention. Unless set with WithMaster, the
// equipment is master and the host is slave.
func (cfg *ConnectionConfig) IsMaster() bool {
	if cfg.master != nil {
		return *cfg.master
	}

	return cfg.isEquip
}

// RetryCount returns the number of retries per block.
func (cfg *ConnectionConfig) RetryCount() int { return cfg.retryCount }

// ConnOption is a functional option for configuring a ConnectionConfig.
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
		return fmt.Errorf("secs1: %s: %w", c.name, err)
	}

	return nil
}

func newConnOptFunc(name string, f func(*ConnectionConfig) error) *connOptFunc {
	return &connOptFunc{name: name, applyFunc: f}
}

// WithActive makes the connection dial the remote. It is the default.
func WithActive() ConnOption {
	return newConnOptFunc("WithActive", func(cfg *ConnectionConfig) error {
		cfg.isActive = true
		return nil
	})
}

// WithPassive makes the connection listen and accept one remote.
func WithPassive() ConnOption {
	return newConnOptFunc("WithPassive", func(cfg *ConnectionConfig) error {
		cfg.isActive = false
		return nil
	})
}

// WithEquipRole configures this end as equipment: outgoing blocks carry the R-bit and the
// end is master unless WithMaster says otherwise.
func WithEquipRole() ConnOption {
	return newConnOptFunc("WithEquipRole", func(cfg *ConnectionConfig) error {
		cfg.isEquip = true
		return nil
	})
}

// WithHostRole configures this end as host. It is the default.
func WithHostRole() ConnOption {
	return newConnOptFunc("WithHostRole", func(cfg *ConnectionConfig) error {
		cfg.isEquip = false
		return nil
	})
}

// WithMaster sets the contention role independently of the equipment/host role.
func WithMaster(master bool) ConnOption {
	return newConnOptFunc("WithMaster", func(cfg *ConnectionConfig) error {
		cfg.master = &master
		return nil
	})
}

// WithDeviceID sets the 15-bit device id.
func WithDeviceID(id uint16) ConnOption {
	return newConnOptFunc("WithDeviceID", func(cfg *ConnectionConfig) error {
		if id > MaxDeviceID {
			return fmt.Errorf("device id %d out of range [0, %d]", id, MaxDeviceID)
		}
		cfg.deviceID = id

		return nil
	})
}

func durationOption(name string, minVal, maxVal time.Duration, dst func(*ConnectionConfig) *time.Duration, val time.Duration) ConnOption {
	return newConnOptFunc(name, func(cfg *ConnectionConfig) error {
		if val < minVal || val > maxVal {
			return fmt.Errorf("%v out of range [%v, %v]", val, minVal, maxVal)
		}
		*dst(cfg) = val

		return nil
	})
}

// WithT1Timeout sets the inter-character timeout.
func WithT1Timeout(d time.Duration) ConnOption {
	return durationOption("WithT1Timeout", MinT1Timeout, MaxT1Timeout,
		func(c *ConnectionConfig) *time.Duration { return &c.t1Timeout }, d)
}

// WithT2Timeout sets the protocol timeout for EOT and ACK.
func WithT2Timeout(d time.Duration) ConnOption {
	return durationOption("WithT2Timeout", MinT2Timeout, MaxT2Timeout,
		func(c *ConnectionConfig) *time.Duration { return &c.t2Timeout }, d)
}

// WithT3Timeout sets the reply timeout.
func WithT3Timeout(d time.Duration) ConnOption {
	return durationOption("WithT3Timeout", MinT3Timeout, MaxT3Timeout,
		func(c *ConnectionConfig) *time.Duration { return &c.t3Timeout }, d)
}

// WithT4Timeout sets the inter-block timeout.
func WithT4Timeout(d time.Duration) ConnOption {
	return durationOption("WithT4Timeout", MinT4Timeout, MaxT4Timeout,
		func(c *ConnectionConfig) *time.Duration { return &c.t4Timeout }, d)
}

// WithConnectTimeout bounds one dial of the active role.
func WithConnectTimeout(d time.Duration) ConnOption {
	return durationOption("WithConnectTimeout", time.Millisecond, 30*time.Second,
		func(c *ConnectionConfig) *time.Duration { return &c.connectTimeout }, d)
}

// WithCloseTimeout bounds Close.
func WithCloseTimeout(d time.Duration) ConnOption {
	return durationOption("WithCloseTimeout", time.Millisecond, 30*time.Second,
		func(c *ConnectionConfig) *time.Duration { return &c.closeTimeout }, d)
}

// WithRebindInterval sets the wait before the passive role listens again after a failure.
func WithRebindInterval(d time.Duration) ConnOption {
	return durationOption("WithRebindInterval", time.Millisecond, 10*time.Minute,
		func(c *ConnectionConfig) *time.Duration { return &c.rebindInterval }, d)
}

// WithRetryCount sets how often a block, or the ENQ before it, is sent again after a T2 timeout
// or a NAK before the message fails.
func WithRetryCount(n int) ConnOption {
	return newConnOptFunc("WithRetryCount", func(cfg *ConnectionConfig) error {
		if n < 0 || n > MaxRetryCount {
			return fmt.Errorf("retry count %d out of range [0, %d]", n, MaxRetryCount)
		}
		cfg.retryCount = n

		return nil
	})
}

// WithDuplicateDetection turns detection of retransmitted blocks on or off. It is on by default.
func WithDuplicateDetection(enabled bool) ConnOption {
	return newConnOptFunc("WithDuplicateDetection", func(cfg *ConnectionConfig) error {
		cfg.duplicateDetection = enabled
		return nil
	})
}

// WithS9Reporting enables Stream 9 error reports in the equipment role: S9F7 for an
// undecodable message, S9F1 for a foreign device id and S9F9 for a T3 timeout.
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
