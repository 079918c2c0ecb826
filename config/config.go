// Package config loads a connection description from YAML and turns it into hsmsss or secs1
// options.
//
// Example document:
//
//	protocol: hsms
//	host: 127.0.0.1
//	port: 5000
//	mode: active
//	role: host
//	device_id: 1
//	log:
//	  level: debug
//	  format: console
//	hsms:
//	  t3: 45s
//	  linktest_interval: 5s
//
// Durations use Go duration strings. Fields left out keep the package defaults.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/fabwire/go-secs/hsms"
	"github.com/fabwire/go-secs/hsmsss"
	"github.com/fabwire/go-secs/logger"
	"github.com/fabwire/go-secs/secs1"
	"gopkg.in/yaml.v3"
)

// Protocol names accepted in the protocol field.
const (
	ProtocolHSMS  = "hsms"
	ProtocolSECS1 = "secs1"
)

var (
	// ErrUnknownProtocol is returned for a protocol other than hsms or secs1.
	ErrUnknownProtocol = errors.New("config: unknown protocol")
	// ErrInvalidValue is returned for an unknown mode, role or log format.
	ErrInvalidValue = errors.New("config: invalid value")
)

// File is the root of a configuration document.
type File struct {
	Protocol    string `yaml:"protocol"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Mode        string `yaml:"mode"` // active | passive
	Role        string `yaml:"role"` // host | equipment
	DeviceID    uint16 `yaml:"device_id"`
	S9Reporting bool   `yaml:"s9_reporting"`

	Log   LogConfig   `yaml:"log"`
	HSMS  HSMSConfig  `yaml:"hsms"`
	SECS1 SECS1Config `yaml:"secs1"`
}

// LogConfig selects the logger backend.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"` // json | console | zerolog
	AddSource bool   `yaml:"add_source"`
}

// HSMSConfig holds the HSMS-SS timers.
type HSMSConfig struct {
	T3               *time.Duration `yaml:"t3"`
	T5               *time.Duration `yaml:"t5"`
	T6               *time.Duration `yaml:"t6"`
	T7               *time.Duration `yaml:"t7"`
	T8               *time.Duration `yaml:"t8"`
	LinktestInterval *time.Duration `yaml:"linktest_interval"`
	RebindInterval   *time.Duration `yaml:"rebind_interval"`
	ConnectTimeout   *time.Duration `yaml:"connect_timeout"`
	CloseTimeout     *time.Duration `yaml:"close_timeout"`
}

// SECS1Config holds the SECS-I timers and block protocol settings.
type SECS1Config struct {
	T1                 *time.Duration `yaml:"t1"`
	T2                 *time.Duration `yaml:"t2"`
	T3                 *time.Duration `yaml:"t3"`
	T4                 *time.Duration `yaml:"t4"`
	Retry              *int           `yaml:"retry"`
	Master             *bool          `yaml:"master"`
	DuplicateDetection *bool          `yaml:"duplicate_detection"`
	RebindInterval     *time.Duration `yaml:"rebind_interval"`
	ConnectTimeout     *time.Duration `yaml:"connect_timeout"`
	CloseTimeout       *time.Duration `yaml:"close_timeout"`
}

// Load reads and parses the file at path. LOG_LEVEL in the environment overrides log.level.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	f, err := Parse(data)
	if err != nil {
		return nil, err
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		f.Log.Level = level
	}

	return f, nil
}

// Parse parses a YAML document and checks the enumerated fields.
func Parse(data []byte) (*File, error) {
	f := &File{Protocol: ProtocolHSMS, Mode: "active", Role: "host"}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := f.validate(); err != nil {
		return nil, err
	}

	return f, nil
}

func (f *File) validate() error {
	switch f.Protocol {
	case ProtocolHSMS, ProtocolSECS1:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProtocol, f.Protocol)
	}

	if f.Mode != "active" && f.Mode != "passive" {
		return fmt.Errorf("%w: mode %q", ErrInvalidValue, f.Mode)
	}

	if f.Role != "host" && f.Role != "equipment" {
		return fmt.Errorf("%w: role %q", ErrInvalidValue, f.Role)
	}

	switch f.Log.Format {
	case "", "json", "console", "zerolog":
	default:
		return fmt.Errorf("%w: log format %q", ErrInvalidValue, f.Log.Format)
	}

	return nil
}

// Logger builds the logger described by the log section.
func (f *File) Logger() logger.Logger {
	level := logger.InfoLevel
	if f.Log.Level != "" {
		level = logger.ParseLevel(f.Log.Level)
	}

	switch f.Log.Format {
	case "zerolog":
		return logger.NewZerolog(os.Stderr, level)
	case "console":
		return logger.NewSlogWriter(os.Stderr, level, f.Log.AddSource, true)
	default:
		return logger.NewSlogWriter(os.Stderr, level, f.Log.AddSource, false)
	}
}

// HSMSOptions returns the hsmsss options described by the file.
func (f *File) HSMSOptions() []hsmsss.ConnOption {
	opts := []hsmsss.ConnOption{hsmsss.WithDeviceID(f.DeviceID), hsmsss.WithS9Reporting(f.S9Reporting)}

	if f.Mode == "passive" {
		opts = append(opts, hsmsss.WithPassive())
	} else {
		opts = append(opts, hsmsss.WithActive())
	}

	if f.Role == "equipment" {
		opts = append(opts, hsmsss.WithEquipRole())
	} else {
		opts = append(opts, hsmsss.WithHostRole())
	}

	c := f.HSMS
	opts = appendDuration(opts, c.T3, hsmsss.WithT3Timeout)
	opts = appendDuration(opts, c.T5, hsmsss.WithT5Timeout)
	opts = appendDuration(opts, c.T6, hsmsss.WithT6Timeout)
	opts = appendDuration(opts, c.T7, hsmsss.WithT7Timeout)
	opts = appendDuration(opts, c.T8, hsmsss.WithT8Timeout)
	opts = appendDuration(opts, c.LinktestInterval, hsmsss.WithLinktestInterval)
	opts = appendDuration(opts, c.RebindInterval, hsmsss.WithRebindInterval)
	opts = appendDuration(opts, c.ConnectTimeout, hsmsss.WithConnectRemoteTimeout)
	opts = appendDuration(opts, c.CloseTimeout, hsmsss.WithCloseConnTimeout)

	return opts
}

// SECS1Options returns the secs1 options described by the file.
func (f *File) SECS1Options() []secs1.ConnOption {
	opts := []secs1.ConnOption{secs1.WithDeviceID(f.DeviceID), secs1.WithS9Reporting(f.S9Reporting)}

	if f.Mode == "passive" {
		opts = append(opts, secs1.WithPassive())
	} else {
		opts = append(opts, secs1.WithActive())
	}

	if f.Role == "equipment" {
		opts = append(opts, secs1.WithEquipRole())
	} else {
		opts = append(opts, secs1.WithHostRole())
	}

	c := f.SECS1
	opts = appendDuration(opts, c.T1, secs1.WithT1Timeout)
	opts = appendDuration(opts, c.T2, secs1.WithT2Timeout)
	opts = appendDuration(opts, c.T3, secs1.WithT3Timeout)
	opts = appendDuration(opts, c.T4, secs1.WithT4Timeout)
	opts = appendDuration(opts, c.RebindInterval, secs1.WithRebindInterval)
	opts = appendDuration(opts, c.ConnectTimeout, secs1.WithConnectTimeout)
	opts = appendDuration(opts, c.CloseTimeout, secs1.WithCloseTimeout)

	if c.Retry != nil {
		opts = append(opts, secs1.WithRetryCount(*c.Retry))
	}
	if c.Master != nil {
		opts = append(opts, secs1.WithMaster(*c.Master))
	}
	if c.DuplicateDetection != nil {
		opts = append(opts, secs1.WithDuplicateDetection(*c.DuplicateDetection))
	}

	return opts
}

func appendDuration[T any](opts []T, d *time.Duration, opt func(time.Duration) T) []T {
	if d == nil {
		return opts
	}

	return append(opts, opt(*d))
}

// NewConnection creates the connection described by the file, with l as its logger.
func (f *File) NewConnection(ctx context.Context, l logger.Logger) (hsms.Connection, error) {
	if f.Protocol == ProtocolSECS1 {
		cfg, err := secs1.NewConnectionConfig(f.Host, f.Port, append(f.SECS1Options(), secs1.WithLogger(l))...)
		if err != nil {
			return nil, err
		}

		conn, err := secs1.NewConnection(ctx, cfg)
		if err != nil {
			return nil, err
		}

		return conn, nil
	}

	cfg, err := hsmsss.NewConnectionConfig(f.Host, f.Port, append(f.HSMSOptions(), hsmsss.WithLogger(l))...)
	if err != nil {
		return nil, err
	}

	conn, err := hsmsss.NewConnection(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return conn, nil
}
