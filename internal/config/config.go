package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf"
	kyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/rigd/internal/hw/stepper"
	"github.com/cjeanneret/rigd/internal/logic/axis"
	"github.com/cjeanneret/rigd/internal/logic/coupling"
	"github.com/cjeanneret/rigd/internal/logic/geometry"
	"github.com/cjeanneret/rigd/internal/logic/joystick"
	"github.com/cjeanneret/rigd/internal/logic/motion"
)

// MaxConfigFileBytes bounds the size of a config file.
const MaxConfigFileBytes = 64 << 10

// EnvPrefix selects the environment variables that override the file.
// RIGD_SERVER__OSC_LISTEN sets server.osc_listen.
const EnvPrefix = "RIGD_"

// AxisConfig holds the wiring and kinematic limits of one axis.
type AxisConfig struct {
	StepPin       int     `koanf:"step_pin" yaml:"step_pin"`
	DirPin        int     `koanf:"dir_pin" yaml:"dir_pin"`
	EnablePin     int     `koanf:"enable_pin" yaml:"enable_pin"` // BCM. 0 = not used. Active LOW.
	StepsPerRev   int     `koanf:"steps_per_rev" yaml:"steps_per_rev"`
	Microstepping int     `koanf:"microstepping" yaml:"microstepping"`
	GearRatio     float64 `koanf:"gear_ratio" yaml:"gear_ratio"` // motor turns per output turn
	MinLimit      int64   `koanf:"min_limit" yaml:"min_limit"`   // steps
	MaxLimit      int64   `koanf:"max_limit" yaml:"max_limit"`   // steps
	MaxSpeed      float64 `koanf:"max_speed" yaml:"max_speed"`   // steps/s
	MaxAccel      float64 `koanf:"max_accel" yaml:"max_accel"`   // steps/s²
}

// JoystickConfig holds the conditioner tuning and jog speeds at startup.
// Everything except the jog speeds can be changed at runtime.
type JoystickConfig struct {
	Deadzone        float64 `koanf:"deadzone" yaml:"deadzone"`
	Expo            float64 `koanf:"expo" yaml:"expo"`
	Slew            float64 `koanf:"slew" yaml:"slew"`           // offset steps/s, 0 = unlimited
	CutoffHz        float64 `koanf:"cutoff_hz" yaml:"cutoff_hz"` // 0 = no low-pass
	PanOffsetRange  int64   `koanf:"pan_offset_range" yaml:"pan_offset_range"`
	TiltOffsetRange int64   `koanf:"tilt_offset_range" yaml:"tilt_offset_range"`
	PanJogSpeed     float64 `koanf:"pan_jog_speed" yaml:"pan_jog_speed"`     // steps/s at full deflection
	TiltJogSpeed    float64 `koanf:"tilt_jog_speed" yaml:"tilt_jog_speed"`   // steps/s at full deflection
	SlideJogSpeed   float64 `koanf:"slide_jog_speed" yaml:"slide_jog_speed"` // steps/s at full deflection
}

// CouplingConfig holds the slide-to-pan/tilt compensation endpoints.
type CouplingConfig struct {
	PanAtSlideMin  int64 `koanf:"pan_at_slide_min" yaml:"pan_at_slide_min"`
	PanAtSlideMax  int64 `koanf:"pan_at_slide_max" yaml:"pan_at_slide_max"`
	TiltAtSlideMin int64 `koanf:"tilt_at_slide_min" yaml:"tilt_at_slide_min"`
	TiltAtSlideMax int64 `koanf:"tilt_at_slide_max" yaml:"tilt_at_slide_max"`
}

// ServerConfig holds the network endpoints and loop rates.
type ServerConfig struct {
	OSCListen     string `koanf:"osc_listen" yaml:"osc_listen"`           // UDP host:port for commands
	WebListen     string `koanf:"web_listen" yaml:"web_listen"`           // HTTP host:port for status. Empty disables.
	TickHz        int    `koanf:"tick_hz" yaml:"tick_hz"`                 // control loop rate
	StepperHz     int    `koanf:"stepper_hz" yaml:"stepper_hz"`           // pulse loop rate
	PositionLogMs int    `koanf:"position_log_ms" yaml:"position_log_ms"` // 0 disables the position log
	StatusMs      int    `koanf:"status_ms" yaml:"status_ms"`             // status push period to web clients
}

// DefaultsConfig contains generic runtime parameters.
type DefaultsConfig struct {
	Presets    int  `koanf:"presets" yaml:"presets"`         // preset slots, at least 8
	DebugLevel int  `koanf:"debug_level" yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockGPIO   bool `koanf:"mock_gpio" yaml:"mock_gpio"`     // use mock GPIO (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Pan      AxisConfig     `koanf:"pan" yaml:"pan"`
	Tilt     AxisConfig     `koanf:"tilt" yaml:"tilt"`
	Zoom     AxisConfig     `koanf:"zoom" yaml:"zoom"`
	Slide    AxisConfig     `koanf:"slide" yaml:"slide"`
	Joystick JoystickConfig `koanf:"joystick" yaml:"joystick"`
	Coupling CouplingConfig `koanf:"coupling" yaml:"coupling"`
	Server   ServerConfig   `koanf:"server" yaml:"server"`
	Defaults DefaultsConfig `koanf:"defaults" yaml:"defaults"`
}

func defaultAxis(step, dir, enable int, limit int64) AxisConfig {
	return AxisConfig{
		StepPin:       step,
		DirPin:        dir,
		EnablePin:     enable,
		StepsPerRev:   200,
		Microstepping: 16,
		GearRatio:     1,
		MinLimit:      -limit,
		MaxLimit:      limit,
		MaxSpeed:      20000,
		MaxAccel:      8000,
	}
}

// Default returns the factory configuration of the rig.
func Default() Config {
	return Config{
		Pan:   defaultAxis(17, 27, 5, 10000),
		Tilt:  defaultAxis(22, 23, 6, 10000),
		Zoom:  defaultAxis(24, 25, 12, 20000),
		Slide: defaultAxis(20, 21, 16, 20000),
		Joystick: JoystickConfig{
			Deadzone:        joystick.DefaultValues.Deadzone,
			Expo:            joystick.DefaultValues.Expo,
			Slew:            joystick.DefaultValues.Slew,
			CutoffHz:        joystick.DefaultValues.CutoffHz,
			PanOffsetRange:  800,
			TiltOffsetRange: 800,
			PanJogSpeed:     3000,
			TiltJogSpeed:    3000,
			SlideJogSpeed:   6000,
		},
		Server: ServerConfig{
			OSCListen:     ":8000",
			WebListen:     ":8080",
			TickHz:        200,
			StepperHz:     2000,
			PositionLogMs: 500,
			StatusMs:      100,
		},
		Defaults: DefaultsConfig{
			Presets:  8,
			MockGPIO: true,
		},
	}
}

// ValidateConfigPath checks that path names a .yaml file inside a configs/
// directory, without traversal components.
func ValidateConfigPath(path string) error {
	if path == "" {
		return fmt.Errorf("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config file %q must have a .yaml extension", path)
	}
	if filepath.Base(filepath.Dir(clean)) != "configs" {
		return fmt.Errorf("config file %q must be in a configs/ directory", path)
	}
	return nil
}

// Load builds the configuration from the defaults, the YAML file at path
// (skipped when path is empty) and RIGD_ environment overrides, in that
// order, then validates it.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := ValidateConfigPath(path); err != nil {
			return nil, err
		}
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if info.Size() > MaxConfigFileBytes {
			return nil, fmt.Errorf("config file %s is %d bytes, limit is %d", path, info.Size(), MaxConfigFileBytes)
		}
		if err := k.Load(file.Provider(path), kyaml.Parser()); err != nil {
			return nil, fmt.Errorf("unmarshal yaml: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envKey maps RIGD_SERVER__OSC_LISTEN to server.osc_listen.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func (c *Config) validate() error {
	if err := c.Limits().Validate(); err != nil {
		return fmt.Errorf("axis limits: %w", err)
	}
	if c.Joystick.PanOffsetRange < 0 || c.Joystick.TiltOffsetRange < 0 {
		return fmt.Errorf("offset ranges must be >= 0, got %d/%d", c.Joystick.PanOffsetRange, c.Joystick.TiltOffsetRange)
	}
	if c.Joystick.PanJogSpeed < 0 || c.Joystick.TiltJogSpeed < 0 || c.Joystick.SlideJogSpeed < 0 {
		return fmt.Errorf("jog speeds must be >= 0")
	}
	if c.Server.OSCListen == "" {
		return fmt.Errorf("server.osc_listen is required")
	}
	if c.Server.TickHz <= 0 || c.Server.TickHz > 10000 {
		return fmt.Errorf("server.tick_hz must be between 1 and 10000, got %d", c.Server.TickHz)
	}
	if c.Server.StepperHz <= 0 || c.Server.StepperHz > 100000 {
		return fmt.Errorf("server.stepper_hz must be between 1 and 100000, got %d", c.Server.StepperHz)
	}
	if c.Server.PositionLogMs < 0 {
		c.Server.PositionLogMs = 0
	}
	if c.Server.StatusMs < 10 {
		return fmt.Errorf("server.status_ms must be at least 10, got %d", c.Server.StatusMs)
	}
	if c.Defaults.Presets < 8 {
		c.Defaults.Presets = 8 // the protocol addresses at least 8 slots
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// Dump writes the effective configuration as YAML.
func (c *Config) Dump(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return enc.Close()
}

// Axis returns the configuration of one axis.
func (c *Config) Axis(a axis.Axis) AxisConfig {
	switch a {
	case axis.Pan:
		return c.Pan
	case axis.Tilt:
		return c.Tilt
	case axis.Zoom:
		return c.Zoom
	default:
		return c.Slide
	}
}

// Limits returns the kinematic limits of every axis.
func (c *Config) Limits() axis.Table {
	var t axis.Table
	for _, a := range axis.All {
		ac := c.Axis(a)
		t[a] = axis.Limits{Min: ac.MinLimit, Max: ac.MaxLimit, MaxSpeed: ac.MaxSpeed, MaxAccel: ac.MaxAccel}
	}
	return t
}

// Steppers returns the motor driver configuration of every axis. Drivers
// ramp with the same limits the planner uses.
func (c *Config) Steppers() [axis.NumAxes]stepper.Config {
	var s [axis.NumAxes]stepper.Config
	for _, a := range axis.All {
		ac := c.Axis(a)
		s[a] = stepper.Config{
			StepPin:   ac.StepPin,
			DirPin:    ac.DirPin,
			EnablePin: ac.EnablePin,
			MaxSpeed:  ac.MaxSpeed,
			MaxAccel:  ac.MaxAccel,
		}
	}
	return s
}

// Drives returns the pan and tilt drive trains for angle reporting.
func (c *Config) Drives() (pan, tilt geometry.Drive) {
	drive := func(ac AxisConfig) geometry.Drive {
		return geometry.Drive{StepsPerRev: ac.StepsPerRev, Microstepping: ac.Microstepping, GearRatio: ac.GearRatio}
	}
	return drive(c.Pan), drive(c.Tilt)
}

// JoystickValues returns the initial conditioner tuning.
func (c *Config) JoystickValues() joystick.Values {
	return joystick.Values{
		Deadzone: c.Joystick.Deadzone,
		Expo:     c.Joystick.Expo,
		Slew:     c.Joystick.Slew,
		CutoffHz: c.Joystick.CutoffHz,
	}
}

// JogSpeeds returns the jog velocities at full deflection.
func (c *Config) JogSpeeds() motion.JogSpeeds {
	return motion.JogSpeeds{
		Pan:   c.Joystick.PanJogSpeed,
		Tilt:  c.Joystick.TiltJogSpeed,
		Slide: c.Joystick.SlideJogSpeed,
	}
}

// CouplingMaps returns the initial pan and tilt coupling endpoints.
func (c *Config) CouplingMaps() (pan, tilt coupling.Map) {
	return coupling.Map{AtMin: c.Coupling.PanAtSlideMin, AtMax: c.Coupling.PanAtSlideMax},
		coupling.Map{AtMin: c.Coupling.TiltAtSlideMin, AtMax: c.Coupling.TiltAtSlideMax}
}

// TickPeriod returns the control loop period.
func (c *Config) TickPeriod() time.Duration {
	return time.Second / time.Duration(c.Server.TickHz)
}

// StepperPeriod returns the pulse loop period.
func (c *Config) StepperPeriod() time.Duration {
	return time.Second / time.Duration(c.Server.StepperHz)
}

// PositionLogInterval returns the period of the position log, 0 when
// disabled.
func (c *Config) PositionLogInterval() time.Duration {
	return time.Duration(c.Server.PositionLogMs) * time.Millisecond
}

// StatusInterval returns the period at which web clients receive status.
func (c *Config) StatusInterval() time.Duration {
	return time.Duration(c.Server.StatusMs) * time.Millisecond
}
