package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"piclyde/internal/stepper"
)

type Config struct {
	GPIO      GPIOConfig       `yaml:"gpio" toml:"gpio"`
	Actuators []ActuatorConfig `yaml:"actuators" toml:"actuators"`
	Web       WebConfig        `yaml:"web" toml:"web"`
	Log       LogConfig        `yaml:"log" toml:"log"`
	System    SystemConfig     `yaml:"system" toml:"system"`
}

type GPIOConfig struct {
	// Backend is "gpiocdev" (Linux character device) or "sim".
	Backend string `yaml:"backend" toml:"backend"`
	// Chip pins all lines to one device, e.g. /dev/gpiochip0.
	Chip     string `yaml:"chip" toml:"chip"`
	Consumer string `yaml:"consumer" toml:"consumer"`
	// EnableActiveLow defaults to true (A4988/DRV8825 boards).
	EnableActiveLow *bool `yaml:"enable_active_low" toml:"enable_active_low"`
}

// ActuatorConfig uses BCM GPIO numbering.
type ActuatorConfig struct {
	Step      *int `yaml:"step" toml:"step"`
	Direction *int `yaml:"direction" toml:"direction"`
	Enable    *int `yaml:"enable" toml:"enable"`
	Speed     int  `yaml:"speed" toml:"speed"`
	Reverse   bool `yaml:"reverse" toml:"reverse"`
}

type WebConfig struct {
	Enable *bool  `yaml:"enable" toml:"enable"`
	Listen string `yaml:"listen" toml:"listen"`
	// CORSOrigins defaults to allowing every origin.
	CORSOrigins []string `yaml:"cors_origins" toml:"cors_origins"`
}

type LogConfig struct {
	Level       string `yaml:"level" toml:"level"`
	Console     *bool  `yaml:"console" toml:"console"`
	BufferLines int    `yaml:"buffer_lines" toml:"buffer_lines"`
}

type SystemConfig struct {
	// LockMemory calls mlockall so page faults do not stretch pulses.
	LockMemory bool `yaml:"lock_memory" toml:"lock_memory"`
}

// DefaultPins is the six-motor wiring of the PULSE board:
// {step, direction, enable} per motor.
var DefaultPins = [][3]int{
	{27, 21, 4},
	{26, 23, 13},
	{12, 20, 22},
	{24, 25, 19},
	{16, 6, 5},
	{17, 18, 10},
}

// Load reads a YAML (.yaml/.yml) or TOML (.toml) file and applies
// defaults and validation.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(b), &cfg); err != nil {
			return Config{}, err
		}
	default:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := DefaultAndValidate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func boolPtr(v bool) *bool { return &v }
func intPtr(v int) *int    { return &v }

// DefaultAndValidate fills unset fields and rejects invalid settings.
func DefaultAndValidate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	cfg.GPIO.Backend = strings.ToLower(strings.TrimSpace(cfg.GPIO.Backend))
	if cfg.GPIO.Backend == "" {
		cfg.GPIO.Backend = "gpiocdev"
	}
	if cfg.GPIO.Backend != "gpiocdev" && cfg.GPIO.Backend != "sim" {
		return fmt.Errorf("gpio.backend must be 'gpiocdev' or 'sim'")
	}
	cfg.GPIO.Chip = strings.TrimSpace(cfg.GPIO.Chip)
	if cfg.GPIO.Consumer == "" {
		cfg.GPIO.Consumer = "piclyde"
	}
	if cfg.GPIO.EnableActiveLow == nil {
		cfg.GPIO.EnableActiveLow = boolPtr(true)
	}

	if len(cfg.Actuators) == 0 {
		for _, p := range DefaultPins {
			cfg.Actuators = append(cfg.Actuators, ActuatorConfig{
				Step:      intPtr(p[0]),
				Direction: intPtr(p[1]),
				Enable:    intPtr(p[2]),
			})
		}
	}
	used := map[int]string{}
	for i := range cfg.Actuators {
		a := &cfg.Actuators[i]
		fields := []struct {
			name string
			pin  *int
		}{
			{"step", a.Step},
			{"direction", a.Direction},
			{"enable", a.Enable},
		}
		for _, f := range fields {
			key := fmt.Sprintf("actuators[%d].%s", i, f.name)
			if f.pin == nil {
				return fmt.Errorf("%s is required", key)
			}
			if *f.pin < 0 {
				return fmt.Errorf("%s must be >= 0", key)
			}
			if prev, dup := used[*f.pin]; dup {
				return fmt.Errorf("%s duplicates %s (gpio %d)", key, prev, *f.pin)
			}
			used[*f.pin] = key
		}
		if a.Speed == 0 {
			a.Speed = stepper.DefaultSpeed
		}
		if a.Speed < stepper.MinSpeed || a.Speed > stepper.MaxSpeed {
			return fmt.Errorf("actuators[%d].speed must be in [%d,%d]", i, stepper.MinSpeed, stepper.MaxSpeed)
		}
	}

	if cfg.Web.Enable == nil {
		cfg.Web.Enable = boolPtr(true)
	}
	if strings.TrimSpace(cfg.Web.Listen) == "" {
		cfg.Web.Listen = ":8080"
	}
	if len(cfg.Web.CORSOrigins) == 0 {
		cfg.Web.CORSOrigins = []string{"*"}
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(cfg.Log.Level)); err != nil {
		return fmt.Errorf("log.level %q is invalid", cfg.Log.Level)
	}
	if cfg.Log.Console == nil {
		cfg.Log.Console = boolPtr(true)
	}
	if cfg.Log.BufferLines <= 0 {
		cfg.Log.BufferLines = 2000
	}

	return nil
}

// Pins returns the step, direction and enable lines. DefaultAndValidate
// must have succeeded.
func (a ActuatorConfig) Pins() (step, direction, enable int) {
	return *a.Step, *a.Direction, *a.Enable
}
