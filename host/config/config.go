// Package config loads the host tool configuration: defaults, an optional
// YAML file, then PULSEGEN_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"pulsegen/core"
	"pulsegen/host/serial"
)

// DefaultFile is read when present; a missing file is not an error
const DefaultFile = "config/pulsegen.yaml"

// FileEnv names a config file that must exist
const FileEnv = "PULSEGEN_CONFIG"

// Config is the complete host configuration
type Config struct {
	Sim    SimConfig     `yaml:"sim"`
	Log    LogConfig     `yaml:"log"`
	Serial serial.Config `yaml:"serial"`
}

// SimConfig holds the simulator settings
type SimConfig struct {
	Listen string `yaml:"listen"`

	// TimeScale multiplies simulated transmit time; 0.01 plays a hundred times faster
	TimeScale    float64       `yaml:"timeScale"`
	DMAAvailable bool          `yaml:"dmaAvailable"`
	SlowPin      uint32        `yaml:"slowPin"`
	FastPin      uint32        `yaml:"fastPin"`
	SettleDelay  time.Duration `yaml:"settleDelay"`
	DisabledPoll time.Duration `yaml:"disabledPoll"`
	TraceLimit   int           `yaml:"traceLimit"`
}

// LogConfig holds log output settings. An empty File logs to stderr.
type LogConfig struct {
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	Compress   bool   `yaml:"compress"`
}

// Load builds the configuration. path, when set, must name a readable file
// and is applied after DefaultFile and $PULSEGEN_CONFIG.
func Load(path string) (*Config, error) {
	cfg := getDefaultConfig()

	if err := loadFromFile(cfg, DefaultFile); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s: %w", DefaultFile, err)
	}

	if file := os.Getenv(FileEnv); file != "" {
		if err := loadFromFile(cfg, file); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", file, err)
		}
	}

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func getDefaultConfig() *Config {
	sched := core.DefaultSchedulerConfig(0)
	return &Config{
		Sim: SimConfig{
			Listen:       ":8080",
			TimeScale:    1,
			DMAAvailable: false,
			SlowPin:      2,
			FastPin:      3,
			SettleDelay:  sched.SettleDelay,
			DisabledPoll: sched.DisabledPoll,
			TraceLimit:   4096,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Serial: *serial.DefaultConfig("/dev/ttyACM0"),
	}
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides applies environment variable overrides. Unparsable
// values are ignored.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PULSEGEN_LISTEN"); v != "" {
		cfg.Sim.Listen = v
	}
	if v := os.Getenv("PULSEGEN_TIME_SCALE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Sim.TimeScale = f
		}
	}
	if v := os.Getenv("PULSEGEN_DMA"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Sim.DMAAvailable = b
		}
	}
	if v := os.Getenv("PULSEGEN_SETTLE_DELAY"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sim.SettleDelay = d
		}
	}
	if v := os.Getenv("PULSEGEN_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	if v := os.Getenv("PULSEGEN_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PULSEGEN_SERIAL_DEVICE"); v != "" {
		cfg.Serial.Device = v
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Sim.Listen == "" {
		return fmt.Errorf("sim.listen must be set")
	}
	if cfg.Sim.TimeScale <= 0 || cfg.Sim.TimeScale > 100 {
		return fmt.Errorf("sim.timeScale %v is outside (0, 100]", cfg.Sim.TimeScale)
	}
	if cfg.Sim.SlowPin == cfg.Sim.FastPin {
		return fmt.Errorf("sim.slowPin and sim.fastPin are both %d", cfg.Sim.SlowPin)
	}
	if cfg.Sim.SettleDelay < 0 {
		return fmt.Errorf("sim.settleDelay %v is negative", cfg.Sim.SettleDelay)
	}
	if cfg.Sim.DisabledPoll <= 0 {
		return fmt.Errorf("sim.disabledPoll %v must be positive", cfg.Sim.DisabledPoll)
	}
	if cfg.Sim.TraceLimit < 0 {
		return fmt.Errorf("sim.traceLimit %d is negative", cfg.Sim.TraceLimit)
	}
	if _, ok := core.ParseLogLevel(cfg.Log.Level); !ok {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", cfg.Log.Level)
	}
	if cfg.Log.MaxSizeMB <= 0 {
		return fmt.Errorf("log.maxSizeMb %d must be positive", cfg.Log.MaxSizeMB)
	}
	if cfg.Serial.Baud <= 0 {
		return fmt.Errorf("serial.baud %d must be positive", cfg.Serial.Baud)
	}
	return nil
}

// LogLevel returns the parsed log level
func (c *Config) LogLevel() core.LogLevel {
	l, _ := core.ParseLogLevel(c.Log.Level)
	return l
}

// SchedulerConfig returns the scheduler tuning for the simulated device
func (c *Config) SchedulerConfig() core.SchedulerConfig {
	sc := core.DefaultSchedulerConfig(core.GPIOPin(c.Sim.SlowPin))
	sc.SettleDelay = c.Sim.SettleDelay
	sc.DisabledPoll = c.Sim.DisabledPoll
	return sc
}
