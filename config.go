package signals

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/EzeErlicher/signals/internal/pins"
	"github.com/spf13/viper"
)

// SamplerConfig sizes the store and sets the poller's interval.
type SamplerConfig struct {
	Capacity int           `mapstructure:"capacity"`
	Tick     time.Duration `mapstructure:"tick"`
	Schedule string        `mapstructure:"schedule"`
}

// GeneratorConfig sets the two generated half-periods.
type GeneratorConfig struct {
	HalfPeriodA time.Duration `mapstructure:"half_period_a"`
	HalfPeriodB time.Duration `mapstructure:"half_period_b"`
	Granularity time.Duration `mapstructure:"granularity"`
	Schedule    string        `mapstructure:"schedule"`
}

// Config is everything read from config.yaml and SIGNALS_* environment variables.
type Config struct {
	Pins      pins.Config     `mapstructure:"pins"`
	Sampler   SamplerConfig   `mapstructure:"sampler"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Ports     struct {
		RPC    int `mapstructure:"rpc"`
		Status int `mapstructure:"status"`
	} `mapstructure:"ports"`
	Metrics struct {
		Addr string `mapstructure:"addr"` // empty disables the metrics endpoint
	} `mapstructure:"metrics"`
	Sessions struct {
		IdleTimeout time.Duration `mapstructure:"idle_timeout"`
	} `mapstructure:"sessions"`
	Trace struct {
		File string `mapstructure:"file"` // empty disables the tick trace
	} `mapstructure:"trace"`
	DB struct {
		Enabled bool   `mapstructure:"enabled"`
		Addr    string `mapstructure:"addr"`
	} `mapstructure:"db"`
}

// SetDefaults registers the default for every configuration key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("pins.backend", "cdev")
	v.SetDefault("pins.chip", "gpiochip0")
	v.SetDefault("pins.input_a", 14)
	v.SetDefault("pins.input_b", 15)
	v.SetDefault("pins.output_a", 23)
	v.SetDefault("pins.output_b", 24)
	v.SetDefault("pins.bias", "")
	v.SetDefault("pins.sim_half_period_a", "1000ms")
	v.SetDefault("pins.sim_half_period_b", "500ms")

	v.SetDefault("sampler.capacity", DefaultCapacity)
	v.SetDefault("sampler.tick", DefaultTick.String())
	v.SetDefault("sampler.schedule", ScheduleAbsolute.String())

	v.SetDefault("generator.half_period_a", "1000ms")
	v.SetDefault("generator.half_period_b", "500ms")
	v.SetDefault("generator.granularity", DefaultGranularity.String())
	v.SetDefault("generator.schedule", ScheduleAbsolute.String())

	v.SetDefault("ports.rpc", 5600)
	v.SetDefault("ports.status", 5601)
	v.SetDefault("metrics.addr", ":9560")
	v.SetDefault("sessions.idle_timeout", "10m")
	v.SetDefault("trace.file", "")
	v.SetDefault("db.enabled", false)
	v.SetDefault("db.addr", "localhost:9000")

	v.SetEnvPrefix("SIGNALS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// LoadConfig applies defaults to v, decodes it and validates the result.
func LoadConfig(v *viper.Viper) (Config, error) {
	SetDefaults(v)
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("decode configuration: %v: %w", err, ErrBadConfig)
	}
	return c, c.Validate()
}

// Validate checks every section that the sampler daemon uses.
func (c Config) Validate() error {
	if c.Sampler.Capacity <= 0 {
		return fmt.Errorf("sampler.capacity=%d, want > 0: %w", c.Sampler.Capacity, ErrBadConfig)
	}
	if c.Sampler.Tick <= 0 {
		return fmt.Errorf("sampler.tick=%v, want > 0: %w", c.Sampler.Tick, ErrBadConfig)
	}
	if _, err := ParseSchedule(c.Sampler.Schedule); err != nil {
		return err
	}
	if err := c.Pins.Validate(); err != nil {
		return fmt.Errorf("pins: %v: %w", err, ErrBadConfig)
	}
	if c.Ports.RPC <= 0 || c.Ports.Status <= 0 || c.Ports.RPC == c.Ports.Status {
		return fmt.Errorf("ports rpc=%d status=%d, want distinct positive ports: %w",
			c.Ports.RPC, c.Ports.Status, ErrBadConfig)
	}
	if c.Sessions.IdleTimeout < 0 {
		return fmt.Errorf("sessions.idle_timeout=%v, want >= 0: %w", c.Sessions.IdleTimeout, ErrBadConfig)
	}
	return nil
}

// GeneratorSettings converts the generator section into GeneratorSettings and checks them.
func (c Config) GeneratorSettings() (GeneratorSettings, error) {
	schedule, err := ParseSchedule(c.Generator.Schedule)
	if err != nil {
		return GeneratorSettings{}, err
	}
	gs := GeneratorSettings{
		HalfPeriods: [NumChannels]time.Duration{c.Generator.HalfPeriodA, c.Generator.HalfPeriodB},
		Granularity: c.Generator.Granularity,
		Schedule:    schedule,
	}
	return gs, gs.Validate()
}

// MakeFileExist checks that dir/filename exists, and creates the directory
// and file if it doesn't.
func MakeFileExist(dir, filename string) (string, error) {
	// Replace 1 instance of "$HOME" in the path with the actual home directory.
	if strings.Contains(dir, "$HOME") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = strings.Replace(dir, "$HOME", home, 1)
	}
	if err := os.MkdirAll(dir, 0775); err != nil {
		return "", err
	}
	fullname := filepath.Join(dir, filename)
	if _, err := os.Stat(fullname); os.IsNotExist(err) {
		f, err2 := os.OpenFile(fullname, os.O_WRONLY|os.O_CREATE, 0664)
		if err2 != nil {
			return "", err2
		}
		f.Close()
	}
	return fullname, nil
}

// SetupViper tells v where to find the configuration file and reads it. An
// explicit path is read as is; otherwise config.yaml is searched for in
// /etc/signals, ~/.signals and the working directory, and created empty in
// ~/.signals if missing.
func SetupViper(v *viper.Viper, explicit string) error {
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		dotSignals := filepath.Join(home, ".signals")
		const filename string = "config"
		const suffix string = ".yaml"
		if _, err := MakeFileExist(dotSignals, filename+suffix); err != nil {
			return err
		}
		v.SetConfigName(filename)
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.FromSlash("/etc/signals"))
		v.AddConfigPath(dotSignals)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}
