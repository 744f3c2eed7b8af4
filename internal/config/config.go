package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Hardware modes
const (
	HardwarePi        = "pi"
	HardwareSimulated = "simulated"
)

// Display drivers
const (
	DisplayWaveshare = "waveshare"
	DisplayPNG       = "png"
	DisplayNone      = "none"
)

// Config represents the application configuration
type Config struct {
	Log             LogConfig         `yaml:"log"`
	Hardware        HardwareConfig    `yaml:"hardware"`
	Sensors         SensorsConfig     `yaml:"sensors"`
	Trigger         TriggerConfig     `yaml:"trigger"`
	LED             LEDConfig         `yaml:"led"`
	Display         DisplayConfig     `yaml:"display"`
	Capture         CaptureConfig     `yaml:"capture"`
	Upload          UploadConfig      `yaml:"upload"`
	Describe        DescribeConfig    `yaml:"describe"`
	Credentials     CredentialsConfig `yaml:"credentials"`
	Power           PowerConfig       `yaml:"power"`
	Database        DatabaseConfig    `yaml:"database"`
	Ledger          LedgerConfig      `yaml:"ledger"`
	Healthcheck     HealthcheckConfig `yaml:"healthcheck"`
	EventBus        EventBusConfig    `yaml:"eventbus"`
	Hooks           HooksConfig       `yaml:"hooks"`
	StartupDelay    Duration          `yaml:"startup_delay"`
	ShutdownTimeout Duration          `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"json"`
}

// GetLevel returns the configured log level
func (c LogConfig) GetLevel() string {
	return c.Level
}

// HardwareConfig selects real Pi peripherals or the simulated stand-ins
type HardwareConfig struct {
	Mode string `yaml:"mode"` // "pi" or "simulated"
}

// IsSimulated reports whether peripherals are simulated
func (c HardwareConfig) IsSimulated() bool {
	return c.Mode == HardwareSimulated
}

// SensorsConfig contains ADS1115 light sensor settings
type SensorsConfig struct {
	I2CBus     string  `yaml:"i2c_bus"`     // "" = first available bus
	I2CAddress uint16  `yaml:"i2c_address"` // default 0x48
	ChannelA   int     `yaml:"channel_a"`   // ADC input for the gating channel
	ChannelB   int     `yaml:"channel_b"`   // ADC input for the edge channel
	Threshold  float64 `yaml:"threshold"`   // raw value separating dark from bright

	// Simulated levels, used only in simulated hardware mode
	SimulatedA float64 `yaml:"simulated_a"`
	SimulatedB float64 `yaml:"simulated_b"`
	Variation  float64 `yaml:"simulated_variation"`
}

// TriggerConfig contains darkness and light-edge timing
type TriggerConfig struct {
	DarknessDuration Duration `yaml:"darkness_duration"`
	DarknessPoll     Duration `yaml:"darkness_poll"`
	LightPoll        Duration `yaml:"light_poll"`
	MaxReadFailures  int      `yaml:"max_read_failures"`
}

// LEDConfig contains the PWM status LED settings
type LEDConfig struct {
	Pin            int      `yaml:"pin"`       // BCM pin number, must be PWM capable
	Frequency      int      `yaml:"frequency"` // Hz
	PulseStep      int      `yaml:"pulse_step"`
	PulseStepDelay Duration `yaml:"pulse_step_delay"`
}

// DisplayConfig contains annunciator settings
type DisplayConfig struct {
	Driver          string   `yaml:"driver"`
	Width           int      `yaml:"width"`  // landscape canvas width
	Height          int      `yaml:"height"` // landscape canvas height
	Rotate          bool     `yaml:"rotate"` // rotate 270 degrees before pushing to the panel
	FontPath        string   `yaml:"font_path"`
	MinFontSize     int      `yaml:"min_font_size"`
	MaxFontSize     int      `yaml:"max_font_size"`
	Settle          Duration `yaml:"settle"`
	TextSettle      Duration `yaml:"text_settle"`
	PNGPath         string   `yaml:"png_path"`
	ShutdownMessage string   `yaml:"shutdown_message"`
}

// CaptureConfig contains still-capture settings
type CaptureConfig struct {
	Command     string   `yaml:"command"`
	ExtraArgs   []string `yaml:"extra_args"`
	ImagePath   string   `yaml:"image_path"`
	Width       int      `yaml:"width"`
	Height      int      `yaml:"height"`
	FlashSettle Duration `yaml:"flash_settle"`
	Timeout     Duration `yaml:"timeout"`
}

// UploadConfig contains externalizer settings
type UploadConfig struct {
	Folder          string   `yaml:"folder"`
	Annotate        *bool    `yaml:"annotate"`
	Timeout         Duration `yaml:"timeout"`
	AnnotateTimeout Duration `yaml:"annotate_timeout"`
}

// AnnotateEnabled returns whether the description is written back (default: true)
func (c UploadConfig) AnnotateEnabled() bool {
	if c.Annotate == nil {
		return true
	}
	return *c.Annotate
}

// DescribeConfig contains the scene-description prompt settings
type DescribeConfig struct {
	BaseURL     string   `yaml:"base_url"`
	Model       string   `yaml:"model"`
	Temperature *float32 `yaml:"temperature"` // nil = 1.0; 0 is a valid setting
	MaxTokens   int      `yaml:"max_tokens"`
	System      string   `yaml:"system_prompt"`
	User        string   `yaml:"user_prompt"`
	Timeout     Duration `yaml:"timeout"`
}

// GetTemperature returns the sampling temperature (default: 1.0)
func (c DescribeConfig) GetTemperature() float32 {
	if c.Temperature == nil {
		return 1.0
	}
	return *c.Temperature
}

// CredentialsConfig points at the two dotenv credential bundles
type CredentialsConfig struct {
	Upload   string `yaml:"upload"`
	Describe string `yaml:"describe"`
}

// PowerConfig contains the OS shutdown request settings
type PowerConfig struct {
	Command []string `yaml:"command"`
	DryRun  bool     `yaml:"dry_run"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig contains capture ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// HealthcheckConfig contains health check server settings
type HealthcheckConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// GetHost returns the listen host
func (c HealthcheckConfig) GetHost() string {
	return c.Host
}

// GetPort returns the listen port
func (c HealthcheckConfig) GetPort() int {
	return c.Port
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 2)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 2
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// HooksConfig contains the optional Lua hook script
type HooksConfig struct {
	Script string `yaml:"script"` // "" = hooks disabled
}

// GetShutdownTimeout returns the graceful stop budget
func (c *Config) GetShutdownTimeout() time.Duration {
	return c.ShutdownTimeout.Duration()
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration YAML, applies defaults and validates the result
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Hardware.Mode == "" {
		cfg.Hardware.Mode = HardwarePi
	}

	// Sensor defaults match the ADS1115 wiring of the reference build
	if cfg.Sensors.I2CAddress == 0 {
		cfg.Sensors.I2CAddress = 0x48
	}
	if cfg.Sensors.ChannelA == 0 && cfg.Sensors.ChannelB == 0 {
		cfg.Sensors.ChannelA = 0
		cfg.Sensors.ChannelB = 1
	}
	if cfg.Sensors.Threshold == 0 {
		cfg.Sensors.Threshold = 9000
	}

	if cfg.Trigger.DarknessDuration == 0 {
		cfg.Trigger.DarknessDuration = Duration(5 * time.Second)
	}
	if cfg.Trigger.DarknessPoll == 0 {
		cfg.Trigger.DarknessPoll = Duration(500 * time.Millisecond)
	}
	if cfg.Trigger.LightPoll == 0 {
		cfg.Trigger.LightPoll = Duration(200 * time.Millisecond)
	}
	if cfg.Trigger.MaxReadFailures == 0 {
		cfg.Trigger.MaxReadFailures = 10
	}

	if cfg.LED.Pin == 0 {
		cfg.LED.Pin = 18
	}
	if cfg.LED.Frequency == 0 {
		cfg.LED.Frequency = 500
	}
	if cfg.LED.PulseStep == 0 {
		cfg.LED.PulseStep = 5
	}
	if cfg.LED.PulseStepDelay == 0 {
		cfg.LED.PulseStepDelay = Duration(50 * time.Millisecond)
	}

	if cfg.Display.Driver == "" {
		if cfg.Hardware.IsSimulated() {
			cfg.Display.Driver = DisplayPNG
		} else {
			cfg.Display.Driver = DisplayWaveshare
		}
	}
	// 2.9" panel in landscape orientation
	if cfg.Display.Width == 0 {
		cfg.Display.Width = 296
	}
	if cfg.Display.Height == 0 {
		cfg.Display.Height = 128
	}
	if cfg.Display.MinFontSize == 0 {
		cfg.Display.MinFontSize = 8
	}
	if cfg.Display.MaxFontSize == 0 {
		cfg.Display.MaxFontSize = 24
	}
	if cfg.Display.Settle == 0 {
		cfg.Display.Settle = Duration(1 * time.Second)
	}
	if cfg.Display.TextSettle == 0 {
		cfg.Display.TextSettle = Duration(3 * time.Second)
	}
	if cfg.Display.PNGPath == "" {
		cfg.Display.PNGPath = "./frame.png"
	}
	if cfg.Display.ShutdownMessage == "" {
		cfg.Display.ShutdownMessage = "Sleeping until the light returns."
	}

	if cfg.Capture.Command == "" {
		cfg.Capture.Command = "libcamera-still"
	}
	if cfg.Capture.ImagePath == "" {
		cfg.Capture.ImagePath = "latest.jpg"
	}
	if cfg.Capture.Width == 0 {
		cfg.Capture.Width = 1920
	}
	if cfg.Capture.Height == 0 {
		cfg.Capture.Height = 1080
	}
	if cfg.Capture.FlashSettle == 0 {
		cfg.Capture.FlashSettle = Duration(200 * time.Millisecond)
	}
	if cfg.Capture.Timeout == 0 {
		cfg.Capture.Timeout = Duration(30 * time.Second)
	}

	if cfg.Upload.Timeout == 0 {
		cfg.Upload.Timeout = Duration(60 * time.Second)
	}
	if cfg.Upload.AnnotateTimeout == 0 {
		cfg.Upload.AnnotateTimeout = Duration(30 * time.Second)
	}

	if cfg.Describe.Model == "" {
		cfg.Describe.Model = "gpt-4o"
	}
	if cfg.Describe.MaxTokens == 0 {
		cfg.Describe.MaxTokens = 150
	}
	if cfg.Describe.Timeout == 0 {
		cfg.Describe.Timeout = Duration(60 * time.Second)
	}

	if cfg.Credentials.Upload == "" {
		cfg.Credentials.Upload = "~/.cloudinary.env"
	}
	if cfg.Credentials.Describe == "" {
		cfg.Credentials.Describe = "~/.openai.env"
	}

	if len(cfg.Power.Command) == 0 {
		cfg.Power.Command = []string{"sudo", "shutdown", "now"}
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "./glimpsed.sqlite"
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// Healthcheck defaults
	if cfg.Healthcheck.Port == 0 {
		cfg.Healthcheck.Port = 9090
	}
	if cfg.Healthcheck.Host == "" {
		cfg.Healthcheck.Host = "0.0.0.0"
	}

	if cfg.StartupDelay == 0 {
		cfg.StartupDelay = Duration(1 * time.Second)
	}
	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate rejects configurations the device cannot run with
func (cfg *Config) Validate() error {
	switch cfg.Hardware.Mode {
	case HardwarePi, HardwareSimulated:
	default:
		return fmt.Errorf("hardware.mode: unknown mode %q", cfg.Hardware.Mode)
	}
	switch cfg.Display.Driver {
	case DisplayWaveshare, DisplayPNG, DisplayNone:
	default:
		return fmt.Errorf("display.driver: unknown driver %q", cfg.Display.Driver)
	}
	if cfg.Sensors.ChannelA == cfg.Sensors.ChannelB {
		return fmt.Errorf("sensors: channel_a and channel_b must differ")
	}
	for _, ch := range []int{cfg.Sensors.ChannelA, cfg.Sensors.ChannelB} {
		if ch < 0 || ch > 3 {
			return fmt.Errorf("sensors: channel %d out of range 0..3", ch)
		}
	}
	if cfg.Sensors.Threshold < 0 {
		return fmt.Errorf("sensors.threshold must not be negative")
	}
	if cfg.LED.PulseStep <= 0 || cfg.LED.PulseStep > 100 {
		return fmt.Errorf("led.pulse_step must be within 1..100")
	}
	if cfg.Display.MinFontSize > cfg.Display.MaxFontSize {
		return fmt.Errorf("display: min_font_size %d exceeds max_font_size %d",
			cfg.Display.MinFontSize, cfg.Display.MaxFontSize)
	}
	if cfg.Capture.Width <= 0 || cfg.Capture.Height <= 0 {
		return fmt.Errorf("capture: width and height must be positive")
	}
	if t := cfg.Describe.GetTemperature(); t < 0 || t > 2 {
		return fmt.Errorf("describe.temperature %v out of range 0..2", t)
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
