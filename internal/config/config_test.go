package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Sensors.Threshold != 9000 {
		t.Errorf("Threshold = %v, want 9000", cfg.Sensors.Threshold)
	}
	if cfg.Sensors.ChannelA != 0 || cfg.Sensors.ChannelB != 1 {
		t.Errorf("channels = %d/%d, want 0/1", cfg.Sensors.ChannelA, cfg.Sensors.ChannelB)
	}
	if got := cfg.Trigger.DarknessDuration.Duration(); got != 5*time.Second {
		t.Errorf("DarknessDuration = %v, want 5s", got)
	}
	if got := cfg.Trigger.DarknessPoll.Duration(); got != 500*time.Millisecond {
		t.Errorf("DarknessPoll = %v, want 500ms", got)
	}
	if got := cfg.Trigger.LightPoll.Duration(); got != 200*time.Millisecond {
		t.Errorf("LightPoll = %v, want 200ms", got)
	}
	if cfg.LED.Pin != 18 || cfg.LED.Frequency != 500 || cfg.LED.PulseStep != 5 {
		t.Errorf("LED = %+v, want pin 18 / 500Hz / step 5", cfg.LED)
	}
	if got := cfg.LED.PulseStepDelay.Duration(); got != 50*time.Millisecond {
		t.Errorf("PulseStepDelay = %v, want 50ms", got)
	}
	if cfg.Display.Driver != DisplayWaveshare {
		t.Errorf("Display.Driver = %q, want %q", cfg.Display.Driver, DisplayWaveshare)
	}
	if cfg.Display.MinFontSize != 8 || cfg.Display.MaxFontSize != 24 {
		t.Errorf("font range = %d..%d, want 8..24", cfg.Display.MinFontSize, cfg.Display.MaxFontSize)
	}
	if !cfg.Upload.AnnotateEnabled() {
		t.Error("annotate should default to enabled")
	}
	if got := cfg.Describe.GetTemperature(); got != 1.0 {
		t.Errorf("Temperature = %v, want 1.0", got)
	}
	if len(cfg.Power.Command) != 3 || cfg.Power.Command[0] != "sudo" {
		t.Errorf("Power.Command = %v, want sudo shutdown now", cfg.Power.Command)
	}
}

func TestParse_SimulatedDefaultsToPNG(t *testing.T) {
	cfg, err := Parse([]byte("hardware:\n  mode: simulated\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Display.Driver != DisplayPNG {
		t.Errorf("Display.Driver = %q, want %q", cfg.Display.Driver, DisplayPNG)
	}
}

func TestParse_Overrides(t *testing.T) {
	yaml := `
sensors:
  threshold: 12000
  channel_a: 2
  channel_b: 3
trigger:
  darkness_duration: 10s
  light_poll: 100ms
upload:
  annotate: false
describe:
  temperature: 0
`
	cfg, err := Parse([]byte(yaml))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Sensors.Threshold != 12000 {
		t.Errorf("Threshold = %v, want 12000", cfg.Sensors.Threshold)
	}
	if cfg.Sensors.ChannelA != 2 || cfg.Sensors.ChannelB != 3 {
		t.Errorf("channels = %d/%d, want 2/3", cfg.Sensors.ChannelA, cfg.Sensors.ChannelB)
	}
	if got := cfg.Trigger.DarknessDuration.Duration(); got != 10*time.Second {
		t.Errorf("DarknessDuration = %v, want 10s", got)
	}
	if got := cfg.Trigger.LightPoll.Duration(); got != 100*time.Millisecond {
		t.Errorf("LightPoll = %v, want 100ms", got)
	}
	if cfg.Upload.AnnotateEnabled() {
		t.Error("annotate should be disabled")
	}
	if got := cfg.Describe.GetTemperature(); got != 0 {
		t.Errorf("Temperature = %v, want explicit 0 kept", got)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "unknown_hardware", yaml: "hardware:\n  mode: arduino\n"},
		{name: "unknown_display", yaml: "display:\n  driver: lcd\n"},
		{name: "same_channels", yaml: "sensors:\n  channel_a: 2\n  channel_b: 2\n"},
		{name: "channel_out_of_range", yaml: "sensors:\n  channel_a: 4\n  channel_b: 1\n"},
		{name: "font_range_inverted", yaml: "display:\n  min_font_size: 30\n  max_font_size: 12\n"},
		{name: "pulse_step_too_large", yaml: "led:\n  pulse_step: 150\n"},
		{name: "temperature_out_of_range", yaml: "describe:\n  temperature: 3.5\n"},
		{name: "bad_duration", yaml: "trigger:\n  darkness_duration: soon\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected error but got nil")
			}
		})
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("GLIMPSED_TEST_DB", "/tmp/captures.sqlite")

	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "database:\n  path: ${GLIMPSED_TEST_DB}\nlog:\n  level: ${GLIMPSED_UNSET_LEVEL:debug}\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/tmp/captures.sqlite" {
		t.Errorf("Database.Path = %q, want /tmp/captures.sqlite", cfg.Database.Path)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", cfg.Log.Level)
	}
}
