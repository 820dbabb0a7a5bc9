package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
// All display geometry and detection thresholds live here as one versioned
// record; nothing in the decode path hard-codes coordinates.
type Config struct {
	Camera          CameraConfig   `yaml:"camera"`
	Vision          VisionConfig   `yaml:"vision"`
	Fusion          FusionConfig   `yaml:"fusion"`
	Actuator        ActuatorConfig `yaml:"actuator"`
	Control         ControlConfig  `yaml:"control"`
	Database        DatabaseConfig `yaml:"database"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	API             APIConfig      `yaml:"api"`
	Debug           DebugConfig    `yaml:"debug"`
	Log             LogConfig      `yaml:"log"`
	Script          string         `yaml:"script"` // Lua hook script path, "" = disabled
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"`
}

// CameraConfig contains snapshot source settings.
type CameraConfig struct {
	SnapshotURL  string   `yaml:"snapshot_url"`
	Timeout      Duration `yaml:"timeout"`       // HTTP timeout per fetch
	Retries      int      `yaml:"retries"`       // attempts per tick
	RetryDelay   Duration `yaml:"retry_delay"`   // pause between attempts
	PollInterval Duration `yaml:"poll_interval"` // tick period
}

// ROI is a rectangular sub-area in absolute image pixels.
type ROI struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	W int `yaml:"w"`
	H int `yaml:"h"`
}

// Point is an absolute pixel coordinate inside the digit crop.
type Point struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

// VisionConfig contains all decode geometry and thresholds.
type VisionConfig struct {
	Panel   ROI `yaml:"panel"`
	Digits  ROI `yaml:"digits"`
	Setting ROI `yaml:"setting"`
	Low     ROI `yaml:"low"`
	Half    ROI `yaml:"half"`
	Full    ROI `yaml:"full"`

	SkewAngle         float64 `yaml:"skew_angle"`
	Gamma             float64 `yaml:"gamma"`
	NoiseLimit        int     `yaml:"noise_limit"`         // post-enhance min local brightness
	MinPeakBrightness int     `yaml:"min_peak_brightness"` // digit crop gate
	ActiveRatio       float64 `yaml:"active_ratio"`        // dark-pixel ratio for a lit stroke
	ModeActiveRatio   float64 `yaml:"mode_active_ratio"`   // lit ratio for an icon
	OCRPresenceMin    float64 `yaml:"ocr_presence_min"`    // digit-area lit ratio gate
	ValidMin          int     `yaml:"valid_min"`
	ValidMax          int     `yaml:"valid_max"`

	// GuardPoints are background-only coordinates in the digit crop; any of
	// them reading active marks the whole frame corrupted. Empirically tuned
	// per installation, empty disables the check.
	GuardPoints []Point `yaml:"guard_points"`
}

// FusionConfig contains hysteresis settings for the state coordinator.
type FusionConfig struct {
	OffConfirmTicks int      `yaml:"off_confirm_ticks"`
	SettingBridge   Duration `yaml:"setting_bridge"` // blank tolerance after SETTING
	StandbyBridge   Duration `yaml:"standby_bridge"` // blank tolerance otherwise
	BootGrace       Duration `yaml:"boot_grace"`     // window after commanded power-on
}

// ActuatorConfig contains the command gateway settings and raw payloads.
type ActuatorConfig struct {
	GatewayURL   string   `yaml:"gateway_url"`
	Token        string   `yaml:"token"`
	Timeout      Duration `yaml:"timeout"`
	CommandDelay Duration `yaml:"command_delay"` // min spacing between sends

	Payloads PayloadConfig `yaml:"payloads"`
}

// PayloadConfig holds the opaque command payloads captured from the
// original remote. The daemon never interprets them.
type PayloadConfig struct {
	ScreenOn string `yaml:"screen_on"` // IR: wake display
	TempUp   string `yaml:"temp_up"`   // electrical: one step up
	TempDown string `yaml:"temp_down"` // electrical: one step down
	Toggle   string `yaml:"toggle"`    // electrical: power toggle
	Mode     string `yaml:"mode"`      // IR: advance mode LOW->HALF->FULL
}

// ControlConfig contains closed-loop adjustment settings.
type ControlConfig struct {
	ReadSamples        int      `yaml:"read_samples"`       // polls per reliable read
	ReadDelay          Duration `yaml:"read_delay"`         // pacing between samples
	SettleDelay        Duration `yaml:"settle_delay"`       // wait after activation step
	KeepAliveInterval  Duration `yaml:"keep_alive_interval"`  // negative = disabled
	TargetSyncInterval Duration `yaml:"target_sync_interval"` // negative = disabled
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig contains tick/command history retention settings.
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	Retention       Duration `yaml:"retention"`
}

// APIConfig contains the HTTP API server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// DebugConfig contains the debug image sink settings.
type DebugConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Dir      string `yaml:"dir"`
	Scale    int    `yaml:"scale"`     // nearest-neighbor upscale factor
	MaxTicks int    `yaml:"max_ticks"` // tick directories kept on disk
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string `yaml:"level"`
	UseJSON bool   `yaml:"json"`
	Colors  bool   `yaml:"colors"`
}

// GetLevel returns the log level with default.
func (c *LogConfig) GetLevel() string {
	if c.Level == "" {
		return "info"
	}
	return c.Level
}

// Duration is a wrapper around time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
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

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	// Camera defaults
	if cfg.Camera.Timeout == 0 {
		cfg.Camera.Timeout = Duration(10 * time.Second)
	}
	if cfg.Camera.Retries == 0 {
		cfg.Camera.Retries = 3
	}
	if cfg.Camera.RetryDelay == 0 {
		cfg.Camera.RetryDelay = Duration(1 * time.Second)
	}
	if cfg.Camera.PollInterval == 0 {
		cfg.Camera.PollInterval = Duration(1 * time.Second)
	}

	// Vision defaults, tuned against the reference installation
	if cfg.Vision.Gamma == 0 {
		cfg.Vision.Gamma = 2.0
	}
	if cfg.Vision.NoiseLimit == 0 {
		cfg.Vision.NoiseLimit = 20
	}
	if cfg.Vision.MinPeakBrightness == 0 {
		cfg.Vision.MinPeakBrightness = 60
	}
	if cfg.Vision.ActiveRatio == 0 {
		cfg.Vision.ActiveRatio = 0.50
	}
	if cfg.Vision.ModeActiveRatio == 0 {
		cfg.Vision.ModeActiveRatio = 0.20
	}
	if cfg.Vision.OCRPresenceMin == 0 {
		cfg.Vision.OCRPresenceMin = 0.10
	}
	if cfg.Vision.ValidMin == 0 {
		cfg.Vision.ValidMin = 10
	}
	if cfg.Vision.ValidMax == 0 {
		cfg.Vision.ValidMax = 80
	}

	// Fusion defaults
	if cfg.Fusion.OffConfirmTicks == 0 {
		cfg.Fusion.OffConfirmTicks = 8
	}
	if cfg.Fusion.SettingBridge == 0 {
		cfg.Fusion.SettingBridge = Duration(8 * time.Second)
	}
	if cfg.Fusion.StandbyBridge == 0 {
		cfg.Fusion.StandbyBridge = Duration(2 * time.Second)
	}
	if cfg.Fusion.BootGrace == 0 {
		cfg.Fusion.BootGrace = Duration(5 * time.Second)
	}

	// Actuator defaults
	if cfg.Actuator.Timeout == 0 {
		cfg.Actuator.Timeout = Duration(5 * time.Second)
	}
	if cfg.Actuator.CommandDelay == 0 {
		cfg.Actuator.CommandDelay = Duration(600 * time.Millisecond)
	}

	// Control defaults
	if cfg.Control.ReadSamples == 0 {
		cfg.Control.ReadSamples = 3
	}
	if cfg.Control.ReadDelay == 0 {
		cfg.Control.ReadDelay = Duration(1200 * time.Millisecond)
	}
	if cfg.Control.SettleDelay == 0 {
		cfg.Control.SettleDelay = Duration(2 * time.Second)
	}
	if cfg.Control.KeepAliveInterval == 0 {
		cfg.Control.KeepAliveInterval = Duration(40 * time.Second)
	}
	if cfg.Control.TargetSyncInterval == 0 {
		cfg.Control.TargetSyncInterval = Duration(10 * time.Minute)
	}

	// Database defaults
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./heaterd.sqlite"
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.Retention == 0 {
		cfg.Ledger.Retention = Duration(30 * 24 * time.Hour)
	}

	// API defaults
	if cfg.API.Host == "" {
		cfg.API.Host = "0.0.0.0"
	}
	if cfg.API.Port == 0 {
		cfg.API.Port = 9190
	}

	// Debug defaults
	if cfg.Debug.Dir == "" {
		cfg.Debug.Dir = "./debug"
	}
	if cfg.Debug.Scale == 0 {
		cfg.Debug.Scale = 5
	}
	if cfg.Debug.MaxTicks == 0 {
		cfg.Debug.MaxTicks = 20
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// validate checks types and ranges of individual fields. Cross-field
// consistency (e.g. icon rectangles inside the panel) is not required;
// out-of-bounds geometry degrades to "no reading" at decode time.
func validate(cfg *Config) error {
	if cfg.Camera.SnapshotURL == "" {
		return fmt.Errorf("camera.snapshot_url is required")
	}
	if cfg.Vision.ValidMin >= cfg.Vision.ValidMax {
		return fmt.Errorf("vision: valid_min (%d) must be below valid_max (%d)",
			cfg.Vision.ValidMin, cfg.Vision.ValidMax)
	}
	for name, r := range map[string]ROI{
		"panel":   cfg.Vision.Panel,
		"digits":  cfg.Vision.Digits,
		"setting": cfg.Vision.Setting,
		"low":     cfg.Vision.Low,
		"half":    cfg.Vision.Half,
		"full":    cfg.Vision.Full,
	} {
		if r.W <= 0 || r.H <= 0 {
			return fmt.Errorf("vision.%s: width and height must be positive", name)
		}
		if r.X < 0 || r.Y < 0 {
			return fmt.Errorf("vision.%s: offset must not be negative", name)
		}
	}
	if cfg.Vision.ActiveRatio < 0 || cfg.Vision.ActiveRatio > 1 {
		return fmt.Errorf("vision.active_ratio must be within [0,1]")
	}
	if cfg.Vision.ModeActiveRatio < 0 || cfg.Vision.ModeActiveRatio > 1 {
		return fmt.Errorf("vision.mode_active_ratio must be within [0,1]")
	}
	if cfg.Vision.OCRPresenceMin < 0 || cfg.Vision.OCRPresenceMin > 1 {
		return fmt.Errorf("vision.ocr_presence_min must be within [0,1]")
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
