package engine

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/spaghettifunk/morphix/engine/core"
	"github.com/spaghettifunk/morphix/engine/math"
	"github.com/spaghettifunk/morphix/engine/session"
)

// Duration reads "200ms"-style strings from the config file.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

type ApplicationConfig struct {
	Application ApplicationSection `toml:"application"`
	Scan        ScanSection        `toml:"scan"`
	Renderable  RenderableSection  `toml:"renderable"`
	Session     SessionSection     `toml:"session"`
	Device      DeviceSection      `toml:"device"`
	Scene       SceneSection       `toml:"scene"`
	Jobs        JobsSection        `toml:"jobs"`
	Journal     JournalSection     `toml:"journal"`
}

type ApplicationSection struct {
	// The application name used in logs and the journal.
	Name     string `toml:"name"`
	LogLevel string `toml:"log_level"`
	// Camera frames per second pulled from the session.
	FrameRate int `toml:"frame_rate"`
	// Size of the status history kept by the status board.
	StatusHistory int `toml:"status_history"`
}

type ScanSection struct {
	// Name the scanned image is tracked under.
	TargetName  string  `toml:"target_name"`
	WidthMeters float32 `toml:"width_meters"`
	AssetsDir   string  `toml:"assets_dir"`
	// Bundled image scanned when no photo is given. Relative to AssetsDir.
	AssetPath string `toml:"asset_path"`
	// Directory watched for captured photos. Empty disables watching.
	CaptureDir   string `toml:"capture_dir"`
	AllowRescan  bool   `toml:"allow_rescan"`
	MinImageSize int    `toml:"min_image_size"`
	MaxImageSize int    `toml:"max_image_size"`
}

type RenderableSection struct {
	Name   string     `toml:"name"`
	Size   float32    `toml:"size"`
	Center [3]float32 `toml:"center"`
	Colour [4]float32 `toml:"colour"`
	// Artificial build latency, for exercising the not-ready path.
	BuildDelay Duration `toml:"build_delay"`
}

type SessionSection struct {
	UpdateMode        string   `toml:"update_mode"`
	FocusMode         string   `toml:"focus_mode"`
	AvailabilityRetry Duration `toml:"availability_retry"`
}

// DeviceSection describes the simulated host device.
type DeviceSection struct {
	APILevel         int     `toml:"api_level"`
	GLESVersion      float64 `toml:"gles_version"`
	Availability     string  `toml:"availability"`
	PendingChecks    int     `toml:"pending_checks"`
	CameraPermission bool    `toml:"camera_permission"`
}

type SceneSection struct {
	MaxAnchors int `toml:"max_anchors"`
}

type JobsSection struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"`
}

type JournalSection struct {
	// sqlite file. Empty disables the journal.
	Path   string `toml:"path"`
	Buffer int    `toml:"buffer"`
}

func DefaultApplicationConfig() *ApplicationConfig {
	return &ApplicationConfig{
		Application: ApplicationSection{
			Name:          "morphix",
			LogLevel:      core.InfoLevel.String(),
			FrameRate:     30,
			StatusHistory: 32,
		},
		Scan: ScanSection{
			TargetName:   "scanned_image",
			WidthMeters:  0.2,
			AssetsDir:    "assets",
			AssetPath:    "reference.png",
			MinImageSize: 64,
			MaxImageSize: 1024,
		},
		Renderable: RenderableSection{
			Name:   "anchored_cube",
			Size:   0.1,
			Center: [3]float32{0, 0.05, 0},
			Colour: [4]float32{0, 0, 1, 1},
		},
		Session: SessionSection{
			UpdateMode:        session.UpdateModeLatestCameraImage.String(),
			FocusMode:         session.FocusModeAuto.String(),
			AvailabilityRetry: Duration(200 * time.Millisecond),
		},
		Device: DeviceSection{
			APILevel:         session.MinAPILevel,
			GLESVersion:      session.MinGLESVersion,
			Availability:     "supported",
			CameraPermission: true,
		},
		Scene: SceneSection{
			MaxAnchors: 16,
		},
		Jobs: JobsSection{
			Workers:   2,
			QueueSize: 16,
		},
		Journal: JournalSection{
			Buffer: 256,
		},
	}
}

// LoadApplicationConfig reads a TOML file on top of the defaults. Unknown
// keys are rejected.
func LoadApplicationConfig(path string) (*ApplicationConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	cfg, err := ParseApplicationConfig(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func ParseApplicationConfig(data []byte) (*ApplicationConfig, error) {
	cfg := DefaultApplicationConfig()
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return nil, fmt.Errorf("unknown config keys:\n%s", strict.String())
		}
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ApplicationConfig) Validate() error {
	var errs []error
	if _, ok := core.ParseLogLevel(c.Application.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("application.log_level: unknown level %q", c.Application.LogLevel))
	}
	if c.Application.FrameRate <= 0 {
		errs = append(errs, fmt.Errorf("application.frame_rate must be positive, got %d", c.Application.FrameRate))
	}
	if c.Scan.TargetName == "" {
		errs = append(errs, errors.New("scan.target_name is required"))
	}
	if c.Scan.WidthMeters < 0 {
		errs = append(errs, fmt.Errorf("scan.width_meters must not be negative, got %v", c.Scan.WidthMeters))
	}
	if c.Scan.MaxImageSize > 0 && c.Scan.MaxImageSize < c.Scan.MinImageSize {
		errs = append(errs, fmt.Errorf("scan.max_image_size %d is below min_image_size %d", c.Scan.MaxImageSize, c.Scan.MinImageSize))
	}
	if c.Renderable.Size <= 0 {
		errs = append(errs, fmt.Errorf("renderable.size must be positive, got %v", c.Renderable.Size))
	}
	if _, err := session.ParseUpdateMode(c.Session.UpdateMode); err != nil {
		errs = append(errs, fmt.Errorf("session.update_mode: %w", err))
	}
	if _, err := session.ParseFocusMode(c.Session.FocusMode); err != nil {
		errs = append(errs, fmt.Errorf("session.focus_mode: %w", err))
	}
	if _, err := parseAvailability(c.Device.Availability); err != nil {
		errs = append(errs, fmt.Errorf("device.availability: %w", err))
	}
	if c.Scene.MaxAnchors < 0 {
		errs = append(errs, fmt.Errorf("scene.max_anchors must not be negative, got %d", c.Scene.MaxAnchors))
	}
	if c.Jobs.Workers <= 0 {
		errs = append(errs, fmt.Errorf("jobs.workers must be positive, got %d", c.Jobs.Workers))
	}
	return errors.Join(errs...)
}

func (c *ApplicationConfig) FrameInterval() time.Duration {
	return time.Second / time.Duration(c.Application.FrameRate)
}

func (c *ApplicationConfig) LogLevel() core.LogLevel {
	level, _ := core.ParseLogLevel(c.Application.LogLevel)
	return level
}

func (c *ApplicationConfig) DeviceProfile() session.DeviceProfile {
	availability, _ := parseAvailability(c.Device.Availability)
	return session.DeviceProfile{
		APILevel:      c.Device.APILevel,
		GLESVersion:   c.Device.GLESVersion,
		Availability:  availability,
		PendingChecks: c.Device.PendingChecks,
	}
}

func (c *ApplicationConfig) SessionConfig() session.Config {
	update, _ := session.ParseUpdateMode(c.Session.UpdateMode)
	focus, _ := session.ParseFocusMode(c.Session.FocusMode)
	return session.Config{UpdateMode: update, FocusMode: focus}
}

func (s RenderableSection) center() math.Vec3 {
	return math.NewVec3(s.Center[0], s.Center[1], s.Center[2])
}

func (s RenderableSection) colour() math.Vec4 {
	return math.NewVec4(s.Colour[0], s.Colour[1], s.Colour[2], s.Colour[3])
}

func parseAvailability(s string) (session.Availability, error) {
	switch s {
	case "", "supported":
		return session.AvailabilitySupported, nil
	case "unsupported":
		return session.AvailabilityUnsupported, nil
	case "unknown":
		return session.AvailabilityUnknown, nil
	}
	return session.AvailabilityUnknown, fmt.Errorf("unknown availability %q", s)
}
