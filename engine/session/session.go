package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/rand"

	"github.com/spaghettifunk/morphix/engine/core"
	"github.com/spaghettifunk/morphix/engine/math"
	"github.com/spaghettifunk/morphix/engine/tracking"
)

var (
	ErrSessionPaused   = errors.New("session is paused")
	ErrScriptExhausted = errors.New("session script exhausted")
)

// Session is the AR platform as the engine sees it.
type Session interface {
	ID() string
	Configure(cfg Config) error
	Resume() error
	Pause() error
	// Update returns the next frame, or nil when no new camera image is ready.
	Update() (*tracking.Frame, error)
	Close() error
}

type SimulatedOptions struct {
	Seed   uint64
	Now    func() time.Time
	NewID  core.IdentifierGenerator
	Device *SimulatedDevice
}

// SimulatedSession replays a Script. Until a database with at least one
// image is configured it delivers empty frames; afterwards it delivers the
// script's reports for images the database knows.
type SimulatedSession struct {
	mu      sync.Mutex
	id      string
	script  *Script
	cursor  int
	frame   uint64
	config  Config
	running bool
	closed  bool
	rng     *rand.Rand
	now     func() time.Time
}

func NewSimulatedSession(script *Script, opts SimulatedOptions) (*SimulatedSession, error) {
	if script == nil || len(script.Steps) == 0 {
		return nil, fmt.Errorf("%w: script has no frames", core.ErrSessionUnavailable)
	}
	if opts.Device != nil {
		if err := CheckCapability(opts.Device.Profile()); err != nil {
			return nil, err
		}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = core.NewIdentifier
	}
	return &SimulatedSession{
		id:     opts.NewID(),
		script: script,
		rng:    rand.New(rand.NewSource(opts.Seed)),
		now:    opts.Now,
	}, nil
}

func (s *SimulatedSession) ID() string {
	return s.id
}

func (s *SimulatedSession) Configure(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrSessionUnavailable
	}
	if cfg.UpdateMode > UpdateModeBlocking || cfg.FocusMode > FocusModeFixed {
		return fmt.Errorf("%w: unsupported configuration %s/%s", core.ErrSessionUnavailable, cfg.UpdateMode, cfg.FocusMode)
	}
	s.config = cfg
	core.LogInfo("session %s configured: %d reference image(s), update=%s focus=%s", s.id, cfg.Database.Len(), cfg.UpdateMode, cfg.FocusMode)
	return nil
}

func (s *SimulatedSession) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrSessionUnavailable
	}
	s.running = true
	return nil
}

func (s *SimulatedSession) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return core.ErrSessionUnavailable
	}
	s.running = false
	return nil
}

func (s *SimulatedSession) Update() (*tracking.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, core.ErrSessionUnavailable
	}
	if !s.running {
		return nil, ErrSessionPaused
	}

	// Nothing to detect yet: the camera runs but reports nothing.
	if s.config.Database.Len() == 0 {
		return s.newFrame(nil), nil
	}

	for {
		step, ok := s.next()
		if !ok {
			return nil, ErrScriptExhausted
		}
		if step.Skip {
			if s.config.UpdateMode == UpdateModeBlocking {
				continue
			}
			return nil, nil
		}
		return s.newFrame(s.visible(step.Reports)), nil
	}
}

func (s *SimulatedSession) next() (ScriptStep, bool) {
	if s.cursor >= len(s.script.Steps) {
		if !s.script.Loop {
			return ScriptStep{}, false
		}
		s.cursor = 0
	}
	step := s.script.Steps[s.cursor]
	s.cursor++
	return step, true
}

// visible keeps the reports of images in the configured database.
func (s *SimulatedSession) visible(reports []tracking.TrackingReport) []tracking.TrackingReport {
	out := make([]tracking.TrackingReport, 0, len(reports))
	for _, r := range reports {
		if !s.config.Database.Contains(r.Target) {
			continue
		}
		if s.script.Jitter > 0 && r.State == tracking.TrackingStateTracking {
			r.Pose.Position = r.Pose.Position.Add(math.NewVec3(s.noise(), s.noise(), s.noise()))
		}
		out = append(out, r)
	}
	return out
}

func (s *SimulatedSession) noise() float32 {
	return (s.rng.Float32()*2 - 1) * s.script.Jitter
}

func (s *SimulatedSession) newFrame(reports []tracking.TrackingReport) *tracking.Frame {
	s.frame++
	return &tracking.Frame{
		Number:    s.frame,
		Timestamp: s.now(),
		Reports:   reports,
	}
}

// Remaining is the number of script steps not yet played.
func (s *SimulatedSession) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.script.Steps) - s.cursor
}

func (s *SimulatedSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.running = false
	return nil
}
