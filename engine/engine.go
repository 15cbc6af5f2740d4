package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spaghettifunk/morphix/engine/assets"
	"github.com/spaghettifunk/morphix/engine/core"
	"github.com/spaghettifunk/morphix/engine/journal"
	"github.com/spaghettifunk/morphix/engine/renderer/metadata"
	"github.com/spaghettifunk/morphix/engine/scene"
	"github.com/spaghettifunk/morphix/engine/session"
	"github.com/spaghettifunk/morphix/engine/systems"
	"github.com/spaghettifunk/morphix/engine/tracking"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

func (s Stage) String() string {
	switch s {
	case EngineStageInitializing:
		return "initializing"
	case EngineStageInitialized:
		return "initialized"
	case EngineStageRunning:
		return "running"
	case EngineStageShuttingDown:
		return "shutting down"
	}
	return "uninitialized"
}

// User-facing status lines outside the tracking reactor.
const (
	StatusScanning          = "Scanning..."
	StatusProcessing        = "Processing image..."
	StatusScanned           = "Image scanned. Now tracking..."
	StatusScanFailed        = "Image processing failed."
	StatusLoadFailed        = "Failed to load image."
	StatusAlreadyScanned    = "Image already scanned and tracking."
	StatusModelFailed       = "Failed to load 3D model."
	StatusPlatformTooOld    = "ARCore requires Android N or later."
	StatusGraphicsTooOld    = "ARCore requires OpenGL ES 3.0 or later."
	StatusDeviceUnsupported = "ARCore is not supported on this device."
	StatusSessionFailed     = "Failed to create AR session."
)

var ErrInvalidStage = errors.New("engine is not in the right stage")

// Dependencies are the collaborators the engine does not build itself.
type Dependencies struct {
	Session session.Session
	// Availability defaults to a simulated device built from the config.
	Availability session.AvailabilityChecker
	// Permission defaults to the config's camera_permission answer.
	Permission session.PermissionProvider
	// Journal is optional. The engine closes it on shutdown.
	Journal *journal.Journal
	NewID   core.IdentifierGenerator
	Now     func() time.Time
}

// ScanSource is what a scan reads from. A decoded Image wins over Path;
// relative paths resolve against the assets directory.
type ScanSource struct {
	Path  string
	Image image.Image
}

func (s ScanSource) String() string {
	if s.Image != nil {
		return "captured image"
	}
	return s.Path
}

// Summary is a snapshot of the engine, safe to read from any goroutine.
type Summary struct {
	Stage     Stage
	Metrics   core.MetricsSnapshot
	Reactor   tracking.Stats
	Anchors   int
	Scanned   bool
	Scanning  bool
	Suspended bool
}

// Engine owns the frame loop. Run is its only actor: tracking state, scan
// state and the session are touched from that goroutine alone; everything
// else talks to it through the inbox.
type Engine struct {
	gameInstance  *Game
	config        *ApplicationConfig
	events        *core.EventSystem
	status        *core.StatusBoard
	clock         *core.Clock
	metrics       *core.FrameMetrics
	assetManager  *assets.AssetManager
	systemManager *systems.SystemManager
	scene         *scene.Scene
	reactor       *tracking.Reactor
	session       session.Session
	availability  session.AvailabilityChecker
	permission    session.PermissionProvider
	journal       *journal.Journal

	inbox        chan message
	done         chan struct{}
	shutdownOnce sync.Once
	runWG        sync.WaitGroup
	// Set by EVENT_CODE_APPLICATION_QUIT, which may fire on the actor itself.
	quitPending  atomic.Bool

	// Actor state.
	isScanning bool
	scanned    bool
	suspended  bool
	lastTime   time.Duration

	mu           sync.Mutex
	currentStage Stage
	summary      Summary
}

func New(g *Game, deps Dependencies) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, fmt.Errorf("game and application config are required")
	}
	if deps.Session == nil {
		return nil, fmt.Errorf("%w: no session provided", core.ErrSessionUnavailable)
	}
	config := g.ApplicationConfig
	if err := config.Validate(); err != nil {
		return nil, err
	}
	core.SetLogLevel(config.LogLevel())

	if deps.Availability == nil {
		deps.Availability = session.NewSimulatedDevice(config.DeviceProfile())
	}
	if deps.Permission == nil {
		deps.Permission = session.StaticPermission(config.Device.CameraPermission)
	}

	am, err := assets.NewAssetManager(assets.AssetManagerConfig{})
	if err != nil {
		core.LogError("%s", err.Error())
		return nil, err
	}

	smConfig := systems.DefaultSystemManagerConfig()
	smConfig.JobWorkers = config.Jobs.Workers
	if config.Jobs.QueueSize > 0 {
		smConfig.JobQueueSize = config.Jobs.QueueSize
	}
	smConfig.Renderable.BuildDelay = time.Duration(config.Renderable.BuildDelay)
	smConfig.ImageDatabase.MinImageSize = config.Scan.MinImageSize
	smConfig.ImageDatabase.MaxImageSize = config.Scan.MaxImageSize
	sm, err := systems.NewSystemManager(smConfig)
	if err != nil {
		am.Shutdown()
		core.LogError("%s", err.Error())
		return nil, err
	}
	g.SystemManager = sm

	events := core.NewEventSystem()
	history := config.Application.StatusHistory
	if history <= 0 {
		history = 32
	}
	status := core.NewStatusBoard(history, events)
	sc := scene.New(scene.Config{
		MaxAnchors: config.Scene.MaxAnchors,
		NewID:      deps.NewID,
		Now:        deps.Now,
	})

	clock := core.NewClock()
	if deps.Now != nil {
		clock.Now = deps.Now
	}

	e := &Engine{
		gameInstance:  g,
		config:        config,
		events:        events,
		status:        status,
		clock:         clock,
		metrics:       core.NewFrameMetrics(),
		assetManager:  am,
		systemManager: sm,
		scene:         sc,
		reactor:       tracking.NewReactor(sc, status, events),
		session:       deps.Session,
		availability:  deps.Availability,
		permission:    deps.Permission,
		journal:       deps.Journal,
		inbox:         make(chan message, 32),
		done:          make(chan struct{}),
		currentStage:  EngineStageUninitialized,
	}

	// register some events
	events.Register(core.EVENT_CODE_APPLICATION_QUIT, e, e.onEvent)
	events.Register(core.EVENT_CODE_STATUS, e, e.onStatus)
	events.Register(core.EVENT_CODE_ANCHOR_CREATED, e, e.onAnchor)
	events.Register(core.EVENT_CODE_ANCHOR_RELEASED, e, e.onAnchor)
	events.Register(core.EVENT_CODE_ANCHOR_FAILED, e, e.onAnchor)
	if e.journal != nil {
		e.journal.Subscribe(events)
	}
	return e, nil
}

// Initialize runs the startup checks, starts the renderable build and
// brings the session up. Capability failures are fatal.
func (e *Engine) Initialize(ctx context.Context) error {
	if err := e.transition(EngineStageUninitialized, EngineStageInitializing); err != nil {
		return err
	}

	if err := e.checkCapability(ctx); err != nil {
		return e.fail(err)
	}
	if err := session.RequireCamera(ctx, e.permission); err != nil {
		e.status.Error("", session.StatusPermissionRequired)
		return e.fail(err)
	}

	if e.config.Scan.AssetsDir != "" {
		if err := e.assetManager.Initialize(e.config.Scan.AssetsDir); err != nil {
			// Scans can still read absolute paths and captured photos.
			core.LogWarn("assets not indexed: %s", err)
		}
	}
	if dir := e.config.Scan.CaptureDir; dir != "" {
		if err := e.assetManager.WatchCaptures(dir); err != nil {
			return e.fail(err)
		}
	}

	// The one and only renderable build. Its outcome comes back through the inbox.
	rc := e.config.Renderable
	e.systemManager.RenderableSystem.Build(metadata.RenderableConfig{
		Name:   rc.Name,
		Size:   rc.Size,
		Center: rc.center(),
		Colour: rc.colour(),
	}, func(r *metadata.Renderable, err error) {
		e.post(assetReady{renderable: r, err: err})
	})

	if err := e.session.Configure(e.config.SessionConfig()); err != nil {
		e.status.Error("", StatusSessionFailed)
		return e.fail(fmt.Errorf("%w: %s", core.ErrSessionUnavailable, err))
	}
	if err := e.session.Resume(); err != nil {
		e.status.Error("", StatusSessionFailed)
		return e.fail(fmt.Errorf("%w: %s", core.ErrSessionUnavailable, err))
	}

	if e.journal != nil {
		if err := e.journal.BeginSession(ctx, e.session.ID(), e.config.Application.Name); err != nil {
			core.LogWarn("journal disabled for this run: %s", err)
		}
	}

	if fn := e.gameInstance.FnInitialize; fn != nil {
		if err := fn(); err != nil {
			return e.fail(err)
		}
	}

	core.LogInfo("%s initialized (session %s)", e.config.Application.Name, e.session.ID())
	return e.transition(EngineStageInitializing, EngineStageInitialized)
}

func (e *Engine) checkCapability(ctx context.Context) error {
	var profile session.DeviceProfile
	if d, ok := e.availability.(interface{ Profile() session.DeviceProfile }); ok {
		profile = d.Profile()
	} else {
		profile = e.config.DeviceProfile()
	}
	err := session.CheckCapability(profile)
	if err == nil {
		retry := time.Duration(e.config.Session.AvailabilityRetry)
		err = session.WaitForAvailability(ctx, e.availability, retry)
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, core.ErrUnsupportedPlatform):
		e.status.Error("", StatusPlatformTooOld)
	case errors.Is(err, core.ErrUnsupportedGraphics):
		e.status.Error("", StatusGraphicsTooOld)
	case errors.Is(err, core.ErrUnsupportedDevice):
		e.status.Error("", StatusDeviceUnsupported)
	default:
		e.status.Error("", StatusSessionFailed)
	}
	return err
}

// Run drives the frame loop until the context ends, a quit is requested or
// the session has no more frames.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.currentStage != EngineStageInitialized {
		stage := e.currentStage
		e.mu.Unlock()
		return fmt.Errorf("%w: cannot run while %s", ErrInvalidStage, stage)
	}
	e.currentStage = EngineStageRunning
	e.runWG.Add(1)
	e.mu.Unlock()
	defer e.runWG.Done()

	ticker := time.NewTicker(e.config.FrameInterval())
	defer ticker.Stop()

	e.clock.Start()
	e.clock.Update()
	e.lastTime = e.clock.Elapsed()

	captures := e.assetManager.Captures()
	for {
		if e.quitPending.Swap(false) {
			core.LogInfo("quit event received, leaving the frame loop")
			return e.stopRunning(nil)
		}

		var err error
		select {
		case <-ctx.Done():
			core.LogInfo("context done, leaving the frame loop")
			return e.stopRunning(nil)
		case <-e.done:
			return e.stopRunning(nil)
		case msg := <-e.inbox:
			if _, quit := msg.(quitRequested); quit {
				core.LogInfo("quit requested, shutting down.")
				return e.stopRunning(nil)
			}
			e.handle(msg)
		case ev, ok := <-captures:
			if !ok {
				captures = nil
				continue
			}
			e.handle(scanRequested{source: ScanSource{Path: ev.Path}})
		case <-ticker.C:
			err = e.tick()
		}
		e.publish()

		if errors.Is(err, session.ErrScriptExhausted) {
			core.LogInfo("session has no more frames")
			return e.stopRunning(nil)
		}
		if err != nil {
			return e.stopRunning(err)
		}
	}
}

func (e *Engine) stopRunning(err error) error {
	e.publish()
	e.mu.Lock()
	if e.currentStage == EngineStageRunning {
		e.currentStage = EngineStageInitialized
	}
	e.mu.Unlock()
	return err
}

func (e *Engine) tick() error {
	if e.suspended {
		return nil
	}
	e.clock.Update()
	currentTime := e.clock.Elapsed()
	delta := (currentTime - e.lastTime).Seconds()
	frameStart := e.clock.Now()

	frame, err := e.session.Update()
	if errors.Is(err, session.ErrSessionPaused) {
		return nil
	}
	if err != nil {
		return err
	}
	if frame == nil {
		// No new camera image.
		e.metrics.Skip()
		return nil
	}

	e.reactor.OnFrame(frame.Reports)

	if fn := e.gameInstance.FnUpdate; fn != nil {
		if err := fn(frame, delta); err != nil {
			core.LogError("Game update failed, shutting down.")
			return err
		}
	}

	e.metrics.Update(e.clock.Now().Sub(frameStart))
	e.lastTime = currentTime
	return nil
}

func (e *Engine) handle(msg message) {
	switch m := msg.(type) {
	case scanRequested:
		e.onScanRequested(m)
	case databaseReady:
		e.onDatabaseReady(m)
	case assetReady:
		e.onAssetReady(m)
	case lifecycleChanged:
		e.onLifecycleChanged(m)
	}
}

func (e *Engine) onScanRequested(m scanRequested) {
	if e.isScanning {
		core.LogWarn("scan of %s ignored, another scan is processing", m.source)
		return
	}
	if e.scanned && !e.config.Scan.AllowRescan {
		e.status.Info("", StatusAlreadyScanned)
		return
	}

	e.isScanning = true
	e.status.Info("", StatusScanning)
	e.events.Fire(core.EventContext{Type: core.EVENT_CODE_SCAN_STARTED, Data: m.source.String()})

	source := m.source
	if source.Image == nil && source.Path == "" {
		source.Path = e.config.Scan.AssetPath
	}
	e.status.Info("", StatusProcessing)

	target := e.config.Scan.TargetName
	width := e.config.Scan.WidthMeters
	err := e.systemManager.JobSystem.Submit(metadata.JobTask{
		Name:    "scan:" + source.String(),
		JobType: metadata.JOB_TYPE_RESOURCE_LOAD,
		OnStart: func(ctx context.Context) (interface{}, error) {
			img := source.Image
			if img == nil {
				var err error
				if img, err = e.assetManager.LoadImage(source.Path); err != nil {
					return nil, &loadError{err: err}
				}
			}
			return e.systemManager.ImageDatabaseSystem.Build(ctx, systems.ImageSource{
				Name:        target,
				Image:       img,
				WidthMeters: width,
			})
		},
		OnComplete: func(result interface{}) {
			e.post(databaseReady{source: source, database: result.(*metadata.ImageDatabase)})
		},
		OnFailure: func(err error) {
			e.post(databaseReady{source: source, err: err})
		},
	})
	if err != nil {
		core.LogError("scan of %s not started: %s", source, err)
		e.scanFailed(source, err, StatusScanFailed)
	}
}

func (e *Engine) onDatabaseReady(m databaseReady) {
	e.isScanning = false
	if m.err != nil {
		var le *loadError
		if errors.As(m.err, &le) {
			core.LogError("failed to load image %s: %s", m.source, le.err)
			e.scanFailed(m.source, le.err, StatusLoadFailed)
			return
		}
		core.LogError("Error creating image database: %s", m.err)
		e.scanFailed(m.source, m.err, StatusScanFailed)
		return
	}

	cfg := e.config.SessionConfig()
	cfg.Database = m.database
	if err := e.session.Configure(cfg); err != nil {
		core.LogError("session rejected the new image database: %s", err)
		e.scanFailed(m.source, err, StatusScanFailed)
		return
	}
	if e.scanned {
		// A rescan starts tracking from scratch.
		e.reactor.Reset()
	}
	e.reactor.SetTargets(m.database.Names()...)
	e.scanned = true

	e.events.Fire(core.EventContext{Type: core.EVENT_CODE_DATABASE_READY, Data: m.source.String()})
	e.status.Info("", StatusScanned)
}

// scanFailed reports a scan that produced no database. Tracking of an earlier
// database, if any, carries on.
func (e *Engine) scanFailed(source ScanSource, err error, status string) {
	e.isScanning = false
	e.status.Error("", status)
	e.events.Fire(core.EventContext{
		Type: core.EVENT_CODE_SCAN_FAILED,
		Data: fmt.Errorf("scan of %s: %w", source, err),
	})
}

func (e *Engine) onAssetReady(m assetReady) {
	if m.err != nil || m.renderable == nil {
		core.LogError("Unable to load renderable: %v", m.err)
		e.status.Error("", StatusModelFailed)
		e.events.Fire(core.EventContext{Type: core.EVENT_CODE_RENDERABLE_READY, Data: m.err})
		return
	}
	e.reactor.OnAssetReady(m.renderable)
	e.events.Fire(core.EventContext{Type: core.EVENT_CODE_RENDERABLE_READY, Data: m.renderable.Name})
}

func (e *Engine) onLifecycleChanged(m lifecycleChanged) {
	if m.paused == e.suspended {
		return
	}
	if m.paused {
		if err := e.session.Pause(); err != nil {
			core.LogWarn("pausing session: %s", err)
		}
		e.suspended = true
		core.LogInfo("session paused")
		e.events.Fire(core.EventContext{Type: core.EVENT_CODE_SESSION_PAUSED})
		return
	}
	if err := e.session.Resume(); err != nil {
		core.LogError("Failed to create AR session: %s", err)
		e.status.Error("", StatusSessionFailed)
		return
	}
	e.suspended = false
	core.LogInfo("session resumed")
	e.events.Fire(core.EventContext{Type: core.EVENT_CODE_SESSION_RESUMED})
}

// Scan asks the engine to scan source. A zero source scans the bundled asset.
func (e *Engine) Scan(source ScanSource) error {
	return e.post(scanRequested{source: source})
}

func (e *Engine) Pause() error {
	return e.post(lifecycleChanged{paused: true})
}

func (e *Engine) Resume() error {
	return e.post(lifecycleChanged{paused: false})
}

// Quit stops Run after the messages already queued. It blocks while the inbox
// is full, so event listeners fire EVENT_CODE_APPLICATION_QUIT instead.
func (e *Engine) Quit() error {
	return e.post(quitRequested{})
}

func (e *Engine) post(m message) error {
	select {
	case <-e.done:
		return core.ErrEngineClosed
	default:
	}
	select {
	case e.inbox <- m:
		return nil
	case <-e.done:
		return core.ErrEngineClosed
	}
}

func (e *Engine) publish() {
	s := Summary{
		Metrics:   e.metrics.Snapshot(),
		Reactor:   e.reactor.Stats(),
		Anchors:   e.scene.Len(),
		Scanned:   e.scanned,
		Scanning:  e.isScanning,
		Suspended: e.suspended,
	}
	e.mu.Lock()
	s.Stage = e.currentStage
	e.summary = s
	e.mu.Unlock()
}

func (e *Engine) Summary() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.summary
	s.Stage = e.currentStage
	return s
}

func (e *Engine) Events() *core.EventSystem {
	return e.events
}

func (e *Engine) Status() *core.StatusBoard {
	return e.status
}

// Scene is the anchor graph. Read it only while Run is not active.
func (e *Engine) Scene() *scene.Scene {
	return e.scene
}

// Shutdown stops Run if it is active and releases every subsystem. It is
// safe to call more than once.
func (e *Engine) Shutdown() error {
	var err error
	e.shutdownOnce.Do(func() {
		e.mu.Lock()
		e.currentStage = EngineStageShuttingDown
		e.mu.Unlock()

		close(e.done)
		e.runWG.Wait()

		var errs []error
		if fn := e.gameInstance.FnShutdown; fn != nil {
			errs = append(errs, fn())
		}
		errs = append(errs,
			e.session.Close(),
			e.systemManager.Shutdown(),
			e.assetManager.Shutdown(),
			e.scene.Shutdown(),
		)
		if e.journal != nil {
			errs = append(errs, e.journal.Close())
		}
		errs = append(errs, e.events.Shutdown())
		err = errors.Join(errs...)
	})
	return err
}

func (e *Engine) transition(from, to Stage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentStage != from {
		return fmt.Errorf("%w: %s, expected %s", ErrInvalidStage, e.currentStage, from)
	}
	e.currentStage = to
	e.summary.Stage = to
	return nil
}

// fail puts the engine back to uninitialized after a startup error.
func (e *Engine) fail(err error) error {
	core.LogError("initialization failed: %s", err)
	e.mu.Lock()
	e.currentStage = EngineStageUninitialized
	e.mu.Unlock()
	return err
}

func (e *Engine) onEvent(context core.EventContext) bool {
	switch context.Type {
	case core.EVENT_CODE_APPLICATION_QUIT:
		core.LogInfo("EVENT_CODE_APPLICATION_QUIT received, shutting down.")
		e.quitPending.Store(true)
		return true
	}
	return false
}

func (e *Engine) onStatus(context core.EventContext) bool {
	s, ok := context.Data.(core.Status)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}
	if fn := e.gameInstance.FnOnStatus; fn != nil {
		fn(s)
	}
	return false
}

func (e *Engine) onAnchor(context core.EventContext) bool {
	ev, ok := context.Data.(tracking.AnchorEvent)
	if !ok {
		core.LogError("wrong event associated with the event type `%d`", context.Type)
		return false
	}
	if fn := e.gameInstance.FnOnAnchor; fn != nil {
		fn(context.Type, ev)
	}
	return false
}
