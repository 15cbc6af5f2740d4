package assets

import (
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/spaghettifunk/morphix/engine/assets/loaders"
	"github.com/spaghettifunk/morphix/engine/core"
	"github.com/spaghettifunk/morphix/engine/renderer/metadata"
)

var ErrManagerClosed = errors.New("asset manager already closed")

type AssetInfo struct {
	Path       string
	Type       metadata.ResourceType
	LastLoaded time.Time
}

// CaptureEvent announces a new (or rewritten) photo in a watched capture directory.
type CaptureEvent struct {
	Path string
	At   time.Time
}

type AssetManagerConfig struct {
	// Settle is how long a captured file must stay unchanged before it is announced.
	Settle time.Duration
	// CaptureBuffer bounds the capture channel; events beyond it are dropped.
	CaptureBuffer int
}

type AssetManager struct {
	config  AssetManagerConfig
	root    string
	assets  map[string]AssetInfo
	loaders map[metadata.ResourceType]Loader

	mutex sync.RWMutex

	done        chan struct{}
	fsnotify    *fsnotify.Watcher
	isClosed    bool
	captureDirs map[string]struct{}
	pending     map[string]*time.Timer
	captures    chan CaptureEvent
	wg          sync.WaitGroup
}

func NewAssetManager(config AssetManagerConfig) (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if config.Settle <= 0 {
		config.Settle = 100 * time.Millisecond
	}
	if config.CaptureBuffer <= 0 {
		config.CaptureBuffer = 8
	}

	am := &AssetManager{
		config:      config,
		assets:      make(map[string]AssetInfo),
		loaders:     make(map[metadata.ResourceType]Loader),
		fsnotify:    fsWatch,
		done:        make(chan struct{}),
		captureDirs: make(map[string]struct{}),
		pending:     make(map[string]*time.Timer),
		captures:    make(chan CaptureEvent, config.CaptureBuffer),
	}

	// Register loaders
	am.registerLoader(metadata.ResourceTypeImage, &loaders.ImageLoader{})
	am.registerLoader(metadata.ResourceTypeBinary, &loaders.BinaryLoader{})
	am.registerLoader(metadata.ResourceTypeScript, &loaders.BinaryLoader{})
	am.registerLoader(metadata.ResourceTypeText, &loaders.BinaryLoader{})

	am.wg.Add(1)
	go am.start()
	return am, nil
}

// Initialize indexes every known asset under assetsDir. Relative asset paths
// are resolved against it afterwards.
func (am *AssetManager) Initialize(assetsDir string) error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return ErrManagerClosed
	}
	am.root = assetsDir
	am.mutex.Unlock()

	if _, err := os.Stat(assetsDir); err != nil {
		return fmt.Errorf("assets directory: %w", err)
	}
	return filepath.Walk(assetsDir, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			am.handleFileEvent(walkPath)
		}
		return nil
	})
}

// WatchCaptures starts watching dir (non-recursively) for new photos.
func (am *AssetManager) WatchCaptures(dir string) error {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if am.isClosed {
		return ErrManagerClosed
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	clean := filepath.Clean(dir)
	if err := am.fsnotify.Add(clean); err != nil {
		return err
	}
	am.captureDirs[clean] = struct{}{}
	core.LogInfo("watching '%s' for captured images", clean)
	return nil
}

// Captures delivers capture events until the manager shuts down.
func (am *AssetManager) Captures() <-chan CaptureEvent {
	return am.captures
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType metadata.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

// LoadAsset loads a resource with the loader registered for resourceType.
func (am *AssetManager) LoadAsset(path string, resourceType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	am.mutex.RLock()
	loader, loaderExists := am.loaders[resourceType]
	resolved := am.resolve(path)
	am.mutex.RUnlock()
	if !loaderExists {
		return nil, fmt.Errorf("no loader registered for asset type: %s", resourceType)
	}

	res, err := loader.Load(resolved, resourceType, params)
	if err != nil {
		return nil, err
	}

	am.mutex.Lock()
	am.assets[resolved] = AssetInfo{Path: resolved, Type: resourceType, LastLoaded: time.Now()}
	am.mutex.Unlock()
	return res, nil
}

// LoadImage is LoadAsset for images, returning the decoded image.
func (am *AssetManager) LoadImage(path string) (image.Image, error) {
	res, err := am.LoadAsset(path, metadata.ResourceTypeImage, nil)
	if err != nil {
		return nil, err
	}
	img, ok := res.Data.(image.Image)
	if !ok {
		return nil, fmt.Errorf("%w: %s did not decode to an image", core.ErrImageDecode, path)
	}
	return img, nil
}

func (am *AssetManager) UnloadAsset(asset *metadata.Resource) error {
	if asset == nil {
		return nil
	}
	am.mutex.RLock()
	loader, ok := am.loaders[asset.Type]
	am.mutex.RUnlock()
	if !ok {
		return nil
	}
	return loader.Unload(asset)
}

// Lookup returns what the manager knows about an indexed asset.
func (am *AssetManager) Lookup(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[am.resolve(path)]
	return info, ok
}

func (am *AssetManager) resolve(path string) string {
	if filepath.IsAbs(path) || am.root == "" {
		return path
	}
	if _, err := os.Stat(path); err == nil {
		return path
	}
	return filepath.Join(am.root, path)
}

func (am *AssetManager) Shutdown() error {
	am.mutex.Lock()
	if am.isClosed {
		am.mutex.Unlock()
		return nil
	}
	am.isClosed = true
	for p, t := range am.pending {
		t.Stop()
		delete(am.pending, p)
	}
	am.mutex.Unlock()

	close(am.done)
	am.wg.Wait()
	return nil
}

func (am *AssetManager) start() {
	defer am.wg.Done()
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				am.handleFileEvent(e.Name)
				am.scheduleCapture(e.Name)
			}
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				am.removeAsset(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("asset watcher: %s", err)

		case <-am.done:
			am.fsnotify.Close()
			am.mutex.Lock()
			close(am.captures)
			am.mutex.Unlock()
			return
		}
	}
}

// scheduleCapture announces path once it has been quiet for the settle period.
func (am *AssetManager) scheduleCapture(path string) {
	if !loaders.IsImageFile(path) {
		return
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	if am.isClosed {
		return
	}
	if _, ok := am.captureDirs[filepath.Dir(path)]; !ok {
		return
	}
	if t, ok := am.pending[path]; ok {
		t.Reset(am.config.Settle)
		return
	}
	am.pending[path] = time.AfterFunc(am.config.Settle, func() {
		am.mutex.Lock()
		defer am.mutex.Unlock()
		delete(am.pending, path)
		if am.isClosed {
			return
		}
		select {
		case am.captures <- CaptureEvent{Path: path, At: time.Now()}:
		default:
			core.LogWarn("capture queue full, dropping '%s'", path)
		}
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) handleFileEvent(path string) {
	assetType := determineAssetType(path)
	if assetType == metadata.ResourceTypeNone {
		return
	}
	am.mutex.Lock()
	defer am.mutex.Unlock()
	info := am.assets[path]
	info.Path = path
	info.Type = assetType
	am.assets[path] = info
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()
	delete(am.assets, path)
	if t, ok := am.pending[path]; ok {
		t.Stop()
		delete(am.pending, path)
	}
}

func determineAssetType(path string) metadata.ResourceType {
	if loaders.IsImageFile(path) {
		return metadata.ResourceTypeImage
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return metadata.ResourceTypeScript
	case ".txt", ".toml", ".env":
		return metadata.ResourceTypeText
	case ".bin":
		return metadata.ResourceTypeBinary
	default:
		return metadata.ResourceTypeNone
	}
}
