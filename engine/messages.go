package engine

import (
	"github.com/spaghettifunk/morphix/engine/renderer/metadata"
)

// message is what the frame loop accepts on its inbox.
type message interface {
	isMessage()
}

type scanRequested struct {
	source ScanSource
}

// databaseReady carries the outcome of a scan job.
type databaseReady struct {
	source   ScanSource
	database *metadata.ImageDatabase
	err      error
}

// assetReady carries the outcome of the renderable build.
type assetReady struct {
	renderable *metadata.Renderable
	err        error
}

type lifecycleChanged struct {
	paused bool
}

type quitRequested struct{}

func (scanRequested) isMessage()    {}
func (databaseReady) isMessage()    {}
func (assetReady) isMessage()       {}
func (lifecycleChanged) isMessage() {}
func (quitRequested) isMessage()    {}

// loadError marks a scan that failed before any image data was read.
type loadError struct {
	err error
}

func (e *loadError) Error() string { return "load image: " + e.err.Error() }

func (e *loadError) Unwrap() error { return e.err }
