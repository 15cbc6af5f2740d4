package engine

import (
	"github.com/spaghettifunk/morphix/engine/core"
	"github.com/spaghettifunk/morphix/engine/systems"
	"github.com/spaghettifunk/morphix/engine/tracking"
)

// Game is the host application. Every hook is optional and runs on the
// engine goroutine.
type Game struct {
	ApplicationConfig *ApplicationConfig
	SystemManager     *systems.SystemManager
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnOnStatus        OnStatus
	FnOnAnchor        OnAnchor
	FnShutdown        Shutdown
}

type Initialize func() error
type Update func(frame *tracking.Frame, deltaTime float64) error
type OnStatus func(status core.Status)

// OnAnchor is told about every anchor lifecycle change.
type OnAnchor func(code core.EventCode, event tracking.AnchorEvent)
type Shutdown func() error
