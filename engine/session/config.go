package session

import (
	"fmt"
	"strings"

	"github.com/spaghettifunk/morphix/engine/renderer/metadata"
)

// UpdateMode controls what Update does when no new camera image is ready.
type UpdateMode uint8

const (
	// UpdateModeLatestCameraImage returns immediately; a nil frame means nothing new.
	UpdateModeLatestCameraImage UpdateMode = iota
	// UpdateModeBlocking waits for the next camera image.
	UpdateModeBlocking
)

func (m UpdateMode) String() string {
	if m == UpdateModeBlocking {
		return "BLOCKING"
	}
	return "LATEST_CAMERA_IMAGE"
}

func ParseUpdateMode(s string) (UpdateMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "LATEST_CAMERA_IMAGE":
		return UpdateModeLatestCameraImage, nil
	case "BLOCKING":
		return UpdateModeBlocking, nil
	}
	return 0, fmt.Errorf("unknown update mode %q", s)
}

type FocusMode uint8

const (
	FocusModeAuto FocusMode = iota
	FocusModeFixed
)

func (m FocusMode) String() string {
	if m == FocusModeFixed {
		return "FIXED"
	}
	return "AUTO"
}

func ParseFocusMode(s string) (FocusMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "AUTO":
		return FocusModeAuto, nil
	case "FIXED":
		return FocusModeFixed, nil
	}
	return 0, fmt.Errorf("unknown focus mode %q", s)
}

// Config is what a session is (re)configured with. Database may be nil
// before the first scan.
type Config struct {
	Database   *metadata.ImageDatabase
	UpdateMode UpdateMode
	FocusMode  FocusMode
}
