package core

import (
	"errors"
)

var (
	// Capability errors. Fatal to the AR flow.
	ErrUnsupportedPlatform = errors.New("platform API level too old for AR")
	ErrUnsupportedGraphics = errors.New("graphics API version too old for AR")
	ErrUnsupportedDevice   = errors.New("AR is not supported on this device")
	ErrPermissionDenied    = errors.New("camera permission denied")
	ErrSessionUnavailable  = errors.New("AR session unavailable")

	// Transient availability. Retried after a fixed delay.
	ErrAvailabilityPending = errors.New("AR availability still being determined")

	// Asset errors. Augmentation degrades but tracking keeps running.
	ErrImageDecode           = errors.New("failed to decode image")
	ErrInvalidReferenceImage = errors.New("invalid reference image")
	ErrRenderableBuild       = errors.New("failed to build renderable")

	// Anchor errors. Recoverable on the next frame.
	ErrAnchorCreate = errors.New("failed to create anchor")

	ErrEngineClosed = errors.New("engine is shut down")
	ErrUnknown      = errors.New("unknown")
)

type ErrorKind uint8

const (
	ErrorKindUnknown ErrorKind = iota
	ErrorKindCapability
	ErrorKindTransient
	ErrorKindAsset
	ErrorKindAnchor
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindCapability:
		return "capability"
	case ErrorKindTransient:
		return "transient"
	case ErrorKindAsset:
		return "asset"
	case ErrorKindAnchor:
		return "anchor"
	}
	return "unknown"
}

// Classify maps an error chain onto the error taxonomy used to decide
// whether the AR flow stops, retries, degrades or just reports.
func Classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorKindUnknown
	case errors.Is(err, ErrUnsupportedPlatform),
		errors.Is(err, ErrUnsupportedGraphics),
		errors.Is(err, ErrUnsupportedDevice),
		errors.Is(err, ErrPermissionDenied),
		errors.Is(err, ErrSessionUnavailable):
		return ErrorKindCapability
	case errors.Is(err, ErrAvailabilityPending):
		return ErrorKindTransient
	case errors.Is(err, ErrImageDecode),
		errors.Is(err, ErrInvalidReferenceImage),
		errors.Is(err, ErrRenderableBuild):
		return ErrorKindAsset
	case errors.Is(err, ErrAnchorCreate):
		return ErrorKindAnchor
	}
	return ErrorKindUnknown
}

// IsFatal reports whether err must end the AR flow.
func IsFatal(err error) bool {
	return Classify(err) == ErrorKindCapability
}
