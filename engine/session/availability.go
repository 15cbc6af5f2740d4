package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spaghettifunk/morphix/engine/core"
)

const (
	MinAPILevel    = 24
	MinGLESVersion = 3.0
)

// Availability is the AR platform's answer about this device.
type Availability uint8

const (
	AvailabilitySupported Availability = iota
	AvailabilityUnsupported
	AvailabilityUnknown
)

// DeviceProfile describes the host the session would run on.
type DeviceProfile struct {
	APILevel     int
	GLESVersion  float64
	Availability Availability
	// PendingChecks is how many availability checks answer "still determining"
	// before the real answer comes back.
	PendingChecks int
}

// AvailabilityChecker asks the AR platform whether it supports the device.
// It returns core.ErrAvailabilityPending while the answer is not known yet.
type AvailabilityChecker interface {
	CheckAvailability() error
}

// CheckCapability validates the static requirements of the device.
func CheckCapability(device DeviceProfile) error {
	if device.APILevel < MinAPILevel {
		return fmt.Errorf("%w: API level %d, need %d", core.ErrUnsupportedPlatform, device.APILevel, MinAPILevel)
	}
	if device.GLESVersion < MinGLESVersion {
		return fmt.Errorf("%w: OpenGL ES %.1f, need %.1f", core.ErrUnsupportedGraphics, device.GLESVersion, MinGLESVersion)
	}
	return nil
}

// SimulatedDevice answers availability checks from a DeviceProfile.
type SimulatedDevice struct {
	profile DeviceProfile
	checks  int
}

func NewSimulatedDevice(profile DeviceProfile) *SimulatedDevice {
	return &SimulatedDevice{profile: profile}
}

func (d *SimulatedDevice) Profile() DeviceProfile {
	return d.profile
}

func (d *SimulatedDevice) CheckAvailability() error {
	d.checks++
	if d.checks <= d.profile.PendingChecks || d.profile.Availability == AvailabilityUnknown {
		return core.ErrAvailabilityPending
	}
	if d.profile.Availability == AvailabilityUnsupported {
		return core.ErrUnsupportedDevice
	}
	return nil
}

// Checks is the number of availability checks answered so far.
func (d *SimulatedDevice) Checks() int {
	return d.checks
}

// WaitForAvailability retries the check every retry interval while the
// platform is still determining support.
func WaitForAvailability(ctx context.Context, checker AvailabilityChecker, retry time.Duration) error {
	if retry <= 0 {
		retry = 200 * time.Millisecond
	}
	for attempt := 1; ; attempt++ {
		err := checker.CheckAvailability()
		if !errors.Is(err, core.ErrAvailabilityPending) {
			return err
		}
		core.LogDebug("AR availability pending (attempt %d), retrying in %s", attempt, retry)
		timer := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %s", core.ErrAvailabilityPending, ctx.Err())
		case <-timer.C:
		}
	}
}
