package session

import (
	"context"
	"fmt"

	"github.com/spaghettifunk/morphix/engine/core"
)

const StatusPermissionRequired = "Camera permission is required to use AR."

// PermissionProvider asks the host for camera access.
type PermissionProvider interface {
	RequestCamera(ctx context.Context) (bool, error)
}

// StaticPermission always answers the same.
type StaticPermission bool

func (p StaticPermission) RequestCamera(context.Context) (bool, error) {
	return bool(p), nil
}

// RequireCamera turns a refusal into core.ErrPermissionDenied.
func RequireCamera(ctx context.Context, p PermissionProvider) error {
	granted, err := p.RequestCamera(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s", core.ErrPermissionDenied, err)
	}
	if !granted {
		return core.ErrPermissionDenied
	}
	return nil
}
