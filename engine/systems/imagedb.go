package systems

import (
	"context"
	"fmt"
	"image"
	gomath "math"

	"github.com/disintegration/imaging"

	"github.com/spaghettifunk/morphix/engine/core"
	"github.com/spaghettifunk/morphix/engine/renderer/metadata"
)

type ImageDatabaseSystemConfig struct {
	// MinImageSize is the smallest accepted side, in pixels.
	MinImageSize int
	// MaxImageSize caps the longer side; larger images are downscaled.
	MaxImageSize int
}

// ImageSource is one image waiting to become a reference image.
type ImageSource struct {
	Name        string
	Image       image.Image
	WidthMeters float32
}

// ImageDatabaseSystem turns decoded images into reference image databases.
type ImageDatabaseSystem struct {
	config ImageDatabaseSystemConfig
}

func NewImageDatabaseSystem(config ImageDatabaseSystemConfig) (*ImageDatabaseSystem, error) {
	if config.MinImageSize < 1 {
		config.MinImageSize = 1
	}
	if config.MaxImageSize > 0 && config.MaxImageSize < config.MinImageSize {
		return nil, fmt.Errorf("max image size %d is below min image size %d", config.MaxImageSize, config.MinImageSize)
	}
	return &ImageDatabaseSystem{config: config}, nil
}

// AddImage validates img, converts it to grayscale and adds it to db under
// name. A zero width means the physical size is unknown.
func (s *ImageDatabaseSystem) AddImage(db *metadata.ImageDatabase, name string, img image.Image, widthMeters float32) (int, error) {
	if img == nil {
		return -1, fmt.Errorf("%w: no pixel data for %q", core.ErrImageDecode, name)
	}
	w64 := float64(widthMeters)
	if w64 < 0 || gomath.IsNaN(w64) || gomath.IsInf(w64, 0) {
		return -1, fmt.Errorf("%w: width %v for %q must be zero (unknown) or a positive number of metres", core.ErrInvalidReferenceImage, widthMeters, name)
	}
	b := img.Bounds()
	if b.Dx() < s.config.MinImageSize || b.Dy() < s.config.MinImageSize {
		return -1, fmt.Errorf("%w: %q is %dx%d, need at least %dx%d", core.ErrInvalidReferenceImage, name, b.Dx(), b.Dy(), s.config.MinImageSize, s.config.MinImageSize)
	}

	ref := s.toReference(name, img, widthMeters)
	idx, err := db.Add(ref)
	if err != nil {
		return -1, err
	}
	core.LogDebug("reference image '%s' added (%dx%d, %.3fm)", name, ref.Width, ref.Height, widthMeters)
	return idx, nil
}

func (s *ImageDatabaseSystem) toReference(name string, img image.Image, widthMeters float32) metadata.ReferenceImage {
	if maxSide := s.config.MaxImageSize; maxSide > 0 {
		b := img.Bounds()
		if b.Dx() > maxSide || b.Dy() > maxSide {
			if b.Dx() >= b.Dy() {
				img = imaging.Resize(img, maxSide, 0, imaging.Lanczos)
			} else {
				img = imaging.Resize(img, 0, maxSide, imaging.Lanczos)
			}
		}
	}
	gray := imaging.Grayscale(img)
	bounds := gray.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	pixels := make([]uint8, 0, w*h)
	for y := 0; y < h; y++ {
		row := gray.Pix[y*gray.Stride : y*gray.Stride+w*4]
		for x := 0; x < w; x++ {
			pixels = append(pixels, row[x*4])
		}
	}
	return metadata.ReferenceImage{
		Name:          name,
		Width:         uint32(w),
		Height:        uint32(h),
		Pixels:        pixels,
		PhysicalWidth: widthMeters,
	}
}

// Build creates a fresh database from sources. Any invalid source fails the
// whole build; the result is never partially filled.
func (s *ImageDatabaseSystem) Build(ctx context.Context, sources ...ImageSource) (*metadata.ImageDatabase, error) {
	if len(sources) == 0 {
		return nil, fmt.Errorf("%w: no images to build a database from", core.ErrInvalidReferenceImage)
	}
	db := metadata.NewImageDatabase()
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if _, err := s.AddImage(db, src.Name, src.Image, src.WidthMeters); err != nil {
			return nil, err
		}
	}
	return db, nil
}
