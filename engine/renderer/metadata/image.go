package metadata

import (
	"fmt"

	"github.com/spaghettifunk/morphix/engine/core"
)

/**
 * @brief A structure to hold decoded image data.
 */
type ImageResourceData struct {
	/** @brief The number of channels. */
	ChannelCount uint8
	/** @brief The width of the image. */
	Width uint32
	/** @brief The height of the image. */
	Height uint32
	/** @brief The pixel data of the image. */
	Pixels []uint8
}

/** @brief Parameters used when loading an image. */
type ImageResourceParams struct {
	/** @brief Indicates if the image should be flipped on the y-axis when loaded. */
	FlipY bool
}

// ReferenceImage is one named grayscale image the session can detect.
// PhysicalWidth is in metres; zero means unknown.
type ReferenceImage struct {
	Name          string
	Width         uint32
	Height        uint32
	Pixels        []uint8
	PhysicalWidth float32
}

// ImageDatabase is an ordered set of reference images with unique names.
// It is immutable once handed to a session.
type ImageDatabase struct {
	images []ReferenceImage
	index  map[string]int
}

func NewImageDatabase() *ImageDatabase {
	return &ImageDatabase{index: make(map[string]int)}
}

func (db *ImageDatabase) Add(img ReferenceImage) (int, error) {
	if img.Name == "" {
		return -1, fmt.Errorf("%w: empty name", core.ErrInvalidReferenceImage)
	}
	if _, ok := db.index[img.Name]; ok {
		return -1, fmt.Errorf("%w: duplicate name %q", core.ErrInvalidReferenceImage, img.Name)
	}
	db.images = append(db.images, img)
	db.index[img.Name] = len(db.images) - 1
	return len(db.images) - 1, nil
}

func (db *ImageDatabase) Get(name string) (ReferenceImage, bool) {
	if db == nil {
		return ReferenceImage{}, false
	}
	i, ok := db.index[name]
	if !ok {
		return ReferenceImage{}, false
	}
	return db.images[i], true
}

func (db *ImageDatabase) Contains(name string) bool {
	_, ok := db.Get(name)
	return ok
}

func (db *ImageDatabase) Len() int {
	if db == nil {
		return 0
	}
	return len(db.images)
}

// Names returns the image names in insertion order.
func (db *ImageDatabase) Names() []string {
	if db == nil {
		return nil
	}
	names := make([]string, len(db.images))
	for i, img := range db.images {
		names[i] = img.Name
	}
	return names
}
