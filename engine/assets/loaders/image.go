package loaders

import (
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/spaghettifunk/morphix/engine/core"
	"github.com/spaghettifunk/morphix/engine/renderer/metadata"
)

// ImageLoader decodes JPEG, PNG, GIF, BMP and WebP files, honouring EXIF
// orientation the way a camera photo would be displayed.
type ImageLoader struct{}

func (il *ImageLoader) Load(path string, assetType metadata.ResourceType, params interface{}) (*metadata.Resource, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", core.ErrImageDecode, path, err)
	}
	if p, ok := params.(*metadata.ImageResourceParams); ok && p != nil && p.FlipY {
		img = imaging.FlipV(img)
	}
	return imageResource(path, img), nil
}

func (il *ImageLoader) Unload(res *metadata.Resource) error {
	if res != nil {
		res.Data = nil
	}
	return nil
}

// DecodeImage decodes an image from a stream, e.g. a capture that never hit disk.
func DecodeImage(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", core.ErrImageDecode, err)
	}
	return img, nil
}

// IsImageFile reports whether the extension is one ImageLoader can decode.
func IsImageFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".webp":
		return true
	}
	return false
}

func imageResource(path string, img image.Image) *metadata.Resource {
	b := img.Bounds()
	return &metadata.Resource{
		Type:     metadata.ResourceTypeImage,
		Name:     strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		FullPath: path,
		DataSize: uint64(b.Dx()) * uint64(b.Dy()) * 4,
		Data:     img,
	}
}
