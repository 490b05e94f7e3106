package naming

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gosimple/slug"
	"github.com/nfnt/resize"
	"github.com/streambinder/spotitag/entity"
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/jpg":  ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/bmp":  ".bmp",
	"image/webp": ".webp",
}

// SaveImages writes the embedded images of metadata next to the file at path,
// returning the paths written to
func (policy *Policy) SaveImages(path string, metadata *entity.Metadata) (written []string, err error) {
	if !policy.settings.SaveImages || len(metadata.Images) == 0 {
		return nil, nil
	}

	name, err := policy.coverName(metadata)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(path)
	for _, cover := range metadata.Images {
		data, err := policy.downscale(cover)
		if err != nil {
			return written, err
		}

		extension, ok := imageExtensions[strings.ToLower(cover.MIME)]
		if !ok {
			extension = ".jpg"
		}
		target := filepath.Join(dir, name+extension)
		for counter := 1; ; counter++ {
			info, err := os.Stat(target)
			if err != nil {
				break
			}
			// same image already saved
			if info.Size() == int64(len(data)) {
				target = ""
				break
			}
			target = filepath.Join(dir, fmt.Sprintf("%s (%d)%s", name, counter, extension))
		}
		if target == "" {
			continue
		}

		if err := os.MkdirAll(dir, 0o755); err != nil {
			return written, err
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return written, fmt.Errorf("save image %s: %w", target, err)
		}
		written = append(written, target)
	}
	return written, nil
}

func (policy *Policy) coverName(metadata *entity.Metadata) (string, error) {
	name, err := policy.formatter.Format(policy.settings.CoverImageFilename, metadata)
	if err != nil {
		return "", err
	}
	name = strings.TrimSpace(policy.Sanitize(name))
	if name == "" {
		name = slug.Make(metadata.Get(entity.TagAlbum, ""))
	}
	if name == "" {
		name = "cover"
	}
	return name, nil
}

// downscale shrinks images exceeding the configured size,
// formats which can't be decoded are kept as they are
func (policy *Policy) downscale(cover entity.Image) ([]byte, error) {
	size := policy.settings.CoverMaxSize
	if size == 0 {
		return cover.Data, nil
	}

	decoded, format, err := image.Decode(bytes.NewReader(cover.Data))
	if err != nil {
		return cover.Data, nil
	}
	bounds := decoded.Bounds()
	if uint(bounds.Dx()) <= size && uint(bounds.Dy()) <= size {
		return cover.Data, nil
	}

	var (
		resized = resize.Thumbnail(size, size, decoded, resize.Lanczos3)
		buffer  bytes.Buffer
	)
	switch format {
	case "png":
		err = png.Encode(&buffer, resized)
	default:
		err = jpeg.Encode(&buffer, resized, &jpeg.Options{Quality: 90})
	}
	if err != nil {
		return nil, fmt.Errorf("encode resized image: %w", err)
	}
	return buffer.Bytes(), nil
}
