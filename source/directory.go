// Package source - reads farm images from local storage.
package source

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/nvr-ai/dropsight/images"
)

// ErrNoImages is returned by Latest when the directory holds no images.
var ErrNoImages = errors.New("no images found")

// ImageFile describes one image file in a directory.
type ImageFile struct {
	// ID is the file name, relative to the directory root.
	ID string
	// Path is the full path to the file.
	Path string
	// ModTime is the last modification time of the file.
	ModTime time.Time
	// Size is the file size in bytes.
	Size int64
}

// Directory serves images stored as files under Root. Identifiers are file
// names relative to Root.
type Directory struct {
	Root string
}

// NewDirectory returns a source for the images under root.
func NewDirectory(root string) (*Directory, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "image directory %s", root)
	}
	if !info.IsDir() {
		return nil, errors.Errorf("image directory %s is not a directory", root)
	}

	return &Directory{Root: root}, nil
}

// isImageFile reports whether the extension is one the pipeline can decode.
func isImageFile(name string) bool {
	switch images.FormatFromExtension(filepath.Ext(name)) {
	case images.FormatJPEG, images.FormatPNG, images.FormatWebP:
		return true
	}
	return false
}

// resolve maps an identifier to a path under Root, refusing anything that
// escapes it.
func (d *Directory) resolve(id string) (string, error) {
	clean := filepath.Clean("/" + filepath.ToSlash(id))
	if clean == "/" {
		return "", errors.Errorf("invalid image identifier %q", id)
	}
	return filepath.Join(d.Root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// Fetch reads one image.
//
// Arguments:
//   - ctx: Checked before reading.
//   - id: The file name relative to Root.
//
// Returns:
//   - *images.Image: The image, with its format sniffed from the content and
//     CapturedAt set to the file modification time.
//   - error: If the file is missing, unreadable or not an image.
func (d *Directory) Fetch(ctx context.Context, id string) (*images.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !isImageFile(id) {
		return nil, errors.Errorf("unsupported image type %q", id)
	}

	path, err := d.resolve(id)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrapf(err, "image %s", id)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading image %s", id)
	}

	format := images.DetectFormat(data)
	if format == images.FormatUnknown {
		format = images.FormatFromExtension(filepath.Ext(id))
	}

	return &images.Image{
		ID:         id,
		Format:     format,
		Data:       data,
		CapturedAt: info.ModTime(),
	}, nil
}

// List returns the image files directly under Root, oldest first. Files with
// the same modification time are ordered by name.
func (d *Directory) List(ctx context.Context) ([]ImageFile, error) {
	entries, err := os.ReadDir(d.Root)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s", d.Root)
	}

	files := make([]ImageFile, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !isImageFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, errors.Wrapf(err, "stat %s", entry.Name())
		}
		files = append(files, ImageFile{
			ID:      entry.Name(),
			Path:    filepath.Join(d.Root, entry.Name()),
			ModTime: info.ModTime(),
			Size:    info.Size(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		if files[i].ModTime.Equal(files[j].ModTime) {
			return files[i].ID < files[j].ID
		}
		return files[i].ModTime.Before(files[j].ModTime)
	})

	return files, nil
}

// Latest fetches the most recently modified image.
func (d *Directory) Latest(ctx context.Context) (*images.Image, error) {
	files, err := d.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Wrap(ErrNoImages, d.Root)
	}

	return d.Fetch(ctx, files[len(files)-1].ID)
}

// FetchAll fetches every listed image, oldest first.
func (d *Directory) FetchAll(ctx context.Context) ([]*images.Image, error) {
	files, err := d.List(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]*images.Image, 0, len(files))
	for _, f := range files {
		img, err := d.Fetch(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, img)
	}

	return out, nil
}
