package vm

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// ---------------------------------------------------------------------------
// Image files: rasters on disk, chosen by extension
// ---------------------------------------------------------------------------

// Format identifies an on-disk raster encoding.
type Format int

const (
	FormatRaster Format = iota // CBOR raster container, full float64 samples
	FormatPNG
	FormatTIFF
	FormatBMP
	FormatJPEG
)

var formatNames = map[Format]string{
	FormatRaster: "raster",
	FormatPNG:    "png",
	FormatTIFF:   "tiff",
	FormatBMP:    "bmp",
	FormatJPEG:   "jpeg",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// FormatOf picks the encoding for path from its extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cbor", ".rast":
		return FormatRaster, nil
	case ".png":
		return FormatPNG, nil
	case ".tif", ".tiff":
		return FormatTIFF, nil
	case ".bmp":
		return FormatBMP, nil
	case ".jpg", ".jpeg":
		return FormatJPEG, nil
	}
	return 0, fmt.Errorf("vm: unknown image format for %s", path)
}

// ReadImageFile loads a raster. Encoded images are converted with
// FromImage, or FromImageScaled when w and h are both positive and differ
// from the decoded size. Raster containers are returned as stored.
func ReadImageFile(path string, w, h int) (*Buffer, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	if format == FormatRaster {
		return ReadRasterFile(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var img image.Image
	switch format {
	case FormatPNG:
		img, err = png.Decode(f)
	case FormatTIFF:
		img, err = tiff.Decode(f)
	case FormatBMP:
		img, err = bmp.Decode(f)
	case FormatJPEG:
		img, err = jpeg.Decode(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	size := img.Bounds().Size()
	if w > 0 && h > 0 && (size.X != w || size.Y != h) {
		return FromImageScaled(img, w, h), nil
	}
	return FromImage(img), nil
}

// WriteImageFile stores b. Encoded formats go through Image, which clamps
// samples to 16 bits; JPEG further reduces them to 8.
func WriteImageFile(path string, b *Buffer) error {
	format, err := FormatOf(path)
	if err != nil {
		return err
	}
	if format == FormatRaster {
		return WriteRasterFile(path, b)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}

	img := b.Image()
	switch format {
	case FormatPNG:
		err = png.Encode(f, img)
	case FormatTIFF:
		err = tiff.Encode(f, img, &tiff.Options{Compression: tiff.Deflate})
	case FormatBMP:
		err = bmp.Encode(f, img)
	case FormatJPEG:
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 95})
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
