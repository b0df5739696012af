package vm

import (
	"fmt"
	"image"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// ---------------------------------------------------------------------------
// Raster container: a CBOR dump of buffer samples
// ---------------------------------------------------------------------------

// RasterFileVersion is the container format version.
const RasterFileVersion = 1

var rasterEncMode cbor.EncMode

func init() {
	// Canonical, except NaN samples keep their exact bit pattern.
	opts := cbor.CanonicalEncOptions()
	opts.NaNConvert = cbor.NaNConvertNone
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	rasterEncMode = em
}

// rasterFile is the on-disk form of a Buffer.
type rasterFile struct {
	Version int       `cbor:"1,keyasint"`
	MinX    int       `cbor:"2,keyasint"`
	MinY    int       `cbor:"3,keyasint"`
	Width   int       `cbor:"4,keyasint"`
	Height  int       `cbor:"5,keyasint"`
	Bands   int       `cbor:"6,keyasint"`
	Samples []float64 `cbor:"7,keyasint"`
}

// MarshalRaster serializes a buffer to CBOR bytes.
func MarshalRaster(b *Buffer) ([]byte, error) {
	return rasterEncMode.Marshal(&rasterFile{
		Version: RasterFileVersion,
		MinX:    b.rect.Min.X,
		MinY:    b.rect.Min.Y,
		Width:   b.rect.Dx(),
		Height:  b.rect.Dy(),
		Bands:   b.bands,
		Samples: b.pix,
	})
}

// UnmarshalRaster deserializes a buffer from CBOR bytes.
func UnmarshalRaster(data []byte) (*Buffer, error) {
	var f rasterFile
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("vm: unmarshal raster: %w", err)
	}
	if f.Version > RasterFileVersion {
		return nil, fmt.Errorf("vm: raster version %d is newer than supported version %d", f.Version, RasterFileVersion)
	}
	if f.Width < 0 || f.Height < 0 || f.Bands < 1 {
		return nil, fmt.Errorf("vm: invalid raster shape %dx%dx%d", f.Width, f.Height, f.Bands)
	}
	if want := f.Width * f.Height * f.Bands; len(f.Samples) != want {
		return nil, fmt.Errorf("vm: raster has %d samples, want %d", len(f.Samples), want)
	}
	b := NewBuffer(image.Rect(f.MinX, f.MinY, f.MinX+f.Width, f.MinY+f.Height), f.Bands)
	copy(b.pix, f.Samples)
	return b, nil
}

// WriteRaster encodes b to w.
func WriteRaster(w io.Writer, b *Buffer) error {
	data, err := MarshalRaster(b)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ReadRaster decodes a buffer from r.
func ReadRaster(r io.Reader) (*Buffer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return UnmarshalRaster(data)
}

// WriteRasterFile writes b to path.
func WriteRasterFile(path string, b *Buffer) error {
	data, err := MarshalRaster(b)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadRasterFile reads a buffer from path.
func ReadRasterFile(path string) (*Buffer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	b, err := UnmarshalRaster(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}
