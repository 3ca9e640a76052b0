// Package codec is the boundary to the actual image encoders. A Codec turns
// an RGBA pixel buffer plus codec parameters into an encoded payload; a
// Decoder goes the other way.
package codec

import (
	"context"
	"errors"
	"image"
	"image/draw"

	"github.com/harliandi/go-avif/pkg/avif"
)

var (
	// ErrEncodeFailed wraps any failure reported by a codec.
	ErrEncodeFailed = errors.New("encode failed")
	// ErrInvalidPixels is returned for a buffer that does not match its dimensions.
	ErrInvalidPixels = errors.New("invalid pixel buffer")
	// ErrUnavailable is returned when the codec's backend is missing.
	ErrUnavailable = errors.New("codec unavailable")
	// ErrDecodeFailed wraps any failure reported by a decoder.
	ErrDecodeFailed = errors.New("decode failed")
)

// Pixels is a tightly packed, non-premultiplied RGBA buffer.
type Pixels struct {
	Pix    []byte
	Width  int
	Height int

	// Exif (starting at the TIFF header) and XMP are the source's metadata.
	// Codecs embed them only when Params.PreserveMetadata is set.
	Exif []byte
	XMP  []byte
}

// Validate checks that Pix holds exactly Width*Height RGBA pixels.
func (p Pixels) Validate() error {
	if p.Width <= 0 || p.Height <= 0 || len(p.Pix) != p.Width*p.Height*4 {
		return ErrInvalidPixels
	}
	return nil
}

// Image wraps the buffer as an *image.NRGBA without copying.
func (p Pixels) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    p.Pix,
		Stride: p.Width * 4,
		Rect:   image.Rect(0, 0, p.Width, p.Height),
	}
}

// FromImage flattens img into a packed RGBA buffer.
func FromImage(img image.Image) Pixels {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && n.Stride == b.Dx()*4 && b.Min == (image.Point{}) {
		return Pixels{Pix: n.Pix, Width: b.Dx(), Height: b.Dy()}
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return Pixels{Pix: dst.Pix, Width: b.Dx(), Height: b.Dy()}
}

// Params are the per-attempt codec settings.
type Params struct {
	Quality          int
	Speed            int
	Subsample        avif.ChromaSubsample
	AlphaQuality     int
	Lossless         bool
	// PreserveMetadata embeds Pixels.Exif and Pixels.XMP in the output.
	// Without them there is nothing to preserve and the flag has no effect.
	PreserveMetadata bool
}

// ParamsFrom extracts the codec-level settings from encoding options.
func ParamsFrom(o avif.EncodingOptions) Params {
	return Params{
		Quality:          o.Quality,
		Speed:            o.Speed,
		Subsample:        o.Subsample,
		AlphaQuality:     o.AlphaQuality,
		Lossless:         o.Lossless,
		PreserveMetadata: o.PreserveMetadata,
	}
}

// Codec encodes pixels. Implementations must be deterministic for fixed
// inputs and safe for concurrent use.
type Codec interface {
	// Name identifies the codec in logs, metrics and response headers.
	Name() string
	// Format is the container the codec produces.
	Format() avif.ImageFormat
	// Available reports whether the backend can be used.
	Available() bool
	// Encode returns the encoded payload.
	Encode(ctx context.Context, px Pixels, p Params) ([]byte, error)
}

// Decoder turns an encoded payload back into an image.
type Decoder interface {
	Name() string
	Available() bool
	Decode(ctx context.Context, data []byte) (image.Image, error)
}
