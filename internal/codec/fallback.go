package codec

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"

	"github.com/chai2010/webp"

	"github.com/harliandi/go-avif/pkg/avif"
)

// APP1 payload prefixes identifying EXIF and XMP segments in a JPEG.
const (
	JPEGExifHeader = "Exif\x00\x00"
	JPEGXMPHeader  = "http://ns.adobe.com/xap/1.0/\x00"
)

// maxSegment is the largest APP segment payload, after the length field.
const maxSegment = 0xFFFF - 2

// JPEG is the stand-in used when no AVIF backend is installed. It honors
// quality and metadata; the other parameters have no JPEG equivalent.
type JPEG struct{}

func (JPEG) Name() string             { return "jpeg" }
func (JPEG) Format() avif.ImageFormat { return avif.FormatJPEG }
func (JPEG) Available() bool          { return true }

func (JPEG) Encode(ctx context.Context, px Pixels, p Params) ([]byte, error) {
	if err := px.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.Grow(256 * 1024)
	if err := jpeg.Encode(&buf, px.Image(), &jpeg.Options{Quality: max(1, p.Quality)}); err != nil {
		return nil, fmt.Errorf("%w: jpeg: %v", ErrEncodeFailed, err)
	}
	if p.PreserveMetadata {
		return withAPP1(buf.Bytes(), px.Exif, px.XMP), nil
	}
	return buf.Bytes(), nil
}

// withAPP1 inserts EXIF and XMP segments right after SOI. Blobs that do
// not fit a single segment are dropped.
func withAPP1(jpg, exif, xmp []byte) []byte {
	var segs [][]byte
	for _, m := range []struct {
		header string
		data   []byte
	}{
		{JPEGExifHeader, exif},
		{JPEGXMPHeader, xmp},
	} {
		n := len(m.header) + len(m.data)
		if len(m.data) == 0 || n > maxSegment {
			continue
		}
		seg := make([]byte, 0, 4+n)
		seg = append(seg, 0xFF, 0xE1, byte((n+2)>>8), byte(n+2))
		seg = append(seg, m.header...)
		seg = append(seg, m.data...)
		segs = append(segs, seg)
	}
	if len(segs) == 0 || len(jpg) < 2 {
		return jpg
	}

	out := make([]byte, 0, len(jpg)+len(exif)+len(xmp)+64)
	out = append(out, jpg[:2]...)
	for _, seg := range segs {
		out = append(out, seg...)
	}
	return append(out, jpg[2:]...)
}

// WebP is an alternative stand-in that keeps alpha and metadata and
// supports lossless.
type WebP struct{}

func (WebP) Name() string             { return "webp" }
func (WebP) Format() avif.ImageFormat { return avif.FormatWebP }
func (WebP) Available() bool          { return true }

func (WebP) Encode(ctx context.Context, px Pixels, p Params) ([]byte, error) {
	if err := px.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	opts := &webp.Options{Lossless: p.Lossless, Quality: float32(p.Quality)}
	if err := webp.Encode(&buf, px.Image(), opts); err != nil {
		return nil, fmt.Errorf("%w: webp: %v", ErrEncodeFailed, err)
	}

	data := buf.Bytes()
	if !p.PreserveMetadata {
		return data, nil
	}
	for _, m := range []struct {
		format string
		blob   []byte
	}{
		{"EXIF", px.Exif},
		{"XMP", px.XMP},
	} {
		if len(m.blob) == 0 {
			continue
		}
		withMeta, err := webp.SetMetadata(data, m.blob, m.format)
		if err != nil {
			return nil, fmt.Errorf("%w: webp %s: %v", ErrEncodeFailed, m.format, err)
		}
		data = withMeta
	}
	return data, nil
}
