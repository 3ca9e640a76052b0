package converter

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/color"
	"os"

	"github.com/adrium/goheif"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/harliandi/go-avif/pkg/avif"
)

// Input is the source of a conversion: one of BytesInput, PathInput or
// ImageInput.
type Input interface {
	isInput()
}

// BytesInput is an encoded image held in memory.
type BytesInput []byte

// PathInput is an encoded image on disk.
type PathInput string

// ImageInput is an already decoded image. It skips format detection,
// passthrough and the result cache.
type ImageInput struct {
	Image image.Image
}

func (BytesInput) isInput() {}
func (PathInput) isInput()  {}
func (ImageInput) isInput() {}

// ImageInfo describes an input without encoding it.
type ImageInfo struct {
	Width    int              `json:"width"`
	Height   int              `json:"height"`
	Format   avif.ImageFormat `json:"format"`
	HasAlpha bool             `json:"has_alpha"`
	FileSize int64            `json:"file_size"`
}

// load returns the encoded bytes of a BytesInput or PathInput. release must
// be called once the bytes are no longer referenced.
func load(in Input, maxSize int64) (data []byte, release func(), err error) {
	noop := func() {}
	switch v := in.(type) {
	case BytesInput:
		if err := ValidateFile(v, maxSize); err != nil {
			return nil, noop, err
		}
		return v, noop, nil
	case PathInput:
		f, err := os.Open(string(v))
		if err != nil {
			return nil, noop, err
		}
		defer f.Close()

		st, err := f.Stat()
		if err != nil {
			return nil, noop, err
		}
		if maxSize > 0 && st.Size() > maxSize {
			return nil, noop, fmt.Errorf("%w: %s is %d bytes (max %d)", ErrFileTooLarge, v, st.Size(), maxSize)
		}
		buf, err := readPooled(f, int(st.Size()))
		if err != nil {
			return nil, noop, err
		}
		if err := ValidateFile(*buf, maxSize); err != nil {
			PutBuffer(buf)
			return nil, noop, err
		}
		return *buf, func() { PutBuffer(buf) }, nil
	case nil:
		return nil, noop, fmt.Errorf("%w: nil input", ErrInvalidImage)
	default:
		return nil, noop, fmt.Errorf("%w: input %T has no encoded bytes", ErrInvalidImage, in)
	}
}

// decode turns encoded bytes into an image, honouring EXIF orientation for
// the formats imaging understands. HEIF goes through goheif.
func decode(data []byte) (image.Image, avif.ImageFormat, error) {
	format := avif.DetectFormat(data)
	switch format {
	case avif.FormatAVIF:
		return nil, format, fmt.Errorf("%w: avif input cannot be decoded", ErrInvalidImage)
	case avif.FormatHEIF:
		img, err := goheif.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, format, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
		return img, format, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, format, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, format, nil
}

// inspect reads dimensions and alpha from the header where the format
// allows it. HEIF is fully decoded; AVIF is read from its ispe property.
func inspect(data []byte) (ImageInfo, error) {
	info := ImageInfo{Format: avif.DetectFormat(data), FileSize: int64(len(data))}

	switch info.Format {
	case avif.FormatAVIF:
		w, h, ok := avifDimensions(data)
		if !ok {
			return info, fmt.Errorf("%w: avif has no image spatial extents", ErrInvalidImage)
		}
		info.Width, info.Height = w, h
		info.HasAlpha = bytes.Contains(data, avifAlphaURN)
		return info, nil
	case avif.FormatHEIF:
		img, err := goheif.Decode(bytes.NewReader(data))
		if err != nil {
			return info, fmt.Errorf("%w: %v", ErrInvalidImage, err)
		}
		b := img.Bounds()
		info.Width, info.Height = b.Dx(), b.Dy()
		info.HasAlpha = !isOpaque(img)
		return info, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return info, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	info.Width, info.Height = cfg.Width, cfg.Height
	info.HasAlpha = modelHasAlpha(cfg.ColorModel)
	return info, nil
}

var (
	ispeBox      = []byte("ispe")
	avifAlphaURN = []byte("urn:mpeg:mpegB:cicp:systems:auxiliary:alpha")
)

// avifDimensions returns the first ispe property: a full box header
// followed by 32-bit width and height.
func avifDimensions(data []byte) (int, int, bool) {
	i := bytes.Index(data, ispeBox)
	if i < 0 || i+16 > len(data) {
		return 0, 0, false
	}
	w := binary.BigEndian.Uint32(data[i+8:])
	h := binary.BigEndian.Uint32(data[i+12:])
	if w == 0 || h == 0 {
		return 0, 0, false
	}
	return int(w), int(h), true
}

// modelHasAlpha is a header-level guess: straight-alpha models and
// palettes with a translucent entry. Decoders report RGBAModel for opaque
// truecolour, so it is not counted.
func modelHasAlpha(m color.Model) bool {
	switch m {
	case color.NRGBAModel, color.NRGBA64Model, color.AlphaModel, color.Alpha16Model:
		return true
	}
	if p, ok := m.(color.Palette); ok {
		for _, c := range p {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}

func isOpaque(img image.Image) bool {
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return o.Opaque()
	}
	return false
}
