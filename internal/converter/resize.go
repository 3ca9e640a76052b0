package converter

import (
	"context"
	"image"

	"github.com/disintegration/imaging"

	"github.com/harliandi/go-avif/internal/codec"
	"github.com/harliandi/go-avif/pkg/avif"
)

// fitSize scales w x h so the longest edge is at most maxDim, keeping the
// aspect ratio. It never upscales and never returns an edge below 1.
func fitSize(w, h int, maxDim *int) (int, int) {
	if maxDim == nil || *maxDim <= 0 || (w <= *maxDim && h <= *maxDim) {
		return w, h
	}
	m, longest := *maxDim, max(w, h)
	return max(1, w*m/longest), max(1, h*m/longest)
}

// codecEncoder adapts a pixel Codec to quality.Encoder: it downsizes to
// MaxDimension, attaches the source metadata and maps the options to codec
// params. Resized images are
// memoised per target size so a search resamples each size once. A
// codecEncoder belongs to a single conversion and is not safe for
// concurrent use.
type codecEncoder struct {
	codec   codec.Codec
	meta    metadata
	resized map[image.Point]codec.Pixels
}

func newCodecEncoder(c codec.Codec, meta metadata) *codecEncoder {
	return &codecEncoder{codec: c, meta: meta, resized: make(map[image.Point]codec.Pixels)}
}

func (e *codecEncoder) Encode(ctx context.Context, img image.Image, opts avif.EncodingOptions) ([]byte, error) {
	b := img.Bounds()
	w, h := fitSize(b.Dx(), b.Dy(), opts.MaxDimension)
	size := image.Pt(w, h)

	px, ok := e.resized[size]
	if !ok {
		src := img
		if w != b.Dx() || h != b.Dy() {
			src = imaging.Resize(img, w, h, imaging.Lanczos)
		}
		px = codec.FromImage(src)
		px.Exif, px.XMP = e.meta.exif, e.meta.xmp
		e.resized[size] = px
	}
	return e.codec.Encode(ctx, px, codec.ParamsFrom(opts))
}
