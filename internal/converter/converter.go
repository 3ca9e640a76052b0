// Package converter turns encoded or decoded images into AVIF, driving the
// adaptive quality search when a byte budget is set.
package converter

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/harliandi/go-avif/internal/codec"
	"github.com/harliandi/go-avif/pkg/avif"
	"github.com/harliandi/go-avif/pkg/metrics"
	"github.com/harliandi/go-avif/pkg/quality"
)

// Result is a finished conversion.
type Result struct {
	ID          uuid.UUID
	Data        []byte
	Format      avif.ImageFormat // container of Data
	Codec       string
	Options     avif.EncodingOptions // options of the encode that produced Data
	Attempts    int                  // encode calls, 0 for passthrough and cache hits
	Fallback    bool
	TargetMet   bool // always true when no MaxSize was set
	Passthrough bool
	Cached      bool
	Mode        string // passthrough, direct, smart or strict
	InputFormat avif.ImageFormat
	InputSize   int
	Width       int
	Height      int
	ContentHash uint64 // xxhash of Data
	Duration    time.Duration
}

// Size returns the output size in bytes.
func (r *Result) Size() int { return len(r.Data) }

// ETag is a strong entity tag derived from ContentHash.
func (r *Result) ETag() string { return fmt.Sprintf(`"%016x"`, r.ContentHash) }

// mode labels how a conversion with opts is produced: direct, smart or strict.
func mode(opts avif.EncodingOptions) string {
	if !opts.HasTarget() {
		return "direct"
	}
	return opts.Strategy.String()
}

// Converter handles image to AVIF conversion
type Converter struct {
	registry    *codec.Registry
	codecName   string
	decoder     codec.Decoder
	logger      *slog.Logger
	maxFileSize int64
	cache       *resultCache
}

// Option configures a Converter.
type Option func(*Converter)

// WithLogger sets the converter's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Converter) { c.logger = l }
}

// WithMaxFileSize limits encoded input size. Zero disables the check.
func WithMaxFileSize(n int64) Option {
	return func(c *Converter) { c.maxFileSize = n }
}

// WithCacheSize enables an LRU result cache of n entries.
func WithCacheSize(n int) Option {
	return func(c *Converter) { c.cache = newResultCache(n) }
}

// WithCodec forces the registry codec called name instead of the first
// available one. Empty keeps automatic selection.
func WithCodec(name string) Option {
	return func(c *Converter) { c.codecName = name }
}

// WithDecoder sets the decoder used to turn AVIF input back into pixels.
func WithDecoder(d codec.Decoder) Option {
	return func(c *Converter) { c.decoder = d }
}

// New creates a Converter encoding through the first available codec in registry.
func New(registry *codec.Registry, opts ...Option) *Converter {
	c := &Converter{
		registry:    registry,
		logger:      slog.Default(),
		maxFileSize: DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Codec returns the codec conversions currently use.
func (c *Converter) Codec() (codec.Codec, error) {
	return c.registry.Pick(c.codecName, c.logger)
}

// Convert encodes in with opts. AVIF input is returned unchanged. With a
// MaxSize the adaptive search runs; otherwise a single encode is made.
// Encoder failures are returned as reported by the codec.
func (c *Converter) Convert(ctx context.Context, in Input, opts avif.EncodingOptions) (*Result, error) {
	start := time.Now()
	if err := avif.Validate(opts); err != nil {
		return nil, err
	}

	var (
		img       image.Image
		inFormat  = avif.FormatUnknown
		data      []byte
		inputSize int
		key       string
	)
	if v, ok := in.(ImageInput); ok {
		img = v.Image
	} else {
		var release func()
		var err error
		if data, release, err = load(in, c.maxFileSize); err != nil {
			return nil, err
		}
		defer release()
		inputSize = len(data)

		if avif.IsAVIF(data) {
			return c.passthrough(data, opts, start), nil
		}
	}

	cd, err := c.Codec()
	if err != nil {
		return nil, err
	}

	if data != nil {
		key = cacheKey(xxhash.Sum64(data), opts, cd.Name())
		if hit, ok := c.cache.get(key); ok {
			r := *hit
			r.ID = uuid.New()
			r.Cached = true
			r.Attempts = 0
			r.Duration = time.Since(start)
			c.logger.Debug("conversion served from cache", "id", r.ID, "size", r.Size())
			return &r, nil
		}

		if img, inFormat, err = decode(data); err != nil {
			return nil, err
		}
	}

	if err := ValidateImage(img); err != nil {
		return nil, err
	}

	var meta metadata
	if opts.PreserveMetadata && data != nil {
		meta = extractMetadata(data, inFormat)
	}

	engine := quality.NewEngine(newCodecEncoder(cd, meta),
		quality.WithLogger(c.logger),
		quality.WithObserver(func(a quality.Attempt) {
			metrics.RecordEncodeAttempt(a.Strategy.String(), a.MetTarget)
		}),
	)
	res, err := engine.Encode(ctx, img, opts)
	if err != nil {
		status := "error"
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status = "cancelled"
		}
		metrics.ConversionsTotal.WithLabelValues(status).Inc()
		return nil, err
	}

	b := img.Bounds()
	w, h := fitSize(b.Dx(), b.Dy(), res.Options.MaxDimension)
	r := &Result{
		ID:          uuid.New(),
		Data:        res.Data,
		Format:      cd.Format(),
		Codec:       cd.Name(),
		Options:     res.Options,
		Attempts:    res.Attempts,
		Fallback:    res.Fallback,
		TargetMet:   !opts.HasTarget() || int64(res.Size()) <= *opts.MaxSize,
		InputFormat: inFormat,
		InputSize:   inputSize,
		Width:       w,
		Height:      h,
		ContentHash: xxhash.Sum64(res.Data),
		Mode:        mode(opts),
		Duration:    time.Since(start),
	}
	if opts.HasTarget() {
		metrics.RecordSearch(opts.Strategy.String(), searchOutcome(r), r.Attempts)
	}
	metrics.RecordConversion("success", r.Mode, r.Duration.Seconds(), inputSize, r.Size())

	c.logger.Info("conversion complete",
		"id", r.ID,
		"codec", r.Codec,
		"mode", r.Mode,
		"attempts", r.Attempts,
		"quality", r.Options.Quality,
		"input_bytes", inputSize,
		"output_bytes", r.Size(),
		"target_met", r.TargetMet,
		"duration", r.Duration,
	)

	if key != "" {
		c.cache.add(key, r)
	}
	return r, nil
}

// Decode returns the pixels of in. AVIF goes through the configured
// decoder; codec.ErrUnavailable is returned when there is none.
func (c *Converter) Decode(ctx context.Context, in Input) (image.Image, error) {
	if v, ok := in.(ImageInput); ok {
		if err := ValidateImage(v.Image); err != nil {
			return nil, err
		}
		return v.Image, nil
	}

	start := time.Now()
	data, release, err := load(in, c.maxFileSize)
	if err != nil {
		return nil, err
	}
	defer release()

	var img image.Image
	if avif.IsAVIF(data) {
		if c.decoder == nil || !c.decoder.Available() {
			return nil, fmt.Errorf("%w: no avif decoder installed", codec.ErrUnavailable)
		}
		if img, err = c.decoder.Decode(ctx, data); err != nil {
			return nil, err
		}
	} else if img, _, err = decode(data); err != nil {
		return nil, err
	}
	if err := ValidateImage(img); err != nil {
		return nil, err
	}

	b := img.Bounds()
	metrics.RecordConversion("success", "decode", time.Since(start).Seconds(), len(data), b.Dx()*b.Dy()*4)
	c.logger.Debug("image decoded", "bytes", len(data), "width", b.Dx(), "height", b.Dy())
	return img, nil
}

// Info describes in without encoding it.
func (c *Converter) Info(in Input) (ImageInfo, error) {
	if v, ok := in.(ImageInput); ok {
		if v.Image == nil {
			return ImageInfo{}, ErrInvalidImage
		}
		b := v.Image.Bounds()
		return ImageInfo{
			Width:    b.Dx(),
			Height:   b.Dy(),
			Format:   avif.FormatUnknown,
			HasAlpha: !isOpaque(v.Image),
		}, nil
	}

	data, release, err := load(in, c.maxFileSize)
	if err != nil {
		return ImageInfo{}, err
	}
	defer release()
	return inspect(data)
}

// passthrough returns AVIF input as-is. The bytes are copied because they
// may live in a pooled buffer.
func (c *Converter) passthrough(data []byte, opts avif.EncodingOptions, start time.Time) *Result {
	out := make([]byte, len(data))
	copy(out, data)

	r := &Result{
		ID:          uuid.New(),
		Data:        out,
		Format:      avif.FormatAVIF,
		Codec:       "passthrough",
		Options:     opts,
		TargetMet:   !opts.HasTarget() || int64(len(out)) <= *opts.MaxSize,
		Passthrough: true,
		InputFormat: avif.FormatAVIF,
		InputSize:   len(data),
		ContentHash: xxhash.Sum64(out),
		Mode:        "passthrough",
		Duration:    time.Since(start),
	}
	if w, h, ok := avifDimensions(out); ok {
		r.Width, r.Height = w, h
	}
	metrics.RecordConversion("success", r.Mode, r.Duration.Seconds(), len(data), len(out))
	c.logger.Info("input already avif, returned unchanged", "id", r.ID, "bytes", len(out))
	return r
}

func searchOutcome(r *Result) string {
	switch {
	case !r.Fallback:
		return "fit"
	case r.TargetMet:
		return "fallback_fit"
	default:
		return "fallback_over"
	}
}
