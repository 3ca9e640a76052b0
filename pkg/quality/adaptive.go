// Package quality drives repeated encodes toward a byte-size target.
//
// Two strategies are available. Smart binary-searches the highest quality
// whose output fits the target. Strict runs a fixed number of progressively
// more aggressive encodes and keeps the last one that fit. Both fall back to a
// fixed minimal configuration when nothing fits.
package quality

import (
	"context"
	"errors"
	"image"
	"log/slog"

	"github.com/harliandi/go-avif/pkg/avif"
)

const (
	minQuality       = 40
	maxQuality       = 100
	maxSmartAttempts = 8 // log2(61) ≈ 6 plus slack for non-monotonic encoders
	strictAttempts   = 10
)

// ErrNoTarget is returned by CompressToTarget when options carry no MaxSize.
var ErrNoTarget = errors.New("encoding options have no size target")

// Encoder is the encode capability the engine drives. Implementations apply
// MaxDimension and the codec parameters; they must be deterministic for the
// search to converge.
type Encoder interface {
	Encode(ctx context.Context, img image.Image, opts avif.EncodingOptions) ([]byte, error)
}

// EncoderFunc adapts a function to Encoder.
type EncoderFunc func(ctx context.Context, img image.Image, opts avif.EncodingOptions) ([]byte, error)

func (f EncoderFunc) Encode(ctx context.Context, img image.Image, opts avif.EncodingOptions) ([]byte, error) {
	return f(ctx, img, opts)
}

// Attempt describes one encode made during a search.
type Attempt struct {
	Strategy  avif.CompressionStrategy
	Index     int
	Options   avif.EncodingOptions
	Size      int
	Target    int64
	MetTarget bool
	Fallback  bool
}

// Result is the engine's output: the chosen payload and how it was produced.
type Result struct {
	Data     []byte
	Attempts int                  // encode calls made, fallback included
	Options  avif.EncodingOptions // options of the attempt that produced Data
	Fallback bool
}

// Size returns len(Data).
func (r Result) Size() int { return len(r.Data) }

// Engine runs the adaptive search. It holds no per-call state and is safe for
// concurrent use as long as its Encoder is.
type Engine struct {
	enc     Encoder
	logger  *slog.Logger
	observe func(Attempt)
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger used for per-attempt debug output.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// WithObserver registers fn to be called after every encode attempt.
func WithObserver(fn func(Attempt)) EngineOption {
	return func(e *Engine) { e.observe = fn }
}

// NewEngine creates an Engine around enc.
func NewEngine(enc Encoder, opts ...EngineOption) *Engine {
	e := &Engine{enc: enc, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode performs a single direct encode when opts has no target and the
// adaptive search otherwise.
func (e *Engine) Encode(ctx context.Context, img image.Image, opts avif.EncodingOptions) (Result, error) {
	if !opts.HasTarget() {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		data, err := e.enc.Encode(ctx, img, opts)
		if err != nil {
			return Result{}, err
		}
		return Result{Data: data, Attempts: 1, Options: opts}, nil
	}
	return e.CompressToTarget(ctx, img, opts)
}

// CompressToTarget searches for an encode of img no larger than *opts.MaxSize
// using opts.Strategy. It only fails when the encoder fails or ctx is done;
// an unreachable target yields the fallback encode, whatever its size.
func (e *Engine) CompressToTarget(ctx context.Context, img image.Image, opts avif.EncodingOptions) (Result, error) {
	if !opts.HasTarget() {
		return Result{}, ErrNoTarget
	}
	target := *opts.MaxSize

	switch opts.Strategy {
	case avif.Strict:
		return e.strict(ctx, img, opts, target)
	default:
		return e.smart(ctx, img, opts, target)
	}
}

// smart binary-searches quality in [40, 100] holding everything else fixed.
func (e *Engine) smart(ctx context.Context, img image.Image, opts avif.EncodingOptions, target int64) (Result, error) {
	e.logger.Debug("smart compression", "target", target)

	var best *Result
	lo, hi := minQuality, maxQuality
	attempts := 0

	for lo <= hi && attempts < maxSmartAttempts {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		mid := (lo + hi) / 2
		trial := opts.WithQuality(mid).WithoutMaxSize()

		data, err := e.enc.Encode(ctx, img, trial)
		if err != nil {
			return Result{}, err
		}
		attempts++

		fits := int64(len(data)) <= target
		e.record(Attempt{Strategy: avif.Smart, Index: attempts - 1, Options: trial, Size: len(data), Target: target, MetTarget: fits})

		if fits {
			best = &Result{Data: data, Options: trial}
			lo = mid + 1
		} else {
			hi = mid - 1
		}
	}

	if best != nil {
		best.Attempts = attempts
		e.logger.Debug("smart compression succeeded", "quality", best.Options.Quality, "size", len(best.Data), "attempts", attempts)
		return *best, nil
	}

	e.logger.Warn("smart compression missed target, using fallback", "target", target, "attempts", attempts)
	return e.fallback(ctx, img, avif.Smart, target, attempts)
}

// strict runs exactly strictAttempts encodes, each derived from the previous
// one's size, and keeps the last one that met the target. The last fit is not
// necessarily the smallest: mild adjustments after a heavy one can grow output.
func (e *Engine) strict(ctx context.Context, img image.Image, opts avif.EncodingOptions, target int64) (Result, error) {
	e.logger.Debug("strict compression", "target", target)

	var best *Result
	current := opts.WithoutMaxSize()

	for attempt := 0; attempt < strictAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}

		data, err := e.enc.Encode(ctx, img, current)
		if err != nil {
			return Result{}, err
		}

		fits := int64(len(data)) <= target
		e.record(Attempt{Strategy: avif.Strict, Index: attempt, Options: current, Size: len(data), Target: target, MetTarget: fits})

		if fits {
			best = &Result{Data: data, Options: current}
		}
		current = AdjustCompressionParameters(current, int64(len(data)), target)
	}

	if best != nil {
		best.Attempts = strictAttempts
		e.logger.Debug("strict compression succeeded", "size", len(best.Data), "quality", best.Options.Quality)
		return *best, nil
	}

	e.logger.Warn("strict compression missed target, using fallback", "target", target)
	return e.fallback(ctx, img, avif.Strict, target, strictAttempts)
}

func (e *Engine) fallback(ctx context.Context, img image.Image, strategy avif.CompressionStrategy, target int64, attempts int) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	opts := avif.FallbackOptions()
	data, err := e.enc.Encode(ctx, img, opts)
	if err != nil {
		return Result{}, err
	}
	e.record(Attempt{Strategy: strategy, Index: attempts, Options: opts, Size: len(data), Target: target, MetTarget: int64(len(data)) <= target, Fallback: true})

	return Result{Data: data, Attempts: attempts + 1, Options: opts, Fallback: true}, nil
}

func (e *Engine) record(a Attempt) {
	e.logger.Debug("compression attempt",
		"strategy", a.Strategy.String(),
		"attempt", a.Index+1,
		"quality", a.Options.Quality,
		"size", a.Size,
		"target", a.Target,
		"fits", a.MetTarget,
		"fallback", a.Fallback,
	)
	if e.observe != nil {
		e.observe(a)
	}
}

// AdjustCompressionParameters derives the next strict attempt from the
// current options and the size they produced. The three bands are keyed on
// target/currentSize; floors on quality, alpha quality and the speed cap
// bound how far a single step can degrade output.
func AdjustCompressionParameters(current avif.EncodingOptions, currentSize, targetSize int64) avif.EncodingOptions {
	next := current.WithoutMaxSize()
	ratio := float64(targetSize) / float64(currentSize)

	switch {
	case ratio < 0.5:
		next.Quality = max(40, int(float64(current.Quality)*0.7))
		next.MaxDimension = avif.Int(scaleDimension(current.MaxDimension, 0.75, 1920))
		next.Subsample = avif.YUV420
		next.AlphaQuality = max(50, current.AlphaQuality-20)
		next.Speed = min(10, current.Speed+2)
	case ratio < 0.75:
		next.Quality = max(50, current.Quality-15)
		next.MaxDimension = avif.Int(scaleDimension(current.MaxDimension, 0.85, 2560))
		next.AlphaQuality = max(60, current.AlphaQuality-10)
		next.Speed = min(10, current.Speed+1)
	default:
		next.Quality = max(60, current.Quality-8)
		next.AlphaQuality = max(70, current.AlphaQuality-5)
	}
	return next
}

func scaleDimension(dim *int, factor float64, unset int) int {
	if dim == nil {
		return unset
	}
	return max(1, int(float64(*dim)*factor))
}
