// Package avif holds the encoding parameter model shared by the search engine,
// the converter and the HTTP/CLI front ends.
package avif

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidParameter is returned when an EncodingOptions field violates its range.
var ErrInvalidParameter = errors.New("invalid parameter")

// ParamError names the field that failed validation.
type ParamError struct {
	Field string
	Value any
	Rule  string
}

func (e *ParamError) Error() string {
	return fmt.Sprintf("%s: %s=%v (%s)", ErrInvalidParameter, e.Field, e.Value, e.Rule)
}

func (e *ParamError) Unwrap() error { return ErrInvalidParameter }

// ChromaSubsample selects chroma subsampling. YUV444 keeps full color resolution.
type ChromaSubsample int

const (
	YUV444 ChromaSubsample = iota
	YUV422
	YUV420
)

func (c ChromaSubsample) String() string {
	switch c {
	case YUV444:
		return "444"
	case YUV422:
		return "422"
	case YUV420:
		return "420"
	}
	return fmt.Sprintf("ChromaSubsample(%d)", int(c))
}

// ParseChromaSubsample accepts "444", "yuv444", "YUV422" and so on.
func ParseChromaSubsample(s string) (ChromaSubsample, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "yuv") {
	case "444":
		return YUV444, nil
	case "422":
		return YUV422, nil
	case "420":
		return YUV420, nil
	}
	return 0, &ParamError{Field: "subsample", Value: s, Rule: "one of 444, 422, 420"}
}

// CompressionStrategy selects the search run when a size target is set.
type CompressionStrategy int

const (
	// Smart finds the highest quality whose output fits the target.
	Smart CompressionStrategy = iota
	// Strict keeps compressing for a fixed budget to approach the smallest size.
	Strict
)

func (s CompressionStrategy) String() string {
	switch s {
	case Smart:
		return "smart"
	case Strict:
		return "strict"
	}
	return fmt.Sprintf("CompressionStrategy(%d)", int(s))
}

// ParseCompressionStrategy parses "smart" or "strict", case-insensitively.
func ParseCompressionStrategy(s string) (CompressionStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "smart":
		return Smart, nil
	case "strict":
		return Strict, nil
	}
	return 0, &ParamError{Field: "strategy", Value: s, Rule: "one of smart, strict"}
}

// EncodingOptions is one encode configuration. Values are immutable by
// convention: derive new ones with the With* helpers.
type EncodingOptions struct {
	Quality          int
	Speed            int
	Subsample        ChromaSubsample
	AlphaQuality     int
	Lossless         bool
	PreserveMetadata bool
	MaxDimension     *int   // longest edge cap, nil = keep source size
	MaxSize          *int64 // byte budget, nil = single direct encode
	Strategy         CompressionStrategy
}

// DefaultOptions returns the options used when no preset is given.
func DefaultOptions() EncodingOptions {
	return EncodingOptions{
		Quality:      75,
		Speed:        6,
		Subsample:    YUV420,
		AlphaQuality: 90,
		Strategy:     Smart,
	}
}

// FallbackOptions is the fixed minimal configuration used when no search
// attempt meets the target.
func FallbackOptions() EncodingOptions {
	o := DefaultOptions()
	o.Quality = 40
	o.Speed = 10
	o.Subsample = YUV420
	o.AlphaQuality = 50
	o.MaxDimension = Int(1024)
	o.PreserveMetadata = false
	return o
}

// Validate checks field ranges and reports the first violation.
func Validate(o EncodingOptions) error {
	if o.Quality < 0 || o.Quality > 100 {
		return &ParamError{Field: "quality", Value: o.Quality, Rule: "must be between 0 and 100"}
	}
	if o.Speed < 0 || o.Speed > 10 {
		return &ParamError{Field: "speed", Value: o.Speed, Rule: "must be between 0 and 10"}
	}
	if o.AlphaQuality < 0 || o.AlphaQuality > 100 {
		return &ParamError{Field: "alphaQuality", Value: o.AlphaQuality, Rule: "must be between 0 and 100"}
	}
	if o.MaxSize != nil && *o.MaxSize <= 0 {
		return &ParamError{Field: "maxSize", Value: *o.MaxSize, Rule: "must be positive"}
	}
	if o.MaxDimension != nil && *o.MaxDimension <= 0 {
		return &ParamError{Field: "maxDimension", Value: *o.MaxDimension, Rule: "must be positive"}
	}
	switch o.Subsample {
	case YUV444, YUV422, YUV420:
	default:
		return &ParamError{Field: "subsample", Value: o.Subsample, Rule: "one of 444, 422, 420"}
	}
	switch o.Strategy {
	case Smart, Strict:
	default:
		return &ParamError{Field: "strategy", Value: o.Strategy, Rule: "one of smart, strict"}
	}
	return nil
}

// Option mutates options under construction in NewOptions.
type Option func(*EncodingOptions)

func Quality(q int) Option { return func(o *EncodingOptions) { o.Quality = q } }
func Speed(s int) Option { return func(o *EncodingOptions) { o.Speed = s } }
func Subsample(c ChromaSubsample) Option { return func(o *EncodingOptions) { o.Subsample = c } }
func AlphaQuality(q int) Option { return func(o *EncodingOptions) { o.AlphaQuality = q } }
func Lossless(v bool) Option { return func(o *EncodingOptions) { o.Lossless = v } }
func PreserveMetadata(v bool) Option { return func(o *EncodingOptions) { o.PreserveMetadata = v } }
func MaxDimension(d int) Option { return func(o *EncodingOptions) { o.MaxDimension = Int(d) } }
func MaxSize(n int64) Option { return func(o *EncodingOptions) { o.MaxSize = Int64(n) } }
func Strategy(s CompressionStrategy) Option {
	return func(o *EncodingOptions) { o.Strategy = s }
}

// NewOptions builds options on top of DefaultOptions and validates them.
func NewOptions(opts ...Option) (EncodingOptions, error) {
	return Build(DefaultOptions(), opts...)
}

// Build applies opts to base and validates the result. base is not modified.
func Build(base EncodingOptions, opts ...Option) (EncodingOptions, error) {
	o := base.clone()
	for _, opt := range opts {
		opt(&o)
	}
	if err := Validate(o); err != nil {
		return EncodingOptions{}, err
	}
	return o, nil
}

// WithQuality returns a copy with quality replaced.
func (o EncodingOptions) WithQuality(q int) EncodingOptions {
	c := o.clone()
	c.Quality = q
	return c
}

// WithoutMaxSize returns a copy whose encode is direct rather than searched.
func (o EncodingOptions) WithoutMaxSize() EncodingOptions {
	c := o.clone()
	c.MaxSize = nil
	return c
}

// HasTarget reports whether a byte budget is set.
func (o EncodingOptions) HasTarget() bool { return o.MaxSize != nil }

// Equal compares by value, including the optional fields.
func (o EncodingOptions) Equal(other EncodingOptions) bool {
	return o.Key() == other.Key()
}

// Key is a stable textual form used for cache keys and logs.
func (o EncodingOptions) Key() string {
	dim, size := "none", "none"
	if o.MaxDimension != nil {
		dim = fmt.Sprint(*o.MaxDimension)
	}
	if o.MaxSize != nil {
		size = fmt.Sprint(*o.MaxSize)
	}
	return fmt.Sprintf("q=%d s=%d c=%s a=%d l=%t m=%t d=%s t=%s st=%s",
		o.Quality, o.Speed, o.Subsample, o.AlphaQuality, o.Lossless,
		o.PreserveMetadata, dim, size, o.Strategy)
}

// clone copies the pointer fields so derived values never share storage.
func (o EncodingOptions) clone() EncodingOptions {
	if o.MaxDimension != nil {
		o.MaxDimension = Int(*o.MaxDimension)
	}
	if o.MaxSize != nil {
		o.MaxSize = Int64(*o.MaxSize)
	}
	return o
}

// Int returns a pointer to v.
func Int(v int) *int { return &v }

// Int64 returns a pointer to v.
func Int64(v int64) *int64 { return &v }
