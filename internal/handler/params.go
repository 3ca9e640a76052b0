package handler

import (
	"errors"
	"math"
	"net/url"
	"strconv"

	"github.com/harliandi/go-avif/pkg/avif"
)

// ParseOptions builds encoding options from query parameters on top of
// defaults. A priority parameter replaces the defaults' codec settings with
// its preset but keeps their size target and strategy. Every other
// parameter overrides a single field. Errors are *avif.ParamError naming
// the offending query parameter.
func ParseOptions(q url.Values, defaults avif.EncodingOptions) (avif.EncodingOptions, error) {
	base := defaults
	if v := q.Get("priority"); v != "" {
		p, err := avif.ParsePriority(v)
		if err != nil {
			return avif.EncodingOptions{}, err
		}
		base = avif.FromPriority(p)
		base.MaxSize = defaults.MaxSize
		base.Strategy = defaults.Strategy
	}

	var opts []avif.Option
	for _, f := range []struct {
		name string
		set  func(int) avif.Option
	}{
		{"quality", avif.Quality},
		{"speed", avif.Speed},
		{"alpha_quality", avif.AlphaQuality},
		{"max_dimension", avif.MaxDimension},
	} {
		if v := q.Get(f.name); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return avif.EncodingOptions{}, &avif.ParamError{Field: f.name, Value: v, Rule: "must be an integer"}
			}
			opts = append(opts, f.set(n))
		}
	}

	for _, f := range []struct {
		name string
		set  func(bool) avif.Option
	}{
		{"lossless", avif.Lossless},
		{"preserve_metadata", avif.PreserveMetadata},
	} {
		if v := q.Get(f.name); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return avif.EncodingOptions{}, &avif.ParamError{Field: f.name, Value: v, Rule: "must be a boolean"}
			}
			opts = append(opts, f.set(b))
		}
	}

	if v := q.Get("subsample"); v != "" {
		s, err := avif.ParseChromaSubsample(v)
		if err != nil {
			return avif.EncodingOptions{}, err
		}
		opts = append(opts, avif.Subsample(s))
	}
	if v := q.Get("strategy"); v != "" {
		s, err := avif.ParseCompressionStrategy(v)
		if err != nil {
			return avif.EncodingOptions{}, err
		}
		opts = append(opts, avif.Strategy(s))
	}

	// max_size is in bytes; max_size_kb is accepted for compatibility.
	for _, f := range []struct {
		name  string
		scale int64
	}{
		{"max_size_kb", 1024},
		{"max_size", 1},
	} {
		if v := q.Get(f.name); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return avif.EncodingOptions{}, &avif.ParamError{Field: f.name, Value: v, Rule: "must be an integer"}
			}
			if n > math.MaxInt64/f.scale || n < math.MinInt64/f.scale {
				return avif.EncodingOptions{}, &avif.ParamError{Field: f.name, Value: v, Rule: "out of range"}
			}
			opts = append(opts, avif.MaxSize(n*f.scale))
		}
	}

	o, err := avif.Build(base, opts...)
	if err != nil {
		return avif.EncodingOptions{}, queryError(err, q)
	}
	return o, nil
}

// queryParams maps option fields to the query parameter that sets them.
var queryParams = map[string]string{
	"alphaQuality":     "alpha_quality",
	"maxDimension":     "max_dimension",
	"maxSize":          "max_size",
	"preserveMetadata": "preserve_metadata",
}

// queryError renames a validation error's field to the query parameter
// that sets it, reporting the raw query value when the client sent one.
func queryError(err error, q url.Values) error {
	var pe *avif.ParamError
	if !errors.As(err, &pe) {
		return err
	}
	name, ok := queryParams[pe.Field]
	if !ok {
		name = pe.Field
	}
	if name == "max_size" && !q.Has("max_size") && q.Has("max_size_kb") {
		name = "max_size_kb"
	}
	renamed := &avif.ParamError{Field: name, Value: pe.Value, Rule: pe.Rule}
	if q.Has(name) {
		renamed.Value = q.Get(name)
	}
	return renamed
}
