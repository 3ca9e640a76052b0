package main

import (
	"errors"
	"math"

	"github.com/spf13/cobra"

	"github.com/harliandi/go-avif/pkg/avif"
)

// optionFlags are the encoding flags shared by convert and batch. Only flags
// the user sets override the priority preset.
type optionFlags struct {
	priority         string
	quality          int
	speed            int
	subsample        string
	alphaQuality     int
	lossless         bool
	preserveMetadata bool
	maxDimension     int
	maxSize          int64
	maxSizeKB        int64
	strategy         string
}

func (f *optionFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.priority, "priority", "p", "", "preset: speed, quality, storage or balanced (default: $DEFAULT_PRIORITY)")
	fs.IntVarP(&f.quality, "quality", "q", 0, "color quality 0-100")
	fs.IntVar(&f.speed, "speed", 0, "encoder speed 0 (slowest) to 10 (fastest)")
	fs.StringVar(&f.subsample, "subsample", "", "chroma subsampling: 444, 422 or 420")
	fs.IntVar(&f.alphaQuality, "alpha-quality", 0, "alpha quality 0-100")
	fs.BoolVar(&f.lossless, "lossless", false, "lossless encoding")
	fs.BoolVar(&f.preserveMetadata, "preserve-metadata", false, "keep EXIF and XMP")
	fs.IntVar(&f.maxDimension, "max-dimension", 0, "cap on the longest edge in pixels")
	fs.Int64Var(&f.maxSize, "max-size", 0, "byte budget; enables the quality search")
	fs.Int64Var(&f.maxSizeKB, "max-size-kb", 0, "byte budget in KiB")
	fs.StringVar(&f.strategy, "strategy", "", "search strategy: smart or strict (default: $DEFAULT_STRATEGY)")
}

// build resolves the flags on top of base, which carries the configured
// defaults.
func (f *optionFlags) build(cmd *cobra.Command, base avif.EncodingOptions) (avif.EncodingOptions, error) {
	changed := cmd.Flags().Changed

	if changed("priority") {
		p, err := avif.ParsePriority(f.priority)
		if err != nil {
			return avif.EncodingOptions{}, err
		}
		preset := avif.FromPriority(p)
		preset.MaxSize = base.MaxSize
		preset.Strategy = base.Strategy
		base = preset
	}

	var opts []avif.Option
	if changed("quality") {
		opts = append(opts, avif.Quality(f.quality))
	}
	if changed("speed") {
		opts = append(opts, avif.Speed(f.speed))
	}
	if changed("subsample") {
		s, err := avif.ParseChromaSubsample(f.subsample)
		if err != nil {
			return avif.EncodingOptions{}, err
		}
		opts = append(opts, avif.Subsample(s))
	}
	if changed("alpha-quality") {
		opts = append(opts, avif.AlphaQuality(f.alphaQuality))
	}
	if changed("lossless") {
		opts = append(opts, avif.Lossless(f.lossless))
	}
	if changed("preserve-metadata") {
		opts = append(opts, avif.PreserveMetadata(f.preserveMetadata))
	}
	if changed("max-dimension") {
		opts = append(opts, avif.MaxDimension(f.maxDimension))
	}
	if changed("max-size-kb") {
		if f.maxSizeKB > math.MaxInt64/1024 || f.maxSizeKB < math.MinInt64/1024 {
			return avif.EncodingOptions{}, &avif.ParamError{Field: "max-size-kb", Value: f.maxSizeKB, Rule: "out of range"}
		}
		opts = append(opts, avif.MaxSize(f.maxSizeKB*1024))
	}
	if changed("max-size") {
		opts = append(opts, avif.MaxSize(f.maxSize))
	}
	if changed("strategy") {
		s, err := avif.ParseCompressionStrategy(f.strategy)
		if err != nil {
			return avif.EncodingOptions{}, err
		}
		opts = append(opts, avif.Strategy(s))
	}
	o, err := avif.Build(base, opts...)
	if err != nil {
		return avif.EncodingOptions{}, flagError(err, changed)
	}
	return o, nil
}

// optionFlagNames maps option fields to the flag that sets them.
var optionFlagNames = map[string]string{
	"alphaQuality":     "alpha-quality",
	"maxDimension":     "max-dimension",
	"maxSize":          "max-size",
	"preserveMetadata": "preserve-metadata",
}

// flagError renames a validation error's field to the flag that sets it.
func flagError(err error, changed func(string) bool) error {
	var pe *avif.ParamError
	if !errors.As(err, &pe) {
		return err
	}
	name, ok := optionFlagNames[pe.Field]
	if !ok {
		name = pe.Field
	}
	if name == "max-size" && !changed("max-size") && changed("max-size-kb") {
		name = "max-size-kb"
	}
	return &avif.ParamError{Field: name, Value: pe.Value, Rule: pe.Rule}
}
