package main

import (
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harliandi/go-avif/internal/codec"
	"github.com/harliandi/go-avif/internal/config"
	"github.com/harliandi/go-avif/internal/converter"
	"github.com/harliandi/go-avif/internal/logging"
)

var version = "0.1.0"

// app is the state shared by all subcommands.
type app struct {
	verbose  bool
	avifenc  string
	avifdec  string
	fallback string
	codec    string

	cfg      *config.Config
	logger   *slog.Logger
	registry *codec.Registry // preset in tests
	decoder  codec.Decoder   // preset in tests
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "avifkit",
		Short: "Convert images to AVIF, optionally within a byte budget",
		Long: `avifkit converts JPEG, PNG, WebP, GIF, BMP, TIFF and HEIF images to AVIF.

With --max-size it searches for the highest quality whose output fits the
budget (smart) or compresses progressively harder for a fixed number of
attempts (strict). AVIF inputs are copied unchanged.

Encoding uses avifenc from libavif. When it is not installed a JPEG or WebP
stand-in is used and a warning is logged. --codec pins one encoder instead.
The decode command turns any supported input, AVIF included, back into PNG;
AVIF decoding needs avifdec.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log every encode attempt")
	root.PersistentFlags().StringVar(&a.avifenc, "avifenc", "", "path to avifenc (default: $AVIFENC_PATH or PATH lookup)")
	root.PersistentFlags().StringVar(&a.avifdec, "avifdec", "", "path to avifdec (default: $AVIFDEC_PATH or PATH lookup)")
	root.PersistentFlags().StringVar(&a.codec, "codec", "", "force one encoder: avifenc, jpeg or webp (default: $CODEC, else the first available)")
	root.PersistentFlags().StringVar(&a.fallback, "fallback", "", "stand-in codec when avifenc is missing: jpeg or webp (default: $FALLBACK_FORMAT)")
	root.SetVersionTemplate(fmt.Sprintf(
		"avifkit %s (%s/%s, %s)\n",
		version, runtime.GOOS, runtime.GOARCH, runtime.Version(),
	))

	root.AddCommand(
		newConvertCmd(a),
		newBatchCmd(a),
		newDecodeCmd(a),
		newInfoCmd(a),
		newDetectCmd(a),
		newCodecsCmd(a),
	)
	return root
}

// setup loads env configuration, applies persistent flags over it and
// installs the logger on stderr.
func (a *app) setup(cmd *cobra.Command) error {
	a.cfg = config.Load()

	level := a.cfg.LogLevel
	if a.verbose {
		level = "debug"
	}
	a.logger = logging.Init(cmd.ErrOrStderr(), level)

	if cmd.Flags().Changed("avifenc") {
		a.cfg.AvifencPath = a.avifenc
	}
	if cmd.Flags().Changed("avifdec") {
		a.cfg.AvifdecPath = a.avifdec
	}
	if cmd.Flags().Changed("codec") {
		a.cfg.Codec = strings.ToLower(a.codec)
	}
	if cmd.Flags().Changed("fallback") {
		switch a.fallback {
		case "jpeg", "webp":
			a.cfg.FallbackFormat = a.fallback
		default:
			return fmt.Errorf("--fallback must be jpeg or webp, got %q", a.fallback)
		}
	}
	if a.registry == nil {
		a.registry = codec.Default(a.cfg.AvifencPath, a.cfg.FallbackFormat)
	}
	if a.decoder == nil {
		a.decoder = codec.NewAvifdec(a.cfg.AvifdecPath)
	}
	return nil
}

func (a *app) converter() *converter.Converter {
	return converter.New(a.registry,
		converter.WithLogger(a.logger),
		converter.WithMaxFileSize(0),
		converter.WithCodec(a.cfg.Codec),
		converter.WithDecoder(a.decoder),
	)
}

// extension is the output file extension for a container format.
func extension(r *converter.Result) string {
	switch r.Format {
	case "jpeg":
		return ".jpg"
	case "":
		return ".avif"
	default:
		return "." + string(r.Format)
	}
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func printResult(w io.Writer, in, out string, r *converter.Result) {
	var note string
	switch {
	case r.Passthrough:
		note = "already avif, copied"
	case r.Cached:
		note = "cached"
	default:
		note = fmt.Sprintf("q=%d, %d attempts, %s", r.Options.Quality, r.Attempts, r.Codec)
		if !r.TargetMet {
			note += ", over budget"
		}
	}
	fmt.Fprintf(w, "%s -> %s  %s -> %s (%s)\n",
		in, out, formatBytes(int64(r.InputSize)), formatBytes(int64(r.Size())), note)
}
