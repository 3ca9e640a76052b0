package codec

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/harliandi/go-avif/pkg/avif"
)

// Avifenc encodes AVIF by shelling out to libavif's avifenc.
// Install: brew install libavif / apt install libavif-bin
type Avifenc struct {
	// Jobs is passed to -j; empty means "all".
	Jobs string

	tool tool
}

// NewAvifenc creates an avifenc-backed codec. path may be empty to look
// avifenc up in PATH.
func NewAvifenc(path string) *Avifenc {
	return &Avifenc{tool: tool{name: "avifenc", path: path}}
}

func (e *Avifenc) Name() string             { return "avifenc" }
func (e *Avifenc) Format() avif.ImageFormat { return avif.FormatAVIF }
func (e *Avifenc) Available() bool          { return e.tool.available() }

// Version returns the first line of `avifenc --version`, or "" if unknown.
func (e *Avifenc) Version() string {
	e.tool.available()
	return e.tool.version
}

func (e *Avifenc) Encode(ctx context.Context, px Pixels, p Params) ([]byte, error) {
	if !e.Available() {
		return nil, fmt.Errorf("%w: avifenc not found in PATH; install with: brew install libavif", ErrUnavailable)
	}
	if err := px.Validate(); err != nil {
		return nil, err
	}

	// avifenc re-encodes the whole file anyway, spend as little as possible here
	var src bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&src, px.Image()); err != nil {
		return nil, fmt.Errorf("encode temp png: %w", err)
	}
	srcPath, err := writeTemp("avifkit_src_%d_*.png", src.Bytes())
	if err != nil {
		return nil, err
	}
	defer os.Remove(srcPath)

	dstPath, err := writeTemp("avifkit_dst_%d_*.avif", nil)
	if err != nil {
		return nil, err
	}
	defer os.Remove(dstPath)

	var meta metadataFiles
	if p.PreserveMetadata {
		if meta, err = writeMetadata(px); err != nil {
			return nil, err
		}
		defer meta.remove()
	}

	cmd := exec.CommandContext(ctx, e.tool.resolved, e.args(p, meta, srcPath, dstPath)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: avifenc: %v: %s", ErrEncodeFailed, err, strings.TrimSpace(string(out)))
	}

	data, err := os.ReadFile(dstPath)
	if err != nil {
		return nil, fmt.Errorf("read avifenc output: %w", err)
	}
	if !avif.IsAVIF(data) {
		return nil, fmt.Errorf("%w: avifenc produced %d bytes without an avif header", ErrEncodeFailed, len(data))
	}
	return data, nil
}

// metadataFiles are temp copies of Pixels.Exif and Pixels.XMP for avifenc.
type metadataFiles struct {
	exif, xmp string
}

func writeMetadata(px Pixels) (metadataFiles, error) {
	var m metadataFiles
	var err error
	if len(px.Exif) > 0 {
		if m.exif, err = writeTemp("avifkit_exif_%d_*.bin", px.Exif); err != nil {
			return m, err
		}
	}
	if len(px.XMP) > 0 {
		if m.xmp, err = writeTemp("avifkit_xmp_%d_*.xml", px.XMP); err != nil {
			m.remove()
			return metadataFiles{}, err
		}
	}
	return m, nil
}

func (m metadataFiles) remove() {
	for _, p := range []string{m.exif, m.xmp} {
		if p != "" {
			os.Remove(p)
		}
	}
}

// args builds the avifenc command line. Lossless mode picks its own
// quality and YUV settings, so they are left out. The source PNG never
// carries metadata; it is attached from side files instead.
func (e *Avifenc) args(p Params, meta metadataFiles, src, dst string) []string {
	jobs := e.Jobs
	if jobs == "" {
		jobs = "all"
	}
	args := []string{
		"--speed", strconv.Itoa(p.Speed),
		"--jobs", jobs,
	}
	if p.Lossless {
		args = append(args, "--lossless")
	} else {
		args = append(args,
			"--qcolor", strconv.Itoa(p.Quality),
			"--qalpha", strconv.Itoa(p.AlphaQuality),
			"--yuv", p.Subsample.String(),
		)
	}
	if p.PreserveMetadata {
		if meta.exif != "" {
			args = append(args, "--exif", meta.exif)
		}
		if meta.xmp != "" {
			args = append(args, "--xmp", meta.xmp)
		}
	}
	return append(args, src, dst)
}
