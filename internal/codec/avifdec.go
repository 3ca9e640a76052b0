package codec

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"os/exec"
	"strings"

	"github.com/harliandi/go-avif/pkg/avif"
)

// Avifdec decodes AVIF by shelling out to libavif's avifdec, which ships
// next to avifenc.
type Avifdec struct {
	// Jobs is passed to -j; empty means "all".
	Jobs string

	tool tool
}

// NewAvifdec creates an avifdec-backed decoder. path may be empty to look
// avifdec up in PATH.
func NewAvifdec(path string) *Avifdec {
	return &Avifdec{tool: tool{name: "avifdec", path: path}}
}

func (d *Avifdec) Name() string    { return "avifdec" }
func (d *Avifdec) Available() bool { return d.tool.available() }

// Version returns the first line of `avifdec --version`, or "" if unknown.
func (d *Avifdec) Version() string {
	d.tool.available()
	return d.tool.version
}

// Decode returns the primary image of an AVIF file as 8-bit RGBA.
func (d *Avifdec) Decode(ctx context.Context, data []byte) (image.Image, error) {
	if !d.Available() {
		return nil, fmt.Errorf("%w: avifdec not found in PATH; install with: brew install libavif", ErrUnavailable)
	}
	if !avif.IsAVIF(data) {
		return nil, fmt.Errorf("%w: input is not avif", ErrDecodeFailed)
	}

	srcPath, err := writeTemp("avifkit_in_%d_*.avif", data)
	if err != nil {
		return nil, err
	}
	defer os.Remove(srcPath)

	dstPath, err := writeTemp("avifkit_out_%d_*.png", nil)
	if err != nil {
		return nil, err
	}
	defer os.Remove(dstPath)

	cmd := exec.CommandContext(ctx, d.tool.resolved, d.args(srcPath, dstPath)...)
	if out, err := cmd.CombinedOutput(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: avifdec: %v: %s", ErrDecodeFailed, err, strings.TrimSpace(string(out)))
	}

	out, err := os.ReadFile(dstPath)
	if err != nil {
		return nil, fmt.Errorf("read avifdec output: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("%w: avifdec output: %v", ErrDecodeFailed, err)
	}
	return img, nil
}

func (d *Avifdec) args(src, dst string) []string {
	jobs := d.Jobs
	if jobs == "" {
		jobs = "all"
	}
	return []string{"--jobs", jobs, "--depth", "8", src, dst}
}
