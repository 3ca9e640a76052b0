package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/harliandi/go-avif/internal/converter"
	"github.com/harliandi/go-avif/pkg/avif"
)

func newBatchCmd(a *app) *cobra.Command {
	var (
		flags     optionFlags
		outDir    string
		workers   int
		recursive bool
		failFast  bool
	)
	cmd := &cobra.Command{
		Use:   "batch <input_dir>",
		Short: "Convert every image in a directory",
		Long: `Converts every supported image in input_dir, writing <name>.avif (or the
stand-in codec's extension) to the output directory. Conversions run in
parallel; a failed file is reported and skipped unless --fail-fast is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.build(cmd, a.cfg.DefaultOptions())
			if err != nil {
				return err
			}

			inDir := args[0]
			files, err := collectImages(inDir, recursive)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no images found in %s\n", inDir)
				return nil
			}
			if outDir == "" {
				outDir = inDir
			}
			if workers <= 0 {
				workers = runtime.NumCPU()
			}

			start := time.Now()
			conv := a.converter()
			var (
				mu        sync.Mutex
				failed    atomic.Int64
				inBytes   atomic.Int64
				outBytes  atomic.Int64
				converted atomic.Int64
			)

			g, ctx := errgroup.WithContext(cmd.Context())
			g.SetLimit(workers)
			for _, f := range files {
				g.Go(func() error {
					res, err := conv.Convert(ctx, converter.PathInput(f), opts)
					if err == nil {
						var out string
						out, err = writeBatchOutput(inDir, outDir, f, res)
						if err == nil {
							inBytes.Add(int64(res.InputSize))
							outBytes.Add(int64(res.Size()))
							converted.Add(1)
							mu.Lock()
							printResult(cmd.OutOrStdout(), f, out, res)
							mu.Unlock()
							return nil
						}
					}

					failed.Add(1)
					a.logger.Error("conversion failed", "file", f, "error", err)
					if failFast {
						return fmt.Errorf("%s: %w", f, err)
					}
					return nil
				})
			}
			if err := g.Wait(); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "\n%d converted, %d failed, %s -> %s in %s\n",
				converted.Load(), failed.Load(),
				formatBytes(inBytes.Load()), formatBytes(outBytes.Load()),
				time.Since(start).Round(time.Millisecond))
			if n := failed.Load(); n > 0 {
				return fmt.Errorf("%d of %d files failed", n, len(files))
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default: alongside the inputs)")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "parallel conversions (0 = NumCPU)")
	cmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "descend into subdirectories")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop at the first failure")
	return cmd
}

// collectImages lists files whose extension names a supported input format.
// AVIF files are skipped so reruns do not pick up earlier outputs.
func collectImages(dir string, recursive bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		switch avif.FormatFromPath(path) {
		case avif.FormatUnknown, avif.FormatAVIF:
		default:
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	return files, nil
}

// writeBatchOutput mirrors f's position under inDir into outDir.
func writeBatchOutput(inDir, outDir, f string, res *converter.Result) (string, error) {
	rel, err := filepath.Rel(inDir, f)
	if err != nil {
		return "", err
	}
	out := filepath.Join(outDir, strings.TrimSuffix(rel, filepath.Ext(rel))+extension(res))
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(out, res.Data, 0o644); err != nil {
		return "", fmt.Errorf("write output: %w", err)
	}
	return out, nil
}
