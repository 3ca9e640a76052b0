package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harliandi/go-avif/internal/converter"
)

func newConvertCmd(a *app) *cobra.Command {
	var (
		flags  optionFlags
		output string
	)
	cmd := &cobra.Command{
		Use:   "convert <input>",
		Short: "Convert a single image",
		Example: `  avifkit convert photo.jpg
  avifkit convert photo.heic -o small.avif --max-size-kb 200 --strategy strict
  avifkit convert scan.png --priority quality --lossless`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := flags.build(cmd, a.cfg.DefaultOptions())
			if err != nil {
				return err
			}

			in := args[0]
			res, err := a.converter().Convert(cmd.Context(), converter.PathInput(in), opts)
			if err != nil {
				return fmt.Errorf("convert %s: %w", in, err)
			}

			out := output
			if out == "" {
				out = strings.TrimSuffix(in, filepath.Ext(in)) + extension(res)
			}
			if filepath.Clean(out) == filepath.Clean(in) {
				return fmt.Errorf("output %s would overwrite the input; pass -o", out)
			}
			if err := os.WriteFile(out, res.Data, 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			printResult(cmd.OutOrStdout(), in, out, res)
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: input name with the codec's extension)")
	return cmd
}
