package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/spf13/cobra"

	"github.com/harliandi/go-avif/internal/converter"
)

func newDecodeCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "decode <input>",
		Short: "Decode an image, AVIF included, to PNG",
		Long: `Decodes input and writes its pixels. The output format follows the output
file's extension (png, jpg, gif, tif or bmp) and defaults to PNG next to the
input. AVIF input needs avifdec from libavif.`,
		Example: `  avifkit decode photo.avif
  avifkit decode photo.avif -o preview.jpg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := args[0]
			img, err := a.converter().Decode(cmd.Context(), converter.PathInput(in))
			if err != nil {
				return fmt.Errorf("decode %s: %w", in, err)
			}

			out := output
			if out == "" {
				out = strings.TrimSuffix(in, filepath.Ext(in)) + ".png"
			}
			if filepath.Clean(out) == filepath.Clean(in) {
				return fmt.Errorf("output %s would overwrite the input; pass -o", out)
			}
			if err := imaging.Save(img, out); err != nil {
				return fmt.Errorf("write output: %w", err)
			}

			b := img.Bounds()
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s  %dx%d\n", in, out, b.Dx(), b.Dy())
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default: input name with .png)")
	return cmd
}
