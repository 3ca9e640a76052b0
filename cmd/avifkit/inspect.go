package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/harliandi/go-avif/internal/codec"
	"github.com/harliandi/go-avif/internal/converter"
	"github.com/harliandi/go-avif/pkg/avif"
)

func newInfoCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "info <file>",
		Short: "Print dimensions, format and alpha of an image as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := a.converter().Info(converter.PathInput(args[0]))
			if err != nil {
				return fmt.Errorf("info %s: %w", args[0], err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
}

func newDetectCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "detect <file>",
		Short: "Identify an image format from its magic bytes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			head := make([]byte, 32)
			n, err := io.ReadFull(f, head)
			if err != nil && err != io.ErrUnexpectedEOF {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			format := avif.DetectFormat(head[:n])
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", args[0], format, format.MIMEType())
			return nil
		},
	}
}

func newCodecsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "codecs",
		Short: "Show which encoders and decoders are available",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "registered: %s\n", a.registry)
			fmt.Fprintf(w, "available:  %v\n", a.registry.Available())

			cd, err := a.registry.Pick(a.cfg.Codec, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "active:     %s", cd.Name())
			if v, ok := cd.(*codec.Avifenc); ok && v.Version() != "" {
				fmt.Fprintf(w, " (%s)", v.Version())
			}
			fmt.Fprintln(w)

			fmt.Fprintf(w, "decoder:    %s", a.decoder.Name())
			if !a.decoder.Available() {
				fmt.Fprint(w, " (not installed)")
			}
			fmt.Fprintln(w)
			return nil
		},
	}
}
