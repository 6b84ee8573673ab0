package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"rana-image-tool/internal/domain/batch"
	"rana-image-tool/internal/imaging"
)

// Labels shown on the progress bar
const (
	webpLabel    = "[webp] From WebP to PNG"
	convertLabel = "[convert] From JPG to PNG"
	linearLabel  = "[setppi] Linear Mode"
)

// JFIF densities are 16-bit
const maxPPI = 65535

func fixedLabel(ppi int) string {
	return fmt.Sprintf("[setppi] Fixed mode, val=%d", ppi)
}

// runBatch hands one batch to the pipeline and turns a non-zero result into
// an exitCodeError. The console sink has already reported every failure.
func (a *app) runBatch(cmd *cobra.Command, exts []string, label string, fn batch.TransformFunc) error {
	root, err := a.root()
	if err != nil {
		return err
	}

	code := a.container.Runner().RunBatch(cmd.Context(), root, exts, label, fn)
	if code != 0 {
		return &exitCodeError{code: code}
	}
	return nil
}

func newWebpCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "webp",
		Short: "Convert WebP files to PNG and delete the originals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBatch(cmd, []string{".webp"}, webpLabel, a.container.Imaging().ConvertToPNG)
		},
	}
}

func newConvertCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "convert",
		Short: "Convert JPEG files to PNG and delete the originals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBatch(cmd, []string{".jpg", ".jpeg"}, convertLabel, a.container.Imaging().ConvertToPNG)
		},
	}
}

func newSetPPICmd(a *app) *cobra.Command {
	var (
		val    int
		linear bool
	)

	cmd := &cobra.Command{
		Use:   "setppi",
		Short: "Set the print resolution of JPEG and PNG files",
		Long: `Set the print resolution of JPEG and PNG files.

JPEG files keep their pixels: only the JFIF density and the EXIF resolution
tags are rewritten. PNG files get a pHYs chunk. A file whose content does not
match its extension is re-encoded and renamed to match.

Examples:
  # Resolution equal to a tenth of each image's width (default)
  ranaimg setppi --linear -p ./photos

  # Fixed resolution; a bare --val uses RANA_DEFAULT_PPI
  ranaimg setppi --val=300
  ranaimg setppi --val`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if val < 0 || val > maxPPI {
				return fmt.Errorf("--val must be between 0 and %d, got %d", maxPPI, val)
			}
			opts, label := densityOptions(val, cmd.Flags().Changed("val"), a.container.Config().Pipeline.DefaultPPI)
			return a.runBatch(cmd, []string{".jpg", ".jpeg", ".png"}, label, a.container.Imaging().SetDensity(opts))
		},
	}

	cmd.Flags().IntVar(&val, "val", 0, "fixed resolution in pixels per inch (bare flag or 0: default)")
	cmd.Flags().Lookup("val").NoOptDefVal = "0"
	cmd.Flags().BoolVar(&linear, "linear", false, "resolution = image width / 10 (default mode)")
	cmd.MarkFlagsMutuallyExclusive("val", "linear")
	return cmd
}

// densityOptions resolves the setppi flags. Linear mode applies unless
// --val was given.
func densityOptions(val int, valSet bool, defaultPPI int) (imaging.DensityOptions, string) {
	if !valSet {
		return imaging.DensityOptions{Linear: true}, linearLabel
	}
	if val == 0 {
		val = defaultPPI
	}
	return imaging.DensityOptions{PPI: val}, fixedLabel(val)
}
