package commands

import (
	"errors"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"rana-image-tool/internal/display"
	"rana-image-tool/internal/domain/batch"
	"rana-image-tool/internal/pipeline"
)

type formatGroup struct {
	name string
	exts []string
}

var scanGroups = []formatGroup{
	{name: "JPEG", exts: []string{".jpg", ".jpeg"}},
	{name: "PNG", exts: []string{".png"}},
	{name: "WebP", exts: []string{".webp"}},
}

// ScanCounts is the number of files per format group, in scanGroups order.
type ScanCounts struct {
	Groups []string
	Counts []int
}

// Total sums every group.
func (s ScanCounts) Total() int {
	n := 0
	for _, c := range s.Counts {
		n += c
	}
	return n
}

func newScanCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Count JPEG, PNG and WebP files in a directory tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := a.root()
			if err != nil {
				return err
			}
			theme := a.container.Theme()
			out := cmd.OutOrStdout()

			counts, err := countImages(cmd, a, root)
			if errors.Is(err, batch.ErrDirectoryNotFound) {
				cmd.PrintErrf("%s Directory not found: %s\n", theme.Error("Error:"), root)
				return &exitCodeError{code: 1}
			}
			if err != nil {
				return err
			}

			table := display.NewTableData("Format", "Count")
			table.AlignRight(1)
			for i, name := range counts.Groups {
				table.AddRow(name, strconv.Itoa(counts.Counts[i]))
			}
			table.SetFooter("Total", strconv.Itoa(counts.Total()))

			cmd.Printf("%s%s\n", theme.Muted("Scanning: "), theme.Link(root))
			display.PrintTable(out, table)
			return nil
		},
	}
}

func countImages(cmd *cobra.Command, a *app, root string) (ScanCounts, error) {
	var all []string
	for _, g := range scanGroups {
		all = append(all, g.exts...)
	}

	files, err := pipeline.Discover(cmd.Context(), root, all, a.container.Logger())
	if err != nil {
		return ScanCounts{}, err
	}

	byExt := make(map[string]int)
	for _, f := range files {
		byExt[strings.ToLower(filepath.Ext(f.Path))]++
	}

	counts := ScanCounts{}
	for _, g := range scanGroups {
		n := 0
		for _, ext := range g.exts {
			n += byExt[ext]
		}
		counts.Groups = append(counts.Groups, g.name)
		counts.Counts = append(counts.Counts, n)
	}
	return counts, nil
}
