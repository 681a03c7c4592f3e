package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"heiconv/internal/scanner"
	"heiconv/internal/tui"
)

var scanQuality int

var scanCmd = &cobra.Command{
	Use:   "scan <folder>",
	Short: "Report convertible HEIC/HEIF files without converting anything",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		result, err := scanner.Scan(args[0], func(path string, scanned int) {
			fmt.Fprintf(os.Stderr, "\rscanned %d files...", scanned)
		})
		if err != nil {
			return err
		}
		fmt.Fprint(os.Stderr, "\r")

		rows := []tui.SummaryRow{
			{Label: "Files scanned", Value: fmt.Sprintf("%d", result.TotalFilesScanned)},
			{Label: "Convertible (HEIC/HEIF)", Value: fmt.Sprintf("%d", result.EligibleCount())},
			{Label: "Directories with matches", Value: fmt.Sprintf("%d", result.DirectoriesWithEligible())},
			{Label: "Total size", Value: result.TotalSizeHuman()},
			{Label: fmt.Sprintf("Estimated JPEG size (q=%d)", scanQuality), Value: fmt.Sprintf("%d bytes", scanner.EstimateOutputSize(result, scanQuality))},
		}
		fmt.Fprintln(os.Stdout, tui.RenderSummary("Scan report", rows))

		top := scanner.TopDirectories(result, 5)
		if len(top) > 0 {
			fmt.Fprintf(os.Stdout, "\n%s\n", scanHeadingStyle.Render("Busiest folders"))
			for _, dc := range top {
				fmt.Fprintf(os.Stdout, "  %s %s %s\n",
					scanBulletStyle.Render("-"),
					scanValueStyle.Render(fmt.Sprintf("%4d", dc.Count)),
					scanDirStyle.Render(dc.Dir),
				)
			}
		}

		if len(result.Errors) > 0 {
			fmt.Fprintf(os.Stdout, "\n%s\n", scanHeadingStyle.Render("Unreadable entries"))
			for _, e := range result.Errors {
				fmt.Fprintf(os.Stdout, "  %s %s: %s\n",
					scanBulletStyle.Render("-"),
					scanDirStyle.Render(e.Path),
					scanDimStyle.Render(e.Err),
				)
			}
		}

		return nil
	},
}

var (
	scanHeadingStyle = lipgloss.NewStyle().Bold(true).Foreground(tui.ColorAccent)
	scanDirStyle     = lipgloss.NewStyle().Foreground(tui.ColorAccentAlt)
	scanValueStyle   = lipgloss.NewStyle().Foreground(tui.ColorInk)
	scanDimStyle     = lipgloss.NewStyle().Foreground(tui.ColorDim)
	scanBulletStyle  = lipgloss.NewStyle().Foreground(tui.ColorDim)
)

func init() {
	scanCmd.Flags().IntVarP(&scanQuality, "quality", "q", 85, "JPEG quality assumed for the size estimate")
	rootCmd.AddCommand(scanCmd)
}
