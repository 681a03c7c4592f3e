package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"heiconv/internal/batch"
	"heiconv/internal/converter"
	"heiconv/internal/engine"
	"heiconv/internal/pool"
	"heiconv/internal/task"
	"heiconv/internal/tui"
)

var (
	convertQuality      int
	convertOutputDir    string
	convertFlatten      bool
	convertStripExif    bool
	convertDeleteSource bool
	convertWorkers      int
	convertBatchSize    int
	convertPlain        bool
)

var convertCmd = &cobra.Command{
	Use:   "convert [flags] <folder>...",
	Short: "Convert every HEIC/HEIF image under one or more folders to JPEG",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := batch.DefaultSettings()
		settings.Quality = convertQuality
		settings.OutputDir = convertOutputDir
		settings.PreserveFolderStructure = !convertFlatten
		settings.PreserveMetadata = !convertStripExif
		settings.DeleteSource = convertDeleteSource

		manager := batch.NewManager()
		for _, root := range args {
			if _, err := manager.AddJob(root, settings); err != nil {
				return err
			}
		}

		eng := engine.New(manager, pool.New(converter.New(), convertWorkers), convertBatchSize)

		var updates chan tui.ProgressUpdate
		uiDone := make(chan struct{})
		if convertPlain {
			eng.AddListener(&logListener{})
			close(uiDone)
		} else {
			updates = make(chan tui.ProgressUpdate, 64)
			eng.AddListener(&progressListener{updates: updates})
			program := tea.NewProgram(tui.NewModel(updates))
			go func() {
				_, _ = program.Run()
				close(uiDone)
			}()
		}

		// Ctrl-C cancels ctx, which stops the engine cooperatively:
		// in-flight conversions finish, the rest are marked stopped.
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		started := time.Now()
		err := eng.Run(ctx)

		if updates != nil {
			close(updates)
		}
		<-uiDone

		interrupted := errors.Is(err, context.Canceled)
		if err != nil && !interrupted {
			return err
		}

		printRunSummary(manager, time.Since(started))
		if interrupted {
			fmt.Fprintln(os.Stdout, "Interrupted: remaining files were not converted.")
		}
		return nil
	},
}

func printRunSummary(manager *batch.Manager, elapsed time.Duration) {
	stats := manager.TotalStats()

	var bytesSaved int64
	for _, job := range manager.Jobs() {
		for _, res := range job.Results {
			if saved, ok := res.BytesSaved(); ok {
				bytesSaved += saved
			}
		}
	}

	rows := []tui.SummaryRow{
		{Label: "Files converted", Value: fmt.Sprintf("%d/%d", stats.Successful, stats.TotalFiles)},
		{Label: "Failed", Value: fmt.Sprintf("%d", stats.Failed)},
		{Label: "Success rate", Value: fmt.Sprintf("%.1f%%", stats.SuccessRate*100)},
		{Label: "Space saved (bytes)", Value: fmt.Sprintf("%d", bytesSaved)},
		{Label: "Elapsed", Value: elapsed.Round(time.Millisecond).String()},
	}
	fmt.Fprintln(os.Stdout, tui.RenderSummary("Conversion summary", rows))
}

// progressListener translates engine events into delta updates for the
// interactive display.
type progressListener struct {
	updates chan<- tui.ProgressUpdate

	mu      sync.Mutex
	counted map[string]bool
}

func (p *progressListener) OnResult(job *batch.Job, res task.Result) {
	u := tui.ProgressUpdate{ProcessedDelta: 1}
	if res.Success {
		if saved, ok := res.BytesSaved(); ok {
			u.BytesSavedDelta = saved
		}
	} else {
		u.FailedDelta = 1
	}
	p.updates <- u
}

func (p *progressListener) OnJobUpdate(job *batch.Job) {
	if job.Status != batch.StatusProcessing {
		return
	}
	p.mu.Lock()
	if p.counted == nil {
		p.counted = make(map[string]bool)
	}
	seen := p.counted[job.ID]
	p.counted[job.ID] = true
	p.mu.Unlock()
	if seen {
		return
	}
	p.updates <- tui.ProgressUpdate{TotalDelta: job.TotalFiles, JobLabel: job.DisplayName()}
}

func (p *progressListener) OnPaused() {
	paused := true
	p.updates <- tui.ProgressUpdate{Paused: &paused}
}

// logListener is the non-interactive fallback for CI and piped output.
type logListener struct{}

func (logListener) OnResult(job *batch.Job, res task.Result) {
	if res.Success {
		fmt.Fprintf(os.Stdout, "ok   %s -> %s\n", res.InputPath, res.OutputPath)
	} else {
		fmt.Fprintf(os.Stdout, "fail %s: %s\n", res.InputPath, res.Error)
	}
}

func (logListener) OnJobUpdate(job *batch.Job) {
	fmt.Fprintf(os.Stdout, "job %s: %s\n", job.DisplayName(), job.Status)
}

func (logListener) OnPaused() {}

func init() {
	convertCmd.Flags().IntVarP(&convertQuality, "quality", "q", envInt("HEICONV_QUALITY", 85), "JPEG quality (0-100)")
	convertCmd.Flags().StringVarP(&convertOutputDir, "output", "o", "", "output folder (default: alongside each source file)")
	convertCmd.Flags().BoolVar(&convertFlatten, "flatten", false, "write all output files directly into the output folder")
	convertCmd.Flags().BoolVar(&convertStripExif, "strip-exif", false, "do not carry EXIF metadata into the JPEG output")
	convertCmd.Flags().BoolVar(&convertDeleteSource, "delete-source", false, "move source files to a trash folder after conversion")
	convertCmd.Flags().IntVarP(&convertWorkers, "workers", "w", envInt("HEICONV_WORKERS", 0), "worker goroutines (default: min(32, 2*CPU))")
	convertCmd.Flags().IntVar(&convertBatchSize, "batch-size", pool.DefaultBatchSize, "tasks submitted to the pool per batch")
	convertCmd.Flags().BoolVar(&convertPlain, "plain", false, "line-per-file output instead of the interactive display")

	rootCmd.AddCommand(convertCmd)
}
