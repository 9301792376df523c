package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/phajek/mediascan/internal/config"
	"github.com/phajek/mediascan/internal/embedding"
	"github.com/phajek/mediascan/internal/pipeline"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Process the library: hashes, faces and annotations",
	Long: `Scan walks the media library and runs the processing stages for every
item that does not have stored results yet. The scan can be stopped and
resumed - already processed items are skipped.

Examples:
  # Run every configured stage
  mediascan scan

  # Compute perceptual hashes only
  mediascan scan --stages hash

  # Recompute labels for a single item
  mediascan scan --item 2024/beach.jpg --stages labels --force`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	scanCmd.Flags().StringSlice("stages", nil, "Stages to run: hash, faces, labels, text (default: all configured)")
	scanCmd.Flags().String("item", "", "Process a single item by id")
	scanCmd.Flags().Int("batch-size", 0, "Items per batch (default from config)")
	scanCmd.Flags().Int("batch-delay", 0, "Delay between batches in milliseconds")
	scanCmd.Flags().Bool("force", false, "Recompute stages even when results exist")
	scanCmd.Flags().String("provider", "", "Annotation provider: openai or gemini (default: first configured)")
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ctrl+C requests cooperative cancellation; completed items stay saved.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Fprintln(os.Stderr, "\nStopping after the current item...")
		cancel()
	}()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	library, closeLibrary, err := openLibrary(cfg)
	if err != nil {
		return err
	}
	defer closeLibrary()

	locator, err := newLocator(cfg)
	if err != nil {
		return err
	}
	provider, err := newLabeler(ctx, cfg, mustGetString(cmd, "provider"))
	if err != nil {
		return err
	}

	deps := pipeline.Deps{
		Library: library,
		Store:   st,
		Locator: locator,
		Labeler: provider,
	}
	if locator != nil {
		deps.Embedder = embedding.NewGridGenerator()
	}

	items, err := library.ListAllItems(ctx)
	if err != nil {
		return fmt.Errorf("failed to enumerate library: %w", err)
	}
	fmt.Printf("Library contains %d items\n", len(items))

	bar := progressbar.NewOptions(len(items),
		progressbar.OptionSetDescription("Processing"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	orch := pipeline.New(deps)
	orch.Logf = func(format string, a ...any) {
		fmt.Fprintf(os.Stderr, "\n"+format+"\n", a...)
	}

	batchSize := mustGetInt(cmd, "batch-size")
	if batchSize == 0 {
		batchSize = cfg.Tuning.Pipeline.BatchSize
	}

	batchDelayMs := mustGetInt(cmd, "batch-delay")
	if batchDelayMs == 0 {
		batchDelayMs = cfg.Tuning.Pipeline.BatchDelayMs
	}

	stages := make([]pipeline.Stage, 0)
	for _, s := range mustGetStringSlice(cmd, "stages") {
		stages = append(stages, pipeline.Stage(s))
	}

	report, err := orch.Run(ctx, pipeline.Options{
		Stages:       stages,
		ItemID:       mustGetString(cmd, "item"),
		BatchSize:    batchSize,
		BatchDelay:   time.Duration(batchDelayMs) * time.Millisecond,
		Force:        mustGetBool(cmd, "force"),
		MaxDimension: cfg.Tuning.Pipeline.MaxDimension,
		OnProgress:   func(p pipeline.Progress) { bar.Add(1) },
	})
	fmt.Println()
	if err != nil {
		if report != nil && report.Retryable {
			fmt.Fprintln(os.Stderr, "The run failed but can be retried; completed items are skipped on rerun.")
		}
		return err
	}

	fmt.Printf("\nRun %s finished: %s\n", report.RunID, report.State)
	fmt.Printf("  Processed: %d\n", report.Processed)
	fmt.Printf("  Skipped:   %d\n", report.Skipped)
	if report.Failed > 0 {
		fmt.Printf("  Failed:    %d\n", report.Failed)
	}
	return nil
}
