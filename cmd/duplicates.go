package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/phajek/mediascan/internal/config"
	"github.com/phajek/mediascan/internal/dupes"
	"github.com/phajek/mediascan/internal/media"
)

var duplicatesCmd = &cobra.Command{
	Use:   "duplicates",
	Short: "Group near-duplicate items by perceptual hash",
	Long: `Duplicates groups items whose stored perceptual hashes are close in
Hamming distance. Run 'mediascan scan --stages hash' first to populate
the hashes.

Examples:
  # List duplicate groups
  mediascan duplicates

  # Stricter matching and machine-readable output
  mediascan duplicates --threshold 0.95 --json`,
	RunE: runDuplicates,
}

func init() {
	rootCmd.AddCommand(duplicatesCmd)

	duplicatesCmd.Flags().Float64("threshold", 0, "Similarity threshold in (0, 1] (default from config)")
	duplicatesCmd.Flags().Bool("json", false, "Output groups as JSON")
	duplicatesCmd.Flags().Bool("fast", false, "Use prefix bucketing instead of the full pairwise scan")
}

func runDuplicates(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	hashes, err := st.ListHashes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load hashes: %w", err)
	}
	if len(hashes) == 0 {
		fmt.Println("No hashes stored yet. Run 'mediascan scan --stages hash' first.")
		return nil
	}

	items := make([]media.MediaItem, 0, len(hashes))
	for id, h := range hashes {
		hash := h
		items = append(items, media.MediaItem{ID: id, PerceptualHash: &hash})
	}

	threshold := mustGetFloat64(cmd, "threshold")
	if threshold == 0 {
		threshold = cfg.Tuning.Thresholds.DuplicateSimilarity
	}
	var strategy dupes.Strategy = dupes.BruteForce{}
	if mustGetBool(cmd, "fast") {
		strategy = dupes.PrefixBucket{}
	}
	grouper := dupes.NewGrouperWith(strategy, threshold)

	groups := grouper.Group(items)

	if mustGetBool(cmd, "json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(groups)
	}

	if len(groups) == 0 {
		fmt.Printf("No duplicates among %d hashed items (threshold %.2f)\n", len(items), threshold)
		return nil
	}

	fmt.Printf("Found %d duplicate groups among %d hashed items (threshold %.2f)\n\n",
		len(groups), len(items), threshold)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "REPRESENTATIVE\tMEMBERS\tSIMILARITY")
	for _, g := range groups {
		fmt.Fprintf(w, "%s\t%s\t%.4f\n", g.RepresentativeID, strings.Join(g.MemberIDs, ", "), g.Similarity)
	}
	return w.Flush()
}
