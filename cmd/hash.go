package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phajek/mediascan/internal/config"
	"github.com/phajek/mediascan/internal/constants"
	"github.com/phajek/mediascan/internal/imaging"
	"github.com/phajek/mediascan/internal/phash"
)

var hashCmd = &cobra.Command{
	Use:   "hash [file...]",
	Short: "Compute perceptual hashes for image files",
	Long: `Hash prints the 64-bit perceptual hash of each image file as 16 hex
characters. Visually similar images produce hashes with small Hamming
distance.

Examples:
  # Hash one image
  mediascan hash photo.jpg

  # Hash several images
  mediascan hash a.jpg b.jpg c.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: runHash,
}

var hashCompareCmd = &cobra.Command{
	Use:   "compare <file-a> <file-b>",
	Short: "Compare two images by perceptual hash",
	Args:  cobra.ExactArgs(2),
	RunE:  runHashCompare,
}

func init() {
	rootCmd.AddCommand(hashCmd)
	hashCmd.AddCommand(hashCompareCmd)

	hashCompareCmd.Flags().Float64("threshold", 0, "Similarity threshold in (0, 1] (default from config)")
}

func hashFile(path string) (phash.Hash, error) {
	img, err := imaging.DecodeBounded(path, constants.MaxDecodeDimension)
	if err != nil {
		return 0, err
	}
	return phash.Compute(img), nil
}

func runHash(cmd *cobra.Command, args []string) error {
	for _, path := range args {
		h, err := hashFile(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Printf("%s  %s\n", h.Hex(), path)
	}
	return nil
}

func runHashCompare(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	a, err := hashFile(args[0])
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	b, err := hashFile(args[1])
	if err != nil {
		return fmt.Errorf("%s: %w", args[1], err)
	}

	threshold := mustGetFloat64(cmd, "threshold")
	if threshold == 0 {
		threshold = cfg.Tuning.Thresholds.DuplicateSimilarity
	}

	distance := phash.HammingDistance(a, b)
	similarity := phash.Similarity(a, b)

	fmt.Printf("%s  %s\n", a.Hex(), args[0])
	fmt.Printf("%s  %s\n", b.Hex(), args[1])
	fmt.Printf("Hamming distance: %d of %d bits\n", distance, constants.HashBits)
	fmt.Printf("Similarity:       %.4f\n", similarity)
	if phash.AreNearDuplicates(a, b, threshold) {
		fmt.Printf("Near duplicates at threshold %.2f\n", threshold)
	} else {
		fmt.Printf("Not duplicates at threshold %.2f\n", threshold)
	}
	return nil
}
