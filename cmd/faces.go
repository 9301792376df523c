package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phajek/mediascan/internal/config"
	"github.com/phajek/mediascan/internal/constants"
	"github.com/phajek/mediascan/internal/embedding"
	"github.com/phajek/mediascan/internal/face"
	"github.com/phajek/mediascan/internal/imaging"
	"github.com/phajek/mediascan/internal/index"
)

var facesCmd = &cobra.Command{
	Use:   "faces",
	Short: "Face comparison and similarity search",
}

var facesCompareCmd = &cobra.Command{
	Use:   "compare <file-a> <file-b>",
	Short: "Compare the dominant face of two images",
	Long: `Compare detects the most confident face in each image, computes their
embeddings and reports cosine similarity. Requires FACE_CASCADE_PATH.`,
	Args: cobra.ExactArgs(2),
	RunE: runFacesCompare,
}

var facesFindCmd = &cobra.Command{
	Use:   "find <file>",
	Short: "Find stored faces similar to the face in an image",
	Long: `Find detects the most confident face in the image and searches the
stored faces for the closest embeddings. Requires FACE_CASCADE_PATH and
stored face data from a previous scan.`,
	Args: cobra.ExactArgs(1),
	RunE: runFacesFind,
}

var facesPersonCmd = &cobra.Command{
	Use:   "person <name>",
	Short: "List stored faces labeled with a person name",
	Long: `Person lists every stored face whose person label matches the given
name. Matching ignores case, diacritics and dashes, so "jan-novak" finds
faces labeled "Jan Novák".`,
	Args: cobra.ExactArgs(1),
	RunE: runFacesPerson,
}

func init() {
	rootCmd.AddCommand(facesCmd)
	facesCmd.AddCommand(facesCompareCmd)
	facesCmd.AddCommand(facesFindCmd)
	facesCmd.AddCommand(facesPersonCmd)

	facesCompareCmd.Flags().Float64("threshold", 0, "Same-person threshold in (0, 1] (default from config)")
	facesFindCmd.Flags().Int("limit", 10, "Maximum number of matches")
}

// dominantFaceEmbedding detects faces and embeds the most confident one.
func dominantFaceEmbedding(locator face.Locator, embedder embedding.Generator, path string) ([]float32, error) {
	img, err := imaging.DecodeBounded(path, constants.MaxDecodeDimension)
	if err != nil {
		return nil, err
	}

	regions, err := locator.Detect(img)
	if err != nil {
		return nil, err
	}
	if len(regions) == 0 {
		return nil, fmt.Errorf("no face found in %s", path)
	}

	best := regions[0]
	for _, r := range regions[1:] {
		if r.Score > best.Score {
			best = r
		}
	}

	crop, err := face.ExtractRegion(img, best.BBox, constants.DefaultRegionPadding)
	if err != nil {
		return nil, fmt.Errorf("failed to extract face region: %w", err)
	}
	return embedder.Embed(crop)
}

func runFacesCompare(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	locator, err := newLocator(cfg)
	if err != nil {
		return err
	}
	if locator == nil {
		return errors.New("FACE_CASCADE_PATH is required for face commands")
	}
	embedder := embedding.NewGridGenerator()

	embA, err := dominantFaceEmbedding(locator, embedder, args[0])
	if err != nil {
		return err
	}
	embB, err := dominantFaceEmbedding(locator, embedder, args[1])
	if err != nil {
		return err
	}

	similarity, err := embedding.CosineSimilarity(embA, embB)
	if err != nil {
		return err
	}

	threshold := mustGetFloat64(cmd, "threshold")
	if threshold == 0 {
		threshold = cfg.Tuning.Thresholds.SamePersonSimilarity
	}

	fmt.Printf("Cosine similarity: %.4f\n", similarity)
	if similarity >= threshold {
		fmt.Printf("Likely the same person at threshold %.2f\n", threshold)
	} else {
		fmt.Printf("Likely different people at threshold %.2f\n", threshold)
	}
	return nil
}

func runFacesFind(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	locator, err := newLocator(cfg)
	if err != nil {
		return err
	}
	if locator == nil {
		return errors.New("FACE_CASCADE_PATH is required for face commands")
	}
	embedder := embedding.NewGridGenerator()

	query, err := dominantFaceEmbedding(locator, embedder, args[0])
	if err != nil {
		return err
	}

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	faces, err := st.AllFaces(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stored faces: %w", err)
	}
	if len(faces) == 0 {
		fmt.Println("No faces stored yet. Run 'mediascan scan --stages faces' first.")
		return nil
	}

	ix := index.New()
	if err := ix.Build(faces); err != nil {
		return fmt.Errorf("failed to build face index: %w", err)
	}

	matches, err := ix.Search(query, mustGetInt(cmd, "limit"))
	if err != nil {
		return err
	}

	fmt.Printf("Closest faces among %d stored:\n", len(faces))
	for _, m := range matches {
		fmt.Printf("  %.4f  %s (face %d)\n", m.Similarity, m.Face.ItemID, m.Face.Index)
	}
	return nil
}

func runFacesPerson(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	faces, err := st.AllFaces(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stored faces: %w", err)
	}

	matched := face.FilterByPerson(faces, args[0])
	if len(matched) == 0 {
		fmt.Printf("No stored faces labeled %q\n", args[0])
		return nil
	}

	fmt.Printf("%d faces labeled %q:\n", len(matched), args[0])
	for _, f := range matched {
		fmt.Printf("  %s (face %d, label %q)\n", f.ItemID, f.Index, f.PersonID)
	}
	return nil
}
