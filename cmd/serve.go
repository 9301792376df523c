package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/phajek/mediascan/internal/config"
	"github.com/phajek/mediascan/internal/dupes"
	"github.com/phajek/mediascan/internal/embedding"
	"github.com/phajek/mediascan/internal/index"
	"github.com/phajek/mediascan/internal/pipeline"
	"github.com/phajek/mediascan/internal/store"
	"github.com/phajek/mediascan/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the JSON API server",
	Long: `Serve starts the HTTP API: scan jobs, duplicate groups, face
similarity search and library statistics.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default from config, :8080)")
	serveCmd.Flags().String("provider", "", "Annotation provider: openai or gemini (default: first configured)")
}

// initFaceIndex builds the face index from stored faces, optionally loading
// a persisted graph first.
func initFaceIndex(ctx context.Context, st store.Store, indexPath string) *index.FaceIndex {
	ix := index.New()

	faces, err := st.AllFaces(ctx)
	if err != nil {
		fmt.Printf("Warning: failed to load stored faces: %v\n", err)
		fmt.Println("Face similarity search disabled")
		return nil
	}

	if indexPath != "" {
		if err := ix.Load(indexPath); err != nil {
			fmt.Printf("Warning: failed to load face index from %s: %v\n", indexPath, err)
		}
	}
	if ix.IsEmpty() {
		if err := ix.Build(faces); err != nil {
			fmt.Printf("Warning: failed to build face index: %v\n", err)
			return nil
		}
	} else {
		ix.RebuildLookup(faces)
	}
	if indexPath != "" {
		ix.SetPath(indexPath)
	}

	fmt.Printf("Face index ready with %d faces\n", ix.Count())
	return ix
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := context.Background()

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
	orch := pipeline.New(deps)

	faceIndex := initFaceIndex(ctx, st, cfg.Database.HNSWIndexPath)
	grouper := dupes.NewGrouperWith(dupes.BruteForce{}, cfg.Tuning.Thresholds.DuplicateSimilarity)

	addr := mustGetString(cmd, "addr")
	if addr == "" {
		addr = cfg.Web.Addr
	}

	server := web.NewServer(addr, st, orch, grouper, faceIndex)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")

		if faceIndex != nil {
			if err := faceIndex.Save(); err != nil {
				fmt.Printf("Warning: failed to save face index: %v\n", err)
			}
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Starting mediascan API on %s\n", addr)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}
