package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "mediascan",
	Short: "On-device media intelligence for photo libraries",
	Long: `Mediascan computes perceptual hashes, face embeddings and content
annotations for a photo library, entirely on the machine that holds the
photos. Results are persisted so interrupted runs resume where they left
off, and power duplicate grouping and face similarity queries.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
