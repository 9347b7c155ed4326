// Command mediaengine drives the media acquisition/processing pipeline
// described across internal/pipeline and its collaborators. Subcommands
// construct the engine in-process rather than talking to a remote API,
// mirroring the teacher's single-binary "load config, construct
// collaborators, run" shape (cmd/staccato/main.go) but organized as a
// cobra command tree, grounded on tonimelisma-onedrive-go's root.go and
// SatyamHitman-go-ofscraper's command tree.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var flagConfigPath string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "mediaengine",
		Short:         "Media acquisition and processing pipeline engine",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "./config.toml", "path to the engine's TOML config file")

	cmd.AddCommand(newSubmitCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newRetryCmd())
	cmd.AddCommand(newCancelCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitOnError(err)
	}
}
