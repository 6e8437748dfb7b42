// Package cli provides the command-line entry point for the knowledge
// fabric daemon. It loads configuration, builds and starts a
// facade.Facade, and blocks until a shutdown signal arrives.
package cli

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"knowledgefabric/facade"
	"knowledgefabric/fabricconfig"
)

// cfgFile holds the path to the configuration file specified via the
// --config flag.
var cfgFile string

// RootCmd is the fabric daemon's entry point command.
var RootCmd = &cobra.Command{
	Use:   "fabricd",
	Short: "runs the knowledge fabric core as a standalone daemon",
	Long: `fabricd

Brings up the Graph Access Layer, Schema Registry, Repositories, Event
Pipeline, Associative Memory, Dual Knowledge Manager, and Synchronizer
behind a single Facade, and serves its optional health/metrics HTTP
surface until interrupted.

Configuration is read from a YAML/JSON/TOML file (--config), layered
over built-in defaults; FABRIC_-prefixed environment variables
override both.`,
	RunE: runDaemon,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "configuration file path")
}

// runDaemon loads configuration, starts the Facade, and blocks until
// SIGINT/SIGTERM, then stops it gracefully.
func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := fabricconfig.Load(cfgFile)
	if err != nil {
		return err
	}

	ctx := context.Background()
	f, err := facade.Init(ctx, cfg)
	if err != nil {
		return err
	}

	if err := f.Start(ctx); err != nil {
		return err
	}
	log.Println("knowledge fabric is running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("shutting down knowledge fabric...")
	return f.Stop(context.Background())
}
