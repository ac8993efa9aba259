// Command clinicadmin runs the clinic admin BFF and its cache tooling.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/krisalay/clinic-swr-cache/internal/config"
	"github.com/krisalay/clinic-swr-cache/internal/log"
)

type rootFlags struct {
	cfgFile  string
	logLevel string
	baseURL  string
}

// newRootCmd builds the command tree. cfg is filled in before any
// subcommand runs.
func newRootCmd() *cobra.Command {
	var flags rootFlags
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:   "clinicadmin",
		Short: "Clinic admin dashboard backend with a stale-while-revalidate cache",
		Long: `clinicadmin serves the clinic admin dashboard's reads from a
stale-while-revalidate cache in front of the clinic REST backend.

Cached lists are returned immediately and refreshed in the background once
they age past their family's TTL; concurrent identical requests share one
backend call; a failing resource is not retried during its cooldown.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(flags.cfgFile)
			if err != nil {
				return err
			}
			if flags.logLevel != "" {
				loaded.Log.Level = flags.logLevel
			}
			if flags.baseURL != "" {
				loaded.Backend.BaseURL = flags.baseURL
			}
			*cfg = *loaded
			return log.InitLogger(cfg.Log.Level, cfg.Log.Format)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			log.Sync()
		},
	}

	root.PersistentFlags().StringVar(&flags.cfgFile, "config", "", "config file (default ./clinicadmin.yaml)")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.baseURL, "backend", "", "clinic backend base URL")

	root.AddCommand(
		newServeCmd(cfg),
		newFetchCmd(cfg),
		newConfigCmd(cfg),
		newDemoCmd(cfg),
		newLoadtestCmd(cfg),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
