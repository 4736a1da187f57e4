package cli

import (
	"github.com/spf13/cobra"

	"github.com/blockrush/blockrush/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides config)")
	serveCmd.Flags().BoolVar(&serveNoJobs, "no-jobs", false, "Do not run scheduled jobs in this process")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost   string
	servePort   int
	serveNoJobs bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server, job scheduler and event consumer",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveHost != "" {
		cfg.API.Host = serveHost
	}
	if servePort > 0 {
		cfg.API.Port = servePort
	}
	if serveNoJobs {
		cfg.Scheduler.Enabled = false
	}

	d, err := daemon.New(cfg, log)
	if err != nil {
		return err
	}
	defer d.Close()

	return d.Serve(cmd.Context())
}
