package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/sle/internal/daemon"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the RCF user in foreground",
	Long: `Run the RCF user in foreground.

The process will:
  1. Load configuration from the config file
  2. Initialize logging, sinks and metrics
  3. Connect to the provider, bind and start frame delivery
  4. Schedule status reports (if configured)
  5. Forward frames until SIGTERM/SIGINT or end of data (if configured)
  6. Stop delivery and unbind; SIGHUP reloads the log settings`,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runDaemon(newDaemon, configFile, pidFile, os.Stdout); err != nil {
			exitWithError("run failed", err)
		}
	},
}

var pidFile string

func init() {
	runCmd.Flags().StringVarP(&pidFile, "pidfile", "p", "",
		"PID file path (none when empty)")
}

// daemonRunner is the part of *daemon.Daemon the run command drives.
type daemonRunner interface {
	Start() error
	Run() error
	Stop()
}

type daemonFactory func(configPath, pidFile string) (daemonRunner, error)

func newDaemon(configPath, pidFile string) (daemonRunner, error) {
	return daemon.New(configPath, pidFile)
}

func runDaemon(factory daemonFactory, configPath, pidFile string, out io.Writer) error {
	fmt.Fprintf(out, "Starting sle rcf user...\n")
	fmt.Fprintf(out, "Config: %s\n", configPath)

	d, err := factory(configPath, pidFile)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}

	if err := d.Start(); err != nil {
		d.Stop()
		return fmt.Errorf("failed to start: %w", err)
	}

	// Blocks until shutdown
	return d.Run()
}
