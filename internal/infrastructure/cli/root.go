package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var (
	configPath string
	logLevel   string
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "farol",
	Version: Version,
	Short:   "Flow metrics dashboard for Trello boards",
	Long: `Farol reads Trello boards and answers:
1. How long does work take from doing to done?
2. What has been sitting still for too long?
3. How much work skips the doing stage?`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() error {
	err := RootCmd.Execute()
	if err != nil {
		printError(os.Stderr, MapError(err))
	}
	return err
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default farol.yaml, or $FAROL_CONFIG)")
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override the configured log level (debug, info, warn, error)")
	RootCmd.SetVersionTemplate(fmt.Sprintf("farol %s (commit %s, built %s)\n", Version, Commit, Date))
}
