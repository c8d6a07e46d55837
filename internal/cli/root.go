// Package cli wires the paycoordd command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/swptgo/paycoord/internal/config"
)

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "paycoordd",
	Short: "paycoordd - payments coordinator daemon",
	Long: `paycoordd coordinates two-phase payments between payees, payers and the
accounts service: payees publish formal offers, payers place payment
orders against them, and the coordinator drives the prepare/finalize
protocol until each order either produces an immutable payment proof
or releases everything it had locked.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&configFile, "conf", "", "configuration file path")
}

// loadConfig loads the configuration honoring the --conf flag.
func loadConfig() (*config.Config, error) {
	return config.Load(configFile)
}
