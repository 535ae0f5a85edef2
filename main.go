package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

// configPath is the --config flag shared by every subcommand.
var configPath string

var rootCmd = &cobra.Command{
	Use:   "moveforge",
	Short: "LLM-powered iterative refinement of Sui Move contracts",
	Long: "Moveforge generates Sui Move smart contracts with a language model,\n" +
		"compiles them, classifies the diagnostics, and refines the source until\n" +
		"it compiles or the iteration budget runs out.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "moveforge.yaml", "path to the YAML config file")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(promptsCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
