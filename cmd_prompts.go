package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"moveforge/internal/config"
	"moveforge/internal/prompt"
)

var promptsCmd = &cobra.Command{
	Use:   "prompts",
	Short: "List available prompt templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}

		store, err := prompt.LoadDir(cfg.PromptsDir)
		if err != nil {
			return err
		}

		fmt.Println("Available prompts:")
		fmt.Println("------------------")
		for _, id := range store.List() {
			if desc := store.Describe(id); desc != "" {
				fmt.Printf("- %s: %s\n", id, desc)
			} else {
				fmt.Printf("- %s\n", id)
			}
		}
		return nil
	},
}
