package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sehyun-dev/snsweep/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the config file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a config file with the default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(flagConfig); err == nil {
			fmt.Printf("Config file already exists: %s\n", flagConfig)
			return nil
		}

		if err := config.Default().Save(flagConfig); err != nil {
			return err
		}
		fmt.Printf("Created config file: %s\n", flagConfig)
		fmt.Println("Set GEMINI_API_KEY in the environment to enable summaries.")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
}
