package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sehyun-dev/snsweep/internal/sources"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage the source workbook",
}

var sourcesInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter source workbook if none exists",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		created, err := sources.Ensure(cfg.Sources.Path)
		if err != nil {
			return err
		}

		if created {
			fmt.Printf("Created starter source workbook: %s\n", cfg.Sources.Path)
			fmt.Println("Edit it to add your feeds (구분, 그룹, 이름, URL).")
		} else {
			fmt.Printf("Source workbook already exists: %s\n", cfg.Sources.Path)
		}
		return nil
	},
}

func init() {
	sourcesCmd.AddCommand(sourcesInitCmd)
}
