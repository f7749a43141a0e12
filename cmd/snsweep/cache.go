package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sehyun-dev/snsweep/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the URL and translation cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if !cfg.Cache.Enabled {
			fmt.Println("Cache is disabled in config.")
			return nil
		}

		store, err := cache.Open(cfg.Cache.Path)
		if err != nil {
			return fmt.Errorf("opening cache: %w", err)
		}
		defer store.Close()

		stats := store.Stats()
		fmt.Printf("Cache: %s\n", cfg.Cache.Path)
		fmt.Printf("Seen URLs: %d\n", stats.SeenURLCount)
		fmt.Printf("Translations: %d\n", stats.TranslationCount)
		fmt.Printf("Summaries: %d\n", stats.SummaryCount)
		if info, err := os.Stat(cfg.Cache.Path); err == nil {
			fmt.Printf("Size: %s\n", formatBytes(info.Size()))
		}
		return nil
	},
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd)
}
