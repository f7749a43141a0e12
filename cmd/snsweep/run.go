package main

import (
	"github.com/spf13/cobra"

	"github.com/sehyun-dev/snsweep/internal/app"
	"github.com/sehyun-dev/snsweep/internal/browser"
)

var (
	flagHeadless bool
	flagLimit    int
	flagLookback int
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one collection pass",
	Long: `Scan every source in the workbook once, then process, summarize and
merge the fresh posts into the output workbook.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("headless") {
			cfg.Collect.Headless = flagHeadless
		}
		if flagLimit > 0 {
			cfg.Collect.LimitPerSource = flagLimit
		}
		if flagLookback > 0 {
			cfg.Search.LookbackHours = flagLookback
		}

		launcher := browser.NewLauncher(cfg.Collect.Headless, cfg.Collect.CookieFile)
		_, err = app.New(cfg, launcher.Factory()).Run(cmd.Context())
		return err
	},
}

func init() {
	runCmd.Flags().BoolVar(&flagHeadless, "headless", true, "run the browser headless")
	runCmd.Flags().IntVar(&flagLimit, "limit", 0, "max posts per source (0 = config value)")
	runCmd.Flags().IntVar(&flagLookback, "lookback", 0, "lookback window in hours (0 = config value)")
}
