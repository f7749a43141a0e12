package main

import (
	"fmt"

	"github.com/chromedp/chromedp"
	"github.com/spf13/cobra"

	"github.com/sehyun-dev/snsweep/internal/browser"
)

var bottestCmd = &cobra.Command{
	Use:   "bottest",
	Short: "Open bot.sannysoft.com to audit the browser fingerprint",
	Long: `Open a visible browser with the same stealth options the collector uses,
so you can check which automation signals still leak.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := browser.Options(false) // non-headless so you can see the result table

		allocCtx, cancel := chromedp.NewExecAllocator(cmd.Context(), opts...)
		defer cancel()

		ctx, cancel := chromedp.NewContext(allocCtx)
		defer cancel()

		if err := chromedp.Run(ctx,
			chromedp.Navigate("https://bot.sannysoft.com"),
			chromedp.WaitVisible("body", chromedp.ByQuery),
		); err != nil {
			return fmt.Errorf("opening fingerprint page: %w", err)
		}

		fmt.Println("Press Enter to close the browser...")
		fmt.Scanln()
		return nil
	},
}
