package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sehyun-dev/snsweep/internal/browser"
)

var loginSpecs = map[string]browser.LoginSpec{
	"x": {
		LoginURL:        "https://x.com/login",
		DonePrefixes:    []string{"https://x.com/home", "https://twitter.com/home"},
		SentinelCookies: []string{"auth_token", "ct0"},
	},
	"instagram": {
		LoginURL:        "https://www.instagram.com/accounts/login/",
		DonePrefixes:    []string{"https://www.instagram.com/"},
		SentinelCookies: []string{"sessionid"},
	},
	"facebook": {
		LoginURL:        "https://www.facebook.com/login",
		DonePrefixes:    []string{"https://www.facebook.com/"},
		SentinelCookies: []string{"c_user", "xs"},
	},
}

var loginCmd = &cobra.Command{
	Use:   "login [x|instagram|facebook]",
	Short: "Log in interactively and capture session cookies",
	Long: `Open a visible browser on the platform's login page. Once you finish
logging in, the session cookies are saved to collect.cookie_file and
injected into every future scan.`,
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"x", "instagram", "facebook"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		platform := "x"
		if len(args) > 0 {
			platform = strings.ToLower(args[0])
		}
		spec, ok := loginSpecs[platform]
		if !ok {
			return fmt.Errorf("unknown platform %q (want x, instagram or facebook)", platform)
		}

		path := cfg.Collect.CookieFile
		if path == "" {
			path = "cookies.json"
		}

		if err := browser.CaptureCookies(cmd.Context(), spec, path); err != nil {
			return err
		}

		fmt.Printf("Cookies saved to %s\n", path)
		if cfg.Collect.CookieFile == "" {
			fmt.Println("Set collect.cookie_file in the config to use them during scans.")
		}
		return nil
	},
}
