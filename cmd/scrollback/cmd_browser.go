package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// browserCmd groups lifecycle operations for the managed Chrome.
var browserCmd = &cobra.Command{
	Use:   "browser",
	Short: "Manage the Chrome instance used for scraping",
}

var browserLaunchCmd = &cobra.Command{
	Use:   "launch",
	Short: "Launch Chrome (or reuse a running one) and keep it alive",
	Long: `Launch starts a Chrome window and records its DevTools URL so later
commands attach to the same instance. Chrome outlives this command: log
into the target site in the opened window, then run scrapes against it.
Close it with 'scrollback browser kill'.`,
	RunE: runBrowserLaunch,
}

var browserStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check whether a managed Chrome is reachable",
	RunE:  runBrowserStatus,
}

var browserKillCmd = &cobra.Command{
	Use:   "kill",
	Short: "Close the managed Chrome",
	RunE:  runBrowserKill,
}

func init() {
	browserCmd.AddCommand(browserLaunchCmd)
	browserCmd.AddCommand(browserStatusCmd)
	browserCmd.AddCommand(browserKillCmd)
	rootCmd.AddCommand(browserCmd)
}

func runBrowserLaunch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mgr := newManager(cfg)
	if err := mgr.Start(); err != nil {
		return err
	}
	fmt.Printf("Browser ready. Control URL: %s\n", mgr.ControlURL())
	fmt.Println("Log into the target site in the opened window, then run 'scrollback scrape <url>'.")

	// Detach without closing; Chrome keeps running for later commands.
	mgr.Stop()
	return nil
}

func runBrowserStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mgr := newManager(cfg)
	if err := mgr.ConnectOnly(); err != nil {
		fmt.Println("Browser: not running")
		return nil
	}
	defer mgr.Stop()
	fmt.Printf("Browser: running at %s\n", mgr.ControlURL())
	return nil
}

func runBrowserKill(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	mgr := newManager(cfg)
	if err := mgr.ConnectOnly(); err != nil {
		fmt.Println("No browser to kill.")
		return nil
	}
	if err := mgr.Kill(); err != nil {
		return fmt.Errorf("kill browser: %w", err)
	}
	fmt.Println("Browser closed.")
	return nil
}
