package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"scrollback/internal/analysis"
)

var exportsPurge bool

// exportsCmd groups export-index operations
var exportsCmd = &cobra.Command{
	Use:   "exports",
	Short: "Manage exported transcripts",
}

var exportsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List exported transcripts, newest first",
	RunE:  runExportsList,
}

var exportsShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show one export's files and summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runExportsShow,
}

var exportsRmCmd = &cobra.Command{
	Use:   "rm [id]",
	Short: "Remove an export from the index",
	Args:  cobra.ExactArgs(1),
	RunE:  runExportsRm,
}

// sessionsCmd lists past scrape sessions
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List past scrape sessions",
	RunE:  runSessionsList,
}

func init() {
	exportsRmCmd.Flags().BoolVar(&exportsPurge, "purge", false, "Also delete the export's files")

	exportsCmd.AddCommand(exportsListCmd)
	exportsCmd.AddCommand(exportsShowCmd)
	exportsCmd.AddCommand(exportsRmCmd)

	rootCmd.AddCommand(exportsCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func runExportsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	recs, err := openStore(cfg).ListExports()
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("No exports yet. Run 'scrollback scrape <url>' first.")
		return nil
	}

	for _, rec := range recs {
		name := rec.Character
		if name == "" {
			name = "(unnamed)"
		}
		fmt.Printf("%s  %s  %4d msgs  %s\n",
			rec.ID[:8], rec.CreatedAt.Format("2006-01-02 15:04"), rec.Messages, name)
	}
	return nil
}

func runExportsShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rec, err := openStore(cfg).FindExport(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("Export %s\n", rec.ID)
	if rec.Character != "" {
		fmt.Printf("  character: %s\n", rec.Character)
	}
	if rec.URL != "" {
		fmt.Printf("  source:    %s\n", rec.URL)
	}
	fmt.Printf("  messages:  %d\n", rec.Messages)
	fmt.Printf("  created:   %s\n", rec.CreatedAt.Format("2006-01-02 15:04:05"))
	for format, path := range rec.Files {
		fmt.Printf("  %-9s %s\n", format+":", path)
	}

	if jsonl, ok := rec.Files["jsonl"]; ok {
		if summary, err := os.ReadFile(analysis.SummaryPath(jsonl)); err == nil {
			fmt.Printf("\n%s\n", summary)
		}
	}
	return nil
}

func runExportsRm(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st := openStore(cfg)

	rec, err := st.FindExport(args[0])
	if err != nil {
		return err
	}
	if err := st.RemoveExport(rec.ID); err != nil {
		return err
	}
	fmt.Printf("Removed %s from the index.\n", rec.ID)

	if !exportsPurge {
		return nil
	}
	// All of an export's files live in one directory.
	for _, path := range rec.Files {
		dir := filepath.Dir(path)
		if err := os.RemoveAll(dir); err != nil {
			return fmt.Errorf("purge %s: %w", dir, err)
		}
		fmt.Printf("Deleted %s\n", dir)
		break
	}
	return nil
}

func runSessionsList(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	snaps, err := openStore(cfg).ListSessions()
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Println("No sessions recorded yet.")
		return nil
	}

	for _, snap := range snaps {
		fmt.Printf("%s  %s  %4d msgs  via %-24s %s\n",
			snap.ID[:8], snap.StartedAt.Format("2006-01-02 15:04"),
			snap.Messages, snap.Source, snap.URL)
	}
	return nil
}
