package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/FranksOps/searchmcp/internal/report"
	"github.com/FranksOps/searchmcp/internal/storage"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Summarise the outbound request audit log",
	Long: `audit reads the request records written by serve (see --audit-dsn) and
prints a summary per tool, status code and bot-detection source. With
--records it also lists the most recent requests.`,
	RunE: runAudit,
}

func init() {
	flags := auditCmd.Flags()
	flags.String("tool", "", "only include requests made by this tool")
	flags.Duration("since", 0, "only include requests newer than this, e.g. 24h")
	flags.Bool("detected", false, "only include requests that hit a bot challenge")
	flags.String("format", "text", "summary format: text or json")
	flags.Int("records", 0, "also list this many recent records")

	rootCmd.AddCommand(auditCmd)
}

func runAudit(cmd *cobra.Command, args []string) error {
	if cfg.AuditDSN == "" {
		return errors.New("audit: set --audit-dsn or SEARCHMCP_AUDIT_DSN")
	}
	format, _ := cmd.Flags().GetString("format")
	if format != "text" && format != "json" {
		return fmt.Errorf("audit: unknown format %q", format)
	}

	backend, err := openAuditBackend(cmd.Context(), cfg.AuditDSN)
	if err != nil {
		return err
	}
	defer backend.Close()

	filter := storage.Filter{}
	filter.Tool, _ = cmd.Flags().GetString("tool")
	if since, _ := cmd.Flags().GetDuration("since"); since > 0 {
		t := time.Now().Add(-since)
		filter.Since = &t
	}
	if cmd.Flags().Changed("detected") {
		detected, _ := cmd.Flags().GetBool("detected")
		filter.DetectedBot = &detected
	}

	records, err := backend.Query(cmd.Context(), filter)
	if err != nil {
		return fmt.Errorf("audit: %w", err)
	}

	out := cmd.OutOrStdout()
	summary := report.GenerateSummary(records)
	if format == "json" {
		err = report.WriteJSON(out, summary)
	} else {
		err = report.WriteText(out, summary)
	}
	if err != nil {
		return err
	}

	n, _ := cmd.Flags().GetInt("records")
	if n <= 0 {
		return nil
	}
	// Backends return newest first.
	if n < len(records) {
		records = records[:n]
	}
	fmt.Fprintln(out)
	return report.WriteRecords(out, records)
}
