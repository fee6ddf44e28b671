package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/webguard-sec/webguard/internal/domain/scan"
	"github.com/webguard-sec/webguard/internal/report"
	"github.com/webguard-sec/webguard/internal/scanner"
	"github.com/webguard-sec/webguard/internal/shared/constants"
	"github.com/webguard-sec/webguard/internal/shared/security"
)

// scansCmd is the parent command for stored scan results
var scansCmd = &cobra.Command{
	Use:   "scans",
	Short: "Browse and manage stored scan results",
}

var scansListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored scans, newest first",
	Example: `  webguard scans list --search example --severity high
  webguard scans list --owner alice --limit 10 --json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		search, _ := cmd.Flags().GetString("search")
		ownerName, _ := cmd.Flags().GetString("owner")
		severityFlag, _ := cmd.Flags().GetString("severity")
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		if limit < 0 {
			return fmt.Errorf("--limit must not be negative")
		}
		filter := scan.Filter{URLContains: search, Limit: limit}
		if severityFlag != "" {
			severity, ok := scanner.ParseSeverity(severityFlag)
			if !ok {
				return fmt.Errorf("--severity must be high, medium or low, got %q", severityFlag)
			}
			filter.Severity = severity
		}

		services, err := getAppContext(cmd).Services()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if ownerName != "" {
			owner, err := services.AuthService.FindUser(ctx, ownerName)
			if err != nil {
				return fmt.Errorf("owner %q: %w", ownerName, err)
			}
			filter.OwnerID = owner.ID()
		}

		results, err := services.ScanService.Search(ctx, filter)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if asJSON {
			records := make([]scanRecord, 0, len(results))
			for _, r := range results {
				records = append(records, toScanRecord(r, false))
			}
			return writeJSON(out, records)
		}
		if len(results) == 0 {
			fmt.Fprintln(out, "No scans found.")
			return nil
		}
		return printScanTable(out, results)
	},
}

var scansShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one stored scan with its issues and headers",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		id, err := parseScanID(args[0])
		if err != nil {
			return err
		}

		services, err := getAppContext(cmd).Services()
		if err != nil {
			return err
		}
		result, err := services.ScanService.Get(cmd.Context(), id)
		if err != nil {
			return err
		}

		if asJSON {
			return writeJSON(cmd.OutOrStdout(), toScanRecord(result, true))
		}
		printResult(cmd.OutOrStdout(), result, true)
		return nil
	},
}

var scansDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a stored scan and its issues",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseScanID(args[0])
		if err != nil {
			return err
		}

		services, err := getAppContext(cmd).Services()
		if err != nil {
			return err
		}
		if err := services.ScanService.Delete(cmd.Context(), id); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted scan %d\n", colorSuccess("✓"), id)
		return nil
	},
}

var scansExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a stored scan as a PDF report",
	Long: `Write the PDF report of a stored scan. --out is resolved inside the
current directory; the default name is webguard-<id>-<host>.pdf.`,
	Example: `  webguard scans export --id 3
  webguard scans export --id 3 --out reports/example.pdf`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetInt64("id")
		outPath, _ := cmd.Flags().GetString("out")
		if id <= 0 {
			return fmt.Errorf("--id must be a positive scan id")
		}

		services, err := getAppContext(cmd).Services()
		if err != nil {
			return err
		}
		result, err := services.ScanService.Get(cmd.Context(), id)
		if err != nil {
			return err
		}

		if outPath == "" {
			outPath = report.FileName(result)
		}
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to determine working directory: %w", err)
		}
		target, err := security.ResolveWithin(wd, outPath)
		if err != nil {
			return fmt.Errorf("invalid --out: %w", err)
		}

		data, err := report.PDFBytes(result)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(target), constants.DefaultDirPerm); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
		if err := os.WriteFile(target, data, constants.DefaultFilePerm); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s Wrote %s (%d bytes)\n", colorSuccess("✓"), target, len(data))
		return nil
	},
}

func init() {
	scansListCmd.Flags().String("search", "", "Only scans whose URL contains this text")
	scansListCmd.Flags().String("owner", "", "Only scans owned by this username")
	scansListCmd.Flags().String("severity", "", "Only scans with at least one issue of this severity (high, medium, low)")
	scansListCmd.Flags().Int("limit", 0, "Maximum number of scans (0 = all)")
	scansListCmd.Flags().Bool("json", false, "Print the scans as JSON")

	scansShowCmd.Flags().Bool("json", false, "Print the scan as JSON")

	scansExportCmd.Flags().Int64("id", 0, "Scan id to export (required)")
	scansExportCmd.Flags().String("out", "", "Output file, relative to the current directory")
	_ = scansExportCmd.MarkFlagRequired("id")

	scansCmd.AddCommand(scansListCmd, scansShowCmd, scansDeleteCmd, scansExportCmd)
	rootCmd.AddCommand(scansCmd)
}

func parseScanID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid scan id %q", raw)
	}
	return id, nil
}
