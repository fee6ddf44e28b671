package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/webguard-sec/webguard/internal/domain/user"
)

var scanCmd = &cobra.Command{
	Use:   "scan <url>",
	Short: "Scan a URL and print its security report",
	Long: `Fetch a URL once, following redirects, and grade its HTTPS setup,
security headers and cookie flags. A missing scheme defaults to https://.

Nothing is stored unless --save is given.`,
	Example: `  webguard scan example.com
  webguard scan https://example.com --save --owner alice
  webguard scan example.com --json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		save, _ := cmd.Flags().GetBool("save")
		asJSON, _ := cmd.Flags().GetBool("json")
		ownerName, _ := cmd.Flags().GetString("owner")

		if ownerName != "" && !save {
			return fmt.Errorf("--owner requires --save")
		}

		services, err := appCtx.Services()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		if !save {
			report, err := services.ScanService.Preview(ctx, args[0])
			if err != nil {
				return fmt.Errorf("scan failed: %w", err)
			}
			if asJSON {
				return writeJSON(out, report)
			}
			printReport(out, report)
			return nil
		}

		var owner *user.User
		if ownerName != "" {
			owner, err = services.AuthService.FindUser(ctx, ownerName)
			if err != nil {
				return fmt.Errorf("owner %q: %w", ownerName, err)
			}
		}

		result, err := services.ScanService.Submit(ctx, args[0], owner)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}
		if asJSON {
			return writeJSON(out, toScanRecord(result, true))
		}
		printResult(out, result, false)
		fmt.Fprintf(out, "\n%s Saved scan %d\n", colorSuccess("✓"), result.ID())
		return nil
	},
}

func init() {
	scanCmd.Flags().Bool("save", false, "Store the result in the scan history")
	scanCmd.Flags().Bool("json", false, "Print the result as JSON")
	scanCmd.Flags().String("owner", "", "Username that owns the saved scan")
	rootCmd.AddCommand(scanCmd)
}
