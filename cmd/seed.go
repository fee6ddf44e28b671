package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	seedapp "github.com/webguard-sec/webguard/internal/application/seed"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create a demo user and sample scan results",
	Long: `Create the demo account and a handful of stored scans so the history
pages have something to show. Running it again skips the user and every scan
whose URL is already stored.

--fixture loads a YAML file with the same layout as the built-in data.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		fixturePath, _ := cmd.Flags().GetString("fixture")

		services, err := appCtx.Services()
		if err != nil {
			return err
		}

		svc := services.SeedService
		if fixturePath != "" {
			data, err := os.ReadFile(fixturePath) // #nosec G304 -- operator-supplied fixture path.
			if err != nil {
				return fmt.Errorf("failed to read fixture: %w", err)
			}
			fixture, err := seedapp.ParseFixture(data)
			if err != nil {
				return err
			}
			svc, err = seedapp.NewService(services.UserRepo, services.ScanRepo, fixture, appCtx.zapLogger().Named("seed"))
			if err != nil {
				return err
			}
		}

		summary, err := svc.Seed(cmd.Context())
		if err != nil {
			return fmt.Errorf("seeding failed: %w", err)
		}

		out := cmd.OutOrStdout()
		if summary.UserCreated {
			fmt.Fprintf(out, "%s Created demo user %s\n", colorSuccess("✓"), summary.Username)
		} else {
			fmt.Fprintf(out, "%s Demo user %s already exists\n", colorInfo("→"), summary.Username)
		}
		for _, r := range summary.CreatedScans {
			fmt.Fprintf(out, "%s Created scan %d for %s (%s)\n",
				colorSuccess("✓"), r.ID(), r.URL(), formatScoreWithColor(r.Score(), r.Grade()))
		}
		for _, u := range summary.SkippedURLs {
			fmt.Fprintf(out, "%s Skipped %s (already stored)\n", colorWarn("!"), u)
		}
		fmt.Fprintf(out, "\nDemo data ready: %d created, %d skipped\n", len(summary.CreatedScans), len(summary.SkippedURLs))
		return nil
	},
}

func init() {
	seedCmd.Flags().String("fixture", "", "YAML fixture to load instead of the built-in demo data")
	rootCmd.AddCommand(seedCmd)
}
