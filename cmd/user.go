package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	authapp "github.com/webguard-sec/webguard/internal/application/auth"
)

// userCmd is the parent command for account administration
var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user account",
	Long: `Create an account from the command line. The sign-up password rules
still apply. Use --staff or --superuser to mark administrators.`,
	Example: `  webguard user create --username admin --password 'change-me-now' --superuser`,
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		appCtx := getAppContext(cmd)
		username, _ := cmd.Flags().GetString("username")
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		staff, _ := cmd.Flags().GetBool("staff")
		superuser, _ := cmd.Flags().GetBool("superuser")

		services, err := appCtx.Services()
		if err != nil {
			return err
		}

		u, err := services.AuthService.CreateUser(cmd.Context(), authapp.CreateUserInput{
			Username:  username,
			Email:     email,
			Password:  password,
			Staff:     staff,
			Superuser: superuser,
		})
		if err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s Created user %s (id %d)\n", colorSuccess("✓"), u.Username(), u.ID())
		return nil
	},
}

var userListCmd = &cobra.Command{
	Use:   "list",
	Short: "List user accounts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := getAppContext(cmd).Services()
		if err != nil {
			return err
		}

		users, err := services.AuthService.ListUsers(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(users) == 0 {
			fmt.Fprintln(out, "No users found.")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUsername\tEmail\tRole\tJoined\tLast login")
		fmt.Fprintln(w, "--\t--------\t-----\t----\t------\t----------")
		for _, u := range users {
			role := "user"
			switch {
			case u.IsSuperuser():
				role = colorWarn("superuser")
			case u.IsStaff():
				role = colorInfo("staff")
			}
			lastLogin := "never"
			if !u.LastLogin().IsZero() {
				lastLogin = u.LastLogin().Local().Format(timeLayout)
			}
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
				u.ID(), u.Username(), u.Email(), role, u.CreatedAt().Local().Format(timeLayout), lastLogin)
		}
		return w.Flush()
	},
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete <username>",
	Short: "Delete a user with their scans and sessions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := getAppContext(cmd).Services()
		if err != nil {
			return err
		}

		if err := services.AuthService.DeleteUser(cmd.Context(), args[0]); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted user %s\n", colorSuccess("✓"), args[0])
		return nil
	},
}

func init() {
	userCreateCmd.Flags().String("username", "", "Username (required)")
	userCreateCmd.Flags().String("email", "", "Email address")
	userCreateCmd.Flags().String("password", "", "Password (required)")
	userCreateCmd.Flags().Bool("staff", false, "Mark the user as staff")
	userCreateCmd.Flags().Bool("superuser", false, "Mark the user as superuser (implies staff)")
	_ = userCreateCmd.MarkFlagRequired("username")
	_ = userCreateCmd.MarkFlagRequired("password")

	userCmd.AddCommand(userCreateCmd, userListCmd, userDeleteCmd)
	rootCmd.AddCommand(userCmd)
}
