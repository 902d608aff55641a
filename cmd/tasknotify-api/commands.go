package main

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/tasknotify/internal/users"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func newCreateUserCommand() *cobra.Command {
	var empID, name, role string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Register a user that can receive notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(empID) == "" || strings.TrimSpace(name) == "" {
				return fmt.Errorf("--emp-id and --name are required")
			}
			app, err := openApplication(viper.GetViper())
			if err != nil {
				return err
			}
			defer app.Close()

			user, err := app.users.Create(cmd.Context(), empID, name, role)
			if err != nil {
				return err
			}
			app.logger.Info("user created", zap.Uint("user_id", user.ID), zap.String("role", user.Role))
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%d\n", user.ID)
			return err
		},
	}
	cmd.Flags().StringVar(&empID, "emp-id", "", "Employee identifier")
	cmd.Flags().StringVar(&name, "name", "", "Display name")
	cmd.Flags().StringVar(&role, "role", users.RoleUser, "Role (user or admin)")
	return cmd
}

func newIssueTokenCommand() *cobra.Command {
	var userID uint
	cmd := &cobra.Command{
		Use:   "issue-token",
		Short: "Issue an access token for an existing user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == 0 {
				return fmt.Errorf("--user-id is required")
			}
			app, err := openApplication(viper.GetViper())
			if err != nil {
				return err
			}
			defer app.Close()

			user, err := app.users.Lookup(cmd.Context(), userID)
			if err != nil {
				return err
			}
			token, expiresIn, err := app.tokens.IssueToken(user.ID, user.Role)
			if err != nil {
				return err
			}
			app.logger.Info("token issued", zap.Uint("user_id", user.ID), zap.Int64("expires_in", expiresIn))
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().UintVar(&userID, "user-id", 0, "User id to issue the token for")
	return cmd
}

func newMaintenanceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "maintenance",
		Short: "Run the retention sweep and age purge once",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := openApplication(viper.GetViper())
			if err != nil {
				return err
			}
			defer app.Close()

			scheduler, err := app.newScheduler()
			if err != nil {
				return err
			}
			defer func() {
				_ = scheduler.Stop()
			}()

			ctx := cmd.Context()
			summary := scheduler.RunRetentionSweep(ctx)
			purged := scheduler.RunAgePurge(ctx)
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "swept users=%d deleted=%d failed=%d purged=%d\n",
				summary.Users, summary.Deleted, summary.Failed, purged)
			return err
		},
	}
}
