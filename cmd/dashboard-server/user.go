package main

import (
	"errors"
	"fmt"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/carecenter/dashboard/internal/config"
	"github.com/carecenter/dashboard/internal/domain/user"
	"github.com/carecenter/dashboard/internal/platform/auth"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage staff accounts",
	}

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a staff account",
		RunE: func(cmd *cobra.Command, args []string) error {
			username, _ := cmd.Flags().GetString("username")
			fullName, _ := cmd.Flags().GetString("full-name")
			roles, _ := cmd.Flags().GetStringSlice("role")
			password, _ := cmd.Flags().GetString("password")

			if password == "" {
				if err := survey.AskOne(&survey.Password{Message: "Password:"}, &password,
					survey.WithValidator(survey.MinLength(user.MinPasswordLength))); err != nil {
					return err
				}
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Storage != config.StoragePostgres {
				return errors.New("user create needs STORAGE=postgres")
			}
			logger := newLogger(cfg)
			st, err := openStorage(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer st.close()

			svc := user.NewService(st.users, nil, nil, logger)
			u, err := svc.Create(cmd.Context(), formschema.Values{
				"username":  username,
				"full_name": fullName,
				"roles":     roles,
				"active":    true,
				"password":  password,
			})
			if ve, ok := formschema.AsValidationError(err); ok {
				for field, msgs := range ve.Fields {
					for _, m := range msgs {
						fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", field, m)
					}
				}
				return errors.New("invalid account")
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s) with roles %v\n", u.Username, u.ID, u.Roles)
			return nil
		},
	}
	createCmd.Flags().String("username", "", "Login name")
	createCmd.Flags().String("full-name", "", "Display name")
	createCmd.Flags().StringSlice("role", []string{auth.RoleClerk}, "Role to grant (repeatable)")
	createCmd.Flags().String("password", "", "Password (prompted when empty)")
	_ = createCmd.MarkFlagRequired("username")
	_ = createCmd.MarkFlagRequired("full-name")
	cmd.AddCommand(createCmd)

	return cmd
}
