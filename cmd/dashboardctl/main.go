package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/carecenter/dashboard/internal/platform/dynform"
	"github.com/carecenter/dashboard/pkg/client"
)

func main() {
	a := &app{driver: dynform.NewSurveyDriver()}
	if err := newRootCmd(a).Execute(); err != nil {
		os.Exit(1)
	}
}

// app is the state shared by every command of one invocation.
type app struct {
	configPath string
	url        string
	settings   *settings
	driver     dynform.PromptDriver
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "dashboardctl",
		Short:         "Care center administration from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings(a.configPath)
			if err != nil {
				return err
			}
			if a.url != "" {
				s.v.Set("url", a.url)
			}
			a.settings = s
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/dashboardctl/config.yaml)")
	root.PersistentFlags().StringVar(&a.url, "url", "", "API base URL (overrides DASHBOARD_URL)")

	root.AddCommand(
		loginCmd(a),
		logoutCmd(a),
		whoamiCmd(a),
		passwdCmd(a),
		resourcesCmd(a),
		dashboardCmd(a),
		listCmd(a),
		showCmd(a),
		addCmd(a),
		editCmd(a),
		deleteCmd(a),
		actionCmd(a),
		downloadCmd(a),
		watchCmd(a),
	)
	return withErrorOutput(root)
}

// withErrorOutput prints the error of the executed command, including
// rejected form fields, before returning it.
func withErrorOutput(root *cobra.Command) *cobra.Command {
	run := root.PersistentPreRunE
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := run(cmd, args); err != nil {
			printError(cmd.ErrOrStderr(), err)
			return err
		}
		return nil
	}
	for _, sub := range root.Commands() {
		if sub.RunE == nil {
			continue
		}
		inner := sub.RunE
		sub.RunE = func(cmd *cobra.Command, args []string) error {
			err := inner(cmd, args)
			if err != nil {
				printError(cmd.ErrOrStderr(), err)
			}
			return err
		}
	}
	return root
}

// client returns an API client for the configured URL and saved token.
func (a *app) client() (*client.Client, error) {
	return client.New(a.settings.URL(), client.WithToken(a.settings.Token()))
}
