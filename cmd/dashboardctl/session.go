package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/carecenter/dashboard/internal/domain/dashboard"
	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/datatable"
	"github.com/carecenter/dashboard/internal/platform/dynform"
	"github.com/carecenter/dashboard/pkg/client"
)

func loginCmd(a *app) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and remember the access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			required := func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("is required")
				}
				return nil
			}
			if username == "" {
				u, err := a.driver.Input(ctx, dynform.InputConfig{Message: "Username", Validator: required})
				if err != nil {
					return err
				}
				username = u
			}
			password, err := a.driver.Password(ctx, dynform.InputConfig{Message: "Password", Validator: required})
			if err != nil {
				return err
			}

			c, err := client.New(a.settings.URL())
			if err != nil {
				return err
			}
			sess, err := c.Login(ctx, username, password)
			if err != nil {
				if errors.Is(err, client.ErrUnauthorized) {
					return errors.New("invalid username or password")
				}
				return err
			}
			if err := a.settings.save(a.settings.URL(), sess.AccessToken); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (%s) until %s\n",
				sess.User.FullName, strings.Join(sess.User.Roles, ", "), sess.ExpiresAt.Local().Format("2006-01-02 15:04"))
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Login name (prompted when empty)")
	return cmd
}

func logoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the saved token and forget it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			if c.Token() != "" {
				if err := c.Logout(cmd.Context()); err != nil && !errors.Is(err, client.ErrUnauthorized) {
					return err
				}
			}
			if err := a.settings.save(a.settings.URL(), ""); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}

func whoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in staff member",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			me, err := c.Me(cmd.Context())
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, detailLine("Username", me.Username))
			fmt.Fprintln(w, detailLine("Name", me.FullName))
			fmt.Fprintln(w, detailLine("Roles", strings.Join(me.Roles, ", ")))
			fmt.Fprintln(w, detailLine("Server", a.settings.URL()))
			return nil
		},
	}
}

func passwdCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "passwd",
		Short: "Change your password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			current, err := a.driver.Password(ctx, dynform.InputConfig{Message: "Current password"})
			if err != nil {
				return err
			}
			next, err := a.driver.Password(ctx, dynform.InputConfig{Message: "New password"})
			if err != nil {
				return err
			}
			again, err := a.driver.Password(ctx, dynform.InputConfig{Message: "Repeat new password"})
			if err != nil {
				return err
			}
			if next != again {
				return errors.New("passwords do not match")
			}

			c, err := a.client()
			if err != nil {
				return err
			}
			var tok client.Session
			in := map[string]string{"current_password": current, "new_password": next}
			if err := c.PostJSON(ctx, "/auth/password", in, &tok); err != nil {
				return err
			}
			if err := a.settings.save(a.settings.URL(), tok.AccessToken); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Password changed")
			return nil
		},
	}
}

var resourcesTable = datatable.Table{
	Name: "resources",
	Columns: []datatable.Column{
		{Key: "name", Label: "Resource"},
		{Key: "title", Label: "Title"},
		{Key: "actions", Label: "Allowed"},
	},
}

func resourcesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resources",
		Short: "List the resources you can open",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			var out struct {
				Data []crud.Description `json:"data"`
			}
			if err := c.GetJSON(cmd.Context(), "/schemas", nil, &out); err != nil {
				return err
			}
			grid := datatable.Page[crud.Description]{Rows: out.Data, Total: len(out.Data), Page: 1, PageCount: 1}
			return datatable.Render(cmd.OutOrStdout(), resourcesTable, grid, func(d crud.Description, key string) any {
				switch key {
				case "name":
					return d.Name
				case "title":
					return d.Title
				}
				actions := make([]string, len(d.Actions))
				for i, act := range d.Actions {
					actions[i] = string(act)
				}
				return actions
			})
		},
	}
}

func dashboardCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show today's summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			var sum dashboard.Summary
			if err := c.GetJSON(cmd.Context(), "/dashboard", nil, &sum); err != nil {
				return err
			}
			renderSummary(cmd.OutOrStdout(), sum)
			return nil
		},
	}
}

func renderSummary(w io.Writer, sum dashboard.Summary) {
	card := func(title string, lines ...string) string {
		return cardStyle.Render(titleStyle.Render(title) + "\n" + strings.Join(lines, "\n"))
	}
	counts := func(m map[string]int) []string {
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines := make([]string, 0, len(keys))
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("%-12s %d", k, m[k]))
		}
		if len(lines) == 0 {
			lines = append(lines, "none")
		}
		return lines
	}

	fmt.Fprintln(w, titleStyle.Render("Care center · "+sum.Day))
	fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top,
		card("Patients", "active "+strconv.Itoa(sum.ActivePatients)),
		card("Sessions today", counts(sum.SessionsToday)...),
		card("Beds", counts(sum.Beds)...),
	))
	fmt.Fprintln(w, lipgloss.JoinHorizontal(lipgloss.Top,
		card("Machines", counts(sum.Machines)...),
		card("Inventory", "low stock "+strconv.Itoa(sum.LowStockItems)),
		card("Vehicles", "available "+strconv.Itoa(sum.VehiclesAvailable)),
	))
}

func watchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch [resource...]",
		Short: "Print row changes as they happen",
		Example: `  dashboardctl watch
  dashboardctl watch beds dialysis-sessions`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			w := cmd.OutOrStdout()
			return c.Watch(ctx, args, func(ev client.Event) error {
				fmt.Fprintln(w, eventLine(ev))
				return nil
			})
		},
	}
}

func eventLine(ev client.Event) string {
	line := fmt.Sprintf("%s  %-18s %-10s", ev.At.Local().Format("15:04:05"), ev.Resource, ev.Type)
	if ev.ID != "" {
		line += " " + ev.ID
	}
	if ev.User != "" {
		line += " " + labelStyle.UnsetWidth().Render("by "+ev.User)
	}
	return line
}
