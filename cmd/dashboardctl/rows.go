package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/carecenter/dashboard/internal/domain/dialysis"
	"github.com/carecenter/dashboard/internal/domain/inventory"
	"github.com/carecenter/dashboard/internal/domain/vehicle"
	"github.com/carecenter/dashboard/internal/platform/datatable"
	"github.com/carecenter/dashboard/internal/platform/dynform"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

// rowActions are the transitions offered beside create, edit and delete,
// with the form each one posts.
var rowActions = map[string]map[string]formschema.Schema{
	"dialysis-sessions": {
		"start":    dialysis.StartForm.Schema(),
		"complete": dialysis.CompleteForm.Schema(),
		"cancel":   dialysis.CancelForm.Schema(),
	},
	"beds": {
		"assign": {Name: "bed-assign", Fields: []formschema.Field{
			{Name: "patient_id", Label: "Patient ID", Type: formschema.FieldText, Required: true,
				Pattern: `^[0-9a-fA-F-]{36}$`, PatternMessage: "must be a patient id"},
		}},
		"release": {},
	},
	"inventory": {
		"adjust": inventory.AdjustForm.Schema(),
	},
	"vehicles": {
		"dispatch": vehicle.DispatchForm.Schema(),
		"return":   vehicle.ReturnForm.Schema(),
	},
}

// openFor connects and opens the page of resource.
func (a *app) openFor(cmd *cobra.Command, resource string) (*page, error) {
	c, err := a.client()
	if err != nil {
		return nil, err
	}
	return openPage(cmd.Context(), c, resource)
}

func parseID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// parseSort reads "key" or "-key".
func parseSort(s string) (string, datatable.SortDir) {
	if strings.HasPrefix(s, "-") {
		return s[1:], datatable.Desc
	}
	if s == "" {
		return "", ""
	}
	return s, datatable.Asc
}

func listCmd(a *app) *cobra.Command {
	var (
		q       datatable.Query
		sortArg string
		filters []string
	)
	cmd := &cobra.Command{
		Use:   "list <resource>",
		Short: "Show a page of rows",
		Example: `  dashboardctl list patients --search smith --sort -admitted_at
  dashboardctl list dialysis-sessions --filter status=scheduled --filter scheduled_at_from=2026-10-01`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.openFor(cmd, args[0])
			if err != nil {
				return err
			}
			values, err := p.parseFilters(filters)
			if err != nil {
				return err
			}
			q.SortBy, q.SortDir = parseSort(sortArg)
			return p.list(cmd.Context(), cmd.OutOrStdout(), q, values)
		},
	}
	cmd.Flags().StringVarP(&q.Search, "search", "s", "", "Search the searchable columns")
	cmd.Flags().StringVar(&sortArg, "sort", "", "Sort column, prefixed with - for descending")
	cmd.Flags().IntVarP(&q.Page, "page", "p", 1, "Page number")
	cmd.Flags().IntVar(&q.PageSize, "page-size", 0, "Rows per page (server default when 0)")
	cmd.Flags().StringArrayVarP(&filters, "filter", "f", nil, "Filter as key=value (repeatable)")
	return cmd
}

func showCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <resource> <id>",
		Short: "Show one row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			p, err := a.openFor(cmd, args[0])
			if err != nil {
				return err
			}
			return p.show(cmd.Context(), cmd.OutOrStdout(), id)
		},
	}
}

// presetValues reads key=value pairs as form values.
func presetValues(v *formschema.Validator, pairs []string) (formschema.Values, error) {
	raw := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, val, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("value %q must be key=value", pair)
		}
		if _, known := v.Schema().Field(k); !known {
			return nil, fmt.Errorf("unknown field %q", k)
		}
		raw[k] = val
	}
	return v.FromJSON(raw)
}

func addCmd(a *app) *cobra.Command {
	var preset []string
	cmd := &cobra.Command{
		Use:   "add <resource>",
		Short: "Create a row from an interactive form",
		Example: `  dashboardctl add patients
  dashboardctl add documents --set owner_type=patients --set owner_id=<id>`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := a.openFor(cmd, args[0])
			if err != nil {
				return err
			}
			initial, err := presetValues(p.form, preset)
			if err != nil {
				return err
			}
			row, err := p.create(cmd.Context(), dynform.NewPrompter(a.driver), initial)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s %s\n", p.desc.Form.Schema.Title, rowID(row))
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&preset, "set", nil, "Prefill a field as key=value (repeatable)")
	return cmd
}

func editCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "edit <resource> <id>",
		Short: "Edit a row; only changed fields are sent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			p, err := a.openFor(cmd, args[0])
			if err != nil {
				return err
			}
			if _, err := p.edit(cmd.Context(), dynform.NewPrompter(a.driver), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s %s\n", p.desc.Form.Schema.Title, id)
			return nil
		},
	}
}

func deleteCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "delete <resource> <id>",
		Short: "Delete a row",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			p, err := a.openFor(cmd, args[0])
			if err != nil {
				return err
			}
			if !yes {
				ok, err := a.driver.Confirm(cmd.Context(), dynform.ConfirmConfig{
					Message: fmt.Sprintf("Delete %s %s?", p.desc.Form.Schema.Title, id),
				})
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
					return nil
				}
			}
			if err := p.remove(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s %s\n", p.desc.Form.Schema.Title, id)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func actionNames() string {
	var out []string
	for res, acts := range rowActions {
		for name := range acts {
			out = append(out, res+" "+name)
		}
	}
	sort.Strings(out)
	return "  " + strings.Join(out, "\n  ")
}

func actionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "action <resource> <id> <action>",
		Short: "Run a row transition such as starting a dialysis session",
		Long:  "Run a row transition. Available transitions:\n" + actionNames(),
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, ok := rowActions[args[0]][args[2]]
			if !ok {
				return fmt.Errorf("%s has no %q action", args[0], args[2])
			}
			id, err := parseID(args[1])
			if err != nil {
				return err
			}
			p, err := a.openFor(cmd, args[0])
			if err != nil {
				return err
			}
			if err := p.require(datatable.ActionEdit); err != nil {
				return err
			}
			ctx := cmd.Context()
			if len(schema.Fields) == 0 {
				if _, err := p.api.Action(ctx, id, args[2], schema, nil); err != nil {
					return err
				}
			} else {
				v, err := formschema.Compile(schema)
				if err != nil {
					return err
				}
				form := dynform.New(v, dynform.ModeCreate, nil)
				err = dynform.NewPrompter(a.driver).Run(ctx, form, func(ctx context.Context, values formschema.Values) error {
					_, err := p.api.Action(ctx, id, args[2], schema, values)
					return err
				})
				if err != nil {
					return err
				}
			}
			return p.show(ctx, cmd.OutOrStdout(), id)
		},
	}
}

func downloadCmd(a *app) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "download <document-id>",
		Short: "Save the content of an uploaded document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			p, err := a.openFor(cmd, "documents")
			if err != nil {
				return err
			}
			row, err := p.rows.FetchOne(cmd.Context(), id)
			if err != nil {
				return err
			}
			if output == "" {
				name, _ := (*row)["filename"].(string)
				output = safeFilename(name, id)
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "-" {
				f, err := os.OpenFile(output, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			ct, err := p.api.Download(cmd.Context(), id, w)
			if err != nil {
				if output != "-" {
					os.Remove(output)
				}
				return err
			}
			if output != "-" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Saved %s (%s)\n", output, ct)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file, - for stdout (default: the uploaded file name)")
	return cmd
}

// safeFilename keeps the base name of an uploaded file.
func safeFilename(name string, id uuid.UUID) string {
	name = strings.TrimSpace(name)
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if name == "" || name == "." || name == ".." {
		return id.String()
	}
	return name
}
