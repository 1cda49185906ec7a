package main

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/lipgloss"

	"github.com/carecenter/dashboard/internal/platform/formschema"
	"github.com/carecenter/dashboard/pkg/client"
)

var (
	accent      = lipgloss.Color("#2196F3")
	destructive = lipgloss.Color("#e53935")
	muted       = lipgloss.Color("#8a94a6")

	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).MarginBottom(1)
	labelStyle = lipgloss.NewStyle().Foreground(muted).Width(22)
	errorStyle = lipgloss.NewStyle().Bold(true).Foreground(destructive)
	fieldStyle = lipgloss.NewStyle().Foreground(destructive).PaddingLeft(2)
	cardStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(accent).Padding(0, 1)
)

func detailLine(label, value string) string {
	return lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(label), value)
}

// printError writes err and, for rejected forms, one line per field
// message.
func printError(w io.Writer, err error) {
	var apiErr *client.APIError
	msg := err.Error()
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		msg = apiErr.Message
	}
	fmt.Fprintln(w, errorStyle.Render("error: "+msg))

	ve, ok := formschema.AsValidationError(err)
	if !ok {
		return
	}
	for _, m := range ve.Form {
		fmt.Fprintln(w, fieldStyle.Render(m))
	}
	names := make([]string, 0, len(ve.Fields))
	for name := range ve.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, m := range ve.Fields[name] {
			fmt.Fprintln(w, fieldStyle.Render(name+": "+m))
		}
	}
}
