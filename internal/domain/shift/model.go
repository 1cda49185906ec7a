package shift

import (
	"time"

	"github.com/google/uuid"

	"github.com/carecenter/dashboard/internal/platform/auth"
	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/datatable"
	"github.com/carecenter/dashboard/internal/platform/filterbar"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

// MaxLength is the longest shift that can be scheduled.
const MaxLength = 24 * time.Hour

type Shift struct {
	crud.Base
	StaffID   uuid.UUID  `db:"staff_id" json:"staff_id"`
	WardID    *uuid.UUID `db:"ward_id" json:"ward_id,omitempty"`
	ShiftType string     `db:"shift_type" json:"shift_type"`
	StartsAt  time.Time  `db:"starts_at" json:"starts_at"`
	EndsAt    time.Time  `db:"ends_at" json:"ends_at"`
	Notes     *string    `db:"notes" json:"notes,omitempty"`
	StaffName string     `db:"staff_name" json:"staff_name" crud:"readonly"`
	WardName  *string    `db:"ward_name" json:"ward_name,omitempty" crud:"readonly"`
}

// Overlaps reports whether two shifts share any instant. Touching shifts
// do not overlap.
func (s *Shift) Overlaps(o *Shift) bool {
	return s.StartsAt.Before(o.EndsAt) && o.StartsAt.Before(s.EndsAt)
}

// Covers reports whether t falls within the shift.
func (s *Shift) Covers(t time.Time) bool {
	return !t.Before(s.StartsAt) && t.Before(s.EndsAt)
}

func (s *Shift) Computed(key string) (any, bool) {
	if key != "hours" {
		return nil, false
	}
	return s.EndsAt.Sub(s.StartsAt).Hours(), true
}

var typeOptions = []formschema.Option{
	{Value: "morning", Label: "Morning"},
	{Value: "evening", Label: "Evening"},
	{Value: "night", Label: "Night"},
	{Value: "on_call", Label: "On call"},
}

const uuidPattern = `^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`

var Definition = crud.MustDefine(&crud.Definition{
	Name:  "shifts",
	Title: "Shifts",
	Schema: formschema.Schema{
		Name:  "shifts",
		Title: "Shift",
		Fields: []formschema.Field{
			{Name: "staff_id", Label: "Staff member", Type: formschema.FieldText, Required: true,
				Pattern: uuidPattern, PatternMessage: "must be a user id"},
			{Name: "ward_id", Label: "Ward", Type: formschema.FieldText,
				Pattern: uuidPattern, PatternMessage: "must be a ward id"},
			{Name: "shift_type", Label: "Type", Type: formschema.FieldSelect, Required: true, Default: "morning", Options: typeOptions},
			{Name: "starts_at", Label: "Starts", Type: formschema.FieldDateTime, Required: true},
			{Name: "ends_at", Label: "Ends", Type: formschema.FieldDateTime, Required: true},
			{Name: "notes", Label: "Notes", Type: formschema.FieldTextarea, MaxLength: 1000},
		},
	},
	Table: datatable.Table{
		Name: "shifts",
		Columns: []datatable.Column{
			{Key: "starts_at", Label: "Starts", Sortable: true, Format: "datetime"},
			{Key: "ends_at", Label: "Ends", Sortable: true, Format: "datetime"},
			{Key: "staff_name", Label: "Staff", Sortable: true, Searchable: true, Width: 28},
			{Key: "ward_name", Label: "Ward", Sortable: true, Searchable: true},
			{Key: "shift_type", Label: "Type", Sortable: true},
			{Key: "hours", Label: "Hours", Sortable: true, Format: "number",
				Expr: "EXTRACT(EPOCH FROM ends_at - starts_at) / 3600"},
		},
		DefaultSort:     "starts_at",
		DefaultDir:      datatable.Desc,
		PageSizes:       []int{10, 25, 50, 100},
		DefaultPageSize: 50,
		Mode:            datatable.ModeServer,
		Actions: []datatable.RowAction{
			{Action: datatable.ActionView},
			{Action: datatable.ActionEdit, Roles: []string{auth.RoleAdmin}},
			{Action: datatable.ActionDelete, Roles: []string{auth.RoleAdmin}},
		},
	},
	Filters: filterbar.New(
		filterbar.Definition{Key: "shift_type", Label: "Type", Kind: filterbar.KindSelect, Options: typeOptions},
		filterbar.Definition{Key: "staff", Label: "Staff", Kind: filterbar.KindText, Column: "staff_name"},
		filterbar.Definition{Key: "ward", Label: "Ward", Kind: filterbar.KindText, Column: "ward_name"},
		filterbar.Definition{Key: "day", Label: "Day", Kind: filterbar.KindDate, Column: "starts_at"},
		filterbar.Definition{Key: "period", Label: "Period", Kind: filterbar.KindDateRange, Column: "starts_at"},
	),
})
