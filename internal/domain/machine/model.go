package machine

import (
	"time"

	"github.com/carecenter/dashboard/internal/platform/auth"
	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/datatable"
	"github.com/carecenter/dashboard/internal/platform/filterbar"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

const (
	StatusAvailable   = "available"
	StatusInUse       = "in_use"
	StatusMaintenance = "maintenance"
	StatusRetired     = "retired"
)

// Machine is a dialysis machine. The in_use status is owned by dialysis
// sessions and cannot be set by hand.
type Machine struct {
	crud.Base
	Serial        string     `db:"serial" json:"serial"`
	Model         string     `db:"model" json:"model"`
	Manufacturer  *string    `db:"manufacturer" json:"manufacturer,omitempty"`
	Location      *string    `db:"location" json:"location,omitempty"`
	Status        string     `db:"status" json:"status"`
	HoursUsed     float64    `db:"hours_used" json:"hours_used"`
	LastServiceAt *time.Time `db:"last_service_at" json:"last_service_at,omitempty"`
	Notes         *string    `db:"notes" json:"notes,omitempty"`
}

var statusOptions = []formschema.Option{
	{Value: StatusAvailable, Label: "Available"},
	{Value: StatusInUse, Label: "In use"},
	{Value: StatusMaintenance, Label: "Maintenance"},
	{Value: StatusRetired, Label: "Retired"},
}

func zero() *float64 { z := 0.0; return &z }

var Definition = crud.MustDefine(&crud.Definition{
	Name:  "machines",
	Title: "Dialysis machines",
	Schema: formschema.Schema{
		Name:  "machines",
		Title: "Machine",
		Fields: []formschema.Field{
			{Name: "serial", Label: "Serial number", Type: formschema.FieldText, Required: true, Immutable: true, MaxLength: 64},
			{Name: "model", Label: "Model", Type: formschema.FieldText, Required: true, MaxLength: 120},
			{Name: "manufacturer", Label: "Manufacturer", Type: formschema.FieldText, MaxLength: 120},
			{Name: "location", Label: "Location", Type: formschema.FieldText, MaxLength: 120},
			{Name: "status", Label: "Status", Type: formschema.FieldSelect, Required: true, Default: StatusAvailable, Options: statusOptions},
			{Name: "hours_used", Label: "Hours used", Type: formschema.FieldNumber, Min: zero(), Default: 0},
			{Name: "last_service_at", Label: "Last service", Type: formschema.FieldDate},
			{Name: "notes", Label: "Notes", Type: formschema.FieldTextarea, MaxLength: 2000},
		},
	},
	Table: datatable.Table{
		Name: "machines",
		Columns: []datatable.Column{
			{Key: "serial", Label: "Serial", Sortable: true, Searchable: true},
			{Key: "model", Label: "Model", Sortable: true, Searchable: true},
			{Key: "manufacturer", Label: "Manufacturer", Sortable: true, Searchable: true},
			{Key: "location", Label: "Location", Sortable: true},
			{Key: "status", Label: "Status", Sortable: true},
			{Key: "hours_used", Label: "Hours", Sortable: true},
			{Key: "last_service_at", Label: "Last service", Sortable: true, Format: "date"},
		},
		DefaultSort:     "serial",
		DefaultDir:      datatable.Asc,
		PageSizes:       []int{10, 25, 50},
		DefaultPageSize: 25,
		Mode:            datatable.ModeServer,
		Actions: []datatable.RowAction{
			{Action: datatable.ActionView},
			{Action: datatable.ActionEdit, Roles: []string{auth.RoleTechnician}},
			{Action: datatable.ActionDelete, Roles: []string{auth.RoleAdmin}},
		},
	},
	Filters: filterbar.New(
		filterbar.Definition{Key: "status", Label: "Status", Kind: filterbar.KindSelect, Options: statusOptions},
		filterbar.Definition{Key: "manufacturer", Label: "Manufacturer", Kind: filterbar.KindText},
		filterbar.Definition{Key: "serviced", Label: "Last service", Kind: filterbar.KindDateRange, Column: "last_service_at"},
	),
})
