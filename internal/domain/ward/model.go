package ward

import (
	"time"

	"github.com/google/uuid"

	"github.com/carecenter/dashboard/internal/platform/auth"
	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/datatable"
	"github.com/carecenter/dashboard/internal/platform/filterbar"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

const (
	BedAvailable   = "available"
	BedOccupied    = "occupied"
	BedMaintenance = "maintenance"
)

type Ward struct {
	crud.Base
	Name     string  `db:"name" json:"name"`
	WardType string  `db:"ward_type" json:"ward_type"`
	Floor    int     `db:"floor" json:"floor"`
	Capacity int     `db:"capacity" json:"capacity"`
	Notes    *string `db:"notes" json:"notes,omitempty"`
}

// Bed belongs to a ward. A bed is occupied exactly when it holds a patient.
type Bed struct {
	crud.Base
	WardID      uuid.UUID  `db:"ward_id" json:"ward_id"`
	Number      string     `db:"number" json:"number"`
	BedType     string     `db:"bed_type" json:"bed_type"`
	Status      string     `db:"status" json:"status"`
	PatientID   *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	AssignedAt  *time.Time `db:"assigned_at" json:"assigned_at,omitempty"`
	Notes       *string    `db:"notes" json:"notes,omitempty"`
	WardName    string     `db:"ward_name" json:"ward_name" crud:"readonly"`
	PatientName *string    `db:"patient_name" json:"patient_name,omitempty" crud:"readonly"`
}

var wardTypeOptions = []formschema.Option{
	{Value: "general", Label: "General"},
	{Value: "icu", Label: "Intensive care"},
	{Value: "dialysis", Label: "Dialysis"},
	{Value: "pediatric", Label: "Pediatric"},
	{Value: "maternity", Label: "Maternity"},
	{Value: "isolation", Label: "Isolation"},
}

var bedTypeOptions = []formschema.Option{
	{Value: "standard", Label: "Standard"},
	{Value: "icu", Label: "ICU"},
	{Value: "dialysis", Label: "Dialysis chair"},
	{Value: "isolation", Label: "Isolation"},
}

var bedStatusOptions = []formschema.Option{
	{Value: BedAvailable, Label: "Available"},
	{Value: BedOccupied, Label: "Occupied"},
	{Value: BedMaintenance, Label: "Maintenance"},
}

func zero() *float64 { z := 0.0; return &z }

var Definition = crud.MustDefine(&crud.Definition{
	Name:  "wards",
	Title: "Wards",
	Schema: formschema.Schema{
		Name:  "wards",
		Title: "Ward",
		Fields: []formschema.Field{
			{Name: "name", Label: "Name", Type: formschema.FieldText, Required: true, MaxLength: 80},
			{Name: "ward_type", Label: "Type", Type: formschema.FieldSelect, Required: true, Default: "general", Options: wardTypeOptions},
			{Name: "floor", Label: "Floor", Type: formschema.FieldInteger, Default: 0},
			{Name: "capacity", Label: "Capacity", Type: formschema.FieldInteger, Required: true, Min: zero()},
			{Name: "notes", Label: "Notes", Type: formschema.FieldTextarea, MaxLength: 1000},
		},
	},
	Table: datatable.Table{
		Name: "wards",
		Columns: []datatable.Column{
			{Key: "name", Label: "Name", Sortable: true, Searchable: true},
			{Key: "ward_type", Label: "Type", Sortable: true},
			{Key: "floor", Label: "Floor", Sortable: true},
			{Key: "capacity", Label: "Capacity", Sortable: true},
		},
		DefaultSort:     "name",
		DefaultDir:      datatable.Asc,
		PageSizes:       []int{10, 25, 50},
		DefaultPageSize: 25,
		Mode:            datatable.ModeServer,
		Actions: []datatable.RowAction{
			{Action: datatable.ActionView},
			{Action: datatable.ActionEdit, Roles: []string{auth.RoleAdmin}},
			{Action: datatable.ActionDelete, Roles: []string{auth.RoleAdmin}},
		},
	},
	Filters: filterbar.New(
		filterbar.Definition{Key: "ward_type", Label: "Type", Kind: filterbar.KindSelect, Options: wardTypeOptions},
	),
})

const uuidPattern = `^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`

var BedDefinition = crud.MustDefine(&crud.Definition{
	Name:  "beds",
	Title: "Beds",
	Schema: formschema.Schema{
		Name:  "beds",
		Title: "Bed",
		Fields: []formschema.Field{
			{Name: "ward_id", Label: "Ward", Type: formschema.FieldText, Required: true, Immutable: true,
				Pattern: uuidPattern, PatternMessage: "must be a ward id"},
			{Name: "number", Label: "Bed number", Type: formschema.FieldText, Required: true, MaxLength: 16},
			{Name: "bed_type", Label: "Type", Type: formschema.FieldSelect, Required: true, Default: "standard", Options: bedTypeOptions},
			{Name: "status", Label: "Status", Type: formschema.FieldSelect, Required: true, Default: BedAvailable, Options: bedStatusOptions},
			{Name: "notes", Label: "Notes", Type: formschema.FieldTextarea, MaxLength: 1000},
		},
	},
	Table: datatable.Table{
		Name: "beds",
		Columns: []datatable.Column{
			{Key: "ward_name", Label: "Ward", Sortable: true, Searchable: true},
			{Key: "number", Label: "Bed", Sortable: true, Searchable: true},
			{Key: "bed_type", Label: "Type", Sortable: true},
			{Key: "status", Label: "Status", Sortable: true},
			{Key: "patient_name", Label: "Patient", Sortable: true, Searchable: true, Width: 28},
			{Key: "assigned_at", Label: "Since", Sortable: true, Format: "datetime"},
		},
		DefaultSort:     "ward_name",
		DefaultDir:      datatable.Asc,
		PageSizes:       []int{10, 25, 50, 100},
		DefaultPageSize: 50,
		Mode:            datatable.ModeServer,
		Actions: []datatable.RowAction{
			{Action: datatable.ActionView},
			{Action: datatable.ActionEdit, Roles: []string{auth.RoleAdmin, auth.RoleNurse}},
			{Action: datatable.ActionDelete, Roles: []string{auth.RoleAdmin}},
		},
	},
	Filters: filterbar.New(
		filterbar.Definition{Key: "status", Label: "Status", Kind: filterbar.KindSelect, Options: bedStatusOptions},
		filterbar.Definition{Key: "bed_type", Label: "Type", Kind: filterbar.KindSelect, Options: bedTypeOptions},
		filterbar.Definition{Key: "ward", Label: "Ward", Kind: filterbar.KindText, Column: "ward_name"},
	),
})
