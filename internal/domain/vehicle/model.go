package vehicle

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
	StatusOnTrip      = "on_trip"
	StatusMaintenance = "maintenance"
)

type Vehicle struct {
	crud.Base
	Plate         string     `db:"plate" json:"plate"`
	VehicleType   string     `db:"vehicle_type" json:"vehicle_type"`
	MakeModel     *string    `db:"make_model" json:"make_model,omitempty"`
	Capacity      int        `db:"capacity" json:"capacity"`
	Status        string     `db:"status" json:"status"`
	DriverName    *string    `db:"driver_name" json:"driver_name,omitempty"`
	MileageKm     float64    `db:"mileage_km" json:"mileage_km"`
	LastServiceAt *time.Time `db:"last_service_at" json:"last_service_at,omitempty"`
	Notes         *string    `db:"notes" json:"notes,omitempty"`
}

var typeOptions = []formschema.Option{
	{Value: "ambulance", Label: "Ambulance"},
	{Value: "van", Label: "Van"},
	{Value: "car", Label: "Car"},
}

var statusOptions = []formschema.Option{
	{Value: StatusAvailable, Label: "Available"},
	{Value: StatusOnTrip, Label: "On trip"},
	{Value: StatusMaintenance, Label: "Maintenance"},
}

func bound(f float64) *float64 { return &f }

var editRoles = []string{auth.RoleAdmin, auth.RoleClerk}

var Definition = crud.MustDefine(&crud.Definition{
	Name:  "vehicles",
	Title: "Vehicles",
	Schema: formschema.Schema{
		Name:  "vehicles",
		Title: "Vehicle",
		Fields: []formschema.Field{
			{Name: "plate", Label: "Plate", Type: formschema.FieldText, Required: true, MaxLength: 16,
				Pattern: `^[A-Za-z0-9 -]+$`, PatternMessage: "may contain letters, digits, spaces and dashes"},
			{Name: "vehicle_type", Label: "Type", Type: formschema.FieldSelect, Required: true, Options: typeOptions},
			{Name: "make_model", Label: "Make and model", Type: formschema.FieldText, MaxLength: 80},
			{Name: "capacity", Label: "Seats", Type: formschema.FieldInteger, Required: true, Default: 1, Min: bound(1), Max: bound(60)},
			{Name: "status", Label: "Status", Type: formschema.FieldSelect, Required: true, Default: StatusAvailable, Options: statusOptions},
			{Name: "driver_name", Label: "Driver", Type: formschema.FieldText, MaxLength: 80},
			{Name: "mileage_km", Label: "Mileage (km)", Type: formschema.FieldNumber, Default: 0, Min: bound(0)},
			{Name: "last_service_at", Label: "Last service", Type: formschema.FieldDate},
			{Name: "notes", Label: "Notes", Type: formschema.FieldTextarea, MaxLength: 1000},
		},
	},
	Table: datatable.Table{
		Name: "vehicles",
		Columns: []datatable.Column{
			{Key: "plate", Label: "Plate", Sortable: true, Searchable: true},
			{Key: "vehicle_type", Label: "Type", Sortable: true},
			{Key: "make_model", Label: "Model", Searchable: true},
			{Key: "capacity", Label: "Seats", Sortable: true},
			{Key: "status", Label: "Status", Sortable: true},
			{Key: "driver_name", Label: "Driver", Sortable: true, Searchable: true},
			{Key: "mileage_km", Label: "Km", Sortable: true, Format: "number"},
			{Key: "last_service_at", Label: "Serviced", Sortable: true, Format: "date"},
		},
		DefaultSort:     "plate",
		DefaultDir:      datatable.Asc,
		PageSizes:       []int{10, 25, 50},
		DefaultPageSize: 25,
		Mode:            datatable.ModeClient,
		Actions: []datatable.RowAction{
			{Action: datatable.ActionView},
			{Action: datatable.ActionEdit, Roles: editRoles},
			{Action: datatable.ActionDelete, Roles: []string{auth.RoleAdmin}},
		},
	},
	Filters: filterbar.New(
		filterbar.Definition{Key: "vehicle_type", Label: "Type", Kind: filterbar.KindSelect, Options: typeOptions},
		filterbar.Definition{Key: "status", Label: "Status", Kind: filterbar.KindSelect, Options: statusOptions},
	),
})

// DispatchForm and ReturnForm validate trip transitions.
var (
	DispatchForm = formschema.MustCompile(formschema.Schema{
		Name: "vehicle-dispatch",
		Fields: []formschema.Field{
			{Name: "driver_name", Label: "Driver", Type: formschema.FieldText, Required: true, MaxLength: 80},
		},
	})
	ReturnForm = formschema.MustCompile(formschema.Schema{
		Name: "vehicle-return",
		Fields: []formschema.Field{
			{Name: "mileage_km", Label: "Odometer (km)", Type: formschema.FieldNumber, Required: true, Min: bound(0)},
		},
	})
)
