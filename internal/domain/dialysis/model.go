package dialysis

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
	StatusScheduled  = "scheduled"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// Session is one dialysis treatment. Status moves scheduled -> in_progress
// -> completed, or to cancelled from either open state.
type Session struct {
	crud.Base
	PatientID         uuid.UUID  `db:"patient_id" json:"patient_id"`
	MachineID         uuid.UUID  `db:"machine_id" json:"machine_id"`
	NurseID           *uuid.UUID `db:"nurse_id" json:"nurse_id,omitempty"`
	ScheduledAt       time.Time  `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes   int        `db:"duration_minutes" json:"duration_minutes"`
	Status            string     `db:"status" json:"status"`
	StartedAt         *time.Time `db:"started_at" json:"started_at,omitempty"`
	EndedAt           *time.Time `db:"ended_at" json:"ended_at,omitempty"`
	PreWeightKg       *float64   `db:"pre_weight_kg" json:"pre_weight_kg,omitempty"`
	PostWeightKg      *float64   `db:"post_weight_kg" json:"post_weight_kg,omitempty"`
	FluidRemovedKg    *float64   `db:"fluid_removed_kg" json:"fluid_removed_kg,omitempty"`
	BloodPressurePre  *string    `db:"blood_pressure_pre" json:"blood_pressure_pre,omitempty"`
	BloodPressurePost *string    `db:"blood_pressure_post" json:"blood_pressure_post,omitempty"`
	Dialyzer          *string    `db:"dialyzer" json:"dialyzer,omitempty"`
	CancelReason      *string    `db:"cancel_reason" json:"cancel_reason,omitempty"`
	Notes             *string    `db:"notes" json:"notes,omitempty"`
	PatientName       string     `db:"patient_name" json:"patient_name" crud:"readonly"`
	PatientMRN        string     `db:"patient_mrn" json:"patient_mrn" crud:"readonly"`
	MachineSerial     string     `db:"machine_serial" json:"machine_serial" crud:"readonly"`
	NurseName         *string    `db:"nurse_name" json:"nurse_name,omitempty" crud:"readonly"`
}

// Open reports whether the session can still start, complete or be
// cancelled.
func (s *Session) Open() bool {
	return s.Status == StatusScheduled || s.Status == StatusInProgress
}

// Hours is the time the machine ran, zero until the session ended.
func (s *Session) Hours() float64 {
	if s.StartedAt == nil || s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(*s.StartedAt).Hours()
}

func (s *Session) Computed(key string) (any, bool) {
	if key != "hours" {
		return nil, false
	}
	return s.Hours(), true
}

var statusOptions = []formschema.Option{
	{Value: StatusScheduled, Label: "Scheduled"},
	{Value: StatusInProgress, Label: "In progress"},
	{Value: StatusCompleted, Label: "Completed"},
	{Value: StatusCancelled, Label: "Cancelled"},
}

const (
	uuidPattern = `^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`
	bpPattern   = `^\d{2,3}/\d{2,3}$`
)

func bound(f float64) *float64 { return &f }

var editRoles = []string{auth.RoleAdmin, auth.RoleDoctor, auth.RoleNurse}

// Definition is the session grid and the scheduling form. Status, timing
// and measurements after start are written by the Start, Complete and
// Cancel transitions.
var Definition = crud.MustDefine(&crud.Definition{
	Name:  "dialysis-sessions",
	Title: "Dialysis sessions",
	Schema: formschema.Schema{
		Name:  "dialysis-sessions",
		Title: "Dialysis session",
		Fields: []formschema.Field{
			{Name: "patient_id", Label: "Patient", Type: formschema.FieldText, Required: true, Immutable: true,
				Pattern: uuidPattern, PatternMessage: "must be a patient id"},
			{Name: "machine_id", Label: "Machine", Type: formschema.FieldText, Required: true,
				Pattern: uuidPattern, PatternMessage: "must be a machine id"},
			{Name: "nurse_id", Label: "Nurse", Type: formschema.FieldText,
				Pattern: uuidPattern, PatternMessage: "must be a user id"},
			{Name: "scheduled_at", Label: "Scheduled at", Type: formschema.FieldDateTime, Required: true},
			{Name: "duration_minutes", Label: "Duration (minutes)", Type: formschema.FieldInteger, Required: true,
				Default: 240, Min: bound(30), Max: bound(600)},
			{Name: "dialyzer", Label: "Dialyzer", Type: formschema.FieldText, MaxLength: 80},
			{Name: "notes", Label: "Notes", Type: formschema.FieldTextarea, MaxLength: 2000},
		},
	},
	Table: datatable.Table{
		Name: "dialysis-sessions",
		Columns: []datatable.Column{
			{Key: "scheduled_at", Label: "Scheduled", Sortable: true, Format: "datetime"},
			{Key: "patient_name", Label: "Patient", Sortable: true, Searchable: true, Width: 28},
			{Key: "patient_mrn", Label: "MRN", Sortable: true, Searchable: true},
			{Key: "machine_serial", Label: "Machine", Sortable: true, Searchable: true},
			{Key: "nurse_name", Label: "Nurse", Sortable: true},
			{Key: "status", Label: "Status", Sortable: true},
			{Key: "duration_minutes", Label: "Minutes", Sortable: true},
			{Key: "fluid_removed_kg", Label: "UF (kg)", Sortable: true, Format: "number"},
			{Key: "hours", Label: "Hours", Sortable: true, Format: "number", Hidden: true,
				Expr: "COALESCE(EXTRACT(EPOCH FROM ended_at - started_at) / 3600, 0)"},
		},
		DefaultSort:     "scheduled_at",
		DefaultDir:      datatable.Desc,
		PageSizes:       []int{10, 25, 50, 100},
		DefaultPageSize: 25,
		Mode:            datatable.ModeServer,
		Actions: []datatable.RowAction{
			{Action: datatable.ActionView},
			{Action: datatable.ActionEdit, Roles: editRoles},
			{Action: datatable.ActionDelete, Roles: []string{auth.RoleAdmin, auth.RoleDoctor}},
		},
	},
	Filters: filterbar.New(
		filterbar.Definition{Key: "status", Label: "Status", Kind: filterbar.KindSelect, Options: statusOptions},
		filterbar.Definition{Key: "patient", Label: "Patient", Kind: filterbar.KindText, Column: "patient_name"},
		filterbar.Definition{Key: "machine", Label: "Machine serial", Kind: filterbar.KindText, Op: filterbar.OpEquals, Column: "machine_serial"},
		filterbar.Definition{Key: "day", Label: "Day", Kind: filterbar.KindDate, Column: "scheduled_at"},
		filterbar.Definition{Key: "scheduled", Label: "Scheduled", Kind: filterbar.KindDateRange, Column: "scheduled_at"},
	),
})

// StartForm validates the measurements taken when a session starts.
var StartForm = formschema.MustCompile(formschema.Schema{
	Name: "dialysis-start",
	Fields: []formschema.Field{
		{Name: "weight_kg", Label: "Pre-dialysis weight (kg)", Type: formschema.FieldNumber, Required: true, Min: bound(1), Max: bound(400)},
		{Name: "blood_pressure", Label: "Blood pressure", Type: formschema.FieldText, Pattern: bpPattern, PatternMessage: "must look like 120/80"},
		{Name: "notes", Label: "Notes", Type: formschema.FieldTextarea, MaxLength: 2000},
	},
})

// CompleteForm validates the measurements taken when a session ends.
var CompleteForm = formschema.MustCompile(formschema.Schema{
	Name: "dialysis-complete",
	Fields: []formschema.Field{
		{Name: "weight_kg", Label: "Post-dialysis weight (kg)", Type: formschema.FieldNumber, Required: true, Min: bound(1), Max: bound(400)},
		{Name: "blood_pressure", Label: "Blood pressure", Type: formschema.FieldText, Pattern: bpPattern, PatternMessage: "must look like 120/80"},
		{Name: "notes", Label: "Notes", Type: formschema.FieldTextarea, MaxLength: 2000},
	},
})

// CancelForm requires a reason for cancelling.
var CancelForm = formschema.MustCompile(formschema.Schema{
	Name: "dialysis-cancel",
	Fields: []formschema.Field{
		{Name: "reason", Label: "Reason", Type: formschema.FieldText, Required: true, MaxLength: 200},
	},
})

// Vitals are the measurements recorded by a transition.
type Vitals struct {
	WeightKg      *float64 `json:"weight_kg"`
	BloodPressure *string  `json:"blood_pressure"`
	Notes         *string  `json:"notes"`
}
