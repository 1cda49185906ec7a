package patient

import (
	"time"

	"github.com/carecenter/dashboard/internal/platform/auth"
	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/datatable"
	"github.com/carecenter/dashboard/internal/platform/filterbar"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

const (
	StatusActive     = "active"
	StatusInactive   = "inactive"
	StatusDischarged = "discharged"
	StatusDeceased   = "deceased"
)

type Patient struct {
	crud.Base
	MRN              string     `db:"mrn" json:"mrn"`
	FullName         string     `db:"full_name" json:"full_name"`
	BirthDate        *time.Time `db:"birth_date" json:"birth_date,omitempty"`
	Gender           *string    `db:"gender" json:"gender,omitempty"`
	BloodType        *string    `db:"blood_type" json:"blood_type,omitempty"`
	Phone            *string    `db:"phone" json:"phone,omitempty"`
	Email            *string    `db:"email" json:"email,omitempty"`
	Address          *string    `db:"address" json:"address,omitempty"`
	EmergencyContact *string    `db:"emergency_contact" json:"emergency_contact,omitempty"`
	Status           string     `db:"status" json:"status"`
	Notes            *string    `db:"notes" json:"notes,omitempty"`
}

// Age is the age in whole years on day, or -1 without a birth date.
func (p *Patient) Age(day time.Time) int {
	if p.BirthDate == nil {
		return -1
	}
	b := *p.BirthDate
	years := day.Year() - b.Year()
	if day.Month() < b.Month() || (day.Month() == b.Month() && day.Day() < b.Day()) {
		years--
	}
	return years
}

func (p *Patient) Computed(key string) (any, bool) {
	if key != "age" {
		return nil, false
	}
	if age := p.Age(time.Now()); age >= 0 {
		return float64(age), true
	}
	return nil, true
}

// Admittable reports whether the patient may be scheduled or assigned a bed.
func (p *Patient) Admittable() bool {
	return p.Status == StatusActive
}

var statusOptions = []formschema.Option{
	{Value: StatusActive, Label: "Active"},
	{Value: StatusInactive, Label: "Inactive"},
	{Value: StatusDischarged, Label: "Discharged"},
	{Value: StatusDeceased, Label: "Deceased"},
}

var genderOptions = []formschema.Option{
	{Value: "female", Label: "Female"},
	{Value: "male", Label: "Male"},
	{Value: "other", Label: "Other"},
	{Value: "unknown", Label: "Unknown"},
}

var bloodTypeOptions = []formschema.Option{
	{Value: "A+"}, {Value: "A-"}, {Value: "B+"}, {Value: "B-"},
	{Value: "AB+"}, {Value: "AB-"}, {Value: "O+"}, {Value: "O-"},
}

var Definition = crud.MustDefine(&crud.Definition{
	Name:  "patients",
	Title: "Patients",
	Schema: formschema.Schema{
		Name:  "patients",
		Title: "Patient",
		Fields: []formschema.Field{
			{Name: "mrn", Label: "Medical record number", Type: formschema.FieldText, Required: true, Immutable: true,
				MaxLength: 32, Pattern: `^[A-Za-z0-9-]+$`, PatternMessage: "may contain letters, digits and dashes"},
			{Name: "full_name", Label: "Full name", Type: formschema.FieldText, Required: true, MinLength: 2, MaxLength: 120},
			{Name: "birth_date", Label: "Date of birth", Type: formschema.FieldDate},
			{Name: "gender", Label: "Gender", Type: formschema.FieldSelect, Options: genderOptions},
			{Name: "blood_type", Label: "Blood type", Type: formschema.FieldSelect, Options: bloodTypeOptions},
			{Name: "phone", Label: "Phone", Type: formschema.FieldPhone},
			{Name: "email", Label: "Email", Type: formschema.FieldEmail},
			{Name: "address", Label: "Address", Type: formschema.FieldTextarea, MaxLength: 500},
			{Name: "emergency_contact", Label: "Emergency contact", Type: formschema.FieldText, MaxLength: 200},
			{Name: "status", Label: "Status", Type: formschema.FieldSelect, Required: true, Default: StatusActive, Options: statusOptions},
			{Name: "notes", Label: "Notes", Type: formschema.FieldTextarea, MaxLength: 2000},
		},
	},
	Table: datatable.Table{
		Name: "patients",
		Columns: []datatable.Column{
			{Key: "mrn", Label: "MRN", Sortable: true, Searchable: true},
			{Key: "full_name", Label: "Name", Sortable: true, Searchable: true, Width: 30},
			{Key: "age", Label: "Age", Sortable: true, Expr: "AGE(birth_date)"},
			{Key: "gender", Label: "Gender"},
			{Key: "phone", Label: "Phone", Searchable: true},
			{Key: "status", Label: "Status", Sortable: true},
			{Key: "created_at", Label: "Registered", Sortable: true, Format: "date"},
		},
		DefaultSort:     "full_name",
		DefaultDir:      datatable.Asc,
		PageSizes:       []int{10, 25, 50, 100},
		DefaultPageSize: 25,
		Mode:            datatable.ModeServer,
		Actions: []datatable.RowAction{
			{Action: datatable.ActionView},
			{Action: datatable.ActionEdit, Roles: []string{auth.RoleDoctor, auth.RoleNurse, auth.RoleClerk}},
			{Action: datatable.ActionDelete, Roles: []string{auth.RoleAdmin}},
		},
	},
	Filters: filterbar.New(
		filterbar.Definition{Key: "status", Label: "Status", Kind: filterbar.KindSelect, Options: statusOptions},
		filterbar.Definition{Key: "gender", Label: "Gender", Kind: filterbar.KindSelect, Options: genderOptions},
		filterbar.Definition{Key: "registered", Label: "Registered", Kind: filterbar.KindDateRange, Column: "created_at"},
	),
})
