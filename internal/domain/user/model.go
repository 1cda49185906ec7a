package user

import (
	"time"

	"github.com/carecenter/dashboard/internal/platform/auth"
	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/datatable"
	"github.com/carecenter/dashboard/internal/platform/filterbar"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

// User is a staff account. Password is only ever set from form input and is
// hashed into PasswordHash before the row is stored.
type User struct {
	crud.Base
	Username     string     `db:"username" json:"username"`
	FullName     string     `db:"full_name" json:"full_name"`
	Email        *string    `db:"email" json:"email,omitempty"`
	Phone        *string    `db:"phone" json:"phone,omitempty"`
	Roles        []string   `db:"roles" json:"roles"`
	Active       bool       `db:"active" json:"active"`
	LastLoginAt  *time.Time `db:"last_login_at" json:"last_login_at,omitempty"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Password     string     `db:"-" json:"password,omitempty"`
}

// HasRole reports whether the user holds role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}

func roleOptions() []formschema.Option {
	return []formschema.Option{
		{Value: auth.RoleAdmin, Label: "Administrator"},
		{Value: auth.RoleDoctor, Label: "Doctor"},
		{Value: auth.RoleNurse, Label: "Nurse"},
		{Value: auth.RoleTechnician, Label: "Technician"},
		{Value: auth.RoleClerk, Label: "Clerk"},
	}
}

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

var Definition = crud.MustDefine(&crud.Definition{
	Name:  "users",
	Title: "Users",
	Schema: formschema.Schema{
		Name:  "users",
		Title: "User",
		Fields: []formschema.Field{
			{Name: "username", Label: "Username", Type: formschema.FieldText, Required: true, Immutable: true,
				MinLength: 3, MaxLength: 64, Pattern: `^[a-z0-9._-]+$`,
				PatternMessage: "may contain lowercase letters, digits, dots, dashes and underscores"},
			{Name: "full_name", Label: "Full name", Type: formschema.FieldText, Required: true, MaxLength: 120},
			{Name: "email", Label: "Email", Type: formschema.FieldEmail},
			{Name: "phone", Label: "Phone", Type: formschema.FieldPhone},
			{Name: "roles", Label: "Roles", Type: formschema.FieldMultiSelect, Required: true, Options: roleOptions()},
			{Name: "active", Label: "Active", Type: formschema.FieldCheckbox, Default: true},
			{Name: "password", Label: "Password", Type: formschema.FieldPassword, Required: true,
				MinLength: MinPasswordLength, MaxLength: 72, Help: "Sent only when setting a new password"},
		},
	},
	Table: datatable.Table{
		Name: "users",
		Columns: []datatable.Column{
			{Key: "username", Label: "Username", Sortable: true, Searchable: true},
			{Key: "full_name", Label: "Name", Sortable: true, Searchable: true, Width: 28},
			{Key: "email", Label: "Email", Searchable: true},
			{Key: "roles", Label: "Roles"},
			{Key: "active", Label: "Active", Sortable: true},
			{Key: "last_login_at", Label: "Last login", Sortable: true, Format: "datetime"},
		},
		DefaultSort:     "username",
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
		filterbar.Definition{Key: "roles", Label: "Role", Kind: filterbar.KindSelect, Options: roleOptions(), Op: filterbar.OpAny},
		filterbar.Definition{Key: "active", Label: "Active", Kind: filterbar.KindBoolean},
	),
	ReadRoles: []string{auth.RoleAdmin},
})
