package documents

import (
	"github.com/google/uuid"

	"github.com/carecenter/dashboard/internal/platform/auth"
	"github.com/carecenter/dashboard/internal/platform/blobstore"
	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/datatable"
	"github.com/carecenter/dashboard/internal/platform/filterbar"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

// Document is an uploaded file attached to a row of another resource.
// The content lives in the blob store under StorageKey.
type Document struct {
	crud.Base
	OwnerType   string     `db:"owner_type" json:"owner_type"`
	OwnerID     uuid.UUID  `db:"owner_id" json:"owner_id"`
	Title       string     `db:"title" json:"title"`
	Category    string     `db:"category" json:"category"`
	Filename    string     `db:"filename" json:"filename"`
	ContentType string     `db:"content_type" json:"content_type"`
	SizeBytes   int64      `db:"size_bytes" json:"size_bytes"`
	Checksum    string     `db:"checksum" json:"checksum"`
	StorageKey  string     `db:"storage_key" json:"-"`
	UploadedBy  *uuid.UUID `db:"uploaded_by" json:"uploaded_by,omitempty"`
	Notes       *string    `db:"notes" json:"notes,omitempty"`
}

// OwnerTypes are the resources documents can be attached to.
var OwnerTypes = []formschema.Option{
	{Value: "patients", Label: "Patient"},
	{Value: "dialysis-sessions", Label: "Dialysis session"},
	{Value: "wards", Label: "Ward"},
	{Value: "machines", Label: "Machine"},
	{Value: "inventory", Label: "Inventory item"},
	{Value: "vehicles", Label: "Vehicle"},
	{Value: "vendors", Label: "Vendor"},
	{Value: "users", Label: "Staff member"},
}

var categoryOptions = []formschema.Option{
	{Value: "clinical", Label: "Clinical note"},
	{Value: "lab_report", Label: "Lab report"},
	{Value: "imaging", Label: "Imaging"},
	{Value: "consent", Label: "Consent form"},
	{Value: "identity", Label: "Identity document"},
	{Value: "invoice", Label: "Invoice"},
	{Value: "contract", Label: "Contract"},
	{Value: "maintenance", Label: "Maintenance record"},
	{Value: "other", Label: "Other"},
}

const uuidPattern = `^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`

var Definition = crud.MustDefine(&crud.Definition{
	Name:  "documents",
	Title: "Documents",
	Schema: formschema.Schema{
		Name:  "documents",
		Title: "Document",
		Fields: []formschema.Field{
			{Name: "owner_type", Label: "Attached to", Type: formschema.FieldSelect, Required: true, Immutable: true, Options: OwnerTypes},
			{Name: "owner_id", Label: "Record", Type: formschema.FieldText, Required: true, Immutable: true,
				Pattern: uuidPattern, PatternMessage: "must be a record id"},
			{Name: "title", Label: "Title", Type: formschema.FieldText, Required: true, MaxLength: 200},
			{Name: "category", Label: "Category", Type: formschema.FieldSelect, Required: true, Default: "other", Options: categoryOptions},
			{Name: "file", Label: "File", Type: formschema.FieldFile, Required: true, Immutable: true,
				Accept: blobstore.AllowedContentTypes, MaxSize: blobstore.DefaultMaxFileSize},
			{Name: "notes", Label: "Notes", Type: formschema.FieldTextarea, MaxLength: 2000},
		},
	},
	Table: datatable.Table{
		Name: "documents",
		Columns: []datatable.Column{
			{Key: "title", Label: "Title", Sortable: true, Searchable: true, Width: 30},
			{Key: "owner_type", Label: "Attached to", Sortable: true},
			{Key: "category", Label: "Category", Sortable: true},
			{Key: "filename", Label: "File", Searchable: true, Width: 30},
			{Key: "content_type", Label: "Type"},
			{Key: "size_bytes", Label: "Size", Sortable: true},
			{Key: "created_at", Label: "Uploaded", Sortable: true, Format: "datetime"},
		},
		DefaultSort:     "created_at",
		DefaultDir:      datatable.Desc,
		PageSizes:       []int{10, 25, 50},
		DefaultPageSize: 10,
		Mode:            datatable.ModeServer,
		Actions: []datatable.RowAction{
			{Action: datatable.ActionView},
			{Action: datatable.ActionEdit},
			{Action: datatable.ActionDelete, Roles: []string{auth.RoleAdmin, auth.RoleDoctor}},
		},
	},
	Filters: filterbar.New(
		filterbar.Definition{Key: "owner_type", Label: "Attached to", Kind: filterbar.KindSelect, Options: OwnerTypes},
		filterbar.Definition{Key: "category", Label: "Category", Kind: filterbar.KindSelect, Options: categoryOptions},
		filterbar.Definition{Key: "uploaded", Label: "Uploaded", Kind: filterbar.KindDateRange, Column: "created_at"},
	),
})

// SetUploadLimit changes the largest file the upload form accepts.
func SetUploadLimit(limit int64) error {
	for _, f := range Definition.Schema.Fields {
		if f.Name == "file" {
			f.MaxSize = limit
			return Definition.Override(formschema.Schema{Fields: []formschema.Field{f}})
		}
	}
	return nil
}
