package inventory

import (
	"time"

	"github.com/google/uuid"

	"github.com/carecenter/dashboard/internal/platform/auth"
	"github.com/carecenter/dashboard/internal/platform/crud"
	"github.com/carecenter/dashboard/internal/platform/datatable"
	"github.com/carecenter/dashboard/internal/platform/filterbar"
	"github.com/carecenter/dashboard/internal/platform/formschema"
)

// Movement kinds. An adjustment sets the counted quantity.
const (
	KindIn     = "in"
	KindOut    = "out"
	KindAdjust = "adjust"
)

// Item is a stocked supply. Quantity changes only through movements once
// the item exists.
type Item struct {
	crud.Base
	SKU          string     `db:"sku" json:"sku"`
	Name         string     `db:"name" json:"name"`
	Category     string     `db:"category" json:"category"`
	Unit         string     `db:"unit" json:"unit"`
	Quantity     int        `db:"quantity" json:"quantity"`
	ReorderLevel int        `db:"reorder_level" json:"reorder_level"`
	VendorID     *uuid.UUID `db:"vendor_id" json:"vendor_id,omitempty"`
	Location     *string    `db:"location" json:"location,omitempty"`
	ExpiresAt    *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	Notes        *string    `db:"notes" json:"notes,omitempty"`
	VendorName   *string    `db:"vendor_name" json:"vendor_name,omitempty" crud:"readonly"`
	LowStock     bool       `db:"low_stock" json:"low_stock" crud:"readonly"`
}

// Movement is one recorded change of an item's quantity.
type Movement struct {
	crud.Base
	ItemID       uuid.UUID  `db:"item_id" json:"item_id"`
	Kind         string     `db:"kind" json:"kind"`
	Quantity     int        `db:"quantity" json:"quantity"`
	BalanceAfter int        `db:"balance_after" json:"balance_after"`
	Reason       *string    `db:"reason" json:"reason,omitempty"`
	UserID       *uuid.UUID `db:"user_id" json:"user_id,omitempty"`
	ItemSKU      string     `db:"item_sku" json:"item_sku" crud:"readonly"`
	Username     *string    `db:"username" json:"username,omitempty" crud:"readonly"`
}

var categoryOptions = []formschema.Option{
	{Value: "consumable", Label: "Consumable"},
	{Value: "dialyzer", Label: "Dialyzers and lines"},
	{Value: "medication", Label: "Medication"},
	{Value: "linen", Label: "Linen"},
	{Value: "cleaning", Label: "Cleaning"},
	{Value: "spare_part", Label: "Spare part"},
	{Value: "other", Label: "Other"},
}

var unitOptions = []formschema.Option{
	{Value: "unit", Label: "Unit"},
	{Value: "box", Label: "Box"},
	{Value: "pack", Label: "Pack"},
	{Value: "bottle", Label: "Bottle"},
	{Value: "liter", Label: "Liter"},
	{Value: "kg", Label: "Kilogram"},
}

var kindOptions = []formschema.Option{
	{Value: KindIn, Label: "Received"},
	{Value: KindOut, Label: "Issued"},
	{Value: KindAdjust, Label: "Stock count"},
}

func zero() *float64 { z := 0.0; return &z }

const uuidPattern = `^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`

var editRoles = []string{auth.RoleAdmin, auth.RoleNurse, auth.RoleClerk}

var Definition = crud.MustDefine(&crud.Definition{
	Name:  "inventory",
	Title: "Inventory",
	Schema: formschema.Schema{
		Name:  "inventory",
		Title: "Inventory item",
		Fields: []formschema.Field{
			{Name: "sku", Label: "SKU", Type: formschema.FieldText, Required: true, Immutable: true, MaxLength: 40,
				Pattern: `^[A-Za-z0-9._-]+$`, PatternMessage: "may contain letters, digits, dot, dash and underscore"},
			{Name: "name", Label: "Name", Type: formschema.FieldText, Required: true, MaxLength: 120},
			{Name: "category", Label: "Category", Type: formschema.FieldSelect, Required: true, Options: categoryOptions},
			{Name: "unit", Label: "Unit", Type: formschema.FieldSelect, Required: true, Default: "unit", Options: unitOptions},
			{Name: "quantity", Label: "Opening quantity", Type: formschema.FieldInteger, Default: 0, Min: zero(), Immutable: true,
				Help: "Later changes are recorded as stock movements"},
			{Name: "reorder_level", Label: "Reorder level", Type: formschema.FieldInteger, Required: true, Default: 0, Min: zero()},
			{Name: "vendor_id", Label: "Vendor", Type: formschema.FieldText, Pattern: uuidPattern, PatternMessage: "must be a vendor id"},
			{Name: "location", Label: "Location", Type: formschema.FieldText, MaxLength: 80},
			{Name: "expires_at", Label: "Expires", Type: formschema.FieldDate},
			{Name: "notes", Label: "Notes", Type: formschema.FieldTextarea, MaxLength: 2000},
		},
	},
	Table: datatable.Table{
		Name: "inventory",
		Columns: []datatable.Column{
			{Key: "sku", Label: "SKU", Sortable: true, Searchable: true},
			{Key: "name", Label: "Name", Sortable: true, Searchable: true, Width: 30},
			{Key: "category", Label: "Category", Sortable: true},
			{Key: "quantity", Label: "Qty", Sortable: true},
			{Key: "unit", Label: "Unit"},
			{Key: "reorder_level", Label: "Reorder at", Sortable: true},
			{Key: "vendor_name", Label: "Vendor", Sortable: true, Searchable: true},
			{Key: "expires_at", Label: "Expires", Sortable: true, Format: "date"},
			{Key: "low_stock", Label: "Low", Format: "boolean"},
		},
		DefaultSort:     "name",
		DefaultDir:      datatable.Asc,
		PageSizes:       []int{10, 25, 50, 100},
		DefaultPageSize: 25,
		Mode:            datatable.ModeServer,
		Actions: []datatable.RowAction{
			{Action: datatable.ActionView},
			{Action: datatable.ActionEdit, Roles: editRoles},
			{Action: datatable.ActionDelete, Roles: []string{auth.RoleAdmin}},
		},
	},
	Filters: filterbar.New(
		filterbar.Definition{Key: "category", Label: "Category", Kind: filterbar.KindSelect, Options: categoryOptions},
		filterbar.Definition{Key: "low_stock", Label: "Low stock", Kind: filterbar.KindBoolean},
		filterbar.Definition{Key: "vendor", Label: "Vendor", Kind: filterbar.KindText, Column: "vendor_name"},
		filterbar.Definition{Key: "expires", Label: "Expires", Kind: filterbar.KindDateRange, Column: "expires_at"},
	),
})

// MovementDefinition is the read-only stock ledger.
var MovementDefinition = crud.MustDefine(&crud.Definition{
	Name:  "stock-movements",
	Title: "Stock movements",
	Schema: formschema.Schema{
		Name:   "stock-movements",
		Title:  "Stock movement",
		Fields: AdjustForm.Schema().Fields,
	},
	Table: datatable.Table{
		Name: "stock-movements",
		Columns: []datatable.Column{
			{Key: "created_at", Label: "When", Sortable: true, Format: "datetime"},
			{Key: "item_sku", Label: "SKU", Sortable: true, Searchable: true},
			{Key: "kind", Label: "Kind", Sortable: true},
			{Key: "quantity", Label: "Change", Sortable: true},
			{Key: "balance_after", Label: "Balance"},
			{Key: "reason", Label: "Reason", Searchable: true, Width: 30},
			{Key: "username", Label: "By", Sortable: true},
		},
		DefaultSort:     "created_at",
		DefaultDir:      datatable.Desc,
		PageSizes:       []int{10, 25, 50, 100},
		DefaultPageSize: 25,
		Mode:            datatable.ModeServer,
		Actions:         []datatable.RowAction{{Action: datatable.ActionView}},
	},
	Filters: filterbar.New(
		filterbar.Definition{Key: "kind", Label: "Kind", Kind: filterbar.KindSelect, Options: kindOptions},
		filterbar.Definition{Key: "when", Label: "Date", Kind: filterbar.KindDateRange, Column: "created_at"},
	),
})

// AdjustForm validates a stock movement request.
var AdjustForm = formschema.MustCompile(formschema.Schema{
	Name:  "inventory-adjust",
	Title: "Stock movement",
	Fields: []formschema.Field{
		{Name: "kind", Label: "Kind", Type: formschema.FieldSelect, Required: true, Options: kindOptions},
		{Name: "quantity", Label: "Quantity", Type: formschema.FieldInteger, Required: true, Min: zero(),
			Help: "Units received or issued, or the counted total for a stock count"},
		{Name: "reason", Label: "Reason", Type: formschema.FieldText, MaxLength: 200},
	},
})

// Adjustment is a requested stock movement.
type Adjustment struct {
	Kind     string  `json:"kind"`
	Quantity int     `json:"quantity"`
	Reason   *string `json:"reason"`
}
