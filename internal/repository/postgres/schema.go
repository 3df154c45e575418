package postgres

// SchemaCapabilities records which optional columns the connected schema has.
// It is decided once at startup from the migration version.
type SchemaCapabilities struct {
	// OwnerColumn is false on databases that predate structure.owner_id.
	// Nodes read from such a schema carry no owner.
	OwnerColumn bool
}

// FullSchema is the capability set of a fully migrated database
func FullSchema() *SchemaCapabilities {
	return &SchemaCapabilities{OwnerColumn: true}
}

// HasOwnerColumn is nil-safe; a nil set means fully migrated
func (s *SchemaCapabilities) HasOwnerColumn() bool {
	return s == nil || s.OwnerColumn
}
