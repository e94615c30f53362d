package model

// Entity names one of the synchronised domain object kinds
type Entity string

const (
	EntityItem      Entity = "item"
	EntityCategory  Entity = "category"
	EntityContainer Entity = "container"
	EntityLocation  Entity = "location"
)

// Entities lists every synchronised entity kind
var Entities = []Entity{EntityItem, EntityCategory, EntityContainer, EntityLocation}

// Valid reports whether e is a known entity
func (e Entity) Valid() bool {
	_, ok := schemas[e]
	return ok
}

// EntitySchema describes how an entity maps onto the remote store and which
// fields identify plausible duplicates. Field names are in canonical form.
type EntitySchema struct {
	Table        string
	UniqueKey    string // exact natural key, e.g. scan code
	SecondaryKey string // entity-specific secondary key, containers only
	NameField    string
}

var schemas = map[Entity]EntitySchema{
	EntityItem:      {Table: "items", UniqueKey: "qrCode", NameField: "name"},
	EntityContainer: {Table: "containers", UniqueKey: "qrCode", SecondaryKey: "number", NameField: "name"},
	EntityCategory:  {Table: "categories", NameField: "name"},
	EntityLocation:  {Table: "locations", NameField: "name"},
}

// Schema returns the schema for e; ok is false for unknown entities
func Schema(e Entity) (EntitySchema, bool) {
	s, ok := schemas[e]
	return s, ok
}

// Table returns the remote table name for e
func (e Entity) Table() string {
	return schemas[e].Table
}
