// Package domain defines the persistent documents, value types, and integrity
// rule primitives used by labcore.
package domain

import "time"

// Kind identifies the document collection a record is stored in.
type Kind string

// Supported document kinds used as persistence buckets and activity targets.
const (
	// KindEntity identifies entity documents.
	KindEntity Kind = "entities"
	// KindCollection identifies collection and project documents.
	KindCollection Kind = "collections"
	// KindAttribute identifies standalone attribute templates.
	KindAttribute Kind = "attributes"
	// KindActivity identifies activity log entries.
	KindActivity Kind = "activity"
	// KindPendingWrite identifies reciprocal write journal records.
	KindPendingWrite Kind = "pending_writes"
	// KindAttachment identifies blobs attached to entities. Attachments are not
	// stored as documents; the kind names their ids and activity targets.
	KindAttachment Kind = "attachments"
)

// Action indicates the type of modification performed.
type Action string

// Supported actions recorded in the activity log.
const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Document is implemented by every record persisted in a DocumentCollection.
type Document interface {
	DocumentID() string
	DocumentOwner() string
}

// Reference names another document by id. Names are informational; identity
// is decided by ID alone.
type Reference struct {
	ID   string `json:"id" bson:"_id"`
	Name string `json:"name" bson:"name"`
}

// Associations holds the provenance links of an entity.
type Associations struct {
	Origins  []Reference `json:"origins" bson:"origins"`
	Products []Reference `json:"products" bson:"products"`
}

// References returns the list for the given relation. Only RelationOrigins and
// RelationProducts are meaningful.
func (a Associations) References(rel Relation) []Reference {
	if rel == RelationProducts {
		return a.Products
	}
	return a.Origins
}

// Attribute is either a standalone template or an attribute embedded in an
// entity.
type Attribute struct {
	ID          string    `json:"id" bson:"_id"`
	Name        string    `json:"name" bson:"name" validate:"required"`
	Description string    `json:"description" bson:"description"`
	Owner       string    `json:"owner" bson:"owner"`
	Created     time.Time `json:"created" bson:"created"`
	Archived    bool      `json:"archived" bson:"archived"`
	Values      []Value   `json:"values" bson:"values"`
}

func (a Attribute) DocumentID() string    { return a.ID }
func (a Attribute) DocumentOwner() string { return a.Owner }

// EntityHistory is a snapshot of an entity taken before an update.
type EntityHistory struct {
	Timestamp    time.Time    `json:"timestamp" bson:"timestamp"`
	Deleted      bool         `json:"deleted" bson:"deleted"`
	Owner        string       `json:"owner" bson:"owner"`
	Description  string       `json:"description" bson:"description"`
	Collections  []string     `json:"collections" bson:"collections"`
	Associations Associations `json:"associations" bson:"associations"`
	Attributes   []Attribute  `json:"attributes" bson:"attributes"`
	Attachments  []Reference  `json:"attachments" bson:"attachments"`
}

// Entity represents a physical or digital research item.
type Entity struct {
	ID           string          `json:"id" bson:"_id"`
	Name         string          `json:"name" bson:"name"`
	Owner        string          `json:"owner" bson:"owner"`
	Created      time.Time       `json:"created" bson:"created"`
	Description  string          `json:"description" bson:"description"`
	Deleted      bool            `json:"deleted" bson:"deleted"`
	Locked       bool            `json:"locked" bson:"locked"`
	Collections  []string        `json:"collections" bson:"collections"`
	Associations Associations    `json:"associations" bson:"associations"`
	Attributes   []Attribute     `json:"attributes" bson:"attributes"`
	Attachments  []Reference     `json:"attachments" bson:"attachments"`
	History      []EntityHistory `json:"history" bson:"history"`
}

func (e Entity) DocumentID() string    { return e.ID }
func (e Entity) DocumentOwner() string { return e.Owner }

// Reference returns the reference other documents use to point at e.
func (e Entity) Reference() Reference {
	return Reference{ID: e.ID, Name: e.Name}
}

// Snapshot captures the history entry describing the current state of e.
func (e Entity) Snapshot(at time.Time) EntityHistory {
	c := e.Clone()
	return EntityHistory{
		Timestamp:    at,
		Deleted:      c.Deleted,
		Owner:        c.Owner,
		Description:  c.Description,
		Collections:  c.Collections,
		Associations: c.Associations,
		Attributes:   c.Attributes,
		Attachments:  c.Attachments,
	}
}

// NewEntity carries the caller supplied fields of an entity to create.
type NewEntity struct {
	Name         string       `json:"name" validate:"required"`
	Owner        string       `json:"owner"`
	Created      time.Time    `json:"created"`
	Description  string       `json:"description"`
	Collections  []string     `json:"collections"`
	Associations Associations `json:"associations"`
	Attributes   []Attribute  `json:"attributes" validate:"dive"`
	Attachments  []Reference  `json:"attachments"`
}

// CollectionType distinguishes plain collections from projects.
type CollectionType string

// Supported collection types.
const (
	CollectionTypeCollection CollectionType = "collection"
	CollectionTypeProject    CollectionType = "project"
)

// CollectionHistory is a snapshot of a collection taken before an update.
type CollectionHistory struct {
	Timestamp   time.Time `json:"timestamp" bson:"timestamp"`
	Owner       string    `json:"owner" bson:"owner"`
	Description string    `json:"description" bson:"description"`
	Entities    []string  `json:"entities" bson:"entities"`
	Collections []string  `json:"collections" bson:"collections"`
}

// Collection groups entities and nested child collections.
type Collection struct {
	ID          string              `json:"id" bson:"_id"`
	Name        string              `json:"name" bson:"name"`
	Type        CollectionType      `json:"type" bson:"type"`
	Description string              `json:"description" bson:"description"`
	Owner       string              `json:"owner" bson:"owner"`
	Created     time.Time           `json:"created" bson:"created"`
	Entities    []string            `json:"entities" bson:"entities"`
	Collections []string            `json:"collections" bson:"collections"`
	History     []CollectionHistory `json:"history" bson:"history"`
}

func (c Collection) DocumentID() string    { return c.ID }
func (c Collection) DocumentOwner() string { return c.Owner }

// NewCollection carries the caller supplied fields of a collection to create.
type NewCollection struct {
	Name        string         `json:"name" validate:"required"`
	Type        CollectionType `json:"type" validate:"omitempty,oneof=collection project"`
	Description string         `json:"description"`
	Owner       string         `json:"owner"`
	Created     time.Time      `json:"created"`
	Entities    []string       `json:"entities"`
	Collections []string       `json:"collections"`
}

// ActivityTarget names the document an activity refers to.
type ActivityTarget struct {
	ID   string `json:"id" bson:"id"`
	Type Kind   `json:"type" bson:"type"`
	Name string `json:"name" bson:"name"`
}

// Activity is an audit log entry.
type Activity struct {
	ID        string         `json:"id" bson:"_id"`
	Timestamp time.Time      `json:"timestamp" bson:"timestamp"`
	Type      Action         `json:"type" bson:"type"`
	Actor     string         `json:"actor" bson:"actor"`
	Details   string         `json:"details" bson:"details"`
	Target    ActivityTarget `json:"target" bson:"target"`
}

func (a Activity) DocumentID() string    { return a.ID }
func (a Activity) DocumentOwner() string { return a.Actor }

// LinkOp is the direction of a journalled reciprocal write.
type LinkOp string

// Supported journal operations.
const (
	LinkAdd    LinkOp = "add"
	LinkRemove LinkOp = "remove"
)

// Relation names a reference list that participates in a symmetric pair.
type Relation string

// Supported relations. Origins and products are inverse lists on entities;
// collections (on entities) and entities (on collections) form the
// membership pair.
const (
	RelationOrigins     Relation = "origins"
	RelationProducts    Relation = "products"
	RelationCollections Relation = "collections"
	RelationEntities    Relation = "entities"
)

// Inverse returns the relation that mirrors r on the other document.
func (r Relation) Inverse() Relation {
	switch r {
	case RelationOrigins:
		return RelationProducts
	case RelationProducts:
		return RelationOrigins
	case RelationCollections:
		return RelationEntities
	default:
		return RelationCollections
	}
}

// Holder returns the kind of document that stores the r list.
func (r Relation) Holder() Kind {
	if r == RelationEntities {
		return KindCollection
	}
	return KindEntity
}

// Valid reports whether r is a known relation.
func (r Relation) Valid() bool {
	switch r {
	case RelationOrigins, RelationProducts, RelationCollections, RelationEntities:
		return true
	}
	return false
}

// PendingWrite records a reciprocal write that has not been confirmed yet.
// It describes applying Op of Ref to the Relation list of document TargetID;
// Ref.ID is the source document whose Relation.Inverse() list holds TargetID.
type PendingWrite struct {
	ID       string    `json:"id" bson:"_id"`
	Created  time.Time `json:"created" bson:"created"`
	Op       LinkOp    `json:"op" bson:"op"`
	Relation Relation  `json:"relation" bson:"relation"`
	TargetID string    `json:"target_id" bson:"target_id"`
	Ref      Reference `json:"ref" bson:"ref"`
}

func (p PendingWrite) DocumentID() string    { return p.ID }
func (p PendingWrite) DocumentOwner() string { return "" }
