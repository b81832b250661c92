package models

// Document is a raw, loosely typed record as delivered by the document store.
type Document struct {
	ID   string
	Data map[string]any
}

func (d Document) RecordID() string { return d.ID }

// Actor is the pre-authenticated identity attached to a request.
type Actor struct {
	ID   string
	Name string
	Role string
}

// Roles understood by the authoring rules.
const (
	RoleHealthWorker = "health_worker"
	RoleAdmin        = "admin"
	RoleUser         = "user"
)

// CanAuthor reports whether the actor may publish content.
func (a Actor) CanAuthor() bool {
	return a.Role == RoleHealthWorker || a.Role == RoleAdmin
}
