package feed

import "strings"

// SelectionKind tells a filter choice apart from a navigation action.
type SelectionKind int

const (
	SelectFilter SelectionKind = iota
	SelectNavigate
)

// Selection is the outcome of a category selector change.
type Selection struct {
	Kind     SelectionKind
	Category string
	Route    string
}

var createActions = map[string]struct{}{
	"create new": {},
	"create_new": {},
	"+ new":      {},
}

// IsCreateAction reports whether value is a reserved "create" action rather
// than a category.
func IsCreateAction(value string) bool {
	_, ok := createActions[strings.ToLower(strings.TrimSpace(value))]
	return ok
}

// Select classifies a selector value for collection. Create actions navigate
// to the creation route and never reach the projector; everything else is a
// category filter, with blank values treated as the All sentinel.
func Select(collection, value string) Selection {
	if IsCreateAction(value) {
		return Selection{Kind: SelectNavigate, Route: CreateRoute(collection)}
	}
	category := strings.TrimSpace(value)
	if IsAllCategory(category) {
		category = CategoryAll
	}
	return Selection{Kind: SelectFilter, Category: category}
}

// CreateRoute is the creation view of a collection.
func CreateRoute(collection string) string {
	return "/content/" + collection + "/new"
}

// DetailRoute is the detail view of a record.
func DetailRoute(collection, id string) string {
	return "/content/" + collection + "/" + id
}
