package ids

import "github.com/oklog/ulid/v2"

// New returns a lexicographically sortable identifier for entity primary
// keys. Identifiers are stored as text; ordering by id follows creation
// order within a millisecond.
func New() string {
	return ulid.Make().String()
}
