package job

import "github.com/google/uuid"

// NewID returns a new random job identifier.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id is a well-formed job identifier. Identifiers
// end up in storage keys and file names, so anything else is rejected.
func ValidID(id string) bool {
	u, err := uuid.Parse(id)
	if err != nil {
		return false
	}
	// uuid.Parse also accepts urn: and braced forms
	return u.String() == id
}
