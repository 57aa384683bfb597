package roles

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role is the closed set of dashboard roles. The zero value None stands for an
// absent or unrecognised role and carries minimal access.
type Role uint8

const (
	None Role = iota
	Director
	Subdirector
	Capturista
	Admin
)

var names = map[Role]string{
	Director:    "DIRECTOR",
	Subdirector: "SUBDIRECTOR",
	Capturista:  "CAPTURISTA",
	Admin:       "ADMIN",
}

// All lists every assignable role in hierarchy order.
func All() []Role {
	return []Role{Admin, Director, Subdirector, Capturista}
}

// Parse decodes a persisted or remote role name. Comparison is
// case-insensitive; anything outside the enumeration decodes to None.
func Parse(raw string) Role {
	role, _ := Lookup(raw)
	return role
}

// Lookup is Parse that also reports whether raw named a known role, so callers
// at the decoding boundary can tell "no role" from "unrecognised role".
func Lookup(raw string) (Role, bool) {
	// Casers keep state between calls and cannot be shared.
	normalized := cases.Upper(language.Und).String(strings.TrimSpace(raw))
	for role, name := range names {
		if name == normalized {
			return role, true
		}
	}
	return None, false
}

// String returns the canonical upper-case role name, or "" for None.
func (r Role) String() string {
	return names[r]
}

// Valid reports whether r is one of the enumerated roles.
func (r Role) Valid() bool {
	_, ok := names[r]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler. Unknown names decode to
// None instead of failing so that stale records degrade to minimal access.
func (r *Role) UnmarshalText(text []byte) error {
	*r = Parse(string(text))
	return nil
}

// AssignableBy returns the roles an actor holding role may grant to others.
func AssignableBy(role Role) []Role {
	switch role {
	case Admin:
		return All()
	case Director:
		return []Role{Subdirector, Capturista}
	case Subdirector:
		return []Role{Capturista}
	default:
		return []Role{}
	}
}
