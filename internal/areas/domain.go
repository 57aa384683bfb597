// Package areas resolves which organizational areas a user may act upon and
// administers the area tree and its assignments.
package areas

import (
	"errors"

	"github.com/opsboard/opsboard/internal/principal"
	"github.com/opsboard/opsboard/internal/roles"
)

var (
	// ErrUserNotFound is returned when a user profile is missing.
	ErrUserNotFound = errors.New("areas: user not found")
	// ErrAreaNotFound is returned when an area id does not exist.
	ErrAreaNotFound = errors.New("areas: area not found")
	// ErrAreaInactive is returned when writing against a deactivated area.
	ErrAreaInactive = errors.New("areas: area inactive")
	// ErrAssignmentNotFound is returned when no active assignment matches.
	ErrAssignmentNotFound = errors.New("areas: assignment not found")
	// ErrDuplicatePath is returned when an area path is already taken.
	ErrDuplicatePath = errors.New("areas: duplicate path")
	// ErrInvalidSegment is returned for an empty segment or one containing the separator.
	ErrInvalidSegment = errors.New("areas: invalid path segment")
	// ErrPathConflict is returned when a new segment would make sibling paths
	// prefixes of one another.
	ErrPathConflict = errors.New("areas: path conflicts with a sibling")
	// ErrInvalidAssignment is returned when a role does not fit the area level.
	ErrInvalidAssignment = errors.New("areas: invalid assignment")
	// ErrForbidden is returned when the actor may not perform the change.
	ErrForbidden = errors.New("areas: forbidden")
)

// Area is a node of the organizational tree.
type Area struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parentId,omitempty"`
	Path     string `json:"path"`
	Level    int    `json:"level"`
	Active   bool   `json:"active"`
}

// Assignment links a user to an area. Role overrides the user's primary role
// for this area when it is not None.
type Assignment struct {
	UserID     int64      `json:"userId"`
	AreaID     int64      `json:"areaId"`
	Role       roles.Role `json:"role,omitempty"`
	CanCapture bool       `json:"canCapture"`
	CanEdit    bool       `json:"canEdit"`
	CanDelete  bool       `json:"canDelete"`
	Active     bool       `json:"active"`
	Area       Area       `json:"area"`
}

// EffectiveRole returns the override or, when unset, primary.
func (a Assignment) EffectiveRole(primary roles.Role) roles.Role {
	if a.Role != roles.None {
		return a.Role
	}
	return primary
}

// Profile is a user with their active assignments.
type Profile struct {
	UserID      int64        `json:"userId"`
	Name        string       `json:"name"`
	Email       string       `json:"email"`
	Role        roles.Role   `json:"role"`
	Active      bool         `json:"active"`
	Assignments []Assignment `json:"assignments"`
}

// Grants converts the profile's active assignments into session grants.
func (p Profile) Grants() []principal.AreaGrant {
	grants := make([]principal.AreaGrant, 0, len(p.Assignments))
	for _, a := range p.Assignments {
		if !a.Active || !a.Area.Active {
			continue
		}
		grants = append(grants, principal.AreaGrant{
			AreaID:     a.AreaID,
			AreaName:   a.Area.Name,
			AreaPath:   a.Area.Path,
			AreaLevel:  a.Area.Level,
			Role:       a.Role,
			CanCapture: a.CanCapture,
			CanEdit:    a.CanEdit,
			CanDelete:  a.CanDelete,
		})
	}
	return grants
}

// Principal builds the session principal for the profile.
func (p Profile) Principal() *principal.Principal {
	grants := p.Grants()
	return &principal.Principal{
		ID:          p.UserID,
		Name:        p.Name,
		Email:       p.Email,
		Role:        p.Role,
		Areas:       grants,
		Permissions: principal.DerivePermissions(p.Role, grants),
	}
}

// NewArea carries the input for CreateArea.
type NewArea struct {
	Name     string `json:"name" validate:"required,max=120"`
	Segment  string `json:"segment" validate:"required,max=40"`
	ParentID *int64 `json:"parentId,omitempty"`
}
