// Package principal defines the authenticated actor carried by a session.
package principal

import (
	"github.com/opsboard/opsboard/internal/roles"
)

// Permissions are the coarse capability flags derived at login.
type Permissions struct {
	CanCapture bool `json:"canCapture"`
	CanEdit    bool `json:"canEdit"`
	CanDelete  bool `json:"canDelete"`
}

// AreaGrant is the session copy of one active area assignment.
type AreaGrant struct {
	AreaID     int64      `json:"areaId"`
	AreaName   string     `json:"areaName"`
	AreaPath   string     `json:"areaPath"`
	AreaLevel  int        `json:"areaLevel"`
	Role       roles.Role `json:"role,omitempty"`
	CanCapture bool       `json:"canCapture"`
	CanEdit    bool       `json:"canEdit"`
	CanDelete  bool       `json:"canDelete"`
}

// Principal is the authenticated actor.
type Principal struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Email       string      `json:"email"`
	Role        roles.Role  `json:"role"`
	Areas       []AreaGrant `json:"areas"`
	Permissions Permissions `json:"permissions"`
}

// Clone returns a deep copy of p.
func (p *Principal) Clone() *Principal {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Areas != nil {
		cp.Areas = append([]AreaGrant(nil), p.Areas...)
	}
	return &cp
}

// DerivePermissions computes the capability flags for a primary role and its
// area grants. ADMIN gets everything; other roles get their baseline plus any
// flag set on an individual grant.
func DerivePermissions(role roles.Role, grants []AreaGrant) Permissions {
	var perms Permissions
	switch role {
	case roles.Admin:
		return Permissions{CanCapture: true, CanEdit: true, CanDelete: true}
	case roles.Director, roles.Subdirector:
		perms.CanCapture = true
		perms.CanEdit = true
	case roles.Capturista:
		perms.CanCapture = true
	}
	for _, g := range grants {
		perms.CanCapture = perms.CanCapture || g.CanCapture
		perms.CanEdit = perms.CanEdit || g.CanEdit
		perms.CanDelete = perms.CanDelete || g.CanDelete
	}
	return perms
}
