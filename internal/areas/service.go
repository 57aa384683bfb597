package areas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/opsboard/opsboard/internal/roles"
	"github.com/opsboard/opsboard/internal/shared"
)

// Auditor records administrative changes.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service administers the area tree and user assignments.
type Service struct {
	store  Store
	cache  *TreeCache
	authz  *Authorizer
	audit  Auditor
	logger *slog.Logger
}

// NewService wires the service. cache and audit may be nil.
func NewService(store Store, cache *TreeCache, audit Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		cache:  cache,
		authz:  NewAuthorizer(store, cache),
		audit:  audit,
		logger: logger,
	}
}

// Authorizer exposes the permission queries backed by the same store.
func (s *Service) Authorizer() *Authorizer {
	return s.authz
}

// ActiveTree returns the cached active tree.
func (s *Service) ActiveTree(ctx context.Context) ([]Area, error) {
	return s.authz.ActiveTree(ctx)
}

// CreateArea adds a node below in.ParentID, or a root when it is nil.
func (s *Service) CreateArea(ctx context.Context, actorID int64, in NewArea) (Area, error) {
	var parent *Area
	if in.ParentID != nil {
		p, err := s.store.Area(ctx, *in.ParentID)
		if err != nil {
			return Area{}, err
		}
		if !p.Active {
			return Area{}, fmt.Errorf("%w: parent %s", ErrAreaInactive, p.Path)
		}
		parent = &p
	}
	path, level, err := ChildPath(parent, in.Segment)
	if err != nil {
		return Area{}, err
	}
	siblings, err := s.store.Children(ctx, in.ParentID)
	if err != nil {
		return Area{}, err
	}
	for _, sib := range siblings {
		if sib.Path == path {
			return Area{}, fmt.Errorf("%w: %s", ErrDuplicatePath, path)
		}
	}
	if conflictsWithSibling(path, siblings) {
		return Area{}, fmt.Errorf("%w: %s", ErrPathConflict, path)
	}

	created, err := s.store.InsertArea(ctx, Area{Name: in.Name, ParentID: in.ParentID, Path: path, Level: level})
	if err != nil {
		return Area{}, err
	}
	s.invalidate(ctx)
	s.record(ctx, actorID, "area.create", "area", created.ID, map[string]any{"path": created.Path, "level": created.Level})
	return created, nil
}

// DeactivateArea soft-deletes an area. Descendants keep their own flag;
// CheckTree reports active children of inactive parents.
func (s *Service) DeactivateArea(ctx context.Context, actorID, areaID int64) error {
	if err := s.store.DeactivateArea(ctx, areaID); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.record(ctx, actorID, "area.deactivate", "area", areaID, nil)
	return nil
}

// AssignArea grants a user an area after checking that actorID may edit the
// user, hand out the role and act on the area. An inactive assignment for the
// same pair is reactivated.
func (s *Service) AssignArea(ctx context.Context, actorID int64, a Assignment) error {
	if err := s.authorizeChange(ctx, actorID, a.UserID, a.AreaID); err != nil {
		return err
	}
	role := a.Role
	if role != roles.None {
		assignable, err := s.authz.AssignableRoles(ctx, actorID)
		if err != nil {
			return err
		}
		if !containsRole(assignable, role) {
			return fmt.Errorf("%w: role %s not assignable", ErrForbidden, role)
		}
	} else {
		target, err := s.store.Profile(ctx, a.UserID)
		if err != nil {
			return err
		}
		role = target.Role
	}
	if err := s.authz.ValidateAreaAssignment(ctx, a.UserID, a.AreaID, role); err != nil {
		return err
	}
	if err := s.store.UpsertAssignment(ctx, a); err != nil {
		return err
	}
	s.record(ctx, actorID, "assignment.upsert", "user_area", a.UserID, map[string]any{
		"area_id": a.AreaID, "role": a.Role.String(),
		"can_capture": a.CanCapture, "can_edit": a.CanEdit, "can_delete": a.CanDelete,
	})
	return nil
}

// UnassignArea soft-deletes the user's assignment to the area.
func (s *Service) UnassignArea(ctx context.Context, actorID, userID, areaID int64) error {
	if err := s.authorizeChange(ctx, actorID, userID, areaID); err != nil {
		return err
	}
	if err := s.store.DeactivateAssignment(ctx, userID, areaID); err != nil {
		return err
	}
	s.record(ctx, actorID, "assignment.deactivate", "user_area", userID, map[string]any{"area_id": areaID})
	return nil
}

// CheckIntegrity runs CheckTree over every area, active or not.
func (s *Service) CheckIntegrity(ctx context.Context) ([]Violation, error) {
	all, err := s.store.AllAreas(ctx)
	if err != nil {
		return nil, err
	}
	return CheckTree(all), nil
}

// WarmTree bumps the cache generation and loads the tree into it.
func (s *Service) WarmTree(ctx context.Context) (int, error) {
	if err := s.cache.Bump(ctx); err != nil {
		return 0, fmt.Errorf("bump tree cache: %w", err)
	}
	tree, err := s.authz.ActiveTree(ctx)
	if err != nil {
		return 0, err
	}
	return len(tree), nil
}

func (s *Service) authorizeChange(ctx context.Context, actorID, userID, areaID int64) error {
	ok, err := s.authz.CanUserEditUser(ctx, actorID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: user %d", ErrForbidden, userID)
	}
	editable, err := s.authz.EditableAreasForUser(ctx, actorID)
	if err != nil {
		return err
	}
	for _, area := range editable {
		if area.ID == areaID {
			return nil
		}
	}
	return fmt.Errorf("%w: area %d", ErrForbidden, areaID)
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("area tree cache bump failed", slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actorID int64, action, entity string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(id, 10),
		Meta:     meta,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("audit record failed", slog.String("action", action), slog.Any("error", err))
	}
}

func containsRole(list []roles.Role, role roles.Role) bool {
	for _, r := range list {
		if r == role {
			return true
		}
	}
	return false
}
