package areas

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/opsboard/opsboard/internal/roles"
)

// Authorizer answers area-level permission questions. Load failures are
// returned wrapped and callers must deny on error.
type Authorizer struct {
	reader Reader
	cache  *TreeCache
}

// NewAuthorizer constructs an Authorizer. cache may be nil.
func NewAuthorizer(reader Reader, cache *TreeCache) *Authorizer {
	return &Authorizer{reader: reader, cache: cache}
}

// ActiveTree returns the active areas in path order.
func (a *Authorizer) ActiveTree(ctx context.Context) ([]Area, error) {
	tree, err := a.cache.Load(ctx, a.reader.ActiveAreas)
	if err != nil {
		return nil, fmt.Errorf("load area tree: %w", err)
	}
	return tree, nil
}

func (a *Authorizer) load(ctx context.Context, userID int64) (Profile, []Area, error) {
	var (
		profile Profile
		tree    []Area
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		profile, err = a.reader.Profile(gctx, userID)
		if err != nil {
			return fmt.Errorf("load profile %d: %w", userID, err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		tree, err = a.ActiveTree(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Profile{}, nil, err
	}
	return profile, tree, nil
}

// EditableAreasForUser returns the areas userID may edit, in path order.
func (a *Authorizer) EditableAreasForUser(ctx context.Context, userID int64) ([]Area, error) {
	profile, tree, err := a.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Accessible(profile, tree, Edit), nil
}

// CapturableAreasForUser returns the areas userID may capture into, in path
// order.
func (a *Authorizer) CapturableAreasForUser(ctx context.Context, userID int64) ([]Area, error) {
	profile, tree, err := a.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Accessible(profile, tree, Capture), nil
}

// CanUserEditUser reports whether actorID may change targetID's role or
// assignments. A target without a profile has no assignments.
func (a *Authorizer) CanUserEditUser(ctx context.Context, actorID, targetID int64) (bool, error) {
	if actorID == targetID {
		return false, nil
	}
	actor, err := a.reader.Profile(ctx, actorID)
	if err != nil {
		return false, fmt.Errorf("load profile %d: %w", actorID, err)
	}
	return a.canEditTarget(ctx, actor, targetID)
}

// EditableUsers answers CanUserEditUser for every target with a single actor
// load. The result has an entry for each target.
func (a *Authorizer) EditableUsers(ctx context.Context, actorID int64, targetIDs []int64) (map[int64]bool, error) {
	out := make(map[int64]bool, len(targetIDs))
	actor, err := a.reader.Profile(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("load profile %d: %w", actorID, err)
	}
	for _, targetID := range targetIDs {
		if targetID == actorID {
			out[targetID] = false
			continue
		}
		ok, err := a.canEditTarget(ctx, actor, targetID)
		if err != nil {
			return nil, err
		}
		out[targetID] = ok
	}
	return out, nil
}

func (a *Authorizer) canEditTarget(ctx context.Context, actor Profile, targetID int64) (bool, error) {
	if actor.Role == roles.Admin {
		return true, nil
	}
	switch actor.Role {
	case roles.Director, roles.Subdirector:
	default:
		return false, nil
	}
	target, err := a.reader.Profile(ctx, targetID)
	switch {
	case errors.Is(err, ErrUserNotFound):
		target = Profile{UserID: targetID}
	case err != nil:
		return false, fmt.Errorf("load profile %d: %w", targetID, err)
	}
	return CanEdit(actor, target), nil
}

// AssignableRoles returns the roles actorID may hand out.
func (a *Authorizer) AssignableRoles(ctx context.Context, actorID int64) ([]roles.Role, error) {
	profile, err := a.reader.Profile(ctx, actorID)
	if err != nil {
		return nil, fmt.Errorf("load profile %d: %w", actorID, err)
	}
	return roles.AssignableBy(profile.Role), nil
}

// ValidateAreaAssignment checks that role fits the level of areaID. It does
// not persist anything.
func (a *Authorizer) ValidateAreaAssignment(ctx context.Context, userID, areaID int64, role roles.Role) error {
	area, err := a.reader.Area(ctx, areaID)
	if err != nil {
		return fmt.Errorf("load area %d for user %d: %w", areaID, userID, err)
	}
	return ValidateLevel(area, role)
}

// Mode selects which permission Accessible computes.
type Mode int

const (
	Edit Mode = iota + 1
	Capture
)

// Accessible filters tree to the areas profile may act upon in mode. tree must
// be the active tree in path order; the result keeps that order.
func Accessible(profile Profile, tree []Area, mode Mode) []Area {
	if !profile.Active {
		return []Area{}
	}
	if profile.Role == roles.Admin {
		return append([]Area{}, tree...)
	}

	own := make(map[int64]bool)
	var roots []string
	for _, as := range profile.Assignments {
		if !as.Active || !as.Area.Active {
			continue
		}
		switch as.EffectiveRole(profile.Role) {
		case roles.Director, roles.Subdirector:
			own[as.AreaID] = true
			roots = append(roots, as.Area.Path)
		case roles.Capturista:
			if mode != Capture {
				continue
			}
			gerencia := as.Area.Level >= LevelGerencia
			if gerencia || as.CanCapture {
				own[as.AreaID] = true
			}
			if gerencia {
				roots = append(roots, as.Area.Path)
			}
		}
	}

	out := []Area{}
	for _, area := range tree {
		if own[area.ID] {
			out = append(out, area)
			continue
		}
		for _, r := range roots {
			if IsDescendant(area.Path, r) {
				out = append(out, area)
				break
			}
		}
	}
	return out
}

// CanEdit applies the user-editing rule to loaded profiles.
func CanEdit(actor, target Profile) bool {
	if actor.UserID == target.UserID {
		return false
	}
	if actor.Role == roles.Admin {
		return true
	}
	if target.Role == roles.Admin {
		return false
	}
	switch actor.Role {
	case roles.Director, roles.Subdirector:
	default:
		return false
	}
	actorPaths := activePaths(actor)
	for _, tp := range activePaths(target) {
		for _, ap := range actorPaths {
			if IsSelfOrDescendant(tp, ap) {
				return true
			}
		}
	}
	return false
}

func activePaths(p Profile) []string {
	paths := make([]string, 0, len(p.Assignments))
	for _, as := range p.Assignments {
		if as.Active && as.Area.Active {
			paths = append(paths, as.Area.Path)
		}
	}
	return paths
}

// Level tiers of the organizational tree.
const (
	LevelDireccion    = 1
	LevelSubdireccion = 2
	LevelGerencia     = 3
)

// ValidateLevel rejects role assignments that do not fit area's tier.
func ValidateLevel(area Area, role roles.Role) error {
	if !area.Active {
		return fmt.Errorf("%w: %s", ErrAreaInactive, area.Path)
	}
	switch role {
	case roles.Capturista:
		if area.Level < LevelGerencia {
			return fmt.Errorf("%w: CAPTURISTA requires level %d or deeper, %s is level %d",
				ErrInvalidAssignment, LevelGerencia, area.Path, area.Level)
		}
	case roles.Subdirector:
		if area.Level != LevelSubdireccion {
			return fmt.Errorf("%w: SUBDIRECTOR requires level %d, %s is level %d",
				ErrInvalidAssignment, LevelSubdireccion, area.Path, area.Level)
		}
	case roles.Director:
		if area.Level != LevelDireccion {
			return fmt.Errorf("%w: DIRECTOR requires level %d, %s is level %d",
				ErrInvalidAssignment, LevelDireccion, area.Path, area.Level)
		}
	}
	return nil
}
