package users

import (
	"context"
	"fmt"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	ListUsers(ctx context.Context, f Filter) ([]User, error)
}

// EditChecker answers which of targetIDs the actor may edit.
type EditChecker interface {
	EditableUsers(ctx context.Context, actorID int64, targetIDs []int64) (map[int64]bool, error)
}

// Service handles user business logic.
type Service struct {
	repo  RepositoryPort
	authz EditChecker
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, authz EditChecker) *Service {
	return &Service{repo: repo, authz: authz}
}

// ListUsers returns the directory as seen by actorID, with Editable set on
// the users the actor may manage. An authorization failure fails the whole
// listing.
func (s *Service) ListUsers(ctx context.Context, actorID int64, f Filter) ([]User, error) {
	list, err := s.repo.ListUsers(ctx, f)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, len(list))
	for i := range list {
		ids[i] = list[i].ID
	}
	editable, err := s.authz.EditableUsers(ctx, actorID, ids)
	if err != nil {
		return nil, fmt.Errorf("editable users: %w", err)
	}
	for i := range list {
		list[i].Editable = editable[list[i].ID]
	}
	return list, nil
}
