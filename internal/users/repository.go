package users

import (
	"context"
	"fmt"
	"strings"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"github.com/opsboard/opsboard/internal/roles"
)

// DBInterface is the subset of pgxpool.Pool the repository needs.
type DBInterface interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	db DBInterface
}

// NewRepository constructs a repository.
func NewRepository(db DBInterface) *Repository {
	return &Repository{db: db}
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

// ListUsers returns users ordered by name with the paths of their active
// assignments.
func (r *Repository) ListUsers(ctx context.Context, f Filter) ([]User, error) {
	qb := psql.Select(
		"u.id", "u.email", "COALESCE(p.full_name, '') AS name", "COALESCE(p.role, '') AS role",
		"u.active", "u.created_at", "u.updated_at",
	).
		From("users u").
		LeftJoin("profiles p ON p.user_id = u.id").
		OrderBy("name", "u.id")
	if f.Role != roles.None {
		qb = qb.Where(squirrel.Eq{"upper(p.role)": f.Role.String()})
	}
	if f.ActiveOnly {
		qb = qb.Where("u.active")
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		qb = qb.Where(squirrel.Or{
			squirrel.Like{"lower(u.email)": like},
			squirrel.Like{"lower(p.full_name)": like},
		})
	}
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building user list: %w", err)
	}
	var list []User
	if err := pgxscan.Select(ctx, r.db, &list, query, args...); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	for i := range list {
		list[i].Role = roles.Parse(list[i].RawRole)
	}
	if err := r.attachAreas(ctx, list); err != nil {
		return nil, err
	}
	return list, nil
}

type areaPathRow struct {
	UserID int64  `db:"user_id"`
	Path   string `db:"path"`
}

func (r *Repository) attachAreas(ctx context.Context, list []User) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]int64, len(list))
	index := make(map[int64]int, len(list))
	for i, u := range list {
		ids[i] = u.ID
		index[u.ID] = i
	}
	query, args, err := psql.Select("ua.user_id", "a.path").
		From("user_areas ua").
		Join("areas a ON a.id = ua.area_id").
		Where(squirrel.Eq{"ua.user_id": ids}).
		Where("ua.active AND a.active").
		OrderBy("ua.user_id", "a.path").
		ToSql()
	if err != nil {
		return fmt.Errorf("building user areas: %w", err)
	}
	var rows []areaPathRow
	if err := pgxscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return fmt.Errorf("listing user areas: %w", err)
	}
	for _, row := range rows {
		if i, ok := index[row.UserID]; ok {
			list[i].AreaPaths = append(list[i].AreaPaths, row.Path)
		}
	}
	return nil
}
