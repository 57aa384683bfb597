package areas

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/opsboard/opsboard/internal/roles"
)

const uniqueViolation = "23505"

// Reader is the read side used by the authorizer.
type Reader interface {
	Profile(ctx context.Context, userID int64) (Profile, error)
	ActiveAreas(ctx context.Context) ([]Area, error)
	Area(ctx context.Context, id int64) (Area, error)
}

// Store is the full persistence contract.
type Store interface {
	Reader
	AllAreas(ctx context.Context) ([]Area, error)
	Children(ctx context.Context, parentID *int64) ([]Area, error)
	InsertArea(ctx context.Context, area Area) (Area, error)
	DeactivateArea(ctx context.Context, id int64) error
	UpsertAssignment(ctx context.Context, a Assignment) error
	DeactivateAssignment(ctx context.Context, userID, areaID int64) error
}

// DBInterface is the subset of pgxpool.Pool the repository needs.
type DBInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository implements Store on PostgreSQL.
type Repository struct {
	db  DBInterface
	now func() time.Time
}

// NewRepository constructs a Repository.
func NewRepository(db DBInterface) *Repository {
	return &Repository{db: db, now: time.Now}
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

var areaColumns = []string{"id", "name", "parent_id", "path", "level", "active"}

type areaRow struct {
	ID       int64  `db:"id"`
	Name     string `db:"name"`
	ParentID *int64 `db:"parent_id"`
	Path     string `db:"path"`
	Level    int    `db:"level"`
	Active   bool   `db:"active"`
}

func (r areaRow) toArea() Area {
	return Area(r)
}

type profileRow struct {
	ID     int64  `db:"id"`
	Email  string `db:"email"`
	Active bool   `db:"active"`
	Name   string `db:"full_name"`
	Role   string `db:"role"`
}

type assignmentRow struct {
	UserID       int64   `db:"user_id"`
	AreaID       int64   `db:"area_id"`
	Role         *string `db:"role"`
	CanCapture   bool    `db:"can_capture"`
	CanEdit      bool    `db:"can_edit"`
	CanDelete    bool    `db:"can_delete"`
	Active       bool    `db:"active"`
	AreaName     string  `db:"area_name"`
	AreaParentID *int64  `db:"area_parent_id"`
	AreaPath     string  `db:"area_path"`
	AreaLevel    int     `db:"area_level"`
	AreaActive   bool    `db:"area_active"`
}

func (r assignmentRow) toAssignment() Assignment {
	a := Assignment{
		UserID:     r.UserID,
		AreaID:     r.AreaID,
		CanCapture: r.CanCapture,
		CanEdit:    r.CanEdit,
		CanDelete:  r.CanDelete,
		Active:     r.Active,
		Area: Area{
			ID:       r.AreaID,
			Name:     r.AreaName,
			ParentID: r.AreaParentID,
			Path:     r.AreaPath,
			Level:    r.AreaLevel,
			Active:   r.AreaActive,
		},
	}
	if r.Role != nil {
		a.Role = roles.Parse(*r.Role)
	}
	return a
}

// Profile loads a user with their active assignments.
func (r *Repository) Profile(ctx context.Context, userID int64) (Profile, error) {
	query, args, err := psql.Select("u.id", "u.email", "u.active", "p.full_name", "p.role").
		From("users u").
		Join("profiles p ON p.user_id = u.id").
		Where(squirrel.Eq{"u.id": userID}).
		ToSql()
	if err != nil {
		return Profile{}, fmt.Errorf("building profile query: %w", err)
	}
	var row profileRow
	if err := pgxscan.Get(ctx, r.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return Profile{}, ErrUserNotFound
		}
		return Profile{}, fmt.Errorf("scanning profile: %w", err)
	}

	query, args, err = psql.Select(
		"ua.user_id", "ua.area_id", "ua.role", "ua.can_capture", "ua.can_edit", "ua.can_delete", "ua.active",
		"a.name AS area_name", "a.parent_id AS area_parent_id", "a.path AS area_path",
		"a.level AS area_level", "a.active AS area_active",
	).
		From("user_areas ua").
		Join("areas a ON a.id = ua.area_id").
		Where(squirrel.Eq{"ua.user_id": userID}).
		Where("ua.active").
		OrderBy("a.path").
		ToSql()
	if err != nil {
		return Profile{}, fmt.Errorf("building assignments query: %w", err)
	}
	var rows []assignmentRow
	if err := pgxscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return Profile{}, fmt.Errorf("scanning assignments: %w", err)
	}

	profile := Profile{
		UserID:      row.ID,
		Name:        row.Name,
		Email:       row.Email,
		Role:        roles.Parse(row.Role),
		Active:      row.Active,
		Assignments: make([]Assignment, 0, len(rows)),
	}
	for _, ar := range rows {
		profile.Assignments = append(profile.Assignments, ar.toAssignment())
	}
	return profile, nil
}

// ActiveAreas returns the active tree in path order.
func (r *Repository) ActiveAreas(ctx context.Context) ([]Area, error) {
	return r.listAreas(ctx, psql.Select(areaColumns...).From("areas").Where("active").OrderBy("path"))
}

// AllAreas returns every area, active or not, in path order.
func (r *Repository) AllAreas(ctx context.Context) ([]Area, error) {
	return r.listAreas(ctx, psql.Select(areaColumns...).From("areas").OrderBy("path"))
}

// Children returns the direct children of parentID, or the roots when nil.
func (r *Repository) Children(ctx context.Context, parentID *int64) ([]Area, error) {
	qb := psql.Select(areaColumns...).From("areas").OrderBy("path")
	if parentID == nil {
		qb = qb.Where("parent_id IS NULL")
	} else {
		qb = qb.Where(squirrel.Eq{"parent_id": *parentID})
	}
	return r.listAreas(ctx, qb)
}

func (r *Repository) listAreas(ctx context.Context, qb squirrel.SelectBuilder) ([]Area, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building areas query: %w", err)
	}
	var rows []areaRow
	if err := pgxscan.Select(ctx, r.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("scanning areas: %w", err)
	}
	out := make([]Area, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toArea())
	}
	return out, nil
}

// Area loads one area by id.
func (r *Repository) Area(ctx context.Context, id int64) (Area, error) {
	query, args, err := psql.Select(areaColumns...).From("areas").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return Area{}, fmt.Errorf("building area query: %w", err)
	}
	var row areaRow
	if err := pgxscan.Get(ctx, r.db, &row, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return Area{}, ErrAreaNotFound
		}
		return Area{}, fmt.Errorf("scanning area: %w", err)
	}
	return row.toArea(), nil
}

// InsertArea stores a new active area and returns it with its id.
func (r *Repository) InsertArea(ctx context.Context, area Area) (Area, error) {
	query, args, err := psql.Insert("areas").
		Columns("name", "parent_id", "path", "level", "active", "created_at").
		Values(area.Name, area.ParentID, area.Path, area.Level, true, r.now().UTC()).
		Suffix("RETURNING id").
		ToSql()
	if err != nil {
		return Area{}, fmt.Errorf("building insert area: %w", err)
	}
	if err := r.db.QueryRow(ctx, query, args...).Scan(&area.ID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Area{}, fmt.Errorf("%w: %s", ErrDuplicatePath, area.Path)
		}
		return Area{}, fmt.Errorf("inserting area: %w", err)
	}
	area.Active = true
	return area, nil
}

// DeactivateArea soft-deletes an area.
func (r *Repository) DeactivateArea(ctx context.Context, id int64) error {
	query, args, err := psql.Update("areas").
		Set("active", false).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building deactivate area: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deactivating area: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAreaNotFound
	}
	return nil
}

// UpsertAssignment creates the assignment or reactivates and updates the
// existing row for the same user and area.
func (r *Repository) UpsertAssignment(ctx context.Context, a Assignment) error {
	var role *string
	if a.Role != roles.None {
		name := a.Role.String()
		role = &name
	}
	now := r.now().UTC()
	query, args, err := psql.Insert("user_areas").
		Columns("user_id", "area_id", "role", "can_capture", "can_edit", "can_delete", "active", "created_at", "updated_at").
		Values(a.UserID, a.AreaID, role, a.CanCapture, a.CanEdit, a.CanDelete, true, now, now).
		Suffix(`ON CONFLICT (user_id, area_id) DO UPDATE SET
			role = EXCLUDED.role,
			can_capture = EXCLUDED.can_capture,
			can_edit = EXCLUDED.can_edit,
			can_delete = EXCLUDED.can_delete,
			active = TRUE,
			updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("building upsert assignment: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("upserting assignment: %w", err)
	}
	return nil
}

// DeactivateAssignment soft-deletes the active assignment of userID to areaID.
func (r *Repository) DeactivateAssignment(ctx context.Context, userID, areaID int64) error {
	query, args, err := psql.Update("user_areas").
		Set("active", false).
		Set("updated_at", r.now().UTC()).
		Where(squirrel.Eq{"user_id": userID}).
		Where(squirrel.Eq{"area_id": areaID}).
		Where("active").
		ToSql()
	if err != nil {
		return fmt.Errorf("building deactivate assignment: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("deactivating assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAssignmentNotFound
	}
	return nil
}
