package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/opsboard/opsboard/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	UpdatePasswordHash(ctx context.Context, userID int64, hash string) error
	CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error
	DeleteSession(ctx context.Context, id string) error
}

// DBInterface is the subset of pgxpool.Pool the repository needs.
type DBInterface interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	db DBInterface
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(db DBInterface) *PGRepository {
	return &PGRepository{db: db}
}

var psql = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)

func userQuery() squirrel.SelectBuilder {
	return psql.Select("u.id", "u.email", "u.password_hash", "u.active", "COALESCE(p.role, '') AS role", "u.created_at", "u.updated_at").
		From("users u").
		LeftJoin("profiles p ON p.user_id = u.id")
}

// FindByEmail fetches a user by email, ignoring case.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (*User, error) {
	return r.findOne(ctx, userQuery().Where("lower(u.email) = lower(?)", email))
}

// FindByID fetches a user by id.
func (r *PGRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	return r.findOne(ctx, userQuery().Where(squirrel.Eq{"u.id": id}))
}

func (r *PGRepository) findOne(ctx context.Context, qb squirrel.SelectBuilder) (*User, error) {
	query, args, err := qb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("building user query: %w", err)
	}
	var user User
	if err := pgxscan.Get(ctx, r.db, &user, query, args...); err != nil {
		if pgxscan.NotFound(err) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return &user, nil
}

// UpdatePasswordHash stores a new bcrypt hash.
func (r *PGRepository) UpdatePasswordHash(ctx context.Context, userID int64, hash string) error {
	query, args, err := psql.Update("users").
		Set("password_hash", hash).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("building password update: %w", err)
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("updating password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// CreateSession records a login in the sessions table for auditing.
func (r *PGRepository) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	query, args, err := psql.Insert("sessions").
		Columns("id", "user_id", "created_at", "expires_at", "ip", "user_agent").
		Values(id, userID, time.Now().UTC(), expiresAt.UTC(), nullable(ip), nullable(ua)).
		Suffix("ON CONFLICT (id) DO UPDATE SET user_id = EXCLUDED.user_id, expires_at = EXCLUDED.expires_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("building session insert: %w", err)
	}
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}
	return nil
}

// DeleteSession removes a session record.
func (r *PGRepository) DeleteSession(ctx context.Context, id string) error {
	query, args, err := psql.Delete("sessions").Where(squirrel.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("building session delete: %w", err)
	}
	_, err = r.db.Exec(ctx, query, args...)
	return err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ Repository = (*PGRepository)(nil)
