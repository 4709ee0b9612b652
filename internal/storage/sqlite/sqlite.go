// Package sqlite implements user.Repository on SQLite through bun.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/kengibson1111/go-user-cache/user"
)

var _ user.Repository = (*Repository)(nil)

// Repository stores users in a SQLite database.
type Repository struct {
	db  *bun.DB
	log *zap.Logger
	now func() time.Time
}

// Open connects to dsn and creates the users table when it does not exist.
func Open(ctx context.Context, dsn string, log *zap.Logger) (*Repository, error) {
	if log == nil {
		log = zap.NewNop()
	}

	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite serialises writers; one connection also keeps :memory: databases shared
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	r := &Repository{db: db, log: log, now: time.Now}

	if err := r.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Debug("sqlite repository ready", zap.String("dsn", dsn))
	return r, nil
}

func (r *Repository) migrate(ctx context.Context) error {
	if _, err := r.db.NewCreateTable().Model((*user.User)(nil)).IfNotExists().Exec(ctx); err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	_, err := r.db.NewCreateIndex().
		Model((*user.User)(nil)).
		Index("idx_users_email").
		IfNotExists().
		Column("email").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create email index: %w", err)
	}

	return nil
}

// DB returns the underlying bun handle.
func (r *Repository) DB() *bun.DB {
	return r.db
}

// Ping checks the database connection.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Create inserts u and returns it with its assigned id.
func (r *Repository) Create(ctx context.Context, u *user.User) (*user.User, error) {
	now := r.now().UTC()
	if u.CreatedOn.IsZero() {
		u.CreatedOn = now
	}
	if u.UpdatedOn.IsZero() {
		u.UpdatedOn = now
	}

	if _, err := r.db.NewInsert().Model(u).Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}
	return u, nil
}

// FindByID returns the user with id, deleted or not.
func (r *Repository) FindByID(ctx context.Context, id int64) (*user.User, error) {
	u := new(user.User)
	err := r.db.NewSelect().Model(u).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		return nil, notFound(err, "failed to find user")
	}
	return u, nil
}

// FindByEmail returns the active user with email, compared case-insensitively.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	u := new(user.User)
	err := r.db.NewSelect().
		Model(u).
		Where("lower(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		Where("is_deleted = ?", false).
		OrderExpr("id ASC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err, "failed to find user by email")
	}
	return u, nil
}

// FindAll lists users ordered by id. The result is never nil.
func (r *Repository) FindAll(ctx context.Context, activeOnly bool) ([]user.User, error) {
	users := make([]user.User, 0)
	q := r.db.NewSelect().Model(&users).OrderExpr("id ASC")
	if activeOnly {
		q = q.Where("is_deleted = ?", false)
	}
	if err := q.Scan(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return users, nil
}

// Count counts users.
func (r *Repository) Count(ctx context.Context, activeOnly bool) (int64, error) {
	q := r.db.NewSelect().Model((*user.User)(nil))
	if activeOnly {
		q = q.Where("is_deleted = ?", false)
	}
	n, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return int64(n), nil
}

// Update copies the mutable fields of u onto the stored record.
func (r *Repository) Update(ctx context.Context, u *user.User) (*user.User, error) {
	existing, err := r.FindByID(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	existing.FirstName = u.FirstName
	existing.LastName = u.LastName
	existing.Email = u.Email
	existing.Mobile = u.Mobile
	existing.Address = u.Address
	existing.DateOfBirth = u.DateOfBirth
	existing.UpdatedOn = r.now().UTC()

	_, err = r.db.NewUpdate().
		Model(existing).
		Column("first_name", "last_name", "email", "mobile", "address", "date_of_birth", "updated_on").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return existing, nil
}

// SoftDelete flags the user deleted and returns it.
func (r *Repository) SoftDelete(ctx context.Context, id int64) (*user.User, error) {
	existing, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	existing.IsDeleted = true
	existing.UpdatedOn = r.now().UTC()

	_, err = r.db.NewUpdate().
		Model(existing).
		Column("is_deleted", "updated_on").
		WherePK().
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to delete user: %w", err)
	}
	return existing, nil
}

func notFound(err error, message string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return user.ErrNotFound
	}
	return fmt.Errorf("%s: %w", message, err)
}
