// Package user holds the User entity, the persistence contract for it and
// the cache-aside decorator that fronts that contract with Redis.
package user

import (
	"context"
	"errors"
	"time"

	"github.com/uptrace/bun"
)

// ErrNotFound is returned when no user matches the lookup.
var ErrNotFound = errors.New("user not found")

// User is a persisted user record. Deletion is a flag flip, never a row removal.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u" json:"-"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	FirstName   string    `bun:"first_name,notnull" json:"firstName" validate:"required,max=50"`
	LastName    string    `bun:"last_name,notnull" json:"lastName" validate:"required,max=50"`
	Email       string    `bun:"email,notnull,default:''" json:"email" validate:"omitempty,email,max=100"`
	Mobile      string    `bun:"mobile,notnull,default:''" json:"mobile" validate:"max=20"`
	Address     string    `bun:"address,notnull,default:''" json:"address" validate:"max=200"`
	DateOfBirth time.Time `bun:"date_of_birth" json:"dateOfBirth"`
	IsDeleted   bool      `bun:"is_deleted,notnull,default:false" json:"isDeleted"`
	CreatedOn   time.Time `bun:"created_on,notnull" json:"createdOn"`
	UpdatedOn   time.Time `bun:"updated_on,notnull" json:"updatedOn"`
}

// Repository is the persistence contract for users.
//
// FindByID returns soft-deleted users too; FindByEmail, and FindAll and
// Count with activeOnly set, skip them. Update copies the mutable fields
// (names, email, mobile, address, date of birth) onto the stored record.
type Repository interface {
	Create(ctx context.Context, u *User) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindAll(ctx context.Context, activeOnly bool) ([]User, error)
	Count(ctx context.Context, activeOnly bool) (int64, error)
	Update(ctx context.Context, u *User) (*User, error)
	SoftDelete(ctx context.Context, id int64) (*User, error)
}
