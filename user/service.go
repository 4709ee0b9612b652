package user

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kengibson1111/go-user-cache/cache"
)

// Response statuses carried in the envelope.
const (
	StatusSuccess = "200"
	StatusFailed  = "901"
)

const (
	messageSuccess = "Success!"
	messageFailed  = "Failed!"
)

// Response is the envelope every Service operation answers with.
type Response[T any] struct {
	Data    T      `json:"data"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// OK reports whether the response carries StatusSuccess.
func (r Response[T]) OK() bool {
	return r.Status == StatusSuccess
}

func success[T any](data T) Response[T] {
	return Response[T]{Data: data, Message: messageSuccess, Status: StatusSuccess}
}

func failed[T any]() Response[T] {
	return Response[T]{Message: messageFailed, Status: StatusFailed}
}

// Invalidator is implemented by repositories that can drop their whole cache.
type Invalidator interface {
	InvalidateAll(ctx context.Context) (*cache.RemovalResult, error)
}

// Service is the application layer over a Repository. A lookup that finds
// nothing is a failed envelope; any other repository error is returned.
type Service struct {
	repo Repository
	log  *zap.Logger
	now  func() time.Time
}

// NewService creates a Service over repo.
func NewService(repo Repository, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, log: log, now: time.Now}
}

// Add creates a user.
func (s *Service) Add(ctx context.Context, u *User) (Response[*User], error) {
	now := s.now().UTC()
	u.ID = 0
	u.Email = strings.TrimSpace(u.Email)
	u.IsDeleted = false
	u.CreatedOn = now
	u.UpdatedOn = now

	created, err := s.repo.Create(ctx, u)
	if err != nil {
		s.log.Error("failed to add user", zap.Error(err))
		return failed[*User](), err
	}
	return success(created), nil
}

// GetAll lists the active users.
func (s *Service) GetAll(ctx context.Context) (Response[[]User], error) {
	users, err := s.repo.FindAll(ctx, true)
	if err != nil {
		s.log.Error("failed to list users", zap.Error(err))
		return failed[[]User](), err
	}
	if users == nil {
		users = []User{}
	}
	return success(users), nil
}

// GetByID returns one user.
func (s *Service) GetByID(ctx context.Context, id int64) (Response[*User], error) {
	u, err := s.repo.FindByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return failed[*User](), nil
	}
	if err != nil {
		s.log.Error("failed to get user", zap.Int64("id", id), zap.Error(err))
		return failed[*User](), err
	}
	return success(u), nil
}

// GetByEmail returns the active user with the given email.
func (s *Service) GetByEmail(ctx context.Context, email string) (Response[*User], error) {
	u, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return failed[*User](), nil
	}
	if err != nil {
		s.log.Error("failed to get user by email", zap.Error(err))
		return failed[*User](), err
	}
	return success(u), nil
}

// Count returns the number of active users.
func (s *Service) Count(ctx context.Context) (Response[int64], error) {
	n, err := s.repo.Count(ctx, true)
	if err != nil {
		s.log.Error("failed to count users", zap.Error(err))
		return failed[int64](), err
	}
	return success(n), nil
}

// Update overwrites the mutable fields of an existing user.
func (s *Service) Update(ctx context.Context, u *User) (Response[*User], error) {
	u.Email = strings.TrimSpace(u.Email)
	u.UpdatedOn = s.now().UTC()

	updated, err := s.repo.Update(ctx, u)
	if errors.Is(err, ErrNotFound) {
		return failed[*User](), nil
	}
	if err != nil {
		s.log.Error("failed to update user", zap.Int64("id", u.ID), zap.Error(err))
		return failed[*User](), err
	}
	return success(updated), nil
}

// Remove soft-deletes a user. Data is the number of users removed.
func (s *Service) Remove(ctx context.Context, id int64) (Response[int], error) {
	_, err := s.repo.SoftDelete(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return failed[int](), nil
	}
	if err != nil {
		s.log.Error("failed to remove user", zap.Int64("id", id), zap.Error(err))
		return failed[int](), err
	}
	return success(1), nil
}

// InvalidateCache drops every cached user entry when the repository is cached.
func (s *Service) InvalidateCache(ctx context.Context) (Response[*cache.RemovalResult], error) {
	inv, ok := s.repo.(Invalidator)
	if !ok {
		return success[*cache.RemovalResult](nil), nil
	}

	result, err := inv.InvalidateAll(ctx)
	if err != nil {
		s.log.Error("failed to invalidate user cache", zap.Error(err))
		return Response[*cache.RemovalResult]{Data: result, Message: messageFailed, Status: StatusFailed}, err
	}
	return success(result), nil
}
