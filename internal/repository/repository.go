package repository

import (
	"context"
	"time"

	"github.com/aromelle/cartsync/internal/domain"
)

// SessionRepository persists storefront sessions
type SessionRepository interface {
	Create(ctx context.Context, session *domain.Session) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Session, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Repositories groups all repositories
type Repositories struct {
	Session SessionRepository
}
