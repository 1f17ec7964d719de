package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/ManuelReschke/TickerFox/app/models"
	"github.com/ManuelReschke/TickerFox/internal/pkg/alerts"
	"github.com/ManuelReschke/TickerFox/internal/pkg/dispatch"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, error)
	TouchAPIKey(id uint) error
	Update(user *models.User) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)

	// ContactsByIDs resolves delivery addresses for the dispatcher.
	ContactsByIDs(ctx context.Context, userIDs []uint) (map[uint]dispatch.Contact, error)
	// PlanForUser returns the entitlement plan used for alert quotas.
	PlanForUser(ctx context.Context, userID uint) (string, error)
}

// Repositories struct holds all repository instances
type Repositories struct {
	User   UserRepository
	Alerts alerts.Repository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:   NewUserRepository(db),
		Alerts: alerts.NewRepository(db),
	}
}
