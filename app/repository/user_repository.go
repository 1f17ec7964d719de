package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/TickerFox/app/models"
	"github.com/ManuelReschke/TickerFox/internal/pkg/dispatch"
	"github.com/ManuelReschke/TickerFox/internal/pkg/entitlements"
)

// userRepository implements the UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user in the database
func (r *userRepository) Create(user *models.User) error {
	return r.db.Create(user).Error
}

// GetByID retrieves a user by their ID
func (r *userRepository) GetByID(id uint) (*models.User, error) {
	var user models.User
	err := r.db.First(&user, id).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByEmail retrieves a user by their email address
func (r *userRepository) GetByEmail(email string) (*models.User, error) {
	var user models.User
	err := r.db.Where("email = ?", strings.TrimSpace(email)).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByAPIKeyHash resolves an API key hash to its user.
func (r *userRepository) GetByAPIKeyHash(hash string) (*models.User, error) {
	trimmed := strings.TrimSpace(hash)
	if trimmed == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var user models.User
	if err := r.db.Where("api_key_hash = ? AND api_key_hash <> ''", trimmed).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// TouchAPIKey refreshes the last-used timestamp of the user's API key.
func (r *userRepository) TouchAPIKey(id uint) error {
	return r.db.Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("api_key_last_used_at", time.Now()).Error
}

// Update updates an existing user in the database
func (r *userRepository) Update(user *models.User) error {
	return r.db.Save(user).Error
}

// List retrieves a paginated list of users
func (r *userRepository) List(offset, limit int) ([]models.User, error) {
	var users []models.User
	err := r.db.Order("created_at DESC").Offset(offset).Limit(limit).Find(&users).Error
	return users, err
}

// Count returns the total number of users
func (r *userRepository) Count() (int64, error) {
	var count int64
	err := r.db.Model(&models.User{}).Count(&count).Error
	return count, err
}

// ContactsByIDs returns the contact of every known user in userIDs. Unknown
// and disabled users are absent from the result.
func (r *userRepository) ContactsByIDs(ctx context.Context, userIDs []uint) (map[uint]dispatch.Contact, error) {
	out := make(map[uint]dispatch.Contact, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	var users []models.User
	err := r.db.WithContext(ctx).
		Select("id", "email", "phone").
		Where("id IN ? AND status <> ?", userIDs, models.STATUS_DISABLED).
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = dispatch.Contact{Email: strings.TrimSpace(u.Email), Phone: strings.TrimSpace(u.Phone)}
	}
	return out, nil
}

// PlanForUser returns the normalized plan of userID. Unknown users get the
// free plan.
func (r *userRepository) PlanForUser(ctx context.Context, userID uint) (string, error) {
	var user models.User
	err := r.db.WithContext(ctx).Select("id", "plan").First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return string(entitlements.PlanFree), nil
	}
	if err != nil {
		return "", err
	}
	return string(entitlements.NormalizePlan(user.Plan)), nil
}
