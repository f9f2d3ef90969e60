package services

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"reelvault/internal/models"
	"reelvault/internal/utils"
)

// Repository handles user account storage
type Repository struct {
	db *gorm.DB
}

// NewRepository creates a new repository instance
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{
		db: db,
	}
}

// UserUpdate carries the editable user fields; nil leaves a field unchanged
type UserUpdate struct {
	Username *string
	Password *string
	IsAdmin  *bool
}

// UserCounts summarizes the user table
type UserCounts struct {
	Total   int64 `json:"total"`
	Admins  int64 `json:"admins"`
	Regular int64 `json:"regular"`
}

// CreateUser validates the credentials and stores a new user
func (r *Repository) CreateUser(username, password string, isAdmin bool) (*models.User, error) {
	username = strings.TrimSpace(username)
	if err := utils.ValidateUsername(username); err != nil {
		return nil, invalidInput("%s", err.Error())
	}
	if err := utils.ValidatePassword(password); err != nil {
		return nil, invalidInput("%s", err.Error())
	}

	taken, err := r.usernameTaken(username, 0)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, fmt.Errorf("username %q already exists: %w", username, ErrConflict)
	}

	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:     username,
		PasswordHash: hash,
		IsAdmin:      isAdmin,
	}
	if err := r.db.Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// usernameTaken also counts soft-deleted rows since the unique index covers them
func (r *Repository) usernameTaken(username string, exceptID int64) (bool, error) {
	var count int64
	err := r.db.Unscoped().Model(&models.User{}).
		Where("username = ? AND id <> ?", username, exceptID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check username: %w", err)
	}
	return count > 0, nil
}

func (r *Repository) GetUserByID(id int64) (*models.User, error) {
	var user models.User
	if err := r.db.First(&user, id).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

func (r *Repository) GetUserByUsername(username string) (*models.User, error) {
	var user models.User
	if err := r.db.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, notFound(err, "user")
	}
	return &user, nil
}

// ListUsers returns one page of users ordered by creation
func (r *Repository) ListUsers(limit, offset int) ([]models.User, int64, error) {
	var users []models.User
	var total int64

	if err := r.db.Model(&models.User{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	err := r.db.Order("created_at ASC, id ASC").
		Limit(limit).Offset(offset).
		Find(&users).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}

	return users, total, nil
}

// UpdateUser applies an admin edit. Admins cannot change their own admin flag.
func (r *Repository) UpdateUser(actorID, id int64, update UserUpdate) (*models.User, error) {
	user, err := r.GetUserByID(id)
	if err != nil {
		return nil, err
	}

	if update.IsAdmin != nil && *update.IsAdmin != user.IsAdmin && actorID == id {
		return nil, ErrForbiddenSelf
	}

	if update.Username != nil {
		username := strings.TrimSpace(*update.Username)
		if err := utils.ValidateUsername(username); err != nil {
			return nil, invalidInput("%s", err.Error())
		}
		taken, err := r.usernameTaken(username, id)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, fmt.Errorf("username %q already exists: %w", username, ErrConflict)
		}
		user.Username = username
	}

	if update.Password != nil && *update.Password != "" {
		if err := utils.ValidatePassword(*update.Password); err != nil {
			return nil, invalidInput("%s", err.Error())
		}
		hash, err := utils.HashPassword(*update.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash password: %w", err)
		}
		user.PasswordHash = hash
	}

	if update.IsAdmin != nil {
		user.IsAdmin = *update.IsAdmin
	}

	err = r.db.Model(user).Updates(map[string]interface{}{
		"username":      user.Username,
		"password_hash": user.PasswordHash,
		"is_admin":      user.IsAdmin,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// ToggleAdmin flips the admin flag of another user
func (r *Repository) ToggleAdmin(actorID, id int64) (*models.User, error) {
	if actorID == id {
		return nil, ErrForbiddenSelf
	}
	user, err := r.GetUserByID(id)
	if err != nil {
		return nil, err
	}
	next := !user.IsAdmin
	if err := r.db.Model(user).Update("is_admin", next).Error; err != nil {
		return nil, fmt.Errorf("failed to update admin flag: %w", err)
	}
	user.IsAdmin = next
	return user, nil
}

// DeleteUser soft-deletes another user
func (r *Repository) DeleteUser(actorID, id int64) (*models.User, error) {
	if actorID == id {
		return nil, ErrForbiddenSelf
	}
	user, err := r.GetUserByID(id)
	if err != nil {
		return nil, err
	}
	if err := r.db.Delete(user).Error; err != nil {
		return nil, fmt.Errorf("failed to delete user: %w", err)
	}
	return user, nil
}

// CountUsers counts live users by role
func (r *Repository) CountUsers() (*UserCounts, error) {
	counts := &UserCounts{}
	if err := r.db.Model(&models.User{}).Count(&counts.Total).Error; err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	if err := r.db.Model(&models.User{}).Where("is_admin = ?", true).Count(&counts.Admins).Error; err != nil {
		return nil, fmt.Errorf("failed to count admins: %w", err)
	}
	counts.Regular = counts.Total - counts.Admins
	return counts, nil
}

// IsNotFound reports whether err means a missing row
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
