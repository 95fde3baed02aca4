package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"lagerverwaltung/server/internal/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// UserInput carries the admin user form. An empty Password keeps the
// current one on update.
type UserInput struct {
	Username     string
	Email        string
	Password     string
	IsAdmin      bool
	IsStaff      bool
	Name         string
	Gender       string
	Bio          string
	ProfileImage string
}

// ProfileInput carries the fields a user may change on their own profile.
type ProfileInput struct {
	Email        string
	Name         string
	Gender       string
	Bio          string
	ProfileImage string
}

// UserService manages accounts.
type UserService struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewUserService(db *gorm.DB, logger *zap.Logger) *UserService {
	return &UserService{db: db, logger: logger}
}

// EnsureAdmin creates admin/admin when no user exists. Returns true when an
// account was created.
func (s *UserService) EnsureAdmin(ctx context.Context) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Count(&count).Error; err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	admin := models.User{Username: "admin", IsAdmin: true}
	if err := admin.SetPassword("admin"); err != nil {
		return false, fmt.Errorf("hash admin password: %w", err)
	}
	if err := s.db.WithContext(ctx).Create(&admin).Error; err != nil {
		return false, fmt.Errorf("create admin: %w", err)
	}
	s.logger.Warn("created default admin account, change its password", zap.String("username", admin.Username))
	return true, nil
}

// Authenticate checks username and password.
func (s *UserService) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", strings.TrimSpace(username)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWrongPassword
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.CheckPassword(password) {
		return nil, ErrWrongPassword
	}
	return &user, nil
}

// Get loads a user.
func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	return &user, nil
}

// List returns all users by username.
func (s *UserService) List(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := s.db.WithContext(ctx).Order("username").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// Create adds a user. Username and password are required.
func (s *UserService) Create(ctx context.Context, input UserInput) (*models.User, error) {
	input.Username = strings.TrimSpace(input.Username)
	if input.Username == "" || input.Password == "" {
		return nil, ErrInvalidInput
	}

	user := models.User{
		Username:     input.Username,
		Email:        optionalString(input.Email),
		IsAdmin:      input.IsAdmin,
		IsStaff:      input.IsStaff,
		Name:         strings.TrimSpace(input.Name),
		Gender:       input.Gender,
		Bio:          input.Bio,
		ProfileImage: input.ProfileImage,
	}
	if err := user.SetPassword(input.Password); err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkUnique(tx, user.Username, user.Email, 0); err != nil {
			return err
		}
		if err := tx.Create(&user).Error; err != nil {
			return fmt.Errorf("create user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user created", zap.Uint("id", user.ID), zap.String("username", user.Username))
	return &user, nil
}

// Update changes a user as admin. The last admin cannot lose admin rights.
func (s *UserService) Update(ctx context.Context, id uint, input UserInput) (*models.User, error) {
	input.Username = strings.TrimSpace(input.Username)
	if input.Username == "" {
		return nil, ErrInvalidInput
	}

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load user: %w", err)
		}
		email := optionalString(input.Email)
		if err := checkUnique(tx, input.Username, email, id); err != nil {
			return err
		}
		if user.IsAdmin && !input.IsAdmin {
			if err := ensureOtherAdmin(tx, id); err != nil {
				return err
			}
		}

		user.Username = input.Username
		user.Email = email
		user.IsAdmin = input.IsAdmin
		user.IsStaff = input.IsStaff
		user.Name = strings.TrimSpace(input.Name)
		user.Gender = input.Gender
		user.Bio = input.Bio
		user.ProfileImage = input.ProfileImage
		if input.Password != "" {
			if err := user.SetPassword(input.Password); err != nil {
				return fmt.Errorf("hash password: %w", err)
			}
		}
		if err := tx.Save(&user).Error; err != nil {
			return fmt.Errorf("update user: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("user updated", zap.Uint("id", user.ID), zap.String("username", user.Username))
	return &user, nil
}

// Delete removes a user with their messages and activity. The last admin
// cannot be deleted.
func (s *UserService) Delete(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load user: %w", err)
		}
		if user.IsAdmin {
			if err := ensureOtherAdmin(tx, id); err != nil {
				return err
			}
		}
		if err := tx.Where("sender_id = ? OR receiver_id = ?", id, id).Delete(&models.Message{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.ActivityLog{}).Error; err != nil {
			return fmt.Errorf("delete activity: %w", err)
		}
		if err := tx.Delete(&user).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("user deleted", zap.Uint("id", id))
	return nil
}

// UpdateProfile changes the caller's own profile fields.
func (s *UserService) UpdateProfile(ctx context.Context, id uint, input ProfileInput) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&user, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("load user: %w", err)
		}
		email := optionalString(input.Email)
		if err := checkUnique(tx, user.Username, email, id); err != nil {
			return err
		}
		user.Email = email
		user.Name = strings.TrimSpace(input.Name)
		user.Gender = input.Gender
		user.Bio = input.Bio
		user.ProfileImage = input.ProfileImage
		if err := tx.Model(&user).Select("email", "name", "gender", "bio", "profile_image").Updates(&user).Error; err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ChangePassword verifies the old password before setting the new one.
func (s *UserService) ChangePassword(ctx context.Context, id uint, oldPassword, newPassword string) error {
	if newPassword == "" {
		return ErrInvalidInput
	}
	user, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !user.CheckPassword(oldPassword) {
		return ErrWrongPassword
	}
	if err := user.SetPassword(newPassword); err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(user).Update("password_hash", user.PasswordHash).Error; err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	s.logger.Info("password changed", zap.Uint("id", id))
	return nil
}

func checkUnique(tx *gorm.DB, username string, email *string, exceptID uint) error {
	var count int64
	if err := tx.Model(&models.User{}).Where("username = ? AND id <> ?", username, exceptID).Count(&count).Error; err != nil {
		return fmt.Errorf("check username: %w", err)
	}
	if count > 0 {
		return ErrDuplicateUsername
	}
	if email == nil {
		return nil
	}
	if err := tx.Model(&models.User{}).Where("email = ? AND id <> ?", *email, exceptID).Count(&count).Error; err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if count > 0 {
		return ErrDuplicateEmail
	}
	return nil
}

func ensureOtherAdmin(tx *gorm.DB, exceptID uint) error {
	var admins int64
	if err := tx.Model(&models.User{}).Where("is_admin = ? AND id <> ?", true, exceptID).Count(&admins).Error; err != nil {
		return fmt.Errorf("count admins: %w", err)
	}
	if admins == 0 {
		return ErrLastAdmin
	}
	return nil
}

func optionalString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
