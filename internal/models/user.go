package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// User is an account used when user management is enabled. Admins manage
// everything, staff may work with orders and stock.
type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Username     string    `json:"username" gorm:"type:varchar(80);uniqueIndex;not null"`
	Email        *string   `json:"email" gorm:"type:varchar(120);uniqueIndex"`
	PasswordHash string    `json:"-" gorm:"type:varchar(128);not null"`
	IsAdmin      bool      `json:"is_admin" gorm:"default:false"`
	IsStaff      bool      `json:"is_staff" gorm:"default:false"`
	Name         string    `json:"name" gorm:"type:varchar(120)"`
	Gender       string    `json:"gender" gorm:"type:varchar(20)"`
	Bio          string    `json:"bio" gorm:"type:varchar(500)"`
	ProfileImage string    `json:"profile_image" gorm:"type:varchar(200)"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`

	Logs []ActivityLog `json:"-" gorm:"foreignKey:UserID"`
}

func (User) TableName() string {
	return "users"
}

// HasStaffRights is true for admins and staff members.
func (u *User) HasStaffRights() bool {
	return u.IsAdmin || u.IsStaff
}

// SetPassword stores a bcrypt hash of password.
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword compares password against the stored hash.
func (u *User) CheckPassword(password string) bool {
	if u.PasswordHash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// DisplayName prefers the profile name over the login name.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Username
}
