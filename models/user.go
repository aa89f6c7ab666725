package models

import (
	"time"
)

// Role is the closed set of account kinds in the system
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleTeamMember Role = "team_member"
	RoleAdmin      Role = "admin"
)

// ParseRole returns the Role named by s, or false for anything outside the enum
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleCustomer, RoleTeamMember, RoleAdmin:
		return Role(s), true
	}
	return "", false
}

// IsStaff reports whether the role can work on orders it does not own
func (r Role) IsStaff() bool {
	switch r {
	case RoleTeamMember, RoleAdmin:
		return true
	case RoleCustomer:
		return false
	}
	return false
}

type User struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	Name         string    `json:"name" gorm:"size:100;not null"`
	Username     string    `json:"username" gorm:"size:50;uniqueIndex;not null"`
	Email        *string   `json:"email,omitempty" gorm:"size:100;uniqueIndex"`
	Phone        *string   `json:"phone,omitempty" gorm:"size:20;uniqueIndex"`
	PasswordHash string    `json:"-" gorm:"size:255;not null"`
	Address      string    `json:"address,omitempty"`
	Role         Role      `json:"role" gorm:"size:20;not null;default:'customer'"`
	IsActive     bool      `json:"is_active" gorm:"not null"`
	IsVerified   bool      `json:"is_verified" gorm:"not null;default:false"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// PhoneNumber returns the contact number or "" when none is on file
func (u *User) PhoneNumber() string {
	if u.Phone == nil {
		return ""
	}
	return *u.Phone
}

// UserSession records one login/logout pair, used only for online-time reporting
type UserSession struct {
	ID         uint       `json:"id" gorm:"primaryKey"`
	UserID     uint       `json:"user_id" gorm:"not null;index"`
	User       *User      `json:"user,omitempty" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
	LoginTime  time.Time  `json:"login_time" gorm:"not null;index"`
	LogoutTime *time.Time `json:"logout_time"`
	Date       string     `json:"date" gorm:"size:10;not null;index"` // YYYY-MM-DD in the reporting timezone
}
