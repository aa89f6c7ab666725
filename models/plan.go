package models

import "time"

// TeamMemberPlan is an admin-authored note addressed to one team member
type TeamMemberPlan struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	AdminID      uint       `json:"admin_id" gorm:"not null;index"`
	Admin        *User      `json:"admin,omitempty" gorm:"foreignKey:AdminID;constraint:OnDelete:CASCADE"`
	TeamMemberID uint       `json:"team_member_id" gorm:"not null;index"`
	TeamMember   *User      `json:"team_member,omitempty" gorm:"foreignKey:TeamMemberID;constraint:OnDelete:CASCADE"`
	Description  string     `json:"description"`
	ImageURL     string     `json:"image_url,omitempty" gorm:"size:255"`
	IsRead       bool       `json:"is_read" gorm:"not null;default:false"`
	ReadAt       *time.Time `json:"read_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at" gorm:"index"`
}
