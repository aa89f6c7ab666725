package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Service is a named category of menu offerings, e.g. "Lunch Tiffin"
type Service struct {
	ID          uint       `json:"id" gorm:"primaryKey"`
	Name        string     `json:"name" gorm:"size:100;uniqueIndex;not null"`
	Description string     `json:"description"`
	ImageURL    string     `json:"image_url,omitempty" gorm:"size:255"`
	MenuItems   []MenuItem `json:"menu_items,omitempty" gorm:"foreignKey:ServiceID;constraint:OnDelete:CASCADE"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type MenuItem struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	ServiceID   uint            `json:"service_id" gorm:"not null;index"`
	Name        string          `json:"name" gorm:"size:100;not null;index"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(10,2);not null"`
	ImageURL    string          `json:"image_url,omitempty" gorm:"size:255"`
	IsAvailable bool            `json:"is_available" gorm:"not null"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
