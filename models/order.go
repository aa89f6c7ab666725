package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents all possible states of an order
type OrderStatus string

const (
	StatusPending        OrderStatus = "pending"
	StatusConfirmed      OrderStatus = "confirmed"
	StatusPreparing      OrderStatus = "preparing"
	StatusOutForDelivery OrderStatus = "out_for_delivery"
	StatusDelivered      OrderStatus = "delivered"
	StatusCancelled      OrderStatus = "cancelled"
)

// AllStatuses lists every status in lifecycle order, cancelled last
var AllStatuses = []OrderStatus{
	StatusPending,
	StatusConfirmed,
	StatusPreparing,
	StatusOutForDelivery,
	StatusDelivered,
	StatusCancelled,
}

// IsTerminal reports whether no transition may leave the status
func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

type Order struct {
	ID               uint                 `json:"id" gorm:"primaryKey"`
	CustomerID       uint                 `json:"customer_id" gorm:"not null;index"`
	Customer         *User                `json:"customer,omitempty" gorm:"foreignKey:CustomerID"`
	ServiceID        uint                 `json:"service_id" gorm:"not null;index"`
	Service          *Service             `json:"service,omitempty" gorm:"foreignKey:ServiceID"`
	TotalAmount      decimal.Decimal      `json:"total_amount" gorm:"type:decimal(10,2);not null"`
	Address          string               `json:"address" gorm:"not null"`
	Phone            string               `json:"phone" gorm:"size:20;not null"`
	Notes            string               `json:"notes"`
	Status           OrderStatus          `json:"status" gorm:"size:20;not null;default:'pending';index"`
	AssignedTo       *uint                `json:"assigned_to" gorm:"index"`
	TeamMember       *User                `json:"team_member,omitempty" gorm:"foreignKey:AssignedTo;constraint:OnDelete:SET NULL"`
	OTP              *string              `json:"-" gorm:"column:otp;size:6"`
	OTPExpiry        *time.Time           `json:"otp_expiry,omitempty" gorm:"column:otp_expiry"`
	OTPAttempts      int                  `json:"otp_attempts" gorm:"column:otp_attempts;not null;default:0"`
	ConfirmedAt      *time.Time           `json:"confirmed_at,omitempty"`
	PreparedAt       *time.Time           `json:"prepared_at,omitempty"`
	OutForDeliveryAt *time.Time           `json:"out_for_delivery_at,omitempty"`
	DeliveredAt      *time.Time           `json:"delivered_at,omitempty"`
	CancelledAt      *time.Time           `json:"cancelled_at,omitempty"`
	Items            []OrderItem          `json:"items,omitempty" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	StatusHistory    []OrderStatusHistory `json:"status_history,omitempty" gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt        time.Time            `json:"created_at" gorm:"index"`
	UpdatedAt        time.Time            `json:"updated_at"`
}

// IsAssignedTo reports whether the order is currently bound to the given user
func (o *Order) IsAssignedTo(userID uint) bool {
	return o.AssignedTo != nil && *o.AssignedTo == userID
}

// HasActiveOTP reports whether a delivery code is outstanding
func (o *Order) HasActiveOTP() bool {
	return o.OTP != nil && *o.OTP != ""
}

// OrderItem is immutable once written; price and name are snapshots taken at checkout
type OrderItem struct {
	ID          uint            `json:"id" gorm:"primaryKey"`
	OrderID     uint            `json:"order_id" gorm:"not null;index"`
	MenuItemID  uint            `json:"menu_item_id" gorm:"not null;index"`
	Quantity    int             `json:"quantity" gorm:"not null"`
	PriceAtTime decimal.Decimal `json:"price_at_time" gorm:"type:decimal(10,2);not null"`
	ItemName    string          `json:"item_name" gorm:"size:100;not null"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Subtotal is the line total for the item
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.PriceAtTime.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// OrderStatusHistory tracks every status change
type OrderStatusHistory struct {
	ID         uint        `json:"id" gorm:"primaryKey"`
	OrderID    uint        `json:"order_id" gorm:"not null;index"`
	FromStatus OrderStatus `json:"from_status"`
	ToStatus   OrderStatus `json:"to_status" gorm:"not null"`
	ChangedBy  uint        `json:"changed_by"`
	Note       string      `json:"note"`
	CreatedAt  time.Time   `json:"created_at"`
}
