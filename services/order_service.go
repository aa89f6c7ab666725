package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bite-me-buddy/apperr"
	"bite-me-buddy/models"
	"bite-me-buddy/notify"
	"bite-me-buddy/statemachine"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type OrderItemRequest struct {
	MenuItemID uint `json:"menu_item_id" binding:"required"`
	Quantity   int  `json:"quantity" binding:"required,min=1"`
}

type CreateOrderRequest struct {
	ServiceID uint               `json:"service_id" binding:"required"`
	Address   string             `json:"address" binding:"required"`
	Phone     string             `json:"phone" binding:"required"`
	Notes     string             `json:"notes"`
	Items     []OrderItemRequest `json:"items" binding:"required,min=1,dive"`
}

// OrderFilter narrows the admin order listing; zero values mean "any"
type OrderFilter struct {
	Status     models.OrderStatus
	AssignedTo *uint
	Unassigned bool
	CustomerID *uint
	Limit      int
	Offset     int
}

type OrderService struct {
	db       *gorm.DB
	notifier *notify.Notifier
	policy   OTPPolicy
	log      logrus.FieldLogger
	now      func() time.Time
	newCode  func() (string, error)
}

func NewOrderService(db *gorm.DB, notifier *notify.Notifier, policy OTPPolicy, log logrus.FieldLogger) *OrderService {
	return &OrderService{
		db:       db,
		notifier: notifier,
		policy:   policy,
		log:      log.WithField("component", "order_service"),
		now:      utcNow,
		newCode:  generateOTPCode,
	}
}

func (r CreateOrderRequest) validate() error {
	if len(r.Items) == 0 {
		return apperr.Validation("order must contain at least one item")
	}
	if strings.TrimSpace(r.Address) == "" {
		return apperr.Validation("delivery address is required")
	}
	if strings.TrimSpace(r.Phone) == "" {
		return apperr.Validation("contact phone is required")
	}
	seen := make(map[uint]bool, len(r.Items))
	for _, it := range r.Items {
		if it.Quantity <= 0 {
			return apperr.Validation("quantity for menu item %d must be greater than zero", it.MenuItemID)
		}
		if seen[it.MenuItemID] {
			return apperr.Validation("menu item %d appears more than once", it.MenuItemID).
				WithDetail("menu_item_id", it.MenuItemID)
		}
		seen[it.MenuItemID] = true
	}
	return nil
}

// CreateOrder prices the cart from the catalog and persists the order with its items in one transaction.
// Unit price and item name are snapshotted so later catalog edits never change the order.
func (s *OrderService) CreateOrder(ctx context.Context, customerID uint, req CreateOrderRequest) (*models.Order, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var svc models.Service
		if err := tx.First(&svc, req.ServiceID).Error; err != nil {
			return notFoundOr(err, "Service")
		}

		total := decimal.Zero
		items := make([]models.OrderItem, 0, len(req.Items))
		for _, reqItem := range req.Items {
			var menuItem models.MenuItem
			if err := tx.First(&menuItem, reqItem.MenuItemID).Error; err != nil {
				return notFoundOr(err, "Menu item")
			}
			if menuItem.ServiceID != svc.ID {
				return apperr.Validation("menu item '%s' does not belong to service '%s'", menuItem.Name, svc.Name)
			}
			if !menuItem.IsAvailable {
				return apperr.Validation("menu item '%s' is not available", menuItem.Name).
					WithDetail("menu_item_id", menuItem.ID)
			}
			line := models.OrderItem{
				MenuItemID:  menuItem.ID,
				Quantity:    reqItem.Quantity,
				PriceAtTime: menuItem.Price,
				ItemName:    menuItem.Name,
			}
			total = total.Add(line.Subtotal())
			items = append(items, line)
		}

		order = models.Order{
			CustomerID:  customerID,
			ServiceID:   svc.ID,
			TotalAmount: total,
			Address:     strings.TrimSpace(req.Address),
			Phone:       strings.TrimSpace(req.Phone),
			Notes:       req.Notes,
			Status:      models.StatusPending,
			Items:       items,
		}
		if err := tx.Create(&order).Error; err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		history := models.OrderStatusHistory{
			OrderID:   order.ID,
			ToStatus:  models.StatusPending,
			ChangedBy: customerID,
			Note:      "Order placed by customer",
		}
		if err := tx.Create(&history).Error; err != nil {
			return fmt.Errorf("record order history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"order_id":    order.ID,
		"customer_id": customerID,
		"total":       order.TotalAmount.StringFixed(2),
		"items":       len(order.Items),
	}).Info("order placed")
	return s.GetOrder(ctx, order.ID)
}

// GetOrder loads an order with items, parties and history
func (s *OrderService) GetOrder(ctx context.Context, orderID uint) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Preload("Service").
		Preload("Customer").
		Preload("TeamMember").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		First(&order, orderID).Error
	if err != nil {
		return nil, notFoundOr(err, "Order")
	}
	return &order, nil
}

// GetOrderFor loads an order only if actor may see it
func (s *OrderService) GetOrderFor(ctx context.Context, orderID uint, actor Actor) (*models.Order, error) {
	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleTeamMember:
		if !order.IsAssignedTo(actor.UserID) {
			return nil, apperr.Forbidden("order is not assigned to you")
		}
	case models.RoleCustomer:
		if order.CustomerID != actor.UserID {
			return nil, apperr.Forbidden("this order does not belong to you")
		}
	default:
		return nil, apperr.Forbidden("unknown role")
	}
	return order, nil
}

func (s *OrderService) ListCustomerOrders(ctx context.Context, customerID uint) ([]models.Order, error) {
	return s.ListOrders(ctx, OrderFilter{CustomerID: &customerID})
}

// ListAssignedOrders returns a team member's orders; closed ones are included only when asked
func (s *OrderService) ListAssignedOrders(ctx context.Context, teamMemberID uint, includeClosed bool) ([]models.Order, error) {
	q := s.db.WithContext(ctx).
		Preload("Items").
		Preload("Customer").
		Preload("Service").
		Where("assigned_to = ?", teamMemberID)
	if !includeClosed {
		q = q.Where("status NOT IN ?", []models.OrderStatus{models.StatusDelivered, models.StatusCancelled})
	}
	var orders []models.Order
	if err := q.Order("created_at desc").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("list assigned orders: %w", err)
	}
	return orders, nil
}

func (s *OrderService) ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, error) {
	q := s.db.WithContext(ctx).
		Preload("Items").
		Preload("Customer").
		Preload("TeamMember").
		Preload("Service")
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.AssignedTo != nil {
		q = q.Where("assigned_to = ?", *f.AssignedTo)
	} else if f.Unassigned {
		q = q.Where("assigned_to IS NULL")
	}
	if f.CustomerID != nil {
		q = q.Where("customer_id = ?", *f.CustomerID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit).Offset(f.Offset)
	}

	var orders []models.Order
	if err := q.Order("created_at desc").Order("id desc").Find(&orders).Error; err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus applies one state machine transition on behalf of staff.
// Delivery is refused here: it is reached only through VerifyOTP.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uint, to models.OrderStatus, actor Actor, note string) (*models.Order, error) {
	if to == models.StatusDelivered {
		return nil, apperr.Validation("orders are marked delivered by verifying the delivery OTP")
	}

	var from models.OrderStatus
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if err := authorizeOrderWork(order, actor); err != nil {
			return err
		}
		if err := statemachine.CanTransition(order.Status, to, actor.Role); err != nil {
			return err
		}
		from = order.Status

		now := s.now()
		updates := map[string]any{
			"status":                          to,
			statemachine.TimestampColumn(to): now,
		}
		if to == models.StatusCancelled && order.HasActiveOTP() {
			updates["otp"] = nil
			updates["otp_expiry"] = nil
		}
		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, from).
			Updates(updates)
		if res.Error != nil {
			return fmt.Errorf("update order status: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("order status changed concurrently, reload and retry")
		}

		if note == "" {
			note = fmt.Sprintf("Status changed by %s", actor.Role)
		}
		return recordTransition(tx, order.ID, from, to, actor.UserID, note)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"order_id": orderID,
		"from":     from,
		"to":       to,
		"actor":    actor.UserID,
		"role":     actor.Role,
	}).Info("order status updated")
	return s.GetOrder(ctx, orderID)
}

// AssignOrder binds the order to a team member, replacing any previous assignee.
// Orders in a terminal state may still be reassigned.
func (s *OrderService) AssignOrder(ctx context.Context, orderID, teamMemberID uint) (*models.Order, error) {
	var member models.User
	var previous *uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if err := tx.First(&member, teamMemberID).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("load team member: %w", err)
			}
			return apperr.Validation("invalid team member").WithDetail("team_member_id", teamMemberID)
		}
		if member.Role != models.RoleTeamMember {
			return apperr.Validation("invalid team member").WithDetail("team_member_id", teamMemberID)
		}
		previous = order.AssignedTo
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Update("assigned_to", member.ID).Error; err != nil {
			return fmt.Errorf("assign order: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	fields := logrus.Fields{"order_id": orderID, "team_member_id": member.ID}
	if previous != nil {
		fields["previous_assignee"] = *previous
	}
	s.log.WithFields(fields).Info("order assigned")

	s.notifier.SendAssignment(ctx, member.PhoneNumber(), orderID)
	return s.GetOrder(ctx, orderID)
}

// DeleteOrder removes an order together with its items and history
func (s *OrderService) DeleteOrder(ctx context.Context, orderID uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := lockOrder(tx, orderID); err != nil {
			return err
		}
		return deleteOrdersWhere(tx, "id = ?", orderID)
	})
	if err != nil {
		return err
	}
	s.log.WithField("order_id", orderID).Info("order deleted")
	return nil
}

// deleteOrdersWhere removes matching orders and their children inside tx
func deleteOrdersWhere(tx *gorm.DB, query string, args ...any) error {
	var ids []uint
	if err := tx.Model(&models.Order{}).Where(query, args...).Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("find orders: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}
	if err := tx.Where("order_id IN ?", ids).Delete(&models.OrderItem{}).Error; err != nil {
		return fmt.Errorf("delete order items: %w", err)
	}
	if err := tx.Where("order_id IN ?", ids).Delete(&models.OrderStatusHistory{}).Error; err != nil {
		return fmt.Errorf("delete order history: %w", err)
	}
	if err := tx.Where("id IN ?", ids).Delete(&models.Order{}).Error; err != nil {
		return fmt.Errorf("delete orders: %w", err)
	}
	return nil
}

func recordTransition(tx *gorm.DB, orderID uint, from, to models.OrderStatus, by uint, note string) error {
	history := models.OrderStatusHistory{
		OrderID:    orderID,
		FromStatus: from,
		ToStatus:   to,
		ChangedBy:  by,
		Note:       note,
	}
	if err := tx.Create(&history).Error; err != nil {
		return fmt.Errorf("record order history: %w", err)
	}
	return nil
}
