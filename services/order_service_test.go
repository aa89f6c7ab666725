package services

import (
	"context"
	"errors"
	"testing"

	"bite-me-buddy/apperr"
	"bite-me-buddy/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestCreateOrderTotalsSnapshotPrices(t *testing.T) {
	db := newTestDB(t)
	s, _ := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)

	order := f.placeOrder(t, s)

	assert.Equal(t, models.StatusPending, order.Status)
	assert.True(t, order.TotalAmount.Equal(decimal.NewFromInt(350)), "total was %s", order.TotalAmount)
	require.Len(t, order.Items, 2)
	assert.Equal(t, "Veg Thali", order.Items[0].ItemName)
	assert.True(t, order.Items[0].PriceAtTime.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 2, order.Items[0].Quantity)
	require.Len(t, order.StatusHistory, 1)
	assert.Equal(t, models.StatusPending, order.StatusHistory[0].ToStatus)

	// later catalog edits never reach placed orders
	require.NoError(t, db.Model(f.thali).Updates(map[string]any{"price": "120.00", "name": "Deluxe Thali"}).Error)
	reloaded, err := s.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, reloaded.TotalAmount.Equal(decimal.NewFromInt(350)))
	assert.True(t, reloaded.Items[0].PriceAtTime.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, "Veg Thali", reloaded.Items[0].ItemName)
}

func TestCreateOrderRejectsDuplicateItems(t *testing.T) {
	db := newTestDB(t)
	s, _ := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)

	_, err := s.CreateOrder(context.Background(), f.customer.ID, CreateOrderRequest{
		ServiceID: f.service.ID,
		Address:   "12 MG Road",
		Phone:     "9876543210",
		Items: []OrderItemRequest{
			{MenuItemID: f.thali.ID, Quantity: 1},
			{MenuItemID: f.thali.ID, Quantity: 2},
		},
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	var count int64
	db.Model(&models.Order{}).Count(&count)
	assert.Zero(t, count)
}

func TestCreateOrderIsAllOrNothing(t *testing.T) {
	db := newTestDB(t)
	s, _ := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)
	soldOut := seedItem(t, db, f.service.ID, "Paneer Roll", "80.00", false)

	_, err := s.CreateOrder(context.Background(), f.customer.ID, CreateOrderRequest{
		ServiceID: f.service.ID,
		Address:   "12 MG Road",
		Phone:     "9876543210",
		Items: []OrderItemRequest{
			{MenuItemID: f.thali.ID, Quantity: 1},
			{MenuItemID: soldOut.ID, Quantity: 1},
		},
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Contains(t, err.Error(), "Paneer Roll")

	var orders, items int64
	db.Model(&models.Order{}).Count(&orders)
	db.Model(&models.OrderItem{}).Count(&items)
	assert.Zero(t, orders)
	assert.Zero(t, items)
}

func TestCreateOrderValidatesReferences(t *testing.T) {
	db := newTestDB(t)
	s, _ := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)
	other := seedService(t, db, "Breakfast")
	idli := seedItem(t, db, other.ID, "Idli", "40.00", true)
	ctx := context.Background()

	base := CreateOrderRequest{ServiceID: f.service.ID, Address: "12 MG Road", Phone: "9876543210"}

	req := base
	req.Items = []OrderItemRequest{{MenuItemID: 9999, Quantity: 1}}
	_, err := s.CreateOrder(ctx, f.customer.ID, req)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	req = base
	req.Items = []OrderItemRequest{{MenuItemID: idli.ID, Quantity: 1}}
	_, err = s.CreateOrder(ctx, f.customer.ID, req)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	req = base
	req.ServiceID = 9999
	req.Items = []OrderItemRequest{{MenuItemID: f.thali.ID, Quantity: 1}}
	_, err = s.CreateOrder(ctx, f.customer.ID, req)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	req = base
	_, err = s.CreateOrder(ctx, f.customer.ID, req)
	assert.True(t, apperr.Is(err, apperr.KindValidation), "empty cart")

	req = base
	req.Items = []OrderItemRequest{{MenuItemID: f.thali.ID, Quantity: 0}}
	_, err = s.CreateOrder(ctx, f.customer.ID, req)
	assert.True(t, apperr.Is(err, apperr.KindValidation), "zero quantity")
}

func TestUpdateStatusWalksLifecycleAndStamps(t *testing.T) {
	db := newTestDB(t)
	s, _ := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)

	order := f.outForDelivery(t, s)

	assert.Equal(t, models.StatusOutForDelivery, order.Status)
	assert.NotNil(t, order.ConfirmedAt)
	assert.NotNil(t, order.PreparedAt)
	assert.NotNil(t, order.OutForDeliveryAt)
	assert.Nil(t, order.DeliveredAt)
	require.Len(t, order.StatusHistory, 4)
	last := order.StatusHistory[3]
	assert.Equal(t, models.StatusPreparing, last.FromStatus)
	assert.Equal(t, models.StatusOutForDelivery, last.ToStatus)
	assert.Equal(t, f.member.ID, last.ChangedBy)
}

func TestUpdateStatusRejectsIllegalMoves(t *testing.T) {
	db := newTestDB(t)
	s, _ := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)
	ctx := context.Background()
	order := f.placeOrder(t, s)

	_, err := s.UpdateStatus(ctx, order.ID, models.StatusPreparing, f.adminActor(), "")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Contains(t, err.Error(), "pending → preparing")

	_, err = s.UpdateStatus(ctx, order.ID, models.StatusDelivered, f.adminActor(), "")
	assert.True(t, apperr.Is(err, apperr.KindValidation), "delivery needs an OTP")

	assert.Equal(t, models.StatusPending, reloadOrder(t, db, order.ID).Status)

	_, err = s.UpdateStatus(ctx, order.ID, models.StatusCancelled, f.adminActor(), "customer called")
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, order.ID, models.StatusConfirmed, f.adminActor(), "")
	assert.True(t, apperr.Is(err, apperr.KindValidation), "cancelled is terminal")

	got := reloadOrder(t, db, order.ID)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.NotNil(t, got.CancelledAt)
}

func TestUpdateStatusRequiresAssignmentForTeamMembers(t *testing.T) {
	db := newTestDB(t)
	s, _ := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)
	ctx := context.Background()
	order := f.placeOrder(t, s)

	_, err := s.UpdateStatus(ctx, order.ID, models.StatusConfirmed, f.memberActor(), "")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = s.UpdateStatus(ctx, order.ID, models.StatusConfirmed, Actor{UserID: f.customer.ID, Role: models.RoleCustomer}, "")
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = s.AssignOrder(ctx, order.ID, f.member.ID)
	require.NoError(t, err)
	updated, err := s.UpdateStatus(ctx, order.ID, models.StatusConfirmed, f.memberActor(), "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, updated.Status)
}

func TestCancelConsumesActiveOTP(t *testing.T) {
	db := newTestDB(t)
	s, _ := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)
	ctx := context.Background()
	order := f.outForDelivery(t, s)

	issue, err := s.GenerateOTP(ctx, order.ID, f.memberActor())
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, order.ID, models.StatusCancelled, f.adminActor(), "")
	require.NoError(t, err)

	got := reloadOrder(t, db, order.ID)
	assert.Nil(t, got.OTP)
	assert.Nil(t, got.OTPExpiry)

	res, err := s.VerifyOTP(ctx, order.ID, issue.Code, f.memberActor())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonNoActiveOTP, res.Reason)
}

func TestAssignOrderRequiresTeamMember(t *testing.T) {
	db := newTestDB(t)
	s, rec := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)
	ctx := context.Background()
	order := f.placeOrder(t, s)

	_, err := s.AssignOrder(ctx, order.ID, f.customer.ID)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Equal(t, "invalid team member", err.Error())
	assert.Nil(t, reloadOrder(t, db, order.ID).AssignedTo)

	_, err = s.AssignOrder(ctx, order.ID, 9999)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = s.AssignOrder(ctx, 9999, f.member.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	assigned, err := s.AssignOrder(ctx, order.ID, f.member.ID)
	require.NoError(t, err)
	assert.True(t, assigned.IsAssignedTo(f.member.ID))
	require.NotEmpty(t, rec.messages())
	assert.Contains(t, rec.messages()[0], "has been assigned to you")
}

func TestAssignOrderSurfacesLookupFailures(t *testing.T) {
	db := newTestDB(t)
	s, _ := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)
	order := f.placeOrder(t, s)

	lookupErr := errors.New("users table unavailable")
	require.NoError(t, db.Callback().Query().Before("gorm:query").Register("test:fail_user_lookup", func(tx *gorm.DB) {
		if tx.Statement.Table == "users" {
			_ = tx.AddError(lookupErr)
		}
	}))

	_, err := s.AssignOrder(context.Background(), order.ID, f.member.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, lookupErr)
	assert.False(t, apperr.Is(err, apperr.KindValidation), "a failed lookup is not a bad team member")
}

func TestAssignOrderOverwritesAndAllowsTerminalOrders(t *testing.T) {
	db := newTestDB(t)
	s, _ := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)
	second := seedUser(t, db, "tina", models.RoleTeamMember)
	ctx := context.Background()
	order := f.placeOrder(t, s)

	_, err := s.AssignOrder(ctx, order.ID, f.member.ID)
	require.NoError(t, err)
	reassigned, err := s.AssignOrder(ctx, order.ID, second.ID)
	require.NoError(t, err)
	assert.True(t, reassigned.IsAssignedTo(second.ID))

	_, err = s.UpdateStatus(ctx, order.ID, models.StatusCancelled, f.adminActor(), "")
	require.NoError(t, err)
	_, err = s.AssignOrder(ctx, order.ID, f.member.ID)
	assert.NoError(t, err)
}

func TestGetOrderForEnforcesOwnership(t *testing.T) {
	db := newTestDB(t)
	s, _ := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)
	stranger := seedUser(t, db, "sam", models.RoleCustomer)
	ctx := context.Background()
	order := f.placeOrder(t, s)

	_, err := s.GetOrderFor(ctx, order.ID, Actor{UserID: f.customer.ID, Role: models.RoleCustomer})
	assert.NoError(t, err)
	_, err = s.GetOrderFor(ctx, order.ID, Actor{UserID: stranger.ID, Role: models.RoleCustomer})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = s.GetOrderFor(ctx, order.ID, f.memberActor())
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = s.GetOrderFor(ctx, order.ID, f.adminActor())
	assert.NoError(t, err)
	_, err = s.GetOrderFor(ctx, 9999, f.adminActor())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestListOrdersFilters(t *testing.T) {
	db := newTestDB(t)
	s, _ := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)
	ctx := context.Background()

	first := f.placeOrder(t, s)
	second := f.placeOrder(t, s)
	_, err := s.AssignOrder(ctx, first.ID, f.member.ID)
	require.NoError(t, err)
	_, err = s.AssignOrder(ctx, second.ID, f.member.ID)
	require.NoError(t, err)
	_, err = s.UpdateStatus(ctx, second.ID, models.StatusCancelled, f.adminActor(), "")
	require.NoError(t, err)
	third := f.placeOrder(t, s)

	open, err := s.ListAssignedOrders(ctx, f.member.ID, false)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, first.ID, open[0].ID)

	all, err := s.ListAssignedOrders(ctx, f.member.ID, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	cancelled, err := s.ListOrders(ctx, OrderFilter{Status: models.StatusCancelled})
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, second.ID, cancelled[0].ID)

	unassigned, err := s.ListOrders(ctx, OrderFilter{Unassigned: true})
	require.NoError(t, err)
	require.Len(t, unassigned, 1)
	assert.Equal(t, third.ID, unassigned[0].ID)

	mine, err := s.ListCustomerOrders(ctx, f.customer.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 3)
}

func TestDeleteOrderRemovesChildren(t *testing.T) {
	db := newTestDB(t)
	s, _ := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)
	ctx := context.Background()
	order := f.placeOrder(t, s)

	require.NoError(t, s.DeleteOrder(ctx, order.ID))

	var items, history int64
	db.Model(&models.OrderItem{}).Where("order_id = ?", order.ID).Count(&items)
	db.Model(&models.OrderStatusHistory{}).Where("order_id = ?", order.ID).Count(&history)
	assert.Zero(t, items)
	assert.Zero(t, history)
	_, err := s.GetOrder(ctx, order.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	assert.True(t, apperr.Is(s.DeleteOrder(ctx, order.ID), apperr.KindNotFound))
}
