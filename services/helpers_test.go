package services

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"bite-me-buddy/config"
	"bite-me-buddy/models"
	"bite-me-buddy/notify"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	testPolicy = OTPPolicy{Expire: 5 * time.Minute, MaxAttempts: 3}
	phoneSeq   atomic.Int64
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// newTestDB opens a private in-memory database. One connection keeps every
// goroutine on the same database and serializes writers like a row lock would.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(config.Models...))
	return db
}

type recordingSender struct {
	mu     sync.Mutex
	to     []string
	bodies []string
	err    error
}

func (r *recordingSender) Send(_ context.Context, to, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.to = append(r.to, to)
	r.bodies = append(r.bodies, body)
	return r.err
}

func (r *recordingSender) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.bodies...)
}

func newTestOrderService(t *testing.T, db *gorm.DB) (*OrderService, *recordingSender) {
	t.Helper()
	rec := &recordingSender{}
	n := notify.NewNotifier(rec, time.Second, "+91", "Bite Me Buddy", quietLogger())
	return NewOrderService(db, n, testPolicy, quietLogger()), rec
}

func seedUser(t *testing.T, db *gorm.DB, username string, role models.Role) *models.User {
	t.Helper()
	phone := fmt.Sprintf("98%08d", phoneSeq.Add(1))
	u := &models.User{
		Name:         username,
		Username:     username,
		Phone:        &phone,
		PasswordHash: "x",
		Role:         role,
		IsActive:     true,
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

func seedService(t *testing.T, db *gorm.DB, name string) *models.Service {
	t.Helper()
	svc := &models.Service{Name: name}
	require.NoError(t, db.Create(svc).Error)
	return svc
}

func seedItem(t *testing.T, db *gorm.DB, serviceID uint, name, price string, available bool) *models.MenuItem {
	t.Helper()
	item := &models.MenuItem{
		ServiceID:   serviceID,
		Name:        name,
		Price:       decimal.RequireFromString(price),
		IsAvailable: available,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

type orderFixture struct {
	customer *models.User
	member   *models.User
	admin    *models.User
	service  *models.Service
	thali    *models.MenuItem
	lassi    *models.MenuItem
}

func seedOrderFixture(t *testing.T, db *gorm.DB) orderFixture {
	t.Helper()
	f := orderFixture{
		customer: seedUser(t, db, "carol", models.RoleCustomer),
		member:   seedUser(t, db, "tariq", models.RoleTeamMember),
		admin:    seedUser(t, db, "alice", models.RoleAdmin),
		service:  seedService(t, db, "Lunch Tiffin"),
	}
	f.thali = seedItem(t, db, f.service.ID, "Veg Thali", "100.00", true)
	f.lassi = seedItem(t, db, f.service.ID, "Sweet Lassi", "150.00", true)
	return f
}

func (f orderFixture) adminActor() Actor {
	return Actor{UserID: f.admin.ID, Role: models.RoleAdmin}
}

func (f orderFixture) memberActor() Actor {
	return Actor{UserID: f.member.ID, Role: models.RoleTeamMember}
}

func (f orderFixture) placeOrder(t *testing.T, s *OrderService) *models.Order {
	t.Helper()
	order, err := s.CreateOrder(context.Background(), f.customer.ID, CreateOrderRequest{
		ServiceID: f.service.ID,
		Address:   "12 MG Road",
		Phone:     "9876543210",
		Items: []OrderItemRequest{
			{MenuItemID: f.thali.ID, Quantity: 2},
			{MenuItemID: f.lassi.ID, Quantity: 1},
		},
	})
	require.NoError(t, err)
	return order
}

// outForDelivery places an order assigned to the fixture's team member and moves it to out_for_delivery
func (f orderFixture) outForDelivery(t *testing.T, s *OrderService) *models.Order {
	t.Helper()
	ctx := context.Background()
	order := f.placeOrder(t, s)
	_, err := s.AssignOrder(ctx, order.ID, f.member.ID)
	require.NoError(t, err)
	for _, st := range []models.OrderStatus{models.StatusConfirmed, models.StatusPreparing, models.StatusOutForDelivery} {
		order, err = s.UpdateStatus(ctx, order.ID, st, f.memberActor(), "")
		require.NoError(t, err)
	}
	return order
}

func reloadOrder(t *testing.T, db *gorm.DB, id uint) models.Order {
	t.Helper()
	var o models.Order
	require.NoError(t, db.First(&o, id).Error)
	return o
}
