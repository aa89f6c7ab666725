package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"bite-me-buddy/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OrderStats struct {
	TotalOrders  int64                        `json:"total_orders"`
	ByStatus     map[models.OrderStatus]int64 `json:"by_status"`
	TodayOrders  int64                        `json:"today_orders"`
	TotalRevenue decimal.Decimal              `json:"total_revenue"`
	Timezone     string                       `json:"timezone"`
}

// OnlineTime summarises one user's logged-in time over closed sessions
type OnlineTime struct {
	UserID            uint        `json:"user_id"`
	Name              string      `json:"name"`
	Username          string      `json:"username"`
	Role              models.Role `json:"role"`
	Sessions          int         `json:"total_sessions"`
	TotalMinutes      float64     `json:"total_minutes"`
	AvgSessionMinutes float64     `json:"avg_session_minutes"`
	LastLogin         *time.Time  `json:"last_login"`
	LastLogout        *time.Time  `json:"last_logout"`
}

// OnlineTimeQuery bounds the report by reporting-timezone dates (YYYY-MM-DD, inclusive)
type OnlineTimeQuery struct {
	Role models.Role
	From string
	To   string
}

// StatsService computes read-only aggregates over orders and sessions
type StatsService struct {
	db  *gorm.DB
	loc *time.Location
	now func() time.Time
}

func NewStatsService(db *gorm.DB, loc *time.Location) *StatsService {
	if loc == nil {
		loc = time.UTC
	}
	return &StatsService{db: db, loc: loc, now: utcNow}
}

// dayBounds returns the UTC instants delimiting the reporting-timezone day containing t
func dayBounds(t time.Time, loc *time.Location) (time.Time, time.Time) {
	local := t.In(loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}

func (s *StatsService) GetOrderStats(ctx context.Context) (*OrderStats, error) {
	db := s.db.WithContext(ctx)
	stats := &OrderStats{
		ByStatus: make(map[models.OrderStatus]int64, len(models.AllStatuses)),
		Timezone: s.loc.String(),
	}
	for _, st := range models.AllStatuses {
		stats.ByStatus[st] = 0
	}

	if err := db.Model(&models.Order{}).Count(&stats.TotalOrders).Error; err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	var grouped []struct {
		Status models.OrderStatus
		Count  int64
	}
	if err := db.Model(&models.Order{}).Select("status, COUNT(*) AS count").Group("status").Scan(&grouped).Error; err != nil {
		return nil, fmt.Errorf("count orders by status: %w", err)
	}
	for _, g := range grouped {
		stats.ByStatus[g.Status] = g.Count
	}

	start, end := dayBounds(s.now(), s.loc)
	if err := db.Model(&models.Order{}).
		Where("created_at >= ? AND created_at < ?", start, end).
		Count(&stats.TodayOrders).Error; err != nil {
		return nil, fmt.Errorf("count today's orders: %w", err)
	}

	// Revenue is recognised only once an order is delivered
	var revenue decimal.NullDecimal
	row := db.Model(&models.Order{}).
		Select("SUM(total_amount)").
		Where("status = ?", models.StatusDelivered).
		Row()
	if err := row.Scan(&revenue); err != nil {
		return nil, fmt.Errorf("sum revenue: %w", err)
	}
	stats.TotalRevenue = decimal.Zero
	if revenue.Valid {
		stats.TotalRevenue = revenue.Decimal.Round(2)
	}
	return stats, nil
}

// OnlineTimeReport totals session time per user. Sessions still open count toward
// last login only; their duration is unknown until logout.
func (s *StatsService) OnlineTimeReport(ctx context.Context, q OnlineTimeQuery) ([]OnlineTime, error) {
	query := s.db.WithContext(ctx).Preload("User")
	if q.From != "" {
		query = query.Where("date >= ?", q.From)
	}
	if q.To != "" {
		query = query.Where("date <= ?", q.To)
	}
	if q.Role != "" {
		query = query.Where("user_id IN (?)", s.db.Model(&models.User{}).Select("id").Where("role = ?", q.Role))
	}

	var sessions []models.UserSession
	if err := query.Order("login_time asc").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	byUser := map[uint]*OnlineTime{}
	for _, sess := range sessions {
		if sess.User == nil {
			continue
		}
		row, ok := byUser[sess.UserID]
		if !ok {
			row = &OnlineTime{
				UserID:   sess.UserID,
				Name:     sess.User.Name,
				Username: sess.User.Username,
				Role:     sess.User.Role,
			}
			byUser[sess.UserID] = row
		}
		login := sess.LoginTime
		if row.LastLogin == nil || login.After(*row.LastLogin) {
			row.LastLogin = &login
		}
		if sess.LogoutTime == nil {
			continue
		}
		logout := *sess.LogoutTime
		if row.LastLogout == nil || logout.After(*row.LastLogout) {
			row.LastLogout = &logout
		}
		row.Sessions++
		if d := logout.Sub(login); d > 0 {
			row.TotalMinutes += d.Minutes()
		}
	}

	report := make([]OnlineTime, 0, len(byUser))
	for _, row := range byUser {
		row.TotalMinutes = math.Round(row.TotalMinutes*100) / 100
		if row.Sessions > 0 {
			row.AvgSessionMinutes = math.Round(row.TotalMinutes/float64(row.Sessions)*100) / 100
		}
		report = append(report, *row)
	}
	sort.Slice(report, func(i, j int) bool {
		if report[i].Role != report[j].Role {
			return report[i].Role < report[j].Role
		}
		if report[i].Name != report[j].Name {
			return report[i].Name < report[j].Name
		}
		return report[i].UserID < report[j].UserID
	})
	return report, nil
}
