package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"

	"bite-me-buddy/apperr"
	"bite-me-buddy/models"
	"bite-me-buddy/statemachine"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	otpMin       = 1000
	otpSpan      = 9000
	otpMaxLength = 6 // width of the otp column
)

type VerifyReason string

const (
	ReasonNoActiveOTP VerifyReason = "no_active_otp"
	ReasonMaxAttempts VerifyReason = "max_attempts_exceeded"
	ReasonExpired     VerifyReason = "otp_expired"
	ReasonInvalidOTP  VerifyReason = "invalid_otp"
)

var reasonMessages = map[VerifyReason]string{
	ReasonNoActiveOTP: "no active OTP for this order",
	ReasonMaxAttempts: "maximum attempts exceeded, generate a new OTP",
	ReasonExpired:     "OTP expired, generate a new OTP",
	ReasonInvalidOTP:  "invalid OTP",
}

// VerifyResult is the outcome of a verification attempt. Wrong codes are results, not errors.
type VerifyResult struct {
	Success           bool          `json:"success"`
	Reason            VerifyReason  `json:"reason,omitempty"`
	Message           string        `json:"message"`
	RemainingAttempts int           `json:"remaining_attempts"`
	Order             *models.Order `json:"order,omitempty"`
}

// OTPIssue is what staff see after generating a delivery code
type OTPIssue struct {
	OrderID   uint      `json:"order_id"`
	Code      string    `json:"otp"`
	ExpiresAt time.Time `json:"expires_at"`
	SMSSent   bool      `json:"sms_sent"`
}

// generateOTPCode draws a uniform 4-digit code in [1000, 9999]
func generateOTPCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpSpan))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%04d", n.Int64()+otpMin), nil
}

func isOTPFormat(code string) bool {
	if code == "" || len(code) > otpMaxLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func failed(reason VerifyReason, remaining int) *VerifyResult {
	if remaining < 0 {
		remaining = 0
	}
	return &VerifyResult{Reason: reason, Message: reasonMessages[reason], RemainingAttempts: remaining}
}

// GenerateOTP starts a new delivery OTP cycle, replacing any active code and resetting attempts.
// The SMS goes out after commit; its failure does not affect the code.
func (s *OrderService) GenerateOTP(ctx context.Context, orderID uint, actor Actor) (*OTPIssue, error) {
	code, err := s.newCode()
	if err != nil {
		return nil, err
	}
	expiresAt := s.now().Add(s.policy.Expire)

	var order *models.Order
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err = lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if err := authorizeOrderWork(order, actor); err != nil {
			return err
		}
		if order.Status != models.StatusOutForDelivery {
			return apperr.Validation("OTP can only be generated for orders out for delivery (current status: %s)", order.Status).
				WithDetail("current_status", order.Status)
		}
		updates := map[string]any{
			"otp":          code,
			"otp_expiry":   expiresAt,
			"otp_attempts": 0,
		}
		if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("store otp: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"order_id":   orderID,
		"actor":      actor.UserID,
		"expires_at": expiresAt,
	}).Info("delivery OTP generated")

	sent := s.notifier.SendOTP(ctx, order.Phone, code, order.ID, s.policy.Expire)
	return &OTPIssue{OrderID: order.ID, Code: code, ExpiresAt: expiresAt, SMSSent: sent}, nil
}

// VerifyOTP checks a submitted delivery code and, on a match, consumes it and marks the order delivered.
// Checks run in order: active code, attempt budget, expiry, then the code itself.
// Only a wrong code consumes an attempt. Attempt increments and the delivery
// transition are conditional updates, so concurrent calls cannot both win or lose an increment.
func (s *OrderService) VerifyOTP(ctx context.Context, orderID uint, submitted string, actor Actor) (*VerifyResult, error) {
	code := strings.TrimSpace(submitted)
	if !isOTPFormat(code) {
		return nil, apperr.Validation("OTP must be numeric and at most %d digits", otpMaxLength)
	}

	var result *VerifyResult
	var order *models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		order, err = lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if err := authorizeOrderWork(order, actor); err != nil {
			return err
		}

		now := s.now()
		if result = s.precheck(order, now); result != nil {
			return nil
		}

		if code != *order.OTP {
			result, err = s.recordFailedAttempt(tx, order, now)
			return err
		}

		if err := statemachine.CanTransition(order.Status, models.StatusDelivered, actor.Role); err != nil {
			return err
		}
		res := tx.Model(&models.Order{}).
			Where("id = ? AND otp = ? AND otp_attempts < ? AND status = ?",
				order.ID, code, s.policy.MaxAttempts, models.StatusOutForDelivery).
			Updates(map[string]any{
				"otp":          nil,
				"otp_expiry":   nil,
				"status":       models.StatusDelivered,
				"delivered_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("complete delivery: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			result, err = s.reclassify(tx, order.ID, now)
			return err
		}
		result = &VerifyResult{Success: true, Message: "OTP verified, order delivered", RemainingAttempts: s.remaining(order.OTPAttempts)}
		return recordTransition(tx, order.ID, order.Status, models.StatusDelivered, actor.UserID, "Delivered after OTP verification")
	})
	if err != nil {
		return nil, err
	}

	entry := s.log.WithFields(logrus.Fields{"order_id": orderID, "actor": actor.UserID})
	if !result.Success {
		entry.WithFields(logrus.Fields{
			"reason":    result.Reason,
			"remaining": result.RemainingAttempts,
		}).Warn("delivery OTP rejected")
		return result, nil
	}

	entry.Info("delivery OTP verified, order delivered")
	s.notifier.SendDelivered(ctx, order.Phone, order.ID)
	if result.Order, err = s.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	return result, nil
}

// precheck returns the failure for an order whose code cannot be checked at all, or nil
func (s *OrderService) precheck(order *models.Order, now time.Time) *VerifyResult {
	switch {
	case !order.HasActiveOTP():
		return failed(ReasonNoActiveOTP, 0)
	case order.OTPAttempts >= s.policy.MaxAttempts:
		return failed(ReasonMaxAttempts, 0)
	case order.OTPExpiry == nil || !now.Before(*order.OTPExpiry):
		return failed(ReasonExpired, s.remaining(order.OTPAttempts))
	}
	return nil
}

func (s *OrderService) remaining(attempts int) int {
	return s.policy.MaxAttempts - attempts
}

// recordFailedAttempt bumps the counter only while the same code is active and under budget
func (s *OrderService) recordFailedAttempt(tx *gorm.DB, order *models.Order, now time.Time) (*VerifyResult, error) {
	res := tx.Model(&models.Order{}).
		Where("id = ? AND otp = ? AND otp_attempts < ?", order.ID, *order.OTP, s.policy.MaxAttempts).
		UpdateColumn("otp_attempts", gorm.Expr("otp_attempts + ?", 1))
	if res.Error != nil {
		return nil, fmt.Errorf("record otp attempt: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return s.reclassify(tx, order.ID, now)
	}

	var attempts int
	if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).Select("otp_attempts").Scan(&attempts).Error; err != nil {
		return nil, fmt.Errorf("read otp attempts: %w", err)
	}
	return failed(ReasonInvalidOTP, s.remaining(attempts)), nil
}

// reclassify re-reads an order whose conditional update matched nothing because another call got there first
func (s *OrderService) reclassify(tx *gorm.DB, orderID uint, now time.Time) (*VerifyResult, error) {
	var fresh models.Order
	if err := tx.First(&fresh, orderID).Error; err != nil {
		return nil, notFoundOr(err, "Order")
	}
	if r := s.precheck(&fresh, now); r != nil {
		return r, nil
	}
	return failed(ReasonNoActiveOTP, 0), nil
}
