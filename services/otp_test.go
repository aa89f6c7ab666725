package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bite-me-buddy/apperr"
	"bite-me-buddy/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedCode(code string) func() (string, error) {
	return func() (string, error) { return code, nil }
}

func TestGenerateOTPCodeRange(t *testing.T) {
	for i := 0; i < 200; i++ {
		code, err := generateOTPCode()
		require.NoError(t, err)
		require.Len(t, code, 4)
		assert.GreaterOrEqual(t, code, "1000")
		assert.LessOrEqual(t, code, "9999")
	}
}

func TestGenerateOTPRequiresOutForDelivery(t *testing.T) {
	db := newTestDB(t)
	s, _ := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)
	order := f.placeOrder(t, s)

	_, err := s.GenerateOTP(context.Background(), order.ID, f.adminActor())
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Nil(t, reloadOrder(t, db, order.ID).OTP)

	_, err = s.GenerateOTP(context.Background(), 9999, f.adminActor())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestGenerateOTPStoresCodeAndTextsCustomer(t *testing.T) {
	db := newTestDB(t)
	s, rec := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)
	order := f.outForDelivery(t, s)

	base := time.Date(2026, 3, 10, 6, 30, 0, 0, time.UTC)
	s.now = func() time.Time { return base }
	s.newCode = fixedCode("4821")

	issue, err := s.GenerateOTP(context.Background(), order.ID, f.memberActor())
	require.NoError(t, err)
	assert.Equal(t, "4821", issue.Code)
	assert.True(t, issue.ExpiresAt.Equal(base.Add(5*time.Minute)))
	assert.True(t, issue.SMSSent)

	got := reloadOrder(t, db, order.ID)
	require.NotNil(t, got.OTP)
	assert.Equal(t, "4821", *got.OTP)
	assert.Zero(t, got.OTPAttempts)

	msgs := rec.messages()
	assert.Contains(t, msgs[len(msgs)-1], "OTP: 4821")
	assert.Contains(t, msgs[len(msgs)-1], "Valid for 5 minutes")
}

func TestGenerateOTPSurvivesSMSFailure(t *testing.T) {
	db := newTestDB(t)
	s, rec := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)
	order := f.outForDelivery(t, s)
	rec.err = errors.New("provider down")

	issue, err := s.GenerateOTP(context.Background(), order.ID, f.memberActor())
	require.NoError(t, err)
	assert.False(t, issue.SMSSent)
	stored := reloadOrder(t, db, order.ID)
	assert.True(t, stored.HasActiveOTP())
}

func TestGenerateOTPForbiddenForOtherTeamMember(t *testing.T) {
	db := newTestDB(t)
	s, _ := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)
	other := seedUser(t, db, "tina", models.RoleTeamMember)
	order := f.outForDelivery(t, s)

	_, err := s.GenerateOTP(context.Background(), order.ID, Actor{UserID: other.ID, Role: models.RoleTeamMember})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
	_, err = s.VerifyOTP(context.Background(), order.ID, "1234", Actor{UserID: other.ID, Role: models.RoleTeamMember})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))
}

func TestVerifyOTPDeliversAndConsumesCode(t *testing.T) {
	db := newTestDB(t)
	s, rec := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)
	ctx := context.Background()
	order := f.outForDelivery(t, s)
	s.newCode = fixedCode("4821")

	_, err := s.GenerateOTP(ctx, order.ID, f.memberActor())
	require.NoError(t, err)

	res, err := s.VerifyOTP(ctx, order.ID, " 4821 ", f.memberActor())
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.NotNil(t, res.Order)
	assert.Equal(t, models.StatusDelivered, res.Order.Status)
	assert.NotNil(t, res.Order.DeliveredAt)

	got := reloadOrder(t, db, order.ID)
	assert.Nil(t, got.OTP)
	assert.Nil(t, got.OTPExpiry)
	last := res.Order.StatusHistory[len(res.Order.StatusHistory)-1]
	assert.Equal(t, models.StatusDelivered, last.ToStatus)

	msgs := rec.messages()
	assert.Contains(t, msgs[len(msgs)-1], "has been delivered")

	again, err := s.VerifyOTP(ctx, order.ID, "4821", f.memberActor())
	require.NoError(t, err)
	assert.False(t, again.Success)
	assert.Equal(t, ReasonNoActiveOTP, again.Reason)
}

func TestVerifyOTPExhaustsAttempts(t *testing.T) {
	db := newTestDB(t)
	s, _ := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)
	ctx := context.Background()
	order := f.outForDelivery(t, s)
	s.newCode = fixedCode("4821")

	_, err := s.GenerateOTP(ctx, order.ID, f.memberActor())
	require.NoError(t, err)

	for want := 2; want >= 0; want-- {
		res, err := s.VerifyOTP(ctx, order.ID, "4820", f.memberActor())
		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Equal(t, ReasonInvalidOTP, res.Reason)
		assert.Equal(t, want, res.RemainingAttempts)
	}

	res, err := s.VerifyOTP(ctx, order.ID, "4821", f.memberActor())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonMaxAttempts, res.Reason)
	assert.Equal(t, 3, reloadOrder(t, db, order.ID).OTPAttempts)
	assert.Equal(t, models.StatusOutForDelivery, reloadOrder(t, db, order.ID).Status)

	// a fresh cycle resets the budget
	_, err = s.GenerateOTP(ctx, order.ID, f.memberActor())
	require.NoError(t, err)
	assert.Zero(t, reloadOrder(t, db, order.ID).OTPAttempts)
	res, err = s.VerifyOTP(ctx, order.ID, "4821", f.memberActor())
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestVerifyOTPExpiredCodeKeepsOrderOpen(t *testing.T) {
	db := newTestDB(t)
	s, _ := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)
	ctx := context.Background()
	order := f.outForDelivery(t, s)

	base := time.Now().UTC().Truncate(time.Second)
	s.now = func() time.Time { return base }
	s.newCode = fixedCode("4821")
	_, err := s.GenerateOTP(ctx, order.ID, f.memberActor())
	require.NoError(t, err)

	s.now = func() time.Time { return base.Add(6 * time.Minute) }
	res, err := s.VerifyOTP(ctx, order.ID, "4821", f.memberActor())
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonExpired, res.Reason)
	assert.Equal(t, 3, res.RemainingAttempts)

	got := reloadOrder(t, db, order.ID)
	assert.Equal(t, models.StatusOutForDelivery, got.Status)
	assert.Zero(t, got.OTPAttempts, "expiry does not consume an attempt")
}

func TestVerifyOTPRejectsMalformedInputWithoutConsumingAttempt(t *testing.T) {
	db := newTestDB(t)
	s, _ := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)
	ctx := context.Background()
	order := f.outForDelivery(t, s)
	_, err := s.GenerateOTP(ctx, order.ID, f.memberActor())
	require.NoError(t, err)

	for _, bad := range []string{"", "   ", "12ab", "1234567"} {
		_, err := s.VerifyOTP(ctx, order.ID, bad, f.memberActor())
		assert.True(t, apperr.Is(err, apperr.KindValidation), "input %q", bad)
	}
	assert.Zero(t, reloadOrder(t, db, order.ID).OTPAttempts)
}

func TestVerifyOTPWithoutActiveCode(t *testing.T) {
	db := newTestDB(t)
	s, _ := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)
	ctx := context.Background()
	order := f.outForDelivery(t, s)

	res, err := s.VerifyOTP(ctx, order.ID, "4821", f.memberActor())
	require.NoError(t, err)
	assert.Equal(t, ReasonNoActiveOTP, res.Reason)

	_, err = s.VerifyOTP(ctx, 9999, "4821", f.adminActor())
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestConcurrentWrongCodesCountOnce(t *testing.T) {
	db := newTestDB(t)
	s, _ := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)
	ctx := context.Background()
	order := f.outForDelivery(t, s)
	s.newCode = fixedCode("4821")
	_, err := s.GenerateOTP(ctx, order.ID, f.memberActor())
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Order{}).Where("id = ?", order.ID).Update("otp_attempts", 2).Error)

	const callers = 6
	results := make([]*VerifyResult, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := s.VerifyOTP(ctx, order.ID, "4820", f.memberActor())
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	invalid := 0
	for _, res := range results {
		require.NotNil(t, res)
		assert.False(t, res.Success)
		assert.Equal(t, 0, res.RemainingAttempts)
		if res.Reason == ReasonInvalidOTP {
			invalid++
		} else {
			assert.Equal(t, ReasonMaxAttempts, res.Reason)
		}
	}
	assert.Equal(t, 1, invalid)
	assert.Equal(t, 3, reloadOrder(t, db, order.ID).OTPAttempts)
}

func TestConcurrentCorrectCodesHaveOneWinner(t *testing.T) {
	db := newTestDB(t)
	s, _ := newTestOrderService(t, db)
	f := seedOrderFixture(t, db)
	ctx := context.Background()
	order := f.outForDelivery(t, s)
	s.newCode = fixedCode("4821")
	_, err := s.GenerateOTP(ctx, order.ID, f.memberActor())
	require.NoError(t, err)

	const callers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.VerifyOTP(ctx, order.ID, "4821", f.memberActor())
			if !assert.NoError(t, err) {
				return
			}
			if res.Success {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.Equal(t, ReasonNoActiveOTP, res.Reason)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	var delivered int64
	db.Model(&models.OrderStatusHistory{}).
		Where("order_id = ? AND to_status = ?", order.ID, models.StatusDelivered).
		Count(&delivered)
	assert.Equal(t, int64(1), delivered)
}
