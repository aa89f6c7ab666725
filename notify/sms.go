// Package notify sends best-effort SMS messages to customers and team members.
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// Sender delivers one text message. Implementations must honour ctx cancellation.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// messageCreator is the part of the Twilio messages API the sender needs
type messageCreator interface {
	CreateMessage(params *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error)
}

// TwilioSender sends messages through the Twilio REST API
type TwilioSender struct {
	from string
	api  messageCreator
}

func NewTwilioSender(sid, token, from string) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: sid,
		Password: token,
	})
	return &TwilioSender{from: from, api: client.Api}
}

// Send returns when Twilio answers or ctx ends, whichever comes first.
// The SDK call itself is bounded by the client's own HTTP timeout.
func (s *TwilioSender) Send(ctx context.Context, to, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	done := make(chan error, 1)
	go func() {
		_, err := s.api.CreateMessage(params)
		done <- err
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("twilio create message: %w", err)
		}
		return nil
	}
}

// LogSender only logs; used when no SMS provider is configured.
// Bodies carry delivery codes, so they are written at debug level only.
type LogSender struct {
	Log logrus.FieldLogger
}

func (s LogSender) Send(_ context.Context, to, body string) error {
	entry := s.Log.WithField("to", to)
	entry.Info("SMS provider not configured, message not sent")
	entry.WithField("body", body).Debug("unsent SMS body")
	return nil
}

// Notifier formats application messages and dispatches them with a time bound.
// Every method reports success but never returns an error: delivery is best effort.
type Notifier struct {
	sender      Sender
	timeout     time.Duration
	countryCode string
	appName     string
	log         logrus.FieldLogger
}

func NewNotifier(sender Sender, timeout time.Duration, countryCode, appName string, log logrus.FieldLogger) *Notifier {
	return &Notifier{
		sender:      sender,
		timeout:     timeout,
		countryCode: countryCode,
		appName:     appName,
		log:         log.WithField("component", "notify"),
	}
}

// NormalizePhone prefixes numbers lacking a country code, dropping a leading trunk zero
func NormalizePhone(phone, countryCode string) string {
	phone = strings.TrimSpace(phone)
	if phone == "" || strings.HasPrefix(phone, "+") {
		return phone
	}
	return countryCode + strings.TrimPrefix(phone, "0")
}

// SendSMS delivers body to phone; failures are logged and reported as false
func (n *Notifier) SendSMS(ctx context.Context, phone, body string) bool {
	to := NormalizePhone(phone, n.countryCode)
	if to == "" {
		n.log.Warn("no phone number, SMS skipped")
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	if err := n.sender.Send(ctx, to, body); err != nil {
		n.log.WithFields(logrus.Fields{"to": to, "error": err.Error()}).Error("SMS send failed")
		return false
	}
	n.log.WithField("to", to).Info("SMS sent")
	return true
}

func (n *Notifier) SendOTP(ctx context.Context, phone, otp string, orderID uint, validFor time.Duration) bool {
	body := fmt.Sprintf("Your %s order #%d is out for delivery. OTP: %s. Valid for %d minutes.",
		n.appName, orderID, otp, int(validFor.Minutes()))
	return n.SendSMS(ctx, phone, body)
}

func (n *Notifier) SendAssignment(ctx context.Context, phone string, orderID uint) bool {
	body := fmt.Sprintf("New order #%d has been assigned to you. Please check your dashboard for details.", orderID)
	return n.SendSMS(ctx, phone, body)
}

func (n *Notifier) SendDelivered(ctx context.Context, phone string, orderID uint) bool {
	body := fmt.Sprintf("Your %s order #%d has been delivered. Thank you for ordering with us!", n.appName, orderID)
	return n.SendSMS(ctx, phone, body)
}
