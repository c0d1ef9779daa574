package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sapliy/staff-notify/internal/portal"
	"go.uber.org/zap"
)

// Delivery is one notification addressed to one recipient over one channel.
type Delivery struct {
	NotificationID string  `json:"notification_id"`
	Channel        Channel `json:"channel"`
	Recipient      string  `json:"recipient"`
	Address        string  `json:"address"`
	Subject        string  `json:"subject"`
	Body           string  `json:"body"`
}

// Driver defines the interface for sending notifications via different channels.
type Driver interface {
	Send(ctx context.Context, d Delivery) error
	Channel() Channel
}

// EmailDriver sends HTML email through Resend.
type EmailDriver struct {
	svc    *EmailService
	logger *zap.Logger
}

func NewEmailDriver(svc *EmailService, logger *zap.Logger) *EmailDriver {
	return &EmailDriver{svc: svc, logger: logger}
}

func (d *EmailDriver) Channel() Channel {
	return Email
}

func (d *EmailDriver) Send(ctx context.Context, del Delivery) error {
	id, err := d.svc.SendEmail(ctx, del.Address, del.Subject, del.Body)
	if err != nil {
		return err
	}
	d.logger.Info("email sent",
		zap.String("notification_id", del.NotificationID),
		zap.String("recipient", del.Recipient),
		zap.String("message_id", id),
	)
	return nil
}

// SMSDriver logs the message instead of calling an SMS provider.
type SMSDriver struct {
	logger *zap.Logger
}

func NewSMSDriver(logger *zap.Logger) *SMSDriver {
	return &SMSDriver{logger: logger}
}

func (d *SMSDriver) Channel() Channel {
	return SMS
}

func (d *SMSDriver) Send(ctx context.Context, del Delivery) error {
	d.logger.Info("sms sent",
		zap.String("notification_id", del.NotificationID),
		zap.String("recipient", del.Recipient),
		zap.String("to", del.Address),
		zap.String("body", del.Body),
	)
	return nil
}

// PortalMessage is the payload pushed to connected portal clients.
type PortalMessage struct {
	NotificationID string    `json:"notification_id"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	SentAt         time.Time `json:"sent_at"`
}

// PortalPublisher is satisfied by *redis.Client.
type PortalPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// PortalDriver publishes in-app messages to the recipient's Redis channel.
type PortalDriver struct {
	redis PortalPublisher
	now   func() time.Time
}

func NewPortalDriver(rdb PortalPublisher) *PortalDriver {
	return &PortalDriver{redis: rdb, now: time.Now}
}

func (d *PortalDriver) Channel() Channel {
	return Portal
}

func (d *PortalDriver) Send(ctx context.Context, del Delivery) error {
	payload, err := json.Marshal(PortalMessage{
		NotificationID: del.NotificationID,
		Title:          del.Subject,
		Body:           del.Body,
		SentAt:         d.now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := d.redis.Publish(ctx, portal.ChannelName(del.Address), payload).Err(); err != nil {
		return fmt.Errorf("publishing portal message: %w", err)
	}
	return nil
}

// NewRegistry registers the SMS driver plus the email and portal drivers
// whose backends are configured. email and portal may be nil.
func NewRegistry(email *EmailService, portal PortalPublisher, logger *zap.Logger) *DriverRegistry {
	r := NewDriverRegistry()
	r.Register(NewSMSDriver(logger))
	if email != nil {
		r.Register(NewEmailDriver(email, logger))
	}
	if portal != nil {
		r.Register(NewPortalDriver(portal))
	}
	return r
}

// DriverRegistry holds all available notification drivers.
type DriverRegistry struct {
	drivers map[Channel]Driver
}

func NewDriverRegistry() *DriverRegistry {
	return &DriverRegistry{
		drivers: make(map[Channel]Driver),
	}
}

func (r *DriverRegistry) Register(driver Driver) {
	r.drivers[driver.Channel()] = driver
}

func (r *DriverRegistry) Get(channel Channel) (Driver, error) {
	driver, ok := r.drivers[channel]
	if !ok {
		return nil, fmt.Errorf("no driver registered for channel: %s", channel)
	}
	return driver, nil
}
