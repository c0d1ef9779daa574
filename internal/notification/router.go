package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sapliy/staff-notify/internal/directory"
	"go.uber.org/zap"
)

const defaultMaxRetries = 3

// NotificationTask represents a task to be processed by workers
type NotificationTask struct {
	ID         string   `json:"id"`
	Delivery   Delivery `json:"delivery"`
	RetryCount int      `json:"retry_count"`
	MaxRetries int      `json:"max_retries"`
}

// QueueFor returns the RabbitMQ queue serving channel c.
func QueueFor(c Channel) string {
	return string(c) + ".notifications"
}

// Dispatcher hands deliveries to a transport and reports how many were
// accepted.
type Dispatcher interface {
	Dispatch(ctx context.Context, deliveries []Delivery) (int, error)
}

// RabbitPublisher interface for RabbitMQ publishing
type RabbitPublisher interface {
	Publish(ctx context.Context, queue string, body []byte) error
}

// Router publishes one task per delivery to the channel queues.
type Router struct {
	rabbitClient RabbitPublisher
	logger       *zap.Logger
}

// NewRouter creates a new delivery router
func NewRouter(rabbitClient RabbitPublisher, logger *zap.Logger) *Router {
	return &Router{
		rabbitClient: rabbitClient,
		logger:       logger,
	}
}

func (r *Router) Dispatch(ctx context.Context, deliveries []Delivery) (int, error) {
	accepted := 0
	var errs []error
	for _, d := range deliveries {
		task := &NotificationTask{
			ID:         taskID(d),
			Delivery:   d,
			MaxRetries: defaultMaxRetries,
		}
		if err := r.publishTask(ctx, QueueFor(d.Channel), task); err != nil {
			r.logger.Error("failed to route delivery",
				zap.String("queue", QueueFor(d.Channel)),
				zap.String("recipient", d.Recipient),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		accepted++
	}
	return accepted, errors.Join(errs...)
}

func (r *Router) publishTask(ctx context.Context, queue string, task *NotificationTask) error {
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return r.rabbitClient.Publish(ctx, queue, data)
}

// InlineDispatcher sends deliveries directly through the registered drivers.
// It is used when no broker is configured.
type InlineDispatcher struct {
	registry *DriverRegistry
	logger   *zap.Logger
}

func NewInlineDispatcher(registry *DriverRegistry, logger *zap.Logger) *InlineDispatcher {
	return &InlineDispatcher{registry: registry, logger: logger}
}

func (d *InlineDispatcher) Dispatch(ctx context.Context, deliveries []Delivery) (int, error) {
	accepted := 0
	var errs []error
	for _, del := range deliveries {
		driver, err := d.registry.Get(del.Channel)
		if err == nil {
			err = driver.Send(ctx, del)
		}
		recordDelivery(del.Channel, err)
		if err != nil {
			d.logger.Error("delivery failed",
				zap.String("channel", string(del.Channel)),
				zap.String("recipient", del.Recipient),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		accepted++
	}
	return accepted, errors.Join(errs...)
}

// BuildDeliveries expands n into one delivery per channel and resolved
// recipient. Recipients lacking an address for a channel are returned in
// skipped as "name (channel)".
func BuildDeliveries(n *Notification, employees []directory.Employee, ackURL string) ([]Delivery, []string, error) {
	var (
		deliveries []Delivery
		skipped    []string
	)
	for _, c := range n.Channels {
		subject, body, err := render(n, c, ackURL)
		if err != nil {
			return nil, nil, fmt.Errorf("rendering %s content: %w", c, err)
		}
		for _, e := range employees {
			addr := address(e, c)
			if addr == "" {
				skipped = append(skipped, fmt.Sprintf("%s (%s)", e.Name, c))
				continue
			}
			deliveries = append(deliveries, Delivery{
				NotificationID: n.ID,
				Channel:        c,
				Recipient:      e.Name,
				Address:        addr,
				Subject:        subject,
				Body:           body,
			})
		}
	}
	return deliveries, skipped, nil
}

func render(n *Notification, c Channel, ackURL string) (subject, body string, err error) {
	switch c {
	case Email:
		body, err = RenderEmail(n, ackURL)
		return n.ContentFor(Email).Subject, body, err
	default:
		body, err = RenderText(n, c)
		return n.Title, body, err
	}
}

func address(e directory.Employee, c Channel) string {
	switch c {
	case Email:
		return e.Email
	case SMS:
		return e.Mobile
	case Portal:
		return e.Name
	}
	return ""
}

func taskID(d Delivery) string {
	return fmt.Sprintf("task_%s_%s_%s", d.NotificationID, d.Channel, d.Address)
}
