package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sapliy/staff-notify/internal/directory"
	"go.uber.org/zap"
)

// Directory supplies the staff list used to resolve recipients.
type Directory interface {
	List(ctx context.Context) []directory.Employee
}

// ServiceConfig wires the service's collaborators. Directory and Events may
// be nil.
type ServiceConfig struct {
	Store      Store
	Directory  Directory
	Dispatcher Dispatcher
	Events     EventPublisher
	Logger     *zap.Logger
	// PortalURL is the base URL of the staff portal, used for acknowledgement
	// links in emails.
	PortalURL string
}

// Service handles the business logic for sending notifications and
// recording acknowledgements.
type Service struct {
	store      Store
	directory  Directory
	dispatcher Dispatcher
	events     EventPublisher
	logger     *zap.Logger
	portalURL  string
	now        func() time.Time
}

func NewService(cfg ServiceConfig) *Service {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Service{
		store:      cfg.Store,
		directory:  cfg.Directory,
		dispatcher: cfg.Dispatcher,
		events:     cfg.Events,
		logger:     cfg.Logger,
		portalURL:  strings.TrimRight(cfg.PortalURL, "/"),
		now:        time.Now,
	}
}

// Send persists n and delivers it, unless it is scheduled for later, in which
// case it stays pending until the scheduler picks it up.
func (s *Service) Send(ctx context.Context, n *Notification) (*Notification, error) {
	now := s.now().UTC()
	n.Status = StatusPending
	n.SentAt = time.Time{}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	// A time that has already passed means send now; storing it would also
	// make the row due for the scheduler while it is delivered inline.
	if n.ScheduledFor != nil && !n.ScheduledFor.After(now) {
		n.ScheduledFor = nil
	}

	if err := s.store.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("saving notification: %w", err)
	}

	if n.ScheduledFor != nil && n.ScheduledFor.After(now) {
		s.logger.Info("notification scheduled",
			zap.String("notification_id", n.ID),
			zap.Time("scheduled_for", *n.ScheduledFor),
		)
		s.publish(ctx, n.ID, EventNotificationScheduled, s.dispatchData(n, 0))
		return n, nil
	}

	if err := s.Deliver(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

// Deliver resolves the recipients of a stored notification, dispatches it and
// records the outcome. The notification is sent when at least one delivery
// was accepted.
func (s *Service) Deliver(ctx context.Context, n *Notification) error {
	employees := s.resolve(ctx, n)

	deliveries, skipped, err := BuildDeliveries(n, employees, s.ackURL(n))
	if err != nil {
		return err
	}
	if len(skipped) > 0 {
		s.logger.Warn("recipients without address for channel",
			zap.String("notification_id", n.ID),
			zap.Strings("skipped", skipped),
		)
	}

	accepted := 0
	var dispatchErr error
	if len(deliveries) > 0 {
		accepted, dispatchErr = s.dispatcher.Dispatch(ctx, deliveries)
	}

	n.SentAt = s.now().UTC()
	n.Status = StatusSent
	eventType := EventNotificationSent
	if accepted == 0 {
		n.Status = StatusFailed
		eventType = EventNotificationFailed
	}
	notificationsTotal.WithLabelValues(string(n.Status)).Inc()

	if err := s.store.UpdateStatus(ctx, n.ID, n.Status, n.SentAt); err != nil {
		return fmt.Errorf("updating status of %s: %w", n.ID, err)
	}

	fields := []zap.Field{
		zap.String("notification_id", n.ID),
		zap.String("status", string(n.Status)),
		zap.Int("deliveries", len(deliveries)),
		zap.Int("accepted", accepted),
	}
	if dispatchErr != nil {
		s.logger.Warn("notification dispatched with errors", append(fields, zap.Error(dispatchErr))...)
	} else {
		s.logger.Info("notification dispatched", fields...)
	}

	s.publish(ctx, n.ID, eventType, s.dispatchData(n, accepted))
	return nil
}

func (s *Service) resolve(ctx context.Context, n *Notification) []directory.Employee {
	if s.directory == nil {
		employees := make([]directory.Employee, 0, len(n.Recipients))
		for _, name := range n.Recipients {
			employees = append(employees, directory.Employee{Name: name})
		}
		return employees
	}

	found, missing := directory.Resolve(s.directory.List(ctx), n.Recipients)
	if len(missing) > 0 {
		s.logger.Warn("recipients not found in directory",
			zap.String("notification_id", n.ID),
			zap.Strings("missing", missing),
		)
		// Portal delivery only needs the name.
		for _, name := range missing {
			found = append(found, directory.Employee{Name: name})
		}
	}
	return found
}

func (s *Service) ackURL(n *Notification) string {
	if !n.RequiresAcknowledgement || s.portalURL == "" {
		return ""
	}
	return s.portalURL + "/notifications/" + n.ID
}

// Acknowledge records a recipient's response. A repeated response from the
// same recipient replaces the earlier one.
func (s *Service) Acknowledge(ctx context.Context, id string, resp AcknowledgementResponse) (*Notification, error) {
	n, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !n.RequiresAcknowledgement {
		return nil, ErrAcknowledgementNotRequired
	}
	if !n.HasRecipient(resp.Recipient) {
		return nil, ErrUnknownRecipient
	}
	if !n.AcknowledgementSettings.HasOption(resp.Option) {
		return nil, ErrInvalidOption
	}
	if resp.Comment != "" && (n.AcknowledgementSettings == nil || !n.AcknowledgementSettings.AllowComments) {
		return nil, ErrCommentsDisabled
	}
	if resp.RespondedAt.IsZero() {
		resp.RespondedAt = s.now().UTC()
	}

	if err := s.store.SaveResponse(ctx, id, resp); err != nil {
		return nil, fmt.Errorf("saving response: %w", err)
	}
	n.Responses = upsertResponse(n.Responses, resp)

	acknowledgementsTotal.WithLabelValues(resp.Option).Inc()
	s.logger.Info("acknowledgement recorded",
		zap.String("notification_id", id),
		zap.String("recipient", resp.Recipient),
		zap.String("option", resp.Option),
	)
	s.publish(ctx, id, EventAcknowledgement, AcknowledgementEventData{
		NotificationID: id,
		Recipient:      resp.Recipient,
		Option:         resp.Option,
		RespondedAt:    resp.RespondedAt,
	})
	return n, nil
}

// History returns stored notifications matching c, most recent first.
func (s *Service) History(ctx context.Context, c Criteria) ([]Notification, error) {
	timer := prometheus.NewTimer(historyFilterDuration)
	defer timer.ObserveDuration()

	items, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	return Filter(items, c, s.now()), nil
}

// Get returns a single notification.
func (s *Service) Get(ctx context.Context, id string) (*Notification, error) {
	return s.store.GetByID(ctx, id)
}

// claimLease is how long a claimed notification is withheld from other
// schedulers; a claim left by a crashed process is retried after it.
const claimLease = 10 * time.Minute

// DeliverDue claims every pending notification whose scheduled time has
// passed, delivers it and returns how many were processed. Concurrent callers
// never deliver the same notification twice.
func (s *Service) DeliverDue(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.store.ClaimDue(ctx, now, now.Add(claimLease))
	if err != nil {
		return 0, fmt.Errorf("claiming due notifications: %w", err)
	}

	var errs []error
	for i := range due {
		if err := s.Deliver(ctx, &due[i]); err != nil {
			s.logger.Error("scheduled delivery failed", zap.String("notification_id", due[i].ID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return len(due), errors.Join(errs...)
}

func (s *Service) dispatchData(n *Notification, delivered int) DispatchEventData {
	return DispatchEventData{
		NotificationID: n.ID,
		Title:          n.Title,
		Channels:       n.Channels,
		Recipients:     len(n.Recipients),
		Delivered:      delivered,
		Status:         n.Status,
	}
}

func (s *Service) publish(ctx context.Context, key string, eventType EventType, data any) {
	if s.events == nil {
		return
	}
	evt, err := NewEvent(eventType, data)
	if err != nil {
		s.logger.Error("failed to build event", zap.String("type", string(eventType)), zap.Error(err))
		return
	}
	body, err := evt.Marshal()
	if err != nil {
		s.logger.Error("failed to encode event", zap.String("type", string(eventType)), zap.Error(err))
		return
	}
	if err := s.events.Publish(ctx, key, body); err != nil {
		s.logger.Warn("failed to publish event", zap.String("type", string(eventType)), zap.Error(err))
	}
}

func upsertResponse(responses []AcknowledgementResponse, resp AcknowledgementResponse) []AcknowledgementResponse {
	for i := range responses {
		if responses[i].Recipient == resp.Recipient {
			responses[i] = resp
			return responses
		}
	}
	return append(responses, resp)
}
