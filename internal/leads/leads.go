package leads

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/example/bannerdesk/internal/feed"
	"github.com/example/bannerdesk/internal/store"
)

// NotifyTimeout bounds one lead notification.
const NotifyTimeout = 30 * time.Second

type Store interface {
	InsertCustomer(ctx context.Context, in store.CustomerCreate) (*store.Customer, error)
	ListCustomers(ctx context.Context) ([]store.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
}

// Notifier is told about every stored lead.
type Notifier interface {
	NewLead(ctx context.Context, c store.Customer) error
}

// Submission is a consultation request as sent by the landing page. Content
// is stored as given apart from whitespace normalization.
type Submission struct {
	Name             string `json:"name"`
	Phone            string `json:"phone"`
	Email            string `json:"email"`
	PhoneOption      string `json:"phoneOption"`
	CarrierOption    string `json:"carrierOption"`
	PrivacyConsent   bool   `json:"privacyConsent"`
	MarketingConsent bool   `json:"marketingConsent"`
}

type Service struct {
	store    Store
	notifier Notifier
	feed     *feed.Broker[store.Customer]
	logger   *slog.Logger
	timeout  time.Duration

	pending sync.WaitGroup
}

func NewService(st Store, notifier Notifier, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{store: st, notifier: notifier, logger: logger, timeout: NotifyTimeout}
	s.feed = feed.New(s.List, logger)
	return s
}

func (s *Service) Feed() *feed.Broker[store.Customer] {
	return s.feed
}

func (s *Service) Subscribe(fn func([]store.Customer)) (unsubscribe func()) {
	return s.feed.Subscribe(fn)
}

func (s *Service) Submit(ctx context.Context, sub Submission) (*store.Customer, error) {
	c, err := s.store.InsertCustomer(ctx, store.CustomerCreate{
		Name:             sub.Name,
		Phone:            sub.Phone,
		Email:            sub.Email,
		PhoneOption:      sub.PhoneOption,
		CarrierOption:    sub.CarrierOption,
		PrivacyConsent:   sub.PrivacyConsent,
		MarketingConsent: sub.MarketingConsent,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("lead stored", "id", c.ID, "marketing_consent", c.MarketingConsent)

	if s.notifier != nil {
		s.pending.Add(1)
		go s.sendNotification(context.WithoutCancel(ctx), *c)
	}
	s.notify(ctx)
	return c, nil
}

func (s *Service) sendNotification(ctx context.Context, c store.Customer) {
	defer s.pending.Done()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.notifier.NewLead(ctx, c); err != nil {
		s.logger.Error("lead notification failed", "id", c.ID, "err", err)
	}
}

// Wait blocks until every lead notification already started has finished.
func (s *Service) Wait() {
	s.pending.Wait()
}

// List returns every lead, newest first. A missing table reads as no leads.
func (s *Service) List(ctx context.Context) ([]store.Customer, error) {
	customers, err := s.store.ListCustomers(ctx)
	if errors.Is(err, store.ErrMissingTable) {
		s.logger.Warn("customer table missing, serving empty list", "err", err)
		return []store.Customer{}, nil
	}
	return customers, err
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.DeleteCustomer(ctx, id); err != nil {
		return err
	}
	s.notify(ctx)
	return nil
}

func (s *Service) notify(ctx context.Context) {
	if err := s.feed.Notify(context.WithoutCancel(ctx)); err != nil {
		s.logger.Error("customer notify failed", "err", err)
	}
}
