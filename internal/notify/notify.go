// Package notify tells staff about new consultation requests.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/example/bannerdesk/internal/store"
)

// Nop discards every notification.
type Nop struct{}

func (Nop) NewLead(context.Context, store.Customer) error { return nil }

type MailerConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromName  string
	FromEmail string
	To        string
	Location  *time.Location
}

// Mailer sends one plain-text mail per lead over authenticated SMTP.
type Mailer struct {
	cfg  MailerConfig
	send func(ctx context.Context, m *mail.Msg) error
}

func NewMailer(cfg MailerConfig) (*Mailer, error) {
	if cfg.Host == "" || cfg.To == "" || cfg.FromEmail == "" {
		return nil, fmt.Errorf("smtp host, sender and recipient are required")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	m := &Mailer{cfg: cfg}
	m.send = m.dialAndSend
	return m, nil
}

func (m *Mailer) NewLead(ctx context.Context, c store.Customer) error {
	msg, err := m.message(c)
	if err != nil {
		return err
	}
	return m.send(ctx, msg)
}

func (m *Mailer) message(c store.Customer) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(fmt.Sprintf("%s <%s>", m.cfg.FromName, m.cfg.FromEmail)); err != nil {
		return nil, fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(m.cfg.To); err != nil {
		return nil, fmt.Errorf("set recipient: %w", err)
	}
	msg.Subject(fmt.Sprintf("새 상담 신청: %s", c.Name))
	msg.SetBodyString(mail.TypeTextPlain, LeadBody(c, m.cfg.Location))
	return msg, nil
}

func (m *Mailer) dialAndSend(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(m.cfg.Host,
		mail.WithPort(m.cfg.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(m.cfg.Username),
		mail.WithPassword(m.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTLSConfig(&tls.Config{ServerName: m.cfg.Host}),
	)
	if err != nil {
		return fmt.Errorf("create smtp client (host=%s port=%d): %w", m.cfg.Host, m.cfg.Port, err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send lead mail (host=%s port=%d): %w", m.cfg.Host, m.cfg.Port, err)
	}
	return nil
}

// LeadBody renders the lead as the plain-text body of a notification mail.
func LeadBody(c store.Customer, loc *time.Location) string {
	var b strings.Builder
	line := func(label, value string) {
		if value == "" {
			value = "미선택"
		}
		fmt.Fprintf(&b, "%s: %s\n", label, value)
	}
	line("이름", c.Name)
	line("전화번호", c.Phone)
	line("이메일", c.Email)
	line("휴대폰기종", c.PhoneOption)
	line("통신사옵션", c.CarrierOption)
	line("개인정보동의", consent(c.PrivacyConsent))
	line("마케팅동의", consent(c.MarketingConsent))
	line("신청일시", c.CreatedAt.In(loc).Format("2006-01-02 15:04:05"))
	return b.String()
}

func consent(v bool) string {
	if v {
		return "동의"
	}
	return "미동의"
}
