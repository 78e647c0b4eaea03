package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"net/textproto"
	"strconv"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/unclebandit/campaign-dispatcher/internal/model"
)

// SMTPTransport submits mail to a submission server (STARTTLS on 587,
// implicit TLS on 465) authenticating as each account.
//
// Every account gets its own circuit breaker. Only connection-level failures
// count against it: a reply from the server, even a rejection, proves the
// path works.
type SMTPTransport struct {
	Host    string
	Port    int
	Timeout time.Duration

	logger   *slog.Logger
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	now      func() time.Time
}

func NewSMTPTransport(host string, port int, timeout time.Duration, logger *slog.Logger) *SMTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	return &SMTPTransport{
		Host:     host,
		Port:     port,
		Timeout:  timeout,
		logger:   logger.With("component", "smtp-transport"),
		breakers: map[string]*gobreaker.CircuitBreaker{},
		now:      time.Now,
	}
}

func (t *SMTPTransport) breaker(accountID string) *gobreaker.CircuitBreaker {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cb, ok := t.breakers[accountID]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "smtp-" + accountID,
		MaxRequests: 1,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var reply *textproto.Error
			return err == nil || errors.As(err, &reply)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			t.logger.Warn("SMTP circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	t.breakers[accountID] = cb
	return cb
}

func (t *SMTPTransport) Send(ctx context.Context, account model.Account, msg Message) (string, error) {
	if account.Email == "" || account.Secret == "" {
		return "", fmt.Errorf("Missing email/pass for account id=%s", account.ID)
	}
	data, messageID, err := buildMessage(account, msg, t.now())
	if err != nil {
		return "", err
	}

	_, err = t.breaker(account.ID).Execute(func() (interface{}, error) {
		return nil, t.session(ctx, account, func(c *smtp.Client) error {
			if err := c.Mail(account.Email); err != nil {
				return fmt.Errorf("MAIL FROM failed: %w", err)
			}
			if err := c.Rcpt(msg.To); err != nil {
				return fmt.Errorf("RCPT TO failed for %s: %w", msg.To, err)
			}
			w, err := c.Data()
			if err != nil {
				return fmt.Errorf("DATA command failed: %w", err)
			}
			if _, err := w.Write(data); err != nil {
				return fmt.Errorf("failed to write message data: %w", err)
			}
			if err := w.Close(); err != nil {
				return fmt.Errorf("message rejected: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return "", err
	}
	return messageID, nil
}

// Verify opens an authenticated session and quits without sending.
func (t *SMTPTransport) Verify(ctx context.Context, account model.Account) error {
	if account.Email == "" || account.Secret == "" {
		return fmt.Errorf("Missing email/pass for account id=%s", account.ID)
	}
	return t.session(ctx, account, func(*smtp.Client) error { return nil })
}

// session dials, secures and authenticates, runs fn, then quits.
func (t *SMTPTransport) session(ctx context.Context, account model.Account, fn func(*smtp.Client) error) error {
	addr := net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
	dialer := &net.Dialer{Timeout: t.Timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if t.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(t.Timeout))
	}

	tlsConfig := &tls.Config{ServerName: t.Host}
	if t.Port == 465 {
		conn = tls.Client(conn, tlsConfig)
	}

	c, err := smtp.NewClient(conn, t.Host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer func() { _ = c.Close() }()

	if t.Port != 465 {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("STARTTLS failed: %w", err)
			}
		}
	}

	if ok, _ := c.Extension("AUTH"); ok {
		if err := c.Auth(smtp.PlainAuth("", account.Email, account.Secret, t.Host)); err != nil {
			return fmt.Errorf("authentication failed: %w", err)
		}
	}

	if err := fn(c); err != nil {
		return err
	}
	if err := c.Quit(); err != nil {
		t.logger.Debug("QUIT failed", "account", account.ID, "error", err)
	}
	return nil
}

var (
	_ Transport = (*SMTPTransport)(nil)
	_ Verifier  = (*SMTPTransport)(nil)
)
