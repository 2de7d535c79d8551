package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/taskhub/apiserver/internal/mailer"
	"github.com/taskhub/apiserver/internal/mq"
)

const defaultSendTimeout = 30 * time.Second

// VerificationMessage is the queued payload for a verification mail.
type VerificationMessage struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

// Mailer sends the verification mail itself.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, to, token string) error
}

// Publisher hands a message to a broker.
type Publisher interface {
	PublishJSON(ctx context.Context, channel string, v any) (string, error)
}

// Dispatcher delivers verification mail off the request path. With a
// Publisher it enqueues the message for the worker, otherwise it sends the
// mail directly. Failures are logged and never reach the caller.
type Dispatcher struct {
	mailer    Mailer
	publisher Publisher
	channel   string
	timeout   time.Duration
	logger    *slog.Logger

	wg sync.WaitGroup
}

// NewDispatcher builds a Dispatcher. publisher may be nil.
func NewDispatcher(m Mailer, publisher Publisher, channel string, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		mailer:    m,
		publisher: publisher,
		channel:   channel,
		timeout:   defaultSendTimeout,
		logger:    logger,
	}
}

// Dispatch schedules delivery and returns immediately.
func (d *Dispatcher) Dispatch(email, token string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.deliver(ctx, VerificationMessage{Email: email, Token: token}); err != nil {
			if errors.Is(err, mailer.ErrNotConfigured) {
				d.logger.Warn("verification email skipped", slog.String("to", maskEmail(email)), slog.String("reason", err.Error()))
				return
			}
			d.logger.Error("verification email failed", slog.String("to", maskEmail(email)), slog.Any("error", err))
		}
	}()
}

// Wait blocks until every dispatched delivery finished or ctx is done.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) deliver(ctx context.Context, msg VerificationMessage) error {
	if d.publisher != nil {
		id, err := d.publisher.PublishJSON(ctx, d.channel, msg)
		if err != nil {
			return fmt.Errorf("enqueue verification email: %w", err)
		}
		d.logger.Debug("verification email queued", slog.String("message_id", id), slog.String("channel", d.channel))
		return nil
	}
	if d.mailer == nil {
		return mailer.ErrNotConfigured
	}
	return d.mailer.SendVerificationEmail(ctx, msg.Email, msg.Token)
}

// VerificationHandler returns the worker-side handler that sends queued
// verification mail. Malformed messages are dropped; send failures are
// returned so the broker can redeliver.
func VerificationHandler(m Mailer, logger *slog.Logger) mq.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, msg mq.Message) error {
		var payload VerificationMessage
		if err := msg.Decode(&payload); err != nil {
			logger.Error("dropping malformed verification message", slog.String("message_id", msg.ID), slog.Any("error", err))
			return nil
		}
		if payload.Email == "" || payload.Token == "" {
			logger.Error("dropping incomplete verification message", slog.String("message_id", msg.ID))
			return nil
		}

		if err := m.SendVerificationEmail(ctx, payload.Email, payload.Token); err != nil {
			if errors.Is(err, mailer.ErrNotConfigured) {
				logger.Warn("verification email skipped", slog.String("to", maskEmail(payload.Email)), slog.String("reason", err.Error()))
				return nil
			}
			logger.Error("verification email failed", slog.String("message_id", msg.ID), slog.String("to", maskEmail(payload.Email)), slog.Any("error", err))
			return err
		}
		return nil
	}
}

// maskEmail keeps the first character of the local part and the domain, so
// log lines stay correlatable without carrying the full address.
func maskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
