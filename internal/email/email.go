package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Domenick1991/restobooking/config"
	"github.com/Domenick1991/restobooking/internal/logger"
	"github.com/Domenick1991/restobooking/internal/notify"
	"github.com/wneessen/go-mail"
)

// Sender mails notification events to guests. Without an SMTP host it only
// logs what it would have sent.
type Sender struct {
	client *mail.Client
	from   string
	loc    *time.Location
	log    *logger.Logger
}

func NewSender(cfg config.SMTPConfig, loc *time.Location, log *logger.Logger) (*Sender, error) {
	if log == nil {
		log = logger.Nop()
	}
	if loc == nil {
		loc = time.UTC
	}
	s := &Sender{from: cfg.From, loc: loc, log: log}
	if cfg.Host == "" {
		return s, nil
	}

	opts := []mail.Option{mail.WithPort(cfg.Port)}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("init smtp client: %w", err)
	}
	s.client = client
	return s, nil
}

func (s *Sender) Send(ctx context.Context, event notify.Event) error {
	ctx = s.log.WithFields(ctx, map[string]any{
		"event_type": string(event.Type),
		"code":       event.ConfirmationCode,
	})
	if event.Email == "" {
		s.log.Debug(ctx, "no email address on event, skipping")
		return nil
	}

	subject, body := s.compose(event)
	if s.client == nil {
		s.log.Info(s.log.WithField(ctx, "to", event.Email), "smtp not configured, would send: "+subject)
		return nil
	}

	msg := mail.NewMsg()
	if err := msg.From(s.from); err != nil {
		return fmt.Errorf("set from address: %w", err)
	}
	if err := msg.To(event.Email); err != nil {
		return fmt.Errorf("set to address: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}

func (s *Sender) compose(event notify.Event) (string, string) {
	when := event.ReservationTime.In(s.loc).Format("Mon 2 Jan 15:04")
	greeting := "Hello"
	if event.CustomerName != "" {
		greeting = "Hello " + event.CustomerName
	}

	var subject string
	var lines []string
	switch event.Type {
	case notify.EventReservationCreated:
		subject = "Your table is booked"
		lines = append(lines, fmt.Sprintf("Your table for %d on %s is confirmed.", event.PartySize, when))
	case notify.EventReservationCanceled:
		subject = "Your reservation was cancelled"
		lines = append(lines, fmt.Sprintf("Your reservation for %s has been cancelled.", when))
	case notify.EventReservationReminder:
		subject = "See you soon"
		lines = append(lines, fmt.Sprintf("A reminder of your table for %d at %s.", event.PartySize, when))
	case notify.EventTableOffered:
		subject = "A table is ready for you"
		lines = append(lines, fmt.Sprintf("A table for %d is free now. Confirm within 15 minutes to keep it.", event.PartySize))
	case notify.EventOfferExpired:
		subject = "Your table offer expired"
		lines = append(lines, "The offered table was released. You are back on the waitlist.")
	default:
		subject = "Reservation update"
	}
	if event.TableNumber != nil {
		lines = append(lines, fmt.Sprintf("Table: %d", *event.TableNumber))
	}
	lines = append(lines, fmt.Sprintf("Confirmation code: %06d", event.ConfirmationCode))

	return subject, greeting + ",\n\n" + strings.Join(lines, "\n") + "\n"
}
