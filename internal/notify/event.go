// Package notify carries guest notifications from the booking core to the
// message bus without ever blocking the caller.
package notify

import (
	"time"

	"github.com/Domenick1991/restobooking/internal/domain"
	"github.com/google/uuid"
)

type EventType string

const (
	EventReservationCreated  EventType = "reservation_created"
	EventReservationCanceled EventType = "reservation_canceled"
	EventReservationReminder EventType = "reservation_reminder"
	EventTableOffered        EventType = "table_offered"
	EventOfferExpired        EventType = "offer_expired"
)

type Event struct {
	ID               string    `json:"id"`
	Type             EventType `json:"type"`
	ConfirmationCode int       `json:"confirmation_code"`
	CustomerName     string    `json:"customer_name"`
	Email            string    `json:"email,omitempty"`
	Phone            string    `json:"phone,omitempty"`
	ReservationTime  time.Time `json:"reservation_time"`
	PartySize        int       `json:"party_size"`
	TableNumber      *int      `json:"table_number,omitempty"`
	OccurredAt       time.Time `json:"occurred_at"`
}

// ForReservation builds an event addressed to customer about res.
func ForReservation(eventType EventType, customer *domain.Customer, res *domain.Reservation, now time.Time) Event {
	e := Event{
		ID:               uuid.NewString(),
		Type:             eventType,
		ConfirmationCode: res.ConfirmationCode,
		ReservationTime:  res.ReservationTime,
		PartySize:        res.PartySize,
		TableNumber:      res.TableNumber,
		OccurredAt:       now,
	}
	if customer != nil {
		e.CustomerName = customer.Name
		e.Email = customer.Email
		e.Phone = customer.Phone
	}
	return e
}
