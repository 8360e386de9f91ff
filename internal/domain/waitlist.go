package domain

import "time"

type WaitlistStatus string

const (
	WaitlistStatusWaiting   WaitlistStatus = "WAITING"
	WaitlistStatusOffered   WaitlistStatus = "OFFERED"
	WaitlistStatusSeated    WaitlistStatus = "SEATED"
	WaitlistStatusExpired   WaitlistStatus = "EXPIRED"
	WaitlistStatusCancelled WaitlistStatus = "CANCELLED"
)

type WaitlistEntry struct {
	ID               int64
	ConfirmationCode int
	CustomerID       int64
	PartySize        int
	EnqueueTime      time.Time
	Status           WaitlistStatus
	OfferedAt        *time.Time
	ReservationID    *int64
}

func (e *WaitlistEntry) IsTerminal() bool {
	return e.Status == WaitlistStatusSeated || e.Status == WaitlistStatusCancelled
}
