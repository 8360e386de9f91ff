package domain

import "time"

// ReservationDuration is the fixed span a reservation occupies its table.
const ReservationDuration = 2 * time.Hour

type ReservationStatus string

const (
	ReservationStatusActive   ReservationStatus = "ACTIVE"
	ReservationStatusDone     ReservationStatus = "DONE"
	ReservationStatusCanceled ReservationStatus = "CANCELED"
)

type ReservationSource string

const (
	ReservationSourceRegular  ReservationSource = "REGULAR"
	ReservationSourceWaitlist ReservationSource = "WAITLIST"
)

type Reservation struct {
	ID               int64
	CustomerID       int64
	ReservationTime  time.Time
	PartySize        int
	Status           ReservationStatus
	ArrivalTime      *time.Time
	LeaveTime        *time.Time
	CreatedAt        time.Time
	ConfirmationCode int
	TableNumber      *int
	// TableHeld is set while this reservation owns the table's occupied flag.
	TableHeld      bool
	Source         ReservationSource
	ReminderSent   bool
	ReminderSentAt *time.Time
}

func (r *Reservation) EndTime() time.Time {
	return r.ReservationTime.Add(ReservationDuration)
}

func (r *Reservation) IsTerminal() bool {
	return r.Status == ReservationStatusDone || r.Status == ReservationStatusCanceled
}

func (r *Reservation) HasArrived() bool {
	return r.ArrivalTime != nil
}
