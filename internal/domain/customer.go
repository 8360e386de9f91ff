package domain

type Customer struct {
	ID           int64
	SubscriberID *int64
	Name         string
	Email        string
	Phone        string
}

func (c *Customer) HasContact() bool {
	return c != nil && (c.Email != "" || c.Phone != "")
}

// Contact is walk-in contact information supplied with a request.
type Contact struct {
	Name  string `json:"name" validate:"required,max=120"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone" validate:"omitempty,min=5,max=32"`
}

// Identity names who a reservation or waitlist entry is for: a registered
// subscriber or walk-in contact info.
type Identity struct {
	SubscriberID int64    `json:"subscriber_id" validate:"omitempty,gt=0"`
	Contact      *Contact `json:"contact" validate:"omitempty"`
}
