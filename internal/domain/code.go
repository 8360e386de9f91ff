package domain

import "time"

const (
	MinConfirmationCode = 100000
	MaxConfirmationCode = 999999
)

type ConfirmationCode struct {
	Code    int
	InUse   bool
	FreedAt *time.Time
}
