package domain

import "time"

type WaitingListEntry struct {
	ID        string
	Email     string
	CreatedAt time.Time
	Invited   bool
	InvitedAt *time.Time
}
