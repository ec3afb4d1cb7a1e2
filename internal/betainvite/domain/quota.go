package domain

import "time"

// InvitationQuota is the per-user ledger entry of invitations left to issue.
// Remaining is allowed to go below zero.
type InvitationQuota struct {
	Owner     string
	Remaining int
	CreatedAt time.Time
	UpdatedAt time.Time
}
