package assessment

import "time"

// CooldownPeriod is the minimum interval between completed assessments.
const CooldownPeriod = 7 * 24 * time.Hour

// Eligibility is the outcome of the cooldown check.
type Eligibility struct {
	Allowed         bool       `json:"allowed"`
	NextAvailableAt *time.Time `json:"next_available_at,omitempty"`
}

// CheckCooldown decides whether a new assessment may start given the user's
// most recent completed session (nil if none).
func CheckCooldown(latest *Session, now time.Time) Eligibility {
	if latest == nil || latest.CompletedAt == nil {
		return Eligibility{Allowed: true}
	}

	if now.Sub(*latest.CompletedAt) < CooldownPeriod {
		next := latest.CompletedAt.Add(CooldownPeriod)
		return Eligibility{Allowed: false, NextAvailableAt: &next}
	}
	return Eligibility{Allowed: true}
}
