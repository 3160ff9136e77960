package repository

import (
	"time"

	"github.com/windfall/engapp_service/internal/assessment"
)

// User is the learner profile the assessment writes its outcome to.
type User struct {
	ID             string               `json:"id"`
	Email          string               `json:"email"`
	DisplayName    string               `json:"display_name"`
	OverallLevel   assessment.Level     `json:"overall_level,omitempty"`
	TalkStyle      assessment.TalkStyle `json:"talk_style,omitempty"`
	LevelUpdatedAt *time.Time           `json:"level_updated_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// GetID returns the user ID.
func (u *User) GetID() string {
	return u.ID
}

func cloneUser(u *User) *User {
	c := *u
	if u.LevelUpdatedAt != nil {
		t := *u.LevelUpdatedAt
		c.LevelUpdatedAt = &t
	}
	return &c
}

// applyReport records a completed assessment on the user profile.
func (u *User) applyReport(r *assessment.Report) {
	at := r.CompletedAt
	u.OverallLevel = r.OverallLevel
	if r.TalkStyle != "" {
		u.TalkStyle = r.TalkStyle
	}
	u.LevelUpdatedAt = &at
	u.UpdatedAt = at
}
