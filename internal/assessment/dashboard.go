package assessment

import "time"

// DashboardState tells the client which home screen to show.
type DashboardState string

const (
	DashboardOnboarding DashboardState = "ONBOARDING"
	DashboardReady      DashboardState = "DASHBOARD"
)

// Dashboard summarizes the user's latest completed assessment.
type Dashboard struct {
	State                     DashboardState  `json:"state"`
	CurrentLevel              Level           `json:"current_level,omitempty"`
	OverallScore              *float64        `json:"overall_score,omitempty"`
	ImprovementDelta          *Delta          `json:"improvement_delta,omitempty"`
	SkillBreakdown            *SkillBreakdown `json:"skill_breakdown,omitempty"`
	WeaknessMap               []WeaknessEntry `json:"weakness_map,omitempty"`
	PersonalizedPlan          *Plan           `json:"personalized_plan,omitempty"`
	NextAssessmentAvailableAt *time.Time      `json:"next_assessment_available_at,omitempty"`
}

// BuildDashboard renders the dashboard from the latest completed session.
func BuildDashboard(latest *Session) Dashboard {
	if latest == nil || latest.Status != StatusCompleted {
		return Dashboard{State: DashboardOnboarding}
	}

	d := Dashboard{
		State:            DashboardReady,
		CurrentLevel:     latest.OverallLevel,
		OverallScore:     latest.OverallScore,
		ImprovementDelta: latest.ImprovementDelta,
		SkillBreakdown:   latest.SkillBreakdown,
		WeaknessMap:      latest.WeaknessMap,
		PersonalizedPlan: latest.PersonalizedPlan,
	}
	if latest.CompletedAt != nil {
		next := latest.CompletedAt.Add(CooldownPeriod)
		d.NextAssessmentAvailableAt = &next
	}
	return d
}
