// Package assessment holds the placement assessment domain: session records,
// typed per-phase payloads, the fixed content bank and the pure scoring rules
// applied when a session completes.
package assessment

import (
	"encoding/json"
	"strings"
	"time"
)

// Phase identifies one of the four fixed assessment steps.
type Phase string

const (
	Phase1 Phase = "PHASE_1"
	Phase2 Phase = "PHASE_2"
	Phase3 Phase = "PHASE_3"
	Phase4 Phase = "PHASE_4"
)

// ParsePhase validates a phase identifier received from a client.
func ParsePhase(s string) (Phase, bool) {
	switch p := Phase(strings.ToUpper(strings.TrimSpace(s))); p {
	case Phase1, Phase2, Phase3, Phase4:
		return p, true
	}
	return "", false
}

// Status is the lifecycle state of a session.
type Status string

const (
	StatusInProgress Status = "IN_PROGRESS"
	StatusAbandoned  Status = "ABANDONED"
	StatusCompleted  Status = "COMPLETED"
)

// Level is a CEFR band.
type Level string

const (
	LevelA1 Level = "A1"
	LevelA2 Level = "A2"
	LevelB1 Level = "B1"
	LevelB2 Level = "B2"
	LevelC1 Level = "C1"
	LevelC2 Level = "C2"
)

var levelRank = map[Level]int{
	LevelA1: 1,
	LevelA2: 2,
	LevelB1: 3,
	LevelB2: 4,
	LevelC1: 5,
	LevelC2: 6,
}

// ParseLevel normalizes a CEFR band, e.g. " b1 " -> B1.
func ParseLevel(s string) (Level, bool) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := levelRank[l]
	return l, ok
}

// Rank orders levels A1 < A2 < ... < C2. Unknown levels rank 0.
func (l Level) Rank() int {
	return levelRank[l]
}

// TalkStyle classifies how a speaker carries a conversation.
type TalkStyle string

const (
	TalkStyleDriver    TalkStyle = "DRIVER"
	TalkStylePassenger TalkStyle = "PASSENGER"
)

// ParseTalkStyle normalizes a talk style label.
func ParseTalkStyle(s string) (TalkStyle, bool) {
	switch t := TalkStyle(strings.ToUpper(strings.TrimSpace(s))); t {
	case TalkStyleDriver, TalkStylePassenger:
		return t, true
	}
	return "", false
}

// Phase1Result is the baseline read-aloud outcome.
type Phase1Result struct {
	AccuracyScore float64  `json:"accuracy_score"`
	FluencyScore  float64  `json:"fluency_score"`
	ProsodyScore  *float64 `json:"prosody_score,omitempty"`
	WordCount     int      `json:"word_count"`
	AudioURL      string   `json:"audio_url"`
}

// SpeechAttempt is one scored Phase 2 recording.
type SpeechAttempt struct {
	ReferenceText string   `json:"reference_text"`
	AccuracyScore float64  `json:"accuracy_score"`
	FluencyScore  float64  `json:"fluency_score"`
	ProsodyScore  *float64 `json:"prosody_score,omitempty"`
	WordCount     int      `json:"word_count"`
	Transcript    string   `json:"transcript,omitempty"`
	AudioURL      string   `json:"audio_url"`
}

// Phase2Result accumulates the adaptive pronunciation probe. It is written
// once per attempt; the final scores appear after attempt 2.
type Phase2Result struct {
	Attempt1                *SpeechAttempt `json:"attempt1,omitempty"`
	Attempt2                *SpeechAttempt `json:"attempt2,omitempty"`
	AdaptiveSentence        *Sentence      `json:"adaptive_sentence,omitempty"`
	FinalPronunciationScore *float64       `json:"final_pronunciation_score,omitempty"`
	FinalFluencyScore       *float64       `json:"final_fluency_score,omitempty"`
}

// Phase3Result is the image description outcome.
type Phase3Result struct {
	GrammarScore   float64   `json:"grammar_score"`
	VocabularyCEFR Level     `json:"vocabulary_cefr"`
	TalkStyle      TalkStyle `json:"talk_style"`
	Transcript     string    `json:"transcript"`
	AudioURL       string    `json:"audio_url"`
	ImageLevel     Level     `json:"image_level"`
	Fallback       bool      `json:"fallback,omitempty"`
}

// Phase4Result is the closing free response outcome.
type Phase4Result struct {
	WordCount          int     `json:"word_count"`
	ComprehensionScore float64 `json:"comprehension_score"`
	Transcript         string  `json:"transcript"`
	AudioURL           string  `json:"audio_url"`
}

// Session is one elicitation-and-scoring workflow instance.
type Session struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
	Status Status `json:"status"`

	Phase1 *Phase1Result `json:"phase1_data,omitempty"`
	Phase2 *Phase2Result `json:"phase2_data,omitempty"`
	Phase3 *Phase3Result `json:"phase3_data,omitempty"`
	Phase4 *Phase4Result `json:"phase4_data,omitempty"`

	TalkStyle        TalkStyle       `json:"talk_style,omitempty"`
	OverallLevel     Level           `json:"overall_level,omitempty"`
	OverallScore     *float64        `json:"overall_score,omitempty"`
	Confidence       *float64        `json:"confidence,omitempty"`
	SkillBreakdown   *SkillBreakdown `json:"skill_breakdown,omitempty"`
	WeaknessMap      []WeaknessEntry `json:"weakness_map,omitempty"`
	ImprovementDelta *Delta          `json:"improvement_delta,omitempty"`
	PersonalizedPlan *Plan           `json:"personalized_plan,omitempty"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GetID returns the session ID.
func (s *Session) GetID() string {
	return s.ID
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	data, err := json.Marshal(s)
	if err != nil {
		panic("assessment: marshal session: " + err.Error())
	}
	var c Session
	if err := json.Unmarshal(data, &c); err != nil {
		panic("assessment: unmarshal session: " + err.Error())
	}
	return &c
}

// Report returns the completion report of a completed session, or nil when
// the session has not been scored yet.
func (s *Session) Report() *Report {
	if s.Status != StatusCompleted || s.OverallScore == nil || s.CompletedAt == nil {
		return nil
	}

	r := &Report{
		SessionID:                 s.ID,
		OverallLevel:              s.OverallLevel,
		OverallScore:              *s.OverallScore,
		WeaknessMap:               s.WeaknessMap,
		ImprovementDelta:          s.ImprovementDelta,
		TalkStyle:                 s.TalkStyle,
		CompletedAt:               *s.CompletedAt,
		NextAssessmentAvailableAt: s.CompletedAt.Add(CooldownPeriod),
	}
	if s.Confidence != nil {
		r.Confidence = *s.Confidence
	}
	if s.SkillBreakdown != nil {
		r.SkillBreakdown = *s.SkillBreakdown
	}
	if s.PersonalizedPlan != nil {
		r.PersonalizedPlan = *s.PersonalizedPlan
	}
	return r
}

// Report is the final scoring output of a session.
type Report struct {
	SessionID                 string          `json:"session_id"`
	OverallLevel              Level           `json:"overall_level"`
	OverallScore              float64         `json:"overall_score"`
	Confidence                float64         `json:"confidence"`
	SkillBreakdown            SkillBreakdown  `json:"skill_breakdown"`
	WeaknessMap               []WeaknessEntry `json:"weakness_map"`
	ImprovementDelta          *Delta          `json:"improvement_delta"`
	PersonalizedPlan          Plan            `json:"personalized_plan"`
	TalkStyle                 TalkStyle       `json:"talk_style,omitempty"`
	CompletedAt               time.Time       `json:"completed_at"`
	NextAssessmentAvailableAt time.Time       `json:"next_assessment_available_at"`
}

// Apply copies the report onto the session and marks it completed.
func (r *Report) Apply(s *Session) {
	overall := r.OverallScore
	confidence := r.Confidence
	breakdown := r.SkillBreakdown
	plan := r.PersonalizedPlan
	completedAt := r.CompletedAt

	s.Status = StatusCompleted
	s.OverallLevel = r.OverallLevel
	s.OverallScore = &overall
	s.Confidence = &confidence
	s.SkillBreakdown = &breakdown
	s.WeaknessMap = r.WeaknessMap
	s.ImprovementDelta = r.ImprovementDelta
	s.PersonalizedPlan = &plan
	s.CompletedAt = &completedAt
	s.UpdatedAt = completedAt
}
