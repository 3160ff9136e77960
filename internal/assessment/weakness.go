package assessment

import "fmt"

// Severity tiers a single skill leaf.
type Severity string

const (
	SeverityHigh     Severity = "HIGH"
	SeverityMedium   Severity = "MEDIUM"
	SeverityStrength Severity = "STRENGTH"
)

// Classify tiers a leaf score: below 60 is HIGH, below 75 MEDIUM.
func Classify(score int) Severity {
	switch {
	case score < 60:
		return SeverityHigh
	case score < 75:
		return SeverityMedium
	default:
		return SeverityStrength
	}
}

// WeaknessEntry is one classified leaf, e.g. "fluency.speech_rate".
type WeaknessEntry struct {
	Area     string   `json:"area"`
	Score    int      `json:"score"`
	Severity Severity `json:"severity"`
}

// Leaf is a named skill metric.
type Leaf struct {
	Area  string
	Score int
}

// Leaves lists the twelve metrics in category order.
func (b SkillBreakdown) Leaves() []Leaf {
	return []Leaf{
		{"pronunciation.phoneme_accuracy", b.Pronunciation.PhonemeAccuracy},
		{"pronunciation.word_stress", b.Pronunciation.WordStress},
		{"pronunciation.connected_speech", b.Pronunciation.ConnectedSpeech},
		{"fluency.speech_rate", b.Fluency.SpeechRate},
		{"fluency.pause_frequency", b.Fluency.PauseFrequency},
		{"fluency.hesitation_markers", b.Fluency.HesitationMarkers},
		{"grammar.tense_control", b.Grammar.TenseControl},
		{"grammar.sentence_complexity", b.Grammar.SentenceComplexity},
		{"grammar.agreement_errors", b.Grammar.AgreementErrors},
		{"vocabulary.lexical_range", b.Vocabulary.LexicalRange},
		{"vocabulary.topic_specificity", b.Vocabulary.TopicSpecificity},
		{"vocabulary.repetition_rate", b.Vocabulary.RepetitionRate},
	}
}

// WeaknessMap classifies every leaf of the breakdown, preserving order.
func WeaknessMap(b SkillBreakdown) []WeaknessEntry {
	leaves := b.Leaves()
	out := make([]WeaknessEntry, 0, len(leaves))
	for _, l := range leaves {
		out = append(out, WeaknessEntry{
			Area:     l.Area,
			Score:    l.Score,
			Severity: Classify(l.Score),
		})
	}
	return out
}

// Plan is the practice plan generated from the weakness map.
type Plan struct {
	DailyFocus           []string `json:"daily_focus"`
	WeeklyGoal           string   `json:"weekly_goal"`
	RecommendedExercises []string `json:"recommended_exercises"`
}

var (
	defaultDailyFocus    = []string{"General Communication", "Speaking Fluency"}
	recommendedExercises = []string{"Shadowing Drill", "Timed Speaking (60 seconds)", "Vocabulary Expansion Practice"}
)

const maintainGoal = "Maintain current English proficiency level"

// BuildPlan focuses on the first two HIGH areas.
func BuildPlan(weaknesses []WeaknessEntry) Plan {
	var high []string
	for _, w := range weaknesses {
		if w.Severity == SeverityHigh {
			high = append(high, w.Area)
		}
	}

	plan := Plan{
		DailyFocus:           append([]string(nil), defaultDailyFocus...),
		WeeklyGoal:           maintainGoal,
		RecommendedExercises: append([]string(nil), recommendedExercises...),
	}
	if len(high) > 0 {
		plan.DailyFocus = high[:min(2, len(high))]
		plan.WeeklyGoal = fmt.Sprintf("Improve %s by 10 points", high[0])
	}
	return plan
}
