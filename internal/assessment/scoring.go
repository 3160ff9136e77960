package assessment

import (
	"math"
	"time"
)

// Category weights of the overall score. They sum to 1.
const (
	weightPronunciation = 0.20
	weightFluency       = 0.20
	weightGrammar       = 0.25
	weightVocabulary    = 0.20
	weightComprehension = 0.15
)

const (
	minConfidence  = 0.6
	baseConfidence = 0.9
)

var vocabularyScores = map[Level]float64{
	LevelA1: 20,
	LevelA2: 40,
	LevelB1: 60,
	LevelB2: 80,
	LevelC1: 90,
	LevelC2: 100,
}

// levelBands is evaluated top down; the first strict lower bound exceeded wins.
var levelBands = []struct {
	above float64
	level Level
}{
	{88, LevelC2},
	{75, LevelC1},
	{60, LevelB2},
	{45, LevelB1},
	{30, LevelA2},
}

// VocabularyScore converts a CEFR vocabulary band to points. Unknown bands
// score as A1.
func VocabularyScore(l Level) float64 {
	if v, ok := vocabularyScores[l]; ok {
		return v
	}
	return vocabularyScores[LevelA1]
}

// Scores are the category inputs of aggregation.
type Scores struct {
	Pronunciation float64
	Fluency       float64
	Grammar       float64
	Vocabulary    float64
	Comprehension float64

	// Attempt 2 details feed individual breakdown leaves.
	Attempt2Prosody *float64
	Attempt2Fluency *float64
}

// ScoresFromSession reads the aggregation inputs out of the phase payloads,
// treating anything missing as zero.
func ScoresFromSession(s *Session) Scores {
	var sc Scores
	if p2 := s.Phase2; p2 != nil {
		sc.Pronunciation = p2.PronunciationScore()
		if p2.FinalFluencyScore != nil {
			sc.Fluency = *p2.FinalFluencyScore
		}
		if p2.Attempt2 != nil {
			sc.Attempt2Prosody = p2.Attempt2.ProsodyScore
			flu := p2.Attempt2.FluencyScore
			sc.Attempt2Fluency = &flu
		}
	}

	vocab := Level("")
	if p3 := s.Phase3; p3 != nil {
		sc.Grammar = p3.GrammarScore
		vocab = p3.VocabularyCEFR
	}
	sc.Vocabulary = VocabularyScore(vocab)

	if p4 := s.Phase4; p4 != nil {
		sc.Comprehension = p4.ComprehensionScore
	}
	return sc
}

// Overall is the weighted overall score.
func (sc Scores) Overall() float64 {
	return weightPronunciation*sc.Pronunciation +
		weightFluency*sc.Fluency +
		weightGrammar*sc.Grammar +
		weightVocabulary*sc.Vocabulary +
		weightComprehension*sc.Comprehension
}

// Confidence shrinks as the five category scores disagree.
func (sc Scores) Confidence() float64 {
	values := []float64{sc.Pronunciation, sc.Fluency, sc.Grammar, sc.Vocabulary, sc.Comprehension}

	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(values)))

	return math.Max(minConfidence, baseConfidence-stdDev/100)
}

// LevelForScore bands an overall score into a CEFR level.
func LevelForScore(overall float64) Level {
	for _, b := range levelBands {
		if overall > b.above {
			return b.level
		}
	}
	return LevelA1
}

// Round rounds half up, so -2.5 becomes -2 and 2.5 becomes 3.
func Round(x float64) int {
	return int(math.Floor(x + 0.5))
}

// SkillBreakdown splits the four categories into three leaves each.
type SkillBreakdown struct {
	Pronunciation PronunciationSkills `json:"pronunciation"`
	Fluency       FluencySkills       `json:"fluency"`
	Grammar       GrammarSkills       `json:"grammar"`
	Vocabulary    VocabularySkills    `json:"vocabulary"`
}

type PronunciationSkills struct {
	PhonemeAccuracy int `json:"phoneme_accuracy"`
	WordStress      int `json:"word_stress"`
	ConnectedSpeech int `json:"connected_speech"`
}

type FluencySkills struct {
	SpeechRate        int `json:"speech_rate"`
	PauseFrequency    int `json:"pause_frequency"`
	HesitationMarkers int `json:"hesitation_markers"`
}

type GrammarSkills struct {
	TenseControl       int `json:"tense_control"`
	SentenceComplexity int `json:"sentence_complexity"`
	AgreementErrors    int `json:"agreement_errors"`
}

type VocabularySkills struct {
	LexicalRange     int `json:"lexical_range"`
	TopicSpecificity int `json:"topic_specificity"`
	RepetitionRate   int `json:"repetition_rate"`
}

// Breakdown derives the twelve leaf metrics.
func (sc Scores) Breakdown() SkillBreakdown {
	wordStress := sc.Pronunciation
	if sc.Attempt2Prosody != nil {
		wordStress = *sc.Attempt2Prosody
	}
	var attempt2Fluency float64
	if sc.Attempt2Fluency != nil {
		attempt2Fluency = *sc.Attempt2Fluency
	}

	return SkillBreakdown{
		Pronunciation: PronunciationSkills{
			PhonemeAccuracy: Round(sc.Pronunciation),
			WordStress:      Round(wordStress),
			ConnectedSpeech: Round((sc.Pronunciation + sc.Fluency) / 2),
		},
		Fluency: FluencySkills{
			SpeechRate:        Round(sc.Fluency),
			PauseFrequency:    Round(100 - attempt2Fluency*0.2),
			HesitationMarkers: Round(100 - sc.Fluency),
		},
		Grammar: GrammarSkills{
			TenseControl:       Round(sc.Grammar),
			SentenceComplexity: Round(sc.Grammar * 0.9),
			AgreementErrors:    Round(100 - sc.Grammar),
		},
		Vocabulary: VocabularySkills{
			LexicalRange:     Round(sc.Vocabulary),
			TopicSpecificity: Round(sc.Vocabulary * 0.85),
			RepetitionRate:   Round(100 - sc.Vocabulary*0.5),
		},
	}
}

// Delta is the change against the previous completed assessment.
type Delta struct {
	Overall       int `json:"overall"`
	Pronunciation int `json:"pronunciation"`
	Fluency       int `json:"fluency"`
	Grammar       int `json:"grammar"`
	Vocabulary    int `json:"vocabulary"`
}

// ImprovementDelta compares against a previous completed session. It returns
// nil when there is nothing comparable.
func (sc Scores) ImprovementDelta(previous *Session) *Delta {
	if previous == nil || previous.OverallScore == nil {
		return nil
	}

	var prev SkillBreakdown
	if previous.SkillBreakdown != nil {
		prev = *previous.SkillBreakdown
	}

	return &Delta{
		Overall:       Round(sc.Overall() - *previous.OverallScore),
		Pronunciation: Round(sc.Pronunciation - float64(prev.Pronunciation.PhonemeAccuracy)),
		Fluency:       Round(sc.Fluency - float64(prev.Fluency.SpeechRate)),
		Grammar:       Round(sc.Grammar - float64(prev.Grammar.TenseControl)),
		Vocabulary:    Round(sc.Vocabulary - float64(prev.Vocabulary.LexicalRange)),
	}
}

// Aggregate scores a finished session. previous is the user's most recent
// other completed session, or nil. It has no side effects.
func Aggregate(s *Session, previous *Session, now time.Time) *Report {
	sc := ScoresFromSession(s)
	overall := sc.Overall()
	breakdown := sc.Breakdown()
	weaknesses := WeaknessMap(breakdown)

	return &Report{
		SessionID:                 s.ID,
		OverallLevel:              LevelForScore(overall),
		OverallScore:              overall,
		Confidence:                sc.Confidence(),
		SkillBreakdown:            breakdown,
		WeaknessMap:               weaknesses,
		ImprovementDelta:          sc.ImprovementDelta(previous),
		PersonalizedPlan:          BuildPlan(weaknesses),
		TalkStyle:                 s.TalkStyle,
		CompletedAt:               now,
		NextAssessmentAvailableAt: now.Add(CooldownPeriod),
	}
}
