package assessment

// LanguageResult is the output of language understanding for Phase 3.
type LanguageResult struct {
	GrammarScore   float64   `json:"grammar_score"`
	VocabularyCEFR Level     `json:"vocabulary_cefr"`
	TalkStyle      TalkStyle `json:"talk_style"`
}

const fallbackGrammarScore = 70

// FallbackLanguage derives a language result from transcript length alone.
// It is used when the language provider is unavailable.
func FallbackLanguage(transcript string) LanguageResult {
	words := WordCount(transcript)

	res := LanguageResult{
		GrammarScore:   fallbackGrammarScore,
		VocabularyCEFR: LevelA2,
		TalkStyle:      TalkStylePassenger,
	}
	if words > 20 {
		res.VocabularyCEFR = LevelB1
	}
	if words > 30 {
		res.TalkStyle = TalkStyleDriver
	}
	return res
}
