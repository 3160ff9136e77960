package assessment

import "strings"

const (
	// AdaptiveAccuracyThreshold splits Phase 2 attempt 1 into the C1 or A2 follow-up.
	AdaptiveAccuracyThreshold = 70.0

	// MinSignalToNoise is the lowest acceptable Phase 1 SNR in dB.
	MinSignalToNoise = 10.0
)

// RetryHint reports whether a Phase 1 recording is unusable and which hint
// to show. Silence is checked before noise.
func RetryHint(wordCount int, snr *float64, hints Hints) (string, bool) {
	if wordCount == 0 {
		return hints.NoSpeech, true
	}
	if snr != nil && *snr < MinSignalToNoise {
		return hints.Noisy, true
	}
	return "", false
}

// AdaptiveSentenceLevel picks the second Phase 2 sentence from the first
// attempt's accuracy.
func AdaptiveSentenceLevel(accuracy float64) Level {
	if accuracy >= AdaptiveAccuracyThreshold {
		return LevelC1
	}
	return LevelA2
}

// ImageLevelFor maps the final pronunciation score to an image tier.
func ImageLevelFor(pronunciation float64) Level {
	switch {
	case pronunciation < 50:
		return LevelA2
	case pronunciation > 75:
		return LevelB2
	default:
		return LevelB1
	}
}

// ComprehensionScore grades the closing answer by length.
func ComprehensionScore(wordCount int) float64 {
	switch {
	case wordCount > 15:
		return 80
	case wordCount > 8:
		return 65
	default:
		return 50
	}
}

// Finalize averages both attempts onto the result. A missing attempt
// counts as zero.
func (p *Phase2Result) Finalize() {
	var acc1, acc2, flu1, flu2 float64
	if p.Attempt1 != nil {
		acc1, flu1 = p.Attempt1.AccuracyScore, p.Attempt1.FluencyScore
	}
	if p.Attempt2 != nil {
		acc2, flu2 = p.Attempt2.AccuracyScore, p.Attempt2.FluencyScore
	}

	pron := (acc1 + acc2) / 2
	flu := (flu1 + flu2) / 2
	p.FinalPronunciationScore = &pron
	p.FinalFluencyScore = &flu
}

// PronunciationScore returns the final pronunciation score or 0.
func (p *Phase2Result) PronunciationScore() float64 {
	if p == nil || p.FinalPronunciationScore == nil {
		return 0
	}
	return *p.FinalPronunciationScore
}

// WordCount counts whitespace separated tokens.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
