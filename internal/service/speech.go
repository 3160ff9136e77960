package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/windfall/engapp_service/internal/assessment"
	"github.com/windfall/engapp_service/internal/audio"
	"github.com/windfall/engapp_service/internal/client"
	"github.com/windfall/engapp_service/internal/observe"
)

// SpeechResult is the normalized output of speech analysis.
type SpeechResult struct {
	AccuracyScore float64
	FluencyScore  float64
	ProsodyScore  *float64
	WordCount     int
	Transcript    string
	// SNR is the signal-to-noise ratio in dB, nil when unknown.
	SNR *float64
}

// SpeechAnalyzer scores a recording. referenceText is empty for free speech.
type SpeechAnalyzer interface {
	Analyze(ctx context.Context, audioData []byte, audioURL, referenceText string) (*SpeechResult, error)
}

// PronunciationAssessor is the pronunciation endpoint of a speech provider.
type PronunciationAssessor interface {
	AssessPronunciation(ctx context.Context, audioData []byte, referenceText string) (*client.PronunciationResult, error)
}

// AzureSpeechAnalyzer adapts Azure pronunciation assessment to SpeechAnalyzer.
type AzureSpeechAnalyzer struct {
	assessor PronunciationAssessor
	metrics  *observe.Metrics
	log      zerolog.Logger
}

// NewAzureSpeechAnalyzer creates a new AzureSpeechAnalyzer.
func NewAzureSpeechAnalyzer(assessor PronunciationAssessor, metrics *observe.Metrics, log zerolog.Logger) *AzureSpeechAnalyzer {
	if metrics == nil {
		metrics = observe.NewNop()
	}
	return &AzureSpeechAnalyzer{
		assessor: assessor,
		metrics:  metrics,
		log:      log,
	}
}

// Analyze implements SpeechAnalyzer. A recording Azure could not match to any
// speech is a valid result with zero words.
func (a *AzureSpeechAnalyzer) Analyze(ctx context.Context, audioData []byte, audioURL, referenceText string) (*SpeechResult, error) {
	start := time.Now()
	res, err := a.assessor.AssessPronunciation(ctx, audioData, referenceText)
	a.metrics.RecordProviderCall(ctx, "azure_speech", "speech", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, err
	}

	out := &SpeechResult{
		AccuracyScore: res.AccuracyScore,
		FluencyScore:  res.FluencyScore,
		ProsodyScore:  res.ProsodyScore,
		Transcript:    res.Transcript,
	}
	if res.RecognitionStatus == "Success" {
		out.WordCount = res.SpokenWordCount()
		if out.WordCount == 0 {
			out.WordCount = assessment.WordCount(res.Transcript)
		}
	}

	if snr, ok := audio.EstimateSNR(audioData); ok {
		out.SNR = &snr
	} else {
		a.log.Debug().Str("audio_url", audioURL).Msg("SNR unavailable for this recording")
	}

	return out, nil
}
