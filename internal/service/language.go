package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/windfall/engapp_service/internal/assessment"
	"github.com/windfall/engapp_service/internal/observe"
)

const languageSystemPrompt = `You are an English language assessment expert grading a learner's spoken
description of a picture. Judge grammar accuracy, vocabulary range and how actively the
speaker drives the description.

Respond ONLY with valid JSON in this exact format:
{
  "grammarScore": 0-100,
  "vocabularyCEFR": "A1|A2|B1|B2|C1|C2",
  "talkStyle": "DRIVER|PASSENGER",
  "justification": "one sentence"
}

talkStyle is DRIVER when the speaker elaborates and adds their own ideas, PASSENGER when
they only answer minimally.`

// LanguageAnalyzer grades a free-speech transcript.
type LanguageAnalyzer interface {
	Analyze(ctx context.Context, transcript string, image assessment.Image) (assessment.LanguageResult, error)
}

// JSONCompleter is a chat model that answers in JSON mode.
type JSONCompleter interface {
	Name() string
	CompleteJSON(ctx context.Context, systemPrompt, prompt string) (string, error)
}

// LLMLanguageAnalyzer grades transcripts with a language model.
type LLMLanguageAnalyzer struct {
	completer JSONCompleter
	timeout   time.Duration
	metrics   *observe.Metrics
}

// NewLLMLanguageAnalyzer creates a new LLMLanguageAnalyzer.
func NewLLMLanguageAnalyzer(completer JSONCompleter, timeout time.Duration, metrics *observe.Metrics) *LLMLanguageAnalyzer {
	if metrics == nil {
		metrics = observe.NewNop()
	}
	return &LLMLanguageAnalyzer{
		completer: completer,
		timeout:   timeout,
		metrics:   metrics,
	}
}

type languageReply struct {
	GrammarScore   *float64 `json:"grammarScore"`
	VocabularyCEFR string   `json:"vocabularyCEFR"`
	TalkStyle      string   `json:"talkStyle"`
}

// Analyze asks the model for grammar, vocabulary band and talk style. Any
// malformed or out-of-range answer is an error so the caller can fall back.
func (a *LLMLanguageAnalyzer) Analyze(ctx context.Context, transcript string, image assessment.Image) (assessment.LanguageResult, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	prompt := fmt.Sprintf("IMAGE LEVEL: %s\nIMAGE DESCRIPTION: %s\n\nTRANSCRIPT:\n%s",
		image.Level, image.Description, transcript)

	start := time.Now()
	raw, err := a.completer.CompleteJSON(ctx, languageSystemPrompt, prompt)
	a.metrics.RecordProviderCall(ctx, a.completer.Name(), "language", time.Since(start).Seconds(), err)
	if err != nil {
		return assessment.LanguageResult{}, err
	}

	var reply languageReply
	if err := decodeModelJSON(raw, &reply); err != nil {
		return assessment.LanguageResult{}, err
	}
	return reply.validate()
}

func (r languageReply) validate() (assessment.LanguageResult, error) {
	if r.GrammarScore == nil || math.IsNaN(*r.GrammarScore) || *r.GrammarScore < 0 || *r.GrammarScore > 100 {
		return assessment.LanguageResult{}, fmt.Errorf("grammarScore missing or out of range")
	}
	level, ok := assessment.ParseLevel(r.VocabularyCEFR)
	if !ok {
		return assessment.LanguageResult{}, fmt.Errorf("invalid vocabularyCEFR %q", r.VocabularyCEFR)
	}
	style, ok := assessment.ParseTalkStyle(r.TalkStyle)
	if !ok {
		return assessment.LanguageResult{}, fmt.Errorf("invalid talkStyle %q", r.TalkStyle)
	}
	return assessment.LanguageResult{
		GrammarScore:   *r.GrammarScore,
		VocabularyCEFR: level,
		TalkStyle:      style,
	}, nil
}

// HeuristicLanguageAnalyzer always answers with the rule-based estimate.
type HeuristicLanguageAnalyzer struct{}

// Analyze implements LanguageAnalyzer.
func (HeuristicLanguageAnalyzer) Analyze(_ context.Context, transcript string, _ assessment.Image) (assessment.LanguageResult, error) {
	return assessment.FallbackLanguage(transcript), nil
}
