package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/windfall/engapp_service/internal/errors"
)

// AzureSpeechClient wraps the Azure AI Speech short-audio REST API.
type AzureSpeechClient struct {
	apiKey   string
	region   string
	language string
	baseURL  string
	client   *http.Client
}

// AzureSpeechOption configures an AzureSpeechClient.
type AzureSpeechOption func(*AzureSpeechClient)

// WithAzureSpeechBaseURL overrides the regional endpoint.
func WithAzureSpeechBaseURL(u string) AzureSpeechOption {
	return func(c *AzureSpeechClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithAzureSpeechHTTPClient replaces the HTTP client.
func WithAzureSpeechHTTPClient(hc *http.Client) AzureSpeechOption {
	return func(c *AzureSpeechClient) { c.client = hc }
}

// NewAzureSpeechClient creates a new Azure Speech client.
func NewAzureSpeechClient(apiKey, region, language string, opts ...AzureSpeechOption) *AzureSpeechClient {
	if language == "" {
		language = "en-US"
	}
	c := &AzureSpeechClient{
		apiKey:   apiKey,
		region:   region,
		language: language,
		baseURL:  fmt.Sprintf("https://%s.stt.speech.microsoft.com", region),
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// PronunciationWord is one recognized word with its assessment.
type PronunciationWord struct {
	Word          string  `json:"Word"`
	AccuracyScore float64 `json:"AccuracyScore"`
	ErrorType     string  `json:"ErrorType"`
}

type pronunciationScores struct {
	AccuracyScore     *float64 `json:"AccuracyScore"`
	FluencyScore      *float64 `json:"FluencyScore"`
	CompletenessScore *float64 `json:"CompletenessScore"`
	ProsodyScore      *float64 `json:"ProsodyScore"`
	PronScore         *float64 `json:"PronScore"`
}

type nBestEntry struct {
	pronunciationScores
	Lexical                 string               `json:"Lexical"`
	Display                 string               `json:"Display"`
	PronunciationAssessment *pronunciationScores `json:"PronunciationAssessment"`
	Words                   []struct {
		PronunciationWord
		PronunciationAssessment *struct {
			AccuracyScore float64 `json:"AccuracyScore"`
			ErrorType     string  `json:"ErrorType"`
		} `json:"PronunciationAssessment"`
	} `json:"Words"`
}

type recognitionResponse struct {
	RecognitionStatus string       `json:"RecognitionStatus"`
	DisplayText       string       `json:"DisplayText"`
	NBest             []nBestEntry `json:"NBest"`
}

// PronunciationResult is the typed outcome of a pronunciation assessment.
type PronunciationResult struct {
	RecognitionStatus string
	Transcript        string
	AccuracyScore     float64
	FluencyScore      float64
	CompletenessScore *float64
	ProsodyScore      *float64
	Words             []PronunciationWord
}

// SpokenWordCount counts the words actually heard, ignoring omissions of the
// reference text.
func (r *PronunciationResult) SpokenWordCount() int {
	n := 0
	for _, w := range r.Words {
		if w.ErrorType != "Omission" {
			n++
		}
	}
	return n
}

// AssessPronunciation scores 16 kHz PCM WAV audio. With an empty
// referenceText the assessment runs unscripted against the recognized text.
func (c *AzureSpeechClient) AssessPronunciation(ctx context.Context, audioData []byte, referenceText string) (*PronunciationResult, error) {
	if c.apiKey == "" || c.baseURL == "" {
		return nil, errors.New(errors.ErrUpstreamService, "Azure Speech credentials not configured")
	}

	// Docs: https://learn.microsoft.com/en-us/azure/ai-services/speech-service/rest-speech-to-text-short
	u, err := url.Parse(c.baseURL + "/speech/recognition/conversation/cognitiveservices/v1")
	if err != nil {
		return nil, fmt.Errorf("invalid azure speech endpoint: %w", err)
	}
	q := u.Query()
	q.Set("language", c.language)
	q.Set("format", "detailed")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(audioData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	params := map[string]interface{}{
		"ReferenceText":           referenceText,
		"GradingSystem":           "HundredMark",
		"Granularity":             "Word",
		"Dimension":               "Comprehensive",
		"EnableProsodyAssessment": true,
	}
	if referenceText != "" {
		params["EnableMiscue"] = true
	}
	jsonBytes, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal params: %w", err)
	}

	req.Header.Set("Pronunciation-Assessment", base64.StdEncoding.EncodeToString(jsonBytes))
	req.Header.Set("Ocp-Apim-Subscription-Key", c.apiKey)
	req.Header.Set("Content-Type", "audio/wav; codecs=audio/pcm; samplerate=16000")
	req.Header.Set("Accept", "application/json;text/xml")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("azure speech api error %d: %s", resp.StatusCode, string(body))
	}

	var raw recognitionResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return raw.toResult(), nil
}

func (r *recognitionResponse) toResult() *PronunciationResult {
	out := &PronunciationResult{
		RecognitionStatus: r.RecognitionStatus,
		Transcript:        r.DisplayText,
	}
	if len(r.NBest) == 0 {
		return out
	}

	best := r.NBest[0]
	scores := best.pronunciationScores
	if best.PronunciationAssessment != nil {
		scores = *best.PronunciationAssessment
	}
	if scores.AccuracyScore != nil {
		out.AccuracyScore = *scores.AccuracyScore
	}
	if scores.FluencyScore != nil {
		out.FluencyScore = *scores.FluencyScore
	}
	out.CompletenessScore = scores.CompletenessScore
	out.ProsodyScore = scores.ProsodyScore
	if out.Transcript == "" {
		out.Transcript = best.Display
	}

	words := make([]PronunciationWord, 0, len(best.Words))
	for _, w := range best.Words {
		pw := w.PronunciationWord
		if w.PronunciationAssessment != nil {
			pw.AccuracyScore = w.PronunciationAssessment.AccuracyScore
			pw.ErrorType = w.PronunciationAssessment.ErrorType
		}
		words = append(words, pw)
	}
	out.Words = DeduplicateWords(words)
	return out
}

// DeduplicateWords collapses a word Azure reports more than once where one
// copy is an Insertion: the Insertion copy is kept with the mean accuracy of
// all copies.
func DeduplicateWords(words []PronunciationWord) []PronunciationWord {
	groups := make(map[string][]int)
	for i, w := range words {
		groups[w.Word] = append(groups[w.Word], i)
	}

	remove := make(map[int]bool)
	for _, indices := range groups {
		if len(indices) <= 1 {
			continue
		}
		insertion := -1
		var total float64
		for _, idx := range indices {
			if words[idx].ErrorType == "Insertion" {
				insertion = idx
			}
			total += words[idx].AccuracyScore
		}
		if insertion == -1 {
			continue
		}
		words[insertion].AccuracyScore = total / float64(len(indices))
		for _, idx := range indices {
			if idx != insertion {
				remove[idx] = true
			}
		}
	}

	if len(remove) == 0 {
		return words
	}
	out := make([]PronunciationWord, 0, len(words)-len(remove))
	for i, w := range words {
		if !remove[i] {
			out = append(out, w)
		}
	}
	return out
}
