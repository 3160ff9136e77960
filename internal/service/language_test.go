package service

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/windfall/engapp_service/internal/assessment"
)

type fakeCompleter struct {
	reply string
	err   error
	delay time.Duration

	gotSystem string
	gotPrompt string
}

func (f *fakeCompleter) Name() string { return "fake" }

func (f *fakeCompleter) CompleteJSON(ctx context.Context, systemPrompt, prompt string) (string, error) {
	f.gotSystem, f.gotPrompt = systemPrompt, prompt
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.reply, f.err
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "Here you go:\n```json\n{\"a\":1}\n```\nthanks", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around", `Sure! {"a":{"b":"}"}} hope that helps`, `{"a":{"b":"}"}}`},
		{"escaped quote", `x {"a":"say \"}\" now"} y`, `{"a":"say \"}\" now"}`},
		{"stray backslash", `{"a":1,\"b":2} x`, `{"a":1,\"b":2}`},
		{"no object", "nothing here", "nothing here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.in); got != tt.want {
				t.Errorf("extractJSON() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeModelJSON_Cleanup(t *testing.T) {
	var v struct {
		A []int `json:"a"`
	}
	in := "```json\n{\n  // scores\n  \"a\": [1, 2,],\n}\n```"
	if err := decodeModelJSON(in, &v); err != nil {
		t.Fatalf("decodeModelJSON: %v", err)
	}
	if len(v.A) != 2 || v.A[1] != 2 {
		t.Errorf("decoded = %+v", v)
	}

	if err := decodeModelJSON("   ", &v); err == nil {
		t.Error("expected error for empty reply")
	}
}

func TestLLMLanguageAnalyzer_Analyze(t *testing.T) {
	image := assessment.DefaultContent().Image(assessment.LevelB1)

	tests := []struct {
		name    string
		reply   string
		err     error
		want    assessment.LanguageResult
		wantErr bool
	}{
		{
			name:  "valid",
			reply: `{"grammarScore": 81, "vocabularyCEFR": "b2", "talkStyle": "Driver", "justification": "ok"}`,
			want:  assessment.LanguageResult{GrammarScore: 81, VocabularyCEFR: assessment.LevelB2, TalkStyle: assessment.TalkStyleDriver},
		},
		{
			name:  "fenced",
			reply: "```json\n{\"grammarScore\": 55, \"vocabularyCEFR\": \"A2\", \"talkStyle\": \"PASSENGER\"}\n```",
			want:  assessment.LanguageResult{GrammarScore: 55, VocabularyCEFR: assessment.LevelA2, TalkStyle: assessment.TalkStylePassenger},
		},
		{name: "provider error", err: stderrors.New("quota"), wantErr: true},
		{name: "not json", reply: "I cannot grade this", wantErr: true},
		{name: "missing grammar", reply: `{"vocabularyCEFR": "B1", "talkStyle": "DRIVER"}`, wantErr: true},
		{name: "grammar out of range", reply: `{"grammarScore": 140, "vocabularyCEFR": "B1", "talkStyle": "DRIVER"}`, wantErr: true},
		{name: "bad level", reply: `{"grammarScore": 50, "vocabularyCEFR": "D1", "talkStyle": "DRIVER"}`, wantErr: true},
		{name: "bad style", reply: `{"grammarScore": 50, "vocabularyCEFR": "B1", "talkStyle": "PILOT"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fakeCompleter{reply: tt.reply, err: tt.err}
			a := NewLLMLanguageAnalyzer(c, time.Second, nil)

			got, err := a.Analyze(context.Background(), "the people are waiting", image)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			if got != tt.want {
				t.Errorf("Analyze() = %+v, want %+v", got, tt.want)
			}
			if c.gotSystem != languageSystemPrompt {
				t.Error("system prompt not sent")
			}
		})
	}
}

func TestLLMLanguageAnalyzer_Timeout(t *testing.T) {
	c := &fakeCompleter{reply: `{}`, delay: time.Second}
	a := NewLLMLanguageAnalyzer(c, 10*time.Millisecond, nil)

	if _, err := a.Analyze(context.Background(), "text", assessment.Image{}); !stderrors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestHeuristicLanguageAnalyzer(t *testing.T) {
	got, err := HeuristicLanguageAnalyzer{}.Analyze(context.Background(), "just a few words", assessment.Image{})
	if err != nil {
		t.Fatal(err)
	}
	if got != assessment.FallbackLanguage("just a few words") {
		t.Errorf("got %+v", got)
	}
}
