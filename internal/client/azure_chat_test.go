package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAzureChatClient_CompleteJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/deployments/grader/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.URL.Query().Get("api-version") != "2024-08-01-preview" {
			t.Errorf("api-version = %s", r.URL.Query().Get("api-version"))
		}
		if r.Header.Get("api-key") != "secret" {
			t.Error("missing api-key header")
		}

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Errorf("response_format = %+v", req.ResponseFormat)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("messages = %+v", req.Messages)
		}

		json.NewEncoder(w).Encode(chatResponse{Choices: []chatChoice{{Message: chatMessage{
			Role:    "assistant",
			Content: `{"grammarScore": 72}`,
		}}}})
	}))
	defer srv.Close()

	c := NewAzureChatClient(srv.URL+"/", "secret", "grader", "2024-08-01-preview")
	got, err := c.CompleteJSON(context.Background(), "system", "user")
	if err != nil {
		t.Fatalf("CompleteJSON: %v", err)
	}
	if got != `{"grammarScore": 72}` {
		t.Errorf("content = %q", got)
	}
}

func TestAzureChatClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}},
		{"no choices", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"choices": []}`))
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c := NewAzureChatClient(srv.URL, "secret", "grader", "v1")
			if _, err := c.CompleteJSON(context.Background(), "s", "u"); err == nil {
				t.Error("expected error")
			}
		})
	}
}
