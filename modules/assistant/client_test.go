package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "github.com/example/chat-relay/domain/chat"
)

func completionOK(content string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"choices":[{"message":{"role":"assistant","content":%q}}]}`, content)
	}
}

func testClient(url string) *Client {
	return NewClient(Config{
		APIURL: url,
		APIKey: "test-key",
		Model:  "test-model",
	})
}

func TestClient_Complete(t *testing.T) {
	var captured completionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q, want Bearer test-key", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		completionOK("Hello there!")(w, r)
	}))
	defer server.Close()

	history := []domain.Message{
		{UserID: "asker", Content: "earlier question"},
		{UserID: "someone-else", Content: "earlier answer"},
	}

	reply, err := testClient(server.URL).Complete(context.Background(), "What's up?", history, "asker")
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if reply != "Hello there!" {
		t.Errorf("Complete() = %q, want %q", reply, "Hello there!")
	}

	if captured.Model != "test-model" {
		t.Errorf("request model = %q, want test-model", captured.Model)
	}
	if captured.MaxTokens != maxTokens {
		t.Errorf("request max_tokens = %d, want %d", captured.MaxTokens, maxTokens)
	}

	// system + 2 history + the new message
	if len(captured.Messages) != 4 {
		t.Fatalf("request carried %d messages, want 4", len(captured.Messages))
	}
	if captured.Messages[0].Role != "system" {
		t.Errorf("first message role = %q, want system", captured.Messages[0].Role)
	}
	if captured.Messages[1].Role != "user" {
		t.Errorf("asker's history message role = %q, want user", captured.Messages[1].Role)
	}
	if captured.Messages[2].Role != "assistant" {
		t.Errorf("other user's history message role = %q, want assistant", captured.Messages[2].Role)
	}
	if last := captured.Messages[3]; last.Role != "user" || last.Content != "What's up?" {
		t.Errorf("last message = %+v, want the new user message", last)
	}
}

func TestClient_HistoryWindowBounded(t *testing.T) {
	var captured completionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("failed to decode request: %v", err)
		}
		completionOK("ok")(w, r)
	}))
	defer server.Close()

	history := make([]domain.Message, historyWindow*3)
	for i := range history {
		history[i] = domain.Message{UserID: "asker", Content: fmt.Sprintf("msg %d", i)}
	}

	if _, err := testClient(server.URL).Complete(context.Background(), "q", history, "asker"); err != nil {
		t.Fatalf("Complete() error: %v", err)
	}

	// system + trailing window + the new message
	if got := len(captured.Messages); got != historyWindow+2 {
		t.Errorf("request carried %d messages, want %d", got, historyWindow+2)
	}
	// The window keeps the most recent history, not the oldest.
	first := captured.Messages[1].Content
	if want := fmt.Sprintf("msg %d", len(history)-historyWindow); first != want {
		t.Errorf("first history message = %q, want %q", first, want)
	}
}

func TestClient_UpstreamErrorCarriesStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, "rate limited")
	}))
	defer server.Close()

	_, err := testClient(server.URL).Complete(context.Background(), "q", nil, "asker")

	var cerr *CompletionError
	if !errors.As(err, &cerr) {
		t.Fatalf("Complete() error = %v, want *CompletionError", err)
	}
	if cerr.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want %d", cerr.StatusCode, http.StatusTooManyRequests)
	}
	if cerr.Details != "rate limited" {
		t.Errorf("Details = %q, want the upstream body", cerr.Details)
	}
}

func TestClient_NonJSONResponseRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html>not json</html>")
	}))
	defer server.Close()

	_, err := testClient(server.URL).Complete(context.Background(), "q", nil, "asker")

	var cerr *CompletionError
	if !errors.As(err, &cerr) {
		t.Fatalf("Complete() error = %v, want *CompletionError", err)
	}
}

func TestClient_EmptyChoicesFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer server.Close()

	reply, err := testClient(server.URL).Complete(context.Background(), "q", nil, "asker")
	if err != nil {
		t.Fatalf("Complete() error: %v", err)
	}
	if reply == "" {
		t.Error("Complete() returned an empty reply for empty choices")
	}
}

func TestClient_MissingAPIKey(t *testing.T) {
	client := NewClient(Config{APIURL: "http://localhost:0", Model: "m"})

	_, err := client.Complete(context.Background(), "q", nil, "asker")

	var cerr *CompletionError
	if !errors.As(err, &cerr) {
		t.Fatalf("Complete() error = %v, want *CompletionError", err)
	}
	if cerr.StatusCode != http.StatusInternalServerError {
		t.Errorf("StatusCode = %d, want 500", cerr.StatusCode)
	}
}
