package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

func TestGatewayDisabled(t *testing.T) {
	ctx := context.Background()
	gw := NewGatewayService("", "gpt-4o-mini", "", "dall-e-3")

	if _, err := gw.Complete(ctx, "hi", GenerationConfig{}); !errors.Is(err, ErrAIUnavailable) {
		t.Errorf("Complete err = %v, want ErrAIUnavailable", err)
	}
	if _, err := gw.GenerateImage(ctx, "a cat"); !errors.Is(err, ErrAIUnavailable) {
		t.Errorf("GenerateImage err = %v, want ErrAIUnavailable", err)
	}
	if _, err := gw.ExtractTextFromImage(ctx, "image/png", []byte{1}); !errors.Is(err, ErrAIUnavailable) {
		t.Errorf("ExtractTextFromImage err = %v, want ErrAIUnavailable", err)
	}
}

func TestGatewayComplete(t *testing.T) {
	ctx := context.Background()

	var mu sync.Mutex
	var lastBody map[string]any
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)
		mu.Lock()
		lastBody = body
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello there"}}]}`))
	}))
	defer ts.Close()

	requestBody := func() map[string]any {
		mu.Lock()
		defer mu.Unlock()
		return lastBody
	}

	gw := NewGatewayService("test-key", "gpt-4o-mini", ts.URL, "")

	t.Run("returns the message content", func(t *testing.T) {
		got, err := gw.Complete(ctx, "say hello", GenerationConfig{MaxTokens: 10})
		if err != nil {
			t.Fatalf("Complete error: %v", err)
		}
		if got != "hello there" {
			t.Errorf("Complete = %q", got)
		}
	})

	t.Run("system message included only when set", func(t *testing.T) {
		if _, err := gw.Complete(ctx, "p", GenerationConfig{System: "be brief"}); err != nil {
			t.Fatalf("Complete error: %v", err)
		}
		messages := requestBody()["messages"].([]any)
		if len(messages) != 2 {
			t.Fatalf("messages = %d, want 2", len(messages))
		}

		if _, err := gw.Complete(ctx, "p", GenerationConfig{}); err != nil {
			t.Fatalf("Complete error: %v", err)
		}
		messages = requestBody()["messages"].([]any)
		if len(messages) != 1 {
			t.Fatalf("messages = %d, want 1", len(messages))
		}
	})

	t.Run("json mode sets the response format", func(t *testing.T) {
		if _, err := gw.Complete(ctx, "p", GenerationConfig{JSONOnly: true}); err != nil {
			t.Fatalf("Complete error: %v", err)
		}
		format, ok := requestBody()["response_format"].(map[string]any)
		if !ok || format["type"] != "json_object" {
			t.Errorf("response_format = %v", requestBody()["response_format"])
		}
	})
}

func TestGatewayCompleteNoChoices(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer ts.Close()

	gw := NewGatewayService("test-key", "gpt-4o-mini", ts.URL, "")
	_, err := gw.Complete(context.Background(), "p", GenerationConfig{})
	if err == nil || !strings.Contains(err.Error(), "no choices") {
		t.Errorf("err = %v, want a no-choices error", err)
	}
}
