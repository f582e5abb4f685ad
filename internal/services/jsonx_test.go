package services

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// fakeCompleter scripts the generative service for tests. Calls records every
// prompt in order.
type fakeCompleter struct {
	fn func(prompt string, cfg GenerationConfig) (string, error)

	mu    sync.Mutex
	calls []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string, cfg GenerationConfig) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, prompt)
	f.mu.Unlock()
	return f.fn(prompt, cfg)
}

func (f *fakeCompleter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func staticCompleter(response string) *fakeCompleter {
	return &fakeCompleter{fn: func(string, GenerationConfig) (string, error) {
		return response, nil
	}}
}

func failingCompleter(err error) *fakeCompleter {
	return &fakeCompleter{fn: func(string, GenerationConfig) (string, error) {
		return "", err
	}}
}

func TestExtractJSON(t *testing.T) {
	t.Run("plain object", func(t *testing.T) {
		got, err := extractJSON(`{"a":1}`)
		if err != nil {
			t.Fatalf("extractJSON error: %v", err)
		}
		if got != `{"a":1}` {
			t.Errorf("extractJSON = %q", got)
		}
	})

	t.Run("object inside prose", func(t *testing.T) {
		got, err := extractJSON(`Sure! Here is the result: {"a":{"b":2}} Hope that helps.`)
		if err != nil {
			t.Fatalf("extractJSON error: %v", err)
		}
		if got != `{"a":{"b":2}}` {
			t.Errorf("extractJSON = %q", got)
		}
	})

	t.Run("markdown fences", func(t *testing.T) {
		raw := "```json\n{\"title\":\"Physics\"}\n```"
		got, err := extractJSON(raw)
		if err != nil {
			t.Fatalf("extractJSON error: %v", err)
		}
		if got != `{"title":"Physics"}` {
			t.Errorf("extractJSON = %q", got)
		}
	})

	t.Run("braces inside strings do not close the scan", func(t *testing.T) {
		raw := `{"text":"a } inside","n":1}`
		got, err := extractJSON(raw)
		if err != nil {
			t.Fatalf("extractJSON error: %v", err)
		}
		if got != raw {
			t.Errorf("extractJSON = %q", got)
		}
	})

	t.Run("escaped quotes inside strings", func(t *testing.T) {
		raw := `{"text":"she said \"hi}\"","n":1}`
		got, err := extractJSON(raw)
		if err != nil {
			t.Fatalf("extractJSON error: %v", err)
		}
		if got != raw {
			t.Errorf("extractJSON = %q", got)
		}
	})

	t.Run("truncated output is repaired to valid json", func(t *testing.T) {
		raw := `{"modules":[{"a":1},{"b":2}`
		got, err := extractJSON(raw)
		if err != nil {
			t.Fatalf("extractJSON error: %v", err)
		}
		if got != `{"modules":[{"a":1},{"b":2}]}` {
			t.Errorf("extractJSON = %q", got)
		}
	})

	t.Run("truncated mid value is unrecoverable", func(t *testing.T) {
		if _, err := extractJSON(`{"summary":"the mitochond`); !errors.Is(err, ErrNoJSON) {
			t.Errorf("err = %v, want ErrNoJSON", err)
		}
	})

	t.Run("top-level array is wrapped", func(t *testing.T) {
		got, err := extractJSON(`[{"type":"Learn"}]`)
		if err != nil {
			t.Fatalf("extractJSON error: %v", err)
		}
		want := `{"title":"","modules":[{"type":"Learn"}]}`
		if got != want {
			t.Errorf("extractJSON = %q, want %q", got, want)
		}
	})

	t.Run("no json at all", func(t *testing.T) {
		if _, err := extractJSON("I cannot help with that."); !errors.Is(err, ErrNoJSON) {
			t.Errorf("err = %v, want ErrNoJSON", err)
		}
	})
}

func TestGenerateJSON(t *testing.T) {
	ctx := context.Background()

	t.Run("first attempt succeeds", func(t *testing.T) {
		gw := staticCompleter(`{"title":"Waves"}`)
		var out struct {
			Title string `json:"title"`
		}
		generateJSON(ctx, gw, "prompt", GenerationConfig{}, &out, `{"title":"fallback"}`)
		if out.Title != "Waves" {
			t.Errorf("Title = %q, want Waves", out.Title)
		}
		if gw.callCount() != 1 {
			t.Errorf("calls = %d, want 1", gw.callCount())
		}
	})

	t.Run("retry goes strict and json-only", func(t *testing.T) {
		var sawStrict bool
		attempt := 0
		gw := &fakeCompleter{fn: func(prompt string, cfg GenerationConfig) (string, error) {
			attempt++
			if attempt == 1 {
				return "no json here", nil
			}
			sawStrict = cfg.JSONOnly
			return `{"title":"Second"}`, nil
		}}
		var out struct {
			Title string `json:"title"`
		}
		generateJSON(ctx, gw, "prompt", GenerationConfig{}, &out, `{"title":"fallback"}`)
		if out.Title != "Second" {
			t.Errorf("Title = %q, want Second", out.Title)
		}
		if !sawStrict {
			t.Error("retry did not request JSON-only output")
		}
	})

	t.Run("both attempts fail decodes fallback", func(t *testing.T) {
		gw := failingCompleter(errors.New("down"))
		var out struct {
			Title string `json:"title"`
		}
		generateJSON(ctx, gw, "prompt", GenerationConfig{}, &out, `{"title":"fallback"}`)
		if out.Title != "fallback" {
			t.Errorf("Title = %q, want fallback", out.Title)
		}
		if gw.callCount() != 2 {
			t.Errorf("calls = %d, want 2", gw.callCount())
		}
	})

	t.Run("empty response falls through", func(t *testing.T) {
		gw := staticCompleter("   \n")
		var out struct {
			Title string `json:"title"`
		}
		generateJSON(ctx, gw, "prompt", GenerationConfig{}, &out, `{"title":"fallback"}`)
		if out.Title != "fallback" {
			t.Errorf("Title = %q, want fallback", out.Title)
		}
	})
}
