package api

import (
	"testing"

	"journey-ai/internal/models"
)

func TestJobManager(t *testing.T) {
	t.Run("create and fetch", func(t *testing.T) {
		m := NewJobManager()
		id, snapshot := m.Create("journey")
		if id == "" || snapshot.Status != JobStatusPending || snapshot.Mode != "journey" {
			t.Errorf("snapshot = %+v", snapshot)
		}

		got, ok := m.Get(id)
		if !ok || got.ID != id {
			t.Fatalf("Get = %+v, %v", got, ok)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		m := NewJobManager()
		if _, ok := m.Get("nope"); ok {
			t.Error("expected ok = false")
		}
	})

	t.Run("progress updates", func(t *testing.T) {
		m := NewJobManager()
		id, _ := m.Create("journey")
		m.MarkProcessing(id)
		m.UpdateProgress(id, "generate", "Generating module 3 of 6", 50, 100)

		got, _ := m.Get(id)
		if got.Status != JobStatusProcessing || got.Step != "generate" || got.Percent != 50 {
			t.Errorf("job = %+v", got)
		}
	})

	t.Run("completion carries the journey", func(t *testing.T) {
		m := NewJobManager()
		id, _ := m.Create("assignment")
		m.Complete(id, models.Journey{Title: "Done", Modules: []models.Module{}})

		got, _ := m.Get(id)
		if got.Status != JobStatusComplete || got.Percent != 100 {
			t.Errorf("job = %+v", got)
		}
		if got.Journey == nil || got.Journey.Title != "Done" {
			t.Errorf("journey = %+v", got.Journey)
		}
	})

	t.Run("failure records a message", func(t *testing.T) {
		m := NewJobManager()
		id, _ := m.Create("journey")
		m.Fail(id, "  ")

		got, _ := m.Get(id)
		if got.Status != JobStatusFailed || got.Error == "" {
			t.Errorf("job = %+v", got)
		}
	})

	t.Run("snapshots are copies", func(t *testing.T) {
		m := NewJobManager()
		id, _ := m.Create("journey")
		got, _ := m.Get(id)
		got.Status = "tampered"

		again, _ := m.Get(id)
		if again.Status != JobStatusPending {
			t.Errorf("Status = %q, snapshot mutation leaked", again.Status)
		}
	})
}

func TestPercent(t *testing.T) {
	cases := []struct {
		current, total, want int
	}{
		{0, 100, 0},
		{50, 100, 50},
		{100, 100, 100},
		{150, 100, 100},
		{-5, 100, 0},
		{7, 0, 7},
		{500, 0, 100},
	}
	for _, c := range cases {
		if got := percent(c.current, c.total); got != c.want {
			t.Errorf("percent(%d, %d) = %d, want %d", c.current, c.total, got, c.want)
		}
	}
}
