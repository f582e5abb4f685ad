package services

import (
	"bytes"
	"testing"
	"time"

	"journey-ai/internal/models"
)

func TestExportAnswersPDF(t *testing.T) {
	answers := []models.AssignmentAnswer{
		{Question: "What is osmosis?", Answer: "Water moving across a membrane.", UpdatedAt: time.Now()},
		{Question: "Name a noble gas.", Answer: "Argon.", UpdatedAt: time.Now()},
	}

	data, err := ExportAnswersPDF("Chemistry Homework", answers)
	if err != nil {
		t.Fatalf("ExportAnswersPDF error: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		t.Errorf("output does not look like a PDF (%d bytes)", len(data))
	}

	t.Run("no answers still renders", func(t *testing.T) {
		data, err := ExportAnswersPDF("Empty", nil)
		if err != nil {
			t.Fatalf("ExportAnswersPDF error: %v", err)
		}
		if len(data) == 0 {
			t.Error("empty output")
		}
	})
}
