package services

import (
	"context"
	"os"
	"strings"
	"testing"
)

func TestTextFromUpload(t *testing.T) {
	ctx := context.Background()
	disabled := NewGatewayService("", "", "", "")

	t.Run("plain text file", func(t *testing.T) {
		dir := t.TempDir()
		svc := NewIngestService(dir, disabled)

		got, err := svc.TextFromUpload(ctx, "notes.txt", "text/plain", strings.NewReader("line one\r\nline  two\n"))
		if err != nil {
			t.Fatalf("TextFromUpload error: %v", err)
		}
		if got.Text != "line one\nline two" {
			t.Errorf("Text = %q", got.Text)
		}
		if got.Pages != 0 {
			t.Errorf("Pages = %d, want 0", got.Pages)
		}
	})

	t.Run("upload is stored on disk", func(t *testing.T) {
		dir := t.TempDir()
		svc := NewIngestService(dir, disabled)

		if _, err := svc.TextFromUpload(ctx, "notes.txt", "text/plain", strings.NewReader("hello")); err != nil {
			t.Fatalf("TextFromUpload error: %v", err)
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("read upload dir: %v", err)
		}
		if len(entries) != 1 {
			t.Fatalf("stored files = %d, want 1", len(entries))
		}
		if !strings.HasSuffix(entries[0].Name(), ".txt") {
			t.Errorf("stored name = %q, want .txt extension kept", entries[0].Name())
		}
	})

	t.Run("image without a configured model fails", func(t *testing.T) {
		svc := NewIngestService(t.TempDir(), disabled)
		if _, err := svc.TextFromUpload(ctx, "scan.png", "image/png", strings.NewReader("not a real png")); err == nil {
			t.Error("expected an error")
		}
	})

	t.Run("corrupt pdf fails cleanly", func(t *testing.T) {
		svc := NewIngestService(t.TempDir(), disabled)
		if _, err := svc.TextFromUpload(ctx, "doc.pdf", "application/pdf", strings.NewReader("not a pdf")); err == nil {
			t.Error("expected an error")
		}
	})
}
