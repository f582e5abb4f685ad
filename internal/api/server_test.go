package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"journey-ai/internal/db"
	"journey-ai/internal/services"
)

type erroringCompleter struct{}

func (erroringCompleter) Complete(context.Context, string, services.GenerationConfig) (string, error) {
	return "", errors.New("model offline")
}

type cannedCompleter struct{ response string }

func (c cannedCompleter) Complete(context.Context, string, services.GenerationConfig) (string, error) {
	return c.response, nil
}

func newTestServer(t *testing.T, gw services.Completer) *Server {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return NewServer(
		services.NewPlannerService(gw, nil),
		services.NewJourneyService(conn),
		services.NewReviewService(gw, conn),
		services.NewIngestService(t.TempDir(), services.NewGatewayService("", "", "", "")),
	)
}

func doJSON(t *testing.T, srv *Server, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, erroringCompleter{})
	rec := doJSON(t, srv, http.MethodGet, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/health", nil)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestGenerateJourneyEndpoint(t *testing.T) {
	srv := newTestServer(t, erroringCompleter{})

	t.Run("missing text", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/api/journeys/generate", map[string]string{"text": "  "})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("degrades to a fallback journey when the model is down", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/api/journeys/generate", map[string]string{
			"text": "Photosynthesis converts light into chemical energy.",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		var out struct {
			Journey struct {
				Title   string `json:"title"`
				Modules []struct {
					Type string `json:"type"`
				} `json:"modules"`
			} `json:"journey"`
		}
		decodeBody(t, rec, &out)
		if out.Journey.Title == "" || len(out.Journey.Modules) == 0 {
			t.Errorf("journey = %+v", out.Journey)
		}
	})

	t.Run("options are applied", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/api/journeys/generate", map[string]any{
			"text":    "Material.",
			"options": map[string]any{"includeTest": false, "maxModules": 4},
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var out struct {
			Journey struct {
				Modules []struct {
					Type string `json:"type"`
				} `json:"modules"`
			} `json:"journey"`
		}
		decodeBody(t, rec, &out)
		for _, m := range out.Journey.Modules {
			if m.Type == "Test" {
				t.Error("Test module present despite includeTest=false")
			}
		}
	})
}

func TestGenerationJobFlow(t *testing.T) {
	srv := newTestServer(t, erroringCompleter{})

	rec := doJSON(t, srv, http.MethodPost, "/api/generate/jobs", map[string]string{
		"mode": "journey",
		"text": "Some material.",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created struct {
		JobID  string `json:"jobId"`
		Status string `json:"status"`
	}
	decodeBody(t, rec, &created)
	if created.JobID == "" || created.Status != JobStatusPending {
		t.Fatalf("created = %+v", created)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		rec = doJSON(t, srv, http.MethodGet, "/api/generate/jobs/"+created.JobID, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("poll status = %d", rec.Code)
		}
		var job struct {
			Status  string `json:"status"`
			Percent int    `json:"percent"`
			Journey *struct {
				Modules []json.RawMessage `json:"modules"`
			} `json:"journey"`
		}
		decodeBody(t, rec, &job)
		if job.Status == JobStatusComplete {
			if job.Percent != 100 || job.Journey == nil || len(job.Journey.Modules) == 0 {
				t.Fatalf("job = %+v", job)
			}
			break
		}
		if job.Status == JobStatusFailed {
			t.Fatal("job failed")
		}
		if time.Now().After(deadline) {
			t.Fatal("job did not complete in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Run("unknown job", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/generate/jobs/nope", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("bad mode", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/api/generate/jobs", map[string]string{
			"mode": "poem",
			"text": "x",
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

func TestJourneyEndpoints(t *testing.T) {
	srv := newTestServer(t, erroringCompleter{})

	journey := map[string]any{
		"title": "Saved Journey",
		"modules": []map[string]any{
			{"type": "Learn", "title": "Intro", "learn": map[string]any{
				"summary": "s", "keyPoints": []string{"k"}, "imagePrompt": "",
			}},
		},
	}

	rec := doJSON(t, srv, http.MethodPost, "/api/journeys", map[string]any{"journey": journey})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var saved struct {
		ID string `json:"id"`
	}
	decodeBody(t, rec, &saved)

	t.Run("get by id", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/journeys/"+saved.ID, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var out struct {
			Journey struct {
				Title string `json:"title"`
			} `json:"journey"`
		}
		decodeBody(t, rec, &out)
		if out.Journey.Title != "Saved Journey" {
			t.Errorf("title = %q", out.Journey.Title)
		}
	})

	t.Run("list", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/journeys", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var out struct {
			Journeys []struct {
				ID          string `json:"id"`
				ModuleCount int    `json:"moduleCount"`
			} `json:"journeys"`
		}
		decodeBody(t, rec, &out)
		if len(out.Journeys) != 1 || out.Journeys[0].ModuleCount != 1 {
			t.Errorf("journeys = %+v", out.Journeys)
		}
	})

	t.Run("unknown id", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/journeys/nope", nil)
		if rec.Code != http.StatusNotFound {
			t.Errorf("status = %d, want 404", rec.Code)
		}
	})

	t.Run("answers round-trip and pdf export", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/api/journeys/"+saved.ID+"/answers", map[string]string{
			"question": "Why?",
			"answer":   "Because.",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}

		rec = doJSON(t, srv, http.MethodGet, "/api/journeys/"+saved.ID+"/answers", nil)
		var out struct {
			Answers []struct {
				Question string `json:"question"`
				Answer   string `json:"answer"`
			} `json:"answers"`
		}
		decodeBody(t, rec, &out)
		if len(out.Answers) != 1 || out.Answers[0].Answer != "Because." {
			t.Errorf("answers = %+v", out.Answers)
		}

		rec = doJSON(t, srv, http.MethodGet, "/api/journeys/"+saved.ID+"/answers/pdf", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("pdf status = %d", rec.Code)
		}
		if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
			t.Errorf("Content-Type = %q", ct)
		}
		if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
			t.Error("body is not a PDF")
		}
	})
}

func TestCheckAnswerEndpoint(t *testing.T) {
	srv := newTestServer(t, cannedCompleter{response: "Correct!"})
	rec := doJSON(t, srv, http.MethodPost, "/api/answers/check", map[string]string{
		"question": "What is 2+2?",
		"answer":   "4",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var out struct {
		Correct  bool   `json:"correct"`
		Feedback string `json:"feedback"`
	}
	decodeBody(t, rec, &out)
	if !out.Correct || out.Feedback != "Correct!" {
		t.Errorf("out = %+v", out)
	}

	t.Run("model outage maps to bad gateway", func(t *testing.T) {
		srv := newTestServer(t, erroringCompleter{})
		rec := doJSON(t, srv, http.MethodPost, "/api/answers/check", map[string]string{
			"question": "q", "answer": "a",
		})
		if rec.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", rec.Code)
		}
	})
}

func TestReviewEndpoints(t *testing.T) {
	srv := newTestServer(t, cannedCompleter{response: "A hint."})

	rec := doJSON(t, srv, http.MethodPost, "/api/reviews/miss", map[string]string{
		"topic":    "Gravity",
		"question": "What pulls objects down?",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID int64 `json:"id"`
	}
	decodeBody(t, rec, &created)

	t.Run("due list includes the miss", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/reviews/due", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var out struct {
			Reviews []struct {
				ID       int64  `json:"id"`
				Question string `json:"question"`
			} `json:"reviews"`
		}
		decodeBody(t, rec, &out)
		if len(out.Reviews) != 1 || out.Reviews[0].ID != created.ID {
			t.Errorf("reviews = %+v", out.Reviews)
		}
	})

	t.Run("next returns the same item", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/reviews/next", nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var out struct {
			Review *struct {
				ID int64 `json:"id"`
			} `json:"review"`
		}
		decodeBody(t, rec, &out)
		if out.Review == nil || out.Review.ID != created.ID {
			t.Errorf("review = %+v", out.Review)
		}
	})

	t.Run("rating reschedules", func(t *testing.T) {
		path := "/api/reviews/" + strconv.FormatInt(created.ID, 10) + "/review"
		rec := doJSON(t, srv, http.MethodPost, path, map[string]string{"rating": "good"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}

		rec = doJSON(t, srv, http.MethodGet, "/api/reviews/next", nil)
		var out struct {
			Review *json.RawMessage `json:"review"`
		}
		decodeBody(t, rec, &out)
		if out.Review != nil && string(*out.Review) != "null" {
			t.Errorf("review = %s, want null after rescheduling", *out.Review)
		}
	})

	t.Run("bad rating", func(t *testing.T) {
		path := "/api/reviews/" + strconv.FormatInt(created.ID, 10) + "/review"
		rec := doJSON(t, srv, http.MethodPost, path, map[string]string{"rating": "amazing"})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("refresher", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/api/refresher", map[string]string{
			"topic":    "Gravity",
			"question": "What pulls objects down?",
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		var out struct {
			Refresher string `json:"refresher"`
		}
		decodeBody(t, rec, &out)
		if out.Refresher != "A hint." {
			t.Errorf("refresher = %q", out.Refresher)
		}
	})
}

func TestIngestEndpoint(t *testing.T) {
	srv := newTestServer(t, erroringCompleter{})

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "notes.txt")
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte("line one\r\nline  two")); err != nil {
		t.Fatalf("write part: %v", err)
	}
	writer.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/ingest", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Text string `json:"text"`
	}
	decodeBody(t, rec, &out)
	if out.Text != "line one\nline two" {
		t.Errorf("text = %q", out.Text)
	}

	t.Run("no file", func(t *testing.T) {
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		writer.Close()
		req := httptest.NewRequest(http.MethodPost, "/api/ingest", &body)
		req.Header.Set("Content-Type", writer.FormDataContentType())
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("status = %d, want 400", rec.Code)
		}
	})
}

