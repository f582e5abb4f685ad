package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"journey-ai/internal/models"
	"journey-ai/internal/services"
)

const maxMultipartMemory = 8 << 20 // 8 MB

type Server struct {
	mux      *http.ServeMux
	planner  *services.PlannerService
	journeys *services.JourneyService
	reviews  *services.ReviewService
	ingest   *services.IngestService
	jobs     *JobManager

	// concurrency overrides the default fan-out width for requests that
	// do not specify one. Zero means keep the built-in default.
	concurrency int
}

func NewServer(
	planner *services.PlannerService,
	journeys *services.JourneyService,
	reviews *services.ReviewService,
	ingest *services.IngestService,
) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		planner:  planner,
		journeys: journeys,
		reviews:  reviews,
		ingest:   ingest,
		jobs:     NewJobManager(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

// SetDefaultConcurrency sets the fan-out width used when a generation request
// does not ask for one.
func (s *Server) SetDefaultConcurrency(n int) {
	if n > 0 {
		s.concurrency = n
	}
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/journeys/generate", s.handleGenerateJourney)
	s.mux.HandleFunc("/api/assignments/generate", s.handleGenerateAssignment)
	s.mux.HandleFunc("/api/generate/jobs", s.handleCreateJob)
	s.mux.HandleFunc("/api/generate/jobs/", s.handleJobStatus)
	s.mux.HandleFunc("/api/journeys", s.handleJourneys)
	s.mux.HandleFunc("/api/journeys/", s.handleJourneyActions)
	s.mux.HandleFunc("/api/answers/check", s.handleCheckAnswer)
	s.mux.HandleFunc("/api/refresher", s.handleRefresher)
	s.mux.HandleFunc("/api/reviews/due", s.handleDueReviews)
	s.mux.HandleFunc("/api/reviews/next", s.handleNextReview)
	s.mux.HandleFunc("/api/reviews/miss", s.handleRecordMiss)
	s.mux.HandleFunc("/api/reviews/", s.handleReviewActions)
	s.mux.HandleFunc("/api/ingest", s.handleIngest)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type journeyOptionsPayload struct {
	MaxModules    *int   `json:"maxModules"`
	IncludeTest   *bool  `json:"includeTest"`
	AllowMatching *bool  `json:"allowMatching"`
	MinLearnFirst *int   `json:"minLearnBeforeInteractive"`
	TitleHint     string `json:"titleHint"`
	Concurrency   *int   `json:"concurrency"`
	Verbosity     string `json:"verbosity"`
}

type assignmentOptionsPayload struct {
	MaxModules    *int   `json:"maxModules"`
	MinLearnFirst *int   `json:"minLearnBeforeAssignment"`
	TitleHint     string `json:"titleHint"`
	Concurrency   *int   `json:"concurrency"`
	Verbosity     string `json:"verbosity"`
}

type generateRequest struct {
	Mode    string          `json:"mode,omitempty"`
	Text    string          `json:"text"`
	Options json.RawMessage `json:"options,omitempty"`
}

func (s *Server) journeyOptions(raw json.RawMessage) services.JourneyOptions {
	opts := services.DefaultJourneyOptions()
	if s.concurrency > 0 {
		opts.Concurrency = s.concurrency
	}
	if len(raw) == 0 {
		return opts
	}
	var payload journeyOptionsPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return opts
	}
	if payload.MaxModules != nil {
		opts.MaxModules = *payload.MaxModules
	}
	if payload.IncludeTest != nil {
		opts.IncludeTest = *payload.IncludeTest
	}
	if payload.AllowMatching != nil {
		opts.AllowMatching = *payload.AllowMatching
	}
	if payload.MinLearnFirst != nil {
		opts.MinLearnFirst = *payload.MinLearnFirst
	}
	if payload.Concurrency != nil {
		opts.Concurrency = *payload.Concurrency
	}
	opts.TitleHint = payload.TitleHint
	if payload.Verbosity != "" {
		opts.Verbosity = services.Verbosity(payload.Verbosity)
	}
	return opts
}

func (s *Server) assignmentOptions(raw json.RawMessage) services.AssignmentOptions {
	opts := services.DefaultAssignmentOptions()
	if s.concurrency > 0 {
		opts.Concurrency = s.concurrency
	}
	if len(raw) == 0 {
		return opts
	}
	var payload assignmentOptionsPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return opts
	}
	if payload.MaxModules != nil {
		opts.MaxModules = *payload.MaxModules
	}
	if payload.MinLearnFirst != nil {
		opts.MinLearnFirst = *payload.MinLearnFirst
	}
	if payload.Concurrency != nil {
		opts.Concurrency = *payload.Concurrency
	}
	opts.TitleHint = payload.TitleHint
	if payload.Verbosity != "" {
		opts.Verbosity = services.Verbosity(payload.Verbosity)
	}
	return opts
}

func (s *Server) handleGenerateJourney(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var payload generateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	journey := s.planner.PlanJourney(r.Context(), payload.Text, s.journeyOptions(payload.Options), nil)
	writeJSON(w, http.StatusOK, map[string]any{"journey": journey})
}

func (s *Server) handleGenerateAssignment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var payload generateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	journey := s.planner.PlanAssignment(r.Context(), payload.Text, s.assignmentOptions(payload.Options), nil)
	writeJSON(w, http.StatusOK, map[string]any{"journey": journey})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var payload generateRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if strings.TrimSpace(payload.Text) == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}
	mode := payload.Mode
	if mode == "" {
		mode = "journey"
	}
	if mode != "journey" && mode != "assignment" {
		writeError(w, http.StatusBadRequest, "mode must be 'journey' or 'assignment'")
		return
	}

	jobID, snapshot := s.jobs.Create(mode)
	go s.runGenerationJob(context.Background(), jobID, mode, payload)

	writeJSON(w, http.StatusAccepted, snapshot)
}

func (s *Server) runGenerationJob(ctx context.Context, jobID, mode string, payload generateRequest) {
	defer func() {
		if rec := recover(); rec != nil {
			s.jobs.Fail(jobID, fmt.Sprintf("generation failed: %v", rec))
		}
	}()

	s.jobs.MarkProcessing(jobID)
	progress := func(step, message string, current, total int) {
		s.jobs.UpdateProgress(jobID, step, message, current, total)
	}

	var journey models.Journey
	if mode == "assignment" {
		journey = s.planner.PlanAssignment(ctx, payload.Text, s.assignmentOptions(payload.Options), progress)
	} else {
		journey = s.planner.PlanJourney(ctx, payload.Text, s.journeyOptions(payload.Options), progress)
	}
	s.jobs.Complete(jobID, journey)
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	jobID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/generate/jobs/"), "/")
	if jobID == "" {
		http.NotFound(w, r)
		return
	}

	job, ok := s.jobs.Get(jobID)
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleJourneys(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		saved, err := s.journeys.List(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out := make([]map[string]any, 0, len(saved))
		for _, sj := range saved {
			out = append(out, map[string]any{
				"id":          sj.ID,
				"title":       sj.Title,
				"moduleCount": len(sj.Journey.Modules),
				"createdAt":   sj.CreatedAt.Format(timeLayout),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"journeys": out})
	case http.MethodPost:
		var payload struct {
			Journey json.RawMessage `json:"journey"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		journey, err := services.DecodeJourney(string(payload.Journey))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid journey")
			return
		}
		id, err := s.journeys.Save(r.Context(), journey)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"id": id})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleJourneyActions(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/journeys/"), "/")
	parts := strings.Split(path, "/")

	switch {
	case len(parts) == 1 && parts[0] != "":
		s.handleGetJourney(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "answers":
		s.handleAnswers(w, r, parts[0])
	case len(parts) == 3 && parts[1] == "answers" && parts[2] == "pdf":
		s.handleAnswersPDF(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleGetJourney(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	sj, err := s.journeys.Get(r.Context(), id)
	if err != nil {
		if err == services.ErrJourneyNotFound {
			writeError(w, http.StatusNotFound, "journey not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":        sj.ID,
		"journey":   sj.Journey,
		"createdAt": sj.CreatedAt.Format(timeLayout),
	})
}

func (s *Server) handleAnswers(w http.ResponseWriter, r *http.Request, journeyID string) {
	switch r.Method {
	case http.MethodGet:
		answers, err := s.journeys.ListAnswers(r.Context(), journeyID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		out := make([]map[string]any, 0, len(answers))
		for _, a := range answers {
			out = append(out, map[string]any{
				"question":  a.Question,
				"answer":    a.Answer,
				"updatedAt": a.UpdatedAt.Format(timeLayout),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"answers": out})
	case http.MethodPost:
		var payload struct {
			Question string `json:"question"`
			Answer   string `json:"answer"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
		if err := s.journeys.SaveAnswer(r.Context(), journeyID, payload.Question, payload.Answer); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleAnswersPDF(w http.ResponseWriter, r *http.Request, journeyID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	title := ""
	if sj, err := s.journeys.Get(r.Context(), journeyID); err == nil {
		title = sj.Title
	}
	answers, err := s.journeys.ListAnswers(r.Context(), journeyID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	data, err := services.ExportAnswersPDF(title, answers)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="assignment.pdf"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleCheckAnswer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var payload struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	correct, feedback, err := s.reviews.CheckAnswer(r.Context(), payload.Question, payload.Answer)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"correct":  correct,
		"feedback": feedback,
	})
}

func (s *Server) handleRefresher(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var payload struct {
		Topic    string `json:"topic"`
		Question string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	hint, err := s.reviews.GenerateRefresher(r.Context(), payload.Topic, payload.Question)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"refresher": hint})
}

func (s *Server) handleDueReviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	items, err := s.reviews.ListDue(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		entry := map[string]any{
			"id":       item.ID,
			"topic":    item.Topic,
			"question": item.Question,
			"state":    item.State,
		}
		if item.Due.Valid {
			entry["due"] = item.Due.Time.Format(timeLayout)
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, map[string]any{"reviews": out})
}

func (s *Server) handleNextReview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	item, err := s.reviews.NextDue(r.Context())
	if err != nil {
		if err == services.ErrNoDueReviews {
			writeJSON(w, http.StatusOK, map[string]any{"review": nil})
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	entry := map[string]any{
		"id":       item.ID,
		"topic":    item.Topic,
		"question": item.Question,
		"state":    item.State,
	}
	if item.Due.Valid {
		entry["due"] = item.Due.Time.Format(timeLayout)
	}
	writeJSON(w, http.StatusOK, map[string]any{"review": entry})
}

func (s *Server) handleRecordMiss(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var payload struct {
		JourneyID string `json:"journeyId"`
		Topic     string `json:"topic"`
		Question  string `json:"question"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	item, err := s.reviews.RecordMiss(r.Context(), payload.JourneyID, payload.Topic, payload.Question)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": item.ID})
}

func (s *Server) handleReviewActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/reviews/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "review" {
		http.NotFound(w, r)
		return
	}

	reviewID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid review id")
		return
	}

	var payload struct {
		Rating string `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	rating, err := services.ParseRating(payload.Rating)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	item, err := s.reviews.Review(r.Context(), reviewID, rating)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	out := map[string]any{
		"id":    item.ID,
		"state": item.State,
	}
	if item.Due.Valid {
		out["due"] = item.Due.Time.Format(timeLayout)
	}
	writeJSON(w, http.StatusOK, map[string]any{"review": out})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	if form := r.MultipartForm; form != nil {
		defer form.RemoveAll()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	result, err := s.ingest.TextFromUpload(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("extract text from %s: %v", header.Filename, err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"text":  result.Text,
		"pages": result.Pages,
	})
}

const timeLayout = time.RFC3339

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
