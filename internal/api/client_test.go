package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/linkmesh/linkmesh/internal/config"
	"github.com/linkmesh/linkmesh/internal/logging"
	"github.com/linkmesh/linkmesh/internal/models"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.New()
	cfg.APIBaseURL = server.URL

	client, err := NewClient(cfg, logging.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClientRequiresBaseURL(t *testing.T) {
	cfg := config.New()
	cfg.APIBaseURL = "  "
	if _, err := NewClient(cfg, logging.Nop()); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}

func TestUploadFile(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "pages.xlsx")
	if err := os.WriteFile(local, []byte("spreadsheet-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/upload/content" {
			t.Errorf("path = %s, want /upload/content", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		defer file.Close()
		if header.Filename != "pages.xlsx" {
			t.Errorf("filename = %s, want pages.xlsx", header.Filename)
		}
		body, _ := io.ReadAll(file)
		if string(body) != "spreadsheet-bytes" {
			t.Errorf("body = %q", body)
		}
		json.NewEncoder(w).Encode(models.FileDescriptor{
			Filename: header.Filename,
			Path:     "uploads/content_pages.xlsx",
		})
	}))

	desc, err := client.UploadFile(t.Context(), SlotContent, local, nil)
	if err != nil {
		t.Fatalf("UploadFile: %v", err)
	}
	if desc.Path != "uploads/content_pages.xlsx" {
		t.Fatalf("path = %s", desc.Path)
	}
}

func TestSubmitAnalysis(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/analyze" || r.Method != "POST" {
			t.Errorf("%s %s, want POST /analyze", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/form-data") {
			t.Errorf("Content-Type = %q, want multipart/form-data", ct)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatal(err)
		}
		if got := r.PostFormValue("content_file"); got != "uploads/content_pages.xlsx" {
			t.Errorf("content_file = %q", got)
		}
		if _, ok := r.MultipartForm.Value["links_file"]; ok {
			t.Error("links_file sent for a run without links")
		}
		var cfg models.AnalysisConfig
		if err := json.Unmarshal([]byte(r.PostFormValue("config")), &cfg); err != nil {
			t.Fatalf("config field: %v", err)
		}
		if cfg.MinSimilarity != 0.3 || cfg.AnchorSuggestions != 5 {
			t.Errorf("config = %+v", cfg)
		}
		json.NewEncoder(w).Encode(models.SubmitResponse{JobID: "abc123"})
	}))

	jobID, err := client.SubmitAnalysis(t.Context(),
		models.FileDescriptor{Path: "uploads/content_pages.xlsx", Filename: "pages.xlsx"},
		nil, nil, models.NewAnalysisConfig(0.3, 5))
	if err != nil {
		t.Fatalf("SubmitAnalysis: %v", err)
	}
	if jobID != "abc123" {
		t.Fatalf("jobID = %q", jobID)
	}
}

func TestSubmitAnalysisRejected(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown content file", http.StatusUnprocessableEntity)
	}))

	_, err := client.SubmitAnalysis(t.Context(),
		models.FileDescriptor{Path: "nope"}, nil, nil,
		models.NewAnalysisConfig(0.2, 3))

	var subErr *SubmissionError
	if !errors.As(err, &subErr) {
		t.Fatalf("err = %v, want *SubmissionError", err)
	}
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("err = %v, want wrapped 422 StatusError", err)
	}
}

func TestJobStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/job/abc123" {
			t.Errorf("path = %s", r.URL.Path)
		}
		io.WriteString(w, `{"status":"running","progress":40,"message":"Computing similarities..."}`)
	}))

	frame, err := client.JobStatus(t.Context(), "abc123")
	if err != nil {
		t.Fatalf("JobStatus: %v", err)
	}
	want := models.StatusFrame{Status: models.StatusRunning, Progress: 40, Message: "Computing similarities..."}
	if frame != want {
		t.Fatalf("frame = %+v, want %+v", frame, want)
	}
}

func TestJobStatusNotFound(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Job non trouvé"}`, http.StatusNotFound)
	}))

	_, err := client.JobStatus(t.Context(), "gone")
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestJobStatusPartialFrameIsProtocolError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"status":"running"}`)
	}))

	_, err := client.JobStatus(t.Context(), "abc123")
	var perr *models.ProtocolError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want *models.ProtocolError", err)
	}
}

func TestForceCompleteMinimalBody(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/force-complete/abc123" {
			t.Errorf("path = %s", r.URL.Path)
		}
		io.WriteString(w, `{"status":"completed","result_file":"results/r1.xlsx"}`)
	}))

	frame, err := client.ForceComplete(t.Context(), "abc123")
	if err != nil {
		t.Fatalf("ForceComplete: %v", err)
	}
	if frame.Status != models.StatusCompleted || frame.Progress != 100 {
		t.Fatalf("frame = %+v", frame)
	}
	if frame.ResultReference != "results/r1.xlsx" {
		t.Fatalf("result = %q", frame.ResultReference)
	}
	if frame.Message == "" {
		t.Fatal("message not defaulted")
	}
}

func TestForceCompleteNoResults(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"no results"}`, http.StatusNotFound)
	}))

	_, err := client.ForceComplete(t.Context(), "abc123")
	if !errors.Is(err, ErrNoResults) {
		t.Fatalf("err = %v, want ErrNoResults", err)
	}
}

func TestRulesRoundTrip(t *testing.T) {
	stored := models.RuleWire{
		"blog": {"produit": {MinLinks: 1, MaxLinks: 3}},
	}
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rules" {
			t.Errorf("path = %s", r.URL.Path)
		}
		switch r.Method {
		case "GET":
			json.NewEncoder(w).Encode(models.RulesEnvelope{Rules: stored})
		case "POST":
			var envelope models.RulesEnvelope
			if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
				t.Fatalf("decode: %v", err)
			}
			stored = envelope.Rules
			io.WriteString(w, `{"status":"ok"}`)
		}
	}))

	wire, err := client.GetRules(t.Context())
	if err != nil {
		t.Fatalf("GetRules: %v", err)
	}
	if wire["blog"]["produit"].MaxLinks != 3 {
		t.Fatalf("rules = %+v", wire)
	}

	wire["blog"]["produit"] = models.LinkingRule{MinLinks: 2, MaxLinks: 4}
	if err := client.SaveRules(t.Context(), wire); err != nil {
		t.Fatalf("SaveRules: %v", err)
	}
	if stored["blog"]["produit"].MinLinks != 2 {
		t.Fatalf("stored = %+v", stored)
	}
}

func TestSegments(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("content_file"); got != "uploads/content_pages.xlsx" {
			t.Errorf("content_file = %q", got)
		}
		io.WriteString(w, `{"segments":["blog","categorie","produit"]}`)
	}))

	segments, err := client.Segments(t.Context(), "uploads/content_pages.xlsx")
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if len(segments) != 3 || segments[0] != "blog" {
		t.Fatalf("segments = %v", segments)
	}
}

func TestStopJob(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/job/abc123/stop" || r.Method != "POST" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		io.WriteString(w, `{"status":"failed","message":"Analyse arrêtée par l'utilisateur"}`)
	}))

	status, message, err := client.StopJob(t.Context(), "abc123")
	if err != nil {
		t.Fatalf("StopJob: %v", err)
	}
	if status != models.StatusFailed || message == "" {
		t.Fatalf("status = %s, message = %q", status, message)
	}
}

func TestResults(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/results/abc123" {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(models.AnalysisResults{
			Suggestions: []models.Suggestion{{
				SourceURL: "https://example.com/a", TargetURL: "https://example.com/b",
				SourceSegment: "blog", TargetSegment: "produit", SimilarityScore: 0.72,
			}},
			Stats: models.ResultStats{TotalSuggestions: 1, TotalPages: 2},
		})
	}))

	results, err := client.Results(t.Context(), "abc123")
	if err != nil {
		t.Fatalf("Results: %v", err)
	}
	if len(results.Suggestions) != 1 || results.Stats.TotalSuggestions != 1 {
		t.Fatalf("results = %+v", results)
	}
}
