package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/linkmesh/linkmesh/internal/config"
	httpx "github.com/linkmesh/linkmesh/internal/http"
	"github.com/linkmesh/linkmesh/internal/logging"
	"github.com/linkmesh/linkmesh/internal/models"
	"github.com/linkmesh/linkmesh/internal/ratelimit"
)

// UploadSlot names one of the three spreadsheet slots of a run.
type UploadSlot string

const (
	SlotContent UploadSlot = "content"
	SlotLinks   UploadSlot = "links"
	SlotGSC     UploadSlot = "gsc"
)

// retryLogger adapts our logger to the retryablehttp.LeveledLogger interface.
// Info and Debug stay quiet; retries are interesting only when they go wrong.
type retryLogger struct {
	log *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.log.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.log.Warn().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{})  {}
func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {}

// Client talks to the analysis engine over HTTP.
type Client struct {
	httpClient   *nethttp.Client // retrying client for idempotent requests
	uploadClient *nethttp.Client // plain client: multipart bodies cannot be replayed
	baseURL      string
	limiter      *ratelimit.RateLimiter
	log          *logging.Logger
}

// NewClient creates an engine client from the given configuration.
func NewClient(cfg *config.Config, log *logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return nil, fmt.Errorf("API base URL is empty")
	}

	base := httpx.NewClient(cfg)

	retryClient := retryablehttp.NewClient()
	retryClient.HTTPClient = base
	retryClient.RetryMax = 4
	retryClient.RetryWaitMin = 500 * time.Millisecond
	retryClient.RetryWaitMax = 5 * time.Second
	retryClient.Logger = &retryLogger{log: log}

	return &Client{
		httpClient:   retryClient.StandardClient(),
		uploadClient: base,
		baseURL:      strings.TrimSuffix(cfg.APIBaseURL, "/"),
		limiter:      ratelimit.NewEngineRateLimiter(),
		log:          log,
	}, nil
}

// BaseURL returns the engine base URL the client was built with.
func (c *Client) BaseURL() string { return c.baseURL }

// doRequest performs a rate-limited bodyless request against the engine.
func (c *Client) doRequest(ctx context.Context, method, path string) (*nethttp.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter cancelled: %w", err)
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug().Str("method", method).Str("path", path).Err(err).Msg("engine request failed")
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// doJSON performs a rate-limited request with a JSON body.
func (c *Client) doJSON(ctx context.Context, method, path string, payload interface{}) (*nethttp.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter cancelled: %w", err)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := nethttp.NewRequestWithContext(ctx, method, c.baseURL+path, strings.NewReader(string(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// decode reads a 2xx response body into out, converting error statuses into
// StatusError (404 additionally maps to ErrJobNotFound).
func decode(resp *nethttp.Response, out interface{}) error {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == 404 {
			return fmt.Errorf("%w: %s", ErrJobNotFound, strings.TrimSpace(string(body)))
		}
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// UploadFile uploads a local spreadsheet into one of the three slots and
// returns the engine-side descriptor. wrap, when non-nil, decorates the file
// reader (used for progress display).
func (c *Client) UploadFile(ctx context.Context, slot UploadSlot, localPath string, wrap func(io.Reader) io.Reader) (models.FileDescriptor, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return models.FileDescriptor{}, fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	var src io.Reader = f
	if wrap != nil {
		src = wrap(f)
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(localPath))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, src); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := nethttp.NewRequestWithContext(ctx, "POST", c.baseURL+"/upload/"+string(slot), pr)
	if err != nil {
		return models.FileDescriptor{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	if err := c.limiter.Wait(ctx); err != nil {
		return models.FileDescriptor{}, fmt.Errorf("rate limiter cancelled: %w", err)
	}

	resp, err := c.uploadClient.Do(req)
	if err != nil {
		return models.FileDescriptor{}, fmt.Errorf("upload failed: %w", err)
	}

	var desc models.FileDescriptor
	if err := decode(resp, &desc); err != nil {
		return models.FileDescriptor{}, err
	}
	c.log.Info().Str("slot", string(slot)).Str("file", desc.Filename).Msg("Uploaded file")
	return desc, nil
}

// Segments returns the normalized segment labels found in an uploaded content
// file. They seed the rule matrix.
func (c *Client) Segments(ctx context.Context, contentPath string) ([]string, error) {
	path := "/segments?content_file=" + url.QueryEscape(contentPath)
	resp, err := c.doRequest(ctx, "GET", path)
	if err != nil {
		return nil, err
	}

	var out struct {
		Segments []string `json:"segments"`
	}
	if err := decode(resp, &out); err != nil {
		return nil, err
	}
	return out.Segments, nil
}

// GetRules fetches the stored linking rules.
func (c *Client) GetRules(ctx context.Context) (models.RuleWire, error) {
	resp, err := c.doRequest(ctx, "GET", "/rules")
	if err != nil {
		return nil, err
	}

	var envelope models.RulesEnvelope
	if err := decode(resp, &envelope); err != nil {
		return nil, err
	}
	return envelope.Rules, nil
}

// SaveRules persists the linking rules. The engine replaces the whole mapping.
func (c *Client) SaveRules(ctx context.Context, rules models.RuleWire) error {
	resp, err := c.doJSON(ctx, "POST", "/rules", models.RulesEnvelope{Rules: rules})
	if err != nil {
		return err
	}
	return decode(resp, nil)
}

// SubmitAnalysis starts an analysis run and returns the job id. Any failure is
// reported as a *SubmissionError so the workflow can surface it and retry.
func (c *Client) SubmitAnalysis(ctx context.Context, content models.FileDescriptor, links, gsc *models.FileDescriptor, analysisCfg models.AnalysisConfig) (string, error) {
	cfgJSON, err := json.Marshal(analysisCfg)
	if err != nil {
		return "", &SubmissionError{Reason: "failed to encode analysis config", Err: err}
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("content_file", content.Path)
	if links != nil {
		mw.WriteField("links_file", links.Path)
	}
	if gsc != nil {
		mw.WriteField("gsc_file", gsc.Path)
	}
	mw.WriteField("config", string(cfgJSON))
	if err := mw.Close(); err != nil {
		return "", &SubmissionError{Reason: "failed to encode submission", Err: err}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", &SubmissionError{Reason: "rate limiter cancelled", Err: err}
	}
	req, err := nethttp.NewRequestWithContext(ctx, "POST", c.baseURL+"/analyze", &body)
	if err != nil {
		return "", &SubmissionError{Reason: "failed to create request", Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &SubmissionError{Reason: "engine unreachable", Err: err}
	}

	var out models.SubmitResponse
	if err := decode(resp, &out); err != nil {
		return "", &SubmissionError{Reason: "engine rejected submission", Err: err}
	}
	if out.JobID == "" {
		return "", &SubmissionError{Reason: "engine returned an empty job id"}
	}

	c.log.Info().Str("job_id", out.JobID).Msg("Analysis submitted")
	return out.JobID, nil
}

// JobStatus fetches the current status frame for a job. Frames are decoded
// strictly: a partial or malformed body is an error, never a defaulted frame.
func (c *Client) JobStatus(ctx context.Context, jobID string) (models.StatusFrame, error) {
	resp, err := c.doRequest(ctx, "GET", "/job/"+url.PathEscape(jobID))
	if err != nil {
		return models.StatusFrame{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode == 404 {
			return models.StatusFrame{}, fmt.Errorf("%w: %s", ErrJobNotFound, strings.TrimSpace(string(body)))
		}
		return models.StatusFrame{}, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return models.StatusFrame{}, fmt.Errorf("failed to read status body: %w", err)
	}
	frame, err := models.DecodeStatusFrame(data)
	if err != nil {
		return models.StatusFrame{}, &models.ProtocolError{Err: err}
	}
	return frame, nil
}

// forceCompleteResponse tolerates the engine's minimal force-complete body,
// which omits progress and message.
type forceCompleteResponse struct {
	Status          string `json:"status"`
	Progress        *int   `json:"progress"`
	Message         string `json:"message"`
	ResultReference string `json:"result_file"`
}

// ForceComplete asks the engine to mark a stuck job complete and returns the
// resulting frame. A 404 means the engine had no result file to promote.
func (c *Client) ForceComplete(ctx context.Context, jobID string) (models.StatusFrame, error) {
	resp, err := c.doRequest(ctx, "GET", "/force-complete/"+url.PathEscape(jobID))
	if err != nil {
		return models.StatusFrame{}, err
	}

	var out forceCompleteResponse
	if err := decode(resp, &out); err != nil {
		if IsNotFound(err) {
			return models.StatusFrame{}, fmt.Errorf("%w: %v", ErrNoResults, err)
		}
		return models.StatusFrame{}, err
	}
	if out.Status != string(models.StatusCompleted) {
		return models.StatusFrame{}, fmt.Errorf("force-complete returned status %q", out.Status)
	}

	frame := models.StatusFrame{
		Status:          models.StatusCompleted,
		Progress:        100,
		Message:         out.Message,
		ResultReference: out.ResultReference,
	}
	if out.Progress != nil {
		frame.Progress = *out.Progress
	}
	if frame.Message == "" {
		frame.Message = "Analysis marked complete by operator"
	}
	return frame, nil
}

// StopJob asks the engine to stop a running analysis. The engine answers with
// a frame-shaped body: completed when a result file exists, failed otherwise.
func (c *Client) StopJob(ctx context.Context, jobID string) (models.JobStatus, string, error) {
	resp, err := c.doRequest(ctx, "POST", "/job/"+url.PathEscape(jobID)+"/stop")
	if err != nil {
		return "", "", err
	}

	var out struct {
		Status          string `json:"status"`
		Message         string `json:"message"`
		ResultReference string `json:"result_file"`
	}
	if err := decode(resp, &out); err != nil {
		return "", "", err
	}
	return models.JobStatus(out.Status), out.Message, nil
}

// Results fetches the suggestions and statistics of a completed job.
func (c *Client) Results(ctx context.Context, jobID string) (models.AnalysisResults, error) {
	resp, err := c.doRequest(ctx, "GET", "/results/"+url.PathEscape(jobID))
	if err != nil {
		return models.AnalysisResults{}, err
	}

	var results models.AnalysisResults
	if err := decode(resp, &results); err != nil {
		return models.AnalysisResults{}, err
	}
	return results, nil
}
