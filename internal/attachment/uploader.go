package attachment

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/agent-console/internal/domain"
	"github.com/lexiqai/agent-console/internal/observability"
)

// ProgressFunc receives transfer progress in percent (0-100)
type ProgressFunc func(percent int)

// Transport moves a file to its destination, reporting progress as it goes
type Transport interface {
	Send(ctx context.Context, f File, progress ProgressFunc) error
}

// Uploader drives entries from Selected to Uploaded or Errored
type Uploader struct {
	transport Transport
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// NewUploader creates an uploader; metrics may be nil
func NewUploader(transport Transport, metrics *observability.Metrics) *Uploader {
	return &Uploader{
		transport: transport,
		metrics:   metrics,
		logger:    observability.ForComponent("attachment"),
	}
}

// Upload runs one transfer for e. onProgress is called with a fresh snapshot
// whenever progress advances or the entry changes state; it may be nil.
func (u *Uploader) Upload(ctx context.Context, e *Entry, onProgress func(Snapshot)) error {
	if err := e.begin(); err != nil {
		return err
	}
	notify := func() {
		if onProgress != nil {
			onProgress(e.Snapshot())
		}
	}
	notify()

	err := u.transport.Send(ctx, e.File, func(percent int) {
		if e.advance(percent) {
			notify()
		}
	})
	if err != nil {
		e.fail(domain.MessageUploadFailed)
		notify()
		u.metrics.RecordUpload("failed")
		u.metrics.RecordError(string(domain.KindUploadFailed), "attachment")
		u.logger.Warn().Err(err).Str("attachment_id", e.ID).Str("file", e.File.Name).Int("progress", e.Progress()).Msg("Upload failed")
		return fmt.Errorf("%w: %s: %w", domain.ErrUploadFailed, e.File.Name, err)
	}

	e.complete()
	notify()
	u.metrics.RecordUpload("uploaded")
	u.logger.Debug().Str("attachment_id", e.ID).Str("file", e.File.Name).Msg("Upload complete")
	return nil
}

// SimulatedTransport advances progress in fixed steps on a timer
type SimulatedTransport struct {
	Tick time.Duration
	Step int
}

func NewSimulatedTransport(tick time.Duration) *SimulatedTransport {
	return &SimulatedTransport{Tick: tick, Step: 10}
}

func (s *SimulatedTransport) Send(ctx context.Context, f File, progress ProgressFunc) error {
	step := s.Step
	if step <= 0 {
		step = 10
	}
	ticker := time.NewTicker(max(s.Tick, time.Millisecond))
	defer ticker.Stop()

	for percent := step; ; percent += step {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		progress(min(percent, 100))
		if percent >= 100 {
			return nil
		}
	}
}

// HTTPTransport streams the file body to an upload endpoint.
// Progress is derived from bytes handed to the connection.
type HTTPTransport struct {
	url    string
	client *http.Client
}

func NewHTTPTransport(url string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{url: url, client: client}
}

func (h *HTTPTransport) Send(ctx context.Context, f File, progress ProgressFunc) error {
	if f.Path == "" {
		return fmt.Errorf("no local path for %s", f.Name)
	}
	file, err := os.Open(f.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", f.Path, err)
	}
	defer file.Close()

	body := &progressReader{reader: file, total: f.Size, progress: progress}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.ContentLength = f.Size
	req.Header.Set("Content-Type", f.MIMEType)
	req.Header.Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": f.Name}))

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upload endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	progress(100)
	return nil
}

type progressReader struct {
	reader   io.Reader
	total    int64
	read     atomic.Int64
	progress ProgressFunc
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 && r.total > 0 {
		done := r.read.Add(int64(n))
		// 100 is reported only once the server has accepted the body.
		r.progress(int(min(done*100/r.total, 99)))
	}
	return n, err
}
