// Package upload sends claim documents to the backend strictly one file at a
// time and keeps the per-category bookkeeping that produces the claim's file
// list.
package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"claimgate/internal/upload/metrics"
	dErrors "claimgate/pkg/domain-errors"
)

const DefaultFileTimeout = 60 * time.Second

// File is one document queued for upload.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Content     io.Reader
}

// Metadata is sent as JSON alongside every file of a batch.
type Metadata map[string]any

// Uploader performs a single upload and returns the server-assigned filename.
type Uploader interface {
	Upload(ctx context.Context, metadata []byte, file File) (string, error)
}

// UploaderFunc adapts a function to Uploader.
type UploaderFunc func(ctx context.Context, metadata []byte, file File) (string, error)

func (f UploaderFunc) Upload(ctx context.Context, metadata []byte, file File) (string, error) {
	return f(ctx, metadata, file)
}

// Committed is a file that reached the backend in this batch.
type Committed struct {
	Entry
	Category    string `json:"category"`
	GlobalIndex int    `json:"global_index"`
}

type Result struct {
	Committed []Committed `json:"committed"`
}

// Pipeline is a per-session upload queue. Concurrent Enqueue calls wait for
// each other, so requests never overlap.
type Pipeline struct {
	uploader    Uploader
	ledger      *Ledger
	fileTimeout time.Duration
	maxFileSize int64
	logger      *slog.Logger
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	newHandle   func() string
	onChange    func(ctx context.Context, snapshot map[string][]Entry)

	mu sync.Mutex
}

type Option func(*Pipeline)

func WithFileTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.fileTimeout = d
		}
	}
}

// WithMaxFileSize rejects larger files before any request is made.
func WithMaxFileSize(n int64) Option {
	return func(p *Pipeline) {
		p.maxFileSize = n
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = t
	}
}

// WithOnChange registers fn to receive the bookkeeping after every upload batch
// that committed files and after every Remove. fn runs while the pipeline is
// locked, so successive snapshots arrive in the order the changes happened.
func WithOnChange(fn func(ctx context.Context, snapshot map[string][]Entry)) Option {
	return func(p *Pipeline) {
		p.onChange = fn
	}
}

func NewPipeline(uploader Uploader, ledger *Ledger, opts ...Option) *Pipeline {
	p := &Pipeline{
		uploader:    uploader,
		ledger:      ledger,
		fileTimeout: DefaultFileTimeout,
		logger:      slog.Default(),
		tracer:      otel.Tracer("claimgate/upload"),
		newHandle:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enqueue uploads files into category in order. The first failure stops the
// batch: later files are never sent, earlier ones stay in the ledger, and the
// returned *Error lists what was committed.
func (p *Pipeline) Enqueue(ctx context.Context, category string, files []File, metadata Metadata) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.ledger.Has(category) {
		return Result{}, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("unknown upload category %q", category))
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return Result{}, dErrors.Wrap(err, dErrors.CodeBadRequest, "upload metadata is not serialisable")
	}

	var result Result
	defer func() {
		if len(result.Committed) > 0 {
			p.changed(ctx)
		}
	}()
	for i, f := range files {
		committed, upErr := p.uploadOne(ctx, category, i, f, meta)
		if upErr != nil {
			upErr.Committed = committedNames(result)
			if i < len(files)-1 {
				p.logger.WarnContext(ctx, "upload batch aborted",
					"category", category, "failed_index", i, "skipped", len(files)-i-1, "cause", upErr.Cause)
				if p.metrics != nil {
					p.metrics.IncrementBatchAborted()
				}
			}
			return result, upErr
		}
		result.Committed = append(result.Committed, committed)
	}
	return result, nil
}

func (p *Pipeline) uploadOne(ctx context.Context, category string, i int, f File, meta []byte) (Committed, *Error) {
	start := time.Now()
	if p.maxFileSize > 0 && f.Size > p.maxFileSize {
		p.observe(string(CauseOversized), start)
		return Committed{}, &Error{
			Cause: CauseOversized, Category: category, File: f.Name, Index: i,
			Err: fmt.Errorf("file is %d bytes, limit %d", f.Size, p.maxFileSize),
		}
	}

	fileCtx, cancel := context.WithTimeout(ctx, p.fileTimeout)
	defer cancel()
	fileCtx, span := p.tracer.Start(fileCtx, "upload.file", trace.WithAttributes(
		attribute.String("upload.category", category),
		attribute.Int("upload.index", i),
		attribute.Int64("upload.size", f.Size),
	))
	defer span.End()

	name, err := p.uploader.Upload(fileCtx, meta, f)
	if err == nil && name == "" {
		err = fmt.Errorf("backend returned no filename")
	}
	if err != nil {
		cause, status := classify(fileCtx, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(cause))
		p.observe(string(cause), start)
		p.logger.WarnContext(ctx, "file upload failed",
			"category", category, "index", i, "cause", cause, "status", status, "error", err)
		return Committed{}, &Error{Cause: cause, Category: category, File: f.Name, Index: i, Status: status, Err: err}
	}

	entry := Entry{PreviewHandle: p.newHandle(), ServerFilename: name, OriginalName: f.Name}
	idx, err := p.ledger.Add(category, entry)
	if err != nil {
		return Committed{}, &Error{Cause: CauseGeneric, Category: category, File: f.Name, Index: i, Err: err}
	}
	p.observe("ok", start)
	return Committed{Entry: entry, Category: category, GlobalIndex: idx}, nil
}

func (p *Pipeline) observe(outcome string, start time.Time) {
	if p.metrics != nil {
		p.metrics.ObserveFile(outcome, start)
	}
}

func committedNames(r Result) []string {
	names := make([]string, 0, len(r.Committed))
	for _, c := range r.Committed {
		names = append(names, c.ServerFilename)
	}
	return names
}

// Remove deletes a previously uploaded file from the bookkeeping.
func (p *Pipeline) Remove(ctx context.Context, category string, slot int) (Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, err := p.ledger.Remove(category, slot)
	if err != nil {
		return Entry{}, err
	}
	p.changed(ctx)
	return entry, nil
}

func (p *Pipeline) changed(ctx context.Context) {
	if p.onChange != nil {
		p.onChange(ctx, p.snapshotLocked())
	}
}

func (p *Pipeline) ImageNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledger.ImageNames()
}

func (p *Pipeline) Previews() []Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledger.Previews()
}

// Snapshot returns the entries per category.
func (p *Pipeline) Snapshot() map[string][]Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshotLocked()
}

func (p *Pipeline) snapshotLocked() map[string][]Entry {
	out := make(map[string][]Entry, len(p.ledger.order))
	for _, c := range p.ledger.order {
		out[c] = p.ledger.Entries(c)
	}
	return out
}

// Restore loads bookkeeping persisted from an earlier Snapshot.
func (p *Pipeline) Restore(snapshot map[string][]Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ledger.Load(snapshot)
}

func (p *Pipeline) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ledger.Reset()
}
