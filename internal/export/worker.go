package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"datatree/internal/blob"
	"datatree/internal/core"
)

// Status describes the lifecycle stage of an export.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

var (
	// ErrQueueFull is returned by Enqueue when no more jobs can be buffered.
	ErrQueueFull = errors.New("export queue full")
	// ErrStopped is returned by Enqueue once Stop has been called.
	ErrStopped = errors.New("export worker stopped")
)

// Artifact is one stored rendering of a result set.
type Artifact struct {
	Key         string `json:"key"`
	Format      Format `json:"format"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size_bytes"`
	Rows        int    `json:"rows"`
}

// Record tracks an export and its artifacts.
type Record struct {
	ID          string     `json:"id"`
	Dataset     string     `json:"dataset"`
	Query       core.Query `json:"query,omitempty"`
	Dialect     string     `json:"dialect,omitempty"`
	Formats     []Format   `json:"formats"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Artifacts   []Artifact `json:"artifacts,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Positioner moves a cursor onto an item. *core.Cursor implements it.
type Positioner interface {
	MoveToItem(ctx context.Context, item core.Item) error
}

// Request asks for the rows of Dataset matching Query. Dialect, when set,
// translates the rows before rendering. With a Cursor the worker walks to the
// dataset first, so datasets outside the current view can be exported.
type Request struct {
	Dataset *core.Dataset
	Cursor  Positioner
	Query   core.Query
	Dialect string
	Formats []Format
}

// Worker renders and stores exports in the background. Jobs run one at a
// time in queue order because fetching moves the dataset's cursor.
type Worker struct {
	store  blob.Store
	prefix string
	logger logrus.FieldLogger

	queue   chan task
	mu      sync.RWMutex
	jobs    map[string]*job
	stopped bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id  string
	req Request
}

type job struct {
	record Record
	done   chan struct{}
}

// Option customises a Worker.
type Option func(*Worker)

// WithPrefix sets the key prefix artifacts are stored under.
func WithPrefix(prefix string) Option {
	return func(w *Worker) {
		if p := strings.Trim(prefix, "/"); p != "" {
			w.prefix = p + "/"
		}
	}
}

// WithLogger sets the worker logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(w *Worker) { w.logger = logger }
}

// WithQueueSize sets how many jobs can wait.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.queue = make(chan task, n)
		}
	}
}

// NewWorker returns a stopped worker storing into store.
func NewWorker(store blob.Store, opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		store:  store,
		logger: logrus.StandardLogger(),
		queue:  make(chan task, 32),
		jobs:   make(map[string]*job),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start begins processing queued exports.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop halts the worker and waits for the running job. Jobs still queued,
// including those of a worker that was never started, fail.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		w.drain()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			w.drain()
			return
		case t := <-w.queue:
			w.process(t)
		}
	}
}

// drain fails the jobs still queued when the worker stops.
func (w *Worker) drain() {
	for {
		select {
		case t := <-w.queue:
			w.fail(t.id, "worker stopped")
		default:
			return
		}
	}
}

// Enqueue validates req and schedules it. Formats default to JSON and CSV;
// duplicates are dropped. Jobs queued before Start run once it is called.
func (w *Worker) Enqueue(_ context.Context, req Request) (Record, error) {
	if w.store == nil {
		return Record{}, errors.New("export store not configured")
	}
	if req.Dataset == nil {
		return Record{}, errors.New("export dataset required")
	}
	path, err := datasetPath(req.Dataset)
	if err != nil {
		return Record{}, err
	}
	formats := req.Formats
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatCSV}
	}
	uniq := make([]Format, 0, len(formats))
	seen := make(map[Format]bool)
	for _, f := range formats {
		if _, err := ParseFormat(string(f)); err != nil {
			return Record{}, err
		}
		if !seen[f] {
			seen[f] = true
			uniq = append(uniq, f)
		}
	}
	req.Query = req.Query.Clone()
	now := time.Now().UTC()
	record := Record{
		ID:        uuid.NewString(),
		Dataset:   path,
		Query:     req.Query,
		Dialect:   req.Dialect,
		Formats:   uniq,
		Status:    StatusQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
	req.Formats = uniq

	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return Record{}, ErrStopped
	}
	select {
	case w.queue <- task{id: record.ID, req: req}:
	default:
		w.mu.Unlock()
		return Record{}, ErrQueueFull
	}
	w.jobs[record.ID] = &job{record: record, done: make(chan struct{})}
	snapshot := record.copy()
	w.mu.Unlock()
	w.logger.WithField("export", record.ID).WithField("dataset", path).Debug("export queued")
	return snapshot, nil
}

// Get returns a snapshot of the export record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	j, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return j.record.copy(), true
}

// Wait blocks until the export finishes or ctx is done.
func (w *Worker) Wait(ctx context.Context, id string) (Record, error) {
	w.mu.RLock()
	j, ok := w.jobs[id]
	w.mu.RUnlock()
	if !ok {
		return Record{}, fmt.Errorf("export %s not found", id)
	}
	select {
	case <-j.done:
	case <-ctx.Done():
		return Record{}, ctx.Err()
	}
	record, _ := w.Get(id)
	return record, nil
}

func (w *Worker) process(t task) {
	w.updateStatus(t.id, StatusRunning, "")
	if t.req.Cursor != nil {
		if err := t.req.Cursor.MoveToItem(w.ctx, t.req.Dataset); err != nil {
			w.fail(t.id, fmt.Sprintf("position cursor: %v", err))
			return
		}
	}
	rs, err := t.req.Dataset.Fetch(w.ctx, t.req.Query)
	if err != nil {
		w.fail(t.id, fmt.Sprintf("fetch failed: %v", err))
		return
	}
	if t.req.Dialect != "" {
		rs = rs.Translate(t.req.Dialect)
	}
	// an empty request query fetches the stored one
	used := t.req.Dataset.Query()
	hash, err := used.Hash()
	if err != nil {
		w.fail(t.id, err.Error())
		return
	}
	w.mu.Lock()
	record := w.jobs[t.id].record
	w.jobs[t.id].record.Query = used
	w.mu.Unlock()
	artifacts := make([]Artifact, 0, len(t.req.Formats))
	for _, f := range t.req.Formats {
		var buf bytes.Buffer
		if err := Encode(&buf, rs, f); err != nil {
			w.fail(t.id, err.Error())
			return
		}
		size := int64(buf.Len())
		key := fmt.Sprintf("%s%s/%s.%s", w.prefix, record.Dataset, hash, f)
		obj, err := w.store.Put(w.ctx, key, &buf, blob.WriteOptions{
			ContentType: f.ContentType(),
			Metadata: map[string]string{
				"export":  t.id,
				"dataset": record.Dataset,
				"rows":    strconv.Itoa(rs.Len()),
			},
			Overwrite: true,
		})
		if err != nil {
			w.fail(t.id, fmt.Sprintf("store artifact failed: %v", err))
			return
		}
		artifacts = append(artifacts, Artifact{
			Key:         obj.Key,
			Format:      f,
			ContentType: f.ContentType(),
			Size:        size,
			Rows:        rs.Len(),
		})
	}
	w.complete(t.id, artifacts)
}

func (w *Worker) updateStatus(id string, status Status, message string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if j, ok := w.jobs[id]; ok {
		j.record.Status = status
		j.record.Error = message
		j.record.UpdatedAt = time.Now().UTC()
	}
}

func (w *Worker) complete(id string, artifacts []Artifact) {
	w.finish(id, StatusSucceeded, "", artifacts)
	w.logger.WithField("export", id).WithField("artifacts", len(artifacts)).Info("export stored")
}

func (w *Worker) fail(id, reason string) {
	w.finish(id, StatusFailed, reason, nil)
	w.logger.WithField("export", id).Warn(reason)
}

func (w *Worker) finish(id string, status Status, reason string, artifacts []Artifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	defer w.mu.Unlock()
	j, ok := w.jobs[id]
	if !ok {
		return
	}
	j.record.Status = status
	j.record.Error = reason
	j.record.Artifacts = artifacts
	j.record.UpdatedAt = now
	j.record.CompletedAt = &now
	close(j.done)
}

func (r Record) copy() Record {
	dup := r
	dup.Query = r.Query.Clone()
	dup.Formats = append([]Format(nil), r.Formats...)
	if len(r.Artifacts) > 0 {
		dup.Artifacts = append([]Artifact(nil), r.Artifacts...)
	}
	if r.CompletedAt != nil {
		at := *r.CompletedAt
		dup.CompletedAt = &at
	}
	return dup
}

// datasetPath joins the ids from the top level down to ds.
func datasetPath(ds *core.Dataset) (string, error) {
	ids := []string{ds.ID()}
	parent, err := ds.Parent()
	for err == nil && !parent.IsRoot() {
		ids = append(ids, parent.ID())
		parent, err = parent.Parent()
	}
	if err != nil {
		return "", fmt.Errorf("export %s: %w", ds.ID(), err)
	}
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		ids[i], ids[j] = ids[j], ids[i]
	}
	return strings.Join(ids, "/"), nil
}
