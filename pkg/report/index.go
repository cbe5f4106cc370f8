package report

import (
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/devicelab-dev/domkit/pkg/logger"
)

// progressDelay batches running-flow updates into one index write.
const progressDelay = 100 * time.Millisecond

// IndexWriter owns report.json during a run. Flow writers on many
// goroutines report through it; status changes are written at once and
// progress updates are batched.
type IndexWriter struct {
	mu    sync.Mutex
	dir   string
	index *Index
	log   *zap.Logger

	queued map[string]*FlowUpdate
	timer  *time.Timer
	closed bool

	html      *HTMLConfig
	htmlStale bool
}

// IndexOption configures an IndexWriter.
type IndexOption func(*IndexWriter)

// WithHTML regenerates report.html whenever a flow or the run changes
// status, so the page can be watched while the run is going.
func WithHTML(cfg HTMLConfig) IndexOption {
	return func(w *IndexWriter) { w.html = &cfg }
}

// NewIndexWriter creates a writer for the index of the report in dir.
func NewIndexWriter(dir string, index *Index, opts ...IndexOption) *IndexWriter {
	w := &IndexWriter{
		dir:    dir,
		index:  index,
		log:    logger.Named("report"),
		queued: make(map[string]*FlowUpdate),
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Start marks the run as running.
func (w *IndexWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.index.Status = StatusRunning
	w.index.StartTime = time.Now()
	w.htmlStale = true
	w.writeLocked()
}

// UpdateFlow records the state of one flow. A terminal status is written
// immediately; anything else is batched.
func (w *IndexWriter) UpdateFlow(flowID string, update *FlowUpdate) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.queued[flowID] = update
	if update.Status.IsTerminal() {
		w.htmlStale = true
		w.writeLocked()
		return
	}
	if w.timer == nil && !w.closed {
		w.timer = time.AfterFunc(progressDelay, w.flush)
	}
}

// RecordAttempt appends a finished attempt to a flow's history.
func (w *IndexWriter) RecordAttempt(flowID string, attempt int, status Status, duration int64, errMsg string, dataFile string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	f := w.flowLocked(flowID)
	if f == nil {
		return
	}
	f.Attempts = attempt
	f.AttemptHistory = append(f.AttemptHistory, AttemptEntry{
		Attempt:  attempt,
		DataFile: dataFile,
		Status:   status,
		Duration: duration,
		Error:    errMsg,
	})
	w.writeLocked()
}

// End derives the run status from the flows and writes the final index.
func (w *IndexWriter) End() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	w.index.EndTime = &now
	w.applyQueuedLocked()
	w.index.Status = runStatus(w.index.Flows)
	w.htmlStale = true
	w.writeLocked()
}

// Close writes anything still queued and stops batching.
func (w *IndexWriter) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.closed = true
	if len(w.queued) > 0 {
		w.writeLocked()
	}
	w.stopTimerLocked()
}

// GetIndex returns the live index. Callers must not modify it.
func (w *IndexWriter) GetIndex() *Index {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.index
}

func (w *IndexWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.timer = nil
	if w.closed {
		return
	}
	w.writeLocked()
}

// writeLocked applies queued updates, writes report.json and, when stale,
// report.html.
func (w *IndexWriter) writeLocked() {
	w.applyQueuedLocked()
	w.stopTimerLocked()

	w.index.UpdateSeq++
	w.index.LastUpdated = time.Now()
	w.index.Summary = summarizeFlows(w.index.Flows)

	path := filepath.Join(w.dir, "report.json")
	if err := atomicWriteJSON(path, w.index); err != nil {
		w.log.Warn("write report index", zap.String("path", path), zap.Error(err))
		return
	}

	if w.html != nil && w.htmlStale {
		w.htmlStale = false
		if err := GenerateHTML(w.dir, *w.html); err != nil {
			w.log.Warn("write html report", zap.String("dir", w.dir), zap.Error(err))
		}
	}
}

func (w *IndexWriter) applyQueuedLocked() {
	now := time.Now()
	for id, u := range w.queued {
		f := w.flowLocked(id)
		if f == nil {
			continue
		}
		f.Status = u.Status
		f.Commands = u.Commands
		if u.StartTime != nil {
			f.StartTime = u.StartTime
		}
		if u.EndTime != nil {
			f.EndTime = u.EndTime
		}
		if u.Duration != nil {
			f.Duration = u.Duration
		}
		if u.Error != nil {
			f.Error = u.Error
		}
		f.UpdateSeq++
		f.LastUpdated = &now
	}
	w.queued = make(map[string]*FlowUpdate)
}

func (w *IndexWriter) flowLocked(id string) *FlowEntry {
	for i := range w.index.Flows {
		if w.index.Flows[i].ID == id {
			return &w.index.Flows[i]
		}
	}
	return nil
}

func (w *IndexWriter) stopTimerLocked() {
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
