// Package batch runs many documents through the processing pipeline in
// parallel, reporting per-job status events and a final summary.
package batch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/docguard/docguard/internal/docproc"
)

// Processor handles a single document. *docproc.Pipeline satisfies it.
type Processor interface {
	Process(ctx context.Context, doc docproc.Document, req docproc.Request) (docproc.Result, error)
}

// ProcessorFactory builds one Processor per worker, so each worker owns its
// state (result cache included) and workers never share mutable structures.
type ProcessorFactory func() Processor

// Job is one queued document with its position in the submitted batch.
type Job struct {
	Index    int // position in the submitted batch, tags all events
	Filename string
	Data     []byte
	Request  docproc.Request
}

// State is a job's lifecycle stage. Done, Error, and Cancelled are terminal;
// every job reaches exactly one of them.
type State string

const (
	StateQueued     State = "queued"
	StateProcessing State = "processing"
	StateDone       State = "done"
	StateError      State = "error"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether the state ends a job's lifecycle.
func (s State) Terminal() bool {
	return s == StateDone || s == StateError || s == StateCancelled
}

// Event is a single job status transition, tagged with the job's batch
// position so consumers can re-order the interleaved stream.
type Event struct {
	BatchID  string
	JobIndex int
	Filename string
	State    State
	Err      string // set on StateError only
}

// Outcome is the terminal record of one job.
type Outcome struct {
	Job    Job
	State  State
	Result docproc.Result // valid only when State is StateDone
	Err    error          // set on StateError only
}

// Summary aggregates a finished batch.
type Summary struct {
	BatchID   string
	Total     int
	Succeeded int
	Failed    int
	Cancelled int
	CacheHits int
	Elapsed   time.Duration
}

// CancelToken requests cooperative batch cancellation. Workers observe it
// between jobs; the job currently running on each worker finishes normally.
type CancelToken struct {
	cancelled atomic.Bool
}

// Cancel marks the batch as cancelled. Safe to call from any goroutine,
// idempotent.
func (t *CancelToken) Cancel() { t.cancelled.Store(true) }

// Cancelled reports whether cancellation has been requested.
func (t *CancelToken) Cancelled() bool { return t.cancelled.Load() }

// Supervisor fans a batch of jobs out over a bounded worker pool.
type Supervisor struct {
	factory    ProcessorFactory
	maxWorkers int
	logger     *logrus.Logger
}

// NewSupervisor builds a Supervisor. maxWorkers bounds parallelism; the
// effective pool is never larger than the batch.
func NewSupervisor(factory ProcessorFactory, maxWorkers int, logger *logrus.Logger) *Supervisor {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &Supervisor{factory: factory, maxWorkers: maxWorkers, logger: logger}
}

// Run processes the batch and returns one Outcome per job, in submission
// order. Status events are sent to events if non-nil; the channel is not
// closed by Run. A failed job never stops the batch. token may be nil when
// cancellation is not needed.
func (s *Supervisor) Run(ctx context.Context, jobs []Job, events chan<- Event, token *CancelToken) ([]Outcome, Summary) {
	start := time.Now()
	batchID := uuid.NewString()
	outcomes := make([]Outcome, len(jobs))

	emit := func(ev Event) {
		ev.BatchID = batchID
		if events != nil {
			events <- ev
		}
	}

	queue := make(chan int, len(jobs))
	for i, job := range jobs {
		queue <- i
		emit(Event{JobIndex: job.Index, Filename: job.Filename, State: StateQueued})
	}
	close(queue)

	workers := s.maxWorkers
	if len(jobs) < workers {
		workers = len(jobs)
	}

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			proc := s.factory()
			for i := range queue {
				job := jobs[i]
				if (token != nil && token.Cancelled()) || gctx.Err() != nil {
					outcomes[i] = Outcome{Job: job, State: StateCancelled}
					emit(Event{JobIndex: job.Index, Filename: job.Filename, State: StateCancelled})
					continue
				}

				emit(Event{JobIndex: job.Index, Filename: job.Filename, State: StateProcessing})
				doc, err := docproc.NewDocument(job.Filename, job.Data)
				var result docproc.Result
				if err == nil {
					result, err = proc.Process(gctx, doc, job.Request)
				}
				if err != nil {
					outcomes[i] = Outcome{Job: job, State: StateError, Err: err}
					emit(Event{JobIndex: job.Index, Filename: job.Filename, State: StateError, Err: err.Error()})
					s.logger.WithError(err).WithField("filename", job.Filename).Warn("job failed")
					continue
				}
				outcomes[i] = Outcome{Job: job, State: StateDone, Result: result}
				emit(Event{JobIndex: job.Index, Filename: job.Filename, State: StateDone})
			}
			return nil
		})
	}
	_ = g.Wait()

	summary := Summary{BatchID: batchID, Total: len(jobs), Elapsed: time.Since(start)}
	for _, outcome := range outcomes {
		switch outcome.State {
		case StateDone:
			summary.Succeeded++
			if outcome.Result.Metadata.CacheHit {
				summary.CacheHits++
			}
		case StateError:
			summary.Failed++
		case StateCancelled:
			summary.Cancelled++
		}
	}
	return outcomes, summary
}
