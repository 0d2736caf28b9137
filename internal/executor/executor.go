package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loykin/servcur/internal/broadcast"
	"github.com/loykin/servcur/internal/domain"
	"github.com/loykin/servcur/internal/history"
	"github.com/loykin/servcur/internal/logstore"
	"github.com/loykin/servcur/internal/metrics"
)

// DefaultInboxSize bounds how many plans may wait for the dispatch loop.
const DefaultInboxSize = 32

const historyTimeout = 5 * time.Second

// Config wires an Executor to its collaborators.
type Config struct {
	InboxSize      int
	StreamCapacity int             // ring size of each live output topic
	Logs           *logstore.Store // required
	History        history.Sink    // optional
	Logger         *slog.Logger
}

// Output is the live view of one execution.
type Output struct {
	Project domain.BaseProject
	Stdout  *broadcast.Topic
	Stderr  *broadcast.Topic
}

type task struct {
	id          domain.ExecutionID
	plan        domain.Plan
	out         Output
	submittedAt time.Time
	startedAt   time.Time
}

func (t task) startedAfter() time.Duration { return t.startedAt.Sub(t.submittedAt) }

var timeNow = time.Now

func timeSince(t task) time.Duration { return timeNow().Sub(t.startedAt) }

// Executor runs submitted plans in the background. A single loop drains the
// bounded inbox and starts one goroutine per plan, so independent plans run
// concurrently while the steps of one plan run strictly in order.
type Executor struct {
	cfg    Config
	logger *slog.Logger
	ids    *domain.IDSource

	inbox    chan task
	done     chan struct{}
	loopDone chan struct{}
	submitMu sync.RWMutex
	closing  sync.Once

	liveMu sync.RWMutex
	live   map[domain.ExecutionID]Output

	running sync.WaitGroup
	active  atomic.Int64
}

func New(cfg Config) (*Executor, error) {
	if cfg.Logs == nil {
		return nil, errors.New("executor requires a log store")
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = DefaultInboxSize
	}
	if cfg.History == nil {
		cfg.History = history.Nop{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Executor{
		cfg:      cfg,
		logger:   logger.With("component", "executor"),
		ids:      domain.NewIDSource(),
		inbox:    make(chan task, cfg.InboxSize),
		done:     make(chan struct{}),
		loopDone: make(chan struct{}),
		live:     make(map[domain.ExecutionID]Output),
	}
	go e.loop()
	return e, nil
}

// Submit enqueues plan and returns its id without waiting for it to run.
// It blocks only while the inbox is full. The execution is live, and can be
// looked up, as soon as Submit returns.
func (e *Executor) Submit(ctx context.Context, plan domain.Plan) (domain.ExecutionID, error) {
	if err := plan.Validate(); err != nil {
		return "", err
	}
	e.submitMu.RLock()
	defer e.submitMu.RUnlock()
	select {
	case <-e.done:
		return "", domain.ErrClosed
	default:
	}

	t := task{
		id:   e.ids.Next(),
		plan: plan,
		out: Output{
			Project: plan.Project,
			Stdout:  broadcast.New(e.cfg.StreamCapacity),
			Stderr:  broadcast.New(e.cfg.StreamCapacity),
		},
		submittedAt: timeNow(),
	}
	e.addLive(t.id, t.out)

	select {
	case e.inbox <- t:
		metrics.IncSubmitted()
		e.logger.Debug("Execution queued", "id", t.id, "project", plan.Project.Name, "branch", plan.Project.Branch, "steps", len(plan.Steps))
		return t.id, nil
	case <-e.done:
		e.dropLive(t.id)
		return "", domain.ErrClosed
	case <-ctx.Done():
		e.dropLive(t.id)
		return "", ctx.Err()
	}
}

// Lookup returns the live output of id, or false once it finished or if it
// never existed.
func (e *Executor) Lookup(id domain.ExecutionID) (Output, bool) {
	e.liveMu.RLock()
	defer e.liveMu.RUnlock()
	out, ok := e.live[id]
	return out, ok
}

// ListLive snapshots every execution that has not finished yet.
func (e *Executor) ListLive() map[domain.ExecutionID]domain.BaseProject {
	e.liveMu.RLock()
	defer e.liveMu.RUnlock()
	out := make(map[domain.ExecutionID]domain.BaseProject, len(e.live))
	for id, o := range e.live {
		out[id] = o.Project
	}
	return out
}

// Logs returns the store finished executions are written to.
func (e *Executor) Logs() *logstore.Store { return e.cfg.Logs }

// Close stops accepting plans, discards plans still queued and waits for
// running ones until ctx is done. Running processes are never killed.
func (e *Executor) Close(ctx context.Context) error {
	e.closing.Do(func() {
		close(e.done)
		// Submit holds the read lock across its send, so this waits out
		// every caller that passed the closed check.
		e.submitMu.Lock()
		e.submitMu.Unlock()
		<-e.loopDone
		e.drainQueued()
	})

	finished := make(chan struct{})
	go func() {
		e.running.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) drainQueued() {
	for {
		select {
		case t := <-e.inbox:
			e.logger.Warn("Dropping queued execution on shutdown", "id", t.id, "project", t.plan.Project.Name, "branch", t.plan.Project.Branch)
			e.dropLive(t.id)
			metrics.IncFinished("dropped")
		default:
			return
		}
	}
}

func (e *Executor) loop() {
	defer close(e.loopDone)
	for {
		select {
		case <-e.done:
			return
		case t := <-e.inbox:
			t.startedAt = timeNow()
			e.running.Add(1)
			go e.execute(t)
		}
	}
}

func (e *Executor) addLive(id domain.ExecutionID, out Output) {
	e.liveMu.Lock()
	e.live[id] = out
	e.liveMu.Unlock()
}

// dropLive removes id and closes its topics so stream readers finish.
func (e *Executor) dropLive(id domain.ExecutionID) {
	e.liveMu.Lock()
	out, ok := e.live[id]
	delete(e.live, id)
	e.liveMu.Unlock()
	if ok {
		out.Stdout.Close()
		out.Stderr.Close()
	}
}
