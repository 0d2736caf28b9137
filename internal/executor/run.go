package executor

import (
	"context"

	"github.com/loykin/servcur/internal/domain"
	"github.com/loykin/servcur/internal/history"
	"github.com/loykin/servcur/internal/metrics"
	"github.com/loykin/servcur/internal/process"
)

// execute runs one plan to completion, persists its IoLog and then retires
// the live entry. It never lets a panic escape into the dispatch loop.
func (e *Executor) execute(t task) {
	defer e.running.Done()
	metrics.SetRunning(int(e.active.Add(1)))
	defer func() { metrics.SetRunning(int(e.active.Add(-1))) }()
	defer e.dropLive(t.id)
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Execution panicked", "id", t.id, "project", t.plan.Project.Name, "branch", t.plan.Project.Branch, "panic", r)
			metrics.IncFinished("panic")
		}
	}()

	bp := t.plan.Project
	rootTag := ""
	if root, ok := t.plan.Root(); ok {
		rootTag = root.Tag
	}
	record := history.Record{
		ID:      t.id.String(),
		Project: bp.Name,
		Branch:  bp.Branch,
		Tag:     rootTag,
		Steps:   len(t.plan.Steps),
	}
	e.emit(history.EventStarted, record)
	e.logger.Info("Execution started", "id", t.id, "project", bp.Name, "branch", bp.Branch, "steps", len(t.plan.Steps), "queued", t.startedAfter())

	root := e.runSteps(t)

	record.ExitStatus = root.ExitStatus
	record.Success = root.Success()
	record.Duration = timeSince(t)
	if path, err := e.cfg.Logs.Write(t.id, root); err != nil {
		e.logger.Error("Failed to persist execution log", "id", t.id, "error", err)
	} else {
		e.logger.Debug("Execution log written", "id", t.id, "path", path)
	}

	result := "success"
	if !record.Success {
		result = "failure"
	}
	metrics.IncFinished(result)
	e.emit(history.EventFinished, record)
	e.logger.Info("Execution finished", "id", t.id, "project", bp.Name, "branch", bp.Branch, "result", result, "exit_status", root.ExitStatus, "duration", record.Duration)
}

// runSteps executes the chain front to back. After the first failing step
// the remaining ones are recorded as skipped so the log mirrors the plan.
func (e *Executor) runSteps(t task) *domain.IoLog {
	bp := t.plan.Project
	nodes := make([]domain.IoLog, 0, len(t.plan.Steps))
	failed := false
	for i, step := range t.plan.Steps {
		if failed {
			nodes = append(nodes, domain.IoLog{
				ExitStatus: domain.SkippedStatus,
				Project:    bp,
				Tag:        step.Tag,
				Skipped:    true,
			})
			continue
		}
		e.logger.Debug("Step started", "id", t.id, "step", i, "tag", step.Tag, "command", step.Command.String())
		res := process.Run(step.Command, t.out.Stdout.Publish, t.out.Stderr.Publish)
		metrics.ObserveStep(step.Tag, res.Duration.Seconds())
		nodes = append(nodes, domain.IoLog{
			ExitStatus: res.ExitStatus,
			Project:    bp,
			Tag:        step.Tag,
			Stdout:     res.Stdout,
			Stderr:     res.Stderr,
		})
		if !res.Success() {
			failed = true
			e.logger.Warn("Step failed", "id", t.id, "step", i, "tag", step.Tag, "exit_status", res.ExitStatus, "error", res.Err)
		}
	}
	return domain.Nest(nodes)
}

func (e *Executor) emit(typ history.EventType, rec history.Record) {
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	if err := e.cfg.History.Send(ctx, history.Event{Type: typ, OccurredAt: timeNow(), Record: rec}); err != nil {
		e.logger.Warn("Failed to send history event", "id", rec.ID, "type", typ, "error", err)
	}
}
