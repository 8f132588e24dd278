package executor

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/dagplan/dagplan/internal/eventbus"
	"github.com/dagplan/dagplan/internal/llm"
	"github.com/dagplan/dagplan/internal/store"
)

// run drives one execution's wave scheduler to a terminal state:
// completed, failed, suspended, or pending (via a stop/abort). It owns
// cancel and always calls it so detachedRunContext's abort-merge
// goroutine, if any, exits.
func (e *Executor) run(ctx context.Context, cancel context.CancelFunc, executionID string, plan *store.Plan, cfg ExecutionConfig) {
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			e.suspend(context.WithoutCancel(ctx), executionID, fmt.Sprintf("panic: %v", r), cfg)
		}
	}()

	ctx, span := tracer.Start(ctx, "run")
	defer span.End()

	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		e.logger.Error("executor: load execution for run", "executionId", executionID, "error", err)
		return
	}
	now := e.clock()
	if exec.StartedAt == nil {
		exec.StartedAt = &now
	}
	exec.Status = store.ExecutionRunning
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		e.logger.Error("executor: mark execution running", "executionId", executionID, "error", err)
		return
	}
	e.emit(executionID, eventbus.Started, cfg, nil)

	agents, err := e.prefetchAgents(ctx, plan)
	if err != nil {
		e.suspend(ctx, executionID, fmt.Sprintf("prefetch agents: %v", err), cfg)
		return
	}

	executed, results, err := e.seedFromCompletedSubSteps(ctx, executionID)
	if err != nil {
		e.suspend(ctx, executionID, fmt.Sprintf("seed resumed state: %v", err), cfg)
		return
	}

	wave := 0
	for len(executed) < len(plan.Tasks) {
		stopped, err := e.stops.HasActiveStopRequestForExecution(ctx, executionID)
		if err != nil {
			e.suspend(ctx, executionID, fmt.Sprintf("probe stop request: %v", err), cfg)
			return
		}
		if stopped {
			e.handleStopDuringExecution(ctx, executionID, cfg)
			return
		}

		ready := readyTasks(plan.Tasks, executed)
		if len(ready) == 0 {
			e.fail(ctx, executionID, ErrDeadlock.Error(), cfg)
			return
		}

		wave++
		taskIDs := make([]string, len(ready))
		for i, t := range ready {
			taskIDs[i] = t.ID
		}
		e.emit(executionID, eventbus.WaveStarted, cfg, map[string]any{"wave": wave, "taskIds": taskIDs, "parallel": len(ready)})

		for _, t := range ready {
			if err := e.markRunning(ctx, executionID, t.ID); err != nil {
				e.suspend(ctx, executionID, fmt.Sprintf("mark task running: %v", err), cfg)
				return
			}
			e.emit(executionID, eventbus.TaskStarted, cfg, map[string]any{"taskId": t.ID})
		}

		waveCtx, waveSpan := tracer.Start(ctx, "wave")
		outcomes := e.runWave(waveCtx, executionID, plan, ready, results, agents, cfg)
		waveSpan.End()

		anyAborted := false
		var taskFailure error
		for _, out := range outcomes {
			switch {
			case out.aborted:
				anyAborted = true
				if err := e.resetTaskToPending(ctx, executionID, out.taskID); err != nil {
					e.logger.Error("executor: reset aborted task", "executionId", executionID, "taskId", out.taskID, "error", err)
				}
			case out.err != nil:
				if taskFailure == nil {
					taskFailure = out.err
				}
				if err := e.markFailed(ctx, executionID, out.taskID, out.err, cfg); err != nil {
					e.logger.Error("executor: persist failed task", "executionId", executionID, "taskId", out.taskID, "error", err)
				}
			default:
				if err := e.markCompleted(ctx, executionID, out, cfg); err != nil {
					e.suspend(ctx, executionID, fmt.Sprintf("persist completed task: %v", err), cfg)
					return
				}
				executed[out.taskID] = true
				results[out.taskID] = out.result
			}
		}

		// Failed tasks already persisted immediately above; a failure
		// re-raises, ending the wave loop early before WaveCompleted is
		// ever emitted for this wave, and the execution suspends with
		// the failing task's own error as its reason.
		if taskFailure != nil {
			e.suspend(ctx, executionID, taskFailure.Error(), cfg)
			return
		}

		e.emit(executionID, eventbus.WaveCompleted, cfg, map[string]any{"wave": wave, "completedTasks": len(executed), "totalTasks": len(plan.Tasks)})

		if anyAborted {
			e.handleStopDuringExecution(ctx, executionID, cfg)
			return
		}

		stopped, err = e.stops.HasActiveStopRequestForExecution(ctx, executionID)
		if err != nil {
			e.suspend(ctx, executionID, fmt.Sprintf("probe stop request: %v", err), cfg)
			return
		}
		if stopped {
			e.handleStopDuringExecution(ctx, executionID, cfg)
			return
		}
	}

	e.runSynthesis(ctx, executionID, plan, results, cfg)
}

// runWave fans out every ready task in parallel and blocks until all
// have settled. There is no concurrency cap beyond what the tool
// implementations themselves impose.
func (e *Executor) runWave(ctx context.Context, executionID string, plan *store.Plan, ready []store.PlanTask, resultsSoFar map[string]any, agents map[string]*store.Agent, cfg ExecutionConfig) []taskOutcome {
	outcomes := make([]taskOutcome, len(ready))
	var wg sync.WaitGroup
	wg.Add(len(ready))
	for i, t := range ready {
		go func(i int, t store.PlanTask) {
			defer wg.Done()
			outcomes[i] = e.executeTask(ctx, executionID, e.artifactsDir, plan, t, resultsSoFar, agents, cfg)
		}(i, t)
	}
	wg.Wait()
	return outcomes
}

// readyTasks selects every task not yet executed whose dependencies are
// all executed (or literally ["none"]).
func readyTasks(tasks []store.PlanTask, executed map[string]bool) []store.PlanTask {
	var ready []store.PlanTask
	for _, t := range tasks {
		if executed[t.ID] {
			continue
		}
		if dependenciesSatisfied(t.Dependencies, executed) {
			ready = append(ready, t)
		}
	}
	return ready
}

func dependenciesSatisfied(deps []string, executed map[string]bool) bool {
	if len(deps) == 0 {
		return true
	}
	if len(deps) == 1 && strings.EqualFold(strings.TrimSpace(deps[0]), "none") {
		return true
	}
	for _, d := range deps {
		if !executed[d] {
			return false
		}
	}
	return true
}

// prefetchAgents loads every agent referenced by an inference task in
// parallel, avoiding a per-task DB read. An agent
// that fails to load is simply omitted from the map rather than aborting
// the whole run: executeInferenceTask's own lookup then fails only the
// task(s) that reference it, consistent with how a missing tool fails
// only its own task.
func (e *Executor) prefetchAgents(ctx context.Context, plan *store.Plan) (map[string]*store.Agent, error) {
	names := make(map[string]bool)
	for _, t := range plan.Tasks {
		if isInferenceTask(t) {
			names[t.Name] = true
		}
	}
	if len(names) == 0 {
		return map[string]*store.Agent{}, nil
	}

	type loaded struct {
		name  string
		agent *store.Agent
		err   error
	}
	out := make(chan loaded, len(names))
	for name := range names {
		go func(name string) {
			agent, err := e.store.GetActiveAgentByName(ctx, name)
			out <- loaded{name: name, agent: agent, err: err}
		}(name)
	}

	agents := make(map[string]*store.Agent, len(names))
	for range names {
		l := <-out
		if l.err != nil {
			e.logger.Warn("executor: prefetch agent failed, referencing task(s) will fail individually", "agent", l.name, "error", l.err)
			continue
		}
		agents[l.name] = l.agent
	}
	return agents, nil
}

// seedFromCompletedSubSteps returns empty sets on a fresh execution; on
// a resumed one, it
// pre-populates executed/results from sub-steps already completed
// (the reserved synthesis row, TaskID SynthesisTaskID, is skipped).
func (e *Executor) seedFromCompletedSubSteps(ctx context.Context, executionID string) (map[string]bool, map[string]any, error) {
	steps, err := e.store.ListSubSteps(ctx, executionID)
	if err != nil {
		return nil, nil, err
	}
	executed := make(map[string]bool)
	results := make(map[string]any)
	for _, s := range steps {
		if s.TaskID == store.SynthesisTaskID {
			continue
		}
		if s.Status == store.SubStepCompleted {
			executed[s.TaskID] = true
			results[s.TaskID] = s.Result
		}
	}
	return executed, results, nil
}

func (e *Executor) markRunning(ctx context.Context, executionID, taskID string) error {
	step, err := e.store.GetSubStep(ctx, executionID, taskID)
	if err != nil {
		return err
	}
	now := e.clock()
	step.Status = store.SubStepRunning
	step.StartedAt = &now
	return e.store.UpdateSubStep(ctx, step)
}

func (e *Executor) markCompleted(ctx context.Context, executionID string, out taskOutcome, cfg ExecutionConfig) error {
	step, err := e.store.GetSubStep(ctx, executionID, out.taskID)
	if err != nil {
		return err
	}
	completedAt := e.clock()
	if step.StartedAt != nil {
		step.DurationMs = completedAt.Sub(*step.StartedAt).Milliseconds()
	}
	step.Status = store.SubStepCompleted
	step.CompletedAt = &completedAt
	step.Result = out.result
	step.Usage = out.usage
	step.GenerationStats = out.genStats
	if out.costUSD != "" {
		costUSD := out.costUSD
		step.CostUSD = &costUSD
	}
	if err := e.store.UpdateSubStep(ctx, step); err != nil {
		return err
	}
	e.emit(executionID, eventbus.TaskCompleted, cfg, map[string]any{"taskId": out.taskID})
	return nil
}

func (e *Executor) markFailed(ctx context.Context, executionID, taskID string, taskErr error, cfg ExecutionConfig) error {
	step, err := e.store.GetSubStep(ctx, executionID, taskID)
	if err != nil {
		return err
	}
	completedAt := e.clock()
	if step.StartedAt != nil {
		step.DurationMs = completedAt.Sub(*step.StartedAt).Milliseconds()
	}
	step.Status = store.SubStepFailed
	step.CompletedAt = &completedAt
	step.Error = taskErr.Error()
	if err := e.store.UpdateSubStep(ctx, step); err != nil {
		return err
	}
	e.emit(executionID, eventbus.TaskFailed, cfg, map[string]any{"taskId": taskID, "error": taskErr.Error()})
	return nil
}

func (e *Executor) resetTaskToPending(ctx context.Context, executionID, taskID string) error {
	step, err := e.store.GetSubStep(ctx, executionID, taskID)
	if err != nil {
		return err
	}
	step.Status = store.SubStepPending
	step.StartedAt = nil
	return e.store.UpdateSubStep(ctx, step)
}

// handleStopDuringExecution pauses a run in place: running sub-steps
// reset to pending, completed/failed rows untouched,
// the execution itself set pending, and the StopRequest marked handled.
func (e *Executor) handleStopDuringExecution(ctx context.Context, executionID string, cfg ExecutionConfig) {
	steps, err := e.store.ListSubSteps(ctx, executionID)
	if err != nil {
		e.logger.Error("executor: list sub-steps on stop", "executionId", executionID, "error", err)
	}
	for _, s := range steps {
		if s.Status != store.SubStepRunning {
			continue
		}
		s.Status = store.SubStepPending
		s.StartedAt = nil
		if err := e.store.UpdateSubStep(ctx, s); err != nil {
			e.logger.Error("executor: reset running sub-step on stop", "executionId", executionID, "taskId", s.TaskID, "error", err)
		}
	}

	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		e.logger.Error("executor: load execution to stop", "executionId", executionID, "error", err)
		return
	}
	exec.Status = store.ExecutionPending
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		e.logger.Error("executor: persist stopped execution", "executionId", executionID, "error", err)
		return
	}
	if err := e.stops.MarkStopRequestHandledForExecution(ctx, executionID); err != nil {
		e.logger.Error("executor: mark stop request handled", "executionId", executionID, "error", err)
	}
	e.emit(executionID, eventbus.Stopped, cfg, nil)
}

// suspend marks an execution suspended after an unhandled error.
func (e *Executor) suspend(ctx context.Context, executionID, reason string, cfg ExecutionConfig) {
	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		e.logger.Error("executor: load execution to suspend", "executionId", executionID, "error", err)
		return
	}
	var completed, failed int
	if steps, listErr := e.store.ListSubSteps(ctx, executionID); listErr == nil {
		for _, s := range steps {
			if s.TaskID == store.SynthesisTaskID {
				continue
			}
			switch s.Status {
			case store.SubStepCompleted:
				completed++
			case store.SubStepFailed:
				failed++
			}
		}
	}
	now := e.clock()
	exec.Status = store.ExecutionSuspended
	exec.SuspendedReason = reason
	exec.SuspendedAt = &now
	exec.CompletedTasks = completed
	exec.FailedTasks = failed
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		e.logger.Error("executor: persist suspended execution", "executionId", executionID, "error", err)
		return
	}
	e.emit(executionID, eventbus.Suspended, cfg, map[string]any{"message": reason})
}

// fail marks an execution failed outright, used when the scheduler
// itself cannot make progress (a malformed plan deadlock) rather than
// when a task fails.
func (e *Executor) fail(ctx context.Context, executionID, reason string, cfg ExecutionConfig) {
	var completed, failed int
	if steps, err := e.store.ListSubSteps(ctx, executionID); err == nil {
		for _, s := range steps {
			if s.TaskID == store.SynthesisTaskID {
				continue
			}
			switch s.Status {
			case store.SubStepCompleted:
				completed++
			case store.SubStepFailed:
				failed++
			}
		}
	}

	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		e.logger.Error("executor: load execution to fail", "executionId", executionID, "error", err)
		return
	}
	now := e.clock()
	exec.Status = store.ExecutionFailed
	exec.CompletedAt = &now
	if exec.StartedAt != nil {
		exec.DurationMs = now.Sub(*exec.StartedAt).Milliseconds()
	}
	exec.CompletedTasks = completed
	exec.FailedTasks = failed
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		e.logger.Error("executor: persist failed execution", "executionId", executionID, "error", err)
		return
	}
	e.emit(executionID, eventbus.Failed, cfg, map[string]any{"message": reason})
}

// subStepCounts feeds deriveExecutionStatus; the reserved synthesis row
// is excluded (it is always completed).
type subStepCounts struct {
	pending, waiting, running, completed, failed, total int
}

// deriveExecutionStatus maps sub-step counts to the execution status.
func deriveExecutionStatus(c subStepCounts) string {
	switch {
	case c.waiting > 0:
		return "waiting"
	case c.failed > 0 && c.completed+c.failed == c.total:
		if c.failed == c.total {
			return "failed"
		}
		return "partial"
	case c.completed == c.total:
		return "completed"
	case c.running > 0 || c.completed > 0:
		return "running"
	default:
		return "pending"
	}
}

// aggregateUsageCost sums token usage and parse-then-sums costUsd strings
// across every sub-step, returning a nil cost when no sub-step
// contributed one.
func aggregateUsageCost(steps []*store.SubStep) (llm.Usage, *string) {
	var total llm.Usage
	sum := new(big.Float)
	contributed := false
	for _, s := range steps {
		total.Add(s.Usage)
		if s.CostUSD == nil || *s.CostUSD == "" {
			continue
		}
		v, ok := new(big.Float).SetString(*s.CostUSD)
		if !ok {
			continue
		}
		sum.Add(sum, v)
		contributed = true
	}
	if !contributed {
		return total, nil
	}
	costUSD := sum.Text('f', 6)
	return total, &costUSD
}

// finalize persists the execution's terminal state after synthesis
// completes without an early stop or failure, deriving status from the
// sub-steps' settled counts and aggregating usage/cost across all of them
// including the synthesis row.
func (e *Executor) finalize(ctx context.Context, executionID, finalResult string, cfg ExecutionConfig) {
	steps, err := e.store.ListSubSteps(ctx, executionID)
	if err != nil {
		e.suspend(ctx, executionID, fmt.Sprintf("finalize: list sub-steps: %v", err), cfg)
		return
	}

	var counts subStepCounts
	for _, s := range steps {
		if s.TaskID == store.SynthesisTaskID {
			continue
		}
		counts.total++
		switch s.Status {
		case store.SubStepPending:
			counts.pending++
		case store.SubStepWaiting:
			counts.waiting++
		case store.SubStepRunning:
			counts.running++
		case store.SubStepCompleted:
			counts.completed++
		case store.SubStepFailed:
			counts.failed++
		}
	}
	derived := deriveExecutionStatus(counts)
	totalUsage, totalCost := aggregateUsageCost(steps)

	exec, err := e.store.GetExecution(ctx, executionID)
	if err != nil {
		e.suspend(ctx, executionID, fmt.Sprintf("finalize: load execution: %v", err), cfg)
		return
	}

	now := e.clock()
	exec.CompletedAt = &now
	if exec.StartedAt != nil {
		exec.DurationMs = now.Sub(*exec.StartedAt).Milliseconds()
	}
	exec.CompletedTasks = counts.completed
	exec.FailedTasks = counts.failed
	exec.WaitingTasks = counts.waiting
	exec.FinalResult = finalResult
	exec.SynthesisResult = finalResult
	exec.TotalUsage = totalUsage
	exec.TotalCostUSD = totalCost

	if derived == "failed" {
		exec.Status = store.ExecutionFailed
	} else {
		exec.Status = store.ExecutionCompleted
	}
	if err := e.store.UpdateExecution(ctx, exec); err != nil {
		e.logger.Error("executor: persist finalized execution", "executionId", executionID, "error", err)
		return
	}
	e.emit(executionID, eventbus.Completed, cfg, map[string]any{"status": derived})
}
