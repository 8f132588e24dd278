// Package storetest provides an in-memory fake implementing store.Store,
// for use in planner/executor/stopcoord unit tests that should not pay for
// a real SQLite file.
package storetest

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dagplan/dagplan/internal/store"
)

// Store is a map-backed, mutex-guarded fake implementing store.Store.
type Store struct {
	mu           sync.Mutex
	agents       map[string]*store.Agent
	dags         map[string]*store.DAG
	executions   map[string]*store.Execution
	subSteps     map[string]*store.SubStep // keyed by executionID+"/"+taskID
	stopRequests map[string]*store.StopRequest
}

// New returns an empty fake store.
func New() *Store {
	return &Store{
		agents:       make(map[string]*store.Agent),
		dags:         make(map[string]*store.DAG),
		executions:   make(map[string]*store.Execution),
		subSteps:     make(map[string]*store.SubStep),
		stopRequests: make(map[string]*store.StopRequest),
	}
}

func (s *Store) Close() error { return nil }

func clonePtr[T any](v *T) *T {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

// --- agents ---------------------------------------------------------------

func (s *Store) CreateAgent(_ context.Context, a *store.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	cp := *a
	s.agents[a.ID] = &cp
	return nil
}

func (s *Store) GetAgent(_ context.Context, id string) (*store.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[id]
	if !ok {
		return nil, store.ErrAgentNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) GetActiveAgentByName(_ context.Context, name string) (*store.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.agents {
		if a.Name == name && a.Active {
			cp := *a
			return &cp, nil
		}
	}
	return nil, store.ErrAgentNotFound
}

func (s *Store) ListAgents(_ context.Context) ([]*store.Agent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*store.Agent, 0, len(s.agents))
	for _, a := range s.agents {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) Activate(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.agents[id]
	if !ok {
		return store.ErrAgentNotFound
	}
	for _, a := range s.agents {
		if a.Name == target.Name && a.Active {
			a.Active = false
			a.UpdatedAt = time.Now().UTC()
		}
	}
	target.Active = true
	target.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) UpdateAgent(_ context.Context, a *store.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[a.ID]; !ok {
		return store.ErrAgentNotFound
	}
	a.UpdatedAt = time.Now().UTC()
	cp := *a
	s.agents[a.ID] = &cp
	return nil
}

func (s *Store) DeleteAgent(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return store.ErrAgentNotFound
	}
	delete(s.agents, id)
	return nil
}

// --- dags -------------------------------------------------------------

func (s *Store) CreateDAG(_ context.Context, d *store.DAG) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	d.CreatedAt, d.UpdatedAt = now, now
	cp := *d
	s.dags[d.ID] = &cp
	return nil
}

func (s *Store) GetDAG(_ context.Context, id string) (*store.DAG, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dags[id]
	if !ok {
		return nil, store.ErrDAGNotFound
	}
	cp := *d
	return &cp, nil
}

func (s *Store) UpdateDAG(_ context.Context, d *store.DAG) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dags[d.ID]; !ok {
		return store.ErrDAGNotFound
	}
	d.UpdatedAt = time.Now().UTC()
	cp := *d
	s.dags[d.ID] = &cp
	return nil
}

func (s *Store) ListScheduledDAGs(_ context.Context) ([]*store.DAG, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.DAG
	for _, d := range s.dags {
		if d.ScheduleActive && d.CronSchedule != "" {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) DeleteDAG(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.dags[id]; !ok {
		return store.ErrDAGNotFound
	}
	for _, e := range s.executions {
		if e.DAGID == id {
			return store.ErrDAGInUse
		}
	}
	delete(s.dags, id)
	return nil
}

// --- executions ---------------------------------------------------------

func (s *Store) CreateExecution(_ context.Context, e *store.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now
	cp := *e
	s.executions[e.ID] = &cp
	return nil
}

func (s *Store) GetExecution(_ context.Context, id string) (*store.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.executions[id]
	if !ok {
		return nil, store.ErrExecutionNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *Store) UpdateExecution(_ context.Context, e *store.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[e.ID]; !ok {
		return store.ErrExecutionNotFound
	}
	e.UpdatedAt = time.Now().UTC()
	cp := *e
	s.executions[e.ID] = &cp
	return nil
}

func (s *Store) ListExecutions(_ context.Context, filter store.ExecutionFilter) ([]*store.Execution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.Execution
	for _, e := range s.executions {
		if filter.DAGID != "" && e.DAGID != filter.DAGID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (s *Store) DeleteExecution(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[id]; !ok {
		return store.ErrExecutionNotFound
	}
	delete(s.executions, id)
	for k, st := range s.subSteps {
		if st.ExecutionID == id {
			delete(s.subSteps, k)
		}
	}
	return nil
}

// --- sub-steps ------------------------------------------------------------

func subStepKey(executionID, taskID string) string { return executionID + "/" + taskID }

func (s *Store) CreateSubStep(_ context.Context, st *store.SubStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	st.CreatedAt, st.UpdatedAt = now, now
	cp := *st
	s.subSteps[subStepKey(st.ExecutionID, st.TaskID)] = &cp
	return nil
}

func (s *Store) GetSubStep(_ context.Context, executionID, taskID string) (*store.SubStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.subSteps[subStepKey(executionID, taskID)]
	if !ok {
		return nil, store.ErrSubStepNotFound
	}
	cp := *st
	return &cp, nil
}

func (s *Store) UpdateSubStep(_ context.Context, st *store.SubStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := subStepKey(st.ExecutionID, st.TaskID)
	if _, ok := s.subSteps[key]; !ok {
		return store.ErrSubStepNotFound
	}
	st.UpdatedAt = time.Now().UTC()
	cp := *st
	s.subSteps[key] = &cp
	return nil
}

func (s *Store) ListSubSteps(_ context.Context, executionID string) ([]*store.SubStep, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*store.SubStep
	for _, st := range s.subSteps {
		if st.ExecutionID == executionID {
			cp := *st
			out = append(out, &cp)
		}
	}
	return out, nil
}

// --- stop requests --------------------------------------------------------

func (s *Store) CreateStopRequest(_ context.Context, r *store.StopRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if (r.DAGID == nil) == (r.ExecutionID == nil) {
		return store.ErrInvalidStopRequest
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.RequestedAt.IsZero() {
		r.RequestedAt = time.Now().UTC()
	}
	if r.Status == "" {
		r.Status = store.StopRequestPending
	}
	cp := *r
	cp.DAGID = clonePtr(r.DAGID)
	cp.ExecutionID = clonePtr(r.ExecutionID)
	s.stopRequests[r.ID] = &cp
	return nil
}

func (s *Store) PendingForDAG(_ context.Context, dagID string) (*store.StopRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *store.StopRequest
	for _, r := range s.stopRequests {
		if r.DAGID != nil && *r.DAGID == dagID && r.Status == store.StopRequestPending {
			if latest == nil || r.RequestedAt.After(latest.RequestedAt) {
				latest = r
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *Store) PendingForExecution(_ context.Context, executionID string) (*store.StopRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *store.StopRequest
	for _, r := range s.stopRequests {
		if r.ExecutionID != nil && *r.ExecutionID == executionID && r.Status == store.StopRequestPending {
			if latest == nil || r.RequestedAt.After(latest.RequestedAt) {
				latest = r
			}
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *Store) MarkHandled(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.stopRequests[id]
	if !ok {
		return store.ErrStopRequestNotFound
	}
	r.Status = store.StopRequestHandled
	now := time.Now().UTC()
	r.HandledAt = &now
	return nil
}

var _ store.Store = (*Store)(nil)
