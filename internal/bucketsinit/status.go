package bucketsinit

import "sync"

// State is one phase's lifecycle state.
type State string

const (
	StateNotStarted State = "NOT_STARTED"
	StateStarted    State = "STARTED"
	StateDone       State = "DONE"
	StateError      State = "ERROR"
)

// PhaseStatus is the sealed shape shared by the two single-error phases
// (bucketsSetup, bucketsReindex). It is a struct, not a loose map, so a
// caller can never observe a shape the state machine didn't produce.
type PhaseStatus struct {
	State       State
	LatestError error
}

func (p PhaseStatus) clone() PhaseStatus {
	return PhaseStatus{State: p.State, LatestError: p.LatestError}
}

// DataMigrationsStatus is the sealed shape for the fan-out migration phase:
// one latest error and one completed version per model.
type DataMigrationsStatus struct {
	State        State
	LatestErrors map[string]error
	Completed    map[string]int
}

func (d DataMigrationsStatus) clone() DataMigrationsStatus {
	out := DataMigrationsStatus{
		State:        d.State,
		LatestErrors: make(map[string]error, len(d.LatestErrors)),
		Completed:    make(map[string]int, len(d.Completed)),
	}
	for k, v := range d.LatestErrors {
		out.LatestErrors[k] = v
	}
	for k, v := range d.Completed {
		out.Completed[k] = v
	}
	return out
}

// Status is the full, deep-copyable snapshot returned by Initializer.Status.
type Status struct {
	BucketsSetup   PhaseStatus
	BucketsReindex PhaseStatus
	DataMigrations DataMigrationsStatus
}

// statusModel owns the mutable status and serializes reads/writes so a
// snapshot taken by an external observer is always causally consistent with
// whichever phase transition produced it.
type statusModel struct {
	mu sync.RWMutex
	s  Status
}

func newStatusModel() *statusModel {
	return &statusModel{
		s: Status{
			BucketsSetup:   PhaseStatus{State: StateNotStarted},
			BucketsReindex: PhaseStatus{State: StateNotStarted},
			DataMigrations: DataMigrationsStatus{
				State:        StateNotStarted,
				LatestErrors: map[string]error{},
				Completed:    map[string]int{},
			},
		},
	}
}

func (m *statusModel) snapshot() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		BucketsSetup:   m.s.BucketsSetup.clone(),
		BucketsReindex: m.s.BucketsReindex.clone(),
		DataMigrations: m.s.DataMigrations.clone(),
	}
}

func (m *statusModel) setSetup(state State, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.BucketsSetup.State = state
	m.s.BucketsSetup.LatestError = err
}

func (m *statusModel) setReindex(state State, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.BucketsReindex.State = state
	m.s.BucketsReindex.LatestError = err
}

func (m *statusModel) setMigrationsState(state State) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.DataMigrations.State = state
}

func (m *statusModel) setMigrationLatestError(model string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.s.DataMigrations.LatestErrors, model)
		return
	}
	m.s.DataMigrations.LatestErrors[model] = err
}

func (m *statusModel) setMigrationCompleted(model string, version int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.DataMigrations.Completed[model] = version
}
