package bucketsinit

import "testing"

func TestNewStatusModelStartsNotStarted(t *testing.T) {
	s := newStatusModel().snapshot()
	if s.BucketsSetup.State != StateNotStarted {
		t.Fatalf("got %v", s.BucketsSetup.State)
	}
	if s.BucketsReindex.State != StateNotStarted {
		t.Fatalf("got %v", s.BucketsReindex.State)
	}
	if s.DataMigrations.State != StateNotStarted {
		t.Fatalf("got %v", s.DataMigrations.State)
	}
}

func TestSnapshotIsDeepCopied(t *testing.T) {
	m := newStatusModel()
	m.setMigrationCompleted("users", 1)

	snap := m.snapshot()
	snap.DataMigrations.Completed["users"] = 999
	snap.DataMigrations.Completed["tampered"] = 1

	fresh := m.snapshot()
	if fresh.DataMigrations.Completed["users"] != 1 {
		t.Fatalf("mutating a snapshot must not affect the model, got %d", fresh.DataMigrations.Completed["users"])
	}
	if _, ok := fresh.DataMigrations.Completed["tampered"]; ok {
		t.Fatalf("mutating a snapshot must not affect the model")
	}
}

func TestSetMigrationLatestErrorClearsOnNil(t *testing.T) {
	m := newStatusModel()
	m.setMigrationLatestError("users", errBoom)
	if m.snapshot().DataMigrations.LatestErrors["users"] == nil {
		t.Fatalf("expected an error to be recorded")
	}
	m.setMigrationLatestError("users", nil)
	if _, ok := m.snapshot().DataMigrations.LatestErrors["users"]; ok {
		t.Fatalf("expected the error entry to be cleared")
	}
}

func TestSetSetupTransitions(t *testing.T) {
	m := newStatusModel()
	m.setSetup(StateStarted, nil)
	if got := m.snapshot().BucketsSetup.State; got != StateStarted {
		t.Fatalf("got %v", got)
	}
	m.setSetup(StateDone, nil)
	if got := m.snapshot().BucketsSetup.State; got != StateDone {
		t.Fatalf("got %v", got)
	}
}

var errBoom = &testError{"boom"}

type testError struct{ msg string }

func (e *testError) Error() string { return e.msg }
