package storage

import "testing"

func TestTransactionManagerBeginCommit(t *testing.T) {
	clog := NewCommitLog()
	txns := NewTransactionManager(clog)

	tx := txns.Begin()
	if tx.ID == 0 {
		t.Fatal("begin must never allocate tx id 0")
	}
	if clog.Status(tx.ID) != TxInProgress {
		t.Errorf("expected in_progress, got %v", clog.Status(tx.ID))
	}

	if err := txns.Commit(tx.ID); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if clog.Status(tx.ID) != TxCommitted {
		t.Errorf("expected committed, got %v", clog.Status(tx.ID))
	}
	if _, ok := txns.Lookup(tx.ID); ok {
		t.Error("committed tx should no longer be active")
	}
}

func TestTransactionManagerCommitWithoutActive(t *testing.T) {
	txns := NewTransactionManager(NewCommitLog())
	if err := txns.Commit(999); err == nil {
		t.Fatal("expected NoActiveTransaction error")
	}
	var e *Error
	if err := txns.Commit(999); !errorsAs(err, &e) || e.Kind != KindNoActiveTransaction {
		t.Fatalf("expected KindNoActiveTransaction, got %v", err)
	}
}

func TestSnapshotWasActiveExcludesSelf(t *testing.T) {
	txns := NewTransactionManager(NewCommitLog())
	tx := txns.Begin()
	if tx.Snapshot.WasActive(tx.ID) {
		t.Error("a snapshot must never report its own id as active")
	}
}

func TestSnapshotCapturesConcurrentActiveSet(t *testing.T) {
	txns := NewTransactionManager(NewCommitLog())
	t1 := txns.Begin()
	t2 := txns.Begin()

	if !t2.Snapshot.WasActive(t1.ID) {
		t.Error("t2's snapshot should see t1 as active (t1 not yet committed)")
	}
	if err := txns.Commit(t1.ID); err != nil {
		t.Fatal(err)
	}
	t3 := txns.Begin()
	if t3.Snapshot.WasActive(t1.ID) {
		t.Error("t3's snapshot should not see t1 as active once t1 committed")
	}
}

func TestRollbackMarksAborted(t *testing.T) {
	clog := NewCommitLog()
	txns := NewTransactionManager(clog)
	tx := txns.Begin()
	if err := txns.Rollback(tx.ID); err != nil {
		t.Fatal(err)
	}
	if clog.Status(tx.ID) != TxAborted {
		t.Errorf("expected aborted, got %v", clog.Status(tx.ID))
	}
}

func TestVacuumWatermarkNoActive(t *testing.T) {
	txns := NewTransactionManager(NewCommitLog())
	tx := txns.Begin()
	txns.Commit(tx.ID)
	wm := txns.VacuumWatermark()
	if wm <= tx.ID {
		t.Errorf("watermark %d should exceed last committed id %d once nothing is active", wm, tx.ID)
	}
}

func TestVacuumWatermarkWithActive(t *testing.T) {
	txns := NewTransactionManager(NewCommitLog())
	t1 := txns.Begin()
	txns.Begin()
	wm := txns.VacuumWatermark()
	if wm != t1.ID {
		t.Errorf("watermark should equal oldest active id %d, got %d", t1.ID, wm)
	}
}

// errorsAs avoids importing "errors" in every test file transitively;
// kept tiny and local to this package's test suite.
func errorsAs(err error, target **Error) bool {
	e, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = e
	return true
}
