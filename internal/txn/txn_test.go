package txn

import (
	"errors"
	"testing"
)

// fakeTuple is a minimal Tuple with a visible ref count, for assertions.
type fakeTuple struct {
	id   string
	refs int
}

func (t *fakeTuple) Ref()   { t.refs++ }
func (t *fakeTuple) Unref() { t.refs-- }

// fakeSpace is a single-key in-memory space good enough to exercise
// Replace/Commit/Rollback without a real storage engine.
type fakeSpace struct {
	name        string
	temporary   bool
	runTriggers bool
	onReplace   []Trigger
	rows        map[string]Tuple
}

func newFakeSpace(name string) *fakeSpace {
	return &fakeSpace{name: name, runTriggers: true, rows: make(map[string]Tuple)}
}

func (s *fakeSpace) Name() string          { return s.name }
func (s *fakeSpace) Temporary() bool       { return s.temporary }
func (s *fakeSpace) RunTriggers() bool     { return s.runTriggers }
func (s *fakeSpace) OnReplace() []Trigger  { return s.onReplace }

// fakeEngine implements Engine over a single fakeSpace's rows, keyed by
// the tuple's id.
type fakeEngine struct {
	finishes int
}

func (e *fakeEngine) Replace(space Space, old, new Tuple, mode ReplaceMode) (Tuple, error) {
	fs := space.(*fakeSpace)
	var key string
	if new != nil {
		key = new.(*fakeTuple).id
	} else if old != nil {
		key = old.(*fakeTuple).id
	}

	existing, present := fs.rows[key]

	switch mode {
	case DupInsert:
		if present && new != nil && old == nil {
			return nil, errors.New("duplicate key on insert")
		}
	case DupReplace:
		if !present {
			return nil, errors.New("replace of missing key")
		}
	}

	if new != nil {
		fs.rows[key] = new
	} else {
		delete(fs.rows, key)
	}

	return existing, nil
}

func (e *fakeEngine) TxnFinish(t *Txn) { e.finishes++ }

type fakeAppender struct {
	nextLSN  int64
	appended []string
	fail     bool
}

func (a *fakeAppender) Append(tm float64, typ uint16, cookie uint64, payload []byte) (Record, error) {
	if a.fail {
		return Record{}, errors.New("simulated i/o failure")
	}
	lsn := a.nextLSN
	a.nextLSN++
	a.appended = append(a.appended, string(payload))
	return Record{LSN: lsn, Tm: tm}, nil
}

type fakeSink struct {
	tuples []Tuple
}

func (s *fakeSink) AddTuple(t Tuple) { s.tuples = append(s.tuples, t) }

type fakeRequest struct {
	typ     uint16
	payload []byte
}

func (r *fakeRequest) Type() uint16               { return r.typ }
func (r *fakeRequest) Header() (Row, bool)        { return Row{}, false }
func (r *fakeRequest) Encode(body *[]byte) (int, error) {
	*body = append(*body, r.payload...)
	return 1, nil
}

func TestInsertThenDeleteRestoresEngineState(t *testing.T) {
	engine := &fakeEngine{}
	app := &fakeAppender{}
	coord := NewCoordinator(app, ModeWrite, 0, nil)
	space := newFakeSpace("widgets")

	tup := &fakeTuple{id: "k1"}

	txn1, err := coord.Begin(1)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := txn1.Replace(engine, space, nil, tup, DupInsert); err != nil {
		t.Fatalf("Replace insert: %v", err)
	}
	if err := txn1.AddRedo(&fakeRequest{typ: 1, payload: []byte("insert k1")}); err != nil {
		t.Fatalf("AddRedo: %v", err)
	}
	if err := txn1.Commit(&fakeSink{}); err != nil {
		t.Fatalf("Commit insert: %v", err)
	}

	if _, present := space.rows["k1"]; !present {
		t.Fatalf("expected k1 present after insert commit")
	}

	txn2, err := coord.Begin(1)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := txn2.Replace(engine, space, tup, nil, DupReplace); err != nil {
		t.Fatalf("Replace delete: %v", err)
	}
	if err := txn2.AddRedo(&fakeRequest{typ: 2, payload: []byte("delete k1")}); err != nil {
		t.Fatalf("AddRedo: %v", err)
	}
	if err := txn2.Commit(&fakeSink{}); err != nil {
		t.Fatalf("Commit delete: %v", err)
	}

	if len(space.rows) != 0 {
		t.Fatalf("expected engine restored to empty, got %v", space.rows)
	}
	if len(app.appended) != 2 {
		t.Fatalf("expected 2 appended records, got %d", len(app.appended))
	}
}

func TestRollbackRestoresPriorState(t *testing.T) {
	engine := &fakeEngine{}
	app := &fakeAppender{}
	coord := NewCoordinator(app, ModeWrite, 0, nil)
	space := newFakeSpace("widgets")

	original := &fakeTuple{id: "k1"}
	space.rows["k1"] = original

	replacement := &fakeTuple{id: "k1"}

	tx, err := coord.Begin(1)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.Replace(engine, space, original, replacement, DupReplace); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	if got := space.rows["k1"]; got != replacement {
		t.Fatalf("expected engine to see replacement mid-transaction")
	}

	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	if got := space.rows["k1"]; got != original {
		t.Fatalf("expected engine restored to original tuple after rollback, got %v", got)
	}
	if _, active := coord.InTxn(1); active {
		t.Fatalf("expected no active transaction after rollback")
	}
	if len(app.appended) != 0 {
		t.Fatalf("rollback must not have appended anything, got %v", app.appended)
	}
}

func TestTemporarySpaceSkipsLog(t *testing.T) {
	engine := &fakeEngine{}
	app := &fakeAppender{}
	coord := NewCoordinator(app, ModeWrite, 0, nil)
	space := newFakeSpace("scratch")
	space.temporary = true

	fired := false
	space.onReplace = []Trigger{func(t *Txn) error { fired = true; return nil }}

	tx, err := coord.Begin(1)
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if err := tx.Replace(engine, space, nil, &fakeTuple{id: "k2"}, DupInsert); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := tx.Commit(&fakeSink{}); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if len(app.appended) != 0 {
		t.Fatalf("expected no log writes for a temporary space, got %v", app.appended)
	}
	if !fired {
		t.Fatalf("expected replace trigger to fire even for a temporary space")
	}
	if _, present := space.rows["k2"]; !present {
		t.Fatalf("expected tuple present in engine despite temporary space")
	}
}

func TestBeginFailsWhileTaskHasActiveTransaction(t *testing.T) {
	coord := NewCoordinator(&fakeAppender{}, ModeWrite, 0, nil)

	if _, err := coord.Begin(7); err != nil {
		t.Fatalf("first Begin: %v", err)
	}

	_, err := coord.Begin(7)
	var already *TxnAlreadyActiveError
	if !errors.As(err, &already) {
		t.Fatalf("expected TxnAlreadyActiveError, got %v", err)
	}
}

func TestCommitDeliversVisibleTupleToSink(t *testing.T) {
	engine := &fakeEngine{}
	coord := NewCoordinator(&fakeAppender{}, ModeWrite, 0, nil)
	space := newFakeSpace("widgets")

	tup := &fakeTuple{id: "k3"}
	tx, _ := coord.Begin(1)
	if err := tx.Replace(engine, space, nil, tup, DupInsert); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := tx.AddRedo(&fakeRequest{typ: 1, payload: []byte("insert k3")}); err != nil {
		t.Fatalf("AddRedo: %v", err)
	}

	sink := &fakeSink{}
	if err := tx.Commit(sink); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	if len(sink.tuples) != 1 || sink.tuples[0] != tup {
		t.Fatalf("expected sink to receive the inserted tuple exactly once, got %v", sink.tuples)
	}
	if engine.finishes != 1 {
		t.Fatalf("expected TxnFinish called once, got %d", engine.finishes)
	}
}

func TestCommitFailsWhenAppenderFails(t *testing.T) {
	engine := &fakeEngine{}
	app := &fakeAppender{fail: true}
	coord := NewCoordinator(app, ModeWrite, 0, nil)
	space := newFakeSpace("widgets")

	tx, _ := coord.Begin(1)
	if err := tx.Replace(engine, space, nil, &fakeTuple{id: "k4"}, DupInsert); err != nil {
		t.Fatalf("Replace: %v", err)
	}
	if err := tx.AddRedo(&fakeRequest{typ: 1, payload: []byte("insert k4")}); err != nil {
		t.Fatalf("AddRedo: %v", err)
	}

	err := tx.Commit(&fakeSink{})
	var walErr *WalIoError
	if !errors.As(err, &walErr) {
		t.Fatalf("expected WalIoError, got %v", err)
	}

	// The transaction is still active; the caller is responsible for
	// rolling back.
	if _, active := coord.InTxn(1); !active {
		t.Fatalf("expected transaction to remain active after a failed append")
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback after failed commit: %v", err)
	}
}
