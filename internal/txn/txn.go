// Package txn implements the transaction coordinator: it owns the
// per-task transaction object, orchestrates tuple replacement against an
// opaque engine, synthesizes and appends redo records, fires trigger
// lists, and restores engine state on rollback.
//
// The coordinator never touches global mutable state. The "current
// transaction" is an explicit per-task slot inside Coordinator, keyed by
// TaskID — never a package-level variable.
package txn

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TaskID identifies the cooperative task a Txn belongs to. Callers
// typically use a request-scoped identifier (e.g. a connection or fiber
// id); the coordinator enforces at most one live Txn per TaskID.
type TaskID uint64

// Mode selects whether commits append to the log and how durably.
type Mode int

const (
	ModeNone Mode = iota
	ModeWrite
	ModeFsync
)

// ReplaceMode governs how the engine treats a key collision during
// Replace.
type ReplaceMode int

const (
	DupInsert ReplaceMode = iota
	DupReplace
	DupReplaceOrInsert
)

// Tuple is an opaque, reference-counted immutable record. The coordinator
// only ever increments/decrements its reference count and passes it
// through to the engine and result sink.
type Tuple interface {
	Ref()
	Unref()
}

// Trigger is a callback fired by the coordinator; on_replace, on_commit
// and on_rollback lists all share this shape. Triggers registered on
// on_commit/on_rollback must never return an error — doing so is treated
// as a fatal programming defect (see Txn.Commit/Rollback).
type Trigger func(*Txn) error

// Space is the logical table a transaction mutates. The coordinator
// treats it as opaque beyond these four properties.
type Space interface {
	Name() string
	Temporary() bool
	RunTriggers() bool
	OnReplace() []Trigger
}

// Engine is the storage engine backing spaces, consumed as a narrow
// capability interface. The coordinator never reaches into engine
// internals beyond these two operations.
type Engine interface {
	// Replace atomically swaps old for new under mode and returns the
	// tuple actually displaced, which may differ from old under
	// DupReplace/DupInsert semantics.
	Replace(space Space, old, new Tuple, mode ReplaceMode) (displaced Tuple, err error)
	// TxnFinish is the engine-side finalization hook, called exactly once
	// per committed transaction that touched a space.
	TxnFinish(t *Txn)
}

// Appender is the narrow slice of xlog.Appender the coordinator needs: a
// synchronous, LSN-assigning write. Kept as an interface so txn can be
// tested without a real file.
type Appender interface {
	Append(tm float64, typ uint16, cookie uint64, payload []byte) (Record, error)
}

// Record is the subset of an appended redo record the coordinator cares
// about after a successful append: the assigned LSN and timestamp.
type Record struct {
	LSN int64
	Tm  float64
}

// ResultSink receives the tuple made visible by a successful commit.
type ResultSink interface {
	AddTuple(tuple Tuple)
}

// Request is an incoming mutation: an operation type, an optional
// pre-built redo row, and a way to re-encode itself into a body buffer.
type Request interface {
	Type() uint16
	// Header returns a pre-built redo row and true if the caller already
	// constructed one; AddRedo uses it verbatim instead of synthesizing.
	Header() (Row, bool)
	// Encode appends the request's payload bytes to body and returns the
	// number of logical segments written (informational; the coordinator
	// stores the concatenated bytes as one body).
	Encode(body *[]byte) (segments int, err error)
}

// Row is a decoded (or about-to-be-written) redo record.
type Row struct {
	LSN    int64
	Tm     float64
	Type   uint16
	Cookie uint64
	Body   []byte
}

// Coordinator owns every live Txn, keyed by TaskID, and the single
// Appender that serializes all log writes.
type Coordinator struct {
	mu               sync.Mutex
	active           map[TaskID]*Txn
	appender         Appender
	mode             Mode
	tooLongThreshold time.Duration
	logger           *slog.Logger
}

// NewCoordinator builds a Coordinator writing through appender in mode,
// warning when a commit's append exceeds tooLongThreshold (zero disables
// the warning). A nil logger defaults to slog.Default().
func NewCoordinator(appender Appender, mode Mode, tooLongThreshold time.Duration, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		active:           make(map[TaskID]*Txn),
		appender:         appender,
		mode:             mode,
		tooLongThreshold: tooLongThreshold,
		logger:           logger,
	}
}

// Mode reports the coordinator's current log mode.
func (c *Coordinator) Mode() Mode { return c.mode }

// InTxn returns the task's live transaction, if any.
func (c *Coordinator) InTxn(task TaskID) (*Txn, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.active[task]
	return t, ok
}

// Begin starts a new transaction for task, failing if one is already
// live on it.
func (c *Coordinator) Begin(task TaskID) (*Txn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.active[task]; exists {
		return nil, &TxnAlreadyActiveError{Task: task}
	}

	t := &Txn{
		coordinator: c,
		task:        task,
		arena:       newArena(),
	}
	c.active[task] = t
	return t, nil
}

func (c *Coordinator) clear(task TaskID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, task)
}

// Txn is a per-task transaction: at most one replace per tuple identity,
// a redo row slated for logging, and the trigger lists fired at commit or
// rollback.
type Txn struct {
	coordinator *Coordinator
	task        TaskID
	arena       *arena

	OldTuple Tuple
	NewTuple Tuple
	Space    Space
	Row      *Row

	engine Engine

	onCommit   []Trigger
	onRollback []Trigger
}

// Task returns the TaskID this transaction belongs to.
func (t *Txn) Task() TaskID { return t.task }

// OnCommit registers a trigger fired, in registration order, after a
// successful Commit appends the redo row (or immediately if there is
// nothing to append). Triggers must not return an error.
func (t *Txn) OnCommit(trig Trigger) { t.onCommit = append(t.onCommit, trig) }

// OnRollback registers a trigger fired by Rollback. Triggers must not
// return an error.
func (t *Txn) OnRollback(trig Trigger) { t.onRollback = append(t.onRollback, trig) }

// Replace asks engine to swap old for new tuple under mode. At least one
// of old/new must be non-nil. The tuple the engine actually displaced
// becomes txn.OldTuple; if new is non-nil the transaction takes a
// reference on it. Space's replace-triggers fire afterward if the space
// runs triggers and has any registered.
func (t *Txn) Replace(engine Engine, space Space, old, new Tuple, mode ReplaceMode) error {
	if old == nil && new == nil {
		return fmt.Errorf("txn: replace requires at least one of old_tuple or new_tuple")
	}

	displaced, err := engine.Replace(space, old, new, mode)
	if err != nil {
		return &EngineReplaceError{Err: err}
	}

	t.OldTuple = displaced
	if new != nil {
		new.Ref()
		t.NewTuple = new
	}
	t.Space = space
	t.engine = engine

	if space.RunTriggers() {
		for _, trig := range space.OnReplace() {
			if err := trig(t); err != nil {
				return fmt.Errorf("txn: replace trigger: %w", err)
			}
		}
	}

	return nil
}

// AddRedo sets the transaction's redo row from request: verbatim if the
// request already built one, otherwise synthesized from the task's
// scratch region (skipped entirely when the log is off).
func (t *Txn) AddRedo(request Request) error {
	if hdr, ok := request.Header(); ok {
		row := hdr
		t.Row = &row
		return nil
	}

	if t.coordinator.mode == ModeNone {
		return nil
	}

	var body []byte
	if _, err := request.Encode(&body); err != nil {
		return fmt.Errorf("txn: encoding redo body: %w", err)
	}

	t.Row = t.arena.newRow(request.Type(), 0, body)
	return nil
}

// Commit finalizes the transaction: appends the redo row (unless the
// space is temporary or nothing changed), fires on_commit triggers,
// delivers the visible tuple to sink, and releases all per-transaction
// resources.
func (t *Txn) Commit(sink ResultSink) error {
	c := t.coordinator

	changed := t.Space != nil
	if changed && !t.Space.Temporary() {
		if c.mode != ModeNone && t.Row == nil {
			panic("txn: commit invariant violated: log mode active but no redo row was set")
		}

		if t.Row != nil {
			started := time.Now()
			rec, err := c.appender.Append(nowSeconds(), t.Row.Type, t.Row.Cookie, t.Row.Body)
			elapsed := time.Since(started)
			if err != nil {
				return &WalIoError{Err: err}
			}
			if c.tooLongThreshold > 0 && elapsed > c.tooLongThreshold {
				c.logger.Warn("txn: commit append exceeded too_long_threshold",
					"elapsed", elapsed, "threshold", c.tooLongThreshold, "type", t.Row.Type)
			}
			t.Row.LSN = rec.LSN
			t.Row.Tm = rec.Tm
		}
	}

	for _, trig := range t.onCommit {
		if err := trig(t); err != nil {
			panic(fmt.Sprintf("txn: on_commit trigger raised an error, fatal: %v", err))
		}
	}

	visible := t.NewTuple
	if visible == nil {
		visible = t.OldTuple
	}
	if visible != nil && sink != nil {
		sink.AddTuple(visible)
	}

	t.finish()
	return nil
}

// finish releases the reference on OldTuple, invokes the engine's
// finalizer, clears the task's current-transaction slot, and resets the
// scratch arena. Shared by the tail of Commit.
func (t *Txn) finish() {
	if t.OldTuple != nil {
		t.OldTuple.Unref()
	}
	if t.Space != nil && t.engine != nil {
		t.engine.TxnFinish(t)
	}
	t.coordinator.clear(t.task)
	t.arena.reset()
}

// Rollback is a no-op if this transaction is no longer the task's current
// one. Otherwise it reinstates the pre-transaction engine state, fires
// on_rollback triggers, releases the reference taken on NewTuple, and
// clears the task's slot.
func (t *Txn) Rollback() error {
	c := t.coordinator

	cur, ok := c.InTxn(t.task)
	if !ok || cur != t {
		return nil
	}

	if t.Space != nil && t.engine != nil {
		if _, err := t.engine.Replace(t.Space, t.NewTuple, t.OldTuple, DupInsert); err != nil {
			c.logger.Error("txn: rollback replace failed to reinstate prior state",
				"space", t.Space.Name(), "error", err)
		}

		for _, trig := range t.onRollback {
			if err := trig(t); err != nil {
				panic(fmt.Sprintf("txn: on_rollback trigger raised an error, fatal: %v", err))
			}
		}

		if t.NewTuple != nil {
			t.NewTuple.Unref()
		}
	}

	c.clear(t.task)
	t.arena.reset()
	return nil
}

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}
