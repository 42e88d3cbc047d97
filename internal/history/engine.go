package history

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/image-history-mcp/internal/imaging"
)

// Transformer computes new buffers from existing ones. Implementations must
// return a newly owned buffer and must never modify or release src.
type Transformer interface {
	ApplyColor(src *imaging.Buffer, mode ColorMode, params Params) (*imaging.Buffer, error)
	ApplyGeometric(src *imaging.Buffer, op GeometricOp, params Params) (*imaging.Buffer, error)
}

// IDGenerator produces unique operation IDs.
type IDGenerator func() string

// UUIDv7 returns a generator of time-ordered UUIDv7 strings.
func UUIDv7() IDGenerator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for mutation tracing.
func WithLogger(l logrus.FieldLogger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithIDGenerator replaces the UUIDv7 operation ID generator.
func WithIDGenerator(gen IDGenerator) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}

// WithClock replaces time.Now for operation timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// entry is one materialized state. entries[i] is the result of applying
// log[:i] to the base, so its operation prefix is implied by its index.
type entry struct {
	buf  *imaging.Buffer
	mode ColorMode
}

// Engine owns the base image, the operation log and one buffer per log
// prefix, and tracks which prefix is displayed.
//
// Mutating methods are serialized by a write lock; queries take a read lock
// and may run concurrently with each other.
type Engine struct {
	mu        sync.RWMutex
	transform Transformer
	logger    logrus.FieldLogger
	newID     IDGenerator
	now       func() time.Time

	base    *imaging.Buffer
	log     []Operation
	entries []entry
	cursor  int
}

// New creates an empty engine that computes buffers with t.
func New(t Transformer, opts ...Option) *Engine {
	quiet := logrus.New()
	quiet.SetOutput(io.Discard)

	e := &Engine{
		transform: t,
		logger:    quiet,
		newID:     UUIDv7(),
		now:       time.Now,
		cursor:    -1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LoadImage replaces the whole session with a new base image. The engine
// takes ownership of buf; every buffer of the previous session is released.
func (e *Engine) LoadImage(buf *imaging.Buffer) error {
	if buf == nil || buf.Released() {
		return fmt.Errorf("%w: image buffer is nil or released", ErrInvalidParameter)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.owns(buf) {
		return fmt.Errorf("%w: image buffer is already held by the history", ErrInvalidParameter)
	}

	e.releaseAll()
	e.base = buf
	e.entries = []entry{{buf: buf.Clone(), mode: ColorOriginal}}
	e.cursor = 0

	e.logger.WithFields(logrus.Fields{
		"width":    buf.Width(),
		"height":   buf.Height(),
		"channels": buf.Channels(),
	}).Debug("image loaded")
	return nil
}

// Reset releases every buffer and returns the engine to the empty state.
// Calling it on an empty engine does nothing.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.releaseAll()
	e.logger.Debug("history reset")
}

// Close releases every buffer. The engine can be reused after Close by
// loading a new image.
func (e *Engine) Close() error {
	e.Reset()
	return nil
}

// releaseAll releases the base and every entry. Callers hold the write lock.
// owns reports whether buf is the base or one of the entries.
func (e *Engine) owns(buf *imaging.Buffer) bool {
	if buf == e.base {
		return true
	}
	for _, en := range e.entries {
		if en.buf == buf {
			return true
		}
	}
	return false
}

func (e *Engine) releaseAll() {
	releaseEntries(e.entries)
	e.base.Release()
	e.base = nil
	e.log = nil
	e.entries = nil
	e.cursor = -1
}

// ApplyColor computes mode from the base image and appends it to the log.
// Any entries after the cursor are discarded first. Binary accepts
// BinaryParams and defaults to a threshold of 120; other modes take no
// params.
func (e *Engine) ApplyColor(mode ColorMode, params Params) (Operation, error) {
	params, err := normalizeColor(mode, params)
	if err != nil {
		return Operation{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.base == nil {
		return Operation{}, fmt.Errorf("%w: apply color %s", ErrInvalidState, mode)
	}

	result, err := e.runColor(mode, params)
	if err != nil {
		e.logger.WithError(err).WithField("op", mode).Warn("color transform failed")
		return Operation{}, err
	}

	op := Operation{
		ID:        e.newID(),
		Kind:      KindColor,
		Name:      mode.DisplayName(),
		CreatedAt: e.now(),
		ColorMode: mode,
		Params:    params,
	}
	e.commit(op, result, mode)
	return op, nil
}

// ApplyGeometric computes op from the buffer at the cursor and appends it to
// the log. Any entries after the cursor are discarded first. Resize accepts
// ResizeParams and defaults to 300x300; other operations take no params.
// The new entry keeps the color mode of the entry it was computed from.
func (e *Engine) ApplyGeometric(op GeometricOp, params Params) (Operation, error) {
	params, err := normalizeGeometric(op, params)
	if err != nil {
		return Operation{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cursor < 0 {
		return Operation{}, fmt.Errorf("%w: apply %s", ErrInvalidState, op)
	}

	current := e.entries[e.cursor]
	result, err := e.runGeometric(current.buf, op, params)
	if err != nil {
		e.logger.WithError(err).WithField("op", op).Warn("geometric transform failed")
		return Operation{}, err
	}

	operation := Operation{
		ID:          e.newID(),
		Kind:        KindGeometric,
		Name:        op.displayName(params),
		CreatedAt:   e.now(),
		GeometricOp: op,
		Params:      params,
	}
	e.commit(operation, result, current.mode)
	return operation, nil
}

// commit discards the redo tail, appends op and a clone of result, and moves
// the cursor to the new entry. result is released. Callers hold the write
// lock.
func (e *Engine) commit(op Operation, result *imaging.Buffer, mode ColorMode) {
	buf := result.Clone()
	result.Release()

	tail := e.entries[e.cursor+1:]
	releaseEntries(tail)
	clear(tail)
	e.entries = e.entries[:e.cursor+1]
	e.log = e.log[:e.cursor]

	e.log = append(e.log, op)
	e.entries = append(e.entries, entry{buf: buf, mode: mode})
	e.cursor = len(e.entries) - 1

	e.logger.WithFields(logrus.Fields{
		"op":         op.Name,
		"cursor":     e.cursor,
		"entries":    len(e.entries),
		"operations": len(e.log),
	}).Debug("operation applied")
}

// DeleteOperation removes the operation at index from the log and rebuilds
// every entry by replaying the remaining operations from the base image. The
// cursor moves to the end of the rebuilt timeline.
//
// The new chain is built before the old one is released, so a failing
// transform leaves the engine unchanged.
func (e *Engine) DeleteOperation(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.base == nil {
		return fmt.Errorf("%w: delete operation", ErrInvalidState)
	}
	if index < 0 || index >= len(e.log) {
		return fmt.Errorf("%w: operation %d of %d", ErrIndexOutOfRange, index, len(e.log))
	}

	newLog := make([]Operation, 0, len(e.log)-1)
	newLog = append(newLog, e.log[:index]...)
	newLog = append(newLog, e.log[index+1:]...)

	rebuilt, err := e.replay(newLog)
	if err != nil {
		e.logger.WithError(err).WithField("index", index).Warn("rebuild failed")
		return err
	}

	removed := e.log[index]
	releaseEntries(e.entries)
	e.log = newLog
	e.entries = rebuilt
	e.cursor = len(e.entries) - 1

	e.logger.WithFields(logrus.Fields{
		"op":         removed.Name,
		"index":      index,
		"cursor":     e.cursor,
		"entries":    len(e.entries),
		"operations": len(e.log),
	}).Debug("operation deleted")
	return nil
}

// replay materializes one entry per prefix of ops, starting from a clone of
// the base. Color operations are computed from the base and geometric ones
// from the previous entry. On failure every buffer it created is released.
func (e *Engine) replay(ops []Operation) ([]entry, error) {
	chain := make([]entry, 0, len(ops)+1)
	chain = append(chain, entry{buf: e.base.Clone(), mode: ColorOriginal})

	for i, op := range ops {
		prev := chain[len(chain)-1]

		var (
			result *imaging.Buffer
			mode   ColorMode
			err    error
		)
		switch op.Kind {
		case KindColor:
			result, err = e.runColor(op.ColorMode, op.Params)
			mode = op.ColorMode
		case KindGeometric:
			result, err = e.runGeometric(prev.buf, op.GeometricOp, op.Params)
			mode = prev.mode
		default:
			err = fmt.Errorf("%w: operation %d has unknown kind %q", ErrInvalidParameter, i, op.Kind)
		}
		if err != nil {
			releaseEntries(chain)
			return nil, err
		}

		chain = append(chain, entry{buf: result.Clone(), mode: mode})
		result.Release()
	}
	return chain, nil
}

func (e *Engine) runColor(mode ColorMode, params Params) (*imaging.Buffer, error) {
	result, err := e.transform.ApplyColor(e.base, mode, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransformFailure, mode, err)
	}
	if result == nil {
		return nil, fmt.Errorf("%w: %s returned no buffer", ErrTransformFailure, mode)
	}
	return result, nil
}

func (e *Engine) runGeometric(src *imaging.Buffer, op GeometricOp, params Params) (*imaging.Buffer, error) {
	result, err := e.transform.ApplyGeometric(src, op, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrTransformFailure, op, err)
	}
	if result == nil {
		return nil, fmt.Errorf("%w: %s returned no buffer", ErrTransformFailure, op)
	}
	return result, nil
}

func releaseEntries(entries []entry) {
	for _, en := range entries {
		en.buf.Release()
	}
}

// Undo moves the cursor one entry back. It reports false, and changes
// nothing, when the cursor is already at the base image or the engine is
// empty.
func (e *Engine) Undo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cursor <= 0 {
		return false
	}
	e.cursor--
	e.logger.WithField("cursor", e.cursor).Debug("undo")
	return true
}

// Redo moves the cursor one entry forward. It reports false when there is
// nothing to redo.
func (e *Engine) Redo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cursor >= len(e.entries)-1 {
		return false
	}
	e.cursor++
	e.logger.WithField("cursor", e.cursor).Debug("redo")
	return true
}

// JumpTo moves the cursor to entries[index]. Entry 0 is the base image and
// entry k the state after the first k operations.
func (e *Engine) JumpTo(index int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cursor < 0 {
		return fmt.Errorf("%w: jump to %d", ErrInvalidState, index)
	}
	if index < 0 || index >= len(e.entries) {
		return fmt.Errorf("%w: entry %d of %d", ErrIndexOutOfRange, index, len(e.entries))
	}
	e.cursor = index
	e.logger.WithField("cursor", e.cursor).Debug("jump")
	return nil
}
