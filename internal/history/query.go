package history

import (
	"github.com/ironsheep/image-history-mcp/internal/imaging"
)

// CurrentBuffer returns a borrow of the buffer at the cursor, or nil when the
// engine is empty. The borrow is valid until the next mutating call; callers
// that run concurrently with mutations should use WithCurrent instead.
func (e *Engine) CurrentBuffer() *imaging.Buffer {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.cursor < 0 {
		return nil
	}
	return e.entries[e.cursor].buf
}

// WithCurrent calls fn with a borrow of the buffer at the cursor while
// holding the read lock. fn must not retain or release the buffer.
func (e *Engine) WithCurrent(fn func(*imaging.Buffer) error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.cursor < 0 {
		return ErrInvalidState
	}
	return fn(e.entries[e.cursor].buf)
}

// BaseBuffer returns a borrow of the original image, or nil when empty. The
// same validity rules as CurrentBuffer apply.
func (e *Engine) BaseBuffer() *imaging.Buffer {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.base
}

// WithBase calls fn with a borrow of the original image under the read lock.
func (e *Engine) WithBase(fn func(*imaging.Buffer) error) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.base == nil {
		return ErrInvalidState
	}
	return fn(e.base)
}

// CurrentOperations returns a copy of the full operation log. The log does
// not depend on the cursor: undo and jump leave later operations in place
// until a new operation replaces them.
func (e *Engine) CurrentOperations() []Operation {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.operations()
}

func (e *Engine) operations() []Operation {
	if len(e.log) == 0 {
		return []Operation{}
	}
	ops := make([]Operation, len(e.log))
	copy(ops, e.log)
	return ops
}

// CanUndo reports whether an entry before the cursor exists.
func (e *Engine) CanUndo() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cursor > 0
}

// CanRedo reports whether an entry after the cursor exists.
func (e *Engine) CanRedo() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cursor >= 0 && e.cursor < len(e.entries)-1
}

// Cursor returns the index of the displayed entry, or -1 when empty.
func (e *Engine) Cursor() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cursor
}

// Loaded reports whether a base image is present.
func (e *Engine) Loaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.base != nil
}

// CurrentColorMode returns the color mode active at the cursor. Geometric
// operations inherit it from the entry they were computed from. An empty
// engine reports ColorOriginal.
func (e *Engine) CurrentColorMode() ColorMode {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.cursor < 0 {
		return ColorOriginal
	}
	return e.entries[e.cursor].mode
}

// EntryInfo describes one materialized state of the history.
type EntryInfo struct {
	Index      int       `json:"index"`
	Operations int       `json:"operations"`
	ColorMode  ColorMode `json:"color_mode"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Channels   int       `json:"channels"`
}

// Entries describes every entry in order. Entry i reflects the first i
// operations of the log.
func (e *Engine) Entries() []EntryInfo {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.entryInfos()
}

func (e *Engine) entryInfos() []EntryInfo {
	infos := make([]EntryInfo, len(e.entries))
	for i, en := range e.entries {
		infos[i] = EntryInfo{
			Index:      i,
			Operations: i,
			ColorMode:  en.mode,
			Width:      en.buf.Width(),
			Height:     en.buf.Height(),
			Channels:   en.buf.Channels(),
		}
	}
	return infos
}

// State is a consistent snapshot of the engine.
type State struct {
	Loaded     bool        `json:"loaded"`
	Cursor     int         `json:"cursor"`
	ColorMode  ColorMode   `json:"color_mode"`
	CanUndo    bool        `json:"can_undo"`
	CanRedo    bool        `json:"can_redo"`
	Operations []Operation `json:"operations"`
	Entries    []EntryInfo `json:"entries"`
}

// State returns a snapshot taken under a single read lock.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := State{
		Loaded:     e.base != nil,
		Cursor:     e.cursor,
		ColorMode:  ColorOriginal,
		CanUndo:    e.cursor > 0,
		CanRedo:    e.cursor >= 0 && e.cursor < len(e.entries)-1,
		Operations: e.operations(),
		Entries:    e.entryInfos(),
	}
	if e.cursor >= 0 {
		s.ColorMode = e.entries[e.cursor].mode
	}
	return s
}
