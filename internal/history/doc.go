// Package history implements the edit history of a single image: a linear
// log of color and geometric operations, one materialized buffer per prefix of
// that log, and a cursor selecting the displayed state.
//
// # Composition Rules
//
// Color operations replace each other. They are always computed from the base
// image, so Grayscale followed by HSV shows HSV of the original, not HSV of
// the gray image. Geometric operations accumulate: each is computed from the
// buffer at the cursor when it is applied.
//
// # Navigation
//
// Undo, Redo and JumpTo only move the cursor. The operation log keeps every
// step until a new operation is applied behind the end, which discards the
// redo tail of both the log and the entries. DeleteOperation removes one step
// and replays the rest from the base image, leaving the cursor at the end.
//
// # Buffer Ownership
//
// The engine owns the base buffer and one independent clone per entry, and
// releases each exactly once when it leaves the model. Failed operations leave
// the engine untouched.
package history
