package history_test

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/image-history-mcp/internal/history"
	"github.com/ironsheep/image-history-mcp/internal/imaging"
	"github.com/ironsheep/image-history-mcp/internal/transform"
)

// Engine tests check several invariants per step, so they use testify's
// assert/require and go-cmp diffs rather than hand-written t.Errorf chains.

// patternBuffer builds a width x height RGBA buffer with red, green, blue and
// white quadrants, so every rotation and flip changes its contents.
func patternBuffer(t *testing.T, width, height int, tracker *imaging.Tracker) *imaging.Buffer {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			var c color.Color
			switch {
			case x < width/2 && y < height/2:
				c = color.RGBA{255, 0, 0, 255}
			case x >= width/2 && y < height/2:
				c = color.RGBA{0, 255, 0, 255}
			case x < width/2:
				c = color.RGBA{0, 0, 255, 255}
			default:
				c = color.RGBA{255, 255, 255, 255}
			}
			img.Set(x, y, c)
		}
	}
	b, err := imaging.FromImage(img, tracker)
	require.NoError(t, err)
	return b
}

// newLoadedEngine returns an engine holding a 100x100 pattern image and the
// tracker that counts its buffers.
func newLoadedEngine(t *testing.T, opts ...history.Option) (*history.Engine, *imaging.Tracker) {
	t.Helper()
	tracker := imaging.NewTracker()
	e := history.New(transform.New(), opts...)
	require.NoError(t, e.LoadImage(patternBuffer(t, 100, 100, tracker)))
	return e, tracker
}

// assertConsistent checks the structural invariants and that exactly the
// buffers held by the engine are alive.
func assertConsistent(t *testing.T, e *history.Engine, tracker *imaging.Tracker) {
	t.Helper()
	s := e.State()
	if !s.Loaded {
		assert.Equal(t, -1, s.Cursor)
		assert.Empty(t, s.Entries)
		assert.Empty(t, s.Operations)
		assert.Equal(t, int64(0), tracker.Live())
		return
	}
	assert.Equal(t, len(s.Operations)+1, len(s.Entries), "entries == operations + 1")
	assert.GreaterOrEqual(t, s.Cursor, 0)
	assert.Less(t, s.Cursor, len(s.Entries))
	assert.Equal(t, int64(len(s.Entries)+1), tracker.Live(), "base plus one buffer per entry")
	assert.Equal(t, int64(0), tracker.DoubleReleases())
}

// snapshot copies the current buffer so it can be compared after the engine
// has moved on.
func snapshot(t *testing.T, e *history.Engine) *imaging.Buffer {
	t.Helper()
	var out *imaging.Buffer
	require.NoError(t, e.WithCurrent(func(b *imaging.Buffer) error {
		var err error
		out, err = imaging.NewBufferFrom(append([]uint8(nil), b.Pix()...), b.Width(), b.Height(), b.Channels(), nil)
		return err
	}))
	return out
}

// baseCopy returns an untracked copy of the base image, so expected results
// computed from it do not show up in the engine's tracker.
func baseCopy(t *testing.T, e *history.Engine) *imaging.Buffer {
	t.Helper()
	var out *imaging.Buffer
	require.NoError(t, e.WithBase(func(b *imaging.Buffer) error {
		var err error
		out, err = imaging.NewBufferFrom(append([]uint8(nil), b.Pix()...), b.Width(), b.Height(), b.Channels(), nil)
		return err
	}))
	return out
}

var ignoreIdentity = cmpopts.IgnoreFields(history.Operation{}, "ID", "CreatedAt")

func TestEngine_Empty(t *testing.T) {
	e := history.New(transform.New())

	assert.Nil(t, e.CurrentBuffer())
	assert.Nil(t, e.BaseBuffer())
	assert.Equal(t, -1, e.Cursor())
	assert.False(t, e.Loaded())
	assert.False(t, e.CanUndo())
	assert.False(t, e.CanRedo())
	assert.False(t, e.Undo())
	assert.False(t, e.Redo())
	assert.Empty(t, e.CurrentOperations())
	assert.Equal(t, history.ColorOriginal, e.CurrentColorMode())

	_, err := e.ApplyColor(history.ColorGrayscale, nil)
	assert.ErrorIs(t, err, history.ErrInvalidState)
	_, err = e.ApplyGeometric(history.GeometricRotate90, nil)
	assert.ErrorIs(t, err, history.ErrInvalidState)
	assert.ErrorIs(t, e.DeleteOperation(0), history.ErrInvalidState)
	assert.ErrorIs(t, e.JumpTo(0), history.ErrInvalidState)
	assert.ErrorIs(t, e.WithCurrent(func(*imaging.Buffer) error { return nil }), history.ErrInvalidState)

	assert.Equal(t, -1, e.Cursor())
}

func TestEngine_LoadImage(t *testing.T) {
	e, tracker := newLoadedEngine(t)

	assert.Equal(t, 0, e.Cursor())
	assert.True(t, e.Loaded())
	assert.False(t, e.CanUndo())
	assert.False(t, e.CanRedo())
	assert.Empty(t, e.CurrentOperations())

	base := e.BaseBuffer()
	current := e.CurrentBuffer()
	require.NotNil(t, base)
	require.NotNil(t, current)
	assert.NotSame(t, base, current, "entry 0 owns a clone of the base")
	assert.True(t, base.Equal(current))
	assertConsistent(t, e, tracker)
}

func TestEngine_LoadImageReplacesSession(t *testing.T) {
	e, tracker := newLoadedEngine(t)
	_, err := e.ApplyColor(history.ColorGrayscale, nil)
	require.NoError(t, err)
	_, err = e.ApplyGeometric(history.GeometricRotate90, nil)
	require.NoError(t, err)

	next := patternBuffer(t, 20, 10, tracker)
	require.NoError(t, e.LoadImage(next))

	assert.Same(t, next, e.BaseBuffer())
	assert.Equal(t, 0, e.Cursor())
	assert.Empty(t, e.CurrentOperations())
	assert.Equal(t, 20, e.CurrentBuffer().Width())
	assertConsistent(t, e, tracker)
}

func TestEngine_LoadImageRejectsBadBuffer(t *testing.T) {
	e := history.New(transform.New())
	assert.ErrorIs(t, e.LoadImage(nil), history.ErrInvalidParameter)

	released := patternBuffer(t, 2, 2, nil)
	released.Release()
	assert.ErrorIs(t, e.LoadImage(released), history.ErrInvalidParameter)
	assert.False(t, e.Loaded())
}

func TestEngine_LoadImageRejectsHeldBuffer(t *testing.T) {
	e, tracker := newLoadedEngine(t)
	_, err := e.ApplyColor(history.ColorGrayscale, nil)
	require.NoError(t, err)
	before := e.State()

	for name, buf := range map[string]*imaging.Buffer{
		"current": e.CurrentBuffer(),
		"base":    e.BaseBuffer(),
	} {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, e.LoadImage(buf), history.ErrInvalidParameter)
			assert.False(t, buf.Released())
			if diff := cmp.Diff(before, e.State()); diff != "" {
				t.Errorf("state changed (-before +after):\n%s", diff)
			}
			assertConsistent(t, e, tracker)
		})
	}
}

func TestEngine_ResetIsIdempotent(t *testing.T) {
	e, tracker := newLoadedEngine(t)
	_, err := e.ApplyColor(history.ColorHSV, nil)
	require.NoError(t, err)

	e.Reset()
	assertConsistent(t, e, tracker)
	e.Reset()
	assertConsistent(t, e, tracker)

	assert.False(t, e.Loaded())
	assert.Equal(t, int64(0), tracker.Live())

	require.NoError(t, e.LoadImage(patternBuffer(t, 4, 4, tracker)))
	assertConsistent(t, e, tracker)
	require.NoError(t, e.Close())
	assert.Equal(t, int64(0), tracker.Live())
}

func TestEngine_ApplyColorComputesFromBase(t *testing.T) {
	e, tracker := newLoadedEngine(t)

	_, err := e.ApplyColor(history.ColorGrayscale, nil)
	require.NoError(t, err)
	_, err = e.ApplyColor(history.ColorHSV, nil)
	require.NoError(t, err)

	want, err := transform.HSV(baseCopy(t, e))
	require.NoError(t, err)
	defer want.Release()

	assert.True(t, e.CurrentBuffer().Equal(want), "HSV after Grayscale equals HSV of the base")
	assert.Equal(t, history.ColorHSV, e.CurrentColorMode())
	assertConsistent(t, e, tracker)
}

func TestEngine_ApplyColorIgnoresGeometricState(t *testing.T) {
	e, _ := newLoadedEngine(t)

	_, err := e.ApplyGeometric(history.GeometricCropCenter, nil)
	require.NoError(t, err)
	_, err = e.ApplyColor(history.ColorGrayscale, nil)
	require.NoError(t, err)

	assert.Equal(t, 100, e.CurrentBuffer().Width(), "color operations start over from the base")
}

func TestEngine_ApplyGeometricAccumulates(t *testing.T) {
	e, tracker := newLoadedEngine(t)

	_, err := e.ApplyColor(history.ColorGrayscale, nil)
	require.NoError(t, err)
	_, err = e.ApplyGeometric(history.GeometricRotate90, nil)
	require.NoError(t, err)
	_, err = e.ApplyGeometric(history.GeometricRotate90, nil)
	require.NoError(t, err)

	gray, err := transform.Grayscale(baseCopy(t, e))
	require.NoError(t, err)
	defer gray.Release()
	lib := transform.New()
	want, err := lib.ApplyGeometric(gray, history.GeometricRotate180, nil)
	require.NoError(t, err)
	defer want.Release()

	assert.True(t, e.CurrentBuffer().Equal(want), "two quarter turns of the gray image")
	assert.Equal(t, history.ColorGrayscale, e.CurrentColorMode(), "geometric operations keep the color mode")
	assertConsistent(t, e, tracker)
}

func TestEngine_OperationRecords(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	e, _ := newLoadedEngine(t,
		history.WithClock(func() time.Time { return now }),
		history.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("op-%d", n)
		}),
	)

	_, err := e.ApplyColor(history.ColorBinary, nil)
	require.NoError(t, err)
	_, err = e.ApplyGeometric(history.GeometricRotate90, nil)
	require.NoError(t, err)
	_, err = e.ApplyGeometric(history.GeometricResize, history.ResizeParams{Width: 64, Height: 48})
	require.NoError(t, err)
	_, err = e.ApplyGeometric(history.GeometricResize, nil)
	require.NoError(t, err)
	_, err = e.ApplyGeometric(history.GeometricFlipHorizontal, nil)
	require.NoError(t, err)

	want := []history.Operation{
		{ID: "op-1", Kind: history.KindColor, Name: "Binary", CreatedAt: now, ColorMode: history.ColorBinary, Params: history.BinaryParams{Threshold: 120}},
		{ID: "op-2", Kind: history.KindGeometric, Name: "Rotate 90°", CreatedAt: now, GeometricOp: history.GeometricRotate90},
		{ID: "op-3", Kind: history.KindGeometric, Name: "Resize 64x48", CreatedAt: now, GeometricOp: history.GeometricResize, Params: history.ResizeParams{Width: 64, Height: 48}},
		{ID: "op-4", Kind: history.KindGeometric, Name: "Resize 300x300", CreatedAt: now, GeometricOp: history.GeometricResize, Params: history.ResizeParams{Width: 300, Height: 300}},
		{ID: "op-5", Kind: history.KindGeometric, Name: "Flip H", CreatedAt: now, GeometricOp: history.GeometricFlipHorizontal},
	}
	if diff := cmp.Diff(want, e.CurrentOperations()); diff != "" {
		t.Errorf("operation log mismatch (-want +got):\n%s", diff)
	}
}

func TestEngine_DefaultIDsAreUnique(t *testing.T) {
	e, _ := newLoadedEngine(t)
	seen := make(map[string]struct{})
	for i := 0; i < 20; i++ {
		op, err := e.ApplyGeometric(history.GeometricFlipVertical, nil)
		require.NoError(t, err)
		require.Len(t, op.ID, 36)
		_, dup := seen[op.ID]
		require.False(t, dup, "duplicate id %s", op.ID)
		seen[op.ID] = struct{}{}
	}
}

func TestEngine_InvalidParameters(t *testing.T) {
	tests := []struct {
		name  string
		apply func(*history.Engine) error
	}{
		{"resize zero width", func(e *history.Engine) error {
			_, err := e.ApplyGeometric(history.GeometricResize, history.ResizeParams{Width: 0, Height: 50})
			return err
		}},
		{"resize negative height", func(e *history.Engine) error {
			_, err := e.ApplyGeometric(history.GeometricResize, history.ResizeParams{Width: 10, Height: -1})
			return err
		}},
		{"threshold too high", func(e *history.Engine) error {
			_, err := e.ApplyColor(history.ColorBinary, history.BinaryParams{Threshold: 256})
			return err
		}},
		{"threshold negative", func(e *history.Engine) error {
			_, err := e.ApplyColor(history.ColorBinary, history.BinaryParams{Threshold: -1})
			return err
		}},
		{"params on grayscale", func(e *history.Engine) error {
			_, err := e.ApplyColor(history.ColorGrayscale, history.BinaryParams{Threshold: 10})
			return err
		}},
		{"resize params on binary", func(e *history.Engine) error {
			_, err := e.ApplyColor(history.ColorBinary, history.ResizeParams{Width: 1, Height: 1})
			return err
		}},
		{"params on rotate", func(e *history.Engine) error {
			_, err := e.ApplyGeometric(history.GeometricRotate90, history.ResizeParams{Width: 1, Height: 1})
			return err
		}},
		{"unknown color mode", func(e *history.Engine) error {
			_, err := e.ApplyColor(history.ColorMode("sepia"), nil)
			return err
		}},
		{"unknown geometric op", func(e *history.Engine) error {
			_, err := e.ApplyGeometric(history.GeometricOp("shear"), nil)
			return err
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, tracker := newLoadedEngine(t)
			_, err := e.ApplyColor(history.ColorGrayscale, nil)
			require.NoError(t, err)
			require.True(t, e.Undo())
			before := e.State()

			assert.ErrorIs(t, tt.apply(e), history.ErrInvalidParameter)

			after := e.State()
			if diff := cmp.Diff(before, after); diff != "" {
				t.Errorf("state changed (-before +after):\n%s", diff)
			}
			assert.True(t, e.CanRedo(), "a rejected operation must not discard the redo tail")
			assertConsistent(t, e, tracker)
		})
	}
}

func TestEngine_PointerParams(t *testing.T) {
	e, _ := newLoadedEngine(t)

	op, err := e.ApplyColor(history.ColorBinary, &history.BinaryParams{Threshold: 30})
	require.NoError(t, err)
	assert.Equal(t, history.BinaryParams{Threshold: 30}, op.Params)

	op, err = e.ApplyGeometric(history.GeometricResize, &history.ResizeParams{Width: 7, Height: 9})
	require.NoError(t, err)
	assert.Equal(t, history.ResizeParams{Width: 7, Height: 9}, op.Params)
	assert.Equal(t, 7, e.CurrentBuffer().Width())
}

func TestEngine_UndoRedoRestoresBuffer(t *testing.T) {
	e, tracker := newLoadedEngine(t)
	_, err := e.ApplyColor(history.ColorGrayscale, nil)
	require.NoError(t, err)
	_, err = e.ApplyGeometric(history.GeometricRotate90, nil)
	require.NoError(t, err)
	_, err = e.ApplyGeometric(history.GeometricCropCenter, nil)
	require.NoError(t, err)

	for cursor := 3; cursor > 0; cursor-- {
		require.NoError(t, e.JumpTo(cursor))
		before := snapshot(t, e)

		require.True(t, e.Undo())
		require.True(t, e.Redo())

		assert.Equal(t, cursor, e.Cursor())
		assert.True(t, e.CurrentBuffer().Equal(before), "cursor %d", cursor)
	}
	assertConsistent(t, e, tracker)
}

func TestEngine_NavigationKeepsLog(t *testing.T) {
	e, tracker := newLoadedEngine(t)
	for _, op := range []history.GeometricOp{history.GeometricRotate90, history.GeometricFlipHorizontal, history.GeometricFlipVertical} {
		_, err := e.ApplyGeometric(op, nil)
		require.NoError(t, err)
	}
	live := tracker.Live()

	require.True(t, e.Undo())
	require.True(t, e.Undo())
	assert.Len(t, e.CurrentOperations(), 3)
	assert.True(t, e.CanRedo())
	assert.True(t, e.CanUndo())

	require.NoError(t, e.JumpTo(0))
	assert.False(t, e.CanUndo())
	assert.False(t, e.Undo())
	assert.Len(t, e.CurrentOperations(), 3)

	require.NoError(t, e.JumpTo(3))
	assert.False(t, e.CanRedo())
	assert.False(t, e.Redo())

	assert.ErrorIs(t, e.JumpTo(4), history.ErrIndexOutOfRange)
	assert.ErrorIs(t, e.JumpTo(-1), history.ErrIndexOutOfRange)
	assert.Equal(t, 3, e.Cursor())

	assert.Equal(t, live, tracker.Live(), "navigation never allocates or releases")
	assert.Equal(t, int64(0), tracker.DoubleReleases())
}

func TestEngine_ApplyAfterUndoDiscardsRedo(t *testing.T) {
	e, tracker := newLoadedEngine(t)
	_, err := e.ApplyColor(history.ColorGrayscale, nil)
	require.NoError(t, err)
	_, err = e.ApplyGeometric(history.GeometricRotate90, nil)
	require.NoError(t, err)
	_, err = e.ApplyGeometric(history.GeometricFlipVertical, nil)
	require.NoError(t, err)

	require.True(t, e.Undo())
	require.True(t, e.Undo())
	released := tracker.Released()

	_, err = e.ApplyGeometric(history.GeometricRotate180, nil)
	require.NoError(t, err)

	assert.False(t, e.CanRedo())
	assert.Equal(t, 2, e.Cursor())

	want := []history.Operation{
		{Kind: history.KindColor, Name: "Grayscale", ColorMode: history.ColorGrayscale},
		{Kind: history.KindGeometric, Name: "Rotate 180°", GeometricOp: history.GeometricRotate180},
	}
	if diff := cmp.Diff(want, e.CurrentOperations(), ignoreIdentity); diff != "" {
		t.Errorf("operation log mismatch (-want +got):\n%s", diff)
	}

	// Two dropped entries plus the transient transform result.
	assert.Equal(t, released+3, tracker.Released())
	assertConsistent(t, e, tracker)
}

func TestEngine_ApplyFromBaseEntryAfterJump(t *testing.T) {
	e, tracker := newLoadedEngine(t)
	_, err := e.ApplyColor(history.ColorHSV, nil)
	require.NoError(t, err)
	require.NoError(t, e.JumpTo(0))

	_, err = e.ApplyGeometric(history.GeometricRotate90, nil)
	require.NoError(t, err)

	assert.Equal(t, history.ColorOriginal, e.CurrentColorMode())
	assert.Len(t, e.CurrentOperations(), 1)
	assert.Equal(t, 4, e.CurrentBuffer().Channels())
	assertConsistent(t, e, tracker)
}

func TestEngine_Scenario(t *testing.T) {
	e, tracker := newLoadedEngine(t)

	_, err := e.ApplyColor(history.ColorGrayscale, nil)
	require.NoError(t, err)
	_, err = e.ApplyGeometric(history.GeometricRotate90, nil)
	require.NoError(t, err)
	_, err = e.ApplyColor(history.ColorBinary, history.BinaryParams{Threshold: 80})
	require.NoError(t, err)

	state := e.State()
	assert.Len(t, state.Operations, 3)
	assert.Len(t, state.Entries, 4)
	assert.Equal(t, 3, state.Cursor)

	current := e.CurrentBuffer()
	assert.Equal(t, 100, current.Width())
	assert.Equal(t, 100, current.Height())
	assert.Equal(t, 1, current.Channels())
	for _, v := range current.Pix() {
		require.Contains(t, []uint8{0, 255}, v)
	}

	assert.Equal(t, history.ColorOriginal, state.Entries[0].ColorMode)
	assert.Equal(t, history.ColorGrayscale, state.Entries[1].ColorMode)
	assert.Equal(t, history.ColorGrayscale, state.Entries[2].ColorMode)
	assert.Equal(t, history.ColorBinary, state.Entries[3].ColorMode)
	assertConsistent(t, e, tracker)

	t.Run("undo twice", func(t *testing.T) {
		require.True(t, e.Undo())
		require.True(t, e.Undo())
		assert.Equal(t, 1, e.Cursor())

		gray, err := transform.Grayscale(baseCopy(t, e))
		require.NoError(t, err)
		defer gray.Release()
		assert.True(t, e.CurrentBuffer().Equal(gray))
		assert.Equal(t, history.ColorGrayscale, e.CurrentColorMode())

		require.NoError(t, e.JumpTo(3))
	})

	t.Run("delete grayscale", func(t *testing.T) {
		require.NoError(t, e.DeleteOperation(0))

		want := []history.Operation{
			{Kind: history.KindGeometric, Name: "Rotate 90°", GeometricOp: history.GeometricRotate90},
			{Kind: history.KindColor, Name: "Binary", ColorMode: history.ColorBinary, Params: history.BinaryParams{Threshold: 80}},
		}
		if diff := cmp.Diff(want, e.CurrentOperations(), ignoreIdentity); diff != "" {
			t.Errorf("operation log mismatch (-want +got):\n%s", diff)
		}

		state := e.State()
		assert.Len(t, state.Entries, 3)
		assert.Equal(t, 2, state.Cursor)
		assert.Equal(t, history.ColorOriginal, state.Entries[1].ColorMode)

		lib := transform.New()
		rotated, err := lib.ApplyGeometric(baseCopy(t, e), history.GeometricRotate90, nil)
		require.NoError(t, err)
		defer rotated.Release()
		binary, err := transform.Binary(baseCopy(t, e), 80)
		require.NoError(t, err)
		defer binary.Release()

		require.NoError(t, e.JumpTo(1))
		assert.True(t, e.CurrentBuffer().Equal(rotated), "entry 1 rotates the color base")
		require.NoError(t, e.JumpTo(2))
		assert.True(t, e.CurrentBuffer().Equal(binary), "binary thresholds the color base, not the removed gray image")
		assertConsistent(t, e, tracker)
	})
}

func TestEngine_DeleteMatchesManualReplay(t *testing.T) {
	ops := []func(*history.Engine) error{
		func(e *history.Engine) error { _, err := e.ApplyGeometric(history.GeometricCropCenter, nil); return err },
		func(e *history.Engine) error { _, err := e.ApplyColor(history.ColorGrayscale, nil); return err },
		func(e *history.Engine) error { _, err := e.ApplyGeometric(history.GeometricRotate90, nil); return err },
		func(e *history.Engine) error {
			_, err := e.ApplyGeometric(history.GeometricResize, history.ResizeParams{Width: 30, Height: 20})
			return err
		},
		func(e *history.Engine) error { _, err := e.ApplyColor(history.ColorHSV, nil); return err },
		func(e *history.Engine) error { _, err := e.ApplyGeometric(history.GeometricFlipHorizontal, nil); return err },
	}

	for skip := range ops {
		t.Run(fmt.Sprintf("delete %d", skip), func(t *testing.T) {
			rebuilt, tracker := newLoadedEngine(t)
			for _, apply := range ops {
				require.NoError(t, apply(rebuilt))
			}
			require.NoError(t, rebuilt.JumpTo(2))
			require.NoError(t, rebuilt.DeleteOperation(skip))

			manual, _ := newLoadedEngine(t)
			for i, apply := range ops {
				if i != skip {
					require.NoError(t, apply(manual))
				}
			}

			assert.Equal(t, len(ops)-1, rebuilt.Cursor(), "cursor moves to the end")
			if diff := cmp.Diff(manual.CurrentOperations(), rebuilt.CurrentOperations(), ignoreIdentity); diff != "" {
				t.Errorf("operation log mismatch (-manual +rebuilt):\n%s", diff)
			}
			if diff := cmp.Diff(manual.Entries(), rebuilt.Entries()); diff != "" {
				t.Errorf("entries mismatch (-manual +rebuilt):\n%s", diff)
			}
			for i := range manual.Entries() {
				require.NoError(t, manual.JumpTo(i))
				require.NoError(t, rebuilt.JumpTo(i))
				assert.True(t, manual.CurrentBuffer().Equal(rebuilt.CurrentBuffer()), "entry %d", i)
			}
			assertConsistent(t, rebuilt, tracker)
		})
	}
}

func TestEngine_DeleteLastRemainingOperation(t *testing.T) {
	e, tracker := newLoadedEngine(t)
	_, err := e.ApplyColor(history.ColorBinary, nil)
	require.NoError(t, err)

	require.NoError(t, e.DeleteOperation(0))

	assert.True(t, e.Loaded())
	assert.Equal(t, 0, e.Cursor())
	assert.Empty(t, e.CurrentOperations())
	assert.True(t, e.CurrentBuffer().Equal(e.BaseBuffer()))
	assertConsistent(t, e, tracker)
}

func TestEngine_DeleteOutOfRange(t *testing.T) {
	e, tracker := newLoadedEngine(t)
	_, err := e.ApplyColor(history.ColorGrayscale, nil)
	require.NoError(t, err)
	before := e.State()

	assert.ErrorIs(t, e.DeleteOperation(1), history.ErrIndexOutOfRange)
	assert.ErrorIs(t, e.DeleteOperation(-1), history.ErrIndexOutOfRange)

	if diff := cmp.Diff(before, e.State()); diff != "" {
		t.Errorf("state changed (-before +after):\n%s", diff)
	}
	assertConsistent(t, e, tracker)
}

// flakyTransformer delegates to the real library until its call budget is
// spent, then fails every call.
type flakyTransformer struct {
	history.Transformer
	budget int
}

var errKernel = errors.New("kernel exploded")

func (f *flakyTransformer) spend() error {
	if f.budget <= 0 {
		return errKernel
	}
	f.budget--
	return nil
}

func (f *flakyTransformer) ApplyColor(src *imaging.Buffer, mode history.ColorMode, params history.Params) (*imaging.Buffer, error) {
	if err := f.spend(); err != nil {
		return nil, err
	}
	return f.Transformer.ApplyColor(src, mode, params)
}

func (f *flakyTransformer) ApplyGeometric(src *imaging.Buffer, op history.GeometricOp, params history.Params) (*imaging.Buffer, error) {
	if err := f.spend(); err != nil {
		return nil, err
	}
	return f.Transformer.ApplyGeometric(src, op, params)
}

func TestEngine_TransformFailureLeavesStateUnchanged(t *testing.T) {
	tracker := imaging.NewTracker()
	flaky := &flakyTransformer{Transformer: transform.New(), budget: 2}
	e := history.New(flaky)
	require.NoError(t, e.LoadImage(patternBuffer(t, 50, 50, tracker)))

	_, err := e.ApplyColor(history.ColorGrayscale, nil)
	require.NoError(t, err)
	_, err = e.ApplyGeometric(history.GeometricRotate90, nil)
	require.NoError(t, err)
	require.True(t, e.Undo())

	before := e.State()
	live := tracker.Live()

	_, err = e.ApplyColor(history.ColorHSV, nil)
	assert.ErrorIs(t, err, history.ErrTransformFailure)
	assert.ErrorIs(t, err, errKernel)

	_, err = e.ApplyGeometric(history.GeometricFlipVertical, nil)
	assert.ErrorIs(t, err, history.ErrTransformFailure)

	if diff := cmp.Diff(before, e.State()); diff != "" {
		t.Errorf("state changed (-before +after):\n%s", diff)
	}
	assert.True(t, e.CanRedo(), "the redo tail survives a failed apply")
	assert.Equal(t, live, tracker.Live())
	assertConsistent(t, e, tracker)
}

func TestEngine_RebuildFailureIsAtomic(t *testing.T) {
	tracker := imaging.NewTracker()
	flaky := &flakyTransformer{Transformer: transform.New(), budget: 3}
	e := history.New(flaky)
	require.NoError(t, e.LoadImage(patternBuffer(t, 50, 50, tracker)))

	_, err := e.ApplyColor(history.ColorGrayscale, nil)
	require.NoError(t, err)
	_, err = e.ApplyGeometric(history.GeometricRotate90, nil)
	require.NoError(t, err)
	_, err = e.ApplyGeometric(history.GeometricFlipHorizontal, nil)
	require.NoError(t, err)
	require.NoError(t, e.JumpTo(1))

	before := e.State()
	current := snapshot(t, e)
	live := tracker.Live()

	// Replaying two operations needs two calls; allow only one.
	flaky.budget = 1
	err = e.DeleteOperation(0)
	assert.ErrorIs(t, err, history.ErrTransformFailure)

	if diff := cmp.Diff(before, e.State()); diff != "" {
		t.Errorf("state changed (-before +after):\n%s", diff)
	}
	assert.True(t, e.CurrentBuffer().Equal(current))
	assert.Equal(t, live, tracker.Live(), "partial rebuild buffers are released")
	assertConsistent(t, e, tracker)
}

// nilTransformer violates the contract by returning no buffer and no error.
type nilTransformer struct{}

func (nilTransformer) ApplyColor(*imaging.Buffer, history.ColorMode, history.Params) (*imaging.Buffer, error) {
	return nil, nil
}

func (nilTransformer) ApplyGeometric(*imaging.Buffer, history.GeometricOp, history.Params) (*imaging.Buffer, error) {
	return nil, nil
}

func TestEngine_NilTransformResult(t *testing.T) {
	e := history.New(nilTransformer{})
	require.NoError(t, e.LoadImage(patternBuffer(t, 4, 4, nil)))

	_, err := e.ApplyColor(history.ColorGrayscale, nil)
	assert.ErrorIs(t, err, history.ErrTransformFailure)
	_, err = e.ApplyGeometric(history.GeometricRotate90, nil)
	assert.ErrorIs(t, err, history.ErrTransformFailure)
	assert.Equal(t, 0, e.Cursor())
}

func TestEngine_RandomSequencesKeepInvariants(t *testing.T) {
	e, tracker := newLoadedEngine(t)
	rng := rand.New(rand.NewSource(7))

	for step := 0; step < 300; step++ {
		switch rng.Intn(9) {
		case 0, 1:
			mode := history.ColorModes[rng.Intn(len(history.ColorModes))]
			_, err := e.ApplyColor(mode, nil)
			require.NoError(t, err)
		case 2, 3:
			op := history.GeometricOps[rng.Intn(len(history.GeometricOps))]
			var params history.Params
			if op == history.GeometricResize {
				params = history.ResizeParams{Width: 10 + rng.Intn(40), Height: 10 + rng.Intn(40)}
			}
			_, err := e.ApplyGeometric(op, params)
			require.NoError(t, err)
		case 4:
			e.Undo()
		case 5:
			e.Redo()
		case 6:
			if n := len(e.Entries()); n > 0 {
				require.NoError(t, e.JumpTo(rng.Intn(n)))
			}
		case 7:
			if n := len(e.CurrentOperations()); n > 0 {
				require.NoError(t, e.DeleteOperation(rng.Intn(n)))
			}
		case 8:
			if rng.Intn(10) == 0 {
				e.Reset()
				require.NoError(t, e.LoadImage(patternBuffer(t, 30+rng.Intn(30), 30+rng.Intn(30), tracker)))
			}
		}
		assertConsistent(t, e, tracker)
	}

	e.Reset()
	assert.Equal(t, int64(0), tracker.Live())
	assert.Equal(t, tracker.Allocated(), tracker.Released())
	assert.Equal(t, int64(0), tracker.DoubleReleases())
}

func TestEngine_ConcurrentReaders(t *testing.T) {
	e, tracker := newLoadedEngine(t)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s := e.State()
				if len(s.Entries) != len(s.Operations)+1 {
					t.Errorf("inconsistent snapshot: %d entries, %d operations", len(s.Entries), len(s.Operations))
					return
				}
				_ = e.WithCurrent(func(b *imaging.Buffer) error {
					_ = b.Width()
					return nil
				})
			}
		}()
	}

	for i := 0; i < 30; i++ {
		_, err := e.ApplyGeometric(history.GeometricRotate90, nil)
		require.NoError(t, err)
		if i%5 == 4 {
			e.Undo()
			require.NoError(t, e.DeleteOperation(0))
		}
	}
	close(stop)
	wg.Wait()
	assertConsistent(t, e, tracker)
}

func TestEngine_LogsMutations(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	e, _ := newLoadedEngine(t, history.WithLogger(logger))
	_, err := e.ApplyGeometric(history.GeometricRotate180, nil)
	require.NoError(t, err)

	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, "operation applied", last.Message)
	assert.Equal(t, "Rotate 180°", last.Data["op"])
	assert.Equal(t, 1, last.Data["cursor"])
	assert.Equal(t, 2, last.Data["entries"])

	_, err = e.ApplyGeometric(history.GeometricResize, history.ResizeParams{})
	require.Error(t, err)
	assert.Equal(t, "operation applied", hook.LastEntry().Message, "rejected parameters never reach the transform")
}
