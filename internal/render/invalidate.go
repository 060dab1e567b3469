package render

import (
	uv "github.com/charmbracelet/ultraviolet"
)

// Invalidate marks a rectangle of the viewport as needing retransmission.
// The rectangle is clipped to the viewport; a region entirely outside it is
// ignored. The engine keeps a single dirty rectangle, so invalidating two
// distant cells marks everything between them as well.
func (e *Engine) Invalidate(r uv.Rectangle) {
	r = r.Intersect(e.viewport)
	if r.Empty() {
		return
	}
	e.combine(r)
}

// InvalidateRows marks the inclusive row span [top, bottom] across the full
// viewport width.
func (e *Engine) InvalidateRows(top, bottom int) {
	e.Invalidate(uv.Rect(e.viewport.Min.X, top, e.viewport.Dx(), bottom-top+1))
}

// InvalidateAll marks the entire viewport dirty.
func (e *Engine) InvalidateAll() {
	e.invalid = e.viewport
	e.invalidUsed = e.viewport.Dx() > 0 && e.viewport.Dy() > 0
}

// FullyInvalidated reports whether the dirty region covers the whole
// viewport.
func (e *Engine) FullyInvalidated() bool {
	return e.invalidUsed && e.invalid == e.viewport
}

// InvalidRegion returns the current dirty rectangle and whether any region
// is dirty at all.
func (e *Engine) InvalidRegion() (uv.Rectangle, bool) {
	return e.invalid, e.invalidUsed
}

// Viewport returns the engine's current viewport.
func (e *Engine) Viewport() uv.Rectangle {
	return e.viewport
}

// Resized reports whether a viewport update happened since the last
// completed paint.
func (e *Engine) Resized() bool {
	return e.resized
}

// SuppressNextResize arms the one-shot resize suppression: the next
// UpdateViewport call will adopt the new dimensions without emitting a
// resize sequence. Used when the terminal itself initiated the resize, so
// echoing it back would bounce the negotiation forever.
func (e *Engine) SuppressNextResize() {
	e.suppressResize = true
}

// UpdateViewport adopts a new viewport and invalidates whatever the change
// exposed.
//
// A shrink in either dimension invalidates everything: content reflows and
// nothing previously transmitted can be trusted. A pure grow invalidates
// only the exposed bands, the new columns on the right and the new rows on
// the bottom. When the size is unchanged the dirty region is untouched.
//
// The suppression one-shot is consumed on every call, including a same-size
// one. A suppressed resize whose dimensions already match must not leave the
// suppression armed for a later, unrelated resize. The resized flag is
// likewise marked on every call, whether or not a sequence was emitted.
func (e *Engine) UpdateViewport(newView uv.Rectangle) error {
	oldView := e.viewport
	sizeChanged := oldView.Dx() != newView.Dx() || oldView.Dy() != newView.Dy()

	e.viewport = newView
	if e.invalidUsed {
		e.invalid = e.invalid.Intersect(newView)
		e.invalidUsed = !e.invalid.Empty()
	}

	suppress := e.suppressResize
	e.suppressResize = false
	e.resized = true

	if !sizeChanged {
		return nil
	}

	if !suppress {
		if _, err := e.out.WriteString(xtwinopsResize(newView.Dx(), newView.Dy())); err != nil {
			return err
		}
	}

	if newView.Dx() < oldView.Dx() || newView.Dy() < oldView.Dy() {
		e.InvalidateAll()
		return nil
	}

	// Pure grow: only the exposed right and bottom bands need painting.
	if newView.Dx() > oldView.Dx() {
		e.Invalidate(uv.Rect(
			oldView.Min.X+oldView.Dx(), newView.Min.Y,
			newView.Dx()-oldView.Dx(), oldView.Dy(),
		))
	}
	if newView.Dy() > oldView.Dy() {
		e.Invalidate(uv.Rect(
			newView.Min.X, oldView.Min.Y+oldView.Dy(),
			newView.Dx(), newView.Dy()-oldView.Dy(),
		))
	}
	return nil
}

// NotifyBufferCircled is called when the text buffer cycles its topmost
// line out of existence. It reports whether the caller should trigger a
// repaint; during a resize negotiation circling is expected churn and
// repainting it would fight the resize.
func (e *Engine) NotifyBufferCircled() bool {
	e.circled = true
	return e.phase != phaseResizing
}

// combine merges r into the dirty rectangle, clipped to the viewport.
func (e *Engine) combine(r uv.Rectangle) {
	if !e.invalidUsed {
		e.invalid = r
		e.invalidUsed = true
		return
	}
	e.invalid = e.invalid.Union(r).Intersect(e.viewport)
}
