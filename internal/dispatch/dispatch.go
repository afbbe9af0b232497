// Package dispatch translates "show this text" intents into the three-step
// OSC sequence the video engine expects, rotating across three display slots.
//
// Slot model: the output layer carries three rotating text clips starting at
// Rotation.StartingClip, plus one pre-authored empty "clear" clip that is
// always StartingClip+3. The clear clip index is derived, never settable —
// wire settings that carry an explicit clear clip are ignored by construction.
package dispatch

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rcalder/wallcue/internal/osc"
)

// ErrNotConnected is returned when a dispatch is attempted while the
// underlying transport has no live connection. The rotation cursor is left
// untouched so the retried send lands on the same slot.
var ErrNotConnected = errors.New("dispatch: transport not connected")

// slotCount is the number of rotating text slots on the output layer.
const slotCount = 3

// Sender delivers one encoded OSC command per datagram.
// Implemented by transport/oscudp; tests substitute fakes.
type Sender interface {
	// Send transmits a single encoded command as one datagram.
	Send(datagram []byte) error
	// Connected reports whether the transport currently has a live socket.
	Connected() bool
}

// ─── Rotation ────────────────────────────────────────────────────────────────

// Rotation is the immutable per-wall slot configuration.
// Build one with NewRotation; Reconfigure on the Dispatcher swaps it out
// wholesale rather than mutating in place.
type Rotation struct {
	layer        int
	startingClip int
}

// NewRotation builds a Rotation for the given layer and first rotating slot.
// Both indices are 1-based on the wire; values below 1 are clamped to 1.
func NewRotation(layer, startingClip int) Rotation {
	if layer < 1 {
		layer = 1
	}
	if startingClip < 1 {
		startingClip = 1
	}
	return Rotation{layer: layer, startingClip: startingClip}
}

// Layer returns the target layer index.
func (r Rotation) Layer() int { return r.layer }

// StartingClip returns the first of the three rotating slots.
func (r Rotation) StartingClip() int { return r.startingClip }

// ClearClip returns the reserved clear slot. It is always StartingClip+3 —
// there is deliberately no way to set it to anything else.
func (r Rotation) ClearClip() int { return r.startingClip + slotCount }

// ─── Dispatcher ──────────────────────────────────────────────────────────────

// Dispatcher owns the rotation cursor and builds/sends the wire sequences.
//
// All methods are safe for concurrent use, though in practice the message
// store is the only caller and already serializes dispatches.
type Dispatcher struct {
	sender Sender

	mu     sync.Mutex
	rot    Rotation
	cursor int // 0..2, advanced modulo 3 after each confirmed send
}

// New creates a Dispatcher targeting the given rotation.
func New(sender Sender, rot Rotation) *Dispatcher {
	return &Dispatcher{sender: sender, rot: rot}
}

// Rotation returns the current slot configuration.
func (d *Dispatcher) Rotation() Rotation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rot
}

// Cursor returns the current rotation cursor (0..2).
func (d *Dispatcher) Cursor() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursor
}

// Reconfigure swaps in a fresh Rotation for the given layer and starting
// clip and resets the cursor. Any externally supplied clear-clip value is
// discarded — the clear clip is recomputed from the starting clip.
func (d *Dispatcher) Reconfigure(layer, startingClip int) Rotation {
	rot := NewRotation(layer, startingClip)
	d.mu.Lock()
	d.rot = rot
	d.cursor = 0
	d.mu.Unlock()
	return rot
}

// ResetCursor rewinds the rotation to the first slot. Called by the store's
// clear-all operation.
func (d *Dispatcher) ResetCursor() {
	d.mu.Lock()
	d.cursor = 0
	d.mu.Unlock()
}

// SendText pushes text onto the next rotation slot.
//
// Wire sequence, in this exact order (the engine ignores out-of-order steps):
//  1. set the slot's text generator content
//  2. select the slot
//  3. connect (activate) the slot
//
// Each command travels as its own datagram. The cursor advances only after
// all three sends succeed; on any failure the slot is reused next time.
// Returns the absolute clip index that received the text.
func (d *Dispatcher) SendText(text string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.sender.Connected() {
		return 0, ErrNotConnected
	}

	clip := d.rot.startingClip + d.cursor%slotCount
	cmds, err := textSequence(d.rot.layer, clip, text)
	if err != nil {
		return 0, err
	}
	if err := d.sendAll(cmds); err != nil {
		return 0, err
	}

	d.cursor = (d.cursor + 1) % slotCount
	return clip, nil
}

// ClearScreen activates the pre-authored empty clear clip. No text-set step —
// the clear slot has no text generator content to overwrite.
func (d *Dispatcher) ClearScreen() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.sender.Connected() {
		return ErrNotConnected
	}

	cmds, err := activateSequence(d.rot.layer, d.rot.ClearClip())
	if err != nil {
		return err
	}
	return d.sendAll(cmds)
}

// sendAll transmits each command as its own datagram, stopping at the first
// failure. Must be called with d.mu held.
func (d *Dispatcher) sendAll(cmds []osc.Command) error {
	for _, c := range cmds {
		if err := d.sender.Send(c.Encode()); err != nil {
			return fmt.Errorf("dispatch: send %s: %w", c.Addr, err)
		}
	}
	return nil
}

// ─── wire addresses ──────────────────────────────────────────────────────────

// textSequence builds the full set-text → select → connect command triple.
func textSequence(layer, clip int, text string) ([]osc.Command, error) {
	setText, err := osc.NewCommand(
		fmt.Sprintf("/composition/layers/%d/clips/%d/video/source/textgenerator/text/params/lines", layer, clip),
		osc.String(text),
	)
	if err != nil {
		return nil, err
	}
	activate, err := activateSequence(layer, clip)
	if err != nil {
		return nil, err
	}
	return append([]osc.Command{setText}, activate...), nil
}

// activateSequence builds the select + connect pair for a slot.
func activateSequence(layer, clip int) ([]osc.Command, error) {
	sel, err := osc.NewCommand(
		fmt.Sprintf("/composition/layers/%d/clips/%d/select", layer, clip),
		osc.Bool(true),
	)
	if err != nil {
		return nil, err
	}
	conn, err := osc.NewCommand(
		fmt.Sprintf("/composition/layers/%d/clips/%d/connect", layer, clip),
		osc.Bool(true),
	)
	if err != nil {
		return nil, err
	}
	return []osc.Command{sel, conn}, nil
}
