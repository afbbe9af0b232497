// Package store is the single source of truth for the message queue and its
// lifecycle. Every mutation — operator actions, reconciler-applied peer
// envelopes, and timer sweeps — is serialized through one mutex, so the
// single-writer discipline is enforced by structure rather than convention.
// Reads hand out snapshot copies and never expose live pointers.
//
// Data flow:
//
//	operator / peer envelope → Store mutation → Wall (OSC dispatch)
//	                                          → Event subscribers (sync, display)
//	                                          → Journal (best-effort mirror)
package store

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rcalder/wallcue/internal/device"
	"github.com/rcalder/wallcue/internal/metrics"
	"github.com/rcalder/wallcue/internal/schedule"
	"github.com/rcalder/wallcue/internal/types"
)

// ─── Errors ──────────────────────────────────────────────────────────────────

var (
	// ErrNotFound is returned when an operation names a message id the store
	// does not hold.
	ErrNotFound = errors.New("store: message not found")
	// ErrEmptyText is returned when Add or Edit would leave a message with no
	// display text.
	ErrEmptyText = errors.New("store: message text must not be empty")
)

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds tunable parameters for the store.
// All zero-values are valid; use DefaultConfig() for production-safe defaults.
type Config struct {
	// Countdown is how long a message stays displayable before it expires.
	// Applied at creation and recomputed locally for messages arriving from
	// peers. 0 = messages never expire.
	Countdown time.Duration

	// Cooldown is the dedup window: a message id dispatched within this
	// window is silently not re-sent.
	Cooldown time.Duration

	// SweepInterval is how often the background expiration sweep runs.
	SweepInterval time.Duration
}

// DefaultConfig returns a Config with production-safe defaults.
func DefaultConfig() Config {
	return Config{
		Countdown:     10 * time.Minute,
		Cooldown:      30 * time.Second,
		SweepInterval: 15 * time.Second,
	}
}

// ─── Events ──────────────────────────────────────────────────────────────────

// EventKind identifies what changed in the store.
type EventKind string

const (
	EventAdded     EventKind = "added"
	EventSent      EventKind = "sent"
	EventCancelled EventKind = "cancelled"
	EventExpired   EventKind = "expired"
	EventUpdated   EventKind = "updated"
	EventCleared   EventKind = "cleared"
	EventSynced    EventKind = "synced"
)

// Origin says whether a mutation came from a local action or a peer envelope.
// Subscribers forwarding changes to peers must only forward OriginLocal
// events, otherwise every envelope would echo back out.
type Origin string

const (
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// Event describes one store mutation. Message is a clone (nil for Cleared and
// Synced); Slot is the clip index used, meaningful only for EventSent.
type Event struct {
	Kind    EventKind
	Origin  Origin
	Message *types.Message
	Slot    int
}

// ─── Wall ────────────────────────────────────────────────────────────────────

// Wall is the dispatch surface the store drives. Implemented by
// dispatch.Dispatcher; a receive-only device wires in a no-op wall.
type Wall interface {
	// SendText pushes text to the next rotation slot and returns the clip used.
	SendText(text string) (int, error)
	// ClearScreen activates the pre-authored empty clear slot.
	ClearScreen() error
	// ResetCursor rewinds the rotation to its first slot.
	ResetCursor()
}

// Journal mirrors queue mutations to disk so a restart can restore the queue.
// Implemented by storage.Journal; nil disables journaling.
type Journal interface {
	Put(msg *types.Message) error
	Delete(id string) error
	Clear() error
	Load() ([]*types.Message, error)
}

// ─── Store ───────────────────────────────────────────────────────────────────

// Store owns the message queue. All public methods are safe for concurrent
// use; mutations are serialized through a single mutex.
type Store struct {
	cfg     Config
	wall    Wall
	journal Journal
	reg     *metrics.Registry // may be nil

	mu       sync.Mutex
	messages map[string]*types.Message
	order    []string // message ids in insertion order

	// Dedup ledger — bookkeeping, never user-visible.
	lastSend map[string]time.Time // id → most recent dispatch attempt
	sentIDs  map[string]struct{}  // ids that have been dispatched and must not auto-resend

	// lastRemoteSlot records the slot a peer device reported using, for
	// display-offset bookkeeping on receive-only nodes.
	lastRemoteSlot int

	subs []func(Event)

	sweepTask schedule.Task
	cycleTask schedule.Task
}

// Option configures optional Store collaborators.
type Option func(*Store)

// WithMetrics attaches a metrics registry; the store bumps its message
// lifecycle counters on every transition.
func WithMetrics(reg *metrics.Registry) Option {
	return func(s *Store) { s.reg = reg }
}

// New creates a Store. wall must not be nil; journal may be nil.
// Call Start to launch the background expiration sweep and Close on teardown.
func New(cfg Config, wall Wall, journal Journal, opts ...Option) *Store {
	def := DefaultConfig()
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = def.Cooldown
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}
	s := &Store{
		cfg:      cfg,
		wall:     wall,
		journal:  journal,
		messages: make(map[string]*types.Message),
		lastSend: make(map[string]time.Time),
		sentIDs:  make(map[string]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Subscribe registers fn to receive every store event. Events fire after the
// store lock is released; fn must not block for long.
func (s *Store) Subscribe(fn func(Event)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// Start launches the periodic expiration sweep.
func (s *Store) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sweepTask != nil {
		return
	}
	s.sweepTask = schedule.Periodic(s.cfg.SweepInterval, func() {
		s.ExpirationSweep(time.Now())
	})
}

// Close stops every background task. The journal is closed by its owner.
func (s *Store) Close() {
	s.mu.Lock()
	sweep, cycle := s.sweepTask, s.cycleTask
	s.sweepTask, s.cycleTask = nil, nil
	s.mu.Unlock()

	if sweep != nil {
		sweep.Stop()
	}
	if cycle != nil {
		cycle.Stop()
	}
}

// Restore replays the journal into an empty store. Expiries are recomputed
// locally — wall state from before the restart is unknowable, so previously
// sent messages keep their status but their countdown starts over.
func (s *Store) Restore() error {
	if s.journal == nil {
		return nil
	}
	msgs, err := s.journal.Load()
	if err != nil {
		return fmt.Errorf("store: restore: %w", err)
	}

	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range msgs {
		switch m.Status {
		case types.StatusQueued, types.StatusSent:
			// restorable
		default:
			continue
		}
		c := m.Clone()
		c.ExpiresAt = s.expiryFrom(now)
		s.messages[c.ID] = c
		s.order = append(s.order, c.ID)
		if c.Status == types.StatusSent {
			s.sentIDs[c.ID] = struct{}{}
		}
	}
	return nil
}

// ─── Local operations ────────────────────────────────────────────────────────

// Add creates a queued message and notifies subscribers.
func (s *Store) Add(text, identifier string, labelType types.LabelType, customLabel string) (*types.Message, error) {
	text = types.NormalizeText(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if !labelType.Valid() {
		labelType = types.LabelNone
	}

	id, err := device.NewID()
	if err != nil {
		return nil, fmt.Errorf("store: add: %w", err)
	}

	now := time.Now()
	msg := &types.Message{
		ID:          id,
		Text:        text,
		Identifier:  identifier,
		LabelType:   labelType,
		CustomLabel: customLabel,
		Status:      types.StatusQueued,
		CreatedAt:   now,
		ExpiresAt:   s.expiryFrom(now),
	}

	s.mu.Lock()
	s.messages[id] = msg
	s.order = append(s.order, id)
	s.journalPut(msg)
	out := msg.Clone()
	s.mu.Unlock()

	s.emit(Event{Kind: EventAdded, Origin: OriginLocal, Message: out})
	return out, nil
}

// Dispatch pushes the message onto the wall.
//
// Dedup guard — both are deliberate silent no-ops, not errors:
//   - the id has already been dispatched and the message is still sent
//   - the id was dispatched within the cooldown window
//
// Otherwise the wall send runs first; only on success does the store mark
// every other sent message expired and this one sent. A failed send leaves
// every status untouched and surfaces the error.
func (s *Store) Dispatch(id string) error {
	s.mu.Lock()
	msg, ok := s.messages[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	now := time.Now()
	if _, dispatched := s.sentIDs[id]; dispatched && msg.Status == types.StatusSent {
		s.mu.Unlock()
		s.countDeduped()
		return nil
	}
	if last, ok := s.lastSend[id]; ok && now.Sub(last) < s.cfg.Cooldown {
		s.mu.Unlock()
		s.countDeduped()
		return nil
	}

	events, err := s.sendLocked(msg, now)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.emitAll(events)
	return nil
}

// sendLocked performs the wall send and the sent/superseded bookkeeping.
// Must be called with s.mu held; returns the events to emit after unlock.
func (s *Store) sendLocked(msg *types.Message, now time.Time) ([]Event, error) {
	slot, err := s.wall.SendText(msg.Text)
	if err != nil {
		return nil, fmt.Errorf("store: dispatch %s: %w", msg.ID, err)
	}

	var events []Event
	for _, other := range s.allLocked() {
		if other.ID != msg.ID && other.Status == types.StatusSent {
			other.Status = types.StatusExpired
			s.journalPut(other)
			events = append(events, Event{Kind: EventExpired, Origin: OriginLocal, Message: other.Clone()})
		}
	}

	msg.Status = types.StatusSent
	sentAt := now
	msg.SentAt = &sentAt
	s.lastSend[msg.ID] = now
	s.sentIDs[msg.ID] = struct{}{}
	s.journalPut(msg)

	events = append(events, Event{Kind: EventSent, Origin: OriginLocal, Message: msg.Clone(), Slot: slot})
	return events, nil
}

// Cancel withdraws a message. A sent message is pulled off the wall and
// returned to queued — its ledger entries are cleared so it can be resent
// immediately, bypassing the cooldown. Any other message is removed entirely.
func (s *Store) Cancel(id string) error {
	s.mu.Lock()
	msg, ok := s.messages[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	var out *types.Message
	if msg.Status == types.StatusSent {
		delete(s.sentIDs, id)
		delete(s.lastSend, id)
		if err := s.wall.ClearScreen(); err != nil {
			slog.Warn("clear screen on cancel failed", "id", id, "err", err)
		}
		msg.Status = types.StatusQueued
		s.journalPut(msg)
		out = msg.Clone()
	} else {
		s.removeLocked(id)
		msg.Status = types.StatusCancelled
		out = msg.Clone()
	}
	s.mu.Unlock()

	s.emit(Event{Kind: EventCancelled, Origin: OriginLocal, Message: out})
	return nil
}

// EditFields carries the mutable fields an edit may change. Nil pointers
// leave the field untouched.
type EditFields struct {
	Text        *string
	Identifier  *string
	LabelType   *types.LabelType
	CustomLabel *string
}

// Edit mutates a message's display fields in place. If the message is
// currently on the wall it is re-dispatched so the wall refreshes —
// bypassing the dedup guard, since refreshing the current message is the
// whole point.
func (s *Store) Edit(id string, fields EditFields) error {
	s.mu.Lock()
	msg, ok := s.messages[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	if fields.Text != nil {
		text := types.NormalizeText(*fields.Text)
		if text == "" {
			s.mu.Unlock()
			return ErrEmptyText
		}
		msg.Text = text
	}
	if fields.Identifier != nil {
		msg.Identifier = *fields.Identifier
	}
	if fields.LabelType != nil && fields.LabelType.Valid() {
		msg.LabelType = *fields.LabelType
	}
	if fields.CustomLabel != nil {
		msg.CustomLabel = *fields.CustomLabel
	}
	s.journalPut(msg)

	if msg.Status == types.StatusSent {
		events, err := s.sendLocked(msg, time.Now())
		s.mu.Unlock()
		if err != nil {
			return err
		}
		s.emitAll(events)
		return nil
	}

	out := msg.Clone()
	s.mu.Unlock()
	s.emit(Event{Kind: EventUpdated, Origin: OriginLocal, Message: out})
	return nil
}

// ExpirationSweep transitions every non-cancelled message whose expiry has
// passed to expired. Exported so callers (and tests) can sweep at a chosen
// instant; the background task invokes it with time.Now every SweepInterval.
// Returns the ids that expired.
func (s *Store) ExpirationSweep(now time.Time) []string {
	s.mu.Lock()
	var events []Event
	var expired []string
	for _, msg := range s.allLocked() {
		if msg.Status != types.StatusQueued && msg.Status != types.StatusSent {
			continue
		}
		if !msg.Expired(now) {
			continue
		}
		msg.Status = types.StatusExpired
		s.journalPut(msg)
		expired = append(expired, msg.ID)
		events = append(events, Event{Kind: EventExpired, Origin: OriginLocal, Message: msg.Clone()})
	}
	s.mu.Unlock()

	s.emitAll(events)
	return expired
}

// StartAutoCycle begins timer-driven rotation: every interval the current
// sent message expires and the next queued message takes the wall, or the
// wall clears when the queue is empty. Restarting with a new interval
// replaces the previous cycle task.
func (s *Store) StartAutoCycle(interval time.Duration) {
	s.StopAutoCycle()
	s.mu.Lock()
	s.cycleTask = schedule.Periodic(interval, s.cycle)
	s.mu.Unlock()
}

// StopAutoCycle stops the cycle task if one is running.
func (s *Store) StopAutoCycle() {
	s.mu.Lock()
	task := s.cycleTask
	s.cycleTask = nil
	s.mu.Unlock()
	if task != nil {
		task.Stop()
	}
}

// cycle is one auto-cycle tick.
func (s *Store) cycle() {
	now := time.Now()

	s.mu.Lock()
	var events []Event
	for _, msg := range s.allLocked() {
		if msg.Status == types.StatusSent {
			msg.Status = types.StatusExpired
			s.journalPut(msg)
			events = append(events, Event{Kind: EventExpired, Origin: OriginLocal, Message: msg.Clone()})
		}
	}

	var next *types.Message
	for _, msg := range s.allLocked() {
		if msg.Status == types.StatusQueued {
			next = msg
			break
		}
	}

	if next == nil {
		if err := s.wall.ClearScreen(); err != nil {
			slog.Warn("auto-cycle clear failed", "err", err)
		}
		s.mu.Unlock()
		s.emitAll(events)
		return
	}

	// The cycle replaces the message it just expired, so the dedup guard and
	// cooldown do not apply.
	sendEvents, err := s.sendLocked(next, now)
	s.mu.Unlock()
	if err != nil {
		slog.Warn("auto-cycle dispatch failed", "id", next.ID, "err", err)
	}
	s.emitAll(append(events, sendEvents...))
}

// ClearAll empties the queue, resets the dedup ledger and the rotation
// cursor, and clears the wall if anything was on it.
func (s *Store) ClearAll() {
	s.mu.Lock()
	s.clearLocked(true)
	s.mu.Unlock()

	s.emit(Event{Kind: EventCleared, Origin: OriginLocal})
}

// clearLocked performs the clear-all bookkeeping. Must hold s.mu.
// clearWall controls whether the wall itself is touched — a receive-only
// node applying a peer "cleared" envelope passes its no-op wall anyway.
func (s *Store) clearLocked(clearWall bool) {
	if clearWall {
		anySent := false
		for _, msg := range s.messages {
			if msg.Status == types.StatusSent {
				anySent = true
				break
			}
		}
		if anySent {
			if err := s.wall.ClearScreen(); err != nil {
				slog.Warn("clear screen on clear-all failed", "err", err)
			}
		}
	}

	s.messages = make(map[string]*types.Message)
	s.order = nil
	s.lastSend = make(map[string]time.Time)
	s.sentIDs = make(map[string]struct{})
	s.wall.ResetCursor()
	if s.journal != nil {
		if err := s.journal.Clear(); err != nil {
			slog.Warn("journal clear failed", "err", err)
		}
	}
}

// ─── Reads ───────────────────────────────────────────────────────────────────

// Snapshot returns a copy of every message in insertion order.
func (s *Store) Snapshot() []*types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*types.Message, 0, len(s.order))
	for _, msg := range s.allLocked() {
		out = append(out, msg.Clone())
	}
	return out
}

// Get returns a copy of one message.
func (s *Store) Get(id string) (*types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg, ok := s.messages[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return msg.Clone(), nil
}

// Len returns the number of messages currently held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// LastRemoteSlot returns the most recent slot a peer reported dispatching to.
func (s *Store) LastRemoteSlot() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRemoteSlot
}

// ─── Peer-applied mutations ──────────────────────────────────────────────────
// These are invoked by the sync reconciler with fully decoded envelopes; each
// either applies completely or not at all.

// ApplyAdded inserts a message learned from a peer. A known id is a no-op —
// "added" is an insert, never an update. The expiry is recomputed locally.
func (s *Store) ApplyAdded(remote *types.Message) {
	s.mu.Lock()
	if _, known := s.messages[remote.ID]; known {
		s.mu.Unlock()
		return
	}
	msg := s.insertRemoteLocked(remote, time.Now())
	out := msg.Clone()
	s.mu.Unlock()

	s.emit(Event{Kind: EventAdded, Origin: OriginRemote, Message: out})
}

// ApplySent marks a message sent on a peer's authority. Remote field values
// overwrite local ones and the remote slot is recorded for display-offset
// bookkeeping. When redisplay is true (this device owns the video engine but
// the send originated elsewhere) the text is also pushed to the wall.
func (s *Store) ApplySent(remote *types.Message, slot int, redisplay bool) {
	now := time.Now()

	s.mu.Lock()
	msg, known := s.messages[remote.ID]
	if !known {
		msg = s.insertRemoteLocked(remote, now)
	} else {
		overwriteFields(msg, remote)
	}

	var events []Event
	for _, other := range s.allLocked() {
		if other.ID != msg.ID && other.Status == types.StatusSent {
			other.Status = types.StatusExpired
			s.journalPut(other)
			events = append(events, Event{Kind: EventExpired, Origin: OriginRemote, Message: other.Clone()})
		}
	}

	msg.Status = types.StatusSent
	sentAt := now
	msg.SentAt = &sentAt
	s.lastSend[msg.ID] = now
	s.sentIDs[msg.ID] = struct{}{}
	s.lastRemoteSlot = slot
	s.journalPut(msg)

	if redisplay {
		if _, err := s.wall.SendText(msg.Text); err != nil {
			slog.Warn("redisplay of peer-sent message failed", "id", msg.ID, "err", err)
		}
	}

	events = append(events, Event{Kind: EventSent, Origin: OriginRemote, Message: msg.Clone(), Slot: slot})
	s.mu.Unlock()

	s.emitAll(events)
}

// ApplyCancelled applies a peer cancellation with the same queued/removed
// logic as a local cancel. clearWall controls whether this device clears the
// video engine for a cancelled-while-sent message.
func (s *Store) ApplyCancelled(id string, clearWall bool) {
	s.mu.Lock()
	msg, ok := s.messages[id]
	if !ok {
		s.mu.Unlock()
		return
	}

	var out *types.Message
	if msg.Status == types.StatusSent {
		delete(s.sentIDs, id)
		delete(s.lastSend, id)
		if clearWall {
			if err := s.wall.ClearScreen(); err != nil {
				slog.Warn("clear screen on peer cancel failed", "id", id, "err", err)
			}
		}
		msg.Status = types.StatusQueued
		s.journalPut(msg)
		out = msg.Clone()
	} else {
		s.removeLocked(id)
		msg.Status = types.StatusCancelled
		out = msg.Clone()
	}
	s.mu.Unlock()

	s.emit(Event{Kind: EventCancelled, Origin: OriginRemote, Message: out})
}

// ApplyQueueSync reconciles the local queue against a peer's full snapshot:
// local ids absent from the snapshot are removed, known ids have their
// mutable fields and status overwritten in place, and unknown ids are
// inserted with their status intact — a snapshot entry that is sent on the
// peer stays sent here, otherwise the echo snapshot would demote the
// originator's own wall message back to queued. Expiries are still recomputed
// locally. Afterwards the local id set equals the incoming id set exactly.
func (s *Store) ApplyQueueSync(incoming []*types.Message) {
	now := time.Now()

	s.mu.Lock()
	incomingIDs := make(map[string]struct{}, len(incoming))
	for _, m := range incoming {
		incomingIDs[m.ID] = struct{}{}
	}

	for _, id := range append([]string(nil), s.order...) {
		if _, keep := incomingIDs[id]; !keep {
			s.removeLocked(id)
		}
	}

	for _, remote := range incoming {
		msg, known := s.messages[remote.ID]
		if !known {
			msg = s.insertRemoteLocked(remote, now)
		} else {
			overwriteFields(msg, remote)
		}
		if remote.Status.Valid() {
			msg.Status = remote.Status
		}
		if msg.Status == types.StatusSent {
			s.sentIDs[msg.ID] = struct{}{}
			if msg.SentAt == nil {
				sentAt := now
				if remote.SentAt != nil {
					sentAt = *remote.SentAt
				}
				msg.SentAt = &sentAt
			}
		} else {
			delete(s.sentIDs, msg.ID)
		}
		s.journalPut(msg)
	}
	s.mu.Unlock()

	s.emit(Event{Kind: EventSynced, Origin: OriginRemote})
}

// ApplyCleared empties the queue on a peer's authority, with the same ledger
// and cursor reset as a local ClearAll.
func (s *Store) ApplyCleared(clearWall bool) {
	s.mu.Lock()
	s.clearLocked(clearWall)
	s.mu.Unlock()

	s.emit(Event{Kind: EventCleared, Origin: OriginRemote})
}

// ─── internal helpers ────────────────────────────────────────────────────────

// allLocked iterates messages in insertion order. Must hold s.mu.
func (s *Store) allLocked() []*types.Message {
	out := make([]*types.Message, 0, len(s.order))
	for _, id := range s.order {
		if msg, ok := s.messages[id]; ok {
			out = append(out, msg)
		}
	}
	return out
}

// insertRemoteLocked stores a copy of a peer's message as part of the local
// queue. Text is normalized and the expiry recomputed from the local
// countdown — never taken from the peer. Must hold s.mu.
func (s *Store) insertRemoteLocked(remote *types.Message, now time.Time) *types.Message {
	msg := remote.Clone()
	msg.Text = types.NormalizeText(msg.Text)
	msg.Status = types.StatusQueued
	if !msg.LabelType.Valid() {
		msg.LabelType = types.LabelNone
	}
	msg.ExpiresAt = s.expiryFrom(now)
	msg.SentAt = nil
	s.messages[msg.ID] = msg
	s.order = append(s.order, msg.ID)
	s.journalPut(msg)
	return msg
}

// removeLocked deletes a message and its ledger entries. Must hold s.mu.
func (s *Store) removeLocked(id string) {
	delete(s.messages, id)
	delete(s.sentIDs, id)
	delete(s.lastSend, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.journal != nil {
		if err := s.journal.Delete(id); err != nil {
			slog.Warn("journal delete failed", "id", id, "err", err)
		}
	}
}

// overwriteFields copies the mutable display fields from remote onto local.
// The local expiry is kept — countdown context is always local.
func overwriteFields(local, remote *types.Message) {
	local.Text = types.NormalizeText(remote.Text)
	local.Identifier = remote.Identifier
	if remote.LabelType.Valid() {
		local.LabelType = remote.LabelType
	}
	local.CustomLabel = remote.CustomLabel
	local.Priority = remote.Priority
}

// expiryFrom computes a fresh local expiry, or nil when countdown is off.
func (s *Store) expiryFrom(now time.Time) *time.Time {
	if s.cfg.Countdown <= 0 {
		return nil
	}
	t := now.Add(s.cfg.Countdown)
	return &t
}

// journalPut mirrors msg to the journal best-effort. Must hold s.mu.
func (s *Store) journalPut(msg *types.Message) {
	if s.journal == nil {
		return
	}
	if err := s.journal.Put(msg); err != nil {
		slog.Warn("journal put failed", "id", msg.ID, "err", err)
	}
}

func (s *Store) countDeduped() {
	if s.reg != nil {
		s.reg.MessagesDeduped.Inc()
	}
}

// emit fires one event to every subscriber. Must NOT hold s.mu.
// It is also the single counting point for the lifecycle metrics, so local
// actions, peer-applied mutations, and timer sweeps all land in the same
// counters.
func (s *Store) emit(ev Event) {
	if s.reg != nil {
		switch ev.Kind {
		case EventAdded:
			s.reg.MessagesAdded.Inc()
		case EventSent:
			s.reg.MessagesDispatched.Inc()
		case EventExpired:
			s.reg.MessagesExpired.Inc()
		case EventCancelled:
			s.reg.MessagesCancelled.Inc()
		}
	}
	s.mu.Lock()
	subs := append([]func(Event){}, s.subs...)
	s.mu.Unlock()
	for _, fn := range subs {
		fn(ev)
	}
}

// emitAll fires events in order. Must NOT hold s.mu.
func (s *Store) emitAll(events []Event) {
	for _, ev := range events {
		s.emit(ev)
	}
}
