package sync

import (
	"log/slog"
	stdsync "sync"
	"time"

	"github.com/rcalder/wallcue/internal/dispatch"
	"github.com/rcalder/wallcue/internal/metrics"
	"github.com/rcalder/wallcue/internal/schedule"
	"github.com/rcalder/wallcue/internal/store"
	"github.com/rcalder/wallcue/internal/types"
)

// Transport delivers encoded envelopes to every connected peer. The websocket
// hub implements it.
type Transport interface {
	Broadcast(data []byte) error
}

// Roles decides which side effects a device performs when applying peer
// traffic. Exactly one device in a deployment should own the wall, and
// exactly one should be the settings authority (usually the same one).
type Roles struct {
	// WallOwner devices re-execute remote sends, cancels, and clears
	// against their local OSC output.
	WallOwner bool

	// SettingsAuthority devices ignore inbound settings_sync envelopes
	// and broadcast their own configuration instead.
	SettingsAuthority bool
}

// snapshot stagger delays keep two freshly connected peers from exchanging
// full queue_sync envelopes simultaneously. The device with the smaller ID
// sends first.
const (
	snapshotDelayLow  = 250 * time.Millisecond
	snapshotDelayHigh = 1500 * time.Millisecond
)

// A peer silent for this many heartbeat intervals is treated as departed;
// its next heartbeat counts as a fresh connection and re-runs the snapshot
// exchange, so drift accumulated during a partition is reconciled without a
// manual force-sync. The websocket hub tracks connections by remote address,
// not device ID, so disconnects can't evict peers directly — staleness is
// the eviction.
const peerStaleFactor = 3

// defaultHeartbeatInterval sizes the staleness window until StartHeartbeat
// pins the configured interval.
const defaultHeartbeatInterval = 10 * time.Second

// Reconciler bridges the local message store and the peer transport. Local
// store events fan out as envelopes; inbound envelopes are validated and
// applied back to the store. Remote-origin store events are never forwarded,
// which is what breaks the echo loop between two connected devices.
type Reconciler struct {
	store     *store.Store
	disp      *dispatch.Dispatcher
	transport Transport
	roles     Roles
	deviceID  string
	settings  func() types.OSCSettings
	log       *slog.Logger
	reg       *metrics.Registry

	mu         stdsync.Mutex
	peers      map[string]time.Time // peer device ID → last heartbeat
	staleAfter time.Duration
	heartbeat  schedule.Task
	pending    schedule.Group // staggered snapshot timers
	closed     bool
}

// New builds a reconciler and subscribes it to the store's event stream.
// settings reports the current OSC configuration for settings_sync and may
// be nil on devices that never broadcast settings.
func New(
	st *store.Store,
	disp *dispatch.Dispatcher,
	transport Transport,
	roles Roles,
	deviceID string,
	settings func() types.OSCSettings,
	log *slog.Logger,
	reg *metrics.Registry,
) *Reconciler {
	r := &Reconciler{
		store:      st,
		disp:       disp,
		transport:  transport,
		roles:      roles,
		deviceID:   deviceID,
		settings:   settings,
		log:        log.With("component", "sync"),
		reg:        reg,
		peers:      make(map[string]time.Time),
		staleAfter: peerStaleFactor * defaultHeartbeatInterval,
	}
	st.Subscribe(r.onEvent)
	return r
}

// Close stops the heartbeat and any pending snapshot timers.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.closed = true
	hb := r.heartbeat
	r.heartbeat = nil
	r.mu.Unlock()

	if hb != nil {
		hb.Stop()
	}
	r.pending.StopAll()
}

// ─── Outbound: store events → envelopes ──────────────────────────────────────

func (r *Reconciler) onEvent(ev store.Event) {
	// Remote-origin mutations are already known to the peers that sent
	// them. Forwarding them back would ping-pong forever.
	if ev.Origin != store.OriginLocal {
		return
	}

	switch ev.Kind {
	case store.EventAdded:
		r.broadcast(&Envelope{Type: TypeAdded, Message: ev.Message})
	case store.EventSent:
		r.broadcast(&Envelope{Type: TypeSent, Message: ev.Message, Slot: ev.Slot})
	case store.EventCancelled:
		r.broadcast(&Envelope{Type: TypeCancelled, MessageID: ev.Message.ID})
	case store.EventCleared:
		r.broadcast(&Envelope{Type: TypeCleared})
	case store.EventUpdated:
		// There is no dedicated edit envelope. A full snapshot carries
		// the changed fields and converges any other drift for free.
		r.ForceSync()
	}
	// EventExpired is intentionally not forwarded. Every device runs its
	// own expiration sweep on locally computed deadlines.
}

// ForceSync broadcasts a full queue snapshot.
func (r *Reconciler) ForceSync() {
	r.broadcast(&Envelope{Type: TypeQueueSync, Queue: r.store.Snapshot()})
}

// BroadcastSettings announces this device's OSC configuration. Only the
// settings authority should call it.
func (r *Reconciler) BroadcastSettings() {
	if r.settings == nil {
		return
	}
	s := r.settings()
	r.broadcast(&Envelope{Type: TypeSettingsSync, OSCSettings: &s})
}

// StartHeartbeat begins announcing liveness every interval.
func (r *Reconciler) StartHeartbeat(interval time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.heartbeat != nil {
		return
	}
	r.staleAfter = peerStaleFactor * interval
	r.heartbeat = schedule.Periodic(interval, func() {
		r.broadcast(&Envelope{Type: TypeHeartbeat})
	})
}

func (r *Reconciler) broadcast(env *Envelope) {
	env.Timestamp = time.Now().UTC()
	env.DeviceID = r.deviceID

	data, err := env.Encode()
	if err != nil {
		r.log.Error("encode envelope", "type", env.Type, "error", err)
		return
	}
	if err := r.transport.Broadcast(data); err != nil {
		r.log.Warn("broadcast envelope", "type", env.Type, "error", err)
		return
	}
	if r.reg != nil {
		r.reg.EnvelopesOut.Inc()
	}
}

// ─── Inbound: envelopes → store mutations ────────────────────────────────────

// HandlePayload decodes and applies one inbound peer payload. Malformed
// payloads are counted, logged, and dropped without touching the store.
func (r *Reconciler) HandlePayload(data []byte) error {
	if r.reg != nil {
		r.reg.EnvelopesIn.Inc()
	}

	env, err := Decode(data)
	if err != nil {
		if r.reg != nil {
			r.reg.DecodeFailures.Inc()
		}
		r.log.Warn("drop malformed payload", "error", err)
		return err
	}
	if env.DeviceID == r.deviceID {
		return nil
	}

	switch env.Type {
	case TypeHeartbeat:
		r.heartbeatFrom(env.DeviceID)
	case TypeAdded:
		r.store.ApplyAdded(env.Message)
	case TypeSent:
		r.store.ApplySent(env.Message, env.Slot, r.roles.WallOwner)
	case TypeCancelled:
		r.store.ApplyCancelled(env.MessageID, r.roles.WallOwner)
	case TypeCleared:
		r.store.ApplyCleared(r.roles.WallOwner)
	case TypeQueueSync:
		r.store.ApplyQueueSync(env.Queue)
	case TypeSettingsSync:
		r.applySettings(env.OSCSettings)
	}

	if env.DeviceID != "" {
		r.touchPeer(env.DeviceID)
	}
	return nil
}

// applySettings reconfigures the dispatcher from a peer's settings_sync.
// The clear clip in the envelope is discarded and re-derived locally.
func (r *Reconciler) applySettings(s *types.OSCSettings) {
	if r.roles.SettingsAuthority {
		r.log.Debug("ignore settings_sync, this device is the authority")
		return
	}
	rot := r.disp.Reconfigure(s.Layer, s.StartingClip)
	r.log.Info("settings applied from peer",
		"layer", rot.Layer(),
		"starting_clip", rot.StartingClip(),
		"clear_clip", rot.ClearClip())
}

// ─── Peer lifecycle ──────────────────────────────────────────────────────────

// PeerConnected schedules a staggered full snapshot toward a newly connected
// peer. The device with the lexically smaller ID sends almost immediately;
// the other waits long enough to receive and apply that snapshot first, so
// the two sides do not overwrite each other with stale queues.
func (r *Reconciler) PeerConnected(peerDeviceID string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.peers[peerDeviceID] = time.Now()
	r.mu.Unlock()

	delay := snapshotDelayLow
	if peerDeviceID != "" && r.deviceID > peerDeviceID {
		delay = snapshotDelayHigh
	}
	r.pending.Add(schedule.After(delay, func() {
		r.ForceSync()
		if r.roles.SettingsAuthority {
			r.BroadcastSettings()
		}
	}))
	r.log.Info("peer connected", "peer", peerDeviceID, "snapshot_delay", delay)
}

// PeerDisconnected drops liveness tracking for a departed peer.
func (r *Reconciler) PeerDisconnected(peerDeviceID string) {
	r.mu.Lock()
	delete(r.peers, peerDeviceID)
	r.mu.Unlock()
	r.log.Info("peer disconnected", "peer", peerDeviceID)
}

// Peers returns the device IDs heard from within maxAge.
func (r *Reconciler) Peers(maxAge time.Duration) []string {
	cutoff := time.Now().Add(-maxAge)
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.peers))
	for id, seen := range r.peers {
		if seen.After(cutoff) {
			ids = append(ids, id)
		}
	}
	return ids
}

// Hello announces this device immediately. The websocket hub calls it when a
// connection comes up so both sides learn each other's device ID without
// waiting for the next heartbeat tick.
func (r *Reconciler) Hello() {
	r.broadcast(&Envelope{Type: TypeHeartbeat})
}

// heartbeatFrom records liveness. A heartbeat from a device we have not
// heard from yet — or not within the staleness window — doubles as the
// connection handshake and triggers the staggered snapshot exchange. A peer
// reconnecting after a partition therefore gets a fresh full snapshot.
func (r *Reconciler) heartbeatFrom(id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	seen, known := r.peers[id]
	stale := r.staleAfter
	r.mu.Unlock()
	if known && time.Since(seen) < stale {
		r.touchPeer(id)
		return
	}
	r.PeerConnected(id)
}

func (r *Reconciler) touchPeer(id string) {
	if id == "" {
		return
	}
	r.mu.Lock()
	r.peers[id] = time.Now()
	r.mu.Unlock()
}
