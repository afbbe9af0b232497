package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rcalder/wallcue/internal/types"
)

// ErrDecodeFailure wraps every way an inbound peer payload can be malformed.
// A decode failure is logged and dropped by the reconciler — it never crashes
// the sync path and never partially mutates the store.
var ErrDecodeFailure = errors.New("sync: malformed envelope")

// Type identifies the kind of a sync envelope.
type Type string

const (
	TypeQueueSync    Type = "queue_sync"
	TypeSent         Type = "sent"
	TypeCancelled    Type = "cancelled"
	TypeAdded        Type = "added"
	TypeCleared      Type = "cleared"
	TypeSettingsSync Type = "settings_sync"
	TypeHeartbeat    Type = "heartbeat"
)

// Valid reports whether t is a known envelope type.
func (t Type) Valid() bool {
	switch t {
	case TypeQueueSync, TypeSent, TypeCancelled, TypeAdded,
		TypeCleared, TypeSettingsSync, TypeHeartbeat:
		return true
	}
	return false
}

// Envelope is one typed unit of the peer synchronization protocol. Field
// names are stable — peers on older builds must keep decoding newer traffic.
type Envelope struct {
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// DeviceID attributes the envelope to the device that produced it.
	DeviceID string `json:"device_id,omitempty"`

	// MessageID is set for sent and cancelled envelopes.
	MessageID string `json:"message_id,omitempty"`

	// Slot is the clip index a sent message landed on, carried for
	// display-offset bookkeeping on receiving devices.
	Slot int `json:"slot,omitempty"`

	// Message is the full wire struct for added and sent envelopes.
	Message *types.Message `json:"message,omitempty"`

	// Queue is the full snapshot for queue_sync envelopes.
	Queue []*types.Message `json:"queue,omitempty"`

	// OSCSettings rides settings_sync envelopes. Its clear_clip field is
	// transmitted but always re-derived on receipt, never trusted.
	OSCSettings *types.OSCSettings `json:"osc_settings,omitempty"`
}

// Encode renders the envelope as JSON.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("sync: encode %s envelope: %w", e.Type, err)
	}
	return data, nil
}

// Decode parses and fully validates an inbound payload. Validation runs
// before the caller touches the store so a bad envelope mutates nothing.
func Decode(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailure, err)
	}
	if err := e.validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// validate checks that the envelope carries the payload its type requires.
func (e *Envelope) validate() error {
	if !e.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrDecodeFailure, e.Type)
	}
	switch e.Type {
	case TypeAdded, TypeSent:
		if e.Message == nil {
			return fmt.Errorf("%w: %s envelope without message", ErrDecodeFailure, e.Type)
		}
		if e.Message.ID == "" {
			return fmt.Errorf("%w: %s envelope with empty message id", ErrDecodeFailure, e.Type)
		}
	case TypeCancelled:
		if e.MessageID == "" {
			return fmt.Errorf("%w: cancelled envelope without message_id", ErrDecodeFailure)
		}
	case TypeQueueSync:
		for i, m := range e.Queue {
			if m == nil || m.ID == "" {
				return fmt.Errorf("%w: queue_sync entry %d has no id", ErrDecodeFailure, i)
			}
		}
	case TypeSettingsSync:
		if e.OSCSettings == nil {
			return fmt.Errorf("%w: settings_sync envelope without osc_settings", ErrDecodeFailure)
		}
	}
	return nil
}
