package store

import (
	"sync"
	"time"

	"github.com/robofleet/fleetwatch/internal/poller"
	"github.com/robofleet/fleetwatch/telemetry"
)

// subscriberBuffer is the per-subscriber channel depth. Updates to a full
// buffer are dropped for that subscriber rather than blocking the merge path.
const subscriberBuffer = 100

// SnapshotStore holds the latest merged telemetry snapshot and its update
// keys, with a publish-subscribe mechanism for change notifications.
//
// Merges are designed for a single writer (the orchestrator's message
// handlers run one at a time); the internal mutex additionally makes reads
// safe from any goroutine. Each merge replaces only the data class it
// carries and bumps that class's update key by exactly 1; a failed fetch
// never moves a key.
type SnapshotStore struct {
	mu   sync.RWMutex
	snap telemetry.Snapshot
	keys telemetry.UpdateKeys

	subMu       sync.RWMutex
	subscribers map[chan telemetry.Update]struct{}
}

// NewSnapshotStore creates an empty [SnapshotStore], ready for use.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		snap: telemetry.Snapshot{
			Connectivity: map[string]bool{},
			RobotStatus:  map[string]telemetry.StatusRecord{},
			DeviceStatus: map[string]telemetry.DeviceRecord{},
			MotorData:    map[string]telemetry.MotorRecord{},
		},
		subscribers: make(map[chan telemetry.Update]struct{}),
	}
}

// MergeGeneral applies a general-status update: connectivity, robot status,
// and device status are replaced wholesale; motor data is preserved
// untouched. The general update key increments by exactly 1 and any
// visible error state is cleared.
func (s *SnapshotStore) MergeGeneral(u *poller.GeneralUpdate) telemetry.Update {
	s.mu.Lock()
	s.snap.Connectivity = copyBoolMap(u.Connectivity)
	s.snap.RobotStatus = copyStatusMap(u.RobotStatus)
	s.snap.DeviceStatus = copyDeviceMap(u.DeviceStatus)
	s.snap.LastUpdatedAt = u.FetchedAt
	s.snap.LastError = nil
	s.keys.General++
	keys := s.keys
	s.mu.Unlock()

	upd := telemetry.Update{Class: telemetry.UpdateGeneral, Keys: keys, At: u.FetchedAt}
	s.notify(upd)
	return upd
}

// MergeMotor applies a motor telemetry update: motor data is replaced
// wholesale and the motor update key increments by exactly 1. Connectivity
// and the general-status maps are preserved; the general loop owns them.
func (s *SnapshotStore) MergeMotor(u *poller.MotorUpdate) telemetry.Update {
	s.mu.Lock()
	s.snap.MotorData = copyMotorMap(u.Motors)
	s.snap.LastUpdatedAt = u.FetchedAt
	s.keys.Motor++
	keys := s.keys
	s.mu.Unlock()

	upd := telemetry.Update{Class: telemetry.UpdateMotor, Keys: keys, At: u.FetchedAt}
	s.notify(upd)
	return upd
}

// SetGeneralError records a visible general-status fetch failure. No data
// changes and no update key advances; the error is cleared by the next
// successful general merge.
func (s *SnapshotStore) SetGeneralError(msg string, at time.Time) telemetry.Update {
	s.mu.Lock()
	s.snap.LastError = &msg
	keys := s.keys
	s.mu.Unlock()

	upd := telemetry.Update{Class: telemetry.UpdateError, Keys: keys, At: at}
	s.notify(upd)
	return upd
}

// Snapshot returns a deep copy of the current snapshot. The copy is the
// caller's to keep; mutating it cannot affect the store.
func (s *SnapshotStore) Snapshot() telemetry.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.Clone()
}

// Keys returns the current update keys.
func (s *SnapshotStore) Keys() telemetry.UpdateKeys {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keys
}

// Subscribe creates a subscription and returns a channel of change
// notifications. The channel is buffered; a slow consumer misses updates
// rather than stalling the merge path. Callers must Unsubscribe when done.
func (s *SnapshotStore) Subscribe() <-chan telemetry.Update {
	ch := make(chan telemetry.Update, subscriberBuffer)

	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// multiple times or with an unknown channel.
func (s *SnapshotStore) Unsubscribe(ch <-chan telemetry.Update) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	for subCh := range s.subscribers {
		if subCh == ch {
			delete(s.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notify fans an update out to all subscribers, non-blocking.
func (s *SnapshotStore) notify(u telemetry.Update) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for ch := range s.subscribers {
		select {
		case ch <- u:
		default:
			// subscriber is slow, drop the update
		}
	}
}

func copyBoolMap(src map[string]bool) map[string]bool {
	dst := make(map[string]bool, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func copyStatusMap(src map[string]telemetry.StatusRecord) map[string]telemetry.StatusRecord {
	dst := make(map[string]telemetry.StatusRecord, len(src))
	for k, v := range src {
		dst[k] = v.Clone()
	}
	return dst
}

func copyDeviceMap(src map[string]telemetry.DeviceRecord) map[string]telemetry.DeviceRecord {
	dst := make(map[string]telemetry.DeviceRecord, len(src))
	for k, v := range src {
		dst[k] = v.Clone()
	}
	return dst
}

func copyMotorMap(src map[string]telemetry.MotorRecord) map[string]telemetry.MotorRecord {
	dst := make(map[string]telemetry.MotorRecord, len(src))
	for k, v := range src {
		dst[k] = v.Clone()
	}
	return dst
}
