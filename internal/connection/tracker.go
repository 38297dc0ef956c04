package connection

import (
	"time"

	"reviewflow/internal/gateway"
	"reviewflow/internal/models"
)

// Gateway is the single liveness probe the tracker uses.
type Gateway interface {
	QueryConnectionState(sessionID string) gateway.ConnectionStatus
}

// Store reads and writes the persisted session row.
type Store interface {
	ConnectionRow(businessID string) (*models.WhatsAppConnection, error)
	UpdateConnectionStatus(businessID, status string, lastSeenAt *time.Time) error
}

// Tracker bridges the gateway's liveness probe to the persisted connection
// state. The dispatch engine trusts the persisted state rather than polling
// the bridge itself, so a session that silently dropped stays "connected"
// until the next Sync. That staleness window is accepted.
type Tracker struct {
	Gateway Gateway
	Store   Store

	Now func() time.Time

	// OnChange, if set, is called after a state transition is persisted.
	OnChange func(businessID, status string)
}

func NewTracker(gw Gateway, store Store) *Tracker {
	return &Tracker{
		Gateway: gw,
		Store:   store,
		Now:     time.Now,
	}
}

// Sync polls the bridge and persists any state change. Entering connected
// stamps last_seen_at, leaving connected clears it. Returns the up-to-date
// row, or nil when the business has no session.
func (t *Tracker) Sync(businessID string) (*models.WhatsAppConnection, error) {
	row, err := t.Store.ConnectionRow(businessID)
	if err != nil || row == nil {
		return nil, err
	}

	probed := t.Gateway.QueryConnectionState(row.InstanceName)
	status := string(probed.State)

	if status != row.Status {
		var lastSeen *time.Time
		if status == models.ConnectionConnected {
			now := t.Now()
			lastSeen = &now
		}
		if err := t.Store.UpdateConnectionStatus(businessID, status, lastSeen); err != nil {
			return nil, err
		}
		row.Status = status
		row.LastSeenAt = lastSeen

		if t.OnChange != nil {
			t.OnChange(businessID, status)
		}
	}

	return row, nil
}

// Status returns the persisted row without touching the bridge.
func (t *Tracker) Status(businessID string) (*models.WhatsAppConnection, error) {
	return t.Store.ConnectionRow(businessID)
}
