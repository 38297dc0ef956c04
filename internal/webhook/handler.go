package webhook

import (
	"log"
	"net/http"
	"time"

	"reviewflow/internal/config"
	"reviewflow/internal/gateway"
	"reviewflow/internal/models"
	"reviewflow/internal/ws"

	"github.com/gin-gonic/gin"
)

// Store is the slice of persistence the webhook needs to sync connection
// state pushed by the bridge.
type Store interface {
	ConnectionByInstance(instanceName string) (*models.WhatsAppConnection, error)
	UpdateConnectionStatus(businessID, status string, lastSeenAt *time.Time) error
}

type Handler struct {
	Config *config.Config
	Store  Store
	Hub    *ws.Hub
}

func NewHandler(cfg *config.Config, store Store, hub *ws.Hub) *Handler {
	return &Handler{Config: cfg, Store: store, Hub: hub}
}

// BridgeEvent is the envelope the bridge posts for instance events.
type BridgeEvent struct {
	Event    string `json:"event"`
	Instance string `json:"instance"`
	Data     struct {
		State string `json:"state"`
	} `json:"data"`
}

var bridgeStates = map[string]string{
	"open":       models.ConnectionConnected,
	"close":      models.ConnectionDisconnected,
	"connecting": models.ConnectionPending,
}

// HandleEvent receives bridge webhooks. Only connection.update is acted on;
// everything else is acknowledged and dropped. This keeps persisted session
// state fresh between dashboard status polls.
func (h *Handler) HandleEvent(c *gin.Context) {
	if h.Config.WebhookToken != "" && c.Query("token") != h.Config.WebhookToken {
		c.Status(http.StatusForbidden)
		return
	}

	var event BridgeEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		log.Printf("Error binding webhook payload: %v", err)
		c.Status(http.StatusBadRequest)
		return
	}

	if event.Event != "connection.update" || event.Instance == "" {
		c.Status(http.StatusOK)
		return
	}

	status, ok := bridgeStates[event.Data.State]
	if !ok {
		status = string(gateway.StateDisconnected)
	}

	conn, err := h.Store.ConnectionByInstance(event.Instance)
	if err != nil {
		log.Printf("Error looking up connection for instance %s: %v", event.Instance, err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if conn == nil || conn.Status == status {
		c.Status(http.StatusOK)
		return
	}

	var lastSeen *time.Time
	if status == models.ConnectionConnected {
		now := time.Now()
		lastSeen = &now
	}
	if err := h.Store.UpdateConnectionStatus(conn.BusinessID, status, lastSeen); err != nil {
		log.Printf("Error updating connection for instance %s: %v", event.Instance, err)
		c.Status(http.StatusInternalServerError)
		return
	}

	log.Printf("Connection %s moved to %s via webhook", event.Instance, status)
	if h.Hub != nil {
		h.Hub.NotifyConnection(conn.BusinessID, status)
	}

	c.Status(http.StatusOK)
}
