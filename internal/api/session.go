package api

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"reviewflow/internal/auth"
	"reviewflow/internal/connection"
	"reviewflow/internal/database"
	"reviewflow/internal/gateway"
	"reviewflow/internal/models"
	"reviewflow/internal/store"

	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	Client  *gateway.Client
	Tracker *connection.Tracker
	Store   *store.GormStore
}

func NewSessionHandler(client *gateway.Client, tracker *connection.Tracker, s *store.GormStore) *SessionHandler {
	return &SessionHandler{Client: client, Tracker: tracker, Store: s}
}

func instanceName(businessID string) string {
	return "business_" + strings.ReplaceAll(businessID, "-", "_")
}

// CreateSession registers a bridge instance for the tenant. A conflict on the
// bridge side is surfaced as 409 so the dashboard can offer reset-and-retry.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	claims := auth.CurrentUser(c)

	existing, err := h.Store.ConnectionRow(claims.BusinessID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if existing != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Connection already exists"})
		return
	}

	name := instanceName(claims.BusinessID)

	info, err := h.Client.CreateSession(name)
	if err != nil {
		if errors.Is(err, gateway.ErrSessionConflict) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "Session already exists on the gateway. Reset the connection and try again.",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	conn := models.WhatsAppConnection{
		BusinessID:   claims.BusinessID,
		InstanceName: name,
		Status:       models.ConnectionPending,
	}
	if err := database.GormDB.Create(&conn).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save connection"})
		return
	}

	pairing := info.Pairing
	if pairing.Kind == gateway.PairingAbsent {
		// The bridge often isn't ready to emit a credential at create time;
		// one immediate poll is worth trying, the dashboard polls after that.
		if fetched, err := h.Client.FetchPairingPayload(name); err == nil {
			pairing = fetched
		} else {
			log.Printf("Pairing payload not available yet for %s: %v", name, err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"instanceName": name,
		"qrcode":       pairingJSON(pairing),
	})
}

// PairingCode polls the bridge for a fresh pairing credential. Credentials
// expire within tens of seconds, so the dashboard calls this repeatedly.
func (h *SessionHandler) PairingCode(c *gin.Context) {
	claims := auth.CurrentUser(c)

	conn, err := h.Store.ConnectionRow(claims.BusinessID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if conn == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Connection not found"})
		return
	}

	pairing, err := h.Client.FetchPairingPayload(conn.InstanceName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, pairingJSON(pairing))
}

// Status syncs persisted connection state from the bridge and returns it.
func (h *SessionHandler) Status(c *gin.Context) {
	claims := auth.CurrentUser(c)

	conn, err := h.Tracker.Sync(claims.BusinessID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if conn == nil {
		c.JSON(http.StatusOK, gin.H{"status": models.ConnectionDisconnected, "instanceName": nil})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       conn.Status,
		"instanceName": conn.InstanceName,
		"lastSeenAt":   conn.LastSeenAt,
	})
}

// Reset tears the bridge instance down and removes the local row. Teardown
// failure is non-fatal: the local record is removed either way.
func (h *SessionHandler) Reset(c *gin.Context) {
	claims := auth.CurrentUser(c)

	conn, err := h.Store.ConnectionRow(claims.BusinessID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if conn == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Connection not found"})
		return
	}

	if err := h.Client.TeardownSession(conn.InstanceName); err != nil {
		log.Printf("Error tearing down instance %s: %v", conn.InstanceName, err)
	}

	if err := h.Store.DeleteConnection(claims.BusinessID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to remove connection"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func pairingJSON(p gateway.PairingPayload) gin.H {
	switch p.Kind {
	case gateway.PairingImage:
		return gin.H{"base64": p.Image}
	case gateway.PairingCode:
		return gin.H{"code": p.Code}
	default:
		return gin.H{}
	}
}
