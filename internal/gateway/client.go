package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reviewflow/internal/config"
)

// State is the domain vocabulary for session connectivity. The bridge itself
// reports open/close/connecting.
type State string

const (
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
	StatePending      State = "pending"
)

var bridgeStates = map[string]State{
	"open":       StateConnected,
	"close":      StateDisconnected,
	"connecting": StatePending,
}

// PairingKind tags the normalized pairing payload shape.
type PairingKind int

const (
	PairingAbsent PairingKind = iota
	PairingImage
	PairingCode
)

// PairingPayload is the normalized pairing credential. The bridge returns it
// in several shapes (nested qrcode object, flat fields, bare string); exactly
// one of Image or Code is set depending on Kind.
type PairingPayload struct {
	Kind  PairingKind
	Image string // data-URI PNG when Kind == PairingImage
	Code  string // literal pairing string when Kind == PairingCode
}

type SessionInfo struct {
	InstanceName string
	Pairing      PairingPayload
}

type ConnectionStatus struct {
	State        State
	InstanceName string
	LastSeenAt   string
}

type DeliveryAck struct {
	MessageID string
	Status    string
}

type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		BaseURL: strings.TrimRight(cfg.BridgeURL, "/"),
		APIKey:  cfg.BridgeAPIKey,
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

// doRequest performs one bridge call. A non-nil error means transport failure;
// HTTP-level failures are left to the caller via the status code and body.
func (c *Client) doRequest(method, path string, body interface{}) ([]byte, int, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		bodyReader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, 0, err
	}

	// The bridge authenticates with an apikey header, not Authorization.
	if c.APIKey != "" {
		req.Header.Set("apikey", c.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}

	return respBody, resp.StatusCode, nil
}

// CreateSession registers a new instance on the bridge. A duplicate instance
// name surfaces as ErrSessionConflict so the caller can offer reset-and-retry.
func (c *Client) CreateSession(sessionID string) (*SessionInfo, error) {
	payload := map[string]interface{}{
		"instanceName": sessionID,
		"qrcode":       true,
		"integration":  "WHATSAPP-BAILEYS",
	}

	respBody, status, err := c.doRequest(http.MethodPost, "/instance/create", payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if status == http.StatusForbidden || status == http.StatusConflict {
		return nil, ErrSessionConflict
	}
	if status >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrGatewayUnavailable, status, respBody)
	}

	return &SessionInfo{
		InstanceName: sessionID,
		Pairing:      decodePairing(respBody),
	}, nil
}

// FetchPairingPayload polls the bridge for a pairing credential. Failures are
// non-fatal to callers: the credential may simply not be ready yet.
func (c *Client) FetchPairingPayload(sessionID string) (PairingPayload, error) {
	respBody, status, err := c.doRequest(http.MethodGet, "/instance/connect/"+sessionID, nil)
	if err != nil {
		return PairingPayload{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if status >= 400 {
		return PairingPayload{}, fmt.Errorf("%w: HTTP %d: %s", ErrGatewayUnavailable, status, respBody)
	}

	return decodePairing(respBody), nil
}

type bridgeInstance struct {
	Name             string `json:"name"`
	InstanceName     string `json:"instanceName"`
	ConnectionStatus string `json:"connectionStatus"`
	UpdatedAt        string `json:"updatedAt"`
	LastSeenAt       string `json:"lastSeenAt"`
}

// QueryConnectionState is a liveness probe and fails open: any transport or
// parse error, and an instance the bridge no longer knows, both read as
// disconnected rather than an error.
func (c *Client) QueryConnectionState(sessionID string) ConnectionStatus {
	disconnected := ConnectionStatus{State: StateDisconnected}

	respBody, status, err := c.doRequest(http.MethodGet, "/instance/fetchInstances", nil)
	if err != nil || status >= 400 {
		return disconnected
	}

	var instances []bridgeInstance
	if err := json.Unmarshal(respBody, &instances); err != nil {
		return disconnected
	}

	for _, inst := range instances {
		if inst.Name != sessionID && inst.InstanceName != sessionID {
			continue
		}

		state, ok := bridgeStates[inst.ConnectionStatus]
		if !ok {
			state = StateDisconnected
		}

		name := inst.Name
		if name == "" {
			name = inst.InstanceName
		}
		lastSeen := inst.UpdatedAt
		if lastSeen == "" {
			lastSeen = inst.LastSeenAt
		}

		return ConnectionStatus{State: state, InstanceName: name, LastSeenAt: lastSeen}
	}

	return disconnected
}

type sendTextResponse struct {
	Key struct {
		ID string `json:"id"`
	} `json:"key"`
	Status string `json:"status"`
}

// SendText delivers one text message. Any non-2xx or network failure becomes a
// *SendError whose reason is recorded verbatim in the message log.
func (c *Client) SendText(sessionID, number, text string) (*DeliveryAck, error) {
	payload := map[string]string{
		"number": number,
		"text":   text,
	}

	respBody, status, err := c.doRequest(http.MethodPost, "/message/sendText/"+sessionID, payload)
	if err != nil {
		return nil, &SendError{Reason: err.Error()}
	}
	if status >= 400 {
		reason := strings.TrimSpace(string(respBody))
		if reason == "" {
			reason = fmt.Sprintf("HTTP %d", status)
		}
		return nil, &SendError{Reason: reason}
	}

	var resp sendTextResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		// Delivery went through even if the ack body is unparseable.
		return &DeliveryAck{}, nil
	}

	return &DeliveryAck{MessageID: resp.Key.ID, Status: resp.Status}, nil
}

// TeardownSession deletes the instance on the bridge. Callers treat failure as
// non-fatal for local cleanup.
func (c *Client) TeardownSession(sessionID string) error {
	respBody, status, err := c.doRequest(http.MethodDelete, "/instance/delete/"+sessionID, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if status >= 400 {
		return fmt.Errorf("%w: HTTP %d: %s", ErrGatewayUnavailable, status, respBody)
	}
	return nil
}

type pairingEnvelope struct {
	QRCode *struct {
		Base64      string `json:"base64"`
		Code        string `json:"code"`
		PairingCode string `json:"pairingCode"`
	} `json:"qrcode"`
	Base64      string `json:"base64"`
	Code        string `json:"code"`
	PairingCode string `json:"pairingCode"`
}

// decodePairing maps the bridge's loose response shapes onto the tagged
// PairingPayload union. Image data wins over a raw code when both are present.
func decodePairing(body []byte) PairingPayload {
	// Bare string response: the QR image as raw base64.
	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		if s == "" {
			return PairingPayload{Kind: PairingAbsent}
		}
		return PairingPayload{Kind: PairingImage, Image: ensureDataURI(s)}
	}

	var env pairingEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return PairingPayload{Kind: PairingAbsent}
	}

	base64Data := env.Base64
	code := env.Code
	if code == "" {
		code = env.PairingCode
	}
	if env.QRCode != nil {
		if env.QRCode.Base64 != "" {
			base64Data = env.QRCode.Base64
		}
		if env.QRCode.Code != "" {
			code = env.QRCode.Code
		} else if env.QRCode.PairingCode != "" {
			code = env.QRCode.PairingCode
		}
	}

	switch {
	case base64Data != "":
		return PairingPayload{Kind: PairingImage, Image: ensureDataURI(base64Data)}
	case code != "":
		return PairingPayload{Kind: PairingCode, Code: code}
	default:
		return PairingPayload{Kind: PairingAbsent}
	}
}

func ensureDataURI(b64 string) string {
	if strings.HasPrefix(b64, "data:") {
		return b64
	}
	return "data:image/png;base64," + b64
}
