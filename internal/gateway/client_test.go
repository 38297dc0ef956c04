package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(url string) *Client {
	return &Client{
		BaseURL: url,
		APIKey:  "test-key",
		HTTP:    &http.Client{Timeout: 2 * time.Second},
	}
}

func TestCreateSessionSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/instance/create", r.URL.Path)
		require.Equal(t, "test-key", r.Header.Get("apikey"))

		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "business_1", body["instanceName"])
		assert.Equal(t, "WHATSAPP-BAILEYS", body["integration"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"qrcode": map[string]string{"base64": "iVBOR", "code": "qr-text"},
		})
	}))
	defer srv.Close()

	info, err := testClient(srv.URL).CreateSession("business_1")
	require.NoError(t, err)
	assert.Equal(t, "business_1", info.InstanceName)
	assert.Equal(t, PairingImage, info.Pairing.Kind)
	assert.Equal(t, "data:image/png;base64,iVBOR", info.Pairing.Image)
}

func TestCreateSessionConflict(t *testing.T) {
	for _, status := range []int{http.StatusForbidden, http.StatusConflict} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
			w.Write([]byte(`{"error":"instance name already in use"}`))
		}))

		_, err := testClient(srv.URL).CreateSession("business_1")
		assert.ErrorIs(t, err, ErrSessionConflict, "status %d", status)
		srv.Close()
	}
}

func TestCreateSessionUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).CreateSession("business_1")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestFetchPairingPayloadShapes(t *testing.T) {
	cases := []struct {
		name string
		body string
		want PairingPayload
	}{
		{
			name: "nested qrcode object",
			body: `{"qrcode":{"base64":"data:image/png;base64,AAA","code":"c1"}}`,
			want: PairingPayload{Kind: PairingImage, Image: "data:image/png;base64,AAA"},
		},
		{
			name: "flat base64",
			body: `{"base64":"BBB"}`,
			want: PairingPayload{Kind: PairingImage, Image: "data:image/png;base64,BBB"},
		},
		{
			name: "code only",
			body: `{"code":"PAIR-123"}`,
			want: PairingPayload{Kind: PairingCode, Code: "PAIR-123"},
		},
		{
			name: "pairingCode field",
			body: `{"pairingCode":"PC-9"}`,
			want: PairingPayload{Kind: PairingCode, Code: "PC-9"},
		},
		{
			name: "raw string",
			body: `"CCC"`,
			want: PairingPayload{Kind: PairingImage, Image: "data:image/png;base64,CCC"},
		},
		{
			name: "nothing usable",
			body: `{"count":0}`,
			want: PairingPayload{Kind: PairingAbsent},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/instance/connect/business_1", r.URL.Path)
				w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			got, err := testClient(srv.URL).FetchPairingPayload("business_1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFetchPairingPayloadError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).FetchPairingPayload("business_1")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestQueryConnectionStateMapping(t *testing.T) {
	cases := map[string]State{
		"open":       StateConnected,
		"close":      StateDisconnected,
		"connecting": StatePending,
		"weird":      StateDisconnected,
	}

	for bridgeState, want := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/instance/fetchInstances", r.URL.Path)
			json.NewEncoder(w).Encode([]map[string]string{
				{"name": "other", "connectionStatus": "open"},
				{"name": "business_1", "connectionStatus": bridgeState, "updatedAt": "2026-01-02T03:04:05Z"},
			})
		}))

		status := testClient(srv.URL).QueryConnectionState("business_1")
		assert.Equal(t, want, status.State, "bridge state %q", bridgeState)
		if want == StateConnected {
			assert.Equal(t, "2026-01-02T03:04:05Z", status.LastSeenAt)
		}
		srv.Close()
	}
}

func TestQueryConnectionStateFailsOpen(t *testing.T) {
	// Instance unknown to the bridge.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[]`))
	}))
	status := testClient(srv.URL).QueryConnectionState("business_1")
	assert.Equal(t, StateDisconnected, status.State)
	srv.Close()

	// Garbage payload.
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`not json`))
	}))
	status = testClient(srv.URL).QueryConnectionState("business_1")
	assert.Equal(t, StateDisconnected, status.State)
	srv.Close()

	// Bridge entirely unreachable: the probe still reports disconnected
	// instead of failing.
	status = testClient(srv.URL).QueryConnectionState("business_1")
	assert.Equal(t, StateDisconnected, status.State)
}

func TestSendTextSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/message/sendText/business_1", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "+905551234567", body["number"])
		assert.Equal(t, "Merhaba Ahmet", body["text"])

		json.NewEncoder(w).Encode(map[string]interface{}{
			"key":    map[string]string{"id": "MSG1"},
			"status": "PENDING",
		})
	}))
	defer srv.Close()

	ack, err := testClient(srv.URL).SendText("business_1", "+905551234567", "Merhaba Ahmet")
	require.NoError(t, err)
	assert.Equal(t, "MSG1", ack.MessageID)
	assert.Equal(t, "PENDING", ack.Status)
}

func TestSendTextFailurePreservesReason(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"number not on whatsapp"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).SendText("business_1", "+905551234567", "hi")

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, `{"error":"number not on whatsapp"}`, sendErr.Reason)
}

func TestSendTextEmptyErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).SendText("business_1", "+905551234567", "hi")

	var sendErr *SendError
	require.ErrorAs(t, err, &sendErr)
	assert.Equal(t, "HTTP 400", sendErr.Reason)
}

func TestTeardownSession(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.Write([]byte(`{"status":"SUCCESS"}`))
	}))
	defer srv.Close()

	require.NoError(t, testClient(srv.URL).TeardownSession("business_1"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/instance/delete/business_1", gotPath)
}

func TestTeardownSessionUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	err := testClient(srv.URL).TeardownSession("business_1")
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}
