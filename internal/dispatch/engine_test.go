package dispatch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"reviewflow/internal/gateway"
	"reviewflow/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu sync.Mutex

	connection *Connection
	settings   *Settings
	recipients []Recipient
	templates  map[string]string // id ("" = default row) -> body

	logs      []loggedRecord
	contacted []string
}

type loggedRecord struct {
	BusinessID string
	CustomerID string
	Status     string
	Reason     string
}

func (s *fakeStore) Connection(businessID string) (*Connection, error) {
	return s.connection, nil
}

func (s *fakeStore) Settings(businessID string) (*Settings, error) {
	return s.settings, nil
}

func (s *fakeStore) ResolveRecipients(businessID string, ids []string) ([]Recipient, error) {
	byID := make(map[string]Recipient)
	for _, r := range s.recipients {
		byID[r.ID] = r
	}
	var resolved []Recipient
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			resolved = append(resolved, r)
		}
	}
	return resolved, nil
}

func (s *fakeStore) TemplateBody(businessID, templateID string) (string, error) {
	return s.templates[templateID], nil
}

func (s *fakeStore) AppendLog(businessID, customerID, status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, loggedRecord{businessID, customerID, status, reason})
	return nil
}

func (s *fakeStore) MarkContacted(customerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacted = append(s.contacted, customerID)
	return nil
}

type sentMessage struct {
	Session string
	Number  string
	Text    string
}

type fakeGateway struct {
	mu    sync.Mutex
	sent  []sentMessage
	fail  func(number string) error
	delay time.Duration

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (g *fakeGateway) SendText(sessionID, number, text string) (*gateway.DeliveryAck, error) {
	current := g.inFlight.Add(1)
	for {
		max := g.maxInFlight.Load()
		if current <= max || g.maxInFlight.CompareAndSwap(max, current) {
			break
		}
	}
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	g.inFlight.Add(-1)

	if g.fail != nil {
		if err := g.fail(number); err != nil {
			return nil, err
		}
	}

	g.mu.Lock()
	g.sent = append(g.sent, sentMessage{sessionID, number, text})
	g.mu.Unlock()
	return &gateway.DeliveryAck{MessageID: "msg-" + number}, nil
}

// testEngine builds an engine with sleeps stubbed out, recording every
// requested sleep duration.
func testEngine(store *fakeStore, gw *fakeGateway) (*Engine, *[]time.Duration) {
	var mu sync.Mutex
	var sleeps []time.Duration

	e := NewEngine(gw, store)
	e.Sleep = func(ctx context.Context, d time.Duration) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		mu.Lock()
		sleeps = append(sleeps, d)
		mu.Unlock()
		return nil
	}
	e.Jitter = func() time.Duration { return 3 * time.Second }
	return e, &sleeps
}

func connectedStore(n int) *fakeStore {
	s := &fakeStore{
		connection: &Connection{InstanceName: "business_1", Status: models.ConnectionConnected},
		settings:   &Settings{ReviewURL: "https://g.page/r/abc"},
		templates:  map[string]string{},
	}
	for i := 0; i < n; i++ {
		s.recipients = append(s.recipients, Recipient{
			ID:    fmt.Sprintf("c%d", i),
			Name:  fmt.Sprintf("Customer %d", i),
			Phone: fmt.Sprintf("+90555000%04d", i),
		})
	}
	return s
}

func recipientIDs(s *fakeStore) []string {
	ids := make([]string, len(s.recipients))
	for i, r := range s.recipients {
		ids[i] = r.ID
	}
	return ids
}

func TestDispatchSingleSuccess(t *testing.T) {
	store := &fakeStore{
		connection: &Connection{InstanceName: "business_1", Status: models.ConnectionConnected},
		settings:   &Settings{ReviewURL: "https://g.page/r/abc"},
		templates:  map[string]string{"": "Merhaba {firstName}, {reviewUrl}"},
		recipients: []Recipient{{ID: "c1", Name: "Ahmet Yılmaz", Phone: "+905551234567"}},
	}
	gw := &fakeGateway{}
	e, _ := testEngine(store, gw)

	result, err := e.Dispatch(context.Background(), "b1", []string{"c1"}, "")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Sent)
	assert.Equal(t, 0, result.Failed)

	require.Len(t, gw.sent, 1)
	assert.Equal(t, "business_1", gw.sent[0].Session)
	assert.Equal(t, "+905551234567", gw.sent[0].Number)
	assert.Equal(t, "Merhaba Ahmet, https://g.page/r/abc", gw.sent[0].Text)

	require.Len(t, store.logs, 1)
	assert.Equal(t, models.MessageSent, store.logs[0].Status)
	assert.Equal(t, []string{"c1"}, store.contacted)
}

func TestDispatchSingleFailure(t *testing.T) {
	store := &fakeStore{
		connection: &Connection{InstanceName: "business_1", Status: models.ConnectionConnected},
		settings:   &Settings{ReviewURL: "https://g.page/r/abc"},
		templates:  map[string]string{},
		recipients: []Recipient{{ID: "c1", Name: "Ahmet Yılmaz", Phone: "+905551234567"}},
	}
	gw := &fakeGateway{
		fail: func(string) error { return &gateway.SendError{Reason: "HTTP 500: upstream error"} },
	}
	e, _ := testEngine(store, gw)

	result, err := e.Dispatch(context.Background(), "b1", []string{"c1"}, "")
	require.NoError(t, err)

	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 0, result.Sent)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, "HTTP 500: upstream error", result.Outcomes[0].Error)

	require.Len(t, store.logs, 1)
	assert.Equal(t, models.MessageFailed, store.logs[0].Status)
	assert.Equal(t, "HTTP 500: upstream error", store.logs[0].Reason)
	assert.Empty(t, store.contacted, "failed send must not touch last contact")
}

func TestDispatchCountConservation(t *testing.T) {
	store := connectedStore(9)
	// Every third number fails.
	var n atomic.Int32
	gw := &fakeGateway{
		fail: func(string) error {
			if n.Add(1)%3 == 0 {
				return &gateway.SendError{Reason: "number not on whatsapp"}
			}
			return nil
		},
	}
	e, _ := testEngine(store, gw)

	result, err := e.Dispatch(context.Background(), "b1", recipientIDs(store), "")
	require.NoError(t, err)

	assert.Equal(t, 9, result.Total)
	assert.Equal(t, 9, result.Sent+result.Failed)
	assert.Len(t, result.Outcomes, 9)
	assert.Len(t, store.logs, 9, "every dequeued recipient gets exactly one delivery record")
}

func TestDispatchConcurrencyBound(t *testing.T) {
	store := connectedStore(10)
	gw := &fakeGateway{delay: 5 * time.Millisecond}
	e, _ := testEngine(store, gw)

	_, err := e.Dispatch(context.Background(), "b1", recipientIDs(store), "")
	require.NoError(t, err)

	assert.LessOrEqual(t, gw.maxInFlight.Load(), int32(MaxConcurrency))
}

func TestDispatchBatchCooldown(t *testing.T) {
	store := connectedStore(12)
	gw := &fakeGateway{}
	e, sleeps := testEngine(store, gw)

	result, err := e.Dispatch(context.Background(), "b1", recipientIDs(store), "")
	require.NoError(t, err)
	assert.Equal(t, 12, result.Sent)

	var jitters, cooldowns int
	for _, d := range *sleeps {
		switch {
		case d == BatchDelay:
			cooldowns++
		case d >= MinDelay && d <= MaxDelay:
			jitters++
		default:
			t.Fatalf("unexpected sleep duration %v", d)
		}
	}
	assert.Equal(t, 12, jitters, "one jittered delay per recipient")
	assert.Equal(t, 2, cooldowns, "cooldown after the 5th and 10th dequeued recipient")
}

func TestDispatchNotConnected(t *testing.T) {
	for _, status := range []string{models.ConnectionDisconnected, models.ConnectionPending} {
		store := connectedStore(3)
		store.connection.Status = status
		gw := &fakeGateway{}
		e, _ := testEngine(store, gw)

		_, err := e.Dispatch(context.Background(), "b1", recipientIDs(store), "")
		assert.ErrorIs(t, err, ErrGatewayNotConnected, "status %s", status)
		assert.Empty(t, store.logs, "no delivery records before preconditions pass")
		assert.Empty(t, gw.sent, "no gateway calls before preconditions pass")
	}
}

func TestDispatchMissingConnection(t *testing.T) {
	store := connectedStore(1)
	store.connection = nil
	e, _ := testEngine(store, &fakeGateway{})

	_, err := e.Dispatch(context.Background(), "b1", recipientIDs(store), "")
	assert.ErrorIs(t, err, ErrGatewayNotConnected)
}

func TestDispatchNoReviewURL(t *testing.T) {
	store := connectedStore(2)
	store.settings = &Settings{ReviewURL: ""}
	e, _ := testEngine(store, &fakeGateway{})

	_, err := e.Dispatch(context.Background(), "b1", recipientIDs(store), "")
	assert.ErrorIs(t, err, ErrDestinationNotConfigured)
	assert.Empty(t, store.logs)
}

func TestDispatchNoRecipients(t *testing.T) {
	store := connectedStore(2)
	e, _ := testEngine(store, &fakeGateway{})

	// Unknown ids are dropped silently; an all-unknown list is an error.
	_, err := e.Dispatch(context.Background(), "b1", []string{"nope-1", "nope-2"}, "")
	assert.ErrorIs(t, err, ErrNoRecipients)
}

func TestDispatchDropsUnknownIDs(t *testing.T) {
	store := connectedStore(2)
	gw := &fakeGateway{}
	e, _ := testEngine(store, gw)

	result, err := e.Dispatch(context.Background(), "b1", []string{"c0", "unknown", "c1"}, "")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Len(t, gw.sent, 2)
}

func TestDispatchCancelledContext(t *testing.T) {
	store := connectedStore(4)
	gw := &fakeGateway{}
	e, _ := testEngine(store, gw)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := e.Dispatch(ctx, "b1", recipientIDs(store), "")
	require.NoError(t, err)

	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 4, result.Failed)
	assert.Empty(t, gw.sent, "cancelled jobs never reach the gateway")
	require.Len(t, store.logs, 4, "every dequeued recipient still gets a delivery record")
	for _, rec := range store.logs {
		assert.Equal(t, models.MessageFailed, rec.Status)
		assert.Equal(t, CancelledReason, rec.Reason)
	}
}

func TestDispatchTemplatePrecedence(t *testing.T) {
	store := connectedStore(1)
	store.settings.MessageTemplate = "settings override {reviewUrl}"
	store.templates = map[string]string{
		"":     "default row {reviewUrl}",
		"t-99": "explicit row {reviewUrl}",
	}
	gw := &fakeGateway{}
	e, _ := testEngine(store, gw)

	_, err := e.Dispatch(context.Background(), "b1", []string{"c0"}, "t-99")
	require.NoError(t, err)
	require.Len(t, gw.sent, 1)
	assert.Equal(t, "explicit row https://g.page/r/abc", gw.sent[0].Text)

	gw.sent = nil
	_, err = e.Dispatch(context.Background(), "b1", []string{"c0"}, "")
	require.NoError(t, err)
	assert.Equal(t, "default row https://g.page/r/abc", gw.sent[0].Text)

	delete(store.templates, "")
	gw.sent = nil
	_, err = e.Dispatch(context.Background(), "b1", []string{"c0"}, "")
	require.NoError(t, err)
	assert.Equal(t, "settings override https://g.page/r/abc", gw.sent[0].Text)

	store.settings.MessageTemplate = ""
	gw.sent = nil
	_, err = e.Dispatch(context.Background(), "b1", []string{"c0"}, "")
	require.NoError(t, err)
	assert.Contains(t, gw.sent[0].Text, "https://g.page/r/abc")
}

func TestDispatchOutcomeHook(t *testing.T) {
	store := connectedStore(3)
	gw := &fakeGateway{}
	e, _ := testEngine(store, gw)

	var mu sync.Mutex
	var seen []Outcome
	e.OnOutcome = func(businessID string, out Outcome) {
		mu.Lock()
		seen = append(seen, out)
		mu.Unlock()
	}

	_, err := e.Dispatch(context.Background(), "b1", recipientIDs(store), "")
	require.NoError(t, err)
	assert.Len(t, seen, 3)
}

func TestRandomDelayBounds(t *testing.T) {
	for i := 0; i < 200; i++ {
		d := randomDelay()
		assert.GreaterOrEqual(t, d, MinDelay)
		assert.LessOrEqual(t, d, MaxDelay)
	}
}
