package dispatch

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"reviewflow/internal/gateway"
	"reviewflow/internal/models"
)

// Rate limiting configuration. The upstream network suspends accounts that
// look like bots, so the cap and delays are correctness requirements, not
// tuning knobs.
const (
	MaxConcurrency = 2                // parallel sends, hard ceiling
	MinDelay       = 2 * time.Second  // lower bound of the per-send jitter
	MaxDelay       = 5 * time.Second  // upper bound of the per-send jitter
	BatchDelay     = 10 * time.Second // extra pause every BatchSize-th dequeue
	BatchSize      = 5
)

// CancelledReason is recorded for recipients dequeued after the context was
// cancelled. Every dequeued recipient gets exactly one delivery record.
const CancelledReason = "cancelled"

// Invocation-level precondition errors. None of them leave delivery records.
var (
	ErrGatewayNotConnected      = errors.New("whatsapp not connected")
	ErrDestinationNotConfigured = errors.New("review url not configured")
	ErrNoRecipients             = errors.New("no recipients found")
)

// Outcome is the per-recipient result of one dispatch invocation.
type Outcome struct {
	CustomerID string `json:"customerId"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// Result is the whole-invocation summary. Sent+Failed == Total == len(Outcomes).
type Result struct {
	Total    int       `json:"total"`
	Sent     int       `json:"sent"`
	Failed   int       `json:"failed"`
	Outcomes []Outcome `json:"results"`
}

// Engine drives the throttled send loop. Sleep and Jitter are injectable so
// tests can run without wall-clock waits.
type Engine struct {
	Gateway Gateway
	Store   Store

	// OnOutcome, if set, is called as each recipient finishes. Used for
	// realtime progress broadcasting.
	OnOutcome func(businessID string, out Outcome)

	Sleep  func(ctx context.Context, d time.Duration) error
	Jitter func() time.Duration
}

func NewEngine(gw Gateway, store Store) *Engine {
	return &Engine{
		Gateway: gw,
		Store:   store,
		Sleep:   sleepContext,
		Jitter:  randomDelay,
	}
}

type job struct {
	index     int // 1-based dequeue index, assigned at enqueue
	recipient Recipient
}

// Dispatch sends the configured review-request message to each resolved
// recipient under the rate-limiting policy. Individual send failures never
// abort the batch; they are accumulated into the result. Only precondition
// failures return an error, and those write no delivery records.
func (e *Engine) Dispatch(ctx context.Context, businessID string, recipientIDs []string, templateID string) (*Result, error) {
	conn, err := e.Store.Connection(businessID)
	if err != nil {
		return nil, err
	}
	if conn == nil || conn.Status != models.ConnectionConnected {
		return nil, ErrGatewayNotConnected
	}

	settings, err := e.Store.Settings(businessID)
	if err != nil {
		return nil, err
	}
	if settings == nil || settings.ReviewURL == "" {
		return nil, ErrDestinationNotConfigured
	}

	recipients, err := e.Store.ResolveRecipients(businessID, recipientIDs)
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, ErrNoRecipients
	}

	template, err := e.resolveTemplate(businessID, templateID, settings)
	if err != nil {
		return nil, err
	}

	// Channel-fed worker pool: the channel serializes dequeue order and the
	// fixed worker count enforces the concurrency ceiling. Indexes are
	// assigned at enqueue, so the batch cooldown triggers on global
	// throughput, not per worker.
	jobs := make(chan job)
	result := &Result{}
	var mu sync.Mutex
	var wg sync.WaitGroup

	workers := MaxConcurrency
	if len(recipients) < workers {
		workers = len(recipients)
	}

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				out := e.process(ctx, businessID, conn.InstanceName, template, settings.ReviewURL, j)

				mu.Lock()
				result.Total++
				if out.Success {
					result.Sent++
				} else {
					result.Failed++
				}
				result.Outcomes = append(result.Outcomes, out)
				mu.Unlock()

				if e.OnOutcome != nil {
					e.OnOutcome(businessID, out)
				}
			}
		}()
	}

	for i, r := range recipients {
		jobs <- job{index: i + 1, recipient: r}
	}
	close(jobs)
	wg.Wait()

	if result.Failed > 0 {
		log.Printf("Dispatch for business %s completed: %d sent, %d failed", businessID, result.Sent, result.Failed)
	}

	return result, nil
}

// process handles one dequeued recipient: jitter, optional batch cooldown,
// render, send, record. It always appends exactly one delivery record.
func (e *Engine) process(ctx context.Context, businessID, instanceName, template, reviewURL string, j job) Outcome {
	if err := e.Sleep(ctx, e.Jitter()); err != nil {
		return e.fail(businessID, j.recipient.ID, CancelledReason)
	}

	if j.index%BatchSize == 0 {
		if err := e.Sleep(ctx, BatchDelay); err != nil {
			return e.fail(businessID, j.recipient.ID, CancelledReason)
		}
	}

	message := Render(template, j.recipient.Name, reviewURL)

	if _, err := e.Gateway.SendText(instanceName, j.recipient.Phone, message); err != nil {
		reason := err.Error()
		var sendErr *gateway.SendError
		if errors.As(err, &sendErr) {
			reason = sendErr.Reason
		}
		log.Printf("Error sending message to %s: %v", j.recipient.Name, reason)
		return e.fail(businessID, j.recipient.ID, reason)
	}

	if err := e.Store.AppendLog(businessID, j.recipient.ID, models.MessageSent, ""); err != nil {
		log.Printf("Error writing message log for %s: %v", j.recipient.ID, err)
	}
	if err := e.Store.MarkContacted(j.recipient.ID); err != nil {
		log.Printf("Error updating last contact for %s: %v", j.recipient.ID, err)
	}

	return Outcome{CustomerID: j.recipient.ID, Success: true}
}

func (e *Engine) fail(businessID, customerID, reason string) Outcome {
	if err := e.Store.AppendLog(businessID, customerID, models.MessageFailed, reason); err != nil {
		log.Printf("Error writing message log for %s: %v", customerID, err)
	}
	return Outcome{CustomerID: customerID, Success: false, Error: reason}
}

// resolveTemplate picks the message body: explicit template id, then the
// business's default template row, then the settings override, then the
// built-in default.
func (e *Engine) resolveTemplate(businessID, templateID string, settings *Settings) (string, error) {
	if templateID != "" {
		body, err := e.Store.TemplateBody(businessID, templateID)
		if err != nil {
			return "", err
		}
		if body != "" {
			return body, nil
		}
	}

	body, err := e.Store.TemplateBody(businessID, "")
	if err != nil {
		return "", err
	}
	if body != "" {
		return body, nil
	}

	if settings.MessageTemplate != "" {
		return settings.MessageTemplate, nil
	}
	return DefaultTemplate, nil
}

// randomDelay draws uniformly from [MinDelay, MaxDelay]. Randomized spacing
// keeps inter-message timing from looking mechanical.
func randomDelay() time.Duration {
	return MinDelay + time.Duration(rand.Int63n(int64(MaxDelay-MinDelay)+1))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
