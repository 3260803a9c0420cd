package delivery

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"basegraph.co/distributor/common/logger"
	"basegraph.co/distributor/internal/model"
	"basegraph.co/distributor/internal/store"
)

const noHubEventIDMessage = "NO_CEH_EVENT_ID"

// PayloadSource turns an event into the Hub request body.
type PayloadSource interface {
	Build(ctx context.Context, event model.SignalEvent) Payload
}

// Settings controls per-attempt timeout and retry behaviour.
type Settings struct {
	RequestTimeout  time.Duration
	RetryAttempts   int // total attempts, including the first
	RetryBackoff    time.Duration
	RetryMaxBackoff time.Duration
	ConsumerID      int64
	TargetURL       string // for logs only
}

// Client delivers single events to the Hub and records exactly one audit
// record per Send, whatever the outcome.
type Client struct {
	transport Transport
	breaker   *gobreaker.TwoStepCircuitBreaker
	payloads  PayloadSource
	audits    store.AuditStore
	mappings  store.InitialMappingStore
	settings  Settings
	now       func() time.Time
	sendSeq   atomic.Int64
}

func NewClient(
	transport Transport,
	breaker *gobreaker.TwoStepCircuitBreaker,
	payloads PayloadSource,
	audits store.AuditStore,
	mappings store.InitialMappingStore,
	settings Settings,
) *Client {
	if settings.RetryAttempts <= 0 {
		settings.RetryAttempts = 1
	}
	if settings.RequestTimeout <= 0 {
		settings.RequestTimeout = 15 * time.Second
	}
	return &Client{
		transport: transport,
		breaker:   breaker,
		payloads:  payloads,
		audits:    audits,
		mappings:  mappings,
		settings:  settings,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Send delivers one event and returns its outcome. It never returns an error:
// failures are classified and written to the audit log instead.
func (c *Client) Send(ctx context.Context, event model.SignalEvent) Outcome {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		UabsEventID: logger.Ptr(event.UabsEventID),
		SignalID:    event.SignalID,
		Component:   "distributor.delivery.client",
	})

	sc := logger.StartSpan(ctx, "delivery.send", trace.WithSpanKind(trace.SpanKindClient))
	defer sc.End()
	ctx = sc.Context()
	sc.Span().SetAttributes(attribute.Int64("uabs_event_id", event.UabsEventID))

	seq := c.sendSeq.Add(1)
	if seq%1000 == 0 {
		slog.InfoContext(ctx, "sending event", "seq", seq, "target", c.settings.TargetURL)
	} else {
		slog.DebugContext(ctx, "sending event", "seq", seq, "target", c.settings.TargetURL)
	}

	payload := c.payloads.Build(ctx, event)
	resp, err := c.post(ctx, payload)
	if err != nil {
		sc.RecordError(err)
		return c.handleFailure(ctx, event, err)
	}
	return c.handleResponse(ctx, event, resp)
}

// post runs the attempt loop: breaker gate, per-attempt timeout, retry with
// exponential backoff for transient failures only.
func (c *Client) post(ctx context.Context, payload Payload) (*HubResponse, error) {
	attempt := 0
	op := func() (*HubResponse, error) {
		attempt++
		done, err := c.breaker.Allow()
		if err != nil {
			return nil, backoff.Permanent(err)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, c.settings.RequestTimeout)
		resp, err := c.transport.Post(attemptCtx, payload)
		cancel()

		if err == nil {
			done(true)
			return resp, nil
		}

		outcome := Classify(err).Outcome
		// Permanent rejections and our own cancellation say nothing about Hub health.
		done(outcome == OutcomeFailPermanent || outcome == OutcomeInterrupted)

		if !outcome.Retryable() {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	notify := func(err error, wait time.Duration) {
		slog.WarnContext(ctx, "retrying hub post",
			"attempt", attempt+1,
			"wait", wait,
			"error", err,
			"breaker_state", c.breaker.State().String())
	}

	return backoff.RetryNotifyWithData(op, c.backoff(ctx), notify)
}

func (c *Client) backoff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if c.settings.RetryBackoff > 0 {
		eb.InitialInterval = c.settings.RetryBackoff
	}
	if c.settings.RetryMaxBackoff > 0 {
		eb.MaxInterval = c.settings.RetryMaxBackoff
	}
	eb.MaxElapsedTime = 0
	eb.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.settings.RetryAttempts-1)), ctx)
}

func (c *Client) handleResponse(ctx context.Context, event model.SignalEvent, resp *HubResponse) Outcome {
	code := strconv.Itoa(resp.StatusCode)

	if resp.HubEventID == "" {
		c.record(ctx, event, string(OutcomeFail), code, noHubEventIDMessage)
		slog.WarnContext(ctx, "hub accepted event without ceh_event_id", "status_code", resp.StatusCode)
		return OutcomeFail
	}

	c.record(ctx, event, string(OutcomePass), code, "ceh_event_id="+resp.HubEventID)
	c.saveInitialMapping(ctx, event, resp.HubEventID)

	slog.InfoContext(ctx, "event delivered", "ceh_event_id", resp.HubEventID)
	return OutcomePass
}

func (c *Client) handleFailure(ctx context.Context, event model.SignalEvent, err error) Outcome {
	cls := Classify(err)

	c.record(ctx, event, string(cls.Outcome), cls.ResponseCode, cls.Reason+": "+err.Error())

	slog.ErrorContext(ctx, "event delivery failed",
		"outcome", cls.Outcome,
		"reason", cls.Reason,
		"response_code", cls.ResponseCode,
		"error", err)
	return cls.Outcome
}

func (c *Client) record(ctx context.Context, event model.SignalEvent, status, code, message string) {
	rec := model.NewAuditRecord(event, c.settings.ConsumerID, status, code, message, c.now())
	// The caller's context may already be cancelled; the audit row still has to land.
	if err := c.audits.Append(context.WithoutCancel(ctx), &rec); err != nil {
		slog.ErrorContext(ctx, "LOG001 audit record failed to persist", "status", status, "error", err)
	}
}

// saveInitialMapping stores the first Hub id of a signal. The store performs an
// insert-if-absent, so concurrent first deliveries keep a single mapping.
func (c *Client) saveInitialMapping(ctx context.Context, event model.SignalEvent, hubEventID string) {
	if event.SignalID == nil || !strings.EqualFold(event.EventStatus, model.EventStatusOverlimit) {
		return
	}
	created, err := c.mappings.SaveIfAbsent(context.WithoutCancel(ctx), *event.SignalID, hubEventID)
	if err != nil {
		slog.ErrorContext(ctx, "LOG002 initial mapping failed to persist", "error", err)
		return
	}
	if !created {
		slog.DebugContext(ctx, "initial mapping already present")
	}
}

// BreakerOpen reports whether the shared breaker currently rejects calls.
func (c *Client) BreakerOpen() bool {
	return c.breaker.State() == gobreaker.StateOpen
}
