package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/nftmarket/internal/domain"
	"github.com/google/uuid"
)

const (
	// MarketChannel is the pub/sub channel carrying every marketplace event.
	MarketChannel = "ch:market"
	// MarketStream is the durable stream the same events are appended to.
	MarketStream = "stream:market"
)

// EventNotifier forwards selected events to operators.
type EventNotifier interface {
	NotifyEvent(ctx context.Context, ev domain.Event) error
}

// EventPublisher fans a marketplace event out to the signal bus, the audit
// log and the operator notifier. Delivery failures are logged and never
// returned: by the time an event is emitted the state change is committed.
type EventPublisher struct {
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier EventNotifier
	logger   *slog.Logger
}

// NewEventPublisher creates an EventPublisher. notifier may be nil.
func NewEventPublisher(bus domain.SignalBus, audit domain.AuditStore, notifier EventNotifier, logger *slog.Logger) *EventPublisher {
	return &EventPublisher{
		bus:      bus,
		audit:    audit,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "events")),
	}
}

// Emit stamps ev with an id and timestamp and delivers it.
func (p *EventPublisher) Emit(ctx context.Context, ev domain.Event) domain.Event {
	ev.ID = uuid.New().String()
	ev.OccurredAt = time.Now().UTC()

	payload, err := json.Marshal(ev)
	if err != nil {
		p.logger.ErrorContext(ctx, "events: marshal failed",
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
		return ev
	}

	if err := p.bus.Publish(ctx, MarketChannel, payload); err != nil {
		p.logger.WarnContext(ctx, "events: publish failed",
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}
	if err := p.bus.StreamAppend(ctx, MarketStream, payload); err != nil {
		p.logger.WarnContext(ctx, "events: stream append failed",
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}
	if err := p.audit.Log(ctx, string(ev.Type), auditDetail(ev)); err != nil {
		p.logger.WarnContext(ctx, "events: audit log failed",
			slog.String("type", string(ev.Type)),
			slog.String("error", err.Error()),
		)
	}
	if p.notifier != nil {
		if err := p.notifier.NotifyEvent(ctx, ev); err != nil {
			p.logger.WarnContext(ctx, "events: notify failed",
				slog.String("type", string(ev.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
	return ev
}

func auditDetail(ev domain.Event) map[string]any {
	d := map[string]any{"event_id": ev.ID}
	if ev.CollectionID != nil {
		d["collection_id"] = *ev.CollectionID
	}
	if ev.Name != "" {
		d["name"] = ev.Name
	}
	if ev.ListingID != nil {
		d["listing_id"] = *ev.ListingID
	}
	if ev.TokenID != nil {
		d["token_id"] = *ev.TokenID
	}
	if ev.URI != "" {
		d["uri"] = ev.URI
	}
	if ev.OfferID != nil {
		d["offer_id"] = *ev.OfferID
	}
	if ev.Buyer != nil {
		d["buyer"] = ev.Buyer.Hex()
	}
	if ev.Price != nil {
		d["price"] = ev.Price.String()
	}
	return d
}
