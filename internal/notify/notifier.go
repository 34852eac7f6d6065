// Package notify forwards marketplace events to operator chat channels.
// Each Sender is one channel; the Notifier filters events by type and fans
// the rendered message out to every sender.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/nftmarket/internal/domain"
)

// Sender delivers one rendered notification.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier dispatches events to its senders. Only events whose type is in
// the configured set are forwarded; an empty set forwards everything.
type Notifier struct {
	senders []Sender
	events  map[domain.EventType]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier over senders for the named event types.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[domain.EventType(e)] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// NotifyEvent renders ev and sends it when its type is allowed.
func (n *Notifier) NotifyEvent(ctx context.Context, ev domain.Event) error {
	if len(n.events) > 0 && !n.events[ev.Type] {
		n.logger.DebugContext(ctx, "notifier: event filtered out", slog.String("type", string(ev.Type)))
		return nil
	}
	title, message := Render(ev)
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends a free-form message to every sender regardless of filter.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch tries every sender; one failing sender does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "notifier: sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notifier: sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// Render turns an event into a chat title and body.
func Render(ev domain.Event) (title, message string) {
	var b strings.Builder
	field := func(name string, v *uint64) {
		if v != nil {
			fmt.Fprintf(&b, "%s: %d\n", name, *v)
		}
	}
	field("listing", ev.ListingID)
	field("offer", ev.OfferID)
	field("token", ev.TokenID)
	field("collection", ev.CollectionID)
	if ev.Buyer != nil {
		fmt.Fprintf(&b, "buyer: %s\n", ev.Buyer.Hex())
	}
	if ev.Price != nil {
		fmt.Fprintf(&b, "price: %s\n", ev.Price)
	}

	switch ev.Type {
	case domain.EventItemSold:
		title = "Item sold"
	case domain.EventOfferFilled:
		title = "Offer filled"
	case domain.EventOfferCreated:
		title = "New offer"
	case domain.EventOfferCancelled:
		title = "Offer cancelled"
	case domain.EventCollectionCreated:
		title = "Collection created: " + ev.Name
	default:
		title = string(ev.Type)
	}
	return title, strings.TrimSuffix(b.String(), "\n")
}
