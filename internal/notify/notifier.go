// Package notify turns bus events into operator alerts. Events are consumed
// off the event bus, filtered by type, and dispatched to every configured
// channel (Telegram, Discord). Naked leg exposure bypasses the filter: the
// bot holding an unhedged position is always page-worthy.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/quantfold/updownbot/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns the channel identifier, e.g. "telegram".
	Name() string
}

// Notifier subscribes to the event bus and fans events out to its senders.
type Notifier struct {
	bus     domain.EventBus
	senders []Sender
	events  map[domain.EventType]bool // allowed event types; empty allows all
	logger  *slog.Logger
}

// NewNotifier creates a Notifier delivering to the given senders. Only
// events whose type appears in events are forwarded; an empty list allows
// everything.
func NewNotifier(bus domain.EventBus, senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[domain.EventType]bool, len(events))
	for _, e := range events {
		allowed[domain.EventType(strings.TrimSpace(e))] = true
	}
	return &Notifier{
		bus:     bus,
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Run consumes events until the context is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	events, err := n.bus.SubscribeEvents(ctx)
	if err != nil {
		return err
	}

	n.logger.Info("notifier started", slog.Int("senders", len(n.senders)))
	defer n.logger.Info("notifier stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return domain.ErrWSDisconnect
			}
			n.handle(ctx, event)
		}
	}
}

func (n *Notifier) handle(ctx context.Context, event domain.Event) {
	// Naked leg exposure is never filtered.
	if event.Type != domain.EventNakedLegExposure &&
		len(n.events) > 0 && !n.events[event.Type] {
		n.logger.Debug("event filtered out", slog.String("event", string(event.Type)))
		return
	}

	title, message := render(event)
	if err := n.dispatch(ctx, title, message); err != nil {
		n.logger.Error("notification delivery failed",
			slog.String("event", string(event.Type)),
			slog.String("error", err.Error()))
	}
}

// dispatch sends to all senders; one failing channel does not block the
// others.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		n.logger.Debug("notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title))
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// render formats an event for chat channels.
func render(event domain.Event) (title, message string) {
	switch event.Type {
	case domain.EventOpportunityDetected:
		title = "Opportunity detected"
	case domain.EventTradeSubmitted:
		title = "Trade submitted"
	case domain.EventTradeFilled:
		title = "Trade filled"
	case domain.EventTradePartial:
		title = "Trade partially filled"
	case domain.EventTradeRejected:
		title = "Trade rejected"
	case domain.EventTradeSettled:
		title = "Trade settled"
	case domain.EventNakedLegExposure:
		title = "NAKED LEG EXPOSURE"
	default:
		title = string(event.Type)
	}
	if event.Severity == domain.SeverityCritical {
		title = "🚨 " + title
	}

	var b strings.Builder
	if event.TradeID != "" {
		fmt.Fprintf(&b, "trade: %s\n", event.TradeID)
	}
	keys := make([]string, 0, len(event.Fields))
	for k := range event.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, event.Fields[k])
	}
	fmt.Fprintf(&b, "at: %s", event.At.Format("15:04:05 MST"))
	return title, b.String()
}
