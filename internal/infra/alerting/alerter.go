package alerting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"spread_go/internal/domain"
	"spread_go/internal/event"
	"spread_go/internal/infra"
)

// Alerter forwards signal batches to chat webhooks. An instrument/pair that
// alerted within the cooldown is left out of later messages.
type Alerter struct {
	notifiers []Notifier
	cooldown  time.Duration
	now       func() time.Time

	mu        sync.Mutex
	lastAlert map[string]time.Time
	logger    *slog.Logger
}

// NewAlerter builds an alerter from cfg; it returns nil when no webhook is configured.
func NewAlerter(cfg infra.AlertingConfig) *Alerter {
	var notifiers []Notifier
	if cfg.SlackWebhookURL != "" {
		notifiers = append(notifiers, NewSlackClient(cfg.SlackWebhookURL))
	}
	if cfg.DiscordWebhookURL != "" {
		notifiers = append(notifiers, NewDiscordClient(cfg.DiscordWebhookURL))
	}
	if len(notifiers) == 0 {
		return nil
	}
	return New(time.Duration(cfg.CooldownSec)*time.Second, notifiers...)
}

// New creates an alerter over explicit notifiers.
func New(cooldown time.Duration, notifiers ...Notifier) *Alerter {
	return &Alerter{
		notifiers: notifiers,
		cooldown:  cooldown,
		now:       time.Now,
		lastAlert: make(map[string]time.Time),
		logger:    slog.Default().With("module", "alerting"),
	}
}

// Name identifies the sink.
func (a *Alerter) Name() string { return "alerting" }

// Handle sends one message per batch listing the records outside their cooldown.
func (a *Alerter) Handle(ctx context.Context, b event.Batch) error {
	fresh := a.admit(b.Records)
	if len(fresh) == 0 {
		return nil
	}
	message := FormatMessage(b.Cycle, fresh)

	var errs []error
	for _, n := range a.notifiers {
		if err := n.Send(ctx, message); err != nil {
			a.logger.Warn("Webhook delivery failed", slog.String("notifier", n.Name()), slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *Alerter) admit(records []domain.SpreadRecord) []domain.SpreadRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	var fresh []domain.SpreadRecord
	for _, rec := range records {
		key := rec.Instrument + "|" + rec.VenueA + "|" + rec.VenueB
		if last, ok := a.lastAlert[key]; ok && now.Sub(last) < a.cooldown {
			continue
		}
		a.lastAlert[key] = now
		fresh = append(fresh, rec)
	}
	return fresh
}

// FormatMessage renders records as a short chat message.
func FormatMessage(cycle uint64, records []domain.SpreadRecord) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🚨 **Spread signal** (cycle %d)\n", cycle)
	for _, rec := range records {
		fmt.Fprintf(&sb, "%s %s/%s: %.6g vs %.6g (%+.4f%%)\n",
			rec.Instrument, rec.VenueA, rec.VenueB, rec.PriceA, rec.PriceB, rec.SpreadPercent)
	}
	return strings.TrimRight(sb.String(), "\n")
}
