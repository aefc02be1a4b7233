package venue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"spread_go/internal/domain"
	"spread_go/internal/infra"
)

const (
	defaultPingInterval = 25 * time.Second
	defaultReadTimeout  = 35 * time.Second
	defaultRateLimit    = 10 // requests per second
)

// tick is one decoded price update in venue-native form.
type tick struct {
	VenueSymbol string
	Price       string
}

// codec is the venue-specific half of a Provider: REST catalog shape and websocket protocol.
type codec interface {
	defaultRestURL() string
	defaultWSURL() string
	fetchCatalog(ctx context.Context, rest *restClient) ([]domain.Instrument, error)
	// streamURL may fold the subscription into the URL (binance); most venues return wsURL unchanged.
	streamURL(wsURL string, instruments []domain.Instrument) string
	subscribeMessages(instruments []domain.Instrument) ([][]byte, error)
	// decode returns nil ticks for acks and other control messages.
	decode(msg []byte) ([]tick, error)
	// pingMessage returns nil when the venue expects websocket control pings.
	pingMessage() []byte
	isPong(msg []byte) bool
}

// Provider implements domain.FeedProvider for a centralized exchange.
type Provider struct {
	venue        string
	codec        codec
	rest         *restClient
	wsURL        string
	pingInterval time.Duration
	readTimeout  time.Duration
	logger       *slog.Logger
}

func newProvider(cfg infra.VenueConfig, c codec) *Provider {
	restURL := cfg.RestURL
	if restURL == "" {
		restURL = c.defaultRestURL()
	}
	wsURL := cfg.WSURL
	if wsURL == "" {
		wsURL = c.defaultWSURL()
	}
	perSecond := cfg.RateLimitPerSecond
	if perSecond <= 0 {
		perSecond = defaultRateLimit
	}
	ping := time.Duration(cfg.PingIntervalSec) * time.Second
	if ping <= 0 {
		ping = defaultPingInterval
	}
	readTimeout := time.Duration(cfg.ReadTimeoutSec) * time.Second
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}

	return &Provider{
		venue:        cfg.Name,
		codec:        c,
		rest:         newRESTClient(cfg.Name, restURL, perSecond),
		wsURL:        wsURL,
		pingInterval: ping,
		readTimeout:  readTimeout,
		logger:       slog.Default().With("module", "venue", "venue", cfg.Name),
	}
}

// Venue returns the venue identifier.
func (p *Provider) Venue() string {
	return p.venue
}

// LoadCatalog fetches every instrument the venue lists.
func (p *Provider) LoadCatalog(ctx context.Context) ([]domain.Instrument, error) {
	instruments, err := p.codec.fetchCatalog(ctx, p.rest)
	if err != nil {
		return nil, domain.AsFeedError(p.venue, "catalog", err)
	}
	p.logger.Info("Catalog loaded", slog.Int("instruments", len(instruments)))
	return instruments, nil
}

// StreamQuotes dials the venue websocket and subscribes to instruments.
func (p *Provider) StreamQuotes(ctx context.Context, instruments []domain.Instrument) (domain.QuoteStream, error) {
	if len(instruments) == 0 {
		return nil, domain.NewFeedError(p.venue, "subscribe", fmt.Errorf("no instruments"))
	}
	stream, err := openStream(ctx, p, instruments)
	if err != nil {
		return nil, err
	}
	return stream, nil
}
