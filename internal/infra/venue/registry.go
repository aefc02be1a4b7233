package venue

import (
	"fmt"
	"sort"
	"strings"

	"spread_go/internal/domain"
	"spread_go/internal/infra"
)

// Builder constructs the feed provider for one configured venue.
type Builder func(cfg infra.VenueConfig) (domain.FeedProvider, error)

var registry = map[string]Builder{}

func init() {
	Register("binance", codecBuilder(binanceCodec{}))
	Register("okx", codecBuilder(okxCodec{}))
	Register("bybit", codecBuilder(bybitCodec{}))
	Register("bitget", codecBuilder(bitgetCodec{}))
	Register("stub", func(cfg infra.VenueConfig) (domain.FeedProvider, error) {
		return NewStubProvider(cfg), nil
	})
}

func codecBuilder(c codec) Builder {
	return func(cfg infra.VenueConfig) (domain.FeedProvider, error) {
		return newProvider(cfg, c), nil
	}
}

// Register adds a builder under name. Stub venues may be registered under several
// names by prefix: any venue named "stub-..." uses the "stub" builder.
func Register(name string, builder Builder) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		panic("venue: empty venue name")
	}
	if builder == nil {
		panic(fmt.Sprintf("venue: nil builder for %s", name))
	}
	if _, exists := registry[key]; exists {
		panic(fmt.Sprintf("venue: duplicate registration for %s", key))
	}
	registry[key] = builder
}

// New builds the provider for cfg.Name.
func New(cfg infra.VenueConfig) (domain.FeedProvider, error) {
	key := strings.ToLower(strings.TrimSpace(cfg.Name))
	builder, ok := registry[key]
	if !ok && strings.HasPrefix(key, "stub-") {
		builder, ok = registry["stub"]
	}
	if !ok {
		return nil, &domain.ConfigError{
			Field: "venues",
			Err:   fmt.Errorf("%w: %q (known: %s)", domain.ErrUnknownVenue, cfg.Name, strings.Join(Names(), ", ")),
		}
	}
	cfg.Name = key
	return builder(cfg)
}

// Names returns the registered venue names, sorted.
func Names() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
