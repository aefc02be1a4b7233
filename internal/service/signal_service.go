package service

import (
	"context"
	"log/slog"
	"sync"

	"spread_go/internal/event"
)

// DefaultHistory is how many delivered batches are kept in memory.
const DefaultHistory = 100

// Sink receives every delivered signal batch.
type Sink interface {
	Name() string
	Handle(ctx context.Context, b event.Batch) error
}

// SignalService is the consumer side of the signal channel.
// Batches are processed one at a time, in delivery order.
type SignalService struct {
	signals *event.Channel
	sinks   []Sink
	history int
	logger  *slog.Logger

	mu      sync.RWMutex
	recent  []event.Batch
	handled uint64
}

// NewSignalService creates a consumer over signals. A LogSink is always installed first.
func NewSignalService(signals *event.Channel, sinks ...Sink) *SignalService {
	logger := slog.Default().With("module", "consumer")
	all := make([]Sink, 0, len(sinks)+1)
	all = append(all, NewLogSink(logger))
	all = append(all, sinks...)
	return &SignalService{
		signals: signals,
		sinks:   all,
		history: DefaultHistory,
		logger:  logger,
	}
}

// Run blocks receiving batches until ctx is done.
func (s *SignalService) Run(ctx context.Context) error {
	for {
		b, err := s.signals.Receive(ctx)
		if err != nil {
			return err
		}
		s.Process(ctx, b)
	}
}

// Process hands b to every sink. Sink failures are logged and never stop the consumer.
func (s *SignalService) Process(ctx context.Context, b event.Batch) {
	for _, sink := range s.sinks {
		if err := sink.Handle(ctx, b); err != nil {
			s.logger.Warn("Sink failed",
				slog.String("sink", sink.Name()),
				slog.String("batch", b.ID),
				slog.Any("error", err))
		}
	}

	s.mu.Lock()
	s.recent = append(s.recent, b)
	if over := len(s.recent) - s.history; over > 0 {
		s.recent = append(s.recent[:0:0], s.recent[over:]...)
	}
	s.handled++
	s.mu.Unlock()
}

// Recent returns up to limit batches, newest first. A non-positive limit returns all.
func (s *SignalService) Recent(limit int) []event.Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := len(s.recent)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]event.Batch, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.recent[i])
	}
	return out
}

// Handled returns how many batches were processed.
func (s *SignalService) Handled() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handled
}

// LogSink writes each batch to the structured log.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a log sink.
func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (l *LogSink) Name() string { return "log" }

func (l *LogSink) Handle(_ context.Context, b event.Batch) error {
	for i, rec := range b.Records {
		l.logger.Info("Spread signal",
			slog.String("batch", b.ID),
			slog.Uint64("cycle", b.Cycle),
			slog.Int("rank", i),
			slog.String("instrument", rec.Instrument),
			slog.String("venue_a", rec.VenueA),
			slog.String("venue_b", rec.VenueB),
			slog.Float64("price_a", rec.PriceA),
			slog.Float64("price_b", rec.PriceB),
			slog.Float64("spread_percent", rec.SpreadPercent))
	}
	return nil
}
