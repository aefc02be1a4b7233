package venue

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"spread_go/internal/domain"
	"spread_go/internal/infra"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

// wsStream is one websocket subscription. The read loop keeps the latest quote
// per instrument until Next takes them; the first read failure ends the stream for good.
type wsStream struct {
	venue        string
	codec        codec
	symbols      map[string]string // venue-native -> unified
	conn         *websocket.Conn
	writeMu      sync.Mutex
	pingInterval time.Duration
	readTimeout  time.Duration
	logger       *slog.Logger

	pendingMu sync.Mutex
	pending   map[string]domain.Quote // bounded by the subscribed instruments
	notify    chan struct{}

	done     chan struct{}
	failOnce sync.Once
	errMu    sync.Mutex
	err      error

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func openStream(ctx context.Context, p *Provider, instruments []domain.Instrument) (*wsStream, error) {
	symbols := make(map[string]string, len(instruments))
	for _, inst := range instruments {
		symbols[inst.VenueSymbol] = inst.Symbol
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := make(http.Header)
	header.Add("User-Agent", infra.DefaultUserAgent)

	conn, _, err := dialer.DialContext(ctx, p.codec.streamURL(p.wsURL, instruments), header)
	if err != nil {
		return nil, domain.NewFeedError(p.venue, "subscribe", fmt.Errorf("%w: %w", domain.ErrConnectionFailed, err))
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &wsStream{
		venue:        p.venue,
		codec:        p.codec,
		symbols:      symbols,
		conn:         conn,
		pending:      make(map[string]domain.Quote, len(symbols)),
		notify:       make(chan struct{}, 1),
		pingInterval: p.pingInterval,
		readTimeout:  p.readTimeout,
		logger:       p.logger,
		done:         make(chan struct{}),
		cancel:       cancel,
	}

	msgs, err := p.codec.subscribeMessages(instruments)
	if err == nil {
		for _, msg := range msgs {
			if err = s.threadSafeWrite(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}
	if err != nil {
		s.Close()
		return nil, domain.NewFeedError(p.venue, "subscribe", err)
	}

	s.wg.Add(2)
	go s.readLoop(ctx)
	go s.pingLoop(ctx)

	s.logger.Info("WebSocket connected", slog.Int("symbols", len(symbols)))
	return s, nil
}

// Next waits until at least one quote is pending, then takes every pending quote.
func (s *wsStream) Next(ctx context.Context) ([]domain.Quote, error) {
	for {
		select {
		case <-s.done:
			return nil, s.failure()
		default:
		}

		if quotes := s.take(); len(quotes) > 0 {
			return quotes, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-s.done:
			return nil, s.failure()
		case <-s.notify:
		}
	}
}

func (s *wsStream) take() []domain.Quote {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	quotes := make([]domain.Quote, 0, len(s.pending))
	for _, q := range s.pending {
		quotes = append(quotes, q)
	}
	s.pending = make(map[string]domain.Quote, len(s.symbols))
	return quotes
}

// Close ends the stream; Next reports ErrStreamClosed afterwards.
func (s *wsStream) Close() error {
	s.fail(domain.ErrStreamClosed)
	s.cancel()
	err := s.conn.Close()
	s.wg.Wait()
	return err
}

func (s *wsStream) fail(err error) {
	s.failOnce.Do(func() {
		s.errMu.Lock()
		s.err = err
		s.errMu.Unlock()
		close(s.done)
	})
}

func (s *wsStream) failure() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *wsStream) threadSafeWrite(messageType int, data []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteMessage(messageType, data)
}

func (s *wsStream) pingLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			var err error
			if msg := s.codec.pingMessage(); msg != nil {
				err = s.threadSafeWrite(websocket.TextMessage, msg)
			} else {
				s.writeMu.Lock()
				err = s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
				s.writeMu.Unlock()
			}
			if err != nil {
				s.logger.Warn("Ping failed", slog.Any("error", err))
			}
		}
	}
}

func (s *wsStream) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Read loop panic recovered", slog.Any("panic", r))
			s.fail(domain.NewFeedError(s.venue, "read", fmt.Errorf("panic: %v", r)))
		}
	}()

	for {
		if ctx.Err() != nil {
			return
		}

		s.conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("Read error", slog.Any("error", err))
			}
			s.fail(domain.NewFeedError(s.venue, "read", err))
			return
		}

		if s.codec.isPong(message) {
			continue
		}

		ticks, err := s.codec.decode(message)
		if err != nil {
			s.fail(domain.AsFeedError(s.venue, "decode", err))
			return
		}
		if quotes := s.toQuotes(ticks); len(quotes) > 0 {
			s.push(quotes)
		}
	}
}

func (s *wsStream) toQuotes(ticks []tick) []domain.Quote {
	if len(ticks) == 0 {
		return nil
	}
	now := time.Now()
	quotes := make([]domain.Quote, 0, len(ticks))
	for _, t := range ticks {
		symbol, ok := s.symbols[t.VenueSymbol]
		if !ok || t.Price == "" {
			continue
		}
		price, err := decimal.NewFromString(t.Price)
		if err != nil {
			s.logger.Debug("Unparsable price", slog.String("symbol", t.VenueSymbol), slog.String("price", t.Price))
			continue
		}
		quotes = append(quotes, domain.Quote{
			Instrument: symbol,
			Venue:      s.venue,
			Price:      price.InexactFloat64(),
			ObservedAt: now,
		})
	}
	return quotes
}

// push never blocks the read loop: a newer quote replaces a pending one of the same instrument.
func (s *wsStream) push(quotes []domain.Quote) {
	s.pendingMu.Lock()
	for _, q := range quotes {
		s.pending[q.Instrument] = q
	}
	s.pendingMu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}
