package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"spread_go/internal/domain"
)

const (
	bybitRestURL = "https://api.bybit.com"
	bybitWSURL   = "wss://stream.bybit.com/v5/public/linear"

	// Bybit accepts at most 10 args per subscribe request
	bybitSubscribeChunk = 10
	bybitMaxPages       = 20
)

type bybitCodec struct{}

type bybitInstrumentsResponse struct {
	RetCode int    `json:"retCode"`
	RetMsg  string `json:"retMsg"`
	Result  struct {
		List []struct {
			Symbol       string `json:"symbol"`
			ContractType string `json:"contractType"` // LinearPerpetual, LinearFutures, InversePerpetual
			Status       string `json:"status"`       // Trading, ...
			BaseCoin     string `json:"baseCoin"`
			QuoteCoin    string `json:"quoteCoin"`
			SettleCoin   string `json:"settleCoin"`
		} `json:"list"`
		NextPageCursor string `json:"nextPageCursor"`
	} `json:"result"`
}

type bybitMessage struct {
	Op      string `json:"op"`
	Success *bool  `json:"success"`
	RetMsg  string `json:"ret_msg"`
	Topic   string `json:"topic"`
	Data    *struct {
		Symbol    string `json:"symbol"`
		LastPrice string `json:"lastPrice"` // omitted from deltas when unchanged
	} `json:"data"`
}

func (bybitCodec) defaultRestURL() string { return bybitRestURL }
func (bybitCodec) defaultWSURL() string   { return bybitWSURL }

func (bybitCodec) fetchCatalog(ctx context.Context, rest *restClient) ([]domain.Instrument, error) {
	var instruments []domain.Instrument
	cursor := ""
	for page := 0; page < bybitMaxPages; page++ {
		q := url.Values{"category": {"linear"}, "limit": {"1000"}}
		if cursor != "" {
			q.Set("cursor", cursor)
		}
		var resp bybitInstrumentsResponse
		if err := rest.getJSON(ctx, "/v5/market/instruments-info", q, &resp); err != nil {
			return nil, err
		}
		if resp.RetCode != 0 {
			return nil, fmt.Errorf("bybit error %d: %s", resp.RetCode, resp.RetMsg)
		}

		for _, s := range resp.Result.List {
			if s.Status != "Trading" {
				continue
			}
			instruments = append(instruments, domain.Instrument{
				Symbol:      domain.UnifiedSymbol(s.BaseCoin, s.QuoteCoin, s.SettleCoin),
				VenueSymbol: s.Symbol,
				Base:        s.BaseCoin,
				Quote:       s.QuoteCoin,
				Settle:      s.SettleCoin,
				Swap:        strings.HasSuffix(s.ContractType, "Perpetual"),
				Linear:      strings.HasPrefix(s.ContractType, "Linear"),
			})
		}

		cursor = resp.Result.NextPageCursor
		if cursor == "" {
			break
		}
	}
	return instruments, nil
}

func (bybitCodec) streamURL(wsURL string, _ []domain.Instrument) string { return wsURL }

func (bybitCodec) subscribeMessages(instruments []domain.Instrument) ([][]byte, error) {
	var msgs [][]byte
	for start := 0; start < len(instruments); start += bybitSubscribeChunk {
		end := min(start+bybitSubscribeChunk, len(instruments))
		args := make([]string, 0, end-start)
		for _, inst := range instruments[start:end] {
			args = append(args, "tickers."+inst.VenueSymbol)
		}
		b, err := json.Marshal(map[string]any{"op": "subscribe", "args": args})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, b)
	}
	return msgs, nil
}

func (bybitCodec) decode(msg []byte) ([]tick, error) {
	var m bybitMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, err
	}
	if m.Success != nil {
		if !*m.Success {
			return nil, fmt.Errorf("bybit %s failed: %s", m.Op, m.RetMsg)
		}
		return nil, nil
	}
	if !strings.HasPrefix(m.Topic, "tickers.") || m.Data == nil || m.Data.LastPrice == "" {
		return nil, nil
	}
	return []tick{{VenueSymbol: m.Data.Symbol, Price: m.Data.LastPrice}}, nil
}

func (bybitCodec) pingMessage() []byte { return []byte(`{"op":"ping"}`) }

func (bybitCodec) isPong(msg []byte) bool {
	var m bybitMessage
	if json.Unmarshal(msg, &m) != nil {
		return false
	}
	return m.Op == "pong" || (m.Op == "ping" && m.RetMsg == "pong")
}
