package venue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"spread_go/internal/domain"
)

const (
	binanceRestURL = "https://fapi.binance.com"
	binanceWSURL   = "wss://fstream.binance.com/ws"
)

// binanceCodec speaks the USDⓈ-M futures API. All listed contracts are quote-margined (linear).
type binanceCodec struct{}

type binanceExchangeInfo struct {
	Symbols []struct {
		Symbol       string `json:"symbol"`
		Pair         string `json:"pair"`
		ContractType string `json:"contractType"` // PERPETUAL, CURRENT_QUARTER, ...
		Status       string `json:"status"`       // TRADING, SETTLING, ...
		BaseAsset    string `json:"baseAsset"`
		QuoteAsset   string `json:"quoteAsset"`
		MarginAsset  string `json:"marginAsset"`
	} `json:"symbols"`
}

// binanceTicker is one element of the !ticker@arr stream.
type binanceTicker struct {
	Event  string `json:"e"` // 24hrTicker
	Symbol string `json:"s"`
	Close  string `json:"c"` // last price
}

func (binanceCodec) defaultRestURL() string { return binanceRestURL }
func (binanceCodec) defaultWSURL() string   { return binanceWSURL }

func (binanceCodec) fetchCatalog(ctx context.Context, rest *restClient) ([]domain.Instrument, error) {
	var info binanceExchangeInfo
	if err := rest.getJSON(ctx, "/fapi/v1/exchangeInfo", nil, &info); err != nil {
		return nil, err
	}

	instruments := make([]domain.Instrument, 0, len(info.Symbols))
	for _, s := range info.Symbols {
		if s.Status != "TRADING" {
			continue
		}
		settle := s.MarginAsset
		if settle == "" {
			settle = s.QuoteAsset
		}
		instruments = append(instruments, domain.Instrument{
			Symbol:      domain.UnifiedSymbol(s.BaseAsset, s.QuoteAsset, settle),
			VenueSymbol: s.Symbol,
			Base:        s.BaseAsset,
			Quote:       s.QuoteAsset,
			Settle:      settle,
			Swap:        s.ContractType == "PERPETUAL",
			Linear:      true,
		})
	}
	return instruments, nil
}

// streamURL subscribes to the all-market ticker array; unwanted symbols are filtered on decode.
func (binanceCodec) streamURL(wsURL string, _ []domain.Instrument) string {
	return strings.TrimRight(wsURL, "/") + "/!ticker@arr"
}

func (binanceCodec) subscribeMessages([]domain.Instrument) ([][]byte, error) {
	return nil, nil
}

func (binanceCodec) decode(msg []byte) ([]tick, error) {
	msg = bytes.TrimSpace(msg)
	if len(msg) == 0 {
		return nil, nil
	}
	if msg[0] != '[' {
		// Subscription results and errors arrive as objects
		var ctl struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		if err := json.Unmarshal(msg, &ctl); err != nil {
			return nil, err
		}
		if ctl.Code != 0 {
			return nil, fmt.Errorf("binance error %d: %s", ctl.Code, ctl.Msg)
		}
		return nil, nil
	}

	var tickers []binanceTicker
	if err := json.Unmarshal(msg, &tickers); err != nil {
		return nil, err
	}
	ticks := make([]tick, 0, len(tickers))
	for _, t := range tickers {
		ticks = append(ticks, tick{VenueSymbol: t.Symbol, Price: t.Close})
	}
	return ticks, nil
}

// Binance pings the client; gorilla answers with pongs. Client control pings keep idle links alive.
func (binanceCodec) pingMessage() []byte   { return nil }
func (binanceCodec) isPong(msg []byte) bool { return false }
