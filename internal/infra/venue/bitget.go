package venue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"spread_go/internal/domain"
)

const (
	bitgetRestURL = "https://api.bitget.com"
	bitgetWSURL   = "wss://ws.bitget.com/v2/ws/public"

	bitgetInstType       = "USDT-FUTURES"
	bitgetSubscribeChunk = 50
)

type bitgetCodec struct{}

type bitgetContractsResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		Symbol       string `json:"symbol"` // BTCUSDT
		BaseCoin     string `json:"baseCoin"`
		QuoteCoin    string `json:"quoteCoin"`
		SymbolType   string `json:"symbolType"`   // perpetual, delivery
		SymbolStatus string `json:"symbolStatus"` // normal, maintain, ...
	} `json:"data"`
}

// bitgetSubscribeRequest represents Bitget WebSocket subscription request
type bitgetSubscribeRequest struct {
	Op   string               `json:"op"`
	Args []bitgetSubscribeArg `json:"args"`
}

type bitgetSubscribeArg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
	InstID   string `json:"instId"`
}

// bitgetTickerResponse represents Bitget WebSocket ticker push and event messages
type bitgetTickerResponse struct {
	Event  string `json:"event"`  // subscribe, error
	Action string `json:"action"` // snapshot, update
	Code   any    `json:"code"`   // string or number depending on the error
	Msg    string `json:"msg"`
	Arg    struct {
		InstType string `json:"instType"`
		Channel  string `json:"channel"`
		InstID   string `json:"instId"`
	} `json:"arg"`
	Data []struct {
		InstID string `json:"instId"`
		LastPr string `json:"lastPr"`
	} `json:"data"`
}

func (bitgetCodec) defaultRestURL() string { return bitgetRestURL }
func (bitgetCodec) defaultWSURL() string   { return bitgetWSURL }

func (bitgetCodec) fetchCatalog(ctx context.Context, rest *restClient) ([]domain.Instrument, error) {
	var resp bitgetContractsResponse
	if err := rest.getJSON(ctx, "/api/v2/mix/market/contracts", url.Values{"productType": {bitgetInstType}}, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "00000" {
		return nil, fmt.Errorf("bitget error %v: %s", resp.Code, resp.Msg)
	}

	instruments := make([]domain.Instrument, 0, len(resp.Data))
	for _, d := range resp.Data {
		if d.SymbolStatus != "normal" {
			continue
		}
		// USDT-FUTURES contracts are margined and settled in USDT
		instruments = append(instruments, domain.Instrument{
			Symbol:      domain.UnifiedSymbol(d.BaseCoin, d.QuoteCoin, d.QuoteCoin),
			VenueSymbol: d.Symbol,
			Base:        d.BaseCoin,
			Quote:       d.QuoteCoin,
			Settle:      d.QuoteCoin,
			Swap:        d.SymbolType == "perpetual",
			Linear:      true,
		})
	}
	return instruments, nil
}

func (bitgetCodec) streamURL(wsURL string, _ []domain.Instrument) string { return wsURL }

func (bitgetCodec) subscribeMessages(instruments []domain.Instrument) ([][]byte, error) {
	var msgs [][]byte
	for start := 0; start < len(instruments); start += bitgetSubscribeChunk {
		end := min(start+bitgetSubscribeChunk, len(instruments))
		args := make([]bitgetSubscribeArg, 0, end-start)
		for _, inst := range instruments[start:end] {
			args = append(args, bitgetSubscribeArg{
				InstType: bitgetInstType,
				Channel:  "ticker",
				InstID:   inst.VenueSymbol,
			})
		}
		b, err := json.Marshal(bitgetSubscribeRequest{Op: "subscribe", Args: args})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, b)
	}
	return msgs, nil
}

func (bitgetCodec) decode(msg []byte) ([]tick, error) {
	var resp bitgetTickerResponse
	if err := json.Unmarshal(msg, &resp); err != nil {
		return nil, err
	}
	if resp.Event == "error" {
		return nil, fmt.Errorf("bitget error %v: %s", resp.Code, resp.Msg)
	}
	if resp.Arg.Channel != "ticker" || len(resp.Data) == 0 {
		return nil, nil
	}
	ticks := make([]tick, 0, len(resp.Data))
	for _, d := range resp.Data {
		ticks = append(ticks, tick{VenueSymbol: d.InstID, Price: d.LastPr})
	}
	return ticks, nil
}

func (bitgetCodec) pingMessage() []byte     { return []byte("ping") }
func (bitgetCodec) isPong(msg []byte) bool { return string(msg) == "pong" }
