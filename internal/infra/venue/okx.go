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
	okxRestURL = "https://www.okx.com"
	okxWSURL   = "wss://ws.okx.com:8443/ws/v5/public"

	okxSubscribeChunk = 100
)

type okxCodec struct{}

type okxInstrumentsResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		InstID    string `json:"instId"`    // BTC-USDT-SWAP
		InstType  string `json:"instType"`  // SWAP
		CtType    string `json:"ctType"`    // linear, inverse
		Uly       string `json:"uly"`       // BTC-USDT
		SettleCcy string `json:"settleCcy"` // USDT
		State     string `json:"state"`     // live, suspend, ...
	} `json:"data"`
}

type okxArg struct {
	Channel string `json:"channel"`
	InstID  string `json:"instId"`
}

type okxMessage struct {
	Event string  `json:"event"` // subscribe, error
	Code  string  `json:"code"`
	Msg   string  `json:"msg"`
	Arg   *okxArg `json:"arg"`
	Data  []struct {
		InstID string `json:"instId"`
		Last   string `json:"last"`
	} `json:"data"`
}

func (okxCodec) defaultRestURL() string { return okxRestURL }
func (okxCodec) defaultWSURL() string   { return okxWSURL }

func (okxCodec) fetchCatalog(ctx context.Context, rest *restClient) ([]domain.Instrument, error) {
	var resp okxInstrumentsResponse
	if err := rest.getJSON(ctx, "/api/v5/public/instruments", url.Values{"instType": {"SWAP"}}, &resp); err != nil {
		return nil, err
	}
	if resp.Code != "0" {
		return nil, fmt.Errorf("okx error %s: %s", resp.Code, resp.Msg)
	}

	instruments := make([]domain.Instrument, 0, len(resp.Data))
	for _, d := range resp.Data {
		if d.State != "live" {
			continue
		}
		base, quote, ok := strings.Cut(d.Uly, "-")
		if !ok {
			continue
		}
		instruments = append(instruments, domain.Instrument{
			Symbol:      domain.UnifiedSymbol(base, quote, d.SettleCcy),
			VenueSymbol: d.InstID,
			Base:        base,
			Quote:       quote,
			Settle:      d.SettleCcy,
			Swap:        d.InstType == "SWAP",
			Linear:      d.CtType == "linear",
		})
	}
	return instruments, nil
}

func (okxCodec) streamURL(wsURL string, _ []domain.Instrument) string { return wsURL }

func (okxCodec) subscribeMessages(instruments []domain.Instrument) ([][]byte, error) {
	var msgs [][]byte
	for start := 0; start < len(instruments); start += okxSubscribeChunk {
		end := min(start+okxSubscribeChunk, len(instruments))
		args := make([]okxArg, 0, end-start)
		for _, inst := range instruments[start:end] {
			args = append(args, okxArg{Channel: "tickers", InstID: inst.VenueSymbol})
		}
		b, err := json.Marshal(map[string]any{"op": "subscribe", "args": args})
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, b)
	}
	return msgs, nil
}

func (okxCodec) decode(msg []byte) ([]tick, error) {
	var m okxMessage
	if err := json.Unmarshal(msg, &m); err != nil {
		return nil, err
	}
	if m.Event == "error" {
		return nil, fmt.Errorf("okx error %s: %s", m.Code, m.Msg)
	}
	if m.Arg == nil || m.Arg.Channel != "tickers" || len(m.Data) == 0 {
		return nil, nil
	}
	ticks := make([]tick, 0, len(m.Data))
	for _, d := range m.Data {
		ticks = append(ticks, tick{VenueSymbol: d.InstID, Price: d.Last})
	}
	return ticks, nil
}

func (okxCodec) pingMessage() []byte     { return []byte("ping") }
func (okxCodec) isPong(msg []byte) bool { return string(msg) == "pong" }
