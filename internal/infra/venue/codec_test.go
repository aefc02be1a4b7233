package venue

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		codec   codec
		msg     string
		want    []tick
		wantErr bool
	}{
		{
			name:  "binance ticker array",
			codec: binanceCodec{},
			msg:   `[{"e":"24hrTicker","s":"BTCUSDT","c":"65000.10"},{"e":"24hrTicker","s":"ETHUSDT","c":"3200.5"}]`,
			want:  []tick{{"BTCUSDT", "65000.10"}, {"ETHUSDT", "3200.5"}},
		},
		{
			name:  "binance subscription result",
			codec: binanceCodec{},
			msg:   `{"result":null,"id":1}`,
		},
		{
			name:    "binance error",
			codec:   binanceCodec{},
			msg:     `{"code":2,"msg":"Invalid request"}`,
			wantErr: true,
		},
		{
			name:  "okx tickers",
			codec: okxCodec{},
			msg:   `{"arg":{"channel":"tickers","instId":"BTC-USDT-SWAP"},"data":[{"instId":"BTC-USDT-SWAP","last":"65001"}]}`,
			want:  []tick{{"BTC-USDT-SWAP", "65001"}},
		},
		{
			name:  "okx subscribe ack",
			codec: okxCodec{},
			msg:   `{"event":"subscribe","arg":{"channel":"tickers","instId":"BTC-USDT-SWAP"}}`,
		},
		{
			name:    "okx error event",
			codec:   okxCodec{},
			msg:     `{"event":"error","code":"60012","msg":"Invalid request"}`,
			wantErr: true,
		},
		{
			name:  "bybit snapshot",
			codec: bybitCodec{},
			msg:   `{"topic":"tickers.BTCUSDT","type":"snapshot","data":{"symbol":"BTCUSDT","lastPrice":"64999.5"}}`,
			want:  []tick{{"BTCUSDT", "64999.5"}},
		},
		{
			name:  "bybit delta without price",
			codec: bybitCodec{},
			msg:   `{"topic":"tickers.BTCUSDT","type":"delta","data":{"symbol":"BTCUSDT","fundingRate":"0.0001"}}`,
		},
		{
			name:  "bybit subscribe ack",
			codec: bybitCodec{},
			msg:   `{"success":true,"ret_msg":"","op":"subscribe"}`,
		},
		{
			name:    "bybit subscribe failure",
			codec:   bybitCodec{},
			msg:     `{"success":false,"ret_msg":"error:handler not found","op":"subscribe"}`,
			wantErr: true,
		},
		{
			name:  "bitget ticker",
			codec: bitgetCodec{},
			msg:   `{"action":"snapshot","arg":{"instType":"USDT-FUTURES","channel":"ticker","instId":"BTCUSDT"},"data":[{"instId":"BTCUSDT","lastPr":"65002.3"}]}`,
			want:  []tick{{"BTCUSDT", "65002.3"}},
		},
		{
			name:    "bitget error event",
			codec:   bitgetCodec{},
			msg:     `{"event":"error","code":30001,"msg":"instType:USDT-FUTURES,channel:ticker,instId:XUSDT doesn't exist"}`,
			wantErr: true,
		},
		{
			name:    "malformed",
			codec:   okxCodec{},
			msg:     `{"arg":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.codec.decode([]byte(tt.msg))
			if (err != nil) != tt.wantErr {
				t.Fatalf("decode() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("Expected %d ticks, got %v", len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("tick %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestPong(t *testing.T) {
	if !(okxCodec{}).isPong([]byte("pong")) || !(bitgetCodec{}).isPong([]byte("pong")) {
		t.Error("Expected text pong to be recognized")
	}
	if !(bybitCodec{}).isPong([]byte(`{"success":true,"ret_msg":"pong","op":"ping"}`)) {
		t.Error("Expected bybit pong to be recognized")
	}
	if (bybitCodec{}).isPong([]byte(`{"topic":"tickers.BTCUSDT"}`)) {
		t.Error("Ticker must not be treated as pong")
	}
}

func TestSubscribeMessages_Chunking(t *testing.T) {
	instruments := makeInstruments(25)

	msgs, err := bybitCodec{}.subscribeMessages(instruments)
	if err != nil {
		t.Fatalf("subscribeMessages failed: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("Expected 3 bybit messages, got %d", len(msgs))
	}
	var req struct {
		Op   string   `json:"op"`
		Args []string `json:"args"`
	}
	if err := json.Unmarshal(msgs[2], &req); err != nil {
		t.Fatal(err)
	}
	if req.Op != "subscribe" || len(req.Args) != 5 || !strings.HasPrefix(req.Args[0], "tickers.") {
		t.Errorf("Unexpected last chunk: %+v", req)
	}

	msgs, _ = bitgetCodec{}.subscribeMessages(instruments)
	if len(msgs) != 1 {
		t.Errorf("Expected 1 bitget message, got %d", len(msgs))
	}

	if msgs, _ := (binanceCodec{}).subscribeMessages(instruments); msgs != nil {
		t.Error("Binance subscribes through the URL")
	}
	if got := (binanceCodec{}).streamURL("wss://x/ws/", nil); got != "wss://x/ws/!ticker@arr" {
		t.Errorf("Unexpected binance URL %s", got)
	}
}
