package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vadiminshakov/barreplay/config"
	"github.com/vadiminshakov/barreplay/internal"
	"github.com/vadiminshakov/barreplay/internal/domain"
	"github.com/vadiminshakov/barreplay/internal/events"
	"github.com/vadiminshakov/barreplay/internal/services/strategy"
	"github.com/vadiminshakov/barreplay/internal/services/trader"
	"github.com/vadiminshakov/barreplay/internal/storage/journal"
	"go.uber.org/zap"
)

const base = int64(1_700_000_000)

func barTime(i int) int64 { return base + int64(i)*3600 }

func testServer(t *testing.T) (*Server, *journal.WALStore) {
	t.Helper()

	candles := make([]domain.Candle, 40)
	for i := range candles {
		o := 100 + float64(i)
		candles[i] = domain.Candle{Time: barTime(i), Open: o, High: o + 1.5, Low: o - 1, Close: o + 0.5, Volume: 5}
	}

	store, err := journal.NewWALStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	conf := config.Config{
		Symbol:          "ETHUSDT",
		ActiveTimeframe: "1h",
		StartingBalance: decimal.NewFromInt(1000),
		Leverage:        1,
		HistoryCap:      trader.DefaultHistoryCap,
		Speed:           1,
		StepInterval:    10 * time.Millisecond,
		Indicators: []domain.IndicatorDefinition{
			{ID: "sma5", Kind: domain.IndicatorSMA, Period: 5, Source: domain.SourceClose, Color: "#00f", Visible: true},
		},
		Strategy: strategy.DefaultThresholds(),
	}
	session, err := internal.NewSession(conf, map[domain.Timeframe][]domain.Candle{"1h": candles}, internal.Deps{
		Journal: store,
		Frames:  events.NewBroadcaster(16),
		Logger:  zap.NewNop(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return NewServer(":0", session, store, zap.NewNop()), store
}

func do(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestServer_State(t *testing.T) {
	s, _ := testServer(t)

	rec := do(t, s, http.MethodGet, "/api/state", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	state := decode[stateResponse](t, rec)
	assert.Equal(t, "ETHUSDT", state.Frame.Symbol)
	assert.Equal(t, []domain.Timeframe{"1h"}, state.Timeframes)
	assert.Equal(t, barTime(39), state.Frame.Clock)
	assert.Equal(t, internal.IndicatorStyle{Color: "#00f", Visible: true}, state.Styles["sma5"])
}

func TestServer_TradeRoundTripIsJournaled(t *testing.T) {
	s, store := testServer(t)

	rec := do(t, s, http.MethodPost, "/api/replay/start", obj{"ts": barTime(10)})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, barTime(10), decode[events.Frame](t, rec).Clock)

	rec = do(t, s, http.MethodPost, "/api/orders/market", obj{"side": "long", "size": "2"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, s, http.MethodPost, "/api/replay/step", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodPost, "/api/positions/close-all", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	trades := decode[[]domain.ClosedTrade](t, rec)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].PnL.Equal(decimal.NewFromInt(2)), trades[0].PnL.String())

	rec = do(t, s, http.MethodGet, "/api/journal?after=0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decode[[]domain.JournalEntry](t, rec)
	require.Len(t, entries, 1)
	assert.Equal(t, "ETHUSDT", entries[0].Symbol)
	assert.Equal(t, store.CurrentIndex(), entries[0].Seq)

	rec = do(t, s, http.MethodGet, "/api/state", nil)
	assert.Len(t, decode[stateResponse](t, rec).History, 1)
}

func TestServer_PendingOrderLifecycle(t *testing.T) {
	s, _ := testServer(t)
	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/replay/start", obj{"ts": barTime(10)}).Code)

	rec := do(t, s, http.MethodPost, "/api/orders/pending", obj{"side": "long", "type": "limit", "price": "90", "size": "1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	order := decode[domain.PendingOrder](t, rec)

	rec = do(t, s, http.MethodDelete, "/api/orders/"+jsonNumber(order.ID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodDelete, "/api/orders/"+jsonNumber(order.ID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ErrorStatuses(t *testing.T) {
	s, _ := testServer(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
	}{
		{"unknown timeframe", http.MethodGet, "/api/candles/4h", nil, http.StatusNotFound},
		{"unknown indicator", http.MethodPost, "/api/indicators/macd/toggle", nil, http.StatusNotFound},
		{"bad position id", http.MethodPost, "/api/positions/abc/close", nil, http.StatusBadRequest},
		{"missing position", http.MethodPost, "/api/positions/42/close", nil, http.StatusNotFound},
		{"invalid side", http.MethodPost, "/api/orders/market", obj{"side": "flat", "size": "1"}, http.StatusBadRequest},
		{"margin", http.MethodPost, "/api/orders/market", obj{"side": "long", "size": "1000"}, http.StatusUnprocessableEntity},
		{"missing timeframe", http.MethodPost, "/api/replay/timeframe", obj{}, http.StatusBadRequest},
		{"start without ts", http.MethodPost, "/api/replay/start", obj{}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, s, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestServer_IndicatorsAndDrawings(t *testing.T) {
	s, _ := testServer(t)

	rec := do(t, s, http.MethodGet, "/api/indicators/1h/sma5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decode[[]domain.Point](t, rec))

	rec = do(t, s, http.MethodPost, "/api/indicators/sma5/toggle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decode[map[string]any](t, rec)["visible"])

	rec = do(t, s, http.MethodPut, "/api/indicators/sma5/style", obj{"color": "#abc"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, internal.IndicatorStyle{Color: "#abc"}, decode[internal.IndicatorStyle](t, rec))

	rec = do(t, s, http.MethodGet, "/api/drawings", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	drawing := []any{map[string]any{"kind": "hline", "price": 120.5}}
	rec = do(t, s, http.MethodPut, "/api/drawings", drawing)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/drawings", nil)
	assert.JSONEq(t, `[{"kind":"hline","price":120.5}]`, rec.Body.String())

	req := httptest.NewRequest(http.MethodPut, "/api/drawings", strings.NewReader("{broken"))
	bad := httptest.NewRecorder()
	s.ServeHTTP(bad, req)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
}

func TestServer_LeverageAndMetrics(t *testing.T) {
	s, _ := testServer(t)

	rec := do(t, s, http.MethodPut, "/api/leverage", obj{"leverage": 50})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 25, decode[map[string]any](t, rec)["leverage"])

	rec = do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "barreplay_equity")

	rec = do(t, s, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<title>Bar Replay</title>")
}

func TestServer_WebsocketStreamsFrames(t *testing.T) {
	s, _ := testServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.hub.Run(ctx)

	srv := httptest.NewServer(s)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var first events.Frame
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, "load", first.Transition)

	require.Eventually(t, func() bool {
		return s.session.Frames().Subscribers() > 0 && s.hub.Clients() == 1
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/replay/start", obj{"ts": barTime(5)}).Code)

	var next events.Frame
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, barTime(5), next.Clock)
}

type obj map[string]any

func jsonNumber(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
