package web

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/vadiminshakov/barreplay/internal"
	"github.com/vadiminshakov/barreplay/internal/domain"
	"github.com/vadiminshakov/barreplay/internal/events"
)

type stateResponse struct {
	Frame      events.Frame                       `json:"frame"`
	Timeframes []domain.Timeframe                 `json:"timeframes"`
	History    []domain.ClosedTrade               `json:"history"`
	Styles     map[string]internal.IndicatorStyle `json:"styles"`
}

type speedRequest struct {
	Speed float64 `json:"speed"`
}

type jumpRequest struct {
	Index int `json:"index"`
}

type timestampRequest struct {
	TS int64 `json:"ts" binding:"required"`
}

type timeframeRequest struct {
	Timeframe domain.Timeframe `json:"timeframe" binding:"required"`
}

type styleRequest struct {
	Color string `json:"color" binding:"required"`
}

type leverageRequest struct {
	Leverage int `json:"leverage" binding:"required"`
}

type bracketsRequest struct {
	StopLoss   decimal.Decimal `json:"stop_loss"`
	TakeProfit decimal.Decimal `json:"take_profit"`
}

func (b bracketsRequest) brackets() domain.Brackets {
	return domain.Brackets{StopLoss: b.StopLoss, TakeProfit: b.TakeProfit}
}

type marketOrderRequest struct {
	Side domain.PositionSide `json:"side" binding:"required"`
	Size decimal.Decimal     `json:"size"`
	bracketsRequest
}

type pendingOrderRequest struct {
	Side  domain.PositionSide `json:"side" binding:"required"`
	Type  domain.OrderType    `json:"type" binding:"required"`
	Price decimal.Decimal     `json:"price"`
	Size  decimal.Decimal     `json:"size"`
	bracketsRequest
}

func (s *Server) getState(c *gin.Context) {
	c.JSON(http.StatusOK, stateResponse{
		Frame:      s.session.State(),
		Timeframes: s.session.Timeframes(),
		History:    s.session.Account().History,
		Styles:     s.session.IndicatorStyles(),
	})
}

func (s *Server) getCandles(c *gin.Context) {
	candles, err := s.session.Candles(domain.Timeframe(c.Param("tf")))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, candles)
}

func (s *Server) putFormingBar(c *gin.Context) {
	var bar domain.Candle
	if err := c.ShouldBindJSON(&bar); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if err := s.session.UpdateFormingBar(domain.Timeframe(c.Param("tf")), bar); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.session.State())
}

func (s *Server) getSeries(c *gin.Context) {
	points, err := s.session.Series(domain.Timeframe(c.Param("tf")), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, points)
}

func (s *Server) toggleIndicator(c *gin.Context) {
	on, err := s.session.ToggleIndicator(c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "visible": on})
}

func (s *Server) putIndicatorStyle(c *gin.Context) {
	var req styleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	style, err := s.session.SetIndicatorColor(c.Param("id"), req.Color)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, style)
}

func (s *Server) getDrawings(c *gin.Context) {
	raw, ok := s.session.Drawings()
	if !ok {
		c.JSON(http.StatusOK, []any{})
		return
	}
	c.Data(http.StatusOK, "application/json", raw)
}

func (s *Server) putDrawings(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if err := s.session.SetDrawings(json.RawMessage(body)); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getJournal(c *gin.Context) {
	if s.journal == nil {
		c.JSON(http.StatusOK, []domain.JournalEntry{})
		return
	}
	entries, err := s.journal.EntriesAfter(parseUint(c.Query("after")), c.Query("symbol"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	if entries == nil {
		entries = []domain.JournalEntry{}
	}
	c.JSON(http.StatusOK, entries)
}

func (s *Server) putLeverage(c *gin.Context) {
	var req leverageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leverage": s.session.SetLeverage(req.Leverage)})
}

func (s *Server) step(c *gin.Context) {
	advanced := s.session.Step()
	c.JSON(http.StatusOK, gin.H{"advanced": advanced, "frame": s.session.State()})
}

func (s *Server) play(c *gin.Context) {
	var req speedRequest
	// an empty body keeps the current speed
	_ = c.ShouldBindJSON(&req)
	c.JSON(http.StatusOK, gin.H{"playing": true, "speed": s.session.Play(req.Speed)})
}

func (s *Server) pause(c *gin.Context) {
	s.session.Pause()
	c.JSON(http.StatusOK, gin.H{"playing": false})
}

func (s *Server) speed(c *gin.Context) {
	var req speedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"speed": s.session.SetSpeed(req.Speed)})
}

func (s *Server) jump(c *gin.Context) {
	var req jumpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if err := s.session.JumpToIndex(req.Index); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.session.State())
}

func (s *Server) jumpTimestamp(c *gin.Context) {
	var req timestampRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if err := s.session.JumpToTimestamp(req.TS); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.session.State())
}

func (s *Server) start(c *gin.Context) {
	var req timestampRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if err := s.session.SetStart(req.TS); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.session.State())
}

func (s *Server) timeframe(c *gin.Context) {
	var req timeframeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if err := s.session.SetTimeframe(req.Timeframe); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, s.session.State())
}

func (s *Server) marketOrder(c *gin.Context) {
	var req marketOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	executed, err := s.session.MarketOrder(req.Side, req.Size, req.brackets())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"executed": executed, "account": s.session.Account()})
}

func (s *Server) pendingOrder(c *gin.Context) {
	var req pendingOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	order, err := s.session.PlaceOrder(req.Side, req.Type, req.Price, req.Size, req.brackets())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (s *Server) cancelOrder(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := s.session.CancelOrder(id); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) closePosition(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	trade, err := s.session.ClosePosition(id)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, trade)
}

func (s *Server) closeAll(c *gin.Context) {
	trades, err := s.session.CloseAll()
	if err != nil {
		fail(c, err)
		return
	}
	if trades == nil {
		trades = []domain.ClosedTrade{}
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) putStops(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req bracketsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if err := s.session.SetStops(id, req.brackets()); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
