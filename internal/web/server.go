package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/barreplay/internal"
	"github.com/vadiminshakov/barreplay/internal/domain"
	"github.com/vadiminshakov/barreplay/internal/services/replay"
	"github.com/vadiminshakov/barreplay/internal/services/trader"
	"go.uber.org/zap"
)

const (
	journalPollInterval = 2 * time.Second
	heartbeatInterval   = 30 * time.Second
)

type journalReader interface {
	EntriesAfter(seq uint64, symbol string) ([]domain.JournalEntry, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server exposes the replay session over REST, a websocket frame stream and
// an SSE equity stream.
type Server struct {
	Addr    string
	session *internal.Session
	journal journalReader
	hub     *Hub
	router  *gin.Engine
	logger  *zap.Logger
}

// NewServer creates a server for session. journal may be nil.
func NewServer(addr string, session *internal.Session, journal journalReader, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		Addr:    addr,
		session: session,
		journal: journal,
		hub:     NewHub(session.Frames(), session.Metrics(), logger.Named("hub")),
		router:  gin.New(),
		logger:  logger,
	}
	s.router.Use(gin.Recovery())
	s.registerRoutes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	server := &http.Server{
		Addr:              s.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", zap.String("addr", s.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.router.GET("/", s.handleIndex)
	s.router.GET("/metrics", gin.WrapH(s.session.Metrics().Handler()))
	s.router.GET("/ws", s.handleWS)
	s.router.GET("/equity/stream", s.handleEquityStream)

	api := s.router.Group("/api")
	{
		api.GET("/state", s.getState)
		api.GET("/candles/:tf", s.getCandles)
		api.PUT("/candles/:tf/last", s.putFormingBar)
		api.GET("/indicators/:tf/:id", s.getSeries)
		api.POST("/indicators/:id/toggle", s.toggleIndicator)
		api.PUT("/indicators/:id/style", s.putIndicatorStyle)
		api.GET("/drawings", s.getDrawings)
		api.PUT("/drawings", s.putDrawings)
		api.GET("/journal", s.getJournal)
		api.PUT("/leverage", s.putLeverage)

		rp := api.Group("/replay")
		{
			rp.POST("/step", s.step)
			rp.POST("/play", s.play)
			rp.POST("/pause", s.pause)
			rp.POST("/speed", s.speed)
			rp.POST("/jump", s.jump)
			rp.POST("/jump-ts", s.jumpTimestamp)
			rp.POST("/start", s.start)
			rp.POST("/timeframe", s.timeframe)
		}

		orders := api.Group("/orders")
		{
			orders.POST("/market", s.marketOrder)
			orders.POST("/pending", s.pendingOrder)
			orders.DELETE("/:id", s.cancelOrder)
		}

		positions := api.Group("/positions")
		{
			positions.POST("/close-all", s.closeAll)
			positions.POST("/:id/close", s.closePosition)
			positions.PUT("/:id/stops", s.putStops)
		}
	}
}

func (s *Server) handleIndex(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(indexHTML))
}

func (s *Server) handleWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s.hub.serve(conn)
}

// handleEquityStream pushes an equity event per frame and a trade event per
// journaled close, with a comment heartbeat so proxies keep the connection.
func (s *Server) handleEquityStream(c *gin.Context) {
	w := c.Writer
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(c, http.StatusInternalServerError, errors.New("streaming unsupported"))
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	frames := s.session.Frames().Subscribe()
	defer s.session.Frames().Unsubscribe(frames)

	metrics := s.session.Metrics()
	metrics.StreamClients.Inc()
	defer metrics.StreamClients.Dec()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	pollTicker := time.NewTicker(journalPollInterval)
	defer pollTicker.Stop()

	send := func(event string, v any) {
		payload, err := json.Marshal(v)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "event: %s\n", event)
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	lastSeq := parseUint(c.Query("after"))
	sendTrades := func() {
		if s.journal == nil {
			return
		}
		entries, err := s.journal.EntriesAfter(lastSeq, s.session.Symbol())
		if err != nil {
			s.logger.Warn("equity stream journal poll failed", zap.Error(err))
			return
		}
		for _, e := range entries {
			send("trade", e)
			lastSeq = e.Seq
		}
	}

	if f, ok := s.session.Frames().Last(); ok {
		send("equity", equityPoint(f.Clock, f.Account))
	}
	sendTrades()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case f, ok := <-frames:
			if !ok {
				return
			}
			send("equity", equityPoint(f.Clock, f.Account))
		case <-pollTicker.C:
			sendTrades()
		}
	}
}

type equityEvent struct {
	Clock    int64  `json:"clock"`
	Equity   string `json:"equity"`
	Cash     string `json:"cash"`
	Realized string `json:"realized_pnl"`
	Open     int    `json:"open_positions"`
}

func equityPoint(clock int64, a trader.Account) equityEvent {
	return equityEvent{
		Clock:    clock,
		Equity:   a.Equity.String(),
		Cash:     a.Cash.String(),
		Realized: a.RealizedPnL.String(),
		Open:     len(a.Positions),
	}
}

// writeError maps domain errors to HTTP statuses.
func writeError(c *gin.Context, status int, err error) {
	if err == nil {
		status = http.StatusInternalServerError
		err = errors.New("unknown error")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, trader.ErrPositionNotFound),
		errors.Is(err, trader.ErrOrderNotFound),
		errors.Is(err, replay.ErrUnknownIndicator),
		errors.Is(err, replay.ErrUnknownTimeframe):
		return http.StatusNotFound
	case errors.Is(err, trader.ErrInsufficientMargin):
		return http.StatusUnprocessableEntity
	case errors.Is(err, replay.ErrNoHistory),
		errors.Is(err, internal.ErrNoPrice):
		return http.StatusConflict
	default:
		return http.StatusBadRequest
	}
}

func fail(c *gin.Context, err error) {
	writeError(c, statusFor(err), err)
}

func parseUint(s string) uint64 {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		writeError(c, http.StatusBadRequest, errors.Errorf("invalid id %q", c.Param("id")))
		return 0, false
	}
	return id, true
}
