// Package httpapi exposes the player commands as JSON routes, plus health
// and Prometheus metrics endpoints.
package httpapi

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"paddlers.io/internal/gamemaster"
	"paddlers.io/internal/protocol"
)

// Backend executes commands and reports scheduler stats.
type Backend interface {
	Execute(ctx context.Context, cmd protocol.Command) (protocol.Result, error)
	Stats() gamemaster.Stats
}

const requestIDHeader = "X-Request-ID"

// routes maps each POST path to the command its body decodes into.
var routes = map[string]string{
	"/player/create":         protocol.TypeCreatePlayer,
	"/shop/building":         protocol.TypePurchaseBuilding,
	"/shop/building/delete":  protocol.TypeDeleteBuilding,
	"/shop/unit/prophet":     protocol.TypePurchaseProphet,
	"/worker/overwriteTasks": protocol.TypeOverwriteTasks,
	"/attacks/create":        protocol.TypeCreateAttack,
	"/story/transition":      protocol.TypeStoryTransition,
	"/stats":                 protocol.TypeSubmitStatistics,
}

type Options struct {
	Backend Backend
	Logger  *log.Logger
	// StatsRate and StatsBurst limit /stats per remote address.
	StatsRate  float64
	StatsBurst int
	// CommandTimeout bounds one command; zero means 10s.
	CommandTimeout time.Duration
	// Extra routes registered on the engine, e.g. the websocket endpoint.
	Extra map[string]http.HandlerFunc
}

type Server struct {
	backend Backend
	logger  *log.Logger
	limiter *visitorLimiter
	timeout time.Duration
	engine  *gin.Engine
}

func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.StatsRate <= 0 {
		opts.StatsRate = 1
	}
	if opts.StatsBurst <= 0 {
		opts.StatsBurst = 5
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 10 * time.Second
	}
	s := &Server{
		backend: opts.Backend,
		logger:  opts.Logger,
		limiter: newVisitorLimiter(opts.StatsRate, opts.StatsBurst),
		timeout: opts.CommandTimeout,
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.requestID)

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", s.metrics)
	for path, typ := range routes {
		h := s.command(typ)
		if typ == protocol.TypeSubmitStatistics {
			r.POST(path, s.rateLimited, h)
			continue
		}
		r.POST(path, h)
	}
	for path, h := range opts.Extra {
		r.GET(path, gin.WrapF(h))
	}
	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler { return s.engine }

// requestID echoes the caller's X-Request-ID or assigns a new one.
func (s *Server) requestID(c *gin.Context) {
	id := strings.TrimSpace(c.GetHeader(requestIDHeader))
	if id == "" || len(id) > 128 {
		id = uuid.NewString()
	}
	c.Set(requestIDHeader, id)
	c.Header(requestIDHeader, id)
	start := time.Now()
	c.Next()
	if c.Request.Method != http.MethodGet {
		s.logger.Printf("%s %s status=%d rid=%s took=%s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), id, time.Since(start))
	}
}

func (s *Server) rateLimited(c *gin.Context) {
	if !s.limiter.allow(c.Request.RemoteAddr) {
		resp := protocol.Response{
			Type:      protocol.TypeResult,
			RequestID: c.GetString(requestIDHeader),
			Code:      protocol.ErrRateLimit,
			Message:   "too many requests",
		}
		c.AbortWithStatusJSON(http.StatusTooManyRequests, resp)
		return
	}
	c.Next()
}

func (s *Server) command(typ string) gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetString(requestIDHeader)
		body, err := c.GetRawData()
		if err != nil {
			s.reply(c, protocol.NewResponse(rid, protocol.Result{}, &protocol.DecodeError{Code: protocol.ErrProtoBadRequest, Message: "unreadable body"}))
			return
		}
		cmd, err := protocol.Decode(typ, body)
		if err != nil {
			s.reply(c, protocol.NewResponse(rid, protocol.Result{}, err))
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), s.timeout)
		defer cancel()
		res, err := s.backend.Execute(ctx, cmd)
		if err != nil && protocol.ErrorCode(err) == protocol.ErrInternal {
			s.logger.Printf("request %s %s: %v", rid, typ, err)
		}
		s.reply(c, protocol.NewResponse(rid, res, err))
	}
}

func (s *Server) reply(c *gin.Context, resp protocol.Response) {
	c.JSON(protocol.HTTPStatus(resp.Code), resp)
}
