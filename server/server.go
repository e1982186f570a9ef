package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/auth"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/domain"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/metrics"
	ws "github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/websocket"
)

const principalKey = "principal"

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type Options struct {
	// Tokens enables bearer authentication. Without it every connection is
	// anonymous.
	Tokens     *auth.TokenService
	Gatherer   prometheus.Gatherer
	Metrics    *metrics.Metrics
	SendBuffer int
}

type Server struct {
	engine   *gin.Engine
	relay    domain.Relay
	handler  domain.MessageHandler
	tokens   *auth.TokenService
	validate *validator.Validate
	buffer   int
}

func New(relay domain.Relay, handler domain.MessageHandler, opts Options) *Server {
	s := &Server{
		engine:   gin.New(),
		relay:    relay,
		handler:  handler,
		tokens:   opts.Tokens,
		validate: validator.New(),
		buffer:   opts.SendBuffer,
	}

	s.engine.Use(gin.Recovery())
	s.engine.Use(requestLogger())
	if opts.Metrics != nil {
		s.engine.Use(opts.Metrics.Middleware())
	}
	s.engine.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:   []string{"Content-Length"},
		MaxAge:          12 * time.Hour,
	}))

	s.routes(opts.Gatherer)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes(gatherer prometheus.Gatherer) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s.engine.GET("/health", s.health)
	s.engine.GET("/stats", s.stats)
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	s.engine.GET("/ws", s.authenticate(), s.serveWS)

	api := s.engine.Group("/api", s.authenticate(), requireRole(auth.RoleAdmin))
	api.POST("/farmers/:id/notifications", s.notifyFarmer)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) stats(c *gin.Context) {
	rooms, clients := s.relay.Stats()
	c.JSON(http.StatusOK, gin.H{"rooms": rooms, "clients": clients})
}

func (s *Server) serveWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("upgrade error", "error", err)
		return
	}

	wsConn := ws.NewConn(uuid.New().String(), principalFrom(c), conn, s.relay, s.handler, s.buffer)
	wsConn.Start()
}

func (s *Server) notifyFarmer(c *gin.Context) {
	farmerID := strings.TrimSpace(c.Param("id"))
	if farmerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "farmer id required"})
		return
	}

	var n domain.Notification
	if err := c.ShouldBindJSON(&n); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validate.Struct(n); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if n.Type == "" {
		n.Type = "info"
	}

	frame, err := domain.EncodeFrame(domain.EventNotification, n)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encode notification"})
		return
	}
	delivered := s.relay.Publish(nil, domain.FarmerRoom(farmerID), frame)
	slog.Info("farmer notified", "farmerId", farmerID, "delivered", delivered)
	c.JSON(http.StatusAccepted, gin.H{"delivered": delivered})
}

// authenticate resolves the caller's principal from a bearer header or a
// token query parameter. Browsers cannot set headers on websocket upgrades.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.tokens == nil {
			c.Set(principalKey, domain.Principal{})
			c.Next()
			return
		}

		token, err := bearerToken(c)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		p, err := s.tokens.ValidateToken(token)
		if err != nil {
			slog.Warn("token rejected", "path", c.FullPath(), "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// requireRole only applies when authentication is enabled.
func requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := principalFrom(c)
		if p.UserID != "" && p.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, error) {
	if token := c.Query("token"); token != "" {
		return token, nil
	}
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", errors.New("missing token")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", errors.New("malformed authorization header")
	}
	return parts[1], nil
}

func principalFrom(c *gin.Context) domain.Principal {
	v, ok := c.Get(principalKey)
	if !ok {
		return domain.Principal{}
	}
	p, _ := v.(domain.Principal)
	return p
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
