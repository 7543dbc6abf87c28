// Package web serves the actuator control API consumed by the front panel.
package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"piclyde/internal/stepper"
)

// Controller is the control boundary of the actuator array.
// Implementations must be safe to call concurrently.
type Controller interface {
	Start(i int) error
	Stop(i int) error
	StopAll()
	SetSpeed(i, v int) error
	ToggleDirection(i int) (forward bool, err error)
	Actuator(i int) (stepper.Snapshot, error)
	Snapshot() []stepper.Snapshot
}

type Options struct {
	CORSOrigins []string
	Logs        *LogBuffer
	// Gatherer backs /metrics; nil disables the endpoint.
	Gatherer prometheus.Gatherer
	Logger   *zerolog.Logger
}

type server struct {
	ctl     Controller
	log     zerolog.Logger
	started time.Time
}

type speedRequest struct {
	Speed *int `json:"speed" binding:"required"`
}

// Handler builds the gin engine for ctl.
func Handler(ctl Controller, opts Options) http.Handler {
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = opts.Logger.With().Str("component", "web").Logger()
	}
	s := &server{ctl: ctl, log: log, started: time.Now()}

	r := gin.New()
	r.Use(gin.Recovery(), s.accessLog)

	origins := opts.CORSOrigins
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Length", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = origins
	}
	r.Use(cors.New(corsCfg))

	api := r.Group("/api")
	{
		api.GET("/health", s.health)
		api.GET("/actuators", s.list)
		api.POST("/actuators/stop-all", s.stopAll)
		api.GET("/actuators/:id", s.get)
		api.POST("/actuators/:id/start", s.start)
		api.POST("/actuators/:id/stop", s.stop)
		api.POST("/actuators/:id/direction", s.direction)
		api.PUT("/actuators/:id/speed", s.speed)
		if opts.Logs != nil {
			api.GET("/logs", opts.Logs.handle)
		}
	}
	if opts.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}
	return r
}

func (s *server) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	s.log.Debug().
		Str("method", c.Request.Method).
		Str("path", c.Request.URL.Path).
		Int("status", c.Writer.Status()).
		Dur("took", time.Since(start)).
		Msg("request")
}

func (s *server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":        true,
		"actuators": len(s.ctl.Snapshot()),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *server) list(c *gin.Context) {
	c.JSON(http.StatusOK, s.ctl.Snapshot())
}

// index parses :id; non-numeric ids are reported like out-of-range ones.
func (s *server) index(c *gin.Context) (int, bool) {
	i, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "actuator id must be an integer"})
		return 0, false
	}
	return i, true
}

func (s *server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, stepper.ErrInvalidIndex):
		status = http.StatusNotFound
	case errors.Is(err, stepper.ErrOutOfRange):
		status = http.StatusBadRequest
	case errors.Is(err, stepper.ErrShutdown):
		status = http.StatusServiceUnavailable
	default:
		s.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("control request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// reply writes the current state of actuator i.
func (s *server) reply(c *gin.Context, i int) {
	snap, err := s.ctl.Actuator(i)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *server) get(c *gin.Context) {
	if i, ok := s.index(c); ok {
		s.reply(c, i)
	}
}

func (s *server) start(c *gin.Context) {
	i, ok := s.index(c)
	if !ok {
		return
	}
	if err := s.ctl.Start(i); err != nil {
		s.fail(c, err)
		return
	}
	s.reply(c, i)
}

func (s *server) stop(c *gin.Context) {
	i, ok := s.index(c)
	if !ok {
		return
	}
	if err := s.ctl.Stop(i); err != nil {
		s.fail(c, err)
		return
	}
	s.reply(c, i)
}

func (s *server) stopAll(c *gin.Context) {
	s.ctl.StopAll()
	c.JSON(http.StatusOK, s.ctl.Snapshot())
}

func (s *server) direction(c *gin.Context) {
	i, ok := s.index(c)
	if !ok {
		return
	}
	if _, err := s.ctl.ToggleDirection(i); err != nil {
		s.fail(c, err)
		return
	}
	s.reply(c, i)
}

func (s *server) speed(c *gin.Context) {
	i, ok := s.index(c)
	if !ok {
		return
	}
	var req speedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "body must be {\"speed\": <1-255>}"})
		return
	}
	if err := s.ctl.SetSpeed(i, *req.Speed); err != nil {
		s.fail(c, err)
		return
	}
	s.reply(c, i)
}
