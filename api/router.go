package api

import (
	"context"
	"net/http"

	"github.com/Domenick1991/restobooking/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterParams struct {
	Logger       *logger.Logger
	Reservations *ReservationHandler
	Waitlist     *WaitlistHandler
	Gatherer     prometheus.Gatherer
	Health       map[string]Pinger
}

func NewRouter(p RouterParams) *gin.Engine {
	log := p.Logger
	if log == nil {
		log = logger.Nop()
	}

	router := gin.New()
	router.Use(RequestID(log), Logging(log), Recoverer(log))

	router.GET("/healthz", healthz(p.Health))
	if p.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{})))
	}

	root := router.Group("/")
	if p.Reservations != nil {
		p.Reservations.Register(root)
	}
	if p.Waitlist != nil {
		p.Waitlist.Register(root)
	}
	return router
}

func healthz(deps map[string]Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		status := http.StatusOK
		checks := make(map[string]string, len(deps))
		for name, dep := range deps {
			if err := dep.Ping(c.Request.Context()); err != nil {
				checks[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}

		body := gin.H{"status": "ok", "checks": checks}
		if status != http.StatusOK {
			body["status"] = "degraded"
		}
		c.JSON(status, body)
	}
}
