package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Domenick1991/restobooking/api"
	"github.com/gin-gonic/gin"
)

const httpShutdownTimeout = 5 * time.Second

// NewRouter mounts the booking and waitlist handlers, health and metrics.
func (s *Services) NewRouter() *gin.Engine {
	health := map[string]api.Pinger{"store": s.StorePinger()}
	if s.Cache != nil {
		health["redis"] = s.Cache
	}
	return api.NewRouter(api.RouterParams{
		Logger:       s.Logger,
		Reservations: api.NewReservationHandler(s.Booking, s.Location, s.Logger),
		Waitlist:     api.NewWaitlistHandler(s.Matcher, s.Logger),
		Gatherer:     s.Metrics,
		Health:       health,
	})
}

// Run serves HTTP until ctx is cancelled or the server fails.
func Run(ctx context.Context, s *Services) error {
	srv := &http.Server{
		Addr:              s.Config.HTTP.Address,
		Handler:           s.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.Logger.Info(s.Logger.WithField(ctx, "addr", srv.Addr), "http server started")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), httpShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}
