// Package health exposes a lightweight HTTP health endpoint for container probes.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"access_share_bot/internal/logging"
)

const (
	mongoPingTimeout   = 2 * time.Second
	readHeaderTimeout  = 2 * time.Second
	healthListenPrefix = ":"
)

// MongoChecker defines the subset of MongoDB client behavior required for health.
type MongoChecker interface {
	Ping(ctx context.Context) error
}

// StatsSource reports user counts for the health payload. Satisfied by
// *store.StatsProvider.
type StatsSource interface {
	CountUsers(ctx context.Context) (int64, error)
	CountRegistered(ctx context.Context) (int64, error)
}

// Server hosts the health endpoint and owns the underlying HTTP server.
type Server struct {
	server       *http.Server
	logger       *logrus.Entry
	mongoChecker MongoChecker
	stats        StatsSource
}

type response struct {
	Status          string `json:"status"`
	Mongo           string `json:"mongo,omitempty"`
	Users           *int64 `json:"users,omitempty"`
	RegisteredUsers *int64 `json:"registered_users,omitempty"`
}

// NewServer constructs a health server that exposes GET /healthz on the provided port.
func NewServer(port int, mongoChecker MongoChecker, stats StatsSource, logger *logrus.Entry) *Server {
	if logger == nil {
		logger = logging.Logger()
	}

	srv := &Server{
		logger:       logger,
		mongoChecker: mongoChecker,
		stats:        stats,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealth)

	srv.server = &http.Server{
		Addr:              fmt.Sprintf("%s%d", healthListenPrefix, port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	return srv
}

// ListenAndServe starts the health server and blocks until shutdown.
func (s *Server) ListenAndServe() error {
	s.logger.WithFields(logging.Fields{
		"event": "health_listen",
		"addr":  s.server.Addr,
	}).Info("starting health server")

	if err := s.server.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			s.logger.WithField("event", "health_stopped").Info("health server stopped")
			return nil
		}

		return fmt.Errorf("health server listen: %w", err)
	}

	s.logger.WithField("event", "health_stopped").Info("health server stopped")
	return nil
}

// Shutdown gracefully stops the health server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}

	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := response{Status: "ok"}
	mongoStatus := "ok"

	ctx := r.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if s.mongoChecker == nil {
		mongoStatus = "error"
		s.logger.WithField("event", "health_mongo_missing").Warn("mongo checker is not configured for health endpoint")
	} else {
		pingCtx, cancel := context.WithTimeout(ctx, mongoPingTimeout)
		err := s.mongoChecker.Ping(pingCtx)
		cancel()

		if err != nil {
			mongoStatus = "error"
			s.logger.WithFields(logging.Fields{
				"event": "health_mongo_error",
			}).WithError(err).Warn("mongo ping failed during health check")
		}
	}

	if mongoStatus != "ok" {
		resp.Status = "degraded"
		resp.Mongo = "error"
	}

	s.attachStats(ctx, &resp)

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.WithField("event", "health_write_error").WithError(err).Error("failed to encode health response")
	}
}

// attachStats enriches the payload with user counts. Stats are informational
// only and never degrade the health status.
func (s *Server) attachStats(ctx context.Context, resp *response) {
	if s.stats == nil {
		return
	}

	statsCtx, cancel := context.WithTimeout(ctx, mongoPingTimeout)
	defer cancel()

	total, err := s.stats.CountUsers(statsCtx)
	if err != nil {
		s.logger.WithField("event", "health_stats_error").WithError(err).Warn("could not count users for health check")
		return
	}
	resp.Users = &total

	registered, err := s.stats.CountRegistered(statsCtx)
	if err != nil {
		s.logger.WithField("event", "health_stats_error").WithError(err).Warn("could not count registered users for health check")
		return
	}
	resp.RegisteredUsers = &registered
}
