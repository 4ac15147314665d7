package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lazypower/saferoute/internal/engine"
	"github.com/lazypower/saferoute/internal/graph"
	"github.com/lazypower/saferoute/internal/server"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	g := graph.New()
	if cfg.Graph.NodesPath != "" {
		if g, err = graph.LoadNodes(cfg.Graph.NodesPath); err != nil {
			return err
		}
	} else {
		logger.Warn("no graph.nodes_path configured; every rated node will be reported as unknown")
	}

	eng := engine.New(s, g, cfg.Scoring.DecayDays, logger)
	if cfg.Scoring.Schedule != "" {
		if err := eng.StartSchedule(cfg.Scoring.Schedule); err != nil {
			return err
		}
		defer eng.Stop()
	}

	srv := server.New(eng, VersionString(), logger)
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	errc := make(chan error, 1)
	go func() {
		logger.WithFields(logrus.Fields{
			"addr":     addr,
			"store":    s.Backend(),
			"nodes":    g.Len(),
			"schedule": cfg.Scoring.Schedule,
		}).Info("saferoute serving")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case <-done:
	case err := <-errc:
		return fmt.Errorf("server error: %w", err)
	}
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return err
	}
	if cfg.Graph.AnnotationsPath != "" {
		if err := g.WriteAnnotations(cfg.Graph.AnnotationsPath); err != nil {
			return err
		}
	}
	return nil
}
