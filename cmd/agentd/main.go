// Command agentd runs the reference management agent: a JSON-over-TCP
// endpoint answering server status queries and command executions. It
// returns canned command output and (optionally) live host metrics, which is
// enough for end-to-end wiring without real infrastructure.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/scarecr0w12/ai-server-management/internal/agent"
)

func main() {
	addr := flag.String("addr", "0.0.0.0:5000", "listen address")
	liveStats := flag.Bool("live-stats", true, "report live host metrics in status responses")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	srv := agent.NewServer(agent.Config{
		Addr:      *addr,
		LiveStats: *liveStats,
	}, logger)

	if err := srv.Start(); err != nil {
		logger.Fatal("Failed to start agent", zap.Error(err))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	srv.Stop()
}
