// ABOUTME: runnable demo wiring a logger, metrics, and an Engine together
// ABOUTME: runs a scripted insert/select/update/erase workload, serves /metrics over HTTP

package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kbolino/blinkkv/internal/logger"
	"github.com/kbolino/blinkkv/pkg/storage"
)

var (
	dbPath      = flag.String("db", "blinkkv.db", "database file path")
	metricsAddr = flag.String("metrics-addr", ":9090", "address to serve /metrics on")
	numKeys     = flag.Int("n", 10000, "number of keys to insert in the demo workload")
)

func main() {
	flag.Parse()

	log.Printf("blinkkv demo v0.1.0")
	log.Printf("database: %s", *dbPath)

	lg := logger.NewLogger(logger.Config{Level: "info", Pretty: true})

	engine, err := storage.Open(*dbPath, storage.DefaultConfig(), lg)
	if err != nil {
		log.Fatalf("failed to open engine: %v", err)
	}
	defer engine.Close()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(engine.Registry(), promhttp.HandlerOpts{}))
	httpServer := &http.Server{Addr: *metricsAddr, Handler: mux}
	go func() {
		log.Printf("serving /metrics on %s", *metricsAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics server failed: %v", err)
		}
	}()

	if err := runWorkload(engine, *numKeys); err != nil {
		log.Fatalf("workload failed: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	log.Printf("workload complete, serving metrics until interrupted")
	<-sigChan
	log.Println("shutting down")
}

// runWorkload mirrors spec.md §8's seed-suite scenario 1: insert n keys
// "k"+zero-pad(i) with pointer value i, select every one back, then erase
// every tenth key and confirm the survivors/casualties are exactly right
// (scenario 3).
func runWorkload(e *storage.Engine, n int) error {
	start := time.Now()
	for i := 0; i < n; i++ {
		if err := e.Insert(zeroPadKey(i), []byte(fmt.Sprintf("%d", i))); err != nil {
			return fmt.Errorf("insert(%d): %w", i, err)
		}
	}
	log.Printf("inserted %d keys in %s", n, time.Since(start))

	start = time.Now()
	for i := 0; i < n; i++ {
		if _, err := e.Select(zeroPadKey(i)); err != nil {
			return fmt.Errorf("select(%d): %w", i, err)
		}
	}
	log.Printf("selected %d keys in %s", n, time.Since(start))

	start = time.Now()
	erased := 0
	for i := 0; i < n; i += 10 {
		if err := e.Erase(zeroPadKey(i)); err != nil {
			return fmt.Errorf("erase(%d): %w", i, err)
		}
		erased++
	}
	log.Printf("erased %d keys in %s", erased, time.Since(start))

	for i := 0; i < n; i++ {
		_, err := e.Select(zeroPadKey(i))
		if i%10 == 0 {
			if err == nil {
				return fmt.Errorf("select(%d) succeeded after erase, want key-not-exists", i)
			}
			continue
		}
		if err != nil {
			return fmt.Errorf("select(%d) after erase pass: %w", i, err)
		}
	}
	log.Printf("verified survivors and casualties for %d keys", n)
	return nil
}

func zeroPadKey(i int) []byte {
	return []byte(fmt.Sprintf("k%08d", i))
}
