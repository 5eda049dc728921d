// Package app holds the process wiring shared by the Geo-NAP binaries: the Postgres
// pool, Kafka consumers and graceful shutdown.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/config"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/events"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/store"
)

const shutdownTimeout = 10 * time.Second

func KafkaConfig(c config.Kafka) events.KafkaConfig {
	return events.KafkaConfig{Brokers: c.Brokers, Exchange: c.Exchange}
}

// OpenPostgres opens the pool, checks connectivity and applies the schema.
func OpenPostgres(ctx context.Context, url string) (*sql.DB, *store.PGStore, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, nil, fmt.Errorf("db open: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("db ping: %w", err)
	}
	st := store.NewPGStore(db)
	if err := st.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("db schema: %w", err)
	}
	return db, st, nil
}

// SourceFactory opens the source for one queue.
type SourceFactory func(queue events.Queue) (events.Source, error)

// KafkaSources opens consumer-group readers against the configured brokers.
func KafkaSources(cfg events.KafkaConfig) SourceFactory {
	return func(queue events.Queue) (events.Source, error) {
		return events.NewKafkaSource(cfg, queue)
	}
}

// Group runs background loops until Stop is called.
type Group struct {
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *zap.Logger
	closers []io.Closer
}

func NewGroup(logger *zap.Logger) *Group {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Group{ctx: ctx, cancel: cancel, logger: logger}
}

// Go runs fn in the background. fn must return once its context is cancelled.
func (g *Group) Go(name string, fn func(ctx context.Context) error) {
	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := fn(g.ctx); err != nil && !errors.Is(err, context.Canceled) {
			g.logger.Error("background loop exited", zap.String("loop", name), zap.Error(err))
		}
	}()
}

// Consume starts one consumer per subscription. Sources are closed by Stop.
func (g *Group) Consume(subs []events.Subscription, open SourceFactory) error {
	for _, sub := range subs {
		source, err := open(sub.Queue)
		if err != nil {
			return fmt.Errorf("open %s: %w", sub.Queue.Name, err)
		}
		g.closers = append(g.closers, source)
		g.Go(sub.Queue.Name, sub.Consumer(source, g.logger).Run)
	}
	return nil
}

// Close registers c to be closed after the loops have stopped.
func (g *Group) Close(c io.Closer) {
	g.closers = append(g.closers, c)
}

// Stop cancels every loop, waits for them and closes registered resources.
func (g *Group) Stop() {
	g.cancel()
	g.wg.Wait()
	for i := len(g.closers) - 1; i >= 0; i-- {
		if err := g.closers[i].Close(); err != nil {
			g.logger.Warn("close failed", zap.Error(err))
		}
	}
}

// Serve runs srv until SIGINT or SIGTERM, then drains it and stops g.
func Serve(srv *http.Server, g *Group, logger *zap.Logger) {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("http server error", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
	g.Stop()
	_ = logger.Sync()
}
