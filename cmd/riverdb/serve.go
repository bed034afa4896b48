package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/riverdb/riverdb"
	"github.com/riverdb/riverdb/extproc"
	"github.com/riverdb/riverdb/metadata"
	"github.com/riverdb/riverdb/nsrepo/inmem"
	"github.com/riverdb/riverdb/service"
)

func serve(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "path to the YAML configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	conf, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	logger, err := conf.Log.newLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	ttl, err := conf.sessionTTL()
	if err != nil {
		return fmt.Errorf("session_ttl: %w", err)
	}
	pool, err := extproc.NewPool(noEngine, conf.PoolSize)
	if err != nil {
		return err
	}
	store, err := inmem.NewStore(conf.ShardCount, logger.Named("store"))
	if err != nil {
		return err
	}
	meta := metadata.NewSnapshot(conf.tableInfos())
	core := service.NewCore(
		service.Config{BatchSize: conf.BatchSize, SessionTTL: ttl},
		pool, store, meta, logger.Named("service"))

	srv := &http.Server{
		Addr:    conf.Listen,
		Handler: service.NewHandler(core, logger.Named("http")),
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", conf.Listen))
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// noEngine stands in when no external javascript process is configured.
func noEngine(context.Context, string, map[string]riverdb.Value, *riverdb.Value) (riverdb.Value, error) {
	return nil, errors.New("no javascript engine configured")
}
