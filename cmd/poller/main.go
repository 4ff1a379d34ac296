package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/ingest"
	"main/internal/ops"
	"main/internal/stream"
	"main/pkg/conn"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("poller: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to JSON config")
	flag.Parse()

	cfg := ops.Default()
	if *configPath != "" {
		loaded, err := ops.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := conn.NewRedis(ctx, conn.RedisOption{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return errors.Wrap(err, "connect redis")
	}
	defer rdb.Close()

	publisher := ingest.NewPublisher(stream.NewLog(rdb, cfg.InputStream))

	feed := ingest.NewBinanceFeed(ctx, cfg.Feed.URL)
	defer feed.Close()

	if err := feed.Start(ctx); err != nil {
		return errors.Wrap(err, "start feed")
	}
	if err := feed.SubscribeBookTicker(ctx, cfg.Feed.Markets); err != nil {
		return errors.Wrap(err, "subscribe book ticker")
	}
	logs.Infof("polling %v into stream %s", cfg.Feed.Markets, cfg.InputStream)

	unsubscribe := feed.ObserveBookTicker(ctx, func(t ingest.BookTicker) {
		if err := publisher.Publish(ctx, t); err != nil {
			logs.Errorf("publish %s ticker, err: %v", t.Symbol, err)
		}
	})
	defer unsubscribe()

	<-ctx.Done()
	logs.Info("poller stopped")
	return nil
}
