package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/engine"
	"main/internal/ops"
	"main/internal/store"
	"main/internal/stream"
	"main/internal/writeback"
	"main/pkg/conn"
)

func main() {
	if err := run(); err != nil {
		logs.Errorf("engine: %v", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to JSON config")
	migrate := flag.Bool("migrate", true, "Run schema migration on startup")
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

	if cfg.Profiling.Enable {
		profiler, err := startProfiler(cfg.Profiling, "trading/engine")
		if err != nil {
			return errors.Wrap(err, "start profiler")
		}
		defer func() {
			_ = profiler.Stop()
		}()
	}

	pg, err := conn.New(conn.Option{
		Host:       cfg.Postgres.Host,
		Port:       cfg.Postgres.Port,
		User:       cfg.Postgres.User,
		Password:   cfg.Postgres.Password,
		Database:   cfg.Postgres.Database,
		SSLMode:    cfg.Postgres.SSLMode,
		ConnString: cfg.Postgres.ConnString,
	})
	if err != nil {
		return errors.Wrap(err, "connect postgres")
	}
	defer pg.Close()

	rdb, err := conn.NewRedis(ctx, conn.RedisOption{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return errors.Wrap(err, "connect redis")
	}
	defer rdb.Close()

	st := store.New(pg.DB(), cfg.AssetDecimals)
	if *migrate {
		if err := st.AutoMigrate(); err != nil {
			return errors.Wrap(err, "migrate")
		}
	}

	queue := writeback.NewQueue(st, cfg.WriteBack)
	sink := engine.NewStreamReplySink(stream.NewLog(rdb, cfg.ReplyStream))
	eng := engine.New(queue, sink, engine.Config{
		Risk:          cfg.Risk,
		AssetDecimals: cfg.AssetDecimals,
	})

	if err := eng.Recover(ctx, st); err != nil {
		return errors.Wrap(err, "recover state")
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		queue.Run(ctx)
	}()

	consumer := engine.NewConsumer(stream.NewLog(rdb, cfg.InputStream), eng, cfg.ReadBackoff)
	consumer.Run(ctx)

	wg.Wait()
	logs.Info("engine stopped")
	return nil
}

func startProfiler(cfg ops.ProfilingConfig, app string) (*pyroscope.Profiler, error) {
	if cfg.AppName != "" {
		app = cfg.AppName
	}
	addr := cfg.ServerAddress
	if addr == "" {
		addr = "http://localhost:4040"
	}
	return pyroscope.Start(pyroscope.Config{
		ApplicationName: app,
		ServerAddress:   addr,
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
		},
	})
}
