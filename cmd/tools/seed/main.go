// Command seed writes a wallet balance straight into the durable store and
// optionally notifies a running engine through the input stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yanun0323/errors"

	"main/internal/fixed"
	"main/internal/ops"
	"main/internal/schema"
	"main/internal/store"
	"main/internal/stream"
	"main/pkg/conn"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to JSON config")
	user := flag.String("user", "", "User id")
	symbol := flag.String("symbol", "USDC", "Asset symbol")
	amount := flag.String("amount", "", "Balance in whole units, e.g. 1000.50")
	notify := flag.Bool("notify", true, "Publish a balance update to the engine input stream")
	flag.Parse()

	cfg := ops.Default()
	if *configPath != "" {
		loaded, err := ops.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *user == "" {
		return errors.New("missing user; use -user")
	}
	if *amount == "" {
		return errors.New("missing amount; use -amount")
	}

	symbolName := schema.NormalizeSymbol(*symbol)
	balance, err := fixed.Parse(*amount)
	if err != nil {
		return errors.Wrap(err, "parse amount")
	}
	if balance < 0 {
		return errors.New("amount must be >= 0")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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

	st := store.New(pg.DB(), cfg.AssetDecimals)
	if err := st.AutoMigrate(); err != nil {
		return errors.Wrap(err, "migrate")
	}
	if err := st.UpsertWallet(ctx, *user, symbolName, balance); err != nil {
		return errors.Wrap(err, "upsert wallet")
	}
	fmt.Printf("wallet %s/%s = %s\n", *user, symbolName, *amount)

	if !*notify {
		return nil
	}

	rdb, err := conn.NewRedis(ctx, conn.RedisOption{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return errors.Wrap(err, "connect redis")
	}
	defer rdb.Close()

	decimals := store.AssetDecimals(cfg.AssetDecimals, symbolName)
	doc, err := schema.EncodeEnvelope(schema.KindBalanceUpdate, schema.BalanceUpdate{
		UserID:     *user,
		Symbol:     symbolName,
		NewBalance: store.FixedToRaw(balance, decimals).String(),
		Decimals:   decimals,
	})
	if err != nil {
		return errors.Wrap(err, "encode balance update")
	}
	if _, err := stream.NewLog(rdb, cfg.InputStream).Append(ctx, map[string]any{"payload": string(doc)}); err != nil {
		return errors.Wrap(err, "publish balance update")
	}
	fmt.Println("engine notified")
	return nil
}
