// Command trade is the operator CLI: it publishes one create or close
// request through the correlation layer and prints the engine's reply.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/yanun0323/errors"

	"main/internal/dispatch"
	"main/internal/ops"
	"main/internal/schema"
	"main/internal/stream"
	"main/pkg/conn"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "trade: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to JSON config")
	action := flag.String("action", "create", "create or close")
	user := flag.String("user", "", "User id")
	asset := flag.String("asset", "BTC", "Asset symbol")
	side := flag.String("side", "long", "long or short")
	qty := flag.Float64("qty", 0, "Position size in base units")
	leverage := flag.Int64("leverage", 1, "Leverage multiplier")
	takeProfit := flag.Float64("tp", 0, "Take-profit price (0=none)")
	stopLoss := flag.Float64("sl", 0, "Stop-loss price (0=none)")
	orderID := flag.String("order", "", "Order id to close")
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

	d := dispatch.New(
		stream.NewLog(rdb, cfg.InputStream),
		stream.NewLog(rdb, cfg.ReplyStream),
	)

	// The engine keys replies on the order id: a fresh one for creates,
	// the existing one for closes.
	var (
		correlationID string
		kind          schema.Kind
		payload       any
	)
	switch *action {
	case "create":
		correlationID = uuid.NewString()
		kind = schema.KindCreateOrder
		payload = schema.CreateOrder{
			ID:         correlationID,
			UserID:     *user,
			Asset:      *asset,
			Side:       schema.Side(*side),
			Qty:        *qty,
			Leverage:   *leverage,
			TakeProfit: *takeProfit,
			StopLoss:   *stopLoss,
		}
	case "close":
		if *orderID == "" {
			return errors.New("missing order id; use -order")
		}
		correlationID = *orderID
		kind = schema.KindCloseOrder
		payload = schema.CloseOrder{
			OrderID: *orderID,
			UserID:  *user,
		}
	default:
		return errors.Errorf("unknown action %q", *action)
	}

	reply, err := d.Dispatch(ctx, correlationID, kind, payload, cfg.DispatchTimeout)
	if err != nil {
		return err
	}

	fmt.Printf("id:     %s\nstatus: %s\n", reply.ID, reply.Status)
	if reply.Payload != "" {
		fmt.Printf("payload: %s\n", reply.Payload)
	}
	return nil
}
