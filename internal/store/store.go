package store

import (
	"context"
	"time"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"main/internal/fixed"
	"main/internal/ledger"
	"main/internal/schema"
	"main/internal/writeback"
)

var ErrUnknownTask = errors.New("unknown writeback task kind")

// Store is the gorm-backed durable repository. It is the single write path
// for engine state; conversion between engine fixed-point and store-native
// precision happens entirely here.
type Store struct {
	db       *gorm.DB
	decimals map[string]int32
}

// New creates a repository. The decimals map overrides per-asset raw-unit
// precision; nil keeps the defaults.
func New(db *gorm.DB, decimals map[string]int32) *Store {
	return &Store{db: db, decimals: decimals}
}

// AutoMigrate creates or updates the wallet and order tables.
func (s *Store) AutoMigrate() error {
	return s.db.AutoMigrate(&Wallet{}, &Order{})
}

// UpsertWallet writes one (user, asset) balance, converting to the asset's
// raw precision. Conflicts on the composite key update in place.
func (s *Store) UpsertWallet(ctx context.Context, userID, symbol string, balance fixed.Fixed) error {
	decimals := AssetDecimals(s.decimals, symbol)
	row := Wallet{
		UserID:          userID,
		Symbol:          symbol,
		BalanceRaw:      FixedToRaw(balance, decimals),
		BalanceDecimals: decimals,
		UpdatedAt:       time.Now().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"balance_raw", "updated_at"}),
	}).Create(&row).Error
	return errors.Wrap(err, "upsert wallet")
}

// InsertOrder persists a newly opened position.
func (s *Store) InsertOrder(ctx context.Context, p *ledger.Position) error {
	row := Order{
		ID:               p.ID,
		UserID:           p.UserID,
		Symbol:           p.Asset,
		Side:             string(p.Side),
		Quantity:         FixedToColumn(p.Qty, QuantityDecimals),
		QuantityDecimals: QuantityDecimals,
		Leverage:         p.Leverage,
		OpenPrice:        FixedToColumn(p.EntryPrice, PriceDecimals),
		PriceDecimals:    PriceDecimals,
		Margin:           FixedToColumn(p.InitialMargin, PriceDecimals),
		Status:           OrderStatusOpen,
		CreatedAt:        p.CreatedAt,
	}
	if p.TakeProfit != 0 {
		tp := FixedToColumn(p.TakeProfit, PriceDecimals)
		row.TakeProfitPrice = &tp
	}
	if p.StopLoss != 0 {
		sl := FixedToColumn(p.StopLoss, PriceDecimals)
		row.StopLossPrice = &sl
	}
	return errors.Wrap(s.db.WithContext(ctx).Create(&row).Error, "insert order")
}

// CloseOrder writes the terminal update of a closed position by id.
func (s *Store) CloseOrder(ctx context.Context, c writeback.PositionClose) error {
	closePrice := FixedToColumn(c.ClosePrice, PriceDecimals)
	pnl := FixedToColumn(c.Pnl, PriceDecimals)
	reason := string(c.Reason)
	closedAt := c.ClosedAt

	err := s.db.WithContext(ctx).Model(&Order{}).Where("id = ?", c.ID).Updates(map[string]any{
		"status":       OrderStatusClosed,
		"close_price":  closePrice,
		"pnl":          pnl,
		"close_reason": reason,
		"closed_at":    closedAt,
	}).Error
	return errors.Wrap(err, "close order")
}

// Apply dispatches one write-back task. It implements writeback.Applier.
func (s *Store) Apply(ctx context.Context, task writeback.Task) error {
	switch task.Kind {
	case writeback.TaskBalanceUpsert:
		return s.UpsertWallet(ctx, task.Balance.UserID, task.Balance.Symbol, task.Balance.Balance)
	case writeback.TaskPositionCreate:
		return s.InsertOrder(ctx, task.Create)
	case writeback.TaskPositionClose:
		return s.CloseOrder(ctx, *task.Close)
	default:
		return errors.Wrap(ErrUnknownTask, string(task.Kind))
	}
}

// OpenPositions loads every open order row converted to engine
// representation. Startup recovery runs this before the first stream read.
func (s *Store) OpenPositions(ctx context.Context) ([]*ledger.Position, error) {
	var rows []Order
	if err := s.db.WithContext(ctx).Where("status = ?", OrderStatusOpen).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load open orders")
	}

	out := make([]*ledger.Position, 0, len(rows))
	for _, row := range rows {
		p := &ledger.Position{
			ID:            row.ID,
			UserID:        row.UserID,
			Asset:         row.Symbol,
			Side:          schema.Side(row.Side),
			Qty:           ColumnToFixed(row.Quantity, row.QuantityDecimals),
			Leverage:      row.Leverage,
			EntryPrice:    ColumnToFixed(row.OpenPrice, row.PriceDecimals),
			InitialMargin: ColumnToFixed(row.Margin, row.PriceDecimals),
			CreatedAt:     row.CreatedAt,
		}
		if row.TakeProfitPrice != nil {
			p.TakeProfit = ColumnToFixed(*row.TakeProfitPrice, row.PriceDecimals)
		}
		if row.StopLossPrice != nil {
			p.StopLoss = ColumnToFixed(*row.StopLossPrice, row.PriceDecimals)
		}
		out = append(out, p)
	}
	return out, nil
}

// WalletBalance is one recovered balance in engine representation.
type WalletBalance struct {
	UserID  string
	Symbol  string
	Balance fixed.Fixed
}

// Balances loads every wallet row converted to engine fixed-point.
func (s *Store) Balances(ctx context.Context) ([]WalletBalance, error) {
	var rows []Wallet
	if err := s.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "load wallets")
	}

	out := make([]WalletBalance, 0, len(rows))
	for _, row := range rows {
		decimals := row.BalanceDecimals
		if decimals == 0 {
			decimals = AssetDecimals(s.decimals, row.Symbol)
		}
		out = append(out, WalletBalance{
			UserID:  row.UserID,
			Symbol:  row.Symbol,
			Balance: RawToFixed(row.BalanceRaw, decimals),
		})
	}
	return out, nil
}
