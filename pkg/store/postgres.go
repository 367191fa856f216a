package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/helixmarkets/helix/pkg/ledger"
	"github.com/helixmarkets/helix/pkg/order"
)

// PostgresConfig carries the connection settings.
type PostgresConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	DefaultTimeout  time.Duration
}

func (c PostgresConfig) withDefaults() PostgresConfig {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 16
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 4
	}
	if c.ConnMaxLifetime <= 0 {
		c.ConnMaxLifetime = 30 * time.Minute
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 5 * time.Second
	}
	return c
}

// Postgres is the durable Store. Writes from the matching pipeline run
// with an internal timeout so a wedged database surfaces as an error
// rather than a stuck pair lock.
type Postgres struct {
	db  *sql.DB
	cfg PostgresConfig
}

var _ Store = (*Postgres)(nil)

// OpenPostgres connects, pings, and initializes the schema.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	cfg = cfg.withDefaults()

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DefaultTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p := &Postgres{db: db, cfg: cfg}
	if err := p.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return p, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) initSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.DefaultTimeout)
	defer cancel()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id               TEXT PRIMARY KEY,
			client_order_id  TEXT,
			user_id          TEXT NOT NULL,
			pair             TEXT NOT NULL,
			type             TEXT NOT NULL,
			side             TEXT NOT NULL,
			time_in_force    TEXT NOT NULL,
			price            BIGINT NOT NULL,
			amount           BIGINT NOT NULL,
			filled           BIGINT NOT NULL,
			quote_budget     BIGINT NOT NULL,
			avg_price        BIGINT NOT NULL,
			status           TEXT NOT NULL,
			locked_asset     TEXT NOT NULL,
			locked_amount    BIGINT NOT NULL,
			locked_remaining BIGINT NOT NULL,
			seq              BIGINT NOT NULL,
			created_at       TIMESTAMPTZ NOT NULL,
			filled_at        TIMESTAMPTZ,
			cancelled_at     TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS orders_user_idx ON orders (user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS orders_status_idx ON orders (status, pair)`,
		`CREATE TABLE IF NOT EXISTS order_fills (
			id        TEXT PRIMARY KEY,
			order_id  TEXT NOT NULL,
			pair      TEXT NOT NULL,
			amount    BIGINT NOT NULL,
			price     BIGINT NOT NULL,
			fee       BIGINT NOT NULL,
			fee_asset TEXT NOT NULL,
			is_maker  BOOLEAN NOT NULL,
			ts        TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS order_fills_order_idx ON order_fills (order_id)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id             BIGINT PRIMARY KEY,
			user_id        TEXT NOT NULL,
			order_id       TEXT,
			kind           TEXT NOT NULL,
			asset          TEXT NOT NULL,
			amount         BIGINT NOT NULL,
			balance_before BIGINT NOT NULL,
			balance_after  BIGINT NOT NULL,
			description    TEXT,
			created_at     TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ledger_entries_user_idx ON ledger_entries (user_id, id DESC)`,
		`CREATE TABLE IF NOT EXISTS balances (
			user_id   TEXT NOT NULL,
			asset     TEXT NOT NULL,
			available BIGINT NOT NULL,
			locked    BIGINT NOT NULL,
			PRIMARY KEY (user_id, asset)
		)`,
	}
	for _, s := range stmts {
		if _, err := p.db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), p.cfg.DefaultTimeout)
}

func (p *Postgres) SaveOrder(o *order.Order) error {
	ctx, cancel := p.ctx()
	defer cancel()

	_, err := p.db.ExecContext(ctx, `
		INSERT INTO orders (id, client_order_id, user_id, pair, type, side, time_in_force,
			price, amount, filled, quote_budget, avg_price, status,
			locked_asset, locked_amount, locked_remaining, seq,
			created_at, filled_at, cancelled_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		ON CONFLICT (id) DO UPDATE SET
			filled = EXCLUDED.filled,
			avg_price = EXCLUDED.avg_price,
			status = EXCLUDED.status,
			locked_remaining = EXCLUDED.locked_remaining,
			seq = EXCLUDED.seq,
			filled_at = EXCLUDED.filled_at,
			cancelled_at = EXCLUDED.cancelled_at`,
		o.ID, o.ClientOrderID, o.UserID, o.Pair, o.Type.String(), o.Side.String(), o.TimeInForce.String(),
		o.Price, o.Amount, o.Filled, o.QuoteBudget, o.AvgPrice, o.Status.String(),
		o.LockedAsset, o.LockedAmount, o.LockedRemaining, int64(o.Seq),
		o.CreatedAt, nullTime(o.FilledAt), nullTime(o.CancelledAt))
	if err != nil {
		return fmt.Errorf("save order %s: %w", o.ID, err)
	}
	return nil
}

func (p *Postgres) SaveFills(fills []order.Fill) error {
	if len(fills) == 0 {
		return nil
	}
	ctx, cancel := p.ctx()
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin fills tx: %w", err)
	}
	defer tx.Rollback()

	for _, f := range fills {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO order_fills (id, order_id, pair, amount, price, fee, fee_asset, is_maker, ts)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (id) DO NOTHING`,
			f.ID, f.OrderID, f.Pair, f.Amount, f.Price, f.Fee, f.FeeAsset, f.IsMaker, f.Time); err != nil {
			return fmt.Errorf("save fill %s: %w", f.ID, err)
		}
	}
	return tx.Commit()
}

func (p *Postgres) AppendEntries(entries []ledger.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	ctx, cancel := p.ctx()
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin journal tx: %w", err)
	}
	defer tx.Rollback()

	for _, e := range entries {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ledger_entries (id, user_id, order_id, kind, asset, amount,
				balance_before, balance_after, description, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
			e.ID, e.UserID, e.OrderID, string(e.Kind), e.Asset, e.Amount,
			e.BalanceBefore, e.BalanceAfter, e.Description, e.CreatedAt); err != nil {
			return fmt.Errorf("append entry %d: %w", e.ID, err)
		}
	}
	return tx.Commit()
}

func (p *Postgres) SaveBalances(userID string, balances []ledger.Balance) error {
	if len(balances) == 0 {
		return nil
	}
	ctx, cancel := p.ctx()
	defer cancel()

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin balances tx: %w", err)
	}
	defer tx.Rollback()

	for _, b := range balances {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO balances (user_id, asset, available, locked)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (user_id, asset) DO UPDATE SET
				available = EXCLUDED.available,
				locked = EXCLUDED.locked`,
			userID, b.Asset, b.Available, b.Locked); err != nil {
			return fmt.Errorf("save balance %s/%s: %w", userID, b.Asset, err)
		}
	}
	return tx.Commit()
}

const orderColumns = `id, client_order_id, user_id, pair, type, side, time_in_force,
	price, amount, filled, quote_budget, avg_price, status,
	locked_asset, locked_amount, locked_remaining, seq,
	created_at, filled_at, cancelled_at`

func (p *Postgres) Order(id string) (order.Order, bool, error) {
	ctx, cancel := p.ctx()
	defer cancel()

	row := p.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	o, err := scanOrder(row)
	if err == sql.ErrNoRows {
		return order.Order{}, false, nil
	}
	if err != nil {
		return order.Order{}, false, fmt.Errorf("load order %s: %w", id, err)
	}
	return o, true, nil
}

func (p *Postgres) Fills(orderID string) ([]order.Fill, error) {
	ctx, cancel := p.ctx()
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, order_id, pair, amount, price, fee, fee_asset, is_maker, ts
		FROM order_fills WHERE order_id = $1 ORDER BY ts`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load fills %s: %w", orderID, err)
	}
	defer rows.Close()

	var out []order.Fill
	for rows.Next() {
		var f order.Fill
		if err := rows.Scan(&f.ID, &f.OrderID, &f.Pair, &f.Amount, &f.Price,
			&f.Fee, &f.FeeAsset, &f.IsMaker, &f.Time); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (p *Postgres) ListOrders(f OrderFilter) (OrderPage, error) {
	page, size := normalizePage(f.Page, f.PageSize)
	where, args := buildWhere(map[string]string{
		"user_id": f.UserID, "pair": f.Pair, "status": f.Status,
	})

	ctx, cancel := p.ctx()
	defer cancel()

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM orders`+where, args...).Scan(&total); err != nil {
		return OrderPage{}, fmt.Errorf("count orders: %w", err)
	}

	query := fmt.Sprintf(`SELECT %s FROM orders%s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
		orderColumns, where, len(args)+1, len(args)+2)
	rows, err := p.db.QueryContext(ctx, query, append(args, size, (page-1)*size)...)
	if err != nil {
		return OrderPage{}, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	out := OrderPage{Orders: []order.Order{}, Total: total, Page: page, PageSize: size}
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return OrderPage{}, err
		}
		out.Orders = append(out.Orders, o)
	}
	return out, rows.Err()
}

func (p *Postgres) ListEntries(f EntryFilter) (EntryPage, error) {
	page, size := normalizePage(f.Page, f.PageSize)
	where, args := buildWhere(map[string]string{
		"user_id": f.UserID, "asset": f.Asset, "kind": f.Kind,
	})

	ctx, cancel := p.ctx()
	defer cancel()

	var total int
	if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM ledger_entries`+where, args...).Scan(&total); err != nil {
		return EntryPage{}, fmt.Errorf("count entries: %w", err)
	}

	query := fmt.Sprintf(`SELECT id, user_id, order_id, kind, asset, amount,
		balance_before, balance_after, description, created_at
		FROM ledger_entries%s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		where, len(args)+1, len(args)+2)
	rows, err := p.db.QueryContext(ctx, query, append(args, size, (page-1)*size)...)
	if err != nil {
		return EntryPage{}, fmt.Errorf("list entries: %w", err)
	}
	defer rows.Close()

	out := EntryPage{Entries: []ledger.Entry{}, Total: total, Page: page, PageSize: size}
	for rows.Next() {
		var e ledger.Entry
		var kind string
		if err := rows.Scan(&e.ID, &e.UserID, &e.OrderID, &kind, &e.Asset, &e.Amount,
			&e.BalanceBefore, &e.BalanceAfter, &e.Description, &e.CreatedAt); err != nil {
			return EntryPage{}, err
		}
		e.Kind = ledger.EntryKind(kind)
		out.Entries = append(out.Entries, e)
	}
	return out, rows.Err()
}

func (p *Postgres) LoadOpenOrders() ([]*order.Order, error) {
	ctx, cancel := p.ctx()
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE status IN ('pending','partial')
		ORDER BY pair, created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("load open orders: %w", err)
	}
	defer rows.Close()

	var out []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		cp := o
		out = append(out, &cp)
	}
	return out, rows.Err()
}

func (p *Postgres) LoadBalances() (map[string][]ledger.Balance, error) {
	ctx, cancel := p.ctx()
	defer cancel()

	rows, err := p.db.QueryContext(ctx, `SELECT user_id, asset, available, locked FROM balances`)
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	defer rows.Close()

	out := make(map[string][]ledger.Balance)
	for rows.Next() {
		var user string
		var b ledger.Balance
		if err := rows.Scan(&user, &b.Asset, &b.Available, &b.Locked); err != nil {
			return nil, err
		}
		out[user] = append(out[user], b)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(r rowScanner) (order.Order, error) {
	var (
		o                    order.Order
		typ, side, tif, stat string
		seq                  int64
		filledAt, cancelled  sql.NullTime
	)
	err := r.Scan(&o.ID, &o.ClientOrderID, &o.UserID, &o.Pair, &typ, &side, &tif,
		&o.Price, &o.Amount, &o.Filled, &o.QuoteBudget, &o.AvgPrice, &stat,
		&o.LockedAsset, &o.LockedAmount, &o.LockedRemaining, &seq,
		&o.CreatedAt, &filledAt, &cancelled)
	if err != nil {
		return order.Order{}, err
	}
	o.Type, _ = order.ParseType(typ)
	o.Side, _ = order.ParseSide(side)
	o.TimeInForce, _ = order.ParseTimeInForce(tif)
	o.Status, _ = order.ParseStatus(stat)
	o.Seq = uint64(seq)
	if filledAt.Valid {
		o.FilledAt = filledAt.Time
	}
	if cancelled.Valid {
		o.CancelledAt = cancelled.Time
	}
	return o, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

// buildWhere assembles an AND-joined WHERE clause from the non-empty
// filters, with positional args.
func buildWhere(filters map[string]string) (string, []any) {
	cols := make([]string, 0, len(filters))
	for col, v := range filters {
		if v != "" {
			cols = append(cols, col)
		}
	}
	if len(cols) == 0 {
		return "", nil
	}
	sort.Strings(cols)
	var (
		parts []string
		args  []any
	)
	for i, col := range cols {
		parts = append(parts, fmt.Sprintf("%s = $%d", col, i+1))
		args = append(args, filters[col])
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}
