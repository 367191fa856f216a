// Package ledger implements per-user per-asset balance accounting: the
// available/locked split, funds reservation for open orders, trade
// settlement with fees, and the append-only audit journal. Every balance
// mutation commits together with its journal entries or not at all.
package ledger

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrInsufficientAvailable = errors.New("insufficient available balance")
	ErrInsufficientLocked    = errors.New("insufficient locked balance")
	ErrInconsistent          = errors.New("ledger inconsistent")
	ErrUnavailable           = errors.New("ledger journal unavailable")
)

// EntryKind classifies a journal entry.
type EntryKind string

const (
	KindDeposit    EntryKind = "deposit"
	KindWithdrawal EntryKind = "withdrawal"
	KindTrade      EntryKind = "trade"
	KindFee        EntryKind = "fee"
	KindLock       EntryKind = "lock"
	KindUnlock     EntryKind = "unlock"
)

// Entry is one append-only audit record. Amount is the signed effect on
// the available balance; BalanceBefore/After bracket it exactly.
type Entry struct {
	ID            int64
	UserID        string
	OrderID       string
	Kind          EntryKind
	Asset         string
	Amount        int64
	BalanceBefore int64
	BalanceAfter  int64
	Description   string
	CreatedAt     time.Time
}

// Balance is the point-in-time state of one (user, asset) row.
type Balance struct {
	Asset     string
	Available int64
	Locked    int64
}

func (b Balance) Total() int64 { return b.Available + b.Locked }

// Journal persists entries and balance rows. Implementations commit each
// call atomically; an error refuses the mutation.
type Journal interface {
	AppendEntries(entries []Entry) error
	SaveBalances(userID string, balances []Balance) error
}

type row struct {
	available int64
	locked    int64
}

// Ledger holds all balance rows. Each row is guarded by a striped lock
// keyed by (user, asset); multi-row operations acquire their locks in
// sorted key order so two settlements can never deadlock.
type Ledger struct {
	mu      sync.RWMutex // guards the rows map itself
	rows    map[string]*row
	locks   map[string]*sync.Mutex
	journal Journal
	entryID atomic.Int64

	// FeeCollector receives all trading fees so asset totals conserve.
	FeeCollector string
}

func New(journal Journal) *Ledger {
	return &Ledger{
		rows:         make(map[string]*row),
		locks:        make(map[string]*sync.Mutex),
		journal:      journal,
		FeeCollector: "fee-collector",
	}
}

func key(userID, asset string) string { return userID + "\x00" + asset }

// getRow returns the row and its lock, creating both lazily.
func (l *Ledger) getRow(userID, asset string) (*row, *sync.Mutex) {
	k := key(userID, asset)
	l.mu.RLock()
	r, ok := l.rows[k]
	m := l.locks[k]
	l.mu.RUnlock()
	if ok {
		return r, m
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if r, ok = l.rows[k]; ok {
		return r, l.locks[k]
	}
	r = &row{}
	m = &sync.Mutex{}
	l.rows[k] = r
	l.locks[k] = m
	return r, m
}

func (l *Ledger) nextEntryID() int64 { return l.entryID.Add(1) }

// lockAll acquires the row locks for the given (user, asset) keys in
// deterministic order and returns the rows plus an unlock func.
func (l *Ledger) lockAll(keys [][2]string) (map[string]*row, func()) {
	uniq := make(map[string][2]string, len(keys))
	for _, k := range keys {
		uniq[key(k[0], k[1])] = k
	}
	sorted := make([]string, 0, len(uniq))
	for k := range uniq {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	rows := make(map[string]*row, len(sorted))
	muts := make([]*sync.Mutex, 0, len(sorted))
	for _, k := range sorted {
		ua := uniq[k]
		r, m := l.getRow(ua[0], ua[1])
		m.Lock()
		rows[k] = r
		muts = append(muts, m)
	}
	return rows, func() {
		for i := len(muts) - 1; i >= 0; i-- {
			muts[i].Unlock()
		}
	}
}

// balanceRef names a row touched by an operation so commit can persist
// its post-apply state. The row lock must be held by the caller.
type balanceRef struct {
	userID string
	asset  string
	r      *row
}

// commit writes the journal first, then applies the in-memory mutations
// and persists the touched rows. A journal failure leaves every row
// untouched; a balance-row write failure is tolerated because rows are
// derivable from the already-durable entries.
func (l *Ledger) commit(entries []Entry, apply func(), refs []balanceRef) error {
	if err := l.journal.AppendEntries(entries); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	apply()
	byUser := make(map[string][]Balance)
	for _, ref := range refs {
		byUser[ref.userID] = append(byUser[ref.userID],
			Balance{Asset: ref.asset, Available: ref.r.available, Locked: ref.r.locked})
	}
	for userID, bs := range byUser {
		_ = l.journal.SaveBalances(userID, bs)
	}
	return nil
}

// Credit adds to available. Creates the row lazily on first credit.
func (l *Ledger) Credit(userID, asset string, amount int64, kind EntryKind, orderID, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("credit amount must be positive: %d", amount)
	}
	r, m := l.getRow(userID, asset)
	m.Lock()
	defer m.Unlock()

	e := Entry{
		ID: l.nextEntryID(), UserID: userID, OrderID: orderID, Kind: kind,
		Asset: asset, Amount: amount,
		BalanceBefore: r.available, BalanceAfter: r.available + amount,
		Description: reason, CreatedAt: time.Now(),
	}
	return l.commit([]Entry{e}, func() { r.available += amount },
		[]balanceRef{{userID, asset, r}})
}

// Debit subtracts from available.
func (l *Ledger) Debit(userID, asset string, amount int64, kind EntryKind, orderID, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("debit amount must be positive: %d", amount)
	}
	r, m := l.getRow(userID, asset)
	m.Lock()
	defer m.Unlock()

	if r.available < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientAvailable, r.available, amount)
	}
	e := Entry{
		ID: l.nextEntryID(), UserID: userID, OrderID: orderID, Kind: kind,
		Asset: asset, Amount: -amount,
		BalanceBefore: r.available, BalanceAfter: r.available - amount,
		Description: reason, CreatedAt: time.Now(),
	}
	return l.commit([]Entry{e}, func() { r.available -= amount },
		[]balanceRef{{userID, asset, r}})
}

// Lock moves amount from available to locked, reserving it for an order.
func (l *Ledger) Lock(userID, asset string, amount int64, orderID string) error {
	if amount <= 0 {
		return fmt.Errorf("lock amount must be positive: %d", amount)
	}
	r, m := l.getRow(userID, asset)
	m.Lock()
	defer m.Unlock()

	if r.available < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientAvailable, r.available, amount)
	}
	e := Entry{
		ID: l.nextEntryID(), UserID: userID, OrderID: orderID, Kind: KindLock,
		Asset: asset, Amount: -amount,
		BalanceBefore: r.available, BalanceAfter: r.available - amount,
		Description: "order reservation", CreatedAt: time.Now(),
	}
	return l.commit([]Entry{e}, func() { r.available -= amount; r.locked += amount },
		[]balanceRef{{userID, asset, r}})
}

// Unlock is the reverse of Lock.
func (l *Ledger) Unlock(userID, asset string, amount int64, orderID string) error {
	if amount <= 0 {
		return fmt.Errorf("unlock amount must be positive: %d", amount)
	}
	r, m := l.getRow(userID, asset)
	m.Lock()
	defer m.Unlock()

	if r.locked < amount {
		return fmt.Errorf("%w: have %d locked, need %d", ErrInsufficientLocked, r.locked, amount)
	}
	e := Entry{
		ID: l.nextEntryID(), UserID: userID, OrderID: orderID, Kind: KindUnlock,
		Asset: asset, Amount: amount,
		BalanceBefore: r.available, BalanceAfter: r.available + amount,
		Description: "reservation released", CreatedAt: time.Now(),
	}
	return l.commit([]Entry{e}, func() { r.available += amount; r.locked -= amount },
		[]balanceRef{{userID, asset, r}})
}

// Transfer moves available funds between two users atomically.
func (l *Ledger) Transfer(fromID, toID, asset string, amount int64, reason string) error {
	if amount <= 0 {
		return fmt.Errorf("transfer amount must be positive: %d", amount)
	}
	rows, unlock := l.lockAll([][2]string{{fromID, asset}, {toID, asset}})
	defer unlock()

	from := rows[key(fromID, asset)]
	to := rows[key(toID, asset)]
	if from.available < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientAvailable, from.available, amount)
	}
	now := time.Now()
	entries := []Entry{
		{ID: l.nextEntryID(), UserID: fromID, Kind: KindWithdrawal, Asset: asset, Amount: -amount,
			BalanceBefore: from.available, BalanceAfter: from.available - amount,
			Description: reason, CreatedAt: now},
		{ID: l.nextEntryID(), UserID: toID, Kind: KindDeposit, Asset: asset, Amount: amount,
			BalanceBefore: to.available, BalanceAfter: to.available + amount,
			Description: reason, CreatedAt: now},
	}
	return l.commit(entries, func() { from.available -= amount; to.available += amount },
		[]balanceRef{{fromID, asset, from}, {toID, asset, to}})
}

// Balance returns the current state of one (user, asset) row.
func (l *Ledger) Balance(userID, asset string) Balance {
	l.mu.RLock()
	r, ok := l.rows[key(userID, asset)]
	m := l.locks[key(userID, asset)]
	l.mu.RUnlock()
	if !ok {
		return Balance{Asset: asset}
	}
	m.Lock()
	defer m.Unlock()
	return Balance{Asset: asset, Available: r.available, Locked: r.locked}
}

// Balances returns every non-empty balance a user holds.
func (l *Ledger) Balances(userID string) []Balance {
	prefix := userID + "\x00"
	l.mu.RLock()
	keys := make([]string, 0)
	for k := range l.rows {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	l.mu.RUnlock()
	sort.Strings(keys)

	out := make([]Balance, 0, len(keys))
	for _, k := range keys {
		asset := k[len(prefix):]
		b := l.Balance(userID, asset)
		if b.Available != 0 || b.Locked != 0 {
			out = append(out, b)
		}
	}
	return out
}

// TotalsByAsset sums available+locked across all users per asset.
// Conservation checks in tests rely on this.
func (l *Ledger) TotalsByAsset() map[string]int64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	totals := make(map[string]int64)
	for k, r := range l.rows {
		for i := 0; i < len(k); i++ {
			if k[i] == '\x00' {
				totals[k[i+1:]] += r.available + r.locked
				break
			}
		}
	}
	return totals
}

// Restore seeds a balance row from persisted state at startup. Not for
// use once trading has begun.
func (l *Ledger) Restore(userID string, b Balance) {
	r, m := l.getRow(userID, b.Asset)
	m.Lock()
	defer m.Unlock()
	r.available = b.Available
	r.locked = b.Locked
}
