package market

import (
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"nftmarket/core/events"
	"nftmarket/core/types"
	"nftmarket/native/bank"
	"nftmarket/native/fees"
)

// StateTx is the transactional view of marketplace state used by a single
// engine call. Writes become visible to other transactions only after Commit.
type StateTx interface {
	bank.BalanceStore

	OrderGet(contract [20]byte, tokenID *big.Int) (*Order, bool, error)
	OrderPut(order *Order) error
	OrderDelete(contract [20]byte, tokenID *big.Int) error
	OrderList() ([]*Order, error)

	TokenFlagsGet(contract [20]byte) (TokenFlags, error)
	TokenFlagsPut(contract [20]byte, flags TokenFlags) error
	OrdersDisabledGet() (bool, error)
	OrdersDisabledPut(disabled bool) error

	FeeScheduleGet() (fees.Schedule, bool, error)
	FeeSchedulePut(schedule fees.Schedule) error
	AdminGet() ([20]byte, error)
	AdminPut(admin [20]byte) error

	Commit() error
	Discard()
}

// Store opens state transactions.
type Store interface {
	Begin() (StateTx, error)
}

// TokenContract is the subset of an ERC-721 style collection the marketplace
// relies on.
type TokenContract interface {
	OwnerOf(tokenID *big.Int) ([20]byte, error)
	IsApprovedForAll(owner, operator [20]byte) bool
	TransferFrom(operator, from, to [20]byte, tokenID *big.Int) error
}

// TokenResolver maps a contract address to its collection.
type TokenResolver interface {
	Contract(addr [20]byte) (TokenContract, error)
}

// ResolverFunc adapts a function into a TokenResolver.
type ResolverFunc func(addr [20]byte) (TokenContract, error)

func (f ResolverFunc) Contract(addr [20]byte) (TokenContract, error) { return f(addr) }

// Metrics receives operation outcomes. The prometheus implementation lives in
// observability/metrics.
type Metrics interface {
	ObserveOperation(op string, items int, err error, elapsed time.Duration)
	ObserveSettlement(status Status, price, fee *big.Int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, int, error, time.Duration) {}
func (noopMetrics) ObserveSettlement(Status, *big.Int, *big.Int) {}

// Engine runs the marketplace order book. Every call is serialised and runs
// inside one state transaction; token custody moves are applied only after
// every check in the call has passed and events are emitted after commit.
type Engine struct {
	mu      sync.Mutex
	address [20]byte
	store   Store
	tokens  TokenResolver
	emitter events.Emitter
	metrics Metrics
	logger  *slog.Logger
	nowFn   func() int64
}

// NewEngine creates an engine whose escrow account (token custodian and
// payment vault) is address.
func NewEngine(address [20]byte) *Engine {
	return &Engine{
		address: address,
		emitter: events.NoopEmitter{},
		metrics: noopMetrics{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// Address returns the escrow account of the marketplace.
func (e *Engine) Address() [20]byte { return e.address }

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(store Store) { e.store = store }

// SetTokenResolver configures how contract addresses resolve to collections.
func (e *Engine) SetTokenResolver(tokens TokenResolver) { e.tokens = tokens }

// SetEmitter configures the event emitter used by the engine. Passing nil resets
// the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetMetrics configures the metrics sink. Passing nil disables metrics.
func (e *Engine) SetMetrics(metrics Metrics) {
	if metrics == nil {
		e.metrics = noopMetrics{}
		return
	}
	e.metrics = metrics
}

// SetLogger configures the engine logger.
func (e *Engine) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	e.logger = logger
}

// SetNowFunc overrides the time source used by the engine. Primarily intended
// for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(marketEvent{evt: event})
}

// Initialize seeds the admin and the fee schedule when the state has none.
// A zero fee collector defaults to the admin. Existing values are left in
// place so restarting a node does not reset governance changes.
func (e *Engine) Initialize(admin [20]byte, schedule fees.Schedule) error {
	if admin == ([20]byte{}) {
		return newError(ErrValidation, "initialize", "admin address required")
	}
	if schedule.Collector == ([20]byte{}) {
		schedule.Collector = admin
	}
	if err := schedule.Validate(); err != nil {
		return wrapError(ErrValidation, "initialize", err, "invalid fee schedule")
	}
	return e.execute("initialize", 1, func(c *opContext) error {
		current, err := c.tx.AdminGet()
		if err != nil {
			return err
		}
		if current == ([20]byte{}) {
			if err := c.tx.AdminPut(admin); err != nil {
				return err
			}
		}
		if _, ok, err := c.tx.FeeScheduleGet(); err != nil {
			return err
		} else if !ok {
			return c.tx.FeeSchedulePut(schedule)
		}
		return nil
	})
}

type opContext struct {
	engine  *Engine
	op      string
	tx      StateTx
	ledger  *bank.Ledger
	now     int64
	moves   []custodyMove
	applied []custodyMove
	events  []*types.Event
	settled []settlement
}

type settlement struct {
	order  string
	status Status
	price  *big.Int
	fee    *big.Int
}

func (c *opContext) emit(evt *types.Event) {
	c.events = append(c.events, evt)
}

func (c *opContext) stage(move custodyMove) {
	c.moves = append(c.moves, move)
}

// execute runs fn inside one serialised state transaction.
func (e *Engine) execute(op string, items int, fn func(c *opContext) error) (err error) {
	if e == nil || e.store == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	defer func() { e.metrics.ObserveOperation(op, items, err, time.Since(start)) }()

	tx, err := e.store.Begin()
	if err != nil {
		return fmt.Errorf("market: %s: begin state transaction: %w", op, err)
	}
	c := &opContext{engine: e, op: op, tx: tx, ledger: bank.NewLedger(tx), now: e.now()}
	if err = fn(c); err == nil {
		err = c.applyMoves()
	}
	if err != nil {
		tx.Discard()
		e.logger.Debug("market: operation rejected", slog.String("op", op), slog.Any("error", err))
		return err
	}
	if err = tx.Commit(); err != nil {
		c.revertMoves()
		e.logger.Error("market: commit failed", slog.String("op", op), slog.Any("error", err))
		return fmt.Errorf("market: %s: commit: %w", op, err)
	}
	for _, s := range c.settled {
		e.metrics.ObserveSettlement(s.status, s.price, s.fee)
		e.logger.Info("market: order settled",
			slog.String("orderId", s.order),
			slog.String("status", s.status.String()),
			slog.String("price", s.price.String()),
			slog.String("fee", s.fee.String()))
	}
	for _, evt := range c.events {
		e.emit(evt)
	}
	return nil
}

// view runs a read-only callback against a fresh transaction.
func (e *Engine) view(fn func(tx StateTx) error) error {
	if e == nil || e.store == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	tx, err := e.store.Begin()
	if err != nil {
		return fmt.Errorf("market: begin state transaction: %w", err)
	}
	defer tx.Discard()
	return fn(tx)
}

func (c *opContext) requireAdmin(caller [20]byte) error {
	admin, err := c.tx.AdminGet()
	if err != nil {
		return err
	}
	if admin == ([20]byte{}) {
		return newError(ErrAuthorization, c.op, "admin not configured")
	}
	if caller != admin {
		return newError(ErrAuthorization, c.op, "caller %s is not the admin", formatAccount(caller))
	}
	return nil
}

func (c *opContext) feeSchedule() (fees.Schedule, error) {
	return loadFeeSchedule(c.tx)
}

func loadFeeSchedule(tx StateTx) (fees.Schedule, error) {
	schedule, ok, err := tx.FeeScheduleGet()
	if err != nil {
		return fees.Schedule{}, err
	}
	if ok {
		return schedule, nil
	}
	admin, err := tx.AdminGet()
	if err != nil {
		return fees.Schedule{}, err
	}
	return fees.Default(admin), nil
}

func (c *opContext) pay(from, to [20]byte, amount *big.Int, what string) error {
	if err := c.ledger.Transfer(from, to, amount); err != nil {
		return wrapError(ErrPayment, c.op, err, "%s", what)
	}
	return nil
}
