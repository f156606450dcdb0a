package lpstake

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"lukechampine.com/blake3"

	"lpstaking/core/events"
	"lpstaking/core/state"
	"lpstaking/core/types"
	"lpstaking/crypto"
	"lpstaking/native/bank"
	nativecommon "lpstaking/native/common"
	"lpstaking/observability"
)

// InstructionKind names an instruction accepted by the Processor.
type InstructionKind string

const (
	KindInitialize     InstructionKind = "initialize"
	KindDeposit        InstructionKind = "deposit"
	KindWithdraw       InstructionKind = "withdraw"
	KindStake          InstructionKind = "stake"
	KindUnstake        InstructionKind = "unstake"
	KindClaim          InstructionKind = "claim"
	KindFundVault      InstructionKind = "fund_vault"
	KindUpdateEmission InstructionKind = "update_emission"
	KindSetPaused      InstructionKind = "set_paused"
)

// Instruction is one externally submitted call. Pool is ignored by
// initialize, which derives the pool from Init.
type Instruction struct {
	Kind     InstructionKind
	Caller   crypto.Address
	Pool     crypto.Address
	Amount   uint64
	Init     *InitParams
	Emission *EmissionSchedule
	Paused   bool
}

// Receipt describes a committed instruction.
type Receipt struct {
	ID        string         `json:"id"`
	Kind      string         `json:"kind"`
	Pool      string         `json:"pool"`
	Caller    string         `json:"caller"`
	Timestamp uint64         `json:"timestamp"`
	Events    []*types.Event `json:"events"`
	Result    any            `json:"-"`
}

// Clock returns the current ledger time.
type Clock func() uint64

// UnixClock is the default clock in whole seconds.
func UnixClock() uint64 { return uint64(time.Now().Unix()) }

// Processor executes instructions one at a time against the state manager.
// An instruction either commits every write it made, together with its
// events, or leaves state and subscribers untouched.
type Processor struct {
	mu       sync.Mutex
	manager  *state.Manager
	store    *StateStore
	ledger   *bank.Ledger
	engine   *Engine
	clock    Clock
	sink     events.Emitter
	logger   *slog.Logger
	tracer   trace.Tracer
	executed metric.Int64Counter
}

// Option customises a Processor.
type Option func(*Processor)

// WithClock overrides the ledger clock.
func WithClock(clock Clock) Option {
	return func(p *Processor) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithSink receives committed events.
func WithSink(sink events.Emitter) Option {
	return func(p *Processor) { p.sink = sink }
}

// WithPauses installs a module-wide pause switch consulted by every user
// instruction.
func WithPauses(pauses nativecommon.PauseView) Option {
	return func(p *Processor) { p.engine.SetPauses(pauses) }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProcessor wires an engine, token ledger and record store over manager.
func NewProcessor(manager *state.Manager, opts ...Option) *Processor {
	store := NewStateStore(manager)
	ledger := bank.NewLedger(manager)
	p := &Processor{
		manager: manager,
		store:   store,
		ledger:  ledger,
		engine:  NewEngine(store, ledger),
		clock:   UnixClock,
		sink:    events.NoopEmitter{},
		logger:  slog.Default(),
		tracer:  otel.Tracer("lpstaking/lpstake"),
	}
	for _, opt := range opts {
		opt(p)
	}
	counter, err := otel.Meter("lpstaking/lpstake").Int64Counter("lpstake.instructions",
		metric.WithDescription("Instructions executed by the processor."))
	if err == nil {
		p.executed = counter
	}
	return p
}

// Ledger exposes the token ledger for read-only balance queries.
func (p *Processor) Ledger() *bank.Ledger { return p.ledger }

// Execute applies ins atomically and returns its receipt.
func (p *Processor) Execute(ctx context.Context, ins Instruction) (*Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, span := p.tracer.Start(ctx, "lpstake."+string(ins.Kind), trace.WithAttributes(
		attribute.String("lpstake.instruction", string(ins.Kind)),
		attribute.String("lpstake.caller", ins.Caller.String()),
	))
	defer span.End()
	start := time.Now()

	now := p.clock()
	buf := &events.Buffer{}
	p.engine.SetNow(now)
	p.engine.SetEmitter(buf)
	defer p.engine.SetEmitter(nil)

	pool, result, err := p.apply(ins)
	var seq *big.Int
	if err == nil {
		seq, err = p.bumpSequence()
	}
	var (
		receipt   *Receipt
		committed []events.Event
	)
	if err == nil {
		committed = buf.Drain()
		receipt = newReceipt(ins, pool, now, seq, committed, result)
		err = p.manager.Commit()
	}
	code := ErrorCode(err)
	p.record(ctx, ins.Kind, code, time.Since(start))
	if err != nil {
		p.manager.Discard()
		buf.Drain()
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
		p.logger.Warn("lpstake instruction rejected",
			slog.String("instruction", string(ins.Kind)),
			slog.String("pool", ins.Pool.String()),
			slog.String("caller", ins.Caller.String()),
			slog.String("outcome", code),
			slog.String("error", err.Error()))
		return nil, err
	}

	for _, evt := range committed {
		p.sink.Emit(evt)
	}
	span.SetAttributes(attribute.String("lpstake.receipt", receipt.ID))
	p.logger.Info("lpstake instruction applied",
		slog.String("instruction", string(ins.Kind)),
		slog.String("pool", receipt.Pool),
		slog.String("caller", receipt.Caller),
		slog.String("receipt", receipt.ID),
		slog.String("outcome", orOK(code)))
	p.publishGauges(pool)
	return receipt, nil
}

func (p *Processor) apply(ins Instruction) (crypto.Address, any, error) {
	e := p.engine
	switch ins.Kind {
	case KindInitialize:
		if ins.Init == nil {
			return crypto.Address{}, nil, fmt.Errorf("%w: initialize requires parameters", ErrInvalidEmissionType)
		}
		pool, err := e.Initialize(ins.Caller, *ins.Init)
		if err != nil {
			return crypto.Address{}, nil, err
		}
		return pool.Address, pool, nil
	case KindDeposit:
		res, err := e.Deposit(ins.Caller, ins.Pool, ins.Amount)
		return ins.Pool, res, err
	case KindWithdraw:
		res, err := e.Withdraw(ins.Caller, ins.Pool, ins.Amount)
		return ins.Pool, res, err
	case KindStake:
		res, err := e.Stake(ins.Caller, ins.Pool, ins.Amount)
		return ins.Pool, res, err
	case KindUnstake:
		res, err := e.Unstake(ins.Caller, ins.Pool, ins.Amount)
		return ins.Pool, res, err
	case KindClaim:
		res, err := e.Claim(ins.Caller, ins.Pool)
		return ins.Pool, res, err
	case KindFundVault:
		res, err := e.FundVault(ins.Caller, ins.Pool, ins.Amount)
		return ins.Pool, res, err
	case KindUpdateEmission:
		if ins.Emission == nil {
			return ins.Pool, nil, ErrInvalidEmissionType
		}
		res, err := e.UpdateEmission(ins.Caller, ins.Pool, *ins.Emission)
		return ins.Pool, res, err
	case KindSetPaused:
		err := e.SetPaused(ins.Caller, ins.Pool, ins.Paused)
		return ins.Pool, nil, err
	default:
		return ins.Pool, nil, fmt.Errorf("lpstake: unknown instruction %q", ins.Kind)
	}
}

var sequenceKey = []byte("lpstake/sequence")

// bumpSequence advances the persisted instruction sequence and returns the
// new value.
func (p *Processor) bumpSequence() (*big.Int, error) {
	seq := new(big.Int)
	if _, err := p.manager.KVGet(sequenceKey, seq); err != nil {
		return nil, fmt.Errorf("lpstake: read sequence: %w", err)
	}
	seq.Add(seq, big.NewInt(1))
	if err := p.manager.KVPut(sequenceKey, seq); err != nil {
		return nil, fmt.Errorf("lpstake: write sequence: %w", err)
	}
	return seq, nil
}

// newReceipt derives a receipt ID from the instruction and the ledger
// sequence so identical instructions still receive distinct IDs.
func newReceipt(ins Instruction, pool crypto.Address, now uint64, seq *big.Int, evts []events.Event, result any) *Receipt {
	h := blake3.New(32, nil)
	h.Write([]byte(ins.Kind))
	h.Write(pool.Bytes())
	h.Write(ins.Caller.Bytes())
	var scratch [8]byte
	binary.BigEndian.PutUint64(scratch[:], ins.Amount)
	h.Write(scratch[:])
	binary.BigEndian.PutUint64(scratch[:], now)
	h.Write(scratch[:])
	h.Write(seq.Bytes())

	wire := make([]*types.Event, 0, len(evts))
	for _, evt := range evts {
		wire = append(wire, events.ToWire(evt))
	}
	return &Receipt{
		ID:        hex.EncodeToString(h.Sum(nil)),
		Kind:      string(ins.Kind),
		Pool:      pool.String(),
		Caller:    ins.Caller.String(),
		Timestamp: now,
		Events:    wire,
		Result:    result,
	}
}

func (p *Processor) record(ctx context.Context, kind InstructionKind, code string, d time.Duration) {
	observability.LPStake().ObserveInstruction(string(kind), code, d)
	if p.executed != nil {
		p.executed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("instruction", string(kind)),
			attribute.String("outcome", orOK(code)),
		))
	}
}

func orOK(code string) string {
	if code == "" {
		return "ok"
	}
	return code
}

func (p *Processor) publishGauges(pool crypto.Address) {
	if pool.IsZero() {
		return
	}
	record, err := p.store.GetPool(pool)
	if err != nil || record == nil {
		return
	}
	snapshot := observability.PoolSnapshot{
		Pool:           pool.String(),
		TotalStaked:    record.TotalStaked,
		TotalDeposited: record.TotalDeposited,
	}
	if cfg, err := p.store.GetRewardConfig(pool); err == nil && cfg != nil {
		acc, _ := new(big.Float).Quo(new(big.Float).SetInt(cfg.AccRewardPerShare.ToBig()),
			new(big.Float).SetUint64(RewardScale)).Float64()
		snapshot.AccRewardPerShare = acc
	}
	if bal, err := p.ledger.Balance(record.Vault, record.NativeAsset); err == nil {
		snapshot.VaultBalance = bal
	}
	observability.LPStake().RecordPool(snapshot)
}
