package lpstake

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"lpstaking/core/events"
	"lpstaking/crypto"
	"lpstaking/native/bank"
	nativecommon "lpstaking/native/common"
)

const moduleName = "lpstake"

// DefaultMinDeposit is the smallest collateral amount accepted by Deposit.
const DefaultMinDeposit uint64 = 1_000_000

type engineState interface {
	GetPool(addr crypto.Address) (*PoolState, error)
	PutPool(pool *PoolState) error
	GetRewardConfig(pool crypto.Address) (*RewardConfig, error)
	PutRewardConfig(cfg *RewardConfig) error
	GetPosition(owner, pool crypto.Address) (*UserPosition, error)
	PutPosition(pos *UserPosition) error
}

// tokenLedger is the fungible-token subsystem the engine moves funds through.
type tokenLedger interface {
	Exists(symbol string) bool
	RegisterToken(symbol, name string, decimals uint8, authority crypto.Address) error
	Balance(holder crypto.Address, symbol string) (uint64, error)
	Transfer(symbol string, from, to crypto.Address, amount uint64) error
	Mint(symbol string, signer, to crypto.Address, amount uint64) error
	Burn(symbol string, signer, from crypto.Address, amount uint64) error
}

// Engine applies pool accounting and reward instructions. It keeps no state
// of its own between calls; every record is loaded from and written back to
// the configured state, which is expected to discard partial writes when an
// instruction fails.
type Engine struct {
	state   engineState
	tokens  tokenLedger
	now     uint64
	pauses  nativecommon.PauseView
	emitter events.Emitter
}

// NewEngine constructs an engine over the supplied records and token ledger.
func NewEngine(state engineState, tokens tokenLedger) *Engine {
	return &Engine{state: state, tokens: tokens, emitter: events.NoopEmitter{}}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetTokens wires the engine to the token subsystem.
func (e *Engine) SetTokens(tokens tokenLedger) { e.tokens = tokens }

// SetNow sets the clock used by the next instruction.
func (e *Engine) SetNow(now uint64) { e.now = now }

// Now returns the configured clock.
func (e *Engine) Now() uint64 { return e.now }

// SetPauses installs a module-wide pause switch.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter routes engine events to emitter.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(evt)
	}
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.tokens == nil {
		return ErrNilState
	}
	return nil
}

// guard rejects user instructions when the module or the pool is paused.
func (e *Engine) guard(pool *PoolState) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if pool.Paused {
		return ErrModulePaused
	}
	return nil
}

func (e *Engine) loadPool(addr crypto.Address) (*PoolState, error) {
	pool, err := e.state.GetPool(addr)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, ErrPoolNotFound
	}
	return pool, nil
}

func (e *Engine) loadRewards(pool crypto.Address) (*RewardConfig, error) {
	cfg, err := e.state.GetRewardConfig(pool)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: reward config missing", ErrPoolNotFound)
	}
	return cfg, nil
}

// loadOrInitPosition returns the caller's position, creating an empty one
// on first use.
func (e *Engine) loadOrInitPosition(owner, pool crypto.Address) (*UserPosition, error) {
	pos, err := e.state.GetPosition(owner, pool)
	if err != nil {
		return nil, err
	}
	if pos != nil {
		return pos, nil
	}
	return &UserPosition{
		Address:    PositionAddress(owner, pool),
		Owner:      owner,
		Pool:       pool,
		RewardDebt: new(uint256.Int),
	}, nil
}

// syncLPBalance mirrors the owner's unstaked share balance into the position.
func (e *Engine) syncLPBalance(pool *PoolState, pos *UserPosition) error {
	bal, err := e.tokens.Balance(pos.Owner, pool.ShareAsset)
	if err != nil {
		return err
	}
	pos.LPBalance = bal
	return nil
}

// tokenErr maps token subsystem failures onto engine error kinds.
func tokenErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bank.ErrInsufficientFunds):
		return fmt.Errorf("%w: %v", ErrInsufficientBalance, err)
	case errors.Is(err, bank.ErrBalanceOverflow):
		return fmt.Errorf("%w: %v", ErrArithmeticOverflow, err)
	case errors.Is(err, bank.ErrUnknownToken):
		return fmt.Errorf("%w: %v", ErrUnknownAsset, err)
	default:
		return err
	}
}

// Initialize creates the pool record, its reward accumulator and vault, and
// registers the share token with the pool as its mint authority.
func (e *Engine) Initialize(authority crypto.Address, params InitParams) (*PoolState, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if authority.IsZero() {
		return nil, ErrUnauthorized
	}
	if err := params.Emission.Validate(); err != nil {
		return nil, err
	}
	collateral := normalizeAsset(params.CollateralAsset)
	share := normalizeAsset(params.ShareAsset)
	native := normalizeAsset(params.NativeAsset)
	if collateral == "" || share == "" || native == "" || collateral == share {
		return nil, fmt.Errorf("%w: collateral, share and native assets are required", ErrUnknownAsset)
	}
	if !e.tokens.Exists(collateral) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, collateral)
	}
	if !e.tokens.Exists(native) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAsset, native)
	}

	addr := PoolAddress(collateral, share)
	existing, err := e.state.GetPool(addr)
	if err != nil {
		return nil, err
	}
	if existing != nil || e.tokens.Exists(share) {
		return nil, ErrPoolExists
	}

	name := params.ShareName
	if name == "" {
		name = collateral + " pool share"
	}
	if err := e.tokens.RegisterToken(share, name, params.ShareDecimals, addr); err != nil {
		return nil, err
	}

	minDeposit := params.MinDeposit
	if minDeposit == 0 {
		minDeposit = DefaultMinDeposit
	}
	pool := &PoolState{
		Address:           addr,
		Authority:         authority,
		CollateralAsset:   collateral,
		ShareAsset:        share,
		NativeAsset:       native,
		CollateralAccount: CollateralAddress(addr),
		Vault:             VaultAddress(addr),
		MinDeposit:        minDeposit,
		CreatedAt:         e.now,
	}
	schedule := params.Emission
	if schedule.Type == EmissionBlockBased && schedule.StartTime == 0 {
		schedule.StartTime = e.now
	}
	cfg := &RewardConfig{
		Pool:              addr,
		Emission:          schedule,
		AccRewardPerShare: new(uint256.Int),
		LastUpdateTime:    e.now,
	}
	if err := e.state.PutPool(pool); err != nil {
		return nil, err
	}
	if err := e.state.PutRewardConfig(cfg); err != nil {
		return nil, err
	}
	e.emit(events.LPStakeInitialized{
		Pool:            addr,
		Authority:       authority,
		CollateralAsset: collateral,
		ShareAsset:      share,
		NativeAsset:     native,
		EmissionType:    schedule.Type.String(),
		Vault:           pool.Vault,
		Timestamp:       e.now,
	})
	return pool.Clone(), nil
}

// UpdateEmission swaps the pool's schedule. Rewards up to now are accrued
// under the previous schedule first.
func (e *Engine) UpdateEmission(caller, poolAddr crypto.Address, schedule EmissionSchedule) (*RewardConfig, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pool, err := e.loadPool(poolAddr)
	if err != nil {
		return nil, err
	}
	if !caller.Equal(pool.Authority) {
		return nil, ErrUnauthorized
	}
	if err := schedule.Validate(); err != nil {
		return nil, err
	}
	cfg, err := e.loadRewards(pool.Address)
	if err != nil {
		return nil, err
	}
	if err := advance(cfg, pool.TotalStaked, e.now); err != nil {
		return nil, err
	}
	if schedule.Type == EmissionBlockBased && schedule.StartTime == 0 {
		schedule.StartTime = e.now
	}
	cfg.Emission = schedule
	if err := e.state.PutRewardConfig(cfg); err != nil {
		return nil, err
	}
	e.emit(events.LPStakeEmissionUpdated{
		Pool:             pool.Address,
		EmissionType:     schedule.Type.String(),
		RatePerUnit:      schedule.RatePerUnit,
		InitialBlockRate: schedule.InitialBlockRate,
		DecayFactorBps:   schedule.DecayFactorBps,
		BlocksPerPeriod:  schedule.BlocksPerPeriod,
		Timestamp:        e.now,
	})
	return cfg.Clone(), nil
}

// SetPaused toggles the pool's pause flag. Only the authority may call it.
func (e *Engine) SetPaused(caller, poolAddr crypto.Address, paused bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	pool, err := e.loadPool(poolAddr)
	if err != nil {
		return err
	}
	if !caller.Equal(pool.Authority) {
		return ErrUnauthorized
	}
	if pool.Paused == paused {
		return nil
	}
	pool.Paused = paused
	if err := e.state.PutPool(pool); err != nil {
		return err
	}
	e.emit(events.LPStakePaused{Pool: pool.Address, Paused: paused, Timestamp: e.now})
	return nil
}

// Pool returns a copy of the pool record.
func (e *Engine) Pool(addr crypto.Address) (*PoolState, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	return e.loadPool(addr)
}

// RewardConfig returns the accumulator advanced to the engine clock without
// persisting the result.
func (e *Engine) RewardConfig(poolAddr crypto.Address) (*RewardConfig, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pool, err := e.loadPool(poolAddr)
	if err != nil {
		return nil, err
	}
	cfg, err := e.loadRewards(pool.Address)
	if err != nil {
		return nil, err
	}
	if err := advance(cfg, pool.TotalStaked, e.now); err != nil {
		return nil, err
	}
	return cfg, nil
}
