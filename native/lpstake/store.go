package lpstake

import (
	"fmt"
	"math/big"

	"github.com/holiman/uint256"

	"lpstaking/core/state"
	"lpstaking/crypto"
)

// StateStore persists pool records through the state manager's KV space.
// Records are addressed by their derived address, so no separate lookup
// table is required except the pool and owner indexes used for listing.
type StateStore struct {
	manager *state.Manager
}

// NewStateStore wraps manager.
func NewStateStore(manager *state.Manager) *StateStore {
	return &StateStore{manager: manager}
}

type storedPool struct {
	Address           []byte
	Authority         []byte
	CollateralAsset   string
	ShareAsset        string
	NativeAsset       string
	CollateralAccount []byte
	Vault             []byte
	TotalDeposited    uint64
	TotalLpSupply     uint64
	TotalStaked       uint64
	MinDeposit        uint64
	Paused            bool
	CreatedAt         uint64
}

func newStoredPool(p *PoolState) *storedPool {
	return &storedPool{
		Address:           p.Address.Bytes(),
		Authority:         p.Authority.Bytes(),
		CollateralAsset:   p.CollateralAsset,
		ShareAsset:        p.ShareAsset,
		NativeAsset:       p.NativeAsset,
		CollateralAccount: p.CollateralAccount.Bytes(),
		Vault:             p.Vault.Bytes(),
		TotalDeposited:    p.TotalDeposited,
		TotalLpSupply:     p.TotalLpSupply,
		TotalStaked:       p.TotalStaked,
		MinDeposit:        p.MinDeposit,
		Paused:            p.Paused,
		CreatedAt:         p.CreatedAt,
	}
}

func (s *storedPool) toPool() *PoolState {
	return &PoolState{
		Address:           crypto.MustAddress(s.Address),
		Authority:         addressOrZero(s.Authority),
		CollateralAsset:   s.CollateralAsset,
		ShareAsset:        s.ShareAsset,
		NativeAsset:       s.NativeAsset,
		CollateralAccount: crypto.MustAddress(s.CollateralAccount),
		Vault:             crypto.MustAddress(s.Vault),
		TotalDeposited:    s.TotalDeposited,
		TotalLpSupply:     s.TotalLpSupply,
		TotalStaked:       s.TotalStaked,
		MinDeposit:        s.MinDeposit,
		Paused:            s.Paused,
		CreatedAt:         s.CreatedAt,
	}
}

type storedRewardConfig struct {
	Pool              []byte
	EmissionType      uint8
	RatePerUnit       uint64
	InitialBlockRate  uint64
	DecayFactorBps    uint64
	BlocksPerPeriod   uint64
	StartTime         uint64
	AccRewardPerShare *big.Int
	LastUpdateTime    uint64
}

func newStoredRewardConfig(c *RewardConfig) *storedRewardConfig {
	return &storedRewardConfig{
		Pool:              c.Pool.Bytes(),
		EmissionType:      uint8(c.Emission.Type),
		RatePerUnit:       c.Emission.RatePerUnit,
		InitialBlockRate:  c.Emission.InitialBlockRate,
		DecayFactorBps:    c.Emission.DecayFactorBps,
		BlocksPerPeriod:   c.Emission.BlocksPerPeriod,
		StartTime:         c.Emission.StartTime,
		AccRewardPerShare: cloneU256(c.AccRewardPerShare).ToBig(),
		LastUpdateTime:    c.LastUpdateTime,
	}
}

func (s *storedRewardConfig) toRewardConfig() (*RewardConfig, error) {
	acc, err := fromBig(s.AccRewardPerShare)
	if err != nil {
		return nil, err
	}
	return &RewardConfig{
		Pool: crypto.MustAddress(s.Pool),
		Emission: EmissionSchedule{
			Type:             EmissionType(s.EmissionType),
			RatePerUnit:      s.RatePerUnit,
			InitialBlockRate: s.InitialBlockRate,
			DecayFactorBps:   s.DecayFactorBps,
			BlocksPerPeriod:  s.BlocksPerPeriod,
			StartTime:        s.StartTime,
		},
		AccRewardPerShare: acc,
		LastUpdateTime:    s.LastUpdateTime,
	}, nil
}

type storedPosition struct {
	Address       []byte
	Owner         []byte
	Pool          []byte
	LPBalance     uint64
	StakedAmount  uint64
	RewardDebt    *big.Int
	PendingReward uint64
	LastStakeTime uint64
	LastClaimTime uint64
}

func newStoredPosition(u *UserPosition) *storedPosition {
	return &storedPosition{
		Address:       u.Address.Bytes(),
		Owner:         u.Owner.Bytes(),
		Pool:          u.Pool.Bytes(),
		LPBalance:     u.LPBalance,
		StakedAmount:  u.StakedAmount,
		RewardDebt:    cloneU256(u.RewardDebt).ToBig(),
		PendingReward: u.PendingReward,
		LastStakeTime: u.LastStakeTime,
		LastClaimTime: u.LastClaimTime,
	}
}

func (s *storedPosition) toPosition() (*UserPosition, error) {
	debt, err := fromBig(s.RewardDebt)
	if err != nil {
		return nil, err
	}
	return &UserPosition{
		Address:       crypto.MustAddress(s.Address),
		Owner:         crypto.MustAddress(s.Owner),
		Pool:          crypto.MustAddress(s.Pool),
		LPBalance:     s.LPBalance,
		StakedAmount:  s.StakedAmount,
		RewardDebt:    debt,
		PendingReward: s.PendingReward,
		LastStakeTime: s.LastStakeTime,
		LastClaimTime: s.LastClaimTime,
	}, nil
}

func fromBig(v *big.Int) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	out, overflow := uint256.FromBig(v)
	if overflow {
		return nil, fmt.Errorf("lpstake: stored value exceeds 256 bits")
	}
	return out, nil
}

func addressOrZero(b []byte) crypto.Address {
	if len(b) == 0 {
		return crypto.Address{}
	}
	return crypto.MustAddress(b)
}

// GetPool returns nil when no pool lives at addr.
func (s *StateStore) GetPool(addr crypto.Address) (*PoolState, error) {
	var stored storedPool
	ok, err := s.manager.KVGet(recordKey("pool", addr), &stored)
	if err != nil {
		return nil, fmt.Errorf("load pool: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return stored.toPool(), nil
}

func (s *StateStore) PutPool(pool *PoolState) error {
	key := recordKey("pool", pool.Address)
	exists, err := s.manager.KVGet(key, nil)
	if err != nil {
		return err
	}
	if err := s.manager.KVPut(key, newStoredPool(pool)); err != nil {
		return fmt.Errorf("store pool: %w", err)
	}
	if exists {
		return nil
	}
	return s.manager.KVAppend(poolIndexKey, pool.Address.Bytes())
}

// Pools lists every initialised pool address in creation order.
func (s *StateStore) Pools() ([]crypto.Address, error) {
	var raw [][]byte
	if err := s.manager.KVGetList(poolIndexKey, &raw); err != nil {
		return nil, err
	}
	out := make([]crypto.Address, 0, len(raw))
	for _, b := range raw {
		out = append(out, crypto.MustAddress(b))
	}
	return out, nil
}

func (s *StateStore) GetRewardConfig(pool crypto.Address) (*RewardConfig, error) {
	var stored storedRewardConfig
	ok, err := s.manager.KVGet(recordKey("reward", RewardConfigAddress(pool)), &stored)
	if err != nil {
		return nil, fmt.Errorf("load reward config: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return stored.toRewardConfig()
}

func (s *StateStore) PutRewardConfig(cfg *RewardConfig) error {
	if err := s.manager.KVPut(recordKey("reward", RewardConfigAddress(cfg.Pool)), newStoredRewardConfig(cfg)); err != nil {
		return fmt.Errorf("store reward config: %w", err)
	}
	return nil
}

func (s *StateStore) GetPosition(owner, pool crypto.Address) (*UserPosition, error) {
	var stored storedPosition
	ok, err := s.manager.KVGet(recordKey("position", PositionAddress(owner, pool)), &stored)
	if err != nil {
		return nil, fmt.Errorf("load position: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return stored.toPosition()
}

func (s *StateStore) PutPosition(pos *UserPosition) error {
	key := recordKey("position", pos.Address)
	exists, err := s.manager.KVGet(key, nil)
	if err != nil {
		return err
	}
	if err := s.manager.KVPut(key, newStoredPosition(pos)); err != nil {
		return fmt.Errorf("store position: %w", err)
	}
	if exists {
		return nil
	}
	return s.manager.KVAppend(ownerIndexKey(pos.Pool), pos.Owner.Bytes())
}

// Owners lists every address holding a position in pool.
func (s *StateStore) Owners(pool crypto.Address) ([]crypto.Address, error) {
	var raw [][]byte
	if err := s.manager.KVGetList(ownerIndexKey(pool), &raw); err != nil {
		return nil, err
	}
	out := make([]crypto.Address, 0, len(raw))
	for _, b := range raw {
		out = append(out, crypto.MustAddress(b))
	}
	return out, nil
}

func ownerIndexKey(pool crypto.Address) []byte {
	return append(recordKey("owners", pool), '/')
}
