package lpstake

import (
	"context"
	"fmt"

	"lpstaking/crypto"
)

// Pool returns the stored pool record.
func (p *Processor) Pool(addr crypto.Address) (*PoolState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engine.SetNow(p.clock())
	return p.engine.Pool(addr)
}

// Pools lists every initialised pool.
func (p *Processor) Pools() ([]*PoolState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	addrs, err := p.store.Pools()
	if err != nil {
		return nil, err
	}
	out := make([]*PoolState, 0, len(addrs))
	for _, addr := range addrs {
		pool, err := p.store.GetPool(addr)
		if err != nil {
			return nil, err
		}
		if pool != nil {
			out = append(out, pool)
		}
	}
	return out, nil
}

// Rewards returns the pool's accumulator projected to the current clock.
func (p *Processor) Rewards(pool crypto.Address) (*RewardConfig, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engine.SetNow(p.clock())
	return p.engine.RewardConfig(pool)
}

// Position returns owner's position with pending reward projected to the
// current clock.
func (p *Processor) Position(owner, pool crypto.Address) (*UserPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engine.SetNow(p.clock())
	return p.engine.Position(owner, pool)
}

// Positions returns every position in pool, projected to the current clock.
func (p *Processor) Positions(pool crypto.Address) ([]*UserPosition, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engine.SetNow(p.clock())
	owners, err := p.store.Owners(pool)
	if err != nil {
		return nil, err
	}
	out := make([]*UserPosition, 0, len(owners))
	for _, owner := range owners {
		pos, err := p.engine.Position(owner, pool)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, nil
}

// Vault reports the pool's reward vault.
func (p *Processor) Vault(pool crypto.Address) (*VaultState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.engine.Vault(pool)
}

// Balance returns holder's balance of asset.
func (p *Processor) Balance(holder crypto.Address, asset string) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledger.Balance(holder, asset)
}

// Decimals returns the display precision of asset.
func (p *Processor) Decimals(asset string) (uint8, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	meta, err := p.ledger.Token(asset)
	if err != nil {
		return 0, tokenErr(err)
	}
	return meta.Decimals, nil
}

// ApplyGenesis registers tokens, credits opening balances, initialises pools
// and funds their vaults in one atomic commit. Tokens that already exist are
// left alone so a restarted daemon can replay the same file; pools that
// already exist are skipped for the same reason.
func (p *Processor) ApplyGenesis(ctx context.Context, cfg *Config) ([]crypto.Address, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, span := p.tracer.Start(ctx, "lpstake.genesis")
	defer span.End()

	pools, err := p.applyGenesis(cfg)
	if err != nil {
		p.manager.Discard()
		return nil, err
	}
	if err := p.manager.Commit(); err != nil {
		p.manager.Discard()
		return nil, err
	}
	return pools, nil
}

func (p *Processor) applyGenesis(cfg *Config) ([]crypto.Address, error) {
	p.engine.SetNow(p.clock())
	p.engine.SetEmitter(nil)

	for _, t := range cfg.Tokens {
		if p.ledger.Exists(t.Symbol) {
			continue
		}
		if err := p.ledger.RegisterToken(t.Symbol, t.Name, t.Decimals, crypto.Address{}); err != nil {
			return nil, fmt.Errorf("genesis token %s: %w", t.Symbol, err)
		}
	}
	declared := make(map[string]bool)
	for _, t := range cfg.Tokens {
		declared[normalizeAsset(t.Symbol)] = true
	}

	var out []crypto.Address
	for i, pc := range cfg.Pools {
		authority, err := crypto.ParseAddress(pc.Authority)
		if err != nil {
			return nil, err
		}
		addr := PoolAddress(pc.CollateralAsset, pc.ShareAsset)
		existing, err := p.store.GetPool(addr)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			out = append(out, addr)
			continue
		}
		params, err := pc.InitParams()
		if err != nil {
			return nil, fmt.Errorf("genesis pool %d: %w", i, err)
		}
		pool, err := p.engine.Initialize(authority, params)
		if err != nil {
			return nil, fmt.Errorf("genesis pool %d: %w", i, err)
		}
		if pc.VaultFunding > 0 {
			if err := p.ledger.Mint(pool.NativeAsset, crypto.Address{}, pool.Vault, pc.VaultFunding); err != nil {
				return nil, fmt.Errorf("genesis pool %d vault: %w", i, err)
			}
		}
		out = append(out, pool.Address)
	}

	// Opening balances are credited once per declared token, so replaying the
	// file does not mint twice.
	for i, b := range cfg.Balances {
		if !declared[normalizeAsset(b.Asset)] || p.tokenSeeded(b.Asset) {
			continue
		}
		holder, err := crypto.ParseAddress(b.Address)
		if err != nil {
			return nil, err
		}
		if err := p.ledger.Mint(b.Asset, crypto.Address{}, holder, b.Amount); err != nil {
			return nil, fmt.Errorf("genesis balance %d: %w", i, err)
		}
	}
	for asset := range declared {
		if err := p.manager.KVPut(seededKey(asset), true); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (p *Processor) tokenSeeded(asset string) bool {
	var seeded bool
	ok, err := p.manager.KVGet(seededKey(asset), &seeded)
	return err == nil && ok && seeded
}

func seededKey(asset string) []byte {
	return []byte("lpstake/genesis/seeded/" + normalizeAsset(asset))
}
