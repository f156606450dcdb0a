package bank

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"lpstaking/core/state"
	"lpstaking/crypto"
)

var (
	ErrUnknownToken      = errors.New("bank: token not registered")
	ErrInsufficientFunds = errors.New("bank: insufficient funds")
	ErrMintAuthority     = errors.New("bank: signer is not the mint authority")
	ErrMintPaused        = errors.New("bank: minting paused")
	ErrBalanceOverflow   = errors.New("bank: balance exceeds u64")
)

// Ledger moves fungible token balances held in the state manager. All
// amounts are u64 base units; balances are stored as big integers.
type Ledger struct {
	state *state.Manager
}

// NewLedger binds a ledger to the supplied state manager.
func NewLedger(manager *state.Manager) *Ledger {
	return &Ledger{state: manager}
}

// RegisterToken creates token metadata. A non-zero authority restricts Mint
// and Burn to that address.
func (l *Ledger) RegisterToken(symbol, name string, decimals uint8, authority crypto.Address) error {
	if err := l.state.RegisterToken(symbol, name, decimals); err != nil {
		return err
	}
	if authority.IsZero() {
		return nil
	}
	return l.state.SetTokenMintAuthority(symbol, authority.Bytes())
}

// Exists reports whether symbol is registered.
func (l *Ledger) Exists(symbol string) bool {
	return l.state.TokenExists(symbol)
}

// Token returns the metadata for symbol.
func (l *Ledger) Token(symbol string) (*state.TokenMetadata, error) {
	meta, err := l.state.Token(symbol)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, symbol)
	}
	return meta, nil
}

// Balance returns the holder's balance of symbol.
func (l *Ledger) Balance(holder crypto.Address, symbol string) (uint64, error) {
	bal, err := l.state.Balance(holder.Bytes(), symbol)
	if err != nil {
		return 0, err
	}
	if !bal.IsUint64() {
		return 0, ErrBalanceOverflow
	}
	return bal.Uint64(), nil
}

// Supply returns the total minted supply of symbol, tracked alongside the
// balances so mint and burn stay in lockstep with holder accounts.
func (l *Ledger) Supply(symbol string) (uint64, error) {
	var supply big.Int
	if _, err := l.state.KVGet(supplyKey(symbol), &supply); err != nil {
		return 0, err
	}
	if !supply.IsUint64() {
		return 0, ErrBalanceOverflow
	}
	return supply.Uint64(), nil
}

// Transfer moves amount of symbol from one holder to another.
func (l *Ledger) Transfer(symbol string, from, to crypto.Address, amount uint64) error {
	if amount == 0 {
		return nil
	}
	if _, err := l.Token(symbol); err != nil {
		return err
	}
	if err := l.debit(from, symbol, amount); err != nil {
		return err
	}
	return l.credit(to, symbol, amount)
}

// Mint creates amount of symbol for the recipient. The signer must match the
// token's mint authority when one is configured.
func (l *Ledger) Mint(symbol string, signer, to crypto.Address, amount uint64) error {
	meta, err := l.Token(symbol)
	if err != nil {
		return err
	}
	if meta.MintPaused {
		return ErrMintPaused
	}
	if err := checkAuthority(meta, signer); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	if err := l.credit(to, symbol, amount); err != nil {
		return err
	}
	return l.adjustSupply(symbol, new(big.Int).SetUint64(amount))
}

// Burn destroys amount of symbol held by from. The signer must match the mint
// authority when one is configured.
func (l *Ledger) Burn(symbol string, signer, from crypto.Address, amount uint64) error {
	meta, err := l.Token(symbol)
	if err != nil {
		return err
	}
	if err := checkAuthority(meta, signer); err != nil {
		return err
	}
	if amount == 0 {
		return nil
	}
	if err := l.debit(from, symbol, amount); err != nil {
		return err
	}
	return l.adjustSupply(symbol, new(big.Int).Neg(new(big.Int).SetUint64(amount)))
}

func checkAuthority(meta *state.TokenMetadata, signer crypto.Address) error {
	if len(meta.MintAuthority) == 0 {
		return nil
	}
	if !bytes.Equal(meta.MintAuthority, signer.Bytes()) {
		return ErrMintAuthority
	}
	return nil
}

func (l *Ledger) debit(holder crypto.Address, symbol string, amount uint64) error {
	bal, err := l.state.Balance(holder.Bytes(), symbol)
	if err != nil {
		return err
	}
	delta := new(big.Int).SetUint64(amount)
	if bal.Cmp(delta) < 0 {
		return fmt.Errorf("%w: %s has %s %s, needs %d", ErrInsufficientFunds, holder, bal, symbol, amount)
	}
	return l.state.SetBalance(holder.Bytes(), symbol, bal.Sub(bal, delta))
}

func (l *Ledger) credit(holder crypto.Address, symbol string, amount uint64) error {
	bal, err := l.state.Balance(holder.Bytes(), symbol)
	if err != nil {
		return err
	}
	bal.Add(bal, new(big.Int).SetUint64(amount))
	if !bal.IsUint64() {
		return ErrBalanceOverflow
	}
	return l.state.SetBalance(holder.Bytes(), symbol, bal)
}

func (l *Ledger) adjustSupply(symbol string, delta *big.Int) error {
	key := supplyKey(symbol)
	supply := new(big.Int)
	if _, err := l.state.KVGet(key, supply); err != nil {
		return err
	}
	supply.Add(supply, delta)
	if supply.Sign() < 0 {
		return fmt.Errorf("bank: %s supply underflow", symbol)
	}
	return l.state.KVPut(key, supply)
}

func supplyKey(symbol string) []byte {
	return []byte("bank/supply/" + normalize(symbol))
}

func normalize(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
