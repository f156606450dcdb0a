package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"lpstaking/crypto"
	"lpstaking/native/lpstake"
	"lpstaking/services/lpstake/indexer"
)

const maxBodyBytes = 1 << 16

type amountRequest struct {
	Amount string `json:"amount"`
}

type emissionRequest struct {
	Type             string `json:"type"`
	RatePerUnit      uint64 `json:"rate_per_unit"`
	InitialBlockRate uint64 `json:"initial_block_rate"`
	DecayFactorBps   uint64 `json:"decay_factor_bps"`
	BlocksPerPeriod  uint64 `json:"blocks_per_period"`
	StartTime        uint64 `json:"start_time"`
}

func (e emissionRequest) schedule() (lpstake.EmissionSchedule, error) {
	kind, err := lpstake.ParseEmissionType(e.Type)
	if err != nil {
		return lpstake.EmissionSchedule{}, err
	}
	return lpstake.EmissionSchedule{
		Type:             kind,
		RatePerUnit:      e.RatePerUnit,
		InitialBlockRate: e.InitialBlockRate,
		DecayFactorBps:   e.DecayFactorBps,
		BlocksPerPeriod:  e.BlocksPerPeriod,
		StartTime:        e.StartTime,
	}, nil
}

type initializeRequest struct {
	CollateralAsset string          `json:"collateral_asset"`
	ShareAsset      string          `json:"share_asset"`
	ShareName       string          `json:"share_name"`
	ShareDecimals   *uint8          `json:"share_decimals"`
	NativeAsset     string          `json:"native_asset"`
	MinDeposit      string          `json:"min_deposit"`
	Emission        emissionRequest `json:"emission"`
}

func decodeBody(r *http.Request, out any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// decimals is the precision lookup used by views; unknown assets fall back
// to the default genesis precision.
func (s *Server) decimals(asset string) uint8 {
	d, err := s.backend.Decimals(asset)
	if err != nil {
		return lpstake.DefaultDecimals
	}
	return d
}

func (s *Server) views() precision { return precision(s.decimals) }

func (s *Server) caller(w http.ResponseWriter, r *http.Request) (crypto.Address, bool) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication_required", "authentication required")
		return crypto.Address{}, false
	}
	return principal.Address, true
}

func (s *Server) addressParam(w http.ResponseWriter, r *http.Request, name string) (crypto.Address, bool) {
	addr, err := crypto.ParseAddress(chi.URLParam(r, name))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_address", "invalid "+name+" address")
		return crypto.Address{}, false
	}
	return addr, true
}

func (s *Server) loadPool(w http.ResponseWriter, r *http.Request) (*lpstake.PoolState, bool) {
	addr, ok := s.addressParam(w, r, "pool")
	if !ok {
		return nil, false
	}
	pool, err := s.backend.Pool(addr)
	if err != nil {
		writeEngineError(w, r, err)
		return nil, false
	}
	return pool, true
}

func (s *Server) execute(w http.ResponseWriter, r *http.Request, ins lpstake.Instruction, pool *lpstake.PoolState) {
	receipt, err := s.backend.Execute(r.Context(), ins)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	status := http.StatusOK
	if ins.Kind == lpstake.KindInitialize {
		status = http.StatusCreated
	}
	writeJSON(w, status, newReceiptView(receipt, s.views().result(receipt.Result, pool)))
}

// amountAsset picks the asset an instruction's amount is denominated in.
func amountAsset(kind lpstake.InstructionKind, pool *lpstake.PoolState) string {
	switch kind {
	case lpstake.KindDeposit:
		return pool.CollateralAsset
	case lpstake.KindFundVault:
		return pool.NativeAsset
	default:
		return pool.ShareAsset
	}
}

func (s *Server) amountInstruction(kind lpstake.InstructionKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, ok := s.caller(w, r)
		if !ok {
			return
		}
		pool, ok := s.loadPool(w, r)
		if !ok {
			return
		}
		var req amountRequest
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_payload", "invalid payload")
			return
		}
		amount, err := ParseAmount(req.Amount, s.decimals(amountAsset(kind, pool)))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_amount", err.Error())
			return
		}
		s.execute(w, r, lpstake.Instruction{Kind: kind, Caller: caller, Pool: pool.Address, Amount: amount}, pool)
	}
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	pool, ok := s.loadPool(w, r)
	if !ok {
		return
	}
	s.execute(w, r, lpstake.Instruction{Kind: lpstake.KindClaim, Caller: caller, Pool: pool.Address}, pool)
}

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	var req initializeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_payload", "invalid payload")
		return
	}
	schedule, err := req.Emission.schedule()
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	params := lpstake.InitParams{
		CollateralAsset: req.CollateralAsset,
		ShareAsset:      req.ShareAsset,
		ShareName:       req.ShareName,
		ShareDecimals:   s.decimals(req.CollateralAsset),
		NativeAsset:     req.NativeAsset,
		Emission:        schedule,
	}
	if req.ShareDecimals != nil {
		params.ShareDecimals = *req.ShareDecimals
	}
	if strings.TrimSpace(req.MinDeposit) != "" {
		minDeposit, err := ParseAmount(req.MinDeposit, s.decimals(req.CollateralAsset))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_amount", err.Error())
			return
		}
		params.MinDeposit = minDeposit
	}
	s.execute(w, r, lpstake.Instruction{Kind: lpstake.KindInitialize, Caller: caller, Init: &params}, nil)
}

func (s *Server) handleUpdateEmission(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	pool, ok := s.loadPool(w, r)
	if !ok {
		return
	}
	var req emissionRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_payload", "invalid payload")
		return
	}
	schedule, err := req.schedule()
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	s.execute(w, r, lpstake.Instruction{Kind: lpstake.KindUpdateEmission, Caller: caller, Pool: pool.Address, Emission: &schedule}, pool)
}

func (s *Server) handleSetPaused(w http.ResponseWriter, r *http.Request) {
	caller, ok := s.caller(w, r)
	if !ok {
		return
	}
	pool, ok := s.loadPool(w, r)
	if !ok {
		return
	}
	var req struct {
		Paused *bool `json:"paused"`
	}
	if err := decodeBody(r, &req); err != nil || req.Paused == nil {
		writeError(w, r, http.StatusBadRequest, "invalid_payload", "paused flag required")
		return
	}
	s.execute(w, r, lpstake.Instruction{Kind: lpstake.KindSetPaused, Caller: caller, Pool: pool.Address, Paused: *req.Paused}, pool)
}

func (s *Server) handleListPools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.backend.Pools()
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	views := s.views()
	out := make([]poolView, 0, len(pools))
	for _, pool := range pools {
		out = append(out, views.pool(pool, nil))
	}
	writeJSON(w, http.StatusOK, map[string]any{"pools": out})
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.loadPool(w, r)
	if !ok {
		return
	}
	rewards, err := s.backend.Rewards(pool.Address)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.views().pool(pool, rewards))
}

func (s *Server) handleGetVault(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.loadPool(w, r)
	if !ok {
		return
	}
	vault, err := s.backend.Vault(pool.Address)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.views().vault(vault))
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.loadPool(w, r)
	if !ok {
		return
	}
	owner, ok := s.addressParam(w, r, "owner")
	if !ok {
		return
	}
	pos, err := s.backend.Position(owner, pool.Address)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.views().position(pos, pool))
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	pool, ok := s.loadPool(w, r)
	if !ok {
		return
	}
	positions, err := s.backend.Positions(pool.Address)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	views := s.views()
	out := make([]positionView, 0, len(positions))
	for _, pos := range positions {
		out = append(out, views.position(pos, pool))
	}
	writeJSON(w, http.StatusOK, map[string]any{"positions": out})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, r, http.StatusServiceUnavailable, "indexer_disabled", "event history not configured")
		return
	}
	pool, ok := s.loadPool(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := indexer.Filter{
		Pool:    pool.Address.String(),
		Account: q.Get("account"),
		Type:    q.Get("type"),
	}
	if v := q.Get("after"); v != "" {
		after, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "invalid_cursor", "after must be a sequence number")
			return
		}
		filter.AfterSeq = after
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit <= 0 {
			writeError(w, r, http.StatusBadRequest, "invalid_limit", "limit must be positive")
			return
		}
		filter.Limit = limit
	}
	records, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list events failed", "error", err)
		writeError(w, r, http.StatusInternalServerError, "internal", "internal error")
		return
	}
	out := make([]eventView, 0, len(records))
	for _, rec := range records {
		view, err := newEventView(rec)
		if err != nil {
			continue
		}
		out = append(out, view)
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": out})
}
