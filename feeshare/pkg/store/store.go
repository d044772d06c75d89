// Package store persists launched assets and the fee event audit trail.
package store

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const maxAgentAssets = 1000

type AssetStatus string

const (
	AssetStatusActive    AssetStatus = "active"
	AssetStatusGraduated AssetStatus = "graduated"
	AssetStatusFailed    AssetStatus = "failed"
)

// Asset is a launched token tracked by the platform.
type Asset struct {
	ID             uuid.UUID   `json:"id"`
	Mint           string      `json:"mint_address"`
	Symbol         string      `json:"symbol"`
	AgentWallet    string      `json:"agent_wallet"`
	BuybackEnabled bool        `json:"buyback_enabled"`
	Status         AssetStatus `json:"status"`
	LaunchedAt     time.Time   `json:"launched_at"`
}

type EventKind string

const (
	EventKindSetup        EventKind = "setup"
	EventKindDistribution EventKind = "distribution"
	EventKindBuyback      EventKind = "buyback"
)

// Event is one fee operation outcome in the audit trail.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Mint       string    `json:"mint_address"`
	Kind       EventKind `json:"kind"`
	Success    bool      `json:"success"`
	Signatures []string  `json:"signatures"`
	Lamports   uint64    `json:"lamports"`
	Tokens     uint64    `json:"tokens"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &Store{pool: pool}, nil
}

// CreateAsset records a launched asset. Launch itself happens elsewhere;
// this is used by tooling and tests.
func (s *Store) CreateAsset(ctx context.Context, a *Asset) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Status == "" {
		a.Status = AssetStatusActive
	}
	if a.LaunchedAt.IsZero() {
		a.LaunchedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tokens (id, mint_address, symbol, agent_wallet, buyback_enabled, status, launched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.Mint, a.Symbol, a.AgentWallet, a.BuybackEnabled, string(a.Status), a.LaunchedAt)
	if err != nil {
		return fmt.Errorf("failed to insert asset %s: %w", a.Mint, err)
	}
	return nil
}

// ListActiveAssets returns active assets in launch order.
func (s *Store) ListActiveAssets(ctx context.Context) ([]Asset, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, mint_address, symbol, agent_wallet, buyback_enabled, status, launched_at
		FROM tokens
		WHERE status = $1
		ORDER BY launched_at ASC, id ASC
	`, string(AssetStatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to list active assets: %w", err)
	}
	defer rows.Close()

	assets := []Asset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assets: %w", err)
	}
	return assets, nil
}

// FindAssetByMint returns the asset for mint, or nil if none is recorded.
func (s *Store) FindAssetByMint(ctx context.Context, mint string) (*Asset, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, mint_address, symbol, agent_wallet, buyback_enabled, status, launched_at
		FROM tokens
		WHERE mint_address = $1
	`, mint)
	a, err := scanAsset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find asset %s: %w", mint, err)
	}
	return a, nil
}

// ListAssetsByAgent returns every asset launched by agent, whatever its
// status, in launch order.
func (s *Store) ListAssetsByAgent(ctx context.Context, agent string) ([]Asset, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, mint_address, symbol, agent_wallet, buyback_enabled, status, launched_at
		FROM tokens
		WHERE agent_wallet = $1
		ORDER BY launched_at ASC, id ASC
		LIMIT $2
	`, agent, maxAgentAssets)
	if err != nil {
		return nil, fmt.Errorf("failed to list assets for agent %s: %w", agent, err)
	}
	defer rows.Close()

	assets := []Asset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate assets: %w", err)
	}
	return assets, nil
}

// MarkGraduated moves an asset off the active list.
func (s *Store) MarkGraduated(ctx context.Context, mint string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tokens SET status = $2, updated_at = NOW()
		WHERE mint_address = $1
	`, mint, string(AssetStatusGraduated))
	if err != nil {
		return fmt.Errorf("failed to mark %s graduated: %w", mint, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("failed to mark %s graduated: asset not found", mint)
	}
	return nil
}

// AppendEvent writes ev to the audit trail, assigning an id and timestamp
// when unset.
func (s *Store) AppendEvent(ctx context.Context, ev Event) error {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	if ev.Signatures == nil {
		ev.Signatures = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fee_events (id, mint_address, kind, success, signatures, lamports, tokens, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ev.ID, ev.Mint, string(ev.Kind), ev.Success, ev.Signatures, clampInt64(ev.Lamports), clampInt64(ev.Tokens), ev.Error, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to append %s event for %s: %w", ev.Kind, ev.Mint, err)
	}
	return nil
}

// RecentEvents returns up to limit events for mint, newest first. An empty
// mint returns events for all assets.
func (s *Store) RecentEvents(ctx context.Context, mint string, limit int) ([]Event, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, mint_address, kind, success, signatures, lamports, tokens, error, created_at
		FROM fee_events
		WHERE $1 = '' OR mint_address = $1
		ORDER BY created_at DESC, id ASC
		LIMIT $2
	`, mint, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var (
			ev       Event
			kind     string
			lamports int64
			tokens   int64
		)
		if err := rows.Scan(&ev.ID, &ev.Mint, &kind, &ev.Success, &ev.Signatures, &lamports, &tokens, &ev.Error, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Kind = EventKind(kind)
		ev.Lamports = uint64(lamports)
		ev.Tokens = uint64(tokens)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}
	return events, nil
}

func scanAsset(row pgx.Row) (*Asset, error) {
	var (
		a      Asset
		status string
	)
	if err := row.Scan(&a.ID, &a.Mint, &a.Symbol, &a.AgentWallet, &a.BuybackEnabled, &status, &a.LaunchedAt); err != nil {
		return nil, err
	}
	a.Status = AssetStatus(status)
	return &a, nil
}

func clampInt64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}

// NoopAuditor discards events. It is used when no database is configured.
type NoopAuditor struct{}

func (NoopAuditor) AppendEvent(context.Context, Event) error { return nil }
