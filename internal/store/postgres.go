package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/diazhh/petroedge-sub001/internal/chain"
	"github.com/diazhh/petroedge-sub001/internal/types"
)

// PostgresStore implements ChainStore backed by PostgreSQL. The graph body
// (nodes, edges, scope, policy) lives in a JSONB column; the columns the
// engine filters and sorts on are first class.
type PostgresStore struct {
	db        *sql.DB
	validator *chain.Validator
}

// pgSchema creates the chains table. Idempotent.
const pgSchema = `
CREATE TABLE IF NOT EXISTS rule_chains (
	id         UUID PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	name       TEXT NOT NULL,
	status     TEXT NOT NULL,
	priority   INTEGER NOT NULL DEFAULT 0,
	body       JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS rule_chains_tenant_status_idx
	ON rule_chains (tenant_id, status);
`

// chainBody is the JSONB payload persisted next to the indexed columns.
type chainBody struct {
	Scope  chain.Scope           `json:"scope"`
	Policy chain.ExecutionPolicy `json:"policy"`
	Nodes  []*chain.Node         `json:"nodes"`
	Edges  []chain.Edge          `json:"edges"`
}

// NewPostgresStore opens a ChainStore over an existing database handle and
// ensures the schema exists.
func NewPostgresStore(ctx context.Context, db *sql.DB, validator *chain.Validator) (*PostgresStore, error) {
	if _, err := db.ExecContext(ctx, pgSchema); err != nil {
		return nil, types.WrapError(types.STORE_OPEN_FAILED, "ensure rule_chains schema", err)
	}
	return &PostgresStore{db: db, validator: validator}, nil
}

// Save implements ChainStore.
func (s *PostgresStore) Save(ctx context.Context, c *chain.Chain) error {
	if c == nil || c.ID.IsZero() {
		return types.NewError(types.STORE_QUERY_FAILED, "chain has no id")
	}

	body, err := json.Marshal(chainBody{
		Scope:  c.Scope,
		Policy: c.Policy,
		Nodes:  c.Nodes,
		Edges:  c.Edges,
	})
	if err != nil {
		return types.WrapError(types.STORE_QUERY_FAILED, "encode chain body", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO rule_chains (id, tenant_id, name, status, priority, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			status = EXCLUDED.status,
			priority = EXCLUDED.priority,
			body = EXCLUDED.body,
			updated_at = NOW()
	`, c.ID.String(), c.TenantID, c.Name, string(c.Status), c.Priority, body, c.CreatedAt)
	if err != nil {
		return types.WrapError(types.STORE_QUERY_FAILED, "save chain", err)
	}
	return nil
}

func (s *PostgresStore) scanChain(row interface{ Scan(...any) error }) (*chain.Chain, error) {
	var (
		c       chain.Chain
		rawID   string
		status  string
		rawBody []byte
	)
	err := row.Scan(&rawID, &c.TenantID, &c.Name, &status, &c.Priority, &rawBody, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, types.WrapError(types.STORE_QUERY_FAILED, "scan chain", err)
	}

	if c.ID, err = types.ParseID(rawID); err != nil {
		return nil, types.WrapError(types.STORE_QUERY_FAILED, "chain id", err)
	}
	if c.Status, err = chain.ParseStatus(status); err != nil {
		return nil, types.WrapError(types.STORE_QUERY_FAILED, "chain status", err)
	}

	var body chainBody
	if err := json.Unmarshal(rawBody, &body); err != nil {
		return nil, types.WrapError(types.STORE_QUERY_FAILED, "decode chain body", err)
	}
	c.Scope = body.Scope
	c.Policy = body.Policy
	c.Nodes = body.Nodes
	c.Edges = body.Edges
	return &c, nil
}

const selectColumns = `id, tenant_id, name, status, priority, body, created_at, updated_at`

// Get implements ChainStore.
func (s *PostgresStore) Get(ctx context.Context, id types.ID) (*chain.Chain, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM rule_chains WHERE id = $1`, id.String())
	return s.scanChain(row)
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]*chain.Chain, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, types.WrapError(types.STORE_QUERY_FAILED, "list chains", err)
	}
	defer rows.Close()

	var out []*chain.Chain
	for rows.Next() {
		c, err := s.scanChain(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, types.WrapError(types.STORE_QUERY_FAILED, "list chains", err)
	}
	return out, nil
}

// ListActive implements ChainStore.
func (s *PostgresStore) ListActive(ctx context.Context, tenantID string) ([]*chain.Chain, error) {
	return s.list(ctx,
		`SELECT `+selectColumns+` FROM rule_chains
		 WHERE tenant_id = $1 AND status = $2
		 ORDER BY priority DESC, created_at ASC`,
		tenantID, string(chain.StatusActive))
}

// List implements ChainStore.
func (s *PostgresStore) List(ctx context.Context, tenantID string) ([]*chain.Chain, error) {
	return s.list(ctx,
		`SELECT `+selectColumns+` FROM rule_chains
		 WHERE tenant_id = $1
		 ORDER BY priority DESC, created_at ASC`,
		tenantID)
}

// Activate implements ChainStore. The conflict check and the status flip run
// in one transaction so two concurrent activations cannot both succeed.
func (s *PostgresStore) Activate(ctx context.Context, id types.ID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.WrapError(types.STORE_QUERY_FAILED, "begin activation", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM rule_chains WHERE id = $1 FOR UPDATE`, id.String())
	c, err := s.scanChain(row)
	if err != nil {
		return err
	}

	if s.validator != nil {
		if res := s.validator.Validate(c); !res.Valid() {
			return res.Err()
		}
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM rule_chains
		 WHERE tenant_id = $1 AND status = $2 AND priority = $3 AND id <> $4 FOR UPDATE`,
		c.TenantID, string(chain.StatusActive), c.Priority, id.String())
	if err != nil {
		return types.WrapError(types.STORE_QUERY_FAILED, "load activation siblings", err)
	}
	var siblings []*chain.Chain
	for rows.Next() {
		sib, err := s.scanChain(rows)
		if err != nil {
			rows.Close()
			return err
		}
		siblings = append(siblings, sib)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return types.WrapError(types.STORE_QUERY_FAILED, "load activation siblings", err)
	}

	if conflict := activationConflict(c, siblings); conflict != nil {
		return types.NewError(types.CHAIN_ACTIVE_CONFLICT,
			fmt.Sprintf("chain %q is already active with priority %d and an overlapping scope",
				conflict.Name, conflict.Priority))
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE rule_chains SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(chain.StatusActive), id.String()); err != nil {
		return types.WrapError(types.STORE_QUERY_FAILED, "activate chain", err)
	}
	if err := tx.Commit(); err != nil {
		return types.WrapError(types.STORE_QUERY_FAILED, "commit activation", err)
	}
	return nil
}

// Disable implements ChainStore.
func (s *PostgresStore) Disable(ctx context.Context, id types.ID) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE rule_chains SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(chain.StatusDisabled), id.String())
	if err != nil {
		return types.WrapError(types.STORE_QUERY_FAILED, "disable chain", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete implements ChainStore.
func (s *PostgresStore) Delete(ctx context.Context, id types.ID) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM rule_chains WHERE id = $1`, id.String())
	if err != nil {
		return types.WrapError(types.STORE_QUERY_FAILED, "delete chain", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
