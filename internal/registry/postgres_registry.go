package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SignatureStore abstracts DB queries for testability.
type SignatureStore interface {
	LoadSignatures(ctx context.Context) ([]signatureRow, error)
	LoadOperations(ctx context.Context) ([]operationRow, error)
	LoadAliases(ctx context.Context) ([]aliasRow, error)
}

type signatureRow struct {
	ToolName    string
	Description sql.NullString
	Parameters  string // JSONB array as string
}

type operationRow struct {
	OperationID string
	ToolName    string
}

type aliasRow struct {
	ToolName      string
	InboundName   string
	CanonicalName string
}

// sqlSignatureStore is the real implementation using *sql.DB.
type sqlSignatureStore struct {
	db *sql.DB
}

func (s *sqlSignatureStore) LoadSignatures(ctx context.Context) ([]signatureRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT tool_name, description, parameters
		FROM tool_signatures
		ORDER BY position, tool_name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []signatureRow
	for rows.Next() {
		var r signatureRow
		if err := rows.Scan(&r.ToolName, &r.Description, &r.Parameters); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlSignatureStore) LoadOperations(ctx context.Context) ([]operationRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT operation_id, tool_name FROM tool_operations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []operationRow
	for rows.Next() {
		var r operationRow
		if err := rows.Scan(&r.OperationID, &r.ToolName); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqlSignatureStore) LoadAliases(ctx context.Context) ([]aliasRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT tool_name, inbound_name, canonical_name FROM tool_parameter_aliases`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []aliasRow
	for rows.Next() {
		var r aliasRow
		if err := rows.Scan(&r.ToolName, &r.InboundName, &r.CanonicalName); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// PostgresLoaderConfig configures LoadPostgres.
type PostgresLoaderConfig struct {
	DB      *sql.DB
	Version string
	Timeout time.Duration
	Logger  *zap.Logger
}

// LoadPostgres reads the tool_signatures, tool_operations and
// tool_parameter_aliases tables once and builds a Catalog from them.
func LoadPostgres(ctx context.Context, cfg PostgresLoaderConfig) (*Catalog, error) {
	return loadFromStore(ctx, &sqlSignatureStore{db: cfg.DB}, cfg)
}

func loadFromStore(ctx context.Context, store SignatureStore, cfg PostgresLoaderConfig) (*Catalog, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	sigRows, err := store.LoadSignatures(ctx)
	if err != nil {
		return nil, fmt.Errorf("LoadPostgres: signatures: %w", err)
	}
	opRows, err := store.LoadOperations(ctx)
	if err != nil {
		return nil, fmt.Errorf("LoadPostgres: operations: %w", err)
	}
	aliasRows, err := store.LoadAliases(ctx)
	if err != nil {
		return nil, fmt.Errorf("LoadPostgres: aliases: %w", err)
	}

	spec := CatalogSpec{
		Version:    cfg.Version,
		Operations: make(map[string]string, len(opRows)),
		Aliases:    make(map[string]map[string]string),
	}
	for _, row := range sigRows {
		sig, err := parseSignatureRow(row)
		if err != nil {
			return nil, fmt.Errorf("LoadPostgres: %w", err)
		}
		spec.Tools = append(spec.Tools, sig)
	}
	for _, row := range opRows {
		spec.Operations[row.OperationID] = row.ToolName
	}
	for _, row := range aliasRows {
		if spec.Aliases[row.ToolName] == nil {
			spec.Aliases[row.ToolName] = make(map[string]string)
		}
		spec.Aliases[row.ToolName][row.InboundName] = row.CanonicalName
	}

	c, err := NewCatalog(spec)
	if err != nil {
		return nil, fmt.Errorf("LoadPostgres: %w", err)
	}
	logger.Info("tool registry loaded from postgres",
		zap.String("version", cfg.Version),
		zap.Int("tools", len(spec.Tools)),
		zap.Int("operations", len(spec.Operations)),
	)
	return c, nil
}

func parseSignatureRow(row signatureRow) (ToolSignature, error) {
	doc := toolDoc{Name: row.ToolName}
	if row.Description.Valid {
		doc.Description = row.Description.String
	}

	// Parse parameters (JSONB array)
	if row.Parameters != "" && row.Parameters != "[]" {
		params, err := decodeParamsJSON([]byte(row.Parameters))
		if err != nil {
			return ToolSignature{}, fmt.Errorf("parseSignatureRow %s: parameters: %w", row.ToolName, err)
		}
		doc.Parameters = params
	}
	return doc.signature()
}
