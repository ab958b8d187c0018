package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	pkgerrors "bindery/pkg/errors"
)

type Repository interface {
	Create(ctx context.Context, rule *Rule) error
	Get(ctx context.Context, id string) (*Rule, error)
	List(ctx context.Context) ([]Rule, error)
	ListEnabled(ctx context.Context) ([]Rule, error)
	Update(ctx context.Context, rule *Rule) error
	Delete(ctx context.Context, id string) error
}

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) Repository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, rule *Rule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	cfg, err := json.Marshal(rule.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal rule config: %w", err)
	}

	query := `
		INSERT INTO enforcement_rules (id, name, description, type, enabled, config, created_at, updated_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.db.ExecContext(ctx, query,
		rule.ID, rule.Name, rule.Description, string(rule.Type),
		rule.Enabled, cfg, rule.CreatedAt, rule.UpdatedAt, rule.CreatedBy,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			if pqErr.Code == "23505" {
				return pkgerrors.ErrConflict.WithCause(err).WithDetail("message", fmt.Sprintf("rule with name '%s' already exists", rule.Name))
			}
		}
		if strings.Contains(err.Error(), "duplicate key") || strings.Contains(err.Error(), "unique constraint") {
			return pkgerrors.ErrConflict.WithCause(err).WithDetail("message", fmt.Sprintf("rule with name '%s' already exists", rule.Name))
		}
		return fmt.Errorf("failed to create rule: %w", err)
	}

	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*Rule, error) {
	query := `
		SELECT id, name, description, type, enabled, config, created_at, updated_at, created_by
		FROM enforcement_rules
		WHERE id = $1
	`

	row := r.db.QueryRowContext(ctx, query, id)

	rule, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, pkgerrors.ErrNotFound.WithDetail("message", fmt.Sprintf("rule '%s' not found", id))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}

	return rule, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]Rule, error) {
	query := `
		SELECT id, name, description, type, enabled, config, created_at, updated_at, created_by
		FROM enforcement_rules
		ORDER BY created_at DESC
	`
	return r.queryRules(ctx, query)
}

func (r *PostgresRepository) ListEnabled(ctx context.Context) ([]Rule, error) {
	query := `
		SELECT id, name, description, type, enabled, config, created_at, updated_at, created_by
		FROM enforcement_rules
		WHERE enabled = true
		ORDER BY created_at ASC
	`
	return r.queryRules(ctx, query)
}

func (r *PostgresRepository) queryRules(ctx context.Context, query string) ([]Rule, error) {
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var result []Rule
	for rows.Next() {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
		default:
		}

		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		result = append(result, *rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) Update(ctx context.Context, rule *Rule) error {
	rule.UpdatedAt = time.Now()

	cfg, err := json.Marshal(rule.Config)
	if err != nil {
		return fmt.Errorf("failed to marshal rule config: %w", err)
	}

	query := `
		UPDATE enforcement_rules
		SET name = $1, description = $2, type = $3, enabled = $4, config = $5, updated_at = $6
		WHERE id = $7
	`

	res, err := r.db.ExecContext(ctx, query,
		rule.Name, rule.Description, string(rule.Type),
		rule.Enabled, cfg, rule.UpdatedAt, rule.ID,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return pkgerrors.ErrConflict.WithCause(err).WithDetail("message", fmt.Sprintf("rule with name '%s' already exists", rule.Name))
		}
		return fmt.Errorf("failed to update rule: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return pkgerrors.ErrNotFound.WithDetail("message", fmt.Sprintf("rule '%s' not found", rule.ID))
	}

	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM enforcement_rules WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return pkgerrors.ErrNotFound.WithDetail("message", fmt.Sprintf("rule '%s' not found", id))
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(row rowScanner) (*Rule, error) {
	var (
		rule    Rule
		typeStr string
		rawCfg  []byte
	)

	if err := row.Scan(
		&rule.ID, &rule.Name, &rule.Description, &typeStr,
		&rule.Enabled, &rawCfg, &rule.CreatedAt, &rule.UpdatedAt, &rule.CreatedBy,
	); err != nil {
		return nil, err
	}

	rule.Type = Type(typeStr)
	cfg, err := DecodeConfig(rule.Type, rawCfg)
	if err != nil {
		return nil, fmt.Errorf("rule %s has invalid stored config: %w", rule.ID, err)
	}
	rule.Config = cfg

	return &rule, nil
}
