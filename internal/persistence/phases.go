package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/epartner/engine/internal/domain"
)

// SavePhase upserts the phase, its work items, and their dependency edges.
// Outputs are persisted separately through the Apply methods; existing
// output rows are never touched here.
func (s *SQLiteStore) SavePhase(ctx context.Context, phase *domain.Phase) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	tuning, err := encodeTuning(phase.Tuning)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO phases (id, name, status, tuning, created_at, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			tuning = excluded.tuning,
			updated_at = CURRENT_TIMESTAMP
	`, phase.ID, phase.Name, phase.Status, tuning)
	if err != nil {
		return fmt.Errorf("upserting phase: %w", err)
	}

	for pos, item := range phase.WorkItems {
		if err := upsertItem(ctx, tx, phase.ID, item, pos); err != nil {
			return err
		}
	}

	// Dependency edges are rewritten wholesale after all items exist.
	for _, item := range phase.WorkItems {
		if _, err := tx.ExecContext(ctx, `DELETE FROM item_dependencies WHERE item_id = ?`, item.ID); err != nil {
			return fmt.Errorf("clearing dependencies for %s: %w", item.ID, err)
		}
		for _, depID := range item.DependsOn {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO item_dependencies (item_id, depends_on_id) VALUES (?, ?)
			`, item.ID, depID)
			if err != nil {
				return fmt.Errorf("inserting dependency %s -> %s: %w", item.ID, depID, err)
			}
		}
	}

	for _, item := range phase.WorkItems {
		if err := appendOutputs(ctx, tx, "item", item.ID, item.Outputs); err != nil {
			return err
		}
	}
	if err := appendOutputs(ctx, tx, "phase", phase.ID, phase.Outputs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ApplyPhase merges a phase-level update: status, tuning, and any new
// versioned outputs.
func (s *SQLiteStore) ApplyPhase(ctx context.Context, phase *domain.Phase) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	tuning, err := encodeTuning(phase.Tuning)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE phases SET status = ?, tuning = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, phase.Status, tuning, phase.ID)
	if err != nil {
		return fmt.Errorf("updating phase: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("phase not found: %s", phase.ID)
	}

	if err := appendOutputs(ctx, tx, "phase", phase.ID, phase.Outputs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ApplyItem merges a work item update: status, error, and any new versioned
// outputs. This is the update callback the scheduler and pipelines use.
func (s *SQLiteStore) ApplyItem(ctx context.Context, phaseID string, item *domain.WorkItem) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	errorStr := ""
	if item.Error != nil {
		errorStr = item.Error.Error()
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE work_items SET status = ?, error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND phase_id = ?
	`, item.Status, errorStr, item.ID, phaseID)
	if err != nil {
		return fmt.Errorf("updating work item: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return fmt.Errorf("work item not found: %s in phase %s", item.ID, phaseID)
	}

	if err := appendOutputs(ctx, tx, "item", item.ID, item.Outputs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// LoadPhase retrieves a phase with its work items, dependencies, and full
// output history.
func (s *SQLiteStore) LoadPhase(ctx context.Context, phaseID string) (*domain.Phase, error) {
	phase := &domain.Phase{ID: phaseID}
	var tuning sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT name, status, tuning FROM phases WHERE id = ?
	`, phaseID).Scan(&phase.Name, &phase.Status, &tuning)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("phase not found: %s", phaseID)
	}
	if err != nil {
		return nil, fmt.Errorf("querying phase: %w", err)
	}

	if tuning.Valid && tuning.String != "" {
		if err := json.Unmarshal([]byte(tuning.String), &phase.Tuning); err != nil {
			return nil, fmt.Errorf("decoding tuning: %w", err)
		}
	}

	if phase.Outputs, err = s.loadOutputs(ctx, "phase", phaseID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, status, error
		FROM work_items WHERE phase_id = ? ORDER BY position
	`, phaseID)
	if err != nil {
		return nil, fmt.Errorf("querying work items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item := &domain.WorkItem{}
		var errorStr string
		if err := rows.Scan(&item.ID, &item.Name, &item.Description, &item.Status, &errorStr); err != nil {
			return nil, fmt.Errorf("scanning work item: %w", err)
		}
		if errorStr != "" {
			item.Error = fmt.Errorf("%s", errorStr)
		}
		phase.WorkItems = append(phase.WorkItems, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating work items: %w", err)
	}

	for _, item := range phase.WorkItems {
		if item.DependsOn, err = s.loadDependencies(ctx, item.ID); err != nil {
			return nil, err
		}
		if item.Outputs, err = s.loadOutputs(ctx, "item", item.ID); err != nil {
			return nil, err
		}
	}

	return phase, nil
}

// ListPhases returns all phases without their work items.
func (s *SQLiteStore) ListPhases(ctx context.Context) ([]*domain.Phase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, status FROM phases ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("querying phases: %w", err)
	}
	defer rows.Close()

	var phases []*domain.Phase
	for rows.Next() {
		p := &domain.Phase{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Status); err != nil {
			return nil, fmt.Errorf("scanning phase: %w", err)
		}
		phases = append(phases, p)
	}
	return phases, rows.Err()
}

func upsertItem(ctx context.Context, tx *sql.Tx, phaseID string, item *domain.WorkItem, position int) error {
	errorStr := ""
	if item.Error != nil {
		errorStr = item.Error.Error()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO work_items (id, phase_id, name, description, status, error, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			status = excluded.status,
			error = excluded.error,
			position = excluded.position,
			updated_at = CURRENT_TIMESTAMP
	`, item.ID, phaseID, item.Name, item.Description, item.Status, errorStr, position)
	if err != nil {
		return fmt.Errorf("upserting work item %s: %w", item.ID, err)
	}
	return nil
}

// appendOutputs inserts output versions not yet stored. Existing versions
// are left untouched, preserving the append-only contract; attempting to
// rewrite an existing version with different content is a conflict.
func appendOutputs(ctx context.Context, tx *sql.Tx, ownerKind, ownerID string, outputs []domain.VersionedOutput) error {
	var maxVersion sql.NullInt64
	err := tx.QueryRowContext(ctx, `
		SELECT MAX(version) FROM outputs WHERE owner_kind = ? AND owner_id = ?
	`, ownerKind, ownerID).Scan(&maxVersion)
	if err != nil {
		return fmt.Errorf("querying max version for %s %s: %w", ownerKind, ownerID, err)
	}

	for _, out := range outputs {
		if maxVersion.Valid && int64(out.Version) <= maxVersion.Int64 {
			continue
		}
		createdAt := out.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO outputs (owner_kind, owner_id, version, content, reason, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, ownerKind, ownerID, out.Version, out.Content, out.Reason, createdAt)
		if err != nil {
			return fmt.Errorf("appending output v%d for %s %s: %w", out.Version, ownerKind, ownerID, err)
		}
	}
	return nil
}

func (s *SQLiteStore) loadOutputs(ctx context.Context, ownerKind, ownerID string) ([]domain.VersionedOutput, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT version, content, reason, created_at
		FROM outputs WHERE owner_kind = ? AND owner_id = ? ORDER BY version
	`, ownerKind, ownerID)
	if err != nil {
		return nil, fmt.Errorf("querying outputs: %w", err)
	}
	defer rows.Close()

	var outputs []domain.VersionedOutput
	for rows.Next() {
		var out domain.VersionedOutput
		if err := rows.Scan(&out.Version, &out.Content, &out.Reason, &out.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning output: %w", err)
		}
		outputs = append(outputs, out)
	}
	return outputs, rows.Err()
}

func (s *SQLiteStore) loadDependencies(ctx context.Context, itemID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT depends_on_id FROM item_dependencies WHERE item_id = ?
	`, itemID)
	if err != nil {
		return nil, fmt.Errorf("querying dependencies: %w", err)
	}
	defer rows.Close()

	var deps []string
	for rows.Next() {
		var depID string
		if err := rows.Scan(&depID); err != nil {
			return nil, fmt.Errorf("scanning dependency: %w", err)
		}
		deps = append(deps, depID)
	}
	return deps, rows.Err()
}

func encodeTuning(tuning map[string]any) (string, error) {
	if len(tuning) == 0 {
		return "", nil
	}
	raw, err := json.Marshal(tuning)
	if err != nil {
		return "", fmt.Errorf("encoding tuning: %w", err)
	}
	return string(raw), nil
}
