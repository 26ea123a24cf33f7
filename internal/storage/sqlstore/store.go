package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bridgeguard-backend/internal/bridge"
)

// Store is the database/sql counterpart of storage.Repository for
// deployments that keep bridge data in MySQL, SQL Server or a Postgres
// reached through lib/pq.
type Store struct {
	db      *sql.DB
	dialect dialect
}

func (s *Store) Dialect() string { return s.dialect.name }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping %s: %w", s.dialect.name, err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) FindBridge(ctx context.Context, id string) (bridge.Bridge, error) {
	row := s.db.QueryRowContext(ctx, s.dialect.rebind(`
		SELECT id, name, status, health_index, latitude, longitude, created_at, updated_at
		FROM {t}bridges WHERE id=?`), id)
	var (
		b      bridge.Bridge
		status string
		health sql.NullInt64
	)
	err := row.Scan(&b.ID, &b.Name, &status, &health, &b.Location.Latitude, &b.Location.Longitude, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return bridge.Bridge{}, fmt.Errorf("%w: %s", bridge.ErrNotFound, id)
		}
		return bridge.Bridge{}, fmt.Errorf("find bridge: %w", err)
	}
	b.Status = bridge.Status(status)
	if health.Valid {
		v := int(health.Int64)
		b.HealthIndex = &v
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return b, nil
}

// SaveBridge writes the derived health fields and reads the row back.
func (s *Store) SaveBridge(ctx context.Context, b bridge.Bridge) (bridge.Bridge, error) {
	updatedAt := b.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}
	var health sql.NullInt64
	if b.HealthIndex != nil {
		health = sql.NullInt64{Int64: int64(*b.HealthIndex), Valid: true}
	}
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		UPDATE {t}bridges SET status=?, health_index=?, updated_at=? WHERE id=?`),
		string(b.Status), health, updatedAt, b.ID)
	if err != nil {
		return bridge.Bridge{}, fmt.Errorf("update bridge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return bridge.Bridge{}, fmt.Errorf("update bridge: %w", err)
	}
	if n == 0 {
		return bridge.Bridge{}, fmt.Errorf("%w: %s", bridge.ErrNotFound, b.ID)
	}
	return s.FindBridge(ctx, b.ID)
}

func (s *Store) SaveSensorLog(ctx context.Context, log bridge.SensorLog) (bridge.SensorLog, error) {
	log.ID = uuid.NewString()
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO {t}sensor_logs (id, bridge_id, strain_microstrain, vibration_ms2, temperature_c, humidity_percent, created_at)
		VALUES (?,?,?,?,?,?,?)`),
		log.ID, log.BridgeID, log.StrainMicrostrain, log.VibrationMs2, log.TemperatureC, nullFloat(log.HumidityPercent), log.CreatedAt)
	if err != nil {
		return bridge.SensorLog{}, fmt.Errorf("insert sensor log: %w", err)
	}
	return log, nil
}

func (s *Store) SaveMLOutput(ctx context.Context, out bridge.MLOutput) (bridge.MLOutput, error) {
	out.ID = uuid.NewString()
	if out.CreatedAt.IsZero() {
		out.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(`
		INSERT INTO {t}ml_outputs (id, sensor_log_id, health_index, health_state, recommended_action, confidence, created_at)
		VALUES (?,?,?,?,?,?,?)`),
		out.ID, out.SensorLogID, out.HealthIndex, out.HealthState, out.RecommendedAction, nullFloat(out.Confidence), out.CreatedAt)
	if err != nil {
		return bridge.MLOutput{}, fmt.Errorf("insert ml output: %w", err)
	}
	return out, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
