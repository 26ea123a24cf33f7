package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"bridgeguard-backend/internal/bridge"
)

// Repository persists bridges, sensor logs and ml outputs in Postgres. Each
// method is a single-row statement; there is no transaction spanning calls.
type Repository struct {
	Store *Store
}

func NewRepository(store *Store) *Repository {
	return &Repository{Store: store}
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *Repository) FindBridge(ctx context.Context, id string) (bridge.Bridge, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		SELECT id, name, status, health_index, latitude, longitude, created_at, updated_at
		FROM bridges WHERE id=$1`, id)
	b, err := scanBridge(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return bridge.Bridge{}, fmt.Errorf("%w: %s", bridge.ErrNotFound, id)
		}
		return bridge.Bridge{}, err
	}
	return b, nil
}

// SaveBridge writes the derived health fields. Other columns belong to the
// bridge registry and are left alone.
func (r *Repository) SaveBridge(ctx context.Context, b bridge.Bridge) (bridge.Bridge, error) {
	row := r.Store.Pool.QueryRow(ctx, `
		UPDATE bridges
		SET status=$1, health_index=$2, updated_at=$3
		WHERE id=$4
		RETURNING id, name, status, health_index, latitude, longitude, created_at, updated_at`,
		string(b.Status), b.HealthIndex, b.UpdatedAt, b.ID,
	)
	saved, err := scanBridge(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return bridge.Bridge{}, fmt.Errorf("%w: %s", bridge.ErrNotFound, b.ID)
		}
		return bridge.Bridge{}, err
	}
	return saved, nil
}

func (r *Repository) SaveSensorLog(ctx context.Context, log bridge.SensorLog) (bridge.SensorLog, error) {
	log.ID = uuid.NewString()
	row := r.Store.Pool.QueryRow(ctx, `
		INSERT INTO sensor_logs (id, bridge_id, strain_microstrain, vibration_ms2, temperature_c, humidity_percent, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,COALESCE($7, now()))
		RETURNING created_at`,
		log.ID, log.BridgeID, log.StrainMicrostrain, log.VibrationMs2, log.TemperatureC, log.HumidityPercent, nullTime(log.CreatedAt),
	)
	if err := row.Scan(&log.CreatedAt); err != nil {
		return bridge.SensorLog{}, err
	}
	return log, nil
}

func (r *Repository) SaveMLOutput(ctx context.Context, out bridge.MLOutput) (bridge.MLOutput, error) {
	out.ID = uuid.NewString()
	row := r.Store.Pool.QueryRow(ctx, `
		INSERT INTO ml_outputs (id, sensor_log_id, health_index, health_state, recommended_action, confidence, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,COALESCE($7, now()))
		RETURNING created_at`,
		out.ID, out.SensorLogID, out.HealthIndex, out.HealthState, out.RecommendedAction, out.Confidence, nullTime(out.CreatedAt),
	)
	if err := row.Scan(&out.CreatedAt); err != nil {
		return bridge.MLOutput{}, err
	}
	return out, nil
}

func scanBridge(row scanner) (bridge.Bridge, error) {
	var b bridge.Bridge
	var status string
	if err := row.Scan(&b.ID, &b.Name, &status, &b.HealthIndex, &b.Location.Latitude, &b.Location.Longitude, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return bridge.Bridge{}, err
	}
	b.Status = bridge.Status(status)
	return b, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.Store.Ping(ctx)
}
