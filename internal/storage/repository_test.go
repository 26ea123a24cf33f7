package storage

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridgeguard-backend/internal/bridge"
)

func setupRepository(t *testing.T) *Repository {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	store, err := NewStore(context.Background(), dsn)
	require.NoError(t, err)
	t.Cleanup(store.Close)

	schema, err := os.ReadFile("../../migrations/postgres/001_init.sql")
	require.NoError(t, err)
	_, err = store.Pool.Exec(context.Background(), string(schema))
	require.NoError(t, err)
	return NewRepository(store)
}

func seedBridge(t *testing.T, repo *Repository, id string) {
	_, err := repo.Store.Pool.Exec(context.Background(), `
		INSERT INTO bridges (id, name, status, latitude, longitude)
		VALUES ($1, $2, 'EXCELLENT', 44.43, 26.10)
		ON CONFLICT (id) DO UPDATE SET status='EXCELLENT', health_index=NULL`, id, "Test "+id)
	require.NoError(t, err)
}

func TestRepositoryFindBridgeNotFound(t *testing.T) {
	repo := setupRepository(t)

	_, err := repo.FindBridge(context.Background(), "BRIDGE-MISSING")
	assert.True(t, errors.Is(err, bridge.ErrNotFound), "got %v", err)
}

func TestRepositoryRoundTrip(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()
	seedBridge(t, repo, "BRIDGE-T01")

	b, err := repo.FindBridge(ctx, "BRIDGE-T01")
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusExcellent, b.Status)
	assert.Nil(t, b.HealthIndex)

	now := time.Now().UTC().Truncate(time.Microsecond)
	humidity := 61.5
	log, err := repo.SaveSensorLog(ctx, bridge.SensorLog{
		BridgeID:          b.ID,
		StrainMicrostrain: 98.2,
		VibrationMs2:      0.4,
		TemperatureC:      18,
		HumidityPercent:   &humidity,
		CreatedAt:         now,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, log.ID)
	assert.True(t, now.Equal(log.CreatedAt))

	out, err := repo.SaveMLOutput(ctx, bridge.MLOutput{
		SensorLogID:       log.ID,
		HealthIndex:       35,
		HealthState:       "Poor",
		RecommendedAction: "Schedule detailed inspection",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, out.ID)
	assert.False(t, out.CreatedAt.IsZero())

	b.Assess(out, now)
	saved, err := repo.SaveBridge(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, bridge.StatusPoor, saved.Status)
	require.NotNil(t, saved.HealthIndex)
	assert.Equal(t, 35, *saved.HealthIndex)
}

func TestRepositorySaveBridgeMissingRow(t *testing.T) {
	repo := setupRepository(t)

	_, err := repo.SaveBridge(context.Background(), bridge.Bridge{ID: "BRIDGE-GONE", Status: bridge.StatusFair, UpdatedAt: time.Now()})
	assert.ErrorIs(t, err, bridge.ErrNotFound)
}
