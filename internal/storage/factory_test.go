package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faucet/internal/models"
)

func TestFactory_CreateMemory(t *testing.T) {
	factory := NewFactory()
	store, err := factory.Create(models.StorageConfig{Type: models.StorageTypeMemory})
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &MemoryStorage{}, store)
}

func TestFactory_CreateSQLite(t *testing.T) {
	factory := NewFactory()
	store, err := factory.Create(models.StorageConfig{
		Type:     models.StorageTypeSQLite,
		Database: models.DatabaseConfig{DSN: ":memory:"},
	})
	require.NoError(t, err)
	defer store.Close()

	assert.IsType(t, &SQLiteStorage{}, store)
}

func TestFactory_CreateUnsupported(t *testing.T) {
	factory := NewFactory()
	_, err := factory.Create(models.StorageConfig{Type: "cassandra"})
	assert.Error(t, err)
}

func TestFactory_ValidateConfig(t *testing.T) {
	factory := NewFactory()

	assert.NoError(t, factory.ValidateConfig(models.StorageConfig{Type: models.StorageTypeMemory}))
	assert.Error(t, factory.ValidateConfig(models.StorageConfig{Type: models.StorageTypePostgres}))
	assert.NoError(t, factory.ValidateConfig(models.StorageConfig{
		Type:     models.StorageTypePostgres,
		Database: models.DatabaseConfig{DSN: "postgres://localhost/faucet"},
	}))
	assert.Error(t, factory.ValidateConfig(models.StorageConfig{Type: "cassandra"}))
}

func TestFactory_GetSupportedProviders(t *testing.T) {
	factory := NewFactory()
	assert.ElementsMatch(t,
		[]string{models.StorageTypeMemory, models.StorageTypePostgres, models.StorageTypeSQLite},
		factory.GetSupportedProviders(),
	)
}
