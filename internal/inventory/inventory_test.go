package inventory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/hms/pkg/logger"
	"github.com/carebridge/hms/pkg/types"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medicines.csv")
	content := "Name,Stock,Alert\nParacetamol,100,20\nIbuprofen,50,10\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	inv, err := Load(path, logger.New("error"))
	require.NoError(t, err)

	stock, ok := inv.Stock("Paracetamol")
	require.True(t, ok)
	assert.Equal(t, 100, stock)

	stock, ok = inv.Stock("ibuprofen")
	require.True(t, ok, "lookup is case-insensitive")
	assert.Equal(t, 50, stock)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.csv"), logger.New("error"))
		require.Error(t, err)
	})

	t.Run("invalid stock", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "medicines.csv")
		require.NoError(t, os.WriteFile(path, []byte("Paracetamol,lots,20\n"), 0o644))
		_, err := Load(path, logger.New("error"))
		require.Error(t, err)
	})

	t.Run("invalid alert level", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "medicines.csv")
		require.NoError(t, os.WriteFile(path, []byte("Paracetamol,100,soon\n"), 0o644))
		_, err := Load(path, logger.New("error"))
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	inv := NewWithStock(map[string]int{"Paracetamol": 5}, logger.New("error"))

	assert.NoError(t, inv.Validate("Paracetamol", 5))

	err := inv.Validate("Aspirin", 1)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCodeNotFound))

	err = inv.Validate("Paracetamol", 0)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCodeInvalidInput))

	err = inv.Validate("Paracetamol", 6)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrCodeInvalidInput))
}

func TestDeduct(t *testing.T) {
	inv := NewWithStock(map[string]int{"Paracetamol": 5}, logger.New("error"))

	require.NoError(t, inv.Deduct("Paracetamol", 3))
	stock, _ := inv.Stock("Paracetamol")
	assert.Equal(t, 2, stock)

	require.Error(t, inv.Deduct("Paracetamol", 3), "cannot deduct past zero")
	stock, _ = inv.Stock("Paracetamol")
	assert.Equal(t, 2, stock, "failed deduction leaves stock unchanged")

	require.Error(t, inv.Deduct("Aspirin", 1))
}
