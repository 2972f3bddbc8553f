package visualization

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSaveTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plots", "trace.png")
	require.NoError(t, SaveTrace([]float64{-0.2, -0.35, -0.41, -0.43, -0.43}, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Greater(t, info.Size(), int64(0))
}

func TestSaveTrace_Empty(t *testing.T) {
	require.Error(t, SaveTrace(nil, filepath.Join(t.TempDir(), "trace.png")))
}
