package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	Init(false)
	require.NotNil(t, Logger)
	Logger.Info("production config ready")

	Init(true)
	require.NotNil(t, Logger)
	Logger.Debug("debug config ready")

	Sync()
}
