package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBuildsStructuredLogger(t *testing.T) {
	logger := New(LoggingConfig{Level: "debug", Profile: "STRUCTURED"})
	require.NotNil(t, logger)
	assert.True(t, logger.Core().Enabled(0))
}

func TestNewFallsBackOnInvalidLevel(t *testing.T) {
	logger := New(LoggingConfig{Level: "not-a-level", Profile: "STRUCTURED"})
	require.NotNil(t, logger)
}

func TestInitCLILoggerSetsPackageVar(t *testing.T) {
	CLILogger = nil
	InitCLILogger("subwatch-test", true)
	require.NotNil(t, CLILogger)
}
