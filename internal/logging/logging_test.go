package logging

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestInitDefaultLevelIsInfo(t *testing.T) {
	logger := Init(Options{})
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())
}

func TestInitVerboseSetsDebugLevel(t *testing.T) {
	logger := Init(Options{Verbose: true})
	assert.Equal(t, zerolog.DebugLevel, logger.GetLevel())
}

func TestInitQuietSetsWarnLevel(t *testing.T) {
	logger := Init(Options{Quiet: true})
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
}

func TestInitWithLogFileDoesNotPanic(t *testing.T) {
	dir := t.TempDir()
	logger := Init(Options{LogFile: filepath.Join(dir, "supervisor.log")})
	logger.Info().Msg("hello")
}
