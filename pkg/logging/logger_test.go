package logging_test

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/agentstation/clinmap/pkg/logging"
)

func TestNewWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf).Level(zerolog.InfoLevel)

	logger.Info().Str("key", "1:100:A:G").Msg("annotated")

	assert.Contains(t, buf.String(), `"key":"1:100:A:G"`)
	assert.Contains(t, buf.String(), `"level":"info"`)
}

func TestDisableLoggingForTest(t *testing.T) {
	before := logging.Default().GetLevel()

	t.Run("disabled", func(t *testing.T) {
		logging.DisableLoggingForTest(t)
		assert.Equal(t, zerolog.Disabled, logging.Default().GetLevel())
	})

	assert.Equal(t, before, logging.Default().GetLevel())
}

func TestNopLogger(t *testing.T) {
	logger := logging.NewNopLogger()
	logger.Error().Msg("never written")
	assert.Equal(t, zerolog.Disabled, logger.GetLevel())
}
