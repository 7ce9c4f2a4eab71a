package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, "prod", "api-server")

	log.Debug().Msg("hidden")
	log.Info().Str("doctor_id", "d-1").Msg("appointment booked")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "api-server", line["service"])
	assert.Equal(t, "appointment booked", line["message"])
	assert.Equal(t, "d-1", line["doctor_id"])
	assert.Contains(t, line, "time")
}

func TestNew_DevIsConsole(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, "dev", "seed")

	log.Debug().Msg("visible")
	assert.Contains(t, buf.String(), "visible")
	assert.False(t, json.Valid(buf.Bytes()))
}
