package logger_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/nfse-emissor/pkg/logger"
)

func TestNew_JSONConServicioYComponente(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.Config{Env: "production", Level: "warn", Service: "nfse-emissor", Out: &buf})

	l.Info().Msg("no aparece")
	comp := l.Component("soap")
	comp.Warn().Msg("aviso")

	out := buf.String()
	assert.NotContains(t, out, "no aparece")
	assert.Contains(t, out, `"service":"nfse-emissor"`)
	assert.Contains(t, out, `"component":"soap"`)
	assert.Contains(t, out, `"message":"aviso"`)
}

func TestNew_NivelInvalidoUsaInfo(t *testing.T) {
	var buf bytes.Buffer
	l := logger.New(logger.Config{Level: "verboso", Out: &buf})
	l.Debug().Msg("debug")
	l.Info().Msg("info")
	assert.NotContains(t, buf.String(), `"message":"debug"`)
	assert.Contains(t, buf.String(), `"message":"info"`)
}
