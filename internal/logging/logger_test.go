package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, TRACE, ParseLevel("trace"))
	assert.Equal(t, DEBUG, ParseLevel(" Debug "))
	assert.Equal(t, WARN, ParseLevel("warning"))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel("verbose"), "неизвестный уровень даёт INFO")
}

func TestConsoleLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	l := NewConsoleLogger("mapindex", &buf, WARN)

	l.Info("скрыто")
	l.Warn("фасет %d без статики", 2)
	l.Error("ошибка")

	out := buf.String()
	assert.NotContains(t, out, "скрыто")
	assert.Contains(t, out, "[WARN] [mapindex] фасет 2 без статики")
	assert.Contains(t, out, "[ERROR] [mapindex] ошибка")

	buf.Reset()
	l.SetLevels(TRACE, TRACE)
	l.Trace("трасса")
	assert.Contains(t, buf.String(), "[TRACE]")
}

func TestDefaultLoggerSilentWhenUnset(t *testing.T) {
	SetDefaultLogger(nil)
	assert.NotPanics(t, func() {
		Info("никуда")
		Error("никуда")
	})

	var buf bytes.Buffer
	SetDefaultLogger(NewConsoleLogger("test", &buf, DEBUG))
	defer SetDefaultLogger(nil)

	Debug("значение %d", 7)
	assert.Contains(t, buf.String(), "значение 7")
}

func TestNilLogger(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() {
		l.Info("ничего")
		l.SetLevels(TRACE, TRACE)
	})
	assert.Equal(t, "", l.Component())
	assert.NoError(t, l.Close())
}

func TestHexDump(t *testing.T) {
	assert.Equal(t, "No data", HexDump(nil))

	dump := HexDump(make([]byte, 1000))
	lines := strings.Count(dump, "\n")
	assert.Equal(t, 16, lines, "дамп ограничен 256 байтами")
}
