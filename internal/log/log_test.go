package log

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestIsProductionEnv(t *testing.T) {
	var tests = []struct {
		env  string
		want bool
	}{
		{"", false},
		{"development", false},
		{" Dev ", false},
		{"local", false},
		{"test", false},
		{"production", true},
		{"staging", true},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			assert.Equal(t, tt.want, IsProductionEnv(tt.env))
		})
	}
}

func TestSetLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	SetLogger(zap.New(core))
	defer SetLogger(nil)

	Logger().Info("hello", zap.String("key", "value"))

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		assert.Equal(t, "hello", entries[0].Message)
		assert.Equal(t, "value", entries[0].ContextMap()["key"])
	}
}
