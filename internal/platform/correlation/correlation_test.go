package correlation

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewID(t *testing.T) {
	ids := make(map[string]struct{}, 100)
	for range 100 {
		id := NewID()
		assert.Len(t, id, 8)
		ids[id] = struct{}{}
	}
	assert.Len(t, ids, 100)
}

func TestFromHeader(t *testing.T) {
	assert.Equal(t, "req-42", FromHeader("req-42"))
	assert.Len(t, FromHeader(""), 8)
	assert.Len(t, FromHeader("has space"), 8)
	assert.Len(t, FromHeader(strings.Repeat("a", 65)), 8)
}

func TestID(t *testing.T) {
	id, ok := ID(WithID(context.Background(), "abc12345"))
	assert.True(t, ok)
	assert.Equal(t, "abc12345", id)

	_, ok = ID(context.Background())
	assert.False(t, ok)

	_, ok = ID(WithID(context.Background(), ""))
	assert.False(t, ok)
}

func TestHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewHandler(slog.NewTextHandler(&buf, nil))).With("component", "guard")

	logger.InfoContext(WithID(context.Background(), "test1234"), "checked", "visitor", "v1")
	assert.Contains(t, buf.String(), "correlation_id=test1234")
	assert.Contains(t, buf.String(), "component=guard")

	buf.Reset()
	logger.WithGroup("g").Info("no id")
	assert.NotContains(t, buf.String(), "correlation_id")
}
