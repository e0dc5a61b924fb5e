package attrs

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestExtractString(t *testing.T) {
	id := uuid.New()
	attrs := []any{"user_id", id, "email", "a@b.c", 42, "ignored", "count", 3}

	assert.Equal(t, id.String(), ExtractString(attrs, "user_id"))
	assert.Equal(t, "a@b.c", ExtractString(attrs, "email"))
	assert.Equal(t, "", ExtractString(attrs, "count"))
	assert.Equal(t, "", ExtractString(attrs, "missing"))
}

func TestToMap(t *testing.T) {
	attrs := []any{"user_id", "u1", "risk_score", 0.4, 7, "skipped", "dangling"}

	got := ToMap(attrs, "user_id")

	assert.Equal(t, map[string]any{"risk_score": 0.4}, got)
}
