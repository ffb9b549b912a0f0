package inventory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMismatchQueryOrdersLatestMovementByID(t *testing.T) {
	assert.Contains(t, mismatchQuery, "WHERE stock_id = s.id ORDER BY id DESC LIMIT 1")
	assert.NotContains(t, mismatchQuery, "created_at")
}
