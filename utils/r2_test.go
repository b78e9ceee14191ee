package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSettlementKey(t *testing.T) {
	assert.Equal(t, "settlements/2v2/abc-123.json", SettlementKey("2v2", "ABC-123"))
	assert.Equal(t, "settlements/5v5/m1.json", SettlementKey("5V5", "m1"))
	assert.Equal(t, "settlements/unknown/m1.json", SettlementKey("", "m1"))
}
