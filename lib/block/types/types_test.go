package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParties(t *testing.T) {
	assert.Equal(t, []string{"0xabc", "0xdef"}, Trans{To: "0xABC", From: "0xDeF"}.Parties())
	assert.Equal(t, []string{"0xdef"}, Trans{From: "0xdef"}.Parties())
	assert.Empty(t, Trans{}.Parties())
}
