package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMul(t *testing.T) {
	tests := []struct {
		name string
		base string
		rate string
		want string
	}{
		{"whole units", "200000", "0.30", "60000"},
		{"half rounds to even down", "1.25", "0.1", "0.12"},
		{"half rounds to even up", "1.35", "0.1", "0.14"},
		{"no spurious precision", "99.99", "0.5", "50"},
		{"zero base", "0", "0.30", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Mul(MustRate(tt.base), MustRate(tt.rate))
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestRoundAmountIsStable(t *testing.T) {
	v := MustRate("123.455")
	once := RoundAmount(v)
	twice := RoundAmount(once)
	assert.True(t, once.Equal(twice))
}
