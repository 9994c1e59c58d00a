package labels

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLabel(t *testing.T) {
	r := New()

	tests := []struct {
		addr string
		want string
	}{
		{addr: "", want: "Unknown"},
		{addr: "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v", want: "USDC"},
		{addr: "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4", want: "Jupiter"},
		{addr: "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM", want: "9WzD...AWWM"},
		{addr: "unknown", want: "unkn...nown"},
		{addr: "abc", want: "abc...abc"},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Label(tt.addr))
		})
	}
}

func TestUnknownAddressIsShortened(t *testing.T) {
	addr := "7xKXtg2CW87d97TXJSDpbD5jBkheTqA83TZRuJosgAsU"
	got := New().Label(addr)
	assert.Contains(t, got, "...")
	assert.True(t, strings.HasPrefix(got, addr[:4]))
}

func TestIsKnown(t *testing.T) {
	r := New()
	assert.True(t, r.IsKnown("11111111111111111111111111111111"))
	assert.False(t, r.IsKnown("nope"))
	assert.False(t, r.IsKnown(""))
}

func TestWithLabels(t *testing.T) {
	r := WithLabels(map[string]string{
		"MyTreasury111": "Treasury",
		"EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v": "USD Coin",
	})
	assert.Equal(t, "Treasury", r.Label("MyTreasury111"))
	assert.Equal(t, "USD Coin", r.Label("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"))
	assert.Equal(t, "Wrapped SOL", r.Label("So11111111111111111111111111111111111111112"))

	// The built-in table is not mutated.
	assert.Equal(t, "USDC", New().Label("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"))
}
