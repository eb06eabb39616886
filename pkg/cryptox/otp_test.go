package cryptox_test

import (
	"regexp"
	"testing"

	"github.com/aussiebroadwan/mfagate/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestNumericCode(t *testing.T) {
	sixDigits := regexp.MustCompile(`^[0-9]{6}$`)

	seen := make(map[string]struct{})
	for range 200 {
		code, err := cryptox.NumericCode(6)
		require.NoError(t, err)
		require.Regexp(t, sixDigits, code)
		seen[code] = struct{}{}
	}

	// 200 draws from a million values; collisions are possible but a
	// handful of distinct values would mean a broken source.
	require.Greater(t, len(seen), 150)
}

func TestNumericCode_InvalidLength(t *testing.T) {
	for _, n := range []int{0, -3, 19} {
		_, err := cryptox.NumericCode(n)
		require.Error(t, err, "length %d", n)
	}
}

func TestEqualCode(t *testing.T) {
	require.True(t, cryptox.EqualCode("123456", "123456"))
	require.False(t, cryptox.EqualCode("123456", "123457"))
	require.False(t, cryptox.EqualCode("123456", "12345"))
	require.False(t, cryptox.EqualCode("", "1"))
}
