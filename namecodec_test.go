package mscfb

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeNameRoundTrip(t *testing.T) {
	for _, name := range []string{"Root Entry", "a", "SummaryInformation", "日本語"} {
		field, n, err := encodeName(name)
		require.NoError(t, err)
		got, err := decodeName(field, n)
		require.NoError(t, err)
		require.Equal(t, name, got)
	}
}

func TestValidateNameRejectsTooLong(t *testing.T) {
	err := validateName(strings.Repeat("x", MaxNameChars+1))
	require.Error(t, err)
}

func TestValidateNameRejectsForbiddenChars(t *testing.T) {
	for _, n := range []string{"a/b", "a\\b", "a:b", "a!b"} {
		require.Error(t, validateName(n))
	}
}

func TestValidateNameRejectsEmpty(t *testing.T) {
	require.Error(t, validateName(""))
}

func TestCompareNamesShorterFirst(t *testing.T) {
	require.Equal(t, -1, compareNames("ab", "abc"))
	require.Equal(t, 1, compareNames("abc", "ab"))
}

func TestCompareNamesASCIIUppercase(t *testing.T) {
	require.Equal(t, 0, compareNames("Report", "REPORT"))
	require.Less(t, compareNames("apple", "Banana"), 0)
}

func TestCompareNamesNotLocaleAware(t *testing.T) {
	// "ss" and "ß" differ in length after naive folding in some locales;
	// this package's comparator must stay purely ASCII and length-based,
	// never collapsing them to equal.
	require.NotEqual(t, 0, compareNames("ss", "ß"))
}
