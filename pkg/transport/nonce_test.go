package transport

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateNonceIsNonEmptyAndUnique(t *testing.T) {
	a := generateNonce()
	b := generateNonce()
	require.NotEmpty(t, a)
	require.NotEmpty(t, b)
	require.NotEqual(t, a, b)
}
