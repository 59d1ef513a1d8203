package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestGenerate(t *testing.T) {
	a, err := Generate()
	require.NoError(t, err)
	b, err := Generate()
	require.NoError(t, err)

	assert.Equal(t, HashVersionBcrypt, a.HashVersion)
	assert.NotEmpty(t, a.Hash)
	assert.NotEqual(t, a.Hash, b.Hash)

	cost, err := bcrypt.Cost([]byte(a.Hash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.DefaultCost, cost)
	assert.Error(t, bcrypt.CompareHashAndPassword([]byte(a.Hash), nil))
}
