package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_APIKey_Hash_And_Compare(t *testing.T) {
	req := require.New(t)

	encoded, err := HashAPIKey("hr-sync-key")
	req.NoError(err)
	req.Contains(encoded, "$argon2id$")

	ok, err := CompareAPIKey("hr-sync-key", encoded)
	req.NoError(err)
	req.True(ok)

	ok, err = CompareAPIKey("wrong-key", encoded)
	req.NoError(err)
	req.False(ok)
}

func Test_APIKey_Hashes_Are_Salted(t *testing.T) {
	req := require.New(t)

	first, err := HashAPIKey("hr-sync-key")
	req.NoError(err)
	second, err := HashAPIKey("hr-sync-key")
	req.NoError(err)
	req.NotEqual(first, second)

	ok, err := CompareAPIKey("hr-sync-key", second)
	req.NoError(err)
	req.True(ok)
}

func Test_APIKey_Malformed_Hash(t *testing.T) {
	req := require.New(t)

	_, err := CompareAPIKey("anything", "not-an-encoded-hash")
	req.Error(err)
}
