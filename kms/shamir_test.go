package kms

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMasterKey(t *testing.T) {
	masterKey := testMasterKey(t)

	shares, err := SplitMasterKey(masterKey, 5, 3)
	require.NoError(t, err, "SplitMasterKey should succeed with valid parameters")
	assert.Equal(t, 5, len(shares), "Should generate 5 shares")

	_, err = SplitMasterKey(masterKey, 5, 6)
	assert.Error(t, err, "Should fail when threshold > total shares")

	_, err = SplitMasterKey(masterKey, 5, 1)
	assert.Error(t, err, "Should fail when threshold < 2")

	_, err = SplitMasterKey(make([]byte, 16), 5, 3)
	assert.Error(t, err, "Should fail with master key < 32 bytes")
}

func TestCombineMasterKey(t *testing.T) {
	masterKey := testMasterKey(t)
	shares, err := SplitMasterKey(masterKey, 5, 3)
	require.NoError(t, err)

	combined, err := CombineMasterKey([][]byte{shares[4], shares[0], shares[2]})
	require.NoError(t, err)
	assert.Equal(t, masterKey, combined)

	combined, err = CombineMasterKey(shares)
	require.NoError(t, err)
	assert.Equal(t, masterKey, combined)

	// Below threshold the result is not the master key.
	combined, err = CombineMasterKey(shares[:2])
	require.NoError(t, err)
	assert.NotEqual(t, masterKey, combined)

	_, err = CombineMasterKey(shares[:1])
	assert.Error(t, err)
}
