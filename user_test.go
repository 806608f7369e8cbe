// FILE: user_test.go
package sasl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePopulatesAllMechanisms(t *testing.T) {
	u, err := Create("alice", "correct-horse-battery-staple")
	require.NoError(t, err)

	_, ok := u.Password(MechanismPlain)
	assert.True(t, ok, "expected a PLAIN entry")

	for _, mech := range []Mechanism{MechanismScramSHA1, MechanismScramSHA256, MechanismScramSHA512} {
		meta, ok := u.Password(mech)
		assert.True(t, ok, "expected a %s entry", mech)
		assert.NotEmpty(t, meta.PasswordBytes)
		assert.NotEmpty(t, meta.SaltB64)
		assert.Equal(t, int(GetDefaultIterationCount()), meta.IterationCount)
	}
}

func TestCreateDummyShapeMatchesRealUser(t *testing.T) {
	real, err := Create("bob", "some-password")
	require.NoError(t, err)

	dummy, err := CreateDummy("bob", MechanismScramSHA256)
	require.NoError(t, err)

	assert.True(t, dummy.IsDummy)
	realMeta, _ := real.Password(MechanismScramSHA256)
	dummyMeta, _ := dummy.Password(MechanismScramSHA256)
	assert.Len(t, dummyMeta.PasswordBytes, len(realMeta.PasswordBytes),
		"dummy secret must have the same byte length as a real one to avoid a timing/size oracle")
	assert.Equal(t, realMeta.IterationCount, dummyMeta.IterationCount)
}

func TestCreateDummyPlainShape(t *testing.T) {
	dummy, err := CreateDummy("carol", MechanismPlain)
	require.NoError(t, err)

	meta, ok := dummy.Password(MechanismPlain)
	require.True(t, ok)
	assert.Len(t, meta.PasswordBytes, 16+DigestSize(AlgorithmSHA1))
}

func TestDefaultIterationCountRoundtrip(t *testing.T) {
	original := GetDefaultIterationCount()
	defer SetDefaultIterationCount(original)

	SetDefaultIterationCount(8192)
	assert.Equal(t, int32(8192), GetDefaultIterationCount())

	// Zero and negative updates are ignored per the atomic setter's contract.
	SetDefaultIterationCount(0)
	assert.Equal(t, int32(8192), GetDefaultIterationCount())
}

func TestPasswordMetaDataSaltDecoding(t *testing.T) {
	u, err := Create("dana", "password1")
	require.NoError(t, err)
	meta, _ := u.Password(MechanismScramSHA256)
	assert.Len(t, meta.Salt(), DigestSize(AlgorithmSHA256))

	empty := PasswordMetaData{}
	assert.Nil(t, empty.Salt())
}
