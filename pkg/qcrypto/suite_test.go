package qcrypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSuiteIDSizes(t *testing.T) {
	assert.Equal(t, 16, SuiteAES128GCM.KeySize())
	assert.Equal(t, 32, SuiteAES256GCM.KeySize())
	assert.Equal(t, 32, SuiteChaCha20Poly1305.KeySize())

	assert.Equal(t, 12, SuiteAES128GCM.IVSize())
	assert.Equal(t, 16, SuiteAES128GCM.HPKeySize())
	assert.Equal(t, 32, SuiteAES256GCM.HPKeySize())
}

func TestNewSuiteID(t *testing.T) {
	assert.Equal(t, SuiteAES128GCM, NewSuite(SuiteAES128GCM).ID())
	assert.Equal(t, SuiteChaCha20Poly1305, NewSuite(SuiteChaCha20Poly1305).ID())
}

func TestAESHPMaskRejectsShortSample(t *testing.T) {
	_, err := aesHPMask(make([]byte, 16), make([]byte, 4))
	assert.Error(t, err)
}

func TestChaChaHPMaskRejectsShortSample(t *testing.T) {
	_, err := chachaHPMask(make([]byte, 32), make([]byte, 4))
	assert.Error(t, err)
}

func TestAESHPMaskDeterministic(t *testing.T) {
	key := make([]byte, 16)
	sample := make([]byte, 16)
	for i := range sample {
		sample[i] = byte(i * 3)
	}
	m1, err := aesHPMask(key, sample)
	assert.NoError(t, err)
	m2, err := aesHPMask(key, sample)
	assert.NoError(t, err)
	assert.Equal(t, m1, m2)
	assert.Len(t, m1, 5)
}
