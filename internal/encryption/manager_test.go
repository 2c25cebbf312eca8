package encryption

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"

	"admin-auth-service/internal/config"

	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKMS struct {
	calls int
	err   error
}

func (f *fakeKMS) Decrypt(_ context.Context, in *kms.DecryptInput, _ ...func(*kms.Options)) (*kms.DecryptOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if in.EncryptionContext["purpose"] != secretPurpose {
		return nil, errors.New("wrong encryption context")
	}
	return &kms.DecryptOutput{Plaintext: append([]byte("plain:"), in.CiphertextBlob...)}, nil
}

func kmsConfig(enabled bool) *config.Config {
	return &config.Config{KMS: config.KMSConfig{Enabled: enabled, KeyID: "alias/admin-auth", Region: "us-east-1"}}
}

func TestResolveSecretPassthroughWhenDisabled(t *testing.T) {
	fake := &fakeKMS{}
	em := NewEncryptionManager(kmsConfig(false), fake)

	got, err := em.ResolveSecret(context.Background(), "raw-pepper")
	require.NoError(t, err)
	assert.Equal(t, "raw-pepper", got)
	assert.Zero(t, fake.calls)
}

func TestResolveSecretDecryptsAndCaches(t *testing.T) {
	fake := &fakeKMS{}
	em := NewEncryptionManager(kmsConfig(true), fake)
	ciphertext := base64.StdEncoding.EncodeToString([]byte("blob"))

	for i := 0; i < 3; i++ {
		got, err := em.ResolveSecret(context.Background(), ciphertext)
		require.NoError(t, err)
		assert.Equal(t, "plain:blob", got)
	}
	assert.Equal(t, 1, fake.calls)

	em.ClearCache()
	_, err := em.ResolveSecret(context.Background(), ciphertext)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls)
}

func TestResolveSecretErrors(t *testing.T) {
	em := NewEncryptionManager(kmsConfig(true), &fakeKMS{err: errors.New("access denied")})

	_, err := em.ResolveSecret(context.Background(), "not base64!")
	assert.ErrorIs(t, err, ErrDecryptionFailed)

	_, err = em.ResolveSecret(context.Background(), base64.StdEncoding.EncodeToString([]byte("x")))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
	assert.Contains(t, err.Error(), "access denied")
}
