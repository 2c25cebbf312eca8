package encryption

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"admin-auth-service/internal/config"
	"admin-auth-service/internal/util"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

var ErrDecryptionFailed = errors.New("decryption failed")

// secretPurpose is bound into every decrypt call as KMS encryption context.
// Ciphertexts must be produced with the same context, e.g.
//
//	aws kms encrypt --encryption-context purpose=admin-auth-secret ...
const secretPurpose = "admin-auth-secret"

// KMSAPI is the subset of the KMS client used here.
type KMSAPI interface {
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// EncryptionManager resolves configured secrets (the password peppers) to
// plaintext. With KMS disabled the configured value is already plaintext;
// with KMS enabled it is base64 ciphertext decrypted once and cached.
type EncryptionManager struct {
	kmsClient KMSAPI
	config    *config.Config
	cache     sync.Map
}

func NewEncryptionManager(cfg *config.Config, kmsClient KMSAPI) *EncryptionManager {
	return &EncryptionManager{
		kmsClient: kmsClient,
		config:    cfg,
	}
}

// NewKMSClient builds a KMS client from the default AWS credential chain.
func NewKMSClient(ctx context.Context, cfg *config.Config) (*kms.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.KMS.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return kms.NewFromConfig(awsCfg), nil
}

// ResolveSecret returns the plaintext of a configured secret.
func (em *EncryptionManager) ResolveSecret(ctx context.Context, value string) (string, error) {
	if value == "" || !em.config.KMS.Enabled {
		return value, nil
	}
	if cached, ok := em.cache.Load(value); ok {
		return cached.(string), nil
	}
	if em.kmsClient == nil {
		return "", fmt.Errorf("%w: kms client not configured", ErrDecryptionFailed)
	}

	blob, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return "", fmt.Errorf("%w: secret is not base64 ciphertext", ErrDecryptionFailed)
	}

	out, err := em.kmsClient.Decrypt(ctx, &kms.DecryptInput{
		CiphertextBlob:    blob,
		KeyId:             aws.String(em.config.KMS.KeyID),
		EncryptionContext: map[string]string{"purpose": secretPurpose},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	plaintext := string(out.Plaintext)
	em.cache.Store(value, plaintext)
	util.Info("Secret decrypted via KMS", util.String("key_id", em.config.KMS.KeyID))
	return plaintext, nil
}

// ClearCache drops every cached plaintext.
func (em *EncryptionManager) ClearCache() {
	em.cache.Range(func(key, _ any) bool {
		em.cache.Delete(key)
		return true
	})
}
