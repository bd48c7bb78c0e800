package keyvault

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// KMSCipher seals store records through a symmetric AWS KMS key.
type KMSCipher struct {
	keyID  string
	client *kms.Client
}

var _ Cipher = (*KMSCipher)(nil)

// NewKMSCipher builds a cipher for the given KMS key. Credentials come
// from the default chain (env vars, shared config, IAM role).
func NewKMSCipher(keyID, region string) (*KMSCipher, error) {
	if keyID == "" {
		return nil, fmt.Errorf("AWS KMS key ID is required")
	}
	if region == "" {
		return nil, fmt.Errorf("AWS region is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &KMSCipher{keyID: keyID, client: kms.NewFromConfig(cfg)}, nil
}

func (c *KMSCipher) Encrypt(ctx context.Context, data []byte) ([]byte, error) {
	out, err := c.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(c.keyID),
		Plaintext: data,
	})
	if err != nil {
		return nil, fmt.Errorf("AWS KMS encrypt failed: %w", err)
	}
	return out.CiphertextBlob, nil
}

func (c *KMSCipher) Decrypt(ctx context.Context, encrypted []byte) ([]byte, error) {
	out, err := c.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:          aws.String(c.keyID),
		CiphertextBlob: encrypted,
	})
	if err != nil {
		return nil, fmt.Errorf("AWS KMS decrypt failed: %w", err)
	}
	return out.Plaintext, nil
}

func (c *KMSCipher) Provider() string {
	return string(ProviderAWSKMS)
}
