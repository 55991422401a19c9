// Package encryption implements envelope encryption for record field
// values: each value is sealed with a fresh KMS data key under AES-GCM,
// with the field name bound into the additional authenticated data so an
// envelope cannot be replayed onto another field.
package encryption

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmsTypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
)

// envelopePrefix marks an encrypted value and carries the envelope version.
const envelopePrefix = "strata:enc:v1:"

// ErrInvalidEnvelope reports a value that carries the envelope prefix but
// cannot be parsed as an envelope.
var ErrInvalidEnvelope = errors.New("invalid encrypted envelope")

type envelope struct {
	EDK   []byte `json:"edk"`
	Nonce []byte `json:"nonce"`
	CT    []byte `json:"ct"`
}

type kmsAPI interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// Service encrypts and decrypts individual record field values with AWS KMS.
type Service struct {
	keyARN string
	kms    kmsAPI
	rand   io.Reader
}

func NewService(keyARN string, kmsClient kmsAPI) *Service {
	return &Service{
		keyARN: keyARN,
		kms:    kmsClient,
		rand:   rand.Reader,
	}
}

func NewServiceFromAWSConfig(cfg aws.Config, keyARN string) *Service {
	return NewService(keyARN, kms.NewFromConfig(cfg))
}

// EncryptValue seals one field value into a self-describing envelope string.
func (s *Service) EncryptValue(ctx context.Context, field string, value any) (string, error) {
	if err := s.validate(field); err != nil {
		return "", err
	}

	plaintext, err := json.Marshal(value)
	if err != nil {
		return "", fmt.Errorf("encode field %s: %w", field, err)
	}

	dataKey, err := s.kms.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(s.keyARN),
		KeySpec: kmsTypes.DataKeySpecAes256,
	})
	if err != nil {
		return "", fmt.Errorf("kms GenerateDataKey failed: %w", err)
	}
	if len(dataKey.Plaintext) != 32 {
		return "", fmt.Errorf("unexpected data key plaintext length: %d", len(dataKey.Plaintext))
	}
	if len(dataKey.CiphertextBlob) == 0 {
		return "", fmt.Errorf("kms returned empty ciphertext data key")
	}

	gcm, err := newGCM(dataKey.Plaintext)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(s.rand, nonce); err != nil {
		return "", fmt.Errorf("nonce generation failed: %w", err)
	}

	ct := gcm.Seal(nil, nonce, plaintext, aadForField(field))
	raw, err := json.Marshal(envelope{EDK: dataKey.CiphertextBlob, Nonce: nonce, CT: ct})
	if err != nil {
		return "", fmt.Errorf("encode envelope for %s: %w", field, err)
	}
	return envelopePrefix + base64.StdEncoding.EncodeToString(raw), nil
}

// DecryptValue opens an envelope produced by EncryptValue. Strings without
// the envelope prefix pass through unchanged, so fields written before
// encryption was enabled stay readable.
func (s *Service) DecryptValue(ctx context.Context, field string, value string) (any, error) {
	if err := s.validate(field); err != nil {
		return nil, err
	}

	encoded, ok := strings.CutPrefix(value, envelopePrefix)
	if !ok {
		return value, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if len(env.EDK) == 0 || len(env.Nonce) == 0 || len(env.CT) == 0 {
		return nil, fmt.Errorf("%w: missing envelope component", ErrInvalidEnvelope)
	}

	dec, err := s.kms.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: env.EDK})
	if err != nil {
		return nil, fmt.Errorf("kms Decrypt failed: %w", err)
	}
	if len(dec.Plaintext) != 32 {
		return nil, fmt.Errorf("unexpected data key plaintext length: %d", len(dec.Plaintext))
	}

	gcm, err := newGCM(dec.Plaintext)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, env.Nonce, env.CT, aadForField(field))
	if err != nil {
		return nil, fmt.Errorf("aes-gcm decrypt failed: %w", err)
	}

	var out any
	if err := json.Unmarshal(plaintext, &out); err != nil {
		return nil, fmt.Errorf("decode field %s: %w", field, err)
	}
	return out, nil
}

func (s *Service) validate(field string) error {
	if s == nil {
		return fmt.Errorf("encryption service is nil")
	}
	if s.kms == nil {
		return fmt.Errorf("kms client is nil")
	}
	if s.keyARN == "" {
		return fmt.Errorf("kms key ARN is empty")
	}
	if field == "" {
		return fmt.Errorf("field name is empty")
	}
	return nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher init failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("aes-gcm init failed: %w", err)
	}
	return gcm, nil
}

func aadForField(field string) []byte {
	return []byte("strata:encrypted:v1|field=" + field)
}
