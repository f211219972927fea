// internal/services/storage_service_test.go
package services

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestUploadPaymentProofStoresLocally(t *testing.T) {
	LocalUploadDir = t.TempDir()
	storage, err := NewStorageService(testConfig())
	require.NoError(t, err)

	result, err := storage.UploadPaymentProof(context.Background(), bytes.NewReader(pngHeader), "Receipt.PNG", int64(len(pngHeader)))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.Path, "payment-proofs/"))
	assert.True(t, strings.HasSuffix(result.Path, ".png"))
	assert.Equal(t, "image/png", result.MimeType)
	assert.Equal(t, "https://api.idlab.test/uploads/"+result.Path, result.URL)

	stored, err := os.ReadFile(filepath.Join(LocalUploadDir, filepath.FromSlash(result.Path)))
	require.NoError(t, err)
	assert.Equal(t, pngHeader, stored)
}

func TestUploadPaymentProofRejectsBadFiles(t *testing.T) {
	LocalUploadDir = t.TempDir()
	storage, err := NewStorageService(testConfig())
	require.NoError(t, err)
	ctx := context.Background()

	_, err = storage.UploadPaymentProof(ctx, bytes.NewReader(pngHeader), "receipt.exe", int64(len(pngHeader)))
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = storage.UploadPaymentProof(ctx, bytes.NewReader(pngHeader), "receipt.png", 11*1024*1024)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	script := []byte("#!/bin/sh\necho hi\n")
	_, err = storage.UploadPaymentProof(ctx, bytes.NewReader(script), "receipt.pdf", int64(len(script)))
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPresignProof(t *testing.T) {
	storage, err := NewStorageService(testConfig())
	require.NoError(t, err)
	_, err = storage.PresignProof("payment-proofs/a.png", time.Minute)
	assert.ErrorIs(t, err, ErrFailedPrecondition)

	cfg := testConfig()
	cfg.AWS.AccessKeyID = "AKIAEXAMPLE"
	cfg.AWS.SecretAccessKey = "example-secret"
	cfg.AWS.Region = "af-south-1"
	cfg.AWS.S3Bucket = "idlab-proofs"
	storage, err = NewStorageService(cfg)
	require.NoError(t, err)

	url, err := storage.PresignProof("payment-proofs/a.png", time.Minute)
	require.NoError(t, err)
	assert.Contains(t, url, "idlab-proofs")
	assert.Contains(t, url, "X-Amz-Signature=")

	_, err = storage.PresignProof("../secrets.txt", time.Minute)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
