// internal/services/storage_service.go
package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/idlabstudio/idlab-backend/internal/config"
)

const paymentProofFolder = "payment-proofs"

// LocalUploadDir receives uploads when S3 is not configured.
var LocalUploadDir = "uploads"

type StorageService struct {
	s3Client *s3.S3
	config   *config.Config
	now      func() time.Time
}

type UploadResult struct {
	URL      string `json:"url"`
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

type UploadOptions struct {
	Folder       string
	MaxSize      int64 // in bytes
	AllowedTypes []string
}

func NewStorageService(config *config.Config) (*StorageService, error) {
	s := &StorageService{config: config, now: time.Now}
	if config.AWS.AccessKeyID == "" {
		// Without credentials uploads only produce local URLs
		return s, nil
	}

	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(config.AWS.Region),
		Credentials: credentials.NewStaticCredentials(
			config.AWS.AccessKeyID,
			config.AWS.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	s.s3Client = s3.New(sess)
	return s, nil
}

func PaymentProofUploadOptions() UploadOptions {
	return UploadOptions{
		Folder:       paymentProofFolder,
		MaxSize:      10 * 1024 * 1024, // 10MB
		AllowedTypes: []string{".jpg", ".jpeg", ".png", ".pdf", ".webp"},
	}
}

// UploadPaymentProof stores a customer's proof of payment.
func (s *StorageService) UploadPaymentProof(ctx context.Context, file io.Reader, filename string, size int64) (*UploadResult, error) {
	options := PaymentProofUploadOptions()

	if size > options.MaxSize {
		return nil, wrapError(CodeInvalidArgument, "file is too large", fmt.Errorf("%d bytes exceeds %d", size, options.MaxSize))
	}

	fileExt := strings.ToLower(filepath.Ext(filename))
	if !contains(options.AllowedTypes, fileExt) {
		return nil, newError(CodeInvalidArgument, fmt.Sprintf("file type %s is not allowed", fileExt))
	}

	fileBytes, err := io.ReadAll(io.LimitReader(file, options.MaxSize+1))
	if err != nil {
		return nil, internalError("failed to read file", err)
	}
	if int64(len(fileBytes)) > options.MaxSize {
		return nil, newError(CodeInvalidArgument, "file is too large")
	}

	contentType := http.DetectContentType(fileBytes)
	if !isProofContentType(contentType) {
		return nil, newError(CodeInvalidArgument, "file content is not an image or PDF")
	}

	key := s.generateFileName(filename, options.Folder)

	if s.s3Client != nil {
		return s.uploadToS3(ctx, fileBytes, key, contentType)
	}
	return s.uploadToLocal(fileBytes, key, contentType)
}

func (s *StorageService) uploadToS3(ctx context.Context, fileBytes []byte, key, contentType string) (*UploadResult, error) {
	params := &s3.PutObjectInput{
		Bucket:        aws.String(s.config.AWS.S3Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(fileBytes),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(fileBytes))),
	}

	if _, err := s.s3Client.PutObjectWithContext(ctx, params); err != nil {
		return nil, internalError("failed to upload payment proof", err)
	}

	return &UploadResult{
		URL:      s.getS3URL(key),
		Path:     key,
		Size:     int64(len(fileBytes)),
		MimeType: contentType,
	}, nil
}

// uploadToLocal writes under LocalUploadDir, which the router serves in
// development.
func (s *StorageService) uploadToLocal(fileBytes []byte, key, contentType string) (*UploadResult, error) {
	target := filepath.Join(LocalUploadDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, internalError("failed to create upload directory", err)
	}
	if err := os.WriteFile(target, fileBytes, 0o644); err != nil {
		return nil, internalError("failed to store file", err)
	}

	logrus.WithField("path", key).Warn("S3 not configured, payment proof stored locally")

	return &UploadResult{
		URL:      fmt.Sprintf("%s/uploads/%s", s.config.Frontend.PublicURL, key),
		Path:     key,
		Size:     int64(len(fileBytes)),
		MimeType: contentType,
	}, nil
}

// PresignProof returns a short lived URL for reviewing a stored proof.
func (s *StorageService) PresignProof(path string, expiration time.Duration) (string, error) {
	if s.s3Client == nil {
		return "", newError(CodeFailedPrecondition, "file storage is not configured")
	}
	if !strings.HasPrefix(path, paymentProofFolder+"/") {
		return "", newError(CodeInvalidArgument, "not a payment proof path")
	}

	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.config.AWS.S3Bucket),
		Key:    aws.String(path),
	})

	url, err := req.Presign(expiration)
	if err != nil {
		return "", internalError("failed to generate presigned URL", err)
	}
	return url, nil
}

func (s *StorageService) generateFileName(originalName, folder string) string {
	ext := strings.ToLower(filepath.Ext(originalName))
	timestamp := s.now().UTC().Format("20060102")
	filename := fmt.Sprintf("%s_%s%s", timestamp, uuid.NewString(), ext)

	if folder != "" {
		return fmt.Sprintf("%s/%s", folder, filename)
	}
	return filename
}

func (s *StorageService) getS3URL(key string) string {
	if s.config.AWS.CloudFrontURL != "" {
		return fmt.Sprintf("%s/%s", s.config.AWS.CloudFrontURL, key)
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s",
		s.config.AWS.S3Bucket, s.config.AWS.Region, key)
}

func isProofContentType(contentType string) bool {
	return strings.HasPrefix(contentType, "image/") || strings.HasPrefix(contentType, "application/pdf")
}

func contains(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
