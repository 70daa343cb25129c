// internal/services/media_service.go
package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/javajoker/broadcast-backend/internal/config"
	"github.com/javajoker/broadcast-backend/internal/repository"
)

// MediaService signs the voice and image references stored on a broadcast.
type MediaService struct {
	s3Client *s3.S3
	repo     repository.Repository
	clk      clock.Clock
	bucket   string
	ttl      time.Duration
}

type MediaURLs struct {
	VoiceURL  string    `json:"voice_url,omitempty"`
	ImageURLs []string  `json:"image_urls"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewMediaService(cfg config.AWSConfig, repo repository.Repository, clk clock.Clock) (*MediaService, error) {
	if cfg.AccessKeyID == "" {
		// Return service without S3 for local development
		return &MediaService{repo: repo, clk: clk, bucket: cfg.S3Bucket, ttl: cfg.PresignTTL}, nil
	}

	// Create AWS session
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.Region),
		Credentials: credentials.NewStaticCredentials(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &MediaService{
		s3Client: s3.New(sess),
		repo:     repo,
		clk:      clk,
		bucket:   cfg.S3Bucket,
		ttl:      cfg.PresignTTL,
	}, nil
}

// MediaURLs returns readable URLs for the broadcast's media. The customer,
// an admin, or a candidate merchant may ask.
func (s *MediaService) MediaURLs(ctx context.Context, actor Actor, broadcastID uuid.UUID) (*MediaURLs, error) {
	b, err := s.repo.GetBroadcast(ctx, broadcastID)
	if err != nil {
		return nil, err
	}
	if b.CustomerID != actor.ID && !actor.IsAdmin() && !(actor.IsMerchant() && b.HasMerchant(actor.ID)) {
		return nil, ErrForbidden
	}

	out := &MediaURLs{ImageURLs: make([]string, 0, len(b.ImageURLs)), ExpiresAt: s.clk.Now().UTC().Add(s.ttl)}
	if b.VoiceURL != "" {
		if out.VoiceURL, err = s.Sign(b.VoiceURL); err != nil {
			return nil, err
		}
	}
	for _, ref := range b.ImageURLs {
		url, err := s.Sign(ref)
		if err != nil {
			return nil, err
		}
		out.ImageURLs = append(out.ImageURLs, url)
	}
	return out, nil
}

// Sign presigns a GET for an object key. Absolute URLs are returned
// unchanged, as are keys when S3 is not configured.
func (s *MediaService) Sign(ref string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref, nil
	}
	if s.s3Client == nil {
		return "/uploads/" + strings.TrimLeft(ref, "/"), nil
	}

	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(strings.TrimLeft(ref, "/")),
	})

	url, err := req.Presign(s.ttl)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return url, nil
}
