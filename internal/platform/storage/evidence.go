// Package storage issues signed Cloud Storage URLs for return evidence photos.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/oklog/ulid/v2"
)

const (
	defaultUploadTTL  = 15 * time.Minute
	defaultMaxUpload  = 10 << 20
	evidencePrefix    = "return-evidence"
	publicURLTemplate = "https://storage.googleapis.com/%s/%s"
)

var (
	// ErrContentTypeNotAllowed rejects uploads that are not images.
	ErrContentTypeNotAllowed = errors.New("storage: content type not allowed")
	// ErrNotConfigured is returned when no bucket or signer is available.
	ErrNotConfigured = errors.New("storage: evidence uploads not configured")
)

var imageExtensions = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

// UploadTicket is handed to the client, which PUTs the file to URL with Headers and later
// submits ObjectURL as the evidence image.
type UploadTicket struct {
	URL        string
	Method     string
	Headers    map[string]string
	ObjectName string
	ObjectURL  string
	ExpiresAt  time.Time
}

// EvidenceUploads signs short-lived PUT URLs scoped to one object per upload.
type EvidenceUploads struct {
	bucket  string
	signer  Signer
	ttl     time.Duration
	maxSize int64
	now     func() time.Time
	newID   func() string
}

// Option customises EvidenceUploads.
type Option func(*EvidenceUploads)

// WithTTL sets how long signed URLs remain valid.
func WithTTL(ttl time.Duration) Option {
	return func(e *EvidenceUploads) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithClock injects a time source.
func WithClock(now func() time.Time) Option {
	return func(e *EvidenceUploads) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDGenerator overrides object id generation.
func WithIDGenerator(fn func() string) Option {
	return func(e *EvidenceUploads) {
		if fn != nil {
			e.newID = fn
		}
	}
}

// NewEvidenceUploads constructs the signer for bucket.
func NewEvidenceUploads(bucket string, signer Signer, opts ...Option) (*EvidenceUploads, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" || signer == nil || strings.TrimSpace(signer.Email()) == "" {
		return nil, ErrNotConfigured
	}
	e := &EvidenceUploads{
		bucket:  bucket,
		signer:  signer,
		ttl:     defaultUploadTTL,
		maxSize: defaultMaxUpload,
		now:     time.Now,
		newID:   func() string { return strings.ToLower(ulid.Make().String()) },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// UploadURL signs a PUT for a new object under the owner's evidence folder.
func (e *EvidenceUploads) UploadURL(ctx context.Context, ownerID, contentType string) (UploadTicket, error) {
	if e == nil {
		return UploadTicket{}, ErrNotConfigured
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	ext, ok := imageExtensions[contentType]
	if !ok {
		return UploadTicket{}, fmt.Errorf("%w: %q", ErrContentTypeNotAllowed, contentType)
	}
	owner := strings.TrimSpace(ownerID)
	if owner == "" {
		owner = "anonymous"
	}

	object := path.Join(evidencePrefix, url.PathEscape(owner), e.newID()+ext)
	expires := e.now().Add(e.ttl).UTC()
	sizeRange := fmt.Sprintf("0,%d", e.maxSize)

	signed, err := gcs.SignedURL(e.bucket, object, &gcs.SignedURLOptions{
		GoogleAccessID: e.signer.Email(),
		Scheme:         gcs.SigningSchemeV4,
		Method:         "PUT",
		ContentType:    contentType,
		Expires:        expires,
		Headers:        []string{"x-goog-content-length-range:" + sizeRange},
		SignBytes: func(payload []byte) ([]byte, error) {
			return e.signer.SignBytes(ctx, payload)
		},
	})
	if err != nil {
		return UploadTicket{}, fmt.Errorf("storage: sign upload url: %w", err)
	}

	return UploadTicket{
		URL:    signed,
		Method: "PUT",
		Headers: map[string]string{
			"Content-Type":                contentType,
			"x-goog-content-length-range": sizeRange,
		},
		ObjectName: object,
		ObjectURL:  fmt.Sprintf(publicURLTemplate, e.bucket, object),
		ExpiresAt:  expires,
	}, nil
}

// Owns reports whether rawURL points at an evidence object of this bucket.
func (e *EvidenceUploads) Owns(rawURL string) bool {
	if e == nil {
		return false
	}
	prefix := fmt.Sprintf(publicURLTemplate, e.bucket, evidencePrefix+"/")
	return strings.HasPrefix(strings.TrimSpace(rawURL), prefix)
}
