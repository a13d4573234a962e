// Package artifact stores rendered Investigation reports in an S3-compatible
// object store. Writes are idempotent: a HEAD check runs before every PUT so
// re-running the same job within its freshness window never overwrites a
// report that's still current, while a stale or missing object is always
// replaced.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	smithyhttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/tarkyaio/tarka/pkg/models"
)

// Store writes Markdown/JSON investigation reports to an S3-compatible
// bucket under a date-and-identity-partitioned key, and is the only
// component allowed to mutate Investigation.ArtifactKeyMD/ArtifactKeyJSON.
type Store struct {
	client     *s3.Client
	bucket     string
	prefix     string
	freshness  time.Duration
}

// NewStore builds a Store. endpointURL is non-empty for MinIO/Ceph-compatible
// deployments (path-style addressing); empty selects real AWS S3.
func NewStore(ctx context.Context, bucket, prefix, endpointURL string, freshness time.Duration) (*Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpointURL != "" {
			o.BaseEndpoint = aws.String(endpointURL)
			o.UsePathStyle = true
		}
	})

	return &Store{client: client, bucket: bucket, prefix: prefix, freshness: freshness}, nil
}

// Put writes both the Markdown and JSON forms of inv, skipping either object
// whose existing copy is still within the freshness window, and records the
// keys it wrote (or already found fresh) onto inv. caseID is the owning
// case's identifier, threaded through only for the x-case-id object header —
// Investigation itself does not carry a case/run split, that linkage lives
// in pkg/services.
func (s *Store) Put(ctx context.Context, caseID string, inv *models.Investigation) error {
	mdKey := s.key(inv, "md")
	jsonKey := s.key(inv, "json")

	if err := s.putIfStale(ctx, mdKey, []byte(inv.ReportMarkdown), "text/markdown", caseID, inv.ID); err != nil {
		return fmt.Errorf("writing markdown artifact: %w", err)
	}
	inv.ArtifactKeyMD = mdKey

	if err := s.putIfStale(ctx, jsonKey, []byte(inv.ReportJSON), "application/json", caseID, inv.ID); err != nil {
		return fmt.Errorf("writing json artifact: %w", err)
	}
	inv.ArtifactKeyJSON = jsonKey

	return nil
}

// key builds `<prefix>/<yyyy-mm-dd>/<identity_hash>-<family>-<dedup_bucket>.<ext>`.
func (s *Store) key(inv *models.Investigation, ext string) string {
	day := inv.CompletedAt.UTC().Format("2006-01-02")
	idHash := identityHash(inv.Identity)
	return fmt.Sprintf("%s/%s/%s-%s-%d.%s", s.prefix, day, idHash, familySlug(inv.Family), dedupBucket(inv), ext)
}

func identityHash(id models.Identity) string {
	sum := sha256.Sum256([]byte(id.Kind + "/" + id.Namespace + "/" + id.Name))
	return hex.EncodeToString(sum[:])[:12]
}

func familySlug(f models.Family) string {
	return strings.ReplaceAll(strings.ToLower(string(f)), " ", "_")
}

// dedupBucket derives the same coarse time bucket ingestion used to key the
// durable queue entry, so an artifact key can be recomputed independently
// from a case/run record without needing the original job's bucket value
// threaded all the way through.
func dedupBucket(inv *models.Investigation) int64 {
	return inv.CompletedAt.Truncate(time.Hour).Unix()
}

// putIfStale issues a HEAD request; if the object is absent or its
// LastModified predates the freshness window it PUTs the new body, otherwise
// it leaves the existing object untouched.
func (s *Store) putIfStale(ctx context.Context, key string, body []byte, contentType, caseID, runID string) error {
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err == nil {
		if time.Since(*head.LastModified) < s.freshness {
			slog.Debug("artifact: object still fresh, skipping write", "key", key)
			return nil
		}
	} else if !isNotFound(err) {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        strings.NewReader(string(body)),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"x-run-id":  runID,
			"x-case-id": caseID,
		},
	})
	return err
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		return respErr.HTTPStatusCode() == 404
	}
	return false
}
