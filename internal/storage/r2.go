package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"path"
	"sort"
	"strings"
	"time"

	"stockinsight/internal/config"
	"stockinsight/internal/models"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/pkg/errors"
)

const separator = "/"

// ErrNotFound is returned when no object matches.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes a stored object
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// MetricsSnapshot is the JSON document stored per brand and fetch.
type MetricsSnapshot struct {
	Brand     string                 `json:"brand"`
	FetchedAt time.Time              `json:"fetched_at"`
	Period    *models.Period         `json:"period,omitempty"`
	Records   []models.MetricsRecord `json:"records"`
}

// R2Store keeps product master files and metric snapshots in an S3 compatible bucket.
type R2Store struct {
	s3            s3iface.S3API
	bucket        string
	masterKey     string
	metricsPrefix string
}

// NewR2Store connects to the configured R2 endpoint.
func NewR2Store(cfg config.R2Config) (*R2Store, error) {
	if !cfg.Enabled() {
		return nil, errors.New("R2 credentials are not configured")
	}
	sess, err := session.NewSession(&aws.Config{
		Endpoint:         aws.String(cfg.EndpointURL),
		Region:           aws.String(cfg.Region),
		Credentials:      credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create R2 session")
	}
	return NewStore(s3.New(sess), cfg), nil
}

// NewStore wraps an existing client.
func NewStore(client s3iface.S3API, cfg config.R2Config) *R2Store {
	return &R2Store{
		s3:            client,
		bucket:        cfg.Bucket,
		masterKey:     cfg.ProductMasterKey,
		metricsPrefix: strings.Trim(cfg.MetricsPrefix, separator),
	}
}

// List returns every object under prefix.
func (r *R2Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	input := &s3.ListObjectsV2Input{Bucket: aws.String(r.bucket)}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}

	var out []ObjectInfo
	for {
		page, err := r.s3.ListObjectsV2WithContext(ctx, input)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list %s/%s", r.bucket, prefix)
		}
		for _, obj := range page.Contents {
			out = append(out, ObjectInfo{
				Key:          aws.StringValue(obj.Key),
				Size:         aws.Int64Value(obj.Size),
				LastModified: aws.TimeValue(obj.LastModified),
			})
		}
		if !aws.BoolValue(page.IsTruncated) || page.NextContinuationToken == nil {
			return out, nil
		}
		input.ContinuationToken = page.NextContinuationToken
	}
}

// LatestCSV finds the most recently modified .csv object in the bucket.
func (r *R2Store) LatestCSV(ctx context.Context) (ObjectInfo, error) {
	objects, err := r.List(ctx, "")
	if err != nil {
		return ObjectInfo{}, err
	}
	return latest(objects, ".csv")
}

// ProductMasterInfo describes the object DownloadProductMaster would read.
func (r *R2Store) ProductMasterInfo(ctx context.Context) (ObjectInfo, error) {
	info, err := r.LatestCSV(ctx)
	if err == nil {
		return info, nil
	}
	if errors.Cause(err) != ErrNotFound {
		return ObjectInfo{}, err
	}

	head, err := r.s3.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(r.masterKey),
	})
	if err != nil {
		return ObjectInfo{}, errors.Wrapf(ErrNotFound, "%s: %v", r.masterKey, err)
	}
	return ObjectInfo{
		Key:          r.masterKey,
		Size:         aws.Int64Value(head.ContentLength),
		LastModified: aws.TimeValue(head.LastModified),
	}, nil
}

// DownloadProductMaster reads the latest CSV, falling back to the configured key.
func (r *R2Store) DownloadProductMaster(ctx context.Context) ([]byte, ObjectInfo, error) {
	info, err := r.ProductMasterInfo(ctx)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	body, err := r.get(ctx, info.Key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	info.Size = int64(len(body))
	return body, info, nil
}

// UploadProductMaster stores content under the configured product master key.
func (r *R2Store) UploadProductMaster(ctx context.Context, content []byte) error {
	return r.put(ctx, r.masterKey, content, "text/csv")
}

// SaveMetrics stores a snapshot as JSON and returns its key.
func (r *R2Store) SaveMetrics(ctx context.Context, snap MetricsSnapshot) (string, error) {
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now().UTC()
	}
	body, err := json.Marshal(snap)
	if err != nil {
		return "", errors.Wrap(err, "failed to encode metrics snapshot")
	}
	key := r.MetricsKey(snap.Brand, snap.FetchedAt)
	if err := r.put(ctx, key, body, "application/json"); err != nil {
		return "", err
	}
	return key, nil
}

// LoadLatestMetrics reads the newest snapshot stored for brand.
func (r *R2Store) LoadLatestMetrics(ctx context.Context, brand string) (MetricsSnapshot, error) {
	objects, err := r.List(ctx, r.metricsDir(brand))
	if err != nil {
		return MetricsSnapshot{}, err
	}
	info, err := latest(objects, ".json")
	if err != nil {
		return MetricsSnapshot{}, errors.Wrapf(err, "no metrics stored for %s", brand)
	}
	body, err := r.get(ctx, info.Key)
	if err != nil {
		return MetricsSnapshot{}, err
	}
	var snap MetricsSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return MetricsSnapshot{}, errors.Wrapf(err, "failed to decode %s", info.Key)
	}
	return snap, nil
}

// MetricsKey is <prefix>/<brand>/<yyyymmdd-hhmmss>.json.
func (r *R2Store) MetricsKey(brand string, at time.Time) string {
	return r.metricsDir(brand) + at.UTC().Format("20060102-150405") + ".json"
}

func (r *R2Store) metricsDir(brand string) string {
	dir := path.Join(r.metricsPrefix, strings.ToLower(strings.TrimSpace(brand)))
	return dir + separator
}

func (r *R2Store) get(ctx context.Context, key string) ([]byte, error) {
	out, err := r.s3.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get %s/%s", r.bucket, key)
	}
	defer out.Body.Close()
	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read %s/%s", r.bucket, key)
	}
	return body, nil
}

func (r *R2Store) put(ctx context.Context, key string, content []byte, contentType string) error {
	_, err := r.s3.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return errors.Wrapf(err, "failed to put %s/%s", r.bucket, key)
	}
	return nil
}

func latest(objects []ObjectInfo, suffix string) (ObjectInfo, error) {
	var matches []ObjectInfo
	for _, o := range objects {
		if strings.HasSuffix(strings.ToLower(o.Key), suffix) {
			matches = append(matches, o)
		}
	}
	if len(matches) == 0 {
		return ObjectInfo{}, errors.Wrapf(ErrNotFound, "no %s objects", suffix)
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].LastModified.After(matches[j].LastModified) })
	return matches[0], nil
}
