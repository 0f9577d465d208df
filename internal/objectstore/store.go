// Package objectstore keeps lineage graphs in an S3-compatible bucket.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/leapstack-labs/leapmigrate/pkg/core"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrNotFound is returned when a lineage object does not exist.
var ErrNotFound = errors.New("lineage object not found")

// Config describes the bucket lineage graphs are stored in.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	// Prefix is prepended to every object key
	Prefix string
}

// Store reads and writes lineage graphs as JSON objects keyed by
// {prefix}/{user}/lineages/{lineage}.json.
type Store struct {
	client     *minio.Client
	bucketName string
	region     string
	prefix     string
	logger     *slog.Logger

	initOnce sync.Once
	initErr  error
}

// New creates a store. The bucket is created on first use if missing.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	access := strings.TrimSpace(cfg.AccessKey)
	secret := strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, fmt.Errorf("s3 access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}

	return &Store{
		client:     client,
		bucketName: bucket,
		region:     region,
		prefix:     strings.Trim(strings.TrimSpace(cfg.Prefix), "/"),
		logger:     logger,
	}, nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	s.initOnce.Do(func() {
		exists, err := s.client.BucketExists(ctx, s.bucketName)
		if err != nil {
			s.initErr = err
			return
		}
		if exists {
			return
		}
		s.logger.Info("creating lineage bucket", "bucket", s.bucketName)
		s.initErr = s.client.MakeBucket(ctx, s.bucketName, minio.MakeBucketOptions{Region: s.region})
	})
	return s.initErr
}

// PutLineage stores the graph of one lineage.
func (s *Store) PutLineage(ctx context.Context, userID, lineageID string, g core.LineageGraph) error {
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("encode lineage %s: %w", lineageID, err)
	}

	key := s.objectKey(userID, lineageID)
	_, err = s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("put lineage %s: %w", lineageID, err)
	}
	return nil
}

// FetchLineage loads the graph of one lineage.
func (s *Store) FetchLineage(ctx context.Context, lineageID, userID string) (*core.LineageGraph, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}

	key := s.objectKey(userID, lineageID)
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapError(lineageID, err)
	}
	defer obj.Close()

	g, err := decodeGraph(obj)
	if err != nil {
		return nil, mapError(lineageID, err)
	}
	return g, nil
}

// DeleteLineages removes stored graphs. Missing objects are ignored.
func (s *Store) DeleteLineages(ctx context.Context, userID string, lineageIDs []string) error {
	if err := s.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}

	for _, id := range lineageIDs {
		err := s.client.RemoveObject(ctx, s.bucketName, s.objectKey(userID, id), minio.RemoveObjectOptions{})
		if err != nil && !isNotFound(err) {
			return fmt.Errorf("delete lineage %s: %w", id, err)
		}
	}
	return nil
}

func (s *Store) objectKey(userID, lineageID string) string {
	key := url.PathEscape(strings.TrimSpace(userID)) + "/lineages/" + url.PathEscape(strings.TrimSpace(lineageID)) + ".json"
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func decodeGraph(r io.Reader) (*core.LineageGraph, error) {
	var g core.LineageGraph
	dec := json.NewDecoder(r)
	if err := dec.Decode(&g); err != nil {
		return nil, err
	}
	return &g, nil
}

func isNotFound(err error) bool {
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NoSuchBucket"
}

func mapError(lineageID string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("lineage %s: %w", lineageID, ErrNotFound)
	}
	return fmt.Errorf("get lineage %s: %w", lineageID, err)
}
