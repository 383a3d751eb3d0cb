// Package backup stores point-in-time project snapshots in an
// S3-compatible bucket.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"contextflow/api/internal/config"
	"contextflow/api/internal/model"
	"contextflow/api/internal/util"
)

// ErrNotFound is returned for keys with no object behind them.
var ErrNotFound = errors.New("snapshot not found")

const keyPrefix = "projects/"

// Snapshot describes one stored backup.
type Snapshot struct {
	Key       string    `json:"key"`
	ProjectID string    `json:"projectId"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

type Minio struct {
	client *minio.Client
	bucket string
	log    *slog.Logger
	now    func() time.Time
}

// NewMinio connects to the bucket described by cfg and creates it when it
// does not exist yet.
func NewMinio(ctx context.Context, cfg config.BackupConfig, log *slog.Logger) (*Minio, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		log.Info("backup bucket created", slog.String("bucket", cfg.Bucket))
	}

	return &Minio{client: client, bucket: cfg.Bucket, log: log, now: time.Now}, nil
}

// Put uploads p under a new key and returns its description.
func (m *Minio) Put(ctx context.Context, p model.Project) (Snapshot, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return Snapshot{}, fmt.Errorf("encode project: %w", err)
	}

	createdAt := m.now().UTC()
	key := snapshotKey(p.ID, createdAt, util.NewID(""))
	_, err = m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  "application/json",
		UserMetadata: map[string]string{"project-id": p.ID},
	})
	if err != nil {
		return Snapshot{}, translateError(err)
	}

	m.log.Info("project snapshot stored", slog.String("project_id", p.ID), slog.String("key", key))
	return Snapshot{Key: key, ProjectID: p.ID, Size: int64(len(data)), CreatedAt: createdAt}, nil
}

// Get downloads and decodes a snapshot.
func (m *Minio) Get(ctx context.Context, key string) (model.Project, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return model.Project{}, translateError(err)
	}
	defer func() {
		_ = obj.Close()
	}()

	data, err := io.ReadAll(obj)
	if err != nil {
		return model.Project{}, translateError(err)
	}

	var p model.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return model.Project{}, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return p, nil
}

// List returns a project's snapshots, newest first.
func (m *Minio) List(ctx context.Context, projectID string) ([]Snapshot, error) {
	snapshots := make([]Snapshot, 0)
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{
		Prefix:    keyPrefix + projectID + "/",
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, translateError(obj.Err)
		}
		snapshots = append(snapshots, Snapshot{
			Key:       obj.Key,
			ProjectID: projectID,
			Size:      obj.Size,
			CreatedAt: obj.LastModified,
		})
	}
	sort.Slice(snapshots, func(i, j int) bool { return snapshots[i].Key > snapshots[j].Key })
	return snapshots, nil
}

// Delete removes one snapshot. Deleting a missing key is not an error.
func (m *Minio) Delete(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return translateError(err)
	}
	return nil
}

// snapshotKey sorts lexically by creation time within a project.
func snapshotKey(projectID string, createdAt time.Time, nonce string) string {
	if len(nonce) > 8 {
		nonce = nonce[:8]
	}
	return path.Join(strings.TrimSuffix(keyPrefix, "/"), projectID, createdAt.Format("20060102T150405.000Z")+"-"+nonce+".json")
}

func translateError(err error) error {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket":
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	default:
		return fmt.Errorf("minio: %w", err)
	}
}
