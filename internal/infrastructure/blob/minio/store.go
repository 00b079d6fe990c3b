// Package minio persists run artifacts and configuration profiles in an
// S3-compatible bucket: status documents, append-only run logs, dry-run
// plan exports and per-owner profiles. Signed download links for the run
// artifacts come from the same client.
package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/mhduong/docsorter/internal/core/domain"
	"github.com/mhduong/docsorter/internal/core/ports"
)

type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type Store struct {
	client *minio.Client
	bucket string
}

var (
	_ ports.RunStore     = (*Store)(nil)
	_ ports.ProfileStore = (*Store)(nil)
	_ ports.PlanWriter   = (*Store)(nil)
)

func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket: %w", err)
		}
	}
	return &Store{client: client, bucket: cfg.Bucket}, nil
}

func statusKey(runID string) string { return "runs/" + runID + "/status.json" }

func logsKey(runID string) string { return "runs/" + runID + "/logs.ndjson" }

func planKey(runID string) string { return "runs/" + runID + "/plan.ndjson" }

func profileKey(owner, id string) string {
	return "configs/" + owner + "/" + id + ".json"
}

func defaultProfileKey(owner string) string {
	return "configs/" + owner + "/default.json"
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
}

func (s *Store) getObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	raw, err := io.ReadAll(obj)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (s *Store) putObject(ctx context.Context, key string, raw []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(raw), int64(len(raw)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

// WriteStatus persists a run record. Meta recorded at run creation is
// preserved when a later write carries none, and a terminal state is never
// overwritten by a progress write.
func (s *Store) WriteStatus(ctx context.Context, runID string, rec domain.RunRecord) error {
	prev, err := s.ReadStatus(ctx, runID)
	if err != nil && !domain.IsKind(err, domain.ErrRunNotFound) {
		return err
	}
	if prev != nil {
		if rec.Meta == nil {
			rec.Meta = prev.Meta
		}
		if prev.State.Terminal() && !rec.State.Terminal() {
			return nil
		}
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal status: %w", err)
	}
	if err := s.putObject(ctx, statusKey(runID), raw, "application/json"); err != nil {
		return domain.WrapError(domain.ErrTemporary, "blob.write_status", err)
	}
	return nil
}

func (s *Store) ReadStatus(ctx context.Context, runID string) (*domain.RunRecord, error) {
	raw, err := s.getObject(ctx, statusKey(runID))
	if err != nil {
		if isNotFound(err) {
			return nil, domain.WrapError(domain.ErrRunNotFound, "blob.read_status", err)
		}
		return nil, domain.WrapError(domain.ErrTemporary, "blob.read_status", err)
	}
	var rec domain.RunRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidStatus, "blob.read_status", err)
	}
	return &rec, nil
}

// AppendLog adds one NDJSON line to the run log. The bucket has no append
// primitive, so this is a read-extend-write on the log object; log volume
// per run is small enough for that.
func (s *Store) AppendLog(ctx context.Context, runID string, entry domain.LogEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal log entry: %w", err)
	}

	existing, err := s.getObject(ctx, logsKey(runID))
	if err != nil && !isNotFound(err) {
		return domain.WrapError(domain.ErrTemporary, "blob.append_log", err)
	}

	buf := append(existing, line...)
	buf = append(buf, '\n')
	if err := s.putObject(ctx, logsKey(runID), buf, "application/x-ndjson"); err != nil {
		return domain.WrapError(domain.ErrTemporary, "blob.append_log", err)
	}
	return nil
}

// WritePlan appends one dry-run plan record to the run's plan export.
func (s *Store) WritePlan(ctx context.Context, runID string, rec domain.PlanRecord) error {
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal plan record: %w", err)
	}

	existing, err := s.getObject(ctx, planKey(runID))
	if err != nil && !isNotFound(err) {
		return domain.WrapError(domain.ErrTemporary, "blob.write_plan", err)
	}

	buf := append(existing, line...)
	buf = append(buf, '\n')
	if err := s.putObject(ctx, planKey(runID), buf, "application/x-ndjson"); err != nil {
		return domain.WrapError(domain.ErrTemporary, "blob.write_plan", err)
	}
	return nil
}

// ListStatuses loads the newest run records, most recent first.
func (s *Store) ListStatuses(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	var out []domain.RunRecord
	for info := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    "runs/",
		Recursive: true,
	}) {
		if info.Err != nil {
			return nil, domain.WrapError(domain.ErrTemporary, "blob.list", info.Err)
		}
		if !strings.HasSuffix(info.Key, "/status.json") {
			continue
		}
		raw, err := s.getObject(ctx, info.Key)
		if err != nil {
			continue
		}
		var rec domain.RunRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		out = append(out, rec)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) PresignStatus(ctx context.Context, runID string, ttl time.Duration) (string, error) {
	u, err := s.client.PresignedGetObject(ctx, s.bucket, statusKey(runID), ttl, url.Values{})
	if err != nil {
		return "", domain.WrapError(domain.ErrTemporary, "blob.presign", err)
	}
	return u.String(), nil
}

// PresignLogs returns a signed link for the run log, or ok=false when the
// run never wrote one.
func (s *Store) PresignLogs(ctx context.Context, runID string, ttl time.Duration) (string, bool, error) {
	_, err := s.client.StatObject(ctx, s.bucket, logsKey(runID), minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, domain.WrapError(domain.ErrTemporary, "blob.presign", err)
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, logsKey(runID), ttl, url.Values{})
	if err != nil {
		return "", false, domain.WrapError(domain.ErrTemporary, "blob.presign", err)
	}
	return u.String(), true, nil
}

func (s *Store) SaveProfile(ctx context.Context, profile domain.ConfigProfile) error {
	if profile.OwnerHash == "" || profile.ProfileID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "blob.save_profile",
			errors.New("owner hash and profile id are required"))
	}
	raw, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	if err := s.putObject(ctx, profileKey(profile.OwnerHash, profile.ProfileID), raw, "application/json"); err != nil {
		return domain.WrapError(domain.ErrTemporary, "blob.save_profile", err)
	}
	return nil
}

func (s *Store) LoadProfile(ctx context.Context, ownerHash, profileID string) (*domain.ConfigProfile, error) {
	raw, err := s.getObject(ctx, profileKey(ownerHash, profileID))
	if err != nil {
		if isNotFound(err) {
			return nil, domain.WrapError(domain.ErrConfigNotFound, "blob.load_profile", err)
		}
		return nil, domain.WrapError(domain.ErrTemporary, "blob.load_profile", err)
	}
	var profile domain.ConfigProfile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "blob.load_profile", err)
	}
	return &profile, nil
}

func (s *Store) SetDefaultProfile(ctx context.Context, ownerHash, profileID string) error {
	raw, err := json.Marshal(map[string]string{"profile_id": profileID})
	if err != nil {
		return fmt.Errorf("marshal default pointer: %w", err)
	}
	if err := s.putObject(ctx, defaultProfileKey(ownerHash), raw, "application/json"); err != nil {
		return domain.WrapError(domain.ErrTemporary, "blob.set_default", err)
	}
	return nil
}

func (s *Store) DefaultProfile(ctx context.Context, ownerHash string) (string, error) {
	raw, err := s.getObject(ctx, defaultProfileKey(ownerHash))
	if err != nil {
		if isNotFound(err) {
			return "", domain.WrapError(domain.ErrConfigNotFound, "blob.default_profile", err)
		}
		return "", domain.WrapError(domain.ErrTemporary, "blob.default_profile", err)
	}
	var pointer struct {
		ProfileID string `json:"profile_id"`
	}
	if err := json.Unmarshal(raw, &pointer); err != nil || pointer.ProfileID == "" {
		return "", domain.WrapError(domain.ErrConfigNotFound, "blob.default_profile",
			errors.New("default profile pointer unreadable"))
	}
	return pointer.ProfileID, nil
}
