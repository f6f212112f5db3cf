package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/swappnet/swapp/internal/config"
	"github.com/swappnet/swapp/internal/model"
	"github.com/swappnet/swapp/pkg/logger"
)

// Archiver 变化快照归档
type Archiver interface {
	Archive(ctx context.Context, deviceKey string, snap model.Snapshot, changes []Change) (StoredObject, error)
}

// StoredObject 归档对象信息
type StoredObject struct {
	URI         string `json:"uri"`
	Size        int64  `json:"size"`
	Checksum    string `json:"checksum"`
	ContentType string `json:"content_type"`
}

// archiveDocument 归档文件内容
type archiveDocument struct {
	Device     string         `json:"device"`
	CapturedAt time.Time      `json:"captured_at"`
	Changes    []string       `json:"changes,omitempty"`
	Ports      model.Snapshot `json:"ports"`
}

const archiveContentType = "application/json"

// NewArchiver 按配置创建归档器；未启用时返回 nil
func NewArchiver(cfg config.ArchiveConfig) Archiver {
	if !cfg.Enabled {
		return nil
	}
	local := &LocalArchiver{cfg: cfg}
	if strings.EqualFold(cfg.Backend, "minio") {
		return &fallbackArchiver{primary: initMinioArchiver(cfg), local: local}
	}
	return local
}

func encodeArchive(deviceKey string, snap model.Snapshot, changes []Change, at time.Time) ([]byte, error) {
	doc := archiveDocument{Device: deviceKey, CapturedAt: at, Ports: snap}
	for _, c := range changes {
		doc.Changes = append(doc.Changes, c.String())
	}
	return json.MarshalIndent(doc, "", "  ")
}

// objectPath prefix/device/YYYYMMDD/HHMMSS.json
func objectPath(prefix, deviceKey string, at time.Time) []string {
	var parts []string
	if p := strings.Trim(strings.TrimSpace(prefix), "/"); p != "" {
		parts = append(parts, p)
	}
	return append(parts, slug(deviceKey), at.Format("20060102"), at.Format("150405.000")+".json")
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// fallbackArchiver MinIO 写入失败时回退到本地
type fallbackArchiver struct {
	primary *MinioArchiver
	local   *LocalArchiver
}

func (a *fallbackArchiver) Archive(ctx context.Context, deviceKey string, snap model.Snapshot, changes []Change) (StoredObject, error) {
	if a.primary == nil {
		logger.Warn("MinIO archive selected but client not initialized; falling back to local")
		return a.local.Archive(ctx, deviceKey, snap, changes)
	}
	obj, err := a.primary.Archive(ctx, deviceKey, snap, changes)
	if err == nil {
		return obj, nil
	}
	logger.WithField("error", err).Warn("MinIO archive failed; falling back to local")
	objLocal, lerr := a.local.Archive(ctx, deviceKey, snap, changes)
	if lerr != nil {
		return StoredObject{}, fmt.Errorf("minio archive failed: %v; local fallback failed: %w", err, lerr)
	}
	return objLocal, nil
}

// LocalArchiver 本地文件归档
type LocalArchiver struct {
	cfg config.ArchiveConfig
}

func (w *LocalArchiver) Archive(_ context.Context, deviceKey string, snap model.Snapshot, changes []Change) (StoredObject, error) {
	at := time.Now()
	data, err := encodeArchive(deviceKey, snap, changes, at)
	if err != nil {
		return StoredObject{}, err
	}
	baseDir := strings.TrimSpace(w.cfg.Local.BaseDir)
	if baseDir == "" {
		baseDir = "./data/archive"
	}
	fullPath := filepath.Join(append([]string{baseDir}, objectPath(w.cfg.Prefix, deviceKey, at)...)...)
	if w.cfg.Local.MkdirIfMissing {
		if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
			return StoredObject{}, fmt.Errorf("failed to create dir: %w", err)
		}
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return StoredObject{}, fmt.Errorf("failed to write file: %w", err)
	}
	return StoredObject{
		URI:         "file://" + fullPath,
		Size:        int64(len(data)),
		Checksum:    checksum(data),
		ContentType: archiveContentType,
	}, nil
}

// MinioArchiver MinIO 对象存储归档
type MinioArchiver struct {
	cfg           config.ArchiveConfig
	client        *minio.Client
	endpoint      string
	bucketEnsured bool
}

// initMinioArchiver 初始化客户端；配置不完整时返回 nil
func initMinioArchiver(cfg config.ArchiveConfig) *MinioArchiver {
	host := strings.TrimSpace(cfg.Minio.Host)
	if host == "" || cfg.Minio.Port <= 0 {
		logger.Warn("MinIO configuration incomplete; host/port missing")
		return nil
	}
	endpoint := fmt.Sprintf("%s:%d", host, cfg.Minio.Port)

	transport := &http.Transport{
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		IdleConnTimeout:       90 * time.Second,
		MaxIdleConns:          16,
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:     credentials.NewStaticV4(cfg.Minio.AccessKey, cfg.Minio.SecretKey, ""),
		Secure:    cfg.Minio.Secure,
		Transport: transport,
	})
	if err != nil {
		logger.WithField("error", err).Error("MinIO client initialization failed")
		return nil
	}
	return &MinioArchiver{cfg: cfg, client: client, endpoint: endpoint}
}

func (w *MinioArchiver) Archive(ctx context.Context, deviceKey string, snap model.Snapshot, changes []Change) (StoredObject, error) {
	bucket := strings.TrimSpace(w.cfg.Minio.Bucket)
	if bucket == "" {
		return StoredObject{}, fmt.Errorf("minio bucket not configured")
	}
	at := time.Now()
	data, err := encodeArchive(deviceKey, snap, changes, at)
	if err != nil {
		return StoredObject{}, err
	}
	if !w.bucketEnsured {
		if err := w.ensureBucket(ctx, bucket); err != nil {
			return StoredObject{}, fmt.Errorf("minio ensure bucket failed: %w", err)
		}
		w.bucketEnsured = true
	}
	objectName := path.Join(objectPath(w.cfg.Prefix, deviceKey, at)...)
	putCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	_, err = w.client.PutObject(putCtx, bucket, objectName, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: archiveContentType})
	if err != nil {
		return StoredObject{}, fmt.Errorf("minio put object to %s: %w", w.endpoint, err)
	}
	return StoredObject{
		URI:         "minio://" + path.Join(bucket, objectName),
		Size:        int64(len(data)),
		Checksum:    checksum(data),
		ContentType: archiveContentType,
	}, nil
}

func (w *MinioArchiver) ensureBucket(parent context.Context, bucket string) error {
	ctx, cancel := context.WithTimeout(parent, 10*time.Second)
	defer cancel()
	exists, err := w.client.BucketExists(ctx, bucket)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return w.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{})
}

var slugRe = regexp.MustCompile(`[^a-z0-9._-]+`)

func slug(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "/", "_", "\\", "_").Replace(s)
	s = slugRe.ReplaceAllString(s, "")
	if s == "" {
		return "device"
	}
	return s
}
