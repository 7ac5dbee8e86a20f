package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"time"

	"scanaudit/auditlog"
	"scanaudit/config"
	"scanaudit/hasher"
	"scanaudit/logger"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/time/rate"
)

type objectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

type objectStore interface {
	List(ctx context.Context, bucket, prefix string) ([]objectInfo, error)
	Open(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}

type minioStore struct {
	mc *minio.Client
}

func newMinioStore(cfg *config.Config) (*minioStore, error) {
	if cfg.S3Endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint not configured")
	}
	mc, err := minio.New(cfg.S3Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		Secure: cfg.S3UseSSL,
		Region: cfg.S3Region,
	})
	if err != nil {
		return nil, err
	}
	return &minioStore{mc: mc}, nil
}

func (s *minioStore) List(ctx context.Context, bucket, prefix string) ([]objectInfo, error) {
	var objects []objectInfo
	for obj := range s.mc.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		objects = append(objects, objectInfo{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
	}
	return objects, nil
}

func (s *minioStore) Open(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	return s.mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
}

// parseS3 splits s3://bucket/prefix.
func parseS3(input string) (bucket, prefix string, err error) {
	u, err := url.Parse(input)
	if err != nil {
		return "", "", fmt.Errorf("invalid s3 location %q: %w", input, err)
	}
	if !strings.EqualFold(u.Scheme, "s3") || u.Host == "" {
		return "", "", fmt.Errorf("invalid s3 location %q: expected s3://bucket/prefix", input)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

func loadS3(ctx context.Context, cfg *config.Config, input string) ([]part, error) {
	store, err := newMinioStore(cfg)
	if err != nil {
		return nil, err
	}
	return loadObjects(ctx, store, newLimiter(cfg.S3RequestsPerSecond), cfg, input)
}

func newLimiter(perSecond int) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(perSecond), perSecond)
}

func loadObjects(ctx context.Context, store objectStore, limiter *rate.Limiter, cfg *config.Config, input string) ([]part, error) {
	bucket, prefix, err := parseS3(input)
	if err != nil {
		return nil, err
	}
	objects, err := store.List(ctx, bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("list s3://%s/%s: %w", bucket, prefix, err)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })

	// A prefix naming a single object is taken as-is, like a local file path.
	exact := len(objects) == 1 && objects[0].Key == prefix
	filter := NewFilter(cfg.IncludePatterns, cfg.ExcludePatterns)

	var parts []part
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, "/") || (!exact && !filter.Match(obj.Key)) {
			continue
		}
		if err := limiter.Wait(ctx); err != nil {
			return nil, err
		}
		location := fmt.Sprintf("s3://%s/%s", bucket, obj.Key)
		loaded, err := fetch(ctx, store, bucket, obj, location, cfg.HashAlgorithms)
		if err != nil {
			if exact {
				return nil, fmt.Errorf("%s: %w", location, err)
			}
			logger.Warnf("Skipping audit log %s: %v", location, err)
			continue
		}
		parts = append(parts, loaded)
	}
	return parts, nil
}

// fetch streams one object through the decoder and the hasher in a single
// pass; the object body is never held in memory.
func fetch(ctx context.Context, store objectStore, bucket string, obj objectInfo, location string, algorithms []string) (part, error) {
	rc, err := store.Open(ctx, bucket, obj.Key)
	if err != nil {
		return part{}, err
	}
	defer rc.Close()

	counted := &countingReader{r: rc}
	records, hashes, err := decodeAndHash(counted, location, algorithms)
	if err != nil {
		return part{}, err
	}
	info := Info{
		Kind:     KindS3,
		Location: location,
		Bytes:    counted.n,
		Hashes:   hashes,
	}
	if !obj.LastModified.IsZero() {
		info.ModTime = obj.LastModified.UTC().Format(time.RFC3339)
	}
	return part{info: info, records: records}, nil
}

func decodeAndHash(r io.Reader, location string, algorithms []string) ([][]string, map[string]string, error) {
	if len(algorithms) == 0 {
		records, err := auditlog.Decode(r)
		return records, nil, err
	}

	pr, pw := io.Pipe()
	done := make(chan map[string]string, 1)
	go func() {
		hashes := hasher.ComputeReaderHashes(pr, location, algorithms)
		// Keep the pipe drained if hashing stopped early.
		_, _ = io.Copy(io.Discard, pr)
		done <- hashes
	}()

	tee := io.TeeReader(r, pw)
	records, err := auditlog.Decode(tee)
	if err == nil {
		// The decoder may stop short of EOF; the hash covers the whole object.
		_, err = io.Copy(io.Discard, tee)
	}
	pw.CloseWithError(err)
	hashes := <-done
	if err != nil {
		return nil, nil, err
	}
	return records, hashes, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
