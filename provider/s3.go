package provider

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"
)

// ensure interface is implemented
var _ Provider = (*S3Provider)(nil)

// deleteBatchSize is the DeleteObjects per-request limit.
const deleteBatchSize = 1000

type s3FileInfo struct {
	name    string
	size    int64
	isDir   bool
	modTime time.Time
}

func (f *s3FileInfo) Name() string       { return f.name }
func (f *s3FileInfo) Size() int64        { return f.size }
func (f *s3FileInfo) IsDir() bool        { return f.isDir }
func (f *s3FileInfo) ModTime() time.Time { return f.modTime }

// S3Provider stages VM images in an S3 bucket.
type S3Provider struct {
	client   *s3.Client
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

// NewS3Provider creates a new S3Provider.
// bucket is the S3 bucket name.
func NewS3Provider(ctx context.Context, bucket string, prefix string) (*S3Provider, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)

	return &S3Provider{
		client:   client,
		bucket:   bucket,
		prefix:   prefix,
		uploader: manager.NewUploader(client),
	}, nil
}

// buildKey constructs the full S3 key based on the provider's prefix
func (p *S3Provider) buildKey(subPath string) string {
	subPath = strings.TrimPrefix(subPath, "/")
	if p.prefix == "" {
		return subPath
	}
	// Avoid double slashes
	key := path.Join(p.prefix, subPath)
	return strings.TrimPrefix(key, "/")
}

// dirPrefix is the key prefix under which a "directory" stores its objects.
func (p *S3Provider) dirPrefix(pth string) string {
	key := p.buildKey(pth)
	if key == "" || strings.HasSuffix(key, "/") {
		return key
	}
	return key + "/"
}

// Stat returns the FileInfo for the given path.
func (p *S3Provider) Stat(ctx context.Context, pth string) (FileInfo, error) {
	key := p.buildKey(pth)

	// exact match
	headOut, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		info := &s3FileInfo{
			name:  path.Base(key),
			isDir: strings.HasSuffix(key, "/"),
		}
		if headOut.LastModified != nil {
			info.modTime = *headOut.LastModified
		}
		if headOut.ContentLength != nil {
			info.size = *headOut.ContentLength
		}
		return info, nil
	}

	// maybe a directory? Let's check prefix
	listOut, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(p.bucket),
		Prefix:  aws.String(p.dirPrefix(pth)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("stat failed for %q: %w", pth, err)
	}

	if len(listOut.Contents) > 0 || len(listOut.CommonPrefixes) > 0 {
		return &s3FileInfo{
			name:  path.Base(key),
			isDir: true,
		}, nil
	}

	return nil, fmt.Errorf("file not found: %s", pth)
}

// List returns the immediate children of pth. Common prefixes are reported
// as directories.
func (p *S3Provider) List(ctx context.Context, pth string) ([]FileInfo, error) {
	dirPrefix := p.dirPrefix(pth)

	var infos []FileInfo
	var continuationToken *string

	for {
		out, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(p.bucket),
			Prefix:            aws.String(dirPrefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list %q: %w", pth, err)
		}

		for _, cp := range out.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(*cp.Prefix, dirPrefix), "/")
			infos = append(infos, &s3FileInfo{name: name, isDir: true})
		}

		for _, obj := range out.Contents {
			name := strings.TrimPrefix(*obj.Key, dirPrefix)
			if name == "" { // directory placeholder
				continue
			}
			info := &s3FileInfo{name: name}
			if obj.Size != nil {
				info.size = *obj.Size
			}
			if obj.LastModified != nil {
				info.modTime = *obj.LastModified
			}
			infos = append(infos, info)
		}

		if out.IsTruncated != nil && *out.IsTruncated {
			continuationToken = out.NextContinuationToken
		} else {
			break
		}
	}

	return infos, nil
}

// OpenRead opens a file for streaming reads.
func (p *S3Provider) OpenRead(ctx context.Context, pth string) (io.ReadCloser, error) {
	key := p.buildKey(pth)
	out, err := p.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open read %q: %w", pth, err)
	}
	return out.Body, nil
}

// OpenWrite opens a file for streaming writes. The object is uploaded in
// parts as data arrives and becomes visible once the writer is closed.
func (p *S3Provider) OpenWrite(ctx context.Context, pth string) (io.WriteCloser, error) {
	key := p.buildKey(pth)
	pr, pw := io.Pipe()

	errChan := make(chan error, 1)

	go func() {
		_, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(p.bucket),
			Key:    aws.String(key),
			Body:   pr,
		})
		pr.CloseWithError(err)
		errChan <- err
	}()

	return &asyncS3Writer{
		pw:      pw,
		errChan: errChan,
	}, nil
}

// MkdirAll writes a zero-byte directory placeholder so Stat reports the
// directory before any file lands in it.
func (p *S3Provider) MkdirAll(ctx context.Context, pth string) error {
	key := p.dirPrefix(pth)
	if key == "" {
		return nil
	}
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(key),
		Body:   strings.NewReader(""),
	})
	if err != nil {
		return fmt.Errorf("failed to write directory placeholder: %w", err)
	}
	return nil
}

// RemoveAll deletes every object under pth.
func (p *S3Provider) RemoveAll(ctx context.Context, pth string) error {
	prefix := p.dirPrefix(pth)
	if prefix == "" {
		return fmt.Errorf("refusing to remove bucket root of %s", p.bucket)
	}

	var continuationToken *string
	for {
		out, err := p.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(p.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return fmt.Errorf("failed to list %q: %w", pth, err)
		}

		ids := make([]types.ObjectIdentifier, 0, len(out.Contents))
		for _, obj := range out.Contents {
			ids = append(ids, types.ObjectIdentifier{Key: obj.Key})
		}
		for start := 0; start < len(ids); start += deleteBatchSize {
			end := min(start+deleteBatchSize, len(ids))
			_, err := p.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
				Bucket: aws.String(p.bucket),
				Delete: &types.Delete{Objects: ids[start:end], Quiet: aws.Bool(true)},
			})
			if err != nil {
				return fmt.Errorf("failed to delete under %q: %w", pth, err)
			}
		}

		if out.IsTruncated != nil && *out.IsTruncated {
			continuationToken = out.NextContinuationToken
		} else {
			break
		}
	}
	return nil
}

// TempDir reserves a unique prefix inside dir.
func (p *S3Provider) TempDir(ctx context.Context, dir, pattern string) (string, error) {
	name := pattern + uuid.NewString()
	if i := strings.LastIndex(pattern, "*"); i >= 0 {
		name = pattern[:i] + uuid.NewString() + pattern[i+1:]
	}
	tmp := path.Join(dir, name)
	if err := p.MkdirAll(ctx, tmp); err != nil {
		return "", err
	}
	return tmp, nil
}

func (p *S3Provider) Join(elem ...string) string {
	return path.Join(elem...)
}

type asyncS3Writer struct {
	pw      *io.PipeWriter
	errChan <-chan error
}

func (w *asyncS3Writer) Write(p []byte) (n int, err error) {
	return w.pw.Write(p)
}

func (w *asyncS3Writer) Close() error {
	if err := w.pw.Close(); err != nil {
		return err
	}
	// Wait for upload to complete
	if err := <-w.errChan; err != nil {
		return fmt.Errorf("s3 upload failed: %w", err)
	}
	return nil
}
