package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"stream-pipeline/internal/logging"
)

// Store is the collaborator interface to durable byte storage.
type Store interface {
	UploadFile(ctx context.Context, localPath, blobPath string) error
	UploadStream(ctx context.Context, r io.Reader, blobPath string) error
	DownloadToFile(ctx context.Context, blobPath, localPath string) error
	DownloadToBuffer(ctx context.Context, blobPath string) ([]byte, error)
	Exists(ctx context.Context, blobPath string) (bool, error)
	Delete(ctx context.Context, blobPath string) error
	UploadFolder(ctx context.Context, localDir, blobPrefix string) error
}

// S3Store implements Store on an S3-compatible bucket.
type S3Store struct {
	client     *s3.Client
	uploader   *manager.Uploader
	downloader *manager.Downloader
	bucket     string
}

// Options configures NewS3.
type Options struct {
	Endpoint  string // empty for AWS; set for MinIO/dev
	Region    string
	Bucket    string
	PathStyle bool
}

// NewS3 builds an S3Store from the default AWS credential chain plus
// the given options.
func NewS3(ctx context.Context, opts Options) (*S3Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(opts.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})

	return &S3Store{
		client:     client,
		uploader:   manager.NewUploader(client),
		downloader: manager.NewDownloader(client),
		bucket:     opts.Bucket,
	}, nil
}

// EnsureBucket creates the bucket if it does not exist. Useful for
// local development against MinIO.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	logging.Info("Bucket %q not found, creating", s.bucket)
	if _, err := s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// UploadFile uploads a local file to blobPath.
func (s *S3Store) UploadFile(ctx context.Context, localPath, blobPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	logging.Debug("Uploading %s -> %s", localPath, blobPath)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(blobPath),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", blobPath, err)
	}
	return nil
}

// UploadStream uploads from r to blobPath.
func (s *S3Store) UploadStream(ctx context.Context, r io.Reader, blobPath string) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(blobPath),
		Body:   r,
	})
	if err != nil {
		return fmt.Errorf("upload stream %s: %w", blobPath, err)
	}
	return nil
}

// DownloadToFile downloads blobPath into localPath, creating parent
// directories as needed.
func (s *S3Store) DownloadToFile(ctx context.Context, blobPath, localPath string) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return fmt.Errorf("mkdir for %s: %w", localPath, err)
	}
	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", localPath, err)
	}
	defer f.Close()

	logging.Debug("Downloading %s -> %s", blobPath, localPath)
	_, err = s.downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(blobPath),
	})
	if err != nil {
		return fmt.Errorf("download %s: %w", blobPath, err)
	}
	return nil
}

// DownloadToBuffer downloads blobPath into memory.
func (s *S3Store) DownloadToBuffer(ctx context.Context, blobPath string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(blobPath),
	})
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", blobPath, err)
	}
	defer out.Body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, out.Body); err != nil {
		return nil, fmt.Errorf("read %s: %w", blobPath, err)
	}
	return buf.Bytes(), nil
}

// Exists reports whether blobPath is present.
func (s *S3Store) Exists(ctx context.Context, blobPath string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(blobPath),
	})
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, fmt.Errorf("head %s: %w", blobPath, err)
	}
	return true, nil
}

// Delete removes blobPath. Deleting a missing object is not an error.
func (s *S3Store) Delete(ctx context.Context, blobPath string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(blobPath),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", blobPath, err)
	}
	return nil
}

// UploadFolder recursively uploads localDir under blobPrefix,
// preserving the directory structure.
func (s *S3Store) UploadFolder(ctx context.Context, localDir, blobPrefix string) error {
	return filepath.WalkDir(localDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		dest := blobPrefix + "/" + filepath.ToSlash(rel)
		return s.UploadFile(ctx, path, dest)
	})
}

// SourceChunkPath returns the blob path for chunk i of a video's source.
func SourceChunkPath(projectID, videoID string, i int) string {
	return fmt.Sprintf("%s/%s/source/chunk_%03d.mp4", projectID, videoID, i)
}

// SegmentPath returns the blob path for one transcoded segment.
func SegmentPath(projectID, videoID, res string, i int) string {
	return fmt.Sprintf("%s/%s/%s/segments/segment_%d", projectID, videoID, res, i)
}

// ResolutionPlaylistPath returns the blob path for one resolution's playlist.
func ResolutionPlaylistPath(projectID, videoID, res string) string {
	return fmt.Sprintf("%s/%s/%s/output.m3u8", projectID, videoID, res)
}

// MasterPlaylistPath returns the blob path for the master playlist.
func MasterPlaylistPath(projectID, videoID string) string {
	return fmt.Sprintf("%s/%s/master.m3u8", projectID, videoID)
}
