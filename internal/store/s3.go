package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// MaxServerSideCopySize is the largest object a single CopyObject call
// accepts. Larger objects must be streamed.
const MaxServerSideCopySize = 5 << 30

// StorageClassStandard is reported for objects whose class is not returned
// by the backend (S3 omits it for STANDARD).
const StorageClassStandard = string(types.StorageClassStandard)

// S3API is the subset of *s3.Client used by S3Store. It also satisfies
// manager.UploadAPIClient so large puts can go multipart.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	RestoreObject(ctx context.Context, params *s3.RestoreObjectInput, optFns ...func(*s3.Options)) (*s3.RestoreObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// Compile-time interface checks.
var (
	_ Store    = (*S3Store)(nil)
	_ Copier   = (*S3Store)(nil)
	_ Restorer = (*S3Store)(nil)
	_ S3API    = (*s3.Client)(nil)
)

// S3Store is a Store backed by one S3 bucket. Several stores may share a
// single client.
type S3Store struct {
	api      S3API
	uploader *manager.Uploader
	bucket   string
	pageSize int32
}

// NewS3Store creates a store for bucket using api.
func NewS3Store(api S3API, bucket string) *S3Store {
	return &S3Store{
		api:    api,
		bucket: bucket,
		uploader: manager.NewUploader(api, func(u *manager.Uploader) {
			u.PartSize = 64 << 20
			u.Concurrency = 4
		}),
	}
}

// WithPageSize overrides MaxKeys for ListObjectsV2 (S3 caps it at 1000).
func (s *S3Store) WithPageSize(n int32) *S3Store {
	s.pageSize = n
	return s
}

func (s *S3Store) Bucket() string { return s.bucket }
func (*S3Store) Kind() string     { return "s3" }
func (*S3Store) Close() error     { return nil }

func (s *S3Store) Head(ctx context.Context, key string) (FileSummary, error) {
	out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return FileSummary{}, classifyS3("head", key, err)
	}
	summary := FileSummary{
		Key:           key,
		Size:          aws.ToInt64(out.ContentLength),
		LastModified:  out.LastModified,
		ETag:          strings.Trim(aws.ToString(out.ETag), `"`),
		StorageClass:  storageClassOrStandard(string(out.StorageClass)),
		ArchiveStatus: string(out.ArchiveStatus),
	}
	if out.Restore != nil {
		ongoing := strings.Contains(*out.Restore, `ongoing-request="true"`)
		summary.OngoingRestore = &ongoing
	}
	return summary, nil
}

func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, FileSummary, error) {
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, FileSummary{}, classifyS3("get", key, err)
	}
	return out.Body, FileSummary{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		LastModified: out.LastModified,
		ETag:         strings.Trim(aws.ToString(out.ETag), `"`),
		StorageClass: storageClassOrStandard(string(out.StorageClass)),
	}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, r io.Reader, size int64, opts PutOptions) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   r,
	}
	if size >= 0 && size < manager.DefaultUploadPartSize {
		input.ContentLength = aws.Int64(size)
	}
	if opts.StorageClass != "" {
		input.StorageClass = types.StorageClass(opts.StorageClass)
	}
	if opts.SSE != "" {
		input.ServerSideEncryption = types.ServerSideEncryption(opts.SSE)
	}
	if opts.ACL != "" {
		input.ACL = types.ObjectCannedACL(opts.ACL)
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return classifyS3("put", key, err)
	}
	return nil
}

// Copy performs a server-side copy from srcBucket/srcKey into this bucket.
func (s *S3Store) Copy(ctx context.Context, srcBucket, srcKey, dstKey string, opts PutOptions) error {
	input := &s3.CopyObjectInput{
		Bucket:            aws.String(s.bucket),
		Key:               aws.String(dstKey),
		CopySource:        aws.String(copySource(srcBucket, srcKey)),
		MetadataDirective: types.MetadataDirectiveCopy,
		TaggingDirective:  types.TaggingDirectiveCopy,
	}
	if opts.StorageClass != "" {
		input.StorageClass = types.StorageClass(opts.StorageClass)
	}
	if opts.SSE != "" {
		input.ServerSideEncryption = types.ServerSideEncryption(opts.SSE)
	}
	if opts.ACL != "" {
		input.ACL = types.ObjectCannedACL(opts.ACL)
	}
	if _, err := s.api.CopyObject(ctx, input); err != nil {
		return classifyS3("copy", srcKey, err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		err = classifyS3("delete", key, err)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return nil
}

// Restore requests asynchronous promotion of an archived object. Days is
// omitted when zero, which is what intelligent-tiering archives require.
func (s *S3Store) Restore(ctx context.Context, key string, days int32) error {
	req := &types.RestoreRequest{}
	if days > 0 {
		req.Days = aws.Int32(days)
	}
	_, err := s.api.RestoreObject(ctx, &s3.RestoreObjectInput{
		Bucket:         aws.String(s.bucket),
		Key:            aws.String(key),
		RestoreRequest: req,
	})
	if err != nil {
		return classifyS3("restore", key, err)
	}
	return nil
}

func (s *S3Store) List(ctx context.Context, prefix, token string) (Page, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:                   aws.String(s.bucket),
		OptionalObjectAttributes: []types.OptionalObjectAttributes{types.OptionalObjectAttributesRestoreStatus},
	}
	if prefix != "" {
		input.Prefix = aws.String(prefix)
	}
	if token != "" {
		input.ContinuationToken = aws.String(token)
	}
	if s.pageSize > 0 {
		input.MaxKeys = aws.Int32(s.pageSize)
	}

	out, err := s.api.ListObjectsV2(ctx, input)
	if err != nil {
		return Page{}, classifyS3("list", prefix, err)
	}

	page := Page{Summaries: make([]FileSummary, 0, len(out.Contents))}
	for _, obj := range out.Contents {
		summary := FileSummary{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: obj.LastModified,
			ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
			StorageClass: storageClassOrStandard(string(obj.StorageClass)),
		}
		if obj.RestoreStatus != nil && obj.RestoreStatus.IsRestoreInProgress != nil {
			summary.OngoingRestore = obj.RestoreStatus.IsRestoreInProgress
		}
		page.Summaries = append(page.Summaries, summary)
	}
	if aws.ToBool(out.IsTruncated) {
		page.NextToken = aws.ToString(out.NextContinuationToken)
	}
	return page, nil
}

func storageClassOrStandard(class string) string {
	if class == "" {
		return StorageClassStandard
	}
	return class
}

// copySource builds the URL-encoded "bucket/key" value CopyObject expects.
func copySource(bucket, key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return bucket + "/" + strings.Join(parts, "/")
}

var permanentCodes = map[string]bool{
	"AccessDenied":          true,
	"AllAccessDisabled":     true,
	"Forbidden":             true,
	"InvalidAccessKeyId":    true,
	"InvalidBucketName":     true,
	"InvalidObjectState":    true,
	"InvalidStorageClass":   true,
	"NoSuchBucket":          true,
	"SignatureDoesNotMatch": true,
}

// classifyS3 maps SDK errors onto ErrNotFound, PermanentError, or a plain
// wrapped (retryable) error.
func classifyS3(op, key string, err error) error {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return ErrNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NoSuchKey" || code == "NotFound" {
			return ErrNotFound
		}
		if permanentCodes[code] {
			return Permanent(op, key, err)
		}
	}

	var statusErr interface{ HTTPStatusCode() int }
	if errors.As(err, &statusErr) {
		switch statusErr.HTTPStatusCode() {
		case http.StatusNotFound:
			return ErrNotFound
		case http.StatusForbidden:
			return Permanent(op, key, err)
		}
	}

	return fmt.Errorf("%s %s: %w", op, key, err)
}
