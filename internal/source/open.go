// Package source opens trip data files and reads them as typed chunks.
package source

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/go-resty/resty/v2"
	"github.com/johndauphine/taxi-ingest/internal/ingesterr"
	"github.com/johndauphine/taxi-ingest/internal/logging"
	"github.com/johndauphine/taxi-ingest/internal/version"
)

// OpenOptions controls how a location is fetched.
type OpenOptions struct {
	// Timeout bounds an HTTP download end to end. Zero means no limit.
	Timeout time.Duration

	// S3Region overrides the region from the shared AWS config.
	S3Region string
}

// Open returns the decompressed byte stream behind location, which may be
// an http(s) URL, an s3://bucket/key URL, a file:// URL or a filesystem path.
// Every failure is a SourceError.
func Open(ctx context.Context, location string, opts OpenOptions) (io.ReadCloser, error) {
	raw, err := openRaw(ctx, location, opts)
	if err != nil {
		return nil, ingesterr.Source("opening "+location, err)
	}
	rc, err := Decompress(raw)
	if err != nil {
		return nil, ingesterr.Source("decompressing "+location, err)
	}
	return rc, nil
}

func openRaw(ctx context.Context, location string, opts OpenOptions) (io.ReadCloser, error) {
	if location == "" {
		return nil, fmt.Errorf("empty source location")
	}
	switch scheme := schemeOf(location); scheme {
	case "http", "https":
		return openHTTP(ctx, location, opts)
	case "s3":
		return openS3(ctx, location, opts)
	case "file":
		u, err := url.Parse(location)
		if err != nil {
			return nil, err
		}
		return os.Open(u.Path)
	case "":
		return os.Open(location)
	default:
		return nil, fmt.Errorf("unsupported source scheme %q", scheme)
	}
}

// schemeOf returns the lower-cased URL scheme, or "" for plain paths.
func schemeOf(location string) string {
	i := strings.Index(location, "://")
	if i <= 0 {
		return ""
	}
	return strings.ToLower(location[:i])
}

func openHTTP(ctx context.Context, location string, opts OpenOptions) (io.ReadCloser, error) {
	client := resty.New().
		SetHeader("User-Agent", version.Name+"/"+version.Version)
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}

	logging.Debug("Downloading %s", location)
	resp, err := client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(location)
	if err != nil {
		return nil, fmt.Errorf("downloading: %w", err)
	}

	body := resp.RawBody()
	if resp.StatusCode() < 200 || resp.StatusCode() > 299 {
		if body != nil {
			body.Close()
		}
		return nil, fmt.Errorf("downloading: unexpected status %s", resp.Status())
	}
	return body, nil
}

func openS3(ctx context.Context, location string, opts OpenOptions) (io.ReadCloser, error) {
	bucket, key, err := splitS3Location(location)
	if err != nil {
		return nil, err
	}

	cfg := aws.NewConfig()
	if opts.S3Region != "" {
		cfg = cfg.WithRegion(opts.S3Region)
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *cfg,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}

	logging.Debug("Fetching s3 object %s from bucket %s", key, bucket)
	out, err := s3.New(sess).GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting s3 object: %w", err)
	}
	return out.Body, nil
}

// splitS3Location splits s3://bucket/path/to/key into bucket and key.
func splitS3Location(location string) (string, string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("parsing s3 location: %w", err)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 location %q (want s3://bucket/key)", location)
	}
	return u.Host, key, nil
}
