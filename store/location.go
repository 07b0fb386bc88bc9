package store

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/pkg/errors"
)

// splitBucketPrefix separates the bucket name from a prefix, if any. The
// prefix returned is either empty or ends with a slash "/".
//
// examples:
//
//	"" -> ("", "")
//	"bucket" -> ("bucket", "")
//	"bucket/and/a/prefix" -> ("bucket", "and/a/prefix/")
func splitBucketPrefix(location string) (bucket, prefix string) {
	location = strings.TrimPrefix(location, "/")
	if location == "" {
		return
	}
	v := strings.SplitN(location, "/", 2)
	bucket = v[0]
	if len(v) > 1 {
		prefix = path.Clean(v[1])
		if prefix == "." {
			prefix = ""
		}
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}
	return
}

// ParseLocation returns the store described by location.
//
//	""                          a Memory store
//	"memory:"                   a Memory store
//	"/some/path", "file:///p"   a FileSystem store rooted at the path
//	"s3:/bucket/prefix"         an S3 store using the default AWS endpoint
//	"s3://host:port/bucket"     an S3 store using a compatible service
//
// Endpoints on localhost are reached without TLS using path style
// addressing, which suits a local Minio.
func ParseLocation(location string) (Store, error) {
	if location == "" {
		return NewMemory(), nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return nil, errors.Wrapf(err, "parse location %q", location)
	}
	switch u.Scheme {
	case "memory":
		return NewMemory(), nil
	case "", "file":
		if u.Path == "" {
			return nil, errors.Errorf("location %q has no path", location)
		}
		fs, err := NewFileSystem(filepath.FromSlash(u.Path))
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "s3":
		conf := &aws.Config{}
		if u.Host != "" {
			conf.Endpoint = aws.String(u.Host)
			conf.Region = aws.String("us-east-1")
			if strings.Contains(u.Host, "localhost") {
				conf.DisableSSL = aws.Bool(true)
				conf.S3ForcePathStyle = aws.Bool(true)
			}
		}
		bucket, prefix := splitBucketPrefix(u.Path)
		if bucket == "" {
			return nil, errors.Errorf("location %q has no bucket name", location)
		}
		sess, err := session.NewSession(conf)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		return NewS3(bucket, prefix, sess), nil
	}
	return nil, errors.Errorf("location %q has unknown scheme %q", location, u.Scheme)
}
