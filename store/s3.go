package store

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	raven "github.com/getsentry/raven-go"
	"github.com/pkg/errors"
)

// S3 keeps values as objects in an S3 bucket. Every key has Prefix added
// to it, so one bucket can hold more than one archive.
// Do not change Bucket or Prefix concurrently with calls using the structure.
type S3 struct {
	svc    *s3.S3
	Bucket string
	Prefix string
}

var _ Store = &S3{}

// NewS3 creates a new S3 store. If prefix were "reports/" then Open("x")
// would read the object "reports/x" in bucket. The credentials in the
// session are used for all accesses.
func NewS3(bucket, prefix string, awsSession *session.Session) *S3 {
	return &S3{
		Bucket: bucket,
		Prefix: prefix,
		svc:    s3.New(awsSession),
	}
}

func (s *S3) capture(op string, err error, key string) {
	log.Println("S3", op+":", s.Prefix, key, err)
	raven.CaptureError(err, map[string]string{"Bucket": s.Bucket, "Prefix": s.Prefix, "Key": key})
}

// List returns every key in this store. Only objects beneath the store's
// Prefix are listed, so it is safe to use on a shared bucket.
func (s *S3) List() <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		err := s.list("", func(key string) { out <- key })
		if err != nil {
			s.capture("List", err, "")
		}
	}()
	return out
}

// ListPrefix returns the keys in this store that have the given prefix.
func (s *S3) ListPrefix(prefix string) ([]string, error) {
	var result []string
	err := s.list(prefix, func(key string) { result = append(result, key) })
	if err != nil {
		s.capture("ListPrefix", err, prefix)
		return nil, errors.WithStack(err)
	}
	sort.Strings(result)
	return result, nil
}

func (s *S3) list(prefix string, f func(string)) error {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(s.Prefix + prefix),
	}
	return s.svc.ListObjectsV2Pages(input,
		func(page *s3.ListObjectsV2Output, lastpage bool) bool {
			for _, item := range page.Contents {
				f(strings.TrimPrefix(*item.Key, s.Prefix))
			}
			return !lastpage
		})
}

// Open downloads the whole object for key. Reports are small enough to
// hold in memory, and the downloader fetches large ones in parallel parts.
func (s *S3) Open(key string) (ReadAtCloser, int64, error) {
	buf := aws.NewWriteAtBuffer(nil)
	downloader := s3manager.NewDownloaderWithClient(s.svc)
	n, err := downloader.Download(buf, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if isS3NotFound(err) {
		return nil, 0, errors.Wrap(ErrNotExist, key)
	} else if err != nil {
		s.capture("Open", err, key)
		return nil, 0, errors.WithStack(err)
	}
	return nopCloser{bytes.NewReader(buf.Bytes())}, n, nil
}

// Create returns a writer that streams its content to S3. The upload
// finishes when the writer is closed. The upload manager switches to a
// multipart upload for large values.
func (s *S3) Create(key string) (io.WriteCloser, error) {
	_, err := s.svc.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err == nil {
		return nil, ErrKeyExists
	} else if !isS3NotFound(err) {
		s.capture("Create", err, key)
		return nil, errors.WithStack(err)
	}

	pr, pw := io.Pipe()
	w := &s3WriteCloser{pw: pw, done: make(chan error, 1)}
	uploader := s3manager.NewUploaderWithClient(s.svc)
	go func() {
		_, err := uploader.Upload(&s3manager.UploadInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(s.Prefix + key),
			Body:   pr,
		})
		if err != nil {
			s.capture("Upload", err, key)
		}
		// unblock any writer if the upload stopped early
		pr.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}

// s3WriteCloser feeds the upload goroutine through a pipe.
type s3WriteCloser struct {
	pw   *io.PipeWriter
	done chan error
}

func (w *s3WriteCloser) Write(p []byte) (int, error) {
	return w.pw.Write(p)
}

func (w *s3WriteCloser) Close() error {
	w.pw.Close()
	return errors.WithStack(<-w.done)
}

// Delete will remove the given key from the store. It is not an error to
// delete something that doesn't exist.
func (s *S3) Delete(key string) error {
	_, err := s.svc.DeleteObject(&s3.DeleteObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(s.Prefix + key),
	})
	if err != nil {
		s.capture("Delete", err, key)
	}
	return errors.WithStack(err)
}

func isS3NotFound(err error) bool {
	if e, ok := err.(awserr.RequestFailure); ok && e.StatusCode() == http.StatusNotFound {
		return true
	}
	if e, ok := err.(awserr.Error); ok {
		switch e.Code() {
		case s3.ErrCodeNoSuchKey, "NotFound":
			return true
		}
	}
	return false
}
