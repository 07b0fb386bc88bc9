//go:build integration
// +build integration

package store_test

// Tests the S3 store against an external service, either Amazon S3 or a
// local service with the same API such as Minio. The bucket must exist.
//
//    env "AWS_ACCESS_KEY_ID=XXXXX" "AWS_SECRET_ACCESS_KEY=YYYY" go test -tags=integration -run S3

import (
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/google/uuid"

	"github.com/nypl/prsvtools/store"
	"github.com/nypl/prsvtools/store/storetest"
)

func getSession(t *testing.T) *session.Session {
	sess, err := session.NewSession(&aws.Config{
		Endpoint:         aws.String("http://localhost:9000"),
		Region:           aws.String("us-east-1"),
		DisableSSL:       aws.Bool(true),
		S3ForcePathStyle: aws.Bool(true),
	})
	if err != nil {
		t.Fatal(err)
	}
	return sess
}

func TestS3Contract(t *testing.T) {
	// a fresh prefix keeps runs apart
	s := store.NewS3("prsvtools", uuid.New().String()+"/", getSession(t))
	storetest.Contract(t, s)
	for key := range s.List() {
		s.Delete(key)
	}
}

func TestS3Stress(t *testing.T) {
	s := store.NewS3("prsvtools", uuid.New().String()+"/", getSession(t))
	storetest.Stress(t, s, 20)
}
