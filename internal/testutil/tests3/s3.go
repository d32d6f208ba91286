package tests3

import (
	"context"
	"testing"
	"time"

	"github.com/TruongKhoiNguyen/Agora-api/internal/testutil/containers"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Env is a LocalStack S3 with one empty bucket.
type Env struct {
	Bucket   string
	Endpoint string
	Client   *s3.Client
}

// StartS3 starts LocalStack and creates a bucket. The AWS_* variables are
// pointed at it so LoadDefaultConfig in the code under test agrees.
func StartS3(tb testing.TB) Env {
	tb.Helper()
	addr := containers.Start(tb, "localstack", testcontainers.ContainerRequest{
		Image:        "localstack/localstack:3",
		ExposedPorts: []string{"4566/tcp"},
		Env:          map[string]string{"SERVICES": "s3"},
		WaitingFor:   wait.ForHTTP("/_localstack/health").WithPort("4566/tcp").WithStartupTimeout(90 * time.Second),
	}, "4566")

	env := Env{Bucket: "agora-media", Endpoint: "http://" + addr}
	tb.Setenv("AWS_ENDPOINT_URL", env.Endpoint)
	tb.Setenv("AWS_ACCESS_KEY_ID", "test")
	tb.Setenv("AWS_SECRET_ACCESS_KEY", "test")
	tb.Setenv("AWS_REGION", "us-east-1")

	env.Client = s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(env.Endpoint),
		Credentials:  credentials.NewStaticCredentialsProvider("test", "test", ""),
		UsePathStyle: true,
	})
	if _, err := env.Client.CreateBucket(context.Background(), &s3.CreateBucketInput{Bucket: aws.String(env.Bucket)}); err != nil {
		tb.Fatalf("create bucket %s: %v", env.Bucket, err)
	}
	return env
}
