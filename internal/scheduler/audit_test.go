package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/chainride/internal/models"
	"github.com/example/chainride/internal/storage"
)

type fakeS3 struct {
	s3iface.S3API
	inputs []*s3.PutObjectInput
}

func (f *fakeS3) PutObjectWithContext(_ aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	f.inputs = append(f.inputs, in)
	return &s3.PutObjectOutput{}, nil
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestFallbackAuditReportsOutstanding(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, models.FallbackPayment{RideID: 1, ClientID: 2, Amount: decimal.RequireFromString("0.5"), TransactionRef: "a"}))
	require.NoError(t, store.Save(ctx, models.FallbackPayment{RideID: 3, ClientID: 2, Amount: decimal.RequireFromString("1.25"), TransactionRef: "b"}))

	s3 := &fakeS3{}
	audit := NewFallbackAudit(store, NewS3Archiver(s3, "audits"), discard())
	audit.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

	rep, err := audit.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Outstanding)
	assert.Equal(t, "1.75", rep.Total.String())

	require.Len(t, s3.inputs, 1)
	assert.Equal(t, "audits", aws.StringValue(s3.inputs[0].Bucket))
	assert.Equal(t, "fallback-audit/20240501T120000Z.json", aws.StringValue(s3.inputs[0].Key))
}

func TestFallbackAuditSkipsArchiveWhenClean(t *testing.T) {
	s3 := &fakeS3{}
	rep, err := NewFallbackAudit(storage.NewMemoryStore(), NewS3Archiver(s3, "audits"), discard()).Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, rep.Outstanding)
	assert.Empty(t, s3.inputs)
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := New(NewFallbackAudit(storage.NewMemoryStore(), nil, discard()), "not a schedule", discard())
	assert.Error(t, s.Start())
}
