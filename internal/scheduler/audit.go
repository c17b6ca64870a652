package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/shopspring/decimal"

	"github.com/example/chainride/internal/models"
	"github.com/example/chainride/internal/observability"
)

type Lister interface {
	List(ctx context.Context) ([]models.FallbackPayment, error)
}

// Archiver stores an audit report outside the process.
type Archiver interface {
	Archive(ctx context.Context, key string, body []byte) error
}

type Report struct {
	GeneratedAt time.Time                `json:"generatedAt"`
	Outstanding int                      `json:"outstanding"`
	Total       decimal.Decimal          `json:"total"`
	Records     []models.FallbackPayment `json:"records"`
}

// FallbackAudit counts local fallback payments. They are never replayed
// onto the ledger, so every record is outstanding until an operator acts.
type FallbackAudit struct {
	store    Lister
	archiver Archiver
	logger   *slog.Logger
	now      func() time.Time
}

// NewFallbackAudit builds the job; archiver may be nil.
func NewFallbackAudit(store Lister, archiver Archiver, logger *slog.Logger) *FallbackAudit {
	return &FallbackAudit{store: store, archiver: archiver, logger: logger.With("component", "fallback_audit"), now: time.Now}
}

func (a *FallbackAudit) Run(ctx context.Context) (Report, error) {
	recs, err := a.store.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list fallback payments: %w", err)
	}
	rep := Report{GeneratedAt: a.now().UTC(), Outstanding: len(recs), Total: decimal.Zero, Records: recs}
	for _, r := range recs {
		rep.Total = rep.Total.Add(r.Amount)
	}
	observability.FallbackOutstanding.Set(float64(rep.Outstanding))
	if rep.Outstanding == 0 {
		a.logger.Debug("no outstanding fallback payments")
		return rep, nil
	}
	a.logger.Warn("fallback payments not settled on ledger", "count", rep.Outstanding, "total", rep.Total.String())

	if a.archiver != nil {
		body, err := json.Marshal(rep)
		if err != nil {
			return rep, err
		}
		key := fmt.Sprintf("fallback-audit/%s.json", rep.GeneratedAt.Format("20060102T150405Z"))
		if err := a.archiver.Archive(ctx, key, body); err != nil {
			return rep, fmt.Errorf("archive audit report: %w", err)
		}
		a.logger.Info("audit report archived", "key", key)
	}
	return rep, nil
}

// S3Archiver writes reports to an S3-compatible bucket.
type S3Archiver struct {
	client s3iface.S3API
	bucket string
}

func NewS3Archiver(client s3iface.S3API, bucket string) *S3Archiver {
	return &S3Archiver{client: client, bucket: bucket}
}

func (s *S3Archiver) Archive(ctx context.Context, key string, body []byte) error {
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
	})
	return err
}
