package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"fmt"
	"net/http"
	"net/url"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3manager "github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"github.com/ln80/eventstorage/event"
	"github.com/ln80/eventstorage/json"
)

const (
	FolderSnapshots = "snapshots"
)

var (
	ErrSnapshotRace     = errors.New("snapshot concurrently replaced")
	ErrSnapshotMismatch = errors.New("snapshot of another aggregate")
)

// objectKey returns the key of the object holding the snapshot of the aggregate.
// The ID is escaped, so that each ID maps to its own object.
func objectKey(prefix, aggID string) string {
	return path.Join(prefix, FolderSnapshots) + "/" + url.PathEscape(aggID) + ".json"
}

type SnapshotStoreConfig struct {
	// Prefix is prepended to every object key.
	Prefix string
	// ConditionalWrites guards replacements with If-Match / If-None-Match preconditions,
	// so that a concurrent writer can't replace a newer snapshot.
	// Disable it for providers that don't support conditional writes.
	ConditionalWrites bool
	// MaxRetries bounds the attempts when a concurrent writer replaced the object meanwhile.
	MaxRetries int
}

// SnapshotStore is an event.SnapshotBackend that keeps the latest snapshot of each aggregate in an S3 object.
type SnapshotStore struct {
	svc    ClientAPI
	bucket string
	cfg    *SnapshotStoreConfig
}

var _ event.SnapshotBackend = &SnapshotStore{}

func NewSnapshotStore(svc ClientAPI, bucket string, opts ...func(cfg *SnapshotStoreConfig)) *SnapshotStore {
	if svc == nil {
		panic("eventstorage: nil S3 client")
	}
	cfg := &SnapshotStoreConfig{
		ConditionalWrites: true,
		MaxRetries:        3,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(cfg)
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = 1
	}
	return &SnapshotStore{
		svc:    svc,
		bucket: bucket,
		cfg:    cfg,
	}
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
		return true
	}
	var respErr *smithyhttp.ResponseError
	return errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound
}

// isPreconditionFailure reports whether a conditional write lost against a concurrent writer.
func isPreconditionFailure(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "PreconditionFailed", "ConditionalRequestConflict":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) {
		switch respErr.HTTPStatusCode() {
		case http.StatusPreconditionFailed, http.StatusConflict:
			return true
		}
	}
	return false
}

// get returns the stored snapshot and its ETag. An object that doesn't hold a snapshot of the
// aggregate is still found, with a DeserializationError.
func (s *SnapshotStore) get(ctx context.Context, aggID string) (data event.SerializedDomainData, etag string, found bool, err error) {
	out, err := s.svc.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(s.cfg.Prefix, aggID)),
	})
	if err != nil {
		if isNotFound(err) {
			err = nil
		}
		return
	}
	defer out.Body.Close()

	b, err := io.ReadAll(out.Body)
	if err != nil {
		return
	}
	etag, found = aws.ToString(out.ETag), true

	d, err := json.UnmarshalEnvelope(b)
	if err == nil && d.AggregateID != aggID {
		err = fmt.Errorf("%w: %s", ErrSnapshotMismatch, d.AggregateID)
	}
	if err != nil {
		d.AggregateID = aggID
		return event.SerializedDomainData{}, etag, found, event.AsDeserializationError(d, err)
	}
	return d, etag, found, nil
}

// StoreSnapshotData uploads the snapshot unless the stored one has a higher sequence.
// A stored object that can't be read as a snapshot of the aggregate is replaced.
func (s *SnapshotStore) StoreSnapshotData(ctx context.Context, data event.SerializedDomainData) error {
	body, err := json.MarshalEnvelope(data)
	if err != nil {
		return event.Err(event.ErrSerialization, data.AggregateID, "seq", data.Sequence, "err", err)
	}
	uploader := s3manager.NewUploader(s.svc)

	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		cur, etag, found, err := s.get(ctx, data.AggregateID)
		// an unreadable snapshot gets replaced
		if err != nil && !errors.Is(err, event.ErrDeserialization) {
			return event.Unavailable(err, data.AggregateID)
		}
		if err == nil && found && cur.Sequence > data.Sequence {
			return nil
		}

		in := &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(objectKey(s.cfg.Prefix, data.AggregateID)),
			Body:        bytes.NewReader(body),
			ContentType: aws.String("application/json"),
		}
		if s.cfg.ConditionalWrites {
			if found {
				in.IfMatch = aws.String(etag)
			} else {
				in.IfNoneMatch = aws.String("*")
			}
		}
		if _, err = uploader.Upload(ctx, in); err != nil {
			if s.cfg.ConditionalWrites && isPreconditionFailure(err) {
				continue
			}
			return event.Unavailable(err, data.AggregateID, "seq", data.Sequence)
		}
		return nil
	}
	return event.Unavailable(ErrSnapshotRace, data.AggregateID, "seq", data.Sequence)
}

func (s *SnapshotStore) ReadSnapshotData(ctx context.Context, aggID string) (event.SerializedDomainData, bool, error) {
	data, _, found, err := s.get(ctx, aggID)
	if err != nil {
		return event.SerializedDomainData{}, false, event.Unavailable(err, aggID)
	}
	return data, found, nil
}
