package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"claimgate/internal/upload/metrics"
)

type statusErr int

func (s statusErr) Error() string   { return fmt.Sprintf("status %d", int(s)) }
func (s statusErr) StatusCode() int { return int(s) }

// scriptedUploader answers per file name and records the order of requests.
type scriptedUploader struct {
	mu       sync.Mutex
	calls    []string
	failures map[string]error
	delay    time.Duration
	active   int
	overlap  bool
}

func (u *scriptedUploader) Upload(ctx context.Context, metadata []byte, f File) (string, error) {
	u.mu.Lock()
	u.calls = append(u.calls, f.Name)
	u.active++
	if u.active > 1 {
		u.overlap = true
	}
	u.mu.Unlock()
	defer func() {
		u.mu.Lock()
		u.active--
		u.mu.Unlock()
	}()

	if u.delay > 0 {
		select {
		case <-time.After(u.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := u.failures[f.Name]; err != nil {
		return "", err
	}
	return "srv-" + f.Name, nil
}

func files(names ...string) []File {
	out := make([]File, 0, len(names))
	for _, n := range names {
		out = append(out, File{Name: n, Size: 10, Content: strings.NewReader("x")})
	}
	return out
}

type PipelineSuite struct {
	suite.Suite
	uploader *scriptedUploader
	ledger   *Ledger
	metrics  *metrics.Metrics
	pipeline *Pipeline
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.uploader = &scriptedUploader{failures: map[string]error{}}
	s.ledger = NewLedger("diagnosis", "receipt")
	s.metrics = metrics.NewWith(prometheus.NewRegistry())
	s.pipeline = NewPipeline(s.uploader, s.ledger, WithMetrics(s.metrics))
}

func (s *PipelineSuite) TestFailureStopsBatch() {
	s.uploader.failures["f2"] = statusErr(500)

	res, err := s.pipeline.Enqueue(context.Background(), "diagnosis", files("f1", "f2", "f3"), Metadata{"claimNo": "C-1"})

	var upErr *Error
	s.Require().ErrorAs(err, &upErr)
	s.Equal(CauseServer, upErr.Cause)
	s.Equal(1, upErr.Index)
	s.Equal([]string{"srv-f1"}, upErr.Committed)
	s.Equal([]string{"f1", "f2"}, s.uploader.calls, "f3 must never be requested")
	s.Require().Len(res.Committed, 1)
	s.Equal([]string{"srv-f1"}, s.pipeline.ImageNames())
	s.Equal(1.0, promtest.ToFloat64(s.metrics.BatchAborted))
	s.Equal(1.0, promtest.ToFloat64(s.metrics.Files.WithLabelValues("ok")))
	s.Equal(1.0, promtest.ToFloat64(s.metrics.Files.WithLabelValues("server")))
}

func (s *PipelineSuite) TestCategoriesAreClassified() {
	cases := []struct {
		err  error
		want Cause
	}{
		{statusErr(413), CauseOversized},
		{statusErr(400), CauseMalformed},
		{statusErr(415), CauseMalformed},
		{statusErr(422), CauseMalformed},
		{statusErr(503), CauseServer},
		{statusErr(409), CauseGeneric},
		{errors.New("connection reset"), CauseGeneric},
		{fmt.Errorf("post: %w", context.DeadlineExceeded), CauseTimeout},
	}
	for _, tc := range cases {
		s.Run(string(tc.want)+"/"+tc.err.Error(), func() {
			s.SetupTest()
			s.uploader.failures["f1"] = tc.err
			_, err := s.pipeline.Enqueue(context.Background(), "receipt", files("f1"), nil)
			var upErr *Error
			s.Require().ErrorAs(err, &upErr)
			s.Equal(tc.want, upErr.Cause)
			s.NotEmpty(upErr.Message())
		})
	}
}

func (s *PipelineSuite) TestPerFileTimeout() {
	s.uploader.delay = time.Second
	p := NewPipeline(s.uploader, s.ledger, WithFileTimeout(20*time.Millisecond))

	_, err := p.Enqueue(context.Background(), "diagnosis", files("slow", "next"), nil)
	var upErr *Error
	s.Require().ErrorAs(err, &upErr)
	s.Equal(CauseTimeout, upErr.Cause)
	s.Equal([]string{"slow"}, s.uploader.calls)
}

func (s *PipelineSuite) TestOversizedIsRejectedWithoutRequest() {
	p := NewPipeline(s.uploader, s.ledger, WithMaxFileSize(5))
	_, err := p.Enqueue(context.Background(), "diagnosis", files("big"), nil)
	var upErr *Error
	s.Require().ErrorAs(err, &upErr)
	s.Equal(CauseOversized, upErr.Cause)
	s.Empty(s.uploader.calls)
}

func (s *PipelineSuite) TestUnknownCategory() {
	_, err := s.pipeline.Enqueue(context.Background(), "xray", files("f1"), nil)
	s.Error(err)
	s.Empty(s.uploader.calls)
}

func (s *PipelineSuite) TestConcurrentBatchesNeverOverlap() {
	s.uploader.delay = 5 * time.Millisecond
	var wg sync.WaitGroup
	for _, cat := range []string{"diagnosis", "receipt"} {
		wg.Add(1)
		go func(cat string) {
			defer wg.Done()
			_, err := s.pipeline.Enqueue(context.Background(), cat, files(cat+"1", cat+"2", cat+"3"), nil)
			s.NoError(err)
		}(cat)
	}
	wg.Wait()

	s.False(s.uploader.overlap)
	s.Len(s.uploader.calls, 6)
	s.Equal([]string{
		"srv-diagnosis1", "srv-diagnosis2", "srv-diagnosis3",
		"srv-receipt1", "srv-receipt2", "srv-receipt3",
	}, s.pipeline.ImageNames())
}

func (s *PipelineSuite) TestRemoveAfterInterleavedUploads() {
	ctx := context.Background()
	_, err := s.pipeline.Enqueue(ctx, "receipt", files("r1", "r2"), nil)
	s.Require().NoError(err)
	res, err := s.pipeline.Enqueue(ctx, "diagnosis", files("d1"), nil)
	s.Require().NoError(err)
	s.Equal(0, res.Committed[0].GlobalIndex)

	_, err = s.pipeline.Remove(ctx, "receipt", 0)
	s.Require().NoError(err)
	s.Equal([]string{"srv-d1", "srv-r2"}, s.pipeline.ImageNames())

	previews := s.pipeline.Previews()
	s.Require().Len(previews, 2)
	s.Equal("srv-r2", previews[1].ServerFilename)
	s.NotEmpty(previews[1].PreviewHandle)
}

func TestEmptyFilenameIsAFailure(t *testing.T) {
	p := NewPipeline(UploaderFunc(func(context.Context, []byte, File) (string, error) {
		return "", nil
	}), NewLedger("a"))
	_, err := p.Enqueue(context.Background(), "a", files("f"), nil)
	var upErr *Error
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, CauseGeneric, upErr.Cause)
}

func TestMetadataIsSentAsJSON(t *testing.T) {
	var got string
	p := NewPipeline(UploaderFunc(func(_ context.Context, meta []byte, _ File) (string, error) {
		got = string(meta)
		return "ok", nil
	}), NewLedger("a"))
	_, err := p.Enqueue(context.Background(), "a", files("f"), Metadata{"accidentNo": "A1"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"accidentNo":"A1"}`, got)
}

func TestOnChangeReceivesEveryChangeInOrder(t *testing.T) {
	ctx := context.Background()
	var (
		mu        sync.Mutex
		snapshots []map[string][]Entry
	)
	uploader := &scriptedUploader{failures: map[string]error{"bad": statusErr(500)}, delay: time.Millisecond}
	p := NewPipeline(uploader, NewLedger("diagnosis", "receipt"),
		WithOnChange(func(_ context.Context, snap map[string][]Entry) {
			mu.Lock()
			defer mu.Unlock()
			snapshots = append(snapshots, snap)
		}))

	_, err := p.Enqueue(ctx, "receipt", files("r1", "r2", "r3"), nil)
	require.NoError(t, err)
	_, err = p.Enqueue(ctx, "diagnosis", files("bad"), nil)
	require.Error(t, err)
	require.Len(t, snapshots, 1, "a batch that committed nothing is not a change")

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, err := p.Enqueue(ctx, "diagnosis", files("d1", "d2"), nil)
		assert.NoError(t, err)
	}()
	go func() {
		defer wg.Done()
		for range 2 {
			_, err := p.Remove(ctx, "receipt", 0)
			assert.NoError(t, err)
		}
	}()
	wg.Wait()

	_, err = p.Remove(ctx, "receipt", 5)
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, snapshots, 4)
	assert.Equal(t, p.Snapshot(), snapshots[len(snapshots)-1], "the last snapshot delivered is the current state")
}
