package scheduler

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/artemshloyda/photobatch/internal/cache"
	"github.com/artemshloyda/photobatch/internal/config"
	"github.com/artemshloyda/photobatch/internal/converter"
	"github.com/artemshloyda/photobatch/internal/storage"
)

type convertHook func(name string, onProgress converter.ProgressFunc) (*converter.Result, error)

type fakeConverter struct {
	mu       sync.Mutex
	calls    []string
	settings []config.ConversionSettings
	hook     convertHook
	variant  string
}

func (f *fakeConverter) Convert(_ context.Context, in converter.Input, s config.ConversionSettings, onProgress converter.ProgressFunc) (*converter.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, in.Name)
	f.settings = append(f.settings, s)
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		return hook(in.Name, onProgress)
	}
	return okResult(), nil
}

func (f *fakeConverter) Variant(config.ConversionSettings) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.variant
}

func (f *fakeConverter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func okResult() *converter.Result {
	return &converter.Result{
		Data:           bytes.Repeat([]byte{7}, 400),
		Format:         config.FormatWebP,
		Width:          10,
		Height:         5,
		OriginalWidth:  20,
		OriginalHeight: 10,
	}
}

func newJob(name string) *Job {
	return NewJob("id-"+name, name, "image/jpeg", bytes.Repeat([]byte(name), 1000/len(name)+1)[:1000])
}

func newQueue(t *testing.T, conv Converter, names ...string) *Queue {
	t.Helper()
	q := New(conv, zaptest.NewLogger(t))
	for _, n := range names {
		q.Add(newJob(n))
	}
	return q
}

func statuses(q *Queue) []Status {
	var out []Status
	for _, j := range q.Jobs() {
		out = append(out, j.Status)
	}
	return out
}

func assertStatuses(t *testing.T, q *Queue, want ...Status) {
	t.Helper()
	got := statuses(q)
	if len(got) != len(want) {
		t.Fatalf("statuses = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("statuses = %v, want %v", got, want)
			return
		}
	}
}

func TestComputeETA(t *testing.T) {
	tests := []struct {
		name     string
		elapsed  time.Duration
		progress int
		want     int
		wantOK   bool
	}{
		{"half done", 10 * time.Second, 50, 10, true},
		{"early", 1 * time.Second, 6, 16, true},
		{"at threshold", 10 * time.Second, 5, 0, false},
		{"complete", 10 * time.Second, 100, 0, false},
		{"zero elapsed", 0, 50, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ComputeETA(tt.elapsed, tt.progress)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("ComputeETA() = %d, %v; want %d, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestProcessBatch_CompletesAll(t *testing.T) {
	conv := &fakeConverter{}
	q := newQueue(t, conv, "a.jpg", "b.jpg")

	report, err := q.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}

	if report.Total != 2 || report.Completed != 2 || report.Failed != 0 || report.Cancelled {
		t.Errorf("report = %+v", report)
	}
	assertStatuses(t, q, StatusCompleted, StatusCompleted)

	for _, j := range q.Jobs() {
		if j.Progress != 100 || j.Error != "" || len(j.Output) == 0 || j.ETA != -1 || !j.StartedAt.IsZero() {
			t.Errorf("job %s = progress %d, error %q, output %d, eta %d", j.Name, j.Progress, j.Error, len(j.Output), j.ETA)
		}
		if j.OutputFormat != config.FormatWebP || j.OutputWidth != 10 || j.OriginalWidth != 20 {
			t.Errorf("job %s geometry/format = %s %dx%d", j.Name, j.OutputFormat, j.OutputWidth, j.OutputHeight)
		}
	}

	s := q.Summary()
	if s.Completed != 2 || s.OriginalBytes != 2000 || s.ConvertedBytes != 800 {
		t.Errorf("Summary() = %+v", s)
	}
	if s.Savings.SavedBytes != 1200 || s.Savings.SavedPercentage != 60 {
		t.Errorf("Savings = %+v, want 1200 / 60", s.Savings)
	}
	if report.SavedPercent() != 60 {
		t.Errorf("SavedPercent() = %v, want 60", report.SavedPercent())
	}

	if q.IsRunning() {
		t.Error("IsRunning() = true after batch")
	}
	if cur, total := q.BatchProgress(); cur != 0 || total != 0 {
		t.Errorf("BatchProgress() = %d/%d, want 0/0", cur, total)
	}
}

func TestProcessBatch_ErrorIsolated(t *testing.T) {
	conv := &fakeConverter{hook: func(name string, _ converter.ProgressFunc) (*converter.Result, error) {
		if name == "bad.jpg" {
			return nil, converter.ErrDecode
		}
		return okResult(), nil
	}}
	q := newQueue(t, conv, "a.jpg", "bad.jpg", "c.jpg")

	report, _ := q.ProcessBatch(context.Background())
	if report.Completed != 2 || report.Failed != 1 {
		t.Errorf("report = %+v, want 2 completed, 1 failed", report)
	}
	assertStatuses(t, q, StatusCompleted, StatusError, StatusCompleted)

	bad, _ := q.Get("id-bad.jpg")
	if bad.Error == "" || bad.Output != nil || bad.ConvertedSize != 0 {
		t.Errorf("failed job = error %q, output %v, size %d", bad.Error, bad.Output, bad.ConvertedSize)
	}
}

func TestProcessBatch_EmptyResultIsError(t *testing.T) {
	conv := &fakeConverter{hook: func(string, converter.ProgressFunc) (*converter.Result, error) {
		return &converter.Result{}, nil
	}}
	q := newQueue(t, conv, "a.jpg")

	report, _ := q.ProcessBatch(context.Background())
	if report.Failed != 1 || report.Completed != 0 {
		t.Errorf("report = %+v, want 1 failed", report)
	}
	assertStatuses(t, q, StatusError)
}

func TestProcessBatch_FailureResetsProgress(t *testing.T) {
	conv := &fakeConverter{hook: func(_ string, onProgress converter.ProgressFunc) (*converter.Result, error) {
		onProgress(converter.ProgressUpdate{Percent: 60})
		return nil, errors.New("boom")
	}}
	q := newQueue(t, conv, "a.jpg")

	_, _ = q.ProcessBatch(context.Background())
	j, _ := q.Get("id-a.jpg")
	if j.Status != StatusError || j.Progress != 0 {
		t.Errorf("failed job = status %s, progress %d; want error, 0", j.Status, j.Progress)
	}
}

func TestRetry(t *testing.T) {
	fail := true
	conv := &fakeConverter{hook: func(string, converter.ProgressFunc) (*converter.Result, error) {
		if fail {
			return nil, errors.New("boom")
		}
		return okResult(), nil
	}}
	q := newQueue(t, conv, "a.jpg", "b.jpg")

	_, _ = q.ProcessBatch(context.Background())
	assertStatuses(t, q, StatusError, StatusError)

	if err := q.Retry("id-a.jpg"); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	a, _ := q.Get("id-a.jpg")
	if a.Status != StatusPending || a.Progress != 0 || a.Error != "" {
		t.Errorf("retried job = %+v, want pending with cleared error", a)
	}
	if conv.callCount() != 2 {
		t.Errorf("Retry() should not start processing, calls = %d", conv.callCount())
	}

	fail = false
	report, _ := q.ProcessBatch(context.Background())
	if report.Total != 2 || report.Completed != 2 {
		t.Errorf("report = %+v, want pending and failed jobs processed", report)
	}
	assertStatuses(t, q, StatusCompleted, StatusCompleted)

	if err := q.Retry("id-a.jpg"); !errors.Is(err, ErrJobNotFailed) {
		t.Errorf("Retry(completed) error = %v, want ErrJobNotFailed", err)
	}
	if err := q.Retry("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Retry(missing) error = %v, want ErrJobNotFound", err)
	}
}

func TestProcessBatch_SingleFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once

	conv := &fakeConverter{hook: func(string, converter.ProgressFunc) (*converter.Result, error) {
		once.Do(func() {
			close(started)
			<-release
		})
		return okResult(), nil
	}}
	q := newQueue(t, conv, "a.jpg", "b.jpg")

	done := make(chan BatchReport)
	go func() {
		r, _ := q.ProcessBatch(context.Background())
		done <- r
	}()

	<-started
	if _, err := q.ProcessBatch(context.Background()); !errors.Is(err, ErrBatchRunning) {
		t.Errorf("second ProcessBatch() error = %v, want ErrBatchRunning", err)
	}
	if cur, total := q.BatchProgress(); cur != 1 || total != 2 {
		t.Errorf("BatchProgress() = %d/%d, want 1/2", cur, total)
	}
	if !q.IsRunning() {
		t.Error("IsRunning() = false during batch")
	}
	close(release)

	report := <-done
	if report.Completed != 2 {
		t.Errorf("report = %+v, want 2 completed", report)
	}
	if conv.callCount() != 2 {
		t.Errorf("calls = %d, want 2", conv.callCount())
	}
}

func TestCancel_MidBatch(t *testing.T) {
	var q *Queue
	conv := &fakeConverter{hook: func(name string, onProgress converter.ProgressFunc) (*converter.Result, error) {
		if name == "b.jpg" {
			onProgress(converter.ProgressUpdate{Percent: 40})
			q.Cancel()
			onProgress(converter.ProgressUpdate{Percent: 80})
		}
		return okResult(), nil
	}}
	q = newQueue(t, conv, "a.jpg", "b.jpg", "c.jpg")

	report, err := q.ProcessBatch(context.Background())
	if err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}
	if !report.Cancelled || report.Completed != 1 {
		t.Errorf("report = %+v, want cancelled with 1 completed", report)
	}
	assertStatuses(t, q, StatusCompleted, StatusPending, StatusPending)

	b, _ := q.Get("id-b.jpg")
	if b.Progress != 0 || !b.StartedAt.IsZero() || b.ETA != -1 {
		t.Errorf("cancelled job = progress %d, started %v, eta %d", b.Progress, b.StartedAt, b.ETA)
	}
	if conv.callCount() != 2 {
		t.Errorf("calls = %d, want 2", conv.callCount())
	}

	report, _ = q.ProcessBatch(context.Background())
	if report.Completed != 2 || report.Cancelled {
		t.Errorf("resumed report = %+v, want 2 completed", report)
	}
	assertStatuses(t, q, StatusCompleted, StatusCompleted, StatusCompleted)
}

func TestCancel_ParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	conv := &fakeConverter{hook: func(string, converter.ProgressFunc) (*converter.Result, error) {
		cancel()
		return nil, context.Canceled
	}}
	q := newQueue(t, conv, "a.jpg", "b.jpg")

	report, _ := q.ProcessBatch(ctx)
	if !report.Cancelled || report.Failed != 0 {
		t.Errorf("report = %+v, want cancelled without failures", report)
	}
	assertStatuses(t, q, StatusPending, StatusPending)
}

func TestCancel_Idle(t *testing.T) {
	q := newQueue(t, &fakeConverter{}, "a.jpg")
	q.Cancel()

	report, _ := q.ProcessBatch(context.Background())
	if report.Cancelled || report.Completed != 1 {
		t.Errorf("report = %+v, cancel while idle must not affect next batch", report)
	}
}

func TestRemove(t *testing.T) {
	var q *Queue
	var busyErr, otherErr error
	conv := &fakeConverter{hook: func(name string, _ converter.ProgressFunc) (*converter.Result, error) {
		if name == "a.jpg" {
			busyErr = q.Remove("id-a.jpg")
			otherErr = q.Remove("id-c.jpg")
		}
		return okResult(), nil
	}}
	q = newQueue(t, conv, "a.jpg", "b.jpg", "c.jpg")

	report, _ := q.ProcessBatch(context.Background())
	if !errors.Is(busyErr, ErrJobBusy) {
		t.Errorf("Remove(in-flight) error = %v, want ErrJobBusy", busyErr)
	}
	if otherErr != nil {
		t.Errorf("Remove(pending) error = %v", otherErr)
	}
	if report.Completed != 2 || q.Len() != 2 {
		t.Errorf("report = %+v, len = %d; want 2 completed, 2 jobs", report, q.Len())
	}
	if err := q.Remove("missing"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("Remove(missing) error = %v, want ErrJobNotFound", err)
	}
	if err := q.Remove("id-a.jpg"); err != nil {
		t.Errorf("Remove(completed) error = %v", err)
	}
}

func TestClear_DuringBatch(t *testing.T) {
	var q *Queue
	conv := &fakeConverter{hook: func(string, converter.ProgressFunc) (*converter.Result, error) {
		q.Clear()
		return okResult(), nil
	}}
	q = newQueue(t, conv, "a.jpg", "b.jpg")

	report, _ := q.ProcessBatch(context.Background())
	if !report.Cancelled {
		t.Errorf("report = %+v, want cancelled", report)
	}
	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
	if conv.callCount() != 1 {
		t.Errorf("calls = %d, want 1", conv.callCount())
	}
}

func TestProgressAndETA(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	conv := &fakeConverter{hook: func(_ string, onProgress converter.ProgressFunc) (*converter.Result, error) {
		onProgress(converter.ProgressUpdate{Percent: 2})
		now = now.Add(10 * time.Second)
		onProgress(converter.ProgressUpdate{Percent: 50})
		onProgress(converter.ProgressUpdate{Percent: 30})
		onProgress(converter.ProgressUpdate{Percent: 100})
		return okResult(), nil
	}}
	q := newQueue(t, conv, "a.jpg")
	q.SetClock(func() time.Time { return now })

	var events []Event
	q.SetObserver(func(e Event) { events = append(events, e) })

	if _, err := q.ProcessBatch(context.Background()); err != nil {
		t.Fatalf("ProcessBatch() error = %v", err)
	}

	var progress []int
	var etas []int
	for _, e := range events {
		if e.Type == EventJobProgress {
			progress = append(progress, e.Job.Progress)
			etas = append(etas, e.Job.ETA)
		}
	}

	if len(progress) != 2 || progress[0] != 2 || progress[1] != 50 {
		t.Fatalf("progress events = %v, want [2 50]", progress)
	}
	if etas[0] != -1 || etas[1] != 10 {
		t.Errorf("eta events = %v, want [-1 10]", etas)
	}

	types := []EventType{events[0].Type, events[len(events)-2].Type, events[len(events)-1].Type}
	want := []EventType{EventJobStarted, EventJobCompleted, EventBatchDone}
	for i := range want {
		if types[i] != want[i] {
			t.Errorf("event types = %v, want %v", types, want)
			break
		}
	}

	j, _ := q.Get("id-a.jpg")
	if j.Progress != 100 || j.Status != StatusCompleted {
		t.Errorf("job = %d %s, want 100 completed", j.Progress, j.Status)
	}
}

func TestUpdateSettings(t *testing.T) {
	conv := &fakeConverter{}
	q := newQueue(t, conv, "a.jpg")

	bad := 0
	if err := q.UpdateSettings(config.SettingsPatch{Quality: &bad}); err == nil {
		t.Error("UpdateSettings(quality=0) should fail")
	}
	if q.Settings().Quality != config.DefaultQuality {
		t.Errorf("Quality = %d, want unchanged %d", q.Settings().Quality, config.DefaultQuality)
	}

	_, _ = q.ProcessBatch(context.Background())

	quality := 55
	format := config.FormatJPEG
	if err := q.UpdateSettings(config.SettingsPatch{Quality: &quality, OutputFormat: &format}); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}

	first, _ := q.Get("id-a.jpg")
	if first.OutputFormat != config.FormatWebP {
		t.Errorf("completed job format changed to %s", first.OutputFormat)
	}

	q.Add(newJob("b.jpg"))
	_, _ = q.ProcessBatch(context.Background())

	if len(conv.settings) != 2 {
		t.Fatalf("settings calls = %d, want 2", len(conv.settings))
	}
	if conv.settings[0].Quality != config.DefaultQuality || conv.settings[1].Quality != 55 {
		t.Errorf("qualities = %d, %d; want %d, 55", conv.settings[0].Quality, conv.settings[1].Quality, config.DefaultQuality)
	}
	if conv.settings[1].OutputFormat != config.FormatJPEG {
		t.Errorf("format = %s, want jpeg", conv.settings[1].OutputFormat)
	}
}

func TestProcessBatch_RecoversPanic(t *testing.T) {
	conv := &fakeConverter{hook: func(name string, _ converter.ProgressFunc) (*converter.Result, error) {
		if name == "a.jpg" {
			panic("converter exploded")
		}
		return okResult(), nil
	}}
	q := newQueue(t, conv, "a.jpg", "b.jpg")

	report, _ := q.ProcessBatch(context.Background())
	if report.Failed != 1 || report.Completed != 1 {
		t.Errorf("report = %+v, want 1 failed, 1 completed", report)
	}
	assertStatuses(t, q, StatusError, StatusCompleted)
}

func TestProcessBatch_Cache(t *testing.T) {
	c, err := cache.New(filepath.Join(t.TempDir(), "cache"), true)
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}

	conv := &fakeConverter{}
	q := New(conv, zaptest.NewLogger(t))
	q.SetCache(c)

	data := bytes.Repeat([]byte{1}, 1000)
	q.Add(NewJob("1", "a.jpg", "image/jpeg", data), NewJob("2", "copy.jpg", "image/jpeg", data))

	report, _ := q.ProcessBatch(context.Background())
	if report.Completed != 2 || report.CacheHits != 1 {
		t.Errorf("report = %+v, want 2 completed, 1 cache hit", report)
	}
	if conv.callCount() != 1 {
		t.Errorf("calls = %d, want 1", conv.callCount())
	}

	second, _ := q.Get("2")
	if !second.CacheHit || second.OutputWidth != 10 || second.ConvertedSize != 400 {
		t.Errorf("cached job = %+v", second)
	}
}

func TestProcessBatch_CacheVariant(t *testing.T) {
	c, err := cache.New(filepath.Join(t.TempDir(), "cache"), true)
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}
	data := bytes.Repeat([]byte{1}, 1000)

	run := func(conv *fakeConverter) BatchReport {
		q := New(conv, zaptest.NewLogger(t))
		q.SetCache(c)
		q.Add(NewJob("1", "a.jpg", "image/jpeg", data))
		report, _ := q.ProcessBatch(context.Background())
		return report
	}

	fallback := &fakeConverter{variant: "png;bg=false"}
	if report := run(fallback); report.CacheHits != 0 {
		t.Fatalf("first run report = %+v, want no cache hits", report)
	}

	native := &fakeConverter{variant: "webp;bg=false"}
	if report := run(native); report.CacheHits != 0 || native.callCount() != 1 {
		t.Errorf("other variant: report = %+v, calls = %d; want a fresh conversion", report, native.callCount())
	}

	again := &fakeConverter{variant: "png;bg=false"}
	if report := run(again); report.CacheHits != 1 || again.callCount() != 0 {
		t.Errorf("same variant: report = %+v, calls = %d; want a cache hit", report, again.callCount())
	}
}

func TestProcessBatch_DegradedNotCached(t *testing.T) {
	c, err := cache.New(filepath.Join(t.TempDir(), "cache"), true)
	if err != nil {
		t.Fatalf("cache.New() error = %v", err)
	}

	conv := &fakeConverter{hook: func(string, converter.ProgressFunc) (*converter.Result, error) {
		res := okResult()
		res.Degraded = true
		return res, nil
	}}
	q := New(conv, zaptest.NewLogger(t))
	q.SetCache(c)

	data := bytes.Repeat([]byte{1}, 1000)
	q.Add(NewJob("1", "a.jpg", "image/jpeg", data), NewJob("2", "copy.jpg", "image/jpeg", data))

	report, _ := q.ProcessBatch(context.Background())
	if report.Completed != 2 || report.CacheHits != 0 || conv.callCount() != 2 {
		t.Errorf("report = %+v, calls = %d; want 2 conversions without cache hits", report, conv.callCount())
	}
}

type fakeRecorder struct {
	records []storage.Conversion
}

func (f *fakeRecorder) RecordConversion(_ context.Context, c storage.Conversion) error {
	f.records = append(f.records, c)
	return nil
}

func TestProcessBatch_RecordsHistory(t *testing.T) {
	conv := &fakeConverter{hook: func(name string, _ converter.ProgressFunc) (*converter.Result, error) {
		if name == "bad.jpg" {
			return nil, converter.ErrDecode
		}
		return okResult(), nil
	}}
	q := newQueue(t, conv, "a.jpg", "bad.jpg")
	rec := &fakeRecorder{}
	q.SetRecorder(rec)

	_, _ = q.ProcessBatch(context.Background())

	if len(rec.records) != 2 {
		t.Fatalf("records = %d, want 2", len(rec.records))
	}
	if rec.records[0].Status != storage.StatusOK || rec.records[0].OutSize != 400 || rec.records[0].OutFormat != "webp" {
		t.Errorf("records[0] = %+v", rec.records[0])
	}
	if rec.records[1].Status != storage.StatusFailed || rec.records[1].Error == "" {
		t.Errorf("records[1] = %+v", rec.records[1])
	}
}
