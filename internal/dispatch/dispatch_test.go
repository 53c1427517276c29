package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lehigh-university-libraries/alttext/internal/cache"
	"github.com/lehigh-university-libraries/alttext/internal/describer"
	"github.com/lehigh-university-libraries/alttext/internal/models"
)

// fakeDescriber answers from a table keyed by image name and records calls
type fakeDescriber struct {
	replies map[string]string
	delay   func(name string) time.Duration
	fail    map[string]bool

	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeDescriber) Describe(ctx context.Context, img models.UploadedImage, opts describer.Options) (string, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}

	if f.delay != nil {
		select {
		case <-time.After(f.delay(img.Name)):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if f.fail[img.Name] {
		return "", errors.New("upstream exploded")
	}
	return describer.Truncate(f.replies[img.Name], opts.MaxChars), nil
}

func pngBytes(t *testing.T, w int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, w, 4))); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestDispatchScenario(t *testing.T) {
	fd := &fakeDescriber{replies: map[string]string{
		"cat.jpg": "A cat.",
		"dog.png": "A dog.",
	}}
	d := New(fd, Options{})

	results := d.Dispatch(t.Context(), []models.UploadedImage{
		{Name: "cat.jpg", Data: pngBytes(t, 4)},
		{Name: "dog.png", Data: pngBytes(t, 5)},
	}, describer.Options{MaxChars: 125})

	expected := []models.Result{
		{Name: "cat.jpg", Text: "A cat.", Chars: 6},
		{Name: "dog.png", Text: "A dog.", Chars: 6},
	}
	if len(results) != len(expected) {
		t.Fatalf("Expected %d results, got %d", len(expected), len(results))
	}
	for i := range expected {
		if results[i] != expected[i] {
			t.Errorf("Result %d: expected %+v, got %+v", i, expected[i], results[i])
		}
	}
}

func TestDispatchNotAnImage(t *testing.T) {
	fd := &fakeDescriber{}
	d := New(fd, Options{})

	truncated := pngBytes(t, 8)
	truncated = truncated[:len(truncated)/2]

	results := d.Dispatch(t.Context(), []models.UploadedImage{{Name: "broken.jpg", Data: truncated}}, describer.Options{MaxChars: 125})

	expected := models.Result{Name: "broken.jpg", Text: "(not an image)", Chars: 14}
	if len(results) != 1 || results[0] != expected {
		t.Errorf("Expected %+v, got %+v", expected, results)
	}
	if calls := fd.calls.Load(); calls != 0 {
		t.Errorf("Expected no provider calls, got %d", calls)
	}
}

func TestDispatchPreservesOrder(t *testing.T) {
	const n = 12
	replies := make(map[string]string, n)
	images := make([]models.UploadedImage, n)
	for i := range n {
		name := fmt.Sprintf("img-%02d.png", i)
		replies[name] = "Description " + name
		images[i] = models.UploadedImage{Name: name, Data: pngBytes(t, i+1)}
	}

	// Later images finish first
	fd := &fakeDescriber{
		replies: replies,
		delay: func(name string) time.Duration {
			var i int
			fmt.Sscanf(name, "img-%02d.png", &i)
			return time.Duration(n-i) * 3 * time.Millisecond
		},
	}

	var mu sync.Mutex
	var completionOrder []string
	d := New(fd, Options{
		Concurrency: n,
		OnResult: func(done, total int, r models.Result) {
			mu.Lock()
			defer mu.Unlock()
			completionOrder = append(completionOrder, r.Name)
			if total != n {
				t.Errorf("Expected total %d, got %d", n, total)
			}
		},
	})

	results := d.Dispatch(t.Context(), images, describer.Options{MaxChars: 200})
	for i, r := range results {
		if r.Name != images[i].Name {
			t.Errorf("Position %d: expected %s, got %s", i, images[i].Name, r.Name)
		}
		if r.Text != replies[images[i].Name] {
			t.Errorf("Position %d: unexpected text %q", i, r.Text)
		}
	}

	if len(completionOrder) != n {
		t.Fatalf("Expected %d progress callbacks, got %d", n, len(completionOrder))
	}
	if completionOrder[0] == images[0].Name {
		t.Errorf("Expected completion order to differ from input order, got %v", completionOrder)
	}
}

func TestDispatchConcurrencyBound(t *testing.T) {
	const k = 3
	images := make([]models.UploadedImage, 15)
	for i := range images {
		images[i] = models.UploadedImage{Name: fmt.Sprintf("%d.png", i), Data: pngBytes(t, i+1)}
	}

	fd := &fakeDescriber{delay: func(string) time.Duration { return 10 * time.Millisecond }}
	d := New(fd, Options{Concurrency: k})

	results := d.Dispatch(t.Context(), images, describer.Options{MaxChars: 60})
	if len(results) != len(images) {
		t.Fatalf("Expected %d results, got %d", len(images), len(results))
	}
	if maxSeen := fd.maxSeen.Load(); maxSeen > k {
		t.Errorf("Concurrency bound exceeded: %d calls in flight, limit %d", maxSeen, k)
	}
	if calls := fd.calls.Load(); calls != int32(len(images)) {
		t.Errorf("Expected %d calls, got %d", len(images), calls)
	}
}

func TestDispatchIsolatesFailures(t *testing.T) {
	fd := &fakeDescriber{
		replies: map[string]string{"a.png": "First.", "c.png": "Third."},
		fail:    map[string]bool{"b.png": true},
	}
	d := New(fd, Options{Concurrency: 1})

	results := d.Dispatch(t.Context(), []models.UploadedImage{
		{Name: "a.png", Data: pngBytes(t, 1)},
		{Name: "b.png", Data: pngBytes(t, 2)},
		{Name: "c.png", Data: pngBytes(t, 3)},
	}, describer.Options{MaxChars: 60})

	if results[0].Text != "First." || results[2].Text != "Third." {
		t.Errorf("Healthy images should complete, got %+v", results)
	}
	if results[1].Text != models.DescriptionFailed || !strings.Contains(results[1].Error, "upstream exploded") {
		t.Errorf("Expected failure sentinel, got %+v", results[1])
	}
	if !results[1].Failed() || results[0].Failed() {
		t.Error("Failed() does not match results")
	}

	// A failure must release its slot; a K=1 batch would hang otherwise
	again := d.Dispatch(t.Context(), []models.UploadedImage{{Name: "a.png", Data: pngBytes(t, 1)}}, describer.Options{MaxChars: 60})
	if again[0].Text != "First." {
		t.Errorf("Expected slot to be released after failure, got %+v", again[0])
	}
}

func TestDispatchCallTimeout(t *testing.T) {
	fd := &fakeDescriber{delay: func(string) time.Duration { return time.Second }}
	d := New(fd, Options{CallTimeout: 20 * time.Millisecond})

	results := d.Dispatch(t.Context(), []models.UploadedImage{{Name: "slow.png", Data: pngBytes(t, 2)}}, describer.Options{MaxChars: 60})
	if results[0].Text != models.DescriptionFailed {
		t.Fatalf("Expected failure sentinel, got %+v", results[0])
	}
	if !strings.Contains(results[0].Error, context.DeadlineExceeded.Error()) {
		t.Errorf("Expected deadline error, got %q", results[0].Error)
	}
}

func TestDispatchDuplicateNames(t *testing.T) {
	fd := &fakeDescriber{replies: map[string]string{"same.png": "Same."}}
	d := New(fd, Options{})

	results := d.Dispatch(t.Context(), []models.UploadedImage{
		{Name: "same.png", Data: pngBytes(t, 1)},
		{Name: "same.png", Data: []byte("garbage")},
	}, describer.Options{MaxChars: 60})

	if results[0].Text != "Same." || results[1].Text != models.NotAnImage {
		t.Errorf("Duplicate names should be paired by position, got %+v", results)
	}
}

func TestDispatchCache(t *testing.T) {
	c, err := cache.Open(t.Context(), ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	fd := &fakeDescriber{replies: map[string]string{"cat.png": "A cat."}}
	d := New(fd, Options{Cache: c, CacheScope: []string{"fake", "model"}})
	images := []models.UploadedImage{{Name: "cat.png", Data: pngBytes(t, 3)}}

	first := d.Dispatch(t.Context(), images, describer.Options{MaxChars: 100})
	second := d.Dispatch(t.Context(), images, describer.Options{MaxChars: 100})

	if first[0].Cached || !second[0].Cached {
		t.Errorf("Expected miss then hit, got %+v then %+v", first[0], second[0])
	}
	if second[0].Text != "A cat." {
		t.Errorf("Unexpected cached text %q", second[0].Text)
	}
	if calls := fd.calls.Load(); calls != 1 {
		t.Errorf("Expected a single provider call, got %d", calls)
	}

	// A different bound is a different request
	d.Dispatch(t.Context(), images, describer.Options{MaxChars: 60})
	if calls := fd.calls.Load(); calls != 2 {
		t.Errorf("Expected a second provider call, got %d", calls)
	}
}

func TestDispatchCancelled(t *testing.T) {
	fd := &fakeDescriber{delay: func(string) time.Duration { return time.Second }}
	d := New(fd, Options{Concurrency: 1})

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	results := d.Dispatch(ctx, []models.UploadedImage{
		{Name: "a.png", Data: pngBytes(t, 1)},
		{Name: "b.png", Data: pngBytes(t, 2)},
	}, describer.Options{MaxChars: 60})

	for _, r := range results {
		if r.Text != models.DescriptionFailed {
			t.Errorf("Expected failure sentinel after cancellation, got %+v", r)
		}
	}
}

func TestDispatchEmpty(t *testing.T) {
	d := New(&fakeDescriber{}, Options{})
	if results := d.Dispatch(t.Context(), nil, describer.Options{MaxChars: 60}); len(results) != 0 {
		t.Errorf("Expected no results, got %+v", results)
	}
}

func TestNewLimiter(t *testing.T) {
	if NewLimiter(0) != nil {
		t.Error("Expected nil limiter for zero rate")
	}

	l := NewLimiter(60)
	if l == nil {
		t.Fatal("Expected a limiter")
	}
	if got := l.Limit(); got < 0.99 || got > 1.01 {
		t.Errorf("Expected ~1 request per second, got %v", got)
	}
}

func TestDispatchRateLimited(t *testing.T) {
	fd := &fakeDescriber{replies: map[string]string{"a.png": "A.", "b.png": "B."}}
	d := New(fd, Options{Limiter: NewLimiter(600)}) // one call every 100ms

	start := time.Now()
	d.Dispatch(t.Context(), []models.UploadedImage{
		{Name: "a.png", Data: pngBytes(t, 1)},
		{Name: "b.png", Data: pngBytes(t, 2)},
	}, describer.Options{MaxChars: 60})

	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("Expected the second call to wait for the limiter, batch took %s", elapsed)
	}
}
