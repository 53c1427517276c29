package dispatch

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/lehigh-university-libraries/alttext/internal/cache"
	"github.com/lehigh-university-libraries/alttext/internal/describer"
	"github.com/lehigh-university-libraries/alttext/internal/imaging"
	"github.com/lehigh-university-libraries/alttext/internal/models"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// DefaultConcurrency is the number of provider calls allowed in flight
const DefaultConcurrency = 5

// DefaultCallTimeout bounds a single provider call
const DefaultCallTimeout = 60 * time.Second

// Describer produces the description for one image
type Describer interface {
	Describe(ctx context.Context, img models.UploadedImage, opts describer.Options) (string, error)
}

// Cache stores descriptions between batches
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Put(ctx context.Context, key, description string) error
}

// Options configures a Dispatcher
type Options struct {
	Concurrency int           // max provider calls in flight, DefaultConcurrency if < 1
	CallTimeout time.Duration // per call, DefaultCallTimeout if 0, none if < 0

	Limiter *rate.Limiter // optional, shared across batches

	Cache      Cache    // optional
	CacheScope []string // provider and model, mixed into cache keys

	// OnResult is called from the collecting goroutine as each image
	// completes, in completion order.
	OnResult func(done, total int, r models.Result)

	Validate func(data []byte) bool // imaging.Validate if nil
}

// Dispatcher fans a batch of images out to a Describer with bounded
// concurrency and returns the results in input order.
type Dispatcher struct {
	describer Describer
	opts      Options
	sem       *semaphore.Weighted
}

func New(d Describer, opts Options) *Dispatcher {
	if opts.Concurrency < 1 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.CallTimeout == 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Validate == nil {
		opts.Validate = imaging.Validate
	}

	return &Dispatcher{
		describer: d,
		opts:      opts,
		sem:       semaphore.NewWeighted(int64(opts.Concurrency)),
	}
}

type completion struct {
	idx    int
	result models.Result
}

// Dispatch describes every image and returns exactly one result per image,
// result[i] belonging to images[i]. A failing image yields a sentinel result
// and never stops the rest of the batch.
func (d *Dispatcher) Dispatch(ctx context.Context, images []models.UploadedImage, opts describer.Options) []models.Result {
	results := make([]models.Result, len(images))
	if len(images) == 0 {
		return results
	}

	completions := make(chan completion, len(images))

	var wg sync.WaitGroup
	for i, img := range images {
		wg.Add(1)
		go func() {
			defer wg.Done()
			completions <- completion{idx: i, result: d.describeOne(ctx, img, opts)}
		}()
	}

	go func() {
		wg.Wait()
		close(completions)
	}()

	// Results arrive in completion order and are placed by input position
	done := 0
	for c := range completions {
		results[c.idx] = c.result
		done++
		if d.opts.OnResult != nil {
			d.opts.OnResult(done, len(images), c.result)
		}
	}

	return results
}

func (d *Dispatcher) describeOne(ctx context.Context, img models.UploadedImage, opts describer.Options) models.Result {
	if !d.opts.Validate(img.Data) {
		slog.Debug("Skipping non-image upload", "name", img.Name, "size", len(img.Data))
		return models.NewResult(img.Name, models.NotAnImage)
	}

	var key string
	if d.opts.Cache != nil {
		key = d.cacheKey(img, opts)
		desc, ok, err := d.opts.Cache.Get(ctx, key)
		if err != nil {
			slog.Warn("Cache lookup failed", "name", img.Name, "err", err)
		} else if ok {
			r := models.NewResult(img.Name, desc)
			r.Cached = true
			return r
		}
	}

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return failed(img.Name, err)
	}
	defer d.sem.Release(1)

	if d.opts.Limiter != nil {
		if err := d.opts.Limiter.Wait(ctx); err != nil {
			return failed(img.Name, err)
		}
	}

	callCtx := ctx
	if d.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d.opts.CallTimeout)
		defer cancel()
	}

	start := time.Now()
	text, err := d.describer.Describe(callCtx, img, opts)
	if err != nil {
		slog.Warn("Failed to describe image", "name", img.Name, "err", err)
		return failed(img.Name, err)
	}
	slog.Debug("Described image", "name", img.Name, "chars", utf8.RuneCountInString(text), "elapsed", time.Since(start))

	if d.opts.Cache != nil {
		if err := d.opts.Cache.Put(ctx, key, text); err != nil {
			slog.Warn("Failed to cache description", "name", img.Name, "err", err)
		}
	}

	return models.NewResult(img.Name, text)
}

func (d *Dispatcher) cacheKey(img models.UploadedImage, opts describer.Options) string {
	params := append([]string{}, d.opts.CacheScope...)
	params = append(params, strconv.Itoa(opts.MaxChars), string(opts.Style))
	if opts.Temperature != nil {
		params = append(params, strconv.FormatFloat(*opts.Temperature, 'f', -1, 64))
	}
	return cache.Key(img.Data, params...)
}

func failed(name string, err error) models.Result {
	r := models.NewResult(name, models.DescriptionFailed)
	r.Error = err.Error()
	return r
}
