package server

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/kiesman99/dezoom/internal/api"
	"github.com/kiesman99/dezoom/internal/batch"
	"github.com/kiesman99/dezoom/internal/logging"
	"github.com/kiesman99/dezoom/internal/progress"
	"github.com/kiesman99/dezoom/internal/stitch"
)

var (
	ErrJobNotFound    = errors.New("job not found")
	ErrInvalidRequest = errors.New("invalid job request")
	ErrQueueFull      = errors.New("job queue is full")
	ErrImageNotReady  = errors.New("image not ready")
	ErrImageExpired   = errors.New("image expired")
	ErrStopped        = errors.New("job manager stopped")
)

// Runner dezoomifies one image.
type Runner interface {
	ProcessItem(ctx context.Context, item batch.Item) (*stitch.Result, error)
	Progress() progress.Snapshot
}

var _ Runner = (*stitch.Stitcher)(nil)

// JobManagerConfig contains configuration for the job manager.
type JobManagerConfig struct {
	// NewRunner returns the runner for a request.
	NewRunner func(req api.JobRequest) Runner
	// Fs and WorkDir receive the images while they are produced.
	Fs      afero.Fs
	WorkDir string

	QueueSize   int           // default 100
	CacheTTL    time.Duration // how long finished images are served, default 1h
	CacheSizeMB int           // default 512
}

// JobManager runs jobs one at a time and keeps the finished images in
// memory for CacheTTL.
type JobManager struct {
	cfg    JobManagerConfig
	images *bigcache.BigCache
	queue  chan string

	mu      sync.Mutex
	jobs    map[string]*jobState
	stopped bool

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

type jobState struct {
	job    api.Job
	cancel context.CancelFunc
	runner Runner
	// file holds the image when it did not fit the cache.
	file string
}

// NewJobManager creates a job manager. Call Start to run jobs.
func NewJobManager(cfg JobManagerConfig) (*JobManager, error) {
	if cfg.NewRunner == nil {
		return nil, errors.New("job manager needs a runner factory")
	}
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = time.Hour
	}
	if cfg.CacheSizeMB <= 0 {
		cfg.CacheSizeMB = 512
	}

	images, err := bigcache.New(context.Background(), bigcache.Config{
		Shards:             16,
		LifeWindow:         cfg.CacheTTL,
		CleanWindow:        cfg.CacheTTL / 2,
		MaxEntriesInWindow: 1024,
		MaxEntrySize:       4 << 20,
		HardMaxCacheSize:   cfg.CacheSizeMB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create image cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &JobManager{
		cfg:    cfg,
		images: images,
		queue:  make(chan string, cfg.QueueSize),
		jobs:   make(map[string]*jobState),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start starts the worker. Images are processed one at a time.
func (jm *JobManager) Start() {
	jm.wg.Add(1)
	go jm.worker()
}

// Stop cancels running jobs and waits for the worker to return.
func (jm *JobManager) Stop() {
	jm.stopOnce.Do(func() {
		jm.mu.Lock()
		jm.stopped = true
		close(jm.queue)
		jm.mu.Unlock()

		jm.cancel()
		jm.wg.Wait()
		jm.images.Close()
	})
}

func (jm *JobManager) worker() {
	defer jm.wg.Done()
	for id := range jm.queue {
		jm.runJob(id)
	}
}

// Submit validates req and queues a new job.
func (jm *JobManager) Submit(req api.JobRequest) (api.Job, error) {
	u, err := url.Parse(req.Url)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return api.Job{}, fmt.Errorf("%w: url must be an absolute http(s) URL", ErrInvalidRequest)
	}

	st := &jobState{job: api.Job{
		Id:        uuid.NewString(),
		Status:    api.Queued,
		Request:   req,
		CreatedAt: time.Now(),
	}}

	jm.mu.Lock()
	defer jm.mu.Unlock()
	if jm.stopped {
		return api.Job{}, ErrStopped
	}
	select {
	case jm.queue <- st.job.Id:
	default:
		return api.Job{}, ErrQueueFull
	}
	jm.jobs[st.job.Id] = st
	logging.Logger().Info("queued job", "job", st.job.Id, "url", req.Url)
	return st.job, nil
}

// Get returns the current state of a job.
func (jm *JobManager) Get(id string) (api.Job, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	st, ok := jm.jobs[id]
	if !ok {
		return api.Job{}, ErrJobNotFound
	}
	job := st.job
	if st.runner != nil && job.Status == api.Running {
		job.Progress = toProgress(st.runner.Progress())
	}
	return job, nil
}

// Cancel stops a queued or running job.
func (jm *JobManager) Cancel(id string) (api.Job, error) {
	jm.mu.Lock()
	defer jm.mu.Unlock()
	st, ok := jm.jobs[id]
	if !ok {
		return api.Job{}, ErrJobNotFound
	}
	switch st.job.Status {
	case api.Queued:
		now := time.Now()
		st.job.Status = api.Cancelled
		st.job.FinishedAt = &now
	case api.Running:
		st.cancel()
	}
	return st.job, nil
}

// Image returns the encoded image of a completed job.
func (jm *JobManager) Image(id string) ([]byte, error) {
	jm.mu.Lock()
	st, ok := jm.jobs[id]
	var (
		status api.JobStatus
		file   string
	)
	if ok {
		status, file = st.job.Status, st.file
	}
	jm.mu.Unlock()

	if !ok {
		return nil, ErrJobNotFound
	}
	if status != api.Completed {
		return nil, fmt.Errorf("%w: job is %s", ErrImageNotReady, status)
	}
	if data, err := jm.images.Get(id); err == nil {
		return data, nil
	}
	if file != "" {
		return afero.ReadFile(jm.cfg.Fs, file)
	}
	return nil, ErrImageExpired
}

func (jm *JobManager) runJob(id string) {
	log := logging.Logger().With("job", id)
	ctx, cancel := context.WithCancel(jm.ctx)
	defer cancel()

	jm.mu.Lock()
	st, ok := jm.jobs[id]
	if !ok || st.job.Status != api.Queued {
		jm.mu.Unlock()
		return
	}
	now := time.Now()
	st.job.Status = api.Running
	st.job.StartedAt = &now
	st.cancel = cancel
	st.runner = jm.cfg.NewRunner(st.job.Request)
	req, runner := st.job.Request, st.runner
	jm.mu.Unlock()

	output := filepath.Join(jm.cfg.WorkDir, id+".jpg")
	log.Info("running job", "url", req.Url)
	res, err := runner.ProcessItem(ctx, batch.Item{URL: req.Url, Output: output, Zoom: req.Zoom})

	var file string
	if err == nil {
		file, err = jm.storeImage(id, output)
	} else {
		jm.cfg.Fs.Remove(output)
	}

	jm.mu.Lock()
	defer jm.mu.Unlock()
	finished := time.Now()
	st.job.FinishedAt = &finished
	st.job.Progress = toProgress(runner.Progress())
	st.runner = nil
	if res != nil && res.Width > 0 {
		level, width, height := res.Level, res.Width, res.Height
		st.job.Level, st.job.Width, st.job.Height = &level, &width, &height
	}

	switch {
	case ctx.Err() != nil:
		st.job.Status = api.Cancelled
		log.Info("job cancelled")
	case err != nil:
		msg := err.Error()
		st.job.Status = api.Failed
		st.job.Error = &msg
		log.Warn("job failed", "err", err)
	default:
		st.job.Status = api.Completed
		st.file = file
		log.Info("job completed", "missing", st.job.Progress.Missing)
	}
}

// storeImage moves output into the cache. The file is kept, and its name
// returned, when the image does not fit.
func (jm *JobManager) storeImage(id, output string) (string, error) {
	data, err := afero.ReadFile(jm.cfg.Fs, output)
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if err := jm.images.Set(id, data); err != nil {
		logging.Logger().Warn("image not cached, serving it from disk", "job", id, "size", len(data), "err", err)
		return output, nil
	}
	jm.cfg.Fs.Remove(output)
	return "", nil
}

func toProgress(s progress.Snapshot) api.Progress {
	return api.Progress{
		Total:      s.Total,
		Downloaded: s.Downloaded,
		Composited: s.Composited,
		Missing:    s.Missing,
	}
}
