package backtest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"candlepull/internal/logger"
	"candlepull/internal/pkg/symbol"

	"github.com/google/uuid"
)

const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusDone    = "done"
	JobStatusFailed  = "failed"
)

// ResultSink 接收成功的拉取结果，通常是 sqlite 存储。
type ResultSink interface {
	SaveResult(ctx context.Context, res *FetchResult, source string) (int, error)
}

// FetchParams 描述一次通过 API 提交的拉取。
type FetchParams struct {
	Symbol   string `json:"symbol"`
	Interval string `json:"interval"`
	DaysBack int    `json:"days_back"`
}

// FetchJob 是任务的可序列化快照。
type FetchJob struct {
	ID           string       `json:"id"`
	Status       string       `json:"status"`
	Message      string       `json:"message,omitempty"`
	Params       FetchParams  `json:"params"`
	Batches      int          `json:"batches"`
	Collected    int          `json:"collected"`
	LastOpenTime int64        `json:"last_open_time,omitempty"`
	Stored       int          `json:"stored"`
	Result       *FetchResult `json:"result,omitempty"`
	StartedAt    time.Time    `json:"started_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (j *FetchJob) copy() FetchJob {
	out := *j
	if j.Result != nil {
		res := *j.Result
		res.Candles = nil
		out.Result = &res
	}
	return out
}

// JobServiceConfig 配置 JobService。
type JobServiceConfig struct {
	History         *History
	Sink            ResultSink
	MaxConcurrent   int
	DefaultDaysBack int
}

// JobService 在后台执行拉取任务，并通过信号量限制并发。
type JobService struct {
	history         *History
	sink            ResultSink
	defaultDaysBack int

	sem chan struct{}
	wg  sync.WaitGroup

	mu   sync.RWMutex
	jobs map[string]*FetchJob

	baseCtx context.Context
}

func NewJobService(cfg JobServiceConfig) (*JobService, error) {
	if cfg.History == nil {
		return nil, errors.New("history 不能为空")
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	days := cfg.DefaultDaysBack
	if days <= 0 {
		days = 730
	}
	return &JobService{
		history:         cfg.History,
		sink:            cfg.Sink,
		defaultDaysBack: days,
		sem:             make(chan struct{}, maxConcurrent),
		jobs:            make(map[string]*FetchJob),
		baseCtx:         context.Background(),
	}, nil
}

// SetContext 注入宿主 ctx，用于任务取消。
func (s *JobService) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

func (s *JobService) ctx() context.Context {
	if s.baseCtx == nil {
		return context.Background()
	}
	return s.baseCtx
}

// Submit 校验参数后异步执行；周期不支持时立即返回 ErrUnsupportedInterval。
func (s *JobService) Submit(params FetchParams) (FetchJob, error) {
	params.Symbol = symbol.ToBinance(params.Symbol)
	if params.Symbol == "" {
		return FetchJob{}, errors.New("symbol 不能为空")
	}
	tf, err := ParseTimeframe(params.Interval)
	if err != nil {
		return FetchJob{}, err
	}
	params.Interval = tf.Key
	if params.DaysBack < 0 {
		return FetchJob{}, fmt.Errorf("days_back 不能为负数: %d", params.DaysBack)
	}
	if params.DaysBack == 0 {
		params.DaysBack = s.defaultDaysBack
	}
	now := time.Now()
	job := &FetchJob{
		ID:        uuid.NewString(),
		Status:    JobStatusPending,
		Params:    params,
		StartedAt: now,
		UpdatedAt: now,
	}
	s.mu.Lock()
	s.jobs[job.ID] = job
	snapshot := job.copy()
	s.mu.Unlock()
	logger.Infof("[jobs] 任务 %s 提交：%s %s days=%d", job.ID, params.Symbol, params.Interval, params.DaysBack)

	s.wg.Add(1)
	go s.runJob(job.ID, params)
	return snapshot, nil
}

// Wait 等待所有已提交任务结束。
func (s *JobService) Wait() {
	s.wg.Wait()
}

func (s *JobService) runJob(jobID string, params FetchParams) {
	defer s.wg.Done()
	select {
	case s.sem <- struct{}{}:
	case <-s.ctx().Done():
		s.setJobStatus(jobID, JobStatusFailed, "服务已关闭")
		return
	}
	defer func() { <-s.sem }()

	s.setJobStatus(jobID, JobStatusRunning, "")
	ctx := s.ctx()
	res, err := s.history.FetchAll(ctx, params.Symbol, params.Interval, params.DaysBack,
		WithProgress(func(p BatchProgress) {
			s.updateJob(jobID, func(j *FetchJob) {
				j.Batches = p.Batch
				j.Collected = p.Collected
				j.LastOpenTime = p.LastOpenTime
				j.UpdatedAt = time.Now()
			})
		}))
	if err != nil {
		s.setJobStatus(jobID, JobStatusFailed, err.Error())
		logger.Warnf("[jobs] 任务 %s 失败: %v", jobID, err)
		return
	}

	stored := 0
	if s.sink != nil {
		stored, err = s.sink.SaveResult(ctx, res, s.history.SourceName())
		if err != nil {
			s.updateJob(jobID, func(j *FetchJob) {
				j.Status = JobStatusFailed
				j.Message = fmt.Sprintf("写入失败: %v", err)
				j.Result = res
				j.UpdatedAt = time.Now()
			})
			logger.Warnf("[jobs] 任务 %s 写入失败: %v", jobID, err)
			return
		}
	}
	s.updateJob(jobID, func(j *FetchJob) {
		j.Status = JobStatusDone
		j.Message = string(res.Stop)
		j.Collected = len(res.Candles)
		j.Stored = stored
		j.Result = res
		j.UpdatedAt = time.Now()
	})
	logger.Infof("[jobs] 任务 %s 完成：%d 根，stop=%s", jobID, len(res.Candles), res.Stop)
}

func (s *JobService) setJobStatus(jobID, status, message string) {
	s.updateJob(jobID, func(j *FetchJob) {
		j.Status = status
		j.Message = message
		j.UpdatedAt = time.Now()
	})
}

func (s *JobService) updateJob(id string, fn func(*FetchJob)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job, ok := s.jobs[id]; ok && fn != nil {
		fn(job)
	}
}

// JobSnapshot 返回任务副本。
func (s *JobService) JobSnapshot(id string) (FetchJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[strings.TrimSpace(id)]
	if !ok {
		return FetchJob{}, false
	}
	return job.copy(), true
}

// JobsSnapshot 按提交时间返回所有任务的拷贝。
func (s *JobService) JobsSnapshot() []FetchJob {
	s.mu.RLock()
	out := make([]FetchJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.copy())
	}
	s.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}
