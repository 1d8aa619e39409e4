package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/amankumarsingh77/yt-transcriber/internal/jobs"
	"github.com/amankumarsingh77/yt-transcriber/internal/models"
	"github.com/amankumarsingh77/yt-transcriber/pkg/utils"
	"github.com/pkg/errors"
)

type memoryRepo struct {
	mu   sync.RWMutex
	jobs map[string]*models.Job
	now  func() time.Time
}

func NewMemoryRepo() jobs.Repository {
	return &memoryRepo{
		jobs: make(map[string]*models.Job),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (m *memoryRepo) Create(ctx context.Context, job *models.Job) (*models.Job, error) {
	if job == nil || job.JobID == "" {
		return nil, errors.New("memoryRepo.Create: missing job id")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.JobID]; ok {
		return nil, errors.Errorf("memoryRepo.Create: job %s already exists", job.JobID)
	}
	stored := job.Clone()
	m.jobs[stored.JobID] = stored
	return stored.Clone(), nil
}

func (m *memoryRepo) Get(ctx context.Context, jobID string) (*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	return job.Clone(), nil
}

func (m *memoryRepo) Update(ctx context.Context, jobID string, mutate jobs.Mutation) (*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.jobs[jobID]
	if !ok {
		return nil, jobs.ErrNotFound
	}
	next, changed, err := applyMutation(cur, mutate, m.now())
	if err != nil {
		return nil, err
	}
	if changed {
		m.jobs[jobID] = next
	}
	return next.Clone(), nil
}

func (m *memoryRepo) List(ctx context.Context, pq *utils.Pagination) (*models.JobList, error) {
	m.mu.RLock()
	all := make([]*models.Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		all = append(all, j.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, k int) bool {
		if all[i].CreatedAt.Equal(all[k].CreatedAt) {
			return all[i].JobID > all[k].JobID
		}
		return all[i].CreatedAt.After(all[k].CreatedAt)
	})

	total := len(all)
	start := pq.GetOffset()
	if start > total {
		start = total
	}
	end := start + pq.GetLimit()
	if end > total {
		end = total
	}
	return &models.JobList{
		TotalCount: total,
		TotalPages: utils.GetTotalPages(total, pq.GetSize()),
		Page:       pq.GetPage(),
		Size:       pq.GetSize(),
		HasMore:    utils.GetHasMore(pq.GetPage(), total, pq.GetSize()),
		Jobs:       all[start:end],
	}, nil
}

func (m *memoryRepo) ListUnfinished(ctx context.Context) ([]*models.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Job, 0)
	for _, j := range m.jobs {
		if !j.Stage.IsTerminal() {
			out = append(out, j.Clone())
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].JobID < out[k].JobID })
	return out, nil
}

func (m *memoryRepo) DeleteFinishedBefore(ctx context.Context, before time.Time) ([]*models.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Job, 0)
	for id, j := range m.jobs {
		if j.Stage.IsTerminal() && j.UpdatedAt.Before(before) {
			out = append(out, j)
			delete(m.jobs, id)
		}
	}
	return out, nil
}
