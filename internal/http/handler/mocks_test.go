package handler_test

import (
	"context"

	"basegraph.co/distributor/internal/model"
	"basegraph.co/distributor/internal/service"
)

type mockJobService struct {
	accepted []model.JobRequest
	statusFn func(ctx context.Context, jobID string) (service.JobStatus, bool, error)
}

func (m *mockJobService) Accept(ctx context.Context, req model.JobRequest) model.JobResult {
	m.accepted = append(m.accepted, req)
	r := model.NewJobResult(0, 0, 0, "Job accepted with id "+req.JobID)
	r.JobID = req.JobID
	return r
}

func (m *mockJobService) Status(ctx context.Context, jobID string) (service.JobStatus, bool, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx, jobID)
	}
	return service.JobStatus{}, false, nil
}

type mockJobQueue struct {
	enqueueFn func(ctx context.Context, job model.JobRequest) error
	jobs      []model.JobRequest
}

func (m *mockJobQueue) Enqueue(ctx context.Context, job model.JobRequest) error {
	m.jobs = append(m.jobs, job)
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, job)
	}
	return nil
}

type mockPinger struct {
	err error
}

func (m *mockPinger) Ping(ctx context.Context) error {
	return m.err
}
