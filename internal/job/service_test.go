package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/whisper-timestamps/internal/pipeline"
)

type mockRunner struct {
	mock.Mock
}

func (m *mockRunner) Run(ctx context.Context, opts pipeline.Options) (*pipeline.Output, error) {
	args := m.Called(ctx, opts)
	if out := args.Get(0); out != nil {
		return out.(*pipeline.Output), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestNewService(t *testing.T) {
	repo := NewMemoryRepository()
	runner := &mockRunner{}

	// With nil logger
	svc := NewService(repo, runner, nil)
	require.NotNil(t, svc)
	assert.Equal(t, repo, svc.repo)
	assert.NotNil(t, svc.logger)

	// With custom logger
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	svc2 := NewService(repo, runner, logger)
	assert.Equal(t, logger, svc2.logger)
}

func TestService_CreateJob(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, &mockRunner{}, nil)
	ctx := context.Background()

	req := Request{
		Input:     "https://www.youtube.com/watch?v=abc",
		Prompt:    "Tech talk.",
		Language:  "es",
		Translate: true,
		PushToS3:  true,
	}

	created, err := svc.CreateJob(ctx, req)
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, StatusInQueue, created.Status)
	assert.Equal(t, req, created.Request)

	saved, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, saved.ID)
}

func TestService_CreateJob_InvalidRequest(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, &mockRunner{}, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
	}{
		{"missing input", Request{}},
		{"bad language", Request{Input: "talk.mp3", Language: "english"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateJob(ctx, tt.req)
			assert.ErrorIs(t, err, pipeline.ErrInvalidOptions)
		})
	}

	jobs, _ := repo.List(ctx)
	assert.Empty(t, jobs, "invalid requests must not be persisted")
}

func TestService_GetJob(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, &mockRunner{}, nil)
	ctx := context.Background()

	created, err := svc.CreateJob(ctx, Request{Input: "talk.mp3"})
	require.NoError(t, err)

	found, err := svc.GetJob(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	_, err = svc.GetJob(ctx, "nonexistent")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestService_ListJobs(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, &mockRunner{}, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.CreateJob(ctx, Request{Input: fmt.Sprintf("talk-%d.mp3", i)})
		require.NoError(t, err)
	}

	jobs, err := svc.ListJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}

func TestService_ProcessExistingJob_Success(t *testing.T) {
	repo := NewMemoryRepository()
	runner := &mockRunner{}
	svc := NewService(repo, runner, nil)
	ctx := context.Background()

	created, err := svc.CreateJob(ctx, Request{Input: "talk.mp3", Language: "en", PushToS3: true})
	require.NoError(t, err)

	out := &pipeline.Output{
		BaseName:  "talk",
		SourceURL: "https://www.youtube.com/watch?v=abc",
		AudioPath: "/work/talk.mp3",
		Segments:  3,
		Speech:    2,
		NoSpeech:  1,
		Artifacts: []pipeline.Artifact{
			{Kind: pipeline.KindTranscription, Group: pipeline.GroupAll, Name: "jsons/talk.json", Path: "/work/jsons/talk.json", URL: "https://b.s3.eu-west-1.amazonaws.com/jsons/talk.json"},
			{Kind: pipeline.KindTags, Group: pipeline.GroupAll, Name: "timestamps/talk.md", Path: "/work/timestamps/talk.md"},
		},
	}
	runner.On("Run", mock.Anything, mock.MatchedBy(func(opts pipeline.Options) bool {
		return opts.Input == "talk.mp3" && opts.Language == "en" && opts.PushToS3 &&
			opts.Resolver == pipeline.StaticResolver{Decision: pipeline.Reuse}
	})).Return(out, nil).Once()

	processed, err := svc.ProcessExistingJob(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, processed.Status)

	saved, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, saved.Status)
	assert.Equal(t, "talk", saved.Result.BaseName)
	assert.Equal(t, 3, saved.Result.Segments)
	assert.Equal(t, 2, saved.Result.Speech)
	assert.Equal(t, 1, saved.Result.NoSpeech)
	require.Len(t, saved.Result.Artifacts, 2)
	assert.Equal(t, "https://b.s3.eu-west-1.amazonaws.com/jsons/talk.json", saved.Result.Artifacts[0].URL)
	assert.False(t, saved.StartedAt.IsZero())
	assert.False(t, saved.CompletedAt.IsZero())

	runner.AssertExpectations(t)
}

func TestService_ProcessExistingJob_OverwriteUsesOverwriteResolver(t *testing.T) {
	repo := NewMemoryRepository()
	runner := &mockRunner{}
	svc := NewService(repo, runner, nil)
	ctx := context.Background()

	created, err := svc.CreateJob(ctx, Request{Input: "talk.mp3", Overwrite: true})
	require.NoError(t, err)

	runner.On("Run", mock.Anything, mock.MatchedBy(func(opts pipeline.Options) bool {
		return opts.Resolver == pipeline.StaticResolver{Decision: pipeline.Overwrite}
	})).Return(&pipeline.Output{BaseName: "talk"}, nil).Once()

	_, err = svc.ProcessExistingJob(ctx, created.ID)
	require.NoError(t, err)
	runner.AssertExpectations(t)
}

func TestService_ProcessExistingJob_Failure(t *testing.T) {
	repo := NewMemoryRepository()
	runner := &mockRunner{}
	svc := NewService(repo, runner, nil)
	ctx := context.Background()

	created, err := svc.CreateJob(ctx, Request{Input: "talk.flac"})
	require.NoError(t, err)

	runErr := fmt.Errorf("%w: .flac", pipeline.ErrUnsupportedExtension)
	runner.On("Run", mock.Anything, mock.Anything).Return(nil, runErr).Once()

	processed, err := svc.ProcessExistingJob(ctx, created.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrUnsupportedExtension)
	require.NotNil(t, processed)
	assert.Equal(t, StatusFailed, processed.Status)

	saved, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, saved.Status)
	assert.Contains(t, saved.Error, ".flac")
	assert.Empty(t, saved.Result.Artifacts)
}

func TestService_ProcessExistingJob_DeadlineTimesOut(t *testing.T) {
	repo := NewMemoryRepository()
	runner := &mockRunner{}
	svc := NewService(repo, runner, nil)
	ctx := context.Background()

	created, err := svc.CreateJob(ctx, Request{Input: "talk.mp3"})
	require.NoError(t, err)

	runner.On("Run", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("transcribe: %w", context.DeadlineExceeded)).Once()

	processed, err := svc.ProcessExistingJob(ctx, created.ID)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, processed)
	assert.Equal(t, StatusTimedOut, processed.Status)

	saved, err := repo.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusTimedOut, saved.Status)
	assert.Equal(t, "transcribe: context deadline exceeded", saved.Error)
	assert.False(t, saved.CompletedAt.IsZero())
}

func TestService_ProcessExistingJob_NotFound(t *testing.T) {
	svc := NewService(NewMemoryRepository(), &mockRunner{}, nil)

	_, err := svc.ProcessExistingJob(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestService_ProcessExistingJob_AlreadyFinished(t *testing.T) {
	repo := NewMemoryRepository()
	runner := &mockRunner{}
	svc := NewService(repo, runner, nil)
	ctx := context.Background()

	created, err := svc.CreateJob(ctx, Request{Input: "talk.mp3"})
	require.NoError(t, err)
	runner.On("Run", mock.Anything, mock.Anything).Return(&pipeline.Output{BaseName: "talk"}, nil).Once()

	_, err = svc.ProcessExistingJob(ctx, created.ID)
	require.NoError(t, err)

	_, err = svc.ProcessExistingJob(ctx, created.ID)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	runner.AssertNumberOfCalls(t, "Run", 1)
}

type failingRepository struct {
	*MemoryRepository
}

func (f failingRepository) Save(context.Context, *Job) error {
	return errors.New("disk full")
}

func TestService_CreateJob_SaveError(t *testing.T) {
	svc := NewService(failingRepository{NewMemoryRepository()}, &mockRunner{}, nil)

	_, err := svc.CreateJob(context.Background(), Request{Input: "talk.mp3"})
	assert.EqualError(t, err, "disk full")
}

func TestResultFrom(t *testing.T) {
	out := &pipeline.Output{
		BaseName: "talk",
		Duration: 93.5,
		Reused:   true,
		Artifacts: []pipeline.Artifact{
			{Kind: pipeline.KindTags, Group: pipeline.GroupSpeech, Name: "timestamps/talk-speech.md", Path: "/w/timestamps/talk-speech.md"},
		},
	}

	result := resultFrom(out)

	assert.Equal(t, "talk", result.BaseName)
	assert.True(t, result.Reused)
	assert.Equal(t, 93.5, result.Duration)
	assert.Equal(t, []Artifact{
		{Kind: "tags", Group: "speech", Name: "timestamps/talk-speech.md", Path: "/w/timestamps/talk-speech.md"},
	}, result.Artifacts)
}

func TestService_DeleteJob(t *testing.T) {
	t.Run("queued job is cancelled and removed", func(t *testing.T) {
		repo := NewMemoryRepository()
		runner := &mockRunner{}
		svc := NewService(repo, runner, nil)
		ctx := context.Background()

		created, err := svc.CreateJob(ctx, Request{Input: "talk.mp3"})
		require.NoError(t, err)

		deleted, err := svc.DeleteJob(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, deleted.Status)

		_, err = repo.FindByID(ctx, created.ID)
		assert.ErrorIs(t, err, ErrJobNotFound)

		// A worker picking the job up afterwards finds nothing to run.
		_, err = svc.ProcessExistingJob(ctx, created.ID)
		assert.ErrorIs(t, err, ErrJobNotFound)
		runner.AssertNotCalled(t, "Run", mock.Anything, mock.Anything)
	})

	t.Run("finished job keeps its status", func(t *testing.T) {
		repo := NewMemoryRepository()
		runner := &mockRunner{}
		svc := NewService(repo, runner, nil)
		ctx := context.Background()

		created, err := svc.CreateJob(ctx, Request{Input: "talk.mp3"})
		require.NoError(t, err)
		runner.On("Run", mock.Anything, mock.Anything).Return(&pipeline.Output{BaseName: "talk"}, nil).Once()
		_, err = svc.ProcessExistingJob(ctx, created.ID)
		require.NoError(t, err)

		deleted, err := svc.DeleteJob(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, deleted.Status)

		jobs, err := svc.ListJobs(ctx)
		require.NoError(t, err)
		assert.Empty(t, jobs)
	})

	t.Run("unknown job", func(t *testing.T) {
		svc := NewService(NewMemoryRepository(), &mockRunner{}, nil)

		_, err := svc.DeleteJob(context.Background(), "job-missing")
		assert.ErrorIs(t, err, ErrJobNotFound)
	})
}

func TestService_DeleteJob_StopsRunningPipeline(t *testing.T) {
	repo := NewMemoryRepository()
	runner := &mockRunner{}
	svc := NewService(repo, runner, nil)
	ctx := context.Background()

	created, err := svc.CreateJob(ctx, Request{Input: "talk.mp3"})
	require.NoError(t, err)

	started := make(chan struct{})
	runner.On("Run", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			runCtx := args.Get(0).(context.Context)
			close(started)
			<-runCtx.Done()
		}).
		Return(nil, fmt.Errorf("transcribe: %w", context.Canceled)).Once()

	type outcome struct {
		job *Job
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		j, err := svc.ProcessExistingJob(ctx, created.ID)
		done <- outcome{j, err}
	}()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline did not start")
	}

	deleted, err := svc.DeleteJob(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, deleted.Status)

	select {
	case got := <-done:
		require.ErrorIs(t, got.err, context.Canceled)
		require.NotNil(t, got.job)
		assert.Equal(t, StatusCancelled, got.job.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("pipeline run was not cancelled")
	}

	_, err = repo.FindByID(ctx, created.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}
