package pipeline

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/maauso/whisper-timestamps/internal/media"
	"github.com/maauso/whisper-timestamps/internal/storage"
	"github.com/maauso/whisper-timestamps/internal/transcriber"
	"github.com/maauso/whisper-timestamps/internal/transcript"
)

// mockDownloader implements audio.Downloader for testing.
type mockDownloader struct {
	mock.Mock
}

func (m *mockDownloader) VideoID(ctx context.Context, url string) (string, error) {
	args := m.Called(ctx, url)
	return args.String(0), args.Error(1)
}

func (m *mockDownloader) Download(ctx context.Context, url, dir string) (string, error) {
	args := m.Called(ctx, url, dir)
	return args.String(0), args.Error(1)
}

// mockProber implements media.Prober for testing.
type mockProber struct {
	mock.Mock
}

func (m *mockProber) Probe(ctx context.Context, path string) (*media.Metadata, error) {
	args := m.Called(ctx, path)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*media.Metadata), args.Error(1)
}

// audioMeta is the probe report of a 12.5 second audio file whose comment
// tag holds url. An empty url leaves the tag out.
func audioMeta(url string) *media.Metadata {
	meta := &media.Metadata{
		Format:  media.Format{Duration: "12.5", Tags: map[string]string{}},
		Streams: []media.Stream{{Index: 0, CodecType: "audio", CodecName: "opus"}},
	}
	if url != "" {
		meta.Format.Tags["comment"] = url
	}
	return meta
}

// mockTranscriber implements transcriber.Transcriber for testing.
type mockTranscriber struct {
	mock.Mock
}

func (m *mockTranscriber) Transcribe(ctx context.Context, req transcriber.Request) (*transcript.Result, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*transcript.Result), args.Error(1)
}

// s3Recorder is a LocalStorage whose uploads are recorded instead of sent.
type s3Recorder struct {
	*storage.LocalStorage

	mu       sync.Mutex
	uploaded map[string]string
}

func (s *s3Recorder) UploadToS3(_ context.Context, key string, data io.Reader) (string, error) {
	body, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.uploaded == nil {
		s.uploaded = make(map[string]string)
	}
	s.uploaded[key] = string(body)
	return "https://bucket.s3.test/" + key, nil
}

// failingStorage is a LocalStorage whose Save fails for one name.
type failingStorage struct {
	*storage.LocalStorage
	failOn string
}

func (s *failingStorage) Save(ctx context.Context, name string, data io.Reader) (string, error) {
	if name == s.failOn {
		return "", errors.New("disk full")
	}
	return s.LocalStorage.Save(ctx, name, data)
}
