// Package pipeline turns an audio source into timestamped transcript
// artifacts: acquisition, transcription, classification, rendering and
// persistence.
package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/maauso/whisper-timestamps/internal/audio"
	"github.com/maauso/whisper-timestamps/internal/media"
	"github.com/maauso/whisper-timestamps/internal/storage"
	"github.com/maauso/whisper-timestamps/internal/tagger"
	"github.com/maauso/whisper-timestamps/internal/transcriber"
	"github.com/maauso/whisper-timestamps/internal/transcript"
)

// Artifact directories, relative to the storage root.
const (
	AudioDir     = "audios"
	JSONDir      = "jsons"
	TimestampDir = "timestamps"
	lockDir      = ".locks"

	// audioLockDir holds the per-video locks under lockDir.
	audioLockDir = "audio"
)

// EnglishSuffix is appended to the base name of translated runs.
const EnglishSuffix = "[English]"

// Artifact kinds.
const (
	KindTranscription = "transcription"
	KindTags          = "tags"
)

// Static errors for pipeline operations.
var (
	// ErrInvalidOptions is returned when Options fail validation.
	ErrInvalidOptions = errors.New("pipeline: invalid options")
	// ErrUnsupportedExtension is returned for audio files the transcriber
	// does not accept.
	ErrUnsupportedExtension = errors.New("pipeline: unsupported file extension")
	// ErrInputNotFound is returned when a local input does not exist.
	ErrInputNotFound = errors.New("pipeline: input file not found")
	// ErrBusy is returned when another run holds the lock on the same
	// artifacts.
	ErrBusy = errors.New("pipeline: artifacts are being written by another run")
	// ErrUnknownGroup is returned when a group name is not all, speech or no_speech.
	ErrUnknownGroup = errors.New("pipeline: unknown group")
	// ErrNoAudio is returned when the probed input has no audio stream.
	ErrNoAudio = errors.New("pipeline: input has no audio stream")
)

// Artifact is one file written by a run.
type Artifact struct {
	Kind  string `json:"kind"`
	Group string `json:"group"`
	Name  string `json:"name"`
	Path  string `json:"path"`
	URL   string `json:"url,omitempty"`
}

// Output summarises a completed run.
type Output struct {
	BaseName  string     `json:"base_name"`
	SourceURL string     `json:"source_url,omitempty"`
	AudioPath string     `json:"audio_path"`
	Segments  int        `json:"segments"`
	Speech    int        `json:"speech"`
	NoSpeech  int        `json:"no_speech"`
	Duration  float64    `json:"duration_seconds,omitempty"`
	Reused    bool       `json:"reused"`
	Artifacts []Artifact `json:"artifacts"`
}

// Service runs the transcription pipeline.
type Service struct {
	downloader  audio.Downloader
	prober      media.Prober
	transcriber transcriber.Transcriber
	storage     storage.Storage
	resolver    ConflictResolver
	logger      *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger for the service.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = l
	}
}

// WithResolver sets the default conflict resolver. Without one, existing
// artifacts are reused.
func WithResolver(r ConflictResolver) ServiceOption {
	return func(s *Service) {
		s.resolver = r
	}
}

// NewService creates a new pipeline Service.
func NewService(
	downloader audio.Downloader,
	prober media.Prober,
	tr transcriber.Transcriber,
	store storage.Storage,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		downloader:  downloader,
		prober:      prober,
		transcriber: tr,
		storage:     store,
		resolver:    StaticResolver{Decision: Reuse},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// source is the acquired audio and where it came from.
type source struct {
	audioPath string
	sourceURL string
	duration  float64
	// release drops the acquisition lock of a remote input.
	release func()
}

// Run executes the pipeline for one input.
func (s *Service) Run(ctx context.Context, opts Options) (*Output, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	resolver := opts.Resolver
	if resolver == nil {
		resolver = s.resolver
	}

	logger := s.logger.With(slog.String("input", opts.Input))
	start := time.Now()

	src, err := s.acquire(ctx, opts.Input, resolver, logger)
	if err != nil {
		return nil, err
	}
	if src.release != nil {
		defer src.release()
	}

	if !media.SupportedExtension(src.audioPath) {
		return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedExtension,
			filepath.Ext(src.audioPath), strings.Join(media.SupportedExtensions(), " "))
	}

	if err := s.inspect(ctx, &src, logger); err != nil {
		return nil, err
	}

	base := baseName(src.audioPath, opts.Translate)
	logger = logger.With(slog.String("base", base))

	unlock, err := s.lock(base)
	if err != nil {
		return nil, err
	}
	defer unlock()

	result, reused, err := s.transcription(ctx, opts, src.audioPath, base, resolver, logger)
	if err != nil {
		return nil, err
	}

	rendering := Render(result, src.sourceURL)

	artifacts, err := s.write(ctx, base, rendering, !reused, logger)
	if err != nil {
		return nil, err
	}

	if opts.PushToS3 {
		if err := s.push(ctx, artifacts, logger); err != nil {
			return nil, err
		}
	}

	logger.Info("pipeline completed",
		slog.Int("segments", len(result.Segments)),
		slog.Int("no_speech", len(rendering.NoSpeech.Result.Segments)),
		slog.Int("artifacts", len(artifacts)),
		slog.Bool("reused", reused),
		slog.Float64("duration_seconds", src.duration),
		slog.Duration("elapsed", time.Since(start)),
	)

	return &Output{
		BaseName:  base,
		SourceURL: src.sourceURL,
		AudioPath: src.audioPath,
		Segments:  len(result.Segments),
		Speech:    len(rendering.Speech.Result.Segments),
		NoSpeech:  len(rendering.NoSpeech.Result.Segments),
		Duration:  src.duration,
		Reused:    reused,
		Artifacts: artifacts,
	}, nil
}

// acquire resolves the input to a local audio file and its source URL.
func (s *Service) acquire(ctx context.Context, input string, resolver ConflictResolver, logger *slog.Logger) (source, error) {
	if audio.IsRemote(input) {
		return s.acquireRemote(ctx, input, resolver, logger)
	}

	if _, err := os.Stat(input); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return source{}, fmt.Errorf("%w: %s", ErrInputNotFound, input)
		}
		return source{}, fmt.Errorf("stat input: %w", err)
	}

	return source{audioPath: input}, nil
}

func (s *Service) acquireRemote(ctx context.Context, url string, resolver ConflictResolver, logger *slog.Logger) (source, error) {
	if err := tagger.CheckSourceURL(url); err != nil {
		logger.Warn("source URL looks malformed", slog.String("error", err.Error()))
	}

	id, err := s.downloader.VideoID(ctx, url)
	if err != nil {
		return source{}, fmt.Errorf("resolve video id: %w", err)
	}

	// Held for the whole run so a concurrent run on the same video can
	// neither download next to this one nor replace the file it reads.
	release, err := s.lock(path.Join(audioLockDir, id))
	if err != nil {
		return source{}, err
	}
	src, err := s.fetch(ctx, url, id, resolver, logger)
	if err != nil {
		release()
		return source{}, err
	}
	src.release = release
	return src, nil
}

func (s *Service) fetch(ctx context.Context, url, id string, resolver ConflictResolver, logger *slog.Logger) (source, error) {
	existing, err := s.storage.Find(ctx, path.Join(AudioDir, storage.EscapeGlob(id)+".*"))
	if err != nil {
		return source{}, fmt.Errorf("look for downloaded audio: %w", err)
	}
	existing = withoutPartials(existing)

	if len(existing) > 0 {
		local := s.localPath(existing[0])
		decision, err := resolver.Resolve(ctx, local)
		if err != nil {
			return source{}, fmt.Errorf("resolve audio conflict: %w", err)
		}
		if decision == Reuse {
			logger.Info("reusing downloaded audio", slog.String("path", local))
			return source{audioPath: local, sourceURL: url}, nil
		}
	}

	dir := s.localPath(AudioDir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return source{}, fmt.Errorf("create audio directory: %w", err)
	}

	logger.Info("downloading audio", slog.String("video_id", id))
	audioPath, err := s.downloader.Download(ctx, url, dir)
	if err != nil {
		return source{}, fmt.Errorf("download audio: %w", err)
	}

	return source{audioPath: audioPath, sourceURL: url}, nil
}

// inspect probes the acquired audio. A file without an audio stream is
// rejected; any other probe failure only costs the duration and, for local
// inputs, the embedded source URL.
func (s *Service) inspect(ctx context.Context, src *source, logger *slog.Logger) error {
	meta, err := s.prober.Probe(ctx, src.audioPath)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("failed to probe audio",
			slog.String("path", src.audioPath),
			slog.String("error", err.Error()),
		)
		if src.sourceURL == "" {
			logger.Warn("no source URL; timestamps will link to local anchors")
		}
		return nil
	}

	if !meta.HasAudio() {
		return fmt.Errorf("%w: %s", ErrNoAudio, src.audioPath)
	}

	if d, err := meta.Seconds(); err == nil {
		src.duration = d
	} else {
		logger.Debug("no duration reported", slog.String("error", err.Error()))
	}

	// Local files only link back to a page when yt-dlp embedded one.
	if src.sourceURL == "" {
		url, err := meta.SourceURL()
		if err != nil {
			logger.Warn("no source URL embedded; timestamps will link to local anchors")
			return nil
		}
		if err := tagger.CheckSourceURL(url); err != nil {
			logger.Warn("embedded source URL looks malformed",
				slog.String("source_url", url),
				slog.String("error", err.Error()),
			)
		}
		src.sourceURL = url
	}
	return nil
}

// transcription loads a saved transcription or produces a new one. The
// second return value reports whether the saved one was reused.
func (s *Service) transcription(
	ctx context.Context,
	opts Options,
	audioPath, base string,
	resolver ConflictResolver,
	logger *slog.Logger,
) (*transcript.Result, bool, error) {
	name := artifactName(JSONDir, base, "", ".json")

	found, err := s.storage.Find(ctx, storage.EscapeGlob(name))
	if err != nil {
		return nil, false, fmt.Errorf("look for saved transcription: %w", err)
	}

	if len(found) > 0 {
		decision, err := resolver.Resolve(ctx, s.localPath(name))
		if err != nil {
			return nil, false, fmt.Errorf("resolve transcription conflict: %w", err)
		}
		if decision == Reuse {
			result, err := s.load(ctx, name)
			if err != nil {
				return nil, false, err
			}
			logger.Info("reusing saved transcription", slog.String("name", name))
			return result, true, nil
		}
	}

	result, err := s.transcriber.Transcribe(ctx, transcriber.Request{
		AudioPath: audioPath,
		Prompt:    opts.Prompt,
		Language:  opts.Language,
		Translate: opts.Translate,
	})
	if err != nil {
		return nil, false, fmt.Errorf("transcribe: %w", err)
	}

	return result, false, nil
}

func (s *Service) load(ctx context.Context, name string) (*transcript.Result, error) {
	rc, err := s.storage.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load saved transcription: %w", err)
	}
	defer func() { _ = rc.Close() }()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(rc); err != nil {
		return nil, fmt.Errorf("read saved transcription: %w", err)
	}

	result, err := transcript.Parse(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return result, nil
}

// pending is an artifact whose bytes are ready but not yet written.
type pending struct {
	artifact Artifact
	data     []byte
}

func (s *Service) prepare(base string, g Group) ([]pending, error) {
	data, err := encodeJSON(g.Result)
	if err != nil {
		return nil, fmt.Errorf("encode %s transcription: %w", g.Name, err)
	}
	return []pending{
		{
			artifact: Artifact{Kind: KindTranscription, Group: g.Name, Name: artifactName(JSONDir, base, g.Suffix(), ".json")},
			data:     data,
		},
		{
			artifact: Artifact{Kind: KindTags, Group: g.Name, Name: artifactName(TimestampDir, base, g.Suffix(), ".md")},
			data:     g.Markdown,
		},
	}, nil
}

// write persists the rendering. Every byte is prepared before the first
// file is touched so an encoding failure leaves storage unchanged, and a
// failed save removes whatever this call already wrote. The full
// transcription is only rewritten when it was freshly produced.
func (s *Service) write(ctx context.Context, base string, r *Rendering, fresh bool, logger *slog.Logger) ([]Artifact, error) {
	var batches [][]pending

	if fresh {
		p, err := s.prepare(base, r.All)
		if err != nil {
			return nil, err
		}
		batches = append(batches, p)
	}

	if r.Split() {
		for _, g := range []Group{r.Speech, r.NoSpeech} {
			p, err := s.prepare(base, g)
			if err != nil {
				return nil, err
			}
			batches = append(batches, p)
		}
	}

	// Batches are independent; each writes its own json and md.
	g, gctx := errgroup.WithContext(ctx)
	for _, batch := range batches {
		g.Go(func() error {
			for i := range batch {
				p, err := s.storage.Save(gctx, batch[i].artifact.Name, bytes.NewReader(batch[i].data))
				if err != nil {
					return fmt.Errorf("save %s: %w", batch[i].artifact.Name, err)
				}
				batch[i].artifact.Path = p
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		s.rollback(ctx, batches, logger)
		return nil, err
	}

	var artifacts []Artifact
	for _, batch := range batches {
		for _, p := range batch {
			artifacts = append(artifacts, p.artifact)
		}
	}
	return artifacts, nil
}

// rollback removes the artifacts of a failed write that were saved.
func (s *Service) rollback(ctx context.Context, batches [][]pending, logger *slog.Logger) {
	var written []string
	for _, batch := range batches {
		for _, p := range batch {
			if p.artifact.Path != "" {
				written = append(written, p.artifact.Name)
			}
		}
	}
	if len(written) == 0 {
		return
	}

	// The run context may be what failed the write.
	if err := s.storage.Remove(context.WithoutCancel(ctx), written); err != nil {
		logger.Error("failed to remove partial artifacts",
			slog.Any("names", written),
			slog.String("error", err.Error()),
		)
		return
	}
	logger.Warn("removed partial artifacts", slog.Any("names", written))
}

// push uploads artifacts to S3, keyed by their storage name.
func (s *Service) push(ctx context.Context, artifacts []Artifact, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i := range artifacts {
		g.Go(func() error {
			a := &artifacts[i]
			rc, err := s.storage.Load(gctx, a.Name)
			if err != nil {
				return fmt.Errorf("open %s for upload: %w", a.Name, err)
			}
			defer func() { _ = rc.Close() }()

			url, err := s.storage.UploadToS3(gctx, a.Name, rc)
			if err != nil {
				return fmt.Errorf("upload %s: %w", a.Name, err)
			}
			a.URL = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("artifacts uploaded", slog.Int("count", len(artifacts)))
	return nil
}

// lock takes the advisory lock called name under the lock directory. Runs
// lock each base name, and remote runs also lock the video ID while they
// hold its audio.
func (s *Service) lock(name string) (func(), error) {
	file := s.localPath(path.Join(lockDir, name+".lock"))
	if err := os.MkdirAll(filepath.Dir(file), 0750); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	fl := flock.New(file)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrBusy, name)
	}

	return func() {
		if err := fl.Unlock(); err != nil {
			s.logger.Warn("failed to release lock",
				slog.String("lock", name),
				slog.String("error", err.Error()),
			)
		}
	}, nil
}

func (s *Service) localPath(name string) string {
	return filepath.Join(s.storage.Root(), filepath.FromSlash(name))
}

func baseName(audioPath string, translate bool) string {
	file := filepath.Base(audioPath)
	base := strings.TrimSuffix(file, filepath.Ext(file))
	if translate {
		base += EnglishSuffix
	}
	return base
}

func artifactName(dir, base, suffix, ext string) string {
	return path.Join(dir, base+suffix+ext)
}

// TagsName returns the storage name of the tags rendered for every segment
// of the run with the given base name.
func TagsName(base string) string {
	return artifactName(TimestampDir, base, "", ".md")
}

// withoutPartials drops yt-dlp's in-progress download fragments.
func withoutPartials(names []string) []string {
	out := names[:0]
	for _, n := range names {
		if strings.HasSuffix(n, ".part") || strings.HasSuffix(n, ".ytdl") {
			continue
		}
		out = append(out, n)
	}
	return out
}
