package gallery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/example/bannerdesk/internal/feed"
	"github.com/example/bannerdesk/internal/media"
	"github.com/example/bannerdesk/internal/store"
)

const DefaultConcurrency = 4

// Store is the persistence the gallery needs. *store.Store satisfies it.
type Store interface {
	MaxOrderKey(ctx context.Context) (int64, error)
	InsertImage(ctx context.Context, in store.ImageCreate) (*store.Image, error)
	ListImages(ctx context.Context) ([]store.Image, error)
	UpdateImageOrderKeys(ctx context.Context, updates []store.OrderUpdate) error
	DeleteImage(ctx context.Context, id string) error
	Tables(ctx context.Context) error
}

type Encoder interface {
	Encode(ctx context.Context, f media.File) (*media.Payload, error)
}

type FileError struct {
	FileName string `json:"fileName"`
	Message  string `json:"message"`
	Err      error  `json:"-"`
}

func (e FileError) Error() string { return e.FileName + ": " + e.Message }

func (e FileError) Unwrap() error { return e.Err }

// UploadResult reports a batch upload. Errors are in file-list order.
type UploadResult struct {
	Success int           `json:"success"`
	Errors  []FileError   `json:"errors"`
	Images  []store.Image `json:"-"`
}

type Service struct {
	store       Store
	encoder     Encoder
	feed        *feed.Broker[store.Image]
	logger      *slog.Logger
	concurrency int

	// mu serializes every mutation together with its notify.
	mu sync.Mutex
}

type Option func(*Service)

func WithConcurrency(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewService(st Store, enc Encoder, opts ...Option) *Service {
	s := &Service{
		store:       st,
		encoder:     enc,
		logger:      slog.Default(),
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.feed = feed.New(s.List, s.logger)
	return s
}

// Feed exposes the change broker so callers can stream or watch it.
func (s *Service) Feed() *feed.Broker[store.Image] {
	return s.feed
}

func (s *Service) Subscribe(fn func([]store.Image)) (unsubscribe func()) {
	return s.feed.Subscribe(fn)
}

// List returns the gallery in display order. A missing table reads as an
// empty gallery.
func (s *Service) List(ctx context.Context) ([]store.Image, error) {
	images, err := s.store.ListImages(ctx)
	if errors.Is(err, store.ErrMissingTable) {
		s.logger.Warn("image table missing, serving empty gallery", "err", err)
		return []store.Image{}, nil
	}
	return images, err
}

// Upload validates, encodes and inserts every file independently. Keys are
// assigned as max+i+1 in file-list order before any work starts, so the
// stored order matches submission order regardless of completion order. Only
// a failure to read the current maximum key fails the whole batch.
func (s *Service) Upload(ctx context.Context, files []media.File) (*UploadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	base, err := s.store.MaxOrderKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("read max order key: %w", err)
	}
	s.logger.Info("upload batch started", "files", len(files), "base_key", base)

	images := make([]*store.Image, len(files))
	failures := make([]error, len(files))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, f := range files {
		key := base + int64(i) + 1
		g.Go(func() error {
			img, err := s.uploadOne(ctx, f, key)
			if err != nil {
				failures[i] = err
				s.logger.Warn("upload failed", "file", f.Name, "size", media.FormatSize(f.Size()), "err", err)
				return nil
			}
			images[i] = img
			return nil
		})
	}
	_ = g.Wait()

	res := &UploadResult{Errors: []FileError{}, Images: []store.Image{}}
	for i, f := range files {
		if failures[i] != nil {
			res.Errors = append(res.Errors, FileError{FileName: f.Name, Message: failures[i].Error(), Err: failures[i]})
			continue
		}
		res.Success++
		res.Images = append(res.Images, *images[i])
	}
	s.logger.Info("upload batch finished", "success", res.Success, "failed", len(res.Errors))

	if res.Success > 0 {
		s.notify(ctx)
	}
	return res, nil
}

func (s *Service) uploadOne(ctx context.Context, f media.File, key int64) (*store.Image, error) {
	if err := media.Validate(f); err != nil {
		return nil, err
	}
	p, err := s.encoder.Encode(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.store.InsertImage(ctx, store.ImageCreate{
		Content:        p.DataURL,
		Alt:            fmt.Sprintf("배너 이미지 %d", key),
		OrderKey:       key,
		FileName:       p.FileName,
		SourceFileName: f.Name,
		SizeBytes:      p.Bytes,
	})
}

// Delete removes one image. Remaining keys are left as they are.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.DeleteImage(ctx, id); err != nil {
		return err
	}
	s.notify(ctx)
	return nil
}

// StorageStatus mirrors what an admin needs before uploading: whether the
// backing table is reachable.
type StorageStatus struct {
	IsReady       bool   `json:"isReady"`
	BucketExists  bool   `json:"bucketExists"`
	CanUpload     bool   `json:"canUpload"`
	CanDelete     bool   `json:"canDelete"`
	Error         string `json:"error,omitempty"`
	MaxFileSize   string `json:"maxFileSize"`
	MaxStoredSize string `json:"maxStoredSize"`
}

func (s *Service) StorageStatus(ctx context.Context) StorageStatus {
	status := StorageStatus{
		MaxFileSize:   media.FormatSize(media.MaxValidateBytes),
		MaxStoredSize: media.FormatSize(media.MaxPayloadBytes),
	}
	if err := s.store.Tables(ctx); err != nil {
		status.Error = err.Error()
		if errors.Is(err, store.ErrMissingTable) {
			status.Error = "image tables are missing; run migrations"
		}
		return status
	}
	status.IsReady = true
	status.BucketExists = true
	status.CanUpload = true
	status.CanDelete = true
	return status
}

func (s *Service) notify(ctx context.Context) {
	if err := s.feed.Notify(context.WithoutCancel(ctx)); err != nil {
		s.logger.Error("gallery notify failed", "err", err)
	}
}
