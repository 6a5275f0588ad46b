package media

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Payload is an encoded image ready for inline persistence.
type Payload struct {
	DataURL  string
	MimeType string
	Bytes    int64
	Width    int
	Height   int
	FileName string
}

// Encoder crops uploads to 4:5, re-encodes them as JPEG and produces a
// self-describing data URL.
type Encoder struct {
	threshold int64
	maxBytes  int64
	maxPixels int
	quality   int
	maxWidth  int
	now       func() time.Time
}

type Option func(*Encoder)

func WithMaxPixels(n int) Option {
	return func(e *Encoder) {
		if n > 0 {
			e.maxPixels = n
		}
	}
}

func WithQuality(q int) Option {
	return func(e *Encoder) {
		if q > 0 && q <= 100 {
			e.quality = q
		}
	}
}

func WithMaxBytes(n int64) Option {
	return func(e *Encoder) {
		if n > 0 {
			e.maxBytes = n
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Encoder) { e.now = now }
}

func NewEncoder(opts ...Option) *Encoder {
	e := &Encoder{
		threshold: CompressThreshold,
		maxBytes:  MaxPayloadBytes,
		maxPixels: DefaultMaxPixels,
		quality:   DefaultQuality,
		maxWidth:  TargetWidth,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Encoder) Encode(ctx context.Context, f File) (*Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(f.Data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > e.maxPixels {
		return nil, &DecodeError{Err: fmt.Errorf("unsupported dimensions %dx%d", cfg.Width, cfg.Height)}
	}

	src, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, &DecodeError{Err: err}
	}

	w, h := CoverSize(src.Bounds().Dx(), src.Bounds().Dy(), f.Size() > e.threshold, e.maxWidth)
	out := imaging.Fill(src, w, h, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: e.quality}); err != nil {
		return nil, &EncodeError{Reason: "jpeg", Err: err}
	}
	if buf.Len() == 0 {
		return nil, &EncodeError{Reason: "codec returned no data"}
	}
	if int64(buf.Len()) > e.maxBytes {
		return nil, &SizeExceededError{Size: int64(buf.Len()), Limit: e.maxBytes}
	}

	dataURL := "data:" + OutputMime + ";base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
	if !strings.HasPrefix(dataURL, DataURLPrefix) {
		return nil, &EncodeError{Reason: "result is not an image data URL"}
	}

	return &Payload{
		DataURL:  dataURL,
		MimeType: OutputMime,
		Bytes:    int64(buf.Len()),
		Width:    out.Bounds().Dx(),
		Height:   out.Bounds().Dy(),
		FileName: GenerateFileName(f.Name, e.now()),
	}, nil
}

// CoverSize returns the largest exact 4:5 box that fits a w×h source. When
// shrink is set the box is also clamped to maxWidth (and the matching height).
func CoverSize(w, h int, shrink bool, maxWidth int) (int, int) {
	unit := min(w/4, h/5)
	if shrink && maxWidth > 0 {
		unit = min(unit, maxWidth/4)
	}
	if unit < 1 {
		unit = 1
	}
	return 4 * unit, 5 * unit
}
