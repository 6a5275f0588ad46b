package media

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

const (
	MaxValidateBytes  int64 = 5 * 1024 * 1024
	MaxPayloadBytes   int64 = 2 * 1024 * 1024
	CompressThreshold int64 = 1024 * 1024
	TargetWidth             = 1080
	TargetHeight            = 1350
	DefaultQuality          = 70
	DefaultMaxPixels        = 50_000_000

	OutputMime     = "image/jpeg"
	DataURLPrefix  = "data:image/"
	fileNamePrefix = "banner_"
)

// AllowedTypes lists the declared MIME types accepted by Validate.
var AllowedTypes = []string{"image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp"}

var (
	ErrInvalidFile  = errors.New("invalid file")
	ErrInvalidImage = errors.New("invalid image")
	ErrEncode       = errors.New("encode failed")
	ErrTooLarge     = errors.New("image too large")
)

// File is one candidate upload as received from the client.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

func (f File) Size() int64 {
	return int64(len(f.Data))
}

type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidFile }

type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode image: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

func (e *DecodeError) Is(target error) bool { return target == ErrInvalidImage }

type EncodeError struct {
	Reason string
	Err    error
}

func (e *EncodeError) Error() string {
	if e.Err != nil {
		return "encode image: " + e.Reason + ": " + e.Err.Error()
	}
	return "encode image: " + e.Reason
}

func (e *EncodeError) Unwrap() error { return e.Err }

func (e *EncodeError) Is(target error) bool { return target == ErrEncode }

// SizeExceededError reports an encoded payload that is still over the
// persistence ceiling after compression.
type SizeExceededError struct {
	Size  int64
	Limit int64
}

func (e *SizeExceededError) Error() string {
	return fmt.Sprintf("image is too large after compression (max %s, got %s); recommended size is %dx%d (4:5)",
		FormatSize(e.Limit), FormatSize(e.Size), TargetWidth, TargetHeight)
}

func (e *SizeExceededError) Is(target error) bool { return target == ErrTooLarge }

// FormatSize renders a byte count the way the admin UI shows it.
func FormatSize(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}

// GenerateFileName builds the stored name for an upload:
// banner_<unix millis>_<6 random chars>.<original extension or jpg>.
func GenerateFileName(original string, now time.Time) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(original)), ".")
	if ext == "" {
		ext = "jpg"
	}
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("%s%d_%s.%s", fileNamePrefix, now.UnixMilli(), random, ext)
}
