package media

import (
	"fmt"
	"slices"
	"strings"
)

// Validate checks the declared type and size of a candidate upload. It does
// not look at the bytes: a mislabeled file passes here and fails at decode.
func Validate(f File) error {
	if !slices.Contains(AllowedTypes, strings.ToLower(strings.TrimSpace(f.ContentType))) {
		return &ValidationError{Reason: "unsupported file type (JPG, PNG, GIF, WebP only)"}
	}
	if f.Size() > MaxValidateBytes {
		return &ValidationError{Reason: fmt.Sprintf("file is too large (max %s, got %s)",
			FormatSize(MaxValidateBytes), FormatSize(f.Size()))}
	}
	return nil
}
