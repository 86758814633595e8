// Package validation checks remote keys and bucket names before they reach a store.
package validation

import (
	"path/filepath"
	"strings"
	"unicode"

	"github.com/input-output-hk/catalyst-forge-libs/objfs/errors"
)

// MaxKeyLength is the longest key, in bytes, that a store accepts.
const MaxKeyLength = 1024

// ValidateObjectKey validates the key of a single object. The key must be
// non-empty and name a file, not a directory.
func ValidateObjectKey(key string) error {
	if key == "" {
		return errors.NewError("validateObjectKey", errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage("object key cannot be empty")
	}
	if strings.HasSuffix(key, "/") {
		return errors.NewError("validateObjectKey", errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage("object key cannot end with a separator")
	}
	return validateKey("validateObjectKey", key)
}

// ValidateDirKey validates a directory key. The empty key is the root.
func ValidateDirKey(key string) error {
	if key == "" {
		return nil
	}
	return validateKey("validateDirKey", key)
}

func validateKey(op, key string) error {
	if hasPathTraversal(key) {
		return errors.NewError(op, errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage("key cannot contain path traversal sequences")
	}

	if len(key) > MaxKeyLength {
		return errors.NewError(op, errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage("key cannot exceed 1024 bytes")
	}

	if hasControlCharacters(key) {
		return errors.NewError(op, errors.ErrInvalidObjectKey).
			WithKey(key).
			WithMessage("key cannot contain control characters")
	}

	return nil
}

// ValidateEntryName validates the name of one listed entry before it is
// used as a local path segment. The name must be a single segment other than
// "." and "..".
func ValidateEntryName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return errors.NewError("validateEntryName", errors.ErrInvalidObjectKey).
			WithKey(name).
			WithMessage("entry name must be a single path segment")
	}
	if hasControlCharacters(name) {
		return errors.NewError("validateEntryName", errors.ErrInvalidObjectKey).
			WithKey(name).
			WithMessage("entry name cannot contain control characters")
	}
	return nil
}

// WithinRoot reports whether the local path p lies strictly below root.
func WithinRoot(root, p string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(p))
	if err != nil || rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// ValidateBucketName validates that a bucket name is DNS-compliant.
func ValidateBucketName(bucket string) error {
	if len(bucket) < 3 || len(bucket) > 63 {
		return errors.NewError("validateBucketName", errors.ErrInvalidBucketName).
			WithBucket(bucket).
			WithMessage("bucket name must be between 3 and 63 characters long")
	}

	for _, char := range bucket {
		if !isValidBucketChar(char) {
			return errors.NewError("validateBucketName", errors.ErrInvalidBucketName).
				WithBucket(bucket).
				WithMessage("bucket name can only contain lowercase letters, numbers, dots, and hyphens")
		}
	}

	first, last := bucket[0], bucket[len(bucket)-1]
	if first == '-' || first == '.' || last == '-' || last == '.' {
		return errors.NewError("validateBucketName", errors.ErrInvalidBucketName).
			WithBucket(bucket).
			WithMessage("bucket name cannot start or end with a hyphen or dot")
	}

	if strings.Contains(bucket, "..") {
		return errors.NewError("validateBucketName", errors.ErrInvalidBucketName).
			WithBucket(bucket).
			WithMessage("bucket name cannot contain two adjacent periods")
	}

	return nil
}

func isValidBucketChar(char rune) bool {
	return (char >= '0' && char <= '9') || (char >= 'a' && char <= 'z') || char == '.' || char == '-'
}

// hasPathTraversal reports keys with a ".." segment.
func hasPathTraversal(key string) bool {
	for _, segment := range strings.Split(key, "/") {
		if segment == ".." {
			return true
		}
	}
	return false
}

func hasControlCharacters(key string) bool {
	for _, char := range key {
		if unicode.IsControl(char) {
			return true
		}
	}
	return false
}
