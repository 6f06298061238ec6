package repository

import "errors"

var (
	// ErrJobNotFound is returned when a media job cannot be found.
	ErrJobNotFound = errors.New("media job not found")

	// ErrDuplicateJob is returned when attempting to create a job that already exists.
	ErrDuplicateJob = errors.New("media job already exists")

	// ErrObjectNotFound is returned when an object storage key does not exist.
	ErrObjectNotFound = errors.New("object not found")

	// ErrBucketNotFound is returned when the configured bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")
)
