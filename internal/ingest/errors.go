package ingest

import (
	"errors"
	"fmt"
)

var (
	// ErrConfig marks pipeline configuration errors. Always fatal.
	ErrConfig = errors.New("invalid pipeline configuration")
	// ErrCollision marks two entries resolving to the same namespaced key.
	ErrCollision = errors.New("key collision")
)

// ContentError reports malformed content in an entry a plugin claimed.
// Plugin is filled in by the engine when the plugin left it empty.
type ContentError struct {
	Key    string
	Plugin string
	Err    error
}

func (e *ContentError) Error() string {
	if e.Plugin == "" {
		return fmt.Sprintf("%s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Key, e.Plugin, e.Err)
}

func (e *ContentError) Unwrap() error { return e.Err }

// CollisionError names one key produced more than once.
type CollisionError struct {
	Key   string
	Count int
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("%s produced %d times", e.Key, e.Count)
}

func (e *CollisionError) Unwrap() error { return ErrCollision }
