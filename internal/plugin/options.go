package plugin

import (
	"fmt"

	"github.com/agentic-research/kiln/internal/ingest"
)

func stringOption(opts map[string]any, key, def string) (string, error) {
	v, ok := opts[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: option %s must be a string, got %T", ingest.ErrConfig, key, v)
	}
	return s, nil
}

func requiredString(opts map[string]any, key string) (string, error) {
	s, err := stringOption(opts, key, "")
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("%w: option %s is required", ingest.ErrConfig, key)
	}
	return s, nil
}

func intOption(opts map[string]any, key string, def int) (int, error) {
	v, ok := opts[key]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	default:
		return 0, fmt.Errorf("%w: option %s must be a number, got %T", ingest.ErrConfig, key, v)
	}
}
