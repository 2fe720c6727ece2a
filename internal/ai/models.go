// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ai

import (
	"context"
	"errors"
	"sort"
	"strings"
)

// ModelLister is implemented by backends that can enumerate their models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

var (
	// ErrNoBackend is returned when no AI backend is configured.
	ErrNoBackend = errors.New("no AI backend configured")

	// ErrListUnsupported is returned by backends that cannot list models.
	ErrListUnsupported = errors.New("backend cannot list models")
)

// ListModels returns the sorted, de-duplicated model identifiers offered by
// c. Names of the form "models/x" are reported as "x".
func ListModels(ctx context.Context, c Client) ([]string, error) {
	if c == nil {
		return nil, ErrNoBackend
	}
	lister, ok := c.(ModelLister)
	if !ok {
		return nil, ErrListUnsupported
	}
	raw, err := lister.ListModels(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(raw))
	models := make([]string, 0, len(raw))
	for _, id := range raw {
		id = strings.TrimSpace(id)
		if i := strings.LastIndex(id, "/"); i >= 0 {
			id = id[i+1:]
		}
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		models = append(models, id)
	}
	sort.Strings(models)
	return models, nil
}
