package model

import (
	"context"
	"image"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/Brownie44l1/caulicare-api/internal/config"
	"github.com/Brownie44l1/caulicare-api/internal/preprocess"
)

// Registry stores the loaded models. It is built once by Load and never
// written afterwards, so concurrent reads need no locking.
type Registry struct {
	entries []*Entry
	byName  map[string]*Entry
}

// Load verifies and opens every configured model in order. Any failure
// closes the models opened so far and is returned; there is no partial registry.
func Load(cfg *config.Config, loader Loader) (*Registry, error) {
	r := &Registry{
		entries: make([]*Entry, 0, len(cfg.Models)),
		byName:  make(map[string]*Entry, len(cfg.Models)),
	}

	for _, mc := range cfg.Models {
		entry, err := loadEntry(mc, cfg.ModelsDir, loader)
		if err != nil {
			r.Close()
			return nil, err
		}

		r.entries = append(r.entries, entry)
		r.byName[entry.Nickname] = entry

		slog.Info("Model loaded", "model", entry.Nickname, "path", entry.Path,
			"width", entry.Width, "height", entry.Height, "normalization", entry.Normalization)
	}

	return r, nil
}

func loadEntry(mc config.ModelConfig, dir string, loader Loader) (*Entry, error) {
	path := mc.ArtifactPath(dir)

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrMissingArtifact, "%s: %s", mc.Name, path)
		}
		return nil, errors.Wrapf(err, "%s: stat %s", mc.Name, path)
	}

	normalize, err := preprocess.Lookup(string(mc.Normalization))
	if err != nil {
		return nil, errors.Wrapf(err, "%s", mc.Name)
	}

	m, err := loader(mc, path)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: failed to load %s", mc.Name, path)
	}

	if got := m.OutputSize(); got != NumClasses {
		m.Close()
		return nil, errors.Wrapf(ErrOutputMismatch, "%s: outputs %d scores, expected %d", mc.Name, got, NumClasses)
	}

	return &Entry{
		Nickname:      mc.Name,
		Path:          path,
		Width:         mc.Width,
		Height:        mc.Height,
		Normalization: mc.Normalization,
		normalize:     normalize,
		model:         m,
	}, nil
}

// Get returns the entry registered under nickname.
func (r *Registry) Get(nickname string) (*Entry, error) {
	entry, ok := r.byName[nickname]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "%q", nickname)
	}
	return entry, nil
}

// All returns every entry in configuration order. The slice is a copy.
func (r *Registry) All() []*Entry {
	return slices.Clone(r.entries)
}

// Names returns the nicknames in configuration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Nickname
	}
	return names
}

// PredictAll runs every model against img. The first failure aborts the
// whole batch and no partial result is returned. With parallel set the
// models run concurrently; the outcome is the same.
func (r *Registry) PredictAll(ctx context.Context, img image.Image, parallel bool) (map[string]*Prediction, error) {
	results := make(map[string]*Prediction, len(r.entries))

	if !parallel {
		for _, e := range r.entries {
			pred, err := e.Predict(img)
			if err != nil {
				return nil, err
			}
			results[e.Nickname] = pred
		}
		return results, nil
	}

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	for _, e := range r.entries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			pred, err := e.Predict(img)
			if err != nil {
				return err
			}
			mu.Lock()
			results[e.Nickname] = pred
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return results, nil
}

// Close releases every loaded model.
func (r *Registry) Close() error {
	var first error
	for _, e := range r.entries {
		if err := e.model.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
