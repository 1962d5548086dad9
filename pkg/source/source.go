// Package source provides camera frames to the profiler.
//
// Sources are called once per profile or width request and must be safe
// for concurrent use, since the x and y axes may be measured in parallel.
// Failures are wrapped in ErrSourceUnavailable and never retried here.
package source

import (
	"errors"
	"fmt"
	"sync"

	"beamprofiler/internal/models"
)

// ErrSourceUnavailable is returned when no frame can be obtained.
var ErrSourceUnavailable = errors.New("image source unavailable")

// ImageSource delivers the current camera frame.
type ImageSource interface {
	GetImage() (*models.ImageFrame, error)
}

// FuncSource adapts a function to ImageSource. Errors returned by the
// function are wrapped in ErrSourceUnavailable.
type FuncSource func() (*models.ImageFrame, error)

// GetImage calls f.
func (f FuncSource) GetImage() (*models.ImageFrame, error) {
	frame, err := f()
	if err != nil {
		return nil, unavailable(err)
	}
	return frame, nil
}

// StaticSource always returns the same in-memory frame. Set replaces it.
type StaticSource struct {
	mu    sync.RWMutex
	frame *models.ImageFrame
}

// NewStaticSource creates a source serving frame.
func NewStaticSource(frame *models.ImageFrame) *StaticSource {
	return &StaticSource{frame: frame}
}

// Set replaces the served frame.
func (s *StaticSource) Set(frame *models.ImageFrame) {
	s.mu.Lock()
	s.frame = frame
	s.mu.Unlock()
}

// GetImage returns the current frame or ErrSourceUnavailable if none is set.
func (s *StaticSource) GetImage() (*models.ImageFrame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.frame == nil {
		return nil, fmt.Errorf("%w: no frame loaded", ErrSourceUnavailable)
	}
	return s.frame, nil
}

func unavailable(err error) error {
	if errors.Is(err, ErrSourceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrSourceUnavailable, err)
}
