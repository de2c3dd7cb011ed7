// Package monitor implements the per-run supervisor that constructs,
// starts, and reaps one pipeline per configured camera.
package monitor

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vms-pipeline/models"
	"vms-pipeline/pipeline"

	"gorm.io/gorm"
)

// Monitor constructs, starts, and reaps one Pipeline per enabled camera
// configuration.
type Monitor struct {
	DB *gorm.DB

	mu        sync.Mutex
	pipelines map[int]*pipeline.Pipeline
	cancels   map[int]context.CancelFunc
	wg        sync.WaitGroup
}

func New(db *gorm.DB) *Monitor {
	return &Monitor{
		DB:        db,
		pipelines: make(map[int]*pipeline.Pipeline),
		cancels:   make(map[int]context.CancelFunc),
	}
}

// Run starts every enabled pipeline and blocks until all have terminated:
// Call followed by Wait.
func (m *Monitor) Run(ctx context.Context, cfgs []pipeline.Config) {
	m.Call(ctx, cfgs)
	m.Wait()
}

// Call starts one pipeline per enabled config: clean working directories,
// then start StreamSource/Capture/Controller in the order Pipeline.Start
// enforces.
func (m *Monitor) Call(ctx context.Context, cfgs []pipeline.Config) {
	for _, cfg := range cfgs {
		if !cfg.Enable {
			continue
		}
		if err := cleanDirs(cfg); err != nil {
			log.Printf("[monitor %d] clean working directories: %v", cfg.Index, err)
			continue
		}

		p, err := pipeline.NewPipeline(cfg)
		if err != nil {
			log.Printf("[monitor %d] build pipeline: %v", cfg.Index, err)
			continue
		}

		run := &models.PipelineRun{
			CameraID:  uint(cfg.Index),
			RunID:     p.RunID,
			StartedAt: time.Now(),
		}
		if m.DB != nil {
			if err := m.DB.Create(run).Error; err != nil {
				log.Printf("[monitor %d] record pipeline run: %v", cfg.Index, err)
			}
		}

		pctx, cancel := context.WithCancel(ctx)
		if err := p.Start(pctx); err != nil {
			log.Printf("[monitor %d] start pipeline: %v", cfg.Index, err)
			cancel()
			continue
		}

		m.mu.Lock()
		m.pipelines[cfg.Index] = p
		m.cancels[cfg.Index] = cancel
		m.mu.Unlock()

		m.wg.Add(1)
		go func(index int, run *models.PipelineRun, p *pipeline.Pipeline) {
			defer m.wg.Done()
			p.Wait()

			m.mu.Lock()
			delete(m.pipelines, index)
			delete(m.cancels, index)
			m.mu.Unlock()

			stopped := time.Now()
			run.StoppedAt = &stopped
			if m.DB != nil {
				if err := m.DB.Save(run).Error; err != nil {
					log.Printf("[monitor] record pipeline stop for run %s: %v", run.RunID, err)
				}
			}
		}(cfg.Index, run, p)
	}
}

// Wait blocks until every pipeline has terminated.
func (m *Monitor) Wait() {
	m.wg.Wait()
}

// Stop cancels every running pipeline and forgets them immediately, so a
// camera can be started again (via Call) right after a shutdown instead
// of Pipeline staying falsely "running" until its reaper goroutine gets
// around to draining the map. Used for process shutdown rather than
// natural source exhaustion.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.pipelines {
		p.Stop()
	}
	for _, cancel := range m.cancels {
		cancel()
	}
	m.pipelines = make(map[int]*pipeline.Pipeline)
	m.cancels = make(map[int]context.CancelFunc)
}

// Pipeline returns the running pipeline for a camera index, if any.
func (m *Monitor) Pipeline(index int) (*pipeline.Pipeline, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.pipelines[index]
	return p, ok
}

func cleanDirs(cfg pipeline.Config) error {
	dirs := []string{
		cfg.SamplePath,
		cfg.StreamPath,
		filepath.Join(cfg.RegionPath, fmt.Sprintf("%d", cfg.Index)),
	}
	for _, d := range dirs {
		if d == "" {
			continue
		}
		if err := os.RemoveAll(d); err != nil {
			return err
		}
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}
