package monitor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"vms-pipeline/pipeline"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallSkipsDisabledConfigs(t *testing.T) {
	root := t.TempDir()
	cfg := pipeline.Config{
		Index: 1, Enable: false,
		RegionPath: root,
	}

	mon := New(nil)
	mon.Call(context.Background(), []pipeline.Config{cfg})

	_, running := mon.Pipeline(1)
	assert.False(t, running)
}

// TestCallEmptyOfflineSourceDoesNotDeadlockMonitor observes the offline-
// directory-empty boundary from the Monitor's side: Controller
// initialization returns ErrSourceExhausted instead of blocking on its
// probe frame, so Call logs it and Wait returns immediately rather than
// registering a pipeline that will never produce a frame.
func TestCallEmptyOfflineSourceDoesNotDeadlockMonitor(t *testing.T) {
	root := t.TempDir()
	offline := filepath.Join(root, "offline")
	cfg := pipeline.Config{
		Index: 2, Enable: true, Online: false,
		Rows: 1, Cols: 1,
		SampleRate:  1,
		ResizeScale: -1, ResizeWidth: -1, ResizeHeight: -1,
		OfflinePath: offline,
		StreamPath:  filepath.Join(root, "streams"),
		SamplePath:  filepath.Join(root, "samples"),
		RegionPath:  filepath.Join(root, "regions"),
	}

	mon := New(nil)
	mon.Call(context.Background(), []pipeline.Config{cfg})

	_, running := mon.Pipeline(2)
	assert.False(t, running)

	done := make(chan struct{})
	go func() {
		mon.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("monitor did not quiesce for an empty offline pipeline")
	}
}

// TestStopForgetsPipelinesSoACameraCanRestart checks that Stop clears a
// camera's entry from both maps immediately, rather than leaving
// Monitor.Pipeline reporting it as still running until its reaper
// goroutine happens to drain it, so a Call for the same camera index right
// after Stop is not rejected as already running.
func TestStopForgetsPipelinesSoACameraCanRestart(t *testing.T) {
	root := t.TempDir()
	cfg := pipeline.Config{
		Index: 9, Enable: true, Online: false,
		Rows: 1, Cols: 1,
		ResizeScale: -1, ResizeWidth: -1, ResizeHeight: -1,
		OfflinePath: filepath.Join(root, "offline"),
		RegionPath:  filepath.Join(root, "regions"),
	}
	p, err := pipeline.NewPipeline(cfg)
	require.NoError(t, err)

	mon := New(nil)
	_, cancel := context.WithCancel(context.Background())
	mon.mu.Lock()
	mon.pipelines[cfg.Index] = p
	mon.cancels[cfg.Index] = cancel
	mon.mu.Unlock()

	_, running := mon.Pipeline(cfg.Index)
	require.True(t, running)

	mon.Stop()

	_, running = mon.Pipeline(cfg.Index)
	assert.False(t, running, "Stop must forget a pipeline so it can be restarted")
}
