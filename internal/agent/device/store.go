package device

import (
	"sync"
	"time"

	"github.com/httprunner/FlashAgent/internal/probe"
)

// Store 保存最近一次发布的设备状态。
//
// 读者随时可以 Load；写入只发生在同包的 Loop 中，对外不暴露写接口。
type Store struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewStore 返回初始为 Disconnected 的 Store。
func NewStore() *Store {
	return &Store{snap: Snapshot{State: Disconnected, ChangedAt: time.Now()}}
}

// Load 返回当前快照的副本。
func (s *Store) Load() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// State 返回当前状态。
func (s *Store) State() State {
	return s.Load().State
}

func (s *Store) publish(state State, mode probe.Detail, at time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state != PreloaderReady {
		mode = probe.DetailNone
	}
	s.snap = Snapshot{
		State:         state,
		PreloaderMode: mode,
		ChangedAt:     at,
		Seq:           s.snap.Seq + 1,
	}
	return s.snap
}

// updateMode 在状态不变时同步 PreloaderMode，Seq 不变。
func (s *Store) updateMode(state State, mode probe.Detail) (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if state != PreloaderReady || s.snap.State != PreloaderReady || s.snap.PreloaderMode == mode {
		return s.snap, false
	}
	s.snap.PreloaderMode = mode
	return s.snap, true
}
