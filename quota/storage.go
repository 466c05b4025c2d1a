// Package quota persists per-provider monthly call usage so provider
// budgets like "100 calls/month" survive process restarts.
package quota

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// MonthlyUsage is the recorded usage of one provider for one month.
type MonthlyUsage struct {
	Calls       int       `json:"calls"`
	Successes   int       `json:"successes"`
	Failures    int       `json:"failures"`
	LastUpdated time.Time `json:"last_updated"`
}

// Storage handles persistent storage of provider usage counters.
type Storage struct {
	mutex       sync.RWMutex
	usage       map[string]map[string]*MonthlyUsage // provider -> "YYYY-MM"
	dirty       bool
	filePath    string
	writeBuffer chan struct{}
	done        chan struct{}
	writerDone  chan struct{}
	closeOnce   sync.Once
}

// NewStorage creates a usage store backed by a JSON file under dataDir.
func NewStorage(dataDir string) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Storage{
		usage:       make(map[string]map[string]*MonthlyUsage),
		filePath:    filepath.Join(dataDir, "quota.json"),
		writeBuffer: make(chan struct{}, 1),
		done:        make(chan struct{}),
		writerDone:  make(chan struct{}),
	}

	if err := s.load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load quota usage: %w", err)
	}

	go s.backgroundWriter()

	return s, nil
}

func (s *Storage) load() error {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return err
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	return json.Unmarshal(data, &s.usage)
}

// save flushes the counters to disk. A store that has not recorded
// anything since the last flush is left alone, so loading an existing
// file and shutting down never truncates it.
func (s *Storage) save() error {
	s.mutex.Lock()
	if !s.dirty {
		s.mutex.Unlock()
		return nil
	}
	data, err := json.Marshal(s.usage)
	if err != nil {
		s.mutex.Unlock()
		return fmt.Errorf("failed to marshal quota usage: %w", err)
	}
	s.dirty = false
	s.mutex.Unlock()

	// Write to a temporary file first, then rename: the rename is atomic
	// so a crash never leaves a torn file behind.
	tempFile := s.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary file: %w", err)
	}
	if err := os.Rename(tempFile, s.filePath); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return nil
}

// backgroundWriter flushes on demand and on a slow periodic tick. The
// final flush happens before writerDone closes, so Shutdown can wait
// for it.
func (s *Storage) backgroundWriter() {
	defer close(s.writerDone)

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.writeBuffer:
			s.save()
		case <-ticker.C:
			s.save()
		case <-s.done:
			s.save()
			return
		}
	}
}

func currentMonth() string {
	return time.Now().Format("2006-01")
}

func (s *Storage) requestWrite() {
	select {
	case s.writeBuffer <- struct{}{}:
	default:
		// A write is already pending.
	}
}

// Record counts one provider call and its outcome against the current
// month.
func (s *Storage) Record(provider string, success bool) {
	s.mutex.Lock()
	months, ok := s.usage[provider]
	if !ok {
		months = make(map[string]*MonthlyUsage)
		s.usage[provider] = months
	}
	month := currentMonth()
	u, ok := months[month]
	if !ok {
		u = &MonthlyUsage{}
		months[month] = u
	}
	u.Calls++
	if success {
		u.Successes++
	} else {
		u.Failures++
	}
	u.LastUpdated = time.Now()
	s.dirty = true
	s.mutex.Unlock()

	s.requestWrite()
}

// MonthUsage returns the current month's usage for one provider.
func (s *Storage) MonthUsage(provider string) MonthlyUsage {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if u, ok := s.usage[provider][currentMonth()]; ok {
		return *u
	}
	return MonthlyUsage{}
}

// Remaining returns how many calls are left in the provider's monthly
// budget. A budget <= 0 means unlimited and reports -1.
func (s *Storage) Remaining(provider string, monthlyBudget int) int {
	if monthlyBudget <= 0 {
		return -1
	}
	used := s.MonthUsage(provider).Calls
	if used >= monthlyBudget {
		return 0
	}
	return monthlyBudget - used
}

// Snapshot returns the current month's usage for every known provider.
func (s *Storage) Snapshot() map[string]MonthlyUsage {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	out := make(map[string]MonthlyUsage, len(s.usage))
	month := currentMonth()
	for provider, months := range s.usage {
		if u, ok := months[month]; ok {
			out[provider] = *u
		}
	}
	return out
}

// Shutdown stops the background writer and blocks until its final
// flush has reached disk.
func (s *Storage) Shutdown() error {
	s.closeOnce.Do(func() { close(s.done) })
	<-s.writerDone
	return nil
}
