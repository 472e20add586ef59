// Package sysprop читает системные свойства из файлов формата key=value.
package sysprop

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"
)

// Store хранит загруженные свойства.
type Store struct {
	mu    sync.RWMutex
	props map[string]string
}

// New создает пустое хранилище.
func New() *Store {
	return &Store{props: make(map[string]string)}
}

// Load читает файлы по порядку; поздние значения перекрывают ранние,
// отсутствующие файлы пропускаются.
func Load(paths ...string) (*Store, error) {
	s := New()
	for _, p := range paths {
		f, err := os.Open(p) // #nosec G304 -- пути задаются конфигурацией оператора.
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("open properties: %w", err)
		}
		err = s.Read(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
	}
	return s, nil
}

// Read добавляет свойства из r; строки с # и пустые игнорируются.
func (s *Store) Read(r io.Reader) error {
	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		key, value, ok := strings.Cut(text, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return fmt.Errorf("line %d: expected key=value", line)
		}
		s.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
	return sc.Err()
}

// Set задает значение свойства.
func (s *Store) Set(key, value string) {
	s.mu.Lock()
	s.props[key] = value
	s.mu.Unlock()
}

func (s *Store) Lookup(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.props[key]
	return v, ok
}

// Get возвращает значение или def, если свойство не задано или пусто.
func (s *Store) Get(key, def string) string {
	if v, ok := s.Lookup(key); ok && v != "" {
		return v
	}
	return def
}
