// Package jsonl хранит заявки в append-only файле: одна JSON-запись на строку.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"autolead-telegram-bot/internal/domain"
)

const maxLineSize = 1024 * 1024

type LeadStore struct {
	path   string
	mu     sync.Mutex
	logger *slog.Logger
}

func NewLeadStore(path string, logger *slog.Logger) *LeadStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeadStore{path: path, logger: logger.With("component", "jsonl_store", "file", path)}
}

func (s *LeadStore) Path() string { return s.path }

// Append дописывает заявку одной строкой. Запись строки — один Write на O_APPEND дескрипторе.
func (s *LeadStore) Append(ctx context.Context, lead domain.Lead) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	line, err := json.Marshal(lead)
	if err != nil {
		return fmt.Errorf("encode lead: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create leads dir: %w", err)
		}
	}
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open leads file: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("write lead: %w", err)
	}
	return f.Close()
}

// LastN читает весь журнал и возвращает последние limit заявок, старые первыми.
// Отсутствующий файл — не ошибка; битые строки пропускаются.
func (s *LeadStore) LastN(ctx context.Context, limit int) ([]domain.Lead, error) {
	if limit <= 0 {
		return []domain.Lead{}, nil
	}
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []domain.Lead{}, nil
		}
		return nil, fmt.Errorf("open leads file: %w", err)
	}
	defer f.Close()

	leads := make([]domain.Lead, 0, min(limit, 64))
	r := bufio.NewReaderSize(f, 64*1024)
	lineNo := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, readErr := r.ReadBytes('\n')
		if len(raw) > 0 {
			lineNo++
			if lead, ok := s.decodeLine(lineNo, raw); ok {
				leads = append(leads, lead)
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read leads file: %w", readErr)
		}
	}

	if len(leads) > limit {
		leads = leads[len(leads)-limit:]
	}
	return leads, nil
}

// decodeLine разбирает одну строку журнала; пустые, слишком длинные и битые строки пропускаются.
func (s *LeadStore) decodeLine(lineNo int, raw []byte) (domain.Lead, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return domain.Lead{}, false
	}
	if len(raw) > maxLineSize {
		s.logger.Warn("skip oversized lead line", "line", lineNo, "size", len(raw))
		return domain.Lead{}, false
	}
	var lead domain.Lead
	if err := json.Unmarshal(raw, &lead); err != nil {
		s.logger.Warn("skip malformed lead line", "line", lineNo, "error", err)
		return domain.Lead{}, false
	}
	return lead, true
}
