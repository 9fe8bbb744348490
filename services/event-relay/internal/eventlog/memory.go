package eventlog

import (
	"context"
	"sync"
)

// Memory is an in-memory appender with the same keyed-put semantics as the
// Postgres repository. Used in tests.
type Memory struct {
	mu      sync.Mutex
	byKey   map[[2]string]int
	records []Record
}

func NewMemory() *Memory {
	return &Memory{byKey: map[[2]string]int{}}
}

func (m *Memory) Append(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := [2]string{rec.PK, rec.SK}
	if idx, ok := m.byKey[key]; ok {
		m.records[idx] = rec
		return nil
	}
	m.byKey[key] = len(m.records)
	m.records = append(m.records, rec)
	return nil
}

func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// ByPartition returns the records sharing one partition key.
func (m *Memory) ByPartition(pk string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Record
	for _, rec := range m.records {
		if rec.PK == pk {
			out = append(out, rec)
		}
	}
	return out
}
