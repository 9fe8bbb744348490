package queue

import (
	"context"
	"sync"
)

// Memory implements Queue in memory with the same receive-count and
// dead-letter policy as the Postgres queue. Nacked messages become visible
// again immediately, which keeps retry tests deterministic.
type Memory struct {
	mu          sync.Mutex
	nextID      int64
	maxReceives int
	visible     []Message
	inFlight    map[int64]Message
	dead        []Message
}

func NewMemory(maxReceives int) *Memory {
	if maxReceives <= 0 {
		maxReceives = 3
	}
	return &Memory{maxReceives: maxReceives, inFlight: map[int64]Message{}}
}

func (q *Memory) Enqueue(_ context.Context, eventID, eventType string, payload []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.nextID++
	q.visible = append(q.visible, Message{
		ID:        q.nextID,
		EventID:   eventID,
		EventType: eventType,
		Payload:   payload,
	})
	return nil
}

func (q *Memory) Receive(_ context.Context, max int) ([]Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := min(max, len(q.visible))
	if n == 0 {
		return nil, nil
	}
	batch := make([]Message, n)
	copy(batch, q.visible[:n])
	q.visible = q.visible[n:]
	for i := range batch {
		batch[i].ReceiveCount++
		q.inFlight[batch[i].ID] = batch[i]
	}
	return batch, nil
}

func (q *Memory) Ack(_ context.Context, id int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, id)
	return nil
}

func (q *Memory) Nack(_ context.Context, msg Message, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, msg.ID)
	if msg.ReceiveCount >= q.maxReceives {
		q.dead = append(q.dead, msg)
		return nil
	}
	q.visible = append(q.visible, msg)
	return nil
}

func (q *Memory) Pending(context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.visible), nil
}

func (q *Memory) DeadLetters() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Message, len(q.dead))
	copy(out, q.dead)
	return out
}
