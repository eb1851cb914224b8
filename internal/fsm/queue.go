package fsm

import "sync/atomic"

// DefaultQueueCapacity matches the event FIFO size of the board firmware.
const DefaultQueueCapacity = 10

// slot holds one queued event. seq encodes whose turn the slot is:
// seq == pos means free for the producer claiming pos,
// seq == pos+1 means filled and ready for the consumer claiming pos.
type slot struct {
	seq atomic.Uint64
	ev  Event
}

// Queue is a bounded FIFO of events. Any number of goroutines may Push
// concurrently with a single consumer calling TryPop. Neither side blocks or
// takes a lock: a full queue drops the new event, an empty queue yields None.
//
// Ordering is the order in which pushes claim a position, across all producers.
type Queue struct {
	head  atomic.Uint64 // next position to pop
	_     [56]byte
	tail  atomic.Uint64 // next position to push
	_     [56]byte
	slots []slot
	size  uint64
}

// NewQueue creates a queue holding at most capacity events.
// A capacity below 1 is raised to 1.
func NewQueue(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	q := &Queue{
		slots: make([]slot, capacity),
		size:  uint64(capacity),
	}
	for i := range q.slots {
		q.slots[i].seq.Store(uint64(i))
	}
	return q
}

// Push appends e at the tail. It returns false, leaving the queue unchanged,
// when the queue is full or e is None.
func (q *Queue) Push(e Event) bool {
	if e == None {
		return false
	}
	pos := q.tail.Load()
	for {
		s := &q.slots[pos%q.size]
		seq := s.seq.Load()
		switch diff := int64(seq) - int64(pos); {
		case diff == 0:
			if q.tail.CompareAndSwap(pos, pos+1) {
				s.ev = e
				s.seq.Store(pos + 1)
				return true
			}
			pos = q.tail.Load()
		case diff < 0:
			// Slot still holds an unconsumed event from the previous lap.
			return false
		default:
			pos = q.tail.Load()
		}
	}
}

// TryPop removes and returns the oldest event, or None if the queue is empty.
func (q *Queue) TryPop() Event {
	pos := q.head.Load()
	for {
		s := &q.slots[pos%q.size]
		seq := s.seq.Load()
		switch diff := int64(seq) - int64(pos+1); {
		case diff == 0:
			if q.head.CompareAndSwap(pos, pos+1) {
				e := s.ev
				s.seq.Store(pos + q.size)
				return e
			}
			pos = q.head.Load()
		case diff < 0:
			return None
		default:
			pos = q.head.Load()
		}
	}
}

// Len returns the number of queued events. It is a snapshot and may be stale
// by the time the caller looks at it.
func (q *Queue) Len() int {
	tail := q.tail.Load()
	head := q.head.Load()
	if tail <= head {
		return 0
	}
	n := tail - head
	if n > q.size {
		n = q.size
	}
	return int(n)
}

// Cap returns the fixed capacity.
func (q *Queue) Cap() int {
	return int(q.size)
}
