// Package queue provides the FIFO used for outbound frames that wait for the
// next acknowledgement point on the bus.
package queue

// Queue is a first-in first-out container.
type Queue[T any] interface {
	// Enqueue adds an item to the tail of the queue.
	Enqueue(item T)
	// Dequeue removes and returns the head item. ok is false when the queue is empty.
	Dequeue() (item T, ok bool)
	// Peek returns the head item without removing it.
	Peek() (item T, ok bool)
	// Items returns a copy of the queued items in FIFO order.
	Items() []T
	// Reset drops every queued item.
	Reset()
	// IsEmpty returns true if the queue is empty.
	IsEmpty() bool
	// Length returns the number of queued items.
	Length() int
}
