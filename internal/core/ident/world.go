package ident

// World owns the id pool, the stores keyed by those ids, and a deferred
// reclamation queue flushed by the cleanup system at the end of each tick.
type World struct {
	pool      *Pool
	stores    []Removable
	freeQueue []ID
}

func NewWorld() *World {
	return &World{
		pool:      NewPool(),
		stores:    make([]Removable, 0, 16),
		freeQueue: make([]ID, 0, 64),
	}
}

func (w *World) Pool() *Pool { return w.pool }

// Register adds a store that must forget reclaimed ids.
func (w *World) Register(store Removable) {
	w.stores = append(w.stores, store)
}

func (w *World) Create() ID {
	return w.pool.Create()
}

func (w *World) Alive(id ID) bool {
	return w.pool.Alive(id)
}

// QueueFree schedules id for reclamation at the next flush.
func (w *World) QueueFree(id ID) {
	w.freeQueue = append(w.freeQueue, id)
}

// Pending returns the number of ids waiting for the next flush.
func (w *World) Pending() int {
	return len(w.freeQueue)
}

// FlushFreeQueue removes every queued id from all registered stores and frees
// it in the pool. Returns the number of ids reclaimed.
func (w *World) FlushFreeQueue() int {
	n := 0
	for _, id := range w.freeQueue {
		if !w.pool.Alive(id) {
			continue
		}
		for _, s := range w.stores {
			s.Remove(id)
		}
		w.pool.Free(id)
		n++
	}
	w.freeQueue = w.freeQueue[:0]
	return n
}
