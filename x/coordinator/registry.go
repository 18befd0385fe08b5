package coordinator

// registry tracks unsettled operations, by request ID and by dedup key. It is
// not synchronized; the coordinator serializes all access under its lock,
// because dedup and the concurrency cap are cross-key invariants.
type registry[T any] struct {
	byID  map[string]*tracked[T]
	byKey map[string]*tracked[T]
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{
		byID:  make(map[string]*tracked[T]),
		byKey: make(map[string]*tracked[T]),
	}
}

func (r *registry[T]) insert(op *tracked[T]) {
	r.byID[op.id] = op
	if op.dedupKey != "" {
		r.byKey[op.dedupKey] = op
	}
}

// remove drops op from both indexes. The key index is only cleared when it
// still points at op, so a newer operation under the same key is untouched.
func (r *registry[T]) remove(op *tracked[T]) {
	delete(r.byID, op.id)
	if op.dedupKey != "" && r.byKey[op.dedupKey] == op {
		delete(r.byKey, op.dedupKey)
	}
}

// findByKey returns the unsettled operation registered under key, if any.
func (r *registry[T]) findByKey(key string) (*tracked[T], bool) {
	op, ok := r.byKey[key]
	return op, ok
}

func (r *registry[T]) len() int {
	return len(r.byID)
}

// each visits every unsettled operation in unspecified order.
func (r *registry[T]) each(fn func(*tracked[T])) {
	for _, op := range r.byID {
		fn(op)
	}
}
