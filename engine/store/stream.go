package store

import "gridline/engine/interfaces"

// RowStream is a restartable, finite batch iterator over the store.
// Each Next call clones one index range under the store's read lock, so a
// stream never materializes the full dataset at once and batches never
// share field maps with concurrent cell writes. Streams are not isolated
// from structural mutation; readers tolerate staleness across batches.
type RowStream struct {
	store  *RowStore
	opts   StreamOptions
	pos    int
	done   bool
	filter func(*Row) bool
}

// StreamRows starts a new stream over the current rows. The options select
// filtered-only and checked-only subsets and the batch size; each call
// returns an independent stream positioned at the start.
func (s *RowStore) StreamRows(opts StreamOptions) *RowStream {
	if opts.BatchSize <= 0 {
		opts.BatchSize = interfaces.DefaultBatchSize
	}
	var filter func(*Row) bool
	if opts.OnlyFiltered {
		filter = s.currentFilter()
	}
	return &RowStream{store: s, opts: opts, filter: filter}
}

// Next returns the next batch of rows and true, or nil and false once the
// stream is exhausted. Batches may be shorter than the configured size when
// filters drop rows near the end of the collection.
func (st *RowStream) Next() ([]*Row, bool) {
	if st.done {
		return nil, false
	}

	batch := make([]*Row, 0, st.opts.BatchSize)
	for len(batch) < st.opts.BatchSize {
		st.store.mu.RLock()
		if st.pos >= len(st.store.rows) {
			st.store.mu.RUnlock()
			st.done = true
			break
		}
		end := st.pos + st.opts.BatchSize - len(batch)
		if end > len(st.store.rows) {
			end = len(st.store.rows)
		}
		window := make([]*Row, end-st.pos)
		for i, row := range st.store.rows[st.pos:end] {
			window[i] = row.Clone()
		}
		st.pos = end
		st.store.mu.RUnlock()

		for _, row := range window {
			if st.opts.OnlyChecked && !row.Checked {
				continue
			}
			if st.filter != nil && !st.filter(row) {
				continue
			}
			batch = append(batch, row)
		}
	}

	if len(batch) == 0 {
		st.done = true
		return nil, false
	}
	return batch, true
}
