package lifecycle

import (
	"context"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"gridline/engine/interfaces"
	"gridline/engine/rules"

	"github.com/minio/highwayhash"
)

// dedupHashKey is the fixed key for duplicate-detection key hashing.
// Duplicate keys only need stability within one operation.
var dedupHashKey = []byte("gridline duplicate keys\x00\x00\x00\x00\x00\x00\x00\x00\x00")

// KeepStrategy selects which rows survive within a duplicate group
type KeepStrategy int

const (
	KeepFirst KeepStrategy = iota
	KeepLast
	KeepNone
)

// DuplicateCriteria configures duplicate-based bulk deletion
type DuplicateCriteria struct {
	// Columns is the subset forming the composite key; empty means all
	// columns. Entries may carry a {$.path} JSON path suffix.
	Columns       []string
	CaseSensitive bool
	Strategy      KeepStrategy
	OnlyFiltered  bool
	OnlyChecked   bool
	BatchSize     int
}

// DeleteDuplicateRows streams the selected rows, groups them by a composite
// key over the criteria columns, keeps survivors per strategy, and deletes
// the rest through the ID-based smart delete path. Empty rows are never
// treated as duplicates of each other.
func (m *Manager) DeleteDuplicateRows(ctx context.Context, criteria DuplicateCriteria) (Result, error) {
	start := time.Now()

	type group struct {
		ids []string
	}
	groups := make(map[string]*group)
	var order []string // first-seen key order, for deterministic results

	stream := m.store.StreamRows(interfaces.StreamOptions{
		OnlyFiltered: criteria.OnlyFiltered,
		OnlyChecked:  criteria.OnlyChecked,
		BatchSize:    criteria.BatchSize,
	})
	for {
		batch, ok := stream.Next()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		for _, row := range batch {
			if row.IsEmpty() {
				continue
			}
			key := m.duplicateKey(row, criteria)
			g, seen := groups[key]
			if !seen {
				g = &group{}
				groups[key] = g
				order = append(order, key)
			}
			g.ids = append(g.ids, row.ID)
		}
	}

	var doomed []string
	for _, key := range order {
		g := groups[key]
		if len(g.ids) < 2 {
			continue
		}
		switch criteria.Strategy {
		case KeepFirst:
			doomed = append(doomed, g.ids[1:]...)
		case KeepLast:
			doomed = append(doomed, g.ids[:len(g.ids)-1]...)
		case KeepNone:
			doomed = append(doomed, g.ids...)
		}
	}

	if len(doomed) == 0 {
		return Result{
			Success:       true,
			Message:       "no duplicate rows found",
			FinalRowCount: m.store.RowCount(),
			Duration:      time.Since(start),
		}, nil
	}

	m.log("debug", fmt.Sprintf("[DELETE_DUPLICATES] groups=%d doomed=%d", len(groups), len(doomed)))
	result, err := m.SmartDeleteRowsByID(ctx, doomed)
	if err != nil {
		return Result{}, err
	}
	result.Message = fmt.Sprintf("deleted %d duplicate rows", result.Stats.RowsPhysicallyDeleted)
	result.Duration = time.Since(start)
	return result, nil
}

// duplicateKey builds the composite key for one row: the criteria columns'
// values (all columns when none given) joined with a null separator, hashed
// so large cell values stay cheap to group on.
func (m *Manager) duplicateKey(row *Row, criteria DuplicateCriteria) string {
	var parts []string
	if len(criteria.Columns) == 0 {
		// All columns, in stable name order
		names := make([]string, 0, len(row.Data))
		for name := range row.Data {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			parts = append(parts, normalizePart(row.Data[name], criteria.CaseSensitive))
		}
	} else {
		for _, col := range criteria.Columns {
			value, _ := rules.CellValue(row, col)
			parts = append(parts, normalizePart(value, criteria.CaseSensitive))
		}
	}

	h, err := highwayhash.New(dedupHashKey)
	if err != nil {
		panic(err) // fixed 32-byte key
	}
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

func normalizePart(v any, caseSensitive bool) string {
	s := strings.TrimSpace(interfaces.ValueString(v))
	if !caseSensitive {
		s = strings.ToLower(s)
	}
	return s
}
