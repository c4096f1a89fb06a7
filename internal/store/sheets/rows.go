package sheets

import (
	"fmt"
	"strings"

	"commissions/internal/core"
	"commissions/internal/store"
)

// Column layout of the entries sheet. Row 1 holds the header.
var entryHeader = []any{"ID", "Name", "Price", "Date", "Type", "Extras", "Time"}

const (
	colID = iota
	colName
	colPrice
	colDate
	colType
	colExtras
	colTime
	numCols
)

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

func safeGet(arr []string, idx int) string {
	if idx < 0 || idx >= len(arr) {
		return ""
	}
	return arr[idx]
}

// rowToEntry converts a sheet row into a raw record. ok is false for blank
// rows left behind by deletions and for the header row.
func rowToEntry(row []any) (core.RawEntry, bool) {
	cols := toStrings(row)
	id := safeGet(cols, colID)
	if id == "" || strings.EqualFold(id, "id") {
		return core.RawEntry{}, false
	}
	return core.RawEntry{
		ID:     id,
		Name:   safeGet(cols, colName),
		Price:  safeGet(cols, colPrice),
		Date:   safeGet(cols, colDate),
		Type:   safeGet(cols, colType),
		Extras: splitExtras(safeGet(cols, colExtras)),
		Time:   safeGet(cols, colTime),
	}, true
}

func entryToRow(e core.RawEntry) []any {
	return []any{e.ID, e.Name, e.Price, e.Date, e.Type, strings.Join(e.Extras, ", "), e.Time}
}

func splitExtras(cell string) []string {
	if cell == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(cell, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// readEmails extracts normalized addresses from the first column, skipping
// headers, comments and duplicates while preserving order.
func readEmails(values [][]any) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, row := range values {
		if len(row) == 0 {
			continue
		}
		v := store.NormalizeEmail(fmt.Sprint(row[0]))
		if v == "" || v == "email" || strings.HasPrefix(v, "#") || !strings.Contains(v, "@") {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// indexOf returns the 0-based row whose first cell equals target.
func indexOf(values [][]any, target string, fold bool) int {
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		v := strings.TrimSpace(fmt.Sprint(row[0]))
		if v == target || (fold && strings.EqualFold(v, target)) {
			return i
		}
	}
	return -1
}
