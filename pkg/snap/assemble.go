package snap

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shpitdev/route-snapper/pkg/pipeline/core"
	"github.com/shpitdev/route-snapper/pkg/routeapi"
)

// RequestIDColumn is the join key column in the output table.
const RequestIDColumn = "Request_Id"

const collisionSuffix = "_snapped"

// Assemble left-joins rows to records on request id. The output has one row per
// input row, in input order; rows without a record leave the route columns blank.
//
// Columns are the input header, Request_Id (unless the input already has one,
// which is then overwritten), the returnKeys in order, and any other returned
// keys sorted. Route columns that collide with an input column get "_snapped".
func Assemble(header []string, rows []routeapi.InputRow, records []routeapi.Record, returnKeys []string) (core.Table, error) {
	byID := make(map[string]map[string]string, len(records))
	for _, rec := range records {
		if _, dup := byID[rec.RequestID]; dup {
			return core.Table{}, fmt.Errorf("%w: record %q", ErrDuplicateRequestID, rec.RequestID)
		}
		byID[rec.RequestID] = rec.Fields
	}
	seen := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if _, dup := seen[row.RequestID]; dup {
			return core.Table{}, fmt.Errorf("%w: row %q", ErrDuplicateRequestID, row.RequestID)
		}
		seen[row.RequestID] = struct{}{}
	}

	in := core.Table{Header: header}
	outHeader := append([]string(nil), header...)
	idCol := in.Column(RequestIDColumn)
	if idCol < 0 {
		idCol = len(outHeader)
		outHeader = append(outHeader, RequestIDColumn)
	}

	keys := routeKeys(records, returnKeys)
	taken := make(map[string]struct{}, len(outHeader))
	for _, h := range outHeader {
		taken[strings.ToLower(strings.TrimSpace(h))] = struct{}{}
	}
	for _, k := range keys {
		name := k
		if _, clash := taken[strings.ToLower(name)]; clash {
			name += collisionSuffix
		}
		taken[strings.ToLower(name)] = struct{}{}
		outHeader = append(outHeader, name)
	}
	routeStart := len(outHeader) - len(keys)

	out := core.Table{Header: outHeader, Rows: make([][]string, 0, len(rows))}
	for _, row := range rows {
		rec := make([]string, len(outHeader))
		copy(rec, row.Values)
		rec[idCol] = row.RequestID
		if fields, ok := byID[row.RequestID]; ok {
			for i, k := range keys {
				rec[routeStart+i] = fields[k]
			}
		}
		out.Rows = append(out.Rows, rec)
	}
	return out, nil
}

// routeKeys orders the configured keys first, then any other returned keys.
func routeKeys(records []routeapi.Record, returnKeys []string) []string {
	keys := routeapi.NormalizeKeys(returnKeys)
	listed := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		listed[k] = struct{}{}
	}

	var extra []string
	for _, rec := range records {
		for k := range rec.Fields {
			if _, ok := listed[k]; ok || strings.EqualFold(k, RequestIDColumn) {
				continue
			}
			listed[k] = struct{}{}
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)

	out := make([]string, 0, len(keys)+len(extra))
	for _, k := range keys {
		if !strings.EqualFold(k, RequestIDColumn) {
			out = append(out, k)
		}
	}
	return append(out, extra...)
}
