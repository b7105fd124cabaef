package snap

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/shpitdev/route-snapper/pkg/pipeline/core"
	"github.com/shpitdev/route-snapper/pkg/routeapi"
)

// DefaultGeometryColumn is the input column holding WKT points.
const DefaultGeometryColumn = "GEOMETRY"

// RowsFromTable turns table rows into input rows keyed by their 0-based index.
func RowsFromTable(t core.Table, geometryColumn string) ([]routeapi.InputRow, error) {
	if geometryColumn == "" {
		geometryColumn = DefaultGeometryColumn
	}
	col := t.Column(geometryColumn)
	if col < 0 {
		return nil, fmt.Errorf("input has no %q column (header: %v)", geometryColumn, t.Header)
	}

	rows := make([]routeapi.InputRow, 0, len(t.Rows))
	for i, values := range t.Rows {
		geom := ""
		if col < len(values) {
			geom = values[col]
		}
		rows = append(rows, routeapi.InputRow{
			RequestID: strconv.Itoa(i),
			Geometry:  geom,
			Values:    values,
		})
	}
	return rows, nil
}

// BuildAll builds a descriptor for every row. Malformed rows are all reported
// together and no descriptors are returned.
func BuildAll(b *routeapi.Builder, rows []routeapi.InputRow) ([]routeapi.Descriptor, error) {
	descs := make([]routeapi.Descriptor, 0, len(rows))
	var errs []error
	for _, row := range rows {
		d, err := b.Build(row)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		descs = append(descs, d)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return descs, nil
}
