package observability

import (
	"sort"
	"sync"
	"time"

	"go.opencensus.io/stats/view"
)

// ViewRow is one row of an exported view.
type ViewRow struct {
	Name   string            `json:"name"`
	Tags   map[string]string `json:"tags,omitempty"`
	Value  float64           `json:"value"`
	Date   time.Time         `json:"date"`
	Count  int64             `json:"count,omitempty"`
	Bounds []float64         `json:"bounds,omitempty"`
	Bucket []int64           `json:"bucket,omitempty"`
}

// HTTPExporter keeps the latest value of every view row.
type HTTPExporter struct {
	mutex sync.RWMutex
	rows  map[string]ViewRow
}

var _ view.Exporter = new(HTTPExporter)

func NewHTTPExporter() *HTTPExporter {
	return &HTTPExporter{rows: make(map[string]ViewRow)}
}

// ExportView implements view.Exporter.
func (e *HTTPExporter) ExportView(vd *view.Data) {
	e.mutex.Lock()
	defer e.mutex.Unlock()
	for _, row := range vd.Rows {
		r := ViewRow{Name: vd.View.Name, Date: vd.End}
		id := vd.View.Name
		if len(row.Tags) > 0 {
			r.Tags = make(map[string]string, len(row.Tags))
			for _, t := range row.Tags {
				r.Tags[t.Key.Name()] = t.Value
				id += "," + t.Key.Name() + "=" + t.Value
			}
		}
		switch d := row.Data.(type) {
		case *view.CountData:
			r.Value = float64(d.Value)
		case *view.LastValueData:
			r.Value = d.Value
		case *view.SumData:
			r.Value = d.Value
		case *view.DistributionData:
			r.Value = d.Mean
			r.Count = d.Count
			r.Bounds = vd.View.Aggregation.Buckets
			r.Bucket = d.CountPerBucket
		}
		e.rows[id] = r
	}
}

// Rows returns the rows sorted by view name.
func (e *HTTPExporter) Rows() []ViewRow {
	e.mutex.RLock()
	defer e.mutex.RUnlock()
	ids := make([]string, 0, len(e.rows))
	for id := range e.rows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	res := make([]ViewRow, len(ids))
	for i, id := range ids {
		res[i] = e.rows[id]
	}
	return res
}
