package observability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opencensus.io/stats/view"
	"go.opencensus.io/tag"
)

func TestHTTPExporter(t *testing.T) {
	e := NewHTTPExporter()
	v := &view.View{Name: "hops/job_transitions_count", Aggregation: view.Count()}
	now := time.Now()

	e.ExportView(&view.Data{
		View: v,
		End:  now,
		Rows: []*view.Row{
			{Tags: []tag.Tag{{Key: keyJobStatus, Value: "running"}}, Data: &view.CountData{Value: 3}},
			{Tags: []tag.Tag{{Key: keyJobStatus, Value: "completed"}}, Data: &view.CountData{Value: 1}},
		},
	})
	e.ExportView(&view.Data{
		View: v,
		End:  now,
		Rows: []*view.Row{
			{Tags: []tag.Tag{{Key: keyJobStatus, Value: "running"}}, Data: &view.CountData{Value: 4}},
		},
	})

	rows := e.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "completed", rows[0].Tags[TagJobStatus])
	assert.Equal(t, float64(1), rows[0].Value)
	assert.Equal(t, "running", rows[1].Tags[TagJobStatus])
	assert.Equal(t, float64(4), rows[1].Value)
}

func TestViews(t *testing.T) {
	for _, v := range views() {
		assert.NotEmpty(t, v.Description, v.Name)
		assert.NotNil(t, v.Aggregation, v.Name)
	}
}
