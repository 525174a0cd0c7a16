package formatter

import (
	"testing"

	"intent-gateway/internal/extractor"
	"intent-gateway/internal/template"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func orderTemplate(contentTemplate string) *template.Template {
	return &template.Template{
		ID: "find_orders",
		ResultMapping: template.ResultMapping{
			ContentTemplate: contentTemplate,
			EmptyMessage:    "No orders matched your question.",
		},
	}
}

func TestFormatRows_ContentTemplate(t *testing.T) {
	f := NewFormatter()
	tmpl := orderTemplate("Order {id} for {customer}: {status}")

	items := f.FormatRows(tmpl, []map[string]interface{}{
		{"id": 7, "customer": "Maria", "status": "shipped"},
		{"id": 9, "customer": "Maria", "status": "pending", "extra": "ignored"},
	}, 0.91, nil)

	require.Len(t, items, 2)
	assert.Equal(t, "Order 7 for Maria: shipped", items[0].Content)
	assert.Equal(t, "Order 9 for Maria: pending", items[1].Content)
}

func TestFormatRows_MissingFieldRendersBlank(t *testing.T) {
	f := NewFormatter()
	tmpl := orderTemplate("Order {id}: {nonexistent}")

	items := f.FormatRows(tmpl, []map[string]interface{}{{"id": 1}}, 0.5, nil)
	require.Len(t, items, 1)
	assert.Equal(t, "Order 1: ", items[0].Content)
}

func TestFormatRows_KeyValueFallback(t *testing.T) {
	f := NewFormatter()
	tmpl := orderTemplate("")

	items := f.FormatRows(tmpl, []map[string]interface{}{
		{"status": "shipped", "id": 7, "total": 42.5},
	}, 0.5, nil)

	require.Len(t, items, 1)
	// Keys render in sorted order so output is deterministic.
	assert.Equal(t, "id: 7, status: shipped, total: 42.5", items[0].Content)
}

func TestFormatRows_DeclaredFieldsControlOrder(t *testing.T) {
	f := NewFormatter()
	tmpl := orderTemplate("")
	tmpl.ResultMapping.Fields = []string{"status", "id"}

	items := f.FormatRows(tmpl, []map[string]interface{}{
		{"status": "shipped", "id": 7, "total": 42.5},
	}, 0.5, nil)

	require.Len(t, items, 1)
	assert.Equal(t, "status: shipped, id: 7", items[0].Content)
}

func TestFormatRows_Metadata(t *testing.T) {
	f := NewFormatter()
	params := map[string]extractor.Value{
		"customer_name": {Value: "%Maria%", Provenance: extractor.ProvenanceExtracted},
		"limit":         {Value: int64(10), Provenance: extractor.ProvenanceDefault},
	}

	items := f.FormatRows(orderTemplate("x"), []map[string]interface{}{{"a": 1}}, 0.87, params)
	require.Len(t, items, 1)

	meta := items[0].Metadata
	assert.Equal(t, "find_orders", meta["template_id"])
	assert.Equal(t, 0.87, meta["similarity"])
	assert.Equal(t, 1, meta["row_count"])

	paramMeta := meta["parameters"].(map[string]interface{})
	limit := paramMeta["limit"].(map[string]interface{})
	assert.Equal(t, "default", limit["provenance"])
}

func TestFormatEmpty(t *testing.T) {
	f := NewFormatter()

	items := f.FormatEmpty(orderTemplate("x"), 0.8, nil)
	require.Len(t, items, 1)
	assert.Equal(t, "No orders matched your question.", items[0].Content)
	assert.Equal(t, 0, items[0].Metadata["row_count"])
}

func TestFormatEmpty_DefaultMessage(t *testing.T) {
	f := NewFormatter()
	tmpl := &template.Template{ID: "t"}

	items := f.FormatEmpty(tmpl, 0.8, nil)
	require.Len(t, items, 1)
	assert.Equal(t, "No results were found for this query.", items[0].Content)
}
