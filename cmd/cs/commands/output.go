package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/beevik/etree"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/cloudrift-io/cloudstack-client/pkg/cloudstack"
)

// writeResult renders an invocation result in the selected output format.
func writeResult(w io.Writer, format string, result *cloudstack.Result) error {
	if result.XML != nil {
		return writeXML(w, result.XML)
	}

	var data any
	if result.Items != nil {
		data = result.Items
	} else {
		data = result.Payload
	}

	switch format {
	case "yaml":
		encoder := yaml.NewEncoder(w)

		return encoder.Encode(data)
	case "table":
		return writeTable(w, result)
	default:
		output, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}

		_, err = fmt.Fprintln(w, string(output))

		return err
	}
}

func writeXML(w io.Writer, root *etree.Element) error {
	doc := etree.NewDocument()
	doc.SetRoot(root.Copy())
	doc.Indent(2)

	if _, err := doc.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write XML: %w", err)
	}

	return nil
}

func writeTable(w io.Writer, result *cloudstack.Result) error {
	if result.Items != nil {
		return writeItemsTable(w, result.Items)
	}

	table := tablewriter.NewWriter(w)
	table.Header("Property", "Value")

	for _, key := range sortedKeys(result.Payload) {
		_ = table.Append(key, cellValue(result.Payload[key]))
	}

	_ = table.Render()

	return nil
}

// writeItemsTable renders a list of objects with one column per key of the
// first item.
func writeItemsTable(w io.Writer, items []any) error {
	var columns []string

	if len(items) > 0 {
		if first, ok := items[0].(map[string]any); ok {
			columns = sortedKeys(first)
		}
	}

	if columns == nil {
		for _, item := range items {
			fmt.Fprintln(w, cellValue(item))
		}

		return nil
	}

	table := tablewriter.NewWriter(w)

	header := make([]any, len(columns))
	for i, column := range columns {
		header[i] = column
	}

	table.Header(header...)

	for _, item := range items {
		row, ok := item.(map[string]any)
		if !ok {
			continue
		}

		cells := make([]any, len(columns))
		for i, column := range columns {
			cells[i] = cellValue(row[column])
		}

		_ = table.Append(cells...)
	}

	_ = table.Render()

	return nil
}

// cellValue flattens a payload value to one table cell. Nested structures
// render as compact JSON.
func cellValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return trimFloat(v)
	case bool:
		return fmt.Sprintf("%t", v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}

		return string(encoded)
	}
}

func trimFloat(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}

	return fmt.Sprintf("%g", v)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}
