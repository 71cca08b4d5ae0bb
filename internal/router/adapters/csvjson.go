package adapters

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/af-corp/protobridge/internal/config"
	"github.com/af-corp/protobridge/internal/types"
)

// CSVToJSON converts delimited text to a JSON array of objects and back.
//
// Adapt takes headers from configuration or, when none are configured, from
// the first record. Short records yield "" for missing columns; surplus
// columns are dropped. Reverse writes a header line followed by one line per
// object, without a trailing newline.
type CSVToJSON struct {
	edge
	delimiter rune
	headers   []string
}

func NewCSVToJSON(cfg config.AdapterConfig) (*CSVToJSON, error) {
	a := &CSVToJSON{
		edge:      newEdge(CSV, JSON, 0.75, cfg),
		delimiter: ',',
		headers:   cfg.Headers,
	}
	if cfg.Delimiter != "" {
		r, size := utf8.DecodeRuneInString(cfg.Delimiter)
		if size != len(cfg.Delimiter) || r == '"' || r == '\r' || r == '\n' {
			return nil, fmt.Errorf("csv-json: invalid delimiter %q", cfg.Delimiter)
		}
		a.delimiter = r
	}
	return a, nil
}

func (a *CSVToJSON) Adapt(_ context.Context, data any, actx *types.AdapterContext) (any, error) {
	text, err := textPayload(data)
	if err != nil {
		return nil, err
	}
	text = strings.TrimSpace(text)
	rows := []any{}
	if text == "" {
		return applyHandler(actx, "csv-json", rows)
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = a.delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = !actx.IsStrict()

	headers := a.headers
	if len(headers) == 0 {
		first, err := r.Read()
		if err != nil {
			return nil, fmt.Errorf("read csv header: %w", err)
		}
		headers = first
	}

	for {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		row := make(map[string]any, len(headers))
		for i, h := range headers {
			if i < len(record) {
				row[h] = record[i]
			} else {
				row[h] = ""
			}
		}
		rows = append(rows, row)
	}
	return applyHandler(actx, "csv-json", rows)
}

func (a *CSVToJSON) Reverse(_ context.Context, data any, actx *types.AdapterContext) (any, error) {
	value, err := normalizeJSON(data)
	if err != nil {
		return nil, err
	}
	items, ok := value.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: want array of objects, got %T", ErrUnsupportedPayload, data)
	}
	if len(items) == 0 {
		return applyHandler(actx, "csv-json.reverse", "")
	}

	rows := make([]map[string]any, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: row %d is %T, want object", ErrUnsupportedPayload, i, item)
		}
		rows = append(rows, obj)
	}

	headers := a.headers
	if len(headers) == 0 {
		headers = sortedKeys(rows[0])
	}

	var b strings.Builder
	w := csv.NewWriter(&b)
	w.Comma = a.delimiter
	if err := w.Write(headers); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	record := make([]string, len(headers))
	for _, row := range rows {
		for i, h := range headers {
			record[i] = scalarText(row[h])
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("write csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return applyHandler(actx, "csv-json.reverse", strings.TrimSuffix(b.String(), "\n"))
}
