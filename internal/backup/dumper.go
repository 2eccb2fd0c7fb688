package backup

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// maxSpillLine bounds a single serialized document row when re-reading the
// spill file.
const maxSpillLine = 16 * 1024 * 1024

// Dumper exports every document of a collection to a CSV file. Documents
// stream through a temporary JSON-lines spill file while the union of field
// names accumulates, so the final header covers fields that only appear in
// later documents and peak memory stays bounded by one document.
type Dumper struct {
	logger zerolog.Logger
}

func NewDumper(logger zerolog.Logger) *Dumper {
	return &Dumper{logger: logger.With().Str("component", "collection-dumper").Logger()}
}

// DumpCollection drains the cursor into <dir>/<name>.csv and returns the
// number of documents written. An empty collection writes nothing and
// returns 0. The cursor is closed in all cases.
func (d *Dumper) DumpCollection(ctx context.Context, cur Cursor, dir, name string) (int, error) {
	defer cur.Close(ctx)

	spillPath := filepath.Join(dir, name+".rows.tmp")
	spill, err := os.Create(spillPath)
	if err != nil {
		return 0, fmt.Errorf("create spill file for %s: %w", name, err)
	}
	defer os.Remove(spillPath)

	fields := make(map[string]struct{})
	rows := 0

	enc := json.NewEncoder(spill)
	for cur.Next(ctx) {
		var doc bson.M
		if err := cur.Decode(&doc); err != nil {
			spill.Close()
			return 0, fmt.Errorf("decode document in %s: %w", name, err)
		}

		row := transformDocument(doc)
		for field := range row {
			fields[field] = struct{}{}
		}

		if err := enc.Encode(row); err != nil {
			spill.Close()
			return 0, fmt.Errorf("spill document in %s: %w", name, err)
		}
		rows++
	}
	if err := cur.Err(); err != nil {
		spill.Close()
		return 0, fmt.Errorf("iterate %s: %w", name, err)
	}
	if err := spill.Close(); err != nil {
		return 0, fmt.Errorf("flush spill file for %s: %w", name, err)
	}

	if rows == 0 {
		d.logger.Info().Str("collection", name).Msg("collection is empty, skipping")
		return 0, nil
	}

	if err := d.renderCSV(spillPath, filepath.Join(dir, name+".csv"), sortedFields(fields)); err != nil {
		return 0, err
	}

	d.logger.Info().Str("collection", name).Int("documents", rows).Msg("collection dumped")
	return rows, nil
}

// renderCSV streams the spill file back out as CSV with the complete header.
func (d *Dumper) renderCSV(spillPath, csvPath string, header []string) error {
	in, err := os.Open(spillPath)
	if err != nil {
		return fmt.Errorf("reopen spill file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}

	w := csv.NewWriter(out)
	if err := w.Write(header); err != nil {
		out.Close()
		return fmt.Errorf("write csv header: %w", err)
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), maxSpillLine)
	record := make([]string, len(header))
	for scanner.Scan() {
		var row map[string]string
		if err := json.Unmarshal(scanner.Bytes(), &row); err != nil {
			out.Close()
			return fmt.Errorf("read spilled row: %w", err)
		}
		for i, field := range header {
			record[i] = row[field]
		}
		if err := w.Write(record); err != nil {
			out.Close()
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		out.Close()
		return fmt.Errorf("scan spill file: %w", err)
	}

	w.Flush()
	if err := w.Error(); err != nil {
		out.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	return out.Close()
}

// transformDocument flattens a document to CSV-ready string values:
// object ids become hex, timestamps become RFC 3339, arrays join their
// transformed elements with "; ", and nested objects serialize as JSON.
func transformDocument(doc bson.M) map[string]string {
	row := make(map[string]string, len(doc))
	for key, value := range doc {
		row[key] = flattenValue(value)
	}
	return row
}

func flattenValue(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return v.Time().UTC().Format(time.RFC3339)
	case time.Time:
		return v.UTC().Format(time.RFC3339)
	case primitive.A:
		return joinArray(v)
	case []interface{}:
		return joinArray(v)
	case bson.M:
		return marshalNested(map[string]interface{}(v))
	case map[string]interface{}:
		return marshalNested(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func joinArray(items []interface{}) string {
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = flattenValue(item)
	}
	return strings.Join(parts, "; ")
}

func marshalNested(v map[string]interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func sortedFields(set map[string]struct{}) []string {
	fields := make([]string, 0, len(set))
	for f := range set {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}
