// Package export encodes conversation snapshots for download or archiving.
package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"

	"cs_chatbot/pkg/conversation"
)

// Header is the CSV header row.
var Header = []string{"role", "content", "timestamp"}

// Record is the flat, serializable form of a turn.
type Record struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// Snapshot holds both encodings of one transcript.
type Snapshot struct {
	CSV  []byte
	JSON []byte
}

// Records flattens turns in order.
func Records(turns []conversation.Turn) []Record {
	out := make([]Record, 0, len(turns))
	for _, t := range turns {
		out = append(out, Record{
			Role:      string(t.Role),
			Content:   t.Content,
			Timestamp: t.FormatTimestamp(),
		})
	}
	return out
}

// CSV encodes turns as UTF-8 CSV with a role,content,timestamp header.
func CSV(turns []conversation.Turn) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(Header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range Records(turns) {
		if err := w.Write([]string{r.Role, r.Content, r.Timestamp}); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// JSON encodes turns as an indented array of records. Non-ASCII text and
// HTML-sensitive characters are written as-is.
func JSON(turns []conversation.Turn) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(Records(turns)); err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// Build encodes turns in both formats.
func Build(turns []conversation.Turn) (Snapshot, error) {
	csvData, err := CSV(turns)
	if err != nil {
		return Snapshot{}, err
	}
	jsonData, err := JSON(turns)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{CSV: csvData, JSON: jsonData}, nil
}

// ParseCSV decodes a CSV export back into turns.
func ParseCSV(data []byte) ([]conversation.Turn, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = len(Header)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("read csv: missing header")
	}
	for i, name := range Header {
		if rows[0][i] != name {
			return nil, fmt.Errorf("read csv: unexpected header %v", rows[0])
		}
	}

	turns := make([]conversation.Turn, 0, len(rows)-1)
	for i, row := range rows[1:] {
		role, err := conversation.ParseRole(row[0])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		ts, err := conversation.ParseTimestamp(row[2])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		turns = append(turns, conversation.Turn{Role: role, Content: row[1], Timestamp: ts})
	}
	return turns, nil
}
