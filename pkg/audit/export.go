package audit

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// Export writes every entry matching filter to w in format, newest first.
// filter.Limit and filter.Offset are ignored; the store is paged through in
// batches of MaxQueryLimit.
func Export(ctx context.Context, store Store, filter OrgHistoryFilter, format ExportFormat, w io.Writer) error {
	if !format.Valid() {
		return fmt.Errorf("unsupported export format: %s", format)
	}

	enc, err := newEntryEncoder(format, w)
	if err != nil {
		return err
	}

	filter.Limit = MaxQueryLimit
	filter.Offset = 0
	for {
		page, err := store.OrgHistory(ctx, filter)
		if err != nil {
			return fmt.Errorf("failed to read audit history: %w", err)
		}
		for _, entry := range page.Entries {
			if err := enc.encode(entry); err != nil {
				return err
			}
		}
		filter.Offset += len(page.Entries)
		if len(page.Entries) < MaxQueryLimit || int64(filter.Offset) >= page.Total {
			break
		}
	}

	return enc.close()
}

// WriteNDJSON writes entries as newline-delimited JSON
func WriteNDJSON(w io.Writer, entries []*Entry) error {
	encoder := json.NewEncoder(w)
	for _, entry := range entries {
		if err := encoder.Encode(entry); err != nil {
			return fmt.Errorf("failed to encode entry: %w", err)
		}
	}
	return nil
}

type entryEncoder struct {
	format ExportFormat
	w      io.Writer
	json   *json.Encoder
	csv    *csv.Writer
	count  int
}

var csvHeader = []string{
	"ID",
	"CreatedAt",
	"OrgID",
	"UserID",
	"UserName",
	"Action",
	"EntityType",
	"EntityID",
	"EntityName",
	"ChangedFields",
	"IPAddress",
	"UserAgent",
	"RequestID",
	"Reason",
	"DurationMS",
}

func newEntryEncoder(format ExportFormat, w io.Writer) (*entryEncoder, error) {
	enc := &entryEncoder{format: format, w: w}
	switch format {
	case ExportFormatCSV:
		enc.csv = csv.NewWriter(w)
		if err := enc.csv.Write(csvHeader); err != nil {
			return nil, fmt.Errorf("failed to write CSV header: %w", err)
		}
	case ExportFormatJSON:
		if _, err := io.WriteString(w, "["); err != nil {
			return nil, fmt.Errorf("failed to write JSON array: %w", err)
		}
	default:
		enc.json = json.NewEncoder(w)
	}
	return enc, nil
}

func (e *entryEncoder) encode(entry *Entry) error {
	defer func() { e.count++ }()

	switch e.format {
	case ExportFormatCSV:
		if err := e.csv.Write(csvRow(entry)); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
		return nil
	case ExportFormatJSON:
		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to encode entry: %w", err)
		}
		if e.count > 0 {
			if _, err := io.WriteString(e.w, ","); err != nil {
				return fmt.Errorf("failed to write JSON array: %w", err)
			}
		}
		if _, err := e.w.Write(data); err != nil {
			return fmt.Errorf("failed to write entry: %w", err)
		}
		return nil
	default:
		if err := e.json.Encode(entry); err != nil {
			return fmt.Errorf("failed to encode entry: %w", err)
		}
		return nil
	}
}

func (e *entryEncoder) close() error {
	switch e.format {
	case ExportFormatCSV:
		e.csv.Flush()
		if err := e.csv.Error(); err != nil {
			return fmt.Errorf("CSV writer error: %w", err)
		}
	case ExportFormatJSON:
		if _, err := io.WriteString(e.w, "]\n"); err != nil {
			return fmt.Errorf("failed to write JSON array: %w", err)
		}
	}
	return nil
}

func csvRow(entry *Entry) []string {
	var fields string
	if entry.Changes != nil {
		fields = strings.Join(entry.Changes.Fields, ";")
	}
	var duration string
	if entry.Metadata.DurationMS != nil {
		duration = strconv.FormatInt(*entry.Metadata.DurationMS, 10)
	}

	return []string{
		entry.ID,
		entry.CreatedAt.UTC().Format(time.RFC3339),
		entry.OrgID,
		entry.UserID,
		entry.UserName,
		string(entry.Action),
		string(entry.EntityType),
		entry.EntityID,
		entry.EntityName,
		fields,
		entry.Metadata.IPAddress,
		entry.Metadata.UserAgent,
		entry.Metadata.RequestID,
		entry.Metadata.Reason,
		duration,
	}
}

// ContentType returns the HTTP content type of an export format
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportFormatCSV:
		return "text/csv"
	case ExportFormatNDJSON:
		return "application/x-ndjson"
	default:
		return "application/json"
	}
}
