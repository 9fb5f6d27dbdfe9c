package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"nhbvault/indexer"
)

// Formats understood by Events.
const (
	FormatCSV     = "csv"
	FormatJSONL   = "jsonl"
	FormatParquet = "parquet"
)

var csvHeader = []string{"sequence", "id", "type", "account", "amount", "usd_value", "created_at", "attributes"}

// Events renders journal records in the requested format and returns the
// payload, its content type and a SHA-256 checksum of the payload.
func Events(format string, records []indexer.Record) ([]byte, string, string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatCSV:
		data, sum, err := EventsCSV(records)
		return data, "text/csv", sum, err
	case FormatJSONL:
		data, sum, err := EventsJSONL(records)
		return data, "application/x-ndjson", sum, err
	case FormatParquet:
		data, sum, err := EventsParquet(records)
		return data, "application/vnd.apache.parquet", sum, err
	default:
		return nil, "", "", fmt.Errorf("exports: unsupported format %q", format)
	}
}

// EventsCSV builds a CSV export of the supplied records. Attributes are
// flattened to sorted key=value pairs joined by ';'.
func EventsCSV(records []indexer.Record) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	if err := writer.Write(csvHeader); err != nil {
		return nil, "", err
	}
	for _, record := range records {
		row := []string{
			fmt.Sprintf("%d", record.Sequence),
			record.ID.String(),
			record.Type,
			record.Account,
			record.Amount,
			record.USDValue,
			record.CreatedAt.UTC().Format(time.RFC3339Nano),
			flattenAttributes(record.AttributeMap()),
		}
		if err := writer.Write(row); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	return data, checksum(data), nil
}

// EventsJSONL builds a JSON Lines export of the supplied records.
func EventsJSONL(records []indexer.Record) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	for _, record := range records {
		payload := map[string]interface{}{
			"sequence":   record.Sequence,
			"id":         record.ID.String(),
			"type":       record.Type,
			"account":    record.Account,
			"amount":     record.Amount,
			"usd_value":  record.USDValue,
			"created_at": record.CreatedAt.UTC().Format(time.RFC3339Nano),
			"attributes": record.AttributeMap(),
		}
		if err := encoder.Encode(payload); err != nil {
			return nil, "", err
		}
	}
	data := buffer.Bytes()
	return data, checksum(data), nil
}

func flattenAttributes(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+attrs[k])
	}
	return strings.Join(parts, ";")
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
