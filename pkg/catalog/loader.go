package catalog

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"unicode/utf16"
)

// Load reads a catalog file. Files exported from other tooling sometimes
// carry a UTF-8 or UTF-16 byte-order mark, so decoding is BOM-tolerant.
func Load(path string) (Catalog, error) {
	var cat Catalog
	if err := decodeJSONFile(path, &cat); err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return cat, nil
}

// LoadDSNs reads the db_id -> connection-string mapping. Keys are
// lower-cased so DSN lookups match the catalog's case-insensitive database
// identifiers.
func LoadDSNs(path string) (map[string]string, error) {
	var raw map[string]string
	if err := decodeJSONFile(path, &raw); err != nil {
		return nil, fmt.Errorf("load DSNs %s: %w", path, err)
	}
	dsns := make(map[string]string, len(raw))
	for id, dsn := range raw {
		dsns[strings.ToLower(id)] = dsn
	}
	return dsns, nil
}

// Save writes a catalog as indented UTF-8 JSON, the format Load accepts.
func Save(path string, cat Catalog) error {
	data, err := json.MarshalIndent(cat, "", "  ")
	if err != nil {
		return fmt.Errorf("encode catalog: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("save catalog %s: %w", path, err)
	}
	return nil
}

// decodeJSONFile decodes JSON from a file that may be UTF-8 (with or without
// BOM) or UTF-16 in either byte order.
func decodeJSONFile(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(normalizeToUTF8(data), v)
}

func normalizeToUTF8(data []byte) []byte {
	switch {
	case bytes.HasPrefix(data, []byte{0xEF, 0xBB, 0xBF}):
		return data[3:]
	case bytes.HasPrefix(data, []byte{0xFF, 0xFE}):
		return decodeUTF16(data[2:], binary.LittleEndian)
	case bytes.HasPrefix(data, []byte{0xFE, 0xFF}):
		return decodeUTF16(data[2:], binary.BigEndian)
	default:
		return data
	}
}

func decodeUTF16(data []byte, order binary.ByteOrder) []byte {
	if len(data)%2 != 0 {
		data = data[:len(data)-1]
	}
	units := make([]uint16, 0, len(data)/2)
	for i := 0; i+1 < len(data); i += 2 {
		units = append(units, order.Uint16(data[i:]))
	}
	return []byte(string(utf16.Decode(units)))
}
