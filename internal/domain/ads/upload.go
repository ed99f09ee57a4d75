package ads

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeUpload parses a manual bulk-import body into raw candidates. JSON
// (single object or array) and CSV (header-driven) are accepted; anything
// else is rejected with an explicit error, never silently dropped.
func DecodeUpload(content string) ([]RawCandidate, SourceFormat, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return nil, "", fmt.Errorf("empty import payload")
	}

	switch trimmed[0] {
	case '{', '[':
		candidates, err := decodeUploadJSON(trimmed)
		if err != nil {
			return nil, "", err
		}
		return candidates, SourceUploadJSON, nil
	}

	if looksLikeCSV(trimmed) {
		candidates, err := decodeUploadCSV(trimmed)
		if err != nil {
			return nil, "", err
		}
		return candidates, SourceUploadCSV, nil
	}

	return nil, "", fmt.Errorf("unrecognized import format: expected JSON object, JSON array, or CSV with an ad id column")
}

func decodeUploadJSON(content string) ([]RawCandidate, error) {
	if content[0] == '[' {
		var arr []RawCandidate
		if err := json.Unmarshal([]byte(content), &arr); err != nil {
			return nil, fmt.Errorf("parse JSON array: %w", err)
		}
		return arr, nil
	}

	var obj RawCandidate
	if err := json.Unmarshal([]byte(content), &obj); err != nil {
		return nil, fmt.Errorf("parse JSON object: %w", err)
	}
	return []RawCandidate{obj}, nil
}

// looksLikeCSV checks the header line for an id column and a page name
// column, case-insensitively. This is the minimum contract of a manual
// import sheet.
func looksLikeCSV(content string) bool {
	header, _, _ := strings.Cut(content, "\n")
	lower := strings.ToLower(header)
	hasID := strings.Contains(lower, "ad_library_id") || strings.Contains(lower, "id")
	hasPage := strings.Contains(lower, "page_name")
	return strings.Contains(header, ",") && hasID && hasPage
}

// decodeUploadCSV maps each row into a RawCandidate keyed by the lower-cased
// header names, so the normalizer's key chains apply unchanged.
func decodeUploadCSV(content string) ([]RawCandidate, error) {
	reader := csv.NewReader(strings.NewReader(content))
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1 // tolerate ragged rows

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse CSV: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("CSV has no data rows")
	}

	header := make([]string, len(rows[0]))
	for i, col := range rows[0] {
		header[i] = strings.ToLower(strings.TrimSpace(col))
	}

	candidates := make([]RawCandidate, 0, len(rows)-1)
	for _, row := range rows[1:] {
		candidate := make(RawCandidate, len(header))
		for i, value := range row {
			if i >= len(header) || header[i] == "" {
				continue
			}
			value = strings.TrimSpace(value)
			if value == "" {
				continue
			}
			candidate[header[i]] = value
		}
		if len(candidate) == 0 {
			continue
		}
		candidates = append(candidates, candidate)
	}

	if len(candidates) == 0 {
		return nil, fmt.Errorf("CSV has no usable rows")
	}
	return candidates, nil
}
