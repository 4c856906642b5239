package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Citation points an answer back at the chunk text it was grounded on. Text
// is a bounded prefix of the chunk.
type Citation struct {
	Filename string `json:"filename"`
	Page     int    `json:"page"`
	Text     string `json:"text"`
}

// ChatRecord is one answered question. Records are append-only.
type ChatRecord struct {
	ID        string       `gorm:"primaryKey;size:64" json:"id"`
	Question  string       `gorm:"type:text;not null" json:"question"`
	Answer    string       `gorm:"type:text;not null" json:"answer"`
	Sources   StringList   `gorm:"type:text" json:"sources"`
	Citations CitationList `gorm:"type:text" json:"citations,omitempty"`
	Timestamp time.Time    `gorm:"column:asked_at;index" json:"timestamp"`
}

// StringList is stored as a JSON array column.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	return jsonValue(l)
}

func (l *StringList) Scan(src any) error {
	return scanJSON(src, l)
}

// CitationList is stored as a JSON array column.
type CitationList []Citation

func (l CitationList) Value() (driver.Value, error) {
	return jsonValue(l)
}

func (l *CitationList) Scan(src any) error {
	return scanJSON(src, l)
}

func jsonValue(v any) (driver.Value, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal json column failed: %w", err)
	}
	return string(b), nil
}

func scanJSON(src any, dst any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported json column type %T", src)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
