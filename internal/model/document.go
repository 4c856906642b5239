package model

import (
	"encoding/json"
	"time"
)

// Document is a registered source file. It only exists once every one of its
// chunks has been embedded, indexed and persisted.
type Document struct {
	ID          string    `gorm:"primaryKey;size:64" json:"id"`
	Filename    string    `gorm:"size:256;not null" json:"filename"`
	FileSize    int64     `gorm:"not null" json:"file_size"`
	NumChunks   int       `gorm:"not null" json:"num_chunks"`
	ChunkIDs    string    `gorm:"type:text" json:"-"` // JSON array of chunk ids in ordinal order
	StoragePath string    `gorm:"size:512" json:"storage_path,omitempty"`
	UploadDate  time.Time `gorm:"index" json:"upload_date"`
}

// ChunkIDList returns the ordered chunk ids; empty on parse error.
func (d *Document) ChunkIDList() []string {
	if d.ChunkIDs == "" {
		return nil
	}
	var ids []string
	_ = json.Unmarshal([]byte(d.ChunkIDs), &ids)
	return ids
}

// SetChunkIDs stores the ids as JSON and keeps NumChunks in step.
func (d *Document) SetChunkIDs(ids []string) {
	d.NumChunks = len(ids)
	if len(ids) == 0 {
		d.ChunkIDs = "[]"
		return
	}
	b, _ := json.Marshal(ids)
	d.ChunkIDs = string(b)
}
