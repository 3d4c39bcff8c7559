package types

import (
	"io"
	"time"
)

// Metadata is one catalog record as exchanged with an adapter.
type Metadata struct {
	ID               string    `json:"id"`
	Type             string    `json:"type"`
	Raw              []byte    `json:"raw,omitempty"`
	MetadataModified time.Time `json:"metadata_modified"`
	MetadataSize     int64     `json:"metadata_size"`
	Deleted          bool      `json:"deleted"`

	ResourceURI      string    `json:"resource_uri,omitempty"`
	ResourceSize     int64     `json:"resource_size,omitempty"`
	ResourceModified time.Time `json:"resource_modified,omitempty"`

	// Source is the system name of the site the record originated from.
	Source  string   `json:"source,omitempty"`
	Tags    []string `json:"tags,omitempty"`
	Lineage []string `json:"lineage,omitempty"`
}

// HasResource reports whether the record references a binary resource.
func (m Metadata) HasResource() bool {
	return m.ResourceURI != ""
}

// Resource is a binary payload together with the record describing it.
// Content must be closed by whoever consumes it.
type Resource struct {
	ID       string        `json:"id"`
	Name     string        `json:"name"`
	URI      string        `json:"uri"`
	MimeType string        `json:"mime_type"`
	Size     int64         `json:"size"`
	Modified time.Time     `json:"modified"`
	Content  io.ReadCloser `json:"-"`
	Metadata Metadata      `json:"metadata"`
}

// Close releases the resource content, if any.
func (r *Resource) Close() error {
	if r == nil || r.Content == nil {
		return nil
	}
	return r.Content.Close()
}

// Watermark returns the latest modification time it is safe to resume after
// once the first done records of mds, sorted by MetadataModified, have been
// handled. Handled records tied with the first unhandled one are held back so
// that a strict modified-after query returns the whole tie again. The zero
// time is returned when nothing may be skipped.
func Watermark(mds []Metadata, done int) time.Time {
	if done > len(mds) {
		done = len(mds)
	}
	var mark time.Time
	for _, md := range mds[:done] {
		if done < len(mds) && !md.MetadataModified.Before(mds[done].MetadataModified) {
			break
		}
		if md.MetadataModified.After(mark) {
			mark = md.MetadataModified
		}
	}
	return mark
}
