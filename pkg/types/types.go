// Package types defines the domain model shared by the replicator: sites,
// filters, watermarks, replication history and the descriptions of queued
// work.
package types

import (
	"time"
)

// Status is the outcome recorded for one replication attempt.
type Status string

const (
	StatusSuccess        Status = "SUCCESS"         // destination accepted the change
	StatusFailure        Status = "FAILURE"         // adapter rejected or errored
	StatusConnectionLost Status = "CONNECTION_LOST" // a site went away during the attempt
	StatusPending        Status = "PENDING"         // attempt started but not finished
)

// Action is the reconciliation decision taken for one item.
type Action string

const (
	ActionCreate Action = "CREATE"
	ActionUpdate Action = "UPDATE"
	ActionDelete Action = "DELETE"
)

// Site is an independently addressable catalog node.
type Site struct {
	ID   string `json:"id" yaml:"id" db:"id"`
	Name string `json:"name" yaml:"name" db:"name"`
	URL  string `json:"url" yaml:"url" db:"url"`
	// Kind selects the adapter implementation used to talk to the site.
	Kind string `json:"kind" yaml:"kind" db:"kind"`
	// PollPeriod overrides the global polling period when non-zero.
	PollPeriod  time.Duration `json:"poll_period" yaml:"poll_period" db:"poll_period"`
	Parallelism int           `json:"parallelism" yaml:"parallelism" db:"parallelism"`
}

// Filter is a saved query scoping which items of a site get replicated.
type Filter struct {
	ID        string `json:"id" yaml:"id" db:"id"`
	SiteID    string `json:"site_id" yaml:"site_id" db:"site_id"`
	Name      string `json:"name" yaml:"name" db:"name"`
	Query     string `json:"query" yaml:"query" db:"query"`
	Priority  int    `json:"priority" yaml:"priority" db:"priority"`
	Suspended bool   `json:"suspended" yaml:"suspended" db:"suspended"`
}

// FilterIndex holds the watermark of a filter: the latest metadata
// modification time already turned into tasks.
type FilterIndex struct {
	FilterID      string    `json:"filter_id" db:"filter_id"`
	ModifiedSince time.Time `json:"modified_since" db:"modified_since"`
}

// Advance moves the watermark forward. It never moves backwards and reports
// whether the value changed.
func (fi *FilterIndex) Advance(t time.Time) bool {
	if !t.After(fi.ModifiedSince) {
		return false
	}
	fi.ModifiedSince = t
	return true
}

// ReplicationItem is one persisted history entry: the outcome of a single
// attempt to replicate an item from a source to a destination.
type ReplicationItem struct {
	ID               string    `json:"id" db:"id"`
	MetadataID       string    `json:"metadata_id" db:"metadata_id"`
	Source           string    `json:"source" db:"source"`
	Destination      string    `json:"destination" db:"destination"`
	ConfigID         string    `json:"config_id,omitempty" db:"config_id"`
	MetadataModified time.Time `json:"metadata_modified" db:"metadata_modified"`
	ResourceModified time.Time `json:"resource_modified" db:"resource_modified"`
	MetadataSize     int64     `json:"metadata_size" db:"metadata_size"`
	ResourceSize     int64     `json:"resource_size" db:"resource_size"`
	StartTime        time.Time `json:"start_time" db:"start_time"`
	DoneTime         time.Time `json:"done_time" db:"done_time"`
	Action           Action    `json:"action" db:"action"`
	Status           Status    `json:"status" db:"status"`
}

// Succeeded reports whether the attempt this entry describes succeeded.
func (ri *ReplicationItem) Succeeded() bool {
	return ri != nil && ri.Status == StatusSuccess
}

// ReplicatorConfig pairs a source and a destination site for the
// synchronous sync path.
type ReplicatorConfig struct {
	ID            string `json:"id" yaml:"id" db:"id"`
	Name          string `json:"name" yaml:"name" db:"name"`
	Source        string `json:"source" yaml:"source" db:"source"`
	Destination   string `json:"destination" yaml:"destination" db:"destination"`
	Filter        string `json:"filter" yaml:"filter" db:"filter"`
	Bidirectional bool   `json:"bidirectional" yaml:"bidirectional" db:"bidirectional"`
	Suspended     bool   `json:"suspended" yaml:"suspended" db:"suspended"`
	// LastMetadataModified is the sync watermark of the config.
	LastMetadataModified time.Time `json:"last_metadata_modified" yaml:"-" db:"last_metadata_modified"`
}
