package types

import (
	"time"
)

// Priority bounds for queued tasks. Higher values are more urgent.
const (
	MinPriority     = 0
	MaxPriority     = 9
	DefaultPriority = 5
)

// ClampPriority forces p into [MinPriority, MaxPriority].
func ClampPriority(p int) int {
	if p < MinPriority {
		return MinPriority
	}
	if p > MaxPriority {
		return MaxPriority
	}
	return p
}

// Operation is the kind of work a task asks for.
type Operation string

const (
	// OperationHarvest pulls an item from the task's site and reconciles it
	// into the local site.
	OperationHarvest Operation = "harvest"
)

// MetadataInfo describes one metadata payload carried by a task. The set of
// shapes is closed; use TaskInfo.Supported to check whether workers can
// process a given task.
type MetadataInfo interface {
	MetadataID() string
	LastModified() time.Time
	Size() int64
	Type() string

	metadataInfo()
}

// RecordInfo carries a full catalog record. It is the shape workers know how
// to reconcile.
type RecordInfo struct {
	Metadata Metadata
}

func (r RecordInfo) MetadataID() string      { return r.Metadata.ID }
func (r RecordInfo) LastModified() time.Time { return r.Metadata.MetadataModified }
func (r RecordInfo) Size() int64             { return r.Metadata.MetadataSize }
func (r RecordInfo) Type() string            { return r.Metadata.Type }
func (RecordInfo) metadataInfo()             {}

// OpaqueInfo describes a payload whose type this build does not understand.
// Tasks carrying it are handed back to the queue untouched.
type OpaqueInfo struct {
	ID           string
	PayloadType  string
	Modified     time.Time
	PayloadBytes int64
}

func (o OpaqueInfo) MetadataID() string      { return o.ID }
func (o OpaqueInfo) LastModified() time.Time { return o.Modified }
func (o OpaqueInfo) Size() int64             { return o.PayloadBytes }
func (o OpaqueInfo) Type() string            { return o.PayloadType }
func (OpaqueInfo) metadataInfo()             {}

// ResourceInfo references the binary resource of a task's item.
type ResourceInfo struct {
	URI      string
	Size     int64
	Modified time.Time
}

// TaskInfo is the immutable description of one unit of replication work.
type TaskInfo struct {
	ID           string
	Priority     int
	Operation    Operation
	LastModified time.Time
	Resource     *ResourceInfo
	Metadata     []MetadataInfo
}

// NewHarvestInfo builds the task description for a record discovered on
// site while polling a filter of the given priority.
func NewHarvestInfo(site string, priority int, md Metadata) TaskInfo {
	info := TaskInfo{
		ID:           TaskID(site, md.ID),
		Priority:     ClampPriority(priority),
		Operation:    OperationHarvest,
		LastModified: md.MetadataModified,
		Metadata:     []MetadataInfo{RecordInfo{Metadata: md}},
	}
	if md.HasResource() {
		info.Resource = &ResourceInfo{
			URI:      md.ResourceURI,
			Size:     md.ResourceSize,
			Modified: md.ResourceModified,
		}
		if md.ResourceModified.After(info.LastModified) {
			info.LastModified = md.ResourceModified
		}
	}
	return info
}

// TaskID returns the task identifier for an item of a site.
func TaskID(site, metadataID string) string {
	return site + "/" + metadataID
}

// Supported reports whether the operation and metadata shape of the task
// can be processed by a worker of this build.
func (ti TaskInfo) Supported() bool {
	if ti.Operation != OperationHarvest || len(ti.Metadata) != 1 {
		return false
	}
	_, ok := ti.Metadata[0].(RecordInfo)
	return ok
}

// Record returns the catalog record of a supported task.
func (ti TaskInfo) Record() (Metadata, bool) {
	if len(ti.Metadata) == 0 {
		return Metadata{}, false
	}
	r, ok := ti.Metadata[0].(RecordInfo)
	if !ok {
		return Metadata{}, false
	}
	return r.Metadata, true
}
