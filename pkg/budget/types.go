package budget

import (
	"errors"
	"fmt"
)

// Resource is a kind of consumption a stage is bounded on.
type Resource string

const (
	BytesRead    Resource = "bytes_read"
	BytesScanned Resource = "bytes_scanned"
	Depth        Resource = "depth"
	Members      Resource = "members"
)

// Resources lists every resource kind in a fixed order.
var Resources = []Resource{BytesRead, BytesScanned, Depth, Members}

// ErrBoundExceeded is wrapped by every *BoundExceededError.
var ErrBoundExceeded = errors.New("bound exceeded")

// ErrInvalidCharge indicates a negative or unknown charge.
var ErrInvalidCharge = errors.New("invalid charge")

// Bounds are the ceilings of one stage. All values must be positive.
type Bounds struct {
	// MaxReadBytes caps bytes read from the artifact.
	MaxReadBytes int64

	// MaxScanBytes caps bytes examined by probes (including decoded data).
	MaxScanBytes int64

	// MaxDepth caps container nesting depth.
	MaxDepth int64

	// MaxMembers caps the number of container members visited.
	MaxMembers int64
}

// Limit returns the ceiling for r.
func (b Bounds) Limit(r Resource) int64 {
	switch r {
	case BytesRead:
		return b.MaxReadBytes
	case BytesScanned:
		return b.MaxScanBytes
	case Depth:
		return b.MaxDepth
	case Members:
		return b.MaxMembers
	default:
		return 0
	}
}

// Usage is a consumption (or allowance) per resource.
type Usage struct {
	BytesRead    int64 `json:"bytes_read"`
	BytesScanned int64 `json:"bytes_scanned"`
	Depth        int64 `json:"depth"`
	Members      int64 `json:"members"`
}

// Get returns the amount for r.
func (u Usage) Get(r Resource) int64 {
	switch r {
	case BytesRead:
		return u.BytesRead
	case BytesScanned:
		return u.BytesScanned
	case Depth:
		return u.Depth
	case Members:
		return u.Members
	default:
		return 0
	}
}

func (u *Usage) set(r Resource, v int64) {
	switch r {
	case BytesRead:
		u.BytesRead = v
	case BytesScanned:
		u.BytesScanned = v
	case Depth:
		u.Depth = v
	case Members:
		u.Members = v
	}
}

// Merge combines two usages: byte and member counts add up, depth keeps
// the high-water mark.
func (u Usage) Merge(other Usage) Usage {
	return Usage{
		BytesRead:    u.BytesRead + other.BytesRead,
		BytesScanned: u.BytesScanned + other.BytesScanned,
		Depth:        max(u.Depth, other.Depth),
		Members:      u.Members + other.Members,
	}
}

// Status is a point-in-time view of a tracker.
type Status struct {
	Bounds   Bounds     `json:"-"`
	Usage    Usage      `json:"usage"`
	Exceeded []Resource `json:"exceeded,omitempty"`
}

// BoundExceededError reports that a charge pushed a resource past its ceiling.
type BoundExceededError struct {
	Resource Resource
	Limit    int64
	Used     int64
}

// Error returns the error message.
func (e *BoundExceededError) Error() string {
	return fmt.Sprintf("%s bound exceeded: used %d of %d", e.Resource, e.Used, e.Limit)
}

// Unwrap returns ErrBoundExceeded.
func (e *BoundExceededError) Unwrap() error {
	return ErrBoundExceeded
}

// Bounds converts an allowance into ceilings for a child tracker.
func (u Usage) Bounds() Bounds {
	return Bounds{
		MaxReadBytes: u.BytesRead,
		MaxScanBytes: u.BytesScanned,
		MaxDepth:     u.Depth,
		MaxMembers:   u.Members,
	}
}
