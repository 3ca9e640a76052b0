package avif

import (
	"fmt"
	"strings"
)

// Priority names a preset for common conversion scenarios.
type Priority int

const (
	PrioritySpeed    Priority = iota // fastest encode, lower quality
	PriorityQuality                  // best quality, slow encode
	PriorityStorage                  // smallest files
	PriorityBalanced                 // default
)

func (p Priority) String() string {
	switch p {
	case PrioritySpeed:
		return "speed"
	case PriorityQuality:
		return "quality"
	case PriorityStorage:
		return "storage"
	case PriorityBalanced:
		return "balanced"
	}
	return fmt.Sprintf("Priority(%d)", int(p))
}

// ParsePriority parses a preset name, case-insensitively.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "speed":
		return PrioritySpeed, nil
	case "quality":
		return PriorityQuality, nil
	case "storage":
		return PriorityStorage, nil
	case "balanced", "":
		return PriorityBalanced, nil
	}
	return 0, &ParamError{Field: "priority", Value: s, Rule: "one of speed, quality, storage, balanced"}
}

// Priorities lists every preset in declaration order.
func Priorities() []Priority {
	return []Priority{PrioritySpeed, PriorityQuality, PriorityStorage, PriorityBalanced}
}

// FromPriority returns the fixed preset for p. No preset sets a size target.
// Values outside the enum resolve to the balanced preset.
func FromPriority(p Priority) EncodingOptions {
	o := DefaultOptions()
	switch p {
	case PrioritySpeed:
		o.Quality = 70
		o.Speed = 10
		o.Subsample = YUV420
		o.AlphaQuality = 75
		o.PreserveMetadata = false
		o.MaxDimension = Int(1920)
	case PriorityQuality:
		o.Quality = 95
		o.Speed = 2
		o.Subsample = YUV444
		o.AlphaQuality = 98
		o.PreserveMetadata = true
		o.MaxDimension = nil
	case PriorityStorage:
		o.Quality = 65
		o.Speed = 8
		o.Subsample = YUV420
		o.AlphaQuality = 70
		o.PreserveMetadata = false
		o.MaxDimension = Int(1280)
	default:
		o.Quality = 80
		o.Speed = 6
		o.Subsample = YUV420
		o.AlphaQuality = 85
		o.PreserveMetadata = false
		o.MaxDimension = Int(2048)
	}
	return o
}
