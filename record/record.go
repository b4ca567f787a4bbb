// Package record - aggregates post-processed detections into per-image records.
package record

import (
	"time"

	"github.com/pkg/errors"

	"github.com/nvr-ai/dropsight/models/postprocess"
)

// DetectionCounts maps every known class name to its number of detections.
type DetectionCounts map[string]int

// NewCounts returns counts with every class present at 0.
func NewCounts(classes []string) DetectionCounts {
	counts := make(DetectionCounts, len(classes))
	for _, c := range classes {
		counts[c] = 0
	}
	return counts
}

// Total returns the sum of all counts.
func (c DetectionCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// DetectionRecord is the result of running the pipeline on one image.
type DetectionRecord struct {
	ImageIdentifier string                  `json:"imageIdentifier" yaml:"imageIdentifier"`
	ImageName       string                  `json:"imageName" yaml:"imageName"`
	OwnerID         string                  `json:"ownerId,omitempty" yaml:"ownerId,omitempty"`
	CapturedAt      time.Time               `json:"capturedAt" yaml:"capturedAt"`
	ProcessedAt     time.Time               `json:"processedAt" yaml:"processedAt"`
	ImageWidth      int                     `json:"imageWidth" yaml:"imageWidth"`
	ImageHeight     int                     `json:"imageHeight" yaml:"imageHeight"`
	Detections      []postprocess.Detection `json:"detections" yaml:"detections"`
	Counts          DetectionCounts         `json:"counts" yaml:"counts"`
	DominantClass   string                  `json:"dominantClass" yaml:"dominantClass"`
	HealthStatus    int                     `json:"healthStatus" yaml:"healthStatus"`
}

// Metadata identifies the image a record is built for.
type Metadata struct {
	ImageIdentifier string
	ImageName       string
	OwnerID         string
	CapturedAt      time.Time
	ProcessedAt     time.Time
	ImageWidth      int
	ImageHeight     int
}

// Build counts detections per class and assembles the record. A detection
// list that is empty yields a valid record with all-zero counts.
//
// Arguments:
//   - classes: The ordered class names.
//   - detections: The final, post-NMS detections in pixel space.
//   - meta: Identifying metadata of the image.
//
// Returns:
//   - *DetectionRecord: The record.
//   - error: An error if classes is empty or a detection has an unknown class.
func Build(classes []string, detections []postprocess.Detection, meta Metadata) (*DetectionRecord, error) {
	if len(classes) == 0 {
		return nil, errors.New("record requires at least one class")
	}

	counts := NewCounts(classes)
	for _, d := range detections {
		if _, ok := counts[d.ClassName]; !ok {
			return nil, errors.Errorf("detection has unknown class %q", d.ClassName)
		}
		counts[d.ClassName]++
	}

	dets := make([]postprocess.Detection, len(detections))
	copy(dets, detections)

	name := meta.ImageName
	if name == "" {
		name = meta.ImageIdentifier
	}
	owner := meta.OwnerID
	if owner == "" {
		owner = OwnerFromImageName(name)
	}

	dominant := DominantClass(classes, counts)

	return &DetectionRecord{
		ImageIdentifier: meta.ImageIdentifier,
		ImageName:       name,
		OwnerID:         owner,
		CapturedAt:      meta.CapturedAt,
		ProcessedAt:     meta.ProcessedAt,
		ImageWidth:      meta.ImageWidth,
		ImageHeight:     meta.ImageHeight,
		Detections:      dets,
		Counts:          counts,
		DominantClass:   dominant,
		HealthStatus:    HealthStatusCode(dominant),
	}, nil
}

// DominantClass returns the class with the highest count. Ties go to the
// class listed first, so an all-zero count reports classes[0].
func DominantClass(classes []string, counts DetectionCounts) string {
	if len(classes) == 0 {
		return ""
	}

	best := classes[0]
	for _, c := range classes[1:] {
		if counts[c] > counts[best] {
			best = c
		}
	}
	return best
}

// Health status codes used by the dashboards.
const (
	HealthUnknown     = 0
	HealthCoccidiosis = 1
	HealthHealthy     = 2
	HealthNCD         = 3
	HealthSalmonella  = 4
)

// HealthStatusCode maps a dominant class to its dashboard health code.
func HealthStatusCode(class string) int {
	switch class {
	case "Coccidiosis-like":
		return HealthCoccidiosis
	case "Healthy":
		return HealthHealthy
	case "NCD-like":
		return HealthNCD
	case "Salmonella-like":
		return HealthSalmonella
	default:
		return HealthUnknown
	}
}
