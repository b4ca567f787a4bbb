// Package postprocess - provides Non-Maximum Suppression for detection results.
package postprocess

import (
	"sort"

	"github.com/nvr-ai/dropsight/images"
)

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold  float32 `json:"iouThreshold" yaml:"iouThreshold"`   // Overlap threshold for suppression.
	ClassAware    bool    `json:"classAware" yaml:"classAware"`       // If true, suppress only within same class.
	MaxDetections int     `json:"maxDetections" yaml:"maxDetections"` // Upper bound on survivors, 0 for unbounded.
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// Detections are stable-sorted by descending confidence. The highest remaining
// detection is kept and every remaining detection whose IoU with it is at
// least config.IoUThreshold is suppressed, until no candidates remain or
// config.MaxDetections survivors have been picked. Suppression crosses class
// boundaries unless config.ClassAware is set.
//
// Arguments:
//   - detections: Pixel-space detections, in any order.
//   - config: NMS configuration.
//
// Returns:
//   - Filtered slice of detections ordered by descending confidence. Never nil.
func ApplyGreedyNMS(detections []Detection, config NMSConfig) []Detection {
	n := len(detections)
	if n == 0 {
		return []Detection{}
	}

	sorted := make([]Detection, n)
	copy(sorted, detections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	rects := make([]images.Rect, n)
	for i := range sorted {
		rects[i] = sorted[i].Rect()
	}

	filtered := make([]Detection, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}
		if config.MaxDetections > 0 && len(filtered) >= config.MaxDetections {
			break
		}

		anchor := sorted[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && anchor.ClassID != sorted[j].ClassID {
				continue
			}

			// Suppress if IoU reaches the threshold.
			if images.CalculateIoU(rects[i], rects[j]) >= config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
