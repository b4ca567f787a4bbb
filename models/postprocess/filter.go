package postprocess

// FilterByConfidence keeps boxes whose confidence is strictly greater than
// threshold, preserving their order.
//
// Arguments:
//   - boxes: The decoded boxes.
//   - threshold: The minimum (exclusive) confidence.
//
// Returns:
//   - []ScoredBox: The retained boxes. Never nil.
func FilterByConfidence(boxes []ScoredBox, threshold float32) []ScoredBox {
	kept := make([]ScoredBox, 0, len(boxes))
	for _, b := range boxes {
		if b.Confidence > threshold {
			kept = append(kept, b)
		}
	}

	return kept
}
