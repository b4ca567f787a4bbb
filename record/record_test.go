package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/dropsight/models/postprocess"
)

var classes = []string{"Coccidiosis-like", "Healthy", "NCD-like", "Salmonella-like"}

func det(class string) postprocess.Detection {
	return postprocess.Detection{XPos: 1, YPos: 2, Width: 3, Height: 4, Confidence: 0.9, ClassName: class}
}

func TestNewCounts(t *testing.T) {
	counts := NewCounts(classes)
	assert.Len(t, counts, 4)
	for _, c := range classes {
		n, ok := counts[c]
		assert.True(t, ok)
		assert.Zero(t, n)
	}
	assert.Zero(t, counts.Total())
}

func TestBuild(t *testing.T) {
	captured := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	processed := captured.Add(time.Minute)

	dets := []postprocess.Detection{det("Healthy"), det("NCD-like"), det("Healthy")}
	rec, err := Build(classes, dets, Metadata{
		ImageIdentifier: "farm(U42).jpg",
		CapturedAt:      captured,
		ProcessedAt:     processed,
		ImageWidth:      1280,
		ImageHeight:     960,
	})
	require.NoError(t, err)

	assert.Equal(t, "farm(U42).jpg", rec.ImageIdentifier)
	assert.Equal(t, "farm(U42).jpg", rec.ImageName)
	assert.Equal(t, "U42", rec.OwnerID)
	assert.Equal(t, captured, rec.CapturedAt)
	assert.Equal(t, processed, rec.ProcessedAt)
	assert.Equal(t, DetectionCounts{"Coccidiosis-like": 0, "Healthy": 2, "NCD-like": 1, "Salmonella-like": 0}, rec.Counts)
	assert.Equal(t, "Healthy", rec.DominantClass)
	assert.Equal(t, HealthHealthy, rec.HealthStatus)
	assert.Equal(t, len(rec.Detections), rec.Counts.Total())

	// The record owns its detections.
	dets[0].ClassName = "mutated"
	assert.Equal(t, "Healthy", rec.Detections[0].ClassName)
}

func TestBuild_Empty(t *testing.T) {
	rec, err := Build(classes, nil, Metadata{ImageIdentifier: "empty.jpg"})
	require.NoError(t, err)

	assert.NotNil(t, rec.Detections)
	assert.Empty(t, rec.Detections)
	assert.Zero(t, rec.Counts.Total())
	assert.Len(t, rec.Counts, len(classes))
	assert.Equal(t, "Coccidiosis-like", rec.DominantClass)
	assert.Empty(t, rec.OwnerID)
}

func TestBuild_Errors(t *testing.T) {
	_, err := Build(nil, nil, Metadata{})
	assert.Error(t, err)

	_, err = Build(classes, []postprocess.Detection{det("Avian influenza")}, Metadata{})
	assert.Error(t, err)
}

func TestBuild_CountConservation(t *testing.T) {
	for n := 0; n < 50; n++ {
		dets := make([]postprocess.Detection, n)
		for i := range dets {
			dets[i] = det(classes[(i*7+n)%len(classes)])
		}
		rec, err := Build(classes, dets, Metadata{})
		require.NoError(t, err)
		assert.Equal(t, n, rec.Counts.Total())
		assert.Len(t, rec.Detections, n)
	}
}

func TestDominantClass(t *testing.T) {
	tests := []struct {
		name   string
		counts DetectionCounts
		want   string
	}{
		{"All zero", NewCounts(classes), "Coccidiosis-like"},
		{"Single winner", DetectionCounts{"Salmonella-like": 3, "Healthy": 1}, "Salmonella-like"},
		{"Tie goes to the earlier class", DetectionCounts{"Healthy": 2, "NCD-like": 2, "Salmonella-like": 1}, "Healthy"},
		{"Tie with the first class", DetectionCounts{"Coccidiosis-like": 4, "Salmonella-like": 4}, "Coccidiosis-like"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DominantClass(classes, tt.counts))
		})
	}

	assert.Empty(t, DominantClass(nil, nil))
}

func TestHealthStatusCode(t *testing.T) {
	assert.Equal(t, 1, HealthStatusCode("Coccidiosis-like"))
	assert.Equal(t, 2, HealthStatusCode("Healthy"))
	assert.Equal(t, 3, HealthStatusCode("NCD-like"))
	assert.Equal(t, 4, HealthStatusCode("Salmonella-like"))
	assert.Equal(t, 0, HealthStatusCode("unknown"))
}

func TestProcessedImageName(t *testing.T) {
	assert.Equal(t, "farm(U1)_processed.jpg", ProcessedImageName("farm(U1).jpg"))
	assert.Equal(t, "uploads/a_processed.png", ProcessedImageName("uploads/a.png"))
	assert.Equal(t, "noext_processed", ProcessedImageName("noext"))
}

func TestOwnerFromImageName(t *testing.T) {
	assert.Equal(t, "U1", OwnerFromImageName("farm(U1).jpg"))
	assert.Equal(t, "abc123", OwnerFromImageName("uploads/coop 3 (abc123) (2).jpg"))
	assert.Equal(t, "", OwnerFromImageName("farm.jpg"))
	assert.Equal(t, "", OwnerFromImageName("farm(U1.jpg"))
}

func TestSummarize(t *testing.T) {
	day1 := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 2, 17, 0, 0, 0, time.UTC)

	mk := func(ts time.Time, dets ...postprocess.Detection) *DetectionRecord {
		rec, err := Build(classes, dets, Metadata{CapturedAt: ts})
		require.NoError(t, err)
		return rec
	}

	records := []*DetectionRecord{
		mk(day2, det("NCD-like")),
		mk(day1, det("Healthy"), det("Healthy")),
		mk(day1.Add(6*time.Hour), det("Salmonella-like")),
		nil,
	}

	summary := Summarize(classes, records)
	require.Len(t, summary, 2)

	assert.Equal(t, PeriodDay, summary[0].Period)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), summary[0].Start)
	assert.Equal(t, 2, summary[0].Images)
	assert.Equal(t, 2, summary[0].Counts["Healthy"])
	assert.Equal(t, 1, summary[0].Counts["Salmonella-like"])
	assert.Equal(t, "Healthy", summary[0].DominantClass)

	assert.Equal(t, 1, summary[1].Images)
	assert.Equal(t, "NCD-like", summary[1].DominantClass)
}

func TestSummarize_MixedLocations(t *testing.T) {
	// The same calendar day read back from storage in UTC and produced
	// locally in another zone.
	zone := time.FixedZone("UTC+3", 3*3600)
	utc := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	local := time.Date(2024, 3, 1, 20, 0, 0, 0, zone)

	a, err := Build(classes, []postprocess.Detection{det("Healthy")}, Metadata{CapturedAt: utc})
	require.NoError(t, err)
	b, err := Build(classes, []postprocess.Detection{det("Healthy")}, Metadata{CapturedAt: local})
	require.NoError(t, err)

	summary := Summarize(classes, []*DetectionRecord{a, b})
	require.Len(t, summary, 1)
	assert.Equal(t, 2, summary[0].Images)
	assert.Equal(t, 2, summary[0].Counts["Healthy"])
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), summary[0].Start)
}

func TestSummarizeWeekly(t *testing.T) {
	mk := func(ts time.Time, dets ...postprocess.Detection) *DetectionRecord {
		rec, err := Build(classes, dets, Metadata{CapturedAt: ts})
		require.NoError(t, err)
		return rec
	}

	// 2024-03-04 is a Monday.
	records := []*DetectionRecord{
		mk(time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC), det("NCD-like")),
		mk(time.Date(2024, 3, 10, 23, 0, 0, 0, time.UTC), det("NCD-like"), det("Healthy")),
		mk(time.Date(2024, 3, 11, 1, 0, 0, 0, time.UTC), det("Healthy")),
		mk(time.Date(2024, 3, 3, 12, 0, 0, 0, time.UTC)),
	}

	summary := SummarizeWeekly(classes, records)
	require.Len(t, summary, 3)

	assert.Equal(t, time.Date(2024, 2, 26, 0, 0, 0, 0, time.UTC), summary[0].Start)
	assert.Equal(t, 1, summary[0].Images)

	assert.Equal(t, PeriodWeek, summary[1].Period)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), summary[1].Start)
	assert.Equal(t, 2, summary[1].Images)
	assert.Equal(t, 2, summary[1].Counts["NCD-like"])
	assert.Equal(t, "NCD-like", summary[1].DominantClass)

	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), summary[2].Start)
	assert.Equal(t, "Healthy", summary[2].DominantClass)
}
