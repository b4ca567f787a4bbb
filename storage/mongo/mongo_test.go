package mongo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/nvr-ai/dropsight/models/model"
	"github.com/nvr-ai/dropsight/models/postprocess"
	"github.com/nvr-ai/dropsight/record"
)

func sampleRecord(t *testing.T) *record.DetectionRecord {
	t.Helper()
	rec, err := record.Build(model.DroppingsClassNames, []postprocess.Detection{
		{XPos: 12, YPos: 8, Width: 40, Height: 30, Confidence: 0.75, ClassID: 3, ClassName: "Salmonella-like"},
	}, record.Metadata{
		ImageIdentifier: "house(U3).jpg",
		CapturedAt:      time.Date(2024, 4, 30, 18, 0, 0, 0, time.UTC),
		ProcessedAt:     time.Date(2024, 5, 1, 6, 15, 0, 0, time.UTC),
		ImageWidth:      1280,
		ImageHeight:     960,
	})
	require.NoError(t, err)
	return rec
}

func TestToDocument(t *testing.T) {
	doc := ToDocument(sampleRecord(t))

	assert.Equal(t, "house(U3).jpg", doc.ID)
	assert.Equal(t, "house(U3)_processed.jpg", doc.ImageName)
	assert.Equal(t, "U3", doc.UserID)
	assert.Equal(t, "Salmonella-like", doc.HighestDetectionClass)
	assert.Equal(t, record.HealthSalmonella, doc.HealthStatus)
	assert.Equal(t, map[string]int{
		"Coccidiosis-like": 0,
		"Healthy":          0,
		"NCD-like":         0,
		"Salmonella-like":  1,
	}, doc.DetectionsCount)
	require.Len(t, doc.Detections, 1)
	assert.Equal(t, float32(40), doc.Detections[0].Width)
}

func TestDocumentRoundTrip(t *testing.T) {
	rec := sampleRecord(t)

	raw, err := bson.Marshal(ToDocument(rec))
	require.NoError(t, err)

	fields := bson.M{}
	require.NoError(t, bson.Unmarshal(raw, &fields))
	for _, key := range []string{"_id", "imageName", "UserID", "date", "imageDateTaken", "detectionsCount", "highestDetectionClass", "detections"} {
		assert.Contains(t, fields, key)
	}

	var doc Document
	require.NoError(t, bson.Unmarshal(raw, &doc))
	got := FromDocument(doc)

	assert.Equal(t, rec.ImageIdentifier, got.ImageIdentifier)
	assert.Equal(t, rec.ImageName, got.ImageName)
	assert.Equal(t, rec.Counts, got.Counts)
	assert.Equal(t, rec.Detections, got.Detections)
	assert.True(t, rec.ProcessedAt.Equal(got.ProcessedAt))
	assert.True(t, rec.CapturedAt.Equal(got.CapturedAt))
}

func TestFromDocument_Defaults(t *testing.T) {
	got := FromDocument(Document{ID: "legacy.jpg"})
	assert.Equal(t, "legacy.jpg", got.ImageName)
	assert.Empty(t, got.Detections)
	assert.NotNil(t, got.Counts)
}
