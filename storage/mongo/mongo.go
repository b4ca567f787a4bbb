// Package mongo - stores detection records as MongoDB documents, one per
// image identifier.
package mongo

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/nvr-ai/dropsight/models/postprocess"
	"github.com/nvr-ai/dropsight/record"
)

// Default namespace of the detection documents.
const (
	DefaultDatabase   = "dropsight"
	DefaultCollection = "detectedDroppings"
)

// ErrNotFound is returned by Get for an unknown identifier.
var ErrNotFound = errors.New("document not found")

// DetectionDocument is one detection inside a document.
type DetectionDocument struct {
	ClassName  string  `bson:"className"`
	ClassID    int     `bson:"classId"`
	Confidence float32 `bson:"confidence"`
	X          float32 `bson:"x"`
	Y          float32 `bson:"y"`
	Width      float32 `bson:"width"`
	Height     float32 `bson:"height"`
}

// Document is the stored form of a record. The field names match the
// dashboards that read the collection.
type Document struct {
	ID                    string              `bson:"_id"`
	ImageName             string              `bson:"imageName"`
	SourceImageName       string              `bson:"sourceImageName"`
	UserID                string              `bson:"UserID,omitempty"`
	Date                  time.Time           `bson:"date"`
	ImageDateTaken        time.Time           `bson:"imageDateTaken"`
	ImageWidth            int                 `bson:"imageWidth"`
	ImageHeight           int                 `bson:"imageHeight"`
	DetectionsCount       map[string]int      `bson:"detectionsCount"`
	HighestDetectionClass string              `bson:"highestDetectionClass"`
	HealthStatus          int                 `bson:"healthStatus"`
	Detections            []DetectionDocument `bson:"detections"`
}

// ToDocument converts a record to its stored form. imageName holds the
// name of the annotated copy.
func ToDocument(rec *record.DetectionRecord) Document {
	dets := make([]DetectionDocument, len(rec.Detections))
	for i, d := range rec.Detections {
		dets[i] = DetectionDocument{
			ClassName:  d.ClassName,
			ClassID:    d.ClassID,
			Confidence: d.Confidence,
			X:          d.XPos,
			Y:          d.YPos,
			Width:      d.Width,
			Height:     d.Height,
		}
	}

	counts := make(map[string]int, len(rec.Counts))
	for k, v := range rec.Counts {
		counts[k] = v
	}

	return Document{
		ID:                    rec.ImageIdentifier,
		ImageName:             record.ProcessedImageName(rec.ImageName),
		SourceImageName:       rec.ImageName,
		UserID:                rec.OwnerID,
		Date:                  rec.ProcessedAt,
		ImageDateTaken:        rec.CapturedAt,
		ImageWidth:            rec.ImageWidth,
		ImageHeight:           rec.ImageHeight,
		DetectionsCount:       counts,
		HighestDetectionClass: rec.DominantClass,
		HealthStatus:          rec.HealthStatus,
		Detections:            dets,
	}
}

// FromDocument converts a stored document back into a record.
func FromDocument(doc Document) *record.DetectionRecord {
	dets := make([]postprocess.Detection, len(doc.Detections))
	for i, d := range doc.Detections {
		dets[i] = postprocess.Detection{
			XPos:       d.X,
			YPos:       d.Y,
			Width:      d.Width,
			Height:     d.Height,
			Confidence: d.Confidence,
			ClassID:    d.ClassID,
			ClassName:  d.ClassName,
		}
	}

	counts := make(record.DetectionCounts, len(doc.DetectionsCount))
	for k, v := range doc.DetectionsCount {
		counts[k] = v
	}

	name := doc.SourceImageName
	if name == "" {
		name = doc.ID
	}

	return &record.DetectionRecord{
		ImageIdentifier: doc.ID,
		ImageName:       name,
		OwnerID:         doc.UserID,
		CapturedAt:      doc.ImageDateTaken,
		ProcessedAt:     doc.Date,
		ImageWidth:      doc.ImageWidth,
		ImageHeight:     doc.ImageHeight,
		Detections:      dets,
		Counts:          counts,
		DominantClass:   doc.HighestDetectionClass,
		HealthStatus:    doc.HealthStatus,
	}
}

// Sink upserts records into a MongoDB collection.
type Sink struct {
	client     *mongo.Client
	collection *mongo.Collection
	logger     *zap.Logger
}

// Connect dials uri, pings the primary and returns a sink writing to
// database.collection. Empty names fall back to the defaults.
func Connect(ctx context.Context, uri, database, collection string, logger *zap.Logger) (*Sink, error) {
	if database == "" {
		database = DefaultDatabase
	}
	if collection == "" {
		collection = DefaultCollection
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(err, "connect to mongodb")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(err, "ping mongodb")
	}

	logger.Info("connected to mongodb", zap.String("database", database), zap.String("collection", collection))

	return NewSink(client, client.Database(database).Collection(collection), logger), nil
}

// NewSink wraps an existing collection. client may be nil, in which case
// Close does not disconnect.
func NewSink(client *mongo.Client, collection *mongo.Collection, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{client: client, collection: collection, logger: logger}
}

// Save replaces the document of rec.ImageIdentifier, inserting it when
// missing.
func (s *Sink) Save(ctx context.Context, rec *record.DetectionRecord) error {
	if rec == nil || rec.ImageIdentifier == "" {
		return errors.New("record has no image identifier")
	}

	doc := ToDocument(rec)
	res, err := s.collection.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return errors.Wrapf(err, "upsert document %s", doc.ID)
	}

	s.logger.Debug("saved document",
		zap.String("id", doc.ID),
		zap.Int64("matched", res.MatchedCount),
		zap.Int64("upserted", res.UpsertedCount),
	)
	return nil
}

// Get loads the record stored for imageID, or ErrNotFound.
func (s *Sink) Get(ctx context.Context, imageID string) (*record.DetectionRecord, error) {
	var doc Document
	err := s.collection.FindOne(ctx, bson.M{"_id": imageID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrap(ErrNotFound, imageID)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load document %s", imageID)
	}
	return FromDocument(doc), nil
}

// ListByOwner returns the records uploaded by ownerID, oldest first.
func (s *Sink) ListByOwner(ctx context.Context, ownerID string) ([]*record.DetectionRecord, error) {
	cur, err := s.collection.Find(ctx, bson.M{"UserID": ownerID}, options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, errors.Wrapf(err, "list documents of %s", ownerID)
	}

	var docs []Document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(err, "decode documents")
	}

	out := make([]*record.DetectionRecord, len(docs))
	for i, d := range docs {
		out[i] = FromDocument(d)
	}
	return out, nil
}

// Close disconnects the client, if the sink owns one.
func (s *Sink) Close() error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := s.client.Disconnect(ctx)
	if errors.Is(err, mongo.ErrClientDisconnected) {
		return nil
	}
	return err
}
