package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const videosCollection = "videos"

// Mongo implements VideoStore on a MongoDB collection.
type Mongo struct {
	coll *mongo.Collection
}

// NewMongo connects to MongoDB and returns a store over the videos
// collection of the named database.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, *mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}
	return &Mongo{coll: client.Database(database).Collection(videosCollection)}, client, nil
}

func key(videoID, projectID string) bson.M {
	return bson.M{"videoID": videoID, "projectID": projectID}
}

// Create inserts a new record.
func (m *Mongo) Create(ctx context.Context, rec *VideoRecord) error {
	if _, err := m.coll.InsertOne(ctx, rec); err != nil {
		return fmt.Errorf("insert video %s: %w", rec.VideoID, err)
	}
	return nil
}

// Get returns the record for the key, or ErrNotFound.
func (m *Mongo) Get(ctx context.Context, videoID, projectID string) (*VideoRecord, error) {
	var rec VideoRecord
	err := m.coll.FindOne(ctx, key(videoID, projectID)).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find video %s: %w", videoID, err)
	}
	return &rec, nil
}

// SetChunkInventory writes the chunk list, total count and zeroed
// per-resolution counters in one update.
func (m *Mongo) SetChunkInventory(ctx context.Context, videoID, projectID string, chunks []Chunk, resolutions []string) error {
	processed := bson.M{}
	status := bson.M{}
	for _, r := range resolutions {
		processed[r] = 0
		status[r] = StateQueued
	}
	update := bson.M{"$set": bson.M{
		"totalChunks":      len(chunks),
		"chunks":           chunks,
		"processedChunks":  processed,
		"processingStatus": status,
	}}
	if _, err := m.coll.UpdateOne(ctx, key(videoID, projectID), update); err != nil {
		return fmt.Errorf("set chunk inventory for %s: %w", videoID, err)
	}
	return nil
}

// IncProcessedChunks performs the counter increment as a single
// conditional update, never a read-modify-write. The filter only
// matches while the counter is below totalChunks, so a redelivered
// chunk cannot push it past the total.
func (m *Mongo) IncProcessedChunks(ctx context.Context, videoID, projectID, res string) error {
	filter := key(videoID, projectID)
	filter["$expr"] = bson.M{"$lt": bson.A{"$processedChunks." + res, "$totalChunks"}}
	update := bson.M{"$inc": bson.M{"processedChunks." + res: 1}}
	if _, err := m.coll.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("inc processed chunks for %s/%s: %w", videoID, res, err)
	}
	return nil
}

// MarkResolutionProcessing flips processingStatus[res] from queued to
// processing. The filtered update leaves completed and failed alone.
func (m *Mongo) MarkResolutionProcessing(ctx context.Context, videoID, projectID, res string) error {
	filter := key(videoID, projectID)
	filter["processingStatus."+res] = StateQueued
	update := bson.M{"$set": bson.M{"processingStatus." + res: StateProcessing}}
	if _, err := m.coll.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("mark %s processing for %s: %w", res, videoID, err)
	}
	return nil
}

// SetResolutionStatus updates processingStatus[res].
func (m *Mongo) SetResolutionStatus(ctx context.Context, videoID, projectID, res string, s State) error {
	update := bson.M{"$set": bson.M{"processingStatus." + res: s}}
	if _, err := m.coll.UpdateOne(ctx, key(videoID, projectID), update); err != nil {
		return fmt.Errorf("set status %s for %s/%s: %w", s, videoID, res, err)
	}
	return nil
}

// FinalizeMaster records a finalize pass in one update. isPlayable and
// converted are set-once by construction: finalize only ever sets them
// to true.
func (m *Mongo) FinalizeMaster(ctx context.Context, videoID, projectID, masterPath string, available []string) error {
	update := bson.M{
		"$set": bson.M{
			"availableResolutions": available,
			"masterFilePath":       masterPath,
			"isPlayable":           true,
			"converted":            true,
		},
		"$inc": bson.M{"masterPlaylistVersion": 1},
	}
	if _, err := m.coll.UpdateOne(ctx, key(videoID, projectID), update); err != nil {
		return fmt.Errorf("finalize master for %s: %w", videoID, err)
	}
	return nil
}

// FindRecentUpload returns the newest record matching the fingerprint
// uploaded at or after since.
func (m *Mongo) FindRecentUpload(ctx context.Context, projectID, fileName string, fileSize int64, since time.Time) (*VideoRecord, error) {
	filter := bson.M{
		"projectID":  projectID,
		"fileName":   fileName,
		"fileSize":   fileSize,
		"uploadTime": bson.M{"$gte": since},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "uploadTime", Value: -1}})

	var rec VideoRecord
	err := m.coll.FindOne(ctx, filter, opts).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find recent upload %s/%s: %w", projectID, fileName, err)
	}
	return &rec, nil
}
