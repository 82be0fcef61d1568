package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoMemoryRepo struct {
	db *mongo.Database
}

type mongoMemoryDoc struct {
	ID            string     `bson:"id"`
	Owner         string     `bson:"owner"`
	Kind          string     `bson:"kind"`
	Content       string     `bson:"content"`
	Embedding     []byte     `bson:"embedding,omitempty"`
	Salience      float64    `bson:"salience"`
	DecayAt       *time.Time `bson:"decay_at,omitempty"`
	SourceOrigin  string     `bson:"source_origin,omitempty"`
	SourceContext string     `bson:"source_context,omitempty"`
	Tags          []string   `bson:"tags,omitempty"`
	Uniq          string     `bson:"uniq"`
	DateCreated   time.Time  `bson:"date_created"`
	DateUpdated   time.Time  `bson:"date_updated"`
}

func (doc mongoMemoryDoc) record() MemoryRecord {
	return MemoryRecord{
		ID:            doc.ID,
		Owner:         doc.Owner,
		Kind:          doc.Kind,
		Content:       doc.Content,
		Embedding:     DecodeEmbedding(doc.Embedding),
		Salience:      doc.Salience,
		DecayAt:       doc.DecayAt,
		SourceOrigin:  doc.SourceOrigin,
		SourceContext: doc.SourceContext,
		Tags:          doc.Tags,
		CreatedAt:     doc.DateCreated,
		UpdatedAt:     doc.DateUpdated,
	}
}

func (r *mongoMemoryRepo) coll() *mongo.Collection {
	return r.db.Collection("mnemo_memory")
}

func (r *mongoMemoryRepo) FindByOwner(owner string, liveOnly bool) ([]MemoryRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	filter := bson.M{"owner": owner}
	if liveOnly {
		filter["$or"] = bson.A{
			bson.M{"decay_at": bson.M{"$exists": false}},
			bson.M{"decay_at": nil},
			bson.M{"decay_at": bson.M{"$gt": time.Now()}},
		}
	}

	cur, err := r.coll().Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []MemoryRecord
	for cur.Next(ctx) {
		var doc mongoMemoryDoc
		if err := cur.Decode(&doc); err != nil {
			continue
		}
		out = append(out, doc.record())
	}
	return out, cur.Err()
}

func (r *mongoMemoryRepo) UpsertByOwnerAndContent(owner, content string, fields UpsertFields) (MemoryRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	uniq := ContentKey(content)
	now := time.Now()
	filter := bson.M{"owner": owner, "uniq": uniq}
	update := bson.M{
		"$setOnInsert": bson.M{
			"id":           uuid.New().String(),
			"owner":        owner,
			"uniq":         uniq,
			"date_created": now,
		},
		"$set": bson.M{
			"kind":           fields.Kind,
			"content":        content,
			"embedding":      EncodeEmbedding(fields.Embedding),
			"decay_at":       fields.DecayAt,
			"source_origin":  fields.SourceOrigin,
			"source_context": fields.SourceContext,
			"tags":           fields.Tags,
			"date_updated":   now,
		},
		// Re-storing a fact never lowers a reinforced salience.
		"$max": bson.M{
			"salience": fields.Salience,
		},
	}

	var doc mongoMemoryDoc
	err := r.coll().FindOneAndUpdate(
		ctx, filter, update,
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return MemoryRecord{}, err
	}
	return doc.record(), nil
}

func (r *mongoMemoryRepo) UpdateSalience(ids []string, delta float64) error {
	if len(ids) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Pipeline update so the clamp happens atomically in the store.
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"salience": bson.M{
				"$min": bson.A{1.0, bson.M{
					"$max": bson.A{0.0, bson.M{"$add": bson.A{"$salience", delta}}},
				}},
			},
			"date_updated": time.Now(),
		}}},
	}

	_, err := r.coll().UpdateMany(ctx, bson.M{"id": bson.M{"$in": ids}}, pipeline)
	return err
}

func (r *mongoMemoryRepo) DeleteByOwner(owner string) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	res, err := r.coll().DeleteMany(ctx, bson.M{"owner": owner})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}
