package metricsstore

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Counts is the set of totals exported as inventory gauges.
type Counts struct {
	Principals   int64
	Files        int64
	TrashedFiles int64
	Favourites   int64
}

// FetchCounts returns document totals across the service's collections.
// Intentionally tolerant: on error it returns 0 for that counter.
func FetchCounts(ctx context.Context, db *mongo.Database) Counts {
	var out Counts

	if n, err := db.Collection("principals").EstimatedDocumentCount(ctx); err == nil {
		out.Principals = n
	}
	if n, err := db.Collection("files").EstimatedDocumentCount(ctx); err == nil {
		out.Files = n
	}
	// served by idx_files_shoulddelete
	if n, err := db.Collection("files").CountDocuments(ctx, bson.M{"should_delete": true}); err == nil {
		out.TrashedFiles = n
	}
	if n, err := db.Collection("favourites").EstimatedDocumentCount(ctx); err == nil {
		out.Favourites = n
	}

	return out
}

// ByKind labels each total for the inventory collector.
func (c Counts) ByKind() map[string]int64 {
	return map[string]int64{
		"principals":    c.Principals,
		"files":         c.Files,
		"files_trashed": c.TrashedFiles,
		"favourites":    c.Favourites,
	}
}
