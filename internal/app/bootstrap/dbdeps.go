// internal/app/bootstrap/dbdeps.go
package bootstrap

import (
	"go.mongodb.org/mongo-driver/mongo"
)

// DBDeps holds database/back-end dependencies for the app.
//
// Runtime is allocated in ConnectDB and filled by Startup; the hooks
// receive DBDeps by value, so the pointer is how BuildHandler and
// Shutdown see what Startup built.
type DBDeps struct {
	MongoClient   *mongo.Client
	MongoDatabase *mongo.Database
	Runtime       *Runtime
}
