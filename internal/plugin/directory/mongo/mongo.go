// Package mongo reads profiles from the users collection.
package mongo

import (
	"context"
	"fmt"

	"github.com/TruongKhoiNguyen/Agora-api/internal/config"
	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	storemongo "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/store/mongo"
	registrydirectory "github.com/TruongKhoiNguyen/Agora-api/internal/registry/directory"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

func init() {
	registrydirectory.Register(registrydirectory.Plugin{
		Name: "mongo",
		Loader: func(ctx context.Context) (registrydirectory.Directory, error) {
			cfg := config.FromContext(ctx)
			client, err := storemongo.Connect(ctx, cfg)
			if err != nil {
				return nil, fmt.Errorf("mongo directory: %w", err)
			}
			return New(client.Database(storemongo.DatabaseName(cfg))), nil
		},
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

type userDoc struct {
	ID        string `bson:"_id"`
	FirstName string `bson:"first_name"`
	LastName  string `bson:"last_name"`
	Email     string `bson:"email"`
	Avatar    string `bson:"avatar"`
}

// Directory looks profiles up by _id.
type Directory struct {
	users *mongo.Collection
}

func New(db *mongo.Database) *Directory {
	return &Directory{users: db.Collection("users")}
}

func (d *Directory) Lookup(ctx context.Context, ids ...string) (map[string]model.Profile, error) {
	if len(ids) == 0 {
		return map[string]model.Profile{}, nil
	}
	cursor, err := d.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("lookup users: %w", err)
	}
	var docs []userDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("lookup users: %w", err)
	}
	out := make(map[string]model.Profile, len(docs))
	for _, u := range docs {
		out[u.ID] = model.Profile{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName, Email: u.Email, Avatar: u.Avatar}
	}
	return out, nil
}

// Upsert writes a profile. Used to seed directories in tests and tooling.
func (d *Directory) Upsert(ctx context.Context, p model.Profile) error {
	doc := userDoc{ID: p.ID, FirstName: p.FirstName, LastName: p.LastName, Email: p.Email, Avatar: p.Avatar}
	_, err := d.users.ReplaceOne(ctx, bson.M{"_id": p.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

var _ registrydirectory.Directory = (*Directory)(nil)
