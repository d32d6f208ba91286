// Package postgres reads profiles from the users table.
package postgres

import (
	"context"
	"fmt"

	"github.com/TruongKhoiNguyen/Agora-api/internal/config"
	"github.com/TruongKhoiNguyen/Agora-api/internal/model"
	storepostgres "github.com/TruongKhoiNguyen/Agora-api/internal/plugin/store/postgres"
	registrydirectory "github.com/TruongKhoiNguyen/Agora-api/internal/registry/directory"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func init() {
	registrydirectory.Register(registrydirectory.Plugin{
		Name: "postgres",
		Loader: func(ctx context.Context) (registrydirectory.Directory, error) {
			db, err := storepostgres.Open(config.FromContext(ctx))
			if err != nil {
				return nil, fmt.Errorf("postgres directory: %w", err)
			}
			return New(db), nil
		},
	})
}

// ForceImport is a no-op variable that can be referenced to ensure this package's init() runs.
var ForceImport = 0

// Directory looks profiles up by primary key.
type Directory struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Directory {
	return &Directory{db: db}
}

func (d *Directory) Lookup(ctx context.Context, ids ...string) (map[string]model.Profile, error) {
	out := make(map[string]model.Profile, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []model.Profile
	if err := d.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("lookup users: %w", err)
	}
	for _, p := range rows {
		out[p.ID] = p
	}
	return out, nil
}

// Upsert writes a profile.
func (d *Directory) Upsert(ctx context.Context, p model.Profile) error {
	return d.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&p).Error
}

var _ registrydirectory.Directory = (*Directory)(nil)
