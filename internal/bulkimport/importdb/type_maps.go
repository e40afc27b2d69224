package importdb

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/fhir-server/bulkimport/internal/common/database"
)

// TypeMaps resolves resource type names and search parameter urls to the ids used in the database. It is loaded
// once at startup and read concurrently thereafter, so must not be modified after loading.
type TypeMaps struct {
	ResourceTypeIds map[string]int16
	SearchParamIds  map[string]int16
}

func (m *TypeMaps) ResourceTypeId(resourceType string) (int16, bool) {
	id, ok := m.ResourceTypeIds[resourceType]
	return id, ok
}

func (m *TypeMaps) SearchParamId(url string) (int16, bool) {
	id, ok := m.SearchParamIds[url]
	return id, ok
}

func (m *TypeMaps) IsKnownResourceType(resourceType string) bool {
	_, ok := m.ResourceTypeIds[resourceType]
	return ok
}

// RegisterSearchParams makes sure every url has a search_param row so that it is assigned an id.
func RegisterSearchParams(ctx context.Context, db database.Querier, urls []string) error {
	if len(urls) == 0 {
		return nil
	}
	_, err := db.Exec(ctx,
		`INSERT INTO search_param (uri) SELECT unnest($1::text[]) ON CONFLICT (uri) DO NOTHING`,
		urls)
	return errors.WithStack(err)
}

// LoadTypeMaps reads the resource_type and search_param reference tables.
func LoadTypeMaps(ctx context.Context, db database.Querier) (*TypeMaps, error) {
	resourceTypes, err := loadIds(ctx, db, `SELECT name, resource_type_id FROM resource_type`)
	if err != nil {
		return nil, errors.WithMessage(err, "loading resource types")
	}
	searchParams, err := loadIds(ctx, db, `SELECT uri, search_param_id FROM search_param`)
	if err != nil {
		return nil, errors.WithMessage(err, "loading search parameters")
	}
	log.Infof("Loaded %d resource types and %d search parameters", len(resourceTypes), len(searchParams))
	return &TypeMaps{ResourceTypeIds: resourceTypes, SearchParamIds: searchParams}, nil
}

func loadIds(ctx context.Context, db database.Querier, sql string) (map[string]int16, error) {
	rows, err := db.Query(ctx, sql)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	ids := make(map[string]int16)
	for rows.Next() {
		var name string
		var id int16
		if err := rows.Scan(&name, &id); err != nil {
			return nil, errors.WithStack(err)
		}
		ids[name] = id
	}
	return ids, errors.WithStack(rows.Err())
}
