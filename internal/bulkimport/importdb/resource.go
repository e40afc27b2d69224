package importdb

import (
	"github.com/pkg/errors"

	"github.com/fhir-server/bulkimport/internal/bulkimport/model"
	"github.com/fhir-server/bulkimport/internal/common/compress"
	"github.com/fhir-server/bulkimport/internal/common/importerrors"
)

const ResourceTableName = "resource"

var resourceColumns = []string{
	"resource_type_id",
	"resource_id",
	"version",
	"is_history",
	"resource_surrogate_id",
	"is_deleted",
	"request_method",
	"raw_resource",
	"is_raw_resource_meta_set",
}

// BuildResourceTable converts records into resource rows. Every imported resource is the first, current,
// non-deleted version.
func BuildResourceTable(maps *TypeMaps, records []model.ProcessedRecord, compressor compress.Compressor) (*Table, error) {
	table := NewTable(ResourceTableName, resourceColumns, len(records))
	for _, r := range records {
		resourceTypeId, ok := maps.ResourceTypeId(r.Record.ResourceType)
		if !ok {
			return nil, errors.WithStack(&importerrors.ErrInvalidArgument{
				Name:    "resourceType",
				Value:   r.Record.ResourceType,
				Message: "no resource type id",
			})
		}
		raw, err := compressor.Compress(r.Record.RawResource)
		if err != nil {
			return nil, errors.WithMessagef(err, "compressing %s/%s", r.Record.ResourceType, r.Record.ResourceId)
		}
		err = table.AddRow(
			resourceTypeId,
			r.Record.ResourceId,
			1,
			false,
			r.SurrogateId,
			false,
			r.Record.RequestMethod,
			raw,
			r.Record.IsRawResourceMetaSet,
		)
		if err != nil {
			return nil, err
		}
	}
	return table, nil
}
