package importdb

import (
	"github.com/pkg/errors"

	"github.com/fhir-server/bulkimport/internal/bulkimport/model"
)

// RowBuilder converts a batch of index entries, all resolving to the same index type, into rows of that type's
// table.
type RowBuilder func(maps *TypeMaps, entries []model.IndexEntry) (*Table, error)

var commonIndexColumns = []string{"resource_type_id", "resource_surrogate_id", "search_param_id"}

// HandlesKind reports whether entries declared with kind can be written to some index table. Composite entries
// are accepted here and resolved to a concrete table later.
func HandlesKind(kind model.ValueKind) bool {
	switch kind {
	case model.KindString, model.KindNumber, model.KindUri, model.KindDateTime, model.KindToken,
		model.KindQuantity, model.KindReference, model.KindComposite:
		return true
	default:
		return false
	}
}

// TableName returns the destination table for indexType.
func TableName(indexType model.IndexType) (string, bool) {
	switch indexType {
	case model.StringIndex:
		return "string_search_param", true
	case model.NumberIndex:
		return "number_search_param", true
	case model.UriIndex:
		return "uri_search_param", true
	case model.DateTimeIndex:
		return "date_time_search_param", true
	case model.TokenIndex:
		return "token_search_param", true
	case model.QuantityIndex:
		return "quantity_search_param", true
	case model.ReferenceIndex:
		return "reference_search_param", true
	case model.TokenTokenCompositeIndex:
		return "token_token_composite_search_param", true
	case model.TokenStringCompositeIndex:
		return "token_string_composite_search_param", true
	case model.TokenDateTimeCompositeIndex:
		return "token_date_time_composite_search_param", true
	case model.TokenQuantityCompositeIndex:
		return "token_quantity_composite_search_param", true
	case model.TokenNumberNumberCompositeIndex:
		return "token_number_number_composite_search_param", true
	case model.ReferenceTokenCompositeIndex:
		return "reference_token_composite_search_param", true
	default:
		return "", false
	}
}

// RowBuilderFor returns the row builder for indexType, or false if the index type has no table.
func RowBuilderFor(indexType model.IndexType) (RowBuilder, bool) {
	table, ok := TableName(indexType)
	if !ok {
		return nil, false
	}
	switch indexType {
	case model.StringIndex:
		return simpleBuilder(table, []string{"text"}, func(_ *TypeMaps, v model.StringValue) []interface{} {
			return []interface{}{v.Value}
		}), true
	case model.NumberIndex:
		return simpleBuilder(table, []string{"single_value"}, func(_ *TypeMaps, v model.NumberValue) []interface{} {
			return []interface{}{v.Value}
		}), true
	case model.UriIndex:
		return simpleBuilder(table, []string{"uri"}, func(_ *TypeMaps, v model.UriValue) []interface{} {
			return []interface{}{v.Uri}
		}), true
	case model.DateTimeIndex:
		return simpleBuilder(table, []string{"start_date_time", "end_date_time"}, func(_ *TypeMaps, v model.DateTimeValue) []interface{} {
			return dateTimeValues(v)
		}), true
	case model.TokenIndex:
		return simpleBuilder(table, []string{"system", "code", "text"}, func(_ *TypeMaps, v model.TokenValue) []interface{} {
			return []interface{}{nullable(v.System), v.Code, nullable(v.Text)}
		}), true
	case model.QuantityIndex:
		return simpleBuilder(table, []string{"system", "code", "single_value"}, func(_ *TypeMaps, v model.QuantityValue) []interface{} {
			return quantityValues(v)
		}), true
	case model.ReferenceIndex:
		return simpleBuilder(table, []string{"base_uri", "reference_resource_type_id", "reference_resource_id"}, referenceValues), true
	case model.TokenTokenCompositeIndex:
		return compositeBuilder(table, []string{"system1", "code1", "system2", "code2"}, func(maps *TypeMaps, c []model.SearchValue) ([]interface{}, error) {
			return join(maps, c, token, token)
		}), true
	case model.TokenStringCompositeIndex:
		return compositeBuilder(table, []string{"system1", "code1", "text2"}, func(maps *TypeMaps, c []model.SearchValue) ([]interface{}, error) {
			return join(maps, c, token, str)
		}), true
	case model.TokenDateTimeCompositeIndex:
		return compositeBuilder(table, []string{"system1", "code1", "start_date_time2", "end_date_time2"}, func(maps *TypeMaps, c []model.SearchValue) ([]interface{}, error) {
			return join(maps, c, token, dateTime)
		}), true
	case model.TokenQuantityCompositeIndex:
		return compositeBuilder(table, []string{"system1", "code1", "system2", "code2", "single_value2"}, func(maps *TypeMaps, c []model.SearchValue) ([]interface{}, error) {
			return join(maps, c, token, quantity)
		}), true
	case model.TokenNumberNumberCompositeIndex:
		return compositeBuilder(table, []string{"system1", "code1", "single_value2", "single_value3"}, func(maps *TypeMaps, c []model.SearchValue) ([]interface{}, error) {
			return join(maps, c, token, number, number)
		}), true
	case model.ReferenceTokenCompositeIndex:
		return compositeBuilder(table, []string{"base_uri1", "reference_resource_type_id1", "reference_resource_id1", "system2", "code2"}, func(maps *TypeMaps, c []model.SearchValue) ([]interface{}, error) {
			return join(maps, c, reference, token)
		}), true
	default:
		return nil, false
	}
}

func simpleBuilder[V model.SearchValue](table string, columns []string, toRow func(*TypeMaps, V) []interface{}) RowBuilder {
	return func(maps *TypeMaps, entries []model.IndexEntry) (*Table, error) {
		t := NewTable(table, append(append([]string{}, commonIndexColumns...), columns...), len(entries))
		for _, e := range entries {
			v, ok := e.Value.(V)
			if !ok {
				var expected V
				return nil, errors.Errorf("%s expects %T values but got %T", table, expected, e.Value)
			}
			row, err := commonIndexValues(maps, e)
			if err != nil {
				return nil, err
			}
			if err := t.AddRow(append(row, toRow(maps, v)...)...); err != nil {
				return nil, err
			}
		}
		return t, nil
	}
}

func compositeBuilder(table string, columns []string, toRow func(*TypeMaps, []model.SearchValue) ([]interface{}, error)) RowBuilder {
	return func(maps *TypeMaps, entries []model.IndexEntry) (*Table, error) {
		t := NewTable(table, append(append([]string{}, commonIndexColumns...), columns...), len(entries))
		for _, e := range entries {
			v, ok := e.Value.(model.CompositeValue)
			if !ok {
				return nil, errors.Errorf("%s expects composite values but got %T", table, e.Value)
			}
			row, err := commonIndexValues(maps, e)
			if err != nil {
				return nil, err
			}
			values, err := toRow(maps, v.Components)
			if err != nil {
				return nil, errors.WithMessage(err, table)
			}
			if err := t.AddRow(append(row, values...)...); err != nil {
				return nil, err
			}
		}
		return t, nil
	}
}

func commonIndexValues(maps *TypeMaps, e model.IndexEntry) ([]interface{}, error) {
	resourceTypeId, ok := maps.ResourceTypeId(e.Record.ResourceType)
	if !ok {
		return nil, errors.Errorf("no resource type id for %s", e.Record.ResourceType)
	}
	searchParamId, ok := maps.SearchParamId(e.SearchParamUrl)
	if !ok {
		return nil, errors.Errorf("no search parameter id for %s", e.SearchParamUrl)
	}
	return []interface{}{resourceTypeId, e.SurrogateId, searchParamId}, nil
}

// componentColumns renders one component of a composite value into its columns.
type componentColumns func(*TypeMaps, model.SearchValue) ([]interface{}, bool)

func join(maps *TypeMaps, components []model.SearchValue, columns ...componentColumns) ([]interface{}, error) {
	if len(components) != len(columns) {
		return nil, errors.Errorf("expected %d components but got %d", len(columns), len(components))
	}
	var values []interface{}
	for i, c := range components {
		v, ok := columns[i](maps, c)
		if !ok {
			return nil, errors.Errorf("unexpected %s value for component %d", c.Kind(), i)
		}
		values = append(values, v...)
	}
	return values, nil
}

func token(_ *TypeMaps, v model.SearchValue) ([]interface{}, bool) {
	t, ok := v.(model.TokenValue)
	return []interface{}{nullable(t.System), t.Code}, ok
}

func str(_ *TypeMaps, v model.SearchValue) ([]interface{}, bool) {
	s, ok := v.(model.StringValue)
	return []interface{}{s.Value}, ok
}

func number(_ *TypeMaps, v model.SearchValue) ([]interface{}, bool) {
	n, ok := v.(model.NumberValue)
	return []interface{}{n.Value}, ok
}

func dateTime(_ *TypeMaps, v model.SearchValue) ([]interface{}, bool) {
	d, ok := v.(model.DateTimeValue)
	return dateTimeValues(d), ok
}

func quantity(_ *TypeMaps, v model.SearchValue) ([]interface{}, bool) {
	q, ok := v.(model.QuantityValue)
	return quantityValues(q), ok
}

func reference(maps *TypeMaps, v model.SearchValue) ([]interface{}, bool) {
	r, ok := v.(model.ReferenceValue)
	return referenceValues(maps, r), ok
}

func dateTimeValues(v model.DateTimeValue) []interface{} {
	return []interface{}{v.Start, v.End}
}

func quantityValues(v model.QuantityValue) []interface{} {
	return []interface{}{nullable(v.System), nullable(v.Code), v.Value}
}

// referenceValues leaves the type id null for resource types the server doesn't know about.
func referenceValues(maps *TypeMaps, v model.ReferenceValue) []interface{} {
	var typeId *int16
	if id, ok := maps.ResourceTypeId(v.ResourceType); ok {
		typeId = &id
	}
	return []interface{}{nullable(v.BaseUri), typeId, v.ResourceId}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
