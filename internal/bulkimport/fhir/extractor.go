package fhir

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/fhir-server/bulkimport/internal/bulkimport/model"
	"github.com/fhir-server/bulkimport/internal/common/importerrors"
)

// PathExtractor extracts index entries by evaluating the expression of every search parameter that applies to the
// record's resource type.
type PathExtractor struct {
	byResourceType map[string][]SearchParameterDefinition
	generic        []SearchParameterDefinition
}

func NewPathExtractor(definitions []SearchParameterDefinition) *PathExtractor {
	e := &PathExtractor{byResourceType: make(map[string][]SearchParameterDefinition)}
	for _, d := range definitions {
		for _, base := range d.Base {
			if base == AllResources {
				e.generic = append(e.generic, d)
			} else {
				e.byResourceType[base] = append(e.byResourceType[base], d)
			}
		}
	}
	return e
}

func (e *PathExtractor) Extract(record *model.ParsedRecord) ([]model.IndexEntry, error) {
	var entries []model.IndexEntry
	for _, definitions := range [][]SearchParameterDefinition{e.generic, e.byResourceType[record.ResourceType]} {
		for _, d := range definitions {
			values, err := extractValues(record, d)
			if err != nil {
				return nil, errors.WithMessagef(err, "extracting %s from %s/%s", d.Code, record.ResourceType, record.ResourceId)
			}
			for _, v := range values {
				entries = append(entries, model.IndexEntry{
					Record:         record,
					SearchParamUrl: d.Url,
					Value:          v,
				})
			}
		}
	}
	return entries, nil
}

func extractValues(record *model.ParsedRecord, d SearchParameterDefinition) ([]model.SearchValue, error) {
	nodes := evaluate(record.Document, record.ResourceType, d.Expression)
	if d.Type != CompositeParam {
		return toSearchValues(d.Type, nodes)
	}

	var composites []model.SearchValue
	for _, node := range nodes {
		components := make([]model.SearchValue, 0, len(d.Components))
		for _, c := range d.Components {
			values, err := toSearchValues(c.Type, evaluate(node, "", c.Expression))
			if err != nil {
				return nil, err
			}
			if len(values) == 0 {
				break
			}
			components = append(components, values[0])
		}
		if len(components) == len(d.Components) {
			composites = append(composites, model.CompositeValue{Components: components})
		}
	}
	return composites, nil
}

// evaluate returns every node selected by expression, flattening arrays.
func evaluate(root interface{}, resourceType string, expression string) []interface{} {
	var result []interface{}
	for _, alternative := range strings.Split(expression, "|") {
		path := strings.Split(strings.TrimSpace(alternative), ".")
		if path[0] == resourceType || path[0] == AllResources {
			path = path[1:]
		} else if resourceType != "" && startsWithUpper(path[0]) {
			// Alternative for a different resource type.
			continue
		}
		nodes := []interface{}{root}
		for _, element := range path {
			if element == "" {
				continue
			}
			var next []interface{}
			for _, n := range nodes {
				m, ok := n.(map[string]interface{})
				if !ok {
					continue
				}
				next = appendFlattened(next, m[element])
			}
			nodes = next
		}
		result = append(result, nodes...)
	}
	return result
}

func appendFlattened(nodes []interface{}, v interface{}) []interface{} {
	switch t := v.(type) {
	case nil:
		return nodes
	case []interface{}:
		for _, e := range t {
			nodes = appendFlattened(nodes, e)
		}
		return nodes
	default:
		return append(nodes, v)
	}
}

func startsWithUpper(s string) bool {
	return s != "" && s[0] >= 'A' && s[0] <= 'Z'
}

func toSearchValues(paramType SearchParamType, nodes []interface{}) ([]model.SearchValue, error) {
	var values []model.SearchValue
	for _, node := range nodes {
		var err error
		switch paramType {
		case StringParam:
			values = appendStrings(values, node)
		case NumberParam:
			values, err = appendNumber(values, node)
		case UriParam:
			if s, ok := node.(string); ok {
				values = append(values, model.UriValue{Uri: s})
			}
		case DateParam:
			values, err = appendDate(values, node)
		case TokenParam:
			values = appendTokens(values, node)
		case QuantityParam:
			values = appendQuantity(values, node)
		case ReferenceParam:
			values = appendReference(values, node)
		case SpecialParam:
			values = append(values, model.SpecialValue{Value: fmt.Sprint(node)})
		default:
			return nil, errors.WithStack(&importerrors.ErrInvalidArgument{
				Name:    "type",
				Value:   string(paramType),
				Message: "unsupported search parameter type",
			})
		}
		if err != nil {
			return nil, err
		}
	}
	return values, nil
}

// appendStrings indexes plain strings directly and complex types (HumanName, Address) by each of their string
// elements.
func appendStrings(values []model.SearchValue, node interface{}) []model.SearchValue {
	switch t := node.(type) {
	case string:
		return append(values, model.StringValue{Value: t})
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			for _, v := range appendFlattened(nil, t[k]) {
				if s, ok := v.(string); ok {
					values = append(values, model.StringValue{Value: s})
				}
			}
		}
	}
	return values
}

func appendNumber(values []model.SearchValue, node interface{}) ([]model.SearchValue, error) {
	switch t := node.(type) {
	case float64:
		return append(values, model.NumberValue{Value: t}), nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil, errors.WithStack(&importerrors.ErrInvalidArgument{Name: "number", Value: t, Message: err.Error()})
		}
		return append(values, model.NumberValue{Value: f}), nil
	}
	return values, nil
}

func appendDate(values []model.SearchValue, node interface{}) ([]model.SearchValue, error) {
	s, ok := node.(string)
	if !ok {
		if period, isMap := node.(map[string]interface{}); isMap {
			return appendPeriod(values, period)
		}
		return values, nil
	}
	v, err := ParseDateTime(s)
	if err != nil {
		return nil, err
	}
	return append(values, v), nil
}

func appendPeriod(values []model.SearchValue, period map[string]interface{}) ([]model.SearchValue, error) {
	start, hasStart := period["start"].(string)
	end, hasEnd := period["end"].(string)
	if !hasStart && !hasEnd {
		return values, nil
	}
	v := model.DateTimeValue{Start: time.Time{}, End: time.Date(9999, 12, 31, 23, 59, 59, 999999000, time.UTC)}
	if hasStart {
		s, err := ParseDateTime(start)
		if err != nil {
			return nil, err
		}
		v.Start = s.Start
	}
	if hasEnd {
		e, err := ParseDateTime(end)
		if err != nil {
			return nil, err
		}
		v.End = e.End
	}
	return append(values, v), nil
}

var dateLayouts = []struct {
	layout string
	next   func(time.Time) time.Time
}{
	{"2006", func(t time.Time) time.Time { return t.AddDate(1, 0, 0) }},
	{"2006-01", func(t time.Time) time.Time { return t.AddDate(0, 1, 0) }},
	{"2006-01-02", func(t time.Time) time.Time { return t.AddDate(0, 0, 1) }},
	{time.RFC3339, func(t time.Time) time.Time { return t.Add(time.Second) }},
}

// ParseDateTime parses a FHIR date, dateTime or instant into the range of instants it covers, e.g. 2020-02 covers
// the whole of February. Partial dates are taken to be in UTC.
func ParseDateTime(s string) (model.DateTimeValue, error) {
	for _, l := range dateLayouts {
		t, err := time.Parse(l.layout, s)
		if err != nil {
			continue
		}
		t = t.UTC()
		return model.DateTimeValue{Start: t, End: l.next(t).Add(-time.Microsecond)}, nil
	}
	return model.DateTimeValue{}, errors.WithStack(&importerrors.ErrInvalidArgument{
		Name:    "dateTime",
		Value:   s,
		Message: "not a valid FHIR date, dateTime or instant",
	})
}

// appendTokens handles code, boolean, Coding, CodeableConcept and Identifier elements.
func appendTokens(values []model.SearchValue, node interface{}) []model.SearchValue {
	switch t := node.(type) {
	case string:
		return append(values, model.TokenValue{Code: t})
	case bool:
		return append(values, model.TokenValue{Code: strconv.FormatBool(t)})
	case map[string]interface{}:
		if codings, ok := t["coding"]; ok {
			for _, c := range appendFlattened(nil, codings) {
				values = appendTokens(values, c)
			}
			return values
		}
		system, _ := t["system"].(string)
		display, _ := t["display"].(string)
		code, ok := t["code"].(string)
		if !ok {
			code, ok = t["value"].(string)
		}
		if ok || system != "" {
			values = append(values, model.TokenValue{System: system, Code: code, Text: display})
		}
	}
	return values
}

func appendQuantity(values []model.SearchValue, node interface{}) []model.SearchValue {
	m, ok := node.(map[string]interface{})
	if !ok {
		return values
	}
	value, ok := m["value"].(float64)
	if !ok {
		return values
	}
	system, _ := m["system"].(string)
	code, hasCode := m["code"].(string)
	if !hasCode {
		code, _ = m["unit"].(string)
	}
	return append(values, model.QuantityValue{System: system, Code: code, Value: value})
}

func appendReference(values []model.SearchValue, node interface{}) []model.SearchValue {
	var reference string
	switch t := node.(type) {
	case string:
		reference = t
	case map[string]interface{}:
		reference, _ = t["reference"].(string)
	}
	if v, ok := ParseReference(reference); ok {
		values = append(values, v)
	}
	return values
}

// ParseReference splits a literal reference such as Patient/123 or http://example.org/fhir/Patient/123. Contained
// (#id) and empty references are not indexed.
func ParseReference(reference string) (model.ReferenceValue, bool) {
	if reference == "" || strings.HasPrefix(reference, "#") {
		return model.ReferenceValue{}, false
	}
	if i := strings.Index(reference, "/_history/"); i >= 0 {
		reference = reference[:i]
	}
	parts := strings.Split(reference, "/")
	if len(parts) < 2 {
		return model.ReferenceValue{}, false
	}
	n := len(parts)
	resourceType, id := parts[n-2], parts[n-1]
	if !startsWithUpper(resourceType) || id == "" {
		return model.ReferenceValue{}, false
	}
	baseUri := ""
	if n > 2 {
		baseUri = strings.Join(parts[:n-2], "/") + "/"
	}
	return model.ReferenceValue{BaseUri: baseUri, ResourceType: resourceType, ResourceId: id}, true
}
