package fhir

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fhir-server/bulkimport/internal/bulkimport/model"
)

const observation = `{
  "resourceType": "Observation",
  "id": "obs1",
  "meta": {"lastUpdated": "2021-03-04T05:06:07Z"},
  "code": {"coding": [{"system": "http://loinc.org", "code": "8867-4", "display": "Heart rate"}]},
  "subject": {"reference": "Patient/p1"},
  "valueQuantity": {"value": 72, "unit": "beats/minute", "system": "http://unitsofmeasure.org", "code": "/min"},
  "component": [
    {
      "code": {"coding": [{"system": "http://loinc.org", "code": "8480-6"}]},
      "valueCodeableConcept": {"coding": [{"system": "http://snomed.info/sct", "code": "high"}]}
    }
  ]
}`

func parse(t *testing.T, line string) *model.ParsedRecord {
	t.Helper()
	record, err := NewParser(nil).Parse(line)
	require.NoError(t, err)
	return record
}

func valuesFor(entries []model.IndexEntry, code string) []model.SearchValue {
	var values []model.SearchValue
	for _, e := range entries {
		if e.SearchParamUrl == hl7SearchParameter+code {
			values = append(values, e.Value)
		}
	}
	return values
}

func TestPathExtractor_Observation(t *testing.T) {
	record := parse(t, observation)
	entries, err := NewPathExtractor(DefaultSearchParameters()).Extract(record)
	require.NoError(t, err)

	for _, e := range entries {
		assert.Same(t, record, e.Record)
	}

	assert.Equal(t, []model.SearchValue{model.TokenValue{Code: "obs1"}}, valuesFor(entries, "Resource-id"))
	assert.Equal(t, []model.SearchValue{
		model.DateTimeValue{
			Start: time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC),
			End:   time.Date(2021, 3, 4, 5, 6, 7, 999999000, time.UTC),
		},
	}, valuesFor(entries, "Resource-lastUpdated"))
	assert.Equal(t, []model.SearchValue{
		model.TokenValue{System: "http://loinc.org", Code: "8867-4", Text: "Heart rate"},
	}, valuesFor(entries, "clinical-code"))
	assert.Equal(t, []model.SearchValue{
		model.ReferenceValue{ResourceType: "Patient", ResourceId: "p1"},
	}, valuesFor(entries, "clinical-patient"))
	assert.Equal(t, []model.SearchValue{
		model.QuantityValue{System: "http://unitsofmeasure.org", Code: "/min", Value: 72},
	}, valuesFor(entries, "Observation-value-quantity"))
	assert.Equal(t, []model.SearchValue{
		model.CompositeValue{Components: []model.SearchValue{
			model.TokenValue{System: "http://loinc.org", Code: "8867-4", Text: "Heart rate"},
			model.QuantityValue{System: "http://unitsofmeasure.org", Code: "/min", Value: 72},
		}},
	}, valuesFor(entries, "Observation-code-value-quantity"))

	// Only the component carries a valueCodeableConcept.
	combo := valuesFor(entries, "Observation-combo-code-value-concept")
	require.Len(t, combo, 1)
	indexType, ok := model.ResolveIndexType(combo[0])
	require.True(t, ok)
	assert.Equal(t, model.TokenTokenCompositeIndex, indexType)
}

func TestPathExtractor_Patient(t *testing.T) {
	record := parse(t, `{
	  "resourceType": "Patient",
	  "id": "p1",
	  "gender": "female",
	  "birthDate": "1970-02",
	  "name": [{"family": "Smith", "given": ["Jane", "Anne"]}],
	  "identifier": [{"system": "urn:mrn", "value": "123"}]
	}`)
	entries, err := NewPathExtractor(DefaultSearchParameters()).Extract(record)
	require.NoError(t, err)

	assert.Equal(t, []model.SearchValue{
		model.StringValue{Value: "Smith"},
		model.StringValue{Value: "Jane"},
		model.StringValue{Value: "Anne"},
	}, valuesFor(entries, "Patient-name"))
	assert.Equal(t, []model.SearchValue{model.StringValue{Value: "Smith"}}, valuesFor(entries, "individual-family"))
	assert.Equal(t, []model.SearchValue{model.TokenValue{Code: "female"}}, valuesFor(entries, "individual-gender"))
	assert.Equal(t, []model.SearchValue{model.TokenValue{System: "urn:mrn", Code: "123"}}, valuesFor(entries, "Patient-identifier"))
	assert.Equal(t, []model.SearchValue{
		model.DateTimeValue{
			Start: time.Date(1970, 2, 1, 0, 0, 0, 0, time.UTC),
			End:   time.Date(1970, 2, 28, 23, 59, 59, 999999000, time.UTC),
		},
	}, valuesFor(entries, "individual-birthdate"))
	assert.Empty(t, valuesFor(entries, "clinical-code"))
}

func TestPathExtractor_SpecialValuesAreExtracted(t *testing.T) {
	record := parse(t, `{"resourceType":"Location","id":"l1","position":{"longitude":1.5,"latitude":2.5}}`)
	entries, err := NewPathExtractor(DefaultSearchParameters()).Extract(record)
	require.NoError(t, err)

	near := valuesFor(entries, "Location-near")
	require.Len(t, near, 1)
	assert.Equal(t, model.KindSpecial, near[0].Kind())
}

func TestPathExtractor_InvalidDate(t *testing.T) {
	record := parse(t, `{"resourceType":"Patient","id":"p1","birthDate":"yesterday"}`)
	_, err := NewPathExtractor(DefaultSearchParameters()).Extract(record)
	assert.Error(t, err)
}

func TestParseDateTime(t *testing.T) {
	tests := map[string]struct {
		start time.Time
		end   time.Time
	}{
		"2020": {
			start: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
			end:   time.Date(2020, 12, 31, 23, 59, 59, 999999000, time.UTC),
		},
		"2020-02-29": {
			start: time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC),
			end:   time.Date(2020, 2, 29, 23, 59, 59, 999999000, time.UTC),
		},
		"2020-02-29T10:00:00+02:00": {
			start: time.Date(2020, 2, 29, 8, 0, 0, 0, time.UTC),
			end:   time.Date(2020, 2, 29, 8, 0, 0, 999999000, time.UTC),
		},
	}
	for input, tc := range tests {
		t.Run(input, func(t *testing.T) {
			v, err := ParseDateTime(input)
			require.NoError(t, err)
			assert.True(t, tc.start.Equal(v.Start), "start %s", v.Start)
			assert.True(t, tc.end.Equal(v.End), "end %s", v.End)
		})
	}
}

func TestParseReference(t *testing.T) {
	tests := map[string]struct {
		expected model.ReferenceValue
		ok       bool
	}{
		"Patient/123": {expected: model.ReferenceValue{ResourceType: "Patient", ResourceId: "123"}, ok: true},
		"http://example.org/fhir/Patient/123": {
			expected: model.ReferenceValue{BaseUri: "http://example.org/fhir/", ResourceType: "Patient", ResourceId: "123"},
			ok:       true,
		},
		"Patient/123/_history/2": {expected: model.ReferenceValue{ResourceType: "Patient", ResourceId: "123"}, ok: true},
		"#contained":             {},
		"":                       {},
		"123":                    {},
		"urn:uuid:abc":           {},
	}
	for input, tc := range tests {
		t.Run(input, func(t *testing.T) {
			v, ok := ParseReference(input)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.Equal(t, tc.expected, v)
			}
		})
	}
}
