package fhir

// SearchParamType is the FHIR type of a search parameter.
type SearchParamType string

const (
	StringParam    SearchParamType = "string"
	NumberParam    SearchParamType = "number"
	UriParam       SearchParamType = "uri"
	DateParam      SearchParamType = "date"
	TokenParam     SearchParamType = "token"
	QuantityParam  SearchParamType = "quantity"
	ReferenceParam SearchParamType = "reference"
	CompositeParam SearchParamType = "composite"
	SpecialParam   SearchParamType = "special"
)

// AllResources as a base means the parameter applies to every resource type.
const AllResources = "Resource"

// SearchParameterDefinition describes how one search parameter is extracted.
//
// Expression is a simplified FHIRPath: dot separated element names, optionally prefixed by the resource type, with
// alternatives separated by " | ". Arrays are flattened at every step.
type SearchParameterDefinition struct {
	Url        string          `validate:"required"`
	Code       string          `validate:"required"`
	Type       SearchParamType `validate:"required,oneof=string number uri date token quantity reference composite special"`
	Base       []string        `validate:"required,min=1"`
	Expression string          `validate:"required"`
	// Only used by composite parameters. Component expressions are evaluated relative to each node Expression
	// selects.
	Components []CompositeComponent `validate:"required_if=Type composite,dive"`
}

type CompositeComponent struct {
	Type       SearchParamType `validate:"required,oneof=string number uri date token quantity reference"`
	Expression string          `validate:"required"`
}

const hl7SearchParameter = "http://hl7.org/fhir/SearchParameter/"

// DefaultSearchParameters returns a small set of commonly used R4 search parameters.
func DefaultSearchParameters() []SearchParameterDefinition {
	return []SearchParameterDefinition{
		{
			Url:        hl7SearchParameter + "Resource-id",
			Code:       "_id",
			Type:       TokenParam,
			Base:       []string{AllResources},
			Expression: "Resource.id",
		},
		{
			Url:        hl7SearchParameter + "Resource-lastUpdated",
			Code:       "_lastUpdated",
			Type:       DateParam,
			Base:       []string{AllResources},
			Expression: "Resource.meta.lastUpdated",
		},
		{
			Url:        hl7SearchParameter + "Resource-profile",
			Code:       "_profile",
			Type:       UriParam,
			Base:       []string{AllResources},
			Expression: "Resource.meta.profile",
		},
		{
			Url:        hl7SearchParameter + "Patient-name",
			Code:       "name",
			Type:       StringParam,
			Base:       []string{"Patient"},
			Expression: "Patient.name",
		},
		{
			Url:        hl7SearchParameter + "individual-family",
			Code:       "family",
			Type:       StringParam,
			Base:       []string{"Patient", "Practitioner"},
			Expression: "Patient.name.family | Practitioner.name.family",
		},
		{
			Url:        hl7SearchParameter + "individual-gender",
			Code:       "gender",
			Type:       TokenParam,
			Base:       []string{"Patient", "Practitioner"},
			Expression: "Patient.gender | Practitioner.gender",
		},
		{
			Url:        hl7SearchParameter + "individual-birthdate",
			Code:       "birthdate",
			Type:       DateParam,
			Base:       []string{"Patient"},
			Expression: "Patient.birthDate",
		},
		{
			Url:        hl7SearchParameter + "Patient-identifier",
			Code:       "identifier",
			Type:       TokenParam,
			Base:       []string{"Patient"},
			Expression: "Patient.identifier",
		},
		{
			Url:        hl7SearchParameter + "clinical-code",
			Code:       "code",
			Type:       TokenParam,
			Base:       []string{"Observation", "Condition"},
			Expression: "Observation.code | Condition.code",
		},
		{
			Url:        hl7SearchParameter + "clinical-patient",
			Code:       "patient",
			Type:       ReferenceParam,
			Base:       []string{"Observation", "Condition", "Encounter"},
			Expression: "Observation.subject | Condition.subject | Encounter.subject",
		},
		{
			Url:        hl7SearchParameter + "Observation-value-quantity",
			Code:       "value-quantity",
			Type:       QuantityParam,
			Base:       []string{"Observation"},
			Expression: "Observation.valueQuantity",
		},
		{
			Url:        hl7SearchParameter + "Observation-code-value-quantity",
			Code:       "code-value-quantity",
			Type:       CompositeParam,
			Base:       []string{"Observation"},
			Expression: "Observation",
			Components: []CompositeComponent{
				{Type: TokenParam, Expression: "code"},
				{Type: QuantityParam, Expression: "valueQuantity"},
			},
		},
		{
			Url:        hl7SearchParameter + "Observation-combo-code-value-concept",
			Code:       "combo-code-value-concept",
			Type:       CompositeParam,
			Base:       []string{"Observation"},
			Expression: "Observation | Observation.component",
			Components: []CompositeComponent{
				{Type: TokenParam, Expression: "code"},
				{Type: TokenParam, Expression: "valueCodeableConcept"},
			},
		},
		{
			Url:        hl7SearchParameter + "Location-near",
			Code:       "near",
			Type:       SpecialParam,
			Base:       []string{"Location"},
			Expression: "Location.position",
		},
	}
}
