// Package fhir decodes NDJSON encoded FHIR resources and extracts the search index values they contribute.
package fhir

import (
	"strconv"
	"unicode/utf8"

	"github.com/buger/jsonparser"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/fhir-server/bulkimport/internal/bulkimport/model"
	"github.com/fhir-server/bulkimport/internal/common/importerrors"
)

const (
	MethodPut  = "PUT"
	MethodPost = "POST"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Parser turns a single NDJSON line into a ParsedRecord.
type Parser struct {
	isKnownResourceType func(string) bool
	newId               func() string
}

// NewParser returns a parser that rejects any resource whose type isKnownResourceType doesn't accept. A nil
// isKnownResourceType accepts every type.
func NewParser(isKnownResourceType func(string) bool) *Parser {
	if isKnownResourceType == nil {
		isKnownResourceType = func(string) bool { return true }
	}
	return &Parser{
		isKnownResourceType: isKnownResourceType,
		newId:               func() string { return uuid.New().String() },
	}
}

// Parse decodes line. Resources without an id are assigned a fresh one, which is also written into the raw
// resource, and are recorded as POSTs.
func (p *Parser) Parse(line string) (*model.ParsedRecord, error) {
	data := []byte(line)

	resourceType, err := jsonparser.GetString(data, "resourceType")
	if err != nil {
		return nil, errors.WithStack(&importerrors.ErrInvalidArgument{
			Name:    "resourceType",
			Value:   truncate(line),
			Message: err.Error(),
		})
	}
	if !p.isKnownResourceType(resourceType) {
		return nil, errors.WithStack(&importerrors.ErrInvalidArgument{
			Name:    "resourceType",
			Value:   resourceType,
			Message: "unknown resource type",
		})
	}

	method := MethodPut
	id, err := jsonparser.GetString(data, "id")
	if errors.Is(err, jsonparser.KeyPathNotFoundError) || (err == nil && id == "") {
		id = p.newId()
		method = MethodPost
		data, err = jsonparser.Set(data, []byte(strconv.Quote(id)), "id")
		if err != nil {
			return nil, errors.WithStack(err)
		}
	} else if err != nil {
		return nil, errors.WithStack(&importerrors.ErrInvalidArgument{
			Name:    "id",
			Value:   truncate(line),
			Message: err.Error(),
		})
	}

	var document map[string]interface{}
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, errors.Wrapf(err, "decoding %s/%s", resourceType, id)
	}

	return &model.ParsedRecord{
		ResourceType:         resourceType,
		ResourceId:           id,
		RequestMethod:        method,
		RawResource:          data,
		IsRawResourceMetaSet: hasKey(data, "meta", "versionId") && hasKey(data, "meta", "lastUpdated"),
		Document:             document,
	}, nil
}

func hasKey(data []byte, keys ...string) bool {
	_, _, _, err := jsonparser.Get(data, keys...)
	return err == nil
}

// truncate shortens s for error messages without splitting a multi-byte character.
func truncate(s string) string {
	const maxLen = 64
	if len(s) <= maxLen {
		return s
	}
	end := maxLen
	for end > 0 && !utf8.RuneStart(s[end]) {
		end--
	}
	return s[:end] + "..."
}
