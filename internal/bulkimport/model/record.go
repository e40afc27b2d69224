package model

// RawLine is a single undecoded line of the source file.
type RawLine = string

// ParsedRecord is a single resource decoded from the source file.
type ParsedRecord struct {
	ResourceType string
	ResourceId   string
	// The method the resource would have been submitted with; PUT when the source carried an id, POST when one
	// was generated during import.
	RequestMethod string
	// The line exactly as read from the source.
	RawResource []byte
	// Whether RawResource already carries meta.versionId and meta.lastUpdated.
	IsRawResourceMetaSet bool
	// The decoded document, used for index extraction.
	Document map[string]interface{}
}

// ProcessedRecord is a ParsedRecord that has been assigned its surrogate id.
type ProcessedRecord struct {
	Record      *ParsedRecord
	SurrogateId int64
}

// IndexEntry is a single search index value extracted from a record.
type IndexEntry struct {
	Record         *ParsedRecord
	SearchParamUrl string
	Value          SearchValue
	SurrogateId    int64
}

// WithSurrogateId returns a copy of the entry tagged with id.
func (e IndexEntry) WithSurrogateId(id int64) IndexEntry {
	e.SurrogateId = id
	return e
}
