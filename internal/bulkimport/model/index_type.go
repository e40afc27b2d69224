package model

import (
	"fmt"
	"strings"
)

// IndexType identifies the destination table of an index entry.
type IndexType int

const (
	StringIndex IndexType = iota
	NumberIndex
	UriIndex
	DateTimeIndex
	TokenIndex
	QuantityIndex
	ReferenceIndex
	TokenTokenCompositeIndex
	TokenStringCompositeIndex
	TokenDateTimeCompositeIndex
	TokenQuantityCompositeIndex
	TokenNumberNumberCompositeIndex
	ReferenceTokenCompositeIndex
)

// AllIndexTypes lists every index type in declaration order.
var AllIndexTypes = []IndexType{
	StringIndex,
	NumberIndex,
	UriIndex,
	DateTimeIndex,
	TokenIndex,
	QuantityIndex,
	ReferenceIndex,
	TokenTokenCompositeIndex,
	TokenStringCompositeIndex,
	TokenDateTimeCompositeIndex,
	TokenQuantityCompositeIndex,
	TokenNumberNumberCompositeIndex,
	ReferenceTokenCompositeIndex,
}

var indexTypeNames = map[IndexType]string{
	StringIndex:                     "String",
	NumberIndex:                     "Number",
	UriIndex:                        "Uri",
	DateTimeIndex:                   "DateTime",
	TokenIndex:                      "Token",
	QuantityIndex:                   "Quantity",
	ReferenceIndex:                  "Reference",
	TokenTokenCompositeIndex:        "TokenTokenComposite",
	TokenStringCompositeIndex:       "TokenStringComposite",
	TokenDateTimeCompositeIndex:     "TokenDateTimeComposite",
	TokenQuantityCompositeIndex:     "TokenQuantityComposite",
	TokenNumberNumberCompositeIndex: "TokenNumberNumberComposite",
	ReferenceTokenCompositeIndex:    "ReferenceTokenComposite",
}

var indexTypesByName = func() map[string]IndexType {
	m := make(map[string]IndexType, len(indexTypeNames))
	for t, name := range indexTypeNames {
		m[name] = t
	}
	return m
}()

var simpleIndexTypes = map[ValueKind]IndexType{
	KindString:    StringIndex,
	KindNumber:    NumberIndex,
	KindUri:       UriIndex,
	KindDateTime:  DateTimeIndex,
	KindToken:     TokenIndex,
	KindQuantity:  QuantityIndex,
	KindReference: ReferenceIndex,
}

func (t IndexType) String() string {
	if name, ok := indexTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("IndexType(%d)", int(t))
}

// ParseIndexType looks up an index type by its name, e.g. "TokenTokenComposite".
func ParseIndexType(name string) (IndexType, bool) {
	t, ok := indexTypesByName[name]
	return t, ok
}

// ResolveIndexType works out which index table value belongs in. Simple values map directly from their kind.
// Composite values are named by concatenating the kind of each component in order followed by "Composite", so two
// token components resolve to TokenTokenComposite. Returns false if no index type exists for the value.
func ResolveIndexType(value SearchValue) (IndexType, bool) {
	if value == nil {
		return 0, false
	}
	if t, ok := simpleIndexTypes[value.Kind()]; ok {
		return t, true
	}
	composite, ok := value.(CompositeValue)
	if !ok || len(composite.Components) == 0 {
		return 0, false
	}
	var sb strings.Builder
	for _, c := range composite.Components {
		if c == nil {
			return 0, false
		}
		if _, simple := simpleIndexTypes[c.Kind()]; !simple {
			return 0, false
		}
		sb.WriteString(c.Kind().String())
	}
	sb.WriteString("Composite")
	return ParseIndexType(sb.String())
}
