package model

import (
	"fmt"
	"time"
)

// ValueKind is the declared type of a search value.
type ValueKind int

const (
	KindString ValueKind = iota
	KindNumber
	KindUri
	KindDateTime
	KindToken
	KindQuantity
	KindReference
	KindComposite
	// Special search parameters (e.g. Location.near) have no index table.
	KindSpecial
)

var kindNames = map[ValueKind]string{
	KindString:    "String",
	KindNumber:    "Number",
	KindUri:       "Uri",
	KindDateTime:  "DateTime",
	KindToken:     "Token",
	KindQuantity:  "Quantity",
	KindReference: "Reference",
	KindComposite: "Composite",
	KindSpecial:   "Special",
}

func (k ValueKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ValueKind(%d)", int(k))
}

// SearchValue is implemented by every concrete search value type in this package.
type SearchValue interface {
	Kind() ValueKind
	isSearchValue()
}

type StringValue struct {
	Value string
}

type NumberValue struct {
	Value float64
}

type UriValue struct {
	Uri string
}

// DateTimeValue covers the instant range implied by the precision of the source value, e.g. 2020-01 covers the
// whole of January.
type DateTimeValue struct {
	Start time.Time
	End   time.Time
}

type TokenValue struct {
	System string
	Code   string
	Text   string
}

type QuantityValue struct {
	System string
	Code   string
	Value  float64
}

type ReferenceValue struct {
	BaseUri      string
	ResourceType string
	ResourceId   string
}

// CompositeValue is an ordered tuple of simple values.
type CompositeValue struct {
	Components []SearchValue
}

type SpecialValue struct {
	Value string
}

func (StringValue) Kind() ValueKind    { return KindString }
func (NumberValue) Kind() ValueKind    { return KindNumber }
func (UriValue) Kind() ValueKind       { return KindUri }
func (DateTimeValue) Kind() ValueKind  { return KindDateTime }
func (TokenValue) Kind() ValueKind     { return KindToken }
func (QuantityValue) Kind() ValueKind  { return KindQuantity }
func (ReferenceValue) Kind() ValueKind { return KindReference }
func (CompositeValue) Kind() ValueKind { return KindComposite }
func (SpecialValue) Kind() ValueKind   { return KindSpecial }

func (StringValue) isSearchValue()    {}
func (NumberValue) isSearchValue()    {}
func (UriValue) isSearchValue()       {}
func (DateTimeValue) isSearchValue()  {}
func (TokenValue) isSearchValue()     {}
func (QuantityValue) isSearchValue()  {}
func (ReferenceValue) isSearchValue() {}
func (CompositeValue) isSearchValue() {}
func (SpecialValue) isSearchValue()   {}
