// Package id defines TypeID-based identity types for all thesisdesk entities.
//
// Every entity uses a single ID struct with a prefix that identifies the
// entity type. IDs are K-sortable (UUIDv7-based), globally unique, and
// URL-safe in the format "prefix_suffix".
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for all thesisdesk entity types.
const (
	PrefixChapter    Prefix = "chap" // Thesis chapter
	PrefixPayment    Prefix = "pay"  // Chapter payment
	PrefixRevision   Prefix = "rev"  // Content revision snapshot
	PrefixFeedback   Prefix = "fb"   // Feedback entry
	PrefixAttachment Prefix = "file" // File attachment
)

// ID is the primary identifier type for all thesisdesk entities.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receiver for UnmarshalText.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g. "chap_01h2xcejqtf2nbrexx3vqjhp41").
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses s and requires its prefix to equal expected.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// ParseOptional is ParseWithPrefix that maps the empty string to Nil.
// Stores use it for optional references such as a chapter's payment.
func ParseOptional(s string, expected Prefix) (ID, error) {
	if s == "" {
		return Nil, nil
	}
	return ParseWithPrefix(s, expected)
}

// MustParse is like Parse but panics on error. Use for hardcoded ID values.
func MustParse(s string) ID {
	parsed, err := Parse(s)
	if err != nil {
		panic(fmt.Sprintf("id: must parse %q: %v", s, err))
	}

	return parsed
}

// Type aliases document intent at call sites.
type (
	ChapterID    = ID
	PaymentID    = ID
	RevisionID   = ID
	FeedbackID   = ID
	AttachmentID = ID
)

func NewChapterID() ID    { return New(PrefixChapter) }
func NewPaymentID() ID    { return New(PrefixPayment) }
func NewRevisionID() ID   { return New(PrefixRevision) }
func NewFeedbackID() ID   { return New(PrefixFeedback) }
func NewAttachmentID() ID { return New(PrefixAttachment) }

// ParseChapterID parses a string and validates the "chap" prefix.
func ParseChapterID(s string) (ID, error) { return ParseWithPrefix(s, PrefixChapter) }

// ParsePaymentID parses a string and validates the "pay" prefix.
func ParsePaymentID(s string) (ID, error) { return ParseWithPrefix(s, PrefixPayment) }

// ParseRevisionID parses a string and validates the "rev" prefix.
func ParseRevisionID(s string) (ID, error) { return ParseWithPrefix(s, PrefixRevision) }

// ParseFeedbackID parses a string and validates the "fb" prefix.
func ParseFeedbackID(s string) (ID, error) { return ParseWithPrefix(s, PrefixFeedback) }

// ParseAttachmentID parses a string and validates the "file" prefix.
func ParseAttachmentID(s string) (ID, error) { return ParseWithPrefix(s, PrefixAttachment) }

// String returns the full TypeID string, or "" for Nil.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// Equal reports whether two IDs are the same. Two Nil IDs are equal.
func (i ID) Equal(other ID) bool {
	return i.String() == other.String()
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}
