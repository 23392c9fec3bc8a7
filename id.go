package thesisdesk

import "github.com/thesisdesk/thesisdesk/id"

// ID is the primary identifier type for all thesisdesk entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
