package docqueue

import "github.com/ook-lab/docqueue/id"

// ID is the primary identifier type for all docqueue entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
