// Package ids mints identifiers for custody transactions and requests.
package ids

import "github.com/oklog/ulid/v2"

// New returns a ULID string. Ids minted by one process sort in creation
// order, even within the same millisecond.
func New() string {
	return ulid.Make().String()
}
