// Package ids produces sortable, collision-resistant record identifiers.
package ids

import "github.com/segmentio/ksuid"

func New() string {
	return ksuid.New().String()
}
