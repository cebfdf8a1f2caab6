// Package id mints identifiers for jobs admitted without one and for
// worker pools.
//
// Minted ids are TypeIDs: "kind_suffix", where the suffix is a base32
// UUIDv7. Caller-supplied job ids are opaque strings and never pass
// through here.
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Kind is the entity an id names. It is the TypeID prefix.
type Kind string

const (
	Job    Kind = "job"
	Worker Kind = "wkr"
)

// Next mints a fresh id of kind k, such as "job_01h2xcejqtf2nbrexx3vqjhp41".
// It panics if k is not a valid TypeID prefix.
func (k Kind) Next() string {
	tid, err := typeid.Generate(string(k))
	if err != nil {
		panic(fmt.Sprintf("id: cannot mint %q id: %v", k, err))
	}
	return tid.String()
}

// Is reports whether s is a minted id of kind k.
func (k Kind) Is(s string) bool {
	got, err := KindOf(s)
	return err == nil && got == k
}

// KindOf returns the kind of a minted id. Strings that are not TypeIDs
// are rejected.
func KindOf(s string) (Kind, error) {
	tid, err := typeid.Parse(s)
	if err != nil {
		return "", fmt.Errorf("id: %q is not a minted id: %w", s, err)
	}
	return Kind(tid.Prefix()), nil
}
