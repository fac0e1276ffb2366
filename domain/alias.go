// Package domain contains core concepts of the shared space.
// This file defines the two participants and related invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"duo-lab/errors"
	"fmt"
)

// Alias is one of the two fixed identities of the system.
type Alias string

const (
	Angy Alias = "angy"
	Bozy Alias = "bozy"
)

// Aliases lists both participants in display order.
var Aliases = []Alias{Angy, Bozy}

func ParseAlias(s string) (Alias, error) {
	switch Alias(s) {
	case Angy, Bozy:
		return Alias(s), nil
	default:
		return "", fmt.Errorf("%w: %q", errors.ErrUnknownAlias, s)
	}
}

func (a Alias) Valid() bool {
	return a == Angy || a == Bozy
}

// Partner returns the other participant.
func (a Alias) Partner() Alias {
	if a == Angy {
		return Bozy
	}
	return Angy
}

func (a Alias) String() string {
	return string(a)
}
