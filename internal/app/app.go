// Package app is the root package of all domain related packages.
//
// All entity types are defined in this package.
package app

import (
	"errors"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Default formats
const (
	DateTimeFormat    = "2006.01.02 15:04"
	DateTimeFormatESI = "2006-01-02T15:04:05Z"
)

// Titler converts a string into a title for english language.
var Titler = cases.Title(language.English)

var (
	ErrInvalid  = errors.New("invalid operation")
	ErrNotFound = errors.New("object not found")
)

// ESI scopes used by this app.
const (
	ScopeReadNotifications = "esi-characters.read_notifications.v1"
	ScopeReadStructures    = "esi-corporations.read_structures.v1"
)
