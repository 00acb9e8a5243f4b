// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.English)

// titleCase returns s in title case with runs of whitespace collapsed.
func titleCase(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return titleCaser.String(strings.ToLower(s))
}
