// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.
package utils

import (
	"regexp"
	"strings"
)

var languageCodePattern = regexp.MustCompile(`^[a-z]{2}$`)

// IsEmpty reports whether s contains no non-whitespace characters.
func IsEmpty(s string) bool {
	return strings.TrimSpace(s) == ""
}

// IsLanguageCode reports whether s is a two-letter lowercase ISO 639-1 code.
// Anything else coming back from language detection is treated as unknown.
func IsLanguageCode(s string) bool {
	return languageCodePattern.MatchString(s)
}
