// Package naming implements the print file convention PRJ-{project}-{Item}-B{batch}.3mf
// that ties a file running on a printer back to its scheduled job.
package naming

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	nonAlnum    = regexp.MustCompile(`[^a-zA-Z0-9\s]`)
	filePattern = regexp.MustCompile(`(?i)^PRJ-([a-f0-9]{6})-(.+)-B(\d+)\.3mf$`)
)

// Parsed holds the components of a conventional job filename.
type Parsed struct {
	ProjectShortID string
	ItemSlug       string
	BatchNumber    int
}

// Slugify turns an item name into PascalCase without spaces or symbols.
func Slugify(name string) string {
	var b strings.Builder
	for _, w := range strings.Fields(nonAlnum.ReplaceAllString(name, "")) {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}

// ShortProjectID is the first six characters of the project id with dashes removed.
func ShortProjectID(projectID string) string {
	s := strings.ReplaceAll(projectID, "-", "")
	if len(s) > 6 {
		s = s[:6]
	}
	return s
}

// JobFilename builds the file name for a batch of an item.
func JobFilename(projectID, itemName string, batchNumber int) string {
	slug := Slugify(itemName)
	if slug == "" {
		slug = "Item"
	}
	return fmt.Sprintf("PRJ-%s-%s-B%d.3mf", ShortProjectID(projectID), slug, batchNumber)
}

// Parse splits a conventional filename. ok is false when name does not follow it.
func Parse(name string) (Parsed, bool) {
	m := filePattern.FindStringSubmatch(name)
	if m == nil {
		return Parsed{}, false
	}
	n, err := strconv.Atoi(m[3])
	if err != nil {
		return Parsed{}, false
	}
	return Parsed{ProjectShortID: strings.ToLower(m[1]), ItemSlug: m[2], BatchNumber: n}, true
}
