// Package match holds the pure text-normalization and identity-matching
// helpers shared by the search index, the resolver and the job engine.
// Nothing in here does I/O or keeps state.
package match

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/cesargomez89/tidepool/internal/domain"
)

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	schemeHostRe = regexp.MustCompile(`(?i)^https?://[^/]+`)
	queryFragRe  = regexp.MustCompile(`[?#].*$`)
	trailSlashRe = regexp.MustCompile(`/+$`)
	digitsOnlyRe = regexp.MustCompile(`^\d+$`)
	trackPathRe  = regexp.MustCompile(`(?i)/tracks?/(\d+)`)
	quotesRe     = regexp.MustCompile("[\"'`]")
	bracketsRe   = regexp.MustCompile(`[()\[\]{}]`)
	punctRunRe   = regexp.MustCompile(`[|/\\,:;!?]+`)
	nonAlnumRe   = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizeText casefolds and collapses whitespace for equality checks.
func NormalizeText(value string) string {
	return strings.ToLower(NormalizeDisplay(value))
}

// NormalizeDisplay collapses whitespace without changing case.
func NormalizeDisplay(value string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(value, " "))
}

// NormalizeURL reduces a URL to a comparable path: scheme and host
// stripped, query/fragment removed, trailing slashes dropped, lowercased.
func NormalizeURL(value string) string {
	input := strings.TrimSpace(value)
	if input == "" {
		return ""
	}
	input = strings.ToLower(input)
	input = schemeHostRe.ReplaceAllString(input, "")
	input = queryFragRe.ReplaceAllString(input, "")
	return trailSlashRe.ReplaceAllString(input, "")
}

// ExtractCatalogID pulls a stable track identifier out of a raw id
// value or a catalog URL path segment. Returns "" when none is present.
func ExtractCatalogID(value string) string {
	input := NormalizeDisplay(value)
	if input == "" {
		return ""
	}
	if digitsOnlyRe.MatchString(input) {
		return input
	}
	if m := trackPathRe.FindStringSubmatch(input); m != nil {
		return m[1]
	}
	return ""
}

// ItemCatalogID resolves an item's catalog id from its id field first,
// then from its URL.
func ItemCatalogID(item *domain.Item) string {
	if item == nil {
		return ""
	}
	if id := ExtractCatalogID(item.CatalogID); id != "" {
		return id
	}
	return ExtractCatalogID(item.URL)
}

// IsUnknown reports whether a metadata value carries no information.
func IsUnknown(value string) bool {
	normalized := NormalizeText(value)
	return normalized == "" || normalized == "unknown" || normalized == "unknown artist"
}

// CleanQueryPart strips quoting and punctuation that confuses the
// in-session search box, keeping a plain space-separated phrase.
func CleanQueryPart(value string) string {
	out := NormalizeDisplay(value)
	out = quotesRe.ReplaceAllString(out, " ")
	out = bracketsRe.ReplaceAllString(out, " ")
	out = punctRunRe.ReplaceAllString(out, " ")
	return NormalizeDisplay(out)
}

// Tokenize splits a value into lowercase alphanumeric tokens for
// overlap scoring.
func Tokenize(value string) []string {
	normalized := NormalizeText(value)
	normalized = quotesRe.ReplaceAllString(normalized, "")
	normalized = strings.TrimSpace(nonAlnumRe.ReplaceAllString(normalized, " "))
	if normalized == "" {
		return nil
	}
	return strings.Fields(normalized)
}

// TokenOverlap scores how many source tokens appear in target,
// weighted and scaled by the larger token count. Zero when either set
// is empty.
func TokenOverlap(source, target []string, weight int) int {
	if len(source) == 0 || len(target) == 0 {
		return 0
	}
	targetSet := make(map[string]struct{}, len(target))
	for _, token := range target {
		targetSet[token] = struct{}{}
	}
	matched := 0
	for _, token := range source {
		if _, ok := targetSet[token]; ok {
			matched++
		}
	}
	max := len(source)
	if len(target) > max {
		max = len(target)
	}
	ratio := float64(matched) / float64(max)
	return int(ratio*float64(weight) + 0.5)
}

// ScoreField compares two already-normalized strings: exact match
// scores exact, one containing the other scores partial, otherwise 0.
func ScoreField(candidate, target string, exact, partial int) int {
	if candidate == "" || target == "" {
		return 0
	}
	if candidate == target {
		return exact
	}
	if strings.Contains(candidate, target) || strings.Contains(target, candidate) {
		return partial
	}
	return 0
}

// ClampProgress bounds a progress value to [0,100].
func ClampProgress(value int) int {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

// ParseFilenameMetadata derives artist and title from an
// "Artist - Title.ext" filename stem. A stem without a separator is
// treated as a bare title.
func ParseFilenameMetadata(filename string) (artist, title string) {
	stem := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	stem = NormalizeDisplay(stem)
	// filepath.Base turns empty or separator-only paths into "." / "/".
	if stem == "" || stem == "." || stem == "/" {
		return "", ""
	}
	parts := strings.Split(stem, " - ")
	cleaned := parts[:0]
	for _, part := range parts {
		if p := strings.TrimSpace(part); p != "" {
			cleaned = append(cleaned, p)
		}
	}
	if len(cleaned) >= 2 {
		return cleaned[0], strings.Join(cleaned[1:], " - ")
	}
	return "", stem
}

// MergeMetadata fills primary's unknown title/artist/album from
// fallback, and missing artwork/duration likewise. Neither input is
// mutated.
func MergeMetadata(primary, fallback domain.Item) domain.Item {
	merged := primary
	if IsUnknown(merged.Title) && NormalizeDisplay(fallback.Title) != "" {
		merged.Title = NormalizeDisplay(fallback.Title)
	}
	if IsUnknown(merged.Artist) && NormalizeDisplay(fallback.Artist) != "" {
		merged.Artist = NormalizeDisplay(fallback.Artist)
	}
	if IsUnknown(merged.Album) && NormalizeDisplay(fallback.Album) != "" {
		merged.Album = NormalizeDisplay(fallback.Album)
	}
	if merged.ArtworkURL == "" && fallback.ArtworkURL != "" {
		merged.ArtworkURL = fallback.ArtworkURL
	}
	if merged.Duration <= 0 && fallback.Duration > 0 {
		merged.Duration = fallback.Duration
	}
	return merged
}

// ApplyFilenameFallback merges artist/title parsed from the downloaded
// filename into an item as a last resort.
func ApplyFilenameFallback(item domain.Item, filename string) domain.Item {
	artist, title := ParseFilenameMetadata(filename)
	return MergeMetadata(item, domain.Item{Artist: artist, Title: title})
}
