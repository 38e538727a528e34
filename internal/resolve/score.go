// Package resolve turns a loosely-specified download request into a
// session-backed, actually downloadable item.
package resolve

import (
	"github.com/cesargomez89/tidepool/internal/domain"
	"github.com/cesargomez89/tidepool/internal/match"
)

// Scoring weights. Identity signals dwarf text similarity so that a
// catalog-id or URL match can never be outvoted by fuzzy text.
const (
	weightCatalogIDExact = 1200
	weightURLExact       = 1000
	weightURLSuffix      = 700
	penaltyIDMismatch    = -35

	weightTitleExact   = 140
	weightTitlePartial = 90
	weightTitleTokens  = 80

	weightArtistExact   = 45
	weightArtistPartial = 20

	weightAlbumExact   = 65
	weightAlbumPartial = 30
	weightAlbumTokens  = 30

	bonusDurationExact  = 55
	bonusDurationClose  = 40 // within 2s
	bonusDurationNear   = 22 // within 5s
	penaltyDurationFar  = -15
	durationFarCutoff   = 20
	durationCloseCutoff = 2
	durationNearCutoff  = 5

	// strongMatchScore is the early-stop threshold: a candidate this
	// good ends the variant loop without trying further queries.
	strongMatchScore = 140
)

// profile is the precomputed target the candidates are scored against.
type profile struct {
	title       string
	artist      string
	album       string
	titleTokens []string
	albumTokens []string
	duration    int
	catalogID   string
	url         string
}

func buildProfile(item domain.Item) profile {
	return profile{
		title:       match.NormalizeText(item.Title),
		artist:      match.NormalizeText(item.Artist),
		album:       match.NormalizeText(item.Album),
		titleTokens: match.Tokenize(item.Title),
		albumTokens: match.Tokenize(item.Album),
		duration:    item.Duration,
		catalogID:   match.ItemCatalogID(&item),
		url:         match.NormalizeURL(item.URL),
	}
}

// score rates a candidate against the target profile. exact means an
// identity-level match (catalog id or canonical URL) that should
// short-circuit the whole search.
func score(candidate domain.Item, target profile) (points int, exact bool) {
	candidateID := match.ItemCatalogID(&candidate)
	if target.catalogID != "" && candidateID != "" {
		if candidateID == target.catalogID {
			return weightCatalogIDExact, true
		}
		points += penaltyIDMismatch
	}

	candidateURL := match.NormalizeURL(candidate.URL)
	if target.url != "" && candidateURL != "" {
		if candidateURL == target.url {
			return weightURLExact, true
		}
		if suffixMatch(candidateURL, target.url) {
			points += weightURLSuffix
		}
	}

	title := match.NormalizeText(candidate.Title)
	points += match.ScoreField(title, target.title, weightTitleExact, weightTitlePartial)
	points += match.TokenOverlap(match.Tokenize(candidate.Title), target.titleTokens, weightTitleTokens)

	artist := match.NormalizeText(candidate.Artist)
	points += match.ScoreField(artist, target.artist, weightArtistExact, weightArtistPartial)

	album := match.NormalizeText(candidate.Album)
	points += match.ScoreField(album, target.album, weightAlbumExact, weightAlbumPartial)
	points += match.TokenOverlap(match.Tokenize(candidate.Album), target.albumTokens, weightAlbumTokens)

	points += durationScore(candidate.Duration, target.duration)
	return points, false
}

func durationScore(candidate, target int) int {
	if candidate <= 0 || target <= 0 {
		return 0
	}
	diff := candidate - target
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff == 0:
		return bonusDurationExact
	case diff <= durationCloseCutoff:
		return bonusDurationClose
	case diff <= durationNearCutoff:
		return bonusDurationNear
	case diff >= durationFarCutoff:
		return penaltyDurationFar
	default:
		return 0
	}
}

// suffixMatch catches the common case where one side carries a longer
// path prefix (locale segment, share slug) in front of the same track
// path.
func suffixMatch(a, b string) bool {
	if len(a) < len(b) {
		a, b = b, a
	}
	if len(b) < 8 {
		return false
	}
	return len(a) > len(b) && a[len(a)-len(b):] == b
}
