package resolve

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/cesargomez89/tidepool/internal/domain"
	"github.com/cesargomez89/tidepool/internal/logger"
	"github.com/cesargomez89/tidepool/internal/match"
	"github.com/cesargomez89/tidepool/internal/search"
)

// Progress checkpoints reported during resolution. Advisory; the job
// patch never lets them move progress backward.
const (
	progressPreparing    = 10
	progressResolveStart = 22
	progressResolveEnd   = 34
	progressResolved     = 36
)

// Query variant caps. A known catalog id means identity confidence is
// already high, so fewer variants are tried.
const (
	maxQueryVariants       = 5
	maxQueryVariantsWithID = 3
)

var parentheticalRe = regexp.MustCompile(`\(([^)]*)\)`)

// SessionSearchFunc runs one in-session track search. thorough selects
// the slower scraping strategy used on the retry pass.
type SessionSearchFunc func(ctx context.Context, query string, thorough bool) ([]domain.Item, error)

// Resolver establishes a target identity from the last result set and,
// when the target has no live session handle, re-locates it inside the
// session by generated query variants and candidate scoring.
type Resolver struct {
	index         *search.Index
	sessionSearch SessionSearchFunc
	log           *logger.Logger
}

func New(index *search.Index, sessionSearch SessionSearchFunc, log *logger.Logger) *Resolver {
	return &Resolver{
		index:         index,
		sessionSearch: sessionSearch,
		log:           log.WithComponent("resolve"),
	}
}

// Resolve turns a request into a downloadable item. onProgress may be
// nil.
func (r *Resolver) Resolve(ctx context.Context, req domain.DownloadRequest, onProgress func(int)) (domain.Item, error) {
	report := func(p int) {
		if onProgress != nil {
			onProgress(p)
		}
	}
	report(progressPreparing)

	target, err := r.targetIdentity(req)
	if err != nil {
		return domain.Item{}, err
	}
	if !target.Downloadable && fromResultSet(r.index, target) {
		return domain.Item{}, fmt.Errorf("%w: %q", domain.ErrNotDownloadable, target.Title)
	}

	// Already session-backed: nothing to re-locate.
	if target.SessionHandle != "" {
		report(progressResolved)
		return target, nil
	}

	winner, err := r.relocate(ctx, target, report)
	if err != nil {
		return domain.Item{}, err
	}
	report(progressResolved)

	// Keep the caller-visible metadata; the candidate contributes its
	// handle and fills anything the caller left unknown.
	merged := match.MergeMetadata(target, winner)
	merged.SessionHandle = winner.SessionHandle
	merged.Downloadable = true
	if merged.CatalogID == "" {
		merged.CatalogID = winner.CatalogID
	}
	if merged.URL == "" {
		merged.URL = winner.URL
	}
	return merged, nil
}

// Validate establishes the target identity and checks downloadability
// without touching the session. The job engine runs it before creating
// a job so a malformed request never produces a visible record.
func (r *Resolver) Validate(req domain.DownloadRequest) (domain.Item, error) {
	target, err := r.targetIdentity(req)
	if err != nil {
		return domain.Item{}, err
	}
	if !target.Downloadable && fromResultSet(r.index, target) {
		return domain.Item{}, fmt.Errorf("%w: %q", domain.ErrNotDownloadable, target.Title)
	}
	return target, nil
}

// targetIdentity picks the item the request is talking about.
func (r *Resolver) targetIdentity(req domain.DownloadRequest) (domain.Item, error) {
	if req.Index != nil {
		item, ok := r.index.ByPosition(*req.Index)
		if !ok {
			return domain.Item{}, fmt.Errorf("%w: no result at position %d", domain.ErrNotFound, *req.Index)
		}
		if req.Target == nil || metadataAgrees(item, *req.Target) {
			// Position-indexed items come straight from the result set,
			// so their downloadable flag is authoritative even without a
			// catalog id or URL to re-verify against.
			if !item.Downloadable {
				return domain.Item{}, fmt.Errorf("%w: %q", domain.ErrNotDownloadable, item.Title)
			}
			return item, nil
		}
		// The index and the supplied metadata disagree; trust the
		// metadata and look it up on its own.
		r.log.Debug("index/metadata disagreement, falling back to metadata lookup",
			"position", *req.Index, "title", req.Target.Title)
		return r.identityFromMetadata(*req.Target)
	}
	if req.Target != nil {
		return r.identityFromMetadata(*req.Target)
	}
	return domain.Item{}, fmt.Errorf("%w: request carries neither position nor metadata", domain.ErrValidation)
}

func (r *Resolver) identityFromMetadata(target domain.Item) (domain.Item, error) {
	if id := match.ItemCatalogID(&target); id != "" {
		if item, ok := r.index.ByCatalogID(id); ok {
			return item, nil
		}
	}
	if target.URL != "" {
		if item, ok := r.index.ByURL(target.URL); ok {
			return item, nil
		}
	}
	if target.Title != "" {
		if item, ok := r.index.ByMetadata(target.Title, target.Artist, target.Album, target.Duration); ok {
			return item, nil
		}
		if item, ok := r.index.ByTitleArtist(target.Title, target.Artist); ok {
			return item, nil
		}
		// Not in the last result set; the supplied metadata itself is
		// enough of an identity to search the session for.
		return target, nil
	}
	return domain.Item{}, fmt.Errorf("%w: no candidate identity in request", domain.ErrNotFound)
}

// metadataAgrees checks an indexed item against caller-supplied
// metadata: catalog ids decide when both sides have one, otherwise
// title plus artist/album when both sides carry them.
func metadataAgrees(item, target domain.Item) bool {
	itemID := match.ItemCatalogID(&item)
	targetID := match.ItemCatalogID(&target)
	if itemID != "" && targetID != "" {
		return itemID == targetID
	}
	if target.Title != "" && match.NormalizeText(item.Title) != match.NormalizeText(target.Title) {
		return false
	}
	if item.Artist != "" && target.Artist != "" &&
		match.NormalizeText(item.Artist) != match.NormalizeText(target.Artist) {
		return false
	}
	if item.Album != "" && target.Album != "" &&
		match.NormalizeText(item.Album) != match.NormalizeText(target.Album) {
		return false
	}
	return true
}

// relocate finds the target inside the live session via query variants
// and scoring.
func (r *Resolver) relocate(ctx context.Context, target domain.Item, report func(int)) (domain.Item, error) {
	targetProfile := buildProfile(target)
	variants := buildQueries(target)
	if len(variants) == 0 {
		return domain.Item{}, fmt.Errorf("%w: nothing to search for", domain.ErrNotFound)
	}

	var best domain.Item
	bestScore := -1 << 30
	var lastErr error

	for i, query := range variants {
		select {
		case <-ctx.Done():
			return domain.Item{}, fmt.Errorf("%w: resolution", domain.ErrTimeout)
		default:
		}
		report(resolveProgress(i, len(variants)))

		candidates, err := r.searchWithRetry(ctx, query)
		if err != nil {
			lastErr = err
			continue
		}

		for _, candidate := range candidates {
			if candidate.SessionHandle == "" {
				continue
			}
			points, exact := score(candidate, targetProfile)
			if exact {
				r.log.Debug("exact identity match", "query", query, "score", points)
				return candidate, nil
			}
			if points > bestScore {
				bestScore = points
				best = candidate
			}
		}
		if bestScore >= strongMatchScore {
			r.log.Debug("strong match, stopping early", "query", query, "score", bestScore)
			break
		}
	}

	if best.SessionHandle == "" {
		if lastErr != nil {
			return domain.Item{}, fmt.Errorf("%w: %v", domain.ErrResolutionFailed, lastErr)
		}
		return domain.Item{}, fmt.Errorf("%w: %q", domain.ErrResolutionFailed, target.Title)
	}
	r.log.Info("resolved by scoring", "title", target.Title, "score", bestScore)
	return best, nil
}

// searchWithRetry runs the fast scraping strategy and falls back to
// the thorough one when it returns nothing.
func (r *Resolver) searchWithRetry(ctx context.Context, query string) ([]domain.Item, error) {
	items, err := r.sessionSearch(ctx, query, false)
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		return items, nil
	}
	return r.sessionSearch(ctx, query, true)
}

// resolveProgress spreads the resolving band across the variant loop.
func resolveProgress(attempt, total int) int {
	if total <= 1 {
		return progressResolveStart
	}
	span := progressResolveEnd - progressResolveStart
	return progressResolveStart + span*attempt/(total-1)
}

// buildQueries generates the ordered search-query variants for a
// target: raw title, cleaned title, parenthetical handling, and both
// orderings of an "Artist - Track" shaped title, each combined with
// artist or album context where available.
func buildQueries(target domain.Item) []string {
	limit := maxQueryVariants
	if match.ItemCatalogID(&target) != "" {
		limit = maxQueryVariantsWithID
	}

	title := match.NormalizeDisplay(target.Title)
	artist := match.NormalizeDisplay(target.Artist)
	if match.IsUnknown(artist) {
		artist = ""
	}
	if title == "" {
		return nil
	}

	var bases []string
	add := func(base string) {
		base = match.NormalizeDisplay(base)
		if base == "" {
			return
		}
		for _, seen := range bases {
			if strings.EqualFold(seen, base) {
				return
			}
		}
		bases = append(bases, base)
	}

	add(title)
	add(match.CleanQueryPart(title))

	// Parenthetical clauses like (From "Movie") hurt search recall:
	// try the title without them, and the clause content on its own.
	if m := parentheticalRe.FindStringSubmatch(title); m != nil {
		stripped := parentheticalRe.ReplaceAllString(title, " ")
		add(match.CleanQueryPart(stripped))
		if inner := match.CleanQueryPart(m[1]); inner != "" {
			add(match.CleanQueryPart(stripped) + " " + inner)
		}
	}

	// "X - Y" titles are often "artist - track" in disguise.
	if parts := strings.SplitN(title, " - ", 2); len(parts) == 2 {
		left, right := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if left != "" && right != "" {
			add(match.CleanQueryPart(right + " " + left))
		}
	}

	queries := make([]string, 0, limit)
	for _, base := range bases {
		if len(queries) >= limit {
			break
		}
		query := base
		if artist != "" && !strings.Contains(strings.ToLower(base), strings.ToLower(artist)) {
			query = base + " " + artist
		}
		queries = append(queries, query)
	}
	return queries
}

// fromResultSet reports whether the identity came out of the stored
// result set rather than straight from caller metadata. Only stored
// items carry an authoritative downloadable flag.
func fromResultSet(index *search.Index, item domain.Item) bool {
	if id := match.ItemCatalogID(&item); id != "" {
		if found, ok := index.ByCatalogID(id); ok {
			return found.Index == item.Index && found.Title == item.Title
		}
	}
	if item.URL != "" {
		if found, ok := index.ByURL(item.URL); ok {
			return found.Index == item.Index && found.Title == item.Title
		}
	}
	return false
}

// IsTimeout reports whether an error chain carries a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, domain.ErrTimeout) || errors.Is(err, context.DeadlineExceeded)
}
