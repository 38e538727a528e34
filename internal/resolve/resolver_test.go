package resolve

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/cesargomez89/tidepool/internal/domain"
	"github.com/cesargomez89/tidepool/internal/logger"
	"github.com/cesargomez89/tidepool/internal/search"
)

type fakeSearch struct {
	queries []string
	results map[string][]domain.Item // matched by substring
	err     error
}

func (f *fakeSearch) fn(ctx context.Context, query string, thorough bool) ([]domain.Item, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	for needle, items := range f.results {
		if strings.Contains(strings.ToLower(query), strings.ToLower(needle)) {
			return items, nil
		}
	}
	return nil, nil
}

func newTestResolver(items []domain.Item, fake *fakeSearch) *Resolver {
	idx := search.NewIndex()
	idx.Replace(items)
	return New(idx, fake.fn, logger.Default())
}

func intPtr(v int) *int { return &v }

func TestResolveSessionBackedItemIsIdempotent(t *testing.T) {
	items := []domain.Item{
		{Index: 0, Title: "Blue Monday", Artist: "New Order", Downloadable: true, SessionHandle: "h1", CatalogID: "100"},
	}
	fake := &fakeSearch{}
	r := newTestResolver(items, fake)

	got, err := r.Resolve(context.Background(), domain.DownloadRequest{Index: intPtr(0)}, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.SessionHandle != "h1" || got.Title != "Blue Monday" {
		t.Errorf("item changed: %+v", got)
	}
	if len(fake.queries) != 0 {
		t.Errorf("no session search should run for a session-backed item, got %v", fake.queries)
	}
}

func TestResolveUnknownPosition(t *testing.T) {
	r := newTestResolver(nil, &fakeSearch{})
	_, err := r.Resolve(context.Background(), domain.DownloadRequest{Index: intPtr(5)}, nil)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}

func TestResolveEmptyRequest(t *testing.T) {
	r := newTestResolver(nil, &fakeSearch{})
	_, err := r.Resolve(context.Background(), domain.DownloadRequest{}, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestResolveNotDownloadable(t *testing.T) {
	items := []domain.Item{
		{Index: 0, Title: "Blocked", Artist: "X", Downloadable: false, CatalogID: "55"},
	}
	r := newTestResolver(items, &fakeSearch{})
	_, err := r.Resolve(context.Background(), domain.DownloadRequest{Index: intPtr(0)}, nil)
	if !errors.Is(err, domain.ErrNotDownloadable) {
		t.Errorf("error = %v, want ErrNotDownloadable", err)
	}
}

func TestResolveNotDownloadableWithoutIdentity(t *testing.T) {
	// No catalog id and no URL: the position alone proves the item came
	// from the result set, so its downloadable flag still binds.
	items := []domain.Item{
		{Index: 0, Title: "Blocked", Artist: "X", Downloadable: false},
	}
	r := newTestResolver(items, &fakeSearch{})

	_, err := r.Resolve(context.Background(), domain.DownloadRequest{Index: intPtr(0)}, nil)
	if !errors.Is(err, domain.ErrNotDownloadable) {
		t.Errorf("Resolve error = %v, want ErrNotDownloadable", err)
	}
	_, err = r.Validate(domain.DownloadRequest{Index: intPtr(0)})
	if !errors.Is(err, domain.ErrNotDownloadable) {
		t.Errorf("Validate error = %v, want ErrNotDownloadable", err)
	}
}

func TestResolveRelocatesFastPathItem(t *testing.T) {
	items := []domain.Item{
		{Index: 0, Title: "Blue Monday", Artist: "New Order", Album: "Substance",
			Duration: 447, Downloadable: true, CatalogID: "100"},
	}
	fake := &fakeSearch{results: map[string][]domain.Item{
		"blue monday": {
			{Title: "Blue Monday", Artist: "New Order", Duration: 447,
				SessionHandle: "h9", CatalogID: "100", Downloadable: true},
		},
	}}
	r := newTestResolver(items, fake)

	var progress []int
	got, err := r.Resolve(context.Background(), domain.DownloadRequest{Index: intPtr(0)}, func(p int) {
		progress = append(progress, p)
	})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.SessionHandle != "h9" {
		t.Errorf("winner handle = %q, want h9", got.SessionHandle)
	}
	if got.Title != "Blue Monday" || got.Album != "Substance" {
		t.Errorf("caller metadata should be preserved: %+v", got)
	}
	if len(progress) == 0 || progress[0] != 10 || progress[len(progress)-1] != 36 {
		t.Errorf("progress checkpoints = %v", progress)
	}
	for i := 1; i < len(progress); i++ {
		if progress[i] < progress[i-1] {
			t.Errorf("progress moved backward: %v", progress)
		}
	}
}

func TestResolveParentheticalVariants(t *testing.T) {
	target := &domain.Item{Title: `Song (From "Movie")`, Artist: "X", Downloadable: true}
	// A weak candidate keeps the score below the strong-match early
	// stop so every variant gets queried.
	fake := &fakeSearch{results: map[string][]domain.Item{
		"song": {
			{Title: "zzz", SessionHandle: "h1", Downloadable: true},
		},
	}}
	r := newTestResolver(nil, fake)

	got, err := r.Resolve(context.Background(), domain.DownloadRequest{Target: target}, nil)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got.SessionHandle != "h1" {
		t.Errorf("handle = %q", got.SessionHandle)
	}

	var strippedSeen, isolatedSeen bool
	for _, q := range fake.queries {
		lower := strings.ToLower(q)
		if strings.Contains(lower, "song") && !strings.Contains(lower, "movie") {
			strippedSeen = true
		}
		if strings.Contains(lower, "movie") && !strings.Contains(lower, "(") {
			isolatedSeen = true
		}
	}
	if !strippedSeen {
		t.Errorf("no variant with parenthetical stripped in %v", fake.queries)
	}
	if !isolatedSeen {
		t.Errorf("no variant isolating the parenthetical in %v", fake.queries)
	}
}

func TestResolveFailsWhenNoSessionCandidate(t *testing.T) {
	target := &domain.Item{Title: "Ghost Track", Artist: "Nobody", Downloadable: true}
	fake := &fakeSearch{} // every query returns nothing
	r := newTestResolver(nil, fake)

	_, err := r.Resolve(context.Background(), domain.DownloadRequest{Target: target}, nil)
	if !errors.Is(err, domain.ErrResolutionFailed) {
		t.Errorf("error = %v, want ErrResolutionFailed", err)
	}
}

func TestResolveSurfacesLastSearchError(t *testing.T) {
	target := &domain.Item{Title: "Ghost Track", Downloadable: true}
	fake := &fakeSearch{err: errors.New("scrape blew up")}
	r := newTestResolver(nil, fake)

	_, err := r.Resolve(context.Background(), domain.DownloadRequest{Target: target}, nil)
	if !errors.Is(err, domain.ErrResolutionFailed) {
		t.Fatalf("error = %v, want ErrResolutionFailed", err)
	}
	if !strings.Contains(err.Error(), "scrape blew up") {
		t.Errorf("underlying search error should be surfaced, got %v", err)
	}
}

func TestBuildQueriesCaps(t *testing.T) {
	noID := buildQueries(domain.Item{Title: `A (From "B") - C`, Artist: "Artist"})
	if len(noID) > maxQueryVariants {
		t.Errorf("got %d variants, cap is %d", len(noID), maxQueryVariants)
	}
	withID := buildQueries(domain.Item{Title: `A (From "B") - C`, Artist: "Artist", CatalogID: "42"})
	if len(withID) > maxQueryVariantsWithID {
		t.Errorf("got %d variants with known id, cap is %d", len(withID), maxQueryVariantsWithID)
	}
}

func TestScoreMonotonicity(t *testing.T) {
	target := buildProfile(domain.Item{
		Title: "Blue Monday", Artist: "New Order", Album: "Substance",
		Duration: 447, CatalogID: "100", URL: "/song/blue-monday",
	})

	idMatch, exact := score(domain.Item{CatalogID: "100"}, target)
	if !exact || idMatch != weightCatalogIDExact {
		t.Errorf("catalog id match = (%d, %v)", idMatch, exact)
	}

	// A /track/<id> URL carries the catalog id, so it matches at the id
	// level, above plain URL equality.
	idFromURL, exact := score(domain.Item{URL: "https://host/track/100"}, target)
	if !exact || idFromURL != weightCatalogIDExact {
		t.Errorf("id-bearing url match = (%d, %v)", idFromURL, exact)
	}

	urlMatch, exact := score(domain.Item{URL: "https://host/song/blue-monday"}, target)
	if !exact || urlMatch != weightURLExact {
		t.Errorf("url match = (%d, %v)", urlMatch, exact)
	}

	textOnly, exact := score(domain.Item{
		Title: "Blue Monday", Artist: "New Order", Album: "Substance", Duration: 447,
	}, target)
	if exact {
		t.Error("text-only match must not be exact")
	}
	if textOnly >= weightURLExact {
		t.Errorf("text-only score %d must stay below identity scores", textOnly)
	}
	if textOnly < strongMatchScore {
		t.Errorf("full text agreement should be a strong match, got %d", textOnly)
	}

	// Duration closeness never decreases the score.
	prev := -1 << 30
	for _, dur := range []int{400, 430, 444, 446, 447} {
		s, _ := score(domain.Item{Title: "Blue Monday", Duration: dur}, target)
		if s < prev {
			t.Errorf("score decreased as duration approached: dur=%d score=%d prev=%d", dur, s, prev)
		}
		prev = s
	}
}

func TestScoreIDMismatchPenalty(t *testing.T) {
	target := buildProfile(domain.Item{Title: "Blue Monday", CatalogID: "100"})
	with, _ := score(domain.Item{Title: "Blue Monday", CatalogID: "999"}, target)
	without, _ := score(domain.Item{Title: "Blue Monday"}, target)
	if with != without+penaltyIDMismatch {
		t.Errorf("mismatched ids should cost %d: with=%d without=%d", penaltyIDMismatch, with, without)
	}
}

func TestSearchWithRetryUsesThoroughPass(t *testing.T) {
	calls := 0
	var thoroughSeen []bool
	r := New(search.NewIndex(), func(ctx context.Context, query string, thorough bool) ([]domain.Item, error) {
		calls++
		thoroughSeen = append(thoroughSeen, thorough)
		if !thorough {
			return nil, nil
		}
		return []domain.Item{{Title: "found", SessionHandle: "h1"}}, nil
	}, logger.Default())

	items, err := r.searchWithRetry(context.Background(), "q")
	if err != nil || len(items) != 1 {
		t.Fatalf("searchWithRetry = (%v, %v)", items, err)
	}
	if calls != 2 || thoroughSeen[0] || !thoroughSeen[1] {
		t.Errorf("expected fast then thorough, got %v", thoroughSeen)
	}
}
