package selector

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"toolgate/internal/catalog"
	"toolgate/internal/config"
	"toolgate/internal/embedding"
	"toolgate/internal/logging"
	"toolgate/pkg/models"
)

// ScoredEntry is one ranked selection result. Entry is nil when a core
// tool id is configured but not (yet) present in the catalog; the id is
// still surfaced so the caller can bind it once the registry catches up.
type ScoredEntry struct {
	ID    string
	Entry models.CatalogEntry
	Score float64
	Core  bool
}

// Ranked is the bounded tool/skill list handed to the reasoning loop for
// one turn.
type Ranked struct {
	Entries []ScoredEntry
	// Ambiguous is set when the top two ranked entries come from
	// different domains and their scores are within the configured band.
	// It is advisory; the list is still best-effort ranked.
	Ambiguous bool
	// AmbiguityHint names the two contending entries when Ambiguous is
	// set, so the consumer can phrase a disambiguation question.
	AmbiguityHint string
	// AmbiguityPolicy echoes the configured consumer policy ("advise" or
	// "disambiguate").
	AmbiguityPolicy string
}

// Contains reports whether the given id is in the selection.
func (r *Ranked) Contains(id string) bool {
	for _, e := range r.Entries {
		if e.ID == id {
			return true
		}
	}
	return false
}

// Selector turns a free-text intent plus caller role into a short ranked
// list of admissible tools and skills. It is safe for concurrent use.
type Selector struct {
	index    *catalog.Index
	embedder embedding.Embedder
	cfg      config.RoutingConfig
	scorer   Scorer

	// lastDomain is the domain of the most recently dispatched tool,
	// reported by the gateway. It drives the domain affinity factor that
	// damps erratic cross-domain jumps between turns.
	mu         sync.RWMutex
	lastDomain string
}

// New creates a selector over the given index. A zero-value Scorer falls
// back to cosine similarity.
func New(index *catalog.Index, embedder embedding.Embedder, cfg config.RoutingConfig, scorer ...Scorer) *Selector {
	s := &Selector{
		index:    index,
		embedder: embedder,
		cfg:      cfg,
		scorer:   CosineScorer(),
	}
	if len(scorer) > 0 && scorer[0].Score != nil {
		s.scorer = scorer[0]
	}
	return s
}

// NoteInvocation records the domain of a dispatched tool for affinity
// scoring on the following turns. The gateway calls this after every
// successful dispatch.
func (s *Selector) NoteInvocation(toolID string) {
	e, ok := s.index.Get(toolID)
	if !ok {
		return
	}
	s.mu.Lock()
	s.lastDomain = e.EntryDomain()
	s.mu.Unlock()
}

// Select ranks the catalog against the query for the given caller role.
// history carries the last few user turns (most recent last) and must not
// include tool-result payloads; it disambiguates pronouns and ellipsis.
//
// Select never fails outright: when the index is empty or the embedder is
// down it returns the core set alone, so the reasoning loop always keeps
// its baseline capability.
func (s *Selector) Select(ctx context.Context, query string, role models.Role, history []string) (*Ranked, error) {
	out := &Ranked{AmbiguityPolicy: s.cfg.AmbiguityPolicy}

	queryVec, err := s.embedQuery(ctx, query, history)
	if err != nil {
		logging.Error("selector: query embedding failed, serving core set only: %v", err)
		s.appendCoreSet(out, role)
		return out, nil
	}

	s.mu.RLock()
	lastDomain := s.lastDomain
	s.mu.RUnlock()

	var ranked []ScoredEntry
	for _, e := range s.index.All() {
		// The role filter is absolute: no score can bring back an entry
		// the caller is not allowed to see.
		if e.EntryRole() > role {
			continue
		}
		score := s.scorer.Score(queryVec, e)
		if lastDomain != "" {
			if e.EntryDomain() == lastDomain {
				score *= s.cfg.DomainBoost
			} else {
				score *= s.cfg.DomainPenalty
			}
		}
		if score < s.cfg.Threshold {
			continue
		}
		ranked = append(ranked, ScoredEntry{ID: e.EntryID(), Entry: e, Score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	if len(ranked) >= 2 {
		top, second := ranked[0], ranked[1]
		if top.Entry.EntryDomain() != second.Entry.EntryDomain() &&
			top.Score-second.Score < s.cfg.AmbiguityDelta {
			out.Ambiguous = true
			out.AmbiguityHint = fmt.Sprintf("%q (%s) and %q (%s) rank nearly equal for this request",
				top.ID, top.Entry.EntryDomain(), second.ID, second.Entry.EntryDomain())
		}
	}

	if len(ranked) > s.cfg.TopK {
		ranked = ranked[:s.cfg.TopK]
	}
	out.Entries = ranked
	s.appendCoreSet(out, role)
	return out, nil
}

// appendCoreSet adds the configured core tools that the ranking did not
// already produce. Core entries skip scoring but not the role filter.
func (s *Selector) appendCoreSet(out *Ranked, role models.Role) {
	for _, id := range s.cfg.CoreTools {
		if out.Contains(id) {
			continue
		}
		e, ok := s.index.Get(id)
		if ok && e.EntryRole() > role {
			continue
		}
		out.Entries = append(out.Entries, ScoredEntry{ID: id, Entry: e, Core: true})
	}
}

// embedQuery folds the trailing history window into the query text and
// embeds the result.
func (s *Selector) embedQuery(ctx context.Context, query string, history []string) ([]float32, error) {
	window := s.cfg.HistoryWindow
	if window > 0 && len(history) > window {
		history = history[len(history)-window:]
	} else if window <= 0 {
		history = nil
	}
	text := query
	if len(history) > 0 {
		text = strings.Join(history, "\n") + "\n" + query
	}
	return s.embedder.Embed(ctx, text)
}
