package usecase

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/kt-search/internal/core/domain"
	"github.com/kirillkom/kt-search/internal/core/ports"
)

const (
	defaultRegistryTTL        = time.Hour
	defaultMinChunksPerClient = 5
	fuzzyMatchFloor           = 0.3
	levenshteinMatchWeight    = 0.85
	levenshteinMatchFloor     = 0.8
)

var ignoredClientMarkers = []string{"UNKNOWN", "CLIENTE_DESCONHECIDO", "NULL", "NONE", "TEST", "TESTE", "DEBUG"}

var knownClientVariations = map[string][]string{
	"VÍSSIMO":  {"VISSIMO", "Víssimo", "víssimo", "vissimo", "Vissimo"},
	"ARCO":     {"Arco", "arco"},
	"DEXCO":    {"Dexco", "dexco"},
	"GRAN CRU": {"Gran Cru", "gran cru", "GranCru", "grancru"},
}

type RegistryOptions struct {
	TTL       time.Duration
	MinChunks int
	Now       func() time.Time
}

// ClientRegistry discovers clients from the vector store payloads and caches
// them for a TTL. Stale entries are served when a refresh fails.
type ClientRegistry struct {
	store      ports.VectorStore
	similarity ports.Similarity
	ttl        time.Duration
	minChunks  int
	now        func() time.Time

	mu           sync.RWMutex
	clients      map[string]domain.ClientInfo
	discoveredAt time.Time
}

func NewClientRegistry(store ports.VectorStore, similarity ports.Similarity, opts RegistryOptions) *ClientRegistry {
	if opts.TTL <= 0 {
		opts.TTL = defaultRegistryTTL
	}
	if opts.MinChunks <= 0 {
		opts.MinChunks = defaultMinChunksPerClient
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &ClientRegistry{
		store:      store,
		similarity: similarity,
		ttl:        opts.TTL,
		minChunks:  opts.MinChunks,
		now:        opts.Now,
	}
}

func (r *ClientRegistry) Discover(ctx context.Context) (map[string]domain.ClientInfo, error) {
	r.mu.RLock()
	if r.clients != nil && r.now().Sub(r.discoveredAt) < r.ttl {
		clients := r.clients
		r.mu.RUnlock()
		return clients, nil
	}
	r.mu.RUnlock()

	counts, err := r.store.DistinctValues(ctx, fieldClientName)
	if err != nil {
		r.mu.RLock()
		stale := r.clients
		r.mu.RUnlock()
		if stale != nil {
			slog.Warn("client_registry_refresh_failed", "error", err, "stale_clients", len(stale))
			return stale, nil
		}
		return nil, domain.WrapError(domain.ErrProviderUnavailable, "discover clients", err)
	}

	discovered := make(map[string]domain.ClientInfo, len(counts))
	for name, count := range counts {
		if ignoreClientName(name) || count < r.minChunks {
			continue
		}
		info := domain.ClientInfo{
			Name:       name,
			Variations: ClientVariations(name),
			ChunkCount: count,
		}
		discovered[normalizedClientKey(name)] = info
	}

	r.mu.Lock()
	r.clients = discovered
	r.discoveredAt = r.now()
	r.mu.Unlock()
	return discovered, nil
}

// Clients returns the discovered clients sorted by name.
func (r *ClientRegistry) Clients(ctx context.Context) ([]domain.ClientInfo, error) {
	clients, err := r.Discover(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ClientInfo, 0, len(clients))
	for _, info := range clients {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Invalidate forces the next Discover to hit the store.
func (r *ClientRegistry) Invalidate() {
	r.mu.Lock()
	r.discoveredAt = time.Time{}
	r.mu.Unlock()
}

// Match returns the best scoring client for term. A zero ClientMatch means no hit.
func (r *ClientRegistry) Match(ctx context.Context, term string) (domain.ClientMatch, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return domain.ClientMatch{}, nil
	}
	clients, err := r.Discover(ctx)
	if err != nil {
		return domain.ClientMatch{}, err
	}

	var best domain.ClientMatch
	names := make([]string, 0, len(clients))
	for key := range clients {
		names = append(names, key)
	}
	sort.Strings(names)
	for _, key := range names {
		info := clients[key]
		score := exactClientScore(term, key, info)
		if score == 0 {
			score = r.fuzzyClientScore(term, info)
			if score <= fuzzyMatchFloor {
				continue
			}
		}
		if score > best.Score {
			best = domain.ClientMatch{Name: info.Name, Score: score}
		}
	}
	return best, nil
}

func exactClientScore(term, normalizedName string, info domain.ClientInfo) float64 {
	upper := strings.ToUpper(term)
	if upper == strings.ToUpper(info.Name) {
		return 1.0
	}
	if upper == normalizedName {
		return 0.95
	}
	for _, v := range info.Variations {
		if upper == strings.ToUpper(v) {
			return 0.9
		}
	}
	return 0
}

func (r *ClientRegistry) fuzzyClientScore(term string, info domain.ClientInfo) float64 {
	termLower := strings.ToLower(term)
	termFolded := foldKey(term)
	best := 0.0
	for _, v := range info.Variations {
		varLower := strings.ToLower(v)
		varFolded := foldKey(v)
		if varLower == "" || termLower == "" {
			continue
		}
		if strings.Contains(varLower, termLower) {
			best = max(best, float64(runeLen(termLower))/float64(runeLen(varLower))*0.8)
		}
		if strings.Contains(varFolded, termFolded) {
			best = max(best, float64(runeLen(termFolded))/float64(runeLen(varFolded))*0.7)
		}
		if strings.Contains(termLower, varLower) {
			best = max(best, float64(runeLen(varLower))/float64(runeLen(termLower))*0.6)
		}
		if r.similarity != nil {
			if ratio := r.similarity.Ratio(termFolded, varFolded); ratio >= levenshteinMatchFloor {
				best = max(best, ratio*levenshteinMatchWeight)
			}
		}
	}
	return best
}

func ignoreClientName(name string) bool {
	if strings.TrimSpace(name) == "" {
		return true
	}
	upper := strings.ToUpper(name)
	for _, marker := range ignoredClientMarkers {
		if strings.Contains(upper, marker) {
			return true
		}
	}
	return false
}

func normalizedClientKey(name string) string {
	return strings.ToUpper(foldAccents(name))
}

// ClientVariations lists the spellings a client may appear under, sorted.
func ClientVariations(name string) []string {
	if name == "" || strings.EqualFold(name, "UNKNOWN") {
		return nil
	}
	var set orderedSet
	folded := foldAccents(name)
	set.add(name, folded,
		strings.ToUpper(name), strings.ToLower(name), capitalize(name),
		strings.ToUpper(folded), strings.ToLower(folded), capitalize(folded))
	if clean := stripNonWord(name); clean != "" {
		set.add(clean, strings.ToUpper(clean), strings.ToLower(clean))
	}
	for standard, variants := range knownClientVariations {
		if matchesAnyFold(name, standard, variants) {
			set.add(standard)
			set.add(variants...)
		}
	}
	out := append([]string(nil), set.values()...)
	sort.Strings(out)
	return out
}

func matchesAnyFold(name, standard string, variants []string) bool {
	if strings.EqualFold(name, standard) {
		return true
	}
	for _, v := range variants {
		if strings.EqualFold(name, v) {
			return true
		}
	}
	return false
}

// knownClientNames lists display names for the not-found message.
func knownClientNames(clients map[string]domain.ClientInfo) []string {
	names := make([]string, 0, len(clients))
	for _, info := range clients {
		names = append(names, info.Name)
	}
	sort.Strings(names)
	return names
}
