package mockserver

import (
	"sort"
	"strings"

	"github.com/form3tech-oss/pact-engine/internal/app/contract"
	"github.com/form3tech-oss/pact-engine/internal/app/matching"
)

type route struct {
	method string
	path   string
}

// Interactions is the frozen index of the interactions a server serves. It is built
// once before serving and only read afterwards.
type Interactions struct {
	mode matching.PathMode
	all  []*registered

	byRoute map[route][]*registered
	// interactions whose path is matched by a rule can match any path
	scanned       []*registered
	byDescription map[string]*registered
}

func newInteractions(interactions []contract.Interaction, mode matching.PathMode) *Interactions {
	index := &Interactions{
		mode:          mode,
		byRoute:       map[route][]*registered{},
		byDescription: map[string]*registered{},
	}

	for seq, interaction := range interactions {
		r := &registered{seq: seq, interaction: interaction}
		index.all = append(index.all, r)
		if _, ok := index.byDescription[interaction.Description]; !ok {
			index.byDescription[interaction.Description] = r
		}

		if _, ok := interaction.Request.MatchingRules["$.path"]; ok {
			index.scanned = append(index.scanned, r)
			continue
		}
		key := route{
			method: strings.ToUpper(interaction.Request.Method),
			path:   matching.PathTemplate(interaction.Request.Path, mode),
		}
		index.byRoute[key] = append(index.byRoute[key], r)
	}
	return index
}

// Candidates returns the interactions that may match a request to path, in
// registration order.
func (i *Interactions) Candidates(method, path string) []*registered {
	method = strings.ToUpper(method)
	exact := i.byRoute[route{method: method, path: matching.PathTemplate(path, i.mode)}]
	if len(i.scanned) == 0 {
		return exact
	}

	result := append([]*registered(nil), exact...)
	for _, r := range i.scanned {
		if strings.EqualFold(r.interaction.Request.Method, method) {
			result = append(result, r)
		}
	}
	sort.SliceStable(result, func(a, b int) bool { return result[a].seq < result[b].seq })
	return result
}

// Load finds an interaction by description, the first registered wins when several
// provider states share one.
func (i *Interactions) Load(description string) (*registered, bool) {
	r, ok := i.byDescription[description]
	return r, ok
}

func (i *Interactions) All() []*registered {
	return i.all
}

func (i *Interactions) AllHaveRequests() bool {
	for _, r := range i.all {
		if !r.HasRequests(1) {
			return false
		}
	}
	return true
}

func (i *Interactions) Unused() []contract.Identity {
	var unused []contract.Identity
	for _, r := range i.all {
		if !r.HasRequests(1) {
			unused = append(unused, r.identity())
		}
	}
	return unused
}
