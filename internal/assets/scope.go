package assets

import "github.com/starford/ansuz/internal/models"

// Scope deduplicates resources by digest. One Scope covers one output note.
type Scope struct {
	byDigest map[string]*models.Resource
	order    []*models.Resource
}

// NewScope returns an empty Scope.
func NewScope() *Scope {
	return &Scope{byDigest: make(map[string]*models.Resource)}
}

// Get returns the resource with digest, if any.
func (s *Scope) Get(digest string) (*models.Resource, bool) {
	r, ok := s.byDigest[digest]
	return r, ok
}

// Add registers r unless a resource with the same digest exists, and
// returns the registered resource.
func (s *Scope) Add(r *models.Resource) *models.Resource {
	if existing, ok := s.byDigest[r.Digest]; ok {
		return existing
	}
	s.byDigest[r.Digest] = r
	s.order = append(s.order, r)
	return r
}

// Resources returns the resources in first-referenced order.
func (s *Scope) Resources() []*models.Resource {
	return s.order
}

// Len returns the number of unique resources.
func (s *Scope) Len() int {
	return len(s.order)
}
