// Package repotest provides an in-memory repository.Store for service tests.
//
// WithTx snapshots the whole state and restores it when fn fails, so a test
// can assert that a failed operation left no partial writes. Transactions are
// serialized by a single mutex.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/helixir/research-registry-service/internal/dedup"
	"github.com/helixir/research-registry-service/internal/domain"
	"github.com/helixir/research-registry-service/internal/repository"
)

type state struct {
	nextID        int64
	persons       map[int64]domain.Person
	publications  map[int64]*domain.Publication
	authorships   map[int64]domain.Authorship
	memberships   map[int64]domain.Membership
	organizations map[int64]domain.ResearchOrganization
	edges         map[[2]int64]bool
	journals      map[int64]domain.Journal
	conferences   map[int64]domain.Conference
	relations     map[repository.Relation][]int64
	events        []*domain.OutboxEvent
	locks         []string
}

func newState() *state {
	return &state{
		persons:       map[int64]domain.Person{},
		publications:  map[int64]*domain.Publication{},
		authorships:   map[int64]domain.Authorship{},
		memberships:   map[int64]domain.Membership{},
		organizations: map[int64]domain.ResearchOrganization{},
		edges:         map[[2]int64]bool{},
		journals:      map[int64]domain.Journal{},
		conferences:   map[int64]domain.Conference{},
		relations:     map[repository.Relation][]int64{},
	}
}

func (s *state) clone() *state {
	c := newState()
	c.nextID = s.nextID
	for k, v := range s.persons {
		c.persons[k] = clonePerson(v)
	}
	for k, v := range s.publications {
		c.publications[k] = clonePublication(v)
	}
	for k, v := range s.authorships {
		c.authorships[k] = v
	}
	for k, v := range s.memberships {
		c.memberships[k] = v
	}
	for k, v := range s.organizations {
		c.organizations[k] = v
	}
	for k, v := range s.edges {
		c.edges[k] = v
	}
	for k, v := range s.journals {
		c.journals[k] = v
	}
	for k, v := range s.conferences {
		c.conferences[k] = v
	}
	for k, v := range s.relations {
		c.relations[k] = append([]int64(nil), v...)
	}
	c.events = append(c.events, s.events...)
	c.locks = append(c.locks, s.locks...)
	return c
}

func (s *state) id() int64 {
	s.nextID++
	return s.nextID
}

// Store is an in-memory repository.Store.
type Store struct {
	mu sync.Mutex
	st *state

	// FailOn makes the named operation fail with the returned error. Keys are
	// "<Repo>.<Method>", e.g. "Persons.Delete". A nil error disables the hook.
	FailOn map[string]error
}

var _ repository.Store = (*Store)(nil)

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{st: newState(), FailOn: map[string]error{}}
}

// Repos returns repositories that lock the store per call.
func (s *Store) Repos() repository.Repos {
	return s.repos(true)
}

// WithTx runs fn with exclusive access and rolls the state back on error.
func (s *Store) WithTx(ctx context.Context, fn func(r repository.Repos) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	defer func() {
		if p := recover(); p != nil {
			s.st = snapshot
			panic(p)
		}
		if err != nil {
			s.st = snapshot
		}
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := fn(s.repos(false)); err != nil {
		return err
	}
	return s.st.checkDeferred()
}

// checkDeferred enforces the constraints PostgreSQL checks at commit.
func (s *state) checkDeferred() error {
	seen := map[[2]int64]bool{}
	for _, a := range s.authorships {
		key := [2]int64{a.PublicationID, int64(a.Rank)}
		if seen[key] {
			return fmt.Errorf("duplicate rank %d on publication %d", a.Rank, a.PublicationID)
		}
		seen[key] = true
	}
	return nil
}

func (s *Store) repos(locking bool) repository.Repos {
	b := &base{store: s, locking: locking}
	return repository.Repos{
		Persons:       &persons{b},
		Publications:  &publications{b},
		Authorships:   &authorships{b},
		Memberships:   &memberships{b},
		Organizations: &organizations{b},
		Venues:        &venues{b},
		Relations:     &relations{b},
		Events:        &events{b},
		Locker:        &locker{b},
	}
}

type base struct {
	store   *Store
	locking bool
}

// do runs fn on the current state, honoring FailOn.
func (b *base) do(op string, fn func(st *state) error) error {
	if b.locking {
		b.store.mu.Lock()
		defer b.store.mu.Unlock()
	}
	if err := b.store.FailOn[op]; err != nil {
		return err
	}
	return fn(b.store.st)
}

// Seeding and inspection helpers. They take the store lock and must not be
// called from inside WithTx.

// AddPerson stores p and returns it with its assigned id.
func (s *Store) AddPerson(first, last string) domain.Person {
	p := domain.Person{FirstName: first, LastName: last}
	if err := s.Repos().Persons.Create(context.Background(), &p); err != nil {
		panic(err)
	}
	return p
}

// AddPublication stores a publication of kind with the given authors in rank order.
func (s *Store) AddPublication(kind domain.PublicationType, title string, year int, authorIDs ...int64) *domain.Publication {
	pub, err := domain.NewPublication(kind, title)
	if err != nil {
		panic(err)
	}
	pub.PublicationYear = year
	r := s.Repos()
	if err := r.Publications.Create(context.Background(), pub); err != nil {
		panic(err)
	}
	for rank, id := range authorIDs {
		if err := r.Authorships.Create(context.Background(), &domain.Authorship{PersonID: id, PublicationID: pub.ID, Rank: rank}); err != nil {
			panic(err)
		}
	}
	return pub
}

// AddRelationRow adds a row of rel referencing personID.
func (s *Store) AddRelationRow(rel repository.Relation, personID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.relations[rel] = append(s.st.relations[rel], personID)
}

// RelationCount counts rows of rel referencing personID.
func (s *Store) RelationCount(rel repository.Relation, personID int64) int {
	n, _ := s.Repos().Relations.Count(context.Background(), rel, personID)
	return n
}

// AuthorIDs returns the person ids of a publication in rank order.
func (s *Store) AuthorIDs(publicationID int64) []int64 {
	list, _ := s.Repos().Authorships.ListByPublication(context.Background(), publicationID)
	ids := make([]int64, len(list))
	for i, a := range list {
		ids[i] = a.PersonID
	}
	return ids
}

// Ranks returns the ranks of a publication's authorships in order.
func (s *Store) Ranks(publicationID int64) []int {
	list, _ := s.Repos().Authorships.ListByPublication(context.Background(), publicationID)
	ranks := make([]int, len(list))
	for i, a := range list {
		ranks[i] = a.Rank
	}
	return ranks
}

// Events returns the outbox events written so far.
func (s *Store) Events() []*domain.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*domain.OutboxEvent(nil), s.st.events...)
}

// Locks returns the locks taken so far as "scope:id".
func (s *Store) Locks() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.st.locks...)
}

// Counts reports the number of stored persons, publications and authorships.
func (s *Store) Counts() (persons, publications, authorships int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.persons), len(s.st.publications), len(s.st.authorships)
}

func clonePerson(p domain.Person) domain.Person {
	if p.Indicators != nil {
		ind := make(domain.Indicators, len(p.Indicators))
		for k, v := range p.Indicators {
			ind[k] = v
		}
		p.Indicators = ind
	}
	return p
}

func clonePublication(p *domain.Publication) *domain.Publication {
	c, err := domain.Transform(p, p.Kind)
	if err != nil {
		cp := *p
		return &cp
	}
	return c
}

func notFound(entity string, id int64) error {
	return domain.NewNotFoundError(entity, strconv.FormatInt(id, 10))
}

// persons

type persons struct{ *base }

func (r *persons) NextID(ctx context.Context) (int64, error) {
	var id int64
	err := r.do("Persons.NextID", func(st *state) error {
		id = st.id()
		return nil
	})
	return id, err
}

func (r *persons) Create(ctx context.Context, p *domain.Person) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return r.do("Persons.Create", func(st *state) error {
		if p.ORCID != "" {
			for _, other := range st.persons {
				if other.ORCID == p.ORCID {
					return domain.NewAlreadyExistsError("person", p.FullName())
				}
			}
		}
		if p.ID == 0 {
			p.ID = st.id()
		} else if _, ok := st.persons[p.ID]; ok {
			return domain.NewAlreadyExistsError("person", strconv.FormatInt(p.ID, 10))
		}
		now := time.Now()
		p.Version, p.CreatedAt, p.UpdatedAt = 1, now, now
		st.persons[p.ID] = clonePerson(*p)
		return nil
	})
}

func (r *persons) Get(ctx context.Context, id int64) (*domain.Person, error) {
	var out *domain.Person
	err := r.do("Persons.Get", func(st *state) error {
		p, ok := st.persons[id]
		if !ok {
			return notFound("person", id)
		}
		c := clonePerson(p)
		out = &c
		return nil
	})
	return out, err
}

func (r *persons) Update(ctx context.Context, p *domain.Person) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return r.do("Persons.Update", func(st *state) error {
		cur, ok := st.persons[p.ID]
		if !ok {
			return notFound("person", p.ID)
		}
		if cur.Version != p.Version {
			return domain.NewConflictError("person", strconv.FormatInt(p.ID, 10), p.Version)
		}
		p.Version++
		p.UpdatedAt = time.Now()
		p.Indicators = cur.Indicators
		st.persons[p.ID] = clonePerson(*p)
		return nil
	})
}

func (r *persons) Delete(ctx context.Context, id int64) error {
	return r.do("Persons.Delete", func(st *state) error {
		if _, ok := st.persons[id]; !ok {
			return notFound("person", id)
		}
		referenced := false
		for _, a := range st.authorships {
			referenced = referenced || a.PersonID == id
		}
		for _, m := range st.memberships {
			referenced = referenced || m.PersonID == id
		}
		for _, rows := range st.relations {
			for _, pid := range rows {
				referenced = referenced || pid == id
			}
		}
		if referenced {
			return domain.NewBusinessRuleError("person_referenced",
				fmt.Sprintf("person %d is still referenced by other records", id))
		}
		delete(st.persons, id)
		return nil
	})
}

func (r *persons) List(ctx context.Context, filter repository.PersonFilter) ([]*domain.Person, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}
	var out []*domain.Person
	var total int64
	err := r.do("Persons.List", func(st *state) error {
		name := strings.ToLower(strings.TrimSpace(filter.Name))
		var all []domain.Person
		for _, p := range st.persons {
			if name == "" || strings.Contains(strings.ToLower(p.FirstName), name) || strings.Contains(strings.ToLower(p.LastName), name) {
				all = append(all, clonePerson(p))
			}
		}
		sort.Slice(all, func(i, j int) bool { return domain.ComparePersons(all[i], all[j]) < 0 })
		total = int64(len(all))
		for i := filter.Offset; i < len(all) && i < filter.Offset+filter.Limit; i++ {
			p := all[i]
			out = append(out, &p)
		}
		return nil
	})
	return out, total, err
}

func (r *persons) find(op string, match func(domain.Person) bool) ([]*domain.Person, error) {
	var out []*domain.Person
	err := r.do(op, func(st *state) error {
		for _, p := range st.persons {
			if match(p) {
				c := clonePerson(p)
				out = append(out, &c)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

func (r *persons) FindByName(ctx context.Context, first, last string) ([]*domain.Person, error) {
	key := repository.NameKey(first, last)
	return r.find("Persons.FindByName", func(p domain.Person) bool {
		return repository.NameKey(p.FirstName, p.LastName) == key
	})
}

func (r *persons) FindByLastName(ctx context.Context, last string) ([]*domain.Person, error) {
	key := repository.LastNameKey(last)
	return r.find("Persons.FindByLastName", func(p domain.Person) bool {
		return repository.LastNameKey(p.LastName) == key
	})
}

func (r *persons) ListAll(ctx context.Context) ([]domain.Person, error) {
	ptrs, err := r.find("Persons.ListAll", func(domain.Person) bool { return true })
	return deref(ptrs), err
}

func (r *persons) ListWithPlatformIDs(ctx context.Context) ([]domain.Person, error) {
	ptrs, err := r.find("Persons.ListWithPlatformIDs", func(p domain.Person) bool {
		return p.ScopusID != "" || p.OpenAlexID != "" || p.ORCID != ""
	})
	return deref(ptrs), err
}

func (r *persons) UpdateIndicators(ctx context.Context, id int64, indicators domain.Indicators) error {
	return r.do("Persons.UpdateIndicators", func(st *state) error {
		p, ok := st.persons[id]
		if !ok {
			return notFound("person", id)
		}
		p.Indicators = indicators
		st.persons[id] = clonePerson(p)
		return nil
	})
}

func deref(ptrs []*domain.Person) []domain.Person {
	out := make([]domain.Person, len(ptrs))
	for i, p := range ptrs {
		out[i] = *p
	}
	return out
}

// publications

type publications struct{ *base }

func checkVenues(st *state, p *domain.Publication) error {
	if id := p.JournalID(); id != 0 {
		if _, ok := st.journals[id]; !ok {
			return notFound("journal", id)
		}
	}
	if id := p.ConferenceID(); id != 0 {
		if _, ok := st.conferences[id]; !ok {
			return notFound("conference", id)
		}
	}
	return nil
}

func (r *publications) Create(ctx context.Context, p *domain.Publication) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return r.do("Publications.Create", func(st *state) error {
		if err := checkVenues(st, p); err != nil {
			return err
		}
		p.ID = st.id()
		now := time.Now()
		p.Version, p.CreatedAt, p.UpdatedAt = 1, now, now
		st.publications[p.ID] = clonePublication(p)
		return nil
	})
}

func (r *publications) Get(ctx context.Context, id int64) (*domain.Publication, error) {
	var out *domain.Publication
	err := r.do("Publications.Get", func(st *state) error {
		p, ok := st.publications[id]
		if !ok {
			return notFound("publication", id)
		}
		out = clonePublication(p)
		return nil
	})
	return out, err
}

func (r *publications) Update(ctx context.Context, p *domain.Publication) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return r.do("Publications.Update", func(st *state) error {
		cur, ok := st.publications[p.ID]
		if !ok {
			return notFound("publication", p.ID)
		}
		if cur.Version != p.Version {
			return domain.NewConflictError("publication", strconv.FormatInt(p.ID, 10), p.Version)
		}
		if err := checkVenues(st, p); err != nil {
			return err
		}
		p.Version++
		p.UpdatedAt = time.Now()
		st.publications[p.ID] = clonePublication(p)
		return nil
	})
}

func (r *publications) Delete(ctx context.Context, id int64) error {
	return r.do("Publications.Delete", func(st *state) error {
		if _, ok := st.publications[id]; !ok {
			return notFound("publication", id)
		}
		delete(st.publications, id)
		for aid, a := range st.authorships {
			if a.PublicationID == id {
				delete(st.authorships, aid)
			}
		}
		return nil
	})
}

func (r *publications) List(ctx context.Context, filter repository.PublicationFilter) ([]*domain.Publication, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}
	var out []*domain.Publication
	var total int64
	err := r.do("Publications.List", func(st *state) error {
		ids := map[int64]bool{}
		for _, id := range filter.IDs {
			ids[id] = true
		}
		authored := map[int64]bool{}
		for _, a := range st.authorships {
			if a.PersonID == filter.PersonID {
				authored[a.PublicationID] = true
			}
		}
		var all []*domain.Publication
		for _, p := range st.publications {
			switch {
			case filter.PersonID != 0 && !authored[p.ID]:
			case filter.Year != 0 && p.PublicationYear != filter.Year:
			case filter.Kind != "" && p.Kind != filter.Kind:
			case len(ids) > 0 && !ids[p.ID]:
			default:
				all = append(all, clonePublication(p))
			}
		}
		sort.Slice(all, func(i, j int) bool {
			if all[i].PublicationYear != all[j].PublicationYear {
				return all[i].PublicationYear > all[j].PublicationYear
			}
			return all[i].ID < all[j].ID
		})
		total = int64(len(all))
		for i := filter.Offset; i < len(all) && i < filter.Offset+filter.Limit; i++ {
			out = append(out, all[i])
		}
		return nil
	})
	return out, total, err
}

func (r *publications) FindByDOI(ctx context.Context, doi string) (*domain.Publication, error) {
	var out *domain.Publication
	err := r.do("Publications.FindByDOI", func(st *state) error {
		for _, p := range st.publications {
			if p.DOI != "" && strings.EqualFold(p.DOI, doi) {
				out = clonePublication(p)
				return nil
			}
		}
		return domain.NewNotFoundError("publication", doi)
	})
	return out, err
}

func (r *publications) FindTitleCandidates(ctx context.Context, title string, year int) ([]*domain.Publication, error) {
	key := dedup.NormalizeTitle(title)
	var out []*domain.Publication
	err := r.do("Publications.FindTitleCandidates", func(st *state) error {
		for _, p := range st.publications {
			if dedup.NormalizeTitle(p.Title) == key || (year != 0 && p.PublicationYear == year) {
				out = append(out, clonePublication(p))
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

// authorships

type authorships struct{ *base }

func (r *authorships) list(op string, match func(domain.Authorship) bool) ([]*domain.Authorship, error) {
	var out []*domain.Authorship
	err := r.do(op, func(st *state) error {
		for _, a := range st.authorships {
			if match(a) {
				c := a
				out = append(out, &c)
			}
		}
		return nil
	})
	return out, err
}

func (r *authorships) ListByPublication(ctx context.Context, publicationID int64) ([]*domain.Authorship, error) {
	out, err := r.list("Authorships.ListByPublication", func(a domain.Authorship) bool { return a.PublicationID == publicationID })
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rank != out[j].Rank {
			return out[i].Rank < out[j].Rank
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (r *authorships) ListByPerson(ctx context.Context, personID int64) ([]*domain.Authorship, error) {
	out, err := r.list("Authorships.ListByPerson", func(a domain.Authorship) bool { return a.PersonID == personID })
	sort.Slice(out, func(i, j int) bool { return out[i].PublicationID < out[j].PublicationID })
	return out, err
}

func (r *authorships) Create(ctx context.Context, a *domain.Authorship) error {
	if a.Rank < 0 {
		return domain.NewValidationError("rank", "must not be negative")
	}
	return r.do("Authorships.Create", func(st *state) error {
		if _, ok := st.persons[a.PersonID]; !ok {
			return notFound("person", a.PersonID)
		}
		if _, ok := st.publications[a.PublicationID]; !ok {
			return notFound("publication", a.PublicationID)
		}
		for _, other := range st.authorships {
			if other.PublicationID == a.PublicationID && other.PersonID == a.PersonID {
				return domain.NewAlreadyExistsError("authorship",
					fmt.Sprintf("person %d on publication %d", a.PersonID, a.PublicationID))
			}
		}
		a.ID = st.id()
		st.authorships[a.ID] = *a
		return nil
	})
}

func (r *authorships) UpdateRank(ctx context.Context, id int64, rank int) error {
	return r.do("Authorships.UpdateRank", func(st *state) error {
		a, ok := st.authorships[id]
		if !ok {
			return notFound("authorship", id)
		}
		a.Rank = rank
		st.authorships[id] = a
		return nil
	})
}

func (r *authorships) Reassign(ctx context.Context, id, personID int64) error {
	return r.do("Authorships.Reassign", func(st *state) error {
		a, ok := st.authorships[id]
		if !ok {
			return notFound("authorship", id)
		}
		for oid, other := range st.authorships {
			if oid != id && other.PublicationID == a.PublicationID && other.PersonID == personID {
				return domain.NewAlreadyExistsError("authorship", fmt.Sprintf("person %d", personID))
			}
		}
		a.PersonID = personID
		st.authorships[id] = a
		return nil
	})
}

func (r *authorships) Delete(ctx context.Context, id int64) error {
	return r.do("Authorships.Delete", func(st *state) error {
		if _, ok := st.authorships[id]; !ok {
			return notFound("authorship", id)
		}
		delete(st.authorships, id)
		return nil
	})
}

func (r *authorships) CountByPerson(ctx context.Context, personID int64) (int, error) {
	list, err := r.list("Authorships.CountByPerson", func(a domain.Authorship) bool { return a.PersonID == personID })
	return len(list), err
}

// memberships

type memberships struct{ *base }

func (r *memberships) Create(ctx context.Context, m *domain.Membership) error {
	if err := m.Validate(); err != nil {
		return err
	}
	return r.do("Memberships.Create", func(st *state) error {
		if _, ok := st.persons[m.PersonID]; !ok {
			return notFound("person", m.PersonID)
		}
		if _, ok := st.organizations[m.OrganizationID]; !ok {
			return notFound("organization", m.OrganizationID)
		}
		m.ID = st.id()
		st.memberships[m.ID] = *m
		return nil
	})
}

func (r *memberships) Get(ctx context.Context, id int64) (*domain.Membership, error) {
	var out *domain.Membership
	err := r.do("Memberships.Get", func(st *state) error {
		m, ok := st.memberships[id]
		if !ok {
			return notFound("membership", id)
		}
		out = &m
		return nil
	})
	return out, err
}

func (r *memberships) Delete(ctx context.Context, id int64) error {
	return r.do("Memberships.Delete", func(st *state) error {
		if _, ok := st.memberships[id]; !ok {
			return notFound("membership", id)
		}
		delete(st.memberships, id)
		return nil
	})
}

func (r *memberships) list(op string, match func(domain.Membership) bool) ([]*domain.Membership, error) {
	var out []*domain.Membership
	err := r.do(op, func(st *state) error {
		for _, m := range st.memberships {
			if match(m) {
				c := m
				out = append(out, &c)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

func (r *memberships) ListByPerson(ctx context.Context, personID int64) ([]*domain.Membership, error) {
	return r.list("Memberships.ListByPerson", func(m domain.Membership) bool { return m.PersonID == personID })
}

func (r *memberships) ListByOrganization(ctx context.Context, organizationID int64) ([]*domain.Membership, error) {
	return r.list("Memberships.ListByOrganization", func(m domain.Membership) bool { return m.OrganizationID == organizationID })
}

// organizations

type organizations struct{ *base }

func (r *organizations) Create(ctx context.Context, o *domain.ResearchOrganization) error {
	if err := o.Validate(); err != nil {
		return err
	}
	return r.do("Organizations.Create", func(st *state) error {
		o.ID = st.id()
		o.Version = 1
		o.CreatedAt = time.Now()
		st.organizations[o.ID] = *o
		return nil
	})
}

func (r *organizations) Get(ctx context.Context, id int64) (*domain.ResearchOrganization, error) {
	var out *domain.ResearchOrganization
	err := r.do("Organizations.Get", func(st *state) error {
		o, ok := st.organizations[id]
		if !ok {
			return notFound("organization", id)
		}
		out = &o
		return nil
	})
	return out, err
}

func (r *organizations) List(ctx context.Context) ([]*domain.ResearchOrganization, error) {
	var out []*domain.ResearchOrganization
	err := r.do("Organizations.List", func(st *state) error {
		for _, o := range st.organizations {
			c := o
			out = append(out, &c)
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		return nil
	})
	return out, err
}

func (r *organizations) AddEdge(ctx context.Context, superID, subID int64) error {
	return r.do("Organizations.AddEdge", func(st *state) error {
		if _, ok := st.organizations[superID]; !ok {
			return notFound("organization", superID)
		}
		if _, ok := st.organizations[subID]; !ok {
			return notFound("organization", subID)
		}
		key := [2]int64{superID, subID}
		if st.edges[key] {
			return domain.NewAlreadyExistsError("organization edge", fmt.Sprintf("%d->%d", superID, subID))
		}
		st.edges[key] = true
		return nil
	})
}

func (r *organizations) RemoveEdge(ctx context.Context, superID, subID int64) error {
	return r.do("Organizations.RemoveEdge", func(st *state) error {
		key := [2]int64{superID, subID}
		if !st.edges[key] {
			return domain.NewNotFoundError("organization edge", fmt.Sprintf("%d->%d", superID, subID))
		}
		delete(st.edges, key)
		return nil
	})
}

func (r *organizations) edgeIDs(op string, pick func(edge [2]int64) (int64, bool)) ([]int64, error) {
	var out []int64
	err := r.do(op, func(st *state) error {
		for e := range st.edges {
			if id, ok := pick(e); ok {
				out = append(out, id)
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
		return nil
	})
	return out, err
}

func (r *organizations) SuperIDs(ctx context.Context, id int64) ([]int64, error) {
	return r.edgeIDs("Organizations.SuperIDs", func(e [2]int64) (int64, bool) { return e[0], e[1] == id })
}

func (r *organizations) SubIDs(ctx context.Context, id int64) ([]int64, error) {
	return r.edgeIDs("Organizations.SubIDs", func(e [2]int64) (int64, bool) { return e[1], e[0] == id })
}

// venues

type venues struct{ *base }

func (r *venues) FindJournal(ctx context.Context, name, issn string) (*domain.Journal, error) {
	var out *domain.Journal
	err := r.do("Venues.FindJournal", func(st *state) error {
		ids := make([]int64, 0, len(st.journals))
		for id := range st.journals {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		if issn = strings.TrimSpace(issn); issn != "" {
			for _, id := range ids {
				if j := st.journals[id]; j.ISSN == issn {
					out = &j
					return nil
				}
			}
		}
		for _, id := range ids {
			if j := st.journals[id]; strings.EqualFold(j.Name, strings.TrimSpace(name)) {
				out = &j
				return nil
			}
		}
		return domain.NewNotFoundError("journal", name)
	})
	return out, err
}

func (r *venues) CreateJournal(ctx context.Context, j *domain.Journal) error {
	if strings.TrimSpace(j.Name) == "" {
		return domain.NewValidationError("journal.name", "is required")
	}
	return r.do("Venues.CreateJournal", func(st *state) error {
		for _, other := range st.journals {
			if strings.EqualFold(other.Name, strings.TrimSpace(j.Name)) {
				return domain.NewAlreadyExistsError("journal", j.Name)
			}
		}
		j.ID = st.id()
		st.journals[j.ID] = *j
		return nil
	})
}

func (r *venues) GetJournal(ctx context.Context, id int64) (*domain.Journal, error) {
	var out *domain.Journal
	err := r.do("Venues.GetJournal", func(st *state) error {
		j, ok := st.journals[id]
		if !ok {
			return notFound("journal", id)
		}
		out = &j
		return nil
	})
	return out, err
}

func (r *venues) FindConference(ctx context.Context, name string) (*domain.Conference, error) {
	var out *domain.Conference
	err := r.do("Venues.FindConference", func(st *state) error {
		for _, c := range st.conferences {
			if strings.EqualFold(c.Name, strings.TrimSpace(name)) {
				c := c
				out = &c
				return nil
			}
		}
		return domain.NewNotFoundError("conference", name)
	})
	return out, err
}

func (r *venues) CreateConference(ctx context.Context, c *domain.Conference) error {
	if strings.TrimSpace(c.Name) == "" {
		return domain.NewValidationError("conference.name", "is required")
	}
	return r.do("Venues.CreateConference", func(st *state) error {
		for _, other := range st.conferences {
			if strings.EqualFold(other.Name, strings.TrimSpace(c.Name)) {
				return domain.NewAlreadyExistsError("conference", c.Name)
			}
		}
		c.ID = st.id()
		st.conferences[c.ID] = *c
		return nil
	})
}

func (r *venues) GetConference(ctx context.Context, id int64) (*domain.Conference, error) {
	var out *domain.Conference
	err := r.do("Venues.GetConference", func(st *state) error {
		c, ok := st.conferences[id]
		if !ok {
			return notFound("conference", id)
		}
		out = &c
		return nil
	})
	return out, err
}

// relations

type relations struct{ *base }

func (r *relations) Reassign(ctx context.Context, rel repository.Relation, from, to int64) (int, error) {
	var n int
	err := r.do("Relations.Reassign", func(st *state) error {
		if rel.Table == "memberships" {
			for id, m := range st.memberships {
				if m.PersonID == from {
					m.PersonID = to
					st.memberships[id] = m
					n++
				}
			}
			return nil
		}
		rows := st.relations[rel]
		for i, pid := range rows {
			if pid == from {
				rows[i] = to
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *relations) Count(ctx context.Context, rel repository.Relation, personID int64) (int, error) {
	var n int
	err := r.do("Relations.Count", func(st *state) error {
		if rel.Table == "memberships" {
			for _, m := range st.memberships {
				if m.PersonID == personID {
					n++
				}
			}
			return nil
		}
		for _, pid := range st.relations[rel] {
			if pid == personID {
				n++
			}
		}
		return nil
	})
	return n, err
}

// events and locks

type events struct{ *base }

func (r *events) Insert(ctx context.Context, e *domain.OutboxEvent) error {
	return r.do("Events.Insert", func(st *state) error {
		st.events = append(st.events, e)
		return nil
	})
}

type locker struct{ *base }

func (r *locker) Lock(ctx context.Context, scope string, id int64) error {
	return r.do("Locker.Lock", func(st *state) error {
		st.locks = append(st.locks, fmt.Sprintf("%s:%d", scope, id))
		return nil
	})
}
