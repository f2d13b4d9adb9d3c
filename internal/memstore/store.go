// Package memstore is an in-memory stand-in for the Postgres schema. It backs
// relation accessors, users and forwarders with maps, and implements
// database.Scoper with snapshot rollback so nested scopes behave like
// savepoints.
package memstore

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/schema"
)

const forwarderTable = "user_forwarders"

type fkRow struct {
	target string
	key    string
}

type fkTable struct {
	unique bool
	rows   map[string]fkRow
}

type link struct {
	owner  string
	target string
}

type junction struct {
	symmetric bool
	links     map[link]bool
}

type state struct {
	users      map[string]models.User
	forwarders map[string]models.UserForwarder
	fks        map[string]*fkTable
	junctions  map[string]*junction
}

func (s *state) clone() *state {
	c := &state{
		users:      make(map[string]models.User, len(s.users)),
		forwarders: make(map[string]models.UserForwarder, len(s.forwarders)),
		fks:        make(map[string]*fkTable, len(s.fks)),
		junctions:  make(map[string]*junction, len(s.junctions)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.forwarders {
		c.forwarders[k] = v
	}
	for name, t := range s.fks {
		rows := make(map[string]fkRow, len(t.rows))
		for k, v := range t.rows {
			rows[k] = v
		}
		c.fks[name] = &fkTable{unique: t.unique, rows: rows}
	}
	for name, j := range s.junctions {
		links := make(map[link]bool, len(j.links))
		for k, v := range j.links {
			links[k] = v
		}
		c.junctions[name] = &junction{symmetric: j.symmetric, links: links}
	}
	return c
}

type scopeKey struct{}

// Store holds all in-memory tables.
type Store struct {
	mu        sync.Mutex
	state     *state
	failOn    map[string]error
	scopes    int
	rollbacks int
}

func New() *Store {
	return &Store{
		state: &state{
			users:      make(map[string]models.User),
			forwarders: make(map[string]models.UserForwarder),
			fks:        make(map[string]*fkTable),
			junctions:  make(map[string]*junction),
		},
		failOn: make(map[string]error),
	}
}

// Atomic snapshots the store, runs fn and restores the snapshot if fn fails.
func (s *Store) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	snapshot := s.state.clone()
	s.scopes++
	s.mu.Unlock()

	depth, _ := ctx.Value(scopeKey{}).(int)
	if err := fn(context.WithValue(ctx, scopeKey{}, depth+1)); err != nil {
		s.mu.Lock()
		s.state = snapshot
		s.rollbacks++
		s.mu.Unlock()
		return err
	}
	return nil
}

// InScope reports whether ctx was derived inside Atomic.
func InScope(ctx context.Context) bool {
	depth, _ := ctx.Value(scopeKey{}).(int)
	return depth > 0
}

// Scopes is the number of scopes opened so far.
func (s *Store) Scopes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scopes
}

// Rollbacks is the number of scopes that were rolled back.
func (s *Store) Rollbacks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rollbacks
}

// FailOn makes every write to table return err.
func (s *Store) FailOn(table string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[table] = err
}

func (s *Store) failure(table string) error {
	return s.failOn[table]
}

// ForeignKey registers a foreign-key table and returns its accessor. With
// unique set, no two rows may share the same target and key.
func (s *Store) ForeignKey(table string, unique bool) schema.Accessor {
	s.mu.Lock()
	if _, ok := s.state.fks[table]; !ok {
		s.state.fks[table] = &fkTable{unique: unique, rows: make(map[string]fkRow)}
	}
	s.mu.Unlock()

	return schema.Accessor{
		Referencing: func(ctx context.Context, targetID string) ([]string, error) {
			s.mu.Lock()
			defer s.mu.Unlock()

			var ids []string
			for owner, row := range s.state.fks[table].rows {
				if row.target == targetID {
					ids = append(ids, owner)
				}
			}
			sort.Strings(ids)
			return ids, nil
		},
		Set: func(ctx context.Context, ownerID, from, to string) (bool, error) {
			s.mu.Lock()
			defer s.mu.Unlock()

			if err := s.failure(table); err != nil {
				return false, err
			}

			t := s.state.fks[table]
			row, ok := t.rows[ownerID]
			if !ok || row.target != from {
				return false, nil
			}
			if t.unique {
				for other, o := range t.rows {
					if other != ownerID && o.target == to && o.key == row.key {
						return false, errors.Wrapf(database.ErrUniqueViolation, "%s(%s)", table, other)
					}
				}
			}
			row.target = to
			t.rows[ownerID] = row
			return true, nil
		},
	}
}

// Junction registers a junction table and returns its accessor. Symmetric
// junctions store every link in both directions.
func (s *Store) Junction(table string, symmetric bool) schema.Accessor {
	s.mu.Lock()
	if _, ok := s.state.junctions[table]; !ok {
		s.state.junctions[table] = &junction{symmetric: symmetric, links: make(map[link]bool)}
	}
	s.mu.Unlock()

	return schema.Accessor{
		Referencing: func(ctx context.Context, targetID string) ([]string, error) {
			s.mu.Lock()
			defer s.mu.Unlock()

			var ids []string
			for l := range s.state.junctions[table].links {
				if l.target == targetID {
					ids = append(ids, l.owner)
				}
			}
			sort.Strings(ids)
			return ids, nil
		},
		Members: func(ctx context.Context, ownerID string) ([]string, error) {
			s.mu.Lock()
			defer s.mu.Unlock()
			return s.members(table, ownerID), nil
		},
		Add: func(ctx context.Context, ownerID string, targetIDs ...string) error {
			s.mu.Lock()
			defer s.mu.Unlock()

			if err := s.failure(table); err != nil {
				return err
			}
			j := s.state.junctions[table]
			for _, target := range targetIDs {
				if j.symmetric && target == ownerID {
					return fmt.Errorf("%s: check constraint violated linking %s to itself", table, ownerID)
				}
				j.links[link{owner: ownerID, target: target}] = true
				if j.symmetric {
					j.links[link{owner: target, target: ownerID}] = true
				}
			}
			return nil
		},
		Remove: func(ctx context.Context, ownerID string, targetIDs ...string) (bool, error) {
			s.mu.Lock()
			defer s.mu.Unlock()

			if err := s.failure(table); err != nil {
				return false, err
			}
			j := s.state.junctions[table]
			removed := false
			for _, target := range targetIDs {
				l := link{owner: ownerID, target: target}
				if j.links[l] {
					removed = true
					delete(j.links, l)
				}
				if j.symmetric {
					delete(j.links, link{owner: target, target: ownerID})
				}
			}
			return removed, nil
		},
	}
}

// Insert seeds a row of a foreign-key table.
func (s *Store) Insert(table, ownerID, targetID, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.fks[table].rows[ownerID] = fkRow{target: targetID, key: key}
}

// Link seeds a junction link.
func (s *Store) Link(table, ownerID, targetID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j := s.state.junctions[table]
	j.links[link{owner: ownerID, target: targetID}] = true
	if j.symmetric {
		j.links[link{owner: targetID, target: ownerID}] = true
	}
}

// TargetOf returns the target an owner row of a foreign-key table points at.
func (s *Store) TargetOf(table, ownerID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.fks[table].rows[ownerID].target
}

// MembersOf returns an owner's junction members, sorted.
func (s *Store) MembersOf(table, ownerID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.members(table, ownerID)
}

func (s *Store) members(table, ownerID string) []string {
	ids := []string{}
	for l := range s.state.junctions[table].links {
		if l.owner == ownerID {
			ids = append(ids, l.target)
		}
	}
	sort.Strings(ids)
	return ids
}

// AddUser seeds a user.
func (s *Store) AddUser(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
		user.UpdatedAt = user.CreatedAt
	}
	s.state.users[user.ID] = user
}

// User returns a copy of a stored user.
func (s *Store) User(id string) (models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.state.users[id]
	return u, ok
}

// Forwarders returns every forwarder keyed by source.
func (s *Store) Forwarders() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.state.forwarders))
	for source, fw := range s.state.forwarders {
		out[source] = fw.TargetID
	}
	return out
}

// Users exposes the store as a user repository.
func (s *Store) Users() *Users {
	return &Users{store: s}
}

// Forwards exposes the store as a forwarder repository.
func (s *Store) Forwards(maxDepth int) *Forwards {
	return &Forwards{store: s, maxDepth: maxDepth}
}

type Users struct {
	store *Store
}

func (u *Users) Get(ctx context.Context, id string) (*models.User, error) {
	user, ok := u.store.User(id)
	if !ok {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("user %s not found", id))
	}
	return &user, nil
}

func (u *Users) Deactivate(ctx context.Context, id string) error {
	s := u.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure("users"); err != nil {
		return err
	}
	user, ok := s.state.users[id]
	if !ok {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("user %s not found", id))
	}
	user.IsActive = false
	user.UpdatedAt = time.Now().UTC()
	s.state.users[id] = user
	return nil
}

type Forwards struct {
	store    *Store
	maxDepth int
}

// Forward applies the same policy as the Postgres repository: one forwarder
// per source, a forwarded target is replaced by its own target, chains
// pointing at the source collapse onto the target, and self-forwards are
// dropped.
func (f *Forwards) Forward(ctx context.Context, sourceID, targetID string) error {
	s := f.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failure(forwarderTable); err != nil {
		return err
	}

	now := time.Now().UTC()
	fws := s.state.forwarders
	if sourceID == targetID {
		delete(fws, sourceID)
		return nil
	}

	if fw, ok := fws[targetID]; ok {
		if fw.TargetID == sourceID {
			delete(fws, targetID)
		} else {
			targetID = fw.TargetID
		}
	}

	existing, ok := fws[sourceID]
	if !ok {
		existing = forwarder(sourceID, targetID)
		existing.CreatedAt = now
	}
	existing.TargetID = targetID
	existing.UpdatedAt = now
	fws[sourceID] = existing

	for source, fw := range fws {
		if fw.TargetID != sourceID {
			continue
		}
		if source == targetID {
			delete(fws, source)
			continue
		}
		fw.TargetID = targetID
		fw.UpdatedAt = now
		fws[source] = fw
	}
	return nil
}

func (f *Forwards) Resolve(ctx context.Context, userID string) (*models.Resolution, error) {
	s := f.store
	s.mu.Lock()
	defer s.mu.Unlock()

	res := &models.Resolution{RequestedID: userID, ResolvedID: userID, Path: []string{userID}}
	seen := map[string]bool{userID: true}
	current := userID
	for i := 0; i < f.maxDepth; i++ {
		fw, ok := s.state.forwarders[current]
		if !ok || seen[fw.TargetID] {
			break
		}
		current = fw.TargetID
		seen[current] = true
		res.Path = append(res.Path, current)
	}
	res.ResolvedID = current
	return res, nil
}

func forwarder(source, target string) models.UserForwarder {
	return models.UserForwarder{ID: "fw-" + source, SourceID: source, TargetID: target}
}
