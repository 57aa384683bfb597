package areas

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/opsboard/opsboard/internal/roles"
)

func id(v int64) *int64 { return &v }

// Airport org chart used across the tests:
//
//	DG (1)
//	├── DG.OPS (2)
//	│   ├── DG.OPS.SEG (4)
//	│   │   └── DG.OPS.SEG.FILTRO (6)
//	│   └── DG.OPS.PLAT (5)
//	└── DG.ADM (3)
//	    └── DG.ADM.FIN (7)
func orgChart() []Area {
	return []Area{
		{ID: 1, Name: "Dirección General", Path: "DG", Level: 1, Active: true},
		{ID: 3, Name: "Administración", ParentID: id(1), Path: "DG.ADM", Level: 2, Active: true},
		{ID: 7, Name: "Finanzas", ParentID: id(3), Path: "DG.ADM.FIN", Level: 3, Active: true},
		{ID: 2, Name: "Operaciones", ParentID: id(1), Path: "DG.OPS", Level: 2, Active: true},
		{ID: 5, Name: "Plataforma", ParentID: id(2), Path: "DG.OPS.PLAT", Level: 3, Active: true},
		{ID: 4, Name: "Seguridad", ParentID: id(2), Path: "DG.OPS.SEG", Level: 3, Active: true},
		{ID: 6, Name: "Filtro", ParentID: id(4), Path: "DG.OPS.SEG.FILTRO", Level: 4, Active: true},
	}
}

type memStore struct {
	mu          sync.Mutex
	areas       map[int64]Area
	profiles    map[int64]Profile
	nextID      int64
	failProfile error
	failTree    error
	treeLoads   int
	upserts     []Assignment
}

func newMemStore() *memStore {
	s := &memStore{areas: map[int64]Area{}, profiles: map[int64]Profile{}, nextID: 100}
	for _, a := range orgChart() {
		s.areas[a.ID] = a
	}
	return s
}

func (s *memStore) addUser(userID int64, role roles.Role, assigned ...Assignment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Profile{UserID: userID, Name: "user", Email: "user@aeropuerto.test", Role: role, Active: true}
	for _, a := range assigned {
		a.UserID = userID
		a.Active = true
		a.Area = s.areas[a.AreaID]
		p.Assignments = append(p.Assignments, a)
	}
	s.profiles[userID] = p
}

func (s *memStore) Profile(_ context.Context, userID int64) (Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failProfile != nil {
		return Profile{}, s.failProfile
	}
	p, ok := s.profiles[userID]
	if !ok {
		return Profile{}, ErrUserNotFound
	}
	return p, nil
}

func (s *memStore) sorted(filter func(Area) bool) []Area {
	out := []Area{}
	for _, a := range s.areas {
		if filter(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func (s *memStore) ActiveAreas(context.Context) ([]Area, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.treeLoads++
	if s.failTree != nil {
		return nil, s.failTree
	}
	return s.sorted(func(a Area) bool { return a.Active }), nil
}

func (s *memStore) AllAreas(context.Context) ([]Area, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(Area) bool { return true }), nil
}

func (s *memStore) Area(_ context.Context, areaID int64) (Area, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.areas[areaID]
	if !ok {
		return Area{}, ErrAreaNotFound
	}
	return a, nil
}

func (s *memStore) Children(_ context.Context, parentID *int64) ([]Area, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(func(a Area) bool {
		if parentID == nil {
			return a.ParentID == nil
		}
		return a.ParentID != nil && *a.ParentID == *parentID
	}), nil
}

func (s *memStore) InsertArea(_ context.Context, area Area) (Area, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.areas {
		if a.Path == area.Path {
			return Area{}, ErrDuplicatePath
		}
	}
	s.nextID++
	area.ID = s.nextID
	area.Active = true
	s.areas[area.ID] = area
	return area, nil
}

func (s *memStore) DeactivateArea(_ context.Context, areaID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.areas[areaID]
	if !ok {
		return ErrAreaNotFound
	}
	a.Active = false
	s.areas[areaID] = a
	return nil
}

func (s *memStore) UpsertAssignment(_ context.Context, a Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts = append(s.upserts, a)
	return nil
}

func (s *memStore) DeactivateAssignment(_ context.Context, userID, areaID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[userID]
	if !ok {
		return ErrAssignmentNotFound
	}
	for i, a := range p.Assignments {
		if a.AreaID == areaID && a.Active {
			p.Assignments[i].Active = false
			return nil
		}
	}
	return ErrAssignmentNotFound
}

var errBackend = errors.New("backend unavailable")

func ids(list []Area) []int64 {
	out := make([]int64, 0, len(list))
	for _, a := range list {
		out = append(out, a.ID)
	}
	return out
}
