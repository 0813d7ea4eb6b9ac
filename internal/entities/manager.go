// Package entities keeps the registry of objects spawned into the world.
package entities

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"orefield/internal/config"
	"orefield/internal/events"
	"orefield/internal/world"
)

var ErrUnknownTemplate = errors.New("unknown template")

// Template is a spawnable prefab. Prefix names the objects created from it.
type Template struct {
	Ref    string
	Prefix string
}

// TemplatesFromCatalog registers every ore template and the hazard template.
func TemplatesFromCatalog(cfg config.CatalogConfig) []Template {
	out := make([]Template, 0, len(cfg.Ores)+1)
	for _, ore := range cfg.Ores {
		out = append(out, Template{Ref: ore.Template, Prefix: "ore"})
	}
	return append(out, Template{Ref: cfg.Hazard.Template, Prefix: "hazard"})
}

type Object struct {
	ID        world.ObjectID `json:"id"`
	Template  string         `json:"template"`
	Level     int            `json:"level"`
	Position  world.Vec3     `json:"position"`
	SpawnedAt time.Time      `json:"spawnedAt"`
	seq       uint64
}

// Manager implements world.Spawner on top of an in-memory registry. It is
// safe for concurrent use.
type Manager struct {
	mu         sync.RWMutex
	templates  map[string]Template
	objects    map[world.ObjectID]*Object
	byTemplate map[string]map[world.ObjectID]*Object
	level      int
	seq        uint64
	events     *events.Queue
}

var (
	_ world.Spawner       = (*Manager)(nil)
	_ world.LevelObserver = (*Manager)(nil)
)

// NewManager creates a registry accepting the given templates. queue may be
// nil.
func NewManager(templates []Template, queue *events.Queue) *Manager {
	m := &Manager{
		templates:  make(map[string]Template, len(templates)),
		objects:    make(map[world.ObjectID]*Object),
		byTemplate: make(map[string]map[world.ObjectID]*Object),
		level:      1,
		events:     queue,
	}
	for _, tpl := range templates {
		m.templates[tpl.Ref] = tpl
	}
	return m
}

// LevelStarted tags subsequently spawned objects with level.
func (m *Manager) LevelStarted(level int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.level = level
}

func (m *Manager) Spawn(template string, pos world.Vec3) (world.ObjectID, error) {
	m.mu.Lock()
	tpl, ok := m.templates[template]
	if !ok {
		m.mu.Unlock()
		return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, template)
	}
	m.seq++
	obj := &Object{
		ID:        world.ObjectID(fmt.Sprintf("%s-%d-%d", tpl.Prefix, m.level, m.seq)),
		Template:  template,
		Level:     m.level,
		Position:  pos,
		SpawnedAt: time.Now(),
		seq:       m.seq,
	}
	m.objects[obj.ID] = obj
	set := m.byTemplate[template]
	if set == nil {
		set = make(map[world.ObjectID]*Object)
		m.byTemplate[template] = set
	}
	set[obj.ID] = obj
	m.mu.Unlock()

	if m.events != nil {
		p := pos
		m.events.Publish(events.Event{
			Type:     events.TypeSpawned,
			Level:    obj.Level,
			Object:   obj.ID,
			Template: template,
			Position: &p,
		})
	}
	return obj.ID, nil
}

// Destroy removes an object. Unknown or already destroyed ids are ignored.
func (m *Manager) Destroy(id world.ObjectID) {
	m.mu.Lock()
	obj, ok := m.objects[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(m.objects, id)
	if set := m.byTemplate[obj.Template]; set != nil {
		delete(set, id)
		if len(set) == 0 {
			delete(m.byTemplate, obj.Template)
		}
	}
	m.mu.Unlock()

	if m.events != nil {
		m.events.Publish(events.Event{
			Type:     events.TypeDestroyed,
			Level:    obj.Level,
			Object:   id,
			Template: obj.Template,
		})
	}
}

func (m *Manager) Get(id world.ObjectID) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[id]
	if !ok {
		return Object{}, false
	}
	return *obj, true
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// Objects returns every live object in spawn order.
func (m *Manager) Objects() []Object {
	m.mu.RLock()
	out := make([]Object, 0, len(m.objects))
	for _, obj := range m.objects {
		out = append(out, *obj)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// CountByTemplate returns the number of live objects per template.
func (m *Manager) CountByTemplate() map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int, len(m.byTemplate))
	for tpl, set := range m.byTemplate {
		out[tpl] = len(set)
	}
	return out
}
