// Package registry holds the in-memory catalog of discovered templates,
// keyed by their qualified "app/name" identifier. The scanner populates it;
// the lineage walker and dev server read from it; watchers receive change
// events over buffered channels.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/conneroisu/vellum/internal/types"
)

// TemplateRegistry manages all discovered templates
type TemplateRegistry struct {
	templates map[string]*types.TemplateInfo
	mutex     sync.RWMutex
	watchers  []chan types.TemplateEvent
}

// NewTemplateRegistry creates a new template registry
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{
		templates: make(map[string]*types.TemplateInfo),
		watchers:  make([]chan types.TemplateEvent, 0),
	}
}

// Register adds or updates a template in the registry
func (r *TemplateRegistry) Register(template *types.TemplateInfo) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	qualified := template.Qualified()

	eventType := types.EventTypeAdded
	if _, exists := r.templates[qualified]; exists {
		eventType = types.EventTypeUpdated
	}

	r.templates[qualified] = template

	r.notify(types.TemplateEvent{
		Type:      eventType,
		Template:  template,
		Timestamp: time.Now(),
	})
}

// Lookup retrieves a template by its qualified "app/name" identifier.
func (r *TemplateRegistry) Lookup(qualified string) (*types.TemplateInfo, bool) {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	template, exists := r.templates[qualified]
	return template, exists
}

// GetAll returns a copy of all registered templates
func (r *TemplateRegistry) GetAll() map[string]*types.TemplateInfo {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	result := make(map[string]*types.TemplateInfo, len(r.templates))
	for qualified, template := range r.templates {
		result[qualified] = template
	}
	return result
}

// Apps returns the sorted set of app names with at least one template.
func (r *TemplateRegistry) Apps() []string {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	seen := make(map[string]struct{})
	for _, template := range r.templates {
		seen[template.App] = struct{}{}
	}

	apps := make([]string, 0, len(seen))
	for app := range seen {
		apps = append(apps, app)
	}
	sort.Strings(apps)
	return apps
}

// TemplatesFor returns the templates of one app, sorted by name.
func (r *TemplateRegistry) TemplatesFor(app string) []*types.TemplateInfo {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	var out []*types.TemplateInfo
	for _, template := range r.templates {
		if template.App == app {
			out = append(out, template)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Remove removes a template from the registry
func (r *TemplateRegistry) Remove(qualified string) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	template, exists := r.templates[qualified]
	if !exists {
		return
	}

	delete(r.templates, qualified)

	r.notify(types.TemplateEvent{
		Type:      types.EventTypeRemoved,
		Template:  template,
		Timestamp: time.Now(),
	})
}

// Watch subscribes to registry changes. The channel is buffered; a
// subscriber that stops draining loses events rather than blocking
// registration.
func (r *TemplateRegistry) Watch() <-chan types.TemplateEvent {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	ch := make(chan types.TemplateEvent, 100)
	r.watchers = append(r.watchers, ch)
	return ch
}

// UnWatch drops a subscription obtained from Watch and closes its channel.
func (r *TemplateRegistry) UnWatch(ch <-chan types.TemplateEvent) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	for i, watcher := range r.watchers {
		if watcher == ch {
			close(watcher)
			r.watchers = append(r.watchers[:i], r.watchers[i+1:]...)
			break
		}
	}
}

// Count returns the number of registered templates
func (r *TemplateRegistry) Count() int {
	r.mutex.RLock()
	defer r.mutex.RUnlock()

	return len(r.templates)
}

// notify fans events out to watchers. Callers hold the write lock.
func (r *TemplateRegistry) notify(event types.TemplateEvent) {
	for _, watcher := range r.watchers {
		select {
		case watcher <- event:
		default:
			// Skip if channel is full
		}
	}
}
