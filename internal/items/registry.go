// Package items tracks every object observed in the game world: where
// it is, whether it can be carried, and what state it is in.
package items

import (
	"log/slog"
	"sort"

	"github.com/tatianab/autoplay/internal/models"
)

// Registry is the item table for one session, keyed by normalized item
// key. Owned by the orchestrator; not safe for concurrent use.
type Registry struct {
	items          map[string]*models.Item
	inventoryLimit int // 0 means undiscovered
	logger         *slog.Logger
}

func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		items:  make(map[string]*models.Item),
		logger: logger,
	}
}

// Restore reinstates a persisted item. Used on crash-resume.
func (r *Registry) Restore(item *models.Item) {
	if item.Properties == nil {
		item.Properties = make(map[string]string)
	}
	if item.Portable == "" {
		item.Portable = models.PortableUnknown
	}
	r.items[item.Key] = item
}

// ApplyUpdate merges one parsed item change into the registry, creating
// the item on first sight. Replaying the same update is a no-op beyond
// the last-seen turn refresh. Returns the affected item.
func (r *Registry) ApplyUpdate(u models.ItemUpdate, currentRoom string, turn int) *models.Item {
	key := models.NormalizeKey(u.Key)
	if key == "" {
		key = models.NormalizeKey(u.Name)
	}

	item, ok := r.items[key]
	if !ok {
		item = &models.Item{
			Key:           key,
			Name:          u.Name,
			Location:      models.LocationUnknown,
			Portable:      models.PortableUnknown,
			Properties:    make(map[string]string),
			FirstSeenTurn: turn,
		}
		r.items[key] = item
		r.logger.Info("item registered", "item", key, "name", u.Name)
	}
	item.LastSeenTurn = turn

	switch u.Kind {
	case models.ChangeNew:
		if u.Location != "" {
			item.Location = u.Location
		} else if item.Location == models.LocationUnknown {
			item.Location = currentRoom
		}
	case models.ChangeTaken:
		item.Location = models.LocationInventory
		item.Portable = models.PortableYes
	case models.ChangeDropped:
		if u.Location != "" {
			item.Location = u.Location
		} else {
			item.Location = currentRoom
		}
	case models.ChangeMoved:
		if u.Location != "" {
			item.Location = u.Location
		}
	case models.ChangeGone:
		item.Location = models.LocationUnknown
	case models.ChangeStateChange:
		// Property merge below covers it.
	}

	for k, v := range u.Properties {
		if k == "portable" {
			// Explicit portability signal. Never reverts an earlier
			// confirmed take.
			if v == "false" || v == "no" {
				item.Portable = models.PortableNo
			} else if item.Portable == models.PortableUnknown {
				item.Portable = models.PortableYes
			}
			continue
		}
		item.Properties[k] = v
	}

	if u.Name != "" && u.Name != item.Name {
		item.Name = u.Name
	}
	return item
}

// Take moves a known item into inventory, confirming portability.
func (r *Registry) Take(key string) {
	item, ok := r.items[key]
	if !ok {
		r.logger.Warn("take of unknown item", "item", key)
		return
	}
	item.Location = models.LocationInventory
	item.Portable = models.PortableYes
	r.logger.Debug("item taken", "item", key)
}

// Drop moves a known item from inventory into a room.
func (r *Registry) Drop(key, roomKey string) {
	item, ok := r.items[key]
	if !ok {
		r.logger.Warn("drop of unknown item", "item", key)
		return
	}
	item.Location = roomKey
	r.logger.Debug("item dropped", "item", key, "room", roomKey)
}

// Item returns the item for a key, or nil.
func (r *Registry) Item(key string) *models.Item { return r.items[key] }

// Inventory returns carried items in key order.
func (r *Registry) Inventory() []*models.Item {
	return r.inLocation(models.LocationInventory)
}

// InRoom returns the items located in a room, in key order.
func (r *Registry) InRoom(roomKey string) []*models.Item {
	return r.inLocation(roomKey)
}

func (r *Registry) inLocation(location string) []*models.Item {
	var out []*models.Item
	for _, item := range r.items {
		if item.Location == location {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// All returns every known item in key order.
func (r *Registry) All() []*models.Item {
	out := make([]*models.Item, 0, len(r.items))
	for _, item := range r.items {
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// WithProperty returns items whose property bag has key=value, in key
// order.
func (r *Registry) WithProperty(key, value string) []*models.Item {
	var out []*models.Item
	for _, item := range r.items {
		if item.Properties[key] == value {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Droppable returns confirmed-portable inventory items ordered for
// marker selection: items named in exclude (quest-relevant keys) sort
// last, ties break by key.
func (r *Registry) Droppable(exclude []string) []*models.Item {
	excluded := make(map[string]bool, len(exclude))
	for _, k := range exclude {
		excluded[k] = true
	}
	var out []*models.Item
	for _, item := range r.items {
		if item.Location == models.LocationInventory && item.Portable == models.PortableYes {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ei, ej := excluded[out[i].Key], excluded[out[j].Key]
		if ei != ej {
			return !ei
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// SetInventoryLimit records a carry limit discovered during play.
func (r *Registry) SetInventoryLimit(limit int) {
	r.inventoryLimit = limit
	r.logger.Info("inventory limit discovered", "limit", limit)
}

// InventoryCount returns the number of carried items.
func (r *Registry) InventoryCount() int {
	return len(r.Inventory())
}

// IsFull reports whether inventory is at its discovered capacity.
// Always false while no limit is known.
func (r *Registry) IsFull() bool {
	return r.inventoryLimit > 0 && r.InventoryCount() >= r.inventoryLimit
}
