package items

import (
	"testing"

	"github.com/tatianab/autoplay/internal/models"
)

func TestApplyUpdateRegistersNewItem(t *testing.T) {
	r := New(nil)
	item := r.ApplyUpdate(models.ItemUpdate{
		Name: "The Brass Lantern",
		Kind: models.ChangeNew,
	}, "living_room", 3)

	if item.Key != "brass_lantern" {
		t.Errorf("key = %q", item.Key)
	}
	if item.Location != "living_room" {
		t.Errorf("location = %q", item.Location)
	}
	if item.Portable != models.PortableUnknown {
		t.Errorf("portable = %q, want unknown", item.Portable)
	}
	if item.FirstSeenTurn != 3 {
		t.Errorf("first seen = %d", item.FirstSeenTurn)
	}
}

func TestPortabilityTriState(t *testing.T) {
	r := New(nil)
	r.ApplyUpdate(models.ItemUpdate{Name: "lantern", Kind: models.ChangeNew}, "cellar", 1)

	// A take confirms yes.
	r.ApplyUpdate(models.ItemUpdate{Key: "lantern", Kind: models.ChangeTaken}, "cellar", 2)
	if got := r.Item("lantern").Portable; got != models.PortableYes {
		t.Fatalf("after take portable = %q", got)
	}

	// An explicit no signal overrides even a confirmed yes.
	r.ApplyUpdate(models.ItemUpdate{
		Key:        "lantern",
		Kind:       models.ChangeStateChange,
		Properties: map[string]string{"portable": "no"},
	}, "cellar", 3)
	if got := r.Item("lantern").Portable; got != models.PortableNo {
		t.Fatalf("after no signal portable = %q", got)
	}

	// A truthy portable hint upgrades unknown but never overrides no.
	r.ApplyUpdate(models.ItemUpdate{
		Key:        "lantern",
		Kind:       models.ChangeStateChange,
		Properties: map[string]string{"portable": "true"},
	}, "cellar", 4)
	if got := r.Item("lantern").Portable; got != models.PortableNo {
		t.Fatalf("truthy hint overrode no: %q", got)
	}

	r.ApplyUpdate(models.ItemUpdate{Name: "rope", Kind: models.ChangeNew}, "cellar", 5)
	r.ApplyUpdate(models.ItemUpdate{
		Key:        "rope",
		Kind:       models.ChangeStateChange,
		Properties: map[string]string{"portable": "true"},
	}, "cellar", 6)
	if got := r.Item("rope").Portable; got != models.PortableYes {
		t.Fatalf("truthy hint did not upgrade unknown: %q", got)
	}
}

func TestApplyUpdateIdempotent(t *testing.T) {
	r := New(nil)
	u := models.ItemUpdate{Key: "sword", Name: "sword", Kind: models.ChangeTaken}
	r.ApplyUpdate(models.ItemUpdate{Name: "sword", Kind: models.ChangeNew}, "armory", 1)
	first := r.ApplyUpdate(u, "armory", 2)
	second := r.ApplyUpdate(u, "armory", 3)

	if first != second {
		t.Fatal("replay created a second item")
	}
	if second.Location != models.LocationInventory || second.Portable != models.PortableYes {
		t.Errorf("replay changed state: %+v", second)
	}
	if len(r.All()) != 1 {
		t.Errorf("item count = %d", len(r.All()))
	}
}

func TestTakeAndDrop(t *testing.T) {
	r := New(nil)
	r.ApplyUpdate(models.ItemUpdate{Name: "coin", Kind: models.ChangeNew}, "vault", 1)

	r.Take("coin")
	if got := r.Item("coin").Location; got != models.LocationInventory {
		t.Errorf("location after take = %q", got)
	}
	if r.InventoryCount() != 1 {
		t.Errorf("inventory count = %d", r.InventoryCount())
	}

	r.Drop("coin", "maze_room")
	if got := r.Item("coin").Location; got != "maze_room" {
		t.Errorf("location after drop = %q", got)
	}
	if items := r.InRoom("maze_room"); len(items) != 1 || items[0].Key != "coin" {
		t.Errorf("room contents = %v", items)
	}

	// Unknown keys are logged and ignored.
	r.Take("ghost")
	r.Drop("ghost", "vault")
	if len(r.All()) != 1 {
		t.Errorf("unknown take/drop created items")
	}
}

func TestDroppableOrdering(t *testing.T) {
	r := New(nil)
	for _, name := range []string{"apple", "rusty key", "zither"} {
		r.ApplyUpdate(models.ItemUpdate{Name: name, Kind: models.ChangeNew}, "hall", 1)
		r.Take(models.NormalizeKey(name))
	}
	// A non-portable and a non-carried item must not appear.
	r.ApplyUpdate(models.ItemUpdate{
		Name:       "anvil",
		Kind:       models.ChangeNew,
		Properties: map[string]string{"portable": "no"},
	}, "hall", 2)

	got := r.Droppable([]string{"rusty_key"})
	if len(got) != 3 {
		t.Fatalf("droppable count = %d", len(got))
	}
	want := []string{"apple", "zither", "rusty_key"}
	for i, item := range got {
		if item.Key != want[i] {
			t.Errorf("droppable[%d] = %q, want %q", i, item.Key, want[i])
		}
	}
}

func TestInventoryLimit(t *testing.T) {
	r := New(nil)
	r.ApplyUpdate(models.ItemUpdate{Name: "coin", Kind: models.ChangeTaken}, "", 1)
	if r.IsFull() {
		t.Error("full with no known limit")
	}
	r.SetInventoryLimit(1)
	if !r.IsFull() {
		t.Error("not full at limit")
	}
}
