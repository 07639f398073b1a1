package network

import (
	"github.com/dcrodman/netmanager/internal/world"
)

// MaxPlayersPerConnection bounds the slot index a connection may use. Slots
// are 0 to MaxPlayersPerConnection-1.
const MaxPlayersPerConnection = 32

// ValidSlot reports whether id is a usable slot index.
func ValidSlot(id int16) bool {
	return id >= 0 && int(id) < MaxPlayersPerConnection
}

// PlayerController associates one slot on a connection with the player object
// spawned for it.
type PlayerController struct {
	ID     int16
	Object world.Object
	valid  bool
}

// IsValid reports whether the slot still owns a player. A valid controller
// always has a non-nil Object, though the object may already be on its way out.
func (pc PlayerController) IsValid() bool {
	return pc.valid
}

// Live reports whether the slot holds an object that hasn't been destroyed.
func (pc PlayerController) Live() bool {
	return pc.valid && pc.Object != nil && !pc.Object.Destroyed()
}

// PlayerTable is the per-connection list of player slots, indexed by slot ID.
type PlayerTable struct {
	controllers []PlayerController
}

// Set binds obj to slot id, growing the table with invalid slots as needed.
// A nil object or an out of range slot is ignored.
func (t *PlayerTable) Set(id int16, obj world.Object) bool {
	if !ValidSlot(id) || obj == nil {
		return false
	}
	for int(id) >= len(t.controllers) {
		t.controllers = append(t.controllers, PlayerController{ID: int16(len(t.controllers))})
	}
	t.controllers[id] = PlayerController{ID: id, Object: obj, valid: true}
	return true
}

// Get returns the controller in slot id if that slot is valid.
func (t *PlayerTable) Get(id int16) (PlayerController, bool) {
	if id < 0 || int(id) >= len(t.controllers) || !t.controllers[id].valid {
		return PlayerController{}, false
	}
	return t.controllers[id], true
}

// Remove invalidates slot id. The slot index stays reserved.
func (t *PlayerTable) Remove(id int16) bool {
	if id < 0 || int(id) >= len(t.controllers) {
		return false
	}
	wasValid := t.controllers[id].valid
	t.controllers[id] = PlayerController{ID: id}
	return wasValid
}

// Valid returns the valid controllers in slot order.
func (t *PlayerTable) Valid() []PlayerController {
	var valid []PlayerController
	for _, pc := range t.controllers {
		if pc.valid {
			valid = append(valid, pc)
		}
	}
	return valid
}

// Count returns the number of valid slots.
func (t *PlayerTable) Count() int {
	n := 0
	for _, pc := range t.controllers {
		if pc.valid {
			n++
		}
	}
	return n
}

// AllDestroyed reports whether no slot holds a live object. An empty table
// counts as all destroyed.
func (t *PlayerTable) AllDestroyed() bool {
	for _, pc := range t.controllers {
		if pc.Live() {
			return false
		}
	}
	return true
}

// Clear invalidates every slot.
func (t *PlayerTable) Clear() {
	t.controllers = nil
}
