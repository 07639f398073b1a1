package spawn

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/netmanager/internal/network"
	"github.com/dcrodman/netmanager/internal/world"
)

var (
	ErrNoPlayerTemplate        = errors.New("no player template configured")
	ErrTemplateMissingIdentity = errors.New("player template has no network identity")
	ErrSlotOccupied            = errors.New("there is already a player in that slot")
	ErrInvalidSlot             = errors.New("player slot is out of range")
)

// Registry is the object-ownership collaborator that creates and destroys
// networked objects.
type Registry interface {
	Instantiate(template *world.Template, at world.Transform) (world.Object, error)
	Destroy(obj world.Object)
	AddPlayerForConnection(conn network.Connection, obj world.Object, slot int16) error
}

// Policy creates and removes player objects for connections.
type Policy struct {
	Template  *world.Template
	Positions *StartPositions
	Registry  Registry
	Logger    logrus.FieldLogger

	// OnAdded and OnRemoved are notified after a slot changes. Optional.
	OnAdded   func(conn network.Connection, slot int16, obj world.Object)
	OnRemoved func(conn network.Connection, slot int16)
}

// AddPlayer spawns the player template for slot on conn. Configuration
// problems and an occupied or out of range slot are logged and returned
// without changing anything.
func (p *Policy) AddPlayer(conn network.Connection, slot int16, extra []byte) error {
	if !network.ValidSlot(slot) {
		p.logger().Warnf("connection %d asked for player slot %d, slots are 0 to %d", conn.ID(), slot, network.MaxPlayersPerConnection-1)
		return ErrInvalidSlot
	}
	if p.Template == nil {
		p.logger().Error("the player template is empty, set player.prefab in the config")
		return ErrNoPlayerTemplate
	}
	if !p.Template.HasIdentity() {
		p.logger().Errorf("player template %s has no asset ID, set player.asset_id in the config", p.Template.Name)
		return ErrTemplateMissingIdentity
	}
	if pc, ok := conn.Players().Get(slot); ok && pc.Live() {
		p.logger().Errorf("there is already a player at slot %d for connection %d", slot, conn.ID())
		return ErrSlotOccupied
	}

	at := world.DefaultTransform
	if start, ok := p.Positions.GetStartPosition(); ok {
		at = start.Transform()
	}

	obj, err := p.Registry.Instantiate(p.Template, at)
	if err != nil {
		return fmt.Errorf("instantiating %s: %w", p.Template.Name, err)
	}
	if err := p.Registry.AddPlayerForConnection(conn, obj, slot); err != nil {
		p.Registry.Destroy(obj)
		return fmt.Errorf("adding player %d for connection %d: %w", slot, conn.ID(), err)
	}

	p.logger().Debugf("spawned player %d in slot %d for connection %d (%d bytes extra)", obj.NetID(), slot, conn.ID(), len(extra))
	if p.OnAdded != nil {
		p.OnAdded(conn, slot, obj)
	}
	return nil
}

// RemovePlayer destroys the object in slot if it's still alive and then
// invalidates the slot.
func (p *Policy) RemovePlayer(conn network.Connection, slot int16) {
	if pc, ok := conn.Players().Get(slot); ok && pc.Live() {
		p.Registry.Destroy(pc.Object)
	}
	if conn.Players().Remove(slot) && p.OnRemoved != nil {
		p.OnRemoved(conn, slot)
	}
}

func (p *Policy) logger() logrus.FieldLogger {
	if p.Logger == nil {
		return logrus.StandardLogger()
	}
	return p.Logger
}
