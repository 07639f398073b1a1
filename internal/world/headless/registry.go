package headless

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/dcrodman/netmanager/internal/network"
	"github.com/dcrodman/netmanager/internal/world"
)

var (
	ErrNotSpawnable  = errors.New("template has no network identity")
	ErrUnknownObject = errors.New("object was not created by this registry")
	ErrInvalidSlot   = errors.New("player slot is out of range")
	ErrNilConnection = errors.New("connection is nil")
)

// Object is an instantiated template.
type Object struct {
	netID     uint32
	template  world.Template
	transform world.Transform
	owner     int
	scene     bool
	destroyed bool
}

func (o *Object) NetID() uint32              { return o.netID }
func (o *Object) Destroyed() bool            { return o.destroyed }
func (o *Object) Template() world.Template   { return o.template }
func (o *Object) Transform() world.Transform { return o.transform }

// Owner is the ID of the connection the object belongs to, or -1.
func (o *Object) Owner() int { return o.owner }

// Registry tracks every networked object in the process. Network IDs are
// handed out sequentially starting at 1.
type Registry struct {
	logger logrus.FieldLogger

	mu           sync.Mutex
	nextNetID    uint32
	objects      map[uint32]*Object
	sceneObjects []sceneObject
	templates    map[string]world.Template
}

type sceneObject struct {
	template world.Template
	at       world.Transform
	spawned  *Object
}

func NewRegistry(logger logrus.FieldLogger) *Registry {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Registry{
		logger:    logger,
		objects:   make(map[uint32]*Object),
		templates: make(map[string]world.Template),
	}
}

// RegisterTemplate makes t known to the client side so that spawn messages
// for it can be resolved.
func (r *Registry) RegisterTemplate(t world.Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.Name] = t
}

func (r *Registry) Template(name string) (world.Template, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.templates[name]
	return t, ok
}

// AddSceneObject declares an object that belongs to the loaded scene and is
// spawned by the next call to SpawnObjects.
func (r *Registry) AddSceneObject(t world.Template, at world.Transform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sceneObjects = append(r.sceneObjects, sceneObject{template: t, at: at})
}

func (r *Registry) Instantiate(t *world.Template, at world.Transform) (world.Object, error) {
	if !t.HasIdentity() {
		return nil, ErrNotSpawnable
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.instantiate(*t, at, false), nil
}

func (r *Registry) instantiate(t world.Template, at world.Transform, scene bool) *Object {
	r.nextNetID++
	obj := &Object{netID: r.nextNetID, template: t, transform: at, owner: -1, scene: scene}
	r.objects[obj.netID] = obj
	return obj
}

func (r *Registry) Destroy(obj world.Object) {
	if obj == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.objects[obj.NetID()]
	if !ok {
		r.logger.Warnf("asked to destroy unknown object %d", obj.NetID())
		return
	}
	o.destroyed = true
	delete(r.objects, o.netID)
}

// AddPlayerForConnection binds obj to the connection's slot and marks the
// connection as its owner.
func (r *Registry) AddPlayerForConnection(conn network.Connection, obj world.Object, slot int16) error {
	if conn == nil {
		return ErrNilConnection
	}
	r.mu.Lock()
	o, ok := r.objects[obj.NetID()]
	if ok {
		o.owner = conn.ID()
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownObject, obj.NetID())
	}
	if !conn.Players().Set(slot, obj) {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, slot)
	}
	r.logger.Debugf("object %d is player %d for connection %d", o.netID, slot, conn.ID())
	return nil
}

// SpawnObjects instantiates every declared scene object that isn't already
// live. Returns how many were spawned.
func (r *Registry) SpawnObjects() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	spawned := 0
	for i := range r.sceneObjects {
		so := &r.sceneObjects[i]
		if so.spawned != nil && !so.spawned.destroyed {
			continue
		}
		so.spawned = r.instantiate(so.template, so.at, true)
		spawned++
	}
	return spawned
}

// DestroyPlayersForConnection destroys every object in the connection's
// player slots and clears them.
func (r *Registry) DestroyPlayersForConnection(conn network.Connection) {
	for _, pc := range conn.Players().Valid() {
		if pc.Live() {
			r.Destroy(pc.Object)
		}
	}
	conn.Players().Clear()
}

// DestroyAllClientObjects destroys everything that isn't a scene object.
func (r *Registry) DestroyAllClientObjects() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, o := range r.objects {
		if !o.scene {
			o.destroyed = true
			delete(r.objects, id)
		}
	}
}

// Count returns the number of live objects.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.objects)
}
