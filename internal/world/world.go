// Package world holds the types shared with the scene-graph collaborator:
// transforms, object handles, templates and the asynchronous scene loader.
package world

import (
	"github.com/google/uuid"
)

type Vector3 struct {
	X, Y, Z float32
}

type Quaternion struct {
	X, Y, Z, W float32
}

// IdentityRotation is the rotation players get when there's no start position.
var IdentityRotation = Quaternion{W: 1}

type Transform struct {
	Position Vector3
	Rotation Quaternion
}

// DefaultTransform is used when no start position is available.
var DefaultTransform = Transform{Rotation: IdentityRotation}

// Object is a handle to a game object owned by the scene graph.
type Object interface {
	NetID() uint32
	// Destroyed reports whether the scene graph has already torn the object down.
	Destroyed() bool
}

// StartPosition is a registered spawn point. Valid turns false once the scene
// object backing it is gone.
type StartPosition interface {
	Name() string
	Transform() Transform
	Valid() bool
}

// Template describes something that can be instantiated by the spawn registry.
// A template without an AssetID has no network identity and can't be spawned.
type Template struct {
	Name    string
	AssetID uuid.UUID
}

// HasIdentity reports whether instances of t can be tracked across the network.
func (t *Template) HasIdentity() bool {
	return t != nil && t.AssetID != uuid.Nil
}

// LoadOperation is the pollable handle returned for an asynchronous scene load.
type LoadOperation interface {
	IsDone() bool
}

// SceneLoader loads scenes in the background. Completion is only observable by
// polling the returned LoadOperation.
type SceneLoader interface {
	LoadSceneAsync(name string) (LoadOperation, error)
	// ActiveScene is the name of the scene currently loaded.
	ActiveScene() string
}
