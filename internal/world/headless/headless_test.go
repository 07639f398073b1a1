package headless

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/dcrodman/netmanager/internal/network"
	"github.com/dcrodman/netmanager/internal/world"
)

func TestLoader_CompletesAfterDelay(t *testing.T) {
	now := time.Unix(1000, 0)
	l := NewLoader("Offline", 2*time.Second)
	l.Now = func() time.Time { return now }

	op, err := l.LoadSceneAsync("Arena")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if op.IsDone() {
		t.Fatal("load finished before the delay elapsed")
	}
	if got := l.ActiveScene(); got != "Offline" {
		t.Errorf("ActiveScene() = %q during load, want Offline", got)
	}

	now = now.Add(2 * time.Second)
	if !op.IsDone() {
		t.Fatal("load still pending after the delay")
	}
	if got := l.ActiveScene(); got != "Arena" {
		t.Errorf("ActiveScene() = %q, want Arena", got)
	}
	if diff := cmp.Diff([]string{"Arena"}, l.Loads()); diff != "" {
		t.Errorf("unexpected loads (-want +got):\n%s", diff)
	}
}

func TestLoader_EmptyName(t *testing.T) {
	l := NewLoader("", 0)
	if _, err := l.LoadSceneAsync(""); !errors.Is(err, ErrEmptySceneName) {
		t.Errorf("LoadSceneAsync(\"\") error = %v, want ErrEmptySceneName", err)
	}
}

func TestRegistry_InstantiateAndDestroy(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := NewRegistry(logger)

	if _, err := r.Instantiate(&world.Template{Name: "NoIdentity"}, world.DefaultTransform); !errors.Is(err, ErrNotSpawnable) {
		t.Fatalf("Instantiate without identity error = %v, want ErrNotSpawnable", err)
	}

	template := &world.Template{Name: "Player", AssetID: uuid.New()}
	first, err := r.Instantiate(template, world.DefaultTransform)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := r.Instantiate(template, world.DefaultTransform)
	if first.NetID() != 1 || second.NetID() != 2 {
		t.Errorf("net IDs = %d, %d; want 1, 2", first.NetID(), second.NetID())
	}

	r.Destroy(first)
	if !first.Destroyed() {
		t.Error("destroyed object still reports alive")
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
}

func TestRegistry_AddPlayerForConnection(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := NewRegistry(logger)
	conn, _ := network.NewLoopbackPair(3, network.Options{Logger: logger})

	obj, _ := r.Instantiate(&world.Template{Name: "Player", AssetID: uuid.New()}, world.DefaultTransform)
	if err := r.AddPlayerForConnection(conn, obj, 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if owner := obj.(*Object).Owner(); owner != 3 {
		t.Errorf("Owner() = %d, want 3", owner)
	}
	if pc, ok := conn.Players().Get(0); !ok || pc.Object != obj {
		t.Errorf("slot 0 = %+v, %v; want the new object", pc, ok)
	}

	r.DestroyPlayersForConnection(conn)
	if !obj.Destroyed() {
		t.Error("player object survived its connection")
	}
	if conn.Players().Count() != 0 {
		t.Error("player slots were not cleared")
	}
}

func TestRegistry_SpawnObjects(t *testing.T) {
	logger, _ := test.NewNullLogger()
	r := NewRegistry(logger)
	r.AddSceneObject(world.Template{Name: "Door", AssetID: uuid.New()}, world.DefaultTransform)
	r.AddSceneObject(world.Template{Name: "Crate", AssetID: uuid.New()}, world.DefaultTransform)

	if n := r.SpawnObjects(); n != 2 {
		t.Errorf("first SpawnObjects() = %d, want 2", n)
	}
	if n := r.SpawnObjects(); n != 0 {
		t.Errorf("second SpawnObjects() = %d, want 0", n)
	}

	player, _ := r.Instantiate(&world.Template{Name: "Player", AssetID: uuid.New()}, world.DefaultTransform)
	r.DestroyAllClientObjects()
	if !player.Destroyed() {
		t.Error("client object survived DestroyAllClientObjects")
	}
	if r.Count() != 2 {
		t.Errorf("Count() = %d, want the 2 scene objects", r.Count())
	}
}

func TestStartPoint(t *testing.T) {
	p := NewStartPoint("north", world.Vector3{X: 1, Y: 2, Z: 3})
	want := world.Transform{Position: world.Vector3{X: 1, Y: 2, Z: 3}, Rotation: world.IdentityRotation}
	if diff := cmp.Diff(want, p.Transform()); diff != "" {
		t.Errorf("unexpected transform (-want +got):\n%s", diff)
	}
	p.Invalidate()
	if p.Valid() {
		t.Error("Valid() = true after Invalidate")
	}
}
