package model

import (
	"context"
	"testing"
	"time"
)

type recordingSubscriber struct {
	changes []Change
}

func (r *recordingSubscriber) OnChange(c Change) {
	r.changes = append(r.changes, c)
}

func TestStore_WriteThenRead(t *testing.T) {
	s := New()

	g := s.AccessReadWrite()
	g.SetProperty(Path{Key("state"), Key("status")}, "idle")
	g.Release()

	r := s.AccessReadOnly()
	defer r.Release()
	v, ok := r.Get(Path{Key("state"), Key("status")})
	if !ok || v != "idle" {
		t.Fatalf("unexpected value: %v, %v", v, ok)
	}
}

func TestStore_NotifiesSubscriberOnRelease(t *testing.T) {
	s := New()
	sub := &recordingSubscriber{}
	s.Subscribe(sub)

	g := s.AccessReadWrite()
	g.SetProperty(Path{Key("heat"), Key("current")}, 205.0)
	g.Release()

	if len(sub.changes) != 1 || sub.changes[0].Kind != Property {
		t.Fatalf("unexpected changes: %v", sub.changes)
	}
}

func TestStore_WaitForUpdateWakesOnCommit(t *testing.T) {
	s := New()
	done := make(chan error, 1)
	go func() {
		done <- s.WaitForUpdate(context.Background())
	}()

	time.Sleep(5 * time.Millisecond)
	g := s.AccessReadWrite()
	g.SetProperty(Path{Key("job"), Key("file")}, "print.gcode")
	g.Release()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("WaitForUpdate: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitForUpdate did not wake")
	}
}

func TestStore_WaitForUpdateRespectsContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	if err := s.WaitForUpdate(ctx); err == nil {
		t.Fatal("expected context deadline error")
	}
}

func TestStore_GrowingCollectionAppendsOnly(t *testing.T) {
	s := New()
	g := s.AccessReadWrite()
	g.AppendGrowing(Path{Key("job"), Key("messages")}, []interface{}{"m1"})
	g.Release()

	g2 := s.AccessReadWrite()
	g2.AppendGrowing(Path{Key("job"), Key("messages")}, []interface{}{"m2"})
	g2.Release()

	r := s.AccessReadOnly()
	defer r.Release()
	v, ok := r.Get(Path{Key("job"), Key("messages")})
	if !ok {
		t.Fatal("expected messages list to exist")
	}
	list := v.([]interface{})
	if len(list) != 2 || list[0] != "m1" || list[1] != "m2" {
		t.Fatalf("unexpected list: %v", list)
	}
}

func TestPatchAccumulator_AccumulatesAcrossChanges(t *testing.T) {
	p := NewPatchAccumulator()
	p.Add(Change{Kind: Property, Path: Path{Key("heat"), Key("current")}, Value: 200.0})
	p.Add(Change{Kind: GrowingCollection, Path: Path{Key("job"), Key("messages")}, Value: []interface{}{"hello"}})

	patch := p.TakePatch()
	heat := patch["heat"].(map[string]interface{})
	if heat["current"] != 200.0 {
		t.Fatalf("unexpected heat.current: %v", heat["current"])
	}
	job := patch["job"].(map[string]interface{})
	messages := job["messages"].([]interface{})
	if len(messages) != 1 || messages[0] != "hello" {
		t.Fatalf("unexpected messages: %v", messages)
	}

	if !p.IsEmpty() {
		t.Fatal("expected accumulator to reset after TakePatch")
	}
}

func TestStore_ApplyObjectModel(t *testing.T) {
	s := New()
	if err := s.ApplyObjectModel(2, []byte(`{"current":[205.1]}`)); err != nil {
		t.Fatalf("ApplyObjectModel: %v", err)
	}
	r := s.AccessReadOnly()
	defer r.Release()
	v, ok := r.Get(Path{Key("heat")})
	if !ok {
		t.Fatal("expected heat module to be set")
	}
	m := v.(map[string]interface{})
	if _, ok := m["current"]; !ok {
		t.Fatalf("unexpected heat module: %v", m)
	}
}
