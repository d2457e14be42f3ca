package bot

import "testing"

func TestFindByAPIKey(t *testing.T) {
	store := NewMemoryStore(Seed("secret"))

	got, ok := store.FindByAPIKey("secret")
	if !ok {
		t.Fatal("expected profile for seeded key")
	}
	if got.Name != "Docs Assistant" {
		t.Fatalf("unexpected profile %s", got.Name)
	}

	if _, ok := store.FindByAPIKey(""); ok {
		t.Fatal("empty key must not match")
	}
	if _, ok := store.FindByAPIKey("nope"); ok {
		t.Fatal("unknown key must not match")
	}
}

func TestSeedDefaultsKey(t *testing.T) {
	store := NewMemoryStore(Seed(""))
	if _, ok := store.FindByAPIKey(DemoAPIKey); !ok {
		t.Fatal("expected demo key to be registered")
	}
}

func TestInfoHidesKey(t *testing.T) {
	p := Seed("k")[0]
	info := p.Info()
	if info.UUID != p.UUID || info.Name != p.Name || info.ThemeColor != p.ThemeColor {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestDefaultOnEmptyStore(t *testing.T) {
	if _, ok := NewMemoryStore(nil).Default(); ok {
		t.Fatal("empty store has no default")
	}
}
