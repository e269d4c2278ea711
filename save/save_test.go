package save

import (
	"encoding/json"
	"testing"

	"github.com/forgelabs/ember/content"
	"github.com/forgelabs/ember/queue"
	"github.com/forgelabs/ember/state"
)

func newTestPack() *content.Pack {
	return &content.Pack{
		ID:      "test",
		Version: "1",
		Resources: []content.ResourceDef{
			{ID: "gold", StartAmount: 10},
		},
		Generators: []content.GeneratorDef{{ID: "miner"}},
		Upgrades:   []content.UpgradeDef{{ID: "pickaxe"}},
	}
}

func TestContentDigest_StableForSamePack(t *testing.T) {
	pack := newTestPack()
	d1 := ContentDigest(pack)
	d2 := ContentDigest(pack)
	if d1 != d2 {
		t.Fatalf("expected stable digest, got %q then %q", d1, d2)
	}
}

func TestContentDigest_DiffersWhenModulesDiffer(t *testing.T) {
	pack1 := newTestPack()
	pack2 := newTestPack()
	pack2.Resources = append(pack2.Resources, content.ResourceDef{ID: "gem"})
	if ContentDigest(pack1) == ContentDigest(pack2) {
		t.Fatal("expected digest to differ when module set differs")
	}
}

func TestSerializeHydrate_RoundTrip(t *testing.T) {
	pack := newTestPack()
	w := state.NewWorld(pack)
	goldIdx := w.Resources.RequireIndex("gold")
	w.Resources.SetAmount(goldIdx, 77)
	q := queue.New(10)

	data, err := Serialize(w, pack, 5, 123, q)
	if err != nil {
		t.Fatalf("unexpected serialize error: %v", err)
	}

	w2 := state.NewWorld(pack)
	q2 := queue.New(10)
	step, seed, err := Hydrate(data, w2, pack, q2, 0)
	if err != nil {
		t.Fatalf("unexpected hydrate error: %v", err)
	}
	if step != 5 || seed != 123 {
		t.Fatalf("expected step=5 seed=123, got step=%d seed=%d", step, seed)
	}
	if got := w2.Resources.Amount(w2.Resources.RequireIndex("gold")); got != 77 {
		t.Fatalf("expected restored gold amount 77, got %v", got)
	}
}

func TestHydrate_PanicsOnContentDigestMismatch(t *testing.T) {
	pack := newTestPack()
	w := state.NewWorld(pack)
	q := queue.New(10)
	data, _ := Serialize(w, pack, 0, 0, q)

	otherPack := newTestPack()
	otherPack.Resources = append(otherPack.Resources, content.ResourceDef{ID: "extra"})
	w2 := state.NewWorld(otherPack)
	q2 := queue.New(10)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on content digest mismatch")
		}
	}()
	Hydrate(data, w2, otherPack, q2, 0)
}

func TestHydrate_PanicsOnStepRegression(t *testing.T) {
	pack := newTestPack()
	w := state.NewWorld(pack)
	q := queue.New(10)
	data, _ := Serialize(w, pack, 3, 0, q)

	w2 := state.NewWorld(pack)
	q2 := queue.New(10)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic when hydrating an earlier step than the running runtime")
		}
	}()
	Hydrate(data, w2, pack, q2, 10)
}

func TestHydrate_PanicsOnUnsupportedVersion(t *testing.T) {
	pack := newTestPack()
	w := state.NewWorld(pack)
	q := queue.New(10)
	data := []byte(`{"version":99}`)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on unsupported save version")
		}
	}()
	Hydrate(data, w, pack, q, 0)
}

func TestHydrate_MigratesV0WithoutDigestCheck(t *testing.T) {
	pack := newTestPack()
	legacy := legacyV0{
		Version:     0,
		Step:        2,
		RNGSeed:     9,
		Resources:   []state.ResourceSave{{ID: "gold", Amount: 50}},
		Generators:  []state.GeneratorSave{{ID: "miner", Level: 1}},
		Upgrades:    []state.UpgradeSave{{ID: "pickaxe"}},
		Automations: map[string]bool{"auto-mine": true},
	}
	data, err := json.Marshal(legacy)
	if err != nil {
		t.Fatalf("unexpected marshal error: %v", err)
	}

	w := state.NewWorld(&content.Pack{
		Resources:   pack.Resources,
		Generators:  pack.Generators,
		Upgrades:    pack.Upgrades,
		Automations: []content.AutomationDef{{ID: "auto-mine"}},
	})
	q := queue.New(10)
	step, seed, err := Hydrate(data, w, &content.Pack{
		Resources:   pack.Resources,
		Generators:  pack.Generators,
		Upgrades:    pack.Upgrades,
		Automations: []content.AutomationDef{{ID: "auto-mine"}},
	}, q, 0)
	if err != nil {
		t.Fatalf("unexpected hydrate error for v0 migration: %v", err)
	}
	if step != 2 || seed != 9 {
		t.Fatalf("expected step=2 seed=9 from migrated v0 save, got step=%d seed=%d", step, seed)
	}
	autoIdx := w.Automations.RequireIndex("auto-mine")
	if !w.Automations.Enabled(autoIdx) {
		t.Fatal("expected migrated automation to be enabled")
	}
}

func TestSerialize_OutputIsCanonicallySortedAndStable(t *testing.T) {
	pack := newTestPack()
	w := state.NewWorld(pack)
	q := queue.New(10)
	d1, _ := Serialize(w, pack, 0, 0, q)
	d2, _ := Serialize(w, pack, 0, 0, q)
	if string(d1) != string(d2) {
		t.Fatal("expected identical state to serialize to byte-identical output")
	}
}
