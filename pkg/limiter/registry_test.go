package limiter

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/choked/choked/pkg/store"
)

func TestRegister(t *testing.T) {
	reg := NewRegistry(store.NewMemoryStore())

	lim, err := reg.Register("chat", Spec{
		RequestLimit:   "50/s",
		TokenLimit:     "100000/m",
		TokenEstimator: "openai",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !lim.CostLimited() {
		t.Error("limiter should have a cost dimension")
	}

	got, ok := reg.Limiter("chat")
	if !ok || got != lim {
		t.Error("Limiter should return the registered instance")
	}
	if _, ok := reg.Estimator("chat"); !ok {
		t.Error("Estimator should be registered alongside the token limit")
	}
}

func TestRegister_Validation(t *testing.T) {
	reg := NewRegistry(store.NewMemoryStore())

	cases := []struct {
		name string
		spec Spec
	}{
		{"no limits", Spec{}},
		{"bad request rate", Spec{RequestLimit: "fifty/s"}},
		{"bad token rate", Spec{RequestLimit: "1/s", TokenLimit: "100/y"}},
		{"unknown estimator", Spec{TokenLimit: "100/s", TokenEstimator: "gpt9"}},
		{"estimator without token limit", Spec{RequestLimit: "1/s", TokenEstimator: "openai"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := reg.Register("k", tc.spec); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestRegister_DefaultEstimator(t *testing.T) {
	reg := NewRegistry(store.NewMemoryStore())

	// An empty estimator name with a token limit selects the default.
	if _, err := reg.Register("k", Spec{TokenLimit: "100/s"}); err != nil {
		t.Fatal(err)
	}
	if _, ok := reg.Estimator("k"); !ok {
		t.Error("default estimator should be registered")
	}
}

func TestRegister_ReplacesPreviousKey(t *testing.T) {
	reg := NewRegistry(store.NewMemoryStore())

	if _, err := reg.Register("k", Spec{TokenLimit: "100/s"}); err != nil {
		t.Fatal(err)
	}
	replacement, err := reg.Register("k", Spec{RequestLimit: "10/s"})
	if err != nil {
		t.Fatal(err)
	}

	got, _ := reg.Limiter("k")
	if got != replacement {
		t.Error("re-registering should replace the limiter")
	}
	if _, ok := reg.Estimator("k"); ok {
		t.Error("estimator should be dropped when the new spec has no token limit")
	}
}

func TestRegistry_Keys(t *testing.T) {
	reg := NewRegistry(store.NewMemoryStore())
	for _, key := range []string{"a", "b", "c"} {
		if _, err := reg.Register(key, Spec{RequestLimit: "1/s"}); err != nil {
			t.Fatal(err)
		}
	}

	keys := reg.Keys()
	sort.Strings(keys)
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Errorf("Keys = %v, want [a b c]", keys)
	}
}

func TestRegistry_OptionsApplyToAllLimiters(t *testing.T) {
	failing := &flakyStore{inner: store.NewMemoryStore(), failConsumeOn: "req:"}
	reg := NewRegistry(failing, WithFailOpen(true))

	lim, err := reg.Register("k", Spec{RequestLimit: "1/s"})
	if err != nil {
		t.Fatal(err)
	}

	dec, err := lim.Await(context.Background(), 0)
	if err != nil {
		t.Fatal(err)
	}
	if !dec.FailOpen {
		t.Error("registry options should have configured fail-open")
	}
}
