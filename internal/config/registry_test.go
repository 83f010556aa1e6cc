package config_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/voxrelay/internal/config"
	"github.com/MrWong99/voxrelay/pkg/provider/stt"
	"github.com/MrWong99/voxrelay/pkg/provider/stt/mock"
)

func TestRegistry_CreateSTT(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	var got config.ProviderEntry
	reg.RegisterSTT("fake", func(e config.ProviderEntry) (stt.Provider, error) {
		got = e
		return &mock.Provider{}, nil
	})
	reg.RegisterSTT("broken", func(config.ProviderEntry) (stt.Provider, error) {
		return nil, errors.New("missing credentials")
	})

	entry := config.ProviderEntry{Name: "fake", Model: "m1"}
	p, err := reg.CreateSTT(entry)
	if err != nil || p == nil {
		t.Fatalf("CreateSTT(fake) = %v, %v", p, err)
	}
	if got.Model != "m1" {
		t.Errorf("factory received %+v", got)
	}

	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("unregistered err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "broken"}); err == nil {
		t.Error("expected factory error to propagate")
	}

	if names := reg.STTNames(); !slices.Equal(names, []string{"broken", "fake"}) {
		t.Errorf("STTNames = %v", names)
	}
}
