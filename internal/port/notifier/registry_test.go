package notifier_test

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/Strob0t/agentrelay/internal/domain"
	"github.com/Strob0t/agentrelay/internal/port/notifier"
)

type testNotifier struct{ url string }

func (n *testNotifier) Name() string { return "test-notifier" }

func (n *testNotifier) Send(context.Context, notifier.Notification) error { return nil }

func init() {
	notifier.Register("test-notifier", func(config map[string]string) (notifier.Notifier, error) {
		if config["webhook_url"] == "" {
			return nil, notifier.ErrNotConfigured
		}
		return &testNotifier{url: config["webhook_url"]}, nil
	})
}

func TestNew(t *testing.T) {
	n, err := notifier.New("test-notifier", map[string]string{"webhook_url": "https://hooks.example.com/x"})
	if err != nil {
		t.Fatal(err)
	}
	if n.(*testNotifier).url != "https://hooks.example.com/x" {
		t.Errorf("factory did not receive config")
	}
}

func TestNewNotConfigured(t *testing.T) {
	_, err := notifier.New("test-notifier", nil)
	if !errors.Is(err, notifier.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestNewUnknown(t *testing.T) {
	_, err := notifier.New("carrier-pigeon", nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestAvailable(t *testing.T) {
	if !slices.Contains(notifier.Available(), "test-notifier") {
		t.Errorf("expected test-notifier in %v", notifier.Available())
	}
}

func TestRegisterDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	notifier.Register("test-notifier", func(map[string]string) (notifier.Notifier, error) { return nil, nil })
}
