package leader

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"k8s.io/client-go/kubernetes"

	"github.com/jensholdgaard/player-auction/internal/config"
)

func TestIdentity_FromPodName(t *testing.T) {
	t.Setenv("POD_NAME", "auctionbot-abc123")
	if got := identity(); got != "auctionbot-abc123" {
		t.Errorf("identity() = %q, want %q", got, "auctionbot-abc123")
	}
}

func TestIdentity_Hostname(t *testing.T) {
	t.Setenv("POD_NAME", "")
	host, err := os.Hostname()
	if err != nil {
		t.Skip("cannot get hostname")
	}
	if got := identity(); got != host {
		t.Errorf("identity() = %q, want %q", got, host)
	}
}

func TestNew_ConfiguredIdentity(t *testing.T) {
	t.Setenv("POD_NAME", "auctionbot-0")
	e := New(config.LeaderElectionConfig{Identity: "replica-a"}, slog.Default())
	if got := e.Identity(); got != "replica-a" {
		t.Errorf("Identity() = %q, want %q", got, "replica-a")
	}
}

func TestElector_CheckBeforeLeading(t *testing.T) {
	t.Setenv("POD_NAME", "auctionbot-0")
	e := New(config.LeaderElectionConfig{LeaseName: "auctionbot-leader"}, slog.Default())

	if e.IsLeader() {
		t.Fatal("new elector must not start as leader")
	}
	if err := e.Check(context.Background()); err == nil {
		t.Error("Check() should fail for a follower")
	}
	e.leading.Store(true)
	if err := e.Check(context.Background()); err != nil {
		t.Errorf("Check() error = %v for the leader", err)
	}
}

func TestElector_RunClientError(t *testing.T) {
	orig := ClientFactory
	ClientFactory = func() (kubernetes.Interface, error) { return nil, errors.New("no cluster") }
	t.Cleanup(func() { ClientFactory = orig })

	e := New(config.LeaderElectionConfig{LeaseName: "auctionbot-leader"}, slog.Default())
	err := e.Run(context.Background(), func(context.Context) {}, func() {})
	if err == nil {
		t.Fatal("expected error when the client cannot be built")
	}
}
