// Package leader provides Kubernetes Lease-based leader election so that
// exactly one replica owns the auction rooms and their session timers.
package leader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/jensholdgaard/player-auction/internal/config"
)

// identity returns a unique identity for this instance.
// It uses the POD_NAME env var if set, otherwise the hostname.
func identity() string {
	if name := os.Getenv("POD_NAME"); name != "" {
		return name
	}
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return host
}

// ClientFactory creates a Kubernetes clientset.
// Extracted as a variable for testing.
var ClientFactory = func() (kubernetes.Interface, error) {
	cfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, fmt.Errorf("building in-cluster config: %w", err)
	}
	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes client: %w", err)
	}
	return client, nil
}

// Elector runs leader election for one replica.
type Elector struct {
	cfg     config.LeaderElectionConfig
	logger  *slog.Logger
	id      string
	leading atomic.Bool
}

// New returns an Elector identified by cfg.Identity, falling back to
// POD_NAME or the hostname.
func New(cfg config.LeaderElectionConfig, logger *slog.Logger) *Elector {
	id := cfg.Identity
	if id == "" {
		id = identity()
	}
	return &Elector{cfg: cfg, logger: logger, id: id}
}

// Identity returns the lock holder identity of this replica.
func (e *Elector) Identity() string { return e.id }

// IsLeader reports whether this replica currently holds the lease.
func (e *Elector) IsLeader() bool { return e.leading.Load() }

// Check fails while this replica is a follower. It is meant for readiness.
func (e *Elector) Check(context.Context) error {
	if !e.IsLeader() {
		return fmt.Errorf("%s is not the leader", e.id)
	}
	return nil
}

// Run starts leader election. onStartedLeading is invoked when this
// instance becomes the leader and should block until its ctx is done;
// onStoppedLeading runs when leadership is lost. Run blocks until the
// election loop exits.
func (e *Elector) Run(ctx context.Context, onStartedLeading func(ctx context.Context), onStoppedLeading func()) error {
	e.logger.InfoContext(ctx, "starting leader election",
		slog.String("identity", e.id),
		slog.String("lease", e.cfg.LeaseName),
		slog.String("namespace", e.cfg.LeaseNamespace),
	)

	client, err := ClientFactory()
	if err != nil {
		return fmt.Errorf("leader election client: %w", err)
	}

	lock := &resourcelock.LeaseLock{
		LeaseMeta: metav1.ObjectMeta{
			Name:      e.cfg.LeaseName,
			Namespace: e.cfg.LeaseNamespace,
		},
		Client: client.CoordinationV1(),
		LockConfig: resourcelock.ResourceLockConfig{
			Identity: e.id,
		},
	}

	le, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
		Lock:            lock,
		LeaseDuration:   e.cfg.LeaseDuration,
		RenewDeadline:   e.cfg.RenewDeadline,
		RetryPeriod:     e.cfg.RetryPeriod,
		ReleaseOnCancel: true,
		Name:            e.cfg.LeaseName,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(ctx context.Context) {
				e.leading.Store(true)
				e.logger.Info("acquired leadership", slog.String("identity", e.id))
				onStartedLeading(ctx)
			},
			OnStoppedLeading: func() {
				e.leading.Store(false)
				e.logger.Info("lost leadership", slog.String("identity", e.id))
				onStoppedLeading()
			},
			OnNewLeader: func(newID string) {
				if newID == e.id {
					return
				}
				e.logger.Info("new leader elected", slog.String("leader", newID))
			},
		},
	})
	if err != nil {
		return fmt.Errorf("creating leader elector: %w", err)
	}

	le.Run(ctx)
	return nil
}
