//go:build integration

package firestore

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"strings"
	"testing"
	"time"

	domain "github.com/storefront-orders/api/internal/domain"
	pconfig "github.com/storefront-orders/api/internal/platform/config"
	pfirestore "github.com/storefront-orders/api/internal/platform/firestore"
	"github.com/storefront-orders/api/internal/repositories"
)

const firestoreEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"

func newEmulatorRegistry(t *testing.T) (*Registry, *pfirestore.Provider) {
	t.Helper()
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	ensureDockerDaemon(t)

	port := freePort(t)
	endpoint := fmt.Sprintf("127.0.0.1:%d", port)
	containerID := startFirestoreEmulator(t, port)
	t.Cleanup(func() { stopContainer(containerID) })
	waitForEndpoint(t, endpoint, 30*time.Second)

	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{ProjectID: "orders-test", EmulatorHost: endpoint})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })

	reg, err := NewRegistry(provider)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return reg, provider
}

func TestRegistryIntegration(t *testing.T) {
	reg, provider := newEmulatorRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("provider client: %v", err)
	}
	now := time.Now().UTC().Truncate(time.Second)

	// legacy catalog document: float price in major units, no isActive flag
	if _, err := client.Collection(productsCollection).Doc("prod_rice").Set(ctx, map[string]any{
		"productName":   "Jasmine Rice 5kg",
		"productPrice":  320.0,
		"stockQuantity": 10,
		"description":   "kept on merge",
	}); err != nil {
		t.Fatalf("seed product: %v", err)
	}
	product, err := reg.Products().Get(ctx, "prod_rice")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Price != 32000 || !product.IsActive || product.Name != "Jasmine Rice 5kg" {
		t.Fatalf("unexpected product decode: %+v", product)
	}
	product.ReservedQuantity = 2
	if err := reg.Products().Save(ctx, product); err != nil {
		t.Fatalf("save product: %v", err)
	}
	snap, err := client.Collection(productsCollection).Doc("prod_rice").Get(ctx)
	if err != nil {
		t.Fatalf("reload product: %v", err)
	}
	if desc, _ := snap.Data()["description"].(string); desc != "kept on merge" {
		t.Fatalf("expected unrelated fields preserved, got %v", snap.Data())
	}

	byUID := domain.Order{
		ID:        "ord_uid",
		Partition: domain.PartitionPending,
		Status:    domain.OrderStatusPending,
		Owner:     domain.OwnerRef{UserID: "user_1"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	byEmail := domain.Order{
		ID:        "ord_email",
		Partition: domain.PartitionDelivered,
		Status:    domain.OrderStatusDelivered,
		Owner:     domain.OwnerRef{Email: "Maria@Example.com"},
		CreatedAt: now.Add(-time.Hour),
		UpdatedAt: now,
	}
	stranger := domain.Order{
		ID:        "ord_other",
		Partition: domain.PartitionPending,
		Status:    domain.OrderStatusPending,
		Owner:     domain.OwnerRef{UserID: "user_2", Email: "ana@example.com"},
		CreatedAt: now,
		UpdatedAt: now,
	}
	for _, o := range []domain.Order{byUID, byEmail, stranger} {
		if err := reg.Orders().Insert(ctx, o); err != nil {
			t.Fatalf("insert %s: %v", o.ID, err)
		}
	}
	if err := reg.Orders().Insert(ctx, byUID); err == nil {
		t.Fatalf("expected duplicate insert to fail")
	}

	owned, err := reg.Orders().QueryByOwner(ctx, repositories.OwnerQuery{Keys: domain.OwnerRef{UserID: "user_1", Email: "maria@example.com"}})
	if err != nil {
		t.Fatalf("query by owner: %v", err)
	}
	if len(owned) != 2 || owned[0].ID != "ord_uid" || owned[1].ID != "ord_email" {
		t.Fatalf("unexpected owner result: %+v", owned)
	}
	none, err := reg.Orders().QueryByOwner(ctx, repositories.OwnerQuery{})
	if err != nil || len(none) != 0 {
		t.Fatalf("expected empty owner query to match nothing, got %d (%v)", len(none), err)
	}

	err = reg.RunInTx(ctx, func(ctx context.Context) error {
		order, err := reg.Orders().Get(ctx, "ord_uid")
		if err != nil {
			return err
		}
		order.Partition = domain.PartitionAccepted
		order.Status = domain.OrderStatusApproved
		if err := reg.Orders().Save(ctx, order); err != nil {
			return err
		}
		return reg.OrderMoves().Append(ctx, domain.OrderMove{
			ID:         "mv_1",
			OrderID:    "ord_uid",
			Operation:  "accept",
			From:       domain.PartitionPending,
			To:         domain.PartitionAccepted,
			OccurredAt: now,
		})
	})
	if err != nil {
		t.Fatalf("move transaction: %v", err)
	}
	moved, err := reg.Orders().Get(ctx, "ord_uid")
	if err != nil || moved.Partition != domain.PartitionAccepted {
		t.Fatalf("expected accepted order, got %+v (%v)", moved, err)
	}
	moves, err := reg.OrderMoves().ListByOrder(ctx, "ord_uid")
	if err != nil || len(moves) != 1 {
		t.Fatalf("expected one move, got %d (%v)", len(moves), err)
	}

	removed, err := reg.Orders().Delete(ctx, "ord_missing")
	if err != nil || removed {
		t.Fatalf("expected delete of missing order to report false, got %v (%v)", removed, err)
	}

	for i, n := range []domain.Notification{
		{ID: "ntf_a", Type: domain.NotificationCancellationRequest, Audience: domain.AudienceStaff, SourceID: "cr_1", CreatedAt: now},
		{ID: "ntf_b", Type: domain.NotificationOrderStatusChanged, Audience: domain.AudienceUser, RecipientID: "user_1", SourceID: "mv_1", CreatedAt: now.Add(time.Second), Dispatched: true},
	} {
		if err := reg.Notifications().Create(ctx, n); err != nil {
			t.Fatalf("create notification %d: %v", i, err)
		}
	}
	pending, err := reg.Notifications().ListUndispatched(ctx, 10)
	if err != nil {
		t.Fatalf("list undispatched: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "ntf_a" {
		t.Fatalf("unexpected undispatched set: %+v", pending)
	}
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("unable to allocate port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func startFirestoreEmulator(t *testing.T, port int) string {
	t.Helper()
	args := []string{
		"run", "-d", "--rm",
		"-p", fmt.Sprintf("%d:8080", port),
		firestoreEmulatorImage,
		"gcloud", "beta", "emulators", "firestore", "start",
		"--host-port=0.0.0.0:8080",
		"--quiet",
	}
	out, err := exec.Command("docker", args...).CombinedOutput()
	if err != nil {
		t.Fatalf("failed to start firestore emulator: %v - %s", err, string(out))
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		t.Fatalf("docker returned empty container id")
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id
}

func ensureDockerDaemon(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := exec.CommandContext(ctx, "docker", "info").Run(); err != nil {
		t.Skipf("docker daemon not available: %v", err)
	}
}

func stopContainer(id string) {
	if id == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = exec.CommandContext(ctx, "docker", "stop", id).Run()
}

func waitForEndpoint(t *testing.T, endpoint string, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", endpoint, 500*time.Millisecond)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("firestore emulator at %s did not become ready within %s", endpoint, timeout)
}
