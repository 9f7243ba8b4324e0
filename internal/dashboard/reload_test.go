package dashboard

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/ppiankov/vetter/internal/metrics"
	"github.com/ppiankov/vetter/internal/refdata"
)

const refV1 = `
denylisted_group_ids: []
denylisted_user_ids: [13]
denylisted_badge_ids: []
banned_username_words: []
impersonation_names: []
`

const refV2 = `
denylisted_group_ids: []
denylisted_user_ids: [13, 14]
denylisted_badge_ids: []
banned_username_words: []
impersonation_names: []
`

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func setupReloader(t *testing.T) (*Reloader, *refdata.Holder, *metrics.Metrics, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reference.yaml")
	writeFile(t, path, refV1)
	rd, hash, err := refdata.LoadWithHash(path)
	if err != nil {
		t.Fatal(err)
	}
	holder := refdata.NewHolder(rd, hash)
	m := metrics.New(prometheus.NewRegistry())
	r, err := NewReloader(path, holder, zerolog.Nop(), m)
	if err != nil {
		t.Fatal(err)
	}
	return r, holder, m, path
}

func TestReloadSwapsSnapshot(t *testing.T) {
	r, holder, m, path := setupReloader(t)
	defer r.watcher.Close()
	before := holder.Hash()

	writeFile(t, path, refV2)
	if err := r.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if holder.Hash() == before || !holder.Load().IsDenylistedUser(14) {
		t.Fatal("snapshot was not swapped")
	}
	if got := testutil.ToFloat64(m.ReferenceReloads.WithLabelValues("ok")); got != 1 {
		t.Errorf("reload ok metric = %v", got)
	}

	// Unchanged content is a no-op.
	if err := r.Reload(); err != nil {
		t.Fatal(err)
	}
	if got := testutil.ToFloat64(m.ReferenceReloads.WithLabelValues("ok")); got != 1 {
		t.Errorf("unchanged file counted as reload: %v", got)
	}
}

func TestReloadFailureKeepsSnapshot(t *testing.T) {
	r, holder, m, path := setupReloader(t)
	defer r.watcher.Close()
	before := holder.Load()

	// Missing required list.
	writeFile(t, path, "denylisted_user_ids: [99]\n")
	if err := r.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if holder.Load() != before {
		t.Error("failed reload replaced the snapshot")
	}
	if got := testutil.ToFloat64(m.ReferenceReloads.WithLabelValues("failed")); got != 1 {
		t.Errorf("reload failed metric = %v", got)
	}
}

func TestReloaderRunPicksUpWrites(t *testing.T) {
	r, holder, _, path := setupReloader(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	before := holder.Hash()
	writeFile(t, path, refV2)

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if holder.Hash() != before {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("reference data was not reloaded after a write")
}
