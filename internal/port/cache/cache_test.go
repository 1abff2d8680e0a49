package cache_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/daybookhq/daybook/internal/adapter/ristretto"
	"github.com/daybookhq/daybook/internal/port/cache"
)

// RunComplianceTests exercises the Cache contract shared by every backend:
// read-your-write, silent misses, idempotent deletes, last-write-wins.
func RunComplianceTests(t *testing.T, c cache.Cache) {
	t.Helper()
	ctx := context.Background()

	mustSet := func(t *testing.T, key string, val []byte) {
		t.Helper()
		if err := c.Set(ctx, key, val, time.Minute); err != nil {
			t.Fatalf("Set %s: %v", key, err)
		}
	}
	lookup := func(t *testing.T, key string) ([]byte, bool) {
		t.Helper()
		val, found, err := c.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get %s: %v", key, err)
		}
		return val, found
	}

	t.Run("ReadYourWrite", func(t *testing.T) {
		key := cache.PackagesKey("tn_compliance")
		mustSet(t, key, []byte(`[{"slug":"gold"}]`))

		val, found := lookup(t, key)
		if !found {
			t.Fatal("entry missing right after Set")
		}
		if got := string(val); got != `[{"slug":"gold"}]` {
			t.Fatalf("Get = %s", got)
		}
	})

	t.Run("MissIsSilent", func(t *testing.T) {
		if _, found := lookup(t, cache.TenantKey("pk_live_never_issued")); found {
			t.Fatal("hit on a key that was never set")
		}
	})

	t.Run("DeleteRemoves", func(t *testing.T) {
		key := cache.PackageKey("tn_compliance", "classic")
		mustSet(t, key, []byte(`{"slug":"classic"}`))
		if err := c.Delete(ctx, key); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if _, found := lookup(t, key); found {
			t.Fatal("entry survived Delete")
		}
	})

	t.Run("DeleteMissingIsNoError", func(t *testing.T) {
		if err := c.Delete(ctx, cache.AddOnsKey("tn_compliance", "pkg_none")); err != nil {
			t.Fatalf("Delete on absent key: %v", err)
		}
	})

	t.Run("LastWriteWins", func(t *testing.T) {
		key := cache.TenantKey("pk_live_rotate")
		mustSet(t, key, []byte(`{"slug":"bella","version":1}`))
		mustSet(t, key, []byte(`{"slug":"bella","version":2}`))

		val, found := lookup(t, key)
		if !found {
			t.Fatal("entry missing after overwrite")
		}
		if !strings.Contains(string(val), `"version":2`) {
			t.Fatalf("stale value after overwrite: %s", val)
		}
	})
}

// flushingL1 drains ristretto's write buffer after every Set. The suite
// asserts read-your-write, which the raw L1 only promises after Wait.
type flushingL1 struct {
	*ristretto.Cache
}

func (f flushingL1) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := f.Cache.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	f.Wait()
	return nil
}

func TestL1CacheCompliance(t *testing.T) {
	l1, err := ristretto.New(16)
	if err != nil {
		t.Fatal(err)
	}
	defer l1.Close()
	RunComplianceTests(t, flushingL1{l1})
}

func TestKeysAreTenantScoped(t *testing.T) {
	keys := []string{
		cache.PackagesKey("t1"),
		cache.PackageKey("t1", "intimate-ceremony"),
		cache.AddOnsKey("t1", "pkg-1"),
	}
	for _, k := range keys {
		if !strings.Contains(k, "t1") {
			t.Fatalf("key %q does not embed the tenant id", k)
		}
	}

	if cache.PackageKey("t1", "x") == cache.PackageKey("t2", "x") {
		t.Fatal("identical slugs under different tenants must not collide")
	}
	if cache.TenantKey("dbp_a_1") == cache.TenantKey("dbp_a_2") {
		t.Fatal("distinct public keys must not collide")
	}
}
