package repositorycache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-proxy-cache/cache"
	"github.com/goliatone/go-proxy-cache/internal/cacheinfra"
	"github.com/goliatone/go-proxy-cache/pkg/codec"
	"github.com/goliatone/go-proxy-cache/proxy"
)

type account struct {
	ID    string `json:"id" msgpack:"id"`
	Email string `json:"email" msgpack:"email"`
}

var errNotFound = errors.New("account not found")

// accountRepo keeps accounts in memory. Methods it does not override panic
// through the nil embedded interface, so a test touching one fails loudly.
type accountRepo struct {
	repository.Repository[account]

	mu       sync.Mutex
	accounts map[string]account
	calls    map[string]int
}

func newAccountRepo(accounts ...account) *accountRepo {
	r := &accountRepo{accounts: map[string]account{}, calls: map[string]int{}}
	for _, a := range accounts {
		r.accounts[a.ID] = a
	}
	return r
}

func (r *accountRepo) hit(method string) {
	r.calls[method]++
}

func (r *accountRepo) Calls(method string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[method]
}

func (r *accountRepo) GetByID(_ context.Context, id string, _ ...repository.SelectCriteria) (account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hit("GetByID")
	a, ok := r.accounts[id]
	if !ok {
		return account{}, errNotFound
	}
	return a, nil
}

func (r *accountRepo) GetByIDTx(ctx context.Context, _ bun.IDB, id string, criteria ...repository.SelectCriteria) (account, error) {
	r.mu.Lock()
	r.hit("GetByIDTx")
	r.mu.Unlock()
	return r.GetByID(ctx, id, criteria...)
}

func (r *accountRepo) GetByIdentifier(_ context.Context, identifier string, _ ...repository.SelectCriteria) (account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hit("GetByIdentifier")
	for _, a := range r.accounts {
		if a.Email == identifier {
			return a, nil
		}
	}
	return account{}, errNotFound
}

func (r *accountRepo) List(_ context.Context, _ ...repository.SelectCriteria) ([]account, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hit("List")
	out := make([]account, 0, len(r.accounts))
	for _, id := range []string{"a1", "a2", "a3"} {
		if a, ok := r.accounts[id]; ok {
			out = append(out, a)
		}
	}
	return out, len(r.accounts), nil
}

func (r *accountRepo) Count(_ context.Context, _ ...repository.SelectCriteria) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hit("Count")
	return len(r.accounts), nil
}

func (r *accountRepo) Create(_ context.Context, record account, _ ...repository.InsertCriteria) (account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hit("Create")
	r.accounts[record.ID] = record
	return record, nil
}

func (r *accountRepo) Update(_ context.Context, record account, _ ...repository.UpdateCriteria) (account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hit("Update")
	if _, ok := r.accounts[record.ID]; !ok {
		return account{}, errNotFound
	}
	r.accounts[record.ID] = record
	return record, nil
}

func (r *accountRepo) Delete(_ context.Context, record account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hit("Delete")
	delete(r.accounts, record.ID)
	return nil
}

func (r *accountRepo) Raw(_ context.Context, _ string, _ ...any) ([]account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hit("Raw")
	return nil, nil
}

func seededRepo() *accountRepo {
	return newAccountRepo(
		account{ID: "a1", Email: "ada@example.com"},
		account{ID: "a2", Email: "bob@example.com"},
	)
}

func newCachedRepo(t *testing.T, base repository.Repository[account], opts ...Option) *CachedRepository[account] {
	t.Helper()
	store := cacheinfra.NewMemoryStore(cacheinfra.WithCleanupInterval(0))
	t.Cleanup(func() { _ = store.Close() })

	cached, err := New(base, store, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return cached
}

func TestCachedRepository_ReadsAreMemoized(t *testing.T) {
	ctx := context.Background()
	base := seededRepo()
	cached := newCachedRepo(t, base)

	for range 3 {
		got, err := cached.GetByID(ctx, "a1")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Email != "ada@example.com" {
			t.Fatalf("GetByID() = %+v", got)
		}
	}
	if n := base.Calls("GetByID"); n != 1 {
		t.Errorf("base GetByID calls = %d, want 1", n)
	}

	if _, err := cached.GetByID(ctx, "a2"); err != nil {
		t.Fatalf("GetByID(a2) error = %v", err)
	}
	if n := base.Calls("GetByID"); n != 2 {
		t.Errorf("different id should miss, calls = %d", n)
	}

	for range 2 {
		records, total, err := cached.List(ctx)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if len(records) != 2 || total != 2 {
			t.Fatalf("List() = %v, %d", records, total)
		}
		if _, err := cached.Count(ctx); err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if _, err := cached.GetByIdentifier(ctx, "bob@example.com"); err != nil {
			t.Fatalf("GetByIdentifier() error = %v", err)
		}
	}
	for _, method := range []string{"List", "Count", "GetByIdentifier"} {
		if n := base.Calls(method); n != 1 {
			t.Errorf("base %s calls = %d, want 1", method, n)
		}
	}
}

func TestCachedRepository_ErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	base := seededRepo()
	cached := newCachedRepo(t, base)

	for range 2 {
		if _, err := cached.GetByID(ctx, "missing"); !errors.Is(err, errNotFound) {
			t.Fatalf("GetByID(missing) error = %v, want %v", err, errNotFound)
		}
	}
	if n := base.Calls("GetByID"); n != 2 {
		t.Errorf("base GetByID calls = %d, want 2", n)
	}
}

func TestCachedRepository_CreateInvalidatesCollections(t *testing.T) {
	ctx := context.Background()
	base := seededRepo()
	cached := newCachedRepo(t, base)

	if _, err := cached.GetByID(ctx, "a1"); err != nil {
		t.Fatal(err)
	}
	if _, _, err := cached.List(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.Count(ctx); err != nil {
		t.Fatal(err)
	}

	if _, err := cached.Create(ctx, account{ID: "a3", Email: "cy@example.com"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	count, err := cached.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Errorf("Count() after Create = %d, want 3", count)
	}
	records, _, err := cached.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 3 {
		t.Errorf("List() after Create returned %d records, want 3", len(records))
	}

	if _, err := cached.GetByID(ctx, "a1"); err != nil {
		t.Fatal(err)
	}
	if n := base.Calls("GetByID"); n != 1 {
		t.Errorf("Create should keep GetByID cached, calls = %d", n)
	}
}

func TestCachedRepository_UpdateAndDeleteInvalidateRecords(t *testing.T) {
	ctx := context.Background()
	base := seededRepo()
	cached := newCachedRepo(t, base)

	if _, err := cached.GetByID(ctx, "a1"); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.GetByIdentifier(ctx, "ada@example.com"); err != nil {
		t.Fatal(err)
	}

	if _, err := cached.Update(ctx, account{ID: "a1", Email: "ada@lovelace.dev"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	got, err := cached.GetByID(ctx, "a1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Email != "ada@lovelace.dev" {
		t.Errorf("GetByID() after Update = %+v", got)
	}
	if _, err := cached.GetByIdentifier(ctx, "ada@example.com"); !errors.Is(err, errNotFound) {
		t.Errorf("stale identifier lookup should miss, err = %v", err)
	}

	if err := cached.Delete(ctx, account{ID: "a1"}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := cached.GetByID(ctx, "a1"); !errors.Is(err, errNotFound) {
		t.Errorf("GetByID() after Delete error = %v", err)
	}
}

func TestCachedRepository_FailedWriteStillPurges(t *testing.T) {
	ctx := context.Background()
	base := seededRepo()
	cached := newCachedRepo(t, base)

	if _, err := cached.Count(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.Update(ctx, account{ID: "ghost"}); !errors.Is(err, errNotFound) {
		t.Fatalf("Update(ghost) error = %v", err)
	}
	if _, err := cached.Count(ctx); err != nil {
		t.Fatal(err)
	}
	if n := base.Calls("Count"); n != 2 {
		t.Errorf("base Count calls = %d, want 2", n)
	}
}

func TestCachedRepository_PassThrough(t *testing.T) {
	ctx := context.Background()
	base := seededRepo()
	cached := newCachedRepo(t, base)

	for range 2 {
		if _, err := cached.GetByIDTx(ctx, nil, "a1"); err != nil {
			t.Fatal(err)
		}
		if _, err := cached.Raw(ctx, "SELECT 1"); err != nil {
			t.Fatal(err)
		}
	}
	if n := base.Calls("GetByIDTx"); n != 2 {
		t.Errorf("GetByIDTx calls = %d, want 2", n)
	}
	if n := base.Calls("Raw"); n != 2 {
		t.Errorf("Raw calls = %d, want 2", n)
	}

	keys, err := cached.Engine().Registry().Keys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 {
		t.Errorf("pass-through calls registered keys: %v", keys)
	}
}

func TestCachedRepository_CustomInvalidationMap(t *testing.T) {
	ctx := context.Background()
	base := seededRepo()
	cached := newCachedRepo(t, base, WithInvalidationMap(map[string][]string{
		"Create": {"Count"},
	}))

	if _, _, err := cached.List(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.Count(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.Create(ctx, account{ID: "a3"}); err != nil {
		t.Fatal(err)
	}
	if _, _, err := cached.List(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.Count(ctx); err != nil {
		t.Fatal(err)
	}

	if n := base.Calls("List"); n != 1 {
		t.Errorf("List calls = %d, want 1", n)
	}
	if n := base.Calls("Count"); n != 2 {
		t.Errorf("Count calls = %d, want 2", n)
	}

	// Delete is not in the map, so nothing is purged.
	if err := cached.Delete(ctx, account{ID: "a3"}); err != nil {
		t.Fatal(err)
	}
	if _, err := cached.Count(ctx); err != nil {
		t.Fatal(err)
	}
	if n := base.Calls("Count"); n != 2 {
		t.Errorf("Count calls after unmapped Delete = %d, want 2", n)
	}
}

func TestCachedRepository_SharedEngineIsolatesNamespaces(t *testing.T) {
	ctx := context.Background()
	store := cacheinfra.NewMemoryStore(cacheinfra.WithCleanupInterval(0))
	t.Cleanup(func() { _ = store.Close() })

	accountsEngine, err := proxy.NewEngine(store, proxy.WithNamespace("accounts"))
	if err != nil {
		t.Fatal(err)
	}
	archiveEngine, err := proxy.NewEngine(store, proxy.WithNamespace("archive"))
	if err != nil {
		t.Fatal(err)
	}

	liveBase, archiveBase := seededRepo(), seededRepo()
	live := NewWithEngine[account](liveBase, accountsEngine)
	archive := NewWithEngine[account](archiveBase, archiveEngine)

	if _, err := live.Count(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := archive.Count(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := live.Create(ctx, account{ID: "a3"}); err != nil {
		t.Fatal(err)
	}
	if _, err := archive.Count(ctx); err != nil {
		t.Fatal(err)
	}
	if n := archiveBase.Calls("Count"); n != 1 {
		t.Errorf("archive Count calls = %d, want 1", n)
	}
	if live.Engine() != accountsEngine {
		t.Error("Engine() should return the shared engine")
	}
}

// bytesStore keeps values as msgpack bytes, as the Redis store does.
type bytesStore struct {
	cache.Store
}

func (s bytesStore) Get(ctx context.Context, key string) (any, bool, error) {
	v, found, err := s.Store.Get(ctx, key)
	if err != nil || !found {
		return v, found, err
	}
	return codec.Encoded{Data: v.([]byte)}, true, nil
}

func (s bytesStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := codec.Msgpack.Marshal(value)
	if err != nil {
		return err
	}
	return s.Store.Set(ctx, key, data, ttl)
}

func TestCachedRepository_DecodesEncodedResults(t *testing.T) {
	ctx := context.Background()
	mem := cacheinfra.NewMemoryStore(cacheinfra.WithCleanupInterval(0))
	t.Cleanup(func() { _ = mem.Close() })

	base := seededRepo()
	cached, err := New[account](base, bytesStore{Store: mem})
	if err != nil {
		t.Fatal(err)
	}

	for range 2 {
		records, total, err := cached.List(ctx)
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if total != 2 || len(records) != 2 || records[0].ID != "a1" {
			t.Fatalf("List() = %+v, %d", records, total)
		}
		got, err := cached.GetByID(ctx, "a2")
		if err != nil {
			t.Fatalf("GetByID() error = %v", err)
		}
		if got.Email != "bob@example.com" {
			t.Fatalf("GetByID() = %+v", got)
		}
		count, err := cached.Count(ctx)
		if err != nil || count != 2 {
			t.Fatalf("Count() = %d, %v", count, err)
		}
	}
	for _, method := range []string{"List", "GetByID", "Count"} {
		if n := base.Calls(method); n != 1 {
			t.Errorf("base %s calls = %d, want 1", method, n)
		}
	}
}

func TestDefaultInvalidationMap(t *testing.T) {
	m := DefaultInvalidationMap()

	if got := m["CreateManyTx"]; len(got) != 2 || got[0] != "List" || got[1] != "Count" {
		t.Errorf("CreateManyTx = %v", got)
	}
	if got := m["ForceDeleteTx"]; len(got) != 3 || got[0] != "Get" {
		t.Errorf("ForceDeleteTx = %v", got)
	}
	if _, ok := m["GetByID"]; ok {
		t.Error("reads must not invalidate")
	}

	m["Create"][0] = "changed"
	if DefaultInvalidationMap()["Create"][0] != "List" {
		t.Error("DefaultInvalidationMap should return fresh slices")
	}
}
