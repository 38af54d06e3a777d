package capture

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/PipeOpsHQ/hookscope/internal/ident"
	"github.com/PipeOpsHQ/hookscope/internal/store"
	"github.com/google/uuid"
)

func newSQLite(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "webhook.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	return NewService(newSQLite(t), Options{})
}

func post(path string) Request {
	return Request{Method: http.MethodPost, Path: path, RemoteAddr: "3.18.12.63", ContentLength: -1}
}

func TestEndToEndPagination(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	for _, p := range []string{"/a", "/b", "/c"} {
		if _, err := svc.Ingest(ctx, post(p)); err != nil {
			t.Fatalf("ingest %s: %v", p, err)
		}
	}

	first, err := svc.List(ctx, "", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := pathnames(first.Items); len(got) != 2 || got[0] != "/a" || got[1] != "/b" {
		t.Fatalf("first page: %v", got)
	}
	if first.NextCursor == "" {
		t.Fatalf("expected next cursor on full page")
	}

	second, err := svc.List(ctx, first.NextCursor, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := pathnames(second.Items); len(got) != 1 || got[0] != "/c" {
		t.Fatalf("second page: %v", got)
	}
	if second.NextCursor != "" {
		t.Fatalf("expected no next cursor at end")
	}
}

func TestIngestStampsIdentity(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newSQLite(t), Options{AckStatus: http.StatusAccepted})
	a, err := svc.Ingest(ctx, post("/a"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	b, err := svc.Ingest(ctx, post("/b"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if a.StatusCode != http.StatusAccepted {
		t.Fatalf("ack status: %d", a.StatusCode)
	}
	if a.ID.String() >= b.ID.String() {
		t.Fatalf("ids not increasing")
	}
	if b.CreatedAt.Before(a.CreatedAt) {
		t.Fatalf("createdAt decreased with id order")
	}
}

func TestRoundTripFidelity(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	body := `{"k":1}`
	d, err := svc.Ingest(ctx, Request{
		Method:        http.MethodPost,
		Path:          "/webhook",
		Header:        http.Header{"Content-Type": {"application/json"}, "X-Custom": {"a,b"}},
		Body:          []byte(body),
		ContentLength: int64(len(body)),
	})
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	got, err := svc.Get(ctx, d.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Body == nil || *got.Body != body {
		t.Fatalf("body changed: %v", got.Body)
	}
	if got.Headers["content-type"] != "application/json" || got.Headers["x-custom"] != "a,b" {
		t.Fatalf("headers changed: %v", got.Headers)
	}
	if !got.Equal(d) {
		t.Fatalf("stored record differs from ingested one")
	}
}

func TestGetNotFoundVersusValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	_, err := svc.Get(ctx, ident.NewGenerator().Next().String())
	if !IsNotFound(err) || StatusCode(err) != http.StatusNotFound {
		t.Fatalf("expected not found, got %v", err)
	}

	_, err = svc.Get(ctx, "not-an-id")
	if !IsValidation(err) || StatusCode(err) != http.StatusBadRequest {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestListValidation(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newSQLite(t), Options{DefaultPageSize: 2, MaxPageSize: 5})
	for i := 0; i < 3; i++ {
		if _, err := svc.Ingest(ctx, post(fmt.Sprintf("/%d", i))); err != nil {
			t.Fatalf("ingest: %v", err)
		}
	}

	page, err := svc.List(ctx, "", 0)
	if err != nil {
		t.Fatalf("list default: %v", err)
	}
	if len(page.Items) != 2 {
		t.Fatalf("expected default page size 2, got %d", len(page.Items))
	}

	for _, limit := range []int{-1, 6, 1 << 20} {
		if _, err := svc.List(ctx, "", limit); !IsValidation(err) {
			t.Fatalf("limit %d: expected validation error, got %v", limit, err)
		}
	}
	if _, err := svc.List(ctx, "garbage!", 2); !IsValidation(err) {
		t.Fatalf("expected invalid cursor error, got %v", err)
	}
}

func TestPaginationCompleteUnderConcurrentInserts(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	const seeded = 25
	want := make(map[uuid.UUID]bool, seeded)
	for i := 0; i < seeded; i++ {
		d, err := svc.Ingest(ctx, post(fmt.Sprintf("/seed/%d", i)))
		if err != nil {
			t.Fatalf("ingest: %v", err)
		}
		want[d.ID] = true
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			if _, err := svc.Ingest(ctx, post(fmt.Sprintf("/live/%d", i))); err != nil {
				t.Errorf("concurrent ingest: %v", err)
				return
			}
		}
	}()

	seen := make(map[uuid.UUID]int)
	var last uuid.UUID
	cursor := ""
	for pages := 0; pages < 1000; pages++ {
		page, err := svc.List(ctx, cursor, 4)
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		for _, d := range page.Items {
			if last != uuid.Nil && d.ID.String() <= last.String() {
				t.Fatalf("ids not ascending across pages")
			}
			last = d.ID
			seen[d.ID]++
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
		if pages == 2 {
			close(stop)
			wg.Wait()
		}
	}
	select {
	case <-stop:
	default:
		close(stop)
		wg.Wait()
	}

	for id := range want {
		if seen[id] != 1 {
			t.Fatalf("seeded delivery %s seen %d times", id, seen[id])
		}
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("delivery %s duplicated", id)
		}
	}
}

// gatedStore blocks Put for one pathname until release is closed.
type gatedStore struct {
	store.Store
	path    string
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) Put(ctx context.Context, d *store.Delivery) error {
	if d.Pathname == g.path {
		close(g.entered)
		<-g.release
	}
	return g.Store.Put(ctx, d)
}

func TestListHoldsBackRecordsAboveInflightWrite(t *testing.T) {
	ctx := context.Background()
	gs := &gatedStore{Store: newSQLite(t), path: "/slow", entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewService(gs, Options{})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Ingest(ctx, post("/slow"))
		done <- err
	}()
	<-gs.entered

	if _, err := svc.Ingest(ctx, post("/fast")); err != nil {
		t.Fatalf("ingest fast: %v", err)
	}

	page, err := svc.List(ctx, "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("later record exposed before earlier write settled: %v", pathnames(page.Items))
	}

	close(gs.release)
	if err := <-done; err != nil {
		t.Fatalf("ingest slow: %v", err)
	}

	page, err = svc.List(ctx, "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if got := pathnames(page.Items); len(got) != 2 || got[0] != "/slow" || got[1] != "/fast" {
		t.Fatalf("expected both records in id order, got %v", got)
	}
}

// scriptedStore returns queued Put errors before delegating.
type scriptedStore struct {
	store.Store
	mu   sync.Mutex
	errs []error
	puts int
}

func (s *scriptedStore) Put(ctx context.Context, d *store.Delivery) error {
	s.mu.Lock()
	s.puts++
	var err error
	if len(s.errs) > 0 {
		err, s.errs = s.errs[0], s.errs[1:]
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.Store.Put(ctx, d)
}

func TestIngestRetriesOnceOnCollision(t *testing.T) {
	ctx := context.Background()
	ss := &scriptedStore{Store: newSQLite(t), errs: []error{store.ErrConflict}}
	svc := NewService(ss, Options{})

	d, err := svc.Ingest(ctx, post("/a"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if ss.puts != 2 {
		t.Fatalf("expected 2 put attempts, got %d", ss.puts)
	}
	if _, err := svc.GetByID(ctx, d.ID); err != nil {
		t.Fatalf("stored delivery missing: %v", err)
	}
}

func TestIngestGivesUpAfterRepeatedCollision(t *testing.T) {
	ctx := context.Background()
	ss := &scriptedStore{Store: newSQLite(t), errs: []error{store.ErrConflict, store.ErrConflict}}
	svc := NewService(ss, Options{})

	_, err := svc.Ingest(ctx, post("/a"))
	if !IsStorageUnavailable(err) {
		t.Fatalf("expected storage unavailable, got %v", err)
	}
	if ss.puts != 2 {
		t.Fatalf("expected exactly one retry, got %d puts", ss.puts)
	}
}

func TestIngestSurfacesStoreFailure(t *testing.T) {
	ctx := context.Background()
	ss := &scriptedStore{Store: newSQLite(t), errs: []error{errors.New("disk full")}}
	svc := NewService(ss, Options{})

	_, err := svc.Ingest(ctx, post("/a"))
	if !IsStorageUnavailable(err) || StatusCode(err) != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 storage error, got %v", err)
	}
	page, err := svc.List(ctx, "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("failed ingest left a record behind")
	}
}

func TestIngestRejectsCancelledContext(t *testing.T) {
	svc := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := svc.Ingest(ctx, post("/a")); err == nil {
		t.Fatalf("expected cancelled ingest to fail")
	}
	page, err := svc.List(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page.Items) != 0 {
		t.Fatalf("cancelled ingest stored a record")
	}
}

func TestIngestRejectsMissingMethod(t *testing.T) {
	_, err := newTestService(t).Ingest(context.Background(), Request{Path: "/a"})
	if !IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestResetClearsStore(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)
	d, err := svc.Ingest(ctx, post("/a"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if err := svc.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := svc.GetByID(ctx, d.ID); !IsNotFound(err) {
		t.Fatalf("expected not found after reset, got %v", err)
	}
}

type countingObserver struct {
	mu      sync.Mutex
	ingests map[string]int
	ops     map[string]int
}

func (o *countingObserver) ObserveIngest(result string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ingests[result]++
}

func (o *countingObserver) ObserveStore(op string, _ time.Duration, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ops[op]++
}

func TestObserverSeesOperations(t *testing.T) {
	ctx := context.Background()
	obs := &countingObserver{ingests: map[string]int{}, ops: map[string]int{}}
	svc := NewService(newSQLite(t), Options{Observer: obs})

	d, err := svc.Ingest(ctx, post("/a"))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := svc.List(ctx, "", 5); err != nil {
		t.Fatalf("list: %v", err)
	}
	if _, err := svc.GetByID(ctx, d.ID); err != nil {
		t.Fatalf("get: %v", err)
	}
	if obs.ingests["stored"] != 1 || obs.ops["put"] != 1 || obs.ops["scan"] != 1 || obs.ops["get"] != 1 {
		t.Fatalf("unexpected observations: %v %v", obs.ingests, obs.ops)
	}
}

func pathnames(items []*store.Delivery) []string {
	out := make([]string, len(items))
	for i, d := range items {
		out[i] = d.Pathname
	}
	return out
}
