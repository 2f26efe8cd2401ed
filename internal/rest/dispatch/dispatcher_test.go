package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/conduit-lang/datarest/internal/rest"
	"github.com/conduit-lang/datarest/internal/rest/event"
	"github.com/conduit-lang/datarest/internal/rest/links"
	"github.com/conduit-lang/datarest/internal/rest/mapping"
	"github.com/conduit-lang/datarest/internal/rest/patch"
	"github.com/conduit-lang/datarest/internal/rest/repository"
	"github.com/conduit-lang/datarest/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// trace records store calls and events in the order they happen
type trace struct {
	mu      sync.Mutex
	entries []string
}

func (t *trace) add(entry string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
}

func (t *trace) all() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.entries...)
}

func (t *trace) count(entries ...string) int {
	n := 0
	for _, e := range t.all() {
		for _, want := range entries {
			if e == want {
				n++
			}
		}
	}
	return n
}

func (t *trace) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = nil
}

// countingInvoker wraps a real store and records every call
type countingInvoker struct {
	inner     repository.Invoker
	trace     *trace
	saveErr   error
	deleteErr error
}

func (c *countingInvoker) FindAll(ctx context.Context, sort repository.Sort) ([]repository.Entity, error) {
	c.trace.add("store:find_all")
	return c.inner.FindAll(ctx, sort)
}

func (c *countingInvoker) FindPage(ctx context.Context, pageable repository.Pageable) (repository.Page, error) {
	c.trace.add("store:find_page")
	return c.inner.FindPage(ctx, pageable)
}

func (c *countingInvoker) FindByID(ctx context.Context, id any) (repository.Entity, bool, error) {
	c.trace.add("store:find")
	return c.inner.FindByID(ctx, id)
}

func (c *countingInvoker) Save(ctx context.Context, entity repository.Entity) (repository.Entity, error) {
	c.trace.add("store:save")
	if c.saveErr != nil {
		return nil, c.saveErr
	}
	return c.inner.Save(ctx, entity)
}

func (c *countingInvoker) DeleteByID(ctx context.Context, id any) error {
	c.trace.add("store:delete")
	if c.deleteErr != nil {
		return c.deleteErr
	}
	return c.inner.DeleteByID(ctx, id)
}

type fixture struct {
	dispatcher *Dispatcher
	resource   *mapping.Resource
	invoker    *countingInvoker
	trace      *trace
}

func (f *fixture) mutations() int {
	return f.trace.count("store:save", "store:delete")
}

func (f *fixture) events() int {
	n := 0
	for _, e := range f.trace.all() {
		if len(e) > 6 && e[:6] == "event:" {
			n++
		}
	}
	return n
}

func (f *fixture) seed(t *testing.T, attrs map[string]any) repository.Entity {
	t.Helper()
	d := repository.NewDocument()
	for k, v := range attrs {
		d.Attributes[k] = v
	}
	saved, err := f.invoker.inner.Save(context.Background(), d)
	require.NoError(t, err)
	return saved
}

func newFixture(t *testing.T, meta *mapping.Metadata, cfg Config, busOpts ...event.Option) *fixture {
	t.Helper()
	require.NoError(t, meta.Validate())

	tr := &trace{}
	factory := repository.DocumentFactory(meta.IDType)
	inv := &countingInvoker{inner: memory.New(meta.IDType, factory), trace: tr}

	reg := event.NewRegistry()
	reg.OnEach(event.ListenerFunc(func(_ context.Context, evt event.Event) error {
		tr.add("event:" + evt.Kind.String())
		return nil
	}))

	return &fixture{
		dispatcher: New(cfg, event.NewBus(reg, busOpts...), links.NewAssembler("", "/api")),
		resource:   &mapping.Resource{Metadata: meta, Invoker: inv, New: factory},
		invoker:    inv,
		trace:      tr,
	}
}

func widgets() *mapping.Metadata {
	return &mapping.Metadata{Path: "widgets"}
}

func payload(attrs map[string]any) *repository.Document {
	d := repository.DocumentFactory(repository.IDInt64)().(*repository.Document)
	for k, v := range attrs {
		d.Attributes[k] = v
	}
	return d
}

func ifNoneMatch(tag string) http.Header {
	h := http.Header{}
	h.Set("If-None-Match", tag)
	return h
}

func TestGetItemConditional(t *testing.T) {
	f := newFixture(t, widgets(), Config{})
	f.seed(t, map[string]any{"name": "x"})
	ctx := context.Background()

	first, err := f.dispatcher.GetItem(ctx, f.resource, int64(1), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, first.Status)
	assert.Equal(t, `"1-v1"`, first.Headers.Get("ETag"))
	assert.NotEmpty(t, first.Headers.Get("Last-Modified"))
	assert.Equal(t, `</api/widgets/1>;rel="self",</api/widgets/1>;rel="widget"`, first.Headers.Get("Link"))
	require.True(t, first.HasBody())

	second, err := f.dispatcher.GetItem(ctx, f.resource, int64(1), ifNoneMatch(first.Headers.Get("ETag")))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, second.Status)
	assert.False(t, second.HasBody())
	assert.True(t, first.Headers.Equal(second.Headers))
}

func TestGetItemIfModifiedSince(t *testing.T) {
	f := newFixture(t, widgets(), Config{})
	f.seed(t, nil)
	ctx := context.Background()

	first, err := f.dispatcher.GetItem(ctx, f.resource, int64(1), http.Header{})
	require.NoError(t, err)

	req := http.Header{}
	req.Set("If-Modified-Since", first.Headers.Get("Last-Modified"))
	resp, err := f.dispatcher.GetItem(ctx, f.resource, int64(1), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, resp.Status)

	req.Set("If-None-Match", `"1-v0"`)
	resp, err = f.dispatcher.GetItem(ctx, f.resource, int64(1), req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestGetItemMissing(t *testing.T) {
	f := newFixture(t, widgets(), Config{})

	_, err := f.dispatcher.GetItem(context.Background(), f.resource, int64(9), http.Header{})
	assert.ErrorIs(t, err, rest.ErrResourceNotFound)
	assert.Equal(t, http.StatusNotFound, rest.StatusOf(err))
}

func TestHeadItem(t *testing.T) {
	f := newFixture(t, widgets(), Config{})
	f.seed(t, nil)
	ctx := context.Background()

	get, err := f.dispatcher.GetItem(ctx, f.resource, int64(1), http.Header{})
	require.NoError(t, err)

	head, err := f.dispatcher.HeadItem(ctx, f.resource, int64(1), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, head.Status)
	assert.False(t, head.HasBody())
	assert.True(t, get.Headers.Equal(head.Headers))

	head, err = f.dispatcher.HeadItem(ctx, f.resource, int64(1), ifNoneMatch(`"1-v1"`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, head.Status)

	_, err = f.dispatcher.HeadItem(ctx, f.resource, int64(2), http.Header{})
	assert.ErrorIs(t, err, rest.ErrResourceNotFound)
}

func TestStaleIfMatchNeverMutates(t *testing.T) {
	operations := map[string]func(f *fixture) error{
		"put": func(f *fixture) error {
			_, err := f.dispatcher.UpsertItem(context.Background(), f.resource, int64(1), payload(map[string]any{"name": "y"}), `"1-v0"`, "")
			return err
		},
		"patch": func(f *fixture) error {
			_, err := f.dispatcher.PatchItem(context.Background(), f.resource, int64(1), patch.MergePatch(`{"name":"y"}`), `"1-v0"`, "")
			return err
		},
		"delete": func(f *fixture) error {
			_, err := f.dispatcher.DeleteItem(context.Background(), f.resource, int64(1), `"1-v0"`)
			return err
		},
	}

	for name, op := range operations {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, widgets(), Config{})
			f.seed(t, map[string]any{"name": "x"})

			err := op(f)
			assert.ErrorIs(t, err, rest.ErrPreconditionFailed)
			assert.Equal(t, http.StatusPreconditionFailed, rest.StatusOf(err))
			assert.Equal(t, 0, f.mutations())
			assert.Equal(t, 0, f.events())
		})
	}
}

func TestWildcardIfMatchPasses(t *testing.T) {
	f := newFixture(t, widgets(), Config{})
	f.seed(t, nil)

	resp, err := f.dispatcher.DeleteItem(context.Background(), f.resource, int64(1), "*")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.Status)
}

func TestUpsertExistingKeepsIdentity(t *testing.T) {
	f := newFixture(t, widgets(), Config{ReturnBodyOnUpdate: Bool(true)})
	f.seed(t, map[string]any{"name": "x"})

	body := payload(map[string]any{"name": "y"})
	body.ID = int64(77)
	resp, err := f.dispatcher.UpsertItem(context.Background(), f.resource, int64(1), body, `"1-v1"`, "")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, `"1-v2"`, resp.Headers.Get("ETag"))
	assert.Equal(t, "/api/widgets/1", resp.Headers.Get("Location"))
	saved := resp.Body.(*repository.Document)
	assert.Equal(t, int64(1), saved.ID)
	assert.Equal(t, "y", saved.Attributes["name"])

	_, ok, err := f.invoker.inner.FindByID(context.Background(), int64(77))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpsertWithoutBody(t *testing.T) {
	f := newFixture(t, widgets(), Config{ReturnBodyOnUpdate: Bool(false)})
	f.seed(t, nil)

	resp, err := f.dispatcher.UpsertItem(context.Background(), f.resource, int64(1), payload(nil), "", "application/json")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.Status)
	assert.False(t, resp.HasBody())
	assert.Equal(t, `"1-v2"`, resp.Headers.Get("ETag"))
}

func TestUpsertMissingDependsOnlyOnPutForCreation(t *testing.T) {
	t.Run("creation allowed", func(t *testing.T) {
		meta := widgets()
		meta.PutForCreation = true
		f := newFixture(t, meta, Config{})

		resp, err := f.dispatcher.UpsertItem(context.Background(), f.resource, int64(42), payload(map[string]any{"name": "x"}), "", "")
		require.NoError(t, err)
		assert.Equal(t, http.StatusCreated, resp.Status)
		assert.Equal(t, "/api/widgets/42", resp.Headers.Get("Location"))
		assert.Equal(t, `"42-v1"`, resp.Headers.Get("ETag"))
		assert.Equal(t, []string{"store:find", "event:before_create", "store:save", "event:after_create"}, f.trace.all())
	})

	t.Run("creation disallowed", func(t *testing.T) {
		f := newFixture(t, widgets(), Config{})

		_, err := f.dispatcher.UpsertItem(context.Background(), f.resource, int64(42), payload(map[string]any{"name": "x"}), "", "")
		assert.ErrorIs(t, err, rest.ErrInvalidCreationAttempt)
		assert.Equal(t, http.StatusNotFound, rest.StatusOf(err))
		assert.Equal(t, 0, f.mutations())
	})

	t.Run("if-match on missing item", func(t *testing.T) {
		meta := widgets()
		meta.PutForCreation = true
		f := newFixture(t, meta, Config{})

		_, err := f.dispatcher.UpsertItem(context.Background(), f.resource, int64(42), payload(nil), `"42-v1"`, "")
		assert.ErrorIs(t, err, rest.ErrPreconditionFailed)
		assert.Equal(t, 0, f.mutations())
	})
}

func TestDeleteEventOrdering(t *testing.T) {
	f := newFixture(t, widgets(), Config{})
	f.seed(t, nil)

	resp, err := f.dispatcher.DeleteItem(context.Background(), f.resource, int64(1), "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.Status)
	assert.Equal(t, []string{"store:find", "event:before_delete", "store:delete", "event:after_delete"}, f.trace.all())

	_, err = f.dispatcher.GetItem(context.Background(), f.resource, int64(1), http.Header{})
	assert.ErrorIs(t, err, rest.ErrResourceNotFound)
}

func TestFailedStoreCallFiresNoAfterEvent(t *testing.T) {
	f := newFixture(t, widgets(), Config{})
	f.seed(t, nil)
	f.invoker.deleteErr = errors.New("disk on fire")

	_, err := f.dispatcher.DeleteItem(context.Background(), f.resource, int64(1), "")
	require.Error(t, err)
	assert.Equal(t, http.StatusInternalServerError, rest.StatusOf(err))
	assert.Equal(t, []string{"store:find", "event:before_delete", "store:delete"}, f.trace.all())

	f.trace.reset()
	f.invoker.saveErr = errors.New("disk on fire")
	_, err = f.dispatcher.CreateInCollection(context.Background(), f.resource, payload(nil), "")
	require.Error(t, err)
	assert.Equal(t, []string{"event:before_create", "store:save"}, f.trace.all())
}

func TestStoreConflictIsPreconditionFailed(t *testing.T) {
	f := newFixture(t, widgets(), Config{})
	f.seed(t, nil)
	f.invoker.saveErr = fmt.Errorf("version moved: %w", repository.ErrConflict)

	_, err := f.dispatcher.UpsertItem(context.Background(), f.resource, int64(1), payload(nil), `"1-v1"`, "")
	assert.ErrorIs(t, err, rest.ErrPreconditionFailed)
	assert.Zero(t, f.trace.count("event:after_save"))
}

func TestOptionsAllowEqualsDeclaredMethods(t *testing.T) {
	meta := widgets()
	meta.CollectionMethods = mapping.NewMethods("GET", "OPTIONS")
	meta.ItemMethods = mapping.NewMethods("GET", "PATCH", "OPTIONS")
	f := newFixture(t, meta, Config{})

	resp, err := f.dispatcher.Options(f.resource, mapping.Collection)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "GET, OPTIONS", resp.Headers.Get("Allow"))
	assert.Empty(t, resp.Headers.Get("Accept-Patch"))

	resp, err = f.dispatcher.Options(f.resource, mapping.Item)
	require.NoError(t, err)
	assert.Equal(t, "GET, OPTIONS, PATCH", resp.Headers.Get("Allow"))
	assert.Equal(t, patch.AcceptPatch, resp.Headers.Get("Accept-Patch"))
	assert.Empty(t, f.trace.all())
}

func TestUnsupportedMethodPrecedesStoreCalls(t *testing.T) {
	meta := widgets()
	meta.CollectionMethods = mapping.NewMethods("GET")
	meta.ItemMethods = mapping.NewMethods("GET")
	f := newFixture(t, meta, Config{})
	f.seed(t, nil)
	ctx := context.Background()

	calls := []func() error{
		func() error { _, err := f.dispatcher.CreateInCollection(ctx, f.resource, payload(nil), ""); return err },
		func() error { _, err := f.dispatcher.HeadCollection(ctx, f.resource, ""); return err },
		func() error {
			_, err := f.dispatcher.UpsertItem(ctx, f.resource, int64(1), payload(nil), "", "")
			return err
		},
		func() error {
			_, err := f.dispatcher.PatchItem(ctx, f.resource, int64(1), patch.MergePatch(`{}`), "", "")
			return err
		},
		func() error { _, err := f.dispatcher.DeleteItem(ctx, f.resource, int64(1), ""); return err },
	}

	for _, call := range calls {
		err := call()
		var methodErr *rest.MethodNotSupportedError
		require.True(t, errors.As(err, &methodErr))
		assert.Equal(t, http.StatusMethodNotAllowed, rest.StatusOf(err))
	}
	assert.Empty(t, f.trace.all())
}

func TestResourceWithoutInvoker(t *testing.T) {
	meta := widgets()
	require.NoError(t, meta.Validate())
	res := &mapping.Resource{Metadata: meta}
	d := New(Config{}, nil, links.NewAssembler("", "/api"))
	ctx := context.Background()

	_, err := d.ListCollection(ctx, res, Query{})
	assert.ErrorIs(t, err, rest.ErrResourceNotFound)

	_, err = d.HeadCollection(ctx, res, "")
	assert.ErrorIs(t, err, rest.ErrResourceNotFound)

	_, err = d.GetItem(ctx, res, int64(1), http.Header{})
	assert.ErrorIs(t, err, rest.ErrResourceNotFound)

	resp, err := d.Options(res, mapping.Collection)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestHeadCollection(t *testing.T) {
	meta := widgets()
	meta.Search = mapping.SearchMapping{Exported: true, Path: "search", Rel: "search"}
	f := newFixture(t, meta, Config{})

	resp, err := f.dispatcher.HeadCollection(context.Background(), f.resource, "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.Status)
	assert.Equal(t,
		`</api/widgets>;rel="self",</api/profile/widgets>;rel="profile",</api/widgets/search>;rel="search"`,
		resp.Headers.Get("Link"))
	assert.Empty(t, f.trace.all())
}

func TestCreateInCollection(t *testing.T) {
	tests := []struct {
		name     string
		flag     *bool
		accept   string
		wantBody bool
	}{
		{"forced on", Bool(true), "", true},
		{"forced off", Bool(false), "application/json", false},
		{"unset with accept", nil, "application/json", true},
		{"unset without accept", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, widgets(), Config{ReturnBodyOnCreate: tt.flag})

			body := payload(map[string]any{"name": "x"})
			body.ID = int64(99)
			resp, err := f.dispatcher.CreateInCollection(context.Background(), f.resource, body, tt.accept)
			require.NoError(t, err)

			assert.Equal(t, http.StatusCreated, resp.Status)
			assert.Equal(t, "/api/widgets/1", resp.Headers.Get("Location"))
			assert.Equal(t, `"1-v1"`, resp.Headers.Get("ETag"))
			assert.NotEmpty(t, resp.Headers.Get("Last-Modified"))
			assert.Equal(t, tt.wantBody, resp.HasBody())
			assert.Equal(t, []string{"event:before_create", "store:save", "event:after_create"}, f.trace.all())
		})
	}
}

func TestListCollection(t *testing.T) {
	f := newFixture(t, widgets(), Config{})
	for _, name := range []string{"c", "a", "b"} {
		f.seed(t, map[string]any{"name": name})
	}
	ctx := context.Background()

	resp, err := f.dispatcher.ListCollection(ctx, f.resource, Query{Sort: repository.Sort{{Property: "name"}}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	entities := resp.Body.([]repository.Entity)
	require.Len(t, entities, 3)
	assert.Equal(t, int64(2), entities[0].EntityID())
	assert.Contains(t, resp.Headers.Get("Link"), `</api/widgets>;rel="self"`)

	resp, err = f.dispatcher.ListCollection(ctx, f.resource, Query{
		Page:    &repository.Pageable{Page: 0, Size: 2},
		SelfURI: "/api/widgets?page=0&size=2",
	})
	require.NoError(t, err)
	page := resp.Body.(repository.Page)
	assert.Len(t, page.Content, 2)
	assert.Equal(t, int64(3), page.TotalElements)
	assert.Contains(t, resp.Headers.Get("Link"), `</api/widgets?page=0&size=2>;rel="self"`)
	assert.Equal(t, []string{"store:find_all", "store:find_page"}, f.trace.all())
}

func TestListEmptyCollectionIsEmptySlice(t *testing.T) {
	f := newFixture(t, widgets(), Config{})

	resp, err := f.dispatcher.ListCollection(context.Background(), f.resource, Query{})
	require.NoError(t, err)
	assert.NotNil(t, resp.Body)
	assert.Empty(t, resp.Body)
}

func TestPatchItem(t *testing.T) {
	f := newFixture(t, widgets(), Config{})
	f.seed(t, map[string]any{"name": "x", "size": float64(1)})
	ctx := context.Background()

	resp, err := f.dispatcher.PatchItem(ctx, f.resource, int64(1), patch.MergePatch(`{"name":"y"}`), `"1-v1"`, "application/json")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Empty(t, resp.Headers.Get("Location"))
	assert.Equal(t, `"1-v2"`, resp.Headers.Get("ETag"))

	saved := resp.Body.(*repository.Document)
	assert.Equal(t, int64(1), saved.ID)
	assert.Equal(t, "y", saved.Attributes["name"])
	assert.Equal(t, float64(1), saved.Attributes["size"])
}

func TestPatchMissingNeverCreates(t *testing.T) {
	meta := widgets()
	meta.PutForCreation = true
	f := newFixture(t, meta, Config{})

	_, err := f.dispatcher.PatchItem(context.Background(), f.resource, int64(5), patch.MergePatch(`{"name":"y"}`), "", "")
	assert.ErrorIs(t, err, rest.ErrResourceNotFound)
	assert.Equal(t, 0, f.mutations())
}

func TestPatchThatCannotApply(t *testing.T) {
	f := newFixture(t, widgets(), Config{})
	f.seed(t, map[string]any{"name": "x"})

	p, err := patch.DecodeJSONPatch([]byte(`[{"op":"remove","path":"/missing"}]`))
	require.NoError(t, err)

	_, err = f.dispatcher.PatchItem(context.Background(), f.resource, int64(1), p, "", "")
	assert.ErrorIs(t, err, rest.ErrInvalidPayload)
	assert.Equal(t, http.StatusBadRequest, rest.StatusOf(err))
	assert.Equal(t, 0, f.events())
	assert.Equal(t, 0, f.mutations())
}

func TestAbortPolicyVetoesMutation(t *testing.T) {
	veto := errors.New("not on fridays")
	reg := event.NewRegistry()
	reg.On(event.BeforeCreate, event.ListenerFunc(func(context.Context, event.Event) error {
		return veto
	}))

	meta := widgets()
	require.NoError(t, meta.Validate())
	tr := &trace{}
	factory := repository.DocumentFactory(repository.IDInt64)
	inv := &countingInvoker{inner: memory.New(repository.IDInt64, factory), trace: tr}
	res := &mapping.Resource{Metadata: meta, Invoker: inv, New: factory}

	abort := New(Config{}, event.NewBus(reg, event.WithPolicy(event.PolicyAbortOnBefore)), links.NewAssembler("", "/api"))
	_, err := abort.CreateInCollection(context.Background(), res, payload(nil), "")
	assert.ErrorIs(t, err, rest.ErrListenerAborted)
	assert.ErrorIs(t, err, veto)
	assert.Equal(t, http.StatusConflict, rest.StatusOf(err))
	assert.Empty(t, tr.all())

	isolate := New(Config{}, event.NewBus(reg), links.NewAssembler("", "/api"))
	resp, err := isolate.CreateInCollection(context.Background(), res, payload(nil), "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
}

func TestWidgetsScenario(t *testing.T) {
	f := newFixture(t, widgets(), Config{ReturnBodyOnCreate: Bool(true), ReturnBodyOnUpdate: Bool(true)})
	ctx := context.Background()

	created, err := f.dispatcher.CreateInCollection(ctx, f.resource, payload(map[string]any{"name": "x"}), "application/json")
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, created.Status)
	assert.Equal(t, "/api/widgets/1", created.Headers.Get("Location"))

	got, err := f.dispatcher.GetItem(ctx, f.resource, int64(1), http.Header{})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, got.Status)
	assert.Equal(t, `"1-v1"`, got.Headers.Get("ETag"))

	f.trace.reset()
	_, err = f.dispatcher.UpsertItem(ctx, f.resource, int64(1), payload(map[string]any{"name": "y"}), `"1-v0"`, "")
	assert.Equal(t, http.StatusPreconditionFailed, rest.StatusOf(err))
	assert.Equal(t, 0, f.mutations())

	unchanged, _, err := f.invoker.inner.FindByID(ctx, int64(1))
	require.NoError(t, err)
	assert.Equal(t, "x", unchanged.(*repository.Document).Attributes["name"])

	updated, err := f.dispatcher.UpsertItem(ctx, f.resource, int64(1), payload(map[string]any{"name": "y"}), `"1-v1"`, "")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, updated.Status)
	assert.Equal(t, `"1-v2"`, updated.Headers.Get("ETag"))

	deleted, err := f.dispatcher.DeleteItem(ctx, f.resource, int64(1), `"1-v2"`)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, deleted.Status)

	_, err = f.dispatcher.GetItem(ctx, f.resource, int64(1), http.Header{})
	assert.Equal(t, http.StatusNotFound, rest.StatusOf(err))
}
