package sources

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/meshflow/codec"
	"github.com/kbukum/meshflow/contract"
	"github.com/kbukum/meshflow/dataobject"
	"github.com/kbukum/meshflow/definition"
	"github.com/kbukum/meshflow/errors"
	"github.com/kbukum/meshflow/extents"
	"github.com/kbukum/meshflow/flow"
	"github.com/kbukum/meshflow/logger"
	"github.com/kbukum/meshflow/resilience"
	"github.com/kbukum/meshflow/resource"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}
}

func fetch(t *testing.T, r flow.DatasetReader, c *contract.Contract, opts ...flow.SourceOption) (*flow.Source, *dataobject.Object) {
	t.Helper()
	opts = append([]flow.SourceOption{flow.WithRetry(fastRetry()), flow.WithSourceLogger(logger.Nop())}, opts...)
	src := flow.NewDatasetSource("src", r, opts...)
	obj, err := src.Fetch(context.Background(), c)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(obj.Release)
	return src, obj
}

func domainsOf(t *testing.T, obj *dataobject.Object) []int {
	t.Helper()
	tree, err := obj.Tree()
	if err != nil {
		t.Fatal(err)
	}
	return tree.Domains()
}

func TestLines(t *testing.T) {
	frags := Lines(3, 2)
	if len(frags) != 3 {
		t.Fatalf("expected 3 domains, got %d", len(frags))
	}
	m := frags[2].Mesh
	if err := m.Check(); err != nil {
		t.Fatal(err)
	}
	e, _ := m.SpatialExtents()
	want, _ := extents.FromBounds(2, 3)
	if !e.Equal(want) || m.NumCells != 2 {
		t.Errorf("unexpected mesh: extents %s cells %d", e, m.NumCells)
	}
	if got := m.Fields["domain"].Values; !slices.Equal(got, []float64{3, 3}) {
		t.Errorf("unexpected zonal values %v", got)
	}
}

func TestMemory_Selection(t *testing.T) {
	frags := Lines(4, 1)
	frags[1].Mesh.Materials = []string{"steel"}
	frags[2].Mesh.Materials = []string{"air"}
	mem := NewMemory(frags...)

	tests := []struct {
		name    string
		c       *contract.Contract
		domains []int
	}{
		{"all", contract.New(), []int{0, 1, 2, 3}},
		{"restricted", contract.New().RestrictTo([]int{1, 3}), []int{1, 3}},
		{"materials", contract.New().RestrictMaterials("steel"), []int{0, 1, 3}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, obj := fetch(t, mem, tc.c)
			if got := domainsOf(t, obj); !slices.Equal(got, tc.domains) {
				t.Errorf("expected %v, got %v", tc.domains, got)
			}
		})
	}
}

func TestMemory_ReadsOnlyRequestedVariables(t *testing.T) {
	mem := NewMemory(Lines(2, 1)...)
	_, obj := fetch(t, mem, contract.New(contract.Variable{Name: "x"}))
	tree, _ := obj.Tree()
	for _, f := range tree.Leaves() {
		if _, ok := f.Mesh.Field("domain"); ok {
			t.Error("unrequested field was read")
		}
		if _, ok := f.Mesh.Field("x"); !ok {
			t.Error("requested field missing")
		}
	}
	if x := obj.Attributes().DataExtents["x"]; x == nil {
		t.Error("expected data extents for x")
	} else if lo, hi := x.Range(0); lo != 0 || hi != 2 {
		t.Errorf("expected x in [0,2], got [%g,%g]", lo, hi)
	}
}

func TestMemory_UnknownVariableAndTimestep(t *testing.T) {
	mem := NewMemory(Lines(1, 1)...)
	src := flow.NewDatasetSource("src", mem, flow.WithSourceLogger(logger.Nop()))
	_, err := src.Fetch(context.Background(), contract.New(contract.Variable{Name: "density"}))
	if appErr, ok := errors.AsAppError(err); !ok || appErr.Code != errors.ErrCodeUnknownVariable {
		t.Errorf("expected unknown variable, got %v", err)
	}
	_, err = src.Fetch(context.Background(), contract.New().WithTimestep(4))
	if errors.KindOf(err) != errors.KindInvalid {
		t.Errorf("expected invalid timestep, got %v", err)
	}

	mem.SetTimestep(4, Lines(2, 1)...)
	_, obj := fetch(t, mem, contract.New().WithTimestep(4))
	if len(domainsOf(t, obj)) != 2 {
		t.Error("timestep 4 not served")
	}
}

func TestMemory_DeclaresPolicyAndTopology(t *testing.T) {
	mem := NewMemory(Lines(1, 1)...)
	mem.SetFailurePolicy(flow.PolicyFatal)
	mem.SetTopologicalDimension(1)
	src, obj := fetch(t, mem, contract.New())
	if src.Policy() != flow.PolicyFatal {
		t.Error("declared policy ignored")
	}
	if obj.Attributes().TopologicalDimension != 1 {
		t.Errorf("expected topological dimension 1, got %d", obj.Attributes().TopologicalDimension)
	}
	if !slices.Equal(mem.Domains(), []int{0}) {
		t.Errorf("unexpected domains %v", mem.Domains())
	}
}

const manifest = `
name: bar
topological_dimension: 1
variables:
  - {name: x, centering: nodal}
  - {name: domain, centering: zonal}
timesteps:
  - timestep: 0
    domains:
      - {domain: 0, file: d0.yaml, extents: [-5, 1]}
      - {domain: 1, file: d1.yaml}
      - {domain: 2, file: broken.yaml, label: broken}
`

func writeDataset(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	frags := Lines(2, 1)
	for i, f := range frags {
		if err := WriteMesh(filepath.Join(dir, fmt.Sprintf("d%d.yaml", i)), f.Mesh); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("points: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "bar.yaml")
	if err := os.WriteFile(path, []byte(manifest), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFile_Fetch(t *testing.T) {
	handles := resource.NewManager(resource.Config{MaxOpenHandles: 8}, logger.Nop())
	f, err := NewFile(writeDataset(t), handles)
	if err != nil {
		t.Fatal(err)
	}
	if f.Name() != "bar" || len(f.Variables()) != 2 || !slices.Equal(f.Domains(0), []int{0, 1, 2}) {
		t.Fatalf("unexpected manifest %s %v %v", f.Name(), f.Variables(), f.Domains(0))
	}

	report := flow.NewReport()
	src := flow.NewDatasetSource("bar", f, flow.WithSourceLogger(logger.Nop()))
	obj, err := src.Fetch(flow.WithReport(context.Background(), report), contract.New(contract.Variable{Name: "domain"}))
	if err != nil {
		t.Fatal(err)
	}
	defer obj.Release()

	if got := domainsOf(t, obj); !slices.Equal(got, []int{0, 1}) {
		t.Errorf("expected broken domain dropped, got %v", got)
	}
	if report.Len() != 1 || report.Warnings()[0].Domain != 2 {
		t.Errorf("expected one warning for domain 2, got %v", report.Warnings())
	}
	// Domain 0 reports wider extents than its mesh.
	want, _ := extents.FromBounds(-5, 2)
	if !src.SpatialExtents().Equal(want) {
		t.Errorf("expected %s, got %s", want, src.SpatialExtents())
	}

	if _, err := src.Fetch(context.Background(), contract.New().RestrictTo([]int{0})); err != nil {
		t.Fatal(err)
	}
	if s := handles.Stats(); s.Misses != 3 || s.Hits != 1 {
		t.Errorf("expected domain files opened once, got %+v", s)
	}
}

func TestFile_Errors(t *testing.T) {
	if _, err := NewFile(filepath.Join(t.TempDir(), "none.yaml"), nil); errors.KindOf(err) != errors.KindInvalid {
		t.Errorf("expected not found, got %v", err)
	}
	path := filepath.Join(t.TempDir(), "bad.yaml")
	_ = os.WriteFile(path, []byte("name: bad\n"), 0o644)
	if _, err := NewFile(path, nil); err == nil {
		t.Error("expected validation error for a manifest without timesteps")
	}

	f, err := NewFile(writeDataset(t), resource.NewManager(resource.Config{}, logger.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	src := flow.NewDatasetSource("bar", f, flow.WithSourceLogger(logger.Nop()))
	if _, err := src.Fetch(context.Background(), contract.New().WithTimestep(9)); errors.KindOf(err) != errors.KindInvalid {
		t.Errorf("expected invalid timestep, got %v", err)
	}
}

// frameServer answers fetch requests with frames from serve.
func frameServer(t *testing.T, serve func(req codec.FetchRequest, c *contract.Contract, w http.ResponseWriter)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != codec.FetchPath || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		req, c, err := codec.UnmarshalRequest(body)
		if err != nil {
			t.Errorf("bad request: %v", err)
			return
		}
		serve(req, c, w)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeObject(t *testing.T, w http.ResponseWriter, obj *dataobject.Object) {
	var buf bytes.Buffer
	if err := codec.New(codec.Config{}).Encode(&buf, obj); err != nil {
		t.Error(err)
	}
	w.Header().Set("Content-Type", codec.ContentType)
	_, _ = w.Write(buf.Bytes())
}

func TestRemote_Fetch(t *testing.T) {
	mem := NewMemory(Lines(3, 1)...)
	reqs := make(chan codec.FetchRequest, 1)
	srv := frameServer(t, func(req codec.FetchRequest, c *contract.Contract, w http.ResponseWriter) {
		reqs <- req
		tree, _ := mem.FetchDataset(context.Background(), c, nil)
		obj := dataobject.NewMesh("worker", tree, dataobject.Attributes{})
		defer obj.Release()
		writeObject(t, w, obj)
	})

	remote := NewRemote(RemoteConfig{BaseURL: srv.URL, Dataset: "lines"})
	ctx := flow.WithPassInfo(context.Background(), flow.PassInfo{Rank: 2, Pass: 5})
	src := flow.NewDatasetSource("remote", remote, flow.WithSourceLogger(logger.Nop()))
	obj, err := src.Fetch(ctx, contract.New().RestrictTo([]int{0, 2}))
	if err != nil {
		t.Fatal(err)
	}
	defer obj.Release()
	if d := domainsOf(t, obj); !slices.Equal(d, []int{0, 2}) {
		t.Errorf("expected domains [0 2], got %v", d)
	}
	got := <-reqs
	if got.Dataset != "lines" || got.Rank != 2 || got.Pass != 5 {
		t.Errorf("unexpected request %+v", got)
	}
}

func TestRemote_ErrorFramesKeepTheirKind(t *testing.T) {
	srv := frameServer(t, func(_ codec.FetchRequest, _ *contract.Contract, w http.ResponseWriter) {
		appErr := errors.UnknownVariable("worker", "density")
		w.Header().Set("Content-Type", codec.ContentType)
		w.WriteHeader(appErr.HTTPStatus)
		_ = codec.New(codec.Config{}).EncodeError(w, appErr)
	})
	remote := NewRemote(RemoteConfig{BaseURL: srv.URL, Dataset: "lines"})
	_, err := remote.FetchDataset(context.Background(), contract.New(), nil)
	if appErr, ok := errors.AsAppError(err); !ok || appErr.Code != errors.ErrCodeUnknownVariable {
		t.Fatalf("expected unknown variable, got %v", err)
	}
	if remote.Breaker().Failures() != 0 {
		t.Error("contract errors must not count against the worker")
	}
}

func TestRemote_BreakerOpensOnTransportFailures(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusBadGateway)
	}))
	defer srv.Close()

	remote := NewRemote(RemoteConfig{
		BaseURL: srv.URL,
		Dataset: "lines",
		Breaker: resilience.BreakerConfig{MaxFailures: 2, Cooldown: time.Minute},
	})
	src := flow.NewDatasetSource("remote", remote, flow.WithRetry(fastRetry()), flow.WithSourceLogger(logger.Nop()))
	_, err := src.Fetch(context.Background(), contract.New())
	if appErr, ok := errors.AsAppError(err); !ok || appErr.Code != errors.ErrCodeCircuitOpen {
		t.Fatalf("expected the third attempt to hit an open circuit, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls to reach the worker, got %d", calls.Load())
	}
}

func TestCachedImage(t *testing.T) {
	ci := NewCachedImage(SolidImage(2, 1, [4]byte{255, 0, 0, 255}))
	src := flow.NewImageSource("img", ci, flow.WithSourceLogger(logger.Nop()))
	req := contract.New().WithRepresentation(contract.RepresentationImage)

	for _, c := range []*contract.Contract{req, req.RestrictTo([]int{1}), req.WithPipelineIndex(3)} {
		obj, err := src.Fetch(context.Background(), c)
		if err != nil {
			t.Fatal(err)
		}
		img, _ := obj.Image()
		if img.Width != 2 || img.Pixels[0] != 255 || img.Pixels[1] != 0 {
			t.Errorf("unexpected image %+v", img)
		}
		obj.Release()
	}
	if ci.Renders() != 1 {
		t.Errorf("expected one render for the same view, got %d", ci.Renders())
	}

	if _, err := src.Fetch(context.Background(), req.WithTimestep(1)); err != nil {
		t.Fatal(err)
	}
	src.StreamingCleanUp(context.Background())
	if _, err := src.Fetch(context.Background(), req.WithTimestep(1)); err != nil {
		t.Fatal(err)
	}
	if ci.Renders() != 3 {
		t.Errorf("expected a new view and a cleanup to re-render, got %d renders", ci.Renders())
	}
}

const registeredYAML = `
name: registered
source:
  component: lines
  policy: fatal
  params: {domains: 3, cells: "2"}
sink:
  component: discard
contract:
  variables: [{name: x}]
`

func TestRegister(t *testing.T) {
	r := definition.NewRegistry()
	Register(r)
	r.RegisterConsumer("discard", func(definition.Env, definition.StageDef) (flow.Consumer, error) {
		return flow.ConsumerFunc(func(context.Context, *dataobject.Object, flow.PassInfo) error { return nil }), nil
	})
	for _, name := range []string{"source/file", "source/image", "source/lines", "source/remote"} {
		if !slices.Contains(r.List(), name) {
			t.Errorf("%s not registered", name)
		}
	}

	p, err := definition.Parse([]byte(registeredYAML), "registered.yaml")
	if err != nil {
		t.Fatal(err)
	}
	tracker := dataobject.NewTracker()
	built, err := definition.NewBuilder(r, nil).Build(p, definition.Env{Logger: logger.Nop(), Tracker: tracker})
	if err != nil {
		t.Fatal(err)
	}
	src := built.Source.(*flow.Source)
	if src.Policy() != flow.PolicyFatal {
		t.Error("stage policy not applied")
	}
	obj, err := src.Fetch(context.Background(), built.Contract)
	if err != nil {
		t.Fatal(err)
	}
	if len(domainsOf(t, obj)) != 3 || tracker.Live() != 1 {
		t.Errorf("unexpected fetch: domains %v live %d", domainsOf(t, obj), tracker.Live())
	}
	obj.Release()

	bad := *p
	bad.Source = &definition.StageDef{Component: "lines", Params: definition.Params{"domains": 0}}
	if _, err := definition.NewBuilder(r, nil).Build(&bad, definition.Env{Logger: logger.Nop()}); err == nil {
		t.Error("expected validation error for zero domains")
	}
}
