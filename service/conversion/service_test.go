package conversion

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/graphrun/extension"
	"github.com/viant/graphrun/model"
	"github.com/viant/graphrun/runtime/execution"
	"github.com/viant/graphrun/service/dao/run/memory"
	"github.com/viant/graphrun/service/job/builtin"
	"github.com/viant/graphrun/service/scheduler"
)

type advancer struct {
	mux  sync.Mutex
	runs []string
}

func (a *advancer) Advance(_ context.Context, runID string) (scheduler.Outcome, error) {
	a.mux.Lock()
	defer a.mux.Unlock()
	a.runs = append(a.runs, runID)
	return scheduler.Dispatched, nil
}

func (a *advancer) advanced() []string {
	a.mux.Lock()
	defer a.mux.Unlock()
	return append([]string{}, a.runs...)
}

func newRun(t *testing.T, store *memory.Store, resourceID string) *execution.Plan {
	registry, err := extension.NewRegistry(builtin.Jobs()...)
	require.NoError(t, err)
	wf := model.NewWorkflow("convert")
	wf.AddJob("duplicate", builtin.CopyName)
	plan, err := execution.NewPlan(wf, registry.Spec, map[string]string{"duplicate.input": resourceID}, "mem://localhost/conversion/runs")
	require.NoError(t, err)
	require.NoError(t, store.CreateRun(context.Background(), plan))
	return plan
}

func TestService_Convert(t *testing.T) {
	ctx := context.Background()
	fs := afs.New()
	store := memory.New()
	adv := &advancer{}
	service := New(store, adv, "mem://localhost/conversion/"+t.Name(), WithFS(fs))

	resource, err := service.Upload(ctx, "scan.png", "image/png", []byte("pixels"))
	require.NoError(t, err)
	assert.False(t, resource.IsReady())
	plan := newRun(t, store, resource.ID)

	eligible, err := store.Eligible(ctx, plan.Run.ID)
	require.NoError(t, err)
	assert.Empty(t, eligible, "raw uploads are not consumable")

	require.NoError(t, service.Convert(ctx, resource.ID))
	converted, err := store.Resource(ctx, resource.ID)
	require.NoError(t, err)
	require.True(t, converted.IsReady())
	data, err := fs.DownloadWithURL(ctx, converted.CompatURL)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))
	assert.Equal(t, []string{plan.Run.ID}, adv.advanced())

	eligible, err = store.Eligible(ctx, plan.Run.ID)
	require.NoError(t, err)
	assert.Len(t, eligible, 1)

	assert.Error(t, service.Convert(ctx, "missing"))
}

func TestService_ConvertFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	adv := &advancer{}
	service := New(store, adv, "mem://localhost/conversion/"+t.Name(), WithConverter(ConverterFunc(
		func(context.Context, *execution.Resource, string) (string, error) {
			return "", errors.New("unsupported format")
		})))

	resource, err := service.Upload(ctx, "scan.tiff", "image/tiff", []byte("pixels"))
	require.NoError(t, err)
	newRun(t, store, resource.ID)

	err = service.Convert(ctx, resource.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
	assert.Empty(t, adv.advanced())

	service.ConvertAsync(ctx, resource.ID)
	service.Wait()
	loaded, err := store.Resource(ctx, resource.ID)
	require.NoError(t, err)
	assert.False(t, loaded.IsReady())
}

func TestService_ConvertAsync(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	adv := &advancer{}
	service := New(store, adv, "mem://localhost/conversion/"+t.Name())

	resource, err := service.Upload(ctx, "page.txt", "text/plain", []byte("page"))
	require.NoError(t, err)
	plan := newRun(t, store, resource.ID)

	service.ConvertAsync(ctx, resource.ID)
	assert.Eventually(t, func() bool { return len(adv.advanced()) == 1 }, time.Second, time.Millisecond)
	service.Wait()
	assert.Equal(t, []string{plan.Run.ID}, adv.advanced())
}
