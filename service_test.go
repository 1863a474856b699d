package wgcore

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeService struct {
	initErr      error
	started      int
	stopSignaled int
	stopped      int
	stopResult   ServiceStopResult
}

func (f *fakeService) Initialize() error                        { return f.initErr }
func (f *fakeService) OnServerStarted()                         { f.started++ }
func (f *fakeService) OnServerStopSignaled() ServiceStopResult  { f.stopSignaled++; return f.stopResult }
func (f *fakeService) OnServerStopped()                         { f.stopped++ }

func TestServer_ServiceLifecycleOrdering(t *testing.T) {
	srv, err := NewServer(ServerConfig{
		Name:   "s",
		Groups: []GroupTag{{ID: 1, Name: "g0", WorkerCount: 1, IsActive: true, EnableAsyncIO: true}},
	})
	require.NoError(t, err)

	svc := &fakeService{}
	_, err = srv.AddSimpleService(svc)
	require.NoError(t, err)

	srv.onServerStarted()
	require.Equal(t, 1, svc.started)

	srv.SignalToStop()
	require.Equal(t, 1, svc.stopSignaled)
	require.Equal(t, 1, svc.stopped)
}

func TestServer_PendingServiceStopWaitsForCallback(t *testing.T) {
	srv, err := NewServer(ServerConfig{
		Name:   "s",
		Groups: []GroupTag{{ID: 1, Name: "g0", WorkerCount: 1, IsActive: true, EnableAsyncIO: true}},
	})
	require.NoError(t, err)

	svc := &fakeService{stopResult: ServiceStopPending}
	_, err = srv.AddSimpleService(svc)
	require.NoError(t, err)

	srv.SignalToStop()
	require.Equal(t, 0, svc.stopped)

	srv.OnServiceStopped(svc)
	require.Equal(t, 1, svc.stopped)
}

func TestServer_SignalToStopIsIdempotent(t *testing.T) {
	srv, err := NewServer(ServerConfig{
		Name:   "s",
		Groups: []GroupTag{{ID: 1, Name: "g0", WorkerCount: 1, IsActive: true, EnableAsyncIO: true}},
	})
	require.NoError(t, err)

	svc := &fakeService{}
	_, err = srv.AddSimpleService(svc)
	require.NoError(t, err)

	srv.SignalToStop()
	srv.SignalToStop()
	require.Equal(t, 1, svc.stopSignaled)
}

func TestServer_AddServiceRejectedOnceRunning(t *testing.T) {
	srv, err := NewServer(ServerConfig{
		Name:   "s",
		Groups: []GroupTag{{ID: 1, Name: "g0", WorkerCount: 1, IsActive: true, EnableAsyncIO: true}},
	})
	require.NoError(t, err)

	srv.running.Store(true)
	_, err = srv.AddSimpleService(&fakeService{})
	require.ErrorIs(t, err, ErrServerRunning)
}

func TestServer_RejectsEmptyGroups(t *testing.T) {
	_, err := NewServer(ServerConfig{Name: "empty"})
	require.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestServer_DerivedFlagAggregates(t *testing.T) {
	srv, err := NewServer(ServerConfig{
		Name: "s",
		Groups: []GroupTag{
			{ID: 1, Name: "g0", WorkerCount: 1, IsActive: true, EnableAsyncIO: true, HandlesTimerTasks: false},
			{ID: 2, Name: "g1", WorkerCount: 1, IsActive: true, EnableAsyncIO: true, HandlesTimerTasks: true, SupportsAOD: true},
		},
	})
	require.NoError(t, err)
	require.False(t, srv.flags.AllGroupsHandleTimers)
	require.False(t, srv.flags.AllGroupsSupportAOD)
	require.True(t, srv.flags.AllGroupsAreActive)
	require.Len(t, srv.timerGroups, 1)
	require.Len(t, srv.aodGroups, 1)
}
