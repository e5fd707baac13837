package sandbox

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeProvider lets tests script Get()/Start() failures/states for the
// Resume state-machine scenarios described in SPEC_FULL.md §8 scenario 2.
type fakeProvider struct {
	getErr     error
	getHandle  Handle
	deleted    []string
	created    int
	openErr    map[string]error
	startErr   map[string]error
	startCalls []string
}

func (f *fakeProvider) Create(context.Context) (Handle, error) {
	f.created++
	return Handle{ID: "new-id", State: StateStarted, ProviderType: ProviderDaytonaLike}, nil
}
func (f *fakeProvider) Get(context.Context, string) (Handle, error) { return f.getHandle, f.getErr }
func (f *fakeProvider) Start(_ context.Context, id string) error {
	f.startCalls = append(f.startCalls, id)
	if f.startErr != nil {
		if err, ok := f.startErr[id]; ok {
			return err
		}
	}
	return nil
}
func (f *fakeProvider) Stop(context.Context, string) error { return nil }
func (f *fakeProvider) Delete(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}
func (f *fakeProvider) List(context.Context) ([]Handle, error) { return nil, nil }
func (f *fakeProvider) Open(_ context.Context, id string) (Sandbox, error) {
	if f.openErr != nil {
		if err, ok := f.openErr[id]; ok {
			return nil, err
		}
	}
	return nil, nil
}

func TestResume_ArchivedSandboxStartsThenOpens(t *testing.T) {
	fp := &fakeProvider{getHandle: Handle{ID: "s1", State: StateArchived, ProviderType: ProviderDaytonaLike}}
	h, _, err := Resume(context.Background(), fp, "s1")
	require.NoError(t, err)
	require.Equal(t, "s1", h.ID)
	require.Equal(t, StateStarted, h.State, "a successfully started sandbox must report Started, not its stale Archived state")
	require.Contains(t, fp.startCalls, "s1", "resuming a Stopped/Archived sandbox must call Start before Open")
	require.Empty(t, fp.deleted)
	require.Zero(t, fp.created)
}

func TestResume_StoppedSandboxStartsThenOpens(t *testing.T) {
	fp := &fakeProvider{getHandle: Handle{ID: "s1", State: StateStopped, ProviderType: ProviderDaytonaLike}}
	h, _, err := Resume(context.Background(), fp, "s1")
	require.NoError(t, err)
	require.Equal(t, "s1", h.ID)
	require.Contains(t, fp.startCalls, "s1")
	require.Empty(t, fp.deleted)
}

func TestResume_StartFailsRecreates(t *testing.T) {
	fp := &fakeProvider{
		getHandle: Handle{ID: "s1", State: StateArchived, ProviderType: ProviderDaytonaLike},
		startErr:  map[string]error{"s1": require.AnError},
	}
	h, _, err := Resume(context.Background(), fp, "s1")
	require.NoError(t, err)
	require.Equal(t, "new-id", h.ID, "a failed Start must delete S1 and create S2, per scenario 2")
	require.Contains(t, fp.deleted, "s1")
	require.Equal(t, 1, fp.created)
}

func TestResume_ArchivedOpenFailsRecreates(t *testing.T) {
	openErr := map[string]error{"s1": require.AnError}
	fp := &fakeProvider{
		getHandle: Handle{ID: "s1", State: StateArchived, ProviderType: ProviderDaytonaLike},
		openErr:   openErr,
	}
	h, _, err := Resume(context.Background(), fp, "s1")
	require.NoError(t, err)
	require.Equal(t, "new-id", h.ID)
	require.Contains(t, fp.deleted, "s1", "stale orphan must be deleted on resume failure")
	require.Equal(t, 1, fp.created)
}

func TestResume_UnknownStateRecreates(t *testing.T) {
	fp := &fakeProvider{getHandle: Handle{State: StateUnknown}}
	h, _, err := Resume(context.Background(), fp, "stale")
	require.NoError(t, err)
	require.Equal(t, "new-id", h.ID)
	require.Contains(t, fp.deleted, "stale")
}

func TestResume_GetErrorRecreates(t *testing.T) {
	fp := &fakeProvider{getErr: require.AnError}
	h, _, err := Resume(context.Background(), fp, "s1")
	require.NoError(t, err)
	require.Equal(t, "new-id", h.ID)
}
