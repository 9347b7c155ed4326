package uploadrouter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shlokdhakrey/media-bot-sub002/internal/enginerr"
	"github.com/shlokdhakrey/media-bot-sub002/pkg/models"
)

type fakeTarget struct {
	name      string
	result    Result
	uploadErr error
	healthErr error
}

func (t *fakeTarget) Name() string { return t.name }
func (t *fakeTarget) Upload(ctx context.Context, packageDir, jobID string) (Result, error) {
	if t.uploadErr != nil {
		return Result{}, t.uploadErr
	}
	return t.result, nil
}
func (t *fakeTarget) HealthCheck(ctx context.Context) error { return t.healthErr }

func TestUploadUsesPrimaryOnSuccess(t *testing.T) {
	primary := &fakeTarget{name: "primary", result: Result{RemoteLocation: "gdrive://abc"}}
	r := New(primary, nil)

	manifest := models.Manifest{JobID: "job-1"}
	out, err := r.Upload(context.Background(), manifest, "/pkg/job-1", "job-1")
	require.NoError(t, err)
	assert.Equal(t, "primary", out.Target)
	assert.Equal(t, "gdrive://abc", out.Location)
}

func TestUploadFallsBackToSecondaryOnPrimaryFailure(t *testing.T) {
	primary := &fakeTarget{name: "primary", uploadErr: assertError{}}
	secondary := &fakeTarget{name: "secondary", result: Result{RemoteLocation: "/mirror/job-1"}}
	r := New(primary, secondary)

	out, err := r.Upload(context.Background(), models.Manifest{JobID: "job-1"}, "/pkg/job-1", "job-1")
	require.NoError(t, err)
	assert.Equal(t, "secondary", out.Target)
	assert.Equal(t, "/mirror/job-1", out.Location)
}

func TestUploadFailsWhenPrimaryAndSecondaryBothFail(t *testing.T) {
	primary := &fakeTarget{name: "primary", uploadErr: assertError{}}
	secondary := &fakeTarget{name: "secondary", uploadErr: assertError{}}
	r := New(primary, secondary)

	_, err := r.Upload(context.Background(), models.Manifest{JobID: "job-1"}, "/pkg/job-1", "job-1")
	require.Error(t, err)
	kind, ok := enginerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, enginerr.KindUploadFailure, kind)
}

func TestUploadFailsWithNoPrimaryConfigured(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Upload(context.Background(), models.Manifest{JobID: "job-1"}, "/pkg/job-1", "job-1")
	require.Error(t, err)
	kind, ok := enginerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, enginerr.KindUploadFailure, kind)
}

func TestHealthCheckReportsBothTargets(t *testing.T) {
	primary := &fakeTarget{name: "primary"}
	secondary := &fakeTarget{name: "secondary", healthErr: assertError{}}
	r := New(primary, secondary)

	results := r.HealthCheck(context.Background())
	assert.True(t, results["primary"])
	assert.False(t, results["secondary"])
}

type assertError struct{}

func (assertError) Error() string { return "unreachable" }
