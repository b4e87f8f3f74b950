package obsmetrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_DisabledIsNoOp(t *testing.T) {
	Init(false)
	require.False(t, IsEnabled())

	RecordTransfer("dummy", "read", time.Millisecond, nil)
	RecordMerge("group", 3, 1)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInit_EnabledServesMetrics(t *testing.T) {
	Init(true)
	defer Init(false)
	require.True(t, IsEnabled())

	RecordTransfer("dummy", "read", 2*time.Millisecond, nil)
	RecordTransfer("dummy", "write", 5*time.Millisecond, assertErr)
	RecordMerge("(dummy?map=a.dmap)", 4, 2)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, "deviceaccess_backend_transfer_operations_total")
	assert.Contains(t, body, "deviceaccess_backend_transfer_errors_total")
	assert.Contains(t, body, "deviceaccess_transfergroup_merge_ratio")
}

func TestRecordMerge_ZeroLowLevelSkipsRatio(t *testing.T) {
	Init(true)
	defer Init(false)

	// Must not panic on a division by zero.
	RecordMerge("empty-group", 0, 0)
}

var assertErr = &testError{}

type testError struct{}

func (*testError) Error() string { return "boom" }
