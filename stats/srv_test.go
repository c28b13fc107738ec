package stats

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	Reset()

	AddReadBytes("a.txt", 10)
	AddReadBytes("a.txt", 5)
	AddWriteBytes("b.txt", 7)
	AddOpen("a.txt")
	AddList("dir")
	AddMkdir("dir/sub")
	AddRequest("READ", time.Millisecond, false, false)
	AddRequest("READ", time.Millisecond, true, true)
	AddProtocolError()
	AddRetry("read")

	s := Snapshot()
	assert.EqualValues(t, 15, s.ReadBytes)
	assert.EqualValues(t, 7, s.WriteBytes)
	assert.EqualValues(t, 15, s.Files["a.txt"].ReadBytes)
	assert.EqualValues(t, 1, s.Files["a.txt"].OpenCount)
	assert.EqualValues(t, 1, s.ListCount)
	assert.EqualValues(t, 1, s.MkdirCount)
	assert.EqualValues(t, 2, s.RequestCount)
	assert.EqualValues(t, 1, s.TimeoutCount)
	assert.EqualValues(t, 1, s.ProtocolErrors)
	assert.EqualValues(t, 1, s.RetryCount)

	assert.GreaterOrEqual(t, testutil.ToFloat64(requestsTotal.WithLabelValues("READ", "timeout")), 1.0)

	// the snapshot is detached from later updates
	AddReadBytes("a.txt", 1)
	assert.EqualValues(t, 15, s.Files["a.txt"].ReadBytes)
}

func TestHandler(t *testing.T) {
	Reset()
	AddWriteBytes("x", 3)

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	res, err := srv.Client().Get(srv.URL + "/")
	require.NoError(t, err)
	var s Stats
	require.NoError(t, json.NewDecoder(res.Body).Decode(&s))
	res.Body.Close()
	assert.EqualValues(t, 3, s.WriteBytes)

	res, err = srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(res.Body)
	res.Body.Close()
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "smbclient_bytes_total"))

	res, err = srv.Client().Get(srv.URL + "/reset")
	require.NoError(t, err)
	res.Body.Close()
	assert.Zero(t, Snapshot().WriteBytes)
}
