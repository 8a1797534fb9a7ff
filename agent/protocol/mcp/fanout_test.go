package mcp

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connectedFake(name string) *fakeClient {
	c := newFakeClient(name)
	c.Connect(context.Background())
	return c
}

func TestFanOut_ExecuteAllPreservesOrder(t *testing.T) {
	a := connectedFake("a")
	a.delay = 30 * time.Millisecond
	b := connectedFake("b")
	c := connectedFake("c")
	c.respond = func(q *Query) *Response {
		return NewErrorResponse(q.RequestID, "500", "upstream failed")
	}

	q := NewQuery(MethodGet, ResourceSEOData)
	out := NewFanOut(nil).ExecuteAll(context.Background(), []Client{a, b, c}, q)

	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].DataSource)
	assert.Equal(t, "b", out[1].DataSource)
	assert.Equal(t, StatusError, out[2].Status)
	assert.Equal(t, "500", out[2].ErrorCode)
}

func TestFanOut_ExecuteAllDisconnectedClient(t *testing.T) {
	up := connectedFake("up")
	down := newFakeClient("down")

	out := NewFanOut(nil).ExecuteAll(context.Background(), []Client{up, down}, NewQuery(MethodGet, ResourceSEOData))

	require.Len(t, out, 2)
	assert.True(t, out[0].IsSuccess())
	assert.Equal(t, StatusError, out[1].Status)
	assert.Equal(t, "NOT_CONNECTED", out[1].ErrorCode)
	assert.Equal(t, "down", out[1].DataSource)
}

func TestFanOut_ExecuteAllEmpty(t *testing.T) {
	out := NewFanOut(nil).ExecuteAll(context.Background(), nil, NewQuery(MethodGet, ResourceSEOData))
	assert.Empty(t, out)
}

func TestFanOut_ExecuteFirstReturnsFastestSuccess(t *testing.T) {
	slow := connectedFake("slow")
	slow.delay = 2 * time.Second
	fast := connectedFake("fast")
	fast.delay = 10 * time.Millisecond

	start := time.Now()
	resp := NewFanOut(nil).ExecuteFirst(context.Background(), []Client{slow, fast}, NewQuery(MethodGet, ResourceSEOData))

	require.NotNil(t, resp)
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, "fast", resp.DataSource)
	assert.Less(t, time.Since(start), time.Second)
}

func TestFanOut_ExecuteFirstAllFail(t *testing.T) {
	a := connectedFake("a")
	a.respond = func(q *Query) *Response { return NewErrorResponse(q.RequestID, "502", "bad gateway") }
	b := newFakeClient("b")

	resp := NewFanOut(nil).ExecuteFirst(context.Background(), []Client{a, b}, NewQuery(MethodGet, ResourceSEOData))

	require.NotNil(t, resp)
	assert.Equal(t, StatusError, resp.Status)
	assert.Contains(t, []string{"502", "NOT_CONNECTED"}, resp.ErrorCode)
}

func TestFanOut_ExecuteFirstNoClients(t *testing.T) {
	q := NewQuery(MethodGet, ResourceSEOData)
	resp := NewFanOut(nil).ExecuteFirst(context.Background(), nil, q)

	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, CodeNotFound, resp.ErrorCode)
	assert.Equal(t, q.RequestID, resp.RequestID)
}
