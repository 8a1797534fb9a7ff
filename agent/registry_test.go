package agent

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func echoHandler(tag string) Handler {
	return HandlerFunc(func(_ context.Context, task Task) (Result, error) {
		return Result{"tag": tag, "task_type": task.TaskType}, nil
	})
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry(zap.NewNop())

	_, ok := reg.Get("missing")
	assert.False(t, ok)

	reg.Register("a", echoHandler("first"))
	h, ok := reg.Get("a")
	require.True(t, ok)

	res, err := h.Process(context.Background(), Task{TaskType: "x"})
	require.NoError(t, err)
	assert.Equal(t, "first", res["tag"])
	assert.Equal(t, "x", res["task_type"])
}

func TestRegistry_RegisterOverwrites(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register("a", echoHandler("first"))
	reg.Register("a", echoHandler("second"))

	assert.Equal(t, 1, reg.Len())
	h, _ := reg.Get("a")
	res, err := h.Process(context.Background(), Task{})
	require.NoError(t, err)
	assert.Equal(t, "second", res["tag"])
}

func TestRegistry_UnregisterAndNames(t *testing.T) {
	reg := NewRegistry(nil)
	for _, n := range []string{"zeta", "alpha", "mid"} {
		reg.Register(n, echoHandler(n))
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, reg.Names())

	assert.True(t, reg.Unregister("mid"))
	assert.False(t, reg.Unregister("mid"))
	assert.Equal(t, []string{"alpha", "zeta"}, reg.Names())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	reg := NewRegistry(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("agent-%d", i%10)
			reg.Register(name, echoHandler(name))
			_, _ = reg.Get(name)
			_ = reg.Names()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 10, reg.Len())
}

func TestResult_Success(t *testing.T) {
	tests := []struct {
		name string
		r    Result
		want bool
	}{
		{"nil", nil, false},
		{"empty", Result{}, true},
		{"explicit true", Result{KeySuccess: true}, true},
		{"explicit false", Result{KeySuccess: false}, false},
		{"error key", Result{KeyError: "boom"}, false},
		{"explicit wins over error", Result{KeySuccess: true, KeyError: "ignored"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.Success())
		})
	}
}

func TestResult_Score(t *testing.T) {
	s, ok := Result{KeyScore: 91}.Score()
	assert.True(t, ok)
	assert.Equal(t, 91.0, s)

	s, ok = Result{KeyScore: 72.5}.Score()
	assert.True(t, ok)
	assert.Equal(t, 72.5, s)

	s, ok = Result{KeyScore: " 95 "}.Score()
	assert.True(t, ok)
	assert.Equal(t, 95.0, s)

	_, ok = Result{KeyScore: "high"}.Score()
	assert.False(t, ok)

	_, ok = Result{}.Score()
	assert.False(t, ok)
}

func TestResult_Clone(t *testing.T) {
	orig := Result{"a": 1}
	cp := orig.Clone()
	cp["a"] = 2
	assert.Equal(t, 1, orig["a"])
	assert.Nil(t, Result(nil).Clone())
}
