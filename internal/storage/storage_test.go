package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vaaLib "github.com/wormhole-foundation/wormhole/sdk/vaa"
	"go.uber.org/zap"

	"github.com/orbital-protocol/relayer/internal/config"
)

// fakeRest emulates the REST key-value API in memory.
type fakeRest struct {
	mu       sync.Mutex
	data     map[string]string
	token    string
	failWith int
	commands []string
}

func newFakeRest(token string) *fakeRest {
	return &fakeRest{data: map[string]string{}, token: token}
}

func (f *fakeRest) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failWith != 0 {
		w.WriteHeader(f.failWith)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "unavailable"})
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+f.token {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized"})
		return
	}

	var cmd []interface{}
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil || len(cmd) < 2 {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	name, _ := cmd[0].(string)
	key, _ := cmd[1].(string)
	f.commands = append(f.commands, name)

	var result interface{}
	switch name {
	case "SET":
		f.data[key], _ = cmd[2].(string)
		result = "OK"
	case "GET":
		if v, ok := f.data[key]; ok {
			result = v
		}
	case "DEL":
		if _, ok := f.data[key]; ok {
			delete(f.data, key)
			result = 1
		} else {
			result = 0
		}
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": result})
}

// unreachableRedis points at a port nothing listens on.
const unreachableRedis = "redis://127.0.0.1:1"

func TestSelect_PrefersRestWhenCredentialsPresent(t *testing.T) {
	fake := newFakeRest("secret")
	srv := httptest.NewServer(fake)
	defer srv.Close()

	h := Select(context.Background(), zap.NewNop(), config.Storage{
		RestURL:       srv.URL,
		RestToken:     "secret",
		RedisURL:      unreachableRedis,
		CanaryTimeout: time.Second,
	})
	defer h.Close()

	assert.Equal(t, KindRest, h.Kind())
	assert.Equal(t, []string{"SET", "GET", "DEL"}, fake.commands)
	assert.Empty(t, fake.data, "canary key must be cleaned up")
}

func TestSelect_RestWithoutTokenIsSkipped(t *testing.T) {
	fake := newFakeRest("")
	srv := httptest.NewServer(fake)
	defer srv.Close()

	h := Select(context.Background(), zap.NewNop(), config.Storage{
		RestURL:       srv.URL,
		CanaryTimeout: time.Second,
	})
	assert.Equal(t, KindUnavailable, h.Kind())
	assert.Empty(t, fake.commands)
}

func TestSelect_AllBackendsFailingYieldsUnavailable(t *testing.T) {
	fake := newFakeRest("secret")
	fake.failWith = http.StatusServiceUnavailable
	srv := httptest.NewServer(fake)
	defer srv.Close()

	h := Select(context.Background(), zap.NewNop(), config.Storage{
		RestURL:       srv.URL,
		RestToken:     "secret",
		RedisURL:      unreachableRedis,
		CanaryTimeout: 500 * time.Millisecond,
	})
	assert.Equal(t, KindUnavailable, h.Kind())
	assert.IsType(t, Unavailable{}, h)
}

func TestSelect_NothingConfigured(t *testing.T) {
	h := Select(context.Background(), zap.NewNop(), config.Storage{})
	assert.Equal(t, KindUnavailable, h.Kind())
}

func TestSelect_BadRedisURL(t *testing.T) {
	h := Select(context.Background(), zap.NewNop(), config.Storage{
		RedisURL:      "redis://host:port:extra/notadb",
		CanaryTimeout: 100 * time.Millisecond,
	})
	assert.Equal(t, KindUnavailable, h.Kind())
}

func TestCanary_Unavailable(t *testing.T) {
	assert.ErrorIs(t, Canary(context.Background(), Unavailable{}, time.Second), ErrStorageUnavailable)
}

func TestRestStore_GetMissingKey(t *testing.T) {
	srv := httptest.NewServer(newFakeRest("t"))
	defer srv.Close()

	s := NewRestStore(srv.URL, "t", time.Second)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRestStore_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(newFakeRest("right"))
	defer srv.Close()

	s := NewRestStore(srv.URL, "wrong", time.Second)
	err := s.Set(context.Background(), "k", "v", 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unauthorized")
}

func TestBookkeeper_RecordsOnRest(t *testing.T) {
	fake := newFakeRest("secret")
	srv := httptest.NewServer(fake)
	defer srv.Close()

	b := NewBookkeeper(zap.NewNop(), "test")
	prev := b.Use(NewRestStore(srv.URL, "secret", time.Second))
	assert.Equal(t, KindUnavailable, prev.Kind())

	ctx := context.Background()
	b.RecordSequence(ctx, vaaLib.ChainIDSui, 42)
	seq, ok := b.LastSequence(ctx, vaaLib.ChainIDSui)
	require.True(t, ok)
	assert.Equal(t, uint64(42), seq)
	assert.Equal(t, "42", fake.data["test:sequence:21"])

	_, ok = b.LastSequence(ctx, vaaLib.ChainIDAvalanche)
	assert.False(t, ok)

	rec := LoanRecord{LoanID: "0xabc", SourceChain: 6, Sequence: 7, TxID: "digest", LoanObject: "0xobj"}
	b.RecordLoan(ctx, rec)
	got, ok := b.Loan(ctx, "0xabc")
	require.True(t, ok)
	assert.Equal(t, rec, got)
}

func TestBookkeeper_UnavailableIsNoop(t *testing.T) {
	b := NewBookkeeper(zap.NewNop(), "test")
	ctx := context.Background()

	b.RecordSequence(ctx, vaaLib.ChainIDSui, 1)
	b.RecordLoan(ctx, LoanRecord{LoanID: "x"})
	_, ok := b.LastSequence(ctx, vaaLib.ChainIDSui)
	assert.False(t, ok)
	_, ok = b.Loan(ctx, "x")
	assert.False(t, ok)

	assert.Equal(t, KindUnavailable, b.Use(nil).Kind())
	assert.Equal(t, KindUnavailable, b.Handle().Kind())
}

func TestBookkeeper_FailingBackendDoesNotPanic(t *testing.T) {
	fake := newFakeRest("secret")
	fake.failWith = http.StatusInternalServerError
	srv := httptest.NewServer(fake)
	defer srv.Close()

	b := NewBookkeeper(zap.NewNop(), "test")
	b.Use(NewRestStore(srv.URL, "secret", time.Second))

	b.RecordSequence(context.Background(), vaaLib.ChainIDSui, 5)
	_, ok := b.LastSequence(context.Background(), vaaLib.ChainIDSui)
	assert.False(t, ok)
}
