package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/makkenzo/keybind/internal/config"
	"github.com/makkenzo/keybind/internal/domain/license"
	"github.com/makkenzo/keybind/internal/storage/storetest"
)

// fakePostgREST understands the subset of the PostgREST query language the
// store uses: eq./is.null filters, or groups, order, limit and offset.
type fakePostgREST struct {
	mu       sync.Mutex
	rows     map[string]map[string]any
	maxRows  int
	requests int
	apiKey   string
}

func newFakePostgREST(maxRows int) *fakePostgREST {
	return &fakePostgREST{rows: make(map[string]map[string]any), maxRows: maxRows, apiKey: "service-key"}
}

func matchesCond(value any, cond string) bool {
	switch {
	case cond == "is.null":
		return value == nil
	case strings.HasPrefix(cond, "eq."):
		want := strings.TrimPrefix(cond, "eq.")
		switch v := value.(type) {
		case string:
			return v == want
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64) == want
		}
		return false
	}
	return true
}

// matchesAny evaluates an or=(col.op.value,...) group.
func matchesAny(r map[string]any, group string) bool {
	group = strings.TrimSuffix(strings.TrimPrefix(group, "("), ")")
	for _, term := range strings.Split(group, ",") {
		col, cond, ok := strings.Cut(term, ".")
		if ok && matchesCond(r[col], cond) {
			return true
		}
	}
	return false
}

func matches(r map[string]any, q map[string][]string) bool {
	for col, vals := range q {
		switch col {
		case "select", "order", "limit", "offset", "on_conflict":
			continue
		case "or":
			if !matchesAny(r, vals[0]) {
				return false
			}
			continue
		}
		if !matchesCond(r[col], vals[0]) {
			return false
		}
	}
	return true
}

func (f *fakePostgREST) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests++

	if req.Header.Get("apikey") != f.apiKey || req.Header.Get("Authorization") != "Bearer "+f.apiKey {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	q := req.URL.Query()
	w.Header().Set("Content-Type", "application/json")

	switch req.Method {
	case http.MethodGet:
		out := make([]map[string]any, 0)
		for _, r := range f.rows {
			if matches(r, q) {
				out = append(out, r)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			return out[i]["created_at"].(string) < out[j]["created_at"].(string)
		})
		offset, _ := strconv.Atoi(q.Get("offset"))
		limit := f.maxRows
		if l, err := strconv.Atoi(q.Get("limit")); err == nil && l < limit {
			limit = l
		}
		if offset > len(out) {
			offset = len(out)
		}
		out = out[offset:]
		if len(out) > limit {
			out = out[:limit]
		}
		_ = json.NewEncoder(w).Encode(out)

	case http.MethodPost:
		var r map[string]any
		if err := json.NewDecoder(req.Body).Decode(&r); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.rows[r["license_key"].(string)] = r
		w.WriteHeader(http.StatusCreated)

	case http.MethodPatch:
		var body map[string]any
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		out := make([]map[string]any, 0)
		for _, r := range f.rows {
			if matches(r, q) {
				for k, v := range body {
					r[k] = v
				}
				out = append(out, r)
			}
		}
		_ = json.NewEncoder(w).Encode(out)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStore(t *testing.T, fake *fakePostgREST) *LicenseStore {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	return NewLicenseStore(&config.RESTConfig{
		URL:      srv.URL,
		APIKey:   fake.apiKey,
		Table:    "licenses",
		PageSize: 500,
	}, 5*time.Second, zap.NewNop())
}

func TestLicenseStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) license.Store {
		return newTestStore(t, newFakePostgREST(500))
	})
}

func TestLicenseStoreListPagesPastServerCap(t *testing.T) {
	fake := newFakePostgREST(500)
	s := newTestStore(t, fake)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 1203; i++ {
		fake.rows[strconv.Itoa(i)] = map[string]any{
			"license_key": "F2P-" + strconv.Itoa(i),
			"type":        "lifetime",
			"created_at":  base.Add(time.Duration(i) * time.Second).Format(time.RFC3339),
			"revoked":     false,
			"uses":        float64(0),
			"note":        "",
		}
	}

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1203)
	assert.Equal(t, "F2P-0", all[0].Key)
	assert.Equal(t, "F2P-1202", all[len(all)-1].Key)
}

func TestLicenseStoreSurfacesServerErrors(t *testing.T) {
	fake := newFakePostgREST(500)
	s := newTestStore(t, fake)
	fake.mu.Lock()
	fake.apiKey = "rotated"
	fake.mu.Unlock()

	_, err := s.Get(context.Background(), "F2P-AAAA-BBBB-CCCC")
	require.Error(t, err)
	assert.NotErrorIs(t, err, license.ErrNotFound)
	assert.Contains(t, err.Error(), "401")
}

func TestLicenseStoreRejectsUnknownType(t *testing.T) {
	fake := newFakePostgREST(500)
	s := newTestStore(t, fake)
	fake.rows["x"] = map[string]any{
		"license_key": "F2P-AAAA-BBBB-CCCC",
		"type":        "forever",
		"created_at":  time.Now().UTC().Format(time.RFC3339),
	}

	_, err := s.Get(context.Background(), "F2P-AAAA-BBBB-CCCC")
	require.Error(t, err)
	assert.NotErrorIs(t, err, license.ErrNotFound)
}
