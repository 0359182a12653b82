package zarr

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/cors"
)

// DefaultWebAddress is where zarr-serve listens when no address is given.
const DefaultWebAddress = "localhost:8000"

// NewHandler serves the keys of store read-only over HTTP below prefix, so
// "GET <prefix>/0/.zarray" returns the value under "0/.zarray". Responses
// allow cross-origin reads so browser viewers can load arrays directly.
func NewHandler(store Store, prefix string) http.Handler {
	h := &storeHandler{store: store, prefix: "/" + strings.Trim(prefix, "/")}
	c := cors.New(cors.Options{
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
	})
	return c.Handler(h)
}

type storeHandler struct {
	store  Store
	prefix string
}

func (h *storeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, fmt.Sprintf("method %s not allowed", r.Method), http.StatusMethodNotAllowed)
		return
	}
	rel := strings.TrimPrefix(r.URL.Path, h.prefix)
	if h.prefix != "/" && (rel == r.URL.Path || !strings.HasPrefix(rel, "/")) {
		http.NotFound(w, r)
		return
	}
	p, err := NewPath(rel)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	key := p.String()
	if key == "" {
		http.NotFound(w, r)
		return
	}

	ctx := r.Context()
	if r.Method == http.MethodHead {
		ok, err := h.store.Exists(ctx, key)
		switch {
		case err != nil:
			Errorf("HEAD %s: %v", key, err)
			w.WriteHeader(http.StatusInternalServerError)
		case !ok:
			w.WriteHeader(http.StatusNotFound)
		default:
			w.WriteHeader(http.StatusOK)
		}
		return
	}

	data, err := ReadKey(ctx, h.store, key)
	if errors.Is(err, ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		Errorf("GET %s: %v", key, err)
		http.Error(w, "could not read "+key, http.StatusInternalServerError)
		return
	}
	if _, ok := KeyMetaType(key); ok || strings.HasSuffix(key, string(MTMetadata)) {
		w.Header().Set("Content-Type", "application/json")
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		Debugf("GET %s: writing response: %v", key, err)
	}
}
