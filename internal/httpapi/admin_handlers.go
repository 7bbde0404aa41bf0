package httpapi

import (
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/hiragana-park/kotoba/internal/cache"
	"github.com/hiragana-park/kotoba/internal/tts"
)

type cacheStats struct {
	cache.Stats
	Size string `json:"size"`
	TTL  string `json:"ttl"`
}

func (r *Router) synthesizers() []*tts.Synthesizer {
	return append([]*tts.Synthesizer{r.synth}, r.others...)
}

// handleAdminCacheStats returns counters for every synthesizer cache.
func (r *Router) handleAdminCacheStats(w http.ResponseWriter, _ *http.Request) {
	out := make(map[string]cacheStats)
	for _, s := range r.synthesizers() {
		c := s.Cache()
		st := c.Stats()
		out[s.Name()] = cacheStats{
			Stats: st,
			Size:  humanize.Bytes(uint64(st.Bytes)),
			TTL:   c.TTL().String(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"caches": out})
}

// handleAdminCachePurge drops every cached entry.
func (r *Router) handleAdminCachePurge(w http.ResponseWriter, req *http.Request) {
	purged := 0
	for _, s := range r.synthesizers() {
		purged += s.Cache().Purge()
	}
	r.logger.Info("cache purged", "entries", purged, "by", adminSubject(req.Context()))
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "purged": purged})
}
