package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hiragana-park/kotoba/internal/tts"
	"github.com/hiragana-park/kotoba/internal/voice"
)

type synthesizeRequest struct {
	Text    string `json:"text"`
	Speaker string `json:"speaker"`
}

type synthesizeResponse struct {
	Audio   string `json:"audio"`
	Format  string `json:"format"`
	Cached  bool   `json:"cached"`
	Speaker string `json:"speaker"`
}

// errorResponse is the body of every failed synthesis. Fallback tells the
// client to switch to its own speech fallback.
type errorResponse struct {
	Error    string `json:"error"`
	Details  string `json:"details,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
}

// handleSynthesize turns text into base64 WAV audio.
func (r *Router) handleSynthesize(w http.ResponseWriter, req *http.Request) {
	var body synthesizeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, r.cfg.MaxBodyBytes)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	res, err := r.synth.Synthesize(req.Context(), body.Text, body.Speaker)
	if err != nil {
		status, resp := synthesisError(err, body.Speaker)
		if status >= http.StatusInternalServerError {
			r.logger.Error("synthesis failed", "status", status, "text", body.Text, "speaker", body.Speaker, "err", err)
			captureError(req, err, "synthesize: "+resp.Error)
		}
		writeJSON(w, status, resp)
		return
	}

	if res.Cached {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	writeJSON(w, http.StatusOK, synthesizeResponse{
		Audio:   base64.StdEncoding.EncodeToString(res.Audio),
		Format:  res.Format,
		Cached:  res.Cached,
		Speaker: res.Speaker,
	})
}

// synthesisError maps a Synthesize error to a status code and response body.
func synthesisError(err error, speaker string) (int, errorResponse) {
	switch {
	case errors.Is(err, tts.ErrInvalidInput):
		return http.StatusBadRequest, errorResponse{Error: "Text is required"}
	case errors.Is(err, tts.ErrUnknownSpeaker):
		return http.StatusBadRequest, errorResponse{Error: "Unknown speaker: " + speaker}
	case tts.IsConnectionError(err):
		return http.StatusServiceUnavailable, errorResponse{
			Error:    "VOICEVOXサーバーに接続できません",
			Details:  err.Error(),
			Fallback: true,
		}
	case errors.Is(err, tts.ErrQueryConstructionFailed):
		return http.StatusInternalServerError, errorResponse{
			Error:    "音声クエリの生成に失敗しました",
			Details:  err.Error(),
			Fallback: true,
		}
	case errors.Is(err, tts.ErrSynthesisFailed):
		return http.StatusInternalServerError, errorResponse{
			Error:    "音声合成に失敗しました",
			Details:  err.Error(),
			Fallback: true,
		}
	default:
		return http.StatusInternalServerError, errorResponse{
			Error:    "VOICEVOX音声合成に失敗しました",
			Details:  err.Error(),
			Fallback: true,
		}
	}
}

type speakRequest struct {
	Text    string `json:"text"`
	Speaker string `json:"speaker"`
	Backend string `json:"backend"`
}

type speakAttempt struct {
	Backend string `json:"backend"`
	Error   string `json:"error"`
}

type speakResponse struct {
	Audio    string         `json:"audio,omitempty"`
	Format   string         `json:"format,omitempty"`
	Backend  string         `json:"backend,omitempty"`
	Cached   bool           `json:"cached"`
	Silent   bool           `json:"silent"`
	Attempts []speakAttempt `json:"attempts"`
}

// handleSpeak runs the server-side fallback chain. It answers 200 even when
// every backend failed; Silent tells the client nothing was produced.
func (r *Router) handleSpeak(w http.ResponseWriter, req *http.Request) {
	if r.chain == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "fallback chain not configured"})
		return
	}

	var body speakRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, r.cfg.MaxBodyBytes)).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if body.Text == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Text is required"})
		return
	}

	// Secondary engines speak any name with their one voice, so an unknown
	// speaker is rejected here rather than handed down the chain.
	if body.Speaker != "" {
		if _, ok := r.synth.Speakers().Resolve(body.Speaker); !ok {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Unknown speaker: " + body.Speaker})
			return
		}
	}

	out := r.chain.Speak(req.Context(), body.Text, body.Speaker, body.Backend)

	resp := speakResponse{
		Backend:  out.Backend,
		Silent:   out.Silent,
		Attempts: make([]speakAttempt, 0, len(out.Attempts)),
	}
	for _, a := range out.Attempts {
		resp.Attempts = append(resp.Attempts, speakAttempt{Backend: a.Backend, Error: a.Err.Error()})
	}
	if out.Audio != nil {
		resp.Cached = out.Audio.Cached
		if len(out.Audio.Data) > 0 {
			resp.Audio = base64.StdEncoding.EncodeToString(out.Audio.Data)
			resp.Format = out.Audio.Format
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSpeakers lists the voices callers may request.
func (r *Router) handleSpeakers(w http.ResponseWriter, _ *http.Request) {
	speakers := r.synth.Speakers()
	writeJSON(w, http.StatusOK, struct {
		Default  string          `json:"default"`
		Speakers []voice.Speaker `json:"speakers"`
	}{
		Default:  speakers.DefaultName(),
		Speakers: speakers.List(),
	})
}
