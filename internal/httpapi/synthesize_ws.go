package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

type wsRequest struct {
	ID      string `json:"id,omitempty"`
	Text    string `json:"text"`
	Speaker string `json:"speaker"`
}

type wsResponse struct {
	ID      string `json:"id,omitempty"`
	Status  int    `json:"status"`
	Audio   string `json:"audio,omitempty"`
	Format  string `json:"format,omitempty"`
	Cached  bool   `json:"cached,omitempty"`
	Speaker string `json:"speaker,omitempty"`

	Error    string `json:"error,omitempty"`
	Details  string `json:"details,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
}

// handleSynthesizeWS serves synthesis over a WebSocket so a page can request
// every character of a lesson on one connection. Messages are handled in
// order; each reply echoes the request ID.
func (r *Router) handleSynthesizeWS(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		r.logger.Warn("ws upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	conn.SetReadLimit(r.cfg.MaxBodyBytes)
	ctx := req.Context()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				r.logger.Debug("ws closed")
			} else {
				r.logger.Warn("ws read error", "err", err)
			}
			return
		}

		var in wsRequest
		var out wsResponse
		if err := json.Unmarshal(msg, &in); err != nil {
			out = wsResponse{Status: http.StatusBadRequest, Error: "invalid message"}
		} else {
			out = r.synthesizeMessage(req, in)
		}

		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(out); err != nil {
			r.logger.Warn("ws write error", "err", err)
			return
		}

		if ctx.Err() != nil {
			return
		}
	}
}

func (r *Router) synthesizeMessage(req *http.Request, in wsRequest) wsResponse {
	res, err := r.synth.Synthesize(req.Context(), in.Text, in.Speaker)
	if err != nil {
		status, e := synthesisError(err, in.Speaker)
		if status >= http.StatusInternalServerError {
			r.logger.Error("ws synthesis failed", "status", status, "text", in.Text, "err", err)
			captureError(req, err, "ws synthesize: "+e.Error)
		}
		return wsResponse{ID: in.ID, Status: status, Error: e.Error, Details: e.Details, Fallback: e.Fallback}
	}
	return wsResponse{
		ID:      in.ID,
		Status:  http.StatusOK,
		Audio:   base64.StdEncoding.EncodeToString(res.Audio),
		Format:  res.Format,
		Cached:  res.Cached,
		Speaker: res.Speaker,
	}
}
