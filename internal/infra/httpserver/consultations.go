package httpserver

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	appconsult "github.com/bryanwahyu/mediscan/internal/application/consultations"
	"github.com/bryanwahyu/mediscan/internal/domain/consultations"
	"github.com/bryanwahyu/mediscan/internal/middleware"
)

const (
	streamBuffer = 32
	pingPeriod   = 30 * time.Second
	pongWait     = 2 * pingPeriod
	writeWait    = 10 * time.Second
)

// POST /v1/consultations
// Body: {"analysis_id": "<id>", "specialist_id": "<user>"}
func (r *Router) handleOpenConsultation(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		AnalysisID   string `json:"analysis_id"`
		SpecialistID string `json:"specialist_id"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<16)).Decode(&body); err != nil {
		return invalid("request body must be JSON")
	}
	if err := middleware.ValidateID("analysis", body.AnalysisID); err != nil {
		return invalid("%s", err.Error())
	}
	if err := middleware.ValidateUserID(body.SpecialistID); err != nil {
		return invalid("%s", err.Error())
	}

	c, err := r.consultations.Open(req.Context(), appconsult.OpenCommand{
		DoctorID:     userID(req),
		AnalysisID:   body.AnalysisID,
		SpecialistID: body.SpecialistID,
	})
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, c)
}

// GET /v1/consultations/{id}
func (r *Router) handleConsultation(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "consultation")
	if err != nil {
		return err
	}
	c, err := r.consultations.Get(req.Context(), userID(req), consultations.ID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, c)
}

// GET /v1/consultations/{id}/messages?limit=
func (r *Router) handleMessages(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "consultation")
	if err != nil {
		return err
	}
	list, err := r.consultations.Messages(req.Context(), userID(req), consultations.ID(id), middleware.ValidateLimit(queryInt(req, "limit")))
	if err != nil {
		return err
	}
	if list == nil {
		list = []*consultations.Message{}
	}
	return writeJSON(w, http.StatusOK, map[string]any{"data": list})
}

// POST /v1/consultations/{id}/messages
// Body: {"message": "..."}
func (r *Router) handlePostMessage(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "consultation")
	if err != nil {
		return err
	}
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<16)).Decode(&body); err != nil {
		return invalid("request body must be JSON")
	}

	m, err := r.consultations.Post(req.Context(), userID(req), consultations.ID(id), middleware.SanitizeString(body.Message))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, m)
}

// GET /v1/consultations/{id}/stream (websocket)
func (r *Router) handleStream(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "consultation")
	if err != nil {
		return err
	}
	user := userID(req)
	ctx := req.Context()
	log := r.log.WithField("consultation_id", id).WithField("user_id", user)

	// subscribe before the upgrade so a forbidden or unconfigured stream
	// still gets a normal error response
	messages := make(chan *consultations.Message, streamBuffer)
	unsubscribe, err := r.consultations.Subscribe(ctx, user, consultations.ID(id), func(m *consultations.Message) {
		select {
		case messages <- m:
		default:
			log.Warn("stream buffer full, dropping message")
		}
	})
	if err != nil {
		return err
	}
	defer unsubscribe()

	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error
		log.WithError(err).Warn("websocket upgrade")
		return nil
	}
	defer conn.Close()

	// reader: only pongs and close frames are expected from the client
	closed := make(chan struct{})
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-closed:
			return nil
		case m := <-messages:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(m); err != nil {
				log.WithError(err).Debug("stream write")
				return nil
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		}
	}
}
