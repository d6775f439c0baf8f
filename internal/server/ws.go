package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/streamnote/streamnote/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("session")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer func() { _ = conn.Close() }()

	setup, ok := s.awaitSetup(conn)
	if !ok {
		return
	}

	ch, ok := s.dispatch.Attach(sessionID)
	if !ok {
		s.writeRejection(conn, sessionID, session.ErrDuplicateSession)
		return
	}
	sess, err := s.sessions.Create(sessionID, s.sessionConfig(setup), s.dispatch)
	if err != nil {
		s.dispatch.Detach(sessionID)
		s.writeRejection(conn, sessionID, err)
		return
	}

	if s.metrics != nil {
		s.metrics.SessionsCreated.Inc()
		s.metrics.SessionsActive.Inc()
	}
	startedAt := sess.StartedAt()

	connected := ConnectedEvent{
		Event:     newEvent("connected", time.Now().UTC()),
		SessionID: sessionID,
	}
	if payload, err := json.Marshal(connected); err == nil {
		_ = conn.WriteMessage(websocket.TextMessage, payload)
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for msg := range ch {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.sessions.Destroy(sessionID)
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	s.readLoop(conn, sessionID, setup.Sources)

	s.sessions.Destroy(sessionID)
	<-writerDone

	if s.metrics != nil {
		s.metrics.SessionsClosed.Inc()
		s.metrics.SessionsActive.Dec()
		s.metrics.SessionDuration.Observe(time.Since(startedAt).Seconds())
		s.metrics.ChunksDropped.Add(float64(sess.DroppedChunks()))
	}
}

// awaitSetup reads until the setup text frame arrives. Audio before
// setup is out of protocol: dropped and counted, never forwarded.
func (s *Server) awaitSetup(conn *websocket.Conn) (setupMessage, bool) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return setupMessage{}, false
		}

		if messageType != websocket.TextMessage {
			s.countRejected()
			log.Printf("ws: %v", ErrNotSetup)
			continue
		}

		setup, err := parseSetup(data)
		if err != nil {
			s.countRejected()
			log.Printf("ws: %v", err)
			continue
		}
		return setup, true
	}
}

func (s *Server) readLoop(conn *websocket.Conn, sessionID string, sources map[string]string) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		switch messageType {
		case websocket.BinaryMessage:
			tag, pcm, err := decodeAudioFrame(data)
			if err != nil {
				s.countRejected()
				log.Printf("ws session %s: %v", sessionID, err)
				continue
			}
			if len(sources) > 0 {
				if _, declared := sources[tag]; !declared {
					s.countRejected()
					log.Printf("ws session %s: %v: %q", sessionID, ErrUnknownSource, tag)
					continue
				}
			}

			if err := s.sessions.Ingest(sessionID, tag, pcm); err != nil {
				if errors.Is(err, session.ErrSessionClosed) || errors.Is(err, session.ErrUnknownSession) {
					return
				}
				s.countRejected()
				log.Printf("ws session %s ingest: %v", sessionID, err)
				continue
			}
			if s.metrics != nil {
				s.metrics.ChunksIngested.Inc()
			}

		case websocket.TextMessage:
			msg, err := parseControl(data)
			if err != nil {
				s.countRejected()
				continue
			}
			if msg.Type == "stop" {
				s.sessions.Destroy(sessionID)
				continue
			}
			s.countRejected()
			log.Printf("ws session %s: %v: %q", sessionID, ErrUnknownType, msg.Type)
		}
	}
}

func (s *Server) writeRejection(conn *websocket.Conn, sessionID string, err error) {
	kind := "session_rejected"
	if errors.Is(err, session.ErrDuplicateSession) {
		kind = "duplicate_session"
	} else if errors.Is(err, session.ErrCapacityExceeded) {
		kind = "capacity_exceeded"
	}

	event := ErrorEvent{
		Event:        newEvent("error", time.Now().UTC()),
		SessionID:    sessionID,
		Kind:         kind,
		SessionState: session.StateClosed.String(),
	}
	if payload, err := json.Marshal(event); err == nil {
		_ = conn.WriteMessage(websocket.TextMessage, payload)
	}
}

func (s *Server) countRejected() {
	if s.metrics != nil {
		s.metrics.ChunksRejected.Inc()
	}
}
