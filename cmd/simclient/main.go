// Command simclient drives an editor session over WebSocket, playing the
// browser side of the remote recognition provider. It resolves a speaker,
// starts recording, replays a scripted utterance as recognition events,
// and stops, leaving a saved conversation behind.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"conversation-transcription-service/internal/api/ws"
	"conversation-transcription-service/internal/models"
	"conversation-transcription-service/internal/service/recognition"
)

func main() {
	server := flag.String("server", "localhost:8080", "service address")
	speaker := flag.String("speaker", "Alice", "speaker name")
	lang := flag.String("lang", "fr-FR", "recognition language to emulate")
	utterance := flag.String("text", "bonjour tout le monde on commence la réunion", "utterance to transcribe")
	flag.Parse()

	speakerID, err := resolveSpeaker(*server, *speaker)
	if err != nil {
		log.Fatalf("failed to resolve speaker: %v", err)
	}
	log.Printf("Speaker %s resolved to %s", *speaker, speakerID)

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+*server+"/v1/editor/ws", nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Println("Connected to editor session")

	send(conn, ws.TypeStart, ws.SpeakerRequest{SpeakerID: speakerID})

	done := false
	conn.SetReadDeadline(time.Now().Add(30 * time.Second))
	for !done {
		var frame ws.Frame
		if err := conn.ReadJSON(&frame); err != nil {
			log.Fatalf("read failed: %v", err)
		}

		switch frame.Type {
		case ws.TypeControl:
			var ctl ws.ControlMessage
			if err := json.Unmarshal(frame.Data, &ctl); err != nil {
				log.Fatalf("bad control frame: %v", err)
			}
			log.Printf("Control: %s %s", ctl.Action, ctl.Lang)
			if ctl.Action == "start" && ctl.Lang == *lang {
				go playUtterance(conn, *lang, *utterance)
			}
		case ws.TypeUpdate:
			var u struct {
				State   string `json:"state"`
				Content string `json:"content"`
				Warning string `json:"warning"`
			}
			if err := json.Unmarshal(frame.Data, &u); err != nil {
				log.Fatalf("bad update frame: %v", err)
			}
			if u.Warning != "" {
				log.Printf("Warning: %s", u.Warning)
			}
			log.Printf("Update: state=%s content=%q", u.State, u.Content)
			if u.State == "recording" && strings.HasSuffix(u.Content, *utterance) {
				send(conn, ws.TypeStop, nil)
			}
			if u.State == "idle" && u.Content != "" {
				done = true
			}
		case ws.TypeError:
			var msg ws.ErrorMessage
			_ = json.Unmarshal(frame.Data, &msg)
			log.Fatalf("server error: %s", msg.Message)
		}
	}

	log.Println("Conversation saved, session complete")
}

// playUtterance replays one utterance as a browser recognizer would emit
// it: growing interims followed by a final.
func playUtterance(conn *websocket.Conn, lang, text string) {
	send(conn, ws.TypeSpeechStart, ws.SpeechEvent{Lang: lang})

	words := strings.Fields(text)
	for i := 1; i < len(words); i++ {
		partial := strings.Join(words[:i], " ")
		send(conn, ws.TypeSpeechResult, ws.SpeechEvent{
			Lang: lang,
			Results: []recognition.Result{{
				Alternatives: []recognition.Alternative{{Transcript: partial, Confidence: 0.5}},
			}},
		})
		time.Sleep(150 * time.Millisecond)
	}

	send(conn, ws.TypeSpeechResult, ws.SpeechEvent{
		Lang: lang,
		Results: []recognition.Result{{
			IsFinal:      true,
			Alternatives: []recognition.Alternative{{Transcript: text, Confidence: 0.92}},
		}},
	})
}

// resolveSpeaker finds the named participant over the REST API, creating
// it when absent.
func resolveSpeaker(server, name string) (string, error) {
	base := "http://" + server + "/v1/participants"

	resp, err := http.Get(base)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var roster []models.Participant
	if err := json.NewDecoder(resp.Body).Decode(&roster); err != nil {
		return "", err
	}
	for _, p := range roster {
		if strings.EqualFold(p.Name, name) {
			return p.ID, nil
		}
	}

	body, _ := json.Marshal(models.Participant{Name: name})
	created, err := http.Post(base, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer created.Body.Close()
	if created.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("create participant: status %d", created.StatusCode)
	}

	var p models.Participant
	if err := json.NewDecoder(created.Body).Decode(&p); err != nil {
		return "", err
	}
	return p.ID, nil
}

func send(conn *websocket.Conn, frameType string, data any) {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			log.Fatalf("encode %s: %v", frameType, err)
		}
		raw = b
	}
	if err := conn.WriteJSON(ws.Frame{Type: frameType, Data: raw}); err != nil {
		log.Fatalf("send %s failed: %v", frameType, err)
	}
}
