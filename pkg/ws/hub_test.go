package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"
)

func serveHub(hub *Hub) *httptest.Server {
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(hub, conn)
		if !client.Register() {
			conn.Close()
			return
		}
		go client.WritePump()
		go client.ReadPump()
	}))
}

func dial(srv *httptest.Server) (*websocket.Conn, error) {
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	return conn, err
}

func readMessage(conn *websocket.Conn) (Message, json.RawMessage, error) {
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return Message{}, nil, err
	}
	var envelope struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Message{}, nil, err
	}
	return Message{Type: envelope.Type}, envelope.Data, nil
}

func TestHub(t *testing.T) {
	Convey("Given a running hub behind a WebSocket endpoint", t, func() {
		hub := NewHub(zap.NewNop())
		hub.SetInitDataProvider(func() *InitData {
			return &InitData{Vehicles: []string{"VH-001"}, Summary: map[string]int{"total": 1}}
		})
		hub.SetMessageHandler(func(_ context.Context, raw []byte) error {
			if string(raw) == "bad" {
				return errors.New("decode failed: invalid character")
			}
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		go hub.Run(ctx)
		srv := serveHub(hub)
		defer srv.Close()
		defer cancel()

		conn, err := dial(srv)
		So(err, ShouldBeNil)
		defer conn.Close()

		Convey("When a client connects", func() {
			msg, data, err := readMessage(conn)

			Convey("Then it receives the init frame first", func() {
				So(err, ShouldBeNil)
				So(msg.Type, ShouldEqual, MsgTypeInit)
				So(string(data), ShouldEqual, `{"vehicles":["VH-001"],"summary":{"total":1}}`)
				So(hub.ClientCount(), ShouldEqual, 1)
			})

			Convey("And later broadcasts reach it", func() {
				hub.BroadcastMessage(MsgTypeVehicleUpdate, map[string]string{"id": "VH-001"})

				msg, data, err := readMessage(conn)
				So(err, ShouldBeNil)
				So(msg.Type, ShouldEqual, MsgTypeVehicleUpdate)
				So(string(data), ShouldEqual, `{"id":"VH-001"}`)
			})

			Convey("And a rejected upstream frame is answered only with an error", func() {
				So(conn.WriteMessage(websocket.TextMessage, []byte("bad")), ShouldBeNil)

				msg, data, err := readMessage(conn)
				So(err, ShouldBeNil)
				So(msg.Type, ShouldEqual, MsgTypeError)
				So(string(data), ShouldContainSubstring, "decode failed")
			})
		})

		Convey("When the hub stops", func() {
			_, _, err := readMessage(conn)
			So(err, ShouldBeNil)
			cancel()

			Convey("Then the connection is closed", func() {
				_, _, err := readMessage(conn)
				So(err, ShouldNotBeNil)
				So(hub.ClientCount(), ShouldEqual, 0)
			})

			Convey("And broadcasts no longer block", func() {
				done := make(chan struct{})
				go func() {
					for i := 0; i < 1000; i++ {
						hub.BroadcastMessage(MsgTypeVehicleStale, i)
					}
					close(done)
				}()
				So(waitClosed(done, time.Second), ShouldBeTrue)
			})
		})
	})
}

func waitClosed(ch <-chan struct{}, timeout time.Duration) bool {
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}
