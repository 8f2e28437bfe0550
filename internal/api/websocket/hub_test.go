package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"kaizen-votes/internal/model"
	"kaizen-votes/internal/vote"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/datatypes"
)

func TestHubDeliversVotesToOwnServer(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := NewHub()

	r := gin.New()
	r.GET("/ws/server", func(c *gin.Context) {
		// stands in for middleware.PluginAuth
		id := uint(1)
		if c.Query("server") == "2" {
			id = 2
		}
		s := &model.Server{}
		s.ID = id
		c.Set("server", s)
	}, hub.Handler())

	srv := httptest.NewServer(r)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/server"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	other, _, err := websocket.DefaultDialer.Dial(url+"?server=2", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer other.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Connections(1) != 1 || hub.Connections(2) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("plugins never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	v := model.Vote{ID: 42, ServerID: 1, MinecraftUsername: "Steve", MinecraftUUID: "uuid-1",
		CreatedAt: created, EarnedRewards: datatypes.JSONSlice[uint]{3}}
	server := model.Server{}
	server.ID = 1
	hub.VoteSettled(context.Background(), v, server)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg struct {
		Type string     `json:"type"`
		Data vote.Event `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Type != "vote.received" || msg.Data.ID != "42" || msg.Data.PlayerName != "Steve" {
		t.Errorf("unexpected message %s", data)
	}
	if msg.Data.Timestamp != created.UnixMilli() || msg.Data.ServiceName != vote.ServiceName {
		t.Errorf("unexpected payload %+v", msg.Data)
	}
	if len(msg.Data.Rewards) != 1 || msg.Data.Rewards[0].ID != "3" || msg.Data.Rewards[0].VoteID != "42" {
		t.Errorf("rewards = %v", msg.Data.Rewards)
	}

	other.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, _, err := other.ReadMessage(); err == nil {
		t.Error("vote leaked to another server's plugin")
	}
}
