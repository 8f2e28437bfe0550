package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"kaizen-votes/internal/api/websocket"
	"kaizen-votes/internal/database"
	"kaizen-votes/internal/model"
	"kaizen-votes/internal/pairing"
	"kaizen-votes/internal/vote"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
)

type testAPI struct {
	t *testing.T
	r *gin.Engine
}

func (a *testAPI) do(method, path, token string, body interface{}) (int, map[string]interface{}) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 && w.Body.Bytes()[0] == '{' {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			a.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return w.Code, out
}

func (a *testAPI) list(path, token string) []map[string]interface{} {
	a.t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	a.r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		a.t.Fatalf("GET %s = %d: %s", path, w.Code, w.Body.String())
	}
	var out []map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		a.t.Fatal(err)
	}
	return out
}

func (a *testAPI) login(username, password string) string {
	a.t.Helper()
	code, body := a.do(http.MethodPost, "/api/v1/login", "", gin.H{"username": username, "password": password})
	if code != http.StatusOK {
		a.t.Fatalf("login %s = %d %v", username, code, body)
	}
	return body["token"].(string)
}

func TestVoteAndClaimFlow(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	if err := db.Create(&model.User{Username: "admin", Password: "admin-password", Role: model.RoleAdmin}).Error; err != nil {
		t.Fatal(err)
	}
	a := &testAPI{t: t, r: NewRouter(Deps{
		DB:        db,
		JWTSecret: "test-secret",
		Votes:     vote.NewService(db, nil),
		Pairing:   pairing.NewService(db, 0),
		Hub:       websocket.NewHub(),
	})}
	admin := a.login("admin", "admin-password")

	code, body := a.do(http.MethodPost, "/api/v1/register", "", gin.H{"username": "owner", "password": "owner-password"})
	if code != http.StatusCreated {
		t.Fatalf("register = %d %v", code, body)
	}
	owner := body["token"].(string)

	code, body = a.do(http.MethodPost, "/api/v1/servers", owner, gin.H{"name": "Kaizen Survival"})
	if code != http.StatusCreated {
		t.Fatalf("create server = %d %v", code, body)
	}
	serverID := uint(body["ID"].(float64))
	base := fmt.Sprintf("/api/v1/servers/%d", serverID)

	// Pending servers take no votes.
	if code, _ := a.do(http.MethodPost, base+"/votes", owner, gin.H{"minecraft_username": "Steve"}); code != http.StatusForbidden {
		t.Errorf("vote on pending server = %d", code)
	}
	if code, _ := a.do(http.MethodPut, base+"/status", owner, gin.H{"status": "approved"}); code != http.StatusForbidden {
		t.Errorf("owner approving own server = %d", code)
	}
	if code, body := a.do(http.MethodPut, base+"/status", admin, gin.H{"status": "approved"}); code != http.StatusOK {
		t.Fatalf("approve = %d %v", code, body)
	}

	if err := db.Create(&model.Reward{
		ServerID:   serverID,
		Name:       "Diamond",
		RewardType: model.RewardTypeItem,
		Commands:   datatypes.JSONSlice[string]{"give {player} diamond 1"},
		Chance:     100,
		IsActive:   true,
	}).Error; err != nil {
		t.Fatal(err)
	}

	code, body = a.do(http.MethodPost, base+"/tokens", owner, nil)
	if code != http.StatusCreated {
		t.Fatalf("generate code = %d %v", code, body)
	}
	pairingCode := body["pairing_code"].(string)

	for _, port := range []int{-1, 65536} {
		code, body := a.do(http.MethodPost, "/api/v1/servers/pair", "", gin.H{"pairing_code": pairingCode, "server_port": port})
		if code != http.StatusBadRequest {
			t.Errorf("pair with port %d = %d %v", port, code, body)
		}
	}

	code, body = a.do(http.MethodPost, "/api/v1/servers/pair", "", gin.H{
		"pairing_code":      pairingCode,
		"server_ip":         "203.0.113.7",
		"server_port":       25565,
		"minecraft_version": "1.21.1",
		"plugin_version":    "1.0.0",
	})
	if code != http.StatusOK {
		t.Fatalf("pair = %d %v", code, body)
	}
	bearer := body["data"].(map[string]interface{})["token"].(string)

	if code, _ := a.do(http.MethodPost, "/api/v1/servers/pair", "", gin.H{"pairing_code": pairingCode}); code != http.StatusNotFound {
		t.Errorf("reusing pairing code = %d", code)
	}

	code, body = a.do(http.MethodPost, base+"/votes", owner, gin.H{"minecraft_username": "Steve"})
	if code != http.StatusCreated {
		t.Fatalf("vote = %d %v", code, body)
	}
	if rewards := body["earned_rewards"].([]interface{}); len(rewards) != 1 {
		t.Errorf("earned rewards = %v", rewards)
	}

	code, body = a.do(http.MethodPost, base+"/votes", owner, gin.H{"minecraft_username": "Steve"})
	if code != http.StatusTooManyRequests {
		t.Fatalf("second vote = %d %v", code, body)
	}
	if left, _ := body["cooldown_remaining"].(float64); left <= 0 || left > 86400 {
		t.Errorf("cooldown_remaining = %v", body["cooldown_remaining"])
	}

	pending := a.list(base+"/votes/pending", bearer)
	if len(pending) != 1 || pending[0]["player_name"] != "Steve" {
		t.Fatalf("pending = %v", pending)
	}
	voteID := pending[0]["id"].(string)

	code, body = a.do(http.MethodPost, "/api/v1/votes/"+voteID+"/claim", bearer, nil)
	if code != http.StatusOK {
		t.Fatalf("claim = %d %v", code, body)
	}
	data := body["data"].(map[string]interface{})
	if cmds := data["commands"].([]interface{}); len(cmds) != 1 || cmds[0] != "give Steve diamond 1" {
		t.Errorf("commands = %v", cmds)
	}
	if code, _ := a.do(http.MethodPost, "/api/v1/votes/"+voteID+"/claim", bearer, nil); code != http.StatusConflict {
		t.Errorf("second claim = %d", code)
	}
	if got := a.list(base+"/votes/pending", bearer); len(got) != 0 {
		t.Errorf("pending after claim = %v", got)
	}

	// A token only speaks for its own server.
	code, body = a.do(http.MethodPost, "/api/v1/servers", owner, gin.H{"name": "Other"})
	if code != http.StatusCreated {
		t.Fatalf("create second server = %d", code)
	}
	other := fmt.Sprintf("/api/v1/servers/%d", uint(body["ID"].(float64)))
	if code, _ := a.do(http.MethodGet, other+"/votes/pending", bearer, nil); code != http.StatusForbidden {
		t.Errorf("pending of another server = %d", code)
	}
	if code, _ := a.do(http.MethodGet, base+"/votes/pending", "not-a-token", nil); code != http.StatusUnauthorized {
		t.Errorf("bad bearer = %d", code)
	}

	board := a.list(base+"/leaderboard?period=all", bearer)
	if len(board) != 1 || board[0]["player_name"] != "Steve" || board[0]["votes"] != float64(1) {
		t.Errorf("leaderboard = %v", board)
	}
}
