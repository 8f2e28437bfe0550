package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"
	"time"

	"kaizen-votes/internal/database"
	"kaizen-votes/internal/model"
	"kaizen-votes/internal/pairing"

	"github.com/gin-gonic/gin"
)

func TestPluginAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db, err := database.OpenMemory()
	if err != nil {
		t.Fatal(err)
	}
	server := model.Server{Name: "Kaizen", Slug: "kaizen", Status: model.ServerStatusApproved}
	if err := db.Create(&server).Error; err != nil {
		t.Fatal(err)
	}
	svc := pairing.NewService(db, 0)
	ctx := context.Background()
	tok, err := svc.Generate(ctx, server.ID, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	res, err := svc.Consume(ctx, *tok.PairingCode, pairing.PairInfo{}, time.Now())
	if err != nil {
		t.Fatal(err)
	}

	var keys []string
	var seen *model.Server
	r := gin.New()
	r.GET("/plugin", PluginAuth(svc), func(c *gin.Context) {
		keys = keys[:0]
		for k := range c.Keys {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		seen = PluginServer(c)
		c.Status(http.StatusNoContent)
	})
	call := func(bearer string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/plugin", nil)
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := call(res.Token); code != http.StatusNoContent {
		t.Fatalf("paired token = %d", code)
	}
	if seen == nil || seen.ID != server.ID {
		t.Errorf("PluginServer = %+v", seen)
	}
	if got := strings.Join(keys, ","); got != "server,serverToken" {
		t.Errorf("context keys = %s", got)
	}

	if code := call(""); code != http.StatusUnauthorized {
		t.Errorf("no bearer = %d", code)
	}
	if code := call("deadbeef"); code != http.StatusUnauthorized {
		t.Errorf("unknown bearer = %d", code)
	}

	if err := db.Model(&model.Server{}).Where("id = ?", server.ID).Update("status", model.ServerStatusSuspended).Error; err != nil {
		t.Fatal(err)
	}
	if code := call(res.Token); code != http.StatusForbidden {
		t.Errorf("suspended server = %d", code)
	}
}
