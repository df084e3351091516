package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brothersgym/backoffice/internal/calendar"
	"github.com/brothersgym/backoffice/internal/config"
	"github.com/brothersgym/backoffice/internal/infrastructure/email"
	"github.com/brothersgym/backoffice/internal/repository"
	"github.com/brothersgym/backoffice/internal/server"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiResponse struct {
	status  int
	headers http.Header
	body    map[string]interface{}
}

func TestGoldenPath(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker for the MongoDB container")
	}

	// 1. Setup Infrastructure
	db, cleanupDB := setupTestDB(t)
	defer cleanupDB()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer redisClient.Close()

	require.NoError(t, repository.NewMongoPlanRepository(db).SeedDefaultPlans(context.Background()))

	cfg := &config.Config{}
	cfg.Server.MaxUploadSizeMB = 5
	cfg.Server.ClientURL = "http://localhost:3000"
	cfg.JWT.Secret = "test-secret-key-123"
	cfg.JWT.AccessTokenExpiry = time.Hour
	cfg.JWT.RefreshTokenExpiry = 24 * time.Hour
	cfg.Membership.Calendar = calendar.Gregorian
	cfg.Membership.Timezone = "UTC"
	cfg.Email.FromName = "Brothers Gym"
	cfg.Email.NotifyAdmin = "owner@gym.test"

	mailbox := email.NewLogSender()

	// 2. Initialize App
	app, err := server.NewApp(server.AppDependencies{
		Config:      cfg,
		MongoDB:     db,
		RedisClient: redisClient,
		EmailSender: mailbox,
	})
	require.NoError(t, err)

	request := func(method, path, token string, body interface{}, headers ...string) apiResponse {
		var bodyReader io.Reader
		if body != nil {
			jsonBytes, _ := json.Marshal(body)
			bodyReader = bytes.NewReader(jsonBytes)
		}
		req, _ := http.NewRequest(method, path, bodyReader)
		req.Header.Set("Content-Type", "application/json")
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		for i := 0; i+1 < len(headers); i += 2 {
			req.Header.Set(headers[i], headers[i+1])
		}
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()

		out := apiResponse{status: resp.StatusCode, headers: resp.Header}
		raw, _ := io.ReadAll(resp.Body)
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &out.body)
		}
		return out
	}

	// ==========================================
	// STEP 1: First admin signs up
	// ==========================================
	resp := request("POST", "/api/v1/admins/signup", "", map[string]string{
		"full_name":        "Owner",
		"email":            "owner@gym.test",
		"password":         "secret123",
		"password_confirm": "secret123",
	})
	require.Equal(t, 201, resp.status)
	token, _ := resp.body["token"].(string)
	require.NotEmpty(t, token)
	assert.Contains(t, resp.headers.Values("Set-Cookie")[0], "jwt=")

	// Anyone else is turned away
	resp = request("POST", "/api/v1/admins/signup", "", map[string]string{
		"full_name":        "Stranger",
		"email":            "stranger@gym.test",
		"password":         "secret123",
		"password_confirm": "secret123",
	})
	assert.Equal(t, 403, resp.status)

	resp = request("GET", "/api/v1/members", "", nil)
	assert.Equal(t, 401, resp.status)

	resp = request("GET", "/api/v1/admins/me", token, nil)
	require.Equal(t, 200, resp.status)
	me := resp.body["data"].(map[string]interface{})
	assert.Equal(t, "owner@gym.test", me["email"])

	// ==========================================
	// STEP 2: Plans
	// ==========================================
	resp = request("GET", "/api/v1/plans", token, nil)
	require.Equal(t, 200, resp.status)
	plans := resp.body["data"].([]interface{})
	require.Len(t, plans, 4)
	assert.Equal(t, "plan_monthly_1", plans[0].(map[string]interface{})["id"])

	// ==========================================
	// STEP 3: Register a member
	// ==========================================
	resp = request("POST", "/api/v1/members", token, map[string]interface{}{
		"full_name": "Abebe Kebede",
		"phone":     "0911 000 111",
		"gender":    "male",
		"plan_id":   "plan_monthly_1",
	})
	require.Equal(t, 201, resp.status)
	member := resp.body["data"].(map[string]interface{})
	memberID := member["id"].(string)
	memberCode := member["member_code"].(string)
	membership := member["membership"].(map[string]interface{})
	assert.Equal(t, "active", membership["status"])
	assert.Equal(t, float64(1), membership["duration_months"])

	resp = request("POST", "/api/v1/members", token, map[string]interface{}{
		"full_name":       "Copy Cat",
		"phone":           "0911000111",
		"duration_months": 1,
		"amount":          1500,
	})
	assert.Equal(t, 409, resp.status)

	// ==========================================
	// STEP 4: Renew twice with the same correlation id
	// ==========================================
	renewal := map[string]interface{}{"months": 2, "amount": 3000, "method": "cbe"}
	resp = request("POST", fmt.Sprintf("/api/v1/members/%s/renew", memberID), token, renewal, "X-Correlation-ID", "renew-1")
	require.Equal(t, 200, resp.status)
	notice := resp.body["renewal"].(map[string]interface{})
	assert.Equal(t, true, notice["extended"])
	assert.Equal(t, float64(2), notice["months_added"])

	resp = request("POST", fmt.Sprintf("/api/v1/members/%s/renew", memberID), token, renewal, "X-Correlation-ID", "renew-1")
	require.Equal(t, 200, resp.status)
	assert.Equal(t, "true", resp.headers.Get("X-Idempotent-Replay"))

	resp = request("GET", "/api/v1/members/"+memberID, token, nil)
	require.Equal(t, 200, resp.status)
	member = resp.body["data"].(map[string]interface{})
	assert.Len(t, member["payments"], 2)
	assert.Equal(t, float64(3), member["membership"].(map[string]interface{})["duration_months"])

	// ==========================================
	// STEP 5: Listing, stats and verification
	// ==========================================
	resp = request("GET", "/api/v1/members?q=abebe&status=active", token, nil)
	require.Equal(t, 200, resp.status)
	assert.Equal(t, float64(1), resp.body["matches"])
	assert.Equal(t, float64(1), resp.body["total"])

	resp = request("GET", "/api/v1/members/stats?range=30", token, nil)
	require.Equal(t, 200, resp.status)
	stats := resp.body["data"].(map[string]interface{})
	assert.Equal(t, float64(1), stats["total_members"])
	assert.Equal(t, float64(1), stats["active_members"])
	assert.Equal(t, float64(3000), stats["total_revenue"])

	resp = request("GET", "/api/v1/verify/"+memberCode, "", nil)
	require.Equal(t, 200, resp.status)
	assert.Equal(t, true, resp.body["valid"])

	// ==========================================
	// STEP 6: Delete
	// ==========================================
	resp = request("DELETE", "/api/v1/members/"+memberID, token, nil)
	assert.Equal(t, 204, resp.status)

	resp = request("GET", "/api/v1/verify/"+memberCode, "", nil)
	require.Equal(t, 200, resp.status)
	assert.Equal(t, false, resp.body["valid"])

	resp = request("GET", "/api/v1/members/"+memberID, token, nil)
	assert.Equal(t, 404, resp.status)

	resp = request("GET", "/api/v1/members/stats?range=30", token, nil)
	require.Equal(t, 200, resp.status)
	assert.Equal(t, float64(0), resp.body["data"].(map[string]interface{})["total_members"])

	// welcome, new member and renewal notices went out
	var subjects []string
	for _, msg := range mailbox.Sent() {
		subjects = append(subjects, msg.Subject)
	}
	assert.Contains(t, subjects, "New Member Joined: Abebe Kebede")
	assert.Contains(t, subjects, "Membership Renewed: Abebe Kebede")
}
