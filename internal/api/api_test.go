package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"estatehub/server/config"
	"estatehub/server/internal/analytics"
	"estatehub/server/internal/auth"
	"estatehub/server/internal/cache"
	"estatehub/server/internal/database"
	"estatehub/server/internal/importer"
	"estatehub/server/internal/leads"
	"estatehub/server/internal/listings"
	"estatehub/server/internal/messaging"
	"estatehub/server/internal/models"
	"estatehub/server/internal/pipeline"
	"estatehub/server/internal/queue"
	"estatehub/server/internal/recommendation"
)

type testServer struct {
	t      *testing.T
	db     *database.Database
	router *gin.Engine
	queue  *queue.ListingQueue
	issuer *auth.Issuer

	agency *models.Agency
	rival  *models.Agency
	member *models.Member

	adminToken string
	agentToken string
	rivalToken string
	buyerToken string
	buyer      *models.User
	agent      *models.User
}

func newTestServer(t *testing.T, limiter *RateLimiter) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := messaging.NewHub(logger)
	go hub.Run(ctx)

	q := queue.NewListingQueue(4, logger)
	issuer := auth.NewIssuer(config.AuthConfig{JWTSecret: "test-secret", TokenTTL: time.Hour, Issuer: "estatehub"})
	listingSvc := listings.NewService(db, nil, logger)
	t.Cleanup(listingSvc.Wait)

	handler := NewHandler(Services{
		DB:              db,
		Issuer:          issuer,
		Listings:        listingSvc,
		Leads:           leads.NewService(db, nil, logger),
		Pipeline:        pipeline.NewService(db, logger),
		Analytics:       analytics.NewService(db, cache.Noop{}, time.Minute, logger),
		Recommendations: recommendation.NewService(db, logger),
		Messaging:       messaging.NewService(db, hub, logger),
		Hub:             hub,
		Importer:        importer.New(q, nil, 2, logger),
	}, logger)
	router := NewRouter(config.HTTPConfig{AllowedOrigins: []string{"http://localhost:3000"}}, handler, limiter, logger)

	s := &testServer{t: t, db: db, router: router, queue: q, issuer: issuer}
	s.seed(ctx)
	return s
}

func (s *testServer) seed(ctx context.Context) {
	t := s.t
	s.agency = &models.Agency{Name: "Casa Lisboa", City: "Lisbon", DefaultCommissionRate: 3}
	s.rival = &models.Agency{Name: "Rival Homes", City: "Porto"}
	require.NoError(t, s.db.CreateAgency(ctx, s.agency))
	require.NoError(t, s.db.CreateAgency(ctx, s.rival))

	admin := s.user(ctx, "admin@casa.test", models.RoleAgencyAdmin, &s.agency.ID)
	s.agent = s.user(ctx, "agent@casa.test", models.RoleAgent, &s.agency.ID)
	rivalAdmin := s.user(ctx, "admin@rival.test", models.RoleAgencyAdmin, &s.rival.ID)
	s.buyer = s.user(ctx, "buyer@mail.test", models.RoleBuyer, nil)

	s.member = &models.Member{UserID: s.agent.ID, AgencyID: s.agency.ID, Active: true}
	require.NoError(t, s.db.CreateMember(ctx, s.member))

	s.adminToken = s.token(admin)
	s.agentToken = s.token(s.agent)
	s.rivalToken = s.token(rivalAdmin)
	s.buyerToken = s.token(s.buyer)
}

func (s *testServer) user(ctx context.Context, email string, role models.Role, agencyID *uint) *models.User {
	hash, err := auth.HashPassword("password123")
	require.NoError(s.t, err)
	u := &models.User{Email: email, PasswordHash: hash, Name: email, Role: role, AgencyID: agencyID}
	require.NoError(s.t, s.db.CreateUser(ctx, u))
	return u
}

func (s *testServer) token(u *models.User) string {
	tok, _, err := s.issuer.Issue(u)
	require.NoError(s.t, err)
	return tok
}

func (s *testServer) do(method, path, token string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(s.t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (s *testServer) createProperty(token string, price float64) models.Property {
	w := s.do(http.MethodPost, "/api/properties", token, map[string]any{
		"title":        "T2 in Alfama",
		"type":         models.PropertyTypeApartment,
		"listing_type": models.ListingTypeSale,
		"price":        price,
		"area":         80,
		"city":         "Lisbon",
		"district":     "Alfama",
		"address":      "Rua dos Remedios 10",
		"latitude":     38.712,
		"longitude":    -9.128,
	})
	require.Equal(s.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.Property](s.t, w)
}

func TestHealthCheckAndRequestID(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "trace-42")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	assert.Equal(t, "trace-42", rec.Header().Get(requestIDHeader))
}

func TestRegisterLoginMe(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "New@Mail.test", "password": "long-enough", "name": " Ana ",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	registered := decode[TokenResponse](t, w)
	assert.NotEmpty(t, registered.Token)
	assert.Equal(t, models.RoleBuyer, registered.User.Role)
	assert.Equal(t, "new@mail.test", registered.User.Email)
	assert.Equal(t, "Ana", registered.User.Name)

	tests := []struct {
		name   string
		body   any
		status int
	}{
		{"duplicate email", map[string]string{"email": "new@mail.test", "password": "long-enough"}, http.StatusConflict},
		{"short password", map[string]string{"email": "x@mail.test", "password": "short"}, http.StatusBadRequest},
		{"bad email", map[string]string{"email": "nope", "password": "long-enough"}, http.StatusBadRequest},
		{"missing body", nil, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(http.MethodPost, "/api/auth/register", "", tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	w = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "new@mail.test", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ghost@mail.test", "password": "long-enough"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodPost, "/api/auth/login", "", map[string]string{"email": "new@mail.test", "password": "long-enough"})
	require.Equal(t, http.StatusOK, w.Code)
	login := decode[TokenResponse](t, w)

	w = s.do(http.MethodGet, "/api/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	me := decode[models.User](t, w)
	assert.Equal(t, registered.User.ID, me.ID)
	assert.NotContains(t, w.Body.String(), "password")

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/auth/me", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/api/auth/me", "garbage", nil).Code)
}

func TestPropertyPublishingRoles(t *testing.T) {
	s := newTestServer(t, nil)
	body := map[string]any{"title": "Flat", "type": "APARTMENT", "listing_type": "SALE", "price": 1000, "city": "Lisbon"}

	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, "/api/properties", "", body).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/api/properties", s.buyerToken, body).Code)

	p := s.createProperty(s.agentToken, 350000)
	require.NotNil(t, p.AgencyID)
	assert.Equal(t, s.agency.ID, *p.AgencyID)
	require.NotNil(t, p.AgentID)
	assert.Equal(t, s.member.ID, *p.AgentID)

	path := "/api/properties/" + itoa(p.ID)
	w := s.do(http.MethodPatch, path, s.rivalToken, map[string]any{"price": 1})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPatch, path, s.adminToken, map[string]any{"price": 340000})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 340000.0, decode[models.Property](t, w).Price)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/api/properties/abc", "", nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/properties/9999", "", nil).Code)

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, path, s.rivalToken, nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, path, s.agentToken, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, path, "", nil).Code)
}

func TestSearchFavoritesAndInquiry(t *testing.T) {
	s := newTestServer(t, nil)
	cheap := s.createProperty(s.agentToken, 200000)
	s.createProperty(s.agentToken, 600000)

	w := s.do(http.MethodGet, "/api/properties?city=Lisbon&maxPrice=300000", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	page := decode[models.PropertyPage](t, w)
	require.Equal(t, int64(1), page.Total)
	assert.Equal(t, cheap.ID, page.Items[0].ID)

	fav := "/api/properties/" + itoa(cheap.ID) + "/favorite"
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodPost, fav, "", nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(http.MethodPost, fav, s.buyerToken, nil).Code)
	w = s.do(http.MethodGet, "/api/favorites", s.buyerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Favorite](t, w), 1)

	inquiry := "/api/properties/" + itoa(cheap.ID) + "/inquiries"
	w = s.do(http.MethodPost, inquiry, "", map[string]any{"name": "Rita", "email": "rita@mail.test", "message": "Still available?"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"status":"NEW"`)

	w = s.do(http.MethodPost, inquiry, "", map[string]any{"name": "Rita"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/agency-crm/leads", s.agentToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	agencyLeads := decode[leads.Page](t, w)
	require.Equal(t, int64(1), agencyLeads.Total)
	lead := agencyLeads.Items[0]
	assert.Equal(t, models.LeadSourceWebsite, lead.Source)
	require.NotNil(t, lead.AssigneeID)
	assert.Equal(t, s.member.ID, *lead.AssigneeID)

	w = s.do(http.MethodGet, "/api/agency-crm/leads", s.rivalToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(0), decode[leads.Page](t, w).Total)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/api/agency-crm/leads/"+itoa(lead.ID), s.rivalToken, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/agency-crm/leads", s.buyerToken, nil).Code)
}

func TestDealPipelineFlow(t *testing.T) {
	s := newTestServer(t, nil)
	property := s.createProperty(s.agentToken, 250000)

	w := s.do(http.MethodPost, "/api/agency-crm/deals", s.agentToken, map[string]any{
		"title":       "Sale of T2",
		"value":       250000,
		"property_id": property.ID,
		"agent_id":    s.member.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	deal := decode[models.Deal](t, w)
	assert.Equal(t, models.StageNew, deal.Stage)
	assert.Equal(t, 3.0, deal.CommissionRate)

	path := "/api/agency-crm/deals/" + itoa(deal.ID)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, path, s.rivalToken, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPatch, path, s.agentToken, map[string]any{"stage": "LIMBO"}).Code)

	w = s.do(http.MethodPatch, path, s.agentToken, map[string]any{"stage": models.StageClosedWon})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	won := decode[models.Deal](t, w)
	assert.Equal(t, models.StageClosedWon, won.Stage)
	assert.NotNil(t, won.ClosedAt)

	w = s.do(http.MethodGet, "/api/agency-crm/deals/pipeline", s.agentToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	board := decode[pipeline.Board](t, w)
	require.NotEmpty(t, board.Columns)
	for _, col := range board.Columns {
		if col.Stage == models.StageClosedWon {
			assert.Equal(t, 1, col.Count)
		}
	}

	w = s.do(http.MethodGet, "/api/agency-crm/commissions?status=PENDING", s.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	commissions := decode[[]models.Commission](t, w)
	require.Len(t, commissions, 1)
	assert.InDelta(t, 7500.0, commissions[0].Amount, 0.001)

	w = s.do(http.MethodPost, "/api/agency-crm/commissions/"+itoa(commissions[0].ID)+"/pay", s.adminToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"status":"PAID"`)
}

func TestAnalyticsDaysValidation(t *testing.T) {
	s := newTestServer(t, nil)

	tests := []struct {
		query  string
		status int
	}{
		{"", http.StatusOK},
		{"?days=7", http.StatusOK},
		{"?days=365", http.StatusOK},
		{"?days=0", http.StatusBadRequest},
		{"?days=366", http.StatusBadRequest},
		{"?days=week", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run("days"+tt.query, func(t *testing.T) {
			w := s.do(http.MethodGet, "/api/analytics/agency/overview"+tt.query, s.agentToken, nil)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/analytics/agency/agents", s.agentToken, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/analytics/agency/agents", s.adminToken, nil).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, "/api/analytics/developer/overview", s.agentToken, nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/analytics/market?city=Lisbon", "", nil).Code)
}

func TestConversations(t *testing.T) {
	s := newTestServer(t, nil)
	start := map[string]any{"participant_ids": []uint{s.agent.ID}, "subject": "Viewing", "body": "Can I visit on Monday?"}

	w := s.do(http.MethodPost, "/api/conversations", s.buyerToken, start)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	conv := decode[models.Conversation](t, w)

	w = s.do(http.MethodPost, "/api/conversations", s.buyerToken, start)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, conv.ID, decode[models.Conversation](t, w).ID)

	messages := "/api/conversations/" + itoa(conv.ID) + "/messages"
	w = s.do(http.MethodPost, messages, s.agentToken, map[string]string{"body": "Monday at 10 works"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, messages, s.agentToken, map[string]string{"body": "  "}).Code)
	assert.Equal(t, http.StatusForbidden, s.do(http.MethodGet, messages, s.rivalToken, nil).Code)

	w = s.do(http.MethodGet, "/api/conversations", s.buyerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	inbox := decode[[]models.ConversationSummary](t, w)
	require.Len(t, inbox, 1)
	assert.Equal(t, int64(1), inbox[0].UnreadCount)

	assert.Equal(t, http.StatusNoContent, s.do(http.MethodPost, "/api/conversations/"+itoa(conv.ID)+"/read", s.buyerToken, nil).Code)
	w = s.do(http.MethodGet, "/api/conversations", s.buyerToken, nil)
	assert.Equal(t, int64(0), decode[[]models.ConversationSummary](t, w)[0].UnreadCount)

	w = s.do(http.MethodGet, messages, s.buyerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]models.Message](t, w), 3)
}

func TestWebsocketRequiresToken(t *testing.T) {
	s := newTestServer(t, nil)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/messages", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/messages?token=forged", "", nil).Code)
}

func TestImportListingsQueuesBatches(t *testing.T) {
	s := newTestServer(t, nil)
	feed := `<div class="listing" data-ref="R1" data-listing="sale"><h2 class="title">One</h2><span class="type">house</span><span class="price">100000</span><span class="city">Lisbon</span></div>
<div class="listing" data-ref="R2" data-listing="rent"><h2 class="title">Two</h2><span class="type">apartment</span><span class="price">900</span><span class="city">Lisbon</span></div>
<div class="listing" data-ref="R3" data-listing="sale"><h2 class="title">Three</h2><span class="type">land</span><span class="price">50000</span><span class="city">Sintra</span></div>
<div class="listing" data-listing="sale"><h2 class="title">No ref</h2></div>`

	w := s.do(http.MethodPost, "/api/agency-crm/imports", s.agentToken, feed)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	res := decode[importer.Result](t, w)
	assert.Equal(t, 3, res.Parsed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 3, res.Queued)
	assert.Equal(t, 2, s.queue.Len())

	assert.Equal(t, http.StatusForbidden, s.do(http.MethodPost, "/api/agency-crm/imports", s.buyerToken, feed).Code)
}

func TestRateLimiterRejectsBursts(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s := newTestServer(t, NewRateLimiter(1, 2, logger))

	for i := 0; i < 2; i++ {
		assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/agencies", "", nil).Code)
	}
	w := s.do(http.MethodGet, "/api/agencies", "", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// authenticated callers get their own bucket
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/agencies", s.buyerToken, nil).Code)
	// health checks bypass the limiter
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/healthz", "", nil).Code)
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
