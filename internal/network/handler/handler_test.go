package handler

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"refnet/internal/network/codes"
	"refnet/internal/network/handler/mocks"
	"refnet/internal/network/models"
	"refnet/internal/network/projection"
	dErrors "refnet/pkg/domain-errors"
	"refnet/pkg/requestcontext"
	"refnet/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	service *mocks.MockService
	router  chi.Router
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.service = mocks.NewMockService(s.ctrl)
	h := New(s.service, nil, nil)
	s.router = chi.NewRouter()
	h.Register(s.router)
	h.RegisterAdmin(s.router)
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *HandlerSuite) do(method, target, body string) *httptest.ResponseRecorder {
	return testutil.DoRequest(s.router, testutil.NewJSONRequest(method, target, body))
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder, v any) {
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(v))
}

func (s *HandlerSuite) TestJoinCreated() {
	id := models.NodeID{1}
	s.service.EXPECT().Join(gomock.Any(), "u1", "tlabcdef").
		Return(&models.JoinResult{NodeID: id, Code: "TLXYZ234", RankName: "Member"}, nil)

	rec := s.do(http.MethodPost, "/v1/joins", `{"external_key":" u1 ","referrer_code":"tlabcdef"}`)
	s.Equal(http.StatusCreated, rec.Code)

	var got models.JoinResult
	s.decode(rec, &got)
	s.Equal(id, got.NodeID)
	s.Equal(models.Code("TLXYZ234"), got.Code)
}

func (s *HandlerSuite) TestJoinValidation() {
	s.Run("missing external key", func() {
		rec := s.do(http.MethodPost, "/v1/joins", `{"referrer_code":"TLABCDEF"}`)
		testutil.AssertStatusAndError(s.T(), rec, http.StatusBadRequest, string(dErrors.CodeValidation))
	})
	s.Run("unknown field", func() {
		rec := s.do(http.MethodPost, "/v1/joins", `{"external_key":"u1","sponsor":"x"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
	s.Run("malformed body", func() {
		rec := s.do(http.MethodPost, "/v1/joins", `{`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestJoinErrorStatuses() {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"duplicate", dErrors.Wrap(models.ErrDuplicateExternalKey, dErrors.CodeConflict, "already a member"), http.StatusConflict},
		{"exhausted", dErrors.Wrap(models.ErrCodeExhausted, dErrors.CodeUnavailable, "retry later"), http.StatusServiceUnavailable},
		{"uncoded", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.service.EXPECT().Join(gomock.Any(), "u1", "").Return(nil, tc.err)

			rec := s.do(http.MethodPost, "/v1/joins", `{"external_key":"u1"}`)
			s.Equal(tc.status, rec.Code)
			if tc.status == http.StatusServiceUnavailable {
				s.NotEmpty(rec.Header().Get("Retry-After"))
			}
		})
	}
}

func (s *HandlerSuite) TestStatus() {
	id := models.NodeID{2}
	next := 2
	s.service.EXPECT().GetStatus(gomock.Any(), id).Return(&models.Status{
		NodeID: id, Rank: 1, RankName: "Volunteer", NextRank: &next, ProgressToNext: 0.1,
	}, nil)

	rec := s.do(http.MethodGet, "/v1/nodes/"+id.String()+"/status", "")
	s.Equal(http.StatusOK, rec.Code)

	var got models.Status
	s.decode(rec, &got)
	s.Equal("Volunteer", got.RankName)
	s.Require().NotNil(got.NextRank)
	s.Equal(2, *got.NextRank)
}

func (s *HandlerSuite) TestStatusInvalidID() {
	rec := s.do(http.MethodGet, "/v1/nodes/not-a-uuid/status", "")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestStatusNotFound() {
	id := models.NodeID{3}
	s.service.EXPECT().GetStatus(gomock.Any(), id).
		Return(nil, dErrors.Wrap(models.ErrNodeNotFound, dErrors.CodeNotFound, "node not found"))

	rec := s.do(http.MethodGet, "/v1/nodes/"+id.String()+"/status", "")
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestResolveCode() {
	id := models.NodeID{4}
	s.service.EXPECT().ResolveCode(gomock.Any(), "tlabcdef").Return(id, nil)

	rec := s.do(http.MethodGet, "/v1/codes/tlabcdef", "")
	s.Equal(http.StatusOK, rec.Code)

	var got ResolveResponse
	s.decode(rec, &got)
	s.Equal(models.Code("TLABCDEF"), got.Code)
	s.Equal(id, got.NodeID)
}

func (s *HandlerSuite) TestAudit() {
	s.service.EXPECT().AuditAndRepair(gomock.Any(), projection.AuditOptions{RepairCounters: true}).
		Return(projection.Report{Scanned: 12, Unreachable: []models.Code{"TLABCDEF"}}, nil)

	rec := s.do(http.MethodPost, "/admin/audit?repair_counters=true", "")
	s.Equal(http.StatusOK, rec.Code)

	var got AuditResponse
	s.decode(rec, &got)
	s.False(got.Clean)
	s.Equal(12, got.Scanned)
	s.Equal([]models.Code{"TLABCDEF"}, got.Unreachable)
}

func (s *HandlerSuite) TestAuditRejectsBadFlag() {
	rec := s.do(http.MethodPost, "/admin/audit?repair_counters=maybe", "")
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestCodeCapacity() {
	s.service.EXPECT().CodeCapacity(gomock.Any()).Return(codes.CapacityReport{Prefix: "TL", Length: 6, Population: 5}, nil)

	rec := s.do(http.MethodGet, "/admin/codes/capacity", "")
	s.Equal(http.StatusOK, rec.Code)

	var got codes.CapacityReport
	s.decode(rec, &got)
	s.Equal(int64(5), got.Population)
}

func (s *HandlerSuite) TestJoinCarriesRequestID() {
	s.service.EXPECT().Join(gomock.Any(), "u1", "").
		DoAndReturn(func(ctx context.Context, _, _ string) (*models.JoinResult, error) {
			s.Equal("req-42", requestcontext.RequestID(ctx))
			return &models.JoinResult{NodeID: models.NodeID{9}, Code: "TLABCDEF"}, nil
		})

	req := testutil.WithRequestID(testutil.NewJSONRequest(http.MethodPost, "/v1/joins", `{"external_key":"u1"}`), "req-42")
	rec := testutil.DoRequest(s.router, req)
	s.Equal(http.StatusCreated, rec.Code)

	got := testutil.UnmarshalResponse[models.JoinResult](s.T(), rec)
	s.Equal(models.Code("TLABCDEF"), got.Code)
}

func (s *HandlerSuite) TestDuplicateJoinBody() {
	s.service.EXPECT().Join(gomock.Any(), "u1", "").
		Return(nil, dErrors.Wrap(models.ErrDuplicateExternalKey, dErrors.CodeConflict, "already a member"))

	rec := s.do(http.MethodPost, "/v1/joins", `{"external_key":"u1"}`)
	body := testutil.UnmarshalResponse[map[string]string](s.T(), rec)
	s.Equal("already a member", (*body)["error_description"])
}
