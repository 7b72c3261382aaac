package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refnet/internal/network/codes"
	"refnet/internal/network/models"
	"refnet/internal/network/service"
	"refnet/internal/network/store"
)

func TestJoinFlowOverHTTP(t *testing.T) {
	stack, err := service.NewStack(store.NewInMemory(), service.StackConfig{Codes: codes.DefaultConfig()})
	require.NoError(t, err)
	_, err = stack.Service.Bootstrap(context.Background())
	require.NoError(t, err)

	r := chi.NewRouter()
	New(stack.Service, nil, nil).Register(r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	join := func(ext, referrer string) models.JoinResult {
		body := fmt.Sprintf(`{"external_key":%q,"referrer_code":%q}`, ext, referrer)
		resp, err := http.Post(srv.URL+"/v1/joins", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		var res models.JoinResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
		return res
	}

	leader := join("leader", "")
	for i := range 10 {
		join(fmt.Sprintf("m%d", i), strings.ToLower(string(leader.Code)))
	}

	resp, err := http.Get(srv.URL + "/v1/nodes/" + leader.NodeID.String() + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st models.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, int64(10), st.DirectCount)
	assert.Equal(t, "Volunteer", st.RankName)

	dup, err := http.Post(srv.URL+"/v1/joins", "application/json", strings.NewReader(`{"external_key":"leader"}`))
	require.NoError(t, err)
	defer dup.Body.Close()
	assert.Equal(t, http.StatusConflict, dup.StatusCode)
}
