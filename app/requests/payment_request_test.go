package requests

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func getContext(query string) *gin.Context {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest("GET", "/v1/payments?"+query, nil)
	return c
}

func postContext(body string) *gin.Context {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	req := httptest.NewRequest("POST", "/v1/payments", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c
}

func TestValidateCreateIntent(t *testing.T) {
	req, err := ValidateCreateIntent(postContext(`{"media_id":"m1"}`))
	require.NoError(t, err)
	assert.Equal(t, "m1", req.MediaID)

	_, err = ValidateCreateIntent(postContext(`{}`))
	assert.Error(t, err)
}

func TestValidateRefund(t *testing.T) {
	req, err := ValidateRefund(postContext(`{"reason":"the content was never delivered"}`))
	require.NoError(t, err)
	assert.Nil(t, req.Amount)

	req, err = ValidateRefund(postContext(`{"reason":"the content was never delivered","amount":2000}`))
	require.NoError(t, err)
	require.NotNil(t, req.Amount)
	assert.Equal(t, int64(2000), *req.Amount)

	// 原因过短
	_, err = ValidateRefund(postContext(`{"reason":"too short"}`))
	assert.Error(t, err)

	// 金额非正
	_, err = ValidateRefund(postContext(`{"reason":"the content was never delivered","amount":0}`))
	assert.Error(t, err)
}

func TestValidateHistoryDefaults(t *testing.T) {
	req, err := ValidateHistory(getContext(""))
	require.NoError(t, err)
	assert.Equal(t, 1, req.Page)
	assert.Equal(t, 15, req.PerPage)
	assert.Empty(t, req.Status)
	assert.Nil(t, req.StartDate)
}

func TestValidateHistoryParsesFilters(t *testing.T) {
	req, err := ValidateHistory(getContext("status=succeeded&start_date=2026-08-01&end_date=2026-08-31&page=2&per_page=50"))
	require.NoError(t, err)

	assert.Equal(t, "succeeded", req.Status)
	assert.Equal(t, 2, req.Page)
	assert.Equal(t, 50, req.PerPage)
	require.NotNil(t, req.StartDate)
	require.NotNil(t, req.EndDate)
	assert.True(t, req.EndDate.After(*req.StartDate))
}

func TestValidateHistoryRejectsBadInput(t *testing.T) {
	_, err := ValidateHistory(getContext("status=paid"))
	assert.Error(t, err)

	_, err = ValidateHistory(getContext("start_date=08-01-2026"))
	assert.Error(t, err)

	// 结束早于开始
	_, err = ValidateHistory(getContext("start_date=2026-08-31&end_date=2026-08-01"))
	assert.Error(t, err)
}
