package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thereayou/bizdesk/internal/apperror"
	"github.com/thereayou/bizdesk/internal/query"
)

func parse(t *testing.T, rawQuery string, schema FilterSchema) (*ListParams, error) {
	t.Helper()
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/x?"+rawQuery, nil)
	return ParseQueryParams(c, schema)
}

func TestParseQueryParamsDefaultsAndClamps(t *testing.T) {
	p, err := parse(t, "", FilterSchema{})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 10, p.Limit)
	assert.Equal(t, query.Desc, p.OrderDirection)
	assert.Empty(t, p.Filters)

	p, err = parse(t, "page=0&limit=500&own=true&search=%20acme%20", FilterSchema{})
	require.NoError(t, err)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, query.MaxLimit, p.Limit)
	assert.True(t, p.Own)
	assert.Equal(t, "acme", p.Search)
}

func TestParseQueryParamsFilters(t *testing.T) {
	schema := FiltersFor("service-requests")
	require.NotEmpty(t, schema)

	p, err := parse(t, "priority=HIGH,URGENT&statusId=3&labels=1,2", schema)
	require.NoError(t, err)
	assert.Equal(t, query.Tree{"in": []any{"HIGH", "URGENT"}}, p.Filters["priority"])
	assert.Equal(t, query.Tree{"equals": uint(3)}, p.Filters["statusId"])
	assert.Equal(t, query.Tree{"has": []any{uint(1), uint(2)}}, p.Filters["labels"])
}

func TestParseQueryParamsOperatorsAndDates(t *testing.T) {
	p, err := parse(t, "amount[gte]=10&amount[lt]=99.5&paidAt[gte]=2026-01-02&startDate=2026-01-01T00:00:00Z", FiltersFor("payments"))
	require.NoError(t, err)
	assert.Equal(t, query.Tree{"gte": 10.0, "lt": 99.5}, p.Filters["amount"])
	assert.Equal(t, query.Tree{"gte": time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)}, p.Filters["paidAt"])
	require.NotNil(t, p.StartDate)
	assert.Equal(t, 2026, p.StartDate.Year())
	assert.Nil(t, p.EndDate)
}

func TestBareDateUpperBoundsCoverWholeDay(t *testing.T) {
	lastNano := time.Date(2026, 1, 1, 23, 59, 59, 999999999, time.UTC)

	p, err := parse(t, "startDate=2026-01-01&endDate=2026-01-01&paidAt[lte]=2026-01-01", FiltersFor("payments"))
	require.NoError(t, err)
	require.NotNil(t, p.StartDate)
	require.NotNil(t, p.EndDate)
	assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), *p.StartDate)
	assert.Equal(t, lastNano, *p.EndDate)
	assert.Equal(t, query.Tree{"lte": lastNano}, p.Filters["paidAt"])

	p, err = parse(t, "endDate=2026-01-01T12:00:00Z&paidAt[gt]=2026-01-01", FiltersFor("payments"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC), *p.EndDate)
	assert.Equal(t, query.Tree{"gt": lastNano}, p.Filters["paidAt"])
}

func TestParseQueryParamsErrors(t *testing.T) {
	schema := FiltersFor("payments")
	tests := map[string]string{
		"unknown field":      "bogus=1",
		"bad operator":       "method[gte]=CARD",
		"bad enum":           "status=LOST",
		"bad number":         "amount=ten",
		"bad id":             "categoryId=x",
		"bad date":           "paidAt=soon",
		"bad include":        "include=%7Bbroken",
		"bad key":            "amount[gte=1",
		"many values for lt": "amount[lt]=1,2",
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parse(t, raw, schema)
			require.Error(t, err)
			appErr, ok := apperror.As(err)
			require.True(t, ok)
			assert.Equal(t, http.StatusBadRequest, appErr.Status)
		})
	}
}

func TestEveryModuleHasFilters(t *testing.T) {
	for _, m := range []string{
		"payments", "payment-categories", "cheques", "reminders", "tickets",
		"service-types", "request-statuses", "labels", "service-requests",
		"invoices", "documents",
	} {
		assert.NotEmpty(t, FiltersFor(m), m)
	}
	assert.Empty(t, FiltersFor("nope"))
}
