package pagination

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromRequest(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  Params
	}{
		{"defaults", "", Params{Page: 1, PerPage: 20}},
		{"explicit", "?page=3&per_page=10", Params{Page: 3, PerPage: 10}},
		{"limit alias", "?page=2&limit=5", Params{Page: 2, PerPage: 5}},
		{"per_page wins over limit", "?per_page=7&limit=5", Params{Page: 1, PerPage: 7}},
		{"capped", "?per_page=1000", Params{Page: 1, PerPage: MaxPerPage}},
		{"negative ignored", "?page=-1&per_page=0", Params{Page: 1, PerPage: 20}},
		{"garbage ignored", "?page=abc", Params{Page: 1, PerPage: 20}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/users"+tt.query, nil)
			assert.Equal(t, tt.want, FromRequest(r))
		})
	}
}

func TestParams_Offset(t *testing.T) {
	assert.Equal(t, 0, Params{Page: 1, PerPage: 20}.Offset())
	assert.Equal(t, 40, Params{Page: 3, PerPage: 20}.Offset())
}

func TestNewMeta(t *testing.T) {
	m := NewMeta(45, Params{Page: 2, PerPage: 20})
	assert.Equal(t, 3, m.TotalPages)
	assert.True(t, m.HasNext)
	assert.True(t, m.HasPrev)

	last := NewMeta(45, Params{Page: 3, PerPage: 20})
	assert.False(t, last.HasNext)

	empty := NewMeta(0, DefaultParams())
	assert.Equal(t, 0, empty.TotalPages)
	assert.False(t, empty.HasNext)
	assert.False(t, empty.HasPrev)
}

func TestNewResult_NilItems(t *testing.T) {
	r := NewResult[string](nil, 0, DefaultParams())
	assert.NotNil(t, r.Items)
	assert.Empty(t, r.Items)
}
