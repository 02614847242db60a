package tricount

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseError(t *testing.T) {
	err := parseError(http.StatusBadRequest, []byte(`{"Error":[{"error_description":"bad thing"}]}`))
	assert.EqualError(t, err, "tricount API error (status 400): bad thing")

	err = parseError(http.StatusBadGateway, []byte("upstream down\n"))
	assert.EqualError(t, err, "tricount API error (status 502): upstream down")
}
