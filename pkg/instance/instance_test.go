package instance

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetIDPrefersEnv(t *testing.T) {
	t.Setenv("SHOPCORE_INSTANCE_ID", "api-7")
	assert.Equal(t, "api-7", GetID())
}

func TestGetIDFallsBack(t *testing.T) {
	t.Setenv("SHOPCORE_INSTANCE_ID", "")
	t.Setenv("INSTANCE_ID", "")
	assert.NotEmpty(t, GetID())
}
