package main

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpmiddleware "github.com/wolfman30/vocal-booking/internal/http/middleware"
)

func TestIssue(t *testing.T) {
	_, err := issue("", []string{"owner"})
	assert.Error(t, err)
	_, err = issue("secret", nil)
	assert.Error(t, err)
	_, err = issue("secret", []string{"owner", "admin", "soon"})
	assert.Error(t, err)

	token, err := issue("secret", []string{"owner", "admin", "1h"})
	require.NoError(t, err)

	var claims httpmiddleware.AdminClaims
	_, err = jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) { return []byte("secret"), nil })
	require.NoError(t, err)
	assert.Equal(t, "owner", claims.Subject)
	assert.Equal(t, "admin", claims.Role)
}
