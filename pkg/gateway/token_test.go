package gateway_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/psaab/gwcli/pkg/gateway"
	"github.com/psaab/gwcli/pkg/gateway/gatewaytest"
)

func TestParseToken(t *testing.T) {
	srv := gatewaytest.New(t)

	info, err := gateway.ParseToken(srv.Token("me@example.com"))
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", info.Subject)
	assert.Equal(t, "gatewaytest", info.Issuer)
	assert.False(t, info.Expired(time.Now()))
	assert.True(t, info.Expired(info.ExpiresAt.Add(time.Second)))

	info, err = gateway.ParseToken(srv.ExpiredToken("me@example.com"))
	require.NoError(t, err)
	assert.True(t, info.Expired(time.Now()))
}

func TestParseTokenGarbage(t *testing.T) {
	_, err := gateway.ParseToken("not-a-jwt")
	assert.Error(t, err)
}

func TestTokenWithoutExpiryNeverExpires(t *testing.T) {
	info := &gateway.TokenInfo{}
	assert.False(t, info.Expired(time.Now()))
}
