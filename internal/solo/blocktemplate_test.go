package solo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewClientBuildsWithoutError(t *testing.T) {
	c := NewClient(RPCConfig{URL: "http://127.0.0.1:8332", User: "u", Password: "p"})
	require.NotNil(t, c)
	require.NotNil(t, c.rpc)
}
