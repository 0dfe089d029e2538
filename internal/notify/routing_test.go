package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRoutingBytes(t *testing.T) {
	data := []byte(`
default_channel: "#permits"
rules:
  - permit_type: "Hot Work"
    channel: "#hot-work"
  - actions: [reject_permit, reject_permit_extend, reject_permit_closure]
    channel: "#permit-escalations"
`)
	r, err := LoadRoutingBytes(data)
	require.NoError(t, err)

	assert.Equal(t, "#hot-work", r.ChannelFor("Hot Work", "approve_permit"))
	assert.Equal(t, "#permit-escalations", r.ChannelFor("Electrical", "reject_permit"))
	assert.Equal(t, "#permits", r.ChannelFor("Electrical", "approve_permit"))
}

func TestLoadRoutingBytes_EnvExpansion(t *testing.T) {
	t.Setenv("PERMIT_ALERT_CHANNEL", "#site-a-permits")
	data := []byte("default_channel: \"${PERMIT_ALERT_CHANNEL}\"\n")
	r, err := LoadRoutingBytes(data)
	require.NoError(t, err)
	assert.Equal(t, "#site-a-permits", r.DefaultChannel)
}

func TestLoadRoutingBytes_Invalid(t *testing.T) {
	_, err := LoadRoutingBytes([]byte("rules: {not: [valid"))
	assert.Error(t, err)
}

func TestChannelFor_FirstMatchWins(t *testing.T) {
	r := &Routing{
		DefaultChannel: "#permits",
		Rules: []Rule{
			{PermitType: "Hot Work", Actions: []string{"complete"}, Channel: "#closures"},
			{PermitType: "Hot Work", Channel: "#hot-work"},
		},
	}
	assert.Equal(t, "#closures", r.ChannelFor("Hot Work", "complete"))
	assert.Equal(t, "#hot-work", r.ChannelFor("Hot Work", "extend"))
}
