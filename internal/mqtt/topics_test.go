package mqtt

import (
	"strings"
	"testing"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/require"

	"github.com/d21d3q/meterbus/internal/config"
)

func TestTopics(t *testing.T) {
	topics := Topics{Prefix: "home/meters/"}
	require.Equal(t, "home/meters/status", topics.Status())

	topic, err := topics.Meter("kitchen")
	require.NoError(t, err)
	require.Equal(t, "home/meters/kitchen", topic)

	topic, err = Topics{}.Meter("kitchen")
	require.NoError(t, err)
	require.Equal(t, "kitchen", topic)

	for _, bad := range []string{"", "a/b", "a+", "#"} {
		_, err := topics.Meter(bad)
		require.ErrorIs(t, err, ErrInvalidTopic, bad)
	}
}

func TestValidatePublish(t *testing.T) {
	require.NoError(t, validatePublish("meterbus/heat", []byte("{}"), 1))
	require.ErrorIs(t, validatePublish("", nil, 0), ErrInvalidTopic)
	require.ErrorIs(t, validatePublish("meterbus/#", nil, 0), ErrInvalidTopic)
	require.ErrorIs(t, validatePublish("meterbus/heat", nil, 3), ErrPublishFailed)
	big := []byte(strings.Repeat("x", maxPayloadSize+1))
	require.ErrorIs(t, validatePublish("meterbus/heat", big, 0), ErrPublishFailed)
}

func TestBuildClientOptions(t *testing.T) {
	opts := buildClientOptions(config.MQTTConfig{
		Broker:   "ssl://broker.local:8883",
		ClientID: "collector",
		Username: "user",
		Password: "secret",
	})
	require.Len(t, opts.Servers, 1)
	require.Equal(t, "broker.local:8883", opts.Servers[0].Host)
	require.Equal(t, "collector", opts.ClientID)
	require.Equal(t, "user", opts.Username)
	require.NotNil(t, opts.TLSConfig)
	require.True(t, opts.AutoReconnect)
}

func TestPublishRequiresConnection(t *testing.T) {
	p := &Publisher{client: pahomqtt.NewClient(pahomqtt.NewClientOptions()), cfg: config.MQTTConfig{TopicPrefix: "meterbus"}}
	err := p.PublishReading("heat", map[string]any{"power_kw": 1.5})
	require.ErrorIs(t, err, ErrNotConnected)
}
