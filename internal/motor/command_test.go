package motor

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopic(t *testing.T) {
	topic, err := Topic("onix", SuffixMotorCmd)
	require.NoError(t, err)
	assert.Equal(t, "dmc_robo/onix/motor/cmd", topic)

	_, err = Topic("", SuffixMotorCmd)
	assert.Error(t, err)

	_, err = Topic("a/b", SuffixMotorCmd)
	assert.Error(t, err)
}

func TestCommandWireNames(t *testing.T) {
	data, err := Command{VL: 0.25, VR: -0.25, Unit: "m_s", DeadmanMS: 300, Seq: 7, TsMS: 1700000000000}.Marshal()
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	for _, key := range []string{"v_l", "v_r", "unit", "deadman_ms", "seq", "ts_ms"} {
		assert.Contains(t, m, key)
	}
	assert.Equal(t, 0.25, m["v_l"])
	assert.Equal(t, "m_s", m["unit"])
}

func TestCommandZero(t *testing.T) {
	assert.True(t, Command{Unit: "m_s", Seq: 3}.Zero())
	assert.False(t, Command{VL: 0.001}.Zero())
	assert.False(t, Command{VR: -0.001}.Zero())
}
