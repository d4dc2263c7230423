package carbonfwd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSTypeFromString(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"gauge", "COUNTER", "Derive", "absolute"} {
		dsType, err := DSTypeFromString(name)
		require.NoError(t, err, name)
		assert.NotEqual(t, DSType(0), dsType)
	}
	_, err := DSTypeFromString("histogram")
	require.Error(t, err)
}

func TestCheckRange(t *testing.T) {
	t.Parallel()
	ds := DataSource{Name: "value", Type: GAUGE, Min: 0, Max: 100}
	assert.True(t, ds.CheckRange(0))
	assert.True(t, ds.CheckRange(100))
	assert.False(t, ds.CheckRange(-1))
	assert.False(t, ds.CheckRange(101))

	open := DataSource{Name: "value", Type: GAUGE, Min: Unbounded(), Max: Unbounded()}
	assert.True(t, open.CheckRange(-1e18))
	assert.True(t, open.CheckRange(1e18))
}

func TestValueListIdentifiers(t *testing.T) {
	t.Parallel()
	vl := &ValueList{
		Host:           "h1",
		Plugin:         "cpu",
		PluginInstance: "0",
		Type:           "cpu",
		TypeInstance:   "idle",
		Sources:        []DataSource{{Name: "value", Type: DERIVE}},
	}
	assert.Equal(t, "cpu-0", vl.PluginID())
	assert.Equal(t, "cpu-idle", vl.TypeID())
	assert.Equal(t, "cpu-0.cpu-idle.value", vl.StateKey(0))

	bare := &ValueList{Plugin: "load", Type: "load", Sources: []DataSource{{Name: "shortterm"}}}
	assert.Equal(t, "load", bare.PluginID())
	assert.Equal(t, "load", bare.TypeID())
	assert.Equal(t, "load.load.shortterm", bare.StateKey(0))
}
