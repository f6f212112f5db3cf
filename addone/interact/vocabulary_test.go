package interact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminSequenceSinglePort(t *testing.T) {
	v := Get("default").Vocabulary()
	seq, err := v.AdminSequence([]string{"Gi1/0/5"}, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"configure terminal", "interface Gi1/0/5", "no shutdown"}, seq)

	seq, err = v.AdminSequence([]string{"Gi1/0/5"}, false)
	require.NoError(t, err)
	assert.Equal(t, "shutdown", seq[len(seq)-1])
}

func TestAdminSequenceRange(t *testing.T) {
	v := Get("default").Vocabulary()
	seq, err := v.AdminSequence([]string{"Gi1/0/3", "Gi1/0/1", "Gi1/0/2", "Gi1/0/5"}, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"configure terminal", "interface range Gi1/0/1-3,Gi1/0/5", "shutdown"}, seq)

	_, err = v.AdminSequence(nil, true)
	assert.Error(t, err)
}

func TestAccessVlanSequence(t *testing.T) {
	v := Get("default").Vocabulary()
	seq, err := v.AccessVlanSequence([]string{"Gi1/0/7"}, 20)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"configure terminal", "interface Gi1/0/7", "switchport mode access", "switchport access vlan 20",
	}, seq)

	_, err = v.AccessVlanSequence([]string{"Gi1/0/7"}, 5000)
	assert.Error(t, err)
}

func TestDescriptionSequence(t *testing.T) {
	v := Get("default").Vocabulary()
	seq, err := v.DescriptionSequence("Gi1/0/2", "printer\nroom 4")
	require.NoError(t, err)
	assert.Equal(t, "description printer room 4", seq[2])

	seq, err = v.DescriptionSequence("Gi1/0/2", "  ")
	require.NoError(t, err)
	assert.Equal(t, "no description", seq[2])
}

func TestGetFallsBackToDefault(t *testing.T) {
	assert.Equal(t, "default", Get("unknown_platform").Name())
}
