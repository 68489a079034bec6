package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"firestige.xyz/sle/internal/config"
	"firestige.xyz/sle/internal/core"
)

const validConfig = `
sle:
  provider:
    address: 10.0.0.5:5100
    responder_port: TMPORT
  user:
    initiator_id: LSE
  rcf:
    service_instance_id: sagr=1.spack=VST-PASS0001.rsl-fg=1.rcf=onlc1
    spacecraft_id: 42
    virtual_channel: 3
  sinks:
    - type: udp
      address: localhost:3076
`

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestRunValidate_Valid(t *testing.T) {
	var buf bytes.Buffer
	err := runValidate(writeFile(t, validConfig), false, &buf)

	require.NoError(t, err)
	assert.Equal(t,
		"VALID: service instance sagr=1.spack=VST-PASS0001.rsl-fg=1.rcf=onlc1 on 10.0.0.5:5100, 1 sink(s)\n",
		buf.String())
}

func TestRunValidate_PrintRendersDefaults(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, runValidate(writeFile(t, validConfig), true, &buf))

	out := buf.String()
	idx := bytes.IndexByte(buf.Bytes(), '\n')
	require.Positive(t, idx)

	var root struct {
		SLE config.Config `yaml:"sle"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(out[idx+1:]), &root))
	assert.Equal(t, "10.0.0.5:5100", root.SLE.Provider.Address)
	assert.Equal(t, 25*time.Second, root.SLE.Provider.HeartbeatInterval)
	assert.Equal(t, "none", root.SLE.User.AuthLevel)
	assert.Equal(t, 3, *root.SLE.RCF.VirtualChannel)
	assert.Equal(t, ":9091", root.SLE.Metrics.Listen)
}

func TestRunValidate_Invalid(t *testing.T) {
	path := writeFile(t, `
sle:
  provider:
    address: 10.0.0.5:5100
  rcf:
    service_instance_id: sagr=1.spack=VST-PASS0001.rsl-fg=1.rcf=onlc1
    status_report:
      type: periodically
      cycle: 1
`)
	var buf bytes.Buffer
	err := runValidate(path, false, &buf)

	assert.ErrorIs(t, err, core.ErrConfigInvalid)
	assert.Empty(t, buf.String())
}
