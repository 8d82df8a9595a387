package metrics

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	m := New()
	require.NotNil(t, m.Adds)
	require.NotNil(t, m.Errors)

	m.Adds.Inc()
	m.Errors.WithLabelValues("ADD").Inc()
	m.PayloadBytes.Add(128)

	var buf bytes.Buffer
	require.NoError(t, m.WriteText(&buf))

	out := buf.String()
	require.Contains(t, out, "escrowd_add_total 1")
	require.Contains(t, out, `escrowd_errors_total{opcode="ADD"} 1`)
	require.Contains(t, out, "escrowd_payload_bytes_total 128")
}

func TestWriteTextIncludesHelpLines(t *testing.T) {
	m := New()
	var buf bytes.Buffer
	require.NoError(t, m.WriteText(&buf))
	require.True(t, strings.Contains(buf.String(), "# HELP escrowd_session_duration_seconds"))
}
