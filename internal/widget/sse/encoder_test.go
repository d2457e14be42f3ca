package sse

import (
	"bytes"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRoundTrip(t *testing.T) {
	cases := map[string][]Event{
		"completed": {
			Start{ID: "r1", Model: "ark", CreatedAt: 1729300000},
			Delta{Content: "He"},
			Delta{Content: "llo"},
			Delta{Content: ""},
			End{},
		},
		"errored": {
			Start{ID: "r2", Model: "ark"},
			Delta{Content: "partial"},
			Error{Message: "model overloaded"},
		},
	}

	for name, events := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, events, decodeAll(t, bytes.NewReader(encodeAll(t, events...))))
		})
	}
}

func TestEncoderWireFormat(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf)
	require.NoError(t, enc.Encode(Delta{Content: "hi"}))
	require.NoError(t, enc.Comment("ping"))
	require.NoError(t, enc.Encode(End{}))

	require.Equal(t, "event: delta\ndata: {\"content\":\"hi\"}\n\n: ping\n\nevent: end\ndata: {}\n\n", buf.String())
}

func TestEncoderFlushesResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, NewEncoder(rec).Encode(Start{ID: "a"}))
	require.True(t, rec.Flushed)
}

func TestIsTerminal(t *testing.T) {
	require.True(t, IsTerminal(End{}))
	require.True(t, IsTerminal(Error{Message: "x"}))
	require.False(t, IsTerminal(Delta{}))
	require.False(t, IsTerminal(Start{}))
}
