package mcping

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarIntRoundTrip(t *testing.T) {
	cases := map[int32][]byte{
		0:     {0x00},
		1:     {0x01},
		127:   {0x7f},
		128:   {0x80, 0x01},
		255:   {0xff, 0x01},
		25565: {0xdd, 0xc7, 0x01},
		-1:    {0xff, 0xff, 0xff, 0xff, 0x0f},
	}
	for v, want := range cases {
		got := AppendVarInt(nil, v)
		assert.Equal(t, want, got, "encode %d", v)

		back, err := ReadVarInt(bytes.NewReader(got))
		require.NoError(t, err)
		assert.Equal(t, v, back)
	}
}

func TestReadVarIntTooLong(t *testing.T) {
	_, err := ReadVarInt(bytes.NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}))
	assert.ErrorIs(t, err, ErrVarIntTooBig)

	_, err = ReadVarInt(bytes.NewReader([]byte{0x80}))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestHandshakeLayout(t *testing.T) {
	got := Handshake("mc.example.org", 25565)

	r := bytes.NewReader(got)
	length, err := ReadVarInt(r)
	require.NoError(t, err)
	assert.Equal(t, int(length), r.Len())

	id, _ := r.ReadByte()
	assert.Equal(t, byte(0x00), id)
	proto, _ := ReadVarInt(r)
	assert.Equal(t, int32(47), proto)
	hostLen, _ := ReadVarInt(r)
	host := make([]byte, hostLen)
	_, _ = io.ReadFull(r, host)
	assert.Equal(t, "mc.example.org", string(host))
	var port uint16
	require.NoError(t, binary.Read(r, binary.BigEndian, &port))
	assert.Equal(t, uint16(25565), port)
	next, _ := ReadVarInt(r)
	assert.Equal(t, int32(1), next)
	assert.Zero(t, r.Len())
}

func statusPacket(id int32, body []byte) []byte {
	payload := AppendVarInt(nil, id)
	payload = AppendVarInt(payload, int32(len(body)))
	payload = append(payload, body...)
	return append(AppendVarInt(nil, int32(len(payload))), payload...)
}

func TestReadStatus(t *testing.T) {
	body := []byte(`{"version":{"name":"1.20.4"},"players":{"online":3,"max":20}}`)

	got, err := ReadStatus(bufio.NewReader(bytes.NewReader(statusPacket(0, body))))
	require.NoError(t, err)
	assert.Equal(t, body, got)

	_, err = ReadStatus(bufio.NewReader(bytes.NewReader(statusPacket(1, body))))
	assert.ErrorIs(t, err, ErrUnexpectedPacket)

	truncated := statusPacket(0, body)
	_, err = ReadStatus(bufio.NewReader(bytes.NewReader(truncated[:len(truncated)-5])))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestParseStatusMissingFields(t *testing.T) {
	resp, err := ParseStatus([]byte(`{"description":"hi"}`))
	require.NoError(t, err)
	assert.Nil(t, resp.PlayersOnline)
	assert.Nil(t, resp.Version)

	_, err = ParseStatus([]byte(`not json`))
	assert.Error(t, err)
}

// serveOnce accepts one connection and replies with reply after reading the
// handshake and status request.
func serveOnce(t *testing.T, reply []byte) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		n, err := ReadVarInt(r)
		if err != nil {
			return
		}
		if _, err := io.CopyN(io.Discard, r, int64(n)); err != nil {
			return
		}
		req := make([]byte, 2)
		if _, err := io.ReadFull(r, req); err != nil {
			return
		}
		if reply != nil {
			_, _ = conn.Write(reply)
		}
		time.Sleep(50 * time.Millisecond)
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func TestPingAgainstFakeServer(t *testing.T) {
	body := []byte(`{"version":{"name":"Paper 1.20.4"},"players":{"online":7,"max":50}}`)
	host, port := serveOnce(t, statusPacket(0, body))

	resp, err := Ping(context.Background(), host, port, time.Second)
	require.NoError(t, err)
	require.NotNil(t, resp.PlayersOnline)
	assert.Equal(t, 7, *resp.PlayersOnline)
	assert.Equal(t, 50, *resp.PlayersMax)
	assert.Equal(t, "Paper 1.20.4", *resp.Version)
	assert.GreaterOrEqual(t, resp.LatencyMS, 0.0)
	assert.JSONEq(t, string(body), string(resp.Raw))
}

func TestPingServerClosesEarly(t *testing.T) {
	host, port := serveOnce(t, nil)

	_, err := Ping(context.Background(), host, port, 500*time.Millisecond)
	assert.Error(t, err)
}

func TestPingRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	_, err = Ping(context.Background(), "127.0.0.1", port, 300*time.Millisecond)
	require.Error(t, err)
	var opErr *net.OpError
	assert.True(t, errors.As(err, &opErr))
}
