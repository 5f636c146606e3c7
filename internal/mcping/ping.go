package mcping

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net"
	"strconv"
	"time"
)

// ProtocolVersion is sent in the handshake.
const ProtocolVersion = 47

// DefaultTimeout bounds both connect and read.
const DefaultTimeout = 1500 * time.Millisecond

// maxStatusBytes caps the declared JSON length. Real responses with a
// favicon stay well below this.
const maxStatusBytes = 1 << 21

var (
	ErrUnexpectedPacket = errors.New("unexpected packet id")
	ErrBadLength        = errors.New("invalid length")
)

// Response is the parsed status reply.
type Response struct {
	PlayersOnline *int
	PlayersMax    *int
	Version       *string
	LatencyMS     float64
	Raw           json.RawMessage
}

type statusJSON struct {
	Players *struct {
		Online *int `json:"online"`
		Max    *int `json:"max"`
	} `json:"players"`
	Version *struct {
		Name *string `json:"name"`
	} `json:"version"`
}

// Handshake builds the framed handshake packet (next state: status).
func Handshake(host string, port uint16) []byte {
	payload := []byte{0x00}
	payload = AppendVarInt(payload, ProtocolVersion)
	payload = AppendVarInt(payload, int32(len(host)))
	payload = append(payload, host...)
	payload = binary.BigEndian.AppendUint16(payload, port)
	payload = AppendVarInt(payload, 1)

	framed := AppendVarInt(make([]byte, 0, len(payload)+5), int32(len(payload)))
	return append(framed, payload...)
}

// statusRequest is the framed empty status request.
var statusRequest = []byte{0x01, 0x00}

// Ping runs a status exchange against host:port. The connection is always closed.
func Ping(ctx context.Context, host string, port int, timeout time.Duration) (*Response, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if port <= 0 || port > math.MaxUint16 {
		return nil, fmt.Errorf("invalid port %d", port)
	}

	started := time.Now()
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	if _, err := conn.Write(Handshake(host, uint16(port))); err != nil {
		return nil, fmt.Errorf("write handshake: %w", err)
	}
	if _, err := conn.Write(statusRequest); err != nil {
		return nil, fmt.Errorf("write status request: %w", err)
	}

	raw, err := ReadStatus(bufio.NewReader(conn))
	if err != nil {
		return nil, err
	}

	resp, err := ParseStatus(raw)
	if err != nil {
		return nil, err
	}
	resp.LatencyMS = math.Round(float64(time.Since(started).Microseconds())/100) / 10
	return resp, nil
}

// ReadStatus reads one status response packet and returns its JSON body.
func ReadStatus(r *bufio.Reader) ([]byte, error) {
	if _, err := ReadVarInt(r); err != nil {
		return nil, fmt.Errorf("read packet length: %w", err)
	}
	id, err := ReadVarInt(r)
	if err != nil {
		return nil, fmt.Errorf("read packet id: %w", err)
	}
	if id != 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnexpectedPacket, id)
	}
	n, err := ReadVarInt(r)
	if err != nil {
		return nil, fmt.Errorf("read json length: %w", err)
	}
	if n <= 0 || n > maxStatusBytes {
		return nil, fmt.Errorf("%w: %d", ErrBadLength, n)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read json body: %w", err)
	}
	return body, nil
}

// ParseStatus extracts player counts and version from a status body.
// Missing fields stay nil.
func ParseStatus(raw []byte) (*Response, error) {
	var st statusJSON
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("decode status: %w", err)
	}
	resp := &Response{Raw: json.RawMessage(raw)}
	if st.Players != nil {
		resp.PlayersOnline = st.Players.Online
		resp.PlayersMax = st.Players.Max
	}
	if st.Version != nil {
		resp.Version = st.Version.Name
	}
	return resp, nil
}
