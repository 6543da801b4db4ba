package stream

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorilla/websocket"

	"terrainbakery/internal/meshing"
	"terrainbakery/internal/world"
)

// corner is the single triangle cutting off corner 0 of a unit cell.
var corner = meshing.Mesh{
	Vertices:  []mgl32.Vec3{{0.4, 0, 0}, {0, 0.4, 0}, {0, 0, 0.4}},
	Triangles: []uint32{0, 2, 1},
}

func newHub(t *testing.T) (*Hub, string) {
	t.Helper()
	h, err := NewHub(8, nil)
	if err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(h.Handler())
	t.Cleanup(srv.Close)
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, subscribe string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := conn.WriteMessage(websocket.TextMessage, []byte(subscribe)); err != nil {
		t.Fatal(err)
	}
	return conn
}

func waitSessions(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Sessions() != n {
		if time.Now().After(deadline) {
			t.Fatalf("sessions = %d, want %d", h.Sessions(), n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func readMesh(t *testing.T, conn *websocket.Conn) (MeshMsg, []float32) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	kind, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if kind != websocket.TextMessage {
		t.Fatalf("got message type %d, want text header", kind)
	}
	var msg MeshMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatal(err)
	}
	if msg.Vertices == 0 {
		return msg, nil
	}
	kind, raw, err = conn.ReadMessage()
	if err != nil {
		t.Fatal(err)
	}
	if kind != websocket.BinaryMessage || len(raw) != 4*msg.Vertices*meshing.VertexStride {
		t.Fatalf("payload type %d len %d for %d vertices", kind, len(raw), msg.Vertices)
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return msg, out
}

func TestPublishReachesSubscriber(t *testing.T) {
	h, url := newHub(t)
	conn := dial(t, url, `{"type":"SUBSCRIBE","protocol_version":"0.1"}`)
	waitSessions(t, h, 1)

	c := world.ChunkCoord{X: 1, Y: -1}
	h.Publish(c, 0, corner, nil)
	msg, verts := readMesh(t, conn)
	if msg.Type != "MESH" || msg.Chunk != c.Array() || msg.Triangles != 1 || msg.Vertices != 3 {
		t.Fatalf("header %+v", msg)
	}
	if verts[0] != 8.4 || verts[1] != -8 {
		t.Fatalf("first vertex %v not offset by chunk origin", verts[:3])
	}

	h.Publish(c, 0, meshing.Mesh{}, nil)
	if msg, _ := readMesh(t, conn); msg.Vertices != 0 {
		t.Fatalf("empty mesh sent %d vertices", msg.Vertices)
	}
}

func TestLodFilterAndReplay(t *testing.T) {
	h, url := newHub(t)
	h.Publish(world.ChunkCoord{}, 0, corner, nil)
	h.Publish(world.ChunkCoord{}, 1, corner, nil)

	conn := dial(t, url, `{"type":"SUBSCRIBE","protocol_version":"0.1","max_lod":0,"replay":true}`)
	msg, _ := readMesh(t, conn)
	if msg.Lod != 0 {
		t.Fatalf("replayed lod %d past the filter", msg.Lod)
	}
	waitSessions(t, h, 1)

	h.Publish(world.ChunkCoord{Z: 2}, 1, corner, nil)
	h.Publish(world.ChunkCoord{Z: 3}, 0, corner, nil)
	if msg, _ := readMesh(t, conn); msg.Chunk != [3]int{0, 0, 3} {
		t.Fatalf("got chunk %v, want only the lod 0 mesh", msg.Chunk)
	}
}

func TestBadSubscribeIsRejected(t *testing.T) {
	h, url := newHub(t)
	for _, sub := range []string{
		`{"type":"HELLO","protocol_version":"0.1"}`,
		`{"type":"SUBSCRIBE","protocol_version":"9"}`,
		`{"type":"SUBSCRIBE","protocol_version":"0.1","max_lod":-1}`,
		`not json`,
	} {
		conn := dial(t, url, sub)
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, _, err := conn.ReadMessage()
		if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
			t.Fatalf("%s: got %v, want policy violation close", sub, err)
		}
	}
	if h.Sessions() != 0 {
		t.Fatalf("%d sessions after rejects", h.Sessions())
	}
}
