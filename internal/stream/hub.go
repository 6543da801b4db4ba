package stream

import (
	_ "embed"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"sync"
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorilla/websocket"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"terrainbakery/internal/meshing"
	"terrainbakery/internal/world"
)

//go:embed schemas/subscribe.schema.json
var subscribeSchema string

// frame is one mesh update: a MESH header plus its optional vertex payload.
type frame struct {
	lod     int
	header  []byte
	payload []byte
}

type meshKey struct {
	chunk world.ChunkCoord
	lod   int
}

type session struct {
	id     string
	out    chan frame
	maxLod atomic.Int32
}

func (s *session) wants(lod int) bool {
	return int32(lod) <= s.maxLod.Load()
}

// Hub fans mesh updates out to subscribed sessions and caches the latest mesh
// of every chunk LOD for late joiners.
type Hub struct {
	size int
	log  *log.Logger

	upgrader  websocket.Upgrader
	subscribe *jsonschema.Schema
	nextID    atomic.Uint64
	dropped   atomic.Uint64

	mu       sync.Mutex
	sessions map[string]*session
	latest   map[meshKey]frame
}

// NewHub builds a hub for chunks of size cells per axis.
func NewHub(size int, logger *log.Logger) (*Hub, error) {
	schema, err := jsonschema.CompileString("subscribe.schema.json", subscribeSchema)
	if err != nil {
		return nil, fmt.Errorf("stream: compile subscribe schema: %w", err)
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Hub{
		size: size,
		log:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
		},
		subscribe: schema,
		sessions:  make(map[string]*session),
		latest:    make(map[meshKey]frame),
	}, nil
}

// Sessions returns the number of subscribed sessions.
func (h *Hub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Dropped returns how many frames were dropped because a session lagged.
func (h *Hub) Dropped() uint64 { return h.dropped.Load() }

// Publish caches a mesh and queues it for every session that wants its LOD.
// It has the signature of world.MeshReadyFunc.
func (h *Hub) Publish(c world.ChunkCoord, lod int, m meshing.Mesh, _ []mgl32.Vec3) {
	f, err := h.encode(c, lod, m)
	if err != nil {
		h.log.Printf("encode %v lod %d: %v", c, lod, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	key := meshKey{chunk: c, lod: lod}
	if m.Empty() {
		delete(h.latest, key)
	} else {
		h.latest[key] = f
	}
	for _, s := range h.sessions {
		if !s.wants(lod) {
			continue
		}
		select {
		case s.out <- f:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) encode(c world.ChunkCoord, lod int, m meshing.Mesh) (frame, error) {
	origin := c.Origin(h.size)
	verts := meshing.Interleave(m, origin)
	header, err := json.Marshal(MeshMsg{
		Type:      "MESH",
		Chunk:     c.Array(),
		Lod:       lod,
		Origin:    [3]float32(origin),
		Vertices:  len(verts) / meshing.VertexStride,
		Triangles: m.TriangleCount(),
	})
	if err != nil {
		return frame{}, err
	}
	f := frame{lod: lod, header: header}
	if len(verts) > 0 {
		f.payload = make([]byte, 4*len(verts))
		for i, v := range verts {
			binary.LittleEndian.PutUint32(f.payload[4*i:], math.Float32bits(v))
		}
	}
	return f, nil
}

// join registers a session and, when asked, queues the cached meshes it wants.
func (h *Hub) join(s *session, replay bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[s.id] = s
	if !replay {
		return
	}
	for _, f := range h.latest {
		if !s.wants(f.lod) {
			continue
		}
		select {
		case s.out <- f:
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) leave(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, id)
}
