// Package stream pushes extracted chunk meshes to websocket observers.
package stream

// Version is the observer protocol version.
const Version = "0.1"

// Client -> Server. First message on a connection, can be re-sent to change the
// LOD filter.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	MaxLod          *int   `json:"max_lod,omitempty"` // nil means every LOD
	Replay          bool   `json:"replay,omitempty"`  // send the cached meshes first
}

// Server -> Client. Each MESH text message is followed by one binary message of
// little endian float32 pos.xyz+normal.xyz per vertex, unindexed. A mesh with
// zero vertices has no binary message and clears the chunk LOD.
type MeshMsg struct {
	Type      string     `json:"type"`
	Chunk     [3]int     `json:"chunk"`
	Lod       int        `json:"lod"`
	Origin    [3]float32 `json:"origin"`
	Vertices  int        `json:"vertices"`
	Triangles int        `json:"triangles"`
}
