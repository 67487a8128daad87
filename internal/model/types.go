package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord summarises one compilation of a network.
type RunRecord struct {
	VersionedRecord
	ID           string    `json:"id"`
	Network      string    `json:"network"`
	Backend      string    `json:"backend"`
	CreatedAt    time.Time `json:"created_at"`
	MergedGroups int       `json:"merged_groups"`
	Fields       int       `json:"fields"`
	Buffers      int       `json:"buffers"`
	StructBytes  uint64    `json:"struct_bytes"`
}

// LayoutRecord is the persisted form of one merged struct.
type LayoutRecord struct {
	VersionedRecord
	RunID       string        `json:"run_id"`
	TypeName    string        `json:"type_name"`
	Role        string        `json:"role"`
	Index       int           `json:"index"`
	HostOnly    bool          `json:"host_only"`
	Members     []string      `json:"members"`
	Fields      []LayoutField `json:"fields"`
	Declaration string        `json:"declaration"`
}

type LayoutField struct {
	Name   string   `json:"name"`
	Type   string   `json:"type"`
	Kind   string   `json:"kind"`
	Values []string `json:"values"`
}
