package models

import (
	"github.com/google/uuid"
)

// ChoiceType is the closed set of variation point decisions a configuration can make.
type ChoiceType string

const (
	ChoiceFeature    ChoiceType = "FeatureChoice"
	ChoiceInclusion  ChoiceType = "InclusionChoice"
	ChoiceRedundancy ChoiceType = "RedundancyChoice"
)

// ChoiceSetting is the decision taken for one node. Exactly one of the payload
// fields is set, matching Type.
type ChoiceSetting struct {
	Type      ChoiceType `json:"type"`
	FeatureID *int64     `json:"featureId,omitempty"`
	Included  *bool      `json:"included,omitempty"`
	N         *int       `json:"n,omitempty"`
}

// Configuration is one concrete instantiation of a graph's variation points,
// as reported by the backend.
type Configuration struct {
	ID      uuid.UUID               `db:"id"       json:"id"`
	GraphID int64                   `db:"graph_id" json:"graph_id"`
	JobID   uuid.UUID               `db:"job_id"   json:"job_id"`
	Costs   int                     `db:"costs"    json:"costs"`
	Choices map[int64]ChoiceSetting `db:"-"        json:"choices,omitempty"`
}

// NodeConfiguration binds a node to the choice made for it in a configuration.
type NodeConfiguration struct {
	ID              uuid.UUID     `db:"id"               json:"id"`
	ConfigurationID uuid.UUID     `db:"configuration_id" json:"configuration_id"`
	NodeID          int64         `db:"node_id"          json:"node_id"`
	Setting         ChoiceSetting `db:"setting"          json:"setting"`
}
