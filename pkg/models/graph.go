package models

import "time"

// Graph is the editor's view of a fault tree or fuzz tree. Only the fields the
// job subsystem needs are loaded; editing happens elsewhere.
type Graph struct {
	ID       int64     `db:"id"       json:"id"`
	Kind     string    `db:"kind"     json:"kind"`
	Name     string    `db:"name"     json:"name"`
	Modified time.Time `db:"modified" json:"modified"`
}

// Node is a graph element that can carry a variation point. ClientID is the
// identifier the editor uses in the browser.
type Node struct {
	ID       int64 `db:"id"        json:"id"`
	GraphID  int64 `db:"graph_id"  json:"graph_id"`
	ClientID int64 `db:"client_id" json:"client_id"`
}
