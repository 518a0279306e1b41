package sampledb

import "time"

// The composite types used for messages to the ClickHouse database.

// ActivityMessage is the information for the sampleractivity table: one row per
// daemon run, written at start and again with End set at shutdown.
type ActivityMessage struct {
	ID        string
	Hostname  string
	Githash   string
	Version   string
	GoVersion string
	CPUs      int
	Capacity  int
	Tick      time.Duration
	Schedule  string
	Start     time.Time
	End       time.Time
}

// SnapshotMessage is the information required to make an entry in the snapshots table.
type SnapshotMessage struct {
	SessionID string
	Filled    int
	BitsA     string
	BitsB     string
	Served    time.Time
}
